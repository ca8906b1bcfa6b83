package indexer

import "chainScope/internal/model"

// blockBatch accumulates blocks with their transactions until a flush.
type blockBatch struct {
	limit  int
	blocks []model.Block
	txs    []model.Transaction
}

func newBlockBatch(limit int) *blockBatch {
	if limit < 1 {
		limit = 1
	}
	return &blockBatch{limit: limit}
}

func (b *blockBatch) add(block model.Block, txs []model.Transaction) {
	b.blocks = append(b.blocks, block)
	b.txs = append(b.txs, txs...)
}

func (b *blockBatch) full() bool {
	return len(b.blocks) >= b.limit
}

func (b *blockBatch) empty() bool {
	return len(b.blocks) == 0
}

// span returns the first and last block number in the batch.
func (b *blockBatch) span() (uint64, uint64) {
	if b.empty() {
		return 0, 0
	}
	return b.blocks[0].Number, b.blocks[len(b.blocks)-1].Number
}

func (b *blockBatch) reset() {
	b.blocks = b.blocks[:0]
	b.txs = b.txs[:0]
}
