package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chainScope/internal/model"
	"chainScope/internal/scan"
)

const finalFlushTimeout = 30 * time.Second

// ChainReader is the node access the syncer needs.
type ChainReader interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number uint64) (*types.Block, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	TransactionSender(ctx context.Context, tx *types.Transaction, block common.Hash, index uint) (common.Address, error)
}

// BlockStore persists blocks and transactions.
type BlockStore interface {
	LatestBlockNumber(ctx context.Context) (uint64, bool, error)
	InsertBlockBatch(ctx context.Context, blocks []model.Block, txs []model.Transaction) error
}

// SyncConfig holds runtime settings for the syncer.
type SyncConfig struct {
	// StartBlock is the first block ingested into an empty store.
	StartBlock     uint64
	BulkSize       int
	PollInterval   time.Duration
	ReceiptWorkers int
	MaxRetries     int
	RetryBackoff   time.Duration
}

// Syncer copies blocks and settled transactions from the node into the store.
// It is the only writer of blocks and transactions.
type Syncer struct {
	cfg    SyncConfig
	chain  ChainReader
	store  BlockStore
	logger *zap.Logger
}

// NewSyncer builds a Syncer with its dependencies.
func NewSyncer(cfg SyncConfig, chainClient ChainReader, store BlockStore, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BulkSize <= 0 {
		cfg.BulkSize = 100
	}
	if cfg.ReceiptWorkers <= 0 {
		cfg.ReceiptWorkers = 8
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Syncer{
		cfg:    cfg,
		chain:  chainClient,
		store:  store,
		logger: logger,
	}
}

// Run backfills up to the current head and then follows the chain until ctx is done.
// It returns a fatal error when the node stops answering head queries or a write fails.
func (s *Syncer) Run(ctx context.Context) error {
	head, err := s.head(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("node reachable", zap.Uint64("head", head))

	if err := s.sync(ctx, nil, head, s.cfg.BulkSize); err != nil {
		return err
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.poll(ctx); err != nil {
				return err
			}
		}
	}
}

// Sync ingests [from, to]. A nil from resumes after the latest stored block and
// a nil to stops at the current chain head.
func (s *Syncer) Sync(ctx context.Context, from, to *uint64) error {
	var end uint64
	if to != nil {
		end = *to
	} else {
		head, err := s.head(ctx)
		if err != nil {
			return err
		}
		end = head
	}
	return s.sync(ctx, from, end, s.cfg.BulkSize)
}

// poll ingests blocks the chain gained since the last stored block, one flush per block.
func (s *Syncer) poll(ctx context.Context) error {
	head, err := s.head(ctx)
	if err != nil {
		return err
	}
	return s.sync(ctx, nil, head, 1)
}

func (s *Syncer) sync(ctx context.Context, from *uint64, to uint64, bulkSize int) error {
	if s.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if s.store == nil {
		return fmt.Errorf("block store is nil")
	}

	var start uint64
	if from != nil {
		start = *from
	} else {
		latest, ok, err := s.store.LatestBlockNumber(ctx)
		if err != nil {
			return scan.Fatal(fmt.Errorf("read latest stored block: %w", err))
		}
		start = s.cfg.StartBlock
		if ok && latest+1 > start {
			start = latest + 1
		}
	}

	if start > to {
		s.logger.Debug("nothing to sync", zap.Uint64("from", start), zap.Uint64("to", to))
		return nil
	}
	if bulkSize > 1 {
		s.logger.Info("sync range", zap.Uint64("from", start), zap.Uint64("to", to))
	}

	batch := newBlockBatch(bulkSize)
	for number := start; number <= to; number++ {
		if ctx.Err() != nil {
			if err := s.finalFlush(ctx, batch); err != nil {
				return err
			}
			return ctx.Err()
		}

		block, txs, err := s.fetchBlock(ctx, number)
		if err != nil {
			if ctx.Err() != nil {
				if flushErr := s.finalFlush(ctx, batch); flushErr != nil {
					return flushErr
				}
				return ctx.Err()
			}
			// Stop at the first missing block so the stored chain has no gap.
			s.logger.Warn("block fetch failed, ending pass", zap.Uint64("block", number), zap.Error(err))
			return s.flush(ctx, batch)
		}

		batch.add(block, txs)
		if batch.full() {
			if err := s.flush(ctx, batch); err != nil {
				return err
			}
		}
		if number == to {
			break
		}
	}

	return s.flush(ctx, batch)
}

func (s *Syncer) head(ctx context.Context) (uint64, error) {
	var head uint64
	err := scan.Retry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		head, err = s.chain.LatestBlockNumber(ctx)
		if err != nil {
			s.logger.Warn("chain head fetch failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, scan.Fatal(fmt.Errorf("chain head unreachable: %w", err))
	}
	return head, nil
}

func (s *Syncer) fetchBlock(ctx context.Context, number uint64) (model.Block, []model.Transaction, error) {
	var block *types.Block
	err := scan.Retry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		block, err = s.chain.BlockByNumber(ctx, number)
		if err != nil {
			s.logger.Warn("block fetch failed", zap.Uint64("block", number), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return model.Block{}, nil, fmt.Errorf("block %d: %w", number, err)
	}

	txs, err := s.fetchTransactions(ctx, block)
	if err != nil {
		return model.Block{}, nil, fmt.Errorf("block %d: %w", number, err)
	}
	return buildBlock(block), txs, nil
}

// fetchTransactions resolves sender and receipt of every transaction with bounded concurrency.
func (s *Syncer) fetchTransactions(ctx context.Context, block *types.Block) ([]model.Transaction, error) {
	txs := block.Transactions()
	if len(txs) == 0 {
		return nil, nil
	}

	records := make([]model.Transaction, len(txs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.ReceiptWorkers)

	for i, tx := range txs {
		group.Go(func() error {
			from, err := s.chain.TransactionSender(groupCtx, tx, block.Hash(), uint(i))
			if err != nil {
				return fmt.Errorf("sender of %s: %w", tx.Hash().Hex(), err)
			}

			var receipt *types.Receipt
			err = scan.Retry(groupCtx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
				var err error
				receipt, err = s.chain.TransactionReceipt(ctx, tx.Hash())
				return err
			})
			if err != nil {
				return fmt.Errorf("receipt of %s: %w", tx.Hash().Hex(), err)
			}

			records[i] = buildTransaction(block, i, tx, from, receipt)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Syncer) flush(ctx context.Context, batch *blockBatch) error {
	if batch.empty() {
		return nil
	}
	first, last := batch.span()
	if err := s.store.InsertBlockBatch(ctx, batch.blocks, batch.txs); err != nil {
		return scan.Fatal(fmt.Errorf("flush blocks %d-%d: %w", first, last, err))
	}
	s.logger.Info("blocks flushed",
		zap.Uint64("from", first),
		zap.Uint64("to", last),
		zap.Int("txs", len(batch.txs)),
	)
	batch.reset()
	return nil
}

// finalFlush writes pending blocks after shutdown was requested.
func (s *Syncer) finalFlush(ctx context.Context, batch *blockBatch) error {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
	defer cancel()
	return s.flush(flushCtx, batch)
}
