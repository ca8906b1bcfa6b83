package stats

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chainScope/internal/model"
	"chainScope/internal/scan"
)

// BlockStatStore reads stored blocks and writes per-block stats.
type BlockStatStore interface {
	LatestBlockNumber(ctx context.Context) (uint64, bool, error)
	BlocksInRange(ctx context.Context, from, to uint64) ([]model.Block, error)
	ExistingBlockStats(ctx context.Context, from, to uint64) (map[uint64]struct{}, error)
	UpsertBlockStats(ctx context.Context, stats []model.BlockStat, rescan bool) error
}

// BlockStatRecorder derives one BlockStat row per stored block that has a stored successor.
type BlockStatRecorder struct {
	store     BlockStatStore
	batchSize uint64
	logger    *zap.Logger
}

func NewBlockStatRecorder(store BlockStatStore, batchSize uint64, logger *zap.Logger) *BlockStatRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize == 0 {
		batchSize = 500
	}
	return &BlockStatRecorder{store: store, batchSize: batchSize, logger: logger}
}

// RecordLatest records the last window stored blocks.
func (r *BlockStatRecorder) RecordLatest(ctx context.Context, window uint64, rescan bool) (int, error) {
	latest, ok, err := r.store.LatestBlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("latest stored block: %w", err)
	}
	if !ok || window == 0 {
		return 0, nil
	}
	blockRange, err := scan.WindowBelow(latest, window, 0)
	if err != nil {
		return 0, err
	}
	return r.Record(ctx, blockRange.From, blockRange.To, rescan)
}

// Record writes stats for blocks in [from, to]. Blocks that already have a row are
// skipped unless rescan is set. It returns the number of rows written.
func (r *BlockStatRecorder) Record(ctx context.Context, from, to uint64, rescan bool) (int, error) {
	if to < from {
		return 0, nil
	}
	ranges, err := scan.SplitRange(from, to, r.batchSize)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		// One extra block so the last block of the range has its successor.
		blocks, err := r.store.BlocksInRange(ctx, blockRange.From, blockRange.To+1)
		if err != nil {
			return written, fmt.Errorf("blocks %d-%d: %w", blockRange.From, blockRange.To, err)
		}
		existing := map[uint64]struct{}{}
		if !rescan {
			existing, err = r.store.ExistingBlockStats(ctx, blockRange.From, blockRange.To)
			if err != nil {
				return written, fmt.Errorf("existing block stats: %w", err)
			}
		}

		rows := deriveBlockStats(blocks, blockRange, existing)
		if err := r.store.UpsertBlockStats(ctx, rows, rescan); err != nil {
			return written, fmt.Errorf("upsert block stats: %w", err)
		}
		written += len(rows)

		r.logger.Debug("block stats recorded",
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
			zap.Int("rows", len(rows)),
		)
	}
	return written, nil
}

// Run records the latest window every interval until ctx is done. Only the first
// pass honors rescan.
func (r *BlockStatRecorder) Run(ctx context.Context, interval time.Duration, window uint64, rescan bool) error {
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		written, err := r.RecordLatest(ctx, window, rescan)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("record block stats failed", zap.Error(err))
		} else if written > 0 {
			r.logger.Info("block stats recorded", zap.Int("rows", written))
		}
		rescan = false
		if err := scan.Sleep(ctx, interval); err != nil {
			return err
		}
	}
}

func deriveBlockStats(blocks []model.Block, blockRange scan.BlockRange, skip map[uint64]struct{}) []model.BlockStat {
	byNumber := make(map[uint64]model.Block, len(blocks))
	for _, block := range blocks {
		byNumber[block.Number] = block
	}

	var rows []model.BlockStat
	for _, block := range sortedByNumber(blocks) {
		if block.Number < blockRange.From || block.Number > blockRange.To {
			continue
		}
		if _, done := skip[block.Number]; done {
			continue
		}
		next, ok := byNumber[block.Number+1]
		if !ok {
			continue
		}
		var blockTime uint64
		if next.Timestamp > block.Timestamp {
			blockTime = next.Timestamp - block.Timestamp
		}
		rows = append(rows, model.BlockStat{
			Number:     block.Number,
			BlockTime:  blockTime,
			TxCount:    block.TxCount,
			GasUsed:    block.GasUsed,
			UncleCount: block.UncleCount,
			Difficulty: block.Difficulty,
		})
	}
	return rows
}
