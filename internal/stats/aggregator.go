package stats

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chainScope/internal/model"
	"chainScope/internal/storage"
)

// Reader is the stored chain data the aggregator derives stats from.
type Reader interface {
	RecentBlocks(ctx context.Context, limit int) ([]model.Block, error)
	RecentGasPrices(ctx context.Context, limit int) ([]string, error)
	CountTransactions(ctx context.Context) (int64, error)
}

// SnapshotCache holds the latest snapshot for readers.
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, stats model.NetworkStats) error
}

// Config holds settings for the aggregator.
type Config struct {
	BlockWindow      int
	GasPriceWindow   int
	MaxBlockDelta    uint64
	DefaultBlockTime float64
	Interval         time.Duration
}

// Aggregator computes network stats from stored blocks. It keeps no state between calls.
type Aggregator struct {
	cfg     Config
	store   Reader
	cache   SnapshotCache
	history storage.Sink
	logger  *zap.Logger
	now     func() time.Time
}

// NewAggregator builds an Aggregator. cache and history are optional.
func NewAggregator(cfg Config, store Reader, cache SnapshotCache, history storage.Sink, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BlockWindow <= 0 {
		cfg.BlockWindow = 100
	}
	if cfg.GasPriceWindow <= 0 {
		cfg.GasPriceWindow = 1000
	}
	if cfg.MaxBlockDelta == 0 {
		cfg.MaxBlockDelta = 300
	}
	if cfg.DefaultBlockTime <= 0 {
		cfg.DefaultBlockTime = 13
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Aggregator{
		cfg:     cfg,
		store:   store,
		cache:   cache,
		history: history,
		logger:  logger,
		now:     time.Now,
	}
}

// Compute returns a fresh snapshot of the stored chain.
func (a *Aggregator) Compute(ctx context.Context) (model.NetworkStats, error) {
	if a.store == nil {
		return model.NetworkStats{}, fmt.Errorf("stats reader is nil")
	}
	blocks, err := a.store.RecentBlocks(ctx, a.cfg.BlockWindow)
	if err != nil {
		return model.NetworkStats{}, fmt.Errorf("recent blocks: %w", err)
	}
	prices, err := a.store.RecentGasPrices(ctx, a.cfg.GasPriceWindow)
	if err != nil {
		return model.NetworkStats{}, fmt.Errorf("recent gas prices: %w", err)
	}
	totalTxs, err := a.store.CountTransactions(ctx)
	if err != nil {
		return model.NetworkStats{}, fmt.Errorf("count transactions: %w", err)
	}

	return ComputeSnapshot(blocks, prices, totalTxs, Params{
		MaxBlockDelta:    a.cfg.MaxBlockDelta,
		DefaultBlockTime: a.cfg.DefaultBlockTime,
	}, a.now()), nil
}

// Publish computes a snapshot and hands it to the cache and history sink.
// When compute fails nothing is published, so readers keep the previous snapshot.
func (a *Aggregator) Publish(ctx context.Context) (model.NetworkStats, error) {
	snapshot, err := a.Compute(ctx)
	if err != nil {
		return model.NetworkStats{}, err
	}

	if a.cache != nil {
		if err := a.cache.SetSnapshot(ctx, snapshot); err != nil {
			a.logger.Warn("cache stats failed", zap.Error(err))
		}
	}
	if a.history != nil {
		if err := a.history.Append(snapshot); err != nil {
			a.logger.Warn("append stats history failed", zap.Error(err))
		}
	}

	a.logger.Info("stats computed",
		zap.Uint64("latest_block", snapshot.LatestBlock),
		zap.Float64("avg_block_time", snapshot.AvgBlockTime),
		zap.String("hashrate", snapshot.HashrateHuman),
		zap.Int("active_miners", snapshot.ActiveMiners),
	)
	return snapshot, nil
}

// Run publishes a snapshot every interval until ctx is done.
func (a *Aggregator) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := a.Publish(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("stats pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
