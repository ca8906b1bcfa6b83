package main

import (
	"context"
	"fmt"

	"chainScope/internal/indexer"
	"chainScope/internal/richlist"
	"chainScope/internal/scan"
	"chainScope/internal/stats"
	"chainScope/internal/storage"
	"chainScope/internal/storage/cache"
	"chainScope/internal/tokens"
)

func (a *app) newSyncer() *indexer.Syncer {
	cfg := a.cfg
	return indexer.NewSyncer(indexer.SyncConfig{
		StartBlock:     cfg.Sync.StartBlock,
		BulkSize:       cfg.Sync.BulkSize,
		PollInterval:   cfg.Sync.PollInterval,
		ReceiptWorkers: cfg.Sync.ReceiptWorkers,
		MaxRetries:     cfg.MaxRetries,
		RetryBackoff:   cfg.RetryBackoff,
	}, a.chain, a.store, a.logger.Named("sync"))
}

// newStatsCache connects to Redis. It returns nil when no address is configured.
func (a *app) newStatsCache(ctx context.Context) (*cache.StatsCache, error) {
	cfg := a.cfg.Redis
	if cfg.Addr == "" {
		return nil, nil
	}
	statsCache, err := cache.NewStatsCache(ctx, cache.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		TTL:        cfg.TTL,
		HistoryLen: cfg.HistoryLen,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return statsCache, nil
}

// newAggregator wires the optional Redis cache and JSONL history. The returned
// close func releases the cache connection.
func (a *app) newAggregator(ctx context.Context) (*stats.Aggregator, func(), error) {
	cfg := a.cfg
	closeFn := func() {}

	var snapshots stats.SnapshotCache
	statsCache, err := a.newStatsCache(ctx)
	if err != nil {
		return nil, nil, err
	}
	if statsCache != nil {
		snapshots = statsCache
		closeFn = func() { _ = statsCache.Close() }
	}

	var history storage.Sink
	if cfg.Stats.HistoryOut != "" {
		history = storage.NewRotatingJsonlStorage(cfg.Stats.HistoryOut, cfg.Stats.HistoryMaxBytes)
	}

	aggregator := stats.NewAggregator(stats.Config{
		BlockWindow:      cfg.Stats.BlockWindow,
		GasPriceWindow:   cfg.Stats.GasPriceWindow,
		MaxBlockDelta:    cfg.Stats.MaxBlockDelta,
		DefaultBlockTime: cfg.Stats.DefaultBlockTime,
		Interval:         cfg.Stats.Interval,
	}, a.store, snapshots, history, a.logger.Named("stats"))
	return aggregator, closeFn, nil
}

func (a *app) newRecorder() *stats.BlockStatRecorder {
	return stats.NewBlockStatRecorder(a.store, 0, a.logger.Named("blockstats"))
}

func (a *app) newBuilder() *richlist.Builder {
	cfg := a.cfg.RichList
	return richlist.NewBuilder(richlist.Config{
		StartBlock:      a.cfg.Sync.StartBlock,
		Range:           cfg.Range,
		Workers:         cfg.Workers,
		PercentageBatch: cfg.PercentageBatch,
		Interval:        cfg.Interval,
		Policy: richlist.Policy{
			NewVisits:       cfg.NewVisits,
			FrequentVisits:  cfg.FrequentVisits,
			MidProbability:  cfg.MidProbability,
			HighProbability: cfg.HighProbability,
			NearCapacity:    cfg.NearCapacity,
			Capacity:        cfg.CacheCapacity,
			RetainFraction:  cfg.RetainFraction,
		},
	}, a.chain, a.store, scan.NewTracker(a.store, scan.ScanTypeRichList), a.logger.Named("richlist"))
}

func (a *app) newScanner() *tokens.Scanner {
	cfg := a.cfg
	guard := scan.NewMemoryGuard(cfg.Memory.LimitMB, cfg.Memory.Pause, a.logger.Named("memory"))
	return tokens.NewScanner(tokens.ScannerConfig{
		StartBlock:   cfg.Tokens.StartBlock,
		BatchSize:    cfg.Tokens.BatchSize,
		Workers:      cfg.Tokens.Workers,
		ChunkDelay:   cfg.Tokens.ChunkDelay,
		ProbeWorkers: cfg.Tokens.ProbeWorkers,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Interval:     cfg.Tokens.Interval,
		SkipCapacity: cfg.Tokens.SkipCapacity,
	}, a.chain, a.store, scan.NewTracker(a.store, scan.ScanTypeTokens), guard, a.logger.Named("tokens"))
}

func (a *app) newHolderIndexer() *tokens.HolderIndexer {
	cfg := a.cfg
	return tokens.NewHolderIndexer(tokens.HolderConfig{
		LogRange:     cfg.NFT.LogRange,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Interval:     cfg.NFT.Interval,
	}, a.chain, a.store, a.logger.Named("nft"))
}

func (a *app) newVerifier() *tokens.Verifier {
	return tokens.NewVerifier(a.chain, a.store, a.cfg.MaxRetries, a.cfg.RetryBackoff, a.logger.Named("verify"))
}
