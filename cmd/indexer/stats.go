package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Compute network statistics and per-block stats",
		RunE:  runStats,
	}
	addCommonFlags(cmd.Flags())
	addStatsFlags(cmd)
	cmd.Flags().Bool("once", false, "compute one snapshot and exit")
	return cmd
}

func addStatsFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("redis-addr", "", "Redis address for the snapshot cache, empty disables it")
	flags.String("redis-password", "", "Redis password")
	flags.Duration("stats-ttl", 5*time.Minute, "snapshot TTL in Redis")
	flags.Int("block-window", 100, "blocks used for block time and miners")
	flags.Int("gas-price-window", 1000, "transactions used for the average gas price")
	flags.Uint64("max-block-delta", 300, "largest block delta in seconds treated as valid")
	flags.Float64("default-block-time", 13, "block time reported when no delta is usable")
	flags.Duration("stats-interval", time.Minute, "interval between snapshots")
	flags.String("stats-history-out", "", "JSONL file collecting every snapshot")
	flags.Int64("stats-history-max-bytes", 64<<20, "size at which the history file is rotated, 0 disables")
	flags.Uint64("record-window", 1000, "latest stored blocks covered by per-block stats")
	flags.Bool("rescan", false, "overwrite per-block stats already recorded")
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := setup(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	aggregator, closeCache, err := a.newAggregator(ctx)
	if err != nil {
		return err
	}
	defer closeCache()
	recorder := a.newRecorder()

	once, _ := cmd.Flags().GetBool("once")
	if once {
		if _, err := recorder.RecordLatest(ctx, a.cfg.Stats.RecordWindow, a.cfg.Stats.Rescan); err != nil {
			a.logger.Warn("record block stats failed", zap.Error(err))
		}
		_, err := aggregator.Publish(ctx)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return aggregator.Run(gctx) })
	g.Go(func() error {
		return recorder.Run(gctx, a.cfg.Stats.Interval, a.cfg.Stats.RecordWindow, a.cfg.Stats.Rescan)
	})
	return exitErr(ctx, g.Wait())
}
