package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chainScope/internal/storage/postgres"
)

func newRunAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-all",
		Short: "Run the syncer and every analytics loop in one process",
		RunE:  runAll,
	}
	addCommonFlags(cmd.Flags())
	cmd.Flags().Uint64("start-block", 0, "first block ingested into an empty store")
	cmd.Flags().Int("bulk-size", 100, "blocks per write during backfill")
	cmd.Flags().Int("receipt-workers", 8, "concurrent receipt fetches per block")
	cmd.Flags().Bool("skip-migrate", false, "do not apply migrations on start")
	addStatsFlags(cmd)
	addRichListFlags(cmd)
	addTokensFlags(cmd)
	addNFTFlags(cmd)
	return cmd
}

func runAll(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := setup(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if skip, _ := cmd.Flags().GetBool("skip-migrate"); !skip {
		if err := postgres.Migrate(a.cfg.Postgres.DSN); err != nil {
			return err
		}
	}

	aggregator, closeCache, err := a.newAggregator(ctx)
	if err != nil {
		return err
	}
	defer closeCache()

	syncer := a.newSyncer()
	recorder := a.newRecorder()
	builder := a.newBuilder()
	scanner := a.newScanner()
	holders := a.newHolderIndexer()

	// A fatal error of any loop stops the others.
	g, gctx := errgroup.WithContext(ctx)
	loops := map[string]func(context.Context) error{
		"sync":     syncer.Run,
		"stats":    aggregator.Run,
		"richlist": builder.Run,
		"tokens":   scanner.Run,
		"nft":      holders.Run,
		"blockstats": func(ctx context.Context) error {
			return recorder.Run(ctx, a.cfg.Stats.Interval, a.cfg.Stats.RecordWindow, a.cfg.Stats.Rescan)
		},
	}
	for name, loop := range loops {
		name, loop := name, loop
		g.Go(func() error {
			a.logger.Info("loop start", zap.String("loop", name))
			err := loop(gctx)
			if err != nil && gctx.Err() == nil {
				a.logger.Error("loop stopped", zap.String("loop", name), zap.Error(err))
			}
			return err
		})
	}
	return exitErr(ctx, g.Wait())
}
