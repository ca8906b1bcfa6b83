package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Ingest blocks and transactions, then follow the chain head",
		RunE:  runSync,
	}
	addCommonFlags(cmd.Flags())
	cmd.Flags().Uint64("start-block", 0, "first block ingested into an empty store")
	cmd.Flags().Uint64("from", 0, "one-shot sync start block (inclusive)")
	cmd.Flags().Uint64("to", 0, "one-shot sync end block (inclusive); set to stop instead of following")
	cmd.Flags().Int("bulk-size", 100, "blocks per write during backfill")
	cmd.Flags().Duration("poll-interval", 5*time.Second, "head poll interval")
	cmd.Flags().Int("receipt-workers", 8, "concurrent receipt fetches per block")
	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := setup(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	syncer := a.newSyncer()
	if !cmd.Flags().Changed("from") && !cmd.Flags().Changed("to") {
		a.logger.Info("sync start", zap.String("rpc", a.cfg.RPCURL), zap.Int("bulk_size", a.cfg.Sync.BulkSize))
		return exitErr(ctx, syncer.Run(ctx))
	}

	var from, to *uint64
	if cmd.Flags().Changed("from") {
		from = &a.cfg.Sync.From
	}
	if cmd.Flags().Changed("to") {
		to = &a.cfg.Sync.To
	}
	a.logger.Info("one-shot sync start", zap.Any("from", from), zap.Any("to", to))
	return exitErr(ctx, syncer.Sync(ctx, from, to))
}
