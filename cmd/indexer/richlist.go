package main

import (
	"time"

	"github.com/spf13/cobra"
)

func newRichListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "richlist",
		Short: "Maintain account balances and their share of supply",
		RunE:  runRichList,
	}
	addCommonFlags(cmd.Flags())
	addRichListFlags(cmd)
	cmd.Flags().Bool("percentages-only", false, "recompute balance percentages and exit")
	return cmd
}

func addRichListFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Uint64("richlist-range", 1000, "blocks per rich list window")
	flags.Int("richlist-workers", 10, "concurrent balance fetches")
	flags.Int("percentage-batch", 1000, "accounts per percentage update")
	flags.Duration("richlist-interval", 10*time.Second, "pause between passes once a sweep is done")
	flags.Int("new-visits", 3, "visits below which an address is always refreshed")
	flags.Int("frequent-visits", 10, "visits from which an address is sampled at the high probability")
	flags.Float64("mid-probability", 0.3, "refresh probability of moderately seen addresses")
	flags.Float64("high-probability", 0.1, "refresh probability of frequently seen addresses")
	flags.Float64("near-capacity", 0.9, "cache fill ratio above which frequent addresses are skipped")
	flags.Int("cache-capacity", 100_000, "addresses kept in the visit cache")
	flags.Float64("retain-fraction", 0.75, "share of the cache kept on eviction")
}

func runRichList(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := setup(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	builder := a.newBuilder()
	if only, _ := cmd.Flags().GetBool("percentages-only"); only {
		return builder.RecomputePercentages(ctx)
	}
	return exitErr(ctx, builder.Run(ctx))
}
