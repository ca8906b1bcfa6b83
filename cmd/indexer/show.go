package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"chainScope/internal/scan"
)

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print stored analytics as JSON",
	}
	cmd.PersistentFlags().String("pg-dsn", "", "Postgres DSN")
	cmd.PersistentFlags().String("redis-addr", "", "Redis address of the snapshot cache")
	cmd.PersistentFlags().Int("limit", 20, "maximum rows")
	cmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		&cobra.Command{Use: "richlist", Short: "Top accounts by balance", RunE: showRichList},
		&cobra.Command{Use: "holders <token>", Short: "Top holders of an NFT contract", Args: cobra.ExactArgs(1), RunE: showHolders},
		&cobra.Command{Use: "txs <address>", Short: "Transactions of an address", Args: cobra.ExactArgs(1), RunE: showTransactions},
		&cobra.Command{Use: "contract <address>", Short: "Stored contract metadata", Args: cobra.ExactArgs(1), RunE: showContract},
		&cobra.Command{Use: "progress", Short: "Scan checkpoints", RunE: showProgress},
		&cobra.Command{Use: "stats", Short: "Cached network stats snapshot and history", RunE: showStats},
	)
	return cmd
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func showRichList(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()
	a, err := setup(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	accounts, err := a.store.TopAccounts(ctx, limit)
	if err != nil {
		return err
	}
	return printJSON(accounts)
}

func showHolders(cmd *cobra.Command, args []string) error {
	if !common.IsHexAddress(args[0]) {
		return fmt.Errorf("invalid address: %q", args[0])
	}
	ctx, stop := signalContext()
	defer stop()
	a, err := setup(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	holders, err := a.store.TokenHolders(ctx, scan.NormalizeHex(args[0]), limit)
	if err != nil {
		return err
	}
	return printJSON(holders)
}

func showTransactions(cmd *cobra.Command, args []string) error {
	if !common.IsHexAddress(args[0]) {
		return fmt.Errorf("invalid address: %q", args[0])
	}
	ctx, stop := signalContext()
	defer stop()
	a, err := setup(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	txs, err := a.store.TransactionsByAddress(ctx, scan.NormalizeHex(args[0]), limit, 0)
	if err != nil {
		return err
	}
	return printJSON(txs)
}

func showContract(cmd *cobra.Command, args []string) error {
	if !common.IsHexAddress(args[0]) {
		return fmt.Errorf("invalid address: %q", args[0])
	}
	ctx, stop := signalContext()
	defer stop()
	a, err := setup(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	contract, found, err := a.store.GetContract(ctx, scan.NormalizeHex(args[0]))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("contract %s is not indexed", args[0])
	}
	return printJSON(contract)
}

func showProgress(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()
	a, err := setup(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	progress, err := a.store.ListProgress(ctx)
	if err != nil {
		return err
	}
	return printJSON(progress)
}

func showStats(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()
	a, err := setup(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	statsCache, err := a.newStatsCache(ctx)
	if err != nil {
		return err
	}
	if statsCache == nil {
		return fmt.Errorf("redis-addr is required")
	}
	defer statsCache.Close()

	latest, ok, err := statsCache.Snapshot(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no cached snapshot")
	}
	limit, _ := cmd.Flags().GetInt("limit")
	history, err := statsCache.History(ctx, int64(limit))
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{"latest": latest, "history": history})
}
