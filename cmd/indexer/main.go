package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"chainScope/internal/chain"
	"chainScope/internal/config"
	"chainScope/internal/storage/postgres"
)

func main() {
	// A missing .env is fine; real deployments use the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	root := &cobra.Command{
		Use:          "indexer",
		Short:        "Blockchain indexer and analytics pipeline",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "config file path")

	root.AddCommand(
		newSyncCmd(),
		newStatsCmd(),
		newRichListCmd(),
		newTokensCmd(),
		newNFTCmd(),
		newVerifyCmd(),
		newMigrateCmd(),
		newRunAllCmd(),
		newShowCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "JSON-RPC node URL")
	flags.Duration("rpc-timeout", 15*time.Second, "timeout of a single RPC call")
	flags.Float64("rpc-rps", 0, "RPC requests per second, 0 means unlimited")
	flags.Int("rpc-burst", 0, "RPC rate limiter burst")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.Int32("pg-max-conns", 10, "maximum Postgres connections")
	flags.Int("max-retries", 5, "maximum retry attempts")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.Uint64("memory-limit-mb", 0, "heap limit that pauses long scans, 0 disables")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

// app holds the dependencies shared by the commands.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	chain  *chain.Client
	store  *postgres.Store
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.chain != nil {
		a.chain.Close()
	}
	_ = a.logger.Sync()
}

// setup loads config, builds the logger and connects to the node and the database.
func setup(ctx context.Context, cmd *cobra.Command, needChain bool) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	if err := cfg.RequirePostgres(); err != nil {
		return nil, err
	}
	if needChain {
		if err := cfg.RequireRPC(); err != nil {
			return nil, err
		}
		a.chain, err = chain.NewClient(ctx, cfg.RPCURL, chain.Options{
			CallTimeout:       cfg.RPCTimeout,
			RequestsPerSecond: cfg.RPCRate,
			Burst:             cfg.RPCBurst,
		})
		if err != nil {
			return nil, fmt.Errorf("connect rpc: %w", err)
		}
	}

	a.store, err = postgres.NewStore(ctx, postgres.Config{
		DSN:         cfg.Postgres.DSN,
		MaxConns:    cfg.Postgres.MaxConns,
		MinConns:    cfg.Postgres.MinConns,
		ConnTimeout: cfg.Postgres.ConnTimeout,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return a, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// exitErr drops the cancellation error of a clean shutdown.
func exitErr(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
