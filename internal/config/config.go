package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL       string
	RPCTimeout   time.Duration
	RPCRate      float64
	RPCBurst     int
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string

	Postgres PostgresConfig
	Redis    RedisConfig
	Memory   MemoryConfig
	Sync     SyncConfig
	Stats    StatsConfig
	RichList RichListConfig
	Tokens   TokensConfig
	NFT      NFTConfig
}

type PostgresConfig struct {
	DSN         string
	MaxConns    int32
	MinConns    int32
	ConnTimeout time.Duration
}

type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	TTL        time.Duration
	HistoryLen int64
}

// MemoryConfig bounds heap usage of long scans. A zero limit disables the guard.
type MemoryConfig struct {
	LimitMB uint64
	Pause   time.Duration
}

type SyncConfig struct {
	StartBlock     uint64
	From           uint64
	To             uint64
	BulkSize       int
	PollInterval   time.Duration
	ReceiptWorkers int
}

type StatsConfig struct {
	BlockWindow      int
	GasPriceWindow   int
	MaxBlockDelta    uint64
	DefaultBlockTime float64
	Interval         time.Duration
	HistoryOut       string
	HistoryMaxBytes  int64
	RecordWindow     uint64
	Rescan           bool
}

type RichListConfig struct {
	Range           uint64
	Workers         int
	PercentageBatch int
	Interval        time.Duration
	NewVisits       int
	FrequentVisits  int
	MidProbability  float64
	HighProbability float64
	NearCapacity    float64
	CacheCapacity   int
	RetainFraction  float64
}

type TokensConfig struct {
	StartBlock   uint64
	BatchSize    uint64
	Workers      int
	ChunkDelay   time.Duration
	ProbeWorkers int
	Interval     time.Duration
	SkipCapacity int
}

type NFTConfig struct {
	Tokens   []string
	Full     bool
	LogRange uint64
	Interval time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc-timeout", 15*time.Second)
	v.SetDefault("rpc-rps", 0.0)
	v.SetDefault("rpc-burst", 0)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	v.SetDefault("pg-max-conns", 10)
	v.SetDefault("pg-min-conns", 1)
	v.SetDefault("pg-conn-timeout", 10*time.Second)

	v.SetDefault("redis-addr", "")
	v.SetDefault("redis-db", 0)
	v.SetDefault("stats-ttl", 5*time.Minute)
	v.SetDefault("stats-history-len", 1440)

	v.SetDefault("memory-limit-mb", uint64(0))
	v.SetDefault("memory-pause", 5*time.Second)

	v.SetDefault("start-block", uint64(0))
	v.SetDefault("bulk-size", 100)
	v.SetDefault("poll-interval", 5*time.Second)
	v.SetDefault("receipt-workers", 8)

	v.SetDefault("block-window", 100)
	v.SetDefault("gas-price-window", 1000)
	v.SetDefault("max-block-delta", uint64(300))
	v.SetDefault("default-block-time", 13.0)
	v.SetDefault("stats-interval", time.Minute)
	v.SetDefault("record-window", uint64(1000))
	v.SetDefault("stats-history-max-bytes", int64(64<<20))

	v.SetDefault("richlist-range", uint64(1000))
	v.SetDefault("richlist-workers", 10)
	v.SetDefault("percentage-batch", 1000)
	v.SetDefault("richlist-interval", 10*time.Second)
	v.SetDefault("new-visits", 3)
	v.SetDefault("frequent-visits", 10)
	v.SetDefault("mid-probability", 0.3)
	v.SetDefault("high-probability", 0.1)
	v.SetDefault("near-capacity", 0.9)
	v.SetDefault("cache-capacity", 100_000)
	v.SetDefault("retain-fraction", 0.75)

	v.SetDefault("token-start-block", uint64(0))
	v.SetDefault("token-batch-size", uint64(1000))
	v.SetDefault("token-workers", 10)
	v.SetDefault("chunk-delay", 100*time.Millisecond)
	v.SetDefault("probe-workers", 5)
	v.SetDefault("token-interval", 30*time.Second)
	v.SetDefault("token-skip-capacity", 100_000)

	v.SetDefault("log-range", uint64(2000))
	v.SetDefault("nft-interval", time.Minute)
}

// Load merges config file, environment variables, and flags into Config.
// Flags take precedence over env, env over the config file.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:       v.GetString("rpc"),
		RPCTimeout:   v.GetDuration("rpc-timeout"),
		RPCRate:      v.GetFloat64("rpc-rps"),
		RPCBurst:     v.GetInt("rpc-burst"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
		Postgres: PostgresConfig{
			DSN:         v.GetString("pg-dsn"),
			MaxConns:    v.GetInt32("pg-max-conns"),
			MinConns:    v.GetInt32("pg-min-conns"),
			ConnTimeout: v.GetDuration("pg-conn-timeout"),
		},
		Redis: RedisConfig{
			Addr:       v.GetString("redis-addr"),
			Password:   v.GetString("redis-password"),
			DB:         v.GetInt("redis-db"),
			TTL:        v.GetDuration("stats-ttl"),
			HistoryLen: v.GetInt64("stats-history-len"),
		},
		Memory: MemoryConfig{
			LimitMB: v.GetUint64("memory-limit-mb"),
			Pause:   v.GetDuration("memory-pause"),
		},
		Sync: SyncConfig{
			StartBlock:     v.GetUint64("start-block"),
			From:           v.GetUint64("from"),
			To:             v.GetUint64("to"),
			BulkSize:       v.GetInt("bulk-size"),
			PollInterval:   v.GetDuration("poll-interval"),
			ReceiptWorkers: v.GetInt("receipt-workers"),
		},
		Stats: StatsConfig{
			BlockWindow:      v.GetInt("block-window"),
			GasPriceWindow:   v.GetInt("gas-price-window"),
			MaxBlockDelta:    v.GetUint64("max-block-delta"),
			DefaultBlockTime: v.GetFloat64("default-block-time"),
			Interval:         v.GetDuration("stats-interval"),
			HistoryOut:       v.GetString("stats-history-out"),
			HistoryMaxBytes:  v.GetInt64("stats-history-max-bytes"),
			RecordWindow:     v.GetUint64("record-window"),
			Rescan:           v.GetBool("rescan"),
		},
		RichList: RichListConfig{
			Range:           v.GetUint64("richlist-range"),
			Workers:         v.GetInt("richlist-workers"),
			PercentageBatch: v.GetInt("percentage-batch"),
			Interval:        v.GetDuration("richlist-interval"),
			NewVisits:       v.GetInt("new-visits"),
			FrequentVisits:  v.GetInt("frequent-visits"),
			MidProbability:  v.GetFloat64("mid-probability"),
			HighProbability: v.GetFloat64("high-probability"),
			NearCapacity:    v.GetFloat64("near-capacity"),
			CacheCapacity:   v.GetInt("cache-capacity"),
			RetainFraction:  v.GetFloat64("retain-fraction"),
		},
		Tokens: TokensConfig{
			StartBlock:   v.GetUint64("token-start-block"),
			BatchSize:    v.GetUint64("token-batch-size"),
			Workers:      v.GetInt("token-workers"),
			ChunkDelay:   v.GetDuration("chunk-delay"),
			ProbeWorkers: v.GetInt("probe-workers"),
			Interval:     v.GetDuration("token-interval"),
			SkipCapacity: v.GetInt("token-skip-capacity"),
		},
		NFT: NFTConfig{
			Tokens:   getStringSlice(v, "token"),
			Full:     v.GetBool("full"),
			LogRange: v.GetUint64("log-range"),
			Interval: v.GetDuration("nft-interval"),
		},
	}

	return cfg, nil
}

// RequireRPC returns an error when no node URL is configured.
func (c Config) RequireRPC() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	return nil
}

// RequirePostgres returns an error when no database DSN is configured.
func (c Config) RequirePostgres() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
