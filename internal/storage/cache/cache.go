package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chainScope/internal/model"
)

const (
	statsKey        = "stats:latest"
	statsHistoryKey = "stats:history"
)

// Options configures the Redis connection.
type Options struct {
	Addr       string
	Password   string
	DB         int
	TTL        time.Duration
	HistoryLen int64
}

// StatsCache keeps the latest network stats snapshot in Redis for readers.
type StatsCache struct {
	client     *redis.Client
	ttl        time.Duration
	historyLen int64
}

// NewStatsCache connects to Redis and checks it is reachable.
func NewStatsCache(ctx context.Context, opts Options) (*StatsCache, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewStatsCacheFromClient(client, opts.TTL, opts.HistoryLen), nil
}

// NewStatsCacheFromClient wraps an existing client. A zero ttl keeps the snapshot forever.
func NewStatsCacheFromClient(client *redis.Client, ttl time.Duration, historyLen int64) *StatsCache {
	return &StatsCache{client: client, ttl: ttl, historyLen: historyLen}
}

func (c *StatsCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// SetSnapshot replaces the cached snapshot and prepends it to the bounded history list.
func (c *StatsCache) SetSnapshot(ctx context.Context, stats model.NetworkStats) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, statsKey, payload, c.ttl)
	if c.historyLen > 0 {
		pipe.LPush(ctx, statsHistoryKey, payload)
		pipe.LTrim(ctx, statsHistoryKey, 0, c.historyLen-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache stats: %w", err)
	}
	return nil
}

// Snapshot returns the cached snapshot. ok is false when none is cached.
func (c *StatsCache) Snapshot(ctx context.Context) (model.NetworkStats, bool, error) {
	payload, err := c.client.Get(ctx, statsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.NetworkStats{}, false, nil
		}
		return model.NetworkStats{}, false, err
	}
	var stats model.NetworkStats
	if err := json.Unmarshal(payload, &stats); err != nil {
		return model.NetworkStats{}, false, fmt.Errorf("decode cached stats: %w", err)
	}
	return stats, true, nil
}

// History returns up to limit snapshots, newest first.
func (c *StatsCache) History(ctx context.Context, limit int64) ([]model.NetworkStats, error) {
	if limit <= 0 {
		return nil, nil
	}
	payloads, err := c.client.LRange(ctx, statsHistoryKey, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	history := make([]model.NetworkStats, 0, len(payloads))
	for _, payload := range payloads {
		var stats model.NetworkStats
		if err := json.Unmarshal([]byte(payload), &stats); err != nil {
			return nil, fmt.Errorf("decode stats history: %w", err)
		}
		history = append(history, stats)
	}
	return history, nil
}
