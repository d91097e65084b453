package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"audiolib/logger"
	"audiolib/model"

	"github.com/go-redis/redis/v8"
)

// StatsKey is the Redis key holding the cached library overview.
const StatsKey = "audiolib:stats"

// StatsSource computes fresh library statistics.
type StatsSource interface {
	Stats(ctx context.Context, top int) (*model.LibraryStats, error)
}

// StatsCache fronts a StatsSource with a short-lived Redis entry. A nil
// client disables caching.
type StatsCache struct {
	client *redis.Client
	source StatsSource
	ttl    time.Duration
	top    int
}

// NewStatsCache creates a StatsCache returning the top most played tracks.
func NewStatsCache(client *redis.Client, source StatsSource, ttl time.Duration, top int) *StatsCache {
	return &StatsCache{client: client, source: source, ttl: ttl, top: top}
}

// Get returns cached statistics or computes and stores them. Redis failures
// fall back to the source.
func (c *StatsCache) Get(ctx context.Context) (*model.LibraryStats, error) {
	if c.client != nil {
		stats, err := c.load(ctx)
		if err == nil {
			return stats, nil
		}
		if !errors.Is(err, redis.Nil) {
			logger.Warn("读取统计缓存失败", logger.ErrorField(err))
		}
	}

	stats, err := c.source.Stats(ctx, c.top)
	if err != nil {
		return nil, err
	}

	if c.client != nil {
		if err := c.store(ctx, stats); err != nil {
			logger.Warn("写入统计缓存失败", logger.ErrorField(err))
		}
	}
	return stats, nil
}

// Invalidate drops the cached entry, e.g. after an upload or delete.
func (c *StatsCache) Invalidate(ctx context.Context) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, StatsKey).Err(); err != nil {
		logger.Warn("清除统计缓存失败", logger.ErrorField(err))
	}
}

func (c *StatsCache) load(ctx context.Context) (*model.LibraryStats, error) {
	data, err := c.client.Get(ctx, StatsKey).Bytes()
	if err != nil {
		return nil, err
	}
	var stats model.LibraryStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stats: %w", err)
	}
	return &stats, nil
}

func (c *StatsCache) store(ctx context.Context, stats *model.LibraryStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	return c.client.Set(ctx, StatsKey, data, c.ttl).Err()
}
