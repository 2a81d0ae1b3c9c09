package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/alphafuse/internal/metrics"
	"github.com/ajitpratap0/alphafuse/pkg/backtest"
)

const cacheKeyPrefix = "alphafuse:candles"

// CandleCache is a read-through Redis cache in front of a CandleSource.
// Redis failures degrade to a direct load; they never fail the caller.
type CandleCache struct {
	source   CandleSource
	client   *redis.Client
	interval string
	ttl      time.Duration
	timeout  time.Duration
}

// NewCandleCache wraps source. Returns nil when client is nil (Redis is optional).
func NewCandleCache(source CandleSource, client *redis.Client, interval string, ttl time.Duration) *CandleCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CandleCache{
		source:   source,
		client:   client,
		interval: interval,
		ttl:      ttl,
		timeout:  500 * time.Millisecond,
	}
}

// Load serves the window from Redis, falling back to the source on a miss
func (c *CandleCache) Load(ctx context.Context, symbol string, start, end time.Time) ([]backtest.Candle, error) {
	key := c.buildKey(symbol, start, end)

	if candles, ok := c.get(ctx, key); ok {
		log.Debug().
			Str("symbol", symbol).
			Int("count", len(candles)).
			Msg("Cache hit for candles")
		return candles, nil
	}

	candles, err := c.source.Load(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}

	if len(candles) > 0 {
		c.set(ctx, key, candles)
	}
	return candles, nil
}

func (c *CandleCache) get(ctx context.Context, key string) ([]backtest.Candle, bool) {
	cacheCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cached, err := c.client.Get(cacheCtx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			metrics.RecordCacheResult(metrics.CacheMiss)
		} else {
			metrics.RecordCacheResult(metrics.CacheError)
			log.Debug().
				Err(err).
				Str("key", key).
				Msg("Redis get error - treating as cache miss")
		}
		return nil, false
	}

	var candles []backtest.Candle
	if err := json.Unmarshal(cached, &candles); err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("Failed to unmarshal cached candles")
		metrics.RecordCacheResult(metrics.CacheError)
		return nil, false
	}

	metrics.RecordCacheResult(metrics.CacheHit)
	return candles, true
}

func (c *CandleCache) set(ctx context.Context, key string, candles []backtest.Candle) {
	data, err := json.Marshal(candles)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to marshal candles for cache")
		return
	}

	cacheCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Set(cacheCtx, key, data, c.ttl).Err(); err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("Failed to cache candles")
		return
	}

	log.Debug().
		Str("key", key).
		Int("count", len(candles)).
		Dur("ttl", c.ttl).
		Msg("Cached candles")
}

// Invalidate removes every cached window of symbol
func (c *CandleCache) Invalidate(ctx context.Context, symbol string) (int, error) {
	cacheCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pattern := fmt.Sprintf("%s:%s:%s:*", cacheKeyPrefix, c.interval, symbol)
	iter := c.client.Scan(cacheCtx, 0, pattern, 0).Iterator()

	count := 0
	for iter.Next(cacheCtx) {
		if err := c.client.Del(cacheCtx, iter.Val()).Err(); err != nil {
			log.Warn().
				Err(err).
				Str("key", iter.Val()).
				Msg("Failed to delete cache key")
			continue
		}
		count++
	}

	if err := iter.Err(); err != nil {
		return count, fmt.Errorf("cache scan error: %w", err)
	}

	return count, nil
}

// Health checks if the Redis connection is healthy
func (c *CandleCache) Health(ctx context.Context) error {
	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.client.Ping(cacheCtx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (c *CandleCache) buildKey(symbol string, start, end time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", cacheKeyPrefix, c.interval, symbol,
		start.UTC().Format("20060102"), end.UTC().Format("20060102"))
}
