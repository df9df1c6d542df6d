package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
	// KeyPrefix namespaces every key, e.g. "sensorflow:value:".
	KeyPrefix string
}

// RedisCache is a read-through cache layer backed by Redis. Values are stored as JSON.
type RedisCache[K comparable, V any] struct {
	redisClient *redis.Client
	logger      zerolog.Logger
	ttl         time.Duration
	keyPrefix   string
	fallback    Fetcher[K, V]
}

// NewRedisCache connects to Redis and pings it before returning.
func NewRedisCache[K comparable, V any](
	ctx context.Context,
	cfg *RedisConfig,
	logger zerolog.Logger,
	fallback Fetcher[K, V],
) (*RedisCache[K, V], error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")
	return NewRedisCacheWithClient[K, V](rdb, cfg, logger, fallback), nil
}

// NewRedisCacheWithClient wraps an existing client without checking connectivity.
// The cache owns the client and closes it in Close.
func NewRedisCacheWithClient[K comparable, V any](
	rdb *redis.Client,
	cfg *RedisConfig,
	logger zerolog.Logger,
	fallback Fetcher[K, V],
) *RedisCache[K, V] {
	return &RedisCache[K, V]{
		redisClient: rdb,
		logger:      logger.With().Str("component", "RedisCache").Logger(),
		ttl:         cfg.CacheTTL,
		keyPrefix:   cfg.KeyPrefix,
		fallback:    fallback,
	}
}

// Fetch checks Redis first. On a miss, or when Redis is unavailable, it reads through to
// the fallback and writes the result back in the background.
func (c *RedisCache[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	value, err := c.fetchFromRedis(ctx, key)
	if err == nil {
		return value, nil
	}

	var zero V
	if !errors.Is(err, redis.Nil) {
		if c.fallback == nil {
			return zero, err
		}
		c.logger.Warn().Err(err).Str("key", c.redisKey(key)).Msg("Redis unavailable, reading from fallback.")
	}

	if c.fallback == nil {
		return zero, fmt.Errorf("%w: key '%v' not in redis and no fallback is configured", ErrCacheMiss, key)
	}

	sourceValue, sourceErr := c.fallback.Fetch(ctx, key)
	if sourceErr != nil {
		return zero, sourceErr
	}

	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if writeErr := c.WriteToCache(writeCtx, key, sourceValue); writeErr != nil {
			c.logger.Error().Err(writeErr).Str("key", c.redisKey(key)).Msg("Failed to write to cache in background.")
		}
	}()

	return sourceValue, nil
}

func (c *RedisCache[K, V]) fetchFromRedis(ctx context.Context, key K) (V, error) {
	var zero V
	stringKey := c.redisKey(key)
	cachedData, err := c.redisClient.Get(ctx, stringKey).Result()
	if err != nil {
		return zero, err
	}

	var value V
	if err := json.Unmarshal([]byte(cachedData), &value); err != nil {
		c.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to unmarshal cached data.")
		return zero, fmt.Errorf("failed to unmarshal data: %w", err)
	}

	c.logger.Debug().Str("key", stringKey).Msg("Redis cache hit.")
	return value, nil
}

// WriteToCache sets a value with the configured TTL.
func (c *RedisCache[K, V]) WriteToCache(ctx context.Context, key K, value V) error {
	stringKey := c.redisKey(key)
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := c.redisClient.Set(ctx, stringKey, jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	c.logger.Debug().Str("key", stringKey).Msg("Successfully stored data in Redis cache.")
	return nil
}

// Invalidate deletes key from Redis.
func (c *RedisCache[K, V]) Invalidate(ctx context.Context, key K) error {
	if err := c.redisClient.Del(ctx, c.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

func (c *RedisCache[K, V]) redisKey(key K) string {
	return c.keyPrefix + fmt.Sprintf("%v", key)
}

// Close closes the Redis client connection and then the fallback chain.
func (c *RedisCache[K, V]) Close() error {
	var errs []error
	if c.redisClient != nil {
		c.logger.Info().Msg("Closing Redis client connection...")
		errs = append(errs, c.redisClient.Close())
	}
	if c.fallback != nil {
		errs = append(errs, c.fallback.Close())
	}
	return errors.Join(errs...)
}
