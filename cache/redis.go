package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps cache entries in redis, shared by several instances
type RedisStore struct {
	rdb        *redis.Client
	expiration time.Duration // 0 keeps keys until overwritten
}

// NewRedisStore connects to redis at addr. expiration lets redis drop keys
// that the TTL cache would report as expired anyway.
func NewRedisStore(ctx context.Context, addr string, expiration time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// Reads and writes degrade to misses; the pipeline keeps working
		slog.Warn("redis ping failed", "addr", addr, "error", err)
	}

	return &RedisStore{rdb: rdb, expiration: expiration}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	bs, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return bs, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := r.rdb.Set(ctx, key, value, r.expiration).Err(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

func (r *RedisStore) Remove(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to remove cache entry: %w", err)
	}
	return nil
}

// Clear removes every feed cache key, leaving other keys of the database alone
func (r *RedisStore) Clear(ctx context.Context) error {
	iter := r.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to clear feed cache: %w", err)
		}
	}
	return iter.Err()
}

// Stats counts feed cache keys. Redis keeps no write time, so OldestEntry stays zero.
func (r *RedisStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	iter := r.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		stats.Entries++
	}
	return stats, iter.Err()
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
