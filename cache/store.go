package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/scipunch/newsdesk/config"
)

const keyPrefix = "newsdesk:feed:"

// Store is the persistent key-value storage behind the feed cache
type Store interface {
	// Get returns: (value, found, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Maintainer is implemented by stores that support bulk maintenance
type Maintainer interface {
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
}

// Stats contains cache statistics
type Stats struct {
	Entries     int
	OldestEntry time.Time // Zero when unknown or empty
}

// Key derives the storage key of a source URL
func Key(sourceURL string) string {
	hash := sha256.Sum256([]byte(sourceURL))
	return keyPrefix + hex.EncodeToString(hash[:])
}

// OpenStore creates the store selected by the storage config.
// ttl is a hint for backends that can expire keys on their own.
func OpenStore(ctx context.Context, cfg config.Storage, ttl time.Duration) (Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite, "":
		path := cfg.Path
		if path == "" {
			path = config.DefaultCachePath()
		}
		return NewSQLiteStore(path)
	case config.BackendRedis:
		return NewRedisStore(ctx, cfg.RedisAddr, 2*ttl)
	case config.BackendPostgres:
		return NewPostgresStore(ctx, cfg.PostgresDSN)
	case config.BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
