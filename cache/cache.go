package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/scipunch/newsdesk/fetcher/types"
)

// Entry is the cached result of one successful live fetch
type Entry struct {
	SavedAt  time.Time
	Articles []types.Article
}

// Cache keeps normalized articles per source URL for a fixed time-to-live
type Cache struct {
	store Store
	ttl   time.Duration
}

// New wraps a store with TTL semantics
func New(store Store, ttl time.Duration) *Cache {
	return &Cache{store: store, ttl: ttl}
}

// TTL returns the configured time-to-live
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the entry for sourceURL if it exists and is not older than the TTL at now.
// Expired, unreadable and undecodable entries are all reported as misses.
func (c *Cache) Get(ctx context.Context, sourceURL string, now time.Time) (Entry, bool) {
	data, found, err := c.store.Get(ctx, Key(sourceURL))
	if err != nil {
		slog.Warn("feed cache read error", "error", err, "url", truncate(sourceURL, 50))
		return Entry{}, false // Treat errors as cache miss
	}
	if !found {
		return Entry{}, false
	}

	entry, err := deserializeEntry(data)
	if err != nil {
		slog.Warn("failed to deserialize cached feed", "error", err, "url", truncate(sourceURL, 50))
		return Entry{}, false
	}

	if now.Sub(entry.SavedAt) > c.ttl {
		return Entry{}, false
	}
	return entry, true
}

// Put stores articles for sourceURL as saved at now, replacing any previous entry.
// Failures are logged and swallowed: the caller keeps using the fresh data.
func (c *Cache) Put(ctx context.Context, sourceURL string, articles []types.Article, now time.Time) {
	data, err := serializeEntry(Entry{SavedAt: now, Articles: articles})
	if err != nil {
		slog.Warn("failed to serialize feed for cache", "error", err, "url", truncate(sourceURL, 50))
		return
	}
	if err := c.store.Set(ctx, Key(sourceURL), data); err != nil {
		slog.Warn("feed cache write error", "error", err, "url", truncate(sourceURL, 50))
	}
}

// Invalidate removes the entry for sourceURL
func (c *Cache) Invalidate(ctx context.Context, sourceURL string) error {
	return c.store.Remove(ctx, Key(sourceURL))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
