package fetcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/scipunch/newsdesk/cache"
	"github.com/scipunch/newsdesk/config"
	"github.com/scipunch/newsdesk/fetcher/types"
	"github.com/scipunch/newsdesk/parser"
)

// Result is the outcome of fetching a single source
type Result struct {
	Articles  []types.Article
	FromCache bool
	Err       error // Failure of the last transport tried, nil on success
}

// SourceFetcher resolves a source through the cache, then the primary transport,
// then the secondary transport
type SourceFetcher struct {
	cache     *cache.Cache
	primary   types.Transport
	secondary types.Transport
	limit     int
}

// NewSourceFetcher creates a fetcher asking each transport for at most limit items
func NewSourceFetcher(c *cache.Cache, primary, secondary types.Transport, limit int) *SourceFetcher {
	return &SourceFetcher{
		cache:     c,
		primary:   primary,
		secondary: secondary,
		limit:     limit,
	}
}

// Fetch returns the articles of src. A valid cache entry at now short-circuits any network call.
// Successful live fetches are written through to the cache.
func (f *SourceFetcher) Fetch(ctx context.Context, src config.Source, now time.Time) Result {
	if entry, found := f.cache.Get(ctx, src.URL, now); found {
		slog.Debug("cache hit", "source", src.Name, "saved_at", entry.SavedAt)
		return Result{Articles: entry.Articles, FromCache: true}
	}

	items, err := f.primary.Fetch(ctx, src.URL, f.limit)
	if err == nil {
		return f.store(ctx, src, f.primary, items, now)
	}
	slog.Warn("primary transport failed, falling back",
		"source", src.Name,
		"transport", f.primary.Name(),
		"error", err)

	items, err = f.secondary.Fetch(ctx, src.URL, f.limit)
	if err == nil {
		return f.store(ctx, src, f.secondary, items, now)
	}
	slog.Error("all transports failed",
		"source", src.Name,
		"transport", f.secondary.Name(),
		"error", err)

	return Result{Articles: []types.Article{}, Err: err}
}

func (f *SourceFetcher) store(ctx context.Context, src config.Source, t types.Transport, items []types.RawItem, now time.Time) Result {
	articles := parser.NormalizeAll(items, src)
	f.cache.Put(ctx, src.URL, articles, now)
	slog.Debug("fetched source", "source", src.Name, "transport", t.Name(), "articles", len(articles))
	return Result{Articles: articles}
}

// Invalidate drops the cached entry of sourceURL, forcing the next Fetch to go live
func (f *SourceFetcher) Invalidate(ctx context.Context, sourceURL string) error {
	return f.cache.Invalidate(ctx, sourceURL)
}
