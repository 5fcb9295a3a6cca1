// Package aggregator runs load cycles: it fetches every source concurrently and
// reduces the results into one ranked, capped and deduplicated article list.
package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scipunch/newsdesk/config"
	"github.com/scipunch/newsdesk/dedup"
	"github.com/scipunch/newsdesk/fetcher"
	"github.com/scipunch/newsdesk/fetcher/types"
	"github.com/scipunch/newsdesk/filter"
	"github.com/scipunch/newsdesk/parser"
)

// ErrNoSources is returned by LoadAll when there is nothing to load
var ErrNoSources = errors.New("no sources configured")

// Fetcher resolves a single source
type Fetcher interface {
	Fetch(ctx context.Context, src config.Source, now time.Time) fetcher.Result
}

// Invalidator drops cached data of a source before a forced refresh
type Invalidator interface {
	Invalidate(ctx context.Context, sourceURL string) error
}

// Settings are the ranking tunables of a cycle
type Settings struct {
	TotalArticles   int
	MaxPerSource    int
	SourceViewLimit int
	Concurrency     int     // Max sources fetched at once, 0 = unbounded
	DedupThreshold  float64 // 0 selects the default
}

// DefaultSettings returns the tunables used when none are configured
func DefaultSettings() Settings {
	return Settings{
		TotalArticles:   30,
		MaxPerSource:    5,
		SourceViewLimit: 15,
		Concurrency:     8,
		DedupThreshold:  dedup.DefaultThreshold,
	}
}

// SettingsFromConfig maps the [aggregate] config section to Settings
func SettingsFromConfig(cfg config.Aggregate) Settings {
	return Settings{
		TotalArticles:   cfg.TotalArticles,
		MaxPerSource:    cfg.MaxPerSource,
		SourceViewLimit: cfg.SourceViewLimit,
		Concurrency:     cfg.Concurrency,
		DedupThreshold:  cfg.DedupThreshold,
	}.withDefaults()
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.TotalArticles <= 0 {
		s.TotalArticles = d.TotalArticles
	}
	if s.MaxPerSource <= 0 {
		s.MaxPerSource = d.MaxPerSource
	}
	if s.SourceViewLimit <= 0 {
		s.SourceViewLimit = d.SourceViewLimit
	}
	if s.Concurrency < 0 {
		s.Concurrency = 0
	}
	if s.DedupThreshold <= 0 || s.DedupThreshold > 1 {
		s.DedupThreshold = d.DedupThreshold
	}
	return s
}

// FeedStatus is the outcome of one source in one cycle
type FeedStatus struct {
	Name      string `json:"name"`
	Category  string `json:"category"`
	OK        bool   `json:"ok"`
	Count     int    `json:"count"`
	Error     string `json:"error,omitempty"`
	FromCache bool   `json:"from_cache"`
}

// State is the result of a completed cycle. It is never modified after being committed.
type State struct {
	Articles []types.Article            `json:"articles"`  // Ranked, capped and deduplicated
	BySource map[string][]types.Article `json:"by_source"` // Per source, recency sorted, not deduplicated
	Statuses []FeedStatus               `json:"statuses"`  // One per source, in source order
	LoadedAt time.Time                  `json:"loaded_at"` // Zero before the first cycle
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithClock replaces the wall clock used for cache decisions
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// Aggregator owns the aggregate state and runs at most one cycle at a time
type Aggregator struct {
	fetcher     Fetcher
	invalidator Invalidator
	now         func() time.Time

	mu       sync.RWMutex
	settings Settings
	filters  *filter.FilterPipeline

	running atomic.Bool
	state   atomic.Pointer[State]
}

// New creates an aggregator with default settings and an empty state
func New(f Fetcher, inv Invalidator, opts ...Option) *Aggregator {
	a := &Aggregator{
		fetcher:     f,
		invalidator: inv,
		now:         time.Now,
		settings:    DefaultSettings(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.state.Store(&State{BySource: map[string][]types.Article{}})
	return a
}

// Configure sets the tunables and item filters used by the next cycles
func (a *Aggregator) Configure(settings Settings, filters *filter.FilterPipeline) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings = settings.withDefaults()
	a.filters = filters
}

func (a *Aggregator) config() (Settings, *filter.FilterPipeline) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings, a.filters
}

// State returns the last committed state
func (a *Aggregator) State() *State {
	return a.state.Load()
}

// Running reports whether a cycle is in flight
func (a *Aggregator) Running() bool {
	return a.running.Load()
}

// LoadAll runs one cycle over sources and commits its state.
// While another cycle is in flight it returns the current state and started=false without doing anything.
// With force, every source's cache entry is dropped first.
func (a *Aggregator) LoadAll(ctx context.Context, sources []config.Source, force bool) (*State, bool, error) {
	if len(sources) == 0 {
		return a.State(), false, ErrNoSources
	}
	if !a.running.CompareAndSwap(false, true) {
		slog.Debug("load cycle already running, skipping")
		return a.State(), false, nil
	}
	defer a.running.Store(false)

	settings, filters := a.config()
	start := a.now()

	if force {
		for _, src := range sources {
			if err := a.invalidator.Invalidate(ctx, src.URL); err != nil {
				slog.Warn("failed to invalidate cache entry", "source", src.Name, "error", err)
			}
		}
	}

	results := make([]fetcher.Result, len(sources))
	var g errgroup.Group
	if settings.Concurrency > 0 {
		g.SetLimit(settings.Concurrency)
	}
	for i, src := range sources {
		g.Go(func() error {
			results[i] = a.fetcher.Fetch(ctx, src, start)
			return nil // Failures are carried in the result
		})
	}
	g.Wait()

	state := reduce(sources, results, settings, filters)
	state.LoadedAt = start
	a.state.Store(state)

	failed := 0
	for _, st := range state.Statuses {
		if !st.OK {
			failed++
		}
	}
	slog.Info("load cycle done",
		"sources", len(sources),
		"failed", failed,
		"articles", len(state.Articles),
		"forced", force,
		"took", time.Since(start).Round(time.Millisecond))

	return state, true, nil
}

// reduce builds the state of a cycle from per-source results given in source order
func reduce(sources []config.Source, results []fetcher.Result, settings Settings, filters *filter.FilterPipeline) *State {
	state := &State{
		BySource: make(map[string][]types.Article, len(sources)),
		Statuses: make([]FeedStatus, 0, len(sources)),
	}

	var all []types.Article
	for i, src := range sources {
		res := results[i]
		articles := filters.Apply(res.Articles, src.Filters)

		status := FeedStatus{
			Name:      src.Name,
			Category:  parser.CategoryOf(src),
			OK:        res.Err == nil,
			Count:     len(articles),
			FromCache: res.FromCache,
		}
		if res.Err != nil {
			status.Error = res.Err.Error()
		}
		state.Statuses = append(state.Statuses, status)

		state.BySource[src.Name] = truncate(sortByRecency(articles), settings.SourceViewLimit)
		all = append(all, articles...)
	}

	ranked := capPerSource(sortByRecency(all), settings.MaxPerSource)
	ranked = dedup.Dedupe(ranked, settings.DedupThreshold)
	state.Articles = truncate(ranked, settings.TotalArticles)
	return state
}

// sortByRecency returns a copy sorted newest first. Undated articles go last, ties keep input order.
func sortByRecency(articles []types.Article) []types.Article {
	out := make([]types.Article, len(articles))
	copy(out, articles)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	return out
}

// capPerSource keeps at most limit articles of each source, scanning in order
func capPerSource(articles []types.Article, limit int) []types.Article {
	counts := make(map[string]int)
	out := make([]types.Article, 0, len(articles))
	for _, a := range articles {
		if counts[a.SourceName] >= limit {
			continue
		}
		counts[a.SourceName]++
		out = append(out, a)
	}
	return out
}

func truncate(articles []types.Article, n int) []types.Article {
	if len(articles) > n {
		return articles[:n]
	}
	return articles
}
