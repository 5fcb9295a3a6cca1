package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
)

// Storage backends for the feed cache
const (
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

const (
	baseCfgPath   = "newsdesk/config.toml"
	baseCachePath = "newsdesk/cache.db"
)

type Config struct {
	Aggregate Aggregate         `toml:"aggregate"`
	Storage   Storage           `toml:"storage"`
	Transport Transport         `toml:"transport"`
	Server    Server            `toml:"server"`
	Views     Views             `toml:"views"`
	Sources   []Source          `toml:"sources"`
	Filters   map[string]Filter `toml:"filters"` // Named filters that can be referenced by sources
}

// Source is one configured content feed. Its URL is the cache identity.
type Source struct {
	Name     string   `toml:"name"`
	URL      string   `toml:"url"`
	Category string   `toml:"category,omitempty"`
	Enabled  *bool    `toml:"enabled,omitempty"` // Defaults to true if not set
	Filters  []string `toml:"filters,omitempty"` // Names of filters to apply (pipeline)
}

// IsEnabled returns true if the source is enabled (defaults to true if not explicitly set)
func (s Source) IsEnabled() bool {
	if s.Enabled == nil {
		return true
	}
	return *s.Enabled
}

// Aggregate holds the ranking tunables of a load cycle
type Aggregate struct {
	TotalArticles   int     `toml:"total_articles"`
	MaxPerSource    int     `toml:"max_per_source"`
	CacheTTLMinutes int     `toml:"cache_ttl_minutes"`
	DedupThreshold  float64 `toml:"dedup_threshold"`
	SourceViewLimit int     `toml:"source_view_limit"` // Cap of the per-source view, independent of the others
	FetchLimit      int     `toml:"fetch_limit"`       // How many items to ask each transport for
	Concurrency     int     `toml:"concurrency"`       // Max sources fetched at once (0 = unbounded)
}

// CacheTTL converts CacheTTLMinutes into a duration
func (a Aggregate) CacheTTL() time.Duration {
	return time.Duration(a.CacheTTLMinutes) * time.Minute
}

type Storage struct {
	Backend     string `toml:"backend"` // sqlite, redis, postgres or memory
	Path        string `toml:"path"`    // sqlite database file
	RedisAddr   string `toml:"redis_addr"`
	PostgresDSN string `toml:"postgres_dsn"`
}

type Transport struct {
	TimeoutSeconds int          `toml:"timeout_seconds"`
	Retries        int          `toml:"retries"` // Extra attempts per transport before falling back
	Primary        APIEndpoint  `toml:"primary"`
	Secondary      FeedEndpoint `toml:"secondary"`
}

// Timeout bounds every transport call
func (t Transport) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// APIEndpoint configures the JSON feed API used as primary transport
type APIEndpoint struct {
	Endpoint string `toml:"endpoint"`
}

// FeedEndpoint configures the direct RSS/Atom transport used as fallback
type FeedEndpoint struct {
	Proxy string `toml:"proxy,omitempty"` // Optional prefix, the escaped feed URL is appended to it
}

type Server struct {
	Addr        string `toml:"addr"`
	RefreshCron string `toml:"refresh_cron"`
}

type Views struct {
	Merged []MergedCategory `toml:"merged"`
}

// MergedCategory presents several underlying categories as a single category filter
type MergedCategory struct {
	Name       string   `toml:"name"`
	Categories []string `toml:"categories"`
}

// Filter defines rules for filtering feed items
type Filter struct {
	MinLength         int      `toml:"min_length"`         // Minimum character count (0 = no limit)
	MinWords          int      `toml:"min_words"`          // Minimum word count (0 = no limit)
	ExcludePatterns   []string `toml:"exclude_patterns"`   // Regex patterns to exclude
	RequireParagraphs bool     `toml:"require_paragraphs"` // Must have multiple lines/paragraphs
}

// EnabledSources returns the sources taking part in a load cycle, in configured order
func (c Config) EnabledSources() []Source {
	var out []Source
	for _, s := range c.Sources {
		if s.IsEnabled() {
			out = append(out, s)
		}
	}
	return out
}

func Read(path string) (Config, error) {
	conf := Default()
	dat, err := os.ReadFile(path)
	if err != nil {
		return conf, err
	}
	_, err = toml.Decode(string(dat), &conf)
	if err != nil {
		return conf, fmt.Errorf("failed to decode config at %s with %w", path, err)
	}
	if err := conf.Validate(); err != nil {
		return conf, fmt.Errorf("invalid config at %s: %w", path, err)
	}
	return conf, nil
}

func Write(cfgPath string, cfg Config) error {
	blob, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config with %w", err)
	}
	basePath := filepath.Dir(cfgPath)
	err = os.MkdirAll(basePath, os.ModePerm)
	if err != nil {
		return fmt.Errorf("failed to create base config directory at '%s' with %w", basePath, err)
	}
	err = os.WriteFile(cfgPath, blob, 0644)
	if err != nil {
		return fmt.Errorf("failed to write into config file at '%s' with %w", cfgPath, err)
	}
	slog.Info("config written", "at", cfgPath)
	return nil
}

func Default() Config {
	return Config{
		Aggregate: Aggregate{
			TotalArticles:   30,
			MaxPerSource:    5,
			CacheTTLMinutes: 15,
			DedupThreshold:  0.72,
			SourceViewLimit: 15,
			FetchLimit:      20,
			Concurrency:     8,
		},
		Storage: Storage{
			Backend: BackendSQLite,
			Path:    DefaultCachePath(),
		},
		Transport: Transport{
			TimeoutSeconds: 15,
			Primary:        APIEndpoint{Endpoint: "https://api.rss2json.com/v1/api.json"},
		},
		Server: Server{
			Addr:        ":8080",
			RefreshCron: "*/15 * * * *",
		},
		Sources: []Source{},
	}
}

// Validate reports every problem found in the config at once
func (c Config) Validate() error {
	var errs []error

	a := c.Aggregate
	if a.TotalArticles <= 0 {
		errs = append(errs, fmt.Errorf("aggregate.total_articles must be > 0, got %d", a.TotalArticles))
	}
	if a.MaxPerSource <= 0 {
		errs = append(errs, fmt.Errorf("aggregate.max_per_source must be > 0, got %d", a.MaxPerSource))
	}
	if a.CacheTTLMinutes < 0 {
		errs = append(errs, fmt.Errorf("aggregate.cache_ttl_minutes must be >= 0, got %d", a.CacheTTLMinutes))
	}
	if a.DedupThreshold <= 0 || a.DedupThreshold > 1 {
		errs = append(errs, fmt.Errorf("aggregate.dedup_threshold must be in (0,1], got %v", a.DedupThreshold))
	}
	if a.SourceViewLimit <= 0 {
		errs = append(errs, fmt.Errorf("aggregate.source_view_limit must be > 0, got %d", a.SourceViewLimit))
	}
	if a.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("aggregate.concurrency must be >= 0, got %d", a.Concurrency))
	}

	switch c.Storage.Backend {
	case BackendSQLite, BackendRedis, BackendPostgres, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	seen := make(map[string]bool)
	for i, s := range c.Sources {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("source %d: name is required", i))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("source %q: duplicate name", s.Name))
		}
		seen[s.Name] = true
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("source %q: url is required", s.Name))
			continue
		}
		u, err := url.Parse(s.URL)
		if err != nil {
			errs = append(errs, fmt.Errorf("source %q: invalid url: %w", s.Name, err))
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, fmt.Errorf("source %q: url scheme must be http or https, got %q", s.Name, u.Scheme))
		}
		for _, f := range s.Filters {
			if _, ok := c.Filters[f]; !ok {
				errs = append(errs, fmt.Errorf("source %q: unknown filter %q", s.Name, f))
			}
		}
	}

	for _, m := range c.Views.Merged {
		if m.Name == "" || len(m.Categories) < 2 {
			errs = append(errs, fmt.Errorf("merged view %q must have a name and at least two categories", m.Name))
		}
	}

	return errors.Join(errs...)
}

func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, baseCfgPath)
}

// DefaultCachePath returns the default sqlite cache database path
func DefaultCachePath() string {
	return filepath.Join(xdg.CacheHome, baseCachePath)
}
