package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/scipunch/newsdesk/aggregator"
	"github.com/scipunch/newsdesk/cache"
	"github.com/scipunch/newsdesk/config"
	"github.com/scipunch/newsdesk/fetcher"
	"github.com/scipunch/newsdesk/scheduler"
)

// app wires the pipeline from config
type app struct {
	cfgPath   string
	holder    *config.Holder
	store     cache.Store
	agg       *aggregator.Aggregator
	scheduler *scheduler.Scheduler
}

// loadConfig reads the config at path and writes the default one when the default path is missing
func loadConfig(path string) (config.Config, string, error) {
	if path == "" {
		path = config.DefaultPath()
	}

	conf, err := config.Read(path)
	if errors.Is(err, os.ErrNotExist) && path == config.DefaultPath() {
		if err := config.Write(path, conf); err != nil {
			return conf, path, fmt.Errorf("failed to write default config: %w", err)
		}
		return conf, path, nil
	} else if err != nil {
		return conf, path, fmt.Errorf("failed to read config: %w", err)
	}
	return conf, path, nil
}

func loadCredentials() config.Credentials {
	credPath := config.DefaultCredentialsPath()
	creds, err := config.ReadCredentials(credPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read credentials, using the feed API without key", "path", credPath, "error", err)
	}
	if !creds.FeedAPI.IsValid() {
		slog.Debug("no feed API key configured", "path", credPath)
	}
	return creds
}

func openCache(ctx context.Context, cfg config.Config) (cache.Store, error) {
	store, err := cache.OpenStore(ctx, cfg.Storage, cfg.Aggregate.CacheTTL())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s cache: %w", cfg.Storage.Backend, err)
	}
	return store, nil
}

func newApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, path, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}

	store, err := openCache(ctx, cfg)
	if err != nil {
		return nil, err
	}

	primary, secondary, err := fetcher.NewTransports(cfg.Transport, loadCredentials())
	if err != nil {
		store.Close()
		return nil, err
	}

	sf := fetcher.NewSourceFetcher(cache.New(store, cfg.Aggregate.CacheTTL()), primary, secondary, cfg.Aggregate.FetchLimit)
	agg := aggregator.New(sf, sf)
	holder := config.NewHolder(cfg)

	sched, err := scheduler.New(cfg.Server.RefreshCron, agg, holder)
	if err != nil {
		store.Close()
		return nil, err
	}

	slog.Debug("pipeline ready",
		"config", path,
		"sources", len(cfg.EnabledSources()),
		"backend", cfg.Storage.Backend,
		"ttl", cfg.Aggregate.CacheTTL())

	return &app{
		cfgPath:   path,
		holder:    holder,
		store:     store,
		agg:       agg,
		scheduler: sched,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("failed to close cache", "error", err)
	}
}
