package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/scipunch/newsdesk/aggregator"
	"github.com/scipunch/newsdesk/config"
	"github.com/scipunch/newsdesk/filter"
)

// Provider returns the config a cycle runs with
type Provider interface {
	Load() config.Config
}

// Scheduler runs load cycles on a cron schedule and on demand
type Scheduler struct {
	cron     *cron.Cron
	agg      *aggregator.Aggregator
	provider Provider
}

// New creates a scheduler running a cycle on every tick of spec (standard 5-field cron)
func New(spec string, agg *aggregator.Aggregator, provider Provider) (*Scheduler, error) {
	c := cron.New()

	s := &Scheduler{
		cron:     c,
		agg:      agg,
		provider: provider,
	}

	if _, err := c.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}

	return s, nil
}

// Start starts the cron loop and runs a first cycle in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	go s.tick()
}

// Stop stops scheduling and waits for a running cron job to finish or ctx to end
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce runs one cycle with the latest config.
// started is false when another cycle was already in flight.
func (s *Scheduler) RunOnce(ctx context.Context, force bool) (*aggregator.State, bool, error) {
	cfg := s.provider.Load()

	pipeline, err := filter.NewFilterPipeline(cfg.Filters)
	if err != nil {
		return s.agg.State(), false, fmt.Errorf("failed to initialize filters: %w", err)
	}
	s.agg.Configure(aggregator.SettingsFromConfig(cfg.Aggregate), pipeline)

	return s.agg.LoadAll(ctx, cfg.EnabledSources(), force)
}

func (s *Scheduler) tick() {
	start := time.Now()
	slog.Debug("scheduled load cycle")

	_, started, err := s.RunOnce(context.Background(), false)
	switch {
	case errors.Is(err, aggregator.ErrNoSources):
		slog.Warn("scheduled load skipped", "reason", err)
	case err != nil:
		slog.Error("scheduled load failed", "error", err)
	case !started:
		slog.Info("scheduled load skipped, a cycle is already running")
	default:
		slog.Debug("scheduled load finished", "took", time.Since(start).Round(time.Millisecond))
	}
}
