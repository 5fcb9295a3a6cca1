package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mmcdole/gofeed"

	"github.com/scipunch/newsdesk/fetcher/types"
)

// RetryConfig configures retry behavior of a transport
type RetryConfig struct {
	MaxRetries     int           // Attempts after the first one
	InitialBackoff time.Duration // Wait before the first retry
	MaxBackoff     time.Duration // Upper bound of a single wait
	Timeout        time.Duration // Bound of all attempts together (0 = none)
}

// DefaultRetryConfig returns the retry settings used for configured retries
func DefaultRetryConfig(retries int) RetryConfig {
	return RetryConfig{
		MaxRetries:     retries,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

type retryTransport struct {
	next   types.Transport
	config RetryConfig
}

// WithRetry wraps a transport so that transient failures are retried with exponential backoff.
// With MaxRetries <= 0 the transport is returned as is.
func WithRetry(t types.Transport, config RetryConfig) types.Transport {
	if config.MaxRetries <= 0 {
		return t
	}
	return &retryTransport{next: t, config: config}
}

func (r *retryTransport) Name() string {
	return r.next.Name()
}

func (r *retryTransport) Fetch(ctx context.Context, feedURL string, limit int) ([]types.RawItem, error) {
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.config.InitialBackoff
	b.MaxInterval = r.config.MaxBackoff
	b.MaxElapsedTime = 0 // Bounded by MaxRetries and the context

	var (
		items     []types.RawItem
		attempts  int
		permanent bool
	)
	operation := func() error {
		attempts++
		var err error
		items, err = r.next.Fetch(ctx, feedURL, limit)
		if err != nil && !isRetryable(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		slog.Debug("transport failed, retrying",
			"transport", r.next.Name(),
			"url", feedURL,
			"attempt", attempts,
			"wait", wait,
			"error", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.config.MaxRetries)), ctx)
	err := backoff.RetryNotify(operation, policy, notify)
	switch {
	case err == nil:
		return items, nil
	case permanent:
		return nil, fmt.Errorf("non-retryable error: %w", err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, fmt.Errorf("timed out after %d attempts: %w", attempts, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return nil, fmt.Errorf("cancelled after %d attempts: %w", attempts, err)
	default:
		return nil, fmt.Errorf("max retries (%d) exceeded: %w", r.config.MaxRetries, err)
	}
}

// isRetryable reports whether err is a transient failure: network errors, 429 and 5xx responses
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retryableStatus(statusErr.Code)
	}
	var feedErr gofeed.HTTPError
	if errors.As(err, &feedErr) {
		return retryableStatus(feedErr.StatusCode)
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
