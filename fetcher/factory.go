package fetcher

import (
	"fmt"

	"github.com/scipunch/newsdesk/config"
	"github.com/scipunch/newsdesk/fetcher/types"
)

// NewTransports creates the primary and secondary transports from config.
// Both are wrapped with retry logic when transport.retries > 0.
func NewTransports(cfg config.Transport, creds config.Credentials) (primary, secondary types.Transport, err error) {
	if cfg.Primary.Endpoint == "" {
		return nil, nil, fmt.Errorf("transport.primary.endpoint is required")
	}

	retryConfig := DefaultRetryConfig(cfg.Retries)
	primary = WithRetry(NewAPITransport(cfg.Primary.Endpoint, creds.FeedAPI.APIKey, cfg.Timeout()), retryConfig)
	secondary = WithRetry(NewRSSTransport(cfg.Secondary.Proxy, cfg.Timeout()), retryConfig)
	return primary, secondary, nil
}
