package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/scipunch/newsdesk/fetcher/types"
)

const apiStatusOK = "ok"

// StatusError is returned when a transport gets a non-2xx HTTP response
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// APITransport fetches feeds through a JSON feed conversion API (rss2json compatible)
type APITransport struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

// NewAPITransport creates the primary transport. An empty apiKey is omitted from requests.
func NewAPITransport(endpoint, apiKey string, timeout time.Duration) *APITransport {
	return &APITransport{
		client:   &http.Client{Timeout: timeout},
		endpoint: endpoint,
		apiKey:   apiKey,
	}
}

func (t *APITransport) Name() string {
	return "api"
}

type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Items   []types.APIItem `json:"items"`
}

// Fetch asks the API for the latest limit items of the feed at feedURL
func (t *APITransport) Fetch(ctx context.Context, feedURL string, limit int) ([]types.RawItem, error) {
	reqURL, err := t.requestURL(feedURL, limit)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call feed API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Code: resp.StatusCode, URL: t.endpoint}
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode feed API response: %w", err)
	}
	if body.Status != apiStatusOK {
		return nil, fmt.Errorf("feed API returned status %q: %s", body.Status, body.Message)
	}

	items := make([]types.RawItem, 0, len(body.Items))
	for _, item := range body.Items {
		if limit > 0 && len(items) >= limit {
			break
		}
		items = append(items, item)
	}
	return items, nil
}

func (t *APITransport) requestURL(feedURL string, limit int) (string, error) {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid feed API endpoint %q: %w", t.endpoint, err)
	}
	q := u.Query()
	q.Set("rss_url", feedURL)
	if limit > 0 {
		q.Set("count", strconv.Itoa(limit))
	}
	if t.apiKey != "" {
		q.Set("api_key", t.apiKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
