package types

import (
	"context"
	"time"
)

// Article is a normalized content item from a single source
type Article struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"published_at"` // Zero when the feed did not provide a usable date
	Summary     string    `json:"summary"`      // Raw, possibly HTML
	SourceName  string    `json:"source_name"`
	Category    string    `json:"category"`
	SourceURL   string    `json:"source_url"`
}

// HasDate reports whether the article carries a publish timestamp
func (a Article) HasDate() bool {
	return !a.PublishedAt.IsZero()
}

// RawItem is a provider-specific item as returned by a Transport.
// The set of variants is closed: APIItem and FeedItem.
type RawItem interface {
	rawItem()
}

// APIItem is an item from the JSON feed API (primary transport)
type APIItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	GUID        string `json:"guid"`
	PubDate     string `json:"pubDate"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

func (APIItem) rawItem() {}

// FeedItem is an item parsed from an RSS/Atom document (secondary transport)
type FeedItem struct {
	Title       string
	Link        string
	GUID        string // Unique identifier (GUID for RSS, id for Atom)
	Description string
	Content     string
	Published   time.Time
}

func (FeedItem) rawItem() {}

// Transport fetches the most recent items of a feed.
// Any non-success outcome (bad status, parse failure, network error) is returned as an error.
type Transport interface {
	Fetch(ctx context.Context, url string, limit int) ([]RawItem, error)

	// Name returns the transport identifier used in logs (e.g., "api")
	Name() string
}
