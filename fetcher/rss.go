package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/scipunch/newsdesk/fetcher/types"
)

// RSSTransport fetches RSS/Atom documents directly and parses them with gofeed
type RSSTransport struct {
	parser *gofeed.Parser
	proxy  string
}

// NewRSSTransport creates the secondary transport.
// A non-empty proxy is used as prefix, the escaped feed URL is appended to it.
func NewRSSTransport(proxy string, timeout time.Duration) *RSSTransport {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	return &RSSTransport{
		parser: parser,
		proxy:  proxy,
	}
}

func (f *RSSTransport) Name() string {
	return "rss"
}

// Fetch retrieves and parses the feed, returning at most limit items, most recent first
func (f *RSSTransport) Fetch(ctx context.Context, feedURL string, limit int) ([]types.RawItem, error) {
	target := feedURL
	if f.proxy != "" {
		target = f.proxy + url.QueryEscape(feedURL)
	}

	gofeedFeed, err := f.parser.ParseURLWithContext(target, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSS feed: %w", err)
	}

	feedItems := make([]types.FeedItem, 0, len(gofeedFeed.Items))
	for _, item := range gofeedFeed.Items {
		if item == nil {
			continue
		}
		feedItem := types.FeedItem{
			Title:       item.Title,
			Link:        item.Link,
			GUID:        item.GUID,
			Description: item.Description,
			Content:     item.Content,
		}

		// Parse published date if available
		if item.PublishedParsed != nil {
			feedItem.Published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			feedItem.Published = *item.UpdatedParsed
		}

		feedItems = append(feedItems, feedItem)
	}

	// Undated items sort last
	sort.SliceStable(feedItems, func(i, j int) bool {
		return feedItems[i].Published.After(feedItems[j].Published)
	})
	if limit > 0 && len(feedItems) > limit {
		feedItems = feedItems[:limit]
	}

	items := make([]types.RawItem, 0, len(feedItems))
	for _, item := range feedItems {
		items = append(items, item)
	}
	return items, nil
}
