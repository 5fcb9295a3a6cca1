package parser

import (
	"strings"
	"time"

	"github.com/scipunch/newsdesk/config"
	"github.com/scipunch/newsdesk/fetcher/types"
)

const (
	// UntitledTitle replaces a missing item title
	UntitledTitle = "Untitled"
	// Uncategorized labels articles of sources without a category
	Uncategorized = "Uncategorized"
)

// Layouts tried, in order, for the free-form date strings of the feed API
var apiDateLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
}

// Normalize converts a provider-specific item into an Article.
// It never fails: missing or malformed fields resolve to documented defaults.
func Normalize(raw types.RawItem, src config.Source) types.Article {
	a := types.Article{
		SourceName: src.Name,
		Category:   CategoryOf(src),
		SourceURL:  src.URL,
	}

	switch item := raw.(type) {
	case types.APIItem:
		a.Title = item.Title
		a.Link = firstNonEmpty(item.Link, linkFromGUID(item.GUID))
		a.PublishedAt = parseAPIDate(item.PubDate)
		a.Summary = firstNonEmpty(item.Description, item.Content)
	case types.FeedItem:
		a.Title = item.Title
		a.Link = firstNonEmpty(item.Link, linkFromGUID(item.GUID))
		a.PublishedAt = item.Published
		a.Summary = firstNonEmpty(item.Description, item.Content)
	}

	a.Title = strings.TrimSpace(a.Title)
	if a.Title == "" {
		a.Title = UntitledTitle
	}
	a.Link = strings.TrimSpace(a.Link)
	return a
}

// NormalizeAll normalizes a batch of items from the same source, preserving order
func NormalizeAll(items []types.RawItem, src config.Source) []types.Article {
	articles := make([]types.Article, 0, len(items))
	for _, item := range items {
		articles = append(articles, Normalize(item, src))
	}
	return articles
}

// CategoryOf returns the category a source's articles are filed under
func CategoryOf(src config.Source) string {
	if c := strings.TrimSpace(src.Category); c != "" {
		return c
	}
	return Uncategorized
}

func parseAPIDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range apiDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// linkFromGUID uses the GUID as link only when it is itself a URL
func linkFromGUID(guid string) string {
	if strings.HasPrefix(guid, "http://") || strings.HasPrefix(guid, "https://") {
		return guid
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
