package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/scipunch/newsdesk/fetcher/types"
)

// Bump when the layout of cached articles changes; older entries become misses
const entryVersion = 1

// cachedEntry wraps an Entry for serialization
type cachedEntry struct {
	Version  int             `json:"version"`
	SavedAt  time.Time       `json:"saved_at"`
	Articles []types.Article `json:"articles"`
}

// serializeEntry converts an Entry to JSON bytes
func serializeEntry(e Entry) ([]byte, error) {
	articles := e.Articles
	if articles == nil {
		articles = []types.Article{}
	}
	data, err := json.Marshal(cachedEntry{
		Version:  entryVersion,
		SavedAt:  e.SavedAt,
		Articles: articles,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return data, nil
}

// deserializeEntry converts JSON bytes back to an Entry
func deserializeEntry(data []byte) (Entry, error) {
	var cached cachedEntry
	if err := json.Unmarshal(data, &cached); err != nil {
		return Entry{}, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}

	if cached.Version != entryVersion {
		return Entry{}, fmt.Errorf("cache entry version mismatch: cached=%d, expected=%d", cached.Version, entryVersion)
	}
	if cached.SavedAt.IsZero() {
		return Entry{}, fmt.Errorf("cache entry has no saved_at")
	}

	return Entry{SavedAt: cached.SavedAt, Articles: cached.Articles}, nil
}
