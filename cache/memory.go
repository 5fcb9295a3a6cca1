package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value     []byte
	updatedAt time.Time
}

// MemoryStore is a process-local store, lost on exit
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryItem)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	item, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), item.value...), true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.items[key] = memoryItem{value: append([]byte(nil), value...), updatedAt: time.Now()}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	m.items = make(map[string]memoryItem)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats Stats
	for _, item := range m.items {
		stats.Entries++
		if stats.OldestEntry.IsZero() || item.updatedAt.Before(stats.OldestEntry) {
			stats.OldestEntry = item.updatedAt
		}
	}
	return stats, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
