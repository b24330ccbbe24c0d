package testutil

import (
	"context"
	"sync"

	"github.com/mel-koku/koku-travel-sub004/internal/database"
	"github.com/mel-koku/koku-travel-sub004/internal/models"
)

// MockRouteCache is an in-memory route cache for testing
type MockRouteCache struct {
	mu      sync.Mutex
	entries map[string]models.RouteCacheEntry
	Sets    int
}

func NewMockRouteCache() *MockRouteCache {
	return &MockRouteCache{
		entries: make(map[string]models.RouteCacheEntry),
	}
}

func (m *MockRouteCache) Get(ctx context.Context, origin, dest models.Coordinates, mode models.TravelMode) (*models.RouteCacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[database.RouteCacheKey(origin, dest, mode)]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (m *MockRouteCache) Set(ctx context.Context, entry *models.RouteCacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[database.RouteCacheKey(entry.Origin, entry.Destination, entry.Mode)] = *entry
	m.Sets++
	return nil
}

func (m *MockRouteCache) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]models.RouteCacheEntry)
	return nil
}

// Count returns the number of entries in the cache
func (m *MockRouteCache) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
