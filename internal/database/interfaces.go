package database

import (
	"context"

	"github.com/mel-koku/koku-travel-sub004/internal/models"
)

// DataStore is the interface for data persistence
type DataStore interface {
	Close() error
	HealthCheck(ctx context.Context) error
	Locations() LocationRepository
	CoordinateTables() CoordinateTableRepository
	RouteCache() RouteCacheRepository
}

// LocationRepository handles location record persistence
type LocationRepository interface {
	List(ctx context.Context, city string) ([]models.Location, error)
	// GetByID returns ErrNotFound when no record exists
	GetByID(ctx context.Context, id string) (*models.Location, error)
	Upsert(ctx context.Context, loc *models.Location) (*models.Location, error)
	Delete(ctx context.Context, id string) error
}

// CoordinateTable names one of the static coordinate fallback tables
type CoordinateTable string

const (
	CoordinateTableByID   CoordinateTable = "id"
	CoordinateTableByName CoordinateTable = "name"
)

// CoordinateTableRepository handles the coordinate fallback tables
type CoordinateTableRepository interface {
	List(ctx context.Context, table CoordinateTable) (map[string]models.Coordinates, error)
	Set(ctx context.Context, table CoordinateTable, key string, c models.Coordinates) error
	Delete(ctx context.Context, table CoordinateTable, key string) error
}

// RouteCacheRepository handles route cache persistence. Get returns nil, nil on a miss.
type RouteCacheRepository interface {
	Get(ctx context.Context, origin, dest models.Coordinates, mode models.TravelMode) (*models.RouteCacheEntry, error)
	Set(ctx context.Context, entry *models.RouteCacheEntry) error
	Clear(ctx context.Context) error
}
