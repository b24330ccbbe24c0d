package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mel-koku/koku-travel-sub004/internal/models"
)

type routeCacheRepository struct {
	store *Store
}

func (r *routeCacheRepository) Get(ctx context.Context, origin, dest models.Coordinates, mode models.TravelMode) (*models.RouteCacheEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	query := `SELECT origin_lat, origin_lng, dest_lat, dest_lng, duration_minutes, distance_meters, path, instructions
	          FROM route_cache
	          WHERE mode = ? AND origin_lat = ? AND origin_lng = ? AND dest_lat = ? AND dest_lng = ?`

	var entry models.RouteCacheEntry
	var path, instructions string
	err := r.store.db.QueryRowContext(ctx, query, string(mode),
		models.RoundCoordinate(origin.Lat), models.RoundCoordinate(origin.Lng),
		models.RoundCoordinate(dest.Lat), models.RoundCoordinate(dest.Lng),
	).Scan(
		&entry.Origin.Lat, &entry.Origin.Lng,
		&entry.Destination.Lat, &entry.Destination.Lng,
		&entry.DurationMinutes, &entry.DistanceMeters,
		&path, &instructions,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get route cache entry: %w", err)
	}

	entry.Mode = mode
	if err := json.Unmarshal([]byte(path), &entry.Path); err != nil {
		return nil, fmt.Errorf("failed to decode cached path: %w", err)
	}
	if err := json.Unmarshal([]byte(instructions), &entry.Instructions); err != nil {
		return nil, fmt.Errorf("failed to decode cached instructions: %w", err)
	}

	return &entry, nil
}

func (r *routeCacheRepository) Set(ctx context.Context, entry *models.RouteCacheEntry) error {
	path, err := json.Marshal(entry.Path)
	if err != nil {
		return err
	}
	instructions, err := json.Marshal(entry.Instructions)
	if err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	query := `INSERT OR REPLACE INTO route_cache
	          (mode, origin_lat, origin_lng, dest_lat, dest_lng, duration_minutes, distance_meters, path, instructions)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.store.db.ExecContext(ctx, query, string(entry.Mode),
		models.RoundCoordinate(entry.Origin.Lat), models.RoundCoordinate(entry.Origin.Lng),
		models.RoundCoordinate(entry.Destination.Lat), models.RoundCoordinate(entry.Destination.Lng),
		entry.DurationMinutes, entry.DistanceMeters, string(path), string(instructions),
	)
	if err != nil {
		return fmt.Errorf("failed to set route cache entry: %w", err)
	}

	return nil
}

func (r *routeCacheRepository) Clear(ctx context.Context) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, err := r.store.db.ExecContext(ctx, "DELETE FROM route_cache"); err != nil {
		return fmt.Errorf("failed to clear route cache: %w", err)
	}

	return nil
}
