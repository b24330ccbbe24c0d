package sqlite

import (
	"context"
	"fmt"

	"github.com/mel-koku/koku-travel-sub004/internal/database"
	"github.com/mel-koku/koku-travel-sub004/internal/models"
)

type coordinateTableRepository struct {
	store *Store
}

func (r *coordinateTableRepository) List(ctx context.Context, table database.CoordinateTable) (map[string]models.Coordinates, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	rows, err := r.store.db.QueryContext(ctx,
		`SELECT key, lat, lng FROM coordinate_fallbacks WHERE kind = ?`, string(table))
	if err != nil {
		return nil, fmt.Errorf("failed to query coordinate table: %w", err)
	}
	defer rows.Close()

	result := make(map[string]models.Coordinates)
	for rows.Next() {
		var key string
		var c models.Coordinates
		if err := rows.Scan(&key, &c.Lat, &c.Lng); err != nil {
			return nil, fmt.Errorf("failed to scan coordinate table row: %w", err)
		}
		result[key] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating coordinate table: %w", err)
	}

	return result, nil
}

func (r *coordinateTableRepository) Set(ctx context.Context, table database.CoordinateTable, key string, c models.Coordinates) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	_, err := r.store.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO coordinate_fallbacks (kind, key, lat, lng) VALUES (?, ?, ?, ?)`,
		string(table), key, c.Lat, c.Lng)
	if err != nil {
		return fmt.Errorf("failed to set coordinate table row: %w", err)
	}
	return nil
}

func (r *coordinateTableRepository) Delete(ctx context.Context, table database.CoordinateTable, key string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	result, err := r.store.db.ExecContext(ctx,
		`DELETE FROM coordinate_fallbacks WHERE kind = ? AND key = ?`, string(table), key)
	if err != nil {
		return fmt.Errorf("failed to delete coordinate table row: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return database.ErrNotFound
	}
	return nil
}
