package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mel-koku/koku-travel-sub004/internal/database"
	"github.com/mel-koku/koku-travel-sub004/internal/models"
)

type locationRepository struct {
	store *Store
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLocation(row rowScanner) (*models.Location, bool, error) {
	var loc models.Location
	var lat, lng sql.NullFloat64
	var hasHours bool
	if err := row.Scan(&loc.ID, &loc.Name, &loc.City, &loc.Category, &lat, &lng, &hasHours); err != nil {
		return nil, false, err
	}
	if lat.Valid && lng.Valid {
		loc.Coordinates = &models.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
	}
	return &loc, hasHours, nil
}

// loadHours must be called with the store lock held
func (r *locationRepository) loadHours(ctx context.Context, loc *models.Location) error {
	rows, err := r.store.db.QueryContext(ctx,
		`SELECT day, open_time, close_time FROM location_hours WHERE location_id = ? ORDER BY rowid`, loc.ID)
	if err != nil {
		return fmt.Errorf("failed to query location hours: %w", err)
	}
	defer rows.Close()

	hours := &models.OperatingHours{Periods: []models.OperatingPeriod{}}
	for rows.Next() {
		var p models.OperatingPeriod
		if err := rows.Scan(&p.Day, &p.Open, &p.Close); err != nil {
			return fmt.Errorf("failed to scan location hours: %w", err)
		}
		hours.Periods = append(hours.Periods, p)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating location hours: %w", err)
	}
	loc.OperatingHours = hours
	return nil
}

func (r *locationRepository) List(ctx context.Context, city string) ([]models.Location, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	query := `SELECT id, name, city, category, lat, lng, has_hours FROM locations`
	args := []any{}
	if city != "" {
		query += ` WHERE city = ?`
		args = append(args, city)
	}
	query += ` ORDER BY name`

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}

	var locations []models.Location
	var withHours []int
	for rows.Next() {
		loc, hasHours, err := scanLocation(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		if hasHours {
			withHours = append(withHours, len(locations))
		}
		locations = append(locations, *loc)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating locations: %w", err)
	}
	rows.Close()

	for _, i := range withHours {
		if err := r.loadHours(ctx, &locations[i]); err != nil {
			return nil, err
		}
	}

	return locations, nil
}

func (r *locationRepository) GetByID(ctx context.Context, id string) (*models.Location, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	row := r.store.db.QueryRowContext(ctx,
		`SELECT id, name, city, category, lat, lng, has_hours FROM locations WHERE id = ?`, id)
	loc, hasHours, err := scanLocation(row)
	if err == sql.ErrNoRows {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", err)
	}
	if hasHours {
		if err := r.loadHours(ctx, loc); err != nil {
			return nil, err
		}
	}
	return loc, nil
}

func (r *locationRepository) Upsert(ctx context.Context, loc *models.Location) (*models.Location, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var lat, lng sql.NullFloat64
	if loc.Coordinates != nil {
		lat = sql.NullFloat64{Float64: loc.Coordinates.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: loc.Coordinates.Lng, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO locations (id, name, city, category, lat, lng, has_hours)
	                              VALUES (?, ?, ?, ?, ?, ?, ?)`,
		loc.ID, loc.Name, loc.City, loc.Category, lat, lng, boolToInt(loc.OperatingHours != nil))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert location: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM location_hours WHERE location_id = ?`, loc.ID); err != nil {
		return nil, fmt.Errorf("failed to reset location hours: %w", err)
	}

	if loc.OperatingHours != nil {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO location_hours (location_id, day, open_time, close_time) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range loc.OperatingHours.Periods {
			if _, err := stmt.ExecContext(ctx, loc.ID, p.Day, p.Open, p.Close); err != nil {
				return nil, fmt.Errorf("failed to insert location hours: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return loc, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r *locationRepository) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	result, err := r.store.db.ExecContext(ctx, `DELETE FROM locations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete location: %w", err)
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
