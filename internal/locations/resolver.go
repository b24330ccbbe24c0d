package locations

import (
	"context"
	"errors"
	"log"

	"github.com/mel-koku/koku-travel-sub004/internal/database"
	"github.com/mel-koku/koku-travel-sub004/internal/models"
)

// Resolver looks up the location record behind an activity. A nil record
// with a nil error means the location is unknown.
type Resolver interface {
	Resolve(ctx context.Context, a *models.Activity, city string) (*models.Location, error)
}

// Chain tries each resolver in order and returns the first record found.
// Errors are logged and skipped; resolution is best effort.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, a *models.Activity, city string) (*models.Location, error) {
	for _, r := range c {
		if r == nil {
			continue
		}
		loc, err := r.Resolve(ctx, a, city)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("[LOCATION] Resolver failed: activity=%s err=%v", a.ID, err)
			continue
		}
		if loc != nil {
			return loc, nil
		}
	}
	return nil, nil
}

// RepositoryResolver resolves an activity's location id against stored records
type RepositoryResolver struct {
	Repo database.LocationRepository
}

func (r *RepositoryResolver) Resolve(ctx context.Context, a *models.Activity, _ string) (*models.Location, error) {
	if a.LocationID == "" {
		return nil, nil
	}
	loc, err := r.Repo.GetByID(ctx, a.LocationID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	return loc, err
}
