package locations

import "github.com/mel-koku/koku-travel-sub004/internal/models"

// Source names the tier that produced a coordinate
type Source string

const (
	SourceNone         Source = ""
	SourceActivity     Source = "activity"
	SourceLocation     Source = "location"
	SourceIDTable      Source = "id-table"
	SourceLocationName Source = "location-name"
	SourceTitle        Source = "title"
)

// CoordinateResolver maps a place activity to a single point. The first
// tier that hits wins; values are never blended.
type CoordinateResolver struct {
	Tables *FallbackTables
}

// NewCoordinateResolver creates a resolver over the given fallback tables (may be nil)
func NewCoordinateResolver(tables *FallbackTables) *CoordinateResolver {
	return &CoordinateResolver{Tables: tables}
}

// Resolve returns the activity's coordinates or nil. A nil result is a
// valid state: the stop is left out of routing and mapping.
func (r *CoordinateResolver) Resolve(a *models.Activity, loc *models.Location) (*models.Coordinates, Source) {
	if a == nil || !a.IsPlace() {
		return nil, SourceNone
	}
	if a.Coordinates != nil {
		c := *a.Coordinates
		return &c, SourceActivity
	}
	if loc != nil && loc.Coordinates != nil {
		c := *loc.Coordinates
		return &c, SourceLocation
	}
	if c, ok := r.Tables.ByID(a.LocationID); ok {
		return &c, SourceIDTable
	}
	if loc != nil && loc.Name != "" {
		if c, ok := r.Tables.ByName(loc.Name); ok {
			return &c, SourceLocationName
		}
	}
	if c, ok := r.Tables.ByName(a.Title); ok {
		return &c, SourceTitle
	}
	return nil, SourceNone
}
