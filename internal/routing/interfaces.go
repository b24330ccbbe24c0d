package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/mel-koku/koku-travel-sub004/internal/models"
)

// Request describes one route lookup between two points
type Request struct {
	Origin      models.Coordinates
	Destination models.Coordinates
	Mode        models.TravelMode
	// DepartureTime and Timezone are forwarded to backends that support
	// time-dependent routing. OSRM ignores them.
	DepartureTime *time.Time
	Timezone      string
}

// Route is the routing service's answer. IsEstimated routes may carry an
// empty path; callers fill those in with a straight-line estimate.
type Route struct {
	Path            []models.Coordinates `json:"path"`
	DurationMinutes int                  `json:"duration_minutes"`
	DistanceMeters  int                  `json:"distance_meters"`
	Instructions    []string             `json:"instructions,omitempty"`
	IsEstimated     bool                 `json:"is_estimated"`
}

// Client fetches routes. Business-level unreachability is not an error:
// it comes back as an IsEstimated route. Errors mean the request itself
// failed (network, timeout, bad status, bad payload).
type Client interface {
	Route(ctx context.Context, req Request) (*Route, error)
}

// Metrics receives per-request outcomes
type Metrics interface {
	RouteRequestObserve(mode, outcome string, d time.Duration)
}

// Request outcomes reported to Metrics
const (
	OutcomeOK          = "ok"
	OutcomeCacheHit    = "cache_hit"
	OutcomeNoRoute     = "no_route"
	OutcomeUnsupported = "unsupported"
	OutcomeTimeout     = "timeout"
	OutcomeError       = "error"
)

// ErrRouteRequestFailed is returned when the routing service cannot be
// reached or answers with something unusable
type ErrRouteRequestFailed struct {
	Origin  models.Coordinates
	Dest    models.Coordinates
	Mode    models.TravelMode
	Reason  string
	Timeout bool
}

func (e *ErrRouteRequestFailed) Error() string {
	if e.Timeout {
		return fmt.Sprintf("route request timed out: mode=%s %s", e.Mode, e.Reason)
	}
	return fmt.Sprintf("route request failed: mode=%s %s", e.Mode, e.Reason)
}
