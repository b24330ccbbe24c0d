package models

import "math"

// Coordinates represents a geographic point
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RoundCoordinate rounds a coordinate to 5 decimal places (~1m precision).
// Cache keys and same-point checks use this precision.
func RoundCoordinate(v float64) float64 {
	return math.Round(v*100000) / 100000
}

// SamePoint reports whether two coordinates are equal at cache precision
func SamePoint(a, b Coordinates) bool {
	return RoundCoordinate(a.Lat) == RoundCoordinate(b.Lat) &&
		RoundCoordinate(a.Lng) == RoundCoordinate(b.Lng)
}

// ActivityKind is the variant tag of an activity
type ActivityKind string

const (
	KindPlace ActivityKind = "place"
	KindNote  ActivityKind = "note"
)

// TimeOfDay is the coarse grouping bucket of an activity
type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"
	Afternoon TimeOfDay = "afternoon"
	Evening   TimeOfDay = "evening"
)

// Activity is one planned stop or free-text note within a day.
// Schedule and TravelFromPrevious are derived and overwritten on every pass.
type Activity struct {
	ID        string       `json:"id"`
	Kind      ActivityKind `json:"kind"`
	Title     string       `json:"title"`
	TimeOfDay TimeOfDay    `json:"time_of_day,omitempty"`

	// Place fields
	LocationID   string       `json:"location_id,omitempty"`
	Tags         []string     `json:"tags,omitempty"`
	DurationMin  int          `json:"duration_min,omitempty"`
	Coordinates  *Coordinates `json:"coordinates,omitempty"`
	Neighborhood string       `json:"neighborhood,omitempty"`

	// Note fields
	Notes   string `json:"notes,omitempty"`
	EndTime string `json:"end_time,omitempty"`

	ManualStartTime *string `json:"manual_start_time,omitempty"`

	Schedule           *Schedule `json:"schedule,omitempty"`
	TravelFromPrevious *Travel   `json:"travel_from_previous,omitempty"`
}

// IsPlace reports whether the activity is a place stop
func (a *Activity) IsPlace() bool {
	return a.Kind == KindPlace
}

// Day is an ordered sequence of activities. List order is the single
// source of truth for sequencing.
type Day struct {
	ID         string     `json:"id"`
	Date       string     `json:"date"` // YYYY-MM-DD
	Timezone   string     `json:"timezone,omitempty"`
	StartTime  string     `json:"start_time,omitempty"` // HH:MM
	City       string     `json:"city,omitempty"`
	Activities []Activity `json:"activities"`
}

// ScheduleStatus is the derived status of a scheduled activity
type ScheduleStatus string

const (
	StatusScheduled  ScheduleStatus = "scheduled"
	StatusOutOfHours ScheduleStatus = "out-of-hours"
)

// OperatingWindow is the operating period applied to an arrival
type OperatingWindow struct {
	Day    string `json:"day"`
	Open   string `json:"open,omitempty"`
	Close  string `json:"close,omitempty"`
	Closed bool   `json:"closed,omitempty"`
}

// Schedule is the derived arrival/departure data attached to an activity
type Schedule struct {
	ArrivalTime          string           `json:"arrival_time"`
	DepartureTime        string           `json:"departure_time"`
	ArrivalMinutes       int              `json:"arrival_minutes"`
	DepartureMinutes     int              `json:"departure_minutes"`
	Status               ScheduleStatus   `json:"status"`
	ArrivalBufferMinutes int              `json:"arrival_buffer_minutes"`
	OperatingWindow      *OperatingWindow `json:"operating_window,omitempty"`
}

// Travel is the segment between an activity and its nearest preceding place
type Travel struct {
	Mode            TravelMode    `json:"mode"`
	DurationMinutes int           `json:"duration_minutes"`
	DistanceMeters  int           `json:"distance_meters"`
	Path            []Coordinates `json:"path,omitempty"`
	Instructions    []string      `json:"instructions,omitempty"`
	ArrivalTime     string        `json:"arrival_time,omitempty"`
	IsEstimated     bool          `json:"is_estimated"`
}

// SegmentKey returns the fromId-toId form of a segment used in logs and JSON.
// Ids may contain hyphens, so this string is not a unique key; use Segment.
func SegmentKey(fromID, toID string) string {
	return fromID + "-" + toID
}

// Segment identifies the travel between two consecutive place activities
type Segment struct {
	From string
	To   string
}

func (s Segment) String() string {
	return SegmentKey(s.From, s.To)
}

// Touches reports whether id is either endpoint
func (s Segment) Touches(id string) bool {
	return s.From == id || s.To == id
}

// ConflictKind names a schedule violation
type ConflictKind string

const (
	ConflictOverlap            ConflictKind = "overlap"
	ConflictOutOfHours         ConflictKind = "out-of-hours"
	ConflictInsufficientBuffer ConflictKind = "insufficient-buffer"
)

// Severity of a conflict
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Conflict is a structured warning attached to an activity by id
type Conflict struct {
	ActivityID string       `json:"activity_id"`
	Kind       ConflictKind `json:"kind"`
	Severity   Severity     `json:"severity"`
	Message    string       `json:"message"`
}

// RouteCacheEntry represents a cached route lookup
type RouteCacheEntry struct {
	Origin          Coordinates   `json:"origin"`
	Destination     Coordinates   `json:"destination"`
	Mode            TravelMode    `json:"mode"`
	DurationMinutes int           `json:"duration_minutes"`
	DistanceMeters  int           `json:"distance_meters"`
	Path            []Coordinates `json:"path"`
	Instructions    []string      `json:"instructions"`
}

// DayState is the emitted schedule and conflict state of one day.
// Version increases on every recomputation so consumers can drop
// out-of-order updates.
type DayState struct {
	Day       Day        `json:"day"`
	Conflicts []Conflict `json:"conflicts"`
	Version   uint64     `json:"version"`
	Phase     string     `json:"phase"`
	// Pending lists the segment keys still waiting on the routing service
	Pending []string `json:"pending_segments"`
}
