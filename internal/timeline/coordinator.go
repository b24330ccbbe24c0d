package timeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mel-koku/koku-travel-sub004/internal/locations"
	"github.com/mel-koku/koku-travel-sub004/internal/models"
	"github.com/mel-koku/koku-travel-sub004/internal/routing"
	"github.com/mel-koku/koku-travel-sub004/internal/schedule"
	"github.com/mel-koku/koku-travel-sub004/internal/travel"
)

// Publisher receives every emitted day state
type Publisher interface {
	PublishDay(state *models.DayState) error
}

// Metrics receives coordinator events
type Metrics interface {
	ScheduleComputed(conflicts int)
	SegmentsInvalidated(n int)
	DaysOpen(n int)
}

// Config holds the coordinator defaults
type Config struct {
	// DayStart is minutes since midnight; nil uses 09:00. Zero is midnight.
	DayStart    *int
	DefaultMode models.TravelMode
	Location    *time.Location
	// ResolveConcurrency bounds parallel location lookups when a day opens
	ResolveConcurrency int
}

// Coordinator owns the open days. Days never share mutable state, so
// edits to different days never contend beyond the map lookup.
type Coordinator struct {
	cfg       Config
	dayStart  int
	resolver  locations.Resolver
	coords    *locations.CoordinateResolver
	client    routing.Client
	estimator *travel.Estimator
	publisher Publisher
	metrics   Metrics
	recalcM   travel.Metrics

	baseCtx context.Context
	mu      sync.RWMutex
	days    map[string]*Timeline
}

// Deps are the collaborators of a Coordinator. Resolver, Publisher,
// Metrics and RecalcMetrics may be nil.
type Deps struct {
	Resolver      locations.Resolver
	Coordinates   *locations.CoordinateResolver
	Client        routing.Client
	Estimator     *travel.Estimator
	Publisher     Publisher
	Metrics       Metrics
	RecalcMetrics travel.Metrics
}

// NewCoordinator creates a coordinator. ctx bounds every segment request
// issued by the days it opens.
func NewCoordinator(ctx context.Context, cfg Config, deps Deps) *Coordinator {
	dayStart := schedule.DefaultDayStart
	if cfg.DayStart != nil {
		dayStart = *cfg.DayStart
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = models.ModeWalk
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.ResolveConcurrency <= 0 {
		cfg.ResolveConcurrency = 4
	}
	if deps.Coordinates == nil {
		deps.Coordinates = locations.NewCoordinateResolver(nil)
	}
	if deps.Estimator == nil {
		deps.Estimator = travel.NewEstimator()
	}
	return &Coordinator{
		cfg:       cfg,
		dayStart:  dayStart,
		resolver:  deps.Resolver,
		coords:    deps.Coordinates,
		client:    deps.Client,
		estimator: deps.Estimator,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		recalcM:   deps.RecalcMetrics,
		baseCtx:   ctx,
		days:      make(map[string]*Timeline),
	}
}

func (c *Coordinator) location(tz string) *time.Location {
	if tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return c.cfg.Location
}

func (c *Coordinator) get(dayID string) (*Timeline, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.days[dayID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDayNotFound, dayID)
	}
	return t, nil
}

// with runs fn on an open day under its lock
func (c *Coordinator) with(dayID string, fn func(t *Timeline) error) error {
	t, err := c.get(dayID)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("%w: %s", ErrTimelineClosed, dayID)
	}
	return fn(t)
}

// resolve gathers the location record and coordinates of each activity,
// in parallel
func (c *Coordinator) resolve(ctx context.Context, city string, activities []models.Activity) ([]resolved, error) {
	out := make([]resolved, len(activities))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.ResolveConcurrency)

	for i := range activities {
		i := i
		a := &activities[i]
		if !a.IsPlace() {
			continue
		}
		g.Go(func() error {
			var loc *models.Location
			// Embedded coordinates win over any lookup, and without a
			// location id there is no stored record to fetch hours from
			if c.resolver != nil && (a.Coordinates == nil || a.LocationID != "") {
				var err error
				loc, err = c.resolver.Resolve(gctx, a, city)
				if err != nil {
					return err
				}
			}
			pt, src := c.coords.Resolve(a, loc)
			if pt == nil {
				log.Printf("[TIMELINE] No coordinates: activity=%s title=%q", a.ID, a.Title)
			} else if src != locations.SourceActivity {
				log.Printf("[TIMELINE] Coordinates resolved: activity=%s source=%s", a.ID, src)
			}
			out[i] = resolved{location: loc, coords: pt}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func validateKind(a *models.Activity) error {
	switch a.Kind {
	case models.KindPlace, models.KindNote:
		return nil
	case "":
		a.Kind = models.KindPlace
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidActivityKind, a.Kind)
}

func validateActivity(a *models.Activity) error {
	if err := validateKind(a); err != nil {
		return err
	}
	if a.DurationMin < 0 {
		return ErrInvalidDuration
	}
	if a.ManualStartTime != nil && *a.ManualStartTime != "" {
		if _, err := models.ParseClock(*a.ManualStartTime); err != nil {
			return err
		}
	}
	if a.TravelFromPrevious != nil && a.TravelFromPrevious.Mode != "" && !a.TravelFromPrevious.Mode.Supported() {
		return fmt.Errorf("%w: %q", travel.ErrUnsupportedMode, a.TravelFromPrevious.Mode)
	}
	return nil
}

// Open takes over an unscheduled day: assigns missing ids, resolves
// locations, requests every segment and returns the best-effort state.
// Opening an already open day replaces it.
func (c *Coordinator) Open(ctx context.Context, day models.Day) (*models.DayState, error) {
	if day.ID == "" {
		day.ID = uuid.NewString()
	}
	if day.StartTime != "" {
		if _, err := models.ParseClock(day.StartTime); err != nil {
			return nil, err
		}
	}
	if day.Date != "" {
		if _, err := time.Parse("2006-01-02", day.Date); err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidDate, day.Date, err)
		}
	}
	if day.Timezone == "" {
		day.Timezone = c.cfg.Location.String()
	}

	activities := make([]models.Activity, len(day.Activities))
	copy(activities, day.Activities)
	seen := make(map[string]bool)
	for i := range activities {
		a := &activities[i]
		if err := validateActivity(a); err != nil {
			return nil, fmt.Errorf("activity %d: %w", i, err)
		}
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateActivity, a.ID)
		}
		seen[a.ID] = true
	}

	res, err := c.resolve(ctx, day.City, activities)
	if err != nil {
		return nil, err
	}

	dayCtx, cancel := context.WithCancel(c.baseCtx)
	t := &Timeline{
		ctx:       dayCtx,
		cancel:    cancel,
		c:         c,
		recalc:    travel.NewRecalculator(c.client, c.estimator, c.recalcM),
		day:       day,
		locations: make(map[string]*models.Location),
		coords:    make(map[string]*models.Coordinates),
		modes:     make(map[string]models.TravelMode),
		pred:      make(map[string]string),
		segments:  make(map[models.Segment]models.Travel),
	}
	t.day.Activities = nil

	// Incoming travel is kept as the stale best-effort value for its segment
	pred := adjacency(activities)
	for i := range activities {
		a := &activities[i]
		t.locations[a.ID] = res[i].location
		t.coords[a.ID] = res[i].coords
		if tr := a.TravelFromPrevious; tr != nil {
			if tr.Mode != "" {
				t.modes[a.ID] = tr.Mode
			}
			if from, ok := pred[a.ID]; ok && tr.Mode != "" {
				t.segments[models.Segment{From: from, To: a.ID}] = *tr
			}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	started := t.resequence(activities)

	c.mu.Lock()
	old := c.days[day.ID]
	c.days[day.ID] = t
	n := len(c.days)
	c.mu.Unlock()
	if old != nil {
		old.close()
	}
	if c.metrics != nil {
		c.metrics.DaysOpen(n)
	}

	log.Printf("[TIMELINE] Opened day: id=%s activities=%d segments_requested=%d", day.ID, len(activities), started)
	return t.publish(PhaseBestEffort), nil
}

// OnSequenceChange applies a new order of the day's existing activity ids.
// Only segments whose adjacency changed are re-requested.
func (c *Coordinator) OnSequenceChange(dayID string, order []string) (*models.DayState, error) {
	var state *models.DayState
	err := c.with(dayID, func(t *Timeline) error {
		if len(order) != len(t.day.Activities) {
			return fmt.Errorf("%w: got %d ids for %d activities", ErrInvalidSequence, len(order), len(t.day.Activities))
		}
		byID := make(map[string]models.Activity, len(t.day.Activities))
		for _, a := range t.day.Activities {
			byID[a.ID] = a
		}
		activities := make([]models.Activity, 0, len(order))
		for _, id := range order {
			a, ok := byID[id]
			if !ok {
				return fmt.Errorf("%w: unknown or repeated id %s", ErrInvalidSequence, id)
			}
			delete(byID, id)
			activities = append(activities, a)
		}

		started := t.resequence(activities)
		log.Printf("[TIMELINE] Sequence changed: day=%s segments_requested=%d", dayID, started)
		state = t.publish(PhaseBestEffort)
		return nil
	})
	return state, err
}

// InsertActivity adds an activity at index (appended when out of range)
func (c *Coordinator) InsertActivity(ctx context.Context, dayID string, a models.Activity, index int) (*models.DayState, error) {
	if err := validateActivity(&a); err != nil {
		return nil, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	t, err := c.get(dayID)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	city := t.day.City
	t.mu.Unlock()

	// Resolution may hit the network, so it runs outside the day lock
	res, err := c.resolve(ctx, city, []models.Activity{a})
	if err != nil {
		return nil, err
	}

	var state *models.DayState
	err = c.with(dayID, func(t *Timeline) error {
		if t.index(a.ID) >= 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateActivity, a.ID)
		}
		t.locations[a.ID] = res[0].location
		t.coords[a.ID] = res[0].coords
		if a.TravelFromPrevious != nil && a.TravelFromPrevious.Mode != "" {
			t.modes[a.ID] = a.TravelFromPrevious.Mode
		}
		a.TravelFromPrevious = nil

		activities := make([]models.Activity, 0, len(t.day.Activities)+1)
		if index < 0 || index > len(t.day.Activities) {
			index = len(t.day.Activities)
		}
		activities = append(activities, t.day.Activities[:index]...)
		activities = append(activities, a)
		activities = append(activities, t.day.Activities[index:]...)

		started := t.resequence(activities)
		log.Printf("[TIMELINE] Inserted activity: day=%s activity=%s index=%d segments_requested=%d", dayID, a.ID, index, started)
		state = t.publish(PhaseBestEffort)
		return nil
	})
	return state, err
}

// DeleteActivity removes an activity and joins its neighbours
func (c *Coordinator) DeleteActivity(dayID, activityID string) (*models.DayState, error) {
	var state *models.DayState
	err := c.with(dayID, func(t *Timeline) error {
		i := t.index(activityID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrActivityNotFound, activityID)
		}
		activities := make([]models.Activity, 0, len(t.day.Activities)-1)
		activities = append(activities, t.day.Activities[:i]...)
		activities = append(activities, t.day.Activities[i+1:]...)

		started := t.resequence(activities)
		delete(t.locations, activityID)
		delete(t.coords, activityID)
		delete(t.modes, activityID)
		for seg := range t.segments {
			if seg.Touches(activityID) {
				delete(t.segments, seg)
			}
		}
		log.Printf("[TIMELINE] Deleted activity: day=%s activity=%s segments_requested=%d", dayID, activityID, started)
		state = t.publish(PhaseBestEffort)
		return nil
	})
	return state, err
}

// CopyActivity duplicates an activity with a fresh id right after the original
func (c *Coordinator) CopyActivity(dayID, activityID string) (*models.DayState, string, error) {
	var state *models.DayState
	newID := uuid.NewString()
	err := c.with(dayID, func(t *Timeline) error {
		i := t.index(activityID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrActivityNotFound, activityID)
		}
		dup := t.day.Activities[i]
		dup.ID = newID
		dup.Schedule = nil
		dup.TravelFromPrevious = nil
		dup.Tags = append([]string(nil), dup.Tags...)
		if dup.ManualStartTime != nil {
			v := *dup.ManualStartTime
			dup.ManualStartTime = &v
		}
		t.locations[newID] = t.locations[activityID]
		t.coords[newID] = t.coords[activityID]
		if m, ok := t.modes[activityID]; ok {
			t.modes[newID] = m
		}

		activities := make([]models.Activity, 0, len(t.day.Activities)+1)
		activities = append(activities, t.day.Activities[:i+1]...)
		activities = append(activities, dup)
		activities = append(activities, t.day.Activities[i+1:]...)

		started := t.resequence(activities)
		log.Printf("[TIMELINE] Copied activity: day=%s from=%s to=%s segments_requested=%d", dayID, activityID, newID, started)
		state = t.publish(PhaseBestEffort)
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return state, newID, nil
}

// ChangeTravelMode sets the mode of the segment arriving at activityID.
// The change is rejected with no state change when the mode is not
// supported, the activity has no preceding place, or an endpoint has no
// coordinates.
func (c *Coordinator) ChangeTravelMode(dayID, activityID string, mode models.TravelMode) (*models.DayState, error) {
	var state *models.DayState
	err := c.with(dayID, func(t *Timeline) error {
		a, err := t.activity(activityID)
		if err != nil {
			return err
		}
		from, ok := t.pred[a.ID]
		if !ok {
			return fmt.Errorf("%w: %s has no preceding place", ErrModeChangeRejected, activityID)
		}
		req := travel.SegmentRequest{
			FromID:      from,
			ToID:        a.ID,
			Origin:      t.coords[from],
			Destination: t.coords[a.ID],
			Mode:        mode,
		}
		if err := req.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrModeChangeRejected, err)
		}

		t.modes[a.ID] = mode
		t.segments[req.Key()] = t.bestEffort(from, a.ID)
		t.recompute()
		t.request(from, a.ID)
		log.Printf("[TIMELINE] Travel mode changed: day=%s key=%s mode=%s", dayID, req.Key(), mode)
		state = t.publish(PhaseBestEffort)
		return nil
	})
	return state, err
}

// SetManualStartTime pins (or with nil/empty clears) an activity's arrival
func (c *Coordinator) SetManualStartTime(dayID, activityID string, manual *string) (*models.DayState, error) {
	if manual != nil && *manual != "" {
		if _, err := models.ParseClock(*manual); err != nil {
			return nil, err
		}
	}
	var state *models.DayState
	err := c.with(dayID, func(t *Timeline) error {
		a, err := t.activity(activityID)
		if err != nil {
			return err
		}
		if manual == nil || *manual == "" {
			a.ManualStartTime = nil
		} else {
			v := *manual
			a.ManualStartTime = &v
		}
		t.recompute()
		state = t.publish(PhaseBestEffort)
		return nil
	})
	return state, err
}

// SetDuration changes the minutes spent at an activity
func (c *Coordinator) SetDuration(dayID, activityID string, minutes int) (*models.DayState, error) {
	if minutes < 0 {
		return nil, ErrInvalidDuration
	}
	var state *models.DayState
	err := c.with(dayID, func(t *Timeline) error {
		a, err := t.activity(activityID)
		if err != nil {
			return err
		}
		a.DurationMin = minutes
		t.recompute()
		state = t.publish(PhaseBestEffort)
		return nil
	})
	return state, err
}

// RefreshLocation re-resolves every open activity that references
// locationID, after the stored record changed or was removed. Segments
// whose endpoint moved are re-requested and every touched day is
// rescheduled. Returns the number of days updated.
func (c *Coordinator) RefreshLocation(ctx context.Context, locationID string) (int, error) {
	if locationID == "" {
		return 0, nil
	}
	c.mu.RLock()
	days := make([]*Timeline, 0, len(c.days))
	for _, t := range c.days {
		days = append(days, t)
	}
	c.mu.RUnlock()

	updated := 0
	for _, t := range days {
		t.mu.Lock()
		city := t.day.City
		var refs []models.Activity
		if !t.closed {
			for _, a := range t.day.Activities {
				if a.IsPlace() && a.LocationID == locationID {
					refs = append(refs, a)
				}
			}
		}
		t.mu.Unlock()
		if len(refs) == 0 {
			continue
		}

		res, err := c.resolve(ctx, city, refs)
		if err != nil {
			return updated, err
		}

		t.mu.Lock()
		if !t.closed {
			started := t.refresh(refs, res)
			log.Printf("[TIMELINE] Location refreshed: day=%s location=%s activities=%d segments_requested=%d",
				t.day.ID, locationID, len(refs), started)
			t.publish(PhaseBestEffort)
			updated++
		}
		t.mu.Unlock()
	}
	return updated, nil
}

// Snapshot returns the current state of a day
func (c *Coordinator) Snapshot(dayID string) (*models.DayState, error) {
	var state *models.DayState
	err := c.with(dayID, func(t *Timeline) error {
		state = t.state(PhaseCorrected)
		if len(state.Pending) > 0 {
			state.Phase = PhaseBestEffort
		}
		return nil
	})
	return state, err
}

// Close tears a day down. Outstanding segment requests are cancelled and
// none of their results will be applied.
func (c *Coordinator) Close(dayID string) error {
	c.mu.Lock()
	t, ok := c.days[dayID]
	delete(c.days, dayID)
	n := len(c.days)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrDayNotFound, dayID)
	}
	t.close()
	if c.metrics != nil {
		c.metrics.DaysOpen(n)
	}
	return nil
}

// Wait blocks until every in-flight segment request of the day has returned
func (c *Coordinator) Wait(dayID string) error {
	t, err := c.get(dayID)
	if err != nil {
		return err
	}
	t.recalc.Wait()
	return nil
}

// Shutdown closes every open day and waits for their requests to drain
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	days := make([]*Timeline, 0, len(c.days))
	for id, t := range c.days {
		days = append(days, t)
		delete(c.days, id)
	}
	c.mu.Unlock()

	for _, t := range days {
		t.close()
	}
	for _, t := range days {
		t.recalc.Wait()
	}
	if c.metrics != nil {
		c.metrics.DaysOpen(0)
	}
	log.Printf("[TIMELINE] Shutdown: closed %d days", len(days))
}
