package timeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/mel-koku/koku-travel-sub004/internal/models"
	"github.com/mel-koku/koku-travel-sub004/internal/schedule"
	"github.com/mel-koku/koku-travel-sub004/internal/travel"
)

var (
	ErrDayNotFound         = errors.New("day not found")
	ErrActivityNotFound    = errors.New("activity not found")
	ErrDuplicateActivity   = errors.New("duplicate activity id")
	ErrInvalidSequence     = errors.New("sequence must list every activity exactly once")
	ErrTimelineClosed      = errors.New("timeline closed")
	ErrModeChangeRejected  = errors.New("travel mode change rejected")
	ErrInvalidDuration     = errors.New("duration must not be negative")
	ErrInvalidActivityKind = errors.New("activity kind must be place or note")
	ErrInvalidDate         = errors.New("invalid date")
)

const (
	PhaseBestEffort = "best-effort"
	PhaseCorrected  = "corrected"
)

// Timeline holds one day and the segment state derived from it. Every
// mutation runs under mu; routing results are applied under mu after
// checking that their token is still current.
type Timeline struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	c      *Coordinator
	recalc *travel.Recalculator

	day       models.Day
	locations map[string]*models.Location      // activity id -> record
	coords    map[string]*models.Coordinates   // activity id -> point
	modes     map[string]models.TravelMode     // destination activity id -> mode
	pred      map[string]string                // place id -> preceding place id
	segments  map[models.Segment]models.Travel // last known travel per segment
	conflicts []models.Conflict
	version   uint64
	closed    bool
}

// resolved is the location data gathered for one activity before it joins the day
type resolved struct {
	location *models.Location
	coords   *models.Coordinates
}

func (t *Timeline) index(id string) int {
	for i := range t.day.Activities {
		if t.day.Activities[i].ID == id {
			return i
		}
	}
	return -1
}

// adjacency maps each place to the nearest preceding place, skipping notes
func adjacency(activities []models.Activity) map[string]string {
	pred := make(map[string]string)
	last := ""
	for i := range activities {
		a := &activities[i]
		if !a.IsPlace() {
			continue
		}
		if last != "" {
			pred[a.ID] = last
		}
		last = a.ID
	}
	return pred
}

func (t *Timeline) modeFor(toID string) models.TravelMode {
	if m, ok := t.modes[toID]; ok {
		return m
	}
	return t.c.cfg.DefaultMode
}

// bestEffort returns the travel to show for a segment until routing settles
func (t *Timeline) bestEffort(fromID, toID string) models.Travel {
	key := models.Segment{From: fromID, To: toID}
	mode := t.modeFor(toID)
	if known, ok := t.segments[key]; ok && known.Mode == mode {
		return known
	}
	from, to := t.coords[fromID], t.coords[toID]
	if from == nil || to == nil {
		return travel.ZeroSegment(mode)
	}
	return t.recalc.Estimator().Estimate(*from, *to, mode)
}

// resequence installs a new activity order, invalidates only the segments
// whose adjacency changed, and applies a best-effort schedule. Returns the
// number of segment requests started.
func (t *Timeline) resequence(activities []models.Activity) int {
	newPred := adjacency(activities)
	oldPred := t.pred

	for to, from := range oldPred {
		if newPred[to] != from {
			t.recalc.Cancel(models.Segment{From: from, To: to})
		}
	}

	var changed []string
	for to, from := range newPred {
		if oldPred[to] == from {
			continue
		}
		t.segments[models.Segment{From: from, To: to}] = t.bestEffort(from, to)
		changed = append(changed, to)
	}

	t.day.Activities = activities
	t.pred = newPred
	t.recompute()

	sort.Strings(changed)
	started := 0
	for _, to := range changed {
		if t.request(newPred[to], to) {
			started++
		}
	}
	if t.c.metrics != nil && len(changed) > 0 {
		t.c.metrics.SegmentsInvalidated(len(changed))
	}
	return started
}

// refresh installs re-resolved location data for activities still in the
// day. Segments touching an activity whose point changed are invalidated
// and re-requested. Returns the number of segment requests started.
func (t *Timeline) refresh(activities []models.Activity, res []resolved) int {
	moved := make(map[string]bool)
	for i := range activities {
		id := activities[i].ID
		if t.index(id) < 0 {
			continue
		}
		t.locations[id] = res[i].location
		if !samePoint(t.coords[id], res[i].coords) {
			t.coords[id] = res[i].coords
			moved[id] = true
		}
	}

	var changed []string
	for to, from := range t.pred {
		if !moved[to] && !moved[from] {
			continue
		}
		seg := models.Segment{From: from, To: to}
		t.recalc.Cancel(seg)
		delete(t.segments, seg)
		t.segments[seg] = t.bestEffort(from, to)
		changed = append(changed, to)
	}
	t.recompute()

	sort.Strings(changed)
	started := 0
	for _, to := range changed {
		if t.request(t.pred[to], to) {
			started++
		}
	}
	if t.c.metrics != nil && len(changed) > 0 {
		t.c.metrics.SegmentsInvalidated(len(changed))
	}
	return started
}

func samePoint(a, b *models.Coordinates) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// request starts routing for one segment. Segments with a missing endpoint
// keep their zero travel and are not sent.
func (t *Timeline) request(fromID, toID string) bool {
	from, to := t.coords[fromID], t.coords[toID]
	if from == nil || to == nil {
		return false
	}
	req := travel.SegmentRequest{
		FromID:        fromID,
		ToID:          toID,
		Origin:        from,
		Destination:   to,
		Mode:          t.modeFor(toID),
		DepartureTime: t.departureOf(fromID),
		Timezone:      t.day.Timezone,
	}
	if _, err := t.recalc.Start(t.ctx, req, t.apply); err != nil {
		log.Printf("[TIMELINE] Segment not requested: day=%s key=%s err=%v", t.day.ID, req.Key(), err)
		return false
	}
	return true
}

func (t *Timeline) departureOf(activityID string) *time.Time {
	i := t.index(activityID)
	if i < 0 || t.day.Activities[i].Schedule == nil || t.day.Date == "" {
		return nil
	}
	loc := t.c.location(t.day.Timezone)
	date, err := time.ParseInLocation("2006-01-02", t.day.Date, loc)
	if err != nil {
		return nil
	}
	dep := date.Add(time.Duration(t.day.Activities[i].Schedule.DepartureMinutes) * time.Minute)
	return &dep
}

// apply commits a settled segment and publishes the corrected schedule
func (t *Timeline) apply(o travel.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || !t.recalc.IsCurrent(o.Key, o.Token) {
		log.Printf("[TIMELINE] Dropped outcome for superseded segment: day=%s key=%s token=%d", t.day.ID, o.Key, o.Token)
		return
	}
	if t.pred[o.ToID] != o.FromID {
		return
	}

	t.segments[o.Key] = o.Travel
	t.recompute()
	t.publish(PhaseCorrected)
}

// recompute rebuilds every travelFromPrevious from the segment map and
// reruns the schedule engine and conflict detector
func (t *Timeline) recompute() {
	activities := make([]models.Activity, len(t.day.Activities))
	copy(activities, t.day.Activities)

	hours := make(map[string]*models.OperatingHours)
	for i := range activities {
		a := &activities[i]
		a.TravelFromPrevious = nil
		if !a.IsPlace() {
			continue
		}
		if loc := t.locations[a.ID]; loc != nil && loc.OperatingHours != nil {
			hours[a.ID] = loc.OperatingHours
		}
		if from, ok := t.pred[a.ID]; ok {
			seg, ok := t.segments[models.Segment{From: from, To: a.ID}]
			if !ok {
				seg = travel.ZeroSegment(t.modeFor(a.ID))
			}
			a.TravelFromPrevious = &seg
		}
	}

	res := schedule.Run(activities, schedule.Options{
		DayStart: t.dayStart(),
		Weekday:  t.weekday(),
		Hours:    hours,
	})
	t.day.Activities = res.Activities
	t.conflicts = res.Conflicts
	t.version++

	if t.c.metrics != nil {
		t.c.metrics.ScheduleComputed(len(res.Conflicts))
	}
}

func (t *Timeline) dayStart() int {
	if t.day.StartTime != "" {
		if m, err := models.ParseClock(t.day.StartTime); err == nil {
			return m
		}
	}
	return t.c.dayStart
}

func (t *Timeline) weekday() time.Weekday {
	loc := t.c.location(t.day.Timezone)
	if d, err := time.ParseInLocation("2006-01-02", t.day.Date, loc); err == nil {
		return d.Weekday()
	}
	return time.Now().In(loc).Weekday()
}

func (t *Timeline) pending() []string {
	var keys []string
	for to, from := range t.pred {
		seg := models.Segment{From: from, To: to}
		if t.recalc.State(seg) == travel.StateRequesting {
			keys = append(keys, seg.String())
		}
	}
	sort.Strings(keys)
	return keys
}

func (t *Timeline) state(phase string) *models.DayState {
	day := t.day
	day.Activities = make([]models.Activity, len(t.day.Activities))
	copy(day.Activities, t.day.Activities)
	conflicts := make([]models.Conflict, len(t.conflicts))
	copy(conflicts, t.conflicts)
	return &models.DayState{
		Day:       day,
		Conflicts: conflicts,
		Version:   t.version,
		Phase:     phase,
		Pending:   t.pending(),
	}
}

func (t *Timeline) publish(phase string) *models.DayState {
	s := t.state(phase)
	if t.c.publisher != nil {
		if err := t.c.publisher.PublishDay(s); err != nil {
			log.Printf("[TIMELINE] Publish failed: day=%s version=%d err=%v", t.day.ID, s.Version, err)
		}
	}
	return s
}

func (t *Timeline) activity(id string) (*models.Activity, error) {
	i := t.index(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrActivityNotFound, id)
	}
	return &t.day.Activities[i], nil
}

func (t *Timeline) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.recalc.Close()
	t.cancel()
	log.Printf("[TIMELINE] Closed day: id=%s version=%d", t.day.ID, t.version)
}
