package timeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mel-koku/koku-travel-sub004/internal/models"
	"github.com/mel-koku/koku-travel-sub004/internal/routing"
	"github.com/mel-koku/koku-travel-sub004/internal/testutil"
	"github.com/mel-koku/koku-travel-sub004/internal/travel"
)

type recordingPublisher struct {
	mu     sync.Mutex
	states []*models.DayState
}

func (p *recordingPublisher) PublishDay(s *models.DayState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, s)
	return nil
}

func (p *recordingPublisher) all() []*models.DayState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.DayState(nil), p.states...)
}

type stubResolver struct {
	records map[string]*models.Location
}

func (s *stubResolver) Resolve(_ context.Context, a *models.Activity, _ string) (*models.Location, error) {
	return s.records[a.LocationID], nil
}

func stop(id string, lat float64) models.Activity {
	return models.Activity{
		ID:          id,
		Kind:        models.KindPlace,
		Title:       "Stop " + id,
		DurationMin: 60,
		Coordinates: &models.Coordinates{Lat: lat, Lng: 135.75},
	}
}

func newTestCoordinator(t *testing.T, client routing.Client) (*Coordinator, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	c := NewCoordinator(context.Background(), Config{Location: time.UTC}, Deps{Client: client, Publisher: pub})
	t.Cleanup(c.Shutdown)
	return c, pub
}

// segmentKeys maps recorded routing calls back to fromId-toId keys
func segmentKeys(calls []routing.Request, day []models.Activity) []string {
	byLat := map[float64]string{}
	for _, a := range day {
		if a.Coordinates != nil {
			byLat[a.Coordinates.Lat] = a.ID
		}
	}
	keys := make([]string, 0, len(calls))
	for _, c := range calls {
		keys = append(keys, models.SegmentKey(byLat[c.Origin.Lat], byLat[c.Destination.Lat]))
	}
	sort.Strings(keys)
	return keys
}

func ids(state *models.DayState) []string {
	out := make([]string, len(state.Day.Activities))
	for i, a := range state.Day.Activities {
		out[i] = a.ID
	}
	return out
}

func TestOpenSchedulesAndResolvesEverySegment(t *testing.T) {
	client := testutil.NewMockRouteClient()
	c, pub := newTestCoordinator(t, client)

	day := models.Day{ID: "d1", Date: "2026-10-13", Activities: []models.Activity{
		stop("a", 35.00),
		{ID: "n", Kind: models.KindNote, Title: "Lunch", Notes: "bento"},
		stop("b", 35.01),
		stop("c", 35.02),
	}}
	state, err := c.Open(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, PhaseBestEffort, state.Phase)
	require.Len(t, state.Day.Activities, 4)
	for _, a := range state.Day.Activities {
		require.NotNil(t, a.Schedule, "activity %s", a.ID)
	}
	assert.Nil(t, state.Day.Activities[0].TravelFromPrevious)
	assert.Nil(t, state.Day.Activities[1].TravelFromPrevious, "notes never carry travel")

	require.NoError(t, c.Wait("d1"))
	assert.Equal(t, []string{"a-b", "b-c"}, segmentKeys(client.Calls(), day.Activities))

	snap, err := c.Snapshot("d1")
	require.NoError(t, err)
	assert.Equal(t, PhaseCorrected, snap.Phase)
	assert.Empty(t, snap.Pending)
	b := snap.Day.Activities[2]
	require.NotNil(t, b.TravelFromPrevious)
	assert.Equal(t, 10, b.TravelFromPrevious.DurationMinutes)
	assert.False(t, b.TravelFromPrevious.IsEstimated)
	assert.Equal(t, "10:10", b.Schedule.ArrivalTime)
	assert.Equal(t, "11:20", snap.Day.Activities[3].Schedule.ArrivalTime)
	assert.Greater(t, snap.Version, state.Version)

	published := pub.all()
	require.NotEmpty(t, published)
	for i := 1; i < len(published); i++ {
		assert.Greater(t, published[i].Version, published[i-1].Version)
	}
}

func TestReorderOnlyRequestsTouchedSegments(t *testing.T) {
	client := testutil.NewMockRouteClient()
	c, _ := newTestCoordinator(t, client)

	acts := []models.Activity{stop("A", 35.00), stop("B", 35.01), stop("C", 35.02), stop("D", 35.03), stop("E", 35.04)}
	_, err := c.Open(context.Background(), models.Day{ID: "d1", Activities: acts})
	require.NoError(t, err)
	require.NoError(t, c.Wait("d1"))
	require.Equal(t, 4, client.CallCount())

	state, err := c.OnSequenceChange("d1", []string{"A", "D", "B", "C", "E"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "D", "B", "C", "E"}, ids(state))
	require.NoError(t, c.Wait("d1"))

	assert.Equal(t, []string{"A-D", "C-E", "D-B"}, segmentKeys(client.Calls()[4:], acts))

	snap, err := c.Snapshot("d1")
	require.NoError(t, err)
	for _, a := range snap.Day.Activities[1:] {
		require.NotNil(t, a.TravelFromPrevious)
		assert.False(t, a.TravelFromPrevious.IsEstimated, "activity %s", a.ID)
	}
}

func TestOnSequenceChangeValidation(t *testing.T) {
	c, _ := newTestCoordinator(t, testutil.NewMockRouteClient())
	_, err := c.Open(context.Background(), models.Day{ID: "d1", Activities: []models.Activity{stop("a", 35), stop("b", 35.01)}})
	require.NoError(t, err)

	_, err = c.OnSequenceChange("d1", []string{"a"})
	assert.ErrorIs(t, err, ErrInvalidSequence)
	_, err = c.OnSequenceChange("d1", []string{"a", "a"})
	assert.ErrorIs(t, err, ErrInvalidSequence)
	_, err = c.OnSequenceChange("d1", []string{"a", "zzz"})
	assert.ErrorIs(t, err, ErrInvalidSequence)
	_, err = c.OnSequenceChange("nope", []string{"a"})
	assert.ErrorIs(t, err, ErrDayNotFound)
}

func TestBestEffortThenCorrected(t *testing.T) {
	client := testutil.NewMockRouteClient()
	client.Blocking = true
	c, pub := newTestCoordinator(t, client)

	state, err := c.Open(context.Background(), models.Day{ID: "d1", Activities: []models.Activity{stop("a", 35.00), stop("b", 35.045)}})
	require.NoError(t, err)

	b := state.Day.Activities[1]
	require.NotNil(t, b.TravelFromPrevious)
	assert.True(t, b.TravelFromPrevious.IsEstimated, "straight-line estimate shown while routing is pending")
	assert.Equal(t, models.ModeWalk, b.TravelFromPrevious.Mode)
	assert.Equal(t, []string{"a-b"}, state.Pending)

	require.Eventually(t, func() bool { return client.Pending(0) != nil }, time.Second, time.Millisecond)
	p := client.Pending(0)
	p.Resolve(testutil.FixedRoute(p.Request, 25, 5100), nil)
	require.NoError(t, c.Wait("d1"))

	snap, err := c.Snapshot("d1")
	require.NoError(t, err)
	b = snap.Day.Activities[1]
	assert.Equal(t, 25, b.TravelFromPrevious.DurationMinutes)
	assert.False(t, b.TravelFromPrevious.IsEstimated)
	assert.Equal(t, "10:25", b.Schedule.ArrivalTime)
	assert.Empty(t, snap.Pending)

	published := pub.all()
	assert.Equal(t, PhaseCorrected, published[len(published)-1].Phase)
}

func TestRoutingFailureFallsBackWithoutError(t *testing.T) {
	client := testutil.NewMockRouteClient()
	client.Respond = func(req routing.Request) (*routing.Route, error) {
		return nil, &routing.ErrRouteRequestFailed{Mode: req.Mode, Reason: "timeout", Timeout: true}
	}
	c, _ := newTestCoordinator(t, client)

	_, err := c.Open(context.Background(), models.Day{ID: "d1", Activities: []models.Activity{stop("a", 35.00), stop("b", 35.045)}})
	require.NoError(t, err)
	_, err = c.ChangeTravelMode("d1", "b", models.ModeCar)
	require.NoError(t, err)
	require.NoError(t, c.Wait("d1"))

	snap, err := c.Snapshot("d1")
	require.NoError(t, err)
	tr := snap.Day.Activities[1].TravelFromPrevious
	assert.Equal(t, models.ModeCar, tr.Mode)
	assert.True(t, tr.IsEstimated)
	assert.Equal(t, 8, tr.DurationMinutes)
	assert.Len(t, tr.Path, 6)
}

func TestSupersededSegmentResultNeverApplied(t *testing.T) {
	client := testutil.NewMockRouteClient()
	client.Blocking = true
	client.IgnoreCancel = true
	c, _ := newTestCoordinator(t, client)

	_, err := c.Open(context.Background(), models.Day{ID: "d1", Activities: []models.Activity{stop("a", 35.00), stop("b", 35.045)}})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return client.Pending(0) != nil }, time.Second, time.Millisecond)

	_, err = c.ChangeTravelMode("d1", "b", models.ModeTaxi)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return client.Pending(1) != nil }, time.Second, time.Millisecond)

	second := client.Pending(1)
	second.Resolve(testutil.FixedRoute(second.Request, 9, 5200), nil)
	first := client.Pending(0)
	first.Resolve(testutil.FixedRoute(first.Request, 70, 5000), nil)
	require.NoError(t, c.Wait("d1"))

	snap, err := c.Snapshot("d1")
	require.NoError(t, err)
	tr := snap.Day.Activities[1].TravelFromPrevious
	assert.Equal(t, models.ModeTaxi, tr.Mode)
	assert.Equal(t, 9, tr.DurationMinutes)
}

func TestChangeTravelModeRejections(t *testing.T) {
	client := testutil.NewMockRouteClient()
	c, _ := newTestCoordinator(t, client)

	noCoords := models.Activity{ID: "x", Kind: models.KindPlace, Title: "Somewhere unmapped", DurationMin: 30}
	_, err := c.Open(context.Background(), models.Day{ID: "d1", Activities: []models.Activity{stop("a", 35.00), stop("b", 35.01), noCoords}})
	require.NoError(t, err)
	require.NoError(t, c.Wait("d1"))
	before, err := c.Snapshot("d1")
	require.NoError(t, err)
	calls := client.CallCount()

	tests := []struct {
		name     string
		activity string
		mode     models.TravelMode
		cause    error
	}{
		{"unsupported mode", "b", "rickshaw", travel.ErrUnsupportedMode},
		{"missing coordinates", "x", models.ModeCar, travel.ErrMissingCoordinates},
		{"no preceding place", "a", models.ModeCar, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.ChangeTravelMode("d1", tt.activity, tt.mode)
			require.ErrorIs(t, err, ErrModeChangeRejected)
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
			}
		})
	}

	after, err := c.Snapshot("d1")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version, "rejections change nothing")
	assert.Equal(t, calls, client.CallCount(), "rejections send nothing")

	_, err = c.ChangeTravelMode("d1", "missing", models.ModeCar)
	assert.ErrorIs(t, err, ErrActivityNotFound)
}

func TestMissingCoordinatesUseZeroSegment(t *testing.T) {
	client := testutil.NewMockRouteClient()
	c, _ := newTestCoordinator(t, client)

	noCoords := models.Activity{ID: "x", Kind: models.KindPlace, Title: "Somewhere unmapped", DurationMin: 30}
	state, err := c.Open(context.Background(), models.Day{ID: "d1", Activities: []models.Activity{stop("a", 35.00), noCoords}})
	require.NoError(t, err)
	require.NoError(t, c.Wait("d1"))

	assert.Equal(t, 0, client.CallCount())
	x := state.Day.Activities[1]
	require.NotNil(t, x.TravelFromPrevious)
	assert.Equal(t, 0, x.TravelFromPrevious.DurationMinutes)
	assert.Equal(t, "10:00", x.Schedule.ArrivalTime)
}

func TestResolvedLocationProvidesCoordinatesAndHours(t *testing.T) {
	client := testutil.NewMockRouteClient()
	resolver := &stubResolver{records: map[string]*models.Location{
		"loc-temple": {
			ID:          "loc-temple",
			Name:        "Temple",
			Coordinates: &models.Coordinates{Lat: 35.01, Lng: 135.75},
			OperatingHours: &models.OperatingHours{Periods: []models.OperatingPeriod{
				{Day: "tuesday", Open: "10:30", Close: "16:00"},
			}},
		},
	}}
	c := NewCoordinator(context.Background(), Config{Location: time.UTC}, Deps{Client: client, Resolver: resolver})
	t.Cleanup(c.Shutdown)

	temple := models.Activity{ID: "t", Kind: models.KindPlace, Title: "Temple", LocationID: "loc-temple", DurationMin: 45}
	_, err := c.Open(context.Background(), models.Day{ID: "d1", Date: "2026-10-13", Activities: []models.Activity{stop("a", 35.00), temple}})
	require.NoError(t, err)
	require.NoError(t, c.Wait("d1"))
	assert.Equal(t, 1, client.CallCount())

	snap, err := c.Snapshot("d1")
	require.NoError(t, err)
	tr := snap.Day.Activities[1]
	assert.Equal(t, "10:10", tr.Schedule.ArrivalTime)
	assert.Equal(t, models.StatusOutOfHours, tr.Schedule.Status)
	require.Len(t, snap.Conflicts, 1)
	assert.Equal(t, models.ConflictOutOfHours, snap.Conflicts[0].Kind)
	assert.Equal(t, "t", snap.Conflicts[0].ActivityID)
}

func TestInsertDeleteCopy(t *testing.T) {
	client := testutil.NewMockRouteClient()
	c, _ := newTestCoordinator(t, client)

	acts := []models.Activity{stop("a", 35.00), stop("b", 35.02)}
	_, err := c.Open(context.Background(), models.Day{ID: "d1", Activities: acts})
	require.NoError(t, err)
	require.NoError(t, c.Wait("d1"))
	base := client.CallCount()

	x := stop("x", 35.01)
	state, err := c.InsertActivity(context.Background(), "d1", x, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "x", "b"}, ids(state))
	require.NoError(t, c.Wait("d1"))
	all := append(append([]models.Activity{}, acts...), x)
	assert.Equal(t, []string{"a-x", "x-b"}, segmentKeys(client.Calls()[base:], all))

	_, err = c.InsertActivity(context.Background(), "d1", stop("x", 35.5), 0)
	assert.ErrorIs(t, err, ErrDuplicateActivity)

	state, newID, err := c.CopyActivity("d1", "x")
	require.NoError(t, err)
	assert.NotEqual(t, "x", newID)
	assert.Equal(t, []string{"a", "x", newID, "b"}, ids(state))
	require.NoError(t, c.Wait("d1"))

	base = client.CallCount()
	state, err = c.DeleteActivity("d1", "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", newID, "b"}, ids(state))
	require.NoError(t, c.Wait("d1"))
	assert.Equal(t, 1, client.CallCount()-base, "only the segment joining the neighbours is requested")

	_, err = c.DeleteActivity("d1", "x")
	assert.ErrorIs(t, err, ErrActivityNotFound)
}

func TestInsertAssignsIDAndAppends(t *testing.T) {
	c, _ := newTestCoordinator(t, testutil.NewMockRouteClient())
	_, err := c.Open(context.Background(), models.Day{ID: "d1", Activities: []models.Activity{stop("a", 35.00)}})
	require.NoError(t, err)

	n := models.Activity{Kind: models.KindNote, Title: "Check in"}
	state, err := c.InsertActivity(context.Background(), "d1", n, 99)
	require.NoError(t, err)
	require.Len(t, state.Day.Activities, 2)
	assert.NotEmpty(t, state.Day.Activities[1].ID)
	assert.Equal(t, models.KindNote, state.Day.Activities[1].Kind)
}

func TestManualStartTimeAndDuration(t *testing.T) {
	c, _ := newTestCoordinator(t, testutil.NewMockRouteClient())
	_, err := c.Open(context.Background(), models.Day{ID: "d1", Activities: []models.Activity{stop("a", 35.00), stop("b", 35.01)}})
	require.NoError(t, err)
	require.NoError(t, c.Wait("d1"))

	early := "09:30"
	state, err := c.SetManualStartTime("d1", "b", &early)
	require.NoError(t, err)
	assert.Equal(t, "09:30", state.Day.Activities[1].Schedule.ArrivalTime)
	var got []models.ConflictKind
	for _, cf := range state.Conflicts {
		got = append(got, cf.Kind)
	}
	assert.Equal(t, []models.ConflictKind{models.ConflictOverlap, models.ConflictInsufficientBuffer}, got)

	state, err = c.SetManualStartTime("d1", "b", nil)
	require.NoError(t, err)
	assert.Empty(t, state.Conflicts, "conflicts are fully replaced")
	assert.Nil(t, state.Day.Activities[1].ManualStartTime)

	bad := "25:99"
	_, err = c.SetManualStartTime("d1", "b", &bad)
	assert.ErrorIs(t, err, models.ErrInvalidClock)

	state, err = c.SetDuration("d1", "a", 90)
	require.NoError(t, err)
	assert.Equal(t, "10:40", state.Day.Activities[1].Schedule.ArrivalTime)

	_, err = c.SetDuration("d1", "a", -5)
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestOpenValidation(t *testing.T) {
	c, _ := newTestCoordinator(t, testutil.NewMockRouteClient())

	_, err := c.Open(context.Background(), models.Day{Activities: []models.Activity{stop("a", 35), stop("a", 35.1)}})
	assert.ErrorIs(t, err, ErrDuplicateActivity)

	_, err = c.Open(context.Background(), models.Day{Activities: []models.Activity{{ID: "z", Kind: "hotel"}}})
	assert.ErrorIs(t, err, ErrInvalidActivityKind)

	_, err = c.Open(context.Background(), models.Day{Date: "13/10/2026"})
	assert.ErrorIs(t, err, ErrInvalidDate)

	state, err := c.Open(context.Background(), models.Day{})
	require.NoError(t, err)
	assert.NotEmpty(t, state.Day.ID)
	assert.Empty(t, state.Conflicts)
}

func TestCloseDropsInFlightResults(t *testing.T) {
	client := testutil.NewMockRouteClient()
	client.Blocking = true
	client.IgnoreCancel = true
	c, pub := newTestCoordinator(t, client)

	_, err := c.Open(context.Background(), models.Day{ID: "d1", Activities: []models.Activity{stop("a", 35.00), stop("b", 35.01)}})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return client.Pending(0) != nil }, time.Second, time.Millisecond)

	c.mu.RLock()
	tl := c.days["d1"]
	c.mu.RUnlock()
	published := len(pub.all())

	require.NoError(t, c.Close("d1"))
	p := client.Pending(0)
	p.Resolve(testutil.FixedRoute(p.Request, 99, 1), nil)
	tl.recalc.Wait()

	assert.Len(t, pub.all(), published, "nothing is published after teardown")
	_, err = c.Snapshot("d1")
	assert.True(t, errors.Is(err, ErrDayNotFound))
	assert.ErrorIs(t, c.Close("d1"), ErrDayNotFound)
}

func TestDaysAreIndependent(t *testing.T) {
	client := testutil.NewMockRouteClient()
	c, _ := newTestCoordinator(t, client)

	for _, id := range []string{"d1", "d2"} {
		_, err := c.Open(context.Background(), models.Day{ID: id, Activities: []models.Activity{stop("a", 35.00), stop("b", 35.01)}})
		require.NoError(t, err)
	}
	require.NoError(t, c.Close("d1"))

	require.NoError(t, c.Wait("d2"))
	snap, err := c.Snapshot("d2")
	require.NoError(t, err)
	assert.False(t, snap.Day.Activities[1].TravelFromPrevious.IsEstimated)
}

func TestHyphenatedIDsKeepTheirOwnSegments(t *testing.T) {
	client := testutil.NewMockRouteClient()
	client.Respond = func(req routing.Request) (*routing.Route, error) {
		meters := int(travel.Distance(req.Origin, req.Destination))
		return testutil.FixedRoute(req, meters/100+1, meters), nil
	}
	metrics := &countingRecalcMetrics{}
	c := NewCoordinator(context.Background(), Config{Location: time.UTC}, Deps{Client: client, RecalcMetrics: metrics})
	t.Cleanup(c.Shutdown)

	// "a-b"->"c" and "a"->"b-c" share the display key "a-b-c"
	acts := []models.Activity{stop("a-b", 35.00), stop("c", 35.20), stop("a", 35.21), stop("b-c", 35.22)}
	_, err := c.Open(context.Background(), models.Day{ID: "d1", Activities: acts})
	require.NoError(t, err)
	require.NoError(t, c.Wait("d1"))

	assert.Equal(t, 3, client.CallCount())
	assert.Equal(t, 0, metrics.stale(), "no boundary supersedes another")

	snap, err := c.Snapshot("d1")
	require.NoError(t, err)
	for i := 1; i < len(snap.Day.Activities); i++ {
		prev, a := snap.Day.Activities[i-1], snap.Day.Activities[i]
		require.NotNil(t, a.TravelFromPrevious, "activity %s", a.ID)
		want := int(travel.Distance(*prev.Coordinates, *a.Coordinates))
		assert.Equal(t, want, a.TravelFromPrevious.DistanceMeters, "activity %s", a.ID)
	}

	// Deleting "a" must keep the unrelated "a-b"->"c" segment
	_, err = c.DeleteActivity("d1", "a")
	require.NoError(t, err)
	require.NoError(t, c.Wait("d1"))
	snap, err = c.Snapshot("d1")
	require.NoError(t, err)
	assert.Equal(t, int(travel.Distance(*acts[0].Coordinates, *acts[1].Coordinates)), snap.Day.Activities[1].TravelFromPrevious.DistanceMeters)
	assert.Equal(t, 4, client.CallCount(), "only c->b-c is requested")
}

type countingRecalcMetrics struct {
	mu       sync.Mutex
	discards int
}

func (m *countingRecalcMetrics) SegmentRequested(string) {}
func (m *countingRecalcMetrics) SegmentSettled(string)   {}

func (m *countingRecalcMetrics) StaleResultDiscarded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discards++
}

func (m *countingRecalcMetrics) stale() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.discards
}

func TestMidnightDayStartIsHonored(t *testing.T) {
	midnight := 0
	c := NewCoordinator(context.Background(), Config{DayStart: &midnight, Location: time.UTC}, Deps{Client: testutil.NewMockRouteClient()})
	t.Cleanup(c.Shutdown)

	state, err := c.Open(context.Background(), models.Day{ID: "d1", Activities: []models.Activity{stop("a", 35.00)}})
	require.NoError(t, err)
	assert.Equal(t, "00:00", state.Day.Activities[0].Schedule.ArrivalTime)

	unset := NewCoordinator(context.Background(), Config{Location: time.UTC}, Deps{Client: testutil.NewMockRouteClient()})
	t.Cleanup(unset.Shutdown)
	state, err = unset.Open(context.Background(), models.Day{ID: "d1", Activities: []models.Activity{stop("a", 35.00)}})
	require.NoError(t, err)
	assert.Equal(t, "09:00", state.Day.Activities[0].Schedule.ArrivalTime)
}

type countingResolver struct {
	mu    sync.Mutex
	calls []string
}

func (r *countingResolver) Resolve(_ context.Context, a *models.Activity, _ string) (*models.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, a.ID)
	return nil, nil
}

func TestEmbeddedCoordinatesSkipLookup(t *testing.T) {
	resolver := &countingResolver{}
	c := NewCoordinator(context.Background(), Config{Location: time.UTC}, Deps{Client: testutil.NewMockRouteClient(), Resolver: resolver})
	t.Cleanup(c.Shutdown)

	stored := stop("s", 35.02)
	stored.LocationID = "loc-s"
	unmapped := models.Activity{ID: "u", Kind: models.KindPlace, Title: "Unmapped", DurationMin: 30}
	_, err := c.Open(context.Background(), models.Day{ID: "d1", Activities: []models.Activity{stop("a", 35.00), stop("b", 35.01)}})
	require.NoError(t, err)
	assert.Empty(t, resolver.calls)

	_, err = c.InsertActivity(context.Background(), "d1", stop("x", 35.03), -1)
	require.NoError(t, err)
	assert.Empty(t, resolver.calls)

	_, err = c.InsertActivity(context.Background(), "d1", stored, -1)
	require.NoError(t, err)
	_, err = c.InsertActivity(context.Background(), "d1", unmapped, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"s", "u"}, resolver.calls, "stored records and unmapped places are still looked up")
}

func TestRefreshLocationReschedulesReferencingDays(t *testing.T) {
	client := testutil.NewMockRouteClient()
	resolver := &stubResolver{records: map[string]*models.Location{
		"loc-t": {
			ID:          "loc-t",
			Coordinates: &models.Coordinates{Lat: 35.01, Lng: 135.75},
			OperatingHours: &models.OperatingHours{Periods: []models.OperatingPeriod{
				{Day: "tuesday", Open: "10:30", Close: "16:00"},
			}},
		},
	}}
	pub := &recordingPublisher{}
	c := NewCoordinator(context.Background(), Config{Location: time.UTC}, Deps{Client: client, Resolver: resolver, Publisher: pub})
	t.Cleanup(c.Shutdown)

	temple := models.Activity{ID: "t", Kind: models.KindPlace, Title: "Temple", LocationID: "loc-t", DurationMin: 45}
	_, err := c.Open(context.Background(), models.Day{ID: "d1", Date: "2026-10-13", Activities: []models.Activity{stop("a", 35.00), temple, stop("c", 35.02)}})
	require.NoError(t, err)
	_, err = c.Open(context.Background(), models.Day{ID: "d2", Activities: []models.Activity{stop("x", 35.00), stop("y", 35.01)}})
	require.NoError(t, err)
	require.NoError(t, c.Wait("d1"))
	require.NoError(t, c.Wait("d2"))
	require.Equal(t, 3, client.CallCount())
	snap, err := c.Snapshot("d1")
	require.NoError(t, err)
	require.Len(t, snap.Conflicts, 1)

	resolver.records["loc-t"] = &models.Location{ID: "loc-t", Coordinates: &models.Coordinates{Lat: 35.05, Lng: 135.75}}
	n, err := c.RefreshLocation(context.Background(), "loc-t")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the day referencing the record is touched")
	require.NoError(t, c.Wait("d1"))

	calls := client.Calls()[3:]
	require.Len(t, calls, 2, "both segments touching the moved stop are re-requested")
	for _, call := range calls {
		assert.True(t, call.Origin.Lat == 35.05 || call.Destination.Lat == 35.05)
	}
	snap, err = c.Snapshot("d1")
	require.NoError(t, err)
	assert.Empty(t, snap.Conflicts, "new hours apply")
	assert.Equal(t, PhaseCorrected, snap.Phase)

	// Unchanged point: hours refresh without any routing
	resolver.records["loc-t"].OperatingHours = &models.OperatingHours{Periods: []models.OperatingPeriod{
		{Day: "tuesday", Open: "12:00", Close: "16:00"},
	}}
	_, err = c.RefreshLocation(context.Background(), "loc-t")
	require.NoError(t, err)
	require.NoError(t, c.Wait("d1"))
	assert.Equal(t, 5, client.CallCount())
	snap, err = c.Snapshot("d1")
	require.NoError(t, err)
	require.Len(t, snap.Conflicts, 1)
	assert.Equal(t, models.ConflictOutOfHours, snap.Conflicts[0].Kind)

	// Removed record: the stop loses its point and both legs drop to zero travel
	delete(resolver.records, "loc-t")
	_, err = c.RefreshLocation(context.Background(), "loc-t")
	require.NoError(t, err)
	require.NoError(t, c.Wait("d1"))
	assert.Equal(t, 5, client.CallCount())
	snap, err = c.Snapshot("d1")
	require.NoError(t, err)
	assert.Empty(t, snap.Pending)
	for _, a := range snap.Day.Activities[1:] {
		assert.Equal(t, 0, a.TravelFromPrevious.DurationMinutes, "activity %s", a.ID)
	}

	n, err = c.RefreshLocation(context.Background(), "loc-unknown")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
