package travel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mel-koku/koku-travel-sub004/internal/models"
	"github.com/mel-koku/koku-travel-sub004/internal/routing"
)

var (
	ErrUnsupportedMode    = errors.New("unsupported travel mode")
	ErrMissingCoordinates = errors.New("segment endpoint has no coordinates")
	ErrClosed             = errors.New("recalculator closed")
)

// State is the lifecycle state of one segment
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateResolved   State = "resolved"
	StateFallback   State = "fallback"
)

// SegmentRequest asks for the travel between two consecutive place activities
type SegmentRequest struct {
	FromID        string
	ToID          string
	Origin        *models.Coordinates
	Destination   *models.Coordinates
	Mode          models.TravelMode
	DepartureTime *time.Time
	Timezone      string
}

// Key returns the segment the request routes
func (r SegmentRequest) Key() models.Segment {
	return models.Segment{From: r.FromID, To: r.ToID}
}

// Validate checks the preconditions for a transition to requesting
func (r SegmentRequest) Validate() error {
	if !r.Mode.Supported() {
		return fmt.Errorf("%w: %q", ErrUnsupportedMode, r.Mode)
	}
	if r.Origin == nil || r.Destination == nil {
		return fmt.Errorf("%w: %s", ErrMissingCoordinates, r.Key())
	}
	return nil
}

// Outcome is the settled result of one request
type Outcome struct {
	Key    models.Segment
	FromID string
	ToID   string
	Token  uint64
	State  State
	Travel models.Travel
	// Err is the routing failure behind a fallback
	Err error
}

// Metrics receives segment lifecycle events
type Metrics interface {
	SegmentRequested(mode string)
	SegmentSettled(state string)
	StaleResultDiscarded()
}

type segment struct {
	token  uint64
	state  State
	cancel context.CancelFunc
}

// Recalculator owns the request lifecycle of every segment of one day.
// At most one request per segment key is outstanding; a newer Start
// cancels the older request and issues a new token. Results carrying an
// old token are dropped.
type Recalculator struct {
	client    routing.Client
	estimator *Estimator
	metrics   Metrics

	mu       sync.Mutex
	segments map[models.Segment]*segment
	// generation is shared by all segments so a token is never reused,
	// even after a segment is cancelled and recreated
	generation uint64
	closed     bool
	// inflight counts request goroutines that have not returned; idle is
	// signalled on r.mu when it drops to zero
	inflight int
	idle     *sync.Cond
}

// NewRecalculator creates a recalculator. metrics may be nil.
func NewRecalculator(client routing.Client, estimator *Estimator, metrics Metrics) *Recalculator {
	if estimator == nil {
		estimator = NewEstimator()
	}
	r := &Recalculator{
		client:    client,
		estimator: estimator,
		metrics:   metrics,
		segments:  make(map[models.Segment]*segment),
	}
	r.idle = sync.NewCond(&r.mu)
	return r
}

// Estimator returns the fallback authority used by this recalculator
func (r *Recalculator) Estimator() *Estimator {
	return r.estimator
}

// Start moves the segment to requesting and launches the route request.
// A rejected request leaves the segment untouched. onDone runs on the
// request goroutine only if the outcome was still current when it settled;
// callers applying it to shared state must re-check IsCurrent under their
// own lock.
func (r *Recalculator) Start(ctx context.Context, req SegmentRequest, onDone func(Outcome)) (uint64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	key := req.Key()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, ErrClosed
	}
	seg, ok := r.segments[key]
	if !ok {
		seg = &segment{state: StateIdle}
		r.segments[key] = seg
	}
	if seg.cancel != nil {
		seg.cancel()
		log.Printf("[SEGMENT] Superseded in-flight request: key=%s token=%d", key, seg.token)
	}
	r.generation++
	seg.token = r.generation
	token := seg.token
	reqCtx, cancel := context.WithCancel(ctx)
	seg.cancel = cancel
	seg.state = StateRequesting
	r.inflight++
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SegmentRequested(string(req.Mode))
	}
	log.Printf("[SEGMENT] Requesting: key=%s mode=%s token=%d", key, req.Mode, token)

	go func() {
		defer r.done()
		defer cancel()

		outcome := r.run(reqCtx, req, token)

		r.mu.Lock()
		current := r.segments[key]
		if current == nil || current.token != token {
			r.mu.Unlock()
			log.Printf("[SEGMENT] Discarded stale result: key=%s token=%d", key, token)
			if r.metrics != nil {
				r.metrics.StaleResultDiscarded()
			}
			return
		}
		current.state = outcome.State
		current.cancel = nil
		r.mu.Unlock()

		if r.metrics != nil {
			r.metrics.SegmentSettled(string(outcome.State))
		}
		if onDone != nil {
			onDone(outcome)
		}
	}()

	return token, nil
}

func (r *Recalculator) run(ctx context.Context, req SegmentRequest, token uint64) Outcome {
	outcome := Outcome{Key: req.Key(), FromID: req.FromID, ToID: req.ToID, Token: token}

	route, err := r.client.Route(ctx, routing.Request{
		Origin:        *req.Origin,
		Destination:   *req.Destination,
		Mode:          req.Mode,
		DepartureTime: req.DepartureTime,
		Timezone:      req.Timezone,
	})
	if err != nil || route == nil {
		if err == nil {
			err = errors.New("empty route response")
		}
		outcome.State = StateFallback
		outcome.Travel = r.estimator.Estimate(*req.Origin, *req.Destination, req.Mode)
		outcome.Err = err
		if ctx.Err() == nil {
			log.Printf("[SEGMENT] Fallback estimate: key=%s mode=%s duration_min=%d err=%v",
				outcome.Key, req.Mode, outcome.Travel.DurationMinutes, err)
		}
		return outcome
	}

	outcome.State = StateResolved
	if route.IsEstimated && len(route.Path) == 0 {
		outcome.Travel = r.estimator.Estimate(*req.Origin, *req.Destination, req.Mode)
		return outcome
	}
	outcome.Travel = models.Travel{
		Mode:            req.Mode,
		DurationMinutes: route.DurationMinutes,
		DistanceMeters:  route.DistanceMeters,
		Path:            route.Path,
		Instructions:    route.Instructions,
		IsEstimated:     route.IsEstimated,
	}
	return outcome
}

// IsCurrent reports whether token is still the latest for the segment
func (r *Recalculator) IsCurrent(key models.Segment, token uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	seg, ok := r.segments[key]
	return ok && seg.token == token && !r.closed
}

// State returns the lifecycle state of a segment (idle if unknown)
func (r *Recalculator) State(key models.Segment) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seg, ok := r.segments[key]; ok {
		return seg.state
	}
	return StateIdle
}

// Cancel drops a segment that no longer exists in the day. Any in-flight
// result for it becomes stale.
func (r *Recalculator) Cancel(key models.Segment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seg, ok := r.segments[key]
	if !ok {
		return
	}
	if seg.cancel != nil {
		seg.cancel()
		log.Printf("[SEGMENT] Cancelled: key=%s token=%d", key, seg.token)
	}
	delete(r.segments, key)
}

// Close cancels every outstanding request and rejects further Starts
func (r *Recalculator) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	n := 0
	for key, seg := range r.segments {
		if seg.cancel != nil {
			seg.cancel()
			n++
		}
		delete(r.segments, key)
	}
	log.Printf("[SEGMENT] Closed: cancelled=%d", n)
}

func (r *Recalculator) done() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight--
	if r.inflight == 0 {
		r.idle.Broadcast()
	}
}

// Wait blocks until no request goroutine is running. Starts that overlap
// a Wait are waited for as well.
func (r *Recalculator) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.inflight > 0 {
		r.idle.Wait()
	}
}

// ZeroSegment is the travel used when an endpoint has no coordinates
func ZeroSegment(mode models.TravelMode) models.Travel {
	return models.Travel{Mode: mode, IsEstimated: true}
}
