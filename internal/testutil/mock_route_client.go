package testutil

import (
	"context"
	"sync"

	"github.com/mel-koku/koku-travel-sub004/internal/models"
	"github.com/mel-koku/koku-travel-sub004/internal/routing"
)

// PendingRoute is a blocked call on a MockRouteClient waiting to be resolved
type PendingRoute struct {
	Request routing.Request
	done    chan routeResult
}

type routeResult struct {
	route *routing.Route
	err   error
}

// Resolve completes the call with the given result
func (p *PendingRoute) Resolve(route *routing.Route, err error) {
	p.done <- routeResult{route: route, err: err}
}

// MockRouteClient is a controllable routing.Client.
// By default it answers immediately via Respond (or a fixed 10 minute route).
// With Blocking set every call parks until the test resolves it.
type MockRouteClient struct {
	mu      sync.Mutex
	calls   []routing.Request
	pending []*PendingRoute

	// Respond computes the answer for non-blocking calls
	Respond func(req routing.Request) (*routing.Route, error)
	// Blocking parks every call until Resolve is called on its PendingRoute
	Blocking bool
	// IgnoreCancel lets blocked calls outlive their context, the way a
	// network response can land after the caller gave up
	IgnoreCancel bool
}

func NewMockRouteClient() *MockRouteClient {
	return &MockRouteClient{}
}

// FixedRoute returns a non-estimated two-point route
func FixedRoute(req routing.Request, minutes, meters int) *routing.Route {
	return &routing.Route{
		Path:            []models.Coordinates{req.Origin, req.Destination},
		DurationMinutes: minutes,
		DistanceMeters:  meters,
		Instructions:    []string{"Depart", "Arrive at destination"},
	}
}

func (m *MockRouteClient) Route(ctx context.Context, req routing.Request) (*routing.Route, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	if !m.Blocking {
		respond := m.Respond
		m.mu.Unlock()
		if respond != nil {
			return respond(req)
		}
		return FixedRoute(req, 10, 800), nil
	}
	p := &PendingRoute{Request: req, done: make(chan routeResult, 1)}
	m.pending = append(m.pending, p)
	ignoreCancel := m.IgnoreCancel
	m.mu.Unlock()

	if ignoreCancel {
		r := <-p.done
		return r.route, r.err
	}
	select {
	case r := <-p.done:
		return r.route, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Calls returns a copy of every request received so far
func (m *MockRouteClient) Calls() []routing.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]routing.Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of requests received so far
func (m *MockRouteClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Pending returns the i-th blocked call, or nil if it has not arrived yet
func (m *MockRouteClient) Pending(i int) *PendingRoute {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.pending) {
		return nil
	}
	return m.pending[i]
}
