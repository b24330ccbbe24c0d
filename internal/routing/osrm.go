package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mel-koku/koku-travel-sub004/internal/database"
	"github.com/mel-koku/koku-travel-sub004/internal/models"
)

// osrmProfiles maps road modes onto OSRM profiles. The transit family
// has no road network to route on.
var osrmProfiles = map[models.TravelMode]string{
	models.ModeWalk:    "foot",
	models.ModeBicycle: "bike",
	models.ModeCar:     "driving",
	models.ModeTaxi:    "driving",
}

// OSRMConfig configures the OSRM client
type OSRMConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
	Cache      database.RouteCacheRepository
	Metrics    Metrics
}

type osrmClient struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	cache      database.RouteCacheRepository
	metrics    Metrics
}

type osrmRouteResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Routes  []osrmRoute `json:"routes"`
}

type osrmRoute struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Geometry struct {
		Coordinates [][]float64 `json:"coordinates"`
	} `json:"geometry"`
	Legs []struct {
		Steps []osrmStep `json:"steps"`
	} `json:"legs"`
}

type osrmStep struct {
	Name     string `json:"name"`
	Maneuver struct {
		Type     string `json:"type"`
		Modifier string `json:"modifier"`
	} `json:"maneuver"`
}

// NewOSRMClient creates an OSRM route client with caching and rate limiting
func NewOSRMClient(cfg OSRMConfig) Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &osrmClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{},
		timeout:    timeout,
		limiter:    rate.NewLimiter(limit, 1),
		cache:      cfg.Cache,
		metrics:    cfg.Metrics,
	}
}

func (c *osrmClient) observe(mode models.TravelMode, outcome string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RouteRequestObserve(string(mode), outcome, time.Since(start))
	}
}

func (c *osrmClient) Route(ctx context.Context, req Request) (*Route, error) {
	start := time.Now()

	if models.SamePoint(req.Origin, req.Destination) {
		return &Route{Path: []models.Coordinates{req.Origin}}, nil
	}

	if req.Mode.IsTransit() {
		c.observe(req.Mode, OutcomeUnsupported, start)
		return &Route{IsEstimated: true}, nil
	}
	profile, ok := osrmProfiles[req.Mode]
	if !ok {
		c.observe(req.Mode, OutcomeUnsupported, start)
		return nil, &ErrRouteRequestFailed{
			Origin: req.Origin,
			Dest:   req.Destination,
			Mode:   req.Mode,
			Reason: "no routing profile",
		}
	}

	if c.cache != nil {
		cached, err := c.cache.Get(ctx, req.Origin, req.Destination, req.Mode)
		if err != nil {
			log.Printf("[ERROR] Route cache read failed: mode=%s err=%v", req.Mode, err)
		} else if cached != nil {
			c.observe(req.Mode, OutcomeCacheHit, start)
			return &Route{
				Path:            cached.Path,
				DurationMinutes: cached.DurationMinutes,
				DistanceMeters:  cached.DistanceMeters,
				Instructions:    cached.Instructions,
			}, nil
		}
	}

	route, err := c.fetch(ctx, profile, req)
	if err != nil {
		var rerr *ErrRouteRequestFailed
		if errors.As(err, &rerr) && rerr.Timeout {
			c.observe(req.Mode, OutcomeTimeout, start)
		} else {
			c.observe(req.Mode, OutcomeError, start)
		}
		return nil, err
	}
	if route.IsEstimated {
		c.observe(req.Mode, OutcomeNoRoute, start)
		return route, nil
	}
	c.observe(req.Mode, OutcomeOK, start)

	if c.cache != nil {
		entry := &models.RouteCacheEntry{
			Origin:          req.Origin,
			Destination:     req.Destination,
			Mode:            req.Mode,
			DurationMinutes: route.DurationMinutes,
			DistanceMeters:  route.DistanceMeters,
			Path:            route.Path,
			Instructions:    route.Instructions,
		}
		if err := c.cache.Set(ctx, entry); err != nil {
			log.Printf("[ERROR] Route cache write failed: mode=%s err=%v", req.Mode, err)
		}
	}

	return route, nil
}

func (c *osrmClient) fetch(ctx context.Context, profile string, req Request) (*Route, error) {
	fail := func(reason string, timeout bool) error {
		return &ErrRouteRequestFailed{
			Origin:  req.Origin,
			Dest:    req.Destination,
			Mode:    req.Mode,
			Reason:  reason,
			Timeout: timeout,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fail(err.Error(), errors.Is(err, context.DeadlineExceeded))
	}

	queryURL := fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson&steps=true",
		c.baseURL, profile, req.Origin.Lng, req.Origin.Lat, req.Destination.Lng, req.Destination.Lat)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		log.Printf("[ERROR] Failed to create OSRM request: mode=%s err=%v", req.Mode, err)
		return nil, fail(err.Error(), false)
	}

	log.Printf("[OSRM] Route request: mode=%s profile=%s origin=(%.6f,%.6f) dest=(%.6f,%.6f)",
		req.Mode, profile, req.Origin.Lat, req.Origin.Lng, req.Destination.Lat, req.Destination.Lng)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		timeout := isTimeout(err)
		log.Printf("[ERROR] OSRM API request failed: mode=%s timeout=%t err=%v", req.Mode, timeout, err)
		return nil, fail(err.Error(), timeout)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		timeout := isTimeout(err)
		log.Printf("[ERROR] Failed to read OSRM response: mode=%s err=%v", req.Mode, err)
		return nil, fail(err.Error(), timeout)
	}

	var osrmResp osrmRouteResponse
	decodeErr := json.Unmarshal(body, &osrmResp)

	// OSRM answers NoRoute/NoSegment with a 400; that is a definitive answer, not a failure
	if decodeErr == nil && (osrmResp.Code == "NoRoute" || osrmResp.Code == "NoSegment") {
		log.Printf("[OSRM] No route: mode=%s code=%s", req.Mode, osrmResp.Code)
		return &Route{IsEstimated: true}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("[ERROR] OSRM API error: mode=%s status=%d body=%s", req.Mode, resp.StatusCode, string(body))
		return nil, fail(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)), false)
	}
	if decodeErr != nil {
		log.Printf("[ERROR] Failed to decode OSRM response: mode=%s err=%v", req.Mode, decodeErr)
		return nil, fail(decodeErr.Error(), false)
	}
	if osrmResp.Code != "Ok" || len(osrmResp.Routes) == 0 {
		log.Printf("[ERROR] OSRM returned error code: mode=%s code=%s message=%s", req.Mode, osrmResp.Code, osrmResp.Message)
		return nil, fail(fmt.Sprintf("OSRM error: %s", osrmResp.Code), false)
	}

	r := osrmResp.Routes[0]
	route := &Route{
		DurationMinutes: int(math.Ceil(r.Duration / 60)),
		DistanceMeters:  int(math.Round(r.Distance)),
	}
	for _, pt := range r.Geometry.Coordinates {
		if len(pt) < 2 {
			continue
		}
		route.Path = append(route.Path, models.Coordinates{Lat: pt[1], Lng: pt[0]})
	}
	for _, leg := range r.Legs {
		for _, step := range leg.Steps {
			if text := instruction(step); text != "" {
				route.Instructions = append(route.Instructions, text)
			}
		}
	}

	log.Printf("[OSRM] Route response: mode=%s duration_min=%d distance_m=%d points=%d",
		req.Mode, route.DurationMinutes, route.DistanceMeters, len(route.Path))
	return route, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// instruction renders an OSRM step as "Turn left onto Shijo-dori"
func instruction(s osrmStep) string {
	switch s.Maneuver.Type {
	case "":
		return ""
	case "depart":
		if s.Name != "" {
			return "Head out on " + s.Name
		}
		return "Depart"
	case "arrive":
		return "Arrive at destination"
	}

	var b strings.Builder
	b.WriteString(strings.ToUpper(s.Maneuver.Type[:1]))
	b.WriteString(s.Maneuver.Type[1:])
	if s.Maneuver.Modifier != "" {
		b.WriteString(" ")
		b.WriteString(s.Maneuver.Modifier)
	}
	if s.Name != "" {
		b.WriteString(" onto ")
		b.WriteString(s.Name)
	}
	return b.String()
}
