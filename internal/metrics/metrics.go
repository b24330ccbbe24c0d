package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	RouteRequests *prometheus.CounterVec   // mode, outcome
	RouteDuration *prometheus.HistogramVec // mode

	SegmentsRequested *prometheus.CounterVec // mode
	SegmentsSettled   *prometheus.CounterVec // state: resolved|fallback
	StaleDiscarded    prometheus.Counter
	SegmentsInvalid   prometheus.Counter

	Recomputations prometheus.Counter
	Conflicts      prometheus.Histogram
	OpenDays       prometheus.Gauge

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		RouteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "itinerary_route_requests_total",
			Help: "Routing service requests by mode and outcome.",
		}, []string{"mode", "outcome"}),
		RouteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "itinerary_route_request_duration_seconds",
			Help:    "Latency of routing requests, cache hits included.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"mode"}),
		SegmentsRequested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "itinerary_segments_requested_total",
			Help: "Segment recalculations started.",
		}, []string{"mode"}),
		SegmentsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "itinerary_segments_settled_total",
			Help: "Segment recalculations settled, by final state.",
		}, []string{"state"}),
		StaleDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "itinerary_stale_results_discarded_total",
			Help: "Routing results dropped because a newer request superseded them.",
		}),
		SegmentsInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "itinerary_segments_invalidated_total",
			Help: "Segments invalidated by sequence changes.",
		}),
		Recomputations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "itinerary_schedule_recomputations_total",
			Help: "Schedule and conflict computation passes.",
		}),
		Conflicts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "itinerary_conflicts_per_pass",
			Help:    "Conflicts found per computation pass.",
			Buckets: []float64{0, 1, 2, 4, 8, 16},
		}),
		OpenDays: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "itinerary_open_days",
			Help: "Days currently held by the coordinator.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "itinerary_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "itinerary_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "itinerary_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "itinerary_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
	}

	reg.MustRegister(
		c.RouteRequests, c.RouteDuration,
		c.SegmentsRequested, c.SegmentsSettled, c.StaleDiscarded, c.SegmentsInvalid,
		c.Recomputations, c.Conflicts, c.OpenDays,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
	)

	return c
}

// routing client

func (c *Collector) RouteRequestObserve(mode, outcome string, d time.Duration) {
	c.RouteRequests.WithLabelValues(mode, outcome).Inc()
	c.RouteDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// segment recalculator

func (c *Collector) SegmentRequested(mode string) { c.SegmentsRequested.WithLabelValues(mode).Inc() }
func (c *Collector) SegmentSettled(state string)  { c.SegmentsSettled.WithLabelValues(state).Inc() }
func (c *Collector) StaleResultDiscarded()        { c.StaleDiscarded.Inc() }

// coordinator

func (c *Collector) ScheduleComputed(conflicts int) {
	c.Recomputations.Inc()
	c.Conflicts.Observe(float64(conflicts))
}

func (c *Collector) SegmentsInvalidated(n int) { c.SegmentsInvalid.Add(float64(n)) }
func (c *Collector) DaysOpen(n int)            { c.OpenDays.Set(float64(n)) }

// publisher

func (c *Collector) NATSPublishedInc()              { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc()             { c.NATSPublishErrs.Inc() }
func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }
func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[METRICS] Server error: %v", err)
		}
	}()
	log.Printf("[METRICS] Listening on %s", addr)
	return srv
}
