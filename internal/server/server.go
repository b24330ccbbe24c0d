package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/mel-koku/koku-travel-sub004/internal/handlers"
)

// Server wraps the HTTP server and the API handler
type Server struct {
	httpServer *http.Server
	handler    *handlers.Handler
	listener   net.Listener
	addr       string
}

// Config holds server configuration
type Config struct {
	Addr string // e.g., "127.0.0.1:8080" or "127.0.0.1:0" for random port
	// AllowedOrigins lists CORS origins; empty allows localhost only
	AllowedOrigins []string
	// Metrics, when set, is mounted on GET /metrics
	Metrics http.Handler
}

// New creates a server around the handler (does not start it)
func New(cfg Config, handler *handlers.Handler) *Server {
	router := setupRoutes(handler, cfg.Metrics)

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      loggingMiddleware(corsMiddleware(cfg.AllowedOrigins).Handler(router)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		handler:    handler,
		addr:       cfg.Addr,
	}
}

// Handler returns the root HTTP handler including middleware
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the server and returns the actual address (useful for random port)
func (s *Server) Start() (string, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = listener
	actualAddr := listener.Addr().String()
	log.Printf("Starting server on %s", actualAddr)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	return actualAddr, nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// setupRoutes configures all HTTP routes
func setupRoutes(h *handlers.Handler, metrics http.Handler) *httprouter.Router {
	router := httprouter.New()

	router.HandlerFunc(http.MethodGet, "/api/v1/health", h.HandleHealthCheck)

	router.HandlerFunc(http.MethodPost, "/api/v1/days", h.HandleOpenDay)
	router.HandlerFunc(http.MethodGet, "/api/v1/days/:day", h.HandleGetDay)
	router.HandlerFunc(http.MethodDelete, "/api/v1/days/:day", h.HandleCloseDay)
	router.HandlerFunc(http.MethodPut, "/api/v1/days/:day/sequence", h.HandleSequenceChange)
	router.HandlerFunc(http.MethodPost, "/api/v1/days/:day/activities", h.HandleInsertActivity)
	router.HandlerFunc(http.MethodDelete, "/api/v1/days/:day/activities/:activity", h.HandleDeleteActivity)
	router.HandlerFunc(http.MethodPost, "/api/v1/days/:day/activities/:activity/copy", h.HandleCopyActivity)
	router.HandlerFunc(http.MethodPut, "/api/v1/days/:day/activities/:activity/travel-mode", h.HandleChangeTravelMode)
	router.HandlerFunc(http.MethodPut, "/api/v1/days/:day/activities/:activity/manual-start", h.HandleSetManualStart)
	router.HandlerFunc(http.MethodPut, "/api/v1/days/:day/activities/:activity/duration", h.HandleSetDuration)

	router.HandlerFunc(http.MethodGet, "/api/v1/locations", h.HandleListLocations)
	router.HandlerFunc(http.MethodPost, "/api/v1/locations", h.HandleUpsertLocation)
	router.HandlerFunc(http.MethodGet, "/api/v1/locations/:id", h.HandleGetLocation)
	router.HandlerFunc(http.MethodDelete, "/api/v1/locations/:id", h.HandleDeleteLocation)
	router.HandlerFunc(http.MethodGet, "/api/v1/location-search", h.HandleLocationSearch)
	router.HandlerFunc(http.MethodDelete, "/api/v1/route-cache", h.HandleClearRouteCache)

	if metrics != nil {
		router.Handler(http.MethodGet, "/metrics", metrics)
	}

	return router
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(lrw, r)

		duration := time.Since(start)
		log.Printf("%s %s %d %v", r.Method, r.URL.Path, lrw.statusCode, duration)
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func corsMiddleware(allowed []string) *cors.Cors {
	opts := cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}
	if len(allowed) > 0 {
		opts.AllowedOrigins = allowed
	} else {
		// Only allow localhost origins (local development)
		opts.AllowOriginFunc = func(origin string) bool {
			return strings.HasPrefix(origin, "http://localhost:") ||
				strings.HasPrefix(origin, "http://127.0.0.1:")
		}
	}
	return cors.New(opts)
}
