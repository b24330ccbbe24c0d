package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mel-koku/koku-travel-sub004/internal/config"
	"github.com/mel-koku/koku-travel-sub004/internal/database"
	"github.com/mel-koku/koku-travel-sub004/internal/geocoding"
	"github.com/mel-koku/koku-travel-sub004/internal/handlers"
	"github.com/mel-koku/koku-travel-sub004/internal/locations"
	"github.com/mel-koku/koku-travel-sub004/internal/metrics"
	"github.com/mel-koku/koku-travel-sub004/internal/publisher"
	"github.com/mel-koku/koku-travel-sub004/internal/routing"
	"github.com/mel-koku/koku-travel-sub004/internal/server"
	"github.com/mel-koku/koku-travel-sub004/internal/sqlite"
	"github.com/mel-koku/koku-travel-sub004/internal/timeline"
	"github.com/mel-koku/koku-travel-sub004/internal/travel"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	log.Printf("Initializing data store...")
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize data store: %w", err)
	}
	defer store.Close()

	collector := metrics.NewCollector()
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = collector.Serve(cfg.MetricsAddr)
	}

	routeCache := store.RouteCache()
	if cfg.RedisURL != "" {
		redisCache, err := database.NewRedisRouteCache(ctx, cfg.RedisURL, cfg.RouteCacheTTL)
		if err != nil {
			return fmt.Errorf("failed to connect route cache: %w", err)
		}
		defer redisCache.Close()
		routeCache = redisCache
		log.Printf("Route cache: redis ttl=%s", cfg.RouteCacheTTL)
	} else {
		log.Printf("Route cache: sqlite")
	}

	client := routing.NewOSRMClient(routing.OSRMConfig{
		BaseURL:    cfg.OSRMURL,
		Timeout:    cfg.RouteTimeout,
		RatePerSec: cfg.RouteRate,
		Cache:      routeCache,
		Metrics:    collector,
	})

	resolvers := locations.Chain{&locations.RepositoryResolver{Repo: store.Locations()}}
	var geocoder geocoding.Geocoder
	if cfg.NominatimURL != "" {
		geocoder = geocoding.NewNominatimGeocoder(cfg.NominatimURL)
		resolvers = append(resolvers, geocoder)
	}

	tables, err := locations.LoadFallbackTables(ctx, store.CoordinateTables())
	if err != nil {
		return fmt.Errorf("failed to load coordinate tables: %w", err)
	}

	deps := timeline.Deps{
		Resolver:      resolvers,
		Coordinates:   locations.NewCoordinateResolver(tables),
		Client:        client,
		Estimator:     travel.NewEstimator(),
		Metrics:       collector,
		RecalcMetrics: collector,
	}

	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, collector)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer pub.Close()
		deps.Publisher = pub
		log.Printf("[NATS] Publishing on %s", pub.Subject("<day>"))
	}

	coordinator := timeline.NewCoordinator(ctx, timeline.Config{
		DayStart:    &cfg.DayStart,
		DefaultMode: cfg.DefaultMode,
		Location:    cfg.Location,
	}, deps)

	serverCfg := server.Config{
		Addr:           cfg.ServerAddr,
		AllowedOrigins: cfg.CORSOrigins,
	}
	if metricsSrv == nil {
		serverCfg.Metrics = collector.Handler()
	}
	srv := server.New(serverCfg, &handlers.Handler{
		DB:         store,
		Geocoder:   geocoder,
		Timelines:  coordinator,
		RouteCache: routeCache,
	})

	actualAddr, err := srv.Start()
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	log.Printf("API listening on http://%s/api/v1", actualAddr)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	log.Printf("Received signal %v, starting graceful shutdown", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("could not gracefully shutdown the server: %w", err)
	}
	coordinator.Shutdown()
	stop()
	if metricsSrv != nil {
		metricsSrv.Shutdown(shutdownCtx)
	}

	log.Println("Server stopped")
	return nil
}
