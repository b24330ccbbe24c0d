package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mel-koku/koku-travel-sub004/internal/database"
	"github.com/mel-koku/koku-travel-sub004/internal/models"
)

type Config struct {
	ServerAddr string
	DBPath     string

	OSRMURL      string
	NominatimURL string
	RouteTimeout time.Duration
	RouteRate    float64

	DayStart    int // minutes since midnight
	DefaultMode models.TravelMode
	Location    *time.Location

	RedisURL      string
	RouteCacheTTL time.Duration

	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool

	MetricsAddr string
	CORSOrigins []string
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{
		ServerAddr:        getenvDefault("SERVER_ADDR", "127.0.0.1:8080"),
		OSRMURL:           strings.TrimRight(getenvDefault("OSRM_URL", "https://router.project-osrm.org"), "/"),
		RedisURL:          os.Getenv("REDIS_URL"),
		NATSURL:           os.Getenv("NATS_URL"),
		NATSSubjectPrefix: getenvDefault("NATS_SUBJECT_PREFIX", "itinerary"),
		MetricsAddr:       os.Getenv("METRICS_ADDR"),
	}

	// An explicitly empty NOMINATIM_URL disables name search
	if v, ok := os.LookupEnv("NOMINATIM_URL"); ok {
		cfg.NominatimURL = strings.TrimRight(v, "/")
	} else {
		cfg.NominatimURL = "https://nominatim.openstreetmap.org"
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		p, err := database.GetDefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve default DB_PATH: %w", err)
		}
		cfg.DBPath = p
	} else {
		p, err := database.ExpandPath(dbPath)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PATH: %w", err)
		}
		cfg.DBPath = p
	}

	if v := os.Getenv("ROUTE_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid ROUTE_TIMEOUT_MS: %q", v)
		}
		cfg.RouteTimeout = time.Duration(ms) * time.Millisecond
	} else {
		cfg.RouteTimeout = 8 * time.Second
	}

	if v := os.Getenv("ROUTE_RATE_PER_SEC"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("invalid ROUTE_RATE_PER_SEC: %q", v)
		}
		cfg.RouteRate = f
	} else {
		cfg.RouteRate = 5
	}

	start, err := models.ParseClock(getenvDefault("DAY_START_TIME", "09:00"))
	if err != nil {
		return nil, fmt.Errorf("invalid DAY_START_TIME: %w", err)
	}
	cfg.DayStart = start

	mode, err := models.ParseTravelMode(getenvDefault("DEFAULT_TRAVEL_MODE", string(models.ModeWalk)))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_TRAVEL_MODE: %w", err)
	}
	cfg.DefaultMode = mode

	if v := os.Getenv("ROUTE_CACHE_TTL_HOURS"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil || h <= 0 {
			return nil, fmt.Errorf("invalid ROUTE_CACHE_TTL_HOURS: %q", v)
		}
		cfg.RouteCacheTTL = time.Duration(h) * time.Hour
	} else {
		cfg.RouteCacheTTL = 7 * 24 * time.Hour
	}

	if v := os.Getenv("LOG_NATS_SUBJECTS"); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "t", "yes", "y", "on":
			cfg.LogNATSSubjects = true
		}
	}

	for _, o := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	tzName := firstNonEmpty(os.Getenv("DEFAULT_TIMEZONE"), os.Getenv("TZ"))
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
