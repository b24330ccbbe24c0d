package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mel-koku/koku-travel-sub004/internal/models"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SERVER_ADDR", "DB_PATH", "OSRM_URL", "ROUTE_TIMEOUT_MS", "ROUTE_RATE_PER_SEC",
		"DAY_START_TIME", "DEFAULT_TRAVEL_MODE", "DEFAULT_TIMEZONE", "TZ", "REDIS_URL", "ROUTE_CACHE_TTL_HOURS",
		"NATS_URL", "NATS_SUBJECT_PREFIX", "LOG_NATS_SUBJECTS", "METRICS_ADDR", "CORS_ORIGINS",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("NOMINATIM_URL", "")
	os.Unsetenv("NOMINATIM_URL")
	t.Setenv("HOME", t.TempDir())
	// run from an empty directory so no .env is picked up
	chdir(t, t.TempDir())
}

// chdir changes the working directory for the duration of the test
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.ServerAddr)
	assert.Equal(t, "https://router.project-osrm.org", cfg.OSRMURL)
	assert.Equal(t, "https://nominatim.openstreetmap.org", cfg.NominatimURL)
	assert.Equal(t, 8*time.Second, cfg.RouteTimeout)
	assert.Equal(t, 5.0, cfg.RouteRate)
	assert.Equal(t, 9*60, cfg.DayStart)
	assert.Equal(t, models.ModeWalk, cfg.DefaultMode)
	assert.Equal(t, 168*time.Hour, cfg.RouteCacheTTL)
	assert.Equal(t, "itinerary", cfg.NATSSubjectPrefix)
	assert.Equal(t, time.Local, cfg.Location)
	assert.Equal(t, ".koku-travel", filepath.Base(filepath.Dir(cfg.DBPath)))
	assert.Empty(t, cfg.RedisURL)
	assert.Empty(t, cfg.NATSURL)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Empty(t, cfg.CORSOrigins)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_ADDR", ":9000")
	t.Setenv("OSRM_URL", "http://osrm.local:5000/")
	t.Setenv("NOMINATIM_URL", "")
	t.Setenv("ROUTE_TIMEOUT_MS", "2500")
	t.Setenv("ROUTE_RATE_PER_SEC", "0.5")
	t.Setenv("DAY_START_TIME", "08:30")
	t.Setenv("DEFAULT_TRAVEL_MODE", "Transit")
	t.Setenv("TZ", "Asia/Tokyo")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("ROUTE_CACHE_TTL_HOURS", "24")
	t.Setenv("NATS_URL", "nats://127.0.0.1:4222")
	t.Setenv("LOG_NATS_SUBJECTS", "yes")
	t.Setenv("DB_PATH", "~/trips/test.db")
	t.Setenv("CORS_ORIGINS", "https://plan.example.com, ,http://localhost:3000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ServerAddr)
	assert.Equal(t, "http://osrm.local:5000", cfg.OSRMURL)
	assert.Empty(t, cfg.NominatimURL, "explicit empty disables search")
	assert.Equal(t, 2500*time.Millisecond, cfg.RouteTimeout)
	assert.Equal(t, 0.5, cfg.RouteRate)
	assert.Equal(t, 8*60+30, cfg.DayStart)
	assert.Equal(t, models.ModeTransit, cfg.DefaultMode)
	assert.Equal(t, "Asia/Tokyo", cfg.Location.String())
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 24*time.Hour, cfg.RouteCacheTTL)
	assert.True(t, cfg.LogNATSSubjects)
	assert.Equal(t, "test.db", filepath.Base(cfg.DBPath))
	assert.NotContains(t, cfg.DBPath, "~")
	assert.Equal(t, []string{"https://plan.example.com", "http://localhost:3000"}, cfg.CORSOrigins)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"ROUTE_TIMEOUT_MS", "soon"},
		{"ROUTE_TIMEOUT_MS", "-1"},
		{"ROUTE_RATE_PER_SEC", "0"},
		{"DAY_START_TIME", "9am"},
		{"DEFAULT_TRAVEL_MODE", "teleport"},
		{"ROUTE_CACHE_TTL_HOURS", "x"},
		{"TZ", "Mars/Olympus"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadMidnightDayStart(t *testing.T) {
	clearEnv(t)
	t.Setenv("DAY_START_TIME", "00:00")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.DayStart)
}
