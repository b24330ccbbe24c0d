package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mel-koku/koku-travel-sub004/internal/models"
)

// GeocodingResult contains the result of a geocoding operation
type GeocodingResult struct {
	Coords      models.Coordinates
	DisplayName string
	Category    string
}

// Geocoder provides place-name-to-coordinates conversion
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*GeocodingResult, error)
	GeocodeWithRetry(ctx context.Context, query string, maxRetries int) (*GeocodingResult, error)
	Search(ctx context.Context, query string, limit int) ([]GeocodingResult, error)
	Resolve(ctx context.Context, a *models.Activity, city string) (*models.Location, error)
}

// ErrGeocodingFailed is returned when a query cannot be geocoded
type ErrGeocodingFailed struct {
	Query  string
	Reason string
}

func (e *ErrGeocodingFailed) Error() string {
	return fmt.Sprintf("geocoding failed for query: %s - %s", e.Query, e.Reason)
}

type nominatimGeocoder struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type nominatimResponse struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
}

// NewNominatimGeocoder creates a Nominatim geocoder limited to one request per second
func NewNominatimGeocoder(baseURL string) Geocoder {
	return &nominatimGeocoder{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (g *nominatimGeocoder) search(ctx context.Context, query string, limit int) ([]nominatimResponse, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	queryURL := fmt.Sprintf("%s/search?q=%s&format=json&limit=%d", g.baseURL, url.QueryEscape(query), limit)
	log.Printf("[GEOCODING] Request: query=%s limit=%d", query, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		log.Printf("[ERROR] Failed to create geocoding request: query=%s err=%v", query, err)
		return nil, &ErrGeocodingFailed{Query: query, Reason: err.Error()}
	}
	req.Header.Set("User-Agent", "KokuTravel/1.0")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		log.Printf("[ERROR] Geocoding API request failed: query=%s err=%v", query, err)
		return nil, &ErrGeocodingFailed{Query: query, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("[ERROR] Geocoding API error: query=%s status=%d body=%s", query, resp.StatusCode, string(body))
		return nil, &ErrGeocodingFailed{
			Query:  query,
			Reason: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)),
		}
	}

	var results []nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		log.Printf("[ERROR] Failed to decode geocoding response: query=%s err=%v", query, err)
		return nil, &ErrGeocodingFailed{Query: query, Reason: err.Error()}
	}

	log.Printf("[GEOCODING] Response: query=%s results_count=%d", query, len(results))
	return results, nil
}

func toResult(r nominatimResponse) (GeocodingResult, error) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return GeocodingResult{}, fmt.Errorf("invalid latitude %q", r.Lat)
	}
	lng, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return GeocodingResult{}, fmt.Errorf("invalid longitude %q", r.Lon)
	}
	return GeocodingResult{
		Coords:      models.Coordinates{Lat: lat, Lng: lng},
		DisplayName: r.DisplayName,
		Category:    r.Type,
	}, nil
}

func (g *nominatimGeocoder) Geocode(ctx context.Context, query string) (*GeocodingResult, error) {
	results, err := g.search(ctx, query, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, &ErrGeocodingFailed{Query: query, Reason: "no results found"}
	}
	result, err := toResult(results[0])
	if err != nil {
		log.Printf("[ERROR] Invalid geocoding response: query=%s err=%v", query, err)
		return nil, &ErrGeocodingFailed{Query: query, Reason: err.Error()}
	}
	return &result, nil
}

func (g *nominatimGeocoder) GeocodeWithRetry(ctx context.Context, query string, maxRetries int) (*GeocodingResult, error) {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		result, err := g.Geocode(ctx, query)
		if err == nil {
			return result, nil
		}

		lastErr = err

		if i < maxRetries-1 {
			backoff := time.Duration(1<<uint(i)) * time.Second
			log.Printf("[GEOCODING] Retry %d/%d: query=%s backoff=%v err=%v", i+1, maxRetries, query, backoff, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	log.Printf("[ERROR] Geocoding failed after %d retries: query=%s err=%v", maxRetries, query, lastErr)
	return nil, lastErr
}

func (g *nominatimGeocoder) Search(ctx context.Context, query string, limit int) ([]GeocodingResult, error) {
	results, err := g.search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	out := make([]GeocodingResult, 0, len(results))
	for _, r := range results {
		result, err := toResult(r)
		if err != nil {
			log.Printf("[ERROR] Skipping geocoding result: query=%s err=%v", query, err)
			continue
		}
		out = append(out, result)
	}
	return out, nil
}

// Resolve searches for "<title>, <city>" and returns a coordinate-only
// location record. No match is not an error. Activities that already
// carry coordinates are not looked up.
func (g *nominatimGeocoder) Resolve(ctx context.Context, a *models.Activity, city string) (*models.Location, error) {
	if a == nil || !a.IsPlace() || a.Coordinates != nil || strings.TrimSpace(a.Title) == "" {
		return nil, nil
	}
	query := a.Title
	if city != "" {
		query += ", " + city
	}

	results, err := g.Search(ctx, query, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	coords := results[0].Coords
	return &models.Location{
		ID:          a.LocationID,
		Name:        a.Title,
		City:        city,
		Category:    results[0].Category,
		Coordinates: &coords,
	}, nil
}
