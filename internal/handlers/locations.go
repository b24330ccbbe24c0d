package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/mel-koku/koku-travel-sub004/internal/models"
)

// HandleListLocations handles GET /api/v1/locations?city=
func (h *Handler) HandleListLocations(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	log.Printf("[HTTP] GET /api/v1/locations: city=%s", city)
	locations, err := h.DB.Locations().List(r.Context(), city)
	if err != nil {
		log.Printf("[ERROR] Failed to list locations: err=%v", err)
		h.handleInternalError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, locations)
}

// HandleUpsertLocation handles POST /api/v1/locations. A record without
// coordinates is geocoded from its address (or name and city) when search
// is enabled.
func (h *Handler) HandleUpsertLocation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		models.Location
		Address string `json:"address,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		log.Printf("[HTTP] POST /api/v1/locations: invalid_json err=%v", err)
		h.handleValidationError(w, "Invalid request body")
		return
	}
	loc := req.Location
	if strings.TrimSpace(loc.Name) == "" {
		h.handleValidationError(w, "Name is required")
		return
	}
	if err := validateHours(loc.OperatingHours); err != nil {
		h.handleValidationError(w, err.Error())
		return
	}
	if loc.ID == "" {
		loc.ID = uuid.NewString()
	}

	if loc.Coordinates == nil && h.Geocoder != nil {
		query := req.Address
		if query == "" {
			query = loc.Name
			if loc.City != "" {
				query += ", " + loc.City
			}
		}
		result, err := h.Geocoder.GeocodeWithRetry(r.Context(), query, 3)
		if err != nil {
			log.Printf("[ERROR] Failed to geocode location: query=%s err=%v", query, err)
			h.handleGeocodingError(w, err)
			return
		}
		coords := result.Coords
		loc.Coordinates = &coords
	}

	log.Printf("[HTTP] POST /api/v1/locations: id=%s name=%s", loc.ID, loc.Name)
	saved, err := h.DB.Locations().Upsert(r.Context(), &loc)
	if err != nil {
		log.Printf("[ERROR] Failed to save location: id=%s err=%v", loc.ID, err)
		h.handleInternalError(w, err)
		return
	}
	h.refreshLocation(r, saved.ID)
	h.writeJSON(w, http.StatusCreated, saved)
}

// refreshLocation reschedules open days that reference a changed record.
// The record change itself has already succeeded, so failures are logged.
func (h *Handler) refreshLocation(r *http.Request, id string) {
	if h.Timelines == nil {
		return
	}
	n, err := h.Timelines.RefreshLocation(r.Context(), id)
	if err != nil {
		log.Printf("[ERROR] Failed to refresh open days: location=%s err=%v", id, err)
		return
	}
	if n > 0 {
		log.Printf("[HTTP] Location %s refreshed %d open days", id, n)
	}
}

// HandleGetLocation handles GET /api/v1/locations/:id
func (h *Handler) HandleGetLocation(w http.ResponseWriter, r *http.Request) {
	id := httprouter.ParamsFromContext(r.Context()).ByName("id")
	loc, err := h.DB.Locations().GetByID(r.Context(), id)
	if err != nil {
		if h.checkNotFound(err) {
			h.handleNotFound(w, "Location not found")
			return
		}
		h.handleInternalError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loc)
}

// HandleDeleteLocation handles DELETE /api/v1/locations/:id
func (h *Handler) HandleDeleteLocation(w http.ResponseWriter, r *http.Request) {
	id := httprouter.ParamsFromContext(r.Context()).ByName("id")
	log.Printf("[HTTP] DELETE /api/v1/locations/%s", id)
	if err := h.DB.Locations().Delete(r.Context(), id); err != nil {
		if h.checkNotFound(err) {
			h.handleNotFound(w, "Location not found")
			return
		}
		h.handleInternalError(w, err)
		return
	}
	h.refreshLocation(r, id)
	w.WriteHeader(http.StatusNoContent)
}

// HandleLocationSearch handles GET /api/v1/location-search?q=
func (h *Handler) HandleLocationSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	log.Printf("[HTTP] GET /api/v1/location-search: query=%s", query)

	if len(query) < 4 || h.Geocoder == nil {
		h.writeJSON(w, http.StatusOK, []interface{}{})
		return
	}

	results, err := h.Geocoder.Search(r.Context(), query, 5)
	if err != nil {
		log.Printf("[ERROR] Failed to search locations: query=%s err=%v", query, err)
		h.writeJSON(w, http.StatusOK, []interface{}{})
		return
	}

	log.Printf("[HTTP] GET /api/v1/location-search: query=%s results_count=%d", query, len(results))
	h.writeJSON(w, http.StatusOK, results)
}

func validateHours(hours *models.OperatingHours) error {
	if hours == nil {
		return nil
	}
	for _, p := range hours.Periods {
		if _, err := models.ParseClock(p.Open); err != nil {
			return err
		}
		if _, err := models.ParseClock(p.Close); err != nil {
			return err
		}
		if !validDay(p.Day) {
			return &invalidDayError{day: p.Day}
		}
	}
	return nil
}

type invalidDayError struct{ day string }

func (e *invalidDayError) Error() string { return "invalid weekday " + `"` + e.day + `"` }

var weekdays = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}

func validDay(d string) bool {
	return weekdays[strings.ToLower(d)]
}
