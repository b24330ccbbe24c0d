package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/mel-koku/koku-travel-sub004/internal/database"
	"github.com/mel-koku/koku-travel-sub004/internal/geocoding"
	"github.com/mel-koku/koku-travel-sub004/internal/models"
	"github.com/mel-koku/koku-travel-sub004/internal/timeline"
	"github.com/mel-koku/koku-travel-sub004/internal/travel"
)

// Handler provides common handler utilities and dependencies
type Handler struct {
	DB        database.DataStore
	Geocoder  geocoding.Geocoder // nil when search is disabled
	Timelines *timeline.Coordinator
	// RouteCache is the cache the routing client reads; nil uses DB's
	RouteCache database.RouteCacheRepository
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	h.writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// handleNotFound handles 404 errors
func (h *Handler) handleNotFound(w http.ResponseWriter, message string) {
	h.writeError(w, http.StatusNotFound, "NOT_FOUND", message, nil)
}

// handleValidationError handles 400 errors
func (h *Handler) handleValidationError(w http.ResponseWriter, message string) {
	h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

// handleGeocodingError handles 422 errors for geocoding failures
func (h *Handler) handleGeocodingError(w http.ResponseWriter, err error) {
	h.writeError(w, http.StatusUnprocessableEntity, "GEOCODING_FAILED", err.Error(), nil)
}

// handleInternalError handles 500 errors
func (h *Handler) handleInternalError(w http.ResponseWriter, err error) {
	log.Printf("[ERROR] Internal error: %v", err)
	h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An error occurred. Please try again.", nil)
}

// checkNotFound checks if an error is a not found error
func (h *Handler) checkNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}

var validationErrors = []error{
	timeline.ErrInvalidSequence,
	timeline.ErrDuplicateActivity,
	timeline.ErrInvalidDuration,
	timeline.ErrInvalidActivityKind,
	timeline.ErrInvalidDate,
	models.ErrInvalidClock,
	travel.ErrUnsupportedMode,
}

// handleTimelineError maps coordinator errors onto the API error envelope
func (h *Handler) handleTimelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, timeline.ErrModeChangeRejected):
		h.writeError(w, http.StatusUnprocessableEntity, "MODE_CHANGE_REJECTED", err.Error(), nil)
		return
	case errors.Is(err, timeline.ErrDayNotFound), errors.Is(err, timeline.ErrActivityNotFound):
		h.handleNotFound(w, err.Error())
		return
	case errors.Is(err, timeline.ErrTimelineClosed):
		h.writeError(w, http.StatusConflict, "TIMELINE_CLOSED", err.Error(), nil)
		return
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			h.handleValidationError(w, err.Error())
			return
		}
	}
	h.handleInternalError(w, err)
}

// HandleHealthCheck handles GET /api/v1/health
func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "connected"

	if err := h.DB.HealthCheck(r.Context()); err != nil {
		status = "degraded"
		dbStatus = "error"
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":   status,
		"version":  "1.0.0",
		"database": dbStatus,
	})
}

func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
