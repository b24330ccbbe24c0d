package handlers

import (
	"log"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/mel-koku/koku-travel-sub004/internal/models"
)

func dayParams(r *http.Request) (dayID, activityID string) {
	ps := httprouter.ParamsFromContext(r.Context())
	return ps.ByName("day"), ps.ByName("activity")
}

// HandleOpenDay handles POST /api/v1/days
func (h *Handler) HandleOpenDay(w http.ResponseWriter, r *http.Request) {
	var day models.Day
	if err := decodeJSON(r, &day); err != nil {
		log.Printf("[HTTP] POST /api/v1/days: invalid_json err=%v", err)
		h.handleValidationError(w, "Invalid request body")
		return
	}

	log.Printf("[HTTP] POST /api/v1/days: id=%s date=%s activities=%d", day.ID, day.Date, len(day.Activities))
	state, err := h.Timelines.Open(r.Context(), day)
	if err != nil {
		h.handleTimelineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, state)
}

// HandleGetDay handles GET /api/v1/days/:day
func (h *Handler) HandleGetDay(w http.ResponseWriter, r *http.Request) {
	dayID, _ := dayParams(r)
	state, err := h.Timelines.Snapshot(dayID)
	if err != nil {
		h.handleTimelineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}

// HandleCloseDay handles DELETE /api/v1/days/:day
func (h *Handler) HandleCloseDay(w http.ResponseWriter, r *http.Request) {
	dayID, _ := dayParams(r)
	log.Printf("[HTTP] DELETE /api/v1/days/%s", dayID)
	if err := h.Timelines.Close(dayID); err != nil {
		h.handleTimelineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSequenceChange handles PUT /api/v1/days/:day/sequence
func (h *Handler) HandleSequenceChange(w http.ResponseWriter, r *http.Request) {
	dayID, _ := dayParams(r)
	var req struct {
		Order []string `json:"order"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.handleValidationError(w, "Invalid request body")
		return
	}

	log.Printf("[HTTP] PUT /api/v1/days/%s/sequence: count=%d", dayID, len(req.Order))
	state, err := h.Timelines.OnSequenceChange(dayID, req.Order)
	if err != nil {
		h.handleTimelineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}

// HandleInsertActivity handles POST /api/v1/days/:day/activities
func (h *Handler) HandleInsertActivity(w http.ResponseWriter, r *http.Request) {
	dayID, _ := dayParams(r)
	var req struct {
		Activity models.Activity `json:"activity"`
		// Index is the position to insert at; omitted appends
		Index *int `json:"index"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.handleValidationError(w, "Invalid request body")
		return
	}
	index := -1
	if req.Index != nil {
		index = *req.Index
	}

	log.Printf("[HTTP] POST /api/v1/days/%s/activities: title=%q index=%d", dayID, req.Activity.Title, index)
	state, err := h.Timelines.InsertActivity(r.Context(), dayID, req.Activity, index)
	if err != nil {
		h.handleTimelineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, state)
}

// HandleDeleteActivity handles DELETE /api/v1/days/:day/activities/:activity
func (h *Handler) HandleDeleteActivity(w http.ResponseWriter, r *http.Request) {
	dayID, activityID := dayParams(r)
	log.Printf("[HTTP] DELETE /api/v1/days/%s/activities/%s", dayID, activityID)
	state, err := h.Timelines.DeleteActivity(dayID, activityID)
	if err != nil {
		h.handleTimelineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}

// HandleCopyActivity handles POST /api/v1/days/:day/activities/:activity/copy
func (h *Handler) HandleCopyActivity(w http.ResponseWriter, r *http.Request) {
	dayID, activityID := dayParams(r)
	state, newID, err := h.Timelines.CopyActivity(dayID, activityID)
	if err != nil {
		h.handleTimelineError(w, err)
		return
	}
	log.Printf("[HTTP] POST /api/v1/days/%s/activities/%s/copy: new_id=%s", dayID, activityID, newID)
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"activity_id": newID,
		"state":       state,
	})
}

// HandleChangeTravelMode handles PUT /api/v1/days/:day/activities/:activity/travel-mode
func (h *Handler) HandleChangeTravelMode(w http.ResponseWriter, r *http.Request) {
	dayID, activityID := dayParams(r)
	var req struct {
		Mode string `json:"mode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.handleValidationError(w, "Invalid request body")
		return
	}

	log.Printf("[HTTP] PUT /api/v1/days/%s/activities/%s/travel-mode: mode=%s", dayID, activityID, req.Mode)
	state, err := h.Timelines.ChangeTravelMode(dayID, activityID, models.TravelMode(req.Mode))
	if err != nil {
		h.handleTimelineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}

// HandleSetManualStart handles PUT /api/v1/days/:day/activities/:activity/manual-start
func (h *Handler) HandleSetManualStart(w http.ResponseWriter, r *http.Request) {
	dayID, activityID := dayParams(r)
	var req struct {
		// HH:MM; null or empty clears the override
		ManualStartTime *string `json:"manual_start_time"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.handleValidationError(w, "Invalid request body")
		return
	}

	state, err := h.Timelines.SetManualStartTime(dayID, activityID, req.ManualStartTime)
	if err != nil {
		h.handleTimelineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}

// HandleSetDuration handles PUT /api/v1/days/:day/activities/:activity/duration
func (h *Handler) HandleSetDuration(w http.ResponseWriter, r *http.Request) {
	dayID, activityID := dayParams(r)
	var req struct {
		DurationMin *int `json:"duration_min"`
	}
	if err := decodeJSON(r, &req); err != nil || req.DurationMin == nil {
		h.handleValidationError(w, "duration_min is required")
		return
	}

	state, err := h.Timelines.SetDuration(dayID, activityID, *req.DurationMin)
	if err != nil {
		h.handleTimelineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}
