package handlers

import (
	"log"
	"net/http"
)

// HandleClearRouteCache handles DELETE /api/v1/route-cache
func (h *Handler) HandleClearRouteCache(w http.ResponseWriter, r *http.Request) {
	cache := h.RouteCache
	if cache == nil {
		cache = h.DB.RouteCache()
	}
	log.Printf("[HTTP] DELETE /api/v1/route-cache")
	if err := cache.Clear(r.Context()); err != nil {
		log.Printf("[ERROR] Failed to clear route cache: err=%v", err)
		h.handleInternalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
