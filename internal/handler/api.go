package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/Shivanand-hulikatti/enjoycity/internal/model"
)

// APIListEvents handles GET /api/events. It accepts the same query as the
// listing page and returns JSON.
func (h *Handler) APIListEvents(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseFilter(r.URL.Query())
	if err != nil {
		_, msg := failure(err)
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	events, err := h.catalog.ListEvents(r.Context(), f)
	if err != nil {
		h.log.Error().Err(err).Msg("api list events")
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			h.log.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
