package handlers

import (
	"net/http"

	"marketplace/internal/market"
	"marketplace/internal/middleware"
	"marketplace/internal/websocket"
)

// ListEvents pages the event log. An empty owner lists every owner's events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	var owner market.Owner
	if raw := r.URL.Query().Get("owner"); raw != "" {
		parsed, err := parseOwner(raw)
		if err != nil {
			h.respondServiceError(w, err)
			return
		}
		owner = parsed
	}
	after, limit, err := queryPage(r)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	events, err := h.service.Events(r.Context(), owner, after, limit)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	next := after
	if len(events) > 0 {
		next = events[len(events)-1].Seq
	}
	if events == nil {
		events = []market.Event{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events, "next": next})
}

func (h *Handler) WSEvents(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	websocket.ServeWS(w, r, h.hub, string(owner))
}
