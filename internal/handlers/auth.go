package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"marketplace/internal/auth"
	"marketplace/internal/market"
	"marketplace/internal/middleware"
)

type sessionRequest struct {
	Account string `json:"account"`
}

// CreateSession issues a token for an account whose wallet signature the gateway has
// already checked. The request is authenticated with the hook MAC.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readSignedBody(w, r)
	if !ok {
		return
	}
	var req sessionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.respondServiceError(w, market.ErrParse)
		return
	}
	owner, err := parseOwner(req.Account)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if !owner.IsAccount() {
		h.respondServiceError(w, market.ErrOnlyAccount)
		return
	}
	ttl := h.cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	token, err := auth.GenerateToken(h.cfg.JWTSecret, string(owner), ttl)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": time.Now().Add(ttl).UTC(),
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	isAdmin, err := h.admins.IsAdmin(r.Context(), owner)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"owner": owner, "is_admin": isAdmin})
}
