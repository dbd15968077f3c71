package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"marketplace/internal/db"
	"marketplace/internal/market"
	"marketplace/internal/money"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError writes err as {"error": "<Kind>"}.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var kind market.Error
	switch {
	case errors.As(err, &kind):
		status := statusForKind(kind)
		if status >= http.StatusInternalServerError {
			h.log.WithField("kind", string(kind)).Errorf("market operation failed")
		}
		respondError(w, status, string(kind))
	case errors.Is(err, money.ErrOverflow), errors.Is(err, money.ErrUnderflow):
		h.log.Errorf("arithmetic overflow: %v", err)
		respondError(w, http.StatusInternalServerError, "ArithmeticOverflow")
	case db.IsUniqueViolation(err):
		respondError(w, http.StatusConflict, "duplicate_request")
	default:
		h.log.Errorf("internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal_error")
	}
}

func statusForKind(kind market.Error) int {
	if kind.IsTransferError() {
		return http.StatusBadGateway
	}
	switch kind {
	case market.ErrUnauthorized, market.ErrOnlyAccount:
		return http.StatusForbidden
	case market.ErrNotListed, market.ErrNotDeposited:
		return http.StatusNotFound
	case market.ErrLog:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
