package handlers

import (
	"net/http"
	"strconv"

	"marketplace/internal/market"
	"marketplace/internal/middleware"
	"marketplace/internal/store"
)

type sellContractRequest struct {
	Contract string `json:"contract"`
}

func (h *Handler) AddPaymentToken(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req assetRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondServiceError(w, err)
		return
	}
	token, err := parseAsset(req.Contract, req.TokenID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if err := h.service.AddPaymentToken(r.Context(), actor, token); err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, token)
}

func (h *Handler) AddSellTokenContract(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req sellContractRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondServiceError(w, err)
		return
	}
	contract, err := market.ParseContractRef(req.Contract)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if err := h.service.AddSellTokenContract(r.Context(), actor, contract); err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"contract": contract})
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	entries, err := h.service.AuditLog(r.Context(), actor, limit, offset)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []store.AuditEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
