package handlers

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"

	"marketplace/internal/market"
	"marketplace/internal/money"
	"marketplace/internal/services"
)

const signatureHeader = "X-Hook-Signature"

// SignBody returns the hex BLAKE2b-256 MAC of body keyed with secret, as the transfer
// gateway sends it in X-Hook-Signature.
func SignBody(secret string, body []byte) (string, error) {
	mac, err := blake2b.New256([]byte(secret))
	if err != nil {
		return "", err
	}
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// readSignedBody returns the request body when its signature matches the hook secret.
func (h *Handler) readSignedBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if h.cfg.HookSecret == "" {
		respondError(w, http.StatusServiceUnavailable, "hooks_disabled")
		return nil, false
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, string(market.ErrParse))
		return nil, false
	}
	expected, err := SignBody(h.cfg.HookSecret, body)
	if err != nil {
		h.log.Errorf("hook mac: %v", err)
		respondError(w, http.StatusInternalServerError, "internal_error")
		return nil, false
	}
	got := strings.ToLower(strings.TrimSpace(r.Header.Get(signatureHeader)))
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
		respondError(w, http.StatusUnauthorized, "invalid_signature")
		return nil, false
	}
	return body, true
}

type depositHookRequest struct {
	Contract string          `json:"contract"`
	TokenID  string          `json:"token_id"`
	Amount   money.Amount    `json:"amount"`
	From     string          `json:"from"`
	Data     json.RawMessage `json:"data"`
}

// DepositHook is called by the gateway after a token contract moved tokens into escrow.
func (h *Handler) DepositHook(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readSignedBody(w, r)
	if !ok {
		return
	}
	var req depositHookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.respondServiceError(w, market.ErrParse)
		return
	}
	asset, err := parseAsset(req.Contract, req.TokenID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	from, err := parseOwner(req.From)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	result, err := h.service.Deposit(r.Context(), services.DepositRequest{
		Contract: asset.Contract,
		TokenID:  asset.TokenID,
		Amount:   req.Amount,
		From:     from,
		Data:     req.Data,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
