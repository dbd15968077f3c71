package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"marketplace/internal/market"
	"marketplace/internal/money"
	"marketplace/internal/validator"
)

const maxBodyBytes = 1 << 20

func decodeBody(r *http.Request, dest any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(dest); err != nil {
		return market.ErrParse
	}
	return nil
}

func parseAsset(contract, tokenID string) (market.AssetID, error) {
	return market.ParseAssetID(contract, tokenID)
}

// parseOwner accepts an account address or a contract ref in "<index,subindex>" form.
func parseOwner(raw string) (market.Owner, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "<") {
		ref, err := market.ParseContractRef(raw)
		if err != nil {
			return "", err
		}
		return market.ContractOwner(ref), nil
	}
	if err := validator.ValidateAccount(raw); err != nil {
		return "", market.ErrParse
	}
	return market.Owner(raw), nil
}

func parseOptionalAmount(raw string) (money.Amount, error) {
	if strings.TrimSpace(raw) == "" {
		return money.Zero(), nil
	}
	amount, err := money.ParseAmount(strings.TrimSpace(raw))
	if err != nil {
		return money.Amount{}, market.ErrParse
	}
	return amount, nil
}

func normalizePayment(payment market.PaymentMethod) (market.PaymentMethod, error) {
	return payment.Canonical()
}

func normalizeRates(entries []market.ExchangeRateEntry) ([]market.ExchangeRateEntry, error) {
	out := make([]market.ExchangeRateEntry, len(entries))
	for i, entry := range entries {
		payment, err := normalizePayment(entry.Payment)
		if err != nil {
			return nil, err
		}
		out[i] = market.ExchangeRateEntry{Payment: payment, Rate: entry.Rate}
	}
	return out, nil
}

func queryPage(r *http.Request) (int64, int, error) {
	var after int64
	var limit int
	if raw := r.URL.Query().Get("after"); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value < 0 {
			return 0, 0, market.ErrParse
		}
		after = value
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			return 0, 0, market.ErrParse
		}
		limit = value
	}
	return after, limit, nil
}
