package handlers

import (
	"net/http"

	"marketplace/internal/market"
	"marketplace/internal/middleware"
	"marketplace/internal/money"
	"marketplace/internal/services"
	"marketplace/internal/store"

	"github.com/shopspring/decimal"
)

type assetRequest struct {
	Contract string `json:"contract"`
	TokenID  string `json:"token_id"`
}

type rateView struct {
	market.ExchangeRateEntry
	Price decimal.Decimal `json:"price"`
}

type listingView struct {
	Owner  market.Owner   `json:"owner"`
	Asset  market.AssetID `json:"asset"`
	Supply money.Amount   `json:"supply"`
	Rates  []rateView     `json:"rates"`
}

// viewOfListing adds the display price, in payment units per asset unit, to every rate.
func viewOfListing(listing market.Listing) listingView {
	rates := make([]rateView, 0, len(listing.Rates))
	for _, entry := range listing.Rates {
		rates = append(rates, rateView{ExchangeRateEntry: entry, Price: entry.Rate.Price()})
	}
	return listingView{Owner: listing.Owner, Asset: listing.Asset, Supply: listing.Supply, Rates: rates}
}

type listRequest struct {
	assetRequest
	Supply money.Amount               `json:"supply"`
	Rates  []market.ExchangeRateEntry `json:"rates"`
}

type withdrawRequest struct {
	assetRequest
	Amount money.Amount `json:"amount"`
}

type amountsRequest struct {
	assetRequest
	Owner    string                   `json:"owner"`
	Amount   money.Amount             `json:"amount"`
	Rate     market.ExchangeRateEntry `json:"rate"`
	Attached string                   `json:"attached"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req listRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondServiceError(w, err)
		return
	}
	asset, err := parseAsset(req.Contract, req.TokenID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	rates, err := normalizeRates(req.Rates)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	listing, err := h.service.List(r.Context(), services.ListRequest{
		Owner:  owner,
		Asset:  asset,
		Supply: req.Supply,
		Rates:  rates,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOfListing(listing))
}

func (h *Handler) DeList(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req assetRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondServiceError(w, err)
		return
	}
	asset, err := parseAsset(req.Contract, req.TokenID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if err := h.service.DeList(r.Context(), owner, asset); err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "delisted"})
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req withdrawRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondServiceError(w, err)
		return
	}
	asset, err := parseAsset(req.Contract, req.TokenID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	view, err := h.service.Withdraw(r.Context(), services.WithdrawRequest{Owner: owner, Asset: asset, Amount: req.Amount})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// amountsFromRequest builds the settlement input with the token subject as payer.
func amountsFromRequest(r *http.Request) (market.AmountsRequest, amountsRequest, error) {
	payer, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		return market.AmountsRequest{}, amountsRequest{}, market.ErrUnauthorized
	}
	var req amountsRequest
	if err := decodeBody(r, &req); err != nil {
		return market.AmountsRequest{}, req, err
	}
	asset, err := parseAsset(req.Contract, req.TokenID)
	if err != nil {
		return market.AmountsRequest{}, req, err
	}
	seller, err := parseOwner(req.Owner)
	if err != nil {
		return market.AmountsRequest{}, req, err
	}
	payment, err := normalizePayment(req.Rate.Payment)
	if err != nil {
		return market.AmountsRequest{}, req, err
	}
	return market.AmountsRequest{
		Asset:  asset,
		Owner:  seller,
		Payer:  payer,
		Amount: req.Amount,
		Rate:   market.ExchangeRateEntry{Payment: payment, Rate: req.Rate.Rate},
	}, req, nil
}

func (h *Handler) Exchange(w http.ResponseWriter, r *http.Request) {
	amountsReq, raw, err := amountsFromRequest(r)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	attached, err := parseOptionalAmount(raw.Attached)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	result, err := h.service.Exchange(r.Context(), services.ExchangeRequest{AmountsRequest: amountsReq, Attached: attached})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) CalculateAmounts(w http.ResponseWriter, r *http.Request) {
	amountsReq, _, err := amountsFromRequest(r)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	amounts, err := h.service.CalculateAmounts(r.Context(), amountsReq)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, amounts)
}

func (h *Handler) ownerAndAsset(r *http.Request) (market.Owner, market.AssetID, error) {
	query := r.URL.Query()
	owner, err := parseOwner(query.Get("owner"))
	if err != nil {
		return "", market.AssetID{}, err
	}
	asset, err := parseAsset(query.Get("contract"), query.Get("token_id"))
	if err != nil {
		return "", market.AssetID{}, err
	}
	return owner, asset, nil
}

func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	owner, asset, err := h.ownerAndAsset(r)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	listing, err := h.service.GetListed(r.Context(), owner, asset)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOfListing(listing))
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	owner, asset, err := h.ownerAndAsset(r)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	view, err := h.service.BalanceOf(r.Context(), owner, asset)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	owner, err := parseOwner(r.URL.Query().Get("owner"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	balances, err := h.service.Balances(r.Context(), owner)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if balances == nil {
		balances = []store.OwnerBalance{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"owner": owner, "balances": balances})
}

func (h *Handler) GetPaymentBalance(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	owner, err := parseOwner(query.Get("owner"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	payment, err := normalizePayment(market.PaymentMethod{
		Kind:     market.PaymentKind(query.Get("kind")),
		Contract: market.ContractRef(query.Get("contract")),
		TokenID:  query.Get("token_id"),
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	balance, err := h.service.PaymentBalance(r.Context(), owner, payment)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"owner": owner, "payment": payment, "balance": balance})
}

func (h *Handler) AllowedToList(w http.ResponseWriter, r *http.Request) {
	contracts, err := h.service.AllowedToList(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if contracts == nil {
		contracts = []market.ContractRef{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"contracts": contracts})
}

func (h *Handler) PaymentTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.service.PaymentTokens(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if tokens == nil {
		tokens = []market.AssetID{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
}
