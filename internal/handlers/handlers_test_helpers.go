package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketplace/internal/auth"
	"marketplace/internal/config"
	"marketplace/internal/logger"
	"marketplace/internal/market"
	"marketplace/internal/services"
	"marketplace/internal/store"
	"marketplace/internal/websocket"

	"github.com/shopspring/decimal"
)

const (
	testJWTSecret  = "secret"
	testHookSecret = "hook-secret"
)

type stubService struct {
	depositFn         func(ctx context.Context, req services.DepositRequest) (services.DepositResult, error)
	withdrawFn        func(ctx context.Context, req services.WithdrawRequest) (services.BalanceView, error)
	listFn            func(ctx context.Context, req services.ListRequest) (market.Listing, error)
	deListFn          func(ctx context.Context, owner market.Owner, asset market.AssetID) error
	exchangeFn        func(ctx context.Context, req services.ExchangeRequest) (services.ExchangeResult, error)
	calculateFn       func(ctx context.Context, req market.AmountsRequest) (market.Amounts, error)
	getListedFn       func(ctx context.Context, owner market.Owner, asset market.AssetID) (market.Listing, error)
	balanceOfFn       func(ctx context.Context, owner market.Owner, asset market.AssetID) (services.BalanceView, error)
	balancesFn        func(ctx context.Context, owner market.Owner) ([]store.OwnerBalance, error)
	paymentBalanceFn  func(ctx context.Context, owner market.Owner, payment market.PaymentMethod) (decimal.Decimal, error)
	allowedToListFn   func(ctx context.Context) ([]market.ContractRef, error)
	paymentTokensFn   func(ctx context.Context) ([]market.AssetID, error)
	addPaymentTokenFn func(ctx context.Context, actor market.Owner, token market.AssetID) error
	addSellContractFn func(ctx context.Context, actor market.Owner, contract market.ContractRef) error
	auditLogFn        func(ctx context.Context, actor market.Owner, limit, offset int) ([]store.AuditEntry, error)
	eventsFn          func(ctx context.Context, owner market.Owner, afterSeq int64, limit int) ([]market.Event, error)
}

func (s stubService) Deposit(ctx context.Context, req services.DepositRequest) (services.DepositResult, error) {
	if s.depositFn == nil {
		return services.DepositResult{}, nil
	}
	return s.depositFn(ctx, req)
}

func (s stubService) Withdraw(ctx context.Context, req services.WithdrawRequest) (services.BalanceView, error) {
	if s.withdrawFn == nil {
		return services.BalanceView{}, nil
	}
	return s.withdrawFn(ctx, req)
}

func (s stubService) List(ctx context.Context, req services.ListRequest) (market.Listing, error) {
	if s.listFn == nil {
		return market.Listing{}, nil
	}
	return s.listFn(ctx, req)
}

func (s stubService) DeList(ctx context.Context, owner market.Owner, asset market.AssetID) error {
	if s.deListFn == nil {
		return nil
	}
	return s.deListFn(ctx, owner, asset)
}

func (s stubService) Exchange(ctx context.Context, req services.ExchangeRequest) (services.ExchangeResult, error) {
	if s.exchangeFn == nil {
		return services.ExchangeResult{}, nil
	}
	return s.exchangeFn(ctx, req)
}

func (s stubService) CalculateAmounts(ctx context.Context, req market.AmountsRequest) (market.Amounts, error) {
	if s.calculateFn == nil {
		return market.Amounts{}, nil
	}
	return s.calculateFn(ctx, req)
}

func (s stubService) GetListed(ctx context.Context, owner market.Owner, asset market.AssetID) (market.Listing, error) {
	if s.getListedFn == nil {
		return market.Listing{}, market.ErrNotListed
	}
	return s.getListedFn(ctx, owner, asset)
}

func (s stubService) BalanceOf(ctx context.Context, owner market.Owner, asset market.AssetID) (services.BalanceView, error) {
	if s.balanceOfFn == nil {
		return services.BalanceView{}, nil
	}
	return s.balanceOfFn(ctx, owner, asset)
}

func (s stubService) Balances(ctx context.Context, owner market.Owner) ([]store.OwnerBalance, error) {
	if s.balancesFn == nil {
		return nil, nil
	}
	return s.balancesFn(ctx, owner)
}

func (s stubService) PaymentBalance(ctx context.Context, owner market.Owner, payment market.PaymentMethod) (decimal.Decimal, error) {
	if s.paymentBalanceFn == nil {
		return decimal.Zero, nil
	}
	return s.paymentBalanceFn(ctx, owner, payment)
}

func (s stubService) AllowedToList(ctx context.Context) ([]market.ContractRef, error) {
	if s.allowedToListFn == nil {
		return nil, nil
	}
	return s.allowedToListFn(ctx)
}

func (s stubService) PaymentTokens(ctx context.Context) ([]market.AssetID, error) {
	if s.paymentTokensFn == nil {
		return nil, nil
	}
	return s.paymentTokensFn(ctx)
}

func (s stubService) AddPaymentToken(ctx context.Context, actor market.Owner, token market.AssetID) error {
	if s.addPaymentTokenFn == nil {
		return nil
	}
	return s.addPaymentTokenFn(ctx, actor, token)
}

func (s stubService) AddSellTokenContract(ctx context.Context, actor market.Owner, contract market.ContractRef) error {
	if s.addSellContractFn == nil {
		return nil
	}
	return s.addSellContractFn(ctx, actor, contract)
}

func (s stubService) Events(ctx context.Context, owner market.Owner, afterSeq int64, limit int) ([]market.Event, error) {
	if s.eventsFn == nil {
		return nil, nil
	}
	return s.eventsFn(ctx, owner, afterSeq, limit)
}

func (s stubService) AuditLog(ctx context.Context, actor market.Owner, limit, offset int) ([]store.AuditEntry, error) {
	if s.auditLogFn == nil {
		return nil, nil
	}
	return s.auditLogFn(ctx, actor, limit, offset)
}

type stubAdminStore struct {
	isAdminFn func(ctx context.Context, account market.Owner) (bool, error)
}

func (s stubAdminStore) IsAdmin(ctx context.Context, account market.Owner) (bool, error) {
	if s.isAdminFn == nil {
		return false, nil
	}
	return s.isAdminFn(ctx, account)
}

func newTestHandler(service MarketService, admins AdminStore) *Handler {
	cfg := config.Config{
		JWTSecret:      testJWTSecret,
		HookSecret:     testHookSecret,
		TokenTTL:       time.Minute,
		AllowedOrigins: "*",
	}
	return New(cfg, service, admins, websocket.NewHub(), logger.Nop())
}

// serve routes a request through the full router, authenticated as owner when owner is set.
func serve(t *testing.T, handler *Handler, method, path string, body []byte, owner string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if owner != "" {
		token, err := auth.GenerateToken(testJWTSecret, owner, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	return rr
}

func signedRequest(t *testing.T, path string, body []byte, secret string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	signature, err := SignBody(secret, body)
	if err != nil {
		t.Fatalf("failed to sign body: %v", err)
	}
	req.Header.Set(signatureHeader, signature)
	return req
}
