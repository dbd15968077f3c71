package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"marketplace/internal/market"
	"marketplace/internal/money"
	"marketplace/internal/services"
)

const depositBody = `{"contract":"<7,0>","token_id":"01","amount":"100","from":"bob","data":{"list":{"rates":[{"payment":{"kind":"Native"},"rate":{"numerator":1,"denominator":2}}]}}}`

func TestDepositHookAcceptsSignedBody(t *testing.T) {
	var got services.DepositRequest
	handler := newTestHandler(stubService{
		depositFn: func(_ context.Context, req services.DepositRequest) (services.DepositResult, error) {
			got = req
			return services.DepositResult{Balance: services.BalanceView{Deposited: req.Amount, Listed: req.Amount, Unlisted: money.Zero()}}, nil
		},
	}, stubAdminStore{})

	req := signedRequest(t, "/hooks/deposit", []byte(depositBody), testHookSecret)
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.Contract != "<7,0>" || got.TokenID != "01" || got.From != "bob" || got.Amount.String() != "100" {
		t.Fatalf("unexpected deposit %+v", got)
	}
	if len(got.Data) == 0 {
		t.Fatalf("expected deposit data to be forwarded")
	}
}

func TestDepositHookRejectsBadSignature(t *testing.T) {
	calls := 0
	handler := newTestHandler(stubService{
		depositFn: func(context.Context, services.DepositRequest) (services.DepositResult, error) {
			calls++
			return services.DepositResult{}, nil
		},
	}, stubAdminStore{})

	req := signedRequest(t, "/hooks/deposit", []byte(depositBody), "other-secret")
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	rr = serve(t, handler, http.MethodPost, "/hooks/deposit", []byte(depositBody), "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without signature, got %d", rr.Code)
	}
	if calls != 0 {
		t.Fatalf("deposit should not run, got %d calls", calls)
	}
}

func TestDepositHookDisabledWithoutSecret(t *testing.T) {
	handler := newTestHandler(stubService{}, stubAdminStore{})
	handler.cfg.HookSecret = ""
	req := signedRequest(t, "/hooks/deposit", []byte(depositBody), testHookSecret)
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestDepositHookMapsServiceErrors(t *testing.T) {
	handler := newTestHandler(stubService{
		depositFn: func(context.Context, services.DepositRequest) (services.DepositResult, error) {
			return services.DepositResult{}, market.ErrInvalidDepositData
		},
	}, stubAdminStore{})
	req := signedRequest(t, "/hooks/deposit", []byte(depositBody), testHookSecret)
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if kind := decodeError(t, rr.Body.Bytes()); kind != "InvalidDepositData" {
		t.Fatalf("unexpected kind %s", kind)
	}
}

func TestSignBodyIsStable(t *testing.T) {
	first, err := SignBody("k", []byte("body"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	second, _ := SignBody("k", []byte("body"))
	other, _ := SignBody("k", []byte("body2"))
	if first != second || first == other || len(first) != 64 {
		t.Fatalf("unexpected signatures %s %s %s", first, second, other)
	}
}
