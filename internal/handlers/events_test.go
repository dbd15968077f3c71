package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"marketplace/internal/market"
)

func TestListEventsPaging(t *testing.T) {
	handler := newTestHandler(stubService{
		eventsFn: func(_ context.Context, owner market.Owner, afterSeq int64, limit int) ([]market.Event, error) {
			if owner != "bob" || afterSeq != 4 || limit != 2 {
				t.Fatalf("unexpected page %s %d %d", owner, afterSeq, limit)
			}
			return []market.Event{
				{Seq: 5, ID: "e5", Kind: market.EventListed, Owner: "bob", Payload: json.RawMessage(`{}`)},
				{Seq: 7, ID: "e7", Kind: market.EventExchanged, Owner: "bob", Payload: json.RawMessage(`{}`)},
			}, nil
		},
	}, stubAdminStore{})
	rr := serve(t, handler, http.MethodGet, "/events?owner=bob&after=4&limit=2", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Events []market.Event `json:"events"`
		Next   int64          `json:"next"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(payload.Events) != 2 || payload.Next != 7 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestListEventsEmptyKeepsCursor(t *testing.T) {
	handler := newTestHandler(stubService{}, stubAdminStore{})
	rr := serve(t, handler, http.MethodGet, "/events?after=9", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Body.String() != "{\"events\":[],\"next\":9}\n" {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestListEventsRejectsBadCursor(t *testing.T) {
	handler := newTestHandler(stubService{}, stubAdminStore{})
	for _, query := range []string{"after=-1", "after=x", "limit=ten"} {
		rr := serve(t, handler, http.MethodGet, "/events?"+query, nil, "")
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, rr.Code)
		}
	}
}

func TestWSEventsRequiresToken(t *testing.T) {
	handler := newTestHandler(stubService{}, stubAdminStore{})
	rr := serve(t, handler, http.MethodGet, "/ws/events", nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
