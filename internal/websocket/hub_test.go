package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"marketplace/internal/market"
)

func TestBroadcastEventReachesOnlyOwner(t *testing.T) {
	hub := NewHub()
	alice := &Client{send: make(chan []byte, 1)}
	bob := &Client{send: make(chan []byte, 1)}
	hub.Register("alice", alice)
	hub.Register("bob", bob)

	hub.BroadcastEvent("alice", market.Event{Seq: 3, Kind: market.EventListed, Owner: "alice", Payload: json.RawMessage(`{"x":1}`)})

	var update EventUpdate
	require.NoError(t, json.Unmarshal(<-alice.send, &update))
	require.Equal(t, int64(3), update.Seq)
	require.Equal(t, "Listed", update.Kind)
	require.JSONEq(t, `{"x":1}`, string(update.Payload))
	require.Empty(t, bob.send)
}

func TestBroadcastEventDropsWhenClientIsFull(t *testing.T) {
	hub := NewHub()
	client := &Client{send: make(chan []byte, 1)}
	hub.Register("alice", client)
	hub.BroadcastEvent("alice", market.Event{Seq: 1})
	hub.BroadcastEvent("alice", market.Event{Seq: 2})
	require.Len(t, client.send, 1)
}

func TestUnregisterRemovesEmptyOwner(t *testing.T) {
	hub := NewHub()
	client := &Client{send: make(chan []byte, 1)}
	hub.Register("alice", client)
	require.Equal(t, 1, hub.Subscribers("alice"))
	hub.Unregister("alice", client)
	hub.Unregister("alice", client)
	require.Equal(t, 0, hub.Subscribers("alice"))
}

func TestServeWSDeliversEvents(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(w, r, hub, "alice")
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers("alice") == 1 }, time.Second, 10*time.Millisecond)
	hub.BroadcastEvent("alice", market.Event{Seq: 9, Kind: market.EventDeposited, Owner: "alice", Payload: json.RawMessage(`{}`)})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(message), `"kind":"Deposited"`)
}
