package directserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/compendiumnav/boatrelay/internal/command"
	"github.com/compendiumnav/boatrelay/internal/state"
	"github.com/compendiumnav/boatrelay/internal/statebus"
	clientsync "github.com/compendiumnav/boatrelay/internal/sync"
)

func newTestServer(t *testing.T) (*httptest.Server, *statebus.Bus) {
	t.Helper()
	bus := statebus.New(state.NewDocument(), nil, slog.Default())
	router := command.New(bus)
	coord := clientsync.New(bus, router, slog.Default())
	coord.Start()

	srv := &Server{coord: coord, log: slog.Default()}
	ts := httptest.NewServer(http.HandlerFunc(srv.handleWS))
	return ts, bus
}

func TestHandleWSReceivesInitialSnapshot(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}

	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg["type"] != "state:full-update" {
		t.Errorf("type = %v, want state:full-update", msg["type"])
	}
}

func TestHandleWSRoundTripsAnchorUpdate(t *testing.T) {
	ts, bus := newTestServer(t)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}

	req := map[string]any{"type": "anchor:update", "data": map[string]any{"anchorDeployed": true}}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	var ack map[string]any
	if err := json.Unmarshal(raw, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ack["type"] != "anchor:update:ack" || ack["success"] != true {
		t.Errorf("unexpected ack: %v", ack)
	}

	deadline := time.Now().Add(time.Second)
	for {
		root, _ := bus.CurrentSnapshot()
		if root.Anchor.AnchorDeployed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("anchor update never applied to the bus")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunReturnsOnContextCancel(t *testing.T) {
	bus := statebus.New(state.NewDocument(), nil, slog.Default())
	router := command.New(bus)
	coord := clientsync.New(bus, router, slog.Default())

	s := New(0, coord, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
