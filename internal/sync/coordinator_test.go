package sync

import (
	"log/slog"
	"testing"
	"time"

	"github.com/compendiumnav/boatrelay/internal/command"
	"github.com/compendiumnav/boatrelay/internal/state"
	"github.com/compendiumnav/boatrelay/internal/statebus"
	"github.com/compendiumnav/boatrelay/internal/statepath"
)

func newTestCoordinator() (*Coordinator, *statebus.Bus) {
	bus := statebus.New(state.NewDocument(), nil, slog.Default())
	router := command.New(bus)
	return New(bus, router, slog.Default()), bus
}

func recordingTransport() (Transport, func() []any) {
	var received []any
	t := Transport{Send: func(payload any) error {
		received = append(received, payload)
		return nil
	}}
	return t, func() []any { return received }
}

func TestHandleConnectSendsInitialSnapshot(t *testing.T) {
	c, bus := newTestCoordinator()
	tr, recv := recordingTransport()

	c.HandleConnect("client-1", tr)

	if bus.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", bus.ClientCount())
	}
	msgs := recv()
	if len(msgs) != 1 {
		t.Fatalf("expected one initial snapshot send, got %d", len(msgs))
	}
	payload := msgs[0].(map[string]any)
	if payload["type"] != "state:full-update" {
		t.Errorf("type = %v, want state:full-update", payload["type"])
	}
}

func TestHandleDisconnectDecrementsClientCount(t *testing.T) {
	c, bus := newTestCoordinator()
	tr, _ := recordingTransport()

	c.HandleConnect("client-1", tr)
	c.HandleDisconnect("client-1")

	if bus.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", bus.ClientCount())
	}
}

func TestStartForwardsPatchesToTransports(t *testing.T) {
	c, bus := newTestCoordinator()
	tr, recv := recordingTransport()
	c.RegisterTransport("client-1", tr)
	c.Start()
	defer c.Stop()

	if _, _, err := bus.Commit(map[statepath.Path]any{statepath.VesselName: "Serenity"}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for len(recv()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	msgs := recv()
	if len(msgs) == 0 {
		t.Fatal("expected the patch to be forwarded to the registered transport")
	}
	payload := msgs[0].(map[string]any)
	if payload["type"] != "state:patch" {
		t.Errorf("type = %v, want state:patch", payload["type"])
	}
}

func TestHandleMessageAnchorUpdate(t *testing.T) {
	c, bus := newTestCoordinator()

	resp, handled := c.HandleMessage("client-1", map[string]any{
		"type": "anchor:update",
		"data": map[string]any{"anchorDeployed": true},
	})
	if !handled {
		t.Fatal("expected anchor:update to be handled")
	}
	ack := resp.(map[string]any)
	if ack["success"] != true {
		t.Errorf("success = %v, want true", ack["success"])
	}

	root, _ := bus.CurrentSnapshot()
	if !root.Anchor.AnchorDeployed {
		t.Fatal("expected anchorDeployed to be applied")
	}
}

func TestHandleMessageLegacyBluetoothShape(t *testing.T) {
	c, _ := newTestCoordinator()

	resp, handled := c.HandleMessage("client-1", map[string]any{
		"serviceName": "state",
		"action":      "bluetooth:toggle",
		"data":        map[string]any{"enabled": true},
	})
	if !handled {
		t.Fatal("expected the legacy bluetooth shape to be handled")
	}
	ack := resp.(map[string]any)
	if ack["type"] != "bluetooth:response" || ack["action"] != "toggle" {
		t.Errorf("unexpected ack: %v", ack)
	}
}

func TestHandleMessageUnknownTypeNotHandled(t *testing.T) {
	c, _ := newTestCoordinator()

	_, handled := c.HandleMessage("client-1", map[string]any{"type": "made-up-type"})
	if handled {
		t.Fatal("expected an unrecognized message type to be unhandled")
	}
}

func TestHandleMessageRequestFullUpdate(t *testing.T) {
	c, _ := newTestCoordinator()

	resp, handled := c.HandleMessage("client-1", map[string]any{
		"type":      "state:request-full-update",
		"requestId": "req-1",
	})
	if !handled {
		t.Fatal("expected a full-update request to be handled")
	}
	payload := resp.(map[string]any)
	if payload["requestId"] != "req-1" {
		t.Errorf("requestId = %v, want req-1", payload["requestId"])
	}
}

func TestPublishSkipsTransportsFailingShouldSend(t *testing.T) {
	c, _ := newTestCoordinator()
	blocked, recvBlocked := recordingTransport()
	blocked.ShouldSend = func(payload any) bool { return false }
	allowed, recvAllowed := recordingTransport()

	c.RegisterTransport("blocked", blocked)
	c.RegisterTransport("allowed", allowed)

	c.Publish(map[string]any{"type": "test"})

	if len(recvBlocked()) != 0 {
		t.Error("expected the blocked transport to receive nothing")
	}
	if len(recvAllowed()) != 1 {
		t.Error("expected the allowed transport to receive the payload")
	}
}
