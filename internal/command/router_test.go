package command

import (
	"log/slog"
	"testing"

	"github.com/compendiumnav/boatrelay/internal/state"
	"github.com/compendiumnav/boatrelay/internal/statebus"
)

func newTestRouter() (*Router, *statebus.Bus) {
	bus := statebus.New(state.NewDocument(), nil, slog.Default())
	return New(bus), bus
}

func TestAnchorUpdateAppliesPartialFields(t *testing.T) {
	r, bus := newTestRouter()

	ok, err := r.AnchorUpdate(map[string]any{
		"anchorDeployed": true,
		"anchorDropLocation": map[string]any{
			"position": map[string]any{"latitude": 41.0, "longitude": -71.0},
		},
	})
	if err != nil {
		t.Fatalf("AnchorUpdate: %v", err)
	}
	if !ok {
		t.Fatal("expected success")
	}

	root, _ := bus.CurrentSnapshot()
	if !root.Anchor.AnchorDeployed {
		t.Fatal("expected anchorDeployed to be true")
	}
	if root.Anchor.AnchorDropLocation == nil || root.Anchor.AnchorDropLocation.Position.Latitude != 41.0 {
		t.Fatal("expected a drop location to be recorded")
	}
}

func TestAnchorUpdateIsIdempotent(t *testing.T) {
	r, bus := newTestRouter()
	payload := map[string]any{"anchorDeployed": true}

	if _, err := r.AnchorUpdate(payload); err != nil {
		t.Fatalf("first AnchorUpdate: %v", err)
	}
	if _, err := r.AnchorUpdate(payload); err != nil {
		t.Fatalf("second AnchorUpdate: %v", err)
	}

	root, _ := bus.CurrentSnapshot()
	if !root.Anchor.AnchorDeployed {
		t.Fatal("expected anchorDeployed to remain true")
	}
}

func TestAnchorUpdateRejectsInvalidPayload(t *testing.T) {
	r, _ := newTestRouter()

	if _, err := r.AnchorUpdate(map[string]any{"anchorDeployed": "yes"}); err == nil {
		t.Fatal("expected an error for a non-bool anchorDeployed")
	}
}

func TestAnchorResetClearsDeployedState(t *testing.T) {
	r, bus := newTestRouter()
	if _, err := r.AnchorUpdate(map[string]any{"anchorDeployed": true}); err != nil {
		t.Fatalf("AnchorUpdate: %v", err)
	}

	ok, err := r.AnchorReset()
	if err != nil {
		t.Fatalf("AnchorReset: %v", err)
	}
	if !ok {
		t.Fatal("expected success")
	}

	root, _ := bus.CurrentSnapshot()
	if root.Anchor.AnchorDeployed {
		t.Fatal("expected anchorDeployed to be false after reset")
	}
}

func TestBluetoothActionToggle(t *testing.T) {
	r, bus := newTestRouter()

	extra, err := r.BluetoothAction("toggle", map[string]any{"enabled": true})
	if err != nil {
		t.Fatalf("BluetoothAction: %v", err)
	}
	if extra["enabled"] != true {
		t.Errorf("extra[enabled] = %v, want true", extra["enabled"])
	}

	root, _ := bus.CurrentSnapshot()
	if root.Bluetooth["enabled"] != true {
		t.Errorf("bluetooth.enabled = %v, want true", root.Bluetooth["enabled"])
	}
}

func TestBluetoothActionSelectDeselectDevice(t *testing.T) {
	r, _ := newTestRouter()

	if _, err := r.BluetoothAction("select-device", map[string]any{"deviceId": "dev-1"}); err != nil {
		t.Fatalf("select-device: %v", err)
	}
	if _, err := r.BluetoothAction("deselect-device", map[string]any{"deviceId": "dev-1"}); err != nil {
		t.Fatalf("deselect-device: %v", err)
	}
	if _, err := r.BluetoothAction("select-device", map[string]any{}); err == nil {
		t.Fatal("expected an error for a missing deviceId")
	}
}

func TestBluetoothActionRenameDevice(t *testing.T) {
	r, bus := newTestRouter()

	if _, err := r.BluetoothAction("rename-device", map[string]any{"deviceId": "dev-1", "name": "Saloon Sensor"}); err != nil {
		t.Fatalf("rename-device: %v", err)
	}
	root, _ := bus.CurrentSnapshot()
	if root.Bluetooth["name"] != "Saloon Sensor" {
		t.Errorf("bluetooth.name = %v, want Saloon Sensor", root.Bluetooth["name"])
	}
}

func TestBluetoothActionUnknown(t *testing.T) {
	r, _ := newTestRouter()
	if _, err := r.BluetoothAction("detonate", nil); err == nil {
		t.Fatal("expected an error for an unrecognized bluetooth action")
	}
}

func TestTideAndWeatherUpdate(t *testing.T) {
	r, bus := newTestRouter()

	if err := r.TideUpdate(map[string]any{"height": 1.2}); err != nil {
		t.Fatalf("TideUpdate: %v", err)
	}
	if err := r.WeatherUpdate(map[string]any{"condition": "clear"}); err != nil {
		t.Fatalf("WeatherUpdate: %v", err)
	}

	root, _ := bus.CurrentSnapshot()
	if root.Tide["height"] != 1.2 {
		t.Errorf("tide.height = %v, want 1.2", root.Tide["height"])
	}
	if root.Weather["condition"] != "clear" {
		t.Errorf("weather.condition = %v, want clear", root.Weather["condition"])
	}
}

func TestFullSnapshotReturnsCurrentState(t *testing.T) {
	r, bus := newTestRouter()
	if err := r.TideUpdate(map[string]any{"height": 2.0}); err != nil {
		t.Fatalf("TideUpdate: %v", err)
	}

	root, seq := r.FullSnapshot()
	busRoot, busSeq := bus.CurrentSnapshot()
	if seq != busSeq {
		t.Errorf("seq = %d, want %d", seq, busSeq)
	}
	if root.Tide["height"] != busRoot.Tide["height"] {
		t.Errorf("FullSnapshot diverged from bus snapshot")
	}
}
