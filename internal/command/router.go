// Package command implements the CommandRouter: a thin delegate,
// consumed by internal/sync's ClientSyncCoordinator, that gives each
// typed inbound client command a validated mutator against the
// StateBus and a shaped acknowledgement. Mutators are idempotent by
// construction — they delegate to statebus.Bus methods that already
// collapse repeated writes to a no-op via ApplyBatch's unchanged-write
// rule.
package command

import (
	"fmt"
	"time"

	"github.com/compendiumnav/boatrelay/internal/state"
	"github.com/compendiumnav/boatrelay/internal/statebus"
)

// Router is the CommandRouter.
type Router struct {
	bus *statebus.Bus
}

// New constructs a Router over bus.
func New(bus *statebus.Bus) *Router {
	return &Router{bus: bus}
}

// AnchorUpdate validates data against the anchor:update payload shape
// and applies whatever fields are present in one commit, per §4.1's
// AnchorState data model. Fields absent from data are left unchanged.
func (r *Router) AnchorUpdate(data map[string]any) (success bool, err error) {
	update := statebus.AnchorUpdate{}

	if v, ok := data["anchorDeployed"]; ok {
		b, ok := asBool(v)
		if !ok {
			return false, fmt.Errorf("%w: anchorDeployed must be a bool", ErrInvalidPayload)
		}
		update.AnchorDeployed = &b
	}
	if v, ok := data["anchorDropLocation"]; ok {
		m, ok := asMap(v)
		if !ok {
			return false, fmt.Errorf("%w: anchorDropLocation must be an object", ErrInvalidPayload)
		}
		pos, err := parsePosition(m["position"])
		if err != nil {
			return false, err
		}
		update.AnchorDropLocation = &pos
	}
	if v, ok := data["rode"]; ok {
		rode, err := parseRode(v)
		if err != nil {
			return false, err
		}
		update.Rode = rode
	}
	if v, ok := data["criticalRange"]; ok {
		rng, err := parseRange(v)
		if err != nil {
			return false, err
		}
		update.CriticalRange = rng
	}
	if v, ok := data["warningRange"]; ok {
		rng, err := parseRange(v)
		if err != nil {
			return false, err
		}
		update.WarningRange = rng
	}

	if _, _, err := r.bus.UpdateAnchorState(update); err != nil {
		return false, err
	}
	return true, nil
}

// AnchorReset wipes the anchor subtree back to its undeployed state.
func (r *Router) AnchorReset() (success bool, err error) {
	if _, _, err := r.bus.ResetAnchorState(); err != nil {
		return false, err
	}
	return true, nil
}

// BluetoothAction validates and applies one of the six bluetooth:*
// actions §4.8 names, returning the fields a
// `{type:"bluetooth:response", action, success, ...}` ack needs.
func (r *Router) BluetoothAction(action string, data map[string]any) (extra map[string]any, err error) {
	switch action {
	case "toggle":
		enabled, ok := asBool(data["enabled"])
		if !ok {
			return nil, fmt.Errorf("%w: enabled must be a bool", ErrInvalidPayload)
		}
		if _, _, err := r.bus.ToggleBluetooth(enabled); err != nil {
			return nil, err
		}
		return map[string]any{"enabled": enabled}, nil

	case "scan":
		scanning, ok := asBool(data["scanning"])
		if !ok {
			scanning = true
		}
		if _, _, err := r.bus.UpdateBluetoothScanningStatus(scanning); err != nil {
			return nil, err
		}
		return map[string]any{"scanning": scanning}, nil

	case "select-device":
		id, ok := asString(data["deviceId"])
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: deviceId required", ErrInvalidPayload)
		}
		if _, _, err := r.bus.SetBluetoothDeviceSelected(id, true); err != nil {
			return nil, err
		}
		return map[string]any{"deviceId": id}, nil

	case "deselect-device":
		id, ok := asString(data["deviceId"])
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: deviceId required", ErrInvalidPayload)
		}
		if _, _, err := r.bus.SetBluetoothDeviceSelected(id, false); err != nil {
			return nil, err
		}
		return map[string]any{"deviceId": id}, nil

	case "rename-device":
		id, ok := asString(data["deviceId"])
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: deviceId required", ErrInvalidPayload)
		}
		name, ok := asString(data["name"])
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: name required", ErrInvalidPayload)
		}
		if _, _, err := r.bus.UpdateBluetoothDeviceMetadata(id, map[string]any{"name": name}); err != nil {
			return nil, err
		}
		return map[string]any{"deviceId": id, "name": name}, nil

	case "update-metadata":
		id, ok := asString(data["deviceId"])
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: deviceId required", ErrInvalidPayload)
		}
		metadata, _ := asMap(data["metadata"])
		if _, _, err := r.bus.UpdateBluetoothDeviceMetadata(id, metadata); err != nil {
			return nil, err
		}
		return map[string]any{"deviceId": id}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBluetoothAction, action)
	}
}

// TideUpdate and WeatherUpdate apply a forecast/observation payload as
// a key-wise merge into their respective subtrees.
func (r *Router) TideUpdate(data map[string]any) error {
	_, _, err := r.bus.UpdateTide(data)
	return err
}

func (r *Router) WeatherUpdate(data map[string]any) error {
	_, _, err := r.bus.UpdateWeather(data)
	return err
}

// FullSnapshot returns the current StateDocument snapshot and commit
// sequence, for state:request-full-update-style commands.
func (r *Router) FullSnapshot() (state.Root, uint64) {
	return r.bus.CurrentSnapshot()
}

// Now is overridable in tests that need deterministic ack timestamps.
var Now = time.Now
