package statebus

import (
	"time"

	"github.com/compendiumnav/boatrelay/internal/state"
	"github.com/compendiumnav/boatrelay/internal/statepath"
)

// AnchorUpdate is the payload shape for updateAnchorState: any nil
// field is left unchanged. Applying the same drop payload twice is a
// no-op on the second call: a drop position equal to the recorded one
// is not rewritten (so its time is kept), and the other fields rely on
// ApplyBatch's unchanged-write rule, giving the idempotence
// CommandRouter's contract requires.
type AnchorUpdate struct {
	AnchorDeployed     *bool
	AnchorDropLocation *state.Position
	Rode               *state.Rode
	CriticalRange      *state.Range
	WarningRange       *state.Range
}

// UpdateAnchorState applies a partial anchor update in one commit.
func (b *Bus) UpdateAnchorState(update AnchorUpdate) (state.Patch, uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	updates := map[statepath.Path]any{}
	if update.AnchorDeployed != nil {
		updates[statepath.AnchorDeployed] = *update.AnchorDeployed
	}
	if update.AnchorDropLocation != nil {
		cur := b.doc.Snapshot().Anchor.AnchorDropLocation
		if cur == nil || cur.Position.Latitude != update.AnchorDropLocation.Latitude ||
			cur.Position.Longitude != update.AnchorDropLocation.Longitude {
			updates[statepath.AnchorDropLocation] = &state.DropLocation{
				Position: *update.AnchorDropLocation,
				Time:     time.Now(),
			}
		}
	}
	if update.Rode != nil {
		updates[statepath.AnchorRode] = update.Rode
	}
	if update.CriticalRange != nil {
		updates[statepath.AnchorCriticalRange] = update.CriticalRange
	}
	if update.WarningRange != nil {
		updates[statepath.AnchorWarningRange] = update.WarningRange
	}
	if len(updates) == 0 {
		return nil, b.seq, nil
	}
	return b.commitLocked(updates, false)
}

// ResetAnchorState clears the anchor subtree back to its undeployed
// state and resolves any unacknowledged auto-resolvable anchor-category
// alerts, per DESIGN.md Open Question 3 (history is left untouched). A
// second call in a row is a no-op: the anchor fields are already at
// their reset values, so ApplyBatch emits no ops for them (only the
// alert-resolution patch, if any alerts were still open, would appear
// once).
func (b *Bus) ResetAnchorState() (state.Patch, uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	deployed := false
	updates := map[statepath.Path]any{
		statepath.AnchorDeployed:          deployed,
		statepath.AnchorDropLocation:      (*state.DropLocation)(nil),
		statepath.AnchorLocation:          (*state.AnchorLocationInfo)(nil),
		statepath.AnchorDragging:          false,
		statepath.AnchorRodeCircleViolation: false,
		statepath.AnchorAISWarning:        false,
	}

	current := b.doc.Snapshot()
	resolved := resolveAlertsByCategory(current.Alerts.Active, "anchor", time.Now())
	updates[statepath.AlertsActive] = resolved

	return b.commitLocked(updates, false)
}

// resolveAlertsByCategory marks every unacknowledged, auto-resolvable
// alert in the given category as resolved. Acknowledged alerts and
// alerts outside the category are left untouched — resetting the
// anchor doesn't rewrite history a client is already showing.
func resolveAlertsByCategory(alerts []state.Alert, category string, now time.Time) []state.Alert {
	out := make([]state.Alert, len(alerts))
	copy(out, alerts)
	for i := range out {
		a := &out[i]
		if a.Category != category || !a.AutoResolvable || a.Acknowledged || a.ResolvedAt != nil {
			continue
		}
		resolvedAt := now
		a.ResolvedAt = &resolvedAt
	}
	return out
}

// UpdateTide replaces the tide subtree (key-wise merge, per the map
// accessor's semantics) and publishes a tide event in addition to the
// patch event.
func (b *Bus) UpdateTide(payload map[string]any) (state.Patch, uint64, error) {
	b.mu.Lock()
	patch, seq, err := b.commitLocked(map[statepath.Path]any{statepath.Tide: payload}, false)
	b.mu.Unlock()
	if err == nil {
		b.publish(Event{Kind: KindTide, Seq: seq, Timestamp: time.Now()})
	}
	return patch, seq, err
}

// UpdateWeather replaces the weather subtree and publishes a weather
// event in addition to the patch event.
func (b *Bus) UpdateWeather(payload map[string]any) (state.Patch, uint64, error) {
	b.mu.Lock()
	patch, seq, err := b.commitLocked(map[statepath.Path]any{statepath.Weather: payload}, false)
	b.mu.Unlock()
	if err == nil {
		b.publish(Event{Kind: KindWeather, Seq: seq, Timestamp: time.Now()})
	}
	return patch, seq, err
}

// UpdateBluetoothScanningStatus, SetBluetoothDeviceSelected,
// UpdateBluetoothDeviceMetadata, and ToggleBluetooth all merge into
// the free-form bluetooth subtree; Bluetooth device control itself is
// an external collaborator's concern (out of scope per SPEC_FULL.md
// §1), so these are thin key-wise merges with no domain validation.
func (b *Bus) UpdateBluetoothScanningStatus(scanning bool) (state.Patch, uint64, error) {
	return b.mergeBluetooth(map[string]any{"scanning": scanning})
}

func (b *Bus) SetBluetoothDeviceSelected(deviceID string, selected bool) (state.Patch, uint64, error) {
	return b.mergeBluetooth(map[string]any{"selectedDevice": deviceID, "selected": selected})
}

func (b *Bus) UpdateBluetoothDeviceMetadata(deviceID string, metadata map[string]any) (state.Patch, uint64, error) {
	merged := map[string]any{"deviceId": deviceID}
	for k, v := range metadata {
		merged[k] = v
	}
	return b.mergeBluetooth(merged)
}

func (b *Bus) ToggleBluetooth(enabled bool) (state.Patch, uint64, error) {
	return b.mergeBluetooth(map[string]any{"enabled": enabled})
}

func (b *Bus) mergeBluetooth(payload map[string]any) (state.Patch, uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.commitLocked(map[statepath.Path]any{statepath.Bluetooth: payload}, false)
}
