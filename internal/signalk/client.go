// Package signalk implements the SignalKIngestor: discovery of a boat's
// SignalK server, a subscribed delta-stream WebSocket connection, and
// the mapping from SignalK's dynamic path strings onto the canonical
// statepath registry. The connect/reconnect shape is adapted directly
// from the teacher's internal/homeassistant WSClient (connect, auth
// where applicable, readLoop, fixed-delay reconnect) — SignalK has no
// auth handshake of its own beyond an optional bearer token, so the
// auth step here is a query parameter rather than a request/response
// exchange.
package signalk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/compendiumnav/boatrelay/internal/batch"
	"github.com/compendiumnav/boatrelay/internal/config"
	"github.com/compendiumnav/boatrelay/internal/state"
	"github.com/compendiumnav/boatrelay/internal/statebus"
	"github.com/compendiumnav/boatrelay/internal/statepath"
	"github.com/compendiumnav/boatrelay/internal/units"
)

// Ingestor is the SignalKIngestor. Construct with New.
type Ingestor struct {
	cfg         config.SignalKConfig
	httpClient  *http.Client
	coordinator *batch.Coordinator
	bus         *statebus.Bus
	prefs       units.Preferences
	log         *slog.Logger

	conn *websocket.Conn
}

// New constructs an Ingestor. bus is read (never written) to supply
// the "other operand" for heading/wind transforms; all writes go
// through coordinator, matching the dataflow in SPEC_FULL.md §2.
func New(cfg config.SignalKConfig, coordinator *batch.Coordinator, bus *statebus.Bus, prefs units.Preferences, httpClient *http.Client, log *slog.Logger) *Ingestor {
	if log == nil {
		log = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Ingestor{cfg: cfg, httpClient: httpClient, coordinator: coordinator, bus: bus, prefs: prefs, log: log}
}

// Run drives discovery, connection, subscription, and the delta read
// loop until ctx is canceled or the reconnect budget is exhausted. On
// exhaustion it returns a non-nil error and the ingestor goes quiet;
// the rest of the system keeps serving the last known state, per §7's
// error policy.
func (i *Ingestor) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := i.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			// readLoop only returns nil on a clean server-initiated close;
			// treat it the same as an error for reconnect purposes.
			err = fmt.Errorf("signalk: connection closed")
		}

		attempt++
		i.log.Error("signalk: connection lost", "attempt", attempt, "max", i.cfg.MaxReconnectAttempts, "error", err)
		if attempt >= i.cfg.MaxReconnectAttempts {
			return fmt.Errorf("signalk: max reconnect attempts (%d) exhausted: %w", i.cfg.MaxReconnectAttempts, err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(i.cfg.ReconnectDelay):
		}
	}
}

// runOnce performs one discover -> connect -> subscribe -> read cycle.
func (i *Ingestor) runOnce(ctx context.Context) error {
	wsURL, err := discover(ctx, i.httpClient, i.cfg.URL)
	if err != nil {
		return err
	}

	u, err := url.Parse(wsURL)
	if err != nil {
		return fmt.Errorf("signalk: parse ws endpoint: %w", err)
	}
	if i.cfg.Token != "" {
		q := u.Query()
		q.Set("token", i.cfg.Token)
		u.RawQuery = q.Encode()
	}

	i.log.Info("signalk: connecting", "url", u.String())
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("signalk: dial: %w", err)
	}
	i.conn = conn
	defer conn.Close()

	sub := subscriptionFrame{
		Context: "*",
		Subscribe: []subscriptionEntry{
			{Path: "*", Period: i.cfg.UpdateInterval.Milliseconds()},
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("signalk: send subscription: %w", err)
	}
	i.log.Info("signalk: subscribed", "period_ms", sub.Subscribe[0].Period)

	return i.readLoop(conn)
}

// subscriptionFrame is the SignalK subscribe request, per §6.
type subscriptionFrame struct {
	Context   string              `json:"context"`
	Subscribe []subscriptionEntry `json:"subscribe"`
}

type subscriptionEntry struct {
	Path   string `json:"path"`
	Period int64  `json:"period"`
}

// deltaFrame is an incoming SignalK delta, per §6:
// {"updates":[{"$source":s,"values":[{"path":p,"value":v}, ...]}, ...]}
type deltaFrame struct {
	Context string        `json:"context"`
	Updates []deltaUpdate `json:"updates"`
}

type deltaUpdate struct {
	Source    json.RawMessage `json:"$source"`
	Timestamp string          `json:"timestamp"`
	Values    []deltaValue    `json:"values"`
}

type deltaValue struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// readLoop reads delta frames until the connection closes or errors.
// A parse failure on a single frame is logged and skipped, per §7:
// "Parse errors on individual inbound frames are logged and skipped;
// the connection continues." A close or read error ends the loop so
// Run's reconnect logic can take over.
func (i *Ingestor) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		var frame deltaFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			i.log.Warn("signalk: dropping unparsable frame", "error", fmt.Errorf("%w: %v", ErrParseFailed, err))
			continue
		}

		i.handleFrame(frame)
	}
}

// handleFrame extracts every value from a delta frame and enqueues its
// canonical mapping (plus any derived transforms) to the
// BatchCoordinator. Unknown paths are dropped, except for the
// "notifications." prefix which is handled separately per §4.3 step 4.
func (i *Ingestor) handleFrame(frame deltaFrame) {
	var updates []batch.Update
	for _, upd := range frame.Updates {
		for _, v := range upd.Values {
			if notifPrefix(v.Path) {
				i.handleNotification(v.Path, v.Value)
				continue
			}

			canonical, ok := statepath.FromSignalK(v.Path)
			if !ok {
				continue // unknown inbound paths are dropped, not stashed
			}

			typed, siValue, hasSI, err := i.decodeValue(canonical, v.Value)
			if err != nil {
				i.log.Warn("signalk: dropping unparsable value", "path", v.Path, "error", fmt.Errorf("%w: %v", ErrParseFailed, err))
				continue
			}
			updates = append(updates, batch.Update{Path: canonical, Value: typed})

			if hasSI {
				snap, _ := i.bus.CurrentSnapshot()
				updates = append(updates, deriveTransforms(canonical, siValue, snap, i.prefs)...)
			}
		}
	}
	if len(updates) > 0 {
		i.coordinator.EnqueueAll(updates)
	}
}

// decodeValue converts a delta value's raw JSON into the typed form
// the statepath accessor for canonical expects. For scalar dimensions
// it also returns the SI value (for transform derivation) and
// hasSI=true; composite/string paths return hasSI=false.
func (i *Ingestor) decodeValue(canonical statepath.Path, raw json.RawMessage) (typed any, siValue float64, hasSI bool, err error) {
	switch canonical {
	case statepath.NavPosition:
		var pos struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		}
		if err := json.Unmarshal(raw, &pos); err != nil {
			return nil, 0, false, err
		}
		return state.Position{Latitude: pos.Latitude, Longitude: pos.Longitude}, 0, false, nil

	case statepath.VesselName, statepath.VesselMMSI:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, 0, false, err
		}
		return s, 0, false, nil

	default:
		if statepath.DimensionOf(canonical) == statepath.DimensionNone {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, 0, false, err
			}
			return v, 0, false, nil
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, 0, false, err
		}
		v, unit := units.ConvertWithPreferences(canonical, f, i.prefs)
		return &state.Scalar{Value: v, Units: unit}, f, true, nil
	}
}

func notifPrefix(path string) bool {
	const prefix = "notifications."
	return len(path) > len(prefix) && path[:len(prefix)] == prefix
}

// handleNotification converts a SignalK notification into an
// alerts.active refresh, merged against the current bus snapshot so it
// does not clobber derivation-created alerts for other triggers. This
// is a best-effort merge (read snapshot, compute, enqueue) rather than
// a fully serialized read-modify-write; notifications are low-rate
// enough in practice that the race window is not a correctness concern
// for this system's alerting surface.
func (i *Ingestor) handleNotification(path string, raw json.RawMessage) {
	var notif struct {
		State   string `json:"state"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &notif); err != nil {
		i.log.Warn("signalk: dropping unparsable notification", "path", path, "error", err)
		return
	}

	snap, _ := i.bus.CurrentSnapshot()
	merged := mergeNotificationAlert(snap.Alerts.Active, path, notif.State, notif.Message, time.Now())
	i.coordinator.Enqueue(statepath.AlertsActive, merged)
}

// mergeNotificationAlert applies a single SignalK notification to the
// alerts list: a "normal" state resolves any unacknowledged alert for
// that trigger; any other state creates one if none is already open,
// or updates the message of the existing one, enforcing the "at most
// one unacknowledged alert per trigger" invariant.
func mergeNotificationAlert(alerts []state.Alert, path, notifState, message string, now time.Time) []state.Alert {
	out := make([]state.Alert, len(alerts))
	copy(out, alerts)

	idx := -1
	for j := range out {
		if out[j].Trigger == path && out[j].ResolvedAt == nil {
			idx = j
			break
		}
	}

	if notifState == "" || notifState == "normal" {
		if idx >= 0 {
			resolvedAt := now
			out[idx].ResolvedAt = &resolvedAt
		}
		return out
	}

	level := notificationLevel(notifState)
	if idx >= 0 {
		out[idx].Level = level
		out[idx].Message = message
		return out
	}

	return append(out, state.Alert{
		ID:             notificationID(path, now),
		Type:           "signalk_notification",
		Category:       "signalk",
		Source:         "signalk",
		Level:          level,
		Label:          path,
		Message:        message,
		Trigger:        path,
		AutoResolvable: true,
		CreatedAt:      now,
	})
}

func notificationLevel(notifState string) string {
	switch notifState {
	case "alarm", "emergency":
		return state.LevelEmergency
	case "alert":
		return state.LevelCritical
	case "warn":
		return state.LevelWarning
	default:
		return state.LevelInfo
	}
}

func notificationID(path string, now time.Time) string {
	return "notif-" + path + "-" + strconv.FormatInt(now.UnixNano(), 36)
}
