// Package sync implements the ClientSyncCoordinator: the single
// subscriber to the StateBus that fans patches and full updates out to
// every registered transport (DirectServer connections, the
// UpstreamTunnel), and the single entry point inbound client commands
// pass through before reaching the CommandRouter. The per-transport
// send/shouldSend registry is reference-grounded on
// paulwilltell-OFFGRIDFLOW's realtime hub (per-client filtering),
// reimplemented in the teacher's small-struct, explicit-lock style.
package sync

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/compendiumnav/boatrelay/internal/command"
	"github.com/compendiumnav/boatrelay/internal/statebus"
)

// Transport is what DirectServer and UpstreamTunnel each register:
// Send delivers one payload; ShouldSend, if set, gates delivery
// without invoking Send (used by the UpstreamTunnel's admission
// control).
type Transport struct {
	Send       func(payload any) error
	ShouldSend func(payload any) bool
}

// Coordinator is the ClientSyncCoordinator.
type Coordinator struct {
	bus    *statebus.Bus
	router *command.Router
	log    *slog.Logger

	mu         sync.Mutex
	transports map[string]Transport

	unsubs []func()
}

// New constructs a Coordinator over bus and router. Call Start to
// begin forwarding bus events to registered transports.
func New(bus *statebus.Bus, router *command.Router, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{bus: bus, router: router, log: log, transports: make(map[string]Transport)}
}

// Start subscribes once to the StateBus and spawns the forwarding
// goroutines; it returns immediately. Call Stop to unwind.
func (c *Coordinator) Start() {
	patchCh, unsubPatch := c.bus.OnPatch(64)
	fullCh, unsubFull := c.bus.OnFullUpdate(16)
	tideCh, unsubTide := c.bus.OnTide(8)
	weatherCh, unsubWeather := c.bus.OnWeather(8)
	c.unsubs = []func(){unsubPatch, unsubFull, unsubTide, unsubWeather}

	go c.forward(patchCh, func(ev statebus.Event) any {
		return map[string]any{"type": "state:patch", "seq": ev.Seq, "patch": ev.Patch}
	})
	go c.forward(fullCh, func(ev statebus.Event) any {
		return map[string]any{"type": "state:full-update", "seq": ev.Seq, "state": ev.Snapshot}
	})
	go c.forward(tideCh, func(ev statebus.Event) any {
		return map[string]any{"type": "tide:update", "seq": ev.Seq}
	})
	go c.forward(weatherCh, func(ev statebus.Event) any {
		return map[string]any{"type": "weather:update", "seq": ev.Seq}
	})
}

// Stop unsubscribes from the StateBus; the forwarding goroutines exit
// once their channel closes.
func (c *Coordinator) Stop() {
	for _, unsub := range c.unsubs {
		unsub()
	}
}

func (c *Coordinator) forward(ch <-chan statebus.Event, toPayload func(statebus.Event) any) {
	for ev := range ch {
		c.Publish(toPayload(ev))
	}
}

// Publish fans payload out to every registered transport, consulting
// ShouldSend first when set. A send failure on one transport is
// logged and does not affect the others.
func (c *Coordinator) Publish(payload any) {
	c.mu.Lock()
	transports := make(map[string]Transport, len(c.transports))
	for name, t := range c.transports {
		transports[name] = t
	}
	c.mu.Unlock()

	for name, t := range transports {
		if t.ShouldSend != nil && !t.ShouldSend(payload) {
			continue
		}
		if err := t.Send(payload); err != nil {
			c.log.Warn("sync: transport send failed", "transport", name, "error", err)
		}
	}
}

// RegisterTransport adds name to the fan-out set.
func (c *Coordinator) RegisterTransport(name string, t Transport) {
	c.mu.Lock()
	c.transports[name] = t
	c.mu.Unlock()
}

// UnregisterTransport removes name from the fan-out set.
func (c *Coordinator) UnregisterTransport(name string) {
	c.mu.Lock()
	delete(c.transports, name)
	c.mu.Unlock()
}

// HandleConnect bumps the client-count gauge and pushes the current
// snapshot directly to the newly connected transport, per §4.8's
// connection lifecycle. The transport is registered before the
// snapshot is read, so no patch published in between is missed.
func (c *Coordinator) HandleConnect(name string, t Transport) {
	c.RegisterTransport(name, t)
	c.bus.IncrementClientCount()

	snap, seq := c.bus.CurrentSnapshot()
	payload := map[string]any{"type": "state:full-update", "seq": seq, "state": snap}
	if err := t.Send(payload); err != nil {
		c.log.Warn("sync: initial snapshot send failed", "transport", name, "error", err)
	}
}

// HandleDisconnect decrements the client-count gauge (floored at 0)
// and unregisters the transport.
func (c *Coordinator) HandleDisconnect(name string) {
	c.UnregisterTransport(name)
	c.bus.DecrementClientCount()
}

// HandleMessage normalizes and dispatches one inbound client command,
// returning the response payload (if any) the caller should send back
// to the originating transport and whether the message type was
// recognized. An unrecognized type returns handled=false so the
// caller can apply its own fallback (currently: ignore).
func (c *Coordinator) HandleMessage(sourceTransport string, raw map[string]any) (response any, handled bool) {
	msg := normalizeInbound(raw)
	msgType, _ := asString(msg["type"])

	switch msgType {
	case "test":
		return map[string]any{"type": "test:ack", "success": true}, true

	case "state:request-full-update", "get-full-state", "request-full-state":
		snap, seq := c.router.FullSnapshot()
		return map[string]any{
			"type":      "state:full-update",
			"seq":       seq,
			"state":     snap,
			"requestId": msg["requestId"],
		}, true

	case "state:full-update", "state:patch":
		c.publishToPeers(sourceTransport, msg)
		return nil, true

	case "anchor:update":
		data, _ := asMap(msg["data"])
		success, err := c.router.AnchorUpdate(data)
		return ackOrError("anchor:update:ack", success, err), true

	case "anchor:reset":
		success, err := c.router.AnchorReset()
		return map[string]any{
			"type":      "anchor:reset:ack",
			"success":   success && err == nil,
			"timestamp": time.Now(),
			"error":     errString(err),
		}, true

	case "tide:update":
		data, _ := asMap(msg["data"])
		err := c.router.TideUpdate(data)
		if err == nil {
			c.publishToPeers(sourceTransport, msg)
		}
		return ackOrError("tide:update:ack", err == nil, err), true

	case "weather:update":
		data, _ := asMap(msg["data"])
		err := c.router.WeatherUpdate(data)
		if err == nil {
			c.publishToPeers(sourceTransport, msg)
		}
		return ackOrError("weather:update:ack", err == nil, err), true

	default:
		if action, ok := bluetoothAction(msgType); ok {
			extra, err := c.router.BluetoothAction(action, msg)
			resp := map[string]any{"type": "bluetooth:response", "action": action, "success": err == nil}
			for k, v := range extra {
				resp[k] = v
			}
			if err != nil {
				resp["error"] = err.Error()
			}
			return resp, true
		}
		return nil, false
	}
}

func bluetoothAction(msgType string) (string, bool) {
	const prefix = "bluetooth:"
	if len(msgType) > len(prefix) && msgType[:len(prefix)] == prefix {
		return msgType[len(prefix):], true
	}
	return "", false
}

func (c *Coordinator) publishToPeers(sourceTransport string, payload any) {
	c.mu.Lock()
	transports := make(map[string]Transport, len(c.transports))
	for name, t := range c.transports {
		if name == sourceTransport {
			continue
		}
		transports[name] = t
	}
	c.mu.Unlock()

	for name, t := range transports {
		if t.ShouldSend != nil && !t.ShouldSend(payload) {
			continue
		}
		if err := t.Send(payload); err != nil {
			c.log.Warn("sync: peer broadcast failed", "transport", name, "error", err)
		}
	}
}

func ackOrError(ackType string, success bool, err error) map[string]any {
	ack := map[string]any{"type": ackType, "success": success}
	if err != nil {
		ack["error"] = err.Error()
	}
	return ack
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// DecodeMessage is a small convenience wrapper for transports that
// receive raw JSON frames (DirectServer, UpstreamTunnel) rather than
// pre-decoded maps.
func DecodeMessage(raw []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
