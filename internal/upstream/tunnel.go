// Package upstream implements the UpstreamTunnel: the single
// authenticated WebSocket connection to the cloud relay. It registers
// itself as a clientsync.Transport the same way internal/directserver
// does, but gates outbound traffic with admission control keyed on a
// relay-reported remote client count rather than accepting every
// connection unauthenticated. The connect/handshake/reconnect shape is
// adapted from the teacher's internal/homeassistant WSClient and
// internal/signalk's fixed-delay Run/runOnce loop, generalized from
// connwatch's exponential backoff down to §4.10's literal bounded
// fixed-delay contract.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/compendiumnav/boatrelay/internal/config"
	clientsync "github.com/compendiumnav/boatrelay/internal/sync"
)

const (
	transportName  = "upstream"
	outboundBuffer = 64
)

// alwaysAllow is the admission-control allow-list: these message types
// are written to the socket regardless of remoteClientCount, per
// §4.10's outbound rule and testable property 10.
var alwaysAllow = map[string]bool{
	"identity":  true,
	"register":  true,
	"subscribe": true,
	"heartbeat": true,
	"ping":      true,
}

// Tunnel is the UpstreamTunnel.
type Tunnel struct {
	cfg        config.UpstreamConfig
	production bool
	id         Identity
	coord      *clientsync.Coordinator
	log        *slog.Logger

	remoteClientCount atomic.Int64
	outbound          chan any
}

// New constructs a Tunnel. production selects the wss/ports-80-443
// URL rules (config.Config.Production()); id supplies the boat's
// credential, loaded by the caller's journal collaborator before
// construction.
func New(cfg config.UpstreamConfig, production bool, id Identity, coord *clientsync.Coordinator, log *slog.Logger) *Tunnel {
	if log == nil {
		log = slog.Default()
	}
	return &Tunnel{cfg: cfg, production: production, id: id, coord: coord, log: log}
}

// RemoteClientCount returns the most recently reported count of
// clients attached to this boat on the cloud side of the relay.
func (t *Tunnel) RemoteClientCount() int64 {
	return t.remoteClientCount.Load()
}

// Run dials, authenticates, and services the relay connection until
// ctx is canceled or the reconnect budget (cfg.MaxRetries) is
// exhausted. On exhaustion it returns ErrMaxRetriesExhausted; the rest
// of the system keeps emitting patches locally regardless, per §7's
// "upstream tunnel loss is silent to local clients" policy.
func (t *Tunnel) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := t.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errors.New("upstream: connection closed")
		}

		attempt++
		t.log.Error("upstream: connection lost", "attempt", attempt, "max", t.cfg.MaxRetries, "error", err)
		if attempt >= t.cfg.MaxRetries {
			t.log.Error("upstream: max reconnect attempts exhausted", "attempts", attempt)
			return fmt.Errorf("%w: %d attempts", ErrMaxRetriesExhausted, attempt)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(t.cfg.ReconnectInterval):
		}
	}
}

// runOnce performs one connect -> handshake -> steady-state cycle.
func (t *Tunnel) runOnce(ctx context.Context) error {
	dialURL, err := buildURL(t.cfg, t.production, t.id, time.Now())
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, t.cfg.ConnectionTimeout)
	defer cancel()

	t.log.Info("upstream: connecting", "url", dialURL)
	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.ConnectionTimeout}
	conn, _, err := dialer.DialContext(dialCtx, dialURL, nil)
	if err != nil {
		if dialCtx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		}
		return fmt.Errorf("upstream: dial: %w", err)
	}
	defer conn.Close()

	t.outbound = make(chan any, outboundBuffer)
	connDone := make(chan struct{})
	transport := clientsync.Transport{Send: t.send}
	t.coord.HandleConnect(transportName, transport)

	disconnected := false
	disconnect := func() {
		if disconnected {
			return
		}
		disconnected = true
		t.coord.HandleDisconnect(transportName)
	}
	defer disconnect()

	if err := t.handshake(connDone); err != nil {
		close(connDone)
		return err
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		t.writePump(conn, t.outbound, connDone)
	}()

	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		t.pingLoop(ctx, connDone)
	}()

	err = t.readLoop(conn)

	// Unregister before the pumps stop so a Publish already in flight
	// can't observe a transport whose connection is gone; the outbound
	// channel itself is never closed (matching internal/directserver),
	// since a send racing a close would panic rather than just drop.
	disconnect()
	close(connDone)
	<-pingDone
	<-writerDone
	return err
}

// handshake performs §4.10's three-step sequence: register, identity,
// and (for keypair auth with a public key available) a deferred
// register-key one second later. The first two are queued on
// t.outbound before writePump starts, so they are the first frames it
// writes; register-key is queued one second later, gated on connDone so it never sends after the
// connection has been torn down.
func (t *Tunnel) handshake(connDone <-chan struct{}) error {
	now := time.Now()
	t.outbound <- registerMsg{Type: "register", BoatIDs: []string{t.id.BoatID}, Role: "boat-server"}

	sig, err := t.id.sign(now.UnixMilli())
	if err != nil {
		return err
	}
	identity := identityMsg{
		Type:      "identity",
		BoatID:    t.id.BoatID,
		Role:      "boat-server",
		Timestamp: now.UnixMilli(),
		Time:      now.UTC().Format(time.RFC3339),
		Signature: sig,
	}
	t.outbound <- identity

	if !t.id.UsesToken() && t.id.PublicKeyPEM != "" {
		go func() {
			select {
			case <-connDone:
				return
			case <-time.After(1 * time.Second):
			}
			select {
			case t.outbound <- registerKeyMsg{
				Type:      "register-key",
				BoatID:    t.id.BoatID,
				PublicKey: t.id.PublicKeyPEM,
				Timestamp: time.Now().UnixMilli(),
			}:
			case <-connDone:
			}
		}()
	}

	return nil
}

// pingLoop emits a keep-alive ping every cfg.PingInterval until ctx is
// canceled or connDone closes (the connection died).
func (t *Tunnel) pingLoop(ctx context.Context, connDone <-chan struct{}) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-connDone:
			return
		case <-ticker.C:
			select {
			case t.outbound <- pingMsg{Type: "ping", Timestamp: time.Now().UnixMilli()}:
			default:
				t.log.Warn("upstream: outbound queue full, dropping ping")
			}
		}
	}
}

// writePump serializes every outbound write onto the single
// connection, the same write-pump split internal/directserver uses so
// a congested relay can't stall publishers.
func (t *Tunnel) writePump(conn *websocket.Conn, outbound <-chan any, connDone <-chan struct{}) {
	for {
		select {
		case <-connDone:
			return
		case payload := <-outbound:
			data, err := json.Marshal(payload)
			if err != nil {
				t.log.Warn("upstream: marshal failed", "error", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				t.log.Debug("upstream: write failed", "error", err)
				return
			}
		}
	}
}

// readLoop reads relay frames until the connection closes or errors.
// pong/connectionStatus are handled locally; register-key-response is
// logged; everything else is routed through the same ClientSyncCoordinator
// inbound dispatch DirectServer uses, and any resulting ack is written
// back onto this same connection.
func (t *Tunnel) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		msg, err := clientsync.DecodeMessage(raw)
		if err != nil {
			t.log.Debug("upstream: dropping unparsable message", "error", err)
			continue
		}

		msgType, _ := msg["type"].(string)
		switch msgType {
		case "pong":
			continue

		case "connectionStatus":
			t.handleConnectionStatus(msg)
			continue

		case "register-key-response":
			success, _ := msg["success"].(bool)
			errMsg, _ := msg["error"].(string)
			if success {
				t.log.Info("upstream: public key registered")
			} else {
				t.log.Warn("upstream: public key registration failed", "error", errMsg)
			}
			continue
		}

		response, handled := t.coord.HandleMessage(transportName, msg)
		if !handled || response == nil {
			continue
		}
		select {
		case t.outbound <- response:
		default:
			t.log.Warn("upstream: outbound queue full, dropping ack")
		}
	}
}

// handleConnectionStatus updates the locally tracked remote client
// count used by admission control.
func (t *Tunnel) handleConnectionStatus(msg map[string]any) {
	count, ok := msg["clientCount"].(float64)
	if !ok {
		return
	}
	t.remoteClientCount.Store(int64(count))
	t.log.Debug("upstream: remote client count updated", "count", count)
}

// send implements clientsync.Transport.Send. Messages not on the
// always-allow list are silently discarded (reported as sent) while
// remoteClientCount is zero, per §4.10's admission-control rule and
// testable property 10 — nobody on the relay side is listening, so
// writing them would be wasted bandwidth on what is often a metered
// cellular or satellite uplink.
func (t *Tunnel) send(payload any) error {
	if !t.admits(payload) && t.remoteClientCount.Load() == 0 {
		return nil
	}
	select {
	case t.outbound <- payload:
		return nil
	default:
		return errors.New("upstream: outbound queue full, dropping")
	}
}

func (t *Tunnel) admits(payload any) bool {
	m, ok := payload.(map[string]any)
	if !ok {
		return false
	}
	msgType, _ := m["type"].(string)
	return alwaysAllow[msgType]
}
