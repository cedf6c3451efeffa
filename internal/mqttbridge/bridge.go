// Package mqttbridge admits Bluetooth/BLE and Victron Modbus-to-MQTT
// telemetry at the core's boundary. It subscribes to a configurable
// set of topics on a local MQTT broker (typically fed by a separate
// bridge process doing the actual BLE scanning or Modbus polling,
// neither of which this package implements) and maps each message
// either onto an existing canonical scalar path (environment readings
// SignalKIngestor also populates) or, for readings with no canonical
// home (Victron battery/tank telemetry), into the free-form bluetooth
// subtree alongside device-control state. Either way the result is
// enqueued to the BatchCoordinator exactly like a SignalK update. The
// autopaho wiring (ConnectionManager, OnConnectionUp resubscribe,
// rate-limited inbound handler) is adapted from the teacher's
// internal/mqtt.Publisher; connection health tracking is adapted from
// the teacher's internal/connwatch.Watcher.
package mqttbridge

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/compendiumnav/boatrelay/internal/batch"
	"github.com/compendiumnav/boatrelay/internal/config"
	"github.com/compendiumnav/boatrelay/internal/connwatch"
	"github.com/compendiumnav/boatrelay/internal/state"
	"github.com/compendiumnav/boatrelay/internal/statepath"
	"github.com/compendiumnav/boatrelay/internal/units"
)

// Bridge subscribes to MQTT topics carrying Bluetooth/Victron readings
// and feeds them into the BatchCoordinator.
type Bridge struct {
	cfg     config.MQTTConfig
	batcher *batch.Coordinator
	prefs   units.Preferences
	log     *slog.Logger
	watch   *connwatch.Manager

	mu       sync.Mutex
	freeform map[string]any // accumulated bluetooth-subtree keys, merged into every enqueue
}

// New constructs a Bridge. A nil logger defaults to slog.Default().
func New(cfg config.MQTTConfig, batcher *batch.Coordinator, prefs units.Preferences, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		cfg:      cfg,
		batcher:  batcher,
		prefs:    prefs,
		log:      log,
		watch:    connwatch.NewManager(log),
		freeform: make(map[string]any),
	}
}

// BridgeStatus is this domain's view of broker health: connwatch's
// generic probe result plus the broker address it was probing, so a
// dashboard or log line doesn't have to cross back into connwatch to
// say which broker is down.
type BridgeStatus struct {
	connwatch.ServiceStatus
	Broker string `json:"broker"`
}

// Status reports the current broker health, as tracked by connwatch.
func (b *Bridge) Status() BridgeStatus {
	return BridgeStatus{
		ServiceStatus: b.watch.Status()["mqttbridge-broker"],
		Broker:        b.cfg.Broker,
	}
}

// Run connects to the configured broker and services inbound messages
// until ctx is canceled. If cfg.Enabled() is false, Run returns nil
// immediately; the bridge is an optional producer per §4.12.
func (b *Bridge) Run(ctx context.Context) error {
	if !b.cfg.Enabled() {
		b.log.Info("mqttbridge: no broker configured, bridge disabled")
		return nil
	}

	brokerURL, err := url.Parse(b.cfg.Broker)
	if err != nil {
		return fmt.Errorf("mqttbridge: parse broker url: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: b.cfg.Username,
		ConnectPassword: []byte(b.cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			b.log.Info("mqttbridge: connected", "broker", b.cfg.Broker)
			subCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			b.subscribe(subCtx, cm)
		},
		OnConnectError: func(err error) {
			b.log.Warn("mqttbridge: connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: b.cfg.ClientID,
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	limiter := newRateLimiter(100, time.Second, b.log)
	go limiter.start(ctx)

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqttbridge: connect: %w", err)
	}

	cm.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
		if !limiter.allow() {
			return true, nil
		}
		b.handleMessage(pr.Packet.Topic, pr.Packet.Payload)
		return true, nil
	})

	b.watch.Watch(ctx, connwatch.WatcherConfig{
		Name: "mqttbridge-broker",
		Probe: func(probeCtx context.Context) error {
			return cm.AwaitConnection(probeCtx)
		},
	})

	<-ctx.Done()
	return nil
}

func (b *Bridge) subscribe(ctx context.Context, cm *autopaho.ConnectionManager) {
	if len(b.cfg.Topics) == 0 {
		return
	}
	opts := make([]paho.SubscribeOptions, 0, len(b.cfg.Topics))
	for _, topic := range b.cfg.Topics {
		opts = append(opts, paho.SubscribeOptions{Topic: topic, QoS: 0})
	}
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: opts}); err != nil {
		b.log.Error("mqttbridge: subscribe failed", "error", err, "topics", b.cfg.Topics)
		return
	}
	b.log.Info("mqttbridge: subscribed", "topics", b.cfg.Topics)
}

// handleMessage maps one inbound MQTT message through the
// topic->canonical-path table and enqueues it to the BatchCoordinator.
// Unrecognized topics are logged at debug level and dropped, the same
// permissive-ingest posture SignalKIngestor takes for unmapped paths.
func (b *Bridge) handleMessage(topic string, payload []byte) {
	raw := strings.TrimSpace(string(payload))

	if mapping, ok := canonicalScalarFor(topic); ok {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			b.log.Warn("mqttbridge: non-numeric payload", "topic", topic, "payload", raw, "error", err)
			return
		}
		v, unit := units.ConvertWithPreferences(mapping, f, b.prefs)
		b.batcher.Enqueue(mapping, &state.Scalar{Value: v, Units: unit})
		return
	}

	if key, ok := freeformKeyFor(topic); ok {
		var value any = raw
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			value = f
		}
		b.mu.Lock()
		b.freeform[key] = value
		snapshot := make(map[string]any, len(b.freeform))
		for k, v := range b.freeform {
			snapshot[k] = v
		}
		b.mu.Unlock()
		b.batcher.Enqueue(statepath.Bluetooth, snapshot)
		return
	}

	b.log.Debug("mqttbridge: unmapped topic", "topic", topic)
}

// canonicalScalars maps topic suffixes carrying BLE environmental
// readings already covered by a canonical scalar path (the same
// fields SignalKIngestor populates), so a boat can source outside
// temperature/pressure or water temperature from either transport
// interchangeably.
var canonicalScalars = map[string]statepath.Path{
	"ble/outside/temperature": statepath.EnvOutsideTemperature,
	"ble/outside/pressure":    statepath.EnvOutsidePressure,
	"ble/water/temperature":   statepath.EnvWaterTemperature,
}

func canonicalScalarFor(topic string) (statepath.Path, bool) {
	for suffix, path := range canonicalScalars {
		if strings.HasSuffix(topic, suffix) {
			return path, true
		}
	}
	return "", false
}

// freeformTopics maps topic suffixes with no canonical scalar home
// (Victron battery/tank telemetry) to the key they're stored under in
// the free-form bluetooth subtree.
var freeformTopics = map[string]string{
	"victron/battery/voltage": "victronBatteryVoltage",
	"victron/battery/current": "victronBatteryCurrent",
	"victron/battery/soc":     "victronBatterySOC",
	"victron/tank/level":      "victronTankLevel",
	"ble/outside/humidity":    "bleOutsideHumidity",
}

func freeformKeyFor(topic string) (string, bool) {
	for suffix, key := range freeformTopics {
		if strings.HasSuffix(topic, suffix) {
			return key, true
		}
	}
	return "", false
}
