// Package config handles boatrelay configuration loading. Unlike the
// teacher's YAML-primary config, this system is driven primarily by
// the environment variables SPEC_FULL.md §6 enumerates (a boat server
// is typically deployed as a single systemd unit or container, where
// env vars are the natural configuration surface); an optional YAML
// file, found the same way the teacher finds its config file, seeds
// defaults that the environment then overrides. The Load/applyDefaults/
// Validate/FindConfig shape itself is kept from the teacher.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the optional YAML seed file search order.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "boatrelay", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // Container convention
	paths = append(paths, "/etc/boatrelay/config.yaml")
	return paths
}

// FindConfig locates the optional YAML seed file. Unlike the teacher,
// a missing seed file is not an error — it just means every setting
// comes from the environment and built-in defaults. An explicit path
// that doesn't exist is still an error: the caller asked for it by name.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", nil
}

// SignalKConfig configures the SignalK ingestor.
type SignalKConfig struct {
	URL                  string        `yaml:"url"`
	Token                string        `yaml:"token"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	UpdateInterval       time.Duration `yaml:"update_interval"`
}

// DirectConfig configures the local DirectServer.
type DirectConfig struct {
	Port int `yaml:"port"`
}

// AISConfig configures the AISExtractor. URL defaults to SignalK.URL's
// REST /vessels endpoint when empty — [EXPANDED] addition, not one of
// §6's required environment variables.
type AISConfig struct {
	URL          string        `yaml:"url"`
	SelfMMSI     string        `yaml:"self_mmsi"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// MQTTConfig configures the optional Bluetooth/Victron inbound
// telemetry bridge (internal/mqttbridge). An empty Broker disables the
// bridge entirely — this is an [EXPANDED] addition admitting the
// spec's out-of-scope BLE/Victron producers, not one of §6's required
// environment variables, so it is never validated as required.
type MQTTConfig struct {
	Broker   string   `yaml:"broker"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	ClientID string   `yaml:"client_id"`
	Topics   []string `yaml:"topics"`
}

// Enabled reports whether the Bluetooth/Victron bridge should start.
func (c MQTTConfig) Enabled() bool {
	return c.Broker != ""
}

// UpstreamConfig configures the cloud relay tunnel.
type UpstreamConfig struct {
	Host              string        `yaml:"host"`
	WSPort            int           `yaml:"ws_port"`
	Path              string        `yaml:"path"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	MaxRetries        int           `yaml:"max_retries"`
}

// AuthConfig configures how this server authenticates to the cloud
// relay: presence of TokenSecret selects JWT auth, its absence selects
// keypair (RSA-SHA256 signed identity) auth, per §6's "Presence of
// TOKEN_SECRET selects JWT auth" rule.
type AuthConfig struct {
	TokenSecret string        `yaml:"token_secret"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

// Config holds all boatrelay configuration.
type Config struct {
	NodeEnv  string         `yaml:"node_env"`
	SignalK  SignalKConfig  `yaml:"signalk"`
	Direct   DirectConfig   `yaml:"direct"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Auth     AuthConfig     `yaml:"auth"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	AIS      AISConfig      `yaml:"ais"`
	DataDir  string         `yaml:"data_dir"`
	LogLevel string         `yaml:"log_level"`

	// DashboardPort serves the read-only status dashboard
	// (internal/dashboard). 0 is replaced by the default 3002; the
	// dashboard cannot be disabled through this field.
	DashboardPort int `yaml:"dashboard_port"`
}

// Production reports whether NodeEnv selects production semantics
// (wss-only, ports 80/443 only for the upstream relay, per §4.10).
func (c *Config) Production() bool {
	return c.NodeEnv == "production"
}

// UsesTokenAuth reports whether JWT auth (vs. keypair auth) is
// selected for the upstream handshake.
func (c *Config) UsesTokenAuth() bool {
	return c.Auth.TokenSecret != ""
}

// Load builds a Config from, in ascending priority: built-in defaults,
// an optional YAML seed file at path (ignored if path is empty), and
// the process environment. After Load returns successfully, every
// field is populated and internally consistent.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyEnv overlays the §6 environment variables on top of whatever
// the YAML seed (or Default()) already populated. Every variable is
// optional here; Validate is what enforces which combinations are
// actually required to start serving.
func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("NODE_ENV"); ok {
		c.NodeEnv = v
	}

	if v, ok := os.LookupEnv("SIGNALK_URL"); ok {
		c.SignalK.URL = v
	}
	if v, ok := os.LookupEnv("SIGNALK_TOKEN"); ok {
		c.SignalK.Token = v
	}
	if d, ok := envDuration("RECONNECT_DELAY"); ok {
		c.SignalK.ReconnectDelay = d
	}
	if n, ok := envInt("MAX_RECONNECT_ATTEMPTS"); ok {
		c.SignalK.MaxReconnectAttempts = n
	}
	if d, ok := envDuration("UPDATE_INTERVAL"); ok {
		c.SignalK.UpdateInterval = d
	}

	if n, ok := envInt("DIRECT_WS_PORT"); ok {
		c.Direct.Port = n
	}

	if v, ok := os.LookupEnv("VPS_HOST"); ok {
		c.Upstream.Host = v
	}
	if n, ok := envInt("VPS_WS_PORT"); ok {
		c.Upstream.WSPort = n
	}
	if v, ok := os.LookupEnv("VPS_PATH"); ok {
		c.Upstream.Path = v
	}
	if d, ok := envDuration("VPS_PING_INTERVAL"); ok {
		c.Upstream.PingInterval = d
	}
	if d, ok := envDuration("VPS_CONNECTION_TIMEOUT"); ok {
		c.Upstream.ConnectionTimeout = d
	}
	if d, ok := envDuration("VPS_RECONNECT_INTERVAL"); ok {
		c.Upstream.ReconnectInterval = d
	}
	if n, ok := envInt("VPS_MAX_RETRIES"); ok {
		c.Upstream.MaxRetries = n
	}

	if v, ok := os.LookupEnv("TOKEN_SECRET"); ok {
		c.Auth.TokenSecret = v
	}
	if d, ok := envDuration("TOKEN_EXPIRY"); ok {
		c.Auth.TokenExpiry = d
	}

	if v, ok := os.LookupEnv("BOATRELAY_MQTT_BROKER"); ok {
		c.MQTT.Broker = v
	}
	if v, ok := os.LookupEnv("BOATRELAY_MQTT_USERNAME"); ok {
		c.MQTT.Username = v
	}
	if v, ok := os.LookupEnv("BOATRELAY_MQTT_PASSWORD"); ok {
		c.MQTT.Password = v
	}
	if v, ok := os.LookupEnv("BOATRELAY_MQTT_TOPICS"); ok {
		c.MQTT.Topics = strings.Split(v, ",")
	}

	if v, ok := os.LookupEnv("AIS_URL"); ok {
		c.AIS.URL = v
	}
	if v, ok := os.LookupEnv("AIS_SELF_MMSI"); ok {
		c.AIS.SelfMMSI = v
	}
	if d, ok := envDuration("AIS_POLL_INTERVAL"); ok {
		c.AIS.PollInterval = d
	}

	if v, ok := os.LookupEnv("BOATRELAY_DATA_DIR"); ok {
		c.DataDir = v
	}
	if v, ok := os.LookupEnv("BOATRELAY_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if n, ok := envInt("BOATRELAY_DASHBOARD_PORT"); ok {
		c.DashboardPort = n
	}
}

// envInt reads an environment variable as a plain integer (§6's
// interval/retry/port variables are given in bare units — ms for
// intervals, a count for retries — not Go duration syntax).
func envInt(name string) (int, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// envDuration reads a millisecond-count environment variable into a
// time.Duration, matching the wire convention of SignalK/VPS interval
// env vars (e.g. UPDATE_INTERVAL=1000 means one second).
func envDuration(name string) (time.Duration, bool) {
	n, ok := envInt(name)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Millisecond, true
}

// applyDefaults fills in zero-value fields with the spec's stated
// defaults. Called automatically by Load.
func (c *Config) applyDefaults() {
	if c.NodeEnv == "" {
		c.NodeEnv = "development"
	}
	if c.SignalK.ReconnectDelay <= 0 {
		c.SignalK.ReconnectDelay = 5 * time.Second
	}
	if c.SignalK.MaxReconnectAttempts <= 0 {
		c.SignalK.MaxReconnectAttempts = 10
	}
	if c.SignalK.UpdateInterval <= 0 {
		c.SignalK.UpdateInterval = time.Second
	}
	if c.Direct.Port == 0 {
		c.Direct.Port = 3001
	}
	if c.Upstream.WSPort == 0 {
		if c.Production() {
			c.Upstream.WSPort = 443
		} else {
			c.Upstream.WSPort = 8443
		}
	}
	if c.Upstream.Path == "" {
		c.Upstream.Path = "/boat"
	}
	if c.Upstream.PingInterval <= 0 {
		c.Upstream.PingInterval = 25 * time.Second
	}
	if c.Upstream.ConnectionTimeout <= 0 {
		c.Upstream.ConnectionTimeout = 30 * time.Second
	}
	if c.Upstream.ReconnectInterval <= 0 {
		c.Upstream.ReconnectInterval = 5 * time.Second
	}
	if c.Upstream.MaxRetries <= 0 {
		c.Upstream.MaxRetries = 10
	}
	if c.Auth.TokenExpiry <= 0 {
		c.Auth.TokenExpiry = time.Hour
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.MQTT.Enabled() && c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "boatrelay"
	}
	if c.DashboardPort == 0 {
		c.DashboardPort = 3002
	}
	if c.AIS.URL == "" {
		c.AIS.URL = deriveVesselsURL(c.SignalK.URL)
	}
	if c.AIS.PollInterval <= 0 {
		c.AIS.PollInterval = 10 * time.Second
	}
}

// deriveVesselsURL turns a SignalK base URL (ws(s):// delta-stream or
// http(s):// base) into its REST /vessels snapshot endpoint, so the
// AISExtractor needs no separate URL configured in the common case of
// a single co-located SignalK server.
func deriveVesselsURL(signalKURL string) string {
	if signalKURL == "" {
		return ""
	}
	base := signalKURL
	base = strings.TrimSuffix(base, "/")
	base = strings.Replace(base, "wss://", "https://", 1)
	base = strings.Replace(base, "ws://", "http://", 1)
	if strings.Contains(base, "/signalk/v1/stream") {
		base = strings.Split(base, "/signalk/v1/stream")[0]
	}
	return base + "/signalk/v1/api/vessels"
}

// Validate checks that the configuration is internally consistent and
// sufficient to start serving. It runs after applyDefaults.
func (c *Config) Validate() error {
	if c.SignalK.URL == "" {
		return fmt.Errorf("SIGNALK_URL is required")
	}
	if c.Direct.Port < 1 || c.Direct.Port > 65535 {
		return fmt.Errorf("DIRECT_WS_PORT %d out of range (1-65535)", c.Direct.Port)
	}
	if c.Production() {
		if c.Upstream.WSPort != 80 && c.Upstream.WSPort != 443 {
			return fmt.Errorf("VPS_WS_PORT %d invalid in production (must be 80 or 443)", c.Upstream.WSPort)
		}
	} else if c.Upstream.WSPort < 1 || c.Upstream.WSPort > 65535 {
		return fmt.Errorf("VPS_WS_PORT %d out of range (1-65535)", c.Upstream.WSPort)
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a configuration with every field at its built-in
// default, suitable as the Load starting point before YAML/env
// overlay. SignalK.URL is left empty on purpose — Validate rejects an
// empty URL, matching the "missing required env" startup-failure rule.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
