package upstream

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/compendiumnav/boatrelay/internal/config"
)

func TestBuildURLProductionForcesWSS(t *testing.T) {
	cfg := config.UpstreamConfig{Host: "relay.example.com", WSPort: 443, Path: "/boat"}
	got, err := buildURL(cfg, true, Identity{BoatID: "boat-1"}, time.Now())
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	if !strings.HasPrefix(got, "wss://") {
		t.Fatalf("buildURL production = %q, want wss:// scheme", got)
	}
}

func TestBuildURLDevelopmentPlainWS(t *testing.T) {
	cfg := config.UpstreamConfig{Host: "localhost", WSPort: 8443, Path: "/boat"}
	got, err := buildURL(cfg, false, Identity{BoatID: "boat-1"}, time.Now())
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	if !strings.HasPrefix(got, "ws://") {
		t.Fatalf("buildURL development = %q, want ws:// scheme", got)
	}
}

func TestBuildURLTokenAuthCarriesQueryParam(t *testing.T) {
	cfg := config.UpstreamConfig{Host: "relay.example.com", WSPort: 443, Path: "/boat"}
	id := Identity{BoatID: "boat-1", TokenSecret: "shh", TokenExpiry: time.Hour}
	got, err := buildURL(cfg, true, id, time.Now())
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	if !strings.Contains(got, "token=") {
		t.Fatalf("buildURL with token auth = %q, want a token query param", got)
	}
}

func TestIdentitySignMatchesRSASHA256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	id := Identity{BoatID: "boat-1", PrivateKey: key}

	sig, err := id.sign(1000)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	digest := sha256.Sum256([]byte("boat-1:1000"))
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if err := rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], raw); err != nil {
		t.Fatalf("signature does not verify: %v", err)
	}
}

func TestIdentitySignEmptyWithoutPrivateKey(t *testing.T) {
	id := Identity{BoatID: "boat-1", TokenSecret: "shh"}
	sig, err := id.sign(1000)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if sig != "" {
		t.Fatalf("sign without private key = %q, want empty", sig)
	}
}

func TestAdmitsAllowsOnlyHandshakeTypes(t *testing.T) {
	tun := &Tunnel{}

	for _, typ := range []string{"identity", "register", "subscribe", "heartbeat", "ping"} {
		if !tun.admits(map[string]any{"type": typ}) {
			t.Errorf("admits(%q) = false, want true", typ)
		}
	}
	for _, typ := range []string{"state:patch", "state:full-update", "tide:update"} {
		if tun.admits(map[string]any{"type": typ}) {
			t.Errorf("admits(%q) = true, want false", typ)
		}
	}
}

func TestSendSuppressesNonAllowlistedWhenNoRemoteClients(t *testing.T) {
	tun := &Tunnel{outbound: make(chan any, 1)}

	if err := tun.send(map[string]any{"type": "state:patch", "patch": []any{}}); err != nil {
		t.Fatalf("send while suppressed returned error: %v", err)
	}
	select {
	case <-tun.outbound:
		t.Fatal("suppressed payload was written to outbound")
	default:
	}

	tun.remoteClientCount.Store(1)
	if err := tun.send(map[string]any{"type": "state:patch", "patch": []any{}}); err != nil {
		t.Fatalf("send with remote clients returned error: %v", err)
	}
	select {
	case <-tun.outbound:
	default:
		t.Fatal("expected payload to reach outbound once a remote client is attached")
	}
}

func TestSendAlwaysWritesAllowlistedType(t *testing.T) {
	tun := &Tunnel{outbound: make(chan any, 1)}

	if err := tun.send(map[string]any{"type": "ping", "timestamp": int64(0)}); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case <-tun.outbound:
	default:
		t.Fatal("expected ping to reach outbound regardless of remoteClientCount")
	}
}
