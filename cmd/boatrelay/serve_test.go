package main

import (
	"testing"
	"time"

	"github.com/compendiumnav/boatrelay/internal/config"
)

func TestBuildIdentityTokenAuth(t *testing.T) {
	cfg := &config.Config{
		Auth: config.AuthConfig{TokenSecret: "s3cr3t", TokenExpiry: time.Hour},
	}

	id, err := buildIdentity(cfg, "boat-1")
	if err != nil {
		t.Fatalf("buildIdentity: %v", err)
	}
	if !id.UsesToken() {
		t.Fatal("expected token-based identity")
	}
	if id.PrivateKey != nil {
		t.Fatal("expected no private key for token auth")
	}
	if id.BoatID != "boat-1" {
		t.Errorf("BoatID = %q, want boat-1", id.BoatID)
	}
}

func TestBuildIdentityKeypairAuth(t *testing.T) {
	cfg := &config.Config{DataDir: t.TempDir()}

	id, err := buildIdentity(cfg, "boat-2")
	if err != nil {
		t.Fatalf("buildIdentity: %v", err)
	}
	if id.UsesToken() {
		t.Fatal("expected keypair-based identity")
	}
	if id.PrivateKey == nil {
		t.Fatal("expected a parsed private key")
	}
	if id.PublicKeyPEM == "" {
		t.Fatal("expected a public key PEM")
	}

	// Calling again against the same data dir should load the
	// already-persisted keypair rather than generating a new one.
	id2, err := buildIdentity(cfg, "boat-2")
	if err != nil {
		t.Fatalf("buildIdentity (reload): %v", err)
	}
	if id2.PrivateKey.D.Cmp(id.PrivateKey.D) != 0 {
		t.Fatal("expected the same private key to be reloaded, got a different one")
	}
}
