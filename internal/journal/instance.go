package journal

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LoadOrCreateAppUUID reads the boat's stable app-UUID from
// "<dataDir>/.app-uuid", or generates and persists a new UUIDv7 if the
// file does not exist, matching §6's "(single UUID line)" file
// contract. Directly adapted from the teacher's
// mqtt.LoadOrCreateInstanceID, which the upstream identity envelope's
// boatId is grounded on the same way.
func LoadOrCreateAppUUID(dataDir string) (string, error) {
	path := filepath.Join(dataDir, ".app-uuid")

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("journal: generate app uuid: %w", err)
	}

	idStr := id.String()
	if err := os.WriteFile(path, []byte(idStr+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("journal: persist app uuid to %s: %w", path, err)
	}
	return idStr, nil
}

// LoadOrCreateKeypair reads the boat's RSA identity keypair from
// "<dataDir>/.private-key" and "<dataDir>/.public-key" (PEM), or
// generates and persists a new 2048-bit keypair if either file is
// missing. Used by internal/upstream for keypair-auth identity
// signing when TOKEN_SECRET is not configured.
func LoadOrCreateKeypair(dataDir string) (privPEM, pubPEM string, err error) {
	privPath := filepath.Join(dataDir, ".private-key")
	pubPath := filepath.Join(dataDir, ".public-key")

	privData, privErr := os.ReadFile(privPath)
	pubData, pubErr := os.ReadFile(pubPath)
	if privErr == nil && pubErr == nil && len(privData) > 0 && len(pubData) > 0 {
		return string(privData), string(pubData), nil
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return "", "", fmt.Errorf("journal: generate keypair: %w", err)
	}

	privBytes := x509.MarshalPKCS1PrivateKey(key)
	privBlock := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: privBytes}
	privPEM = string(pem.EncodeToMemory(privBlock))

	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("journal: marshal public key: %w", err)
	}
	pubBlock := &pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}
	pubPEM = string(pem.EncodeToMemory(pubBlock))

	if err := os.WriteFile(privPath, []byte(privPEM), 0o600); err != nil {
		return "", "", fmt.Errorf("journal: persist private key to %s: %w", privPath, err)
	}
	if err := os.WriteFile(pubPath, []byte(pubPEM), 0o644); err != nil {
		return "", "", fmt.Errorf("journal: persist public key to %s: %w", pubPath, err)
	}
	return privPEM, pubPEM, nil
}
