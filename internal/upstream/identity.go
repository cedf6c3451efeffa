package upstream

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is this boat's credential for the cloud relay handshake.
// Exactly one of PrivateKey or TokenSecret is used at a time, selected
// by config.Config.UsesTokenAuth — the journal collaborator that loads
// the keypair and app-UUID from disk is the caller's concern, not the
// Tunnel's.
type Identity struct {
	BoatID string

	// PrivateKey and PublicKeyPEM are set for keypair auth.
	PrivateKey   *rsa.PrivateKey
	PublicKeyPEM string

	// TokenSecret and TokenExpiry are set for JWT auth.
	TokenSecret string
	TokenExpiry time.Duration
}

// UsesToken reports whether this identity authenticates with a JWT
// rather than a signed keypair envelope.
func (id Identity) UsesToken() bool {
	return id.TokenSecret != ""
}

// sign computes signature = base64(RSA-SHA256(privateKey,
// boatId+":"+timestamp)), per §4.10 step 3. Returns "" when no private
// key is configured (JWT auth carries its own signature in the token).
func (id Identity) sign(timestamp int64) (string, error) {
	if id.PrivateKey == nil {
		return "", nil
	}
	msg := fmt.Sprintf("%s:%d", id.BoatID, timestamp)
	digest := sha256.Sum256([]byte(msg))
	sig, err := rsa.SignPKCS1v15(rand.Reader, id.PrivateKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("upstream: sign identity: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// jwtToken mints a short-lived JWT authorizing this boatId against the
// relay, signed with the shared TokenSecret (HS256). Used to build the
// dial URL's ?token= query parameter when JWT auth is selected.
func (id Identity) jwtToken(now time.Time) (string, error) {
	expiry := id.TokenExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	claims := jwt.MapClaims{
		"boatId": id.BoatID,
		"role":   "boat-server",
		"iat":    now.Unix(),
		"exp":    now.Add(expiry).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(id.TokenSecret))
}
