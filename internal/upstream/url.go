package upstream

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/compendiumnav/boatrelay/internal/config"
)

// buildURL constructs the cloud-relay dial URL from host/port/path and
// NODE_ENV, per §4.10: production forces wss and forbids ports other
// than 80/443 (config.Config.Validate already enforces the port
// constraint at load time; this just picks the scheme). A JWT token,
// when id authenticates that way, is carried as a ?token= query
// parameter; keypair auth dials tokenless and authenticates via the
// identity/register-key message exchange instead.
func buildURL(cfg config.UpstreamConfig, production bool, id Identity, now time.Time) (string, error) {
	scheme := "ws"
	if production {
		scheme = "wss"
	}

	u := url.URL{
		Scheme: scheme,
		Host:   cfg.Host + ":" + strconv.Itoa(cfg.WSPort),
		Path:   cfg.Path,
	}

	if id.UsesToken() {
		token, err := id.jwtToken(now)
		if err != nil {
			return "", fmt.Errorf("upstream: build token: %w", err)
		}
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}
