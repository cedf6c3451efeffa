package signalk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/compendiumnav/boatrelay/internal/httpkit"
)

// discoveryDoc is the subset of a SignalK server's discovery document
// (GET /signalk) this ingestor needs: the v1 WebSocket stream endpoint.
type discoveryDoc struct {
	Endpoints map[string]struct {
		SignalKWS string `json:"signalk-ws"`
	} `json:"endpoints"`
}

// discover fetches baseURL's discovery document and extracts the v1
// signalk-ws endpoint, per §4.3 step 1. baseURL is expected to point at
// the server's "/signalk" discovery path (SIGNALK_URL).
func discover(ctx context.Context, client *http.Client, baseURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrDiscoveryFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDiscoveryFailed, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return "", fmt.Errorf("%w: status %d: %s", ErrDiscoveryFailed, resp.StatusCode, body)
	}

	var doc discoveryDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrDiscoveryFailed, err)
	}

	v1, ok := doc.Endpoints["v1"]
	if !ok || v1.SignalKWS == "" {
		return "", ErrEndpointMissing
	}
	return v1.SignalKWS, nil
}
