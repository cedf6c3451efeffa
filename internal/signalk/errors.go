package signalk

import "errors"

// Sentinel errors matching SPEC_FULL.md §7's SignalK error kinds.
// ErrParseFailed is per-frame: the caller logs and continues rather
// than tearing down the connection. ErrDiscoveryFailed and
// ErrEndpointMissing are startup/reconnect failures.
var (
	ErrDiscoveryFailed = errors.New("signalk: discovery request failed")
	ErrEndpointMissing = errors.New("signalk: discovery document has no signalk-ws endpoint")
	ErrParseFailed     = errors.New("signalk: delta frame parse failed")
)
