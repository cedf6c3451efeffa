package upstream

import "errors"

// Sentinel errors matching SPEC_FULL.md §7's UpstreamTunnel error
// kinds. ErrMaxRetriesExhausted is terminal for a Tunnel's Run loop;
// the rest of the system keeps serving local clients regardless, per
// §7's "upstream tunnel loss is silent to local clients" policy.
var (
	ErrAuthFailed          = errors.New("upstream: authentication failed")
	ErrMaxRetriesExhausted = errors.New("upstream: max reconnect attempts exhausted")
	ErrConnectTimeout      = errors.New("upstream: connect timed out")
)
