package upstream

// Wire message shapes for the cloud-relay handshake and steady state,
// per SPEC_FULL.md §6. Everything after the handshake flows through
// sync.DecodeMessage/map[string]any like every other transport; these
// structs exist only for the handful of outbound messages this package
// originates itself.

type registerMsg struct {
	Type    string   `json:"type"`
	BoatIDs []string `json:"boatIds"`
	Role    string   `json:"role"`
}

type identityMsg struct {
	Type      string `json:"type"`
	BoatID    string `json:"boatId"`
	Role      string `json:"role"`
	Timestamp int64  `json:"timestamp"`
	Time      string `json:"time"`
	Signature string `json:"signature,omitempty"`
}

type registerKeyMsg struct {
	Type      string `json:"type"`
	BoatID    string `json:"boatId"`
	PublicKey string `json:"publicKey"`
	Timestamp int64  `json:"timestamp"`
}

type pingMsg struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}
