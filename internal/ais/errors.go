package ais

import "errors"

// ErrFetchFailed wraps any failure to retrieve the /vessels snapshot;
// the extractor logs and waits for the next tick rather than treating
// this as fatal, matching the rest of the system's "producers degrade,
// they don't crash the process" error policy.
var ErrFetchFailed = errors.New("ais: vessels fetch failed")
