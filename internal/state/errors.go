package state

import "errors"

// ErrInvalidPath is returned by Get/Set/ApplyBatch for a Path with no
// registered accessor — the statically-typed analog of the source
// system's "path contains an empty segment" failure.
var ErrInvalidPath = errors.New("state: invalid path")
