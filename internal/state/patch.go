package state

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

// PatchOp is one RFC-6902 operation in wire form.
type PatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// Patch is an ordered sequence of RFC-6902 operations describing one
// state transition. Patches are totally ordered by the StateBus's
// commitSeq; within a single commit, raw-ingest ops precede
// derivation ops (the caller is responsible for that ordering — see
// Diff).
type Patch []PatchOp

// Diff computes the RFC-6902 patch that transforms prev into curr,
// using evanphx/json-patch/v5's CreatePatch over each root's JSON
// encoding. diff(a, a) always returns an empty patch (property 2 in
// SPEC_FULL.md's testable properties), since CreatePatch on identical
// documents yields no operations.
func Diff(prev, curr Root) (Patch, error) {
	prevJSON, err := json.Marshal(prev)
	if err != nil {
		return nil, fmt.Errorf("state: marshal prev: %w", err)
	}
	currJSON, err := json.Marshal(curr)
	if err != nil {
		return nil, fmt.Errorf("state: marshal curr: %w", err)
	}
	ops, err := jsonpatch.CreatePatch(prevJSON, currJSON)
	if err != nil {
		return nil, fmt.Errorf("state: create patch: %w", err)
	}
	patch := make(Patch, 0, len(ops))
	for _, op := range ops {
		path, err := op.Path()
		if err != nil {
			return nil, fmt.Errorf("state: patch op path: %w", err)
		}
		var value any
		if op.Kind() != "remove" {
			value, err = op.Value()
			if err != nil {
				return nil, fmt.Errorf("state: patch op value: %w", err)
			}
		}
		patch = append(patch, PatchOp{Op: op.Kind(), Path: path, Value: value})
	}
	return patch, nil
}

// aisPathPrefixes are the two wire views of the AIS target map; any op
// under either is a candidate for collapsing.
var aisPathPrefixes = []string{"/ais/targets", "/aisTargets"}

func isAISPath(path string) bool {
	for _, p := range aisPathPrefixes {
		if path == p || (len(path) > len(p) && path[:len(p)+1] == p+"/") {
			return true
		}
	}
	return false
}

// CollapseAISTargets replaces every op touching either AIS wire view
// with a single whole-map replace per view, using curr's AISTargets.
// The AISExtractor calls this when its diff-vs-threshold policy
// chooses "single replace" over per-MMSI add/remove/replace ops — the
// generic Diff above always produces the latter; this is the
// "coarse" override for high-churn ticks.
func CollapseAISTargets(patch Patch, curr Root) Patch {
	out := make(Patch, 0, len(patch)+2)
	hadAIS := false
	for _, op := range patch {
		if isAISPath(op.Path) {
			hadAIS = true
			continue
		}
		out = append(out, op)
	}
	if !hadAIS {
		return patch
	}
	out = append(out,
		PatchOp{Op: "replace", Path: "/ais/targets", Value: curr.AISTargets},
		PatchOp{Op: "replace", Path: "/aisTargets", Value: curr.AISTargets},
	)
	return out
}

// Concat appends b's operations after a's, preserving the "derivation
// ops appear after raw-ingest ops" ordering rule when a is the
// raw-ingest patch and b is the derivation patch.
func Concat(a, b Patch) Patch {
	if len(b) == 0 {
		return a
	}
	out := make(Patch, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}
