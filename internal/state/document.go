package state

import (
	"sync"

	"github.com/compendiumnav/boatrelay/internal/statepath"
)

// Document is the canonical StateDocument. The zero value is not
// usable; construct with NewDocument. All mutation goes through Set
// or ApplyBatch, which hold doc's lock for the duration of the
// mutation — callers needing a consistent read take Snapshot, which
// never blocks a concurrent writer (it copies under a brief read
// lock, per the concurrency model's "readers use snapshots, writers
// never blocked" rule).
type Document struct {
	mu   sync.RWMutex
	root Root
}

// NewDocument returns an empty StateDocument.
func NewDocument() *Document {
	return &Document{root: New()}
}

// Get returns the current value at path. ok is false when path has no
// registered accessor or the subtree is unpopulated.
func (d *Document) Get(path statepath.Path) (value any, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, known := registry[path]
	if !known {
		return nil, false
	}
	return a.get(&d.root)
}

// Set writes a single path and returns whether the committed value
// differs from what was there before.
func (d *Document) Set(path statepath.Path, value any) (changed bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, known := registry[path]
	if !known {
		return false, ErrInvalidPath
	}
	return a.set(&d.root, value)
}

// ApplyBatch applies a mapping of Path to new value, following the
// "later values replace earlier values for the same path; order of
// distinct paths is unspecified" coalescing rule — the caller (the
// BatchCoordinator) is responsible for collapsing a tick's queue down
// to the single latest value per path before calling this. Returns
// the RFC-6902 patch describing only the paths that actually changed;
// unchanged writes emit no ops, matching the "value equality is deep"
// rule.
func (d *Document) ApplyBatch(updates map[statepath.Path]any) (Patch, error) {
	d.mu.Lock()
	before := d.root.DeepCopy()
	for path, value := range updates {
		a, known := registry[path]
		if !known {
			d.mu.Unlock()
			return nil, ErrInvalidPath
		}
		if _, err := a.set(&d.root, value); err != nil {
			d.mu.Unlock()
			return nil, err
		}
	}
	after := d.root.DeepCopy()
	d.mu.Unlock()
	return Diff(before, after)
}

// Snapshot returns a deep copy of the current state, safe to read or
// serialize without holding any lock.
func (d *Document) Snapshot() Root {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.root.DeepCopy()
}

// Replace atomically swaps the whole root, returning the patch from
// the prior state. Used by the DerivationEngine, which computes its
// next root by mutating a snapshot and then committing it back in one
// step so its ops land after the ingest ops in the same ClientSync
// broadcast.
func (d *Document) Replace(next Root) (Patch, error) {
	d.mu.Lock()
	before := d.root.DeepCopy()
	d.root = next
	d.mu.Unlock()
	return Diff(before, next)
}
