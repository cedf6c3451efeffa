// Package statebus implements the StateBus: the sole pub/sub hub
// StateDocument mutations flow through. It owns the commit lock (all
// mutation — batch commits, command-driven mutators, and derivation
// output — is serialized through here, per SPEC_FULL.md §5), the
// monotonic commitSeq, and the clientCount gauge. Typed subscribe
// methods replace the source system's EventEmitter-style coupling:
// publishers never reach into subscribers, and subscribers never
// mutate the publisher's internal state — the nil-safe,
// drop-on-full-buffer subscriber channel convention is adapted
// directly from the teacher's internal/events package.
package statebus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/compendiumnav/boatrelay/internal/state"
	"github.com/compendiumnav/boatrelay/internal/statepath"
)

// Kind categorizes a published Event.
type Kind int

const (
	KindPatch Kind = iota
	KindFullUpdate
	KindTide
	KindWeather
	KindClientCount
)

// Event is what subscribers receive. Only the fields relevant to Kind
// are populated.
type Event struct {
	Kind        Kind
	Seq         uint64
	Patch       state.Patch
	Snapshot    state.Root
	ClientCount int
	Timestamp   time.Time
}

// Deriver recomputes derived fields and alerts from a freshly
// committed state. Implemented by internal/derive.DerivationEngine;
// kept as an interface here so StateBus has no import-time dependency
// on the derivation rule set.
type Deriver interface {
	Derive(prev, curr state.Root, now time.Time) (next state.Root, err error)
}

// subscriber is one buffered, drop-on-full channel for one Kind.
type subscriber struct {
	kind Kind
	ch   chan Event
}

// Bus is the StateBus. The zero value is not usable; construct with
// New.
type Bus struct {
	mu  sync.Mutex // the commit lock: guards doc mutation + seq + clientCount
	doc *state.Document
	drv Deriver
	log *slog.Logger

	seq         uint64
	clientCount int

	subMu sync.Mutex
	subs  []*subscriber
}

// New constructs a Bus over doc, deriving with drv after every commit.
// A nil logger defaults to slog.Default().
func New(doc *state.Document, drv Deriver, log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{doc: doc, drv: drv, log: log}
}

// Subscribe returns a buffered channel of Events of the given kind.
// Publish drops events for a subscriber whose channel is full rather
// than block — a slow subscriber never stalls a commit.
func (b *Bus) Subscribe(kind Kind, bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = 16
	}
	s := &subscriber{kind: kind, ch: make(chan Event, bufSize)}
	b.subMu.Lock()
	b.subs = append(b.subs, s)
	b.subMu.Unlock()
	return s.ch
}

// Unsubscribe removes a previously-returned channel. Safe to call
// more than once.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for i, s := range b.subs {
		if s.ch == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(s.ch)
			return
		}
	}
}

// OnPatch, OnFullUpdate, OnTide, OnWeather are convenience wrappers
// returning an unsubscribe func, matching the interface SPEC_FULL.md
// §4.7 describes.
func (b *Bus) OnPatch(bufSize int) (<-chan Event, func())    { return b.on(KindPatch, bufSize) }
func (b *Bus) OnFullUpdate(bufSize int) (<-chan Event, func()) { return b.on(KindFullUpdate, bufSize) }
func (b *Bus) OnTide(bufSize int) (<-chan Event, func())      { return b.on(KindTide, bufSize) }
func (b *Bus) OnWeather(bufSize int) (<-chan Event, func())   { return b.on(KindWeather, bufSize) }

func (b *Bus) on(kind Kind, bufSize int) (<-chan Event, func()) {
	ch := b.Subscribe(kind, bufSize)
	return ch, func() { b.Unsubscribe(ch) }
}

// publish is nil-safe in spirit (a Bus is always constructed via New,
// but publish never panics on an empty subscriber list) and never
// blocks: a full subscriber channel drops the event and logs at
// debug level.
func (b *Bus) publish(ev Event) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for _, s := range b.subs {
		if s.kind != ev.Kind {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			b.log.Debug("statebus: dropping event for slow subscriber", "kind", ev.Kind, "seq", ev.Seq)
		}
	}
}

// Commit applies updates to the StateDocument, runs derivation over
// the result, and publishes a single state:patch event carrying both
// the raw-ingest ops and the derivation ops (in that order). This is
// the path the BatchCoordinator drives on every tick.
func (b *Bus) Commit(updates map[statepath.Path]any) (state.Patch, uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.commitLocked(updates, false)
}

// CommitCoarseAIS is Commit, but collapses any ops touching the AIS
// target map into a single whole-map replace per wire view. The
// BatchCoordinator calls this instead of Commit for ticks where the
// AISExtractor's diff-vs-threshold policy chose "single replace" over
// per-MMSI ops.
func (b *Bus) CommitCoarseAIS(updates map[statepath.Path]any) (state.Patch, uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.commitLocked(updates, true)
}

// commitLocked assumes b.mu is already held.
func (b *Bus) commitLocked(updates map[statepath.Path]any, coarseAIS bool) (state.Patch, uint64, error) {
	before := b.doc.Snapshot()
	rawPatch, err := b.doc.ApplyBatch(updates)
	if err != nil {
		return nil, b.seq, err
	}
	afterRaw := b.doc.Snapshot()
	if coarseAIS {
		rawPatch = state.CollapseAISTargets(rawPatch, afterRaw)
	}

	var full state.Patch
	if b.drv != nil {
		next, err := b.drv.Derive(before, afterRaw, time.Now())
		if err != nil {
			b.log.Error("statebus: derivation failed, committing raw patch only", "error", err)
			full = rawPatch
		} else {
			derivedPatch, err := b.doc.Replace(next)
			if err != nil {
				return nil, b.seq, err
			}
			full = state.Concat(rawPatch, derivedPatch)
		}
	} else {
		full = rawPatch
	}

	b.seq++
	if len(full) > 0 {
		b.publish(Event{Kind: KindPatch, Seq: b.seq, Patch: full, Timestamp: time.Now()})
	}
	return full, b.seq, nil
}

// PublishFullUpdate emits a state:full-update event carrying the
// current snapshot, used by the BatchCoordinator's 30s heartbeat.
func (b *Bus) PublishFullUpdate() (state.Root, uint64) {
	b.mu.Lock()
	snap := b.doc.Snapshot()
	seq := b.seq
	b.mu.Unlock()
	b.publish(Event{Kind: KindFullUpdate, Seq: seq, Snapshot: snap, Timestamp: time.Now()})
	return snap, seq
}

// CurrentSnapshot returns the current state and commit sequence
// without publishing anything.
func (b *Bus) CurrentSnapshot() (state.Root, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.doc.Snapshot(), b.seq
}

// IncrementClientCount and DecrementClientCount adjust the gauge under
// the commit lock and publish client-count:update on change, per
// DESIGN.md's resolution of the client-count aggregation open
// question (local DirectServer connections only).
func (b *Bus) IncrementClientCount() int {
	b.mu.Lock()
	b.clientCount++
	n := b.clientCount
	b.mu.Unlock()
	b.publish(Event{Kind: KindClientCount, ClientCount: n, Timestamp: time.Now()})
	return n
}

func (b *Bus) DecrementClientCount() int {
	b.mu.Lock()
	if b.clientCount == 0 {
		b.mu.Unlock()
		return 0
	}
	b.clientCount--
	n := b.clientCount
	b.mu.Unlock()
	b.publish(Event{Kind: KindClientCount, ClientCount: n, Timestamp: time.Now()})
	return n
}

func (b *Bus) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clientCount
}
