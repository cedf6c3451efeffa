// Package batch implements the BatchCoordinator: a single-producer,
// single-consumer queue that coalesces incoming updates over a
// configurable tick and commits them to the StateBus. Timer ownership
// follows the teacher's internal/scheduler and internal/unifi/poller
// idiom — each coordinator owns its own ticker loop and stop channel,
// sharing no state with other timers beyond the StateBus.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/compendiumnav/boatrelay/internal/state"
	"github.com/compendiumnav/boatrelay/internal/statebus"
	"github.com/compendiumnav/boatrelay/internal/statepath"
)

// Update is one enqueued {canonicalPath, value} pair from an ingest
// producer (SignalKIngestor, AISExtractor, mqttbridge, ...).
type Update struct {
	Path  statepath.Path
	Value any
}

// Config tunes the coordinator's timers.
type Config struct {
	UpdateInterval    time.Duration // default 1s
	FullUpdateInterval time.Duration // default 30s
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{UpdateInterval: time.Second, FullUpdateInterval: 30 * time.Second}
}

// Coordinator is the BatchCoordinator.
type Coordinator struct {
	cfg Config
	bus *statebus.Bus
	log *slog.Logger

	mu        sync.Mutex
	queue     map[statepath.Path]any
	coarseAIS bool

	lastFullUpdate time.Time
}

// New constructs a Coordinator. A nil logger defaults to
// slog.Default().
func New(cfg Config, bus *statebus.Bus, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = time.Second
	}
	if cfg.FullUpdateInterval <= 0 {
		cfg.FullUpdateInterval = 30 * time.Second
	}
	return &Coordinator{cfg: cfg, bus: bus, log: log, queue: make(map[statepath.Path]any)}
}

// Enqueue adds or replaces the latest value for path within the
// current tick. Later values replace earlier ones for the same path;
// order across distinct paths is unspecified, per §4.5's coalescing
// rule.
func (c *Coordinator) Enqueue(path statepath.Path, value any) {
	c.mu.Lock()
	c.queue[path] = value
	c.mu.Unlock()
}

// EnqueueAll enqueues a batch of updates in one call.
func (c *Coordinator) EnqueueAll(updates []Update) {
	c.mu.Lock()
	for _, u := range updates {
		c.queue[u.Path] = u.Value
	}
	c.mu.Unlock()
}

// EnqueueAISReplace enqueues a whole-map AIS target replacement. coarse
// marks that this tick's AIS churn exceeded the AISExtractor's
// single-replace threshold, so the resulting patch should collapse to
// one replace op per wire view instead of per-MMSI ops. coarse is
// sticky for the tick: once set it is not cleared by a later
// fine-grained enqueue within the same tick, since a single coarse
// commit already reflects the final map either way.
func (c *Coordinator) EnqueueAISReplace(targets map[string]state.AISTarget, coarse bool) {
	c.mu.Lock()
	c.queue[statepath.AISTargets] = targets
	if coarse {
		c.coarseAIS = true
	}
	c.mu.Unlock()
}

// Run drives the tick and heartbeat timers until ctx is canceled.
func (c *Coordinator) Run(ctx context.Context) {
	tick := time.NewTicker(c.cfg.UpdateInterval)
	defer tick.Stop()
	c.lastFullUpdate = time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			c.fire()
		}
	}
}

func (c *Coordinator) fire() {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		c.maybeHeartbeat()
		return
	}
	drained := c.queue
	coarseAIS := c.coarseAIS
	c.queue = make(map[statepath.Path]any, len(drained))
	c.coarseAIS = false
	c.mu.Unlock()

	commit := c.bus.Commit
	if coarseAIS {
		commit = c.bus.CommitCoarseAIS
	}
	patch, seq, err := commit(drained)
	if err != nil {
		c.log.Error("batch: commit failed", "error", err)
		return
	}
	if len(patch) > 0 {
		c.log.Debug("batch: committed patch", "seq", seq, "ops", len(patch))
	}
	c.maybeHeartbeat()
}

// maybeHeartbeat emits a state:full-update at most every
// FullUpdateInterval, even when patches are empty, serving as a
// periodic checkpoint per §4.5.
func (c *Coordinator) maybeHeartbeat() {
	if time.Since(c.lastFullUpdate) < c.cfg.FullUpdateInterval {
		return
	}
	c.lastFullUpdate = time.Now()
	c.bus.PublishFullUpdate()
}

// ApplyNow is a test/administrative hook that synchronously commits
// whatever is queued, bypassing the ticker.
func (c *Coordinator) ApplyNow() (state.Patch, uint64, error) {
	c.mu.Lock()
	drained := c.queue
	coarseAIS := c.coarseAIS
	c.queue = make(map[statepath.Path]any, len(drained))
	c.coarseAIS = false
	c.mu.Unlock()
	if len(drained) == 0 {
		return nil, 0, nil
	}
	if coarseAIS {
		return c.bus.CommitCoarseAIS(drained)
	}
	return c.bus.Commit(drained)
}
