// Package ais implements the AISExtractor: a timer-driven poller of a
// SignalK server's /vessels REST snapshot that tracks nearby AIS
// targets and diffs each poll against the prior set, choosing between
// a single whole-map replace and per-MMSI add/remove/replace ops
// depending on how much changed. The ticker ownership mirrors the
// teacher's internal/unifi Poller (time.Ticker, immediate first poll,
// context-cancellable loop); the HTTP fetch shape mirrors
// internal/unifi/client.go's GetClientStations.
package ais

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/compendiumnav/boatrelay/internal/batch"
	"github.com/compendiumnav/boatrelay/internal/state"
)

// DefaultPollInterval matches §4.4's stated default tick.
const DefaultPollInterval = 10 * time.Second

// Config configures the AISExtractor.
type Config struct {
	// URL is the SignalK REST /vessels endpoint.
	URL string

	// SelfMMSI excludes this vessel's own entry from the target set.
	SelfMMSI string

	// PollInterval defaults to DefaultPollInterval when zero.
	PollInterval time.Duration
}

// Extractor is the AISExtractor. Construct with New.
type Extractor struct {
	cfg         Config
	httpClient  *http.Client
	coordinator *batch.Coordinator
	log         *slog.Logger

	prev map[string]state.AISTarget
}

// New constructs an Extractor.
func New(cfg Config, coordinator *batch.Coordinator, httpClient *http.Client, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Extractor{cfg: cfg, httpClient: httpClient, coordinator: coordinator, log: log, prev: make(map[string]state.AISTarget)}
}

// Run drives the poll loop until ctx is canceled. It polls immediately
// on start, matching the teacher's Poller.Start convention.
func (e *Extractor) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	e.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.poll(ctx)
		}
	}
}

func (e *Extractor) poll(ctx context.Context) {
	next, err := fetchVessels(ctx, e.httpClient, e.cfg.URL, e.cfg.SelfMMSI)
	if err != nil {
		e.log.Warn("ais: vessels fetch failed", "error", err)
		return
	}

	d := diffTargets(e.prev, next)
	e.prev = next

	if d.changes() == 0 {
		return
	}

	coarse := shouldCollapse(d, len(next))
	e.log.Debug("ais: poll diff",
		"added", len(d.added), "removed", len(d.removed), "updated", len(d.updated),
		"total", len(next), "coarse", coarse,
	)
	e.coordinator.EnqueueAISReplace(next, coarse)
}
