// Package derive implements the DerivationEngine: on every state
// commit it recomputes anchor-watch derived fields and evaluates the
// static alert rule set. It satisfies statebus.Deriver.
package derive

import (
	"time"

	"github.com/compendiumnav/boatrelay/internal/state"
)

// Config holds the tunable thresholds SPEC_FULL.md §3/§4.6 name.
// Defaults match the spec's stated defaults.
type Config struct {
	MinBreadcrumbInterval  time.Duration
	MaxHistoryEntries      int
	FenceHistoryWindow     time.Duration
	FenceHistoryInterval   time.Duration
	AnchorMovedThreshold   float64 // meters
}

// DefaultConfig returns the spec's stated default thresholds.
func DefaultConfig() Config {
	return Config{
		MinBreadcrumbInterval: 30 * time.Second,
		MaxHistoryEntries:     1000,
		FenceHistoryWindow:    2 * time.Hour,
		FenceHistoryInterval:  30 * time.Second,
		AnchorMovedThreshold:  5,
	}
}

// Engine is the DerivationEngine.
type Engine struct {
	cfg   Config
	rules []Rule
}

// New constructs an Engine with the built-in rule set from
// SPEC_FULL.md §4.6 ("critical-range exceeded/resolved, anchor
// dragging, AIS proximity/resolved, high apparent/true wind").
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg, rules: BuiltinRules()}
}

// Derive recomputes anchor derived fields and evaluates alert rules,
// returning the next root. It implements statebus.Deriver.
func (e *Engine) Derive(prev, curr state.Root, now time.Time) (state.Root, error) {
	next := curr.DeepCopy()
	e.deriveAnchor(&next, now)
	e.evaluateRules(&next, prev, now)
	return next, nil
}

// deriveAnchor is gated on anchorDeployed and a known boat position,
// per §4.6's anchor derivation preamble.
func (e *Engine) deriveAnchor(next *state.Root, now time.Time) {
	a := &next.Anchor
	if !a.AnchorDeployed || next.Navigation.Position == nil || a.AnchorDropLocation == nil {
		// Derived fields from a prior deploy must not stick once the
		// anchor is no longer deployed, per testable property 6 and
		// S1's final step: the next commit clears dragging/aisWarning
		// and resolves whatever auto-resolvable anchor alerts are
		// still open.
		a.Dragging = false
		a.AISWarning = false
		a.RodeCircleViolation = false
		if !a.AnchorDeployed {
			resolveAutoResolvableAnchorAlerts(next, now)
		}
		return
	}
	boat := *next.Navigation.Position
	drop := a.AnchorDropLocation.Position

	dDrop := distanceMeters(boat, drop)
	brgDrop := initialBearingDegrees(drop, boat)
	a.AnchorDropLocation.DistancesFromCurrent = &state.Scalar{Value: dDrop, Units: "m"}
	a.AnchorDropLocation.Bearing = &state.Scalar{Value: brgDrop, Units: "deg"}

	// No dedicated anchor-position sensor is wired (out of scope); the
	// live anchor position estimate is the boat's own current position,
	// recomputed on every pass — see DESIGN.md Open Question 1.
	anchorPos := boat
	dAnchorDrop := distanceMeters(anchorPos, drop)
	a.AnchorLocation = &state.AnchorLocationInfo{
		Position:             anchorPos,
		DistancesFromCurrent: &state.Scalar{Value: distanceMeters(boat, anchorPos), Units: "m"},
		DistancesFromDrop:    &state.Scalar{Value: dAnchorDrop, Units: "m"},
		Bearing:              &state.Scalar{Value: initialBearingDegrees(anchorPos, boat), Units: "deg"},
	}

	rodeMeters := 0.0
	if a.Rode != nil {
		rodeMeters = rodeToMeters(*a.Rode)
	}
	rodeCircleViolated := dDrop > rodeMeters
	anchorMoved := dAnchorDrop > e.cfg.AnchorMovedThreshold
	a.Dragging = rodeCircleViolated && anchorMoved
	a.RodeCircleViolation = rodeCircleViolated && !anchorMoved

	e.appendBreadcrumb(a, boat, now)
	e.updateAISWarning(next, boat)
	e.updateFences(next, boat, drop, now)
}

func rodeToMeters(r state.Rode) float64 {
	switch r.Units {
	case "ft":
		return r.Amount * 0.3048
	default:
		return r.Amount
	}
}

// appendBreadcrumb enforces the MIN_BREADCRUMB_INTERVAL_MS spacing and
// MAX_HISTORY_ENTRIES cap (oldest-dropped), per invariant §3 and
// testable property 8.
func (e *Engine) appendBreadcrumb(a *state.Anchor, boat state.Position, now time.Time) {
	if len(a.History) > 0 {
		last := a.History[len(a.History)-1]
		if now.Sub(last.Time) < e.cfg.MinBreadcrumbInterval {
			return
		}
	}
	a.History = append(a.History, state.Breadcrumb{Position: boat, Time: now})
	if len(a.History) > e.cfg.MaxHistoryEntries {
		a.History = a.History[len(a.History)-e.cfg.MaxHistoryEntries:]
	}
}

// updateAISWarning counts AIS targets within warningRange of the boat.
func (e *Engine) updateAISWarning(next *state.Root, boat state.Position) {
	a := &next.Anchor
	if a.WarningRange == nil {
		a.AISWarning = false
		return
	}
	radius := a.WarningRange.R
	if a.WarningRange.Units == "ft" {
		radius *= 0.3048
	}
	count := 0
	for _, t := range next.AISTargets {
		if distanceMeters(boat, t.Position) <= radius {
			count++
		}
	}
	a.AISWarning = count > 0
}

// updateFences recomputes each enabled fence's current distance,
// samples distance history at the configured interval, advances the
// monotonic minimum, and sets inAlert, per §4.6 step 6.
func (e *Engine) updateFences(next *state.Root, boat, drop state.Position, now time.Time) {
	for i := range next.Anchor.Fences {
		f := &next.Anchor.Fences[i]
		if !f.Enabled {
			continue
		}
		ref := boat
		if f.ReferenceType == state.FenceReferenceAnchorDrop {
			ref = drop
		}
		var target state.Position
		switch f.TargetType {
		case state.FenceTargetAIS:
			t, ok := next.AISTargets[f.TargetMMSI]
			if !ok {
				continue
			}
			target = t.Position
		default:
			if f.TargetPosition != nil {
				target = *f.TargetPosition
			}
		}

		d := distanceMeters(ref, target)
		if f.Units == "ft" {
			d /= 0.3048
		}
		f.CurrentDistance = d

		if f.MinimumDistanceUpdatedAt.IsZero() || d < f.MinimumDistance {
			f.MinimumDistance = d
			f.MinimumDistanceUpdatedAt = now
		}

		if len(f.DistanceHistory) == 0 || now.Sub(f.DistanceHistory[len(f.DistanceHistory)-1].T) >= e.cfg.FenceHistoryInterval {
			f.DistanceHistory = append(f.DistanceHistory, state.DistanceSample{T: now, V: d})
		}
		cutoff := now.Add(-e.cfg.FenceHistoryWindow)
		pruned := f.DistanceHistory[:0:0]
		for _, s := range f.DistanceHistory {
			if s.T.After(cutoff) {
				pruned = append(pruned, s)
			}
		}
		f.DistanceHistory = pruned

		f.InAlert = d <= f.AlertRange
	}
}
