package ais

import "github.com/compendiumnav/boatrelay/internal/state"

// diffResult summarizes how a new target map compares to the prior
// one, per §4.4's added/removed/updated/unchanged classification.
type diffResult struct {
	added   []string
	removed []string
	updated []string
}

func (d diffResult) changes() int { return len(d.added) + len(d.removed) + len(d.updated) }

// diffTargets classifies every MMSI in prev or next into exactly one
// of added, removed, updated, unchanged. "updated" compares position
// and the three scalar fields only; name/callsign/dimensions changes
// alone do not count, per §4.4's "other fields are treated as
// metadata" rule.
func diffTargets(prev, next map[string]state.AISTarget) diffResult {
	var d diffResult
	for mmsi := range next {
		if _, ok := prev[mmsi]; !ok {
			d.added = append(d.added, mmsi)
		}
	}
	for mmsi := range prev {
		if _, ok := next[mmsi]; !ok {
			d.removed = append(d.removed, mmsi)
		}
	}
	for mmsi, n := range next {
		p, ok := prev[mmsi]
		if !ok {
			continue
		}
		if targetMoved(p, n) {
			d.updated = append(d.updated, mmsi)
		}
	}
	return d
}

func targetMoved(a, b state.AISTarget) bool {
	if a.Position.Latitude != b.Position.Latitude || a.Position.Longitude != b.Position.Longitude {
		return true
	}
	return !floatPtrEqual(a.SOG, b.SOG) || !floatPtrEqual(a.COG, b.COG) || !floatPtrEqual(a.Heading, b.Heading)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// coarseThresholdRatio and coarseThresholdAbsolute implement §4.4's
// "single replace" trigger: a churn ratio above 0.3, or an absolute
// change count above 20.
const (
	coarseThresholdRatio    = 0.3
	coarseThresholdAbsolute = 20
)

// shouldCollapse decides between a single ais.targets replace and
// per-MMSI add/remove/replace ops, per §4.4.
func shouldCollapse(d diffResult, totalNew int) bool {
	if d.changes() > coarseThresholdAbsolute {
		return true
	}
	if totalNew == 0 {
		return false
	}
	return float64(d.changes())/float64(totalNew) > coarseThresholdRatio
}
