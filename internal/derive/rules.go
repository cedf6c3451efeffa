package derive

import (
	"time"

	"github.com/compendiumnav/boatrelay/internal/state"
	"github.com/compendiumnav/boatrelay/internal/statepath"
	"github.com/compendiumnav/boatrelay/internal/units"
	"github.com/google/uuid"
)

// ActionType names what a Rule's Action does.
type ActionType int

const (
	CreateAlert ActionType = iota
	ResolveAlerts
)

// AlertSeed is what a rule's Payload function produces to construct a
// new Alert; ID/CreatedAt are filled in by the engine.
type AlertSeed struct {
	Type           string
	Category       string
	Source         string
	Level          string
	Label          string
	Message        string
	Trigger        string
	Data           map[string]any
	AutoResolvable bool
}

// Action is what a Rule does when its Condition holds.
type Action struct {
	Type    ActionType
	Trigger string
	Payload func(curr state.Root) AlertSeed // only used for CreateAlert
}

// Rule is an AlertRule: data, not a subclass. Condition is a pure
// function of (current, previous) state; Payload (inside Action) is
// pure. Neither captures mutable external state, per the "rules as
// data" design note.
type Rule struct {
	Name      string
	Condition func(curr, prev state.Root) bool
	Action    Action
}

const windThresholdKnots = 25.0

// BuiltinRules returns the static, ordered rule set from SPEC_FULL.md
// §4.6: critical-range exceeded/resolved, anchor dragging
// (trigger-only — resolved once the anchor is no longer deployed, as
// after anchor:reset, never by a matching resolve rule), AIS
// proximity/resolved, high
// apparent/true wind/resolved.
func BuiltinRules() []Rule {
	return []Rule{
		{
			Name: "critical-range-exceeded",
			Condition: func(curr, _ state.Root) bool {
				return criticalRangeExceeded(curr)
			},
			Action: Action{
				Type:    CreateAlert,
				Trigger: "critical_range",
				Payload: func(curr state.Root) AlertSeed {
					return AlertSeed{
						Type: "anchor", Category: "anchor", Source: "derive",
						Level: state.LevelCritical, Label: "Critical range exceeded",
						Message: "Boat has exceeded the critical anchor range.",
						Trigger: "critical_range", AutoResolvable: true,
					}
				},
			},
		},
		{
			Name:      "critical-range-resolved",
			Condition: func(curr, _ state.Root) bool { return !criticalRangeExceeded(curr) },
			Action:    Action{Type: ResolveAlerts, Trigger: "critical_range"},
		},
		{
			Name:      "anchor-dragging",
			Condition: func(curr, _ state.Root) bool { return curr.Anchor.Dragging },
			Action: Action{
				Type:    CreateAlert,
				Trigger: "anchor_dragging",
				Payload: func(curr state.Root) AlertSeed {
					return AlertSeed{
						Type: "anchor", Category: "anchor", Source: "derive",
						Level: state.LevelCritical, Label: "Anchor dragging",
						Message: "The anchor appears to be dragging.",
						Trigger: "anchor_dragging", AutoResolvable: true,
					}
				},
			},
		},
		{
			Name:      "ais-proximity",
			Condition: func(curr, _ state.Root) bool { return curr.Anchor.AISWarning },
			Action: Action{
				Type:    CreateAlert,
				Trigger: "ais_proximity",
				Payload: func(curr state.Root) AlertSeed {
					return AlertSeed{
						Type: "ais", Category: "ais", Source: "derive",
						Level: state.LevelWarning, Label: "AIS target nearby",
						Message: "An AIS target has entered the anchor warning range.",
						Trigger: "ais_proximity", AutoResolvable: true,
					}
				},
			},
		},
		{
			Name:      "ais-proximity-resolved",
			Condition: func(curr, _ state.Root) bool { return !curr.Anchor.AISWarning },
			Action:    Action{Type: ResolveAlerts, Trigger: "ais_proximity"},
		},
		{
			Name:      "high-apparent-wind",
			Condition: func(curr, _ state.Root) bool { return scalarKnots(curr.Environment.Wind.SpeedApparent) > windThresholdKnots },
			Action: Action{
				Type:    CreateAlert,
				Trigger: "high_apparent_wind",
				Payload: func(curr state.Root) AlertSeed {
					return AlertSeed{
						Type: "weather", Category: "weather", Source: "derive",
						Level: state.LevelWarning, Label: "High apparent wind",
						Message: "Apparent wind speed exceeds the alert threshold.",
						Trigger: "high_apparent_wind", AutoResolvable: true,
					}
				},
			},
		},
		{
			Name:      "high-apparent-wind-resolved",
			Condition: func(curr, _ state.Root) bool { return scalarKnots(curr.Environment.Wind.SpeedApparent) <= windThresholdKnots },
			Action:    Action{Type: ResolveAlerts, Trigger: "high_apparent_wind"},
		},
		{
			Name:      "high-true-wind",
			Condition: func(curr, _ state.Root) bool { return scalarKnots(curr.Environment.Wind.SpeedTrue) > windThresholdKnots },
			Action: Action{
				Type:    CreateAlert,
				Trigger: "high_true_wind",
				Payload: func(curr state.Root) AlertSeed {
					return AlertSeed{
						Type: "weather", Category: "weather", Source: "derive",
						Level: state.LevelWarning, Label: "High true wind",
						Message: "True wind speed exceeds the alert threshold.",
						Trigger: "high_true_wind", AutoResolvable: true,
					}
				},
			},
		},
		{
			Name:      "high-true-wind-resolved",
			Condition: func(curr, _ state.Root) bool { return scalarKnots(curr.Environment.Wind.SpeedTrue) <= windThresholdKnots },
			Action:    Action{Type: ResolveAlerts, Trigger: "high_true_wind"},
		},
	}
}

func criticalRangeExceeded(curr state.Root) bool {
	a := curr.Anchor
	if !a.AnchorDeployed || a.CriticalRange == nil || a.AnchorDropLocation == nil || a.AnchorDropLocation.DistancesFromCurrent == nil {
		return false
	}
	radius := a.CriticalRange.R
	if a.CriticalRange.Units == "ft" {
		radius *= 0.3048
	}
	return a.AnchorDropLocation.DistancesFromCurrent.Value > radius
}

// scalarKnots converts a speed Scalar (stored in whatever unit the
// UnitNormalizer wrote) to knots for threshold comparison, regardless
// of the boat's configured display unit.
func scalarKnots(s *state.Scalar) float64 {
	if s == nil {
		return 0
	}
	mps := units.ToSI(statepath.EnvWindSpeedApparent, s.Value, s.Units)
	return mps * 1.9438444924406
}

// evaluateRules applies BuiltinRules in declaration order, enforcing
// "at most one unacknowledged alert per trigger" and applying each
// commit's rule actions in order, per §4.6 and testable property 7.
func (e *Engine) evaluateRules(next *state.Root, prev state.Root, now time.Time) {
	for _, rule := range e.rules {
		if !rule.Condition(*next, prev) {
			continue
		}
		switch rule.Action.Type {
		case CreateAlert:
			if hasUnacknowledged(next.Alerts.Active, rule.Action.Trigger) {
				continue
			}
			seed := rule.Action.Payload(*next)
			next.Alerts.Active = append(next.Alerts.Active, state.Alert{
				ID: uuid.NewString(), Type: seed.Type, Category: seed.Category,
				Source: seed.Source, Level: seed.Level, Label: seed.Label,
				Message: seed.Message, Trigger: seed.Trigger, Data: seed.Data,
				AutoResolvable: seed.AutoResolvable, CreatedAt: now,
			})
		case ResolveAlerts:
			resolveTrigger(next.Alerts.Active, rule.Action.Trigger, now)
		}
	}
}

func hasUnacknowledged(alerts []state.Alert, trigger string) bool {
	for _, a := range alerts {
		if a.Trigger == trigger && a.ResolvedAt == nil {
			return true
		}
	}
	return false
}

func resolveTrigger(alerts []state.Alert, trigger string, now time.Time) {
	for i := range alerts {
		a := &alerts[i]
		if a.Trigger != trigger || a.ResolvedAt != nil {
			continue
		}
		resolvedAt := now
		a.ResolvedAt = &resolvedAt
	}
}

// resolveAutoResolvableAnchorAlerts clears every unacknowledged,
// auto-resolvable "anchor" category alert — used when the anchor is no
// longer deployed, per testable property 6 ("clears all unacknowledged
// auto-resolvable anchor alerts").
func resolveAutoResolvableAnchorAlerts(next *state.Root, now time.Time) {
	for i := range next.Alerts.Active {
		a := &next.Alerts.Active[i]
		if a.Category != "anchor" || !a.AutoResolvable || a.Acknowledged || a.ResolvedAt != nil {
			continue
		}
		resolvedAt := now
		a.ResolvedAt = &resolvedAt
	}
}
