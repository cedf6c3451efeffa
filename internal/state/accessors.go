package state

import (
	"fmt"

	"github.com/compendiumnav/boatrelay/internal/statepath"
)

// accessor pairs a typed getter/setter for one canonical Path. This is
// the "small registry mapping each enum to a typed accessor over a
// struct state" the design notes call for, replacing the source
// system's dynamic dotted-path bag. Get returns (value, present);
// present is false when the subtree hasn't been populated yet and the
// caller should treat it as SignalK's "null".
type accessor struct {
	get func(*Root) (any, bool)
	set func(*Root, any) (changed bool, err error)
}

// registry is built once at package init and is read-only thereafter.
var registry map[statepath.Path]accessor

func init() {
	registry = map[statepath.Path]accessor{
		statepath.NavPosition: {
			get: func(r *Root) (any, bool) { return r.Navigation.Position, r.Navigation.Position != nil },
			set: func(r *Root, v any) (bool, error) {
				p, ok := v.(Position)
				if !ok {
					return false, fmt.Errorf("navigation.position: expected Position, got %T", v)
				}
				if r.Navigation.Position != nil && *r.Navigation.Position == p {
					return false, nil
				}
				r.Navigation.Position = &p
				return true, nil
			},
		},
		statepath.NavSpeedOverGround:  scalarAccessor(func(r *Root) **Scalar { return &r.Navigation.SpeedOverGround }),
		statepath.NavCourseOverGround: scalarAccessor(func(r *Root) **Scalar { return &r.Navigation.CourseOverGroundTrue }),
		statepath.NavHeadingTrue:      scalarAccessor(func(r *Root) **Scalar { return &r.Navigation.HeadingTrue }),
		statepath.NavHeadingMagnetic:  scalarAccessor(func(r *Root) **Scalar { return &r.Navigation.HeadingMagnetic }),
		statepath.NavMagneticVariation: scalarAccessor(func(r *Root) **Scalar { return &r.Navigation.MagneticVariation }),

		statepath.EnvWindSpeedApparent: scalarAccessor(func(r *Root) **Scalar { return &r.Environment.Wind.SpeedApparent }),
		statepath.EnvWindAngleApparent: scalarAccessor(func(r *Root) **Scalar { return &r.Environment.Wind.AngleApparent }),
		statepath.EnvWindDirectionTrue: scalarAccessor(func(r *Root) **Scalar { return &r.Environment.Wind.DirectionTrue }),
		statepath.EnvWindSpeedTrue:     scalarAccessor(func(r *Root) **Scalar { return &r.Environment.Wind.SpeedTrue }),
		statepath.EnvDepthBelowSurface: scalarAccessor(func(r *Root) **Scalar { return &r.Environment.Depth.BelowSurface }),
		statepath.EnvWaterTemperature:  scalarAccessor(func(r *Root) **Scalar { return &r.Environment.Water.Temperature }),
		statepath.EnvOutsideTemperature: scalarAccessor(func(r *Root) **Scalar { return &r.Environment.Outside.Temperature }),
		statepath.EnvOutsidePressure:    scalarAccessor(func(r *Root) **Scalar { return &r.Environment.Outside.Pressure }),

		statepath.VesselName: {
			get: func(r *Root) (any, bool) { return r.Vessel.Name, r.Vessel.Name != "" },
			set: func(r *Root, v any) (bool, error) {
				s, ok := v.(string)
				if !ok {
					return false, fmt.Errorf("vessel.name: expected string, got %T", v)
				}
				changed := r.Vessel.Name != s
				r.Vessel.Name = s
				return changed, nil
			},
		},
		statepath.VesselMMSI: {
			get: func(r *Root) (any, bool) { return r.Vessel.MMSI, r.Vessel.MMSI != "" },
			set: func(r *Root, v any) (bool, error) {
				s, ok := v.(string)
				if !ok {
					return false, fmt.Errorf("vessel.mmsi: expected string, got %T", v)
				}
				changed := r.Vessel.MMSI != s
				r.Vessel.MMSI = s
				return changed, nil
			},
		},

		statepath.AnchorDeployed: {
			get: func(r *Root) (any, bool) { return r.Anchor.AnchorDeployed, true },
			set: func(r *Root, v any) (bool, error) {
				b, ok := v.(bool)
				if !ok {
					return false, fmt.Errorf("anchor.anchorDeployed: expected bool, got %T", v)
				}
				changed := r.Anchor.AnchorDeployed != b
				r.Anchor.AnchorDeployed = b
				return changed, nil
			},
		},
		statepath.AnchorDropLocation: {
			get: func(r *Root) (any, bool) { return r.Anchor.AnchorDropLocation, r.Anchor.AnchorDropLocation != nil },
			set: func(r *Root, v any) (bool, error) {
				if v == nil {
					changed := r.Anchor.AnchorDropLocation != nil
					r.Anchor.AnchorDropLocation = nil
					return changed, nil
				}
				d, ok := v.(*DropLocation)
				if !ok {
					return false, fmt.Errorf("anchor.anchorDropLocation: expected *DropLocation, got %T", v)
				}
				r.Anchor.AnchorDropLocation = mergeDropLocation(r.Anchor.AnchorDropLocation, d)
				return true, nil
			},
		},
		statepath.AnchorLocation: {
			get: func(r *Root) (any, bool) { return r.Anchor.AnchorLocation, r.Anchor.AnchorLocation != nil },
			set: func(r *Root, v any) (bool, error) {
				if v == nil {
					changed := r.Anchor.AnchorLocation != nil
					r.Anchor.AnchorLocation = nil
					return changed, nil
				}
				a, ok := v.(*AnchorLocationInfo)
				if !ok {
					return false, fmt.Errorf("anchor.anchorLocation: expected *AnchorLocationInfo, got %T", v)
				}
				r.Anchor.AnchorLocation = a
				return true, nil
			},
		},
		statepath.AnchorRode: {
			get: func(r *Root) (any, bool) { return r.Anchor.Rode, r.Anchor.Rode != nil },
			set: func(r *Root, v any) (bool, error) {
				rd, ok := v.(*Rode)
				if !ok {
					return false, fmt.Errorf("anchor.rode: expected *Rode, got %T", v)
				}
				changed := r.Anchor.Rode == nil || *r.Anchor.Rode != *rd
				r.Anchor.Rode = rd
				return changed, nil
			},
		},
		statepath.AnchorCriticalRange: {
			get: func(r *Root) (any, bool) { return r.Anchor.CriticalRange, r.Anchor.CriticalRange != nil },
			set: func(r *Root, v any) (bool, error) {
				rg, ok := v.(*Range)
				if !ok {
					return false, fmt.Errorf("anchor.criticalRange: expected *Range, got %T", v)
				}
				changed := r.Anchor.CriticalRange == nil || *r.Anchor.CriticalRange != *rg
				r.Anchor.CriticalRange = rg
				return changed, nil
			},
		},
		statepath.AnchorWarningRange: {
			get: func(r *Root) (any, bool) { return r.Anchor.WarningRange, r.Anchor.WarningRange != nil },
			set: func(r *Root, v any) (bool, error) {
				rg, ok := v.(*Range)
				if !ok {
					return false, fmt.Errorf("anchor.warningRange: expected *Range, got %T", v)
				}
				changed := r.Anchor.WarningRange == nil || *r.Anchor.WarningRange != *rg
				r.Anchor.WarningRange = rg
				return changed, nil
			},
		},
		statepath.AnchorDragging: {
			get: func(r *Root) (any, bool) { return r.Anchor.Dragging, true },
			set: func(r *Root, v any) (bool, error) {
				b, ok := v.(bool)
				if !ok {
					return false, fmt.Errorf("anchor.dragging: expected bool, got %T", v)
				}
				changed := r.Anchor.Dragging != b
				r.Anchor.Dragging = b
				return changed, nil
			},
		},
		statepath.AnchorRodeCircleViolation: {
			get: func(r *Root) (any, bool) { return r.Anchor.RodeCircleViolation, true },
			set: func(r *Root, v any) (bool, error) {
				b, ok := v.(bool)
				if !ok {
					return false, fmt.Errorf("anchor.rodeCircleViolation: expected bool, got %T", v)
				}
				changed := r.Anchor.RodeCircleViolation != b
				r.Anchor.RodeCircleViolation = b
				return changed, nil
			},
		},
		statepath.AnchorAISWarning: {
			get: func(r *Root) (any, bool) { return r.Anchor.AISWarning, true },
			set: func(r *Root, v any) (bool, error) {
				b, ok := v.(bool)
				if !ok {
					return false, fmt.Errorf("anchor.aisWarning: expected bool, got %T", v)
				}
				changed := r.Anchor.AISWarning != b
				r.Anchor.AISWarning = b
				return changed, nil
			},
		},
		statepath.AnchorHistory: {
			get: func(r *Root) (any, bool) { return r.Anchor.History, true },
			set: func(r *Root, v any) (bool, error) {
				h, ok := v.([]Breadcrumb)
				if !ok {
					return false, fmt.Errorf("anchor.history: expected []Breadcrumb, got %T", v)
				}
				r.Anchor.History = h
				return true, nil
			},
		},
		statepath.AnchorFences: {
			get: func(r *Root) (any, bool) { return r.Anchor.Fences, true },
			set: func(r *Root, v any) (bool, error) {
				f, ok := v.([]Fence)
				if !ok {
					return false, fmt.Errorf("anchor.fences: expected []Fence, got %T", v)
				}
				r.Anchor.Fences = f
				return true, nil
			},
		},
		statepath.AISTargets: {
			get: func(r *Root) (any, bool) { return r.AISTargets, true },
			set: func(r *Root, v any) (bool, error) {
				m, ok := v.(map[string]AISTarget)
				if !ok {
					return false, fmt.Errorf("ais.targets: expected map[string]AISTarget, got %T", v)
				}
				r.AISTargets = m
				return true, nil
			},
		},
		statepath.AlertsActive: {
			get: func(r *Root) (any, bool) { return r.Alerts.Active, true },
			set: func(r *Root, v any) (bool, error) {
				a, ok := v.([]Alert)
				if !ok {
					return false, fmt.Errorf("alerts.active: expected []Alert, got %T", v)
				}
				r.Alerts.Active = a
				return true, nil
			},
		},
		statepath.Tide:      mapAccessor(func(r *Root) *map[string]any { return &r.Tide }),
		statepath.Weather:   mapAccessor(func(r *Root) *map[string]any { return &r.Weather }),
		statepath.Bluetooth: mapAccessor(func(r *Root) *map[string]any { return &r.Bluetooth }),
		statepath.Meta:      mapAccessor(func(r *Root) *map[string]any { return &r.Meta }),
	}
}

// scalarAccessor builds an accessor for a **Scalar field, merging
// key-wise: a new Scalar with the same Units and Value as the current
// one is not a change.
func scalarAccessor(field func(*Root) **Scalar) accessor {
	return accessor{
		get: func(r *Root) (any, bool) {
			f := *field(r)
			return f, f != nil
		},
		set: func(r *Root, v any) (bool, error) {
			s, ok := v.(*Scalar)
			if !ok {
				return false, fmt.Errorf("expected *Scalar, got %T", v)
			}
			slot := field(r)
			changed := *slot == nil || **slot != *s
			*slot = s
			return changed, nil
		},
	}
}

// mapAccessor builds an accessor for a free-form map[string]any
// subtree (tide, weather, bluetooth, meta), merging key-wise as the
// data model's "objects merge key-wise" rule requires.
func mapAccessor(field func(*Root) *map[string]any) accessor {
	return accessor{
		get: func(r *Root) (any, bool) {
			m := *field(r)
			return m, m != nil
		},
		set: func(r *Root, v any) (bool, error) {
			incoming, ok := v.(map[string]any)
			if !ok {
				return false, fmt.Errorf("expected map[string]any, got %T", v)
			}
			slot := field(r)
			if *slot == nil {
				*slot = make(map[string]any, len(incoming))
			}
			changed := false
			for k, val := range incoming {
				if existing, present := (*slot)[k]; !present || existing != val {
					changed = true
				}
				(*slot)[k] = val
			}
			return changed, nil
		},
	}
}

// mergeDropLocation merges a partial update into the existing drop
// location, preserving derived fields (DistancesFromCurrent, Bearing)
// the DerivationEngine owns when the incoming update doesn't set them.
func mergeDropLocation(existing, incoming *DropLocation) *DropLocation {
	if existing == nil {
		return incoming
	}
	merged := *existing
	if !incoming.Time.IsZero() {
		merged.Time = incoming.Time
	}
	if incoming.Position != (Position{}) {
		merged.Position = incoming.Position
	}
	if incoming.DistancesFromCurrent != nil {
		merged.DistancesFromCurrent = incoming.DistancesFromCurrent
	}
	if incoming.Bearing != nil {
		merged.Bearing = incoming.Bearing
	}
	return &merged
}
