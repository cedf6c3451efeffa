package state

import "encoding/json"

// Root is the whole canonical StateDocument. AISTargets is the single
// internal source of truth; MarshalJSON renders it under both
// "ais.targets" and the legacy "aisTargets" top-level alias, per the
// "dual state shapes" design note — there is exactly one map, rendered
// two ways on the wire.
type Root struct {
	Navigation  Navigation           `json:"navigation"`
	Environment Environment          `json:"environment"`
	Vessel      Vessel               `json:"vessel"`
	Anchor      Anchor               `json:"anchor"`
	AISTargets  map[string]AISTarget `json:"-"`
	Alerts      AlertsState          `json:"alerts"`
	Tide        map[string]any       `json:"tide,omitempty"`
	Weather     map[string]any       `json:"weather,omitempty"`
	Bluetooth   map[string]any       `json:"bluetooth,omitempty"`
	Meta        map[string]any       `json:"meta,omitempty"`
}

// New returns an empty StateDocument root, matching the "created empty
// at process start, subtrees populated lazily" lifecycle rule.
func New() Root {
	return Root{
		AISTargets: make(map[string]AISTarget),
	}
}

type aisSubtree struct {
	Targets map[string]AISTarget `json:"targets"`
}

// wireRoot mirrors Root's field layout for JSON encoding, adding the
// two AIS views and omitting the Go-only AISTargets field via the
// embedded alias trick.
type wireRoot struct {
	Navigation  Navigation           `json:"navigation"`
	Environment Environment          `json:"environment"`
	Vessel      Vessel               `json:"vessel"`
	Anchor      Anchor               `json:"anchor"`
	AIS         aisSubtree           `json:"ais"`
	AISTargets  map[string]AISTarget `json:"aisTargets"`
	Alerts      AlertsState          `json:"alerts"`
	Tide        map[string]any       `json:"tide,omitempty"`
	Weather     map[string]any       `json:"weather,omitempty"`
	Bluetooth   map[string]any       `json:"bluetooth,omitempty"`
	Meta        map[string]any       `json:"meta,omitempty"`
}

// MarshalJSON renders both the "ais.targets" and "aisTargets" wire
// views from the single internal map.
func (r Root) MarshalJSON() ([]byte, error) {
	w := wireRoot{
		Navigation:  r.Navigation,
		Environment: r.Environment,
		Vessel:      r.Vessel,
		Anchor:      r.Anchor,
		AIS:         aisSubtree{Targets: r.AISTargets},
		AISTargets:  r.AISTargets,
		Alerts:      r.Alerts,
		Tide:        r.Tide,
		Weather:     r.Weather,
		Bluetooth:   r.Bluetooth,
		Meta:        r.Meta,
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts either wire view of the AIS target set (or
// both; "ais.targets" wins if both are present and non-empty) and
// collapses them back into the single internal map.
func (r *Root) UnmarshalJSON(data []byte) error {
	var w wireRoot
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.Navigation = w.Navigation
	r.Environment = w.Environment
	r.Vessel = w.Vessel
	r.Anchor = w.Anchor
	r.Alerts = w.Alerts
	r.Tide = w.Tide
	r.Weather = w.Weather
	r.Bluetooth = w.Bluetooth
	r.Meta = w.Meta

	switch {
	case len(w.AIS.Targets) > 0:
		r.AISTargets = w.AIS.Targets
	case len(w.AISTargets) > 0:
		r.AISTargets = w.AISTargets
	default:
		r.AISTargets = make(map[string]AISTarget)
	}
	return nil
}

// DeepCopy returns an independent copy of r, suitable for serving as
// a read snapshot while the writer continues mutating its own root.
// It round-trips through JSON rather than a field-by-field copy so it
// stays correct as the struct grows — matching the data model's
// "snapshot() -> deep copy" contract exactly, including the AIS alias
// collapsing logic above.
func (r Root) DeepCopy() Root {
	data, err := json.Marshal(r)
	if err != nil {
		// Root's fields are all JSON-safe value types; a marshal
		// failure here means a field was added that isn't.
		panic("state: root is not JSON-safe: " + err.Error())
	}
	var out Root
	if err := json.Unmarshal(data, &out); err != nil {
		panic("state: round-trip unmarshal failed: " + err.Error())
	}
	return out
}
