// Package state holds the canonical vessel StateDocument: the nested
// tree of navigation, environment, anchor, AIS, and alert data that
// every other component reads from or writes into. It is the target
// type the source system's dotted-path bag is projected onto, per the
// "dynamic path-based writes" design note in SPEC_FULL.md.
package state

import "time"

// Scalar is a unit-bearing numeric reading. A nil *Scalar means "not
// yet observed", matching the data model's "null is a valid value"
// rule.
type Scalar struct {
	Value float64 `json:"value"`
	Units string  `json:"units"`
}

// Position is a geographic fix. Timestamp is optional — present when
// the source frame carried one.
type Position struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Navigation holds live vessel navigation readings.
type Navigation struct {
	Position             *Position `json:"position,omitempty"`
	SpeedOverGround       *Scalar   `json:"speedOverGround,omitempty"`
	CourseOverGroundTrue  *Scalar   `json:"courseOverGroundTrue,omitempty"`
	HeadingTrue           *Scalar   `json:"headingTrue,omitempty"`
	HeadingMagnetic       *Scalar   `json:"headingMagnetic,omitempty"`
	MagneticVariation     *Scalar   `json:"magneticVariation,omitempty"`
}

// Wind holds apparent and derived-true wind readings.
type Wind struct {
	SpeedApparent *Scalar `json:"speedApparent,omitempty"`
	AngleApparent *Scalar `json:"angleApparent,omitempty"`
	DirectionTrue *Scalar `json:"directionTrue,omitempty"`
	SpeedTrue     *Scalar `json:"speedTrue,omitempty"`
}

// Depth holds sounder readings.
type Depth struct {
	BelowSurface *Scalar `json:"belowSurface,omitempty"`
}

// Water holds water-contact sensor readings.
type Water struct {
	Temperature *Scalar `json:"temperature,omitempty"`
}

// Outside holds weather-station style ambient readings.
type Outside struct {
	Temperature *Scalar `json:"temperature,omitempty"`
	Pressure    *Scalar `json:"pressure,omitempty"`
}

// Environment groups ambient/weather-adjacent readings.
type Environment struct {
	Wind    Wind    `json:"wind"`
	Depth   Depth   `json:"depth"`
	Water   Water   `json:"water"`
	Outside Outside `json:"outside"`
}

// Vessel holds static self-identification.
type Vessel struct {
	Name string `json:"name,omitempty"`
	MMSI string `json:"mmsi,omitempty"`
}

// Rode describes the anchor rode (chain/line) paid out.
type Rode struct {
	Amount float64 `json:"amount"`
	Units  string  `json:"units"`
}

// Range describes a radial distance threshold.
type Range struct {
	R     float64 `json:"r"`
	Units string  `json:"units"`
}

// DropLocation is the position recorded at anchor:drop, plus the
// distance/bearing the DerivationEngine computes from it each commit.
type DropLocation struct {
	Position             Position `json:"position"`
	Time                 time.Time `json:"time"`
	DistancesFromCurrent *Scalar  `json:"distancesFromCurrent,omitempty"`
	Bearing              *Scalar  `json:"bearing,omitempty"`
}

// AnchorLocationInfo is the DerivationEngine's projected "where the
// anchor physically is" estimate, distinct from the drop location —
// see DESIGN.md Open Question 1.
type AnchorLocationInfo struct {
	Position             Position `json:"position"`
	DistancesFromCurrent *Scalar  `json:"distancesFromCurrent,omitempty"`
	DistancesFromDrop    *Scalar  `json:"distancesFromDrop,omitempty"`
	Bearing              *Scalar  `json:"bearing,omitempty"`
}

// Breadcrumb is one entry in the anchor position history trail.
type Breadcrumb struct {
	Position Position  `json:"position"`
	Time     time.Time `json:"time"`
}

// DistanceSample is one sampled point in a fence's distance history.
type DistanceSample struct {
	T time.Time `json:"t"`
	V float64   `json:"v"`
}

// Fence reference and target kinds.
const (
	FenceReferenceBoat      = "boat"
	FenceReferenceAnchorDrop = "anchor_drop"
	FenceTargetStatic       = "static"
	FenceTargetAIS          = "ais"
)

// Fence is a user-defined proximity rule.
type Fence struct {
	ID                       string           `json:"id"`
	Enabled                  bool             `json:"enabled"`
	ReferenceType            string           `json:"referenceType"`
	TargetType               string           `json:"targetType"`
	TargetPosition           *Position        `json:"targetPosition,omitempty"`
	TargetMMSI               string           `json:"targetMmsi,omitempty"`
	AlertRange               float64          `json:"alertRange"`
	Units                    string           `json:"units"`
	CurrentDistance          float64          `json:"currentDistance"`
	MinimumDistance          float64          `json:"minimumDistance"`
	MinimumDistanceUpdatedAt time.Time        `json:"minimumDistanceUpdatedAt"`
	DistanceHistory          []DistanceSample `json:"distanceHistory"`
	InAlert                  bool             `json:"inAlert"`
}

// Anchor is the whole anchor-watch subtree.
type Anchor struct {
	AnchorDeployed      bool                `json:"anchorDeployed"`
	AnchorDropLocation  *DropLocation       `json:"anchorDropLocation,omitempty"`
	AnchorLocation      *AnchorLocationInfo `json:"anchorLocation,omitempty"`
	Rode                *Rode               `json:"rode,omitempty"`
	CriticalRange       *Range              `json:"criticalRange,omitempty"`
	WarningRange        *Range              `json:"warningRange,omitempty"`
	Dragging            bool                `json:"dragging"`
	RodeCircleViolation bool                `json:"rodeCircleViolation"`
	AISWarning          bool                `json:"aisWarning"`
	History             []Breadcrumb        `json:"history"`
	Fences              []Fence             `json:"fences"`
}

// AISTarget is one tracked nearby vessel.
type AISTarget struct {
	MMSI        string             `json:"mmsi"`
	Name        string             `json:"name,omitempty"`
	Callsign    string             `json:"callsign,omitempty"`
	Position    Position           `json:"position"`
	SOG         *float64           `json:"sog,omitempty"`
	COG         *float64           `json:"cog,omitempty"`
	Heading     *float64           `json:"heading,omitempty"`
	Dimensions  map[string]float64 `json:"dimensions,omitempty"`
	LastUpdated time.Time          `json:"lastUpdated"`
}

// Alert severity levels.
const (
	LevelInfo      = "info"
	LevelWarning   = "warning"
	LevelError     = "error"
	LevelCritical  = "critical"
	LevelEmergency = "emergency"
)

// Alert is one active or resolved notification.
type Alert struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Category       string         `json:"category"`
	Source         string         `json:"source"`
	Level          string         `json:"level"`
	Label          string         `json:"label"`
	Message        string         `json:"message"`
	Trigger        string         `json:"trigger"`
	Data           map[string]any `json:"data,omitempty"`
	AutoResolvable bool           `json:"autoResolvable"`
	Acknowledged   bool           `json:"acknowledged"`
	CreatedAt      time.Time      `json:"createdAt"`
	ResolvedAt     *time.Time     `json:"resolvedAt,omitempty"`
}

// AlertsState is the alerts subtree.
type AlertsState struct {
	Active []Alert `json:"active"`
}
