// Package statepath provides a closed enumeration of canonical state
// paths plus the SignalK wire-path lookup onto them; the registry
// mapping each path to a typed accessor over state.Root lives in
// package state. This replaces the source system's dynamic
// dotted-string bag with something a static type checker can verify,
// per the "dynamic path-based writes" design note: the wire currency
// stays a dotted/slash string, but internally every write goes through
// one of these typed accessors.
package statepath

import "strings"

// Path identifies one addressable field in the canonical state tree.
// The string value is the canonical dotted form used in logs and in
// the registry lookup table; RFC-6902 patch emission renders it with
// slashes instead of dots.
type Path string

// Canonical paths. Not exhaustive of everything SignalK can report —
// only the subset this system ingests, derives, or lets clients write.
const (
	NavPosition        Path = "navigation.position"
	NavSpeedOverGround Path = "navigation.speedOverGround"
	NavCourseOverGround Path = "navigation.courseOverGroundTrue"
	NavHeadingTrue     Path = "navigation.headingTrue"
	NavHeadingMagnetic Path = "navigation.headingMagnetic"
	NavMagneticVariation Path = "navigation.magneticVariation"

	EnvWindSpeedApparent Path = "environment.wind.speedApparent"
	EnvWindAngleApparent Path = "environment.wind.angleApparent"
	EnvWindDirectionTrue Path = "environment.wind.directionTrue"
	EnvWindSpeedTrue     Path = "environment.wind.speedTrue"
	EnvDepthBelowSurface Path = "environment.depth.belowSurface"
	EnvWaterTemperature  Path = "environment.water.temperature"
	EnvOutsideTemperature Path = "environment.outside.temperature"
	EnvOutsidePressure   Path = "environment.outside.pressure"

	VesselName Path = "vessel.name"
	VesselMMSI Path = "vessel.mmsi"

	AnchorDeployed        Path = "anchor.anchorDeployed"
	AnchorDropLocation    Path = "anchor.anchorDropLocation"
	AnchorLocation        Path = "anchor.anchorLocation"
	AnchorRode            Path = "anchor.rode"
	AnchorCriticalRange   Path = "anchor.criticalRange"
	AnchorWarningRange    Path = "anchor.warningRange"
	AnchorDragging        Path = "anchor.dragging"
	AnchorRodeCircleViolation Path = "anchor.rodeCircleViolation"
	AnchorAISWarning      Path = "anchor.aisWarning"
	AnchorHistory         Path = "anchor.history"
	AnchorFences          Path = "anchor.fences"

	AISTargets Path = "ais.targets"

	AlertsActive Path = "alerts.active"

	Tide    Path = "tide"
	Weather Path = "weather"

	Bluetooth Path = "bluetooth"

	Meta Path = "meta"
)

// Dimension classifies the physical quantity a path carries, used by
// the unit normalizer to pick a conversion table. Paths with no
// associated dimension (structs, booleans, sequences) report
// DimensionNone.
type Dimension int

const (
	DimensionNone Dimension = iota
	DimensionLength
	DimensionSpeed
	DimensionAngle
	DimensionTemperature
	DimensionPressure
	DimensionVolume
)

var dimensions = map[Path]Dimension{
	NavSpeedOverGround:    DimensionSpeed,
	NavCourseOverGround:   DimensionAngle,
	NavHeadingTrue:        DimensionAngle,
	NavHeadingMagnetic:    DimensionAngle,
	NavMagneticVariation:  DimensionAngle,
	EnvWindSpeedApparent:  DimensionSpeed,
	EnvWindAngleApparent:  DimensionAngle,
	EnvWindDirectionTrue:  DimensionAngle,
	EnvWindSpeedTrue:      DimensionSpeed,
	EnvDepthBelowSurface:  DimensionLength,
	EnvWaterTemperature:   DimensionTemperature,
	EnvOutsideTemperature: DimensionTemperature,
	EnvOutsidePressure:    DimensionPressure,
}

// DimensionOf reports the physical dimension associated with a path,
// or DimensionNone if the path carries no convertible scalar.
func DimensionOf(p Path) Dimension {
	return dimensions[p]
}

// signalKWire maps a SignalK delta "path" string to its canonical
// Path. Unknown SignalK paths are not registered here and are dropped
// by the ingestor, per the data model's "unknown inbound paths are
// dropped" rule.
var signalKWire = map[string]Path{
	"navigation.position":             NavPosition,
	"navigation.speedOverGround":      NavSpeedOverGround,
	"navigation.courseOverGroundTrue": NavCourseOverGround,
	"navigation.headingTrue":          NavHeadingTrue,
	"navigation.headingMagnetic":      NavHeadingMagnetic,
	"navigation.magneticVariation":    NavMagneticVariation,

	"environment.wind.speedApparent":  EnvWindSpeedApparent,
	"environment.wind.angleApparent":  EnvWindAngleApparent,
	"environment.wind.directionTrue":  EnvWindDirectionTrue,
	"environment.wind.speedTrue":      EnvWindSpeedTrue,
	"environment.depth.belowSurface":  EnvDepthBelowSurface,
	"environment.water.temperature":   EnvWaterTemperature,
	"environment.outside.temperature": EnvOutsideTemperature,
	"environment.outside.pressure":    EnvOutsidePressure,

	"name": VesselName,
	"mmsi": VesselMMSI,
}

// FromSignalK resolves a SignalK delta "path" string to a canonical
// Path. The ok return is false for unmapped paths, which the caller
// must drop rather than stash anywhere.
func FromSignalK(wire string) (Path, bool) {
	p, ok := signalKWire[wire]
	return p, ok
}

// JSONPointer renders the path in RFC-6901/6902 slash form, e.g.
// "navigation.position" -> "/navigation/position".
func (p Path) JSONPointer() string {
	return "/" + strings.ReplaceAll(string(p), ".", "/")
}

// String implements fmt.Stringer.
func (p Path) String() string {
	return string(p)
}
