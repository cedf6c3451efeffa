package signalk

import (
	"math"

	"github.com/compendiumnav/boatrelay/internal/batch"
	"github.com/compendiumnav/boatrelay/internal/state"
	"github.com/compendiumnav/boatrelay/internal/statepath"
	"github.com/compendiumnav/boatrelay/internal/units"
)

// deriveTransforms computes the §4.3 "special multi-field transforms":
// true heading from magnetic heading + variation (and vice versa), and
// apparent wind direction from apparent wind angle + true heading. The
// freshly-arrived SI value (siValue, already in SignalK's native
// radians/m/s) is combined with whatever the other operand's last-known
// value is in snap (converted back to SI via units.ToSI). Results are
// returned as additional batch.Updates, queued alongside the triggering
// update rather than applied as a separate effect, per §4.3.
func deriveTransforms(canonical statepath.Path, siValue float64, snap state.Root, prefs units.Preferences) []batch.Update {
	switch canonical {
	case statepath.NavHeadingMagnetic:
		if variation, ok := siScalar(snap.Navigation.MagneticVariation, statepath.NavMagneticVariation); ok {
			return []batch.Update{scalarUpdate(statepath.NavHeadingTrue, normalizeRadians(siValue+variation), prefs)}
		}
	case statepath.NavHeadingTrue:
		if variation, ok := siScalar(snap.Navigation.MagneticVariation, statepath.NavMagneticVariation); ok {
			return []batch.Update{scalarUpdate(statepath.NavHeadingMagnetic, normalizeRadians(siValue-variation), prefs)}
		}
	case statepath.NavMagneticVariation:
		var updates []batch.Update
		if magnetic, ok := siScalar(snap.Navigation.HeadingMagnetic, statepath.NavHeadingMagnetic); ok {
			updates = append(updates, scalarUpdate(statepath.NavHeadingTrue, normalizeRadians(magnetic+siValue), prefs))
		}
		return updates
	case statepath.EnvWindAngleApparent:
		if heading, ok := siScalar(snap.Navigation.HeadingTrue, statepath.NavHeadingTrue); ok {
			return []batch.Update{scalarUpdate(statepath.EnvWindDirectionTrue, normalizeRadians(heading+siValue), prefs)}
		}
	}
	return nil
}

// siScalar reads a *state.Scalar back into its SI representation,
// or reports ok=false if the field hasn't been observed yet.
func siScalar(s *state.Scalar, path statepath.Path) (float64, bool) {
	if s == nil {
		return 0, false
	}
	return units.ToSI(path, s.Value, s.Units), true
}

// scalarUpdate converts an SI value to the configured preferences and
// wraps it as a batch.Update ready to enqueue.
func scalarUpdate(path statepath.Path, siValue float64, prefs units.Preferences) batch.Update {
	v, unit := units.ConvertWithPreferences(path, siValue, prefs)
	return batch.Update{Path: path, Value: &state.Scalar{Value: v, Units: unit}}
}

// normalizeRadians wraps an angle into [0, 2*pi), matching the source
// SignalK convention for heading/direction fields before unit conversion.
func normalizeRadians(rad float64) float64 {
	rad = math.Mod(rad, 2*math.Pi)
	if rad < 0 {
		rad += 2 * math.Pi
	}
	return rad
}
