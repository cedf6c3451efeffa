package statepath

import "testing"

func TestFromSignalKKnownPath(t *testing.T) {
	p, ok := FromSignalK("navigation.speedOverGround")
	if !ok {
		t.Fatal("expected navigation.speedOverGround to resolve")
	}
	if p != NavSpeedOverGround {
		t.Errorf("got %v, want %v", p, NavSpeedOverGround)
	}
}

func TestFromSignalKUnknownPathDropped(t *testing.T) {
	if _, ok := FromSignalK("propulsion.port.revolutions"); ok {
		t.Fatal("expected an unmapped SignalK path to be dropped")
	}
}

func TestJSONPointer(t *testing.T) {
	got := NavPosition.JSONPointer()
	want := "/navigation/position"
	if got != want {
		t.Errorf("JSONPointer() = %q, want %q", got, want)
	}
}

func TestDimensionOf(t *testing.T) {
	cases := []struct {
		path Path
		want Dimension
	}{
		{NavSpeedOverGround, DimensionSpeed},
		{NavHeadingTrue, DimensionAngle},
		{EnvWaterTemperature, DimensionTemperature},
		{EnvOutsidePressure, DimensionPressure},
		{EnvDepthBelowSurface, DimensionLength},
		{VesselName, DimensionNone},
	}
	for _, c := range cases {
		if got := DimensionOf(c.path); got != c.want {
			t.Errorf("DimensionOf(%v) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestPathString(t *testing.T) {
	if AnchorDeployed.String() != "anchor.anchorDeployed" {
		t.Errorf("String() = %q", AnchorDeployed.String())
	}
}
