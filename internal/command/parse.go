package command

import (
	"fmt"

	"github.com/compendiumnav/boatrelay/internal/state"
)

// Inbound command payloads arrive already JSON-decoded into
// map[string]any (numbers as float64, nested objects as
// map[string]any) — these helpers pull typed values out of that shape,
// the same way a hand-rolled request binder would over a dynamically
// typed inbound message.

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asFloat64(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func parsePosition(v any) (state.Position, error) {
	m, ok := asMap(v)
	if !ok {
		return state.Position{}, fmt.Errorf("%w: position must be an object", ErrInvalidPayload)
	}
	lat, ok := asFloat64(m["latitude"])
	if !ok {
		return state.Position{}, fmt.Errorf("%w: position.latitude missing", ErrInvalidPayload)
	}
	lon, ok := asFloat64(m["longitude"])
	if !ok {
		return state.Position{}, fmt.Errorf("%w: position.longitude missing", ErrInvalidPayload)
	}
	return state.Position{Latitude: lat, Longitude: lon}, nil
}

func parseRode(v any) (*state.Rode, error) {
	m, ok := asMap(v)
	if !ok {
		return nil, fmt.Errorf("%w: rode must be an object", ErrInvalidPayload)
	}
	amount, ok := asFloat64(m["amount"])
	if !ok {
		return nil, fmt.Errorf("%w: rode.amount missing", ErrInvalidPayload)
	}
	units, _ := asString(m["units"])
	return &state.Rode{Amount: amount, Units: units}, nil
}

func parseRange(v any) (*state.Range, error) {
	m, ok := asMap(v)
	if !ok {
		return nil, fmt.Errorf("%w: range must be an object", ErrInvalidPayload)
	}
	r, ok := asFloat64(m["r"])
	if !ok {
		return nil, fmt.Errorf("%w: range.r missing", ErrInvalidPayload)
	}
	units, _ := asString(m["units"])
	return &state.Range{R: r, Units: units}, nil
}
