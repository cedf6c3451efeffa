package batch

import (
	"testing"

	"github.com/compendiumnav/boatrelay/internal/state"
	"github.com/compendiumnav/boatrelay/internal/statebus"
	"github.com/compendiumnav/boatrelay/internal/statepath"
)

func TestApplyNowCoalescesLatestValue(t *testing.T) {
	doc := state.NewDocument()
	bus := statebus.New(doc, nil, nil)
	c := New(DefaultConfig(), bus, nil)

	c.Enqueue(statepath.VesselName, "first")
	c.Enqueue(statepath.VesselName, "second")

	patch, _, err := c.ApplyNow()
	if err != nil {
		t.Fatalf("ApplyNow: %v", err)
	}
	if len(patch) == 0 {
		t.Fatal("expected non-empty patch")
	}
	got, ok := doc.Get(statepath.VesselName)
	if !ok || got != "second" {
		t.Fatalf("Get(VesselName) = %v, %v, want \"second\"", got, ok)
	}
}

func TestApplyNowNoopOnEmptyQueue(t *testing.T) {
	doc := state.NewDocument()
	bus := statebus.New(doc, nil, nil)
	c := New(DefaultConfig(), bus, nil)

	patch, seq, err := c.ApplyNow()
	if err != nil || patch != nil || seq != 0 {
		t.Fatalf("ApplyNow on empty queue = %v, %v, %v", patch, seq, err)
	}
}
