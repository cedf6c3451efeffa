package derive

import (
	"testing"
	"time"

	"github.com/compendiumnav/boatrelay/internal/state"
)

func TestAnchorDragScenario(t *testing.T) {
	e := New(DefaultConfig())
	now := time.Now()

	root := state.New()
	root.Navigation.Position = &state.Position{Latitude: 40.7128, Longitude: -74.0060}
	root.Anchor.AnchorDeployed = true
	root.Anchor.AnchorDropLocation = &state.DropLocation{
		Position: state.Position{Latitude: 40.7128, Longitude: -74.0060},
		Time:     now,
	}
	root.Anchor.Rode = &state.Rode{Amount: 30, Units: "m"}

	next, err := e.Derive(root, root, now)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if next.Anchor.Dragging {
		t.Fatalf("expected no drag while on station")
	}

	// Move ~840m west.
	moved := next.DeepCopy()
	moved.Navigation.Position = &state.Position{Latitude: 40.7128, Longitude: -74.0160}

	next2, err := e.Derive(next, moved, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if !next2.Anchor.Dragging {
		t.Fatalf("expected dragging=true after 840m displacement with 30m rode")
	}
	found := false
	for _, a := range next2.Alerts.Active {
		if a.Trigger == "anchor_dragging" && a.Level == state.LevelCritical {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an anchor_dragging critical alert, got %+v", next2.Alerts.Active)
	}

	// Undeploy: next commit should clear dragging.
	undeployed := next2.DeepCopy()
	undeployed.Anchor.AnchorDeployed = false
	next3, err := e.Derive(next2, undeployed, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if next3.Anchor.Dragging {
		t.Fatalf("expected dragging=false once undeployed")
	}
}

func TestCriticalRangeResolve(t *testing.T) {
	e := New(DefaultConfig())
	now := time.Now()

	root := state.New()
	root.Navigation.Position = &state.Position{Latitude: 40.0, Longitude: -70.0}
	root.Anchor.AnchorDeployed = true
	root.Anchor.AnchorDropLocation = &state.DropLocation{Position: state.Position{Latitude: 40.0, Longitude: -70.00085}, Time: now} // ~72m west of the boat
	root.Anchor.Rode = &state.Rode{Amount: 200, Units: "m"}
	root.Anchor.CriticalRange = &state.Range{R: 50, Units: "m"}

	next, err := e.Derive(root, root, now)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	hasCritical := false
	for _, a := range next.Alerts.Active {
		if a.Trigger == "critical_range" && a.ResolvedAt == nil {
			hasCritical = true
		}
	}
	if !hasCritical {
		t.Fatalf("expected critical_range alert at ~72m with 50m critical range, got %+v", next.Alerts.Active)
	}

	closer := next.DeepCopy()
	closer.Navigation.Position = &state.Position{Latitude: 40.0, Longitude: -70.0008} // ~4m from the drop
	next2, err := e.Derive(next, closer, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	resolved := false
	for _, a := range next2.Alerts.Active {
		if a.Trigger == "critical_range" && a.ResolvedAt != nil {
			resolved = true
		}
	}
	if !resolved {
		t.Fatalf("expected critical_range alert resolved once back within range, got %+v", next2.Alerts.Active)
	}
}

func TestHighApparentWindAlertAndResolve(t *testing.T) {
	e := New(DefaultConfig())
	now := time.Now()

	root := state.New()
	root.Environment.Wind.SpeedApparent = &state.Scalar{Value: 13.5, Units: "m/s"} // ~26.24 kts
	next, err := e.Derive(root, root, now)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	found := false
	for _, a := range next.Alerts.Active {
		if a.Trigger == "high_apparent_wind" && a.ResolvedAt == nil {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected high_apparent_wind alert at 26.24kt, got %+v", next.Alerts.Active)
	}

	calmer := next.DeepCopy()
	calmer.Environment.Wind.SpeedApparent = &state.Scalar{Value: 11.5, Units: "m/s"} // ~22.35 kts
	next2, err := e.Derive(next, calmer, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	resolved := false
	for _, a := range next2.Alerts.Active {
		if a.Trigger == "high_apparent_wind" && a.ResolvedAt != nil {
			resolved = true
		}
	}
	if !resolved {
		t.Fatalf("expected high_apparent_wind resolved at 22.35kt, got %+v", next2.Alerts.Active)
	}
}
