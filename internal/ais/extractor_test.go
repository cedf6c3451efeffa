package ais

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/compendiumnav/boatrelay/internal/batch"
	"github.com/compendiumnav/boatrelay/internal/state"
	"github.com/compendiumnav/boatrelay/internal/statebus"
)

func mmsiTarget(lat, lon float64) state.AISTarget {
	return state.AISTarget{Position: state.Position{Latitude: lat, Longitude: lon}}
}

func TestDiffTargetsClassification(t *testing.T) {
	prev := map[string]state.AISTarget{
		"111": mmsiTarget(1, 1),
		"222": mmsiTarget(2, 2),
	}
	next := map[string]state.AISTarget{
		"111": mmsiTarget(1, 1),    // unchanged
		"222": mmsiTarget(2.1, 2), // updated
		"333": mmsiTarget(3, 3),    // added
	}

	d := diffTargets(prev, next)
	if len(d.added) != 1 || d.added[0] != "333" {
		t.Errorf("added = %v, want [333]", d.added)
	}
	if len(d.updated) != 1 || d.updated[0] != "222" {
		t.Errorf("updated = %v, want [222]", d.updated)
	}
	if len(d.removed) != 0 {
		t.Errorf("removed = %v, want none present in both maps", d.removed)
	}
}

func TestDiffTargetsRemoved(t *testing.T) {
	prev := map[string]state.AISTarget{"111": mmsiTarget(1, 1)}
	next := map[string]state.AISTarget{}

	d := diffTargets(prev, next)
	if len(d.removed) != 1 || d.removed[0] != "111" {
		t.Errorf("removed = %v, want [111]", d.removed)
	}
	if d.changes() != 1 {
		t.Errorf("changes() = %d, want 1", d.changes())
	}
}

func TestShouldCollapseByAbsoluteThreshold(t *testing.T) {
	d := diffResult{added: make([]string, 21)}
	if !shouldCollapse(d, 100) {
		t.Error("expected collapse when changes exceed the absolute threshold")
	}
}

func TestShouldCollapseByRatioThreshold(t *testing.T) {
	// 4 changes out of 10 targets = 0.4 > 0.3
	d := diffResult{added: make([]string, 4)}
	if !shouldCollapse(d, 10) {
		t.Error("expected collapse when churn ratio exceeds 0.3")
	}
}

func TestShouldCollapseBelowBothThresholds(t *testing.T) {
	d := diffResult{added: make([]string, 2)}
	if shouldCollapse(d, 10) {
		t.Error("did not expect collapse for a 0.2 ratio, 2 absolute changes")
	}
}

func TestShouldCollapseEmptyNextSet(t *testing.T) {
	d := diffResult{removed: make([]string, 2)}
	if shouldCollapse(d, 0) {
		t.Error("did not expect collapse when the new target set is empty")
	}
}

func TestFetchVesselsExcludesSelfAndPositionless(t *testing.T) {
	body := `{
		"urn:mrn:imo:mmsi:111": {
			"mmsi": "111",
			"navigation": {"position": {"value": {"latitude": 1.0, "longitude": 2.0}}}
		},
		"urn:mrn:imo:mmsi:222": {
			"mmsi": "222",
			"navigation": {"position": {"value": {"latitude": 0, "longitude": 0}}}
		},
		"urn:mrn:imo:mmsi:333": {
			"mmsi": "333",
			"navigation": {"position": {"value": {"latitude": 3.0, "longitude": 4.0}}}
		}
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	targets, err := fetchVessels(context.Background(), srv.Client(), srv.URL, "333")
	if err != nil {
		t.Fatalf("fetchVessels: %v", err)
	}
	if _, ok := targets["222"]; ok {
		t.Error("expected the positionless vessel to be excluded")
	}
	if _, ok := targets["333"]; ok {
		t.Error("expected the self MMSI to be excluded")
	}
	if _, ok := targets["111"]; !ok {
		t.Error("expected vessel 111 to be present")
	}
}

func TestFetchVesselsNon200Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := fetchVessels(context.Background(), srv.Client(), srv.URL, ""); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}

func TestPollEnqueuesReplaceOnChange(t *testing.T) {
	body := `{"urn:mrn:imo:mmsi:111": {"mmsi": "111", "navigation": {"position": {"value": {"latitude": 1.0, "longitude": 2.0}}}}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(json.RawMessage(body))
	}))
	defer srv.Close()

	bus := statebus.New(state.NewDocument(), nil, slog.Default())
	bc := batch.New(batch.DefaultConfig(), bus, slog.Default())
	e := New(Config{URL: srv.URL, PollInterval: time.Hour}, bc, srv.Client(), slog.Default())

	e.poll(context.Background())

	patch, _, err := bc.ApplyNow()
	if err != nil {
		t.Fatalf("ApplyNow: %v", err)
	}
	if len(patch) == 0 {
		t.Fatal("expected a patch after the first poll observed a new target")
	}
}

func TestPollNoChangeEnqueuesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	bus := statebus.New(state.NewDocument(), nil, slog.Default())
	bc := batch.New(batch.DefaultConfig(), bus, slog.Default())
	e := New(Config{URL: srv.URL, PollInterval: time.Hour}, bc, srv.Client(), slog.Default())

	e.poll(context.Background())
	patch, _, err := bc.ApplyNow()
	if err != nil {
		t.Fatalf("ApplyNow: %v", err)
	}
	if len(patch) != 0 {
		t.Fatalf("expected no patch when nothing changed, got %v", patch)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	bus := statebus.New(state.NewDocument(), nil, slog.Default())
	bc := batch.New(batch.DefaultConfig(), bus, slog.Default())
	e := New(Config{URL: srv.URL, PollInterval: 5 * time.Millisecond}, bc, srv.Client(), slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
