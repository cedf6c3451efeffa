package journal

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/compendiumnav/boatrelay/internal/state"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestGetMissingKeyReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	v, err := s.Get("boat", "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "" {
		t.Errorf("Get() = %q, want empty", v)
	}
}

func TestSetAndGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set("boat", "key", "value"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := s.Get("boat", "key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "value" {
		t.Errorf("Get() = %q, want value", v)
	}
}

func TestSetUpsertsExistingKey(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set("boat", "key", "first"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("boat", "key", "second"); err != nil {
		t.Fatalf("Set (update): %v", err)
	}
	v, err := s.Get("boat", "key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "second" {
		t.Errorf("Get() = %q, want second", v)
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set("boat", "key", "value"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Delete("boat", "key"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	v, err := s.Get("boat", "key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "" {
		t.Errorf("Get() after delete = %q, want empty", v)
	}
}

func TestDeleteMissingKeyIsNoOp(t *testing.T) {
	s := newTestStore(t)
	if err := s.Delete("boat", "nope"); err != nil {
		t.Fatalf("Delete on missing key: %v", err)
	}
}

func TestListReturnsAllKeysInNamespace(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set("boat", "a", "1"); err != nil {
		t.Fatalf("Set a: %v", err)
	}
	if err := s.Set("boat", "b", "2"); err != nil {
		t.Fatalf("Set b: %v", err)
	}
	if err := s.Set("other", "c", "3"); err != nil {
		t.Fatalf("Set c: %v", err)
	}

	list, err := s.List("boat")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list["a"] != "1" || list["b"] != "2" {
		t.Errorf("List(boat) = %v, want {a:1, b:2}", list)
	}
}

func TestUnitPreferencesRoundTrip(t *testing.T) {
	s := newTestStore(t)

	found, err := s.LoadUnitPreferences(&map[string]any{})
	if err != nil {
		t.Fatalf("LoadUnitPreferences (empty): %v", err)
	}
	if found {
		t.Fatal("expected found=false before anything is saved")
	}

	type prefsShape struct {
		System string `json:"system"`
	}
	if err := s.SaveUnitPreferences(prefsShape{System: "imperial"}); err != nil {
		t.Fatalf("SaveUnitPreferences: %v", err)
	}

	var out prefsShape
	found, err = s.LoadUnitPreferences(&out)
	if err != nil {
		t.Fatalf("LoadUnitPreferences: %v", err)
	}
	if !found {
		t.Fatal("expected found=true after saving")
	}
	if out.System != "imperial" {
		t.Errorf("System = %q, want imperial", out.System)
	}
}

func TestFencesRoundTrip(t *testing.T) {
	s := newTestStore(t)

	fences, err := s.LoadFences()
	if err != nil {
		t.Fatalf("LoadFences (empty): %v", err)
	}
	if fences == nil || len(fences) != 0 {
		t.Errorf("LoadFences() before save = %v, want empty non-nil slice", fences)
	}

	want := []state.Fence{{ID: "f1", Enabled: true, AlertRange: 100, Units: "m"}}
	if err := s.SaveFences(want); err != nil {
		t.Fatalf("SaveFences: %v", err)
	}

	got, err := s.LoadFences()
	if err != nil {
		t.Fatalf("LoadFences: %v", err)
	}
	if len(got) != 1 || got[0].ID != "f1" {
		t.Errorf("LoadFences() = %v, want one fence with ID f1", got)
	}
}

func TestAppendPatchAndRecentPatchesOrdering(t *testing.T) {
	s := newTestStore(t)

	for seq := uint64(1); seq <= 3; seq++ {
		patch := state.Patch{{Op: "replace", Path: "/vessel/name"}}
		if err := s.AppendPatch(seq, patch); err != nil {
			t.Fatalf("AppendPatch(%d): %v", seq, err)
		}
	}

	entries, err := s.RecentPatches(10)
	if err != nil {
		t.Fatalf("RecentPatches: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	for i, e := range entries {
		if e.Seq != uint64(i+1) {
			t.Errorf("entries[%d].Seq = %d, want %d (oldest first)", i, e.Seq, i+1)
		}
	}
}

func TestAppendPatchTrimsToMaxJournalEntries(t *testing.T) {
	s := newTestStore(t)

	total := MaxJournalEntries + 5
	for seq := uint64(1); seq <= uint64(total); seq++ {
		if err := s.AppendPatch(seq, state.Patch{{Op: "replace", Path: "/vessel/name"}}); err != nil {
			t.Fatalf("AppendPatch(%d): %v", seq, err)
		}
	}

	entries, err := s.RecentPatches(total)
	if err != nil {
		t.Fatalf("RecentPatches: %v", err)
	}
	if len(entries) != MaxJournalEntries {
		t.Fatalf("len(entries) = %d, want %d", len(entries), MaxJournalEntries)
	}
	if entries[0].Seq != uint64(total-MaxJournalEntries+1) {
		t.Errorf("oldest retained seq = %d, want %d", entries[0].Seq, total-MaxJournalEntries+1)
	}
}

func TestRecentPatchesDefaultLimit(t *testing.T) {
	s := newTestStore(t)
	if err := s.AppendPatch(1, state.Patch{{Op: "replace", Path: "/vessel/name"}}); err != nil {
		t.Fatalf("AppendPatch: %v", err)
	}
	entries, err := s.RecentPatches(0)
	if err != nil {
		t.Fatalf("RecentPatches: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("len(entries) = %d, want 1", len(entries))
	}
}
