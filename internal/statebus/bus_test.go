package statebus

import (
	"log/slog"
	"testing"
	"time"

	"github.com/compendiumnav/boatrelay/internal/state"
	"github.com/compendiumnav/boatrelay/internal/statepath"
)

func newTestBus() *Bus {
	return New(state.NewDocument(), nil, slog.Default())
}

func TestCommitAppliesUpdateAndBumpsSeq(t *testing.T) {
	b := newTestBus()

	patch, seq, err := b.Commit(map[statepath.Path]any{
		statepath.VesselName: "Serenity",
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if seq != 1 {
		t.Errorf("seq = %d, want 1", seq)
	}
	if len(patch) == 0 {
		t.Fatal("expected a non-empty patch for a first write")
	}

	root, snapSeq := b.CurrentSnapshot()
	if snapSeq != 1 {
		t.Errorf("CurrentSnapshot seq = %d, want 1", snapSeq)
	}
	if root.Vessel.Name != "Serenity" {
		t.Errorf("Vessel.Name = %q, want Serenity", root.Vessel.Name)
	}
}

func TestCommitUnchangedWriteIsNoOp(t *testing.T) {
	b := newTestBus()

	if _, _, err := b.Commit(map[statepath.Path]any{statepath.VesselName: "Serenity"}); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	patch, seq, err := b.Commit(map[statepath.Path]any{statepath.VesselName: "Serenity"})
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if len(patch) != 0 {
		t.Errorf("expected no-op patch for an unchanged write, got %v", patch)
	}
	if seq != 2 {
		t.Errorf("seq still advances on a no-op commit, got %d, want 2", seq)
	}
}

func TestOnPatchDeliversCommits(t *testing.T) {
	b := newTestBus()
	ch, unsub := b.OnPatch(4)
	defer unsub()

	if _, _, err := b.Commit(map[statepath.Path]any{statepath.VesselName: "Serenity"}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.Kind != KindPatch {
			t.Errorf("Kind = %v, want KindPatch", ev.Kind)
		}
		if ev.Seq != 1 {
			t.Errorf("Seq = %d, want 1", ev.Seq)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a patch event within 1s")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBus()
	ch, unsub := b.OnPatch(4)
	unsub()

	if _, _, err := b.Commit(map[statepath.Path]any{statepath.VesselName: "Serenity"}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	select {
	case ev, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel after unsubscribe, got event %v", ev)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowSubscriberDoesNotBlockCommit(t *testing.T) {
	b := newTestBus()
	_, unsub := b.OnPatch(1) // unbuffered-equivalent: never drained
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			if _, _, err := b.Commit(map[statepath.Path]any{statepath.VesselName: "Serenity" + string(rune('0'+i))}); err != nil {
				t.Errorf("Commit %d: %v", i, err)
			}
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("commits blocked on a slow subscriber")
	}
}

func TestClientCountGauge(t *testing.T) {
	b := newTestBus()
	if n := b.IncrementClientCount(); n != 1 {
		t.Errorf("IncrementClientCount = %d, want 1", n)
	}
	if n := b.IncrementClientCount(); n != 2 {
		t.Errorf("IncrementClientCount = %d, want 2", n)
	}
	if n := b.DecrementClientCount(); n != 1 {
		t.Errorf("DecrementClientCount = %d, want 1", n)
	}
	if b.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", b.ClientCount())
	}
}

func TestDecrementClientCountFloorsAtZero(t *testing.T) {
	b := newTestBus()
	if n := b.DecrementClientCount(); n != 0 {
		t.Errorf("DecrementClientCount on empty gauge = %d, want 0", n)
	}
}

func TestPublishFullUpdateCarriesSnapshot(t *testing.T) {
	b := newTestBus()
	if _, _, err := b.Commit(map[statepath.Path]any{statepath.VesselName: "Serenity"}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	ch, unsub := b.OnFullUpdate(1)
	defer unsub()

	root, seq := b.PublishFullUpdate()
	if root.Vessel.Name != "Serenity" {
		t.Errorf("PublishFullUpdate root.Vessel.Name = %q", root.Vessel.Name)
	}

	select {
	case ev := <-ch:
		if ev.Kind != KindFullUpdate {
			t.Errorf("Kind = %v, want KindFullUpdate", ev.Kind)
		}
		if ev.Seq != seq {
			t.Errorf("event seq %d != returned seq %d", ev.Seq, seq)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a full-update event within 1s")
	}
}

type stubDeriver struct {
	called bool
}

func (d *stubDeriver) Derive(prev, curr state.Root, now time.Time) (state.Root, error) {
	d.called = true
	return curr, nil
}

func TestCommitInvokesDeriver(t *testing.T) {
	drv := &stubDeriver{}
	b := New(state.NewDocument(), drv, slog.Default())

	if _, _, err := b.Commit(map[statepath.Path]any{statepath.VesselName: "Serenity"}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !drv.called {
		t.Fatal("expected the Deriver to run on commit")
	}
}
