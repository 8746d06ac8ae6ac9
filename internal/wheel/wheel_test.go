package wheel

import (
	"context"
	"testing"
	"time"
)

func fired(s *Sleep) bool {
	select {
	case <-s.Done():
		return true
	default:
		return false
	}
}

func TestZeroTickSleepCompletesImmediately(t *testing.T) {
	w := New(time.Millisecond, nil)
	s := w.Sleep(0)
	if !fired(s) {
		t.Error("zero-tick sleep not complete on first wait")
	}
}

func TestSleepFiresAtDeadline(t *testing.T) {
	w := New(time.Millisecond, nil)
	s := w.Sleep(5)

	res := w.AdvanceTicks(4)
	if res.Expired != 0 {
		t.Errorf("Expired = %d after 4 ticks, want 0", res.Expired)
	}
	if fired(s) {
		t.Error("sleep fired before deadline")
	}
	if !res.HasNext || res.NextDeadline != 1 {
		t.Errorf("NextDeadline = (%d,%v), want (1,true)", res.NextDeadline, res.HasNext)
	}

	res = w.AdvanceTicks(1)
	if res.Expired != 1 {
		t.Errorf("Expired = %d at deadline, want 1", res.Expired)
	}
	if !fired(s) {
		t.Error("sleep not fired at deadline")
	}
	if res.HasNext {
		t.Error("HasNext with no pending sleeps")
	}
}

func TestAdvancePastDeadlineFiresOnce(t *testing.T) {
	w := New(time.Millisecond, nil)
	_ = w.Sleep(3)

	res := w.AdvanceTicks(10)
	if res.Expired != 1 {
		t.Errorf("Expired = %d, want 1", res.Expired)
	}
	res = w.AdvanceTicks(10)
	if res.Expired != 0 {
		t.Errorf("Expired on second advance = %d, want 0", res.Expired)
	}
}

func TestManySleepsSameDeadline(t *testing.T) {
	w := New(time.Millisecond, nil)
	var sleeps []*Sleep
	for i := 0; i < 16; i++ {
		sleeps = append(sleeps, w.Sleep(7))
	}
	res := w.AdvanceTicks(7)
	if res.Expired != 16 {
		t.Errorf("Expired = %d, want 16", res.Expired)
	}
	for i, s := range sleeps {
		if !fired(s) {
			t.Errorf("sleep %d not fired", i)
		}
	}
}

func TestLongSleepCascades(t *testing.T) {
	w := New(time.Millisecond, nil)
	// Beyond level 0 (64 ticks) and level 1 (4096 ticks).
	s1 := w.Sleep(100)
	s2 := w.Sleep(5000)

	res := w.AdvanceTicks(99)
	if fired(s1) || fired(s2) {
		t.Fatal("long sleep fired early")
	}
	res = w.AdvanceTicks(1)
	if res.Expired != 1 || !fired(s1) {
		t.Errorf("level-1 sleep not fired at tick 100 (expired=%d)", res.Expired)
	}

	w.AdvanceTicks(4899) // now = 4999
	if fired(s2) {
		t.Fatal("level-2 sleep fired early")
	}
	res = w.AdvanceTicks(1)
	if res.Expired != 1 || !fired(s2) {
		t.Errorf("level-2 sleep not fired at tick 5000 (expired=%d)", res.Expired)
	}
}

func TestStaggeredDeadlines(t *testing.T) {
	w := New(time.Millisecond, nil)
	ticks := []uint64{1, 2, 63, 64, 65, 128, 1000}
	sleeps := make([]*Sleep, len(ticks))
	for i, n := range ticks {
		sleeps[i] = w.Sleep(n)
	}

	total := 0
	for i := uint64(1); i <= 1000; i++ {
		total += w.AdvanceTicks(1).Expired
		for j, n := range ticks {
			if i >= n && !fired(sleeps[j]) {
				t.Fatalf("sleep of %d ticks not fired by tick %d", n, i)
			}
			if i < n && fired(sleeps[j]) {
				t.Fatalf("sleep of %d ticks fired early at tick %d", n, i)
			}
		}
	}
	if total != len(ticks) {
		t.Errorf("total expired = %d, want %d", total, len(ticks))
	}
}

func TestSleepForRespectsContext(t *testing.T) {
	w := New(time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.SleepFor(ctx, 50*time.Millisecond)
	}()

	cancel()
	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("SleepFor err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("SleepFor did not observe cancellation")
	}
}

func TestTicksRoundsUp(t *testing.T) {
	w := New(time.Millisecond, nil)
	if got := w.Ticks(1500 * time.Microsecond); got != 2 {
		t.Errorf("Ticks(1.5ms) = %d, want 2", got)
	}
	if got := w.Ticks(0); got != 0 {
		t.Errorf("Ticks(0) = %d, want 0", got)
	}
}
