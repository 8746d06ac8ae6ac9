package heap

import (
	"context"
	"testing"
	"time"
)

func TestFreeListAllocFree(t *testing.T) {
	f := newFreeList(256)

	off1, ok := f.alloc(Layout{Size: 64, Align: 8})
	if !ok {
		t.Fatal("alloc 64 failed")
	}
	off2, ok := f.alloc(Layout{Size: 64, Align: 8})
	if !ok {
		t.Fatal("second alloc 64 failed")
	}
	if off1 == off2 {
		t.Errorf("allocations alias: off1=%d off2=%d", off1, off2)
	}
	if !f.contains(off1, 64) || !f.contains(off2, 64) {
		t.Error("allocation outside region")
	}

	f.free(off1, 64)
	f.free(off2, 64)
	if f.used != 0 {
		t.Errorf("used = %d after freeing everything, want 0", f.used)
	}

	// After coalescing, the whole region is one span again.
	off3, ok := f.alloc(Layout{Size: 256, Align: 8})
	if !ok {
		t.Fatal("full-region alloc after coalesce failed")
	}
	if off3 != 0 {
		t.Errorf("full-region alloc at %d, want 0", off3)
	}
}

func TestFreeListAlignment(t *testing.T) {
	f := newFreeList(128)
	if _, ok := f.alloc(Layout{Size: 3, Align: 1}); !ok {
		t.Fatal("alloc 3 failed")
	}
	off, ok := f.alloc(Layout{Size: 16, Align: 16})
	if !ok {
		t.Fatal("aligned alloc failed")
	}
	if off%16 != 0 {
		t.Errorf("offset %d not 16-aligned", off)
	}
}

func TestLockStateMachine(t *testing.T) {
	h := New(Settings{Size: 1024})

	g, err := h.Lock()
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if _, err := h.Lock(); err != ErrLocked {
		t.Errorf("second Lock err = %v, want ErrLocked", err)
	}
	g.Release()
	g2, err := h.Lock()
	if err != nil {
		t.Fatalf("Lock after Release failed: %v", err)
	}
	g2.Release()
}

func TestNonBlockingAllocOutOfMemory(t *testing.T) {
	h := New(Settings{Size: 64})
	g, err := h.Lock()
	if err != nil {
		t.Fatal(err)
	}
	defer g.Release()

	if _, err := g.AllocRaw(LayoutOf(1024)); err != ErrOutOfMemory {
		t.Errorf("AllocRaw err = %v, want ErrOutOfMemory", err)
	}
}

func TestBoxDropReturnsMemory(t *testing.T) {
	h := New(Settings{Size: 4096})
	ctx := context.Background()

	var boxes []*Box[[64]byte]
	for i := 0; i < 8; i++ {
		b, err := Allocate(ctx, h, [64]byte{})
		if err != nil {
			t.Fatalf("Allocate %d failed: %v", i, err)
		}
		boxes = append(boxes, b)
	}

	// No two live boxes alias.
	for i, a := range boxes {
		for j, b := range boxes {
			if i == j {
				continue
			}
			if a.Offset() < b.Offset()+b.Size() && b.Offset() < a.Offset()+a.Size() {
				t.Errorf("boxes %d and %d overlap", i, j)
			}
		}
	}

	used := h.Stats().Used
	if used != 8*64 {
		t.Errorf("Used = %d, want %d", used, 8*64)
	}

	for _, b := range boxes {
		b.Drop()
	}
	h.Poll()
	if got := h.Stats().Used; got != 0 {
		t.Errorf("Used after drops = %d, want 0", got)
	}
}

func TestDeferredFreeWhileLocked(t *testing.T) {
	h := New(Settings{Size: 4096})
	ctx := context.Background()

	b, err := Allocate(ctx, h, [64]byte{})
	if err != nil {
		t.Fatal(err)
	}

	g, err := h.Lock()
	if err != nil {
		t.Fatal(err)
	}
	b.Drop() // lock is held, free must defer
	if h.PendingFrees() != 1 {
		t.Errorf("PendingFrees = %d, want 1", h.PendingFrees())
	}
	g.Release()

	h.Poll()
	if h.PendingFrees() != 0 {
		t.Errorf("PendingFrees after Poll = %d, want 0", h.PendingFrees())
	}
	if got := h.Stats().Used; got != 0 {
		t.Errorf("Used after Poll = %d, want 0", got)
	}
}

func TestDoublePollIsNoop(t *testing.T) {
	h := New(Settings{Size: 1024})
	h.Poll()
	before := h.Stats()
	h.Poll()
	after := h.Stats()
	if before != after {
		t.Errorf("second Poll changed stats: %+v -> %+v", before, after)
	}
}

func TestBackpressuredAllocation(t *testing.T) {
	// Fill the heap with 64-byte boxes until an allocation suspends,
	// then drop one box; the suspended allocation must complete with an
	// address distinct from every live box.
	h := New(Settings{Size: 512})
	ctx := context.Background()

	var boxes []*Box[[64]byte]
	for {
		g, err := h.Lock()
		if err != nil {
			t.Fatal(err)
		}
		b, aerr := AllocBox(g, [64]byte{})
		g.Release()
		if aerr != nil {
			break
		}
		boxes = append(boxes, b)
	}
	if len(boxes) == 0 {
		t.Fatal("no boxes allocated")
	}

	done := make(chan *Box[[64]byte], 1)
	go func() {
		b, err := Allocate(ctx, h, [64]byte{})
		if err != nil {
			t.Errorf("suspended Allocate failed: %v", err)
		}
		done <- b
	}()

	// Give the allocator a chance to suspend, then free one box.
	time.Sleep(10 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("allocation completed before any free")
	default:
	}

	victim := boxes[0]
	live := boxes[1:]
	victim.Drop()
	h.Poll()

	select {
	case b := <-done:
		for _, l := range live {
			if b.Offset() < l.Offset()+l.Size() && l.Offset() < b.Offset()+b.Size() {
				t.Error("revived allocation aliases a live box")
			}
		}
		b.Drop()
	case <-time.After(2 * time.Second):
		t.Fatal("suspended allocation never completed")
	}

	for _, l := range live {
		l.Drop()
	}
}

func TestFixedVecPushFull(t *testing.T) {
	h := New(Settings{Size: 1024})
	v, err := AllocateFixedVec[int](context.Background(), h, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Drop()

	if err := v.Push(1); err != nil {
		t.Fatal(err)
	}
	if err := v.Push(2); err != nil {
		t.Fatal(err)
	}
	if err := v.Push(3); err != ErrVecFull {
		t.Errorf("Push on full vec err = %v, want ErrVecFull", err)
	}
	if !v.IsFull() {
		t.Error("IsFull = false, want true")
	}
}

func TestArrayWithFill(t *testing.T) {
	h := New(Settings{Size: 4096})
	a, err := AllocateArrayWith(context.Background(), h, func(i int) int32 {
		return int32(i * i)
	}, 8)
	if err != nil {
		t.Fatal(err)
	}
	if a.Len() != 8 {
		t.Errorf("Len = %d, want 8", a.Len())
	}
	for i, v := range a.Slice() {
		if v != int32(i*i) {
			t.Errorf("element %d = %d, want %d", i, v, i*i)
		}
	}
	a.Drop()
	h.Poll()
	if got := h.Stats().Used; got != 0 {
		t.Errorf("Used after array drop = %d, want 0", got)
	}
}

func TestArcLastDropFrees(t *testing.T) {
	h := New(Settings{Size: 1024})
	a, err := AllocateArc(context.Background(), h, 42)
	if err != nil {
		t.Fatal(err)
	}
	b := a.Clone()

	a.Drop()
	h.Poll()
	if got := h.Stats().Used; got == 0 {
		t.Error("arc freed while a clone is live")
	}

	b.Drop()
	h.Poll()
	if got := h.Stats().Used; got != 0 {
		t.Errorf("Used after last drop = %d, want 0", got)
	}
}

func TestLeakSuppressesFree(t *testing.T) {
	h := New(Settings{Size: 1024})
	b, err := Allocate(context.Background(), h, 7)
	if err != nil {
		t.Fatal(err)
	}
	p := b.Leak()
	if *p != 7 {
		t.Errorf("leaked value = %d, want 7", *p)
	}
	b.Drop() // must be a no-op after Leak
	h.Poll()
	if got := h.Stats().Used; got == 0 {
		t.Error("leaked allocation was returned to the heap")
	}
}
