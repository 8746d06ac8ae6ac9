package bbq

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestZeroCapacityFailsWithoutDeadlock(t *testing.T) {
	r := New(0, nil)
	if _, err := r.SendGrantExact(context.Background(), 1); err != ErrTooLarge {
		t.Errorf("SendGrantExact on zero-cap ring err = %v, want ErrTooLarge", err)
	}
}

func TestGrantTooLarge(t *testing.T) {
	r := New(8, nil)
	if _, err := r.SendGrantExact(context.Background(), 9); err != ErrTooLarge {
		t.Errorf("err = %v, want ErrTooLarge", err)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := New(16, nil)

	g, err := r.SendGrantExact(ctx, 4)
	if err != nil {
		t.Fatal(err)
	}
	copy(g.Buf, []byte("abcd"))
	g.Commit(4)

	rg, err := r.ReadGrant(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(rg.Buf, []byte("abcd")) {
		t.Errorf("read %q, want %q", rg.Buf, "abcd")
	}
	rg.Release(4)
}

func TestPartialCommitReclaimsSuffix(t *testing.T) {
	ctx := context.Background()
	r := New(8, nil)

	g, _ := r.SendGrantExact(ctx, 8)
	copy(g.Buf, []byte("xy"))
	g.Commit(2)

	// Only two bytes are committed; the rest is free again.
	g2, err := r.SendGrantExact(ctx, 6)
	if err != nil {
		t.Fatalf("suffix not reclaimed: %v", err)
	}
	g2.Commit(0)

	rg, _ := r.ReadGrant(ctx)
	if len(rg.Buf) != 2 {
		t.Errorf("read %d bytes, want 2", len(rg.Buf))
	}
	rg.Release(2)
}

func TestOneWriteGrantAtATime(t *testing.T) {
	ctx := context.Background()
	r := New(16, nil)

	g, _ := r.SendGrantExact(ctx, 4)
	if _, err := r.SendGrantExact(ctx, 4); err != ErrGrantInProgress {
		t.Errorf("second grant err = %v, want ErrGrantInProgress", err)
	}
	g.Commit(0)

	if _, err := r.SendGrantExact(ctx, 4); err != nil {
		t.Errorf("grant after void commit failed: %v", err)
	}
}

func TestExactGrantWaitsThenWraps(t *testing.T) {
	ctx := context.Background()
	r := New(8, nil)

	g, _ := r.SendGrantExact(ctx, 6)
	for i := range g.Buf {
		g.Buf[i] = byte(i)
	}
	g.Commit(6)

	// Only 2 bytes remain at the end and 0 at the front; an exact(4)
	// must wait until the reader frees space, then wrap to the front.
	granted := make(chan *GrantW, 1)
	go func() {
		g2, err := r.SendGrantExact(ctx, 4)
		if err != nil {
			t.Errorf("wrapped grant failed: %v", err)
		}
		granted <- g2
	}()

	time.Sleep(10 * time.Millisecond)
	select {
	case <-granted:
		t.Fatal("exact grant succeeded with insufficient contiguous space")
	default:
	}

	rg, _ := r.ReadGrant(ctx)
	rg.Release(6)

	select {
	case g2 := <-granted:
		copy(g2.Buf, []byte("wxyz"))
		g2.Commit(4)
	case <-time.After(2 * time.Second):
		t.Fatal("exact grant never granted after space freed")
	}

	rg, err := r.ReadGrant(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(rg.Buf, []byte("wxyz")) {
		t.Errorf("post-wrap read = %q, want %q", rg.Buf, "wxyz")
	}
	rg.Release(len(rg.Buf))
}

func TestMaxGrantReturnsNonZeroRegion(t *testing.T) {
	ctx := context.Background()
	r := New(8, nil)

	g, _ := r.SendGrantExact(ctx, 5)
	g.Commit(5)

	g2, err := r.SendGrantMax(ctx, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(g2.Buf) == 0 || len(g2.Buf) > 3 {
		t.Errorf("max grant size = %d, want 1..3", len(g2.Buf))
	}
	g2.Commit(len(g2.Buf))
}

func TestReadsObserveCommitOrder(t *testing.T) {
	ctx := context.Background()
	r := New(32, nil)

	var want []byte
	for i := 0; i < 10; i++ {
		g, err := r.SendGrantExact(ctx, 3)
		if err != nil {
			t.Fatal(err)
		}
		chunk := []byte{byte(i), byte(i + 100), byte(i + 200)}
		copy(g.Buf, chunk)
		g.Commit(3)
		want = append(want, chunk...)

		rg, err := r.ReadGrant(ctx)
		if err != nil {
			t.Fatal(err)
		}
		got := append([]byte(nil), rg.Buf...)
		rg.Release(len(rg.Buf))
		if !bytes.Equal(got, chunk) {
			t.Fatalf("iteration %d read %v, want %v", i, got, chunk)
		}
	}
	_ = want
}

func TestSplitReadGrant(t *testing.T) {
	ctx := context.Background()
	r := New(8, nil)

	g, _ := r.SendGrantExact(ctx, 6)
	copy(g.Buf, []byte("abcdef"))
	g.Commit(6)

	rg, _ := r.ReadGrant(ctx)
	rg.Release(4) // read=4, tail "ef" remains

	// Wrap: exact(3) does not fit at the end (2 left), front has 3.
	g2, err := r.SendGrantExact(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	copy(g2.Buf, []byte("ghi"))
	g2.Commit(3)

	sg, err := r.SplitReadGrant(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(sg.First, []byte("ef")) {
		t.Errorf("First = %q, want %q", sg.First, "ef")
	}
	if !bytes.Equal(sg.Second, []byte("ghi")) {
		t.Errorf("Second = %q, want %q", sg.Second, "ghi")
	}
	sg.Release(5)

	if _, err := r.TryReadGrant(); err != ErrEmpty {
		t.Errorf("ring not empty after split release: %v", err)
	}
}

func TestTrySendGrantExactFull(t *testing.T) {
	r := New(8, nil)
	g, _ := r.TrySendGrantExact(7)
	g.Commit(7)
	if _, err := r.TrySendGrantExact(4); err != ErrFull {
		t.Errorf("TrySendGrantExact err = %v, want ErrFull", err)
	}
}

func TestMpscProducerSerializesFrames(t *testing.T) {
	ctx := context.Background()
	prod, cons := NewSPSC(64, nil)
	mpsc := prod.IntoMpsc()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 8; i++ {
			g, err := mpsc.SendGrantExact(ctx, 4)
			if err != nil {
				t.Errorf("producer A grant: %v", err)
				return
			}
			copy(g.Buf, []byte("AAAA"))
			g.Commit(4)
		}
	}()
	for i := 0; i < 8; i++ {
		g, err := mpsc.SendGrantExact(ctx, 4)
		if err != nil {
			t.Fatalf("producer B grant: %v", err)
		}
		copy(g.Buf, []byte("BBBB"))
		g.Commit(4)

		rg, err := cons.ReadGrant(ctx)
		if err != nil {
			t.Fatal(err)
		}
		// Frames are atomic: every aligned 4-byte group is homogeneous.
		full := rg.Buf[:len(rg.Buf)/4*4]
		for off := 0; off+4 <= len(full); off += 4 {
			frame := full[off : off+4]
			if !bytes.Equal(frame, []byte("AAAA")) && !bytes.Equal(frame, []byte("BBBB")) {
				t.Fatalf("interleaved frame %q", frame)
			}
		}
		rg.Release(len(full))
	}
	<-done
}

func TestClosedRingWakesWaiters(t *testing.T) {
	r := New(8, nil)
	errCh := make(chan error, 1)
	go func() {
		_, err := r.ReadGrant(context.Background())
		errCh <- err
	}()
	time.Sleep(5 * time.Millisecond)
	r.Close()
	select {
	case err := <-errCh:
		if err != ErrClosed {
			t.Errorf("reader err = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reader not woken by Close")
	}
}
