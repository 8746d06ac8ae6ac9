package serialmux

import (
	"context"
	"testing"

	"github.com/ehrlich-b/kestrel/comms/bbq"
	"github.com/ehrlich-b/kestrel/internal/heap"
	"github.com/ehrlich-b/kestrel/internal/logging"
)

func newMux(t *testing.T, maxPorts int) (*muxingInfo, *bbq.MpscProducer) {
	t.Helper()
	h := heap.New(heap.Settings{Size: 64 * 1024})
	ports, err := heap.AllocateFixedVec[portInfo](context.Background(), h, maxPorts)
	if err != nil {
		t.Fatal(err)
	}
	prod, _ := bbq.NewSPSC(256, nil)
	return &muxingInfo{ports: ports, maxFrame: 64}, prod.IntoMpsc()
}

func TestRegisterPort(t *testing.T) {
	mux, out := newMux(t, 4)

	h, err := mux.registerPort(7, 128, out)
	if err != nil {
		t.Fatalf("registerPort: %v", err)
	}
	if h.Port() != 7 {
		t.Errorf("Port = %d, want 7", h.Port())
	}
	if h.Consumer() == nil {
		t.Error("port has no consumer ring")
	}
}

func TestRegisterPortDuplicate(t *testing.T) {
	mux, out := newMux(t, 4)
	if _, err := mux.registerPort(7, 128, out); err != nil {
		t.Fatal(err)
	}
	if _, err := mux.registerPort(7, 128, out); err != ErrDuplicateItem {
		t.Errorf("err = %v, want ErrDuplicateItem", err)
	}
}

func TestRegisterPortTableFull(t *testing.T) {
	mux, out := newMux(t, 1)
	if _, err := mux.registerPort(1, 128, out); err != nil {
		t.Fatal(err)
	}
	if _, err := mux.registerPort(2, 128, out); err != ErrRegistryFull {
		t.Errorf("err = %v, want ErrRegistryFull", err)
	}
}

func TestRouteToUnknownPortDiscards(t *testing.T) {
	mux, _ := newMux(t, 4)
	// Must not panic or block.
	mux.route(99, []byte{1, 2, 3}, logging.Default())
}

func TestRouteDeliversPayload(t *testing.T) {
	mux, out := newMux(t, 4)
	h, err := mux.registerPort(3, 64, out)
	if err != nil {
		t.Fatal(err)
	}

	mux.route(3, []byte{0xAA, 0xBB}, logging.Default())

	g, err := h.Consumer().TryReadGrant()
	if err != nil {
		t.Fatalf("TryReadGrant: %v", err)
	}
	if len(g.Buf) != 2 || g.Buf[0] != 0xAA || g.Buf[1] != 0xBB {
		t.Errorf("payload = %v", g.Buf)
	}
	g.Release(len(g.Buf))
}

func TestRouteFullRingDiscards(t *testing.T) {
	mux, out := newMux(t, 4)
	h, err := mux.registerPort(3, 4, out)
	if err != nil {
		t.Fatal(err)
	}
	mux.route(3, []byte{1, 2, 3}, logging.Default())
	// Ring has a one-byte gap; a second 3-byte payload cannot fit.
	mux.route(3, []byte{4, 5, 6}, logging.Default())

	g, err := h.Consumer().TryReadGrant()
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Buf) != 3 || g.Buf[0] != 1 {
		t.Errorf("payload = %v, want the first frame only", g.Buf)
	}
	g.Release(len(g.Buf))
	if _, err := h.Consumer().TryReadGrant(); err == nil {
		t.Error("second frame should have been discarded")
	}
}
