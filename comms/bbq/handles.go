package bbq

import (
	"context"
	"sync"

	"github.com/ehrlich-b/kestrel/internal/interfaces"
)

// SpscProducer is the producing end of a single-producer ring.
type SpscProducer struct {
	ring *Ring
}

// Consumer is the consuming end of a ring.
type Consumer struct {
	ring *Ring
}

// NewSPSC creates a ring and returns its two ends.
func NewSPSC(capacity int, wakes interfaces.WakeRecorder) (*SpscProducer, *Consumer) {
	r := New(capacity, wakes)
	return &SpscProducer{ring: r}, &Consumer{ring: r}
}

func (p *SpscProducer) SendGrantExact(ctx context.Context, n int) (*GrantW, error) {
	return p.ring.SendGrantExact(ctx, n)
}

func (p *SpscProducer) SendGrantMax(ctx context.Context, n int) (*GrantW, error) {
	return p.ring.SendGrantMax(ctx, n)
}

// TrySendGrantExact is the non-blocking path used by the sermux demux.
func (p *SpscProducer) TrySendGrantExact(n int) (*GrantW, error) {
	return p.ring.TrySendGrantExact(n)
}

// Close closes the underlying ring.
func (p *SpscProducer) Close() { p.ring.Close() }

// IntoMpsc converts this producer into a shareable multi-producer handle.
func (p *SpscProducer) IntoMpsc() *MpscProducer {
	return &MpscProducer{ring: p.ring}
}

func (c *Consumer) ReadGrant(ctx context.Context) (*GrantR, error) {
	return c.ring.ReadGrant(ctx)
}

func (c *Consumer) TryReadGrant() (*GrantR, error) {
	return c.ring.TryReadGrant()
}

func (c *Consumer) SplitReadGrant(ctx context.Context) (*SplitGrantR, error) {
	return c.ring.SplitReadGrant(ctx)
}

// Close closes the underlying ring.
func (c *Consumer) Close() { c.ring.Close() }

// MpscProducer serializes whole grant-commit cycles from many tasks onto
// one ring, so the bytes of one frame are committed atomically with
// respect to other producers. The producer mutex is held from grant to
// Commit; callers must always commit (possibly zero).
type MpscProducer struct {
	ring *Ring
	mu   sync.Mutex
}

// SendGrantExact reserves exactly n contiguous bytes, excluding other
// producers until the grant is committed.
func (p *MpscProducer) SendGrantExact(ctx context.Context, n int) (*GrantW, error) {
	p.mu.Lock()
	g, err := p.ring.SendGrantExact(ctx, n)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	g.done = p.mu.Unlock
	return g, nil
}

// BidiHandle is one end of a bidirectional stream pair: a producer into
// the peer and a consumer of the peer's output. Forth stdio and the
// simple-serial port both hand these out.
type BidiHandle struct {
	tx *SpscProducer
	rx *Consumer
}

// NewBidi creates a crossed pair of rings and returns both ends.
func NewBidi(aToB, bToA int, wakes interfaces.WakeRecorder) (*BidiHandle, *BidiHandle) {
	abProd, abCons := NewSPSC(aToB, wakes)
	baProd, baCons := NewSPSC(bToA, wakes)
	a := &BidiHandle{tx: abProd, rx: baCons}
	b := &BidiHandle{tx: baProd, rx: abCons}
	return a, b
}

// Producer is the outgoing side of this end.
func (h *BidiHandle) Producer() *SpscProducer { return h.tx }

// Consumer is the incoming side of this end.
func (h *BidiHandle) Consumer() *Consumer { return h.rx }

// Close closes both directions.
func (h *BidiHandle) Close() {
	h.tx.Close()
	h.rx.Close()
}
