package kforth

import (
	"context"
	"reflect"

	"github.com/ehrlich-b/kestrel/internal/heap"
)

// BagOfHolding stores type-erased owned values behind non-zero 32-bit
// tokens, so Forth code can refer to kernel objects (port handles and the
// like) with a single stack cell. Retrieval checks the stored type
// identity against the caller's expected type.
type BagOfHolding struct {
	idx   int32
	inner *heap.FixedVec[bohEntry]
}

type bohEntry struct {
	token int32
	typ   reflect.Type
	value any
}

// NewBagOfHolding allocates a bag with the given capacity from the heap.
func NewBagOfHolding(ctx context.Context, h *heap.Heap, capacity int) (*BagOfHolding, error) {
	inner, err := heap.AllocateFixedVec[bohEntry](ctx, h, capacity)
	if err != nil {
		return nil, err
	}
	return &BagOfHolding{inner: inner}, nil
}

// nextToken generates an unused non-zero token.
func (b *BagOfHolding) nextToken() int32 {
	for {
		b.idx++
		if b.idx == 0 {
			continue
		}
		taken := false
		for _, e := range b.inner.Slice() {
			if e.token == b.idx {
				taken = true
				break
			}
		}
		if !taken {
			return b.idx
		}
	}
}

// Register moves v into the bag and returns its token, or ok=false when
// the bag is full.
func (b *BagOfHolding) Register(v any) (int32, bool) {
	if b.inner.IsFull() {
		return 0, false
	}
	token := b.nextToken()
	if err := b.inner.Push(bohEntry{token: token, typ: reflect.TypeOf(v), value: v}); err != nil {
		return 0, false
	}
	return token, true
}

// Get retrieves the value stored under token, succeeding only when the
// stored type matches T.
func Get[T any](b *BagOfHolding, token int32) (T, bool) {
	var zero T
	for _, e := range b.inner.Slice() {
		if e.token != token {
			continue
		}
		if e.typ != reflect.TypeOf(zero) {
			return zero, false
		}
		v, ok := e.value.(T)
		return v, ok
	}
	return zero, false
}

// Drop releases the bag's backing allocation.
func (b *BagOfHolding) Drop() {
	b.inner.Drop()
}
