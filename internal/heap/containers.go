package heap

import (
	"context"
	"io"
	"sync/atomic"
	"unsafe"
)

// Owned containers. Every container holds the accounting allocation that
// backs it; dropping a container runs the value's destructor (io.Closer,
// when implemented) and returns the allocation to the heap, deferring the
// free when the heap lock is contended. Leak suppresses the free so the
// value lives for the remainder of the process.

// layoutFor returns the accounting layout of one T.
func layoutFor[T any]() Layout {
	var v T
	size := int(unsafe.Sizeof(v))
	align := int(unsafe.Alignof(v))
	if size == 0 {
		size = 1
	}
	if align == 0 {
		align = 1
	}
	return Layout{Size: size, Align: align}
}

func destroy(v any) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}

// Box is exclusive ownership of one T.
type Box[T any] struct {
	heap   *Heap
	off    int
	layout Layout
	val    T
	dead   bool
}

// AllocBox is the non-blocking allocation path; it returns ErrOutOfMemory
// instead of waiting.
func AllocBox[T any](g *Guard, val T) (*Box[T], error) {
	layout := layoutFor[T]()
	off, err := g.AllocRaw(layout)
	if err != nil {
		return nil, err
	}
	return &Box[T]{heap: g.h, off: off, layout: layout, val: val}, nil
}

// Allocate suspends until the heap can hold one T.
func Allocate[T any](ctx context.Context, h *Heap, val T) (*Box[T], error) {
	layout := layoutFor[T]()
	off, err := h.AllocateRaw(ctx, layout)
	if err != nil {
		return nil, err
	}
	return &Box[T]{heap: h, off: off, layout: layout, val: val}, nil
}

// Value returns the boxed value. The pointer is valid until Drop.
func (b *Box[T]) Value() *T {
	return &b.val
}

// Offset reports where the box's backing allocation lives in the region.
func (b *Box[T]) Offset() int { return b.off }

// Size reports the backing allocation's size in bytes.
func (b *Box[T]) Size() int { return b.layout.Size }

// Drop destroys the value and returns the allocation to the heap.
func (b *Box[T]) Drop() {
	if b.dead {
		return
	}
	b.dead = true
	destroy(any(&b.val))
	b.heap.release(b.off, b.layout)
}

// Leak suppresses the free-on-drop and surrenders the value.
func (b *Box[T]) Leak() *T {
	b.dead = true
	return &b.val
}

// Arc is shared ownership of one T with an atomic refcount. The inner
// allocation accounts for the refcount header plus the value.
type Arc[T any] struct {
	inner *arcInner[T]
}

type arcInner[T any] struct {
	refs   atomic.Int32
	heap   *Heap
	off    int
	layout Layout
	val    T
}

// AllocateArc suspends until the heap can hold one refcounted T.
func AllocateArc[T any](ctx context.Context, h *Heap, val T) (Arc[T], error) {
	layout := layoutFor[arcInner[T]]()
	off, err := h.AllocateRaw(ctx, layout)
	if err != nil {
		return Arc[T]{}, err
	}
	inner := &arcInner[T]{heap: h, off: off, layout: layout, val: val}
	inner.refs.Store(1)
	return Arc[T]{inner: inner}, nil
}

// Clone takes another strong reference.
func (a Arc[T]) Clone() Arc[T] {
	a.inner.refs.Add(1)
	return Arc[T]{inner: a.inner}
}

// Value returns the shared value.
func (a Arc[T]) Value() *T {
	return &a.inner.val
}

// Drop releases one reference; the last drop destroys the value and frees.
func (a Arc[T]) Drop() {
	if a.inner.refs.Add(-1) == 0 {
		destroy(any(&a.inner.val))
		a.inner.heap.release(a.inner.off, a.inner.layout)
	}
}

// Array is a fixed-length [T; n] whose length was fixed at allocation.
type Array[T any] struct {
	heap   *Heap
	off    int
	layout Layout
	items  []T
	dead   bool
}

// AllocateArrayWith builds an n-element array, calling fill for each index.
func AllocateArrayWith[T any](ctx context.Context, h *Heap, fill func(i int) T, n int) (*Array[T], error) {
	elem := layoutFor[T]()
	layout := Layout{Size: elem.Size * n, Align: elem.Align}
	off, err := h.AllocateRaw(ctx, layout)
	if err != nil {
		return nil, err
	}
	items := make([]T, n)
	if fill != nil {
		for i := range items {
			items[i] = fill(i)
		}
	}
	return &Array[T]{heap: h, off: off, layout: layout, items: items}, nil
}

// Slice exposes the array elements.
func (a *Array[T]) Slice() []T { return a.items }

// Len returns the fixed element count.
func (a *Array[T]) Len() int { return len(a.items) }

// Offset reports the backing allocation's offset.
func (a *Array[T]) Offset() int { return a.off }

// Drop destroys each element and frees the array.
func (a *Array[T]) Drop() {
	if a.dead {
		return
	}
	a.dead = true
	for i := range a.items {
		destroy(any(&a.items[i]))
	}
	a.heap.release(a.off, a.layout)
}

// FixedVec is a capacity-bounded vector; Push fails instead of growing.
type FixedVec[T any] struct {
	heap   *Heap
	off    int
	layout Layout
	items  []T
	dead   bool
}

// ErrVecFull is returned by Push when the vector is at capacity.
var ErrVecFull = errOf("heap: fixed vec full")

type errOf string

func (e errOf) Error() string { return string(e) }

// AllocateFixedVec builds an empty vector with room for capacity elements.
func AllocateFixedVec[T any](ctx context.Context, h *Heap, capacity int) (*FixedVec[T], error) {
	elem := layoutFor[T]()
	layout := Layout{Size: elem.Size * capacity, Align: elem.Align}
	off, err := h.AllocateRaw(ctx, layout)
	if err != nil {
		return nil, err
	}
	return &FixedVec[T]{heap: h, off: off, layout: layout, items: make([]T, 0, capacity)}, nil
}

// Push appends v, failing when the vector is full.
func (v *FixedVec[T]) Push(item T) error {
	if len(v.items) == cap(v.items) {
		return ErrVecFull
	}
	v.items = append(v.items, item)
	return nil
}

// Slice exposes the pushed elements.
func (v *FixedVec[T]) Slice() []T { return v.items }

// IsFull reports whether Push would fail.
func (v *FixedVec[T]) IsFull() bool { return len(v.items) == cap(v.items) }

// Clear drops all elements without freeing the backing allocation.
func (v *FixedVec[T]) Clear() {
	for i := range v.items {
		destroy(any(&v.items[i]))
	}
	v.items = v.items[:0]
}

// Drop destroys the elements and frees the vector.
func (v *FixedVec[T]) Drop() {
	if v.dead {
		return
	}
	v.dead = true
	v.Clear()
	v.heap.release(v.off, v.layout)
}
