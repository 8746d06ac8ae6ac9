package heap

import "fmt"

// Layout describes the size and alignment of one allocation, in bytes.
type Layout struct {
	Size  int
	Align int
}

// LayoutOf returns a layout for n bytes with the default word alignment.
func LayoutOf(n int) Layout {
	return Layout{Size: n, Align: 8}
}

func (l Layout) check() error {
	if l.Size < 0 || l.Align <= 0 || l.Align&(l.Align-1) != 0 {
		return fmt.Errorf("invalid layout {size=%d align=%d}", l.Size, l.Align)
	}
	return nil
}

// span is one free region, linked in address order.
type span struct {
	off  int
	size int
	next *span
}

// freeList is a first-fit allocator over a contiguous region of `size`
// bytes. Free spans are kept sorted by offset and coalesced on free, the
// same shape as a linked-list allocator over a raw memory region.
type freeList struct {
	size int
	head *span
	used int
}

func newFreeList(size int) *freeList {
	return &freeList{
		size: size,
		head: &span{off: 0, size: size},
	}
}

func alignUp(v, align int) int {
	return (v + align - 1) &^ (align - 1)
}

// alloc finds the first free span that can satisfy layout, splitting it as
// needed. Returns the allocated offset, or ok=false when no span fits.
func (f *freeList) alloc(layout Layout) (int, bool) {
	if layout.Size == 0 {
		return 0, true
	}
	prev := (*span)(nil)
	cur := f.head
	for cur != nil {
		start := alignUp(cur.off, layout.Align)
		pad := start - cur.off
		if pad+layout.Size <= cur.size {
			// Leading padding stays free as its own span.
			if pad > 0 {
				lead := &span{off: cur.off, size: pad, next: cur}
				if prev == nil {
					f.head = lead
				} else {
					prev.next = lead
				}
				prev = lead
				cur.off = start
				cur.size -= pad
			}
			// Carve the allocation off the front of cur.
			if layout.Size == cur.size {
				if prev == nil {
					f.head = cur.next
				} else {
					prev.next = cur.next
				}
			} else {
				cur.off += layout.Size
				cur.size -= layout.Size
			}
			f.used += layout.Size
			return start, true
		}
		prev = cur
		cur = cur.next
	}
	return 0, false
}

// free returns [off, off+size) to the free list, coalescing with neighbors.
func (f *freeList) free(off, size int) {
	if size == 0 {
		return
	}
	f.used -= size

	prev := (*span)(nil)
	cur := f.head
	for cur != nil && cur.off < off {
		prev = cur
		cur = cur.next
	}

	// Merge with predecessor?
	if prev != nil && prev.off+prev.size == off {
		prev.size += size
		// And through to successor?
		if cur != nil && prev.off+prev.size == cur.off {
			prev.size += cur.size
			prev.next = cur.next
		}
		return
	}

	// Merge with successor?
	if cur != nil && off+size == cur.off {
		cur.off = off
		cur.size += size
		return
	}

	ns := &span{off: off, size: size, next: cur}
	if prev == nil {
		f.head = ns
	} else {
		prev.next = ns
	}
}

// contains reports whether [off, off+size) lies inside the managed region.
func (f *freeList) contains(off, size int) bool {
	return off >= 0 && size >= 0 && off+size <= f.size
}
