package forth

// EntryKind tags how an entry's code field is dispatched.
type EntryKind int

const (
	// KindStaticBuiltin is a host-provided builtin shared by all VMs.
	KindStaticBuiltin EntryKind = iota
	// KindRuntimeBuiltin is a builtin added to one VM at runtime.
	KindRuntimeBuiltin
	// KindDictionary is a user-compiled word executed via interpret.
	KindDictionary
	// KindAsyncBuiltin is only executable by an AsyncVM.
	KindAsyncBuiltin
)

// WordFunc is the code field of an entry.
type WordFunc[H any] func(vm *VM[H]) error

// Entry is one dictionary entry header. Compiled entries own a parameter
// field of Len cells starting at pfa in their dictionary's arena.
type Entry[H any] struct {
	Name string
	Kind EntryKind
	Len  uint16
	Func WordFunc[H]

	// mutable marks entries (variables, arrays) whose parameter field is
	// written at runtime; parent-dictionary hits on these are deep-copied
	// before use so only the running VM's own dictionary mutates.
	mutable bool
	// storage is the number of trailing arena cells past Len that back a
	// mutable entry's cells.
	storage int

	pfa  int
	dict *Dict[H]

	// asyncIdx indexes the async dispatcher's table for KindAsyncBuiltin.
	asyncIdx int
}

// paramAt reads parameter cell i.
func (e *Entry[H]) paramAt(i int) Word[H] {
	return e.dict.cells[e.pfa+i]
}

// Dict is a dictionary: a bump arena of cells holding parameter fields,
// an entry list searched newest-first, and an optional frozen parent
// chain established by Fork. Entries reference their cells by arena
// index, never by raw pointer.
type Dict[H any] struct {
	cells   []Word[H]
	entries []*Entry[H]
	strs    []string // string-literal table for compiled (write-str)
	parent  *Dict[H]
	frozen  bool
}

// NewDict creates a dictionary with an arena of size cells.
func NewDict[H any](size int) *Dict[H] {
	return &Dict[H]{cells: make([]Word[H], 0, size)}
}

// Here reports the bump position.
func (d *Dict[H]) Here() int { return len(d.cells) }

// Parent returns the frozen parent chain head, if any.
func (d *Dict[H]) Parent() *Dict[H] { return d.parent }

// Frozen reports whether the dictionary is a sealed fork parent.
func (d *Dict[H]) Frozen() bool { return d.frozen }

// bumpWrite appends one cell.
func (d *Dict[H]) bumpWrite(w Word[H]) error {
	if d.frozen {
		return ErrDictFull
	}
	if len(d.cells) == cap(d.cells) {
		return ErrDictFull
	}
	d.cells = append(d.cells, w)
	return nil
}

// internString records a compiled string literal and returns its index.
func (d *Dict[H]) internString(s string) int32 {
	d.strs = append(d.strs, s)
	return int32(len(d.strs) - 1)
}

// mark captures the bump state for rewind on failed compiles.
type mark struct {
	here    int
	entries int
	strs    int
}

func (d *Dict[H]) mark() mark {
	return mark{here: len(d.cells), entries: len(d.entries), strs: len(d.strs)}
}

// rewind restores the bump pointer exactly to a previous mark.
func (d *Dict[H]) rewind(m mark) {
	d.cells = d.cells[:m.here]
	d.entries = d.entries[:m.entries]
	d.strs = d.strs[:m.strs]
}

// findLocal searches only this dictionary, newest first.
func (d *Dict[H]) findLocal(name string) *Entry[H] {
	for i := len(d.entries) - 1; i >= 0; i-- {
		if d.entries[i].Name == name {
			return d.entries[i]
		}
	}
	return nil
}

// find walks this dictionary then the frozen parent chain. inParent
// reports whether the hit came from a parent.
func (d *Dict[H]) find(name string) (e *Entry[H], inParent bool) {
	if e := d.findLocal(name); e != nil {
		return e, false
	}
	for p := d.parent; p != nil; p = p.parent {
		if e := p.findLocal(name); e != nil {
			return e, true
		}
	}
	return nil, false
}

// addEntry registers a header whose parameter field was already bumped.
func (d *Dict[H]) addEntry(e *Entry[H]) {
	e.dict = d
	d.entries = append(d.entries, e)
}

// copyEntry deep-copies a parent entry's parameter field into this
// dictionary, rebasing the address literal of mutable entries so the
// copy's storage cells are the ones addressed.
func (d *Dict[H]) copyEntry(src *Entry[H]) (*Entry[H], error) {
	m := d.mark()
	newPfa := d.Here()
	total := int(src.Len) + src.storage
	for i := 0; i < total; i++ {
		cell := src.paramAt(i)
		if cell.IsAddr() && cell.AddrDict() == src.dict {
			// Rebase addresses that point into the source's own cells.
			old := int(cell.Data())
			if old >= src.pfa && old < src.pfa+total {
				cell = AddrWord(d, int32(newPfa+(old-src.pfa)))
			}
		}
		if err := d.bumpWrite(cell); err != nil {
			d.rewind(m)
			return nil, err
		}
	}
	e := &Entry[H]{
		Name:     src.Name,
		Kind:     src.Kind,
		Len:      src.Len,
		Func:     src.Func,
		mutable:  src.mutable,
		storage:  src.storage,
		pfa:      newPfa,
		asyncIdx: src.asyncIdx,
	}
	d.addEntry(e)
	return e, nil
}

// Fork freezes this dictionary into a shared parent and returns two
// fresh mutable dictionaries referencing it: one to replace the caller's
// and one for the child VM.
func (d *Dict[H]) Fork(mySize, childSize int) (mine, child *Dict[H]) {
	d.frozen = true
	mine = NewDict[H](mySize)
	mine.parent = d
	child = NewDict[H](childSize)
	child.parent = d
	return mine, child
}
