package forth

import "fmt"

// Word is one dictionary cell: a reference to an entry (a word pointer
// in the parameter field, or an execution token on the data stack), a
// 32-bit data value, or a cell address qualified by the dictionary that
// owns the cell (what variables and arrays push).
type Word[H any] struct {
	entry    *Entry[H]
	addrDict *Dict[H]
	data     int32
}

// DataWord builds a data cell.
func DataWord[H any](v int32) Word[H] {
	return Word[H]{data: v}
}

// EntryWord builds an entry-reference cell.
func EntryWord[H any](e *Entry[H]) Word[H] {
	return Word[H]{entry: e}
}

// AddrWord builds a cell address into d's arena.
func AddrWord[H any](d *Dict[H], idx int32) Word[H] {
	return Word[H]{addrDict: d, data: idx}
}

// IsEntry reports whether the cell references an entry.
func (w Word[H]) IsEntry() bool { return w.entry != nil }

// IsAddr reports whether the cell is a dictionary cell address.
func (w Word[H]) IsAddr() bool { return w.addrDict != nil }

// AddrDict returns the dictionary a cell address points into.
func (w Word[H]) AddrDict() *Dict[H] { return w.addrDict }

// Entry returns the referenced entry, or nil for data cells.
func (w Word[H]) Entry() *Entry[H] { return w.entry }

// Data returns the cell's data value.
func (w Word[H]) Data() int32 { return w.data }

// String formats the cell for diagnostics.
func (w Word[H]) String() string {
	if w.entry != nil {
		return fmt.Sprintf("xt:%s", w.entry.Name)
	}
	return fmt.Sprintf("%d", w.data)
}
