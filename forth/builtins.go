package forth

import "strconv"

// The standard builtin vocabulary. Runtime primitives — (literal), the
// jump words, 2d>2r, (write-str) — work against the parameter field of
// the word that invoked them, which sits one frame below them on the
// call stack.

// parentCtx fetches and later rewrites the invoking word's frame.
func parentCtx[H any](vm *VM[H]) (CallContext[H], error) {
	return vm.CallStack.PeekBackN(1)
}

func storeParentCtx[H any](vm *VM[H], c CallContext[H]) error {
	return vm.CallStack.OverwriteBackN(1, c)
}

func popData[H any](vm *VM[H]) (int32, error) {
	w, err := vm.DataStack.Pop()
	if err != nil {
		return 0, err
	}
	return w.Data(), nil
}

func pushData[H any](vm *VM[H], v int32) error {
	return vm.DataStack.Push(DataWord[H](v))
}

func biLiteral[H any](vm *VM[H]) error {
	parent, err := parentCtx(vm)
	if err != nil {
		return err
	}
	cell, ok := parent.wordAtCurIdx()
	if !ok {
		return ErrBadCFA
	}
	if err := vm.DataStack.Push(cell); err != nil {
		return err
	}
	parent.idx++
	return storeParentCtx(vm, parent)
}

func biJmp[H any](vm *VM[H]) error {
	parent, err := parentCtx(vm)
	if err != nil {
		return err
	}
	cell, ok := parent.wordAtCurIdx()
	if !ok {
		return ErrBadCFA
	}
	parent.idx = uint16(int(parent.idx) + int(cell.Data()))
	return storeParentCtx(vm, parent)
}

func biJumpZero[H any](vm *VM[H]) error {
	parent, err := parentCtx(vm)
	if err != nil {
		return err
	}
	cell, ok := parent.wordAtCurIdx()
	if !ok {
		return ErrBadCFA
	}
	cond, err := popData(vm)
	if err != nil {
		return err
	}
	if cond == 0 {
		parent.idx = uint16(int(parent.idx) + int(cell.Data()))
	} else {
		parent.idx++
	}
	return storeParentCtx(vm, parent)
}

// bi2dTo2r moves (limit index) from the data stack to the return stack.
func bi2dTo2r[H any](vm *VM[H]) error {
	index, err := vm.DataStack.Pop()
	if err != nil {
		return err
	}
	limit, err := vm.DataStack.Pop()
	if err != nil {
		return err
	}
	if err := vm.ReturnStack.Push(limit); err != nil {
		return err
	}
	return vm.ReturnStack.Push(index)
}

func biJmpDoloop[H any](vm *VM[H]) error {
	parent, err := parentCtx(vm)
	if err != nil {
		return err
	}
	cell, ok := parent.wordAtCurIdx()
	if !ok {
		return ErrBadCFA
	}

	index, err := vm.ReturnStack.Pop()
	if err != nil {
		return err
	}
	limit, err := vm.ReturnStack.Peek()
	if err != nil {
		return err
	}
	next := index.Data() + 1
	if next < limit.Data() {
		if err := vm.ReturnStack.Push(DataWord[H](next)); err != nil {
			return err
		}
		parent.idx = uint16(int(parent.idx) + int(cell.Data()))
	} else {
		if _, err := vm.ReturnStack.Pop(); err != nil {
			return err
		}
		parent.idx++
	}
	return storeParentCtx(vm, parent)
}

func biWriteStr[H any](vm *VM[H]) error {
	parent, err := parentCtx(vm)
	if err != nil {
		return err
	}
	cell, ok := parent.wordAtCurIdx()
	if !ok {
		return ErrBadCFA
	}
	strs := parent.eh.dict.strs
	idx := int(cell.Data())
	if idx < 0 || idx >= len(strs) {
		return ErrBadCFA
	}
	if err := vm.Output.PushStr(strs[idx]); err != nil {
		return err
	}
	parent.idx++
	return storeParentCtx(vm, parent)
}

func biTick[H any](vm *VM[H]) error {
	vm.Input.Advance()
	word, ok := vm.Input.CurWord()
	if !ok {
		return ErrColonCompileMissingName
	}
	if e, _ := vm.Dict.find(word); e != nil {
		return vm.DataStack.Push(EntryWord(e))
	}
	if e := vm.findInBuiltins(word); e != nil {
		return vm.DataStack.Push(EntryWord(e))
	}
	return ErrWordNotInDict
}

// biExecute replaces its own frame with the popped execution token's.
func biExecute[H any](vm *VM[H]) error {
	xt, err := vm.DataStack.Pop()
	if err != nil {
		return err
	}
	if !xt.IsEntry() {
		return ErrWordInvalid
	}
	callee := CallContext[H]{eh: xt.Entry(), idx: 0, len: xt.Entry().Len}
	if err := vm.CallStack.OverwriteBackN(0, callee); err != nil {
		return err
	}
	return ErrPendingCallAgain
}

func binop[H any](fn func(a, b int32) (int32, error)) WordFunc[H] {
	return func(vm *VM[H]) error {
		b, err := popData(vm)
		if err != nil {
			return err
		}
		a, err := popData(vm)
		if err != nil {
			return err
		}
		v, err := fn(a, b)
		if err != nil {
			return err
		}
		return pushData(vm, v)
	}
}

func cmpop[H any](fn func(a, b int32) bool) WordFunc[H] {
	return binop[H](func(a, b int32) (int32, error) {
		if fn(a, b) {
			return -1, nil
		}
		return 0, nil
	})
}

func cellAt[H any](vm *VM[H], w Word[H]) (*Word[H], bool, error) {
	d := w.AddrDict()
	if d == nil {
		d = vm.Dict
	}
	idx := int(w.Data())
	if idx < 0 || idx >= d.Here() {
		return nil, false, ErrBadAddress
	}
	return &d.cells[idx], d.frozen, nil
}

func biFetch[H any](vm *VM[H]) error {
	addr, err := vm.DataStack.Pop()
	if err != nil {
		return err
	}
	cell, _, err := cellAt(vm, addr)
	if err != nil {
		return err
	}
	return vm.DataStack.Push(*cell)
}

func biStore[H any](vm *VM[H]) error {
	addr, err := vm.DataStack.Pop()
	if err != nil {
		return err
	}
	val, err := vm.DataStack.Pop()
	if err != nil {
		return err
	}
	cell, frozen, err := cellAt(vm, addr)
	if err != nil {
		return err
	}
	if frozen {
		// Frozen fork parents are immutable; mutable entries should
		// have been copied down on lookup.
		return ErrBadAddress
	}
	*cell = val
	return nil
}

func biDot[H any](vm *VM[H]) error {
	w, err := vm.DataStack.Pop()
	if err != nil {
		return err
	}
	if w.IsEntry() {
		return vm.Output.PushStr(w.String() + " ")
	}
	return vm.Output.PushStr(strconv.FormatInt(int64(w.Data()), 10) + " ")
}

// Builtins returns the standard vocabulary for a VM with host context H.
func Builtins[H any]() []Builtin[H] {
	div := func(a, b int32) (int32, error) {
		if b == 0 {
			return 0, ErrWordInvalid
		}
		return a / b, nil
	}
	mod := func(a, b int32) (int32, error) {
		if b == 0 {
			return 0, ErrWordInvalid
		}
		return a % b, nil
	}
	return []Builtin[H]{
		// Definition and execution
		{Name: ":", Func: biColon[H]},
		{Name: "'", Func: biTick[H]},
		{Name: "execute", Func: biExecute[H]},

		// Runtime compilation primitives
		{Name: "(literal)", Func: biLiteral[H]},
		{Name: "(jmp)", Func: biJmp[H]},
		{Name: "(jump-zero)", Func: biJumpZero[H]},
		{Name: "(jmp-doloop)", Func: biJmpDoloop[H]},
		{Name: "2d>2r", Func: bi2dTo2r[H]},
		{Name: "(write-str)", Func: biWriteStr[H]},

		// Arithmetic
		{Name: "+", Func: binop[H](func(a, b int32) (int32, error) { return a + b, nil })},
		{Name: "-", Func: binop[H](func(a, b int32) (int32, error) { return a - b, nil })},
		{Name: "*", Func: binop[H](func(a, b int32) (int32, error) { return a * b, nil })},
		{Name: "/", Func: binop[H](div)},
		{Name: "mod", Func: binop[H](mod)},
		{Name: "min", Func: binop[H](func(a, b int32) (int32, error) {
			if a < b {
				return a, nil
			}
			return b, nil
		})},
		{Name: "max", Func: binop[H](func(a, b int32) (int32, error) {
			if a > b {
				return a, nil
			}
			return b, nil
		})},
		{Name: "abs", Func: func(vm *VM[H]) error {
			v, err := popData(vm)
			if err != nil {
				return err
			}
			if v < 0 {
				v = -v
			}
			return pushData(vm, v)
		}},
		{Name: "negate", Func: func(vm *VM[H]) error {
			v, err := popData(vm)
			if err != nil {
				return err
			}
			return pushData(vm, -v)
		}},

		// Comparison and logic
		{Name: "=", Func: cmpop[H](func(a, b int32) bool { return a == b })},
		{Name: "<>", Func: cmpop[H](func(a, b int32) bool { return a != b })},
		{Name: "<", Func: cmpop[H](func(a, b int32) bool { return a < b })},
		{Name: ">", Func: cmpop[H](func(a, b int32) bool { return a > b })},
		{Name: "<=", Func: cmpop[H](func(a, b int32) bool { return a <= b })},
		{Name: ">=", Func: cmpop[H](func(a, b int32) bool { return a >= b })},
		{Name: "0=", Func: func(vm *VM[H]) error {
			v, err := popData(vm)
			if err != nil {
				return err
			}
			if v == 0 {
				return pushData(vm, -1)
			}
			return pushData(vm, 0)
		}},
		{Name: "not", Func: func(vm *VM[H]) error {
			v, err := popData(vm)
			if err != nil {
				return err
			}
			if v == 0 {
				return pushData(vm, -1)
			}
			return pushData(vm, 0)
		}},
		{Name: "and", Func: binop[H](func(a, b int32) (int32, error) { return a & b, nil })},
		{Name: "or", Func: binop[H](func(a, b int32) (int32, error) { return a | b, nil })},
		{Name: "xor", Func: binop[H](func(a, b int32) (int32, error) { return a ^ b, nil })},

		// Stack manipulation
		{Name: "dup", Func: func(vm *VM[H]) error {
			w, err := vm.DataStack.Peek()
			if err != nil {
				return err
			}
			return vm.DataStack.Push(w)
		}},
		{Name: "drop", Func: func(vm *VM[H]) error {
			_, err := vm.DataStack.Pop()
			return err
		}},
		{Name: "swap", Func: func(vm *VM[H]) error {
			b, err := vm.DataStack.Pop()
			if err != nil {
				return err
			}
			a, err := vm.DataStack.Pop()
			if err != nil {
				return err
			}
			if err := vm.DataStack.Push(b); err != nil {
				return err
			}
			return vm.DataStack.Push(a)
		}},
		{Name: "over", Func: func(vm *VM[H]) error {
			w, err := vm.DataStack.PeekBackN(1)
			if err != nil {
				return err
			}
			return vm.DataStack.Push(w)
		}},
		{Name: "rot", Func: func(vm *VM[H]) error {
			c, err := vm.DataStack.Pop()
			if err != nil {
				return err
			}
			b, err := vm.DataStack.Pop()
			if err != nil {
				return err
			}
			a, err := vm.DataStack.Pop()
			if err != nil {
				return err
			}
			if err := vm.DataStack.Push(b); err != nil {
				return err
			}
			if err := vm.DataStack.Push(c); err != nil {
				return err
			}
			return vm.DataStack.Push(a)
		}},
		{Name: "depth", Func: func(vm *VM[H]) error {
			return pushData(vm, int32(vm.DataStack.Depth()))
		}},

		// Return stack
		{Name: ">r", Func: func(vm *VM[H]) error {
			w, err := vm.DataStack.Pop()
			if err != nil {
				return err
			}
			return vm.ReturnStack.Push(w)
		}},
		{Name: "r>", Func: func(vm *VM[H]) error {
			w, err := vm.ReturnStack.Pop()
			if err != nil {
				return err
			}
			return vm.DataStack.Push(w)
		}},
		{Name: "i", Func: func(vm *VM[H]) error {
			w, err := vm.ReturnStack.Peek()
			if err != nil {
				return err
			}
			return vm.DataStack.Push(w)
		}},
		{Name: "j", Func: func(vm *VM[H]) error {
			w, err := vm.ReturnStack.PeekBackN(2)
			if err != nil {
				return err
			}
			return vm.DataStack.Push(w)
		}},

		// Memory
		{Name: "@", Func: biFetch[H]},
		{Name: "!", Func: biStore[H]},

		// Output
		{Name: ".", Func: biDot[H]},
		{Name: "cr", Func: func(vm *VM[H]) error {
			return vm.Output.PushStr("\n")
		}},
		{Name: "space", Func: func(vm *VM[H]) error {
			return vm.Output.PushStr(" ")
		}},
		{Name: "emit", Func: func(vm *VM[H]) error {
			v, err := popData(vm)
			if err != nil {
				return err
			}
			return vm.Output.PushByte(byte(v))
		}},
	}
}
