package forth

// Compilation. A user definition begins with ':' (a builtin) and munches
// tokens until ';'. Structure words emit forward-patched jumps into the
// dictionary arena; a failed compile rewinds the bump pointer exactly to
// where it started.

// biColon is the ':' builtin.
func biColon[H any](vm *VM[H]) error {
	m := vm.Dict.mark()
	vm.Mode = ModeCompile
	defer func() { vm.Mode = ModeRun }()

	name, err := vm.munchName()
	if err != nil {
		vm.Dict.rewind(m)
		return err
	}

	pfa := vm.Dict.Here()
	var length uint16
	for {
		n, merr := vm.munchOne(&length)
		if merr != nil {
			vm.Dict.rewind(m)
			return merr
		}
		if n == 0 {
			break
		}
	}
	if w, ok := vm.Input.CurWord(); !ok || w != ";" {
		vm.Dict.rewind(m)
		return ErrColonCompileMissingSemicolon
	}

	vm.Dict.addEntry(&Entry[H]{
		Name: name,
		Kind: KindDictionary,
		Len:  length,
		Func: interpretEntry[H],
		pfa:  pfa,
	})
	return nil
}

// munchName takes the next token as a definition name.
func (vm *VM[H]) munchName() (string, error) {
	vm.Input.Advance()
	name, ok := vm.Input.CurWord()
	if !ok {
		return "", ErrColonCompileMissingName
	}
	return name, nil
}

// munchOne compiles a single token, returning the number of words
// emitted. Zero means the definition (or input) ended.
func (vm *VM[H]) munchOne(length *uint16) (uint16, error) {
	start := *length
	vm.Input.Advance()
	word, ok := vm.Input.CurWord()
	if !ok {
		return 0, nil
	}

	lk, err := vm.lookupToken(word)
	if err != nil {
		return 0, err
	}
	switch lk.kind {
	case lkIf:
		return vm.munchIf(length)
	case lkElse:
		return 0, ErrElseBeforeIf
	case lkThen:
		return 0, ErrThenBeforeIf
	case lkSemicolon:
		return 0, nil
	case lkDo:
		return vm.munchDo(length)
	case lkLoop:
		return 0, ErrLoopBeforeDo
	case lkLParen:
		// A comment emits nothing; compile the token that follows it.
		if _, err := vm.munchComment(length); err != nil {
			return 0, err
		}
		return vm.munchOne(length)
	case lkLQuote:
		return vm.munchStr(length)
	case lkConstant:
		return vm.munchConstant(length)
	case lkVariable:
		return vm.munchVariable(length)
	case lkArray:
		return vm.munchArray(length)

	case lkDict, lkBuiltin, lkAsync:
		// Referenced entries go into the parameter field directly;
		// parent entries stay by reference, the fork chain keeps them
		// alive.
		if err := vm.Dict.bumpWrite(EntryWord(lk.entry)); err != nil {
			return 0, err
		}
		*length++

	case lkLiteral:
		// Literals compile as the (literal) word plus the value cell.
		lit := vm.findWord("(literal)")
		if lit == nil {
			return 0, ErrWordNotInDict
		}
		if err := vm.Dict.bumpWrite(EntryWord(lit)); err != nil {
			return 0, err
		}
		if err := vm.Dict.bumpWrite(DataWord[H](lk.literal)); err != nil {
			return 0, err
		}
		*length += 2
	}
	return *length - start, nil
}

// munchIf compiles IF [ELSE] THEN with forward-patched jump offsets.
func (vm *VM[H]) munchIf(length *uint16) (uint16, error) {
	start := *length

	cj := vm.findWord("(jump-zero)")
	if cj == nil {
		return 0, ErrWordNotInDict
	}
	if err := vm.Dict.bumpWrite(EntryWord(cj)); err != nil {
		return 0, err
	}
	cjPatch := vm.Dict.Here()
	if err := vm.Dict.bumpWrite(DataWord[H](0)); err != nil {
		return 0, err
	}
	*length += 2

	elseThen := false
	ifStart := *length
	for {
		n, err := vm.munchOne(length)
		switch {
		case err == nil && n == 0:
			return 0, ErrIfWithoutThen
		case err == nil:
		case err == ErrElseBeforeIf:
			elseThen = true
		case err == ErrThenBeforeIf:
		default:
			return 0, err
		}
		if err != nil {
			break
		}
	}

	delta := *length - ifStart
	if !elseThen {
		// Jump offset is words placed plus one for the offset cell.
		vm.Dict.cells[cjPatch] = DataWord[H](int32(delta) + 1)
		return *length - start, nil
	}

	// Got an ELSE: the false edge must also clear the unconditional jump
	// that ends the true body.
	vm.Dict.cells[cjPatch] = DataWord[H](int32(delta) + 3)

	jmp := vm.findWord("(jmp)")
	if jmp == nil {
		return 0, ErrWordNotInDict
	}
	if err := vm.Dict.bumpWrite(EntryWord(jmp)); err != nil {
		return 0, err
	}
	jmpPatch := vm.Dict.Here()
	if err := vm.Dict.bumpWrite(DataWord[H](0)); err != nil {
		return 0, err
	}
	*length += 2

	elseStart := *length
	for {
		n, err := vm.munchOne(length)
		switch {
		case err == nil && n == 0:
			return 0, ErrIfElseWithoutThen
		case err == nil:
			continue
		case err == ErrElseBeforeIf:
			return 0, ErrDuplicateElse
		case err == ErrThenBeforeIf:
		default:
			return 0, err
		}
		break
	}

	delta = *length - elseStart
	vm.Dict.cells[jmpPatch] = DataWord[H](int32(delta) + 1)
	return *length - start, nil
}

// munchDo compiles DO ... LOOP with a backward jump to the body start.
func (vm *VM[H]) munchDo(length *uint16) (uint16, error) {
	start := *length

	toR := vm.findWord("2d>2r")
	if toR == nil {
		return 0, ErrWordNotInDict
	}
	if err := vm.Dict.bumpWrite(EntryWord(toR)); err != nil {
		return 0, err
	}
	*length++

	doStart := *length
	for {
		n, err := vm.munchOne(length)
		switch {
		case err == nil && n == 0:
			return 0, ErrDoWithoutLoop
		case err == nil:
			continue
		case err == ErrLoopBeforeDo:
		default:
			return 0, err
		}
		break
	}

	delta := *length - doStart
	offset := -(int32(delta) + 1)
	dojmp := vm.findWord("(jmp-doloop)")
	if dojmp == nil {
		return 0, ErrWordNotInDict
	}
	if err := vm.Dict.bumpWrite(EntryWord(dojmp)); err != nil {
		return 0, err
	}
	if err := vm.Dict.bumpWrite(DataWord[H](offset)); err != nil {
		return 0, err
	}
	*length += 2

	return *length - start, nil
}

// munchComment discards tokens through the closing paren.
func (vm *VM[H]) munchComment(_ *uint16) (uint16, error) {
	for {
		vm.Input.Advance()
		word, ok := vm.Input.CurWord()
		if !ok {
			return 0, nil
		}
		if len(word) > 0 && word[len(word)-1] == ')' {
			return 0, nil
		}
	}
}

// munchStr compiles a ." literal as (write-str) plus a string-table index.
func (vm *VM[H]) munchStr(length *uint16) (uint16, error) {
	start := *length
	if err := vm.Input.AdvanceStr(); err != nil {
		return 0, err
	}
	lit, ok := vm.Input.CurStrLiteral()
	if !ok {
		return 0, ErrBadStrLiteral
	}

	ws := vm.findWord("(write-str)")
	if ws == nil {
		return 0, ErrWordNotInDict
	}
	idx := vm.Dict.internString(lit)
	if err := vm.Dict.bumpWrite(EntryWord(ws)); err != nil {
		return 0, err
	}
	if err := vm.Dict.bumpWrite(DataWord[H](idx)); err != nil {
		return 0, err
	}
	*length += 2
	return *length - start, nil
}

// munchConstant defines NAME pushing the popped value.
func (vm *VM[H]) munchConstant(_ *uint16) (uint16, error) {
	m := vm.Dict.mark()
	name, err := vm.munchName()
	if err != nil {
		return 0, err
	}
	val, err := vm.DataStack.Pop()
	if err != nil {
		return 0, err
	}
	lit := vm.findWord("(literal)")
	if lit == nil {
		return 0, ErrWordNotInDict
	}
	pfa := vm.Dict.Here()
	if err := vm.Dict.bumpWrite(EntryWord(lit)); err != nil {
		vm.Dict.rewind(m)
		return 0, err
	}
	if err := vm.Dict.bumpWrite(val); err != nil {
		vm.Dict.rewind(m)
		return 0, err
	}
	vm.Dict.addEntry(&Entry[H]{
		Name: name,
		Kind: KindDictionary,
		Len:  2,
		Func: interpretEntry[H],
		pfa:  pfa,
	})
	return 0, nil
}

// munchVariable defines NAME pushing the address of one storage cell.
func (vm *VM[H]) munchVariable(_ *uint16) (uint16, error) {
	m := vm.Dict.mark()
	name, err := vm.munchName()
	if err != nil {
		return 0, err
	}
	lit := vm.findWord("(literal)")
	if lit == nil {
		return 0, ErrWordNotInDict
	}
	pfa := vm.Dict.Here()
	if err := vm.Dict.bumpWrite(EntryWord(lit)); err != nil {
		vm.Dict.rewind(m)
		return 0, err
	}
	if err := vm.Dict.bumpWrite(AddrWord(vm.Dict, int32(pfa+2))); err != nil {
		vm.Dict.rewind(m)
		return 0, err
	}
	if err := vm.Dict.bumpWrite(DataWord[H](0)); err != nil {
		vm.Dict.rewind(m)
		return 0, err
	}
	vm.Dict.addEntry(&Entry[H]{
		Name:    name,
		Kind:    KindDictionary,
		Len:     2,
		Func:    interpretEntry[H],
		mutable: true,
		storage: 1,
		pfa:     pfa,
	})
	return 0, nil
}

// munchArray defines NAME pushing the base address of N storage cells,
// N popped from the data stack.
func (vm *VM[H]) munchArray(_ *uint16) (uint16, error) {
	m := vm.Dict.mark()
	name, err := vm.munchName()
	if err != nil {
		return 0, err
	}
	nw, err := vm.DataStack.Pop()
	if err != nil {
		return 0, err
	}
	n := int(nw.Data())
	if nw.IsEntry() || n <= 0 {
		return 0, ErrWordInvalid
	}
	lit := vm.findWord("(literal)")
	if lit == nil {
		return 0, ErrWordNotInDict
	}
	pfa := vm.Dict.Here()
	if err := vm.Dict.bumpWrite(EntryWord(lit)); err != nil {
		vm.Dict.rewind(m)
		return 0, err
	}
	if err := vm.Dict.bumpWrite(AddrWord(vm.Dict, int32(pfa+2))); err != nil {
		vm.Dict.rewind(m)
		return 0, err
	}
	for i := 0; i < n; i++ {
		if err := vm.Dict.bumpWrite(DataWord[H](0)); err != nil {
			vm.Dict.rewind(m)
			return 0, err
		}
	}
	vm.Dict.addEntry(&Entry[H]{
		Name:    name,
		Kind:    KindDictionary,
		Len:     2,
		Func:    interpretEntry[H],
		mutable: true,
		storage: n,
		pfa:     pfa,
	})
	return 0, nil
}
