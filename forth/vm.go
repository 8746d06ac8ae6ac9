package forth

import (
	"strconv"
)

// Mode is the VM's interpreter state.
type Mode int

const (
	// ModeRun executes tokens as they arrive.
	ModeRun Mode = iota
	// ModeCompile is active inside a colon definition.
	ModeCompile
)

// CallContext is one frame of Forth execution: the entry being run, the
// parameter-field index, and the field length.
type CallContext[H any] struct {
	eh  *Entry[H]
	idx uint16
	len uint16
}

// Entry returns the frame's entry.
func (c CallContext[H]) Entry() *Entry[H] { return c.eh }

func (c CallContext[H]) wordAtCurIdx() (Word[H], bool) {
	if c.idx >= c.len {
		return Word[H]{}, false
	}
	return c.eh.paramAt(int(c.idx)), true
}

// Params sizes a VM's buffers and stacks.
type Params struct {
	StackSize     int
	InputBufSize  int
	OutputBufSize int
	DictSize      int
}

// DefaultParams returns the standard VM sizing.
func DefaultParams() Params {
	return Params{
		StackSize:     256,
		InputBufSize:  256,
		OutputBufSize: 256,
		DictSize:      4096,
	}
}

func (p *Params) withDefaults() {
	d := DefaultParams()
	if p.StackSize == 0 {
		p.StackSize = d.StackSize
	}
	if p.InputBufSize == 0 {
		p.InputBufSize = d.InputBufSize
	}
	if p.OutputBufSize == 0 {
		p.OutputBufSize = d.OutputBufSize
	}
	if p.DictSize == 0 {
		p.DictSize = d.DictSize
	}
}

// Builtin names a host-provided word.
type Builtin[H any] struct {
	Name string
	Func WordFunc[H]
}

// AsyncBuiltinDef declares one async builtin by name; its table position
// becomes the index handed to the dispatcher.
type AsyncBuiltinDef struct {
	Name string
}

// VM is a Forth virtual machine. The host context H is available to every
// builtin via the Host field.
type VM[H any] struct {
	Mode        Mode
	DataStack   *Stack[Word[H]]
	ReturnStack *Stack[Word[H]]
	CallStack   *Stack[CallContext[H]]
	Dict        *Dict[H]
	Input       *WordStrBuf
	Output      *OutputBuf
	Host        H

	params        Params
	builtins      []*Entry[H]
	asyncBuiltins []*Entry[H]
}

// New creates a VM over dict with the given builtins.
func New[H any](params Params, dict *Dict[H], host H, builtins []Builtin[H]) *VM[H] {
	params.withDefaults()
	vm := &VM[H]{
		Mode:        ModeRun,
		DataStack:   NewStack[Word[H]](params.StackSize),
		ReturnStack: NewStack[Word[H]](params.StackSize),
		CallStack:   NewStack[CallContext[H]](params.StackSize),
		Dict:        dict,
		Input:       NewWordStrBuf(params.InputBufSize),
		Output:      NewOutputBuf(params.OutputBufSize),
		Host:        host,
		params:      params,
	}
	for _, b := range builtins {
		vm.builtins = append(vm.builtins, &Entry[H]{
			Name: b.Name,
			Kind: KindStaticBuiltin,
			Func: b.Func,
		})
	}
	return vm
}

// Params returns the sizing this VM was built with.
func (vm *VM[H]) Params() Params { return vm.params }

// SetAsyncBuiltins installs the async builtin table. Only an AsyncVM can
// execute them.
func (vm *VM[H]) SetAsyncBuiltins(defs []AsyncBuiltinDef) {
	vm.asyncBuiltins = vm.asyncBuiltins[:0]
	for i, d := range defs {
		vm.asyncBuiltins = append(vm.asyncBuiltins, &Entry[H]{
			Name:     d.Name,
			Kind:     KindAsyncBuiltin,
			asyncIdx: i,
		})
	}
}

// AddBuiltin registers a runtime builtin on this VM alone.
func (vm *VM[H]) AddBuiltin(name string, fn WordFunc[H]) {
	vm.builtins = append(vm.builtins, &Entry[H]{
		Name: name,
		Kind: KindRuntimeBuiltin,
		Func: fn,
	})
}

func (vm *VM[H]) findInBuiltins(name string) *Entry[H] {
	for _, e := range vm.builtins {
		if e.Name == name {
			return e
		}
	}
	return nil
}

func (vm *VM[H]) findInAsyncBuiltins(name string) *Entry[H] {
	for _, e := range vm.asyncBuiltins {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// findWord resolves a compiler primitive anywhere it may live.
func (vm *VM[H]) findWord(name string) *Entry[H] {
	if e, _ := vm.Dict.find(name); e != nil {
		return e
	}
	return vm.findInBuiltins(name)
}

func parseNum(word string) (int32, bool) {
	v, err := strconv.ParseInt(word, 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(v), true
}

// lookupKind is the decoded class of one token.
type lookupKind int

const (
	lkSemicolon lookupKind = iota
	lkIf
	lkElse
	lkThen
	lkDo
	lkLoop
	lkLParen
	lkConstant
	lkVariable
	lkArray
	lkLQuote
	lkDict
	lkBuiltin
	lkAsync
	lkLiteral
)

type lookup[H any] struct {
	kind     lookupKind
	entry    *Entry[H]
	inParent bool
	literal  int32
}

// lookupToken applies the precedence: structural words, current
// dictionary, parents, builtins, async builtins, then integer literal.
func (vm *VM[H]) lookupToken(word string) (lookup[H], error) {
	switch word {
	case ";":
		return lookup[H]{kind: lkSemicolon}, nil
	case "if":
		return lookup[H]{kind: lkIf}, nil
	case "else":
		return lookup[H]{kind: lkElse}, nil
	case "then":
		return lookup[H]{kind: lkThen}, nil
	case "do":
		return lookup[H]{kind: lkDo}, nil
	case "loop":
		return lookup[H]{kind: lkLoop}, nil
	case "(":
		return lookup[H]{kind: lkLParen}, nil
	case "constant":
		return lookup[H]{kind: lkConstant}, nil
	case "variable":
		return lookup[H]{kind: lkVariable}, nil
	case "array":
		return lookup[H]{kind: lkArray}, nil
	case `."`:
		return lookup[H]{kind: lkLQuote}, nil
	}
	if e, inParent := vm.Dict.find(word); e != nil {
		return lookup[H]{kind: lkDict, entry: e, inParent: inParent}, nil
	}
	if e := vm.findInBuiltins(word); e != nil {
		return lookup[H]{kind: lkBuiltin, entry: e}, nil
	}
	if e := vm.findInAsyncBuiltins(word); e != nil {
		return lookup[H]{kind: lkAsync, entry: e}, nil
	}
	if v, ok := parseNum(word); ok {
		return lookup[H]{kind: lkLiteral, literal: v}, nil
	}
	return lookup[H]{}, ErrLookupFailed
}

type processAction int

const (
	actionDone processAction = iota
	actionContinue
	actionExecute
)

// ProcessLine interprets or compiles tokens until the input is drained or
// an error occurs. On success "ok.\n" is appended to the output; on
// failure all three stacks are cleared.
func (vm *VM[H]) ProcessLine() error {
	err := vm.processLineWith(func() error {
		for {
			step, serr := vm.step()
			if serr != nil {
				return serr
			}
			if step == stepDone {
				return nil
			}
		}
	})
	return err
}

// processLineWith runs the line-processing loop with a pluggable
// execution driver, shared by the sync VM and the AsyncVM.
func (vm *VM[H]) processLineWith(execute func() error) error {
	run := func() error {
		for {
			action, err := vm.startProcessingLine()
			if err != nil {
				return err
			}
			switch action {
			case actionDone:
				return vm.Output.PushStr("ok.\n")
			case actionContinue:
			case actionExecute:
				if err := execute(); err != nil {
					return err
				}
			}
		}
	}
	if err := run(); err != nil {
		vm.DataStack.Clear()
		vm.ReturnStack.Clear()
		vm.CallStack.Clear()
		return err
	}
	return nil
}

// startProcessingLine consumes one token and either handles it inline or
// pushes a call frame and asks for execution.
func (vm *VM[H]) startProcessingLine() (processAction, error) {
	vm.Input.Advance()
	word, ok := vm.Input.CurWord()
	if !ok {
		return actionDone, nil
	}

	lk, err := vm.lookupToken(word)
	if err != nil {
		return 0, err
	}
	switch lk.kind {
	case lkDict:
		entry := lk.entry
		if lk.inParent && entry.mutable {
			// Mutable parent entries are copied before use so only our
			// own dictionary is ever written.
			entry, err = vm.Dict.copyEntry(entry)
			if err != nil {
				return 0, err
			}
		}
		if err := vm.CallStack.Push(CallContext[H]{eh: entry, idx: 0, len: entry.Len}); err != nil {
			return 0, err
		}
		return actionExecute, nil

	case lkBuiltin, lkAsync:
		if err := vm.CallStack.Push(CallContext[H]{eh: lk.entry, idx: 0, len: 0}); err != nil {
			return 0, err
		}
		return actionExecute, nil

	case lkLiteral:
		if err := vm.DataStack.Push(DataWord[H](lk.literal)); err != nil {
			return 0, err
		}
		return actionContinue, nil

	case lkLParen:
		var n uint16
		if _, err := vm.munchComment(&n); err != nil {
			return 0, err
		}
		return actionContinue, nil

	case lkLQuote:
		if err := vm.Input.AdvanceStr(); err != nil {
			return 0, err
		}
		lit, _ := vm.Input.CurStrLiteral()
		if err := vm.Output.PushStr(lit); err != nil {
			return 0, err
		}
		return actionContinue, nil

	case lkConstant:
		var n uint16
		if _, err := vm.munchConstant(&n); err != nil {
			return 0, err
		}
		return actionContinue, nil

	case lkVariable:
		var n uint16
		if _, err := vm.munchVariable(&n); err != nil {
			return 0, err
		}
		return actionContinue, nil

	case lkArray:
		var n uint16
		if _, err := vm.munchArray(&n); err != nil {
			return 0, err
		}
		return actionContinue, nil

	default:
		// Structural words are compile-only.
		return 0, ErrInterpretingCompileOnlyWord
	}
}

type stepResult int

const (
	stepDone stepResult = iota
	stepNotDone
)

// step executes the top of the call stack once. Async builtins cannot run
// here: a sync VM holding one is a construction bug, not a user error.
func (vm *VM[H]) step() (stepResult, error) {
	top, err := vm.CallStack.Peek()
	if err != nil {
		return stepDone, nil
	}

	var res error
	switch top.eh.Kind {
	case KindStaticBuiltin, KindRuntimeBuiltin, KindDictionary:
		res = top.eh.Func(vm)
	case KindAsyncBuiltin:
		panic("forth: async builtin reached a synchronous execution step; " +
			"only an AsyncVM may run async builtins")
	}

	switch res {
	case nil:
		_, _ = vm.CallStack.Pop()
	case ErrPendingCallAgain:
		// Leave the stack as the callee arranged it.
	default:
		return stepNotDone, res
	}
	return stepNotDone, nil
}

// Interpret is the code field of every compiled word: it walks the
// parameter field, pushing one callee frame per cell.
func (vm *VM[H]) Interpret() error {
	top, err := vm.CallStack.Peek()
	if err != nil {
		return err
	}

	word, ok := top.wordAtCurIdx()
	if !ok {
		return nil
	}
	if !word.IsEntry() {
		return ErrBadCFA
	}
	callee := CallContext[H]{eh: word.Entry(), idx: 0, len: word.Entry().Len}

	top.idx++
	if err := vm.CallStack.OverwriteBackN(0, top); err != nil {
		return err
	}
	if err := vm.CallStack.Push(callee); err != nil {
		return err
	}
	return ErrPendingCallAgain
}

// interpretEntry builds the code-field func for compiled words.
func interpretEntry[H any](vm *VM[H]) error {
	return vm.Interpret()
}
