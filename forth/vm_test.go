package forth

import (
	"strings"
	"testing"
)

type nohost struct{}

func newTestVM(t *testing.T) *VM[nohost] {
	t.Helper()
	return New(DefaultParams(), NewDict[nohost](4096), nohost{}, Builtins[nohost]())
}

func runLine(t *testing.T, vm *VM[nohost], line string) {
	t.Helper()
	vm.Output.Clear()
	if err := vm.Input.Fill(line); err != nil {
		t.Fatalf("Fill(%q): %v", line, err)
	}
	if err := vm.ProcessLine(); err != nil {
		t.Fatalf("ProcessLine(%q): %v", line, err)
	}
}

func failLine(t *testing.T, vm *VM[nohost], line string) error {
	t.Helper()
	vm.Output.Clear()
	if err := vm.Input.Fill(line); err != nil {
		t.Fatalf("Fill(%q): %v", line, err)
	}
	err := vm.ProcessLine()
	if err == nil {
		t.Fatalf("ProcessLine(%q) unexpectedly succeeded", line)
	}
	return err
}

func dataInts(vm *VM[nohost]) []int32 {
	var out []int32
	for _, w := range vm.DataStack.Slice() {
		out = append(out, w.Data())
	}
	return out
}

func TestArithmeticAndOutput(t *testing.T) {
	vm := newTestVM(t)
	runLine(t, vm, "2 3 + . cr")
	if got := vm.Output.AsStr(); got != "5 \nok.\n" {
		t.Errorf("output = %q, want %q", got, "5 \nok.\n")
	}
}

func TestStackWords(t *testing.T) {
	vm := newTestVM(t)
	runLine(t, vm, "1 2 3 rot")
	if got := dataInts(vm); len(got) != 3 || got[0] != 2 || got[1] != 3 || got[2] != 1 {
		t.Errorf("rot result = %v, want [2 3 1]", got)
	}
	vm.DataStack.Clear()

	runLine(t, vm, "7 dup over swap drop")
	if got := dataInts(vm); len(got) != 2 || got[0] != 7 || got[1] != 7 {
		t.Errorf("stack = %v, want [7 7]", got)
	}
}

func TestColonDefinitionMatchesInline(t *testing.T) {
	vm := newTestVM(t)
	runLine(t, vm, ": square dup * ;")
	runLine(t, vm, "6 square")
	defined := dataInts(vm)
	vm.DataStack.Clear()

	runLine(t, vm, "6 dup *")
	inline := dataInts(vm)
	if len(defined) != 1 || len(inline) != 1 || defined[0] != inline[0] || defined[0] != 36 {
		t.Errorf("defined = %v, inline = %v, want [36]", defined, inline)
	}
}

func TestNestedDefinitions(t *testing.T) {
	vm := newTestVM(t)
	runLine(t, vm, ": double 2 * ;")
	runLine(t, vm, ": quad double double ;")
	runLine(t, vm, "3 quad")
	if got := dataInts(vm); len(got) != 1 || got[0] != 12 {
		t.Errorf("quad result = %v, want [12]", got)
	}
}

func TestIfThen(t *testing.T) {
	vm := newTestVM(t)
	runLine(t, vm, ": check if 10 then 20 ;")
	runLine(t, vm, "1 check")
	if got := dataInts(vm); len(got) != 2 || got[0] != 10 || got[1] != 20 {
		t.Errorf("true branch = %v, want [10 20]", got)
	}
	vm.DataStack.Clear()
	runLine(t, vm, "0 check")
	if got := dataInts(vm); len(got) != 1 || got[0] != 20 {
		t.Errorf("false branch = %v, want [20]", got)
	}
}

func TestIfElseThen(t *testing.T) {
	vm := newTestVM(t)
	runLine(t, vm, ": pick if 111 else 222 then ;")
	runLine(t, vm, "1 pick")
	if got := dataInts(vm); len(got) != 1 || got[0] != 111 {
		t.Errorf("true branch = %v, want [111]", got)
	}
	vm.DataStack.Clear()
	runLine(t, vm, "0 pick")
	if got := dataInts(vm); len(got) != 1 || got[0] != 222 {
		t.Errorf("false branch = %v, want [222]", got)
	}
}

func TestDoLoop(t *testing.T) {
	vm := newTestVM(t)
	runLine(t, vm, ": sum 0 5 0 do i + loop ;")
	runLine(t, vm, "sum")
	// 0+1+2+3+4 = 10
	if got := dataInts(vm); len(got) != 1 || got[0] != 10 {
		t.Errorf("sum = %v, want [10]", got)
	}
}

func TestNestedDoLoop(t *testing.T) {
	vm := newTestVM(t)
	runLine(t, vm, ": grid 0 3 0 do 3 0 do 1 + loop loop ;")
	runLine(t, vm, "grid")
	if got := dataInts(vm); len(got) != 1 || got[0] != 9 {
		t.Errorf("grid = %v, want [9]", got)
	}
}

func TestConstantAndVariable(t *testing.T) {
	vm := newTestVM(t)
	runLine(t, vm, "42 constant answer")
	runLine(t, vm, "answer")
	if got := dataInts(vm); len(got) != 1 || got[0] != 42 {
		t.Fatalf("constant = %v, want [42]", got)
	}
	vm.DataStack.Clear()

	runLine(t, vm, "variable counter")
	runLine(t, vm, "7 counter !")
	runLine(t, vm, "counter @")
	if got := dataInts(vm); len(got) != 1 || got[0] != 7 {
		t.Errorf("variable fetch = %v, want [7]", got)
	}
}

func TestArray(t *testing.T) {
	vm := newTestVM(t)
	runLine(t, vm, "4 array vals")
	runLine(t, vm, "11 vals !")
	runLine(t, vm, "22 vals 1 + !")
	runLine(t, vm, "vals @ vals 1 + @")
	if got := dataInts(vm); len(got) != 2 || got[0] != 11 || got[1] != 22 {
		t.Errorf("array cells = %v, want [11 22]", got)
	}
}

func TestStringLiteral(t *testing.T) {
	vm := newTestVM(t)
	runLine(t, vm, `: hello ." hi there" cr ;`)
	runLine(t, vm, "hello")
	if got := vm.Output.AsStr(); got != "hi there\nok.\n" {
		t.Errorf("output = %q, want %q", got, "hi there\nok.\n")
	}
}

func TestInterpretedStringLiteral(t *testing.T) {
	vm := newTestVM(t)
	runLine(t, vm, `." direct"`)
	if !strings.HasPrefix(vm.Output.AsStr(), "direct") {
		t.Errorf("output = %q, want direct prefix", vm.Output.AsStr())
	}
}

func TestComment(t *testing.T) {
	vm := newTestVM(t)
	runLine(t, vm, "1 ( this is ignored ) 2")
	if got := dataInts(vm); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("stack = %v, want [1 2]", got)
	}
}

func TestTickAndExecute(t *testing.T) {
	vm := newTestVM(t)
	runLine(t, vm, ": greet 42 ;")
	runLine(t, vm, "' greet execute")
	if got := dataInts(vm); len(got) != 1 || got[0] != 42 {
		t.Errorf("execute result = %v, want [42]", got)
	}
}

func TestRuntimeBuiltin(t *testing.T) {
	vm := newTestVM(t)
	vm.AddBuiltin("double", func(vm *VM[nohost]) error {
		v, err := vm.DataStack.Pop()
		if err != nil {
			return err
		}
		return vm.DataStack.Push(DataWord[nohost](v.Data() * 2))
	})
	runLine(t, vm, "21 double")
	if got := dataInts(vm); len(got) != 1 || got[0] != 42 {
		t.Errorf("runtime builtin = %v, want [42]", got)
	}
	// Runtime builtins compile into definitions too.
	runLine(t, vm, ": quad double double ; 5 quad")
	got := dataInts(vm)
	if got[len(got)-1] != 20 {
		t.Errorf("compiled runtime builtin = %v, want trailing 20", got)
	}
}

func TestErrorClearsAllStacks(t *testing.T) {
	vm := newTestVM(t)
	if err := vm.Input.Fill("1 2 3 definitely-not-a-word"); err != nil {
		t.Fatal(err)
	}
	err := vm.ProcessLine()
	if err != ErrLookupFailed {
		t.Errorf("err = %v, want ErrLookupFailed", err)
	}
	if vm.DataStack.Depth() != 0 || vm.ReturnStack.Depth() != 0 || vm.CallStack.Depth() != 0 {
		t.Errorf("stacks not cleared: data=%d return=%d call=%d",
			vm.DataStack.Depth(), vm.ReturnStack.Depth(), vm.CallStack.Depth())
	}
}

func TestCompileOnlyWordsOutsideDefinition(t *testing.T) {
	vm := newTestVM(t)
	for _, w := range []string{";", "if", "else", "then", "do", "loop"} {
		if err := failLine(t, vm, w); err != ErrInterpretingCompileOnlyWord {
			t.Errorf("%q err = %v, want ErrInterpretingCompileOnlyWord", w, err)
		}
	}
}

func TestCompileErrors(t *testing.T) {
	vm := newTestVM(t)
	cases := []struct {
		line string
		want error
	}{
		{": broken if 1 ;", ErrIfWithoutThen},
		{": broken 1 if 2 else 3 ;", ErrIfElseWithoutThen},
		{": broken do 1 ;", ErrDoWithoutLoop},
		{": broken nosuchword ;", ErrLookupFailed},
	}
	for _, c := range cases {
		if err := failLine(t, vm, c.line); err != c.want {
			t.Errorf("%q err = %v, want %v", c.line, err, c.want)
		}
	}
}

func TestCompileFailureRewindsDictionary(t *testing.T) {
	vm := newTestVM(t)
	runLine(t, vm, ": keep 1 ;")
	before := vm.Dict.Here()
	entries := len(vm.Dict.entries)

	failLine(t, vm, ": broken 1 2 nosuchword ;")

	if vm.Dict.Here() != before {
		t.Errorf("Here = %d after failed compile, want %d", vm.Dict.Here(), before)
	}
	if len(vm.Dict.entries) != entries {
		t.Errorf("entries = %d after failed compile, want %d", len(vm.Dict.entries), entries)
	}
	// And the dictionary still works.
	runLine(t, vm, "keep")
	if got := dataInts(vm); len(got) != 1 || got[0] != 1 {
		t.Errorf("keep = %v, want [1]", got)
	}
}

func TestForkSharesParentWords(t *testing.T) {
	vm := newTestVM(t)
	runLine(t, vm, ": greet 42 ;")

	greet := vm.findWord("greet")
	if greet == nil {
		t.Fatal("greet not found before fork")
	}

	child := vm.Fork(DefaultParams(), nohost{})

	// Seed the child with greet's execution token, the way spawn does.
	if err := child.DataStack.Push(EntryWord(greet)); err != nil {
		t.Fatal(err)
	}
	if err := child.Input.Fill("execute"); err != nil {
		t.Fatal(err)
	}
	if err := child.ProcessLine(); err != nil {
		t.Fatalf("child ProcessLine: %v", err)
	}
	got := child.DataStack.Slice()
	if len(got) != 1 || got[0].Data() != 42 {
		t.Errorf("child stack = %v, want [42]", got)
	}

	// The parent still resolves greet through the frozen chain.
	vm.DataStack.Clear()
	runLine(t, vm, "greet")
	if got := dataInts(vm); len(got) != 1 || got[0] != 42 {
		t.Errorf("parent greet = %v, want [42]", got)
	}

	// And the child resolves it by name too.
	child.DataStack.Clear()
	if err := child.Input.Fill("greet"); err != nil {
		t.Fatal(err)
	}
	if err := child.ProcessLine(); err != nil {
		t.Fatalf("child greet: %v", err)
	}
	if got := child.DataStack.Slice(); len(got) != 1 || got[0].Data() != 42 {
		t.Errorf("child greet = %v, want [42]", got)
	}
}

func TestForkCopiesMutableParentEntries(t *testing.T) {
	vm := newTestVM(t)
	runLine(t, vm, "variable shared")
	runLine(t, vm, "5 shared !")

	child := vm.Fork(DefaultParams(), nohost{})

	// The child writes its own copy, not the frozen parent cell.
	for _, line := range []string{"9 shared !", "shared @"} {
		if err := child.Input.Fill(line); err != nil {
			t.Fatal(err)
		}
		if err := child.ProcessLine(); err != nil {
			t.Fatalf("child %q: %v", line, err)
		}
	}
	if got := child.DataStack.Slice(); len(got) != 1 || got[0].Data() != 9 {
		t.Errorf("child shared = %v, want [9]", got)
	}

	// The parent's own copy still reads 5.
	vm.DataStack.Clear()
	runLine(t, vm, "shared @")
	if got := dataInts(vm); len(got) != 1 || got[0] != 5 {
		t.Errorf("parent shared = %v, want [5]", got)
	}
}

func TestComparisonAndLogic(t *testing.T) {
	vm := newTestVM(t)
	runLine(t, vm, "3 3 = 2 3 < 3 2 > 0 0=")
	got := dataInts(vm)
	want := []int32{-1, -1, -1, -1}
	if len(got) != len(want) {
		t.Fatalf("stack = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("cell %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestEmitAndSpace(t *testing.T) {
	vm := newTestVM(t)
	runLine(t, vm, "72 emit 105 emit space 33 emit")
	if got := vm.Output.AsStr(); got != "Hi !ok.\n" {
		t.Errorf("output = %q, want %q", got, "Hi !ok.\n")
	}
}

func TestDivisionByZeroFails(t *testing.T) {
	vm := newTestVM(t)
	if err := failLine(t, vm, "1 0 /"); err != ErrWordInvalid {
		t.Errorf("err = %v, want ErrWordInvalid", err)
	}
}

func TestInputTooLong(t *testing.T) {
	vm := New(Params{InputBufSize: 8}, NewDict[nohost](256), nohost{}, Builtins[nohost]())
	if err := vm.Input.Fill("far too long for the buffer"); err != ErrInputTooLong {
		t.Errorf("Fill err = %v, want ErrInputTooLong", err)
	}
}
