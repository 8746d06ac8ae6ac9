package forth

import (
	"context"
	"testing"
)

type recordingDispatcher struct {
	calls []int
	names []string
}

func (d *recordingDispatcher) Builtins() []AsyncBuiltinDef {
	return []AsyncBuiltinDef{
		{Name: "async::one"},
		{Name: "async::push"},
	}
}

func (d *recordingDispatcher) DispatchAsync(ctx context.Context, idx int, name string, vm *VM[nohost]) error {
	d.calls = append(d.calls, idx)
	d.names = append(d.names, name)
	if name == "async::push" {
		return vm.DataStack.Push(DataWord[nohost](77))
	}
	return nil
}

func TestAsyncBuiltinDispatchByIndex(t *testing.T) {
	disp := &recordingDispatcher{}
	vm := NewAsync(DefaultParams(), NewDict[nohost](1024), nohost{}, Builtins[nohost](), disp)

	if err := vm.Input.Fill("async::push async::one"); err != nil {
		t.Fatal(err)
	}
	if err := vm.ProcessLine(context.Background()); err != nil {
		t.Fatalf("ProcessLine: %v", err)
	}

	if len(disp.calls) != 2 || disp.calls[0] != 1 || disp.calls[1] != 0 {
		t.Errorf("dispatch indices = %v, want [1 0]", disp.calls)
	}
	got := vm.DataStack.Slice()
	if len(got) != 1 || got[0].Data() != 77 {
		t.Errorf("stack = %v, want [77]", got)
	}
}

func TestAsyncBuiltinCompilesIntoWords(t *testing.T) {
	disp := &recordingDispatcher{}
	vm := NewAsync(DefaultParams(), NewDict[nohost](1024), nohost{}, Builtins[nohost](), disp)

	for _, line := range []string{": poke async::push ;", "poke poke"} {
		if err := vm.Input.Fill(line); err != nil {
			t.Fatal(err)
		}
		if err := vm.ProcessLine(context.Background()); err != nil {
			t.Fatalf("ProcessLine(%q): %v", line, err)
		}
	}
	if len(disp.calls) != 2 {
		t.Errorf("async builtin ran %d times, want 2", len(disp.calls))
	}
}

func TestAsyncBuiltinInSyncStepPanics(t *testing.T) {
	vm := New(DefaultParams(), NewDict[nohost](1024), nohost{}, Builtins[nohost]())
	vm.SetAsyncBuiltins([]AsyncBuiltinDef{{Name: "async::oops"}})

	if err := vm.Input.Fill("async::oops"); err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Error("sync execution of an async builtin must panic")
		}
	}()
	_ = vm.ProcessLine()
}
