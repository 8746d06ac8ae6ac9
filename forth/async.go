package forth

import "context"

// AsyncDispatcher supplies and executes a VM's async builtins. Builtins
// are indexed by their position in the table returned from Builtins, so
// dispatch is a table jump rather than a name match.
type AsyncDispatcher[H any] interface {
	Builtins() []AsyncBuiltinDef
	DispatchAsync(ctx context.Context, idx int, name string, vm *VM[H]) error
}

// AsyncVM extends a VM with async builtins. Only the async execution
// step may dispatch entries of KindAsyncBuiltin; the embedded VM's
// synchronous ProcessLine treats reaching one as a construction bug.
type AsyncVM[H any] struct {
	*VM[H]
	disp AsyncDispatcher[H]
}

// NewAsync creates an async VM.
func NewAsync[H any](params Params, dict *Dict[H], host H, builtins []Builtin[H], disp AsyncDispatcher[H]) *AsyncVM[H] {
	vm := New(params, dict, host, builtins)
	vm.SetAsyncBuiltins(disp.Builtins())
	return &AsyncVM[H]{VM: vm, disp: disp}
}

// AsyncFromVM wraps an existing VM (typically a forked child) with a
// dispatcher. The VM must already carry the dispatcher's builtin table.
func AsyncFromVM[H any](vm *VM[H], disp AsyncDispatcher[H]) *AsyncVM[H] {
	return &AsyncVM[H]{VM: vm, disp: disp}
}

// ProcessLine is the async variant of VM.ProcessLine: identical
// semantics, but execution steps may suspend in async builtins.
func (a *AsyncVM[H]) ProcessLine(ctx context.Context) error {
	return a.processLineWith(func() error {
		for {
			done, err := a.asyncStep(ctx)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	})
}

func (a *AsyncVM[H]) asyncStep(ctx context.Context) (bool, error) {
	top, err := a.CallStack.Peek()
	if err != nil {
		return true, nil
	}

	var res error
	switch top.eh.Kind {
	case KindStaticBuiltin, KindRuntimeBuiltin, KindDictionary:
		res = top.eh.Func(a.VM)
	case KindAsyncBuiltin:
		res = a.disp.DispatchAsync(ctx, top.eh.asyncIdx, top.eh.Name, a.VM)
	}

	switch res {
	case nil:
		_, _ = a.CallStack.Pop()
	case ErrPendingCallAgain:
	default:
		return false, res
	}
	return false, nil
}
