package kforth

import (
	"context"
	"time"

	kestrel "github.com/ehrlich-b/kestrel"
	"github.com/ehrlich-b/kestrel/comms/bbq"
	"github.com/ehrlich-b/kestrel/forth"
	"github.com/ehrlich-b/kestrel/services/serialmux"
)

// dispatcher is the async builtin table for kernel-bound VMs. Dispatch is
// by table index, assigned once at construction.
type dispatcher struct{}

const (
	abSermuxOpenPort = iota
	abSermuxWriteOutbuf
	abSpawn
	abSleepUs
	abSleepMs
	abSleepS
)

// Builtins implements forth.AsyncDispatcher.
func (dispatcher) Builtins() []forth.AsyncBuiltinDef {
	return []forth.AsyncBuiltinDef{
		{Name: "sermux::open_port"},
		{Name: "sermux::write_outbuf"},
		{Name: "spawn"},
		// sleep for a number of microseconds / milliseconds / seconds
		{Name: "sleep::us"},
		{Name: "sleep::ms"},
		{Name: "sleep::s"},
	}
}

// DispatchAsync implements forth.AsyncDispatcher.
func (dispatcher) DispatchAsync(ctx context.Context, idx int, name string, vm *forth.VM[*Context]) error {
	switch idx {
	case abSermuxOpenPort:
		return sermuxOpenPort(ctx, vm)
	case abSermuxWriteOutbuf:
		return sermuxWriteOutbuf(ctx, vm)
	case abSpawn:
		return spawnForthTask(ctx, vm)
	case abSleepUs:
		return sleep(ctx, vm, time.Microsecond)
	case abSleepMs:
		return sleep(ctx, vm, time.Millisecond)
	case abSleepS:
		return sleep(ctx, vm, time.Second)
	default:
		vm.Host.Kernel.Logger().Warn("unimplemented async builtin", "name", name)
		return forth.ErrWordNotInDict
	}
}

func popInt(vm *forth.VM[*Context]) (int32, error) {
	w, err := vm.DataStack.Pop()
	if err != nil {
		return 0, err
	}
	if w.IsEntry() {
		return 0, forth.ErrWordInvalid
	}
	return w.Data(), nil
}

// sermuxOpenPort binds serialmux.Client.OpenPort.
//
// Call: PORT SZ sermux::open_port
// Return: BOH_TOKEN on stack
func sermuxOpenPort(ctx context.Context, vm *forth.VM[*Context]) error {
	sz, err := popInt(vm)
	if err != nil {
		return err
	}
	port, err := popInt(vm)
	if err != nil {
		return err
	}
	if sz < 0 || port < 0 || port > 0xFFFF {
		return forth.ErrWordInvalid
	}

	client, err := serialmux.FromRegistry(ctx, vm.Host.Kernel)
	if err != nil {
		return forth.ErrInternal
	}
	handle, err := client.OpenPort(ctx, uint16(port), int(sz))
	if err != nil {
		return forth.ErrInternal
	}

	token, ok := vm.Host.Boh.Register(handle)
	if !ok {
		return forth.ErrInternal
	}
	return vm.DataStack.Push(forth.DataWord[*Context](token))
}

// sermuxWriteOutbuf binds serialmux.PortHandle.Send, writing the current
// output buffer to the port.
//
// Call: BOH_TOKEN sermux::write_outbuf
// Return: no change
func sermuxWriteOutbuf(ctx context.Context, vm *forth.VM[*Context]) error {
	token, err := popInt(vm)
	if err != nil {
		return err
	}
	handle, ok := Get[*serialmux.PortHandle](vm.Host.Boh, token)
	if !ok {
		return forth.ErrInternal
	}
	if err := handle.Send(ctx, vm.Output.Bytes()); err != nil {
		return forth.ErrInternal
	}
	return nil
}

// spawnForthTask binds the spawnulator: fork this VM and hand the child
// over for spawning.
//
// Call: XT spawn
// Return: no change
func spawnForthTask(ctx context.Context, vm *forth.VM[*Context]) error {
	xt, err := vm.DataStack.Pop()
	if err != nil {
		return err
	}
	if !xt.IsEntry() {
		return forth.ErrWordInvalid
	}

	host := vm.Host
	k := host.Kernel
	params := host.params
	logger := k.Logger()
	logger.Debug("forking forth VM", "parent", host.id)

	childCtx, err := newContext(ctx, k, params)
	if err != nil {
		logger.Error("failed to build child context", "err", err)
		return forth.ErrInternal
	}

	childVM := vm.Fork(params.vmParams(), childCtx)

	// Start the child running the popped execution token.
	if err := childVM.DataStack.Push(xt); err != nil {
		return err
	}
	if err := childVM.Input.Fill("execute"); err != nil {
		logger.Error("failed to seed child input", "err", err)
		return forth.ErrInternal
	}

	stdio, _ := bbq.NewBidi(params.StdoutCapacity, params.StdinCapacity, nil)
	child := &Forth{
		vm:     forth.AsyncFromVM(childVM, dispatcher{}),
		stdio:  stdio,
		params: params,
	}

	client, err := host.spawnClient(ctx)
	if err != nil {
		logger.Error("spawnulator unavailable", "err", err)
		return forth.ErrInternal
	}

	_, err = kestrel.Timeout(ctx, k, params.SpawnulatorTimeout,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, client.Spawn(ctx, child)
		})
	if err != nil {
		logger.Error("failed to enqueue child task to spawn", "err", err)
		return forth.ErrInternal
	}
	logger.Info("forked forth VM", "parent", host.id, "child", childCtx.id)
	return nil
}

// sleep binds Kernel.Sleep.
//
// Call: DURATION {sleep::us, sleep::ms, sleep::s}
// Return: no change
func sleep(ctx context.Context, vm *forth.VM[*Context], unit time.Duration) error {
	n, err := popInt(vm)
	if err != nil {
		return err
	}
	if n < 0 {
		vm.Host.Kernel.Logger().Warn("cannot sleep for a negative duration", "n", n)
		return forth.ErrWordInvalid
	}
	return vm.Host.Kernel.Sleep(ctx, time.Duration(n)*unit)
}
