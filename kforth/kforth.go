// Package kforth binds the Forth VM into the kernel: per-task stdio over
// byte rings, async builtins for sermux, sleeping, and spawning, and the
// host context every builtin reaches through.
//
// Spawning deserves a note: a running VM cannot enqueue its own child
// directly with the scheduler, because the parent is mid-execution
// against the dictionary chain the child shares. The spawn builtin
// therefore builds the child completely and hands it to the spawnulator
// service, which performs the actual spawn and acks.
package kforth

import (
	"context"
	"sync/atomic"
	"time"

	kestrel "github.com/ehrlich-b/kestrel"
	"github.com/ehrlich-b/kestrel/comms/bbq"
	"github.com/ehrlich-b/kestrel/forth"
	"github.com/ehrlich-b/kestrel/internal/constants"
	"github.com/ehrlich-b/kestrel/services/spawnulator"
)

// Params sizes one Forth task.
type Params struct {
	StackSize            int           `toml:"stack_size"`
	InputBufSize         int           `toml:"input_buf_size"`
	OutputBufSize        int           `toml:"output_buf_size"`
	DictionarySize       int           `toml:"dictionary_size"`
	StdinCapacity        int           `toml:"stdin_capacity"`
	StdoutCapacity       int           `toml:"stdout_capacity"`
	BagOfHoldingCapacity int           `toml:"bag_of_holding_capacity"`
	SpawnulatorTimeout   time.Duration `toml:"spawnulator_timeout"`
}

// DefaultParams returns the standard task sizing.
func DefaultParams() Params {
	return Params{
		StackSize:            256,
		InputBufSize:         256,
		OutputBufSize:        256,
		DictionarySize:       4096,
		StdinCapacity:        1024,
		StdoutCapacity:       1024,
		BagOfHoldingCapacity: 16,
		SpawnulatorTimeout:   constants.DefaultSpawnTimeout,
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
	if p.DictionarySize == 0 {
		p.DictionarySize = d.DictionarySize
	}
	if p.StdinCapacity == 0 {
		p.StdinCapacity = d.StdinCapacity
	}
	if p.StdoutCapacity == 0 {
		p.StdoutCapacity = d.StdoutCapacity
	}
	if p.BagOfHoldingCapacity == 0 {
		p.BagOfHoldingCapacity = d.BagOfHoldingCapacity
	}
	if p.SpawnulatorTimeout == 0 {
		p.SpawnulatorTimeout = d.SpawnulatorTimeout
	}
}

func (p Params) vmParams() forth.Params {
	return forth.Params{
		StackSize:     p.StackSize,
		InputBufSize:  p.InputBufSize,
		OutputBufSize: p.OutputBufSize,
		DictSize:      p.DictionarySize,
	}
}

var nextTaskID atomic.Int32

// Context is the host context of every kernel-bound Forth VM.
type Context struct {
	Kernel *kestrel.Kernel
	Boh    *BagOfHolding

	params Params
	id     int32

	spawnulator *spawnulator.Client
}

// ID reports the Forth task id.
func (c *Context) ID() int32 { return c.id }

func newContext(ctx context.Context, k *kestrel.Kernel, params Params) (*Context, error) {
	boh, err := NewBagOfHolding(ctx, k.Heap(), params.BagOfHoldingCapacity)
	if err != nil {
		return nil, err
	}
	return &Context{
		Kernel: k,
		Boh:    boh,
		params: params,
		id:     nextTaskID.Add(1),
	}, nil
}

// spawnClient resolves the spawnulator lazily, bounded by the configured
// timeout so a missing spawnulator is an error, not a hang.
func (c *Context) spawnClient(ctx context.Context) (*spawnulator.Client, error) {
	if c.spawnulator != nil {
		return c.spawnulator, nil
	}
	client, err := kestrel.Timeout(ctx, c.Kernel, c.params.SpawnulatorTimeout,
		func(ctx context.Context) (*spawnulator.Client, error) {
			return spawnulator.FromRegistry(ctx, c.Kernel)
		})
	if err != nil {
		return nil, err
	}
	c.spawnulator = client
	return client, nil
}

// Forth is one kernel Forth task: an async VM wired to stdio rings.
type Forth struct {
	vm     *forth.AsyncVM[*Context]
	stdio  *bbq.BidiHandle
	params Params
}

// New creates a Forth task plus the far end of its stdio.
func New(ctx context.Context, k *kestrel.Kernel, params Params) (*Forth, *bbq.BidiHandle, error) {
	params.withDefaults()
	stdio, streams := bbq.NewBidi(params.StdoutCapacity, params.StdinCapacity, nil)
	f, err := NewWithStdio(ctx, k, params, stdio)
	if err != nil {
		return nil, nil, err
	}
	return f, streams, nil
}

// NewWithStdio creates a Forth task over an existing stdio handle.
func NewWithStdio(ctx context.Context, k *kestrel.Kernel, params Params, stdio *bbq.BidiHandle) (*Forth, error) {
	params.withDefaults()
	hostCtx, err := newContext(ctx, k, params)
	if err != nil {
		return nil, err
	}
	dict := forth.NewDict[*Context](params.DictionarySize)
	vm := forth.NewAsync(params.vmParams(), dict, hostCtx, forth.Builtins[*Context](), dispatcher{})
	return &Forth{vm: vm, stdio: stdio, params: params}, nil
}

// VM exposes the underlying machine for tests and tooling.
func (f *Forth) VM() *forth.AsyncVM[*Context] { return f.vm }

// Run is the task body: process a line, flush output (or the error
// banner), then block reading the next stdin chunk.
func (f *Forth) Run(ctx context.Context) {
	k := f.vm.Host.Kernel
	logger := k.Logger()
	logger.Info("forth VM running", "id", f.vm.Host.id)

	for {
		f.vm.Output.Clear()

		err := f.vm.ProcessLine(ctx)
		k.Metrics().RecordForthLine(err != nil)
		if err == nil {
			out := f.vm.Output.Bytes()
			if werr := f.writeAll(ctx, out); werr != nil {
				return
			}
		} else {
			if ctx.Err() != nil {
				return
			}
			logger.Error("forth line failed", "id", f.vm.Host.id, "err", err)
			if werr := f.writeAll(ctx, []byte("ERROR.\n")); werr != nil {
				return
			}
			f.vm.Input.Clear()
		}

		// Block for the next chunk of stdin.
		g, rerr := f.stdio.Consumer().ReadGrant(ctx)
		if rerr != nil {
			return
		}
		line := string(g.Buf)
		g.Release(len(g.Buf))
		if ferr := f.vm.Input.Fill(line); ferr != nil {
			logger.Warn("forth input dropped", "id", f.vm.Host.id, "err", ferr)
			f.vm.Input.Clear()
		}
	}
}

func (f *Forth) writeAll(ctx context.Context, data []byte) error {
	for len(data) > 0 {
		g, err := f.stdio.Producer().SendGrantMax(ctx, len(data))
		if err != nil {
			return err
		}
		n := copy(g.Buf, data)
		g.Commit(n)
		data = data[n:]
	}
	return nil
}
