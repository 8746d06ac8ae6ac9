// Package spawnulator is the service that spawns Forth VMs on behalf of
// other Forth VMs. A running VM cannot hand its own child to the
// scheduler directly: the parent is mid-execution against the dictionary
// the child shares, so the spawn has to happen from a task that holds
// neither. The spawnulator's entire job is to dequeue a built-but-
// unstarted VM, spawn its run loop, and ack.
package spawnulator

import (
	"context"

	"github.com/google/uuid"

	kestrel "github.com/ehrlich-b/kestrel"
	"github.com/ehrlich-b/kestrel/comms/kchannel"
	"github.com/ehrlich-b/kestrel/comms/oneshot"
	"github.com/ehrlich-b/kestrel/internal/constants"
	"github.com/ehrlich-b/kestrel/registry"
)

// Runnable is a completed but unstarted task body. Using an interface
// here keeps this package from depending on the Forth packages.
type Runnable interface {
	Run(ctx context.Context)
}

// Service is the registered driver type.
type Service struct{}

// UUID implements registry.Driver.
func (Service) UUID() uuid.UUID { return registry.SpawnulatorUUID }

// Request carries one unstarted VM.
type Request struct {
	VM Runnable
}

// Response is the spawn acknowledgement.
type Response struct{}

// Settings configures the spawnulator server.
type Settings struct {
	// QueueDepth bounds pending spawn requests (default: 8).
	QueueDepth int
}

// Register starts the spawnulator server.
func Register(ctx context.Context, k *kestrel.Kernel, settings Settings) error {
	depth := settings.QueueDepth
	if depth == 0 {
		depth = constants.DefaultServiceQueueDepth
	}
	cmd := kchannel.New[registry.Message[Request, Response]](depth, nil)

	k.Spawn(ctx, func(ctx context.Context) {
		logger := k.Logger()
		for {
			msg, err := cmd.Dequeue(ctx)
			if err != nil {
				return
			}
			vm := msg.Body.VM
			k.Spawn(ctx, vm.Run)
			logger.Debug("spawnulator: spawned child VM")
			if rerr := msg.ReplyWith(ctx, Response{}, nil); rerr != nil {
				logger.Warn("spawnulator ack dropped", "err", rerr)
			}
		}
	})

	return k.WithRegistry(ctx, func(r *registry.Registry) error {
		return registry.Register[Service](r, cmd, registry.KernelOnly)
	})
}

// Client enqueues spawn requests.
type Client struct {
	hdl   *registry.KernelHandle[Request, Response]
	reply *oneshot.Reusable[registry.Reply[Response]]
}

// FromRegistry obtains a client, retrying until the server is registered.
func FromRegistry(ctx context.Context, k *kestrel.Kernel) (*Client, error) {
	hdl, err := registry.FromRegistry[Service, Request, Response](ctx, k)
	if err != nil {
		return nil, err
	}
	return &Client{hdl: hdl, reply: oneshot.New[registry.Reply[Response]](nil)}, nil
}

// Spawn hands vm to the spawnulator and awaits the ack.
func (c *Client) Spawn(ctx context.Context, vm Runnable) error {
	rep, err := c.hdl.RequestOneshot(ctx, Request{VM: vm}, c.reply)
	if err != nil {
		return err
	}
	return rep.Err
}
