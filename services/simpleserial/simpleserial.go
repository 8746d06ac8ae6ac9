// Package simpleserial is the driver contract for the system's one
// physical serial link, plus a host-side server that pumps an
// io.ReadWriteCloser (TTY, TCP socket, or mock) into kernel byte rings.
//
// The port is handed out exactly once: the serial mux claims it at boot
// and every later GetPort fails with ErrAlreadyAssignedPort.
package simpleserial

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"

	kestrel "github.com/ehrlich-b/kestrel"
	"github.com/ehrlich-b/kestrel/comms/bbq"
	"github.com/ehrlich-b/kestrel/comms/kchannel"
	"github.com/ehrlich-b/kestrel/comms/oneshot"
	"github.com/ehrlich-b/kestrel/internal/constants"
	"github.com/ehrlich-b/kestrel/internal/logging"
	"github.com/ehrlich-b/kestrel/registry"
)

// ErrAlreadyAssignedPort is returned on every GetPort after the first.
var ErrAlreadyAssignedPort = errors.New("simpleserial: port already assigned")

// Service is the registered driver type.
type Service struct{}

// UUID implements registry.Driver.
func (Service) UUID() uuid.UUID { return registry.SimpleSerialUUID }

// Request asks for the link. There is only one operation.
type Request struct{}

// Response carries the link's bidirectional handle.
type Response struct {
	Port *bbq.BidiHandle
}

// Client discovers and calls the service.
type Client struct {
	hdl   *registry.KernelHandle[Request, Response]
	reply *oneshot.Reusable[registry.Reply[Response]]
}

// FromRegistry obtains a client, retrying until the driver is registered.
func FromRegistry(ctx context.Context, k *kestrel.Kernel) (*Client, error) {
	hdl, err := registry.FromRegistry[Service, Request, Response](ctx, k)
	if err != nil {
		return nil, err
	}
	return &Client{hdl: hdl, reply: oneshot.New[registry.Reply[Response]](nil)}, nil
}

// FromRegistryNoRetry performs a single discovery attempt.
func FromRegistryNoRetry(ctx context.Context, k *kestrel.Kernel) (*Client, error) {
	hdl, err := registry.FromRegistryNoRetry[Service, Request, Response](ctx, k)
	if err != nil {
		return nil, err
	}
	return &Client{hdl: hdl, reply: oneshot.New[registry.Reply[Response]](nil)}, nil
}

// GetPort claims the link. Succeeds at most once per boot.
func (c *Client) GetPort(ctx context.Context) (*bbq.BidiHandle, error) {
	rep, err := c.hdl.RequestOneshot(ctx, Request{}, c.reply)
	if err != nil {
		return nil, err
	}
	if rep.Err != nil {
		return nil, rep.Err
	}
	return rep.Body.Port, nil
}

// Settings configures the host link driver.
type Settings struct {
	// IncomingCapacity sizes the link->kernel ring (default: 1024).
	IncomingCapacity int
	// OutgoingCapacity sizes the kernel->link ring (default: 1024).
	OutgoingCapacity int
}

func (s *Settings) withDefaults() {
	if s.IncomingCapacity == 0 {
		s.IncomingCapacity = constants.DefaultPortCapacity
	}
	if s.OutgoingCapacity == 0 {
		s.OutgoingCapacity = constants.DefaultPortCapacity
	}
}

// Register starts the host serial server over link and registers the
// service. The driver owns one end of a crossed ring pair; the claimed
// port is the other end.
func Register(ctx context.Context, k *kestrel.Kernel, link io.ReadWriteCloser, settings Settings) error {
	settings.withDefaults()
	logger := k.Logger()

	driverEnd, portEnd := bbq.NewBidi(settings.IncomingCapacity, settings.OutgoingCapacity, nil)

	cmd := kchannel.New[registry.Message[Request, Response]](constants.DefaultServiceQueueDepth, nil)

	// Pump: wire -> ring.
	k.Spawn(ctx, func(ctx context.Context) {
		buf := make([]byte, 256)
		for {
			n, err := link.Read(buf)
			if err != nil {
				logger.Debug("serial link closed", "err", err)
				driverEnd.Producer().Close()
				return
			}
			data := buf[:n]
			for len(data) > 0 {
				g, gerr := driverEnd.Producer().SendGrantMax(ctx, len(data))
				if gerr != nil {
					return
				}
				n := copy(g.Buf, data)
				g.Commit(n)
				data = data[n:]
			}
		}
	})

	// Pump: ring -> wire.
	k.Spawn(ctx, func(ctx context.Context) {
		for {
			g, err := driverEnd.Consumer().ReadGrant(ctx)
			if err != nil {
				return
			}
			if _, werr := link.Write(g.Buf); werr != nil {
				logger.Warn("serial link write failed", "err", werr)
				g.Release(len(g.Buf))
				return
			}
			g.Release(len(g.Buf))
		}
	})

	// Command loop: hand the port out once.
	k.Spawn(ctx, func(ctx context.Context) {
		server := &server{port: portEnd, logger: logger}
		server.run(ctx, cmd)
	})

	return k.WithRegistry(ctx, func(r *registry.Registry) error {
		return registry.Register[Service](r, cmd, registry.KernelOnly)
	})
}

type server struct {
	port   *bbq.BidiHandle
	taken  bool
	logger *logging.Logger
}

func (s *server) run(ctx context.Context, cmd *kchannel.KChannel[registry.Message[Request, Response]]) {
	for {
		msg, err := cmd.Dequeue(ctx)
		if err != nil {
			return
		}
		var rerr error
		if s.taken {
			rerr = msg.ReplyWith(ctx, Response{}, ErrAlreadyAssignedPort)
		} else {
			s.taken = true
			rerr = msg.ReplyWith(ctx, Response{Port: s.port}, nil)
		}
		if rerr != nil {
			s.logger.Warn("simpleserial reply dropped", "err", rerr)
		}
	}
}
