// Package registry implements the kernel's typed service table and the
// request-reply envelope plumbing between clients and driver servers.
//
// A service is identified by its registered driver type: a struct carrying
// a stable 128-bit UUID plus request and response types. Identity is the
// pair (UUID, Go type), so two drivers reusing a UUID with different
// message types do not alias. Registration hands the table a producer
// into the server's command channel; discovery returns cloned handles to
// that producer.
package registry

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/ehrlich-b/kestrel/comms/kchannel"
	"github.com/ehrlich-b/kestrel/comms/oneshot"
)

var (
	// ErrAlreadyRegistered is returned when the (UUID, type) pair exists.
	ErrAlreadyRegistered = errors.New("registry: already registered")
	// ErrRegistryFull is returned when the fixed entry table is full.
	ErrRegistryFull = errors.New("registry: full")
	// ErrNotFound is returned when no matching service is registered.
	ErrNotFound = errors.New("registry: service not found")
	// ErrWrongKind is returned when Get reaches a kernel-only service.
	ErrWrongKind = errors.New("registry: service is kernel-only")
)

// ServiceKind says who may discover a service.
type ServiceKind int

const (
	// KernelOnly services are reachable via GetKonly alone.
	KernelOnly ServiceKind = iota
	// UserShareable services are also reachable via Get.
	UserShareable
)

// Driver ties a service definition type to its request/response types.
// Implementations are zero-size marker structs with a UUID method.
type Driver[Req, Resp any] interface {
	UUID() uuid.UUID
}

// entry is one registered service.
type entry struct {
	id       uuid.UUID
	typ      reflect.Type
	producer any
	kind     ServiceKind
}

// Registry is the fixed-size service table.
type Registry struct {
	max     int
	entries []entry
}

// New creates a registry holding up to maxDrivers services.
func New(maxDrivers int) *Registry {
	return &Registry{max: maxDrivers}
}

// Len reports the number of registered services.
func (r *Registry) Len() int { return len(r.entries) }

func (r *Registry) find(id uuid.UUID, typ reflect.Type) *entry {
	for i := range r.entries {
		if r.entries[i].id == id && r.entries[i].typ == typ {
			return &r.entries[i]
		}
	}
	return nil
}

// Register inserts a service's producer handle keyed by its UUID and type
// identity.
func Register[D Driver[Req, Resp], Req, Resp any](r *Registry, prod *kchannel.KChannel[Message[Req, Resp]], kind ServiceKind) error {
	var d D
	id := d.UUID()
	typ := reflect.TypeOf(d)
	if r.find(id, typ) != nil {
		return ErrAlreadyRegistered
	}
	if len(r.entries) >= r.max {
		return ErrRegistryFull
	}
	r.entries = append(r.entries, entry{id: id, typ: typ, producer: prod, kind: kind})
	return nil
}

// Get returns a handle to a user-shareable service.
func Get[D Driver[Req, Resp], Req, Resp any](r *Registry) (*KernelHandle[Req, Resp], error) {
	var d D
	e := r.find(d.UUID(), reflect.TypeOf(d))
	if e == nil {
		return nil, ErrNotFound
	}
	if e.kind != UserShareable {
		return nil, ErrWrongKind
	}
	return &KernelHandle[Req, Resp]{prod: e.producer.(*kchannel.KChannel[Message[Req, Resp]])}, nil
}

// GetKonly returns a handle to any service, kernel-only included.
func GetKonly[D Driver[Req, Resp], Req, Resp any](r *Registry) (*KernelHandle[Req, Resp], error) {
	var d D
	e := r.find(d.UUID(), reflect.TypeOf(d))
	if e == nil {
		return nil, ErrNotFound
	}
	return &KernelHandle[Req, Resp]{prod: e.producer.(*kchannel.KChannel[Message[Req, Resp]])}, nil
}

// KernelHandle is a client's producer into one service's command channel.
type KernelHandle[Req, Resp any] struct {
	prod *kchannel.KChannel[Message[Req, Resp]]
}

// Send enqueues a message, waiting for channel space.
func (h *KernelHandle[Req, Resp]) Send(ctx context.Context, msg Message[Req, Resp]) error {
	return h.prod.Enqueue(ctx, msg)
}

// RequestOneshot sends req with a oneshot reply address and awaits the
// sealed reply. The same Reusable may be passed on every call.
func (h *KernelHandle[Req, Resp]) RequestOneshot(ctx context.Context, req Req, reply *oneshot.Reusable[Reply[Resp]]) (Reply[Resp], error) {
	sender, err := reply.Sender()
	if err != nil {
		return Reply[Resp]{}, err
	}
	msg := Message[Req, Resp]{Body: req, ReplyTo: OneshotReply[Resp]{Sender: sender}}
	if err := h.prod.Enqueue(ctx, msg); err != nil {
		return Reply[Resp]{}, err
	}
	return reply.Receive(ctx)
}

// Kernel is the slice of the kernel facade the discovery helpers need.
type Kernel interface {
	Sleep(ctx context.Context, d time.Duration) error
	WithRegistry(ctx context.Context, fn func(r *Registry) error) error
}

// RetryInterval is how long discovery waits between registry probes.
const RetryInterval = 10 * time.Millisecond

// FromRegistry loops until the service is registered, sleeping between
// attempts. Intended for clients racing server startup.
func FromRegistry[D Driver[Req, Resp], Req, Resp any](ctx context.Context, k Kernel) (*KernelHandle[Req, Resp], error) {
	for {
		h, err := FromRegistryNoRetry[D, Req, Resp](ctx, k)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if serr := k.Sleep(ctx, RetryInterval); serr != nil {
			return nil, serr
		}
	}
}

// FromRegistryNoRetry performs a single discovery attempt.
func FromRegistryNoRetry[D Driver[Req, Resp], Req, Resp any](ctx context.Context, k Kernel) (*KernelHandle[Req, Resp], error) {
	var h *KernelHandle[Req, Resp]
	err := k.WithRegistry(ctx, func(r *Registry) error {
		var gerr error
		h, gerr = GetKonly[D, Req, Resp](r)
		return gerr
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}
