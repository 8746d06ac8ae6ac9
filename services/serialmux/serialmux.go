// Package serialmux multiplexes logical ports over the one physical
// serial link. Outgoing frames from every port handle fan in through a
// single MPSC producer so each COBS frame lands on the wire atomically;
// one demux task routes incoming frames to per-port SPSC rings.
package serialmux

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	kestrel "github.com/ehrlich-b/kestrel"
	"github.com/ehrlich-b/kestrel/comms/bbq"
	"github.com/ehrlich-b/kestrel/comms/kchannel"
	"github.com/ehrlich-b/kestrel/comms/oneshot"
	"github.com/ehrlich-b/kestrel/internal/constants"
	"github.com/ehrlich-b/kestrel/internal/heap"
	"github.com/ehrlich-b/kestrel/internal/logging"
	"github.com/ehrlich-b/kestrel/registry"
	"github.com/ehrlich-b/kestrel/sermuxproto"
	"github.com/ehrlich-b/kestrel/services/simpleserial"
)

var (
	// ErrDuplicateItem is returned when the port id is already open.
	ErrDuplicateItem = errors.New("serialmux: duplicate port")
	// ErrRegistryFull is returned when the port table is full.
	ErrRegistryFull = errors.New("serialmux: port table full")
	// ErrSerialPortNotFound means the simple-serial driver is missing.
	ErrSerialPortNotFound = errors.New("serialmux: serial port not found")
	// ErrNoSerialPortAvailable means the link was already claimed.
	ErrNoSerialPortAvailable = errors.New("serialmux: no serial port available")
)

// Service is the registered driver type.
type Service struct{}

// UUID implements registry.Driver.
func (Service) UUID() uuid.UUID { return registry.SerialMuxUUID }

// Request is the service's command set.
type Request struct {
	// RegisterPort opens port PortID with an incoming ring of Capacity
	// bytes. (The only operation, so the request is the struct itself.)
	PortID   uint16
	Capacity int
}

// Response answers a RegisterPort.
type Response struct {
	Handle *PortHandle
}

// PortHandle is the interface received after opening a virtual port.
type PortHandle struct {
	port     uint16
	cons     *bbq.Consumer
	outgoing *bbq.MpscProducer
	maxFrame int
	metrics  *kestrel.Metrics
}

// Port reports the handle's port id.
func (p *PortHandle) Port() uint16 { return p.port }

// Consumer is the ring of incoming payloads for this port.
func (p *PortHandle) Consumer() *bbq.Consumer { return p.cons }

// Send chunks, frames, and commits data onto the shared link. Each chunk
// is encoded directly into one exact write grant, which is what makes a
// frame atomic with respect to other ports.
func (p *PortHandle) Send(ctx context.Context, data []byte) error {
	chunkSize := p.maxFrame / 2
	if chunkSize < 1 {
		chunkSize = 1
	}
	for len(data) > 0 {
		n := len(data)
		if n > chunkSize {
			n = chunkSize
		}
		pc := sermuxproto.NewPortChunk(p.port, data[:n])
		needed := pc.BufferRequired()
		g, err := p.outgoing.SendGrantExact(ctx, needed)
		if err != nil {
			return err
		}
		enc, eerr := pc.EncodeTo(g.Buf)
		if eerr != nil {
			g.Commit(0)
			return eerr
		}
		g.Commit(len(enc))
		if p.metrics != nil {
			p.metrics.RecordFrameEncoded()
		}
		data = data[n:]
	}
	return nil
}

// Client opens ports on the mux.
type Client struct {
	hdl   *registry.KernelHandle[Request, Response]
	reply *oneshot.Reusable[registry.Reply[Response]]
}

// FromRegistry obtains a client, retrying until the mux is registered.
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

// OpenPort opens a virtual port with the given incoming ring capacity.
func (c *Client) OpenPort(ctx context.Context, portID uint16, capacity int) (*PortHandle, error) {
	rep, err := c.hdl.RequestOneshot(ctx, Request{PortID: portID, Capacity: capacity}, c.reply)
	if err != nil {
		return nil, err
	}
	if rep.Err != nil {
		return nil, rep.Err
	}
	return rep.Body.Handle, nil
}

// Open is the helper for callers that need exactly one port.
func Open(ctx context.Context, k *kestrel.Kernel, portID uint16, capacity int) (*PortHandle, error) {
	c, err := FromRegistry(ctx, k)
	if err != nil {
		return nil, err
	}
	return c.OpenPort(ctx, portID, capacity)
}

// Settings configures the mux server.
type Settings struct {
	MaxPorts uint16
	MaxFrame int
}

// DefaultSettings returns the default mux sizing.
func DefaultSettings() Settings {
	return Settings{
		MaxPorts: constants.DefaultSermuxMaxPorts,
		MaxFrame: constants.DefaultSermuxMaxFrame,
	}
}

func (s *Settings) withDefaults() {
	d := DefaultSettings()
	if s.MaxPorts == 0 {
		s.MaxPorts = d.MaxPorts
	}
	if s.MaxFrame == 0 {
		s.MaxFrame = d.MaxFrame
	}
}

type portInfo struct {
	port     uint16
	upstream *bbq.SpscProducer
}

// muxingInfo is the port table shared by the commander and demux tasks.
type muxingInfo struct {
	mu       sync.Mutex
	ports    *heap.FixedVec[portInfo]
	maxFrame int
	metrics  *kestrel.Metrics
}

func (m *muxingInfo) registerPort(portID uint16, capacity int, outgoing *bbq.MpscProducer) (*PortHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ports.IsFull() {
		return nil, ErrRegistryFull
	}
	for _, p := range m.ports.Slice() {
		if p.port == portID {
			return nil, ErrDuplicateItem
		}
	}
	if capacity <= 0 {
		capacity = constants.DefaultPortCapacity
	}
	prod, cons := bbq.NewSPSC(capacity, nil)
	if err := m.ports.Push(portInfo{port: portID, upstream: prod}); err != nil {
		return nil, ErrRegistryFull
	}
	return &PortHandle{
		port:     portID,
		cons:     cons,
		outgoing: outgoing,
		maxFrame: m.maxFrame,
		metrics:  m.metrics,
	}, nil
}

// route delivers one decoded payload to its port, without blocking.
func (m *muxingInfo) route(portID uint16, payload []byte, logger *logging.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.ports.Slice() {
		if p.port != portID {
			continue
		}
		g, err := p.upstream.TrySendGrantExact(len(payload))
		if err != nil {
			logger.Warn("sermux: discarded bytes, full buffer", "port", portID, "len", len(payload))
			if m.metrics != nil {
				m.metrics.RecordFrameDropped()
			}
			return
		}
		copy(g.Buf, payload)
		g.Commit(len(payload))
		if m.metrics != nil {
			m.metrics.RecordFrameDecoded()
		}
		return
	}
	logger.Warn("sermux: discarded bytes, no consumer", "port", portID, "len", len(payload))
	if m.metrics != nil {
		m.metrics.RecordFrameDropped()
	}
}

// Register starts the mux, retrying until the serial driver appears.
func Register(ctx context.Context, k *kestrel.Kernel, settings Settings) error {
	for {
		err := RegisterNoRetry(ctx, k, settings)
		if !errors.Is(err, ErrSerialPortNotFound) {
			return err
		}
		if serr := k.Sleep(ctx, constants.RegistryRetryInterval); serr != nil {
			return serr
		}
	}
}

// RegisterNoRetry starts the mux with a single serial-driver lookup.
func RegisterNoRetry(ctx context.Context, k *kestrel.Kernel, settings Settings) error {
	settings.withDefaults()
	logger := k.Logger()

	serial, err := simpleserial.FromRegistryNoRetry(ctx, k)
	if err != nil {
		return ErrSerialPortNotFound
	}
	port, err := serial.GetPort(ctx)
	if err != nil {
		return ErrNoSerialPortAvailable
	}

	sprod := port.Producer().IntoMpsc()
	scons := port.Consumer()

	ports, err := heap.AllocateFixedVec[portInfo](ctx, k.Heap(), int(settings.MaxPorts))
	if err != nil {
		return err
	}
	buf, err := heap.AllocateFixedVec[byte](ctx, k.Heap(), settings.MaxFrame)
	if err != nil {
		ports.Drop()
		return err
	}

	mux := &muxingInfo{ports: ports, maxFrame: settings.MaxFrame, metrics: k.Metrics()}
	cmd := kchannel.New[registry.Message[Request, Response]](int(settings.MaxPorts), nil)

	commander := &commanderTask{cmd: cmd, out: sprod, mux: mux, logger: logger}
	muxer := &incomingMuxerTask{buf: buf, incoming: scons, mux: mux, logger: logger}

	k.Spawn(ctx, commander.run)
	k.Spawn(ctx, muxer.run)

	return k.WithRegistry(ctx, func(r *registry.Registry) error {
		return registry.Register[Service](r, cmd, registry.KernelOnly)
	})
}

// commanderTask services RegisterPort requests.
type commanderTask struct {
	cmd    *kchannel.KChannel[registry.Message[Request, Response]]
	out    *bbq.MpscProducer
	mux    *muxingInfo
	logger *logging.Logger
}

func (t *commanderTask) run(ctx context.Context) {
	for {
		msg, err := t.cmd.Dequeue(ctx)
		if err != nil {
			return
		}
		handle, rerr := t.mux.registerPort(msg.Body.PortID, msg.Body.Capacity, t.out)
		if err := msg.ReplyWith(ctx, Response{Handle: handle}, rerr); err != nil {
			t.logger.Warn("sermux reply dropped", "port", msg.Body.PortID, "err", err)
		}
	}
}

// incomingMuxerTask accumulates link bytes into frames and routes them.
type incomingMuxerTask struct {
	buf      *heap.FixedVec[byte]
	incoming *bbq.Consumer
	mux      *muxingInfo
	logger   *logging.Logger
}

func (t *incomingMuxerTask) run(ctx context.Context) {
	for {
		g, err := t.incoming.ReadGrant(ctx)
		if err != nil {
			return
		}
		if !t.takeFromGrant(g) {
			continue
		}

		// The accumulator holds one delimited frame (zero stripped).
		frame := t.buf.Slice()
		if len(frame) == 0 {
			// Bare delimiter, e.g. a host resynchronizing the stream.
			continue
		}
		portID, payload, derr := sermuxproto.DecodeInPlace(frame)
		if derr != nil {
			t.logger.Warn("sermux: frame dropped", "err", derr, "len", len(frame))
			if t.mux.metrics != nil {
				t.mux.metrics.RecordFrameDropped()
			}
			t.buf.Clear()
			continue
		}
		t.mux.route(portID, payload, t.logger)
		t.buf.Clear()
	}
}

// takeFromGrant moves bytes from the grant into the accumulator up to and
// including the next frame delimiter. Returns true when a full frame is
// buffered. An accumulator overflow abandons the partial frame.
func (t *incomingMuxerTask) takeFromGrant(g *bbq.GrantR) bool {
	tryDecode := false
	toUse := g.Buf
	for i, b := range g.Buf {
		if b == 0 {
			toUse = g.Buf[:i+1]
			tryDecode = true
			break
		}
	}

	// Buffer everything before the delimiter; the delimiter itself is
	// consumed but not stored.
	data := toUse
	if tryDecode {
		data = toUse[:len(toUse)-1]
	}
	for _, b := range data {
		if err := t.buf.Push(b); err != nil {
			t.logger.Warn("sermux: overfilled accumulator", "len", len(data))
			t.buf.Clear()
			tryDecode = false
			break
		}
	}

	g.Release(len(toUse))
	return tryDecode
}
