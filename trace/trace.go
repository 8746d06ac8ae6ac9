// Package trace streams kernel log records over a sermux port as framed
// binary events, with a heartbeat carrying the current level filter and
// a count of records dropped under backpressure. The host side may send
// SetMaxLevel to adjust filtering at runtime.
package trace

import (
	"context"
	"fmt"
	"time"

	kestrel "github.com/ehrlich-b/kestrel"
	"github.com/ehrlich-b/kestrel/comms/kchannel"
	"github.com/ehrlich-b/kestrel/internal/logging"
	"github.com/ehrlich-b/kestrel/sermuxproto"
	"github.com/ehrlich-b/kestrel/services/serialmux"
)

// Settings configures the serial trace service.
type Settings struct {
	Port              uint16
	BufferSize        int
	QueueDepth        int
	InitialLevel      logging.LogLevel
	HeartbeatInterval time.Duration
}

// DefaultSettings traces on the well-known binary-tracing port.
func DefaultSettings() Settings {
	return Settings{
		Port:              sermuxproto.BinaryTracing,
		BufferSize:        1024,
		QueueDepth:        64,
		InitialLevel:      logging.LevelInfo,
		HeartbeatInterval: time.Second,
	}
}

func (s *Settings) withDefaults() {
	d := DefaultSettings()
	if s.BufferSize == 0 {
		s.BufferSize = d.BufferSize
	}
	if s.QueueDepth == 0 {
		s.QueueDepth = d.QueueDepth
	}
	if s.HeartbeatInterval == 0 {
		s.HeartbeatInterval = d.HeartbeatInterval
	}
}

type event struct {
	level logging.LogLevel
	msg   string
	kvs   string
}

// sink feeds the trace task from the logger without ever blocking it.
type sink struct {
	svc *Service
}

// Record implements logging.Sink.
func (s sink) Record(level logging.LogLevel, msg string, kvs []any) {
	var kvText string
	for i := 0; i+1 < len(kvs); i += 2 {
		if kvText != "" {
			kvText += " "
		}
		kvText += fmt.Sprintf("%v=%v", kvs[i], kvs[i+1])
	}
	if err := s.svc.events.TryEnqueue(event{level: level, msg: msg, kvs: kvText}); err != nil {
		s.svc.discarded.Add(1)
	}
}

// Service is the running trace task's shared state.
type Service struct {
	events    *kchannel.KChannel[event]
	discarded atomicCounter
	logger    *logging.Logger
}

// Register opens the trace port, installs the logger sink, and spawns the
// emit and control tasks.
func Register(ctx context.Context, k *kestrel.Kernel, logger *logging.Logger, settings Settings) (*Service, error) {
	settings.withDefaults()

	port, err := serialmux.Open(ctx, k, settings.Port, settings.BufferSize)
	if err != nil {
		return nil, err
	}

	svc := &Service{
		events: kchannel.New[event](settings.QueueDepth, nil),
		logger: logger,
	}
	logger.SetLevel(settings.InitialLevel)
	logger.SetSink(sink{svc: svc})

	// Emit task: events and heartbeats out.
	k.Spawn(ctx, func(ctx context.Context) {
		hb := k.Timer().Sleep(k.Timer().Ticks(settings.HeartbeatInterval))
		for {
			select {
			case <-ctx.Done():
				return
			case <-hb.Done():
				frame := encodeHeartbeat(logger.Level(), svc.discarded.Swap(0))
				if err := port.Send(ctx, frame); err != nil {
					return
				}
				hb = k.Timer().Sleep(k.Timer().Ticks(settings.HeartbeatInterval))
			default:
			}

			ev, derr := svc.events.TryDequeue()
			if derr == kchannel.ErrClosed {
				return
			}
			if derr != nil {
				// Nothing queued; block briefly on the kernel clock so
				// heartbeats stay on schedule.
				if serr := k.Sleep(ctx, 10*time.Millisecond); serr != nil {
					return
				}
				continue
			}
			if err := port.Send(ctx, encodeEvent(ev)); err != nil {
				return
			}
		}
	})

	// Control task: host -> target SetMaxLevel.
	k.Spawn(ctx, func(ctx context.Context) {
		var acc []byte
		for {
			g, err := port.Consumer().ReadGrant(ctx)
			if err != nil {
				return
			}
			acc = append(acc, g.Buf...)
			g.Release(len(g.Buf))
			for len(acc) >= 2 {
				if acc[0] != msgSetMaxLevel {
					acc = acc[1:]
					continue
				}
				level, enabled := decodeSetMaxLevel(acc[:2])
				acc = acc[2:]
				if enabled {
					logger.SetLevel(level)
				} else {
					logger.SetLevel(logging.LevelError + 1)
				}
			}
		}
	})

	return svc, nil
}

// Discarded reports records dropped since the last heartbeat.
func (s *Service) Discarded() uint32 { return s.discarded.Load() }
