// Package daemons holds the kernel's standard background tasks. The
// sermux daemons exercise the serial multiplexer from boot: loopback
// echoes a port back to the host, and hello emits a periodic greeting.
package daemons

import (
	"context"
	"time"

	kestrel "github.com/ehrlich-b/kestrel"
	"github.com/ehrlich-b/kestrel/sermuxproto"
	"github.com/ehrlich-b/kestrel/services/serialmux"
)

// LoopbackSettings configures the echo daemon.
type LoopbackSettings struct {
	Port       uint16
	BufferSize int
}

// DefaultLoopbackSettings uses the well-known loopback port.
func DefaultLoopbackSettings() LoopbackSettings {
	return LoopbackSettings{Port: sermuxproto.Loopback, BufferSize: 128}
}

// Loopback opens its port and echoes every received chunk back out.
func Loopback(k *kestrel.Kernel, settings LoopbackSettings) func(ctx context.Context) {
	if settings.BufferSize == 0 {
		settings.BufferSize = 128
	}
	return func(ctx context.Context) {
		port, err := serialmux.Open(ctx, k, settings.Port, settings.BufferSize)
		if err != nil {
			k.Logger().Error("loopback: open failed", "port", settings.Port, "err", err)
			return
		}
		for {
			g, err := port.Consumer().ReadGrant(ctx)
			if err != nil {
				return
			}
			data := append([]byte(nil), g.Buf...)
			g.Release(len(g.Buf))
			if err := port.Send(ctx, data); err != nil {
				return
			}
		}
	}
}

// HelloSettings configures the greeting daemon.
type HelloSettings struct {
	Port       uint16
	BufferSize int
	Interval   time.Duration
	Message    string
}

// DefaultHelloSettings greets once a second on the well-known port.
func DefaultHelloSettings() HelloSettings {
	return HelloSettings{
		Port:       sermuxproto.HelloWorld,
		BufferSize: 32,
		Interval:   time.Second,
		Message:    "hello\r\n",
	}
}

// Hello opens its port and emits the greeting at each interval.
func Hello(k *kestrel.Kernel, settings HelloSettings) func(ctx context.Context) {
	d := DefaultHelloSettings()
	if settings.Port == 0 && settings.Message == "" {
		settings = d
	}
	if settings.BufferSize == 0 {
		settings.BufferSize = d.BufferSize
	}
	if settings.Interval == 0 {
		settings.Interval = d.Interval
	}
	if settings.Message == "" {
		settings.Message = d.Message
	}
	return func(ctx context.Context) {
		port, err := serialmux.Open(ctx, k, settings.Port, settings.BufferSize)
		if err != nil {
			k.Logger().Error("hello: open failed", "port", settings.Port, "err", err)
			return
		}
		msg := []byte(settings.Message)
		for {
			if err := k.Sleep(ctx, settings.Interval); err != nil {
				return
			}
			if err := port.Send(ctx, msg); err != nil {
				return
			}
		}
	}
}
