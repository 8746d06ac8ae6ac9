// kestrel-sim boots the kernel as a host process. The serial link is
// either a TCP listener (for kestrel-tty) or the process's own stdio in
// raw mode; everything above the link — sermux, daemons, trace, the
// default Forth shell — is the same code an embedded target runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	kestrel "github.com/ehrlich-b/kestrel"
	"github.com/ehrlich-b/kestrel/comms/bbq"
	"github.com/ehrlich-b/kestrel/config"
	"github.com/ehrlich-b/kestrel/daemons"
	"github.com/ehrlich-b/kestrel/internal/logging"
	"github.com/ehrlich-b/kestrel/kforth"
	"github.com/ehrlich-b/kestrel/sermuxproto"
	"github.com/ehrlich-b/kestrel/services/serialmux"
	"github.com/ehrlich-b/kestrel/services/simpleserial"
	"github.com/ehrlich-b/kestrel/services/spawnulator"
	"github.com/ehrlich-b/kestrel/trace"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "Path to a TOML config file")
		listen  = flag.String("listen", "", "Listen for the serial link on this TCP address (e.g. :9000)")
		stdio   = flag.Bool("stdio", false, "Use stdin/stdout as the serial link (raw mode)")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Invalid config '%s': %v", *cfgPath, err)
	}

	// Set up logging
	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	if *stdio {
		// Stdout carries the serial link; logs must not corrupt it.
		logConfig.Output = os.Stderr
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	link, cleanup, err := openLink(*listen, *stdio, logger)
	if err != nil {
		log.Fatalf("Failed to open serial link: %v", err)
	}
	defer cleanup()

	settings := cfg.KernelSettings()
	settings.Logger = logger
	k := kestrel.New(settings)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	if err := boot(ctx, k, cfg, link, logger); err != nil {
		log.Fatalf("Boot failed: %v", err)
	}

	logger.Info("kestrel-sim running",
		"heap", k.Settings().HeapSize,
		"granularity", k.Settings().TimerGranularity)
	k.RunTickLoop(ctx)
}

// boot registers the default service stack.
func boot(ctx context.Context, k *kestrel.Kernel, cfg *config.Config, link io.ReadWriteCloser, logger *logging.Logger) error {
	if err := simpleserial.Register(ctx, k, link, simpleserial.Settings{}); err != nil {
		return fmt.Errorf("simpleserial: %w", err)
	}
	if err := serialmux.Register(ctx, k, cfg.SermuxSettings()); err != nil {
		return fmt.Errorf("serialmux: %w", err)
	}
	if err := spawnulator.Register(ctx, k, spawnulator.Settings{}); err != nil {
		return fmt.Errorf("spawnulator: %w", err)
	}

	k.Spawn(ctx, daemons.Loopback(k, daemons.DefaultLoopbackSettings()))
	k.Spawn(ctx, daemons.Hello(k, daemons.DefaultHelloSettings()))

	if cfg.Trace.Enabled {
		k.Spawn(ctx, func(ctx context.Context) {
			ts := trace.DefaultSettings()
			if cfg.Trace.QueueDepth > 0 {
				ts.QueueDepth = cfg.Trace.QueueDepth
			}
			if cfg.Trace.InitialLevelDebug {
				ts.InitialLevel = logging.LevelDebug
			}
			if _, err := trace.Register(ctx, k, logger, ts); err != nil {
				logger.Error("trace service failed", "err", err)
			}
		})
	}

	// The default Forth shell, bridged to its well-known sermux port.
	k.Spawn(ctx, func(ctx context.Context) {
		if err := runShell(ctx, k, cfg.ForthParams()); err != nil {
			logger.Error("forth shell failed", "err", err)
		}
	})
	return nil
}

// runShell wires a Forth task's stdio to the forth-shell sermux port.
func runShell(ctx context.Context, k *kestrel.Kernel, params kforth.Params) error {
	port, err := serialmux.Open(ctx, k, sermuxproto.ForthShell0, params.StdinCapacity)
	if err != nil {
		return err
	}
	f, streams, err := kforth.New(ctx, k, params)
	if err != nil {
		return err
	}
	k.Spawn(ctx, f.Run)

	// Port -> shell stdin.
	k.Spawn(ctx, func(ctx context.Context) {
		pump(ctx, port.Consumer(), streams.Producer())
	})
	// Shell stdout -> port.
	for {
		g, err := streams.Consumer().ReadGrant(ctx)
		if err != nil {
			return nil
		}
		data := append([]byte(nil), g.Buf...)
		g.Release(len(g.Buf))
		if err := port.Send(ctx, data); err != nil {
			return err
		}
	}
}

// pump copies ring to ring until either side closes.
func pump(ctx context.Context, src *bbq.Consumer, dst *bbq.SpscProducer) {
	for {
		g, err := src.ReadGrant(ctx)
		if err != nil {
			return
		}
		data := g.Buf
		for len(data) > 0 {
			w, werr := dst.SendGrantMax(ctx, len(data))
			if werr != nil {
				g.Release(0)
				return
			}
			n := copy(w.Buf, data)
			w.Commit(n)
			data = data[n:]
		}
		g.Release(len(g.Buf))
	}
}

// openLink picks the serial transport.
func openLink(listen string, stdio bool, logger *logging.Logger) (io.ReadWriteCloser, func(), error) {
	switch {
	case stdio:
		restore, err := rawMode()
		if err != nil {
			logger.Warn("raw mode unavailable", "err", err)
			restore = func() {}
		}
		return stdioLink{}, restore, nil

	case listen != "":
		ln, err := net.Listen("tcp", listen)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("waiting for serial link", "addr", ln.Addr())
		conn, err := ln.Accept()
		if err != nil {
			ln.Close()
			return nil, nil, err
		}
		logger.Info("serial link connected", "peer", conn.RemoteAddr())
		return conn, func() { ln.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("choose a link: -listen ADDR or -stdio")
	}
}

// stdioLink adapts the process stdio to one ReadWriteCloser.
type stdioLink struct{}

func (stdioLink) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioLink) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdioLink) Close() error                { return nil }
