// kestrel-tty is the host-side bridge for a kestrel serial link. It
// connects to a running simulator (or a real board behind a TTY-to-TCP
// shim), splits the multiplexed stream by port, and exposes each port as
// TCP on localhost at base+port. The forth-shell port doubles as an
// interactive console with line editing.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/peterh/liner"

	"github.com/ehrlich-b/kestrel/sermuxproto"
)

func main() {
	var (
		connect = flag.String("connect", "127.0.0.1:9000", "Simulator serial link address")
		base    = flag.Int("base", 10000, "Base TCP port; port N is exposed at base+N")
		ports   = flag.String("ports", "0,1,2,3,4", "Comma-separated sermux ports to expose")
		console = flag.Bool("console", true, "Run an interactive console on the forth-shell port")
	)
	flag.Parse()

	conn, err := net.Dial("tcp", *connect)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", *connect, err)
	}
	defer conn.Close()

	bridge := &bridge{
		conn:    conn,
		clients: make(map[uint16]net.Conn),
	}

	for _, p := range strings.Split(*ports, ",") {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 16)
		if err != nil {
			log.Fatalf("Invalid port %q: %v", p, err)
		}
		go bridge.listenPort(uint16(n), *base+int(n))
	}

	go bridge.demux(*console)

	if *console {
		runConsole(bridge)
		return
	}
	select {}
}

// bridge fans the serial stream out to TCP clients and back.
type bridge struct {
	conn net.Conn

	mu      sync.Mutex
	clients map[uint16]net.Conn
}

// sendFrame frames one payload onto the serial link.
func (b *bridge) sendFrame(port uint16, payload []byte) error {
	pc := sermuxproto.NewPortChunk(port, payload)
	buf := make([]byte, pc.BufferRequired())
	enc, err := pc.EncodeTo(buf)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err = b.conn.Write(enc)
	return err
}

// demux splits the incoming stream and routes payloads.
func (b *bridge) demux(console bool) {
	buf := make([]byte, 4096)
	var acc []byte
	for {
		n, err := b.conn.Read(buf)
		if err != nil {
			log.Printf("serial link closed: %v", err)
			os.Exit(0)
		}
		acc = append(acc, buf[:n]...)
		for {
			zero := -1
			for i, c := range acc {
				if c == 0 {
					zero = i
					break
				}
			}
			if zero < 0 {
				break
			}
			frame := acc[:zero]
			acc = acc[zero+1:]
			if len(frame) == 0 {
				continue
			}
			port, payload, derr := sermuxproto.DecodeInPlace(frame)
			if derr != nil {
				log.Printf("dropped frame: %v", derr)
				continue
			}
			b.route(port, payload, console)
		}
	}
}

func (b *bridge) route(port uint16, payload []byte, console bool) {
	if console && port == sermuxproto.ForthShell0 {
		fmt.Print(string(payload))
	}
	b.mu.Lock()
	client := b.clients[port]
	b.mu.Unlock()
	if client != nil {
		if _, err := client.Write(payload); err != nil {
			b.mu.Lock()
			delete(b.clients, port)
			b.mu.Unlock()
		}
	}
}

// listenPort accepts one client at a time for a sermux port.
func (b *bridge) listenPort(port uint16, tcpPort int) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", tcpPort))
	if err != nil {
		log.Printf("port %d: listen failed: %v", port, err)
		return
	}
	log.Printf("sermux port %d on tcp %d", port, tcpPort)
	for {
		client, err := ln.Accept()
		if err != nil {
			return
		}
		b.mu.Lock()
		if old := b.clients[port]; old != nil {
			old.Close()
		}
		b.clients[port] = client
		b.mu.Unlock()

		go func(c net.Conn) {
			buf := make([]byte, 1024)
			for {
				n, err := c.Read(buf)
				if err != nil {
					return
				}
				if err := b.sendFrame(port, buf[:n]); err != nil {
					return
				}
			}
		}(client)
	}
}

// runConsole is the interactive forth console.
func runConsole(b *bridge) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err.Error() == "EOF" {
				return
			}
			log.Printf("console: %v", err)
			return
		}
		if input == "" {
			continue
		}
		line.AppendHistory(input)
		if err := b.sendFrame(sermuxproto.ForthShell0, []byte(input+"\n")); err != nil {
			log.Printf("send failed: %v", err)
			return
		}
	}
}
