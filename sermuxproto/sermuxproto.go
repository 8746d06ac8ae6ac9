// Package sermuxproto carries the serial multiplexer's wire format and
// well-known port numbers, shared by the kernel and host-side tools.
//
// Each frame on the wire is COBS(port_id_le_u16 ‖ payload) followed by a
// single 0x00 delimiter. Ports are numbered 0..=65535.
package sermuxproto

import (
	"encoding/binary"
	"errors"

	"github.com/ehrlich-b/kestrel/internal/cobs"
)

// Well-known ports.
const (
	// Loopback echoes every received payload back out.
	Loopback uint16 = 0
	// HelloWorld periodically emits a greeting.
	HelloWorld uint16 = 1
	// PseudoKeyboard injects key events from the host.
	PseudoKeyboard uint16 = 2
	// ForthShell0 is the default Forth shell's stdio.
	ForthShell0 uint16 = 3
	// BinaryTracing carries the framed trace protocol.
	BinaryTracing uint16 = 4
)

// HeaderSize is the decoded frame header length (little-endian port id).
const HeaderSize = 2

// MinDecodedSize is the smallest meaningful decoded frame: a header plus
// at least one payload byte.
const MinDecodedSize = HeaderSize + 1

var (
	// ErrFrameTooShort is returned for decoded frames below MinDecodedSize.
	ErrFrameTooShort = errors.New("sermuxproto: frame too short")
	// ErrDecode is returned when COBS decoding fails.
	ErrDecode = errors.New("sermuxproto: decode failed")
)

// PortChunk is one (port, payload) pair ready for framing.
type PortChunk struct {
	Port  uint16
	Chunk []byte
}

// NewPortChunk builds a chunk for the given port.
func NewPortChunk(port uint16, chunk []byte) PortChunk {
	return PortChunk{Port: port, Chunk: chunk}
}

// BufferRequired reports the exact on-wire size of this chunk: the COBS
// encoding of header+payload plus the frame delimiter.
func (pc PortChunk) BufferRequired() int {
	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint16(hdr[:], pc.Port)
	// EncodedSize only depends on where the zero bytes fall, so the
	// header and payload sizes compose.
	raw := make([]byte, 0, HeaderSize+len(pc.Chunk))
	raw = append(raw, hdr[:]...)
	raw = append(raw, pc.Chunk...)
	return cobs.EncodedSize(raw) + 1
}

// EncodeTo writes the framed chunk into dst, which must be at least
// BufferRequired bytes, and returns the written prefix.
func (pc PortChunk) EncodeTo(dst []byte) ([]byte, error) {
	raw := make([]byte, 0, HeaderSize+len(pc.Chunk))
	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint16(hdr[:], pc.Port)
	raw = append(raw, hdr[:]...)
	raw = append(raw, pc.Chunk...)

	// Clamp to dst's length so encoding can never write past the
	// caller's region (dst is typically a ring write grant).
	enc := cobs.Encode(dst[:0:len(dst)], raw)
	if len(enc)+1 > len(dst) {
		return nil, errors.New("sermuxproto: destination too small")
	}
	enc = append(enc, 0x00)
	return enc, nil
}

// DecodeInPlace decodes one delimiter-stripped frame in place, returning
// the port id and a view of the payload.
func DecodeInPlace(buf []byte) (uint16, []byte, error) {
	n, err := cobs.DecodeInPlace(buf)
	if err != nil {
		return 0, nil, ErrDecode
	}
	if n < MinDecodedSize {
		return 0, nil, ErrFrameTooShort
	}
	port := binary.LittleEndian.Uint16(buf[:HeaderSize])
	return port, buf[HeaderSize:n], nil
}
