package sermuxproto

import (
	"bytes"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		port    uint16
		payload []byte
	}{
		{Loopback, []byte{0x41}},
		{ForthShell0, []byte("2 3 + .\n")},
		{0xFFFF, []byte{0x00, 0x00, 0x00}},
		{1234, bytes.Repeat([]byte{0xAB}, 300)},
	}
	for _, c := range cases {
		pc := NewPortChunk(c.port, c.payload)
		buf := make([]byte, pc.BufferRequired())
		enc, err := pc.EncodeTo(buf)
		if err != nil {
			t.Fatalf("EncodeTo(port=%d): %v", c.port, err)
		}
		if len(enc) != pc.BufferRequired() {
			t.Errorf("encoded %d bytes, BufferRequired said %d", len(enc), pc.BufferRequired())
		}
		if enc[len(enc)-1] != 0 {
			t.Error("frame not zero-terminated")
		}
		for _, b := range enc[:len(enc)-1] {
			if b == 0 {
				t.Fatal("zero byte inside encoded frame")
			}
		}

		port, payload, err := DecodeInPlace(enc[:len(enc)-1])
		if err != nil {
			t.Fatalf("DecodeInPlace(port=%d): %v", c.port, err)
		}
		if port != c.port {
			t.Errorf("port = %d, want %d", port, c.port)
		}
		if !bytes.Equal(payload, c.payload) {
			t.Errorf("payload = %v, want %v", payload, c.payload)
		}
	}
}

func TestDecodeTooShort(t *testing.T) {
	// A frame carrying only the header decodes but is below the minimum.
	pc := NewPortChunk(7, nil)
	buf := make([]byte, pc.BufferRequired())
	enc, err := pc.EncodeTo(buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := DecodeInPlace(enc[:len(enc)-1]); err != ErrFrameTooShort {
		t.Errorf("err = %v, want ErrFrameTooShort", err)
	}
}

func TestDecodeCorrupt(t *testing.T) {
	if _, _, err := DecodeInPlace([]byte{0x00, 0x02}); err != ErrDecode {
		t.Errorf("err = %v, want ErrDecode", err)
	}
}

func TestWellKnownPortsAreDistinct(t *testing.T) {
	ports := []uint16{Loopback, HelloWorld, PseudoKeyboard, ForthShell0, BinaryTracing}
	seen := map[uint16]bool{}
	for _, p := range ports {
		if seen[p] {
			t.Errorf("duplicate well-known port %d", p)
		}
		seen[p] = true
	}
}
