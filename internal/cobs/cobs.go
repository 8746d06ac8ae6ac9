// Package cobs implements consistent-overhead byte stuffing, the framing
// used on the serial link: encoded frames contain no zero bytes, so a
// single 0x00 delimits them on the wire.
package cobs

import "errors"

// ErrCorrupt is returned when a frame does not decode.
var ErrCorrupt = errors.New("cobs: corrupt frame")

// MaxEncodedSize returns the worst-case encoded size of n source bytes,
// excluding the frame delimiter.
func MaxEncodedSize(n int) int {
	return n + n/254 + 1
}

// EncodedSize returns the exact encoded size of src, excluding the frame
// delimiter. It mirrors Encode's grouping byte for byte.
func EncodedSize(src []byte) int {
	size := 1
	code := byte(1)
	for _, b := range src {
		if b == 0 {
			size++
			code = 1
			continue
		}
		size++
		code++
		if code == 0xFF {
			size++
			code = 1
		}
	}
	return size
}

// Encode appends the encoding of src to dst and returns the result. The
// output contains no zero bytes.
func Encode(dst, src []byte) []byte {
	codeIdx := len(dst)
	dst = append(dst, 0)
	code := byte(1)

	for _, b := range src {
		if b == 0 {
			dst[codeIdx] = code
			codeIdx = len(dst)
			dst = append(dst, 0)
			code = 1
			continue
		}
		dst = append(dst, b)
		code++
		if code == 0xFF {
			dst[codeIdx] = code
			codeIdx = len(dst)
			dst = append(dst, 0)
			code = 1
		}
	}
	dst[codeIdx] = code
	return dst
}

// DecodeInPlace decodes buf (without its trailing delimiter) in place and
// returns the decoded length.
func DecodeInPlace(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, ErrCorrupt
	}
	read := 0
	write := 0
	for read < len(buf) {
		code := buf[read]
		if code == 0 {
			return 0, ErrCorrupt
		}
		read++
		n := int(code) - 1
		if read+n > len(buf) {
			return 0, ErrCorrupt
		}
		for i := 0; i < n; i++ {
			if buf[read] == 0 {
				return 0, ErrCorrupt
			}
			buf[write] = buf[read]
			read++
			write++
		}
		if code != 0xFF && read < len(buf) {
			buf[write] = 0
			write++
		}
	}
	return write, nil
}
