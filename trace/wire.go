package trace

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/ehrlich-b/kestrel/internal/logging"
)

// Trace wire messages. Each message rides inside one sermux frame on the
// tracing port; the layouts below are the decoded payloads.
const (
	// target -> host
	msgEvent     = 0x01
	msgHeartbeat = 0x02

	// host -> target
	msgSetMaxLevel = 0x80

	// levelOff disables event emission entirely.
	levelOff = 0xFF
)

// encodeEvent lays out:
//
//	[type: 1B][level: 1B][msg_len_le: 2B][msg][kv_len_le: 2B][kvs]
func encodeEvent(ev event) []byte {
	msg := []byte(ev.msg)
	kvs := []byte(ev.kvs)
	buf := make([]byte, 1+1+2+len(msg)+2+len(kvs))

	buf[0] = msgEvent
	buf[1] = byte(ev.level)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(msg)))
	copy(buf[4:], msg)
	off := 4 + len(msg)
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(kvs)))
	copy(buf[off+2:], kvs)
	return buf
}

// encodeHeartbeat lays out:
//
//	[type: 1B][max_level: 1B][discarded_le: 4B]
func encodeHeartbeat(level logging.LogLevel, discarded uint32) []byte {
	buf := make([]byte, 6)
	buf[0] = msgHeartbeat
	buf[1] = byte(level)
	binary.LittleEndian.PutUint32(buf[2:6], discarded)
	return buf
}

// decodeSetMaxLevel reads [type: 1B][level: 1B]; level 0xFF disables
// emission.
func decodeSetMaxLevel(buf []byte) (logging.LogLevel, bool) {
	if buf[1] == levelOff {
		return 0, false
	}
	return logging.LogLevel(buf[1]), true
}

// atomicCounter is a tiny wrapper so Service can expose Swap semantics.
type atomicCounter struct {
	v atomic.Uint32
}

func (c *atomicCounter) Add(n uint32) { c.v.Add(n) }

func (c *atomicCounter) Load() uint32 { return c.v.Load() }

func (c *atomicCounter) Swap(n uint32) uint32 { return c.v.Swap(n) }
