// Package framer turns a raw EV3-UART byte stream into either a sync
// triplet (pre-handshake) or complete, length-delimited frames
// (post-handshake), per spec.md §4.2 and §4.3.
package framer

import (
	"fmt"

	"github.com/ev3uart/sensor-engine/pkg/wire"
)

// MaxBufferSize is the bounded receive buffer size (spec.md §3).
const MaxBufferSize = 256

// ErrOverflow is returned by Feed when the accumulated, still-incomplete
// frame would exceed MaxBufferSize — the caller must force a resync.
var ErrOverflow = fmt.Errorf("framer: receive buffer overflow")

// Framer accumulates bytes and yields complete frames once enough of
// the declared length has arrived, per spec.md §4.3.
type Framer struct {
	buf []byte
}

// Feed appends newly received bytes to the internal buffer. It
// returns ErrOverflow if the buffer has grown past MaxBufferSize
// without a complete frame having formed; the caller must then drop
// the Framer's state and resync.
func (f *Framer) Feed(data []byte) error {
	f.buf = append(f.buf, data...)
	if len(f.buf) > MaxBufferSize {
		return ErrOverflow
	}
	return nil
}

// Reset drops any buffered bytes, used when the state machine resyncs.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}

// Next extracts the next complete frame, if one is available. Any
// frame whose declared size exceeds the buffered bytes is left
// untouched (deferred, not consumed) until more bytes arrive.
//
// Two quirks are applied at the frame boundary before size decoding,
// per spec.md §4.3:
//   - a lone leading 0xFF byte is dropped silently (a split SYNC+checksum
//     from the IR sensor straddling a delivery boundary);
//   - a SYS_SYNC byte followed by SYNC^0xFF (0xFF) is consumed as a
//     2-byte unit, yielding the 1-byte SYS_SYNC frame.
func (f *Framer) Next() ([]byte, bool) {
	for {
		if len(f.buf) == 0 {
			return nil, false
		}
		if f.buf[0] == 0xFF {
			f.buf = f.buf[1:]
			continue
		}
		if f.buf[0] == byte(wire.SysSync) && len(f.buf) >= 2 && f.buf[1] == byte(wire.SysSync)^0xFF {
			frame := []byte{f.buf[0]}
			f.buf = f.buf[2:]
			return frame, true
		}

		size := wire.MsgSize(f.buf[0])
		if len(f.buf) < size {
			return nil, false
		}
		frame := make([]byte, size)
		copy(frame, f.buf[:size])
		f.buf = f.buf[size:]
		return frame, true
	}
}

// Len reports the number of bytes currently buffered (for diagnostics
// and tests).
func (f *Framer) Len() int {
	return len(f.buf)
}
