package framer

import "github.com/ev3uart/sensor-engine/pkg/wire"

// TypeMax is the highest sensor type value the Sync Scanner accepts.
// Type 125 is reserved by spec.md §3 as the "unknown" placeholder, so
// valid declared types stay well below it.
const TypeMax = 100

// Scanner locates the first valid TYPE command triplet in a raw,
// not-yet-synchronized byte stream, per spec.md §4.2.
type Scanner struct {
	buf []byte
}

// Feed appends newly received bytes to the scanner's retained buffer.
func (s *Scanner) Feed(data []byte) {
	s.buf = append(s.buf, data...)
}

// Next scans for the triplet (header=CMD|TYPE, type_byte ∈ (0, TYPE_MAX],
// checksum). On a match it drops the 3 scanned bytes and returns the
// declared sensor type. On a mismatch it advances by one byte and
// retries. If fewer than 3 bytes remain, they are retained for the
// next call.
func (s *Scanner) Next() (sensorType byte, ok bool) {
	for len(s.buf) >= 3 {
		header, typeByte, checksum := s.buf[0], s.buf[1], s.buf[2]
		if wire.Class(header) == wire.ClassCmd &&
			wire.CommandNibble(header) == byte(wire.CmdType) &&
			typeByte > 0 && typeByte <= TypeMax &&
			wire.Checksum(s.buf[:2]) == checksum {
			s.buf = s.buf[3:]
			return typeByte, true
		}
		s.buf = s.buf[1:]
	}
	return 0, false
}

// Reset drops any retained bytes.
func (s *Scanner) Reset() {
	s.buf = s.buf[:0]
}
