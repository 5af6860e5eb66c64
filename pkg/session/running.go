package session

import (
	"encoding/binary"
	"fmt"

	"github.com/ev3uart/sensor-engine/pkg/catalog"
	"github.com/ev3uart/sensor-engine/pkg/wire"
)

// handleRunningFrame applies one frame received while Running, per
// spec.md §4.4's "Running | DATA(mode)" and "... bad checksum" rows.
// Only DATA frames are expected; anything else is a protocol
// violation.
func (s *Session) handleRunningFrame(frame []byte) {
	header := frame[0]
	if wire.Class(header) != wire.ClassData {
		s.resync(fmt.Sprintf("Unexpected frame class for header 0x%02x while running.", header))
		return
	}

	if !wire.VerifyChecksum(frame) && !s.allowsBadChecksum(frame) {
		s.dataErrorCount++
		if s.dataErrorCount >= DataErrorThreshold {
			s.resync("Bad checksum.")
		}
		return
	}

	mode := int(wire.CommandNibble(header))
	if mode < 0 || mode >= s.cat.NumModes {
		s.resync(fmt.Sprintf("DATA frame for out-of-range mode %d.", mode))
		return
	}

	payload := frame[1 : len(frame)-1]
	copy(s.cat.Modes[mode].RawData[:], payload)

	s.cat.CurrentMode = mode
	s.lastDataSeen = true
	if s.dataErrorCount > 0 {
		s.dataErrorCount--
	}

	s.pub.ModeChanged(uint8(mode))
	sample := make([]byte, len(payload))
	copy(sample, payload)
	s.pub.SampleAvailable(uint8(mode), sample)
}

// allowsBadChecksum implements spec.md §4.4's "Checksum policy
// exception": sensor type 29 DATA frames whose first payload byte is
// 0xDC are accepted despite a bad checksum. Preserved verbatim; do
// not extend to other types or bytes.
func (s *Session) allowsBadChecksum(frame []byte) bool {
	return s.sensorType == type29 && len(frame) >= 2 && frame[1] == type29BadChecksumFirstByte
}

func (s *Session) doSetMode(i uint8) error {
	if s.cat.NumModes == 0 {
		return ErrNotReady
	}
	if int(i) >= s.cat.NumModes {
		return ErrModeOutOfRange
	}
	header, err := wire.EncodeHeader(wire.ClassCmd, 1, byte(wire.CmdSelect))
	if err != nil {
		return fmt.Errorf("session: encode CMD_SELECT: %w", err)
	}
	frame := []byte{header, i, 0}
	frame[2] = wire.Checksum(frame[:2])
	s.transmit(frame)
	return nil
}

// writeSizes are the payload widths a WRITE command may round up to,
// per spec.md §4.5.
var writeSizes = []int{1, 2, 4, 8, 16, 32}

func (s *Session) doWrite(payload []byte) error {
	if len(payload) > 32 {
		return ErrPayloadTooLarge
	}
	size := writeSizes[len(writeSizes)-1]
	for _, candidate := range writeSizes {
		if len(payload) <= candidate {
			size = candidate
			break
		}
	}
	padded := make([]byte, size)
	copy(padded, payload)

	header, err := wire.EncodeHeader(wire.ClassCmd, size, byte(wire.CmdWrite))
	if err != nil {
		return fmt.Errorf("session: encode CMD_WRITE: %w", err)
	}
	frame := make([]byte, 1+size+1)
	frame[0] = header
	copy(frame[1:1+size], padded)
	frame[len(frame)-1] = wire.Checksum(frame[:len(frame)-1])
	s.transmit(frame)
	return nil
}

func (s *Session) doReadValue(i int) (int, error) {
	if s.phase != PhaseRunning {
		return 0, ErrNotReady
	}
	mode := &s.cat.Modes[s.cat.CurrentMode]
	if i < 0 || i >= mode.DataSets {
		return 0, ErrNotReady
	}
	wireFmt := wire.Format(mode.Format)
	width := wireFmt.SizeOf()
	off := i * width
	if off+width > len(mode.RawData) {
		return 0, ErrNotReady
	}
	raw := mode.RawData[off : off+width]

	if mode.Format == catalog.FormatFloat {
		bits := binary.LittleEndian.Uint32(raw)
		return int(catalog.Ftoi(bits, mode.Decimals)), nil
	}
	return int(decodeSigned(raw)), nil
}

func (s *Session) doReadRawBytes(off, length int) ([]byte, error) {
	if s.phase != PhaseRunning {
		return nil, ErrNotReady
	}
	mode := &s.cat.Modes[s.cat.CurrentMode]
	if off < 0 || length < 0 || off+length > len(mode.RawData) {
		return nil, ErrNotReady
	}
	out := make([]byte, length)
	copy(out, mode.RawData[off:off+length])
	return out, nil
}

// decodeSigned sign-extends a little-endian 1, 2, or 4-byte integer.
func decodeSigned(b []byte) int32 {
	switch len(b) {
	case 1:
		return int32(int8(b[0]))
	case 2:
		return int32(int16(binary.LittleEndian.Uint16(b)))
	case 4:
		return int32(binary.LittleEndian.Uint32(b))
	default:
		return 0
	}
}
