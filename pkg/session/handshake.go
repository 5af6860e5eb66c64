package session

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ev3uart/sensor-engine/pkg/catalog"
	"github.com/ev3uart/sensor-engine/pkg/wire"
)

// handleCollectingFrame applies one CMD/INFO/SYS frame received while
// Collecting, per spec.md §4.4's phase table. Any frame this table
// doesn't name for Collecting is a protocol violation and resyncs.
func (s *Session) handleCollectingFrame(frame []byte) {
	header := frame[0]

	// SYS frames are a lone header byte with no checksum.
	if wire.Class(header) == wire.ClassSys {
		if wire.SysCommand(header) == wire.SysAck {
			s.onSysAck()
			return
		}
		s.resync(fmt.Sprintf("Unexpected SYS frame 0x%02x during collecting.", header))
		return
	}

	if !wire.VerifyChecksum(frame) {
		s.resync("Bad checksum during collecting.")
		return
	}

	if wire.Class(header) == wire.ClassCmd {
		s.handleCollectingCmd(header, frame)
		return
	}

	if wire.Class(header) == wire.ClassInfo {
		s.handleCollectingInfo(header, frame)
		return
	}

	s.resync(fmt.Sprintf("Unexpected frame class for header 0x%02x during collecting.", header))
}

func (s *Session) handleCollectingCmd(header byte, frame []byte) {
	payload := frame[1 : len(frame)-1]
	switch wire.Command(wire.CommandNibble(header)) {
	case wire.CmdModes:
		if len(payload) < 2 {
			s.resync("CMD_MODES payload too short.")
			return
		}
		numModes := int(payload[0])
		numViewModes := int(payload[1]) + 1
		if err := s.cat.RecordModes(numModes, numViewModes); err != nil {
			s.resync(err.Error())
		}
	case wire.CmdSpeed:
		if len(payload) < 4 {
			s.resync("CMD_SPEED payload too short.")
			return
		}
		baud := int(binary.LittleEndian.Uint32(payload))
		accepted, ok, err := s.cat.RecordSpeed(baud)
		if err != nil {
			s.resync(err.Error())
			return
		}
		if ok {
			s.newBaudRate = accepted
		}
	default:
		s.resync(fmt.Sprintf("Unexpected CMD command %d during collecting.", wire.CommandNibble(header)))
	}
}

func (s *Session) handleCollectingInfo(header byte, frame []byte) {
	mode := int(wire.CommandNibble(header))
	subcmd := wire.InfoSubCommand(frame[1])
	payload := frame[2 : len(frame)-1]

	switch subcmd {
	case wire.InfoName:
		if err := s.cat.RecordName(mode, decodeCString(payload)); err != nil {
			s.resync(err.Error())
		}
	case wire.InfoRaw:
		min, max, err := decodeFloatPair(payload)
		if err != nil {
			s.resync(err.Error())
			return
		}
		if err := s.cat.RecordRaw(mode, min, max); err != nil {
			s.resync(err.Error())
		}
	case wire.InfoPct:
		min, max, err := decodeFloatPair(payload)
		if err != nil {
			s.resync(err.Error())
			return
		}
		if err := s.cat.RecordPct(mode, min, max); err != nil {
			s.resync(err.Error())
		}
	case wire.InfoSI:
		min, max, err := decodeFloatPair(payload)
		if err != nil {
			s.resync(err.Error())
			return
		}
		if err := s.cat.RecordSI(mode, min, max); err != nil {
			s.resync(err.Error())
		}
	case wire.InfoUnits:
		if err := s.cat.RecordUnits(mode, decodeCString(payload)); err != nil {
			s.resync(err.Error())
		}
	case wire.InfoFormat:
		if len(payload) < 4 {
			s.resync("INFO_FORMAT payload too short.")
			return
		}
		dataSets := int(payload[0])
		format := catalog.Format(payload[1])
		figures := int(payload[2])
		decimals := int(payload[3])
		if _, err := s.cat.RecordFormat(mode, dataSets, format, figures, decimals); err != nil {
			s.resync(err.Error())
		}
	default:
		s.resync(fmt.Sprintf("Unexpected INFO subcommand 0x%02x during collecting.", byte(subcmd)))
	}
}

// onSysAck applies the "Collecting | SYS_ACK | AckPending" row: the
// handshake only proceeds once every required record has arrived.
func (s *Session) onSysAck() {
	if !s.cat.RequiredComplete() {
		s.resync("SYS_ACK received before required records complete.")
		return
	}
	s.phase = PhaseAckPending
	s.ackTimer = s.scheduler.ScheduleOnce(AckDelay, func() {
		s.enqueue(event{tag: tagAckTimer})
	})
}

func decodeCString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func decodeFloatPair(payload []byte) (min, max float32, err error) {
	if len(payload) < 8 {
		return 0, 0, fmt.Errorf("session: float-pair payload too short (%d bytes)", len(payload))
	}
	min = decodeFloat32(payload[0:4])
	max = decodeFloat32(payload[4:8])
	return min, max, nil
}

func decodeFloat32(b []byte) float32 {
	bits := binary.LittleEndian.Uint32(b)
	return math.Float32frombits(bits)
}
