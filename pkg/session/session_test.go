package session

import (
	"testing"

	"github.com/ev3uart/sensor-engine/pkg/publisher"
	"github.com/ev3uart/sensor-engine/pkg/scheduler"
	"github.com/ev3uart/sensor-engine/pkg/transport"
	"github.com/ev3uart/sensor-engine/pkg/wire"
)

func buildTypeTriplet(t *testing.T, sensorType byte) []byte {
	t.Helper()
	header, err := wire.EncodeHeader(wire.ClassCmd, 1, byte(wire.CmdType))
	if err != nil {
		t.Fatalf("encode header: %v", err)
	}
	frame := []byte{header, sensorType}
	return append(frame, wire.Checksum(frame))
}

func buildCmdFrame(t *testing.T, cmd wire.Command, payload []byte) []byte {
	t.Helper()
	header, err := wire.EncodeHeader(wire.ClassCmd, len(payload), byte(cmd))
	if err != nil {
		t.Fatalf("encode header: %v", err)
	}
	frame := append([]byte{header}, payload...)
	return append(frame, wire.Checksum(frame))
}

func buildInfoFrame(t *testing.T, mode int, sub wire.InfoSubCommand, payload []byte) []byte {
	t.Helper()
	header, err := wire.EncodeHeader(wire.ClassInfo, len(payload), uint8(mode))
	if err != nil {
		t.Fatalf("encode header: %v", err)
	}
	frame := append([]byte{header, byte(sub)}, payload...)
	return append(frame, wire.Checksum(frame))
}

func buildDataFrame(t *testing.T, mode int, payload []byte) []byte {
	t.Helper()
	header, err := wire.EncodeHeader(wire.ClassData, len(payload), uint8(mode))
	if err != nil {
		t.Fatalf("encode header: %v", err)
	}
	frame := append([]byte{header}, payload...)
	return append(frame, wire.Checksum(frame))
}

func cstring(s string, size int) []byte {
	out := make([]byte, size)
	copy(out, s)
	return out
}

// driveHandshake takes a fresh Session through sync to sensorType, a
// single-mode catalog (S8, 1 data_set), and SYS_ACK, leaving it at
// phase AckPending with the ack timer armed.
func driveHandshake(t *testing.T, s *Session, mem *transport.Memory, sensorType byte) {
	t.Helper()
	mem.Deliver(buildTypeTriplet(t, sensorType))
	if got := s.Phase(); got != PhaseCollecting {
		t.Fatalf("phase after sync = %v, want Collecting", got)
	}

	mem.Deliver(buildCmdFrame(t, wire.CmdModes, []byte{1, 0}))
	mem.Deliver(buildInfoFrame(t, 0, wire.InfoName, cstring("T", 4)))
	mem.Deliver(buildInfoFrame(t, 0, wire.InfoFormat, []byte{1, 0, 4, 0}))
	mem.Deliver([]byte{byte(wire.SysAck)})

	if got := s.Phase(); got != PhaseAckPending {
		t.Fatalf("phase after SYS_ACK = %v, want AckPending", got)
	}
}

func runToRunning(t *testing.T, sensorType byte) (*Session, *transport.Memory, *scheduler.FakeClock, *publisher.Memory) {
	t.Helper()
	mem := transport.NewMemory(9600)
	clock := scheduler.NewFakeClock()
	pub := publisher.NewMemory()
	s := New(mem, clock, pub, 9600)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	driveHandshake(t, s, mem, sensorType)
	clock.Advance(AckDelay)
	// Wait for the loop to handle the ACK timer, which arms the baud
	// timer; advancing first could step past its due time before it
	// exists.
	s.Phase()
	clock.Advance(BaudSwitchDelay)
	if got := s.Phase(); got != PhaseRunning {
		t.Fatalf("phase = %v, want Running", got)
	}
	return s, mem, clock, pub
}

func TestHappyHandshake(t *testing.T) {
	s, mem, clock, pub := newStartedSession(t)
	defer s.Close()

	driveHandshake(t, s, mem, 16)
	clock.Advance(AckDelay)
	if got := s.Phase(); got != PhaseBaudSwitching {
		t.Fatalf("phase after ack delay = %v, want BaudSwitching", got)
	}
	if !pub.Attached {
		t.Fatal("publisher was not attached after ACK")
	}

	clock.Advance(BaudSwitchDelay)
	if got := s.Phase(); got != PhaseRunning {
		t.Fatalf("phase after baud delay = %v, want Running", got)
	}
	if got := s.GetType(); got != 16 {
		t.Fatalf("GetType() = %d, want 16", got)
	}
	if len(pub.Modes) != 1 {
		t.Fatalf("published modes = %d, want 1", len(pub.Modes))
	}
}

// newStartedSession constructs a Session and starts it, but leaves
// the handshake to the caller — used by tests that want access to the
// intermediate phases rather than runToRunning's end-to-end helper.
func newStartedSession(t *testing.T) (*Session, *transport.Memory, *scheduler.FakeClock, *publisher.Memory) {
	t.Helper()
	mem := transport.NewMemory(9600)
	clock := scheduler.NewFakeClock()
	pub := publisher.NewMemory()
	s := New(mem, clock, pub, 9600)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return s, mem, clock, pub
}

func TestDataFlow(t *testing.T) {
	s, mem, _, _ := runToRunning(t, 16)

	mem.Deliver(buildDataFrame(t, 0, []byte{42}))

	val, err := s.ReadValue(0)
	if err != nil {
		t.Fatalf("ReadValue: %v", err)
	}
	if val != 42 {
		t.Fatalf("ReadValue(0) = %d, want 42", val)
	}
	if got := s.GetMode(); got != 0 {
		t.Fatalf("GetMode() = %d, want 0", got)
	}
}

func corruptedDataFrame(t *testing.T, mode int, payload []byte) []byte {
	t.Helper()
	frame := buildDataFrame(t, mode, payload)
	frame[len(frame)-1] ^= 0xFF
	return frame
}

func TestBadChecksumSurvival(t *testing.T) {
	s, mem, _, _ := runToRunning(t, 16)

	for i := 0; i < 5; i++ {
		mem.Deliver(corruptedDataFrame(t, 0, []byte{1}))
	}
	if got := s.Phase(); got != PhaseRunning {
		t.Fatalf("phase after 5 bad frames = %v, want Running", got)
	}

	mem.Deliver(buildDataFrame(t, 0, []byte{9}))
	if got := s.Phase(); got != PhaseRunning {
		t.Fatalf("phase after good frame = %v, want Running", got)
	}
	val, err := s.ReadValue(0)
	if err != nil {
		t.Fatalf("ReadValue: %v", err)
	}
	if val != 9 {
		t.Fatalf("ReadValue(0) = %d, want 9", val)
	}
}

func TestFailureTrip(t *testing.T) {
	s, mem, _, _ := runToRunning(t, 16)

	for i := 0; i < 7; i++ {
		mem.Deliver(corruptedDataFrame(t, 0, []byte{1}))
	}

	if got := s.Phase(); got != PhaseUnsynced {
		t.Fatalf("phase after 7 bad frames = %v, want Unsynced", got)
	}
	if got := s.LastError(); got != "Bad checksum." {
		t.Fatalf("LastError() = %q, want %q", got, "Bad checksum.")
	}
}

func TestSplitSyncFFQuirk(t *testing.T) {
	s, mem, _, _ := newStartedSession(t)
	defer s.Close()

	mem.Deliver([]byte{0xFF})
	if got := s.Phase(); got != PhaseUnsynced {
		t.Fatalf("phase after lone 0xFF = %v, want Unsynced", got)
	}

	mem.Deliver(buildTypeTriplet(t, 16))
	if got := s.GetType(); got != 16 {
		t.Fatalf("GetType() = %d, want 16", got)
	}
	if got := s.Phase(); got != PhaseCollecting {
		t.Fatalf("phase = %v, want Collecting", got)
	}
}

func TestType29ChecksumException(t *testing.T) {
	s, mem, _, _ := runToRunning(t, type29)

	frame := buildDataFrame(t, 0, []byte{0xDC})
	frame[len(frame)-1] ^= 0xFF // deliberately wrong checksum
	mem.Deliver(frame)

	if got := s.Phase(); got != PhaseRunning {
		t.Fatalf("phase after type-29 exception frame = %v, want Running", got)
	}
	val, err := s.ReadValue(0)
	if err != nil {
		t.Fatalf("ReadValue: %v", err)
	}
	first := byte(0xDC)
	if want := int(int8(first)); val != want {
		t.Fatalf("ReadValue(0) = %d, want %d", val, want)
	}
}
