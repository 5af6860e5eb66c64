package session

import (
	"log"

	"github.com/ev3uart/sensor-engine/pkg/catalog"
	"github.com/ev3uart/sensor-engine/pkg/wire"
)

// eventTag is the discriminant of the tagged event union every
// Session mutation flows through, per spec.md §9's design note
// replacing the source's ad-hoc tty-mutex locking.
type eventTag int

const (
	tagBytes eventTag = iota
	tagAckTimer
	tagBaudTimer
	tagControl
)

type controlOp int

const (
	opSetMode controlOp = iota
	opWrite
	opGetType
	opGetMode
	opGetPhase
	opListModes
	opReadValue
	opReadRawBytes
	opGetLastError
	opKeepAliveTick
	opStop
)

// event is the single union type the loop consumes. Only the fields
// relevant to tag/op are populated by the sender.
type event struct {
	tag  eventTag
	data []byte // tagBytes payload

	op      controlOp
	mode    uint8
	payload []byte
	offset  int
	length  int
	resp    chan controlResult
}

// controlResult is the reply to a tagControl event.
type controlResult struct {
	err       error
	u8        uint8
	val       int
	restart   bool
	modes     []catalog.ModeInfo
	raw       []byte
	lastError string
}

// run is the Session's single consumer: every mutation of the fields
// declared below the events channel in session.go happens here, and
// nowhere else, per spec.md §5's serialization requirement.
func (s *Session) run() {
	defer close(s.done)
	for ev := range s.events {
		switch ev.tag {
		case tagBytes:
			s.handleBytes(ev.data)
		case tagAckTimer:
			s.handleAckTimer()
		case tagBaudTimer:
			s.handleBaudTimer()
		case tagControl:
			stop := s.handleControl(ev)
			if stop {
				return
			}
		}
	}
}

// handleControl applies a control-op event and reports its result,
// returning true only for opStop, which ends the loop.
func (s *Session) handleControl(ev event) bool {
	var res controlResult
	switch ev.op {
	case opSetMode:
		res.err = s.doSetMode(ev.mode)
	case opWrite:
		res.err = s.doWrite(ev.payload)
	case opGetType:
		res.u8 = s.sensorType
	case opGetMode:
		res.u8 = uint8(s.cat.CurrentMode)
	case opGetPhase:
		res.val = int(s.phase)
	case opListModes:
		res.modes = s.snapshotModes()
	case opReadValue:
		res.val, res.err = s.doReadValue(ev.offset)
	case opReadRawBytes:
		res.raw, res.err = s.doReadRawBytes(ev.offset, ev.length)
	case opGetLastError:
		res.lastError = s.lastError
	case opKeepAliveTick:
		res.restart = s.doKeepAliveTick()
	case opStop:
		s.teardown()
	}
	if ev.resp != nil {
		ev.resp <- res
	}
	return ev.op == opStop
}

func (s *Session) teardown() {
	s.cancelTimers()
	s.framer.Reset()
	s.scanner.Reset()
	if s.attached {
		s.attached = false
		s.pub.Detach()
	}
}

func (s *Session) snapshotModes() []catalog.ModeInfo {
	out := make([]catalog.ModeInfo, s.cat.NumModes)
	copy(out, s.cat.Modes[:s.cat.NumModes])
	return out
}

// handleBytes is the framing fast path: it must never block, per
// spec.md §5. In Unsynced it feeds the Sync Scanner; otherwise it
// feeds the length-delimited Framer and dispatches every complete
// frame it yields.
func (s *Session) handleBytes(data []byte) {
	if s.phase == PhaseUnsynced {
		s.scanner.Feed(data)
		sensorType, ok := s.scanner.Next()
		if !ok {
			return
		}
		s.onSynced(sensorType)
		return
	}

	if err := s.framer.Feed(data); err != nil {
		s.resync("Buffer overflow.")
		return
	}
	for {
		frame, ok := s.framer.Next()
		if !ok {
			return
		}
		s.dispatchFrame(frame)
		// A resync inside dispatchFrame drops the Framer's buffered
		// bytes; stop walking a buffer that no longer belongs to this
		// handshake/session generation.
		if s.phase == PhaseUnsynced {
			return
		}
	}
}

func (s *Session) onSynced(sensorType byte) {
	s.cat.Reset()
	s.sensorType = sensorType
	s.cat.RecordType()
	s.phase = PhaseCollecting
	s.framer.Reset()
	log.Printf("session: synced to sensor type %d", sensorType)
}

func (s *Session) dispatchFrame(frame []byte) {
	switch s.phase {
	case PhaseCollecting:
		s.handleCollectingFrame(frame)
	case PhaseAckPending, PhaseBaudSwitching:
		// No frames are expected from the sensor while the handshake's
		// two delayed actions are pending; spec.md §4.4 defines no
		// transition for them, so they are silently ignored rather
		// than treated as a protocol violation.
	case PhaseRunning:
		s.handleRunningFrame(frame)
	}
}

func (s *Session) handleAckTimer() {
	if s.phase != PhaseAckPending {
		return
	}
	if !s.attached {
		s.attached = true
		s.pub.Attach(s.sensorType)
	}
	s.pub.CatalogReady(s.snapshotModes(), s.cat.NumModes, s.cat.NumViewModes)
	if s.lastError != "" {
		s.pub.Diagnostic(s.lastError)
	}

	s.transmit([]byte{byte(wire.SysAck)})

	s.ackTimer = nil
	s.phase = PhaseBaudSwitching
	s.baudTimer = s.scheduler.ScheduleOnce(BaudSwitchDelay, func() {
		s.enqueue(event{tag: tagBaudTimer})
	})
}

func (s *Session) handleBaudTimer() {
	if s.phase != PhaseBaudSwitching {
		return
	}
	s.baudTimer = nil
	baud := s.newBaudRate
	go func() {
		if err := s.transport.SetBaud(baud); err != nil {
			log.Printf("session: failed to switch baud to %d: %v", baud, err)
		}
	}()

	s.phase = PhaseRunning
	s.lastDataSeen = false
	s.keepAlive = s.scheduler.SchedulePeriodic(KeepAliveInitialOffset, KeepAlivePeriod, func() bool {
		return s.call(event{tag: tagControl, op: opKeepAliveTick}).restart
	})
}

// doKeepAliveTick runs on the loop goroutine via opKeepAliveTick: it
// is the periodic tick of spec.md §4.4's "Running | keep-alive tick"
// row. It returns whether the schedule should keep rearming itself.
func (s *Session) doKeepAliveTick() bool {
	if s.phase != PhaseRunning {
		return false
	}
	if !s.lastDataSeen {
		s.dataErrorCount++
	}
	s.lastDataSeen = false

	s.transmit([]byte{byte(wire.SysNack)})

	if s.dataErrorCount >= DataErrorThreshold {
		s.resync("Keep-alive threshold exceeded.")
		return false
	}
	return true
}

// transmit offloads the actual write to a goroutine so the loop never
// blocks on the transport, per spec.md §4.6(b) and §5.
func (s *Session) transmit(frame []byte) {
	t := s.transport
	go func() {
		if err := t.Write(frame); err != nil {
			log.Printf("session: transport write failed: %v", err)
		}
	}()
}
