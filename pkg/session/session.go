// Package session implements the EV3-UART state machine (spec.md
// §4.4): sync, handshake/catalog collection, ACK, baud switch,
// steady-state sampling, keep-alive, and resync-on-failure. All
// mutable state is owned by a single event-loop goroutine per Session
// (loop.go), per spec.md §5's serialization requirement and §9's
// tagged-event-union design note.
package session

import (
	"fmt"
	"log"
	"time"

	"github.com/ev3uart/sensor-engine/pkg/catalog"
	"github.com/ev3uart/sensor-engine/pkg/framer"
	"github.com/ev3uart/sensor-engine/pkg/publisher"
	"github.com/ev3uart/sensor-engine/pkg/scheduler"
	"github.com/ev3uart/sensor-engine/pkg/transport"
)

// Phase is one of the six link states from spec.md §3.
type Phase int

const (
	PhaseUnsynced Phase = iota
	PhaseCollecting
	PhaseAckPending
	PhaseBaudSwitching
	PhaseRunning
	PhaseFailing
)

func (p Phase) String() string {
	switch p {
	case PhaseUnsynced:
		return "Unsynced"
	case PhaseCollecting:
		return "Collecting"
	case PhaseAckPending:
		return "AckPending"
	case PhaseBaudSwitching:
		return "BaudSwitching"
	case PhaseRunning:
		return "Running"
	case PhaseFailing:
		return "Failing"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Protocol timing constants, per spec.md §4.4 and §4.6.
const (
	AckDelay               = 10 * time.Millisecond
	BaudSwitchDelay        = 10 * time.Millisecond
	ResyncBaudDelay        = 10 * time.Millisecond
	KeepAlivePeriod        = 100 * time.Millisecond
	KeepAliveInitialOffset = 50 * time.Millisecond

	DataErrorThreshold = 6

	MinBaudRate    = 2400
	MaxBaudRate    = 460800
	ResyncBaudRate = 2400

	// UnknownSensorType is the reserved placeholder held before a sync
	// is ever achieved (spec.md §3).
	UnknownSensorType = 125

	// type29BadChecksumFirstByte is the documented firmware workaround
	// for the type-29 color sensor's RGB-RAW mode (spec.md §4.4,
	// "Checksum policy exception"). Preserved verbatim; do not extend.
	type29                         = 29
	type29BadChecksumFirstByte byte = 0xDC
)

// eventsBufferSize bounds the event channel so a burst of inbound
// bytes from the transport's read goroutine never blocks on the loop
// for long, per spec.md §5's "framing fast-path must not block" rule.
const eventsBufferSize = 64

// Session is one link to a single attached EV3-UART sensor. Every
// exported method is safe to call from any goroutine; each dispatches
// into the single owning event-loop goroutine and waits for it to
// apply the operation (loop.go).
type Session struct {
	transport transport.Transport
	scheduler scheduler.Scheduler
	pub       publisher.Publisher

	events chan event
	done   chan struct{}

	initialBaud int

	// Everything below is touched only inside run() (loop.go).
	phase          Phase
	sensorType     uint8
	cat            catalog.Catalog
	newBaudRate    int
	scanner        framer.Scanner
	framer         framer.Framer
	dataErrorCount int
	lastDataSeen   bool
	lastError      string
	attached       bool

	ackTimer  scheduler.CancelFunc
	baudTimer scheduler.CancelFunc
	keepAlive scheduler.CancelFunc
}

// New constructs a Session bound to t/sch/pub. Call Start to begin
// reading from the transport; call Close to tear down.
func New(t transport.Transport, sch scheduler.Scheduler, pub publisher.Publisher, initialBaud int) *Session {
	s := &Session{
		transport:   t,
		scheduler:   sch,
		pub:         pub,
		events:      make(chan event, eventsBufferSize),
		done:        make(chan struct{}),
		initialBaud: initialBaud,
		phase:       PhaseUnsynced,
		sensorType:  UnknownSensorType,
		newBaudRate: ResyncBaudRate,
	}
	return s
}

// Start begins the event loop and the transport's read callback. It
// must be called exactly once.
func (s *Session) Start() error {
	go s.run()
	if err := s.transport.Start(func(data []byte) {
		s.enqueue(event{tag: tagBytes, data: data})
	}); err != nil {
		return fmt.Errorf("session: failed to start transport: %w", err)
	}
	return nil
}

// Close stops the event loop (whose teardown cancels pending timers)
// and then closes the transport, returning once both are done. The
// keep-alive schedule's cancel runs on its own goroutine (see
// cancelTimers), so Close does not wait for it to finish.
func (s *Session) Close() error {
	resp := make(chan controlResult, 1)
	s.enqueue(event{tag: tagControl, op: opStop, resp: resp})
	<-resp
	<-s.done
	return s.transport.Close()
}

// enqueue hands ev to the loop, dropping it only if the Session has
// already finished shutting down (Close was called).
func (s *Session) enqueue(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) call(ev event) controlResult {
	resp := make(chan controlResult, 1)
	ev.resp = resp
	select {
	case s.events <- ev:
	case <-s.done:
		return controlResult{err: ErrClosed}
	}
	select {
	case r := <-resp:
		return r
	case <-s.done:
		return controlResult{err: ErrClosed}
	}
}

// GetType returns the synchronized sensor type, or UnknownSensorType
// before any sync has completed.
func (s *Session) GetType() uint8 {
	return s.call(event{tag: tagControl, op: opGetType}).u8
}

// GetMode returns the most recently confirmed mode index.
func (s *Session) GetMode() uint8 {
	return s.call(event{tag: tagControl, op: opGetMode}).u8
}

// ListModes returns a snapshot of the declared mode table, valid
// entries only (index < NumModes).
func (s *Session) ListModes() []catalog.ModeInfo {
	return s.call(event{tag: tagControl, op: opListModes}).modes
}

// Phase returns the current link phase.
func (s *Session) Phase() Phase {
	return Phase(s.call(event{tag: tagControl, op: opGetPhase}).val)
}

// SetMode validates i < num_modes, encodes a CMD_SELECT frame, and
// emits it to the transport. It does not wait for sensor confirmation;
// GetMode reflects the change once a DATA frame confirms it (spec.md
// §4.5).
func (s *Session) SetMode(i uint8) error {
	return s.call(event{tag: tagControl, op: opSetMode, mode: i}).err
}

// Write rounds payload up to the next supported size, wraps it with a
// CMD_WRITE header and checksum, and emits it to the transport
// (spec.md §4.5).
func (s *Session) Write(payload []byte) error {
	return s.call(event{tag: tagControl, op: opWrite, payload: payload}).err
}

// ReadValue returns the i-th scalar of the current mode's latest
// sample, converting FLOAT payloads via catalog.Ftoi. Valid only in
// Running with i < data_sets (spec.md §4.4 "Value semantics", §8).
func (s *Session) ReadValue(i int) (int, error) {
	r := s.call(event{tag: tagControl, op: opReadValue, offset: i})
	return r.val, r.err
}

// ReadRawBytes copies length bytes starting at off from the current
// mode's raw sample buffer (spec.md §4.5).
func (s *Session) ReadRawBytes(off, length int) ([]byte, error) {
	r := s.call(event{tag: tagControl, op: opReadRawBytes, offset: off, length: length})
	return r.raw, r.err
}

// LastError returns the diagnostic reason for the most recent resync.
func (s *Session) LastError() string {
	return s.call(event{tag: tagControl, op: opGetLastError}).lastError
}

// resync drives the "any -> Failing -> (immediate) -> Unsynced"
// transition of spec.md §4.4: the engine never actually lingers in
// Failing — it is entered and left within the same loop iteration —
// but the baud reset to 2400 happens 10ms later, off the loop, so it
// never blocks frame processing.
func (s *Session) resync(reason string) {
	log.Printf("session: resyncing: %s", reason)
	s.cancelTimers()
	s.framer.Reset()
	s.scanner.Reset()
	s.cat.Reset()
	s.dataErrorCount = 0
	s.lastDataSeen = false
	s.lastError = reason
	s.newBaudRate = ResyncBaudRate
	s.sensorType = UnknownSensorType

	// The published handle stays registered across a resync within the
	// same Session (spec.md §7) — only teardown revokes it (loop.go's
	// teardown). Detaching here would churn upstream with a spurious
	// detach/re-attach on every transient link failure.

	s.phase = PhaseUnsynced
	s.scheduler.ScheduleOnce(ResyncBaudDelay, func() {
		go func() {
			if err := s.transport.SetBaud(ResyncBaudRate); err != nil {
				log.Printf("session: failed to reset baud after resync: %v", err)
			}
			if err := s.transport.Flush(); err != nil {
				log.Printf("session: failed to flush after resync: %v", err)
			}
		}()
	})
}

func (s *Session) cancelTimers() {
	if s.ackTimer != nil {
		s.ackTimer()
		s.ackTimer = nil
	}
	if s.baudTimer != nil {
		s.baudTimer()
		s.baudTimer = nil
	}
	if s.keepAlive != nil {
		// SchedulePeriodic's CancelFunc closes stop and then blocks
		// until the periodic goroutine's in-flight action returns. That
		// action is doKeepAliveTick, reached via a synchronous call
		// back into this very loop (opKeepAliveTick) — so invoking the
		// CancelFunc inline here, on the loop goroutine, would wait on
		// a reply the loop itself is the only one able to send. This
		// is reachable both when resync is called from inside
		// doKeepAliveTick and when teardown races a freshly-fired
		// tick, so the cancel always runs off-loop instead.
		cancel := s.keepAlive
		s.keepAlive = nil
		go cancel()
	}
}
