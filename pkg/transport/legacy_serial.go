package transport

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// LegacySerialTransport is an alternate Transport backed by
// github.com/tarm/serial, for boards whose kernel doesn't support the
// termios ioctls go.bug.st/serial issues for a live baud change.
// tarm/serial has no SetMode equivalent, so SetBaud closes and reopens
// the port at the new rate — the closest emulation of "drain then
// reconfigure" this library allows.
type LegacySerialTransport struct {
	devicePath string

	mu   sync.Mutex
	port *serial.Port

	stop chan struct{}
	done chan struct{}
}

// OpenLegacySerial opens devicePath at baudRate, 8N1.
func OpenLegacySerial(devicePath string, baudRate int) (*LegacySerialTransport, error) {
	port, err := openTarmPort(devicePath, baudRate)
	if err != nil {
		return nil, err
	}
	return &LegacySerialTransport{
		devicePath: devicePath,
		port:       port,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

func openTarmPort(devicePath string, baudRate int) (*serial.Port, error) {
	config := &serial.Config{
		Name:        devicePath,
		Baud:        baudRate,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: 0,
	}
	port, err := serial.OpenPort(config)
	if err != nil {
		return nil, fmt.Errorf("transport: failed to open serial port %s: %w", devicePath, err)
	}
	return port, nil
}

// Start implements Transport.
func (t *LegacySerialTransport) Start(sink Sink) error {
	go t.readLoop(sink)
	return nil
}

func (t *LegacySerialTransport) readLoop(sink Sink) {
	defer close(t.done)
	buf := make([]byte, 1)
	for {
		select {
		case <-t.stop:
			return
		default:
		}

		t.mu.Lock()
		port := t.port
		t.mu.Unlock()

		n, err := port.Read(buf)
		if err != nil {
			if err != io.EOF {
				log.Printf("transport: legacy serial read error: %v", err)
				time.Sleep(10 * time.Millisecond)
			}
			continue
		}
		if n == 0 {
			continue
		}
		sink([]byte{buf[0]})
	}
}

// Write implements Transport.
func (t *LegacySerialTransport) Write(data []byte) error {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if _, err := port.Write(data); err != nil {
		return fmt.Errorf("transport: write failed: %w", err)
	}
	return nil
}

// SetBaud implements Transport by reopening the port at the new rate.
func (t *LegacySerialTransport) SetBaud(baud int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.port.Flush(); err != nil {
		log.Printf("transport: flush before baud switch failed: %v", err)
	}
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("transport: close before baud switch failed: %w", err)
	}
	// Give the kernel a moment to release the line before reopening,
	// mirroring the settle delay the teacher's clearUARTAttributes used.
	time.Sleep(100 * time.Millisecond)

	newPort, err := openTarmPort(t.devicePath, baud)
	if err != nil {
		return fmt.Errorf("transport: reopen at baud %d failed: %w", baud, err)
	}
	t.port = newPort
	return nil
}

// Flush implements Transport.
func (t *LegacySerialTransport) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.port.Flush(); err != nil {
		return fmt.Errorf("transport: flush failed: %w", err)
	}
	return nil
}

// Close implements Transport.
func (t *LegacySerialTransport) Close() error {
	close(t.stop)
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port.Close()
}
