package transport

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialTransport is the production Transport, backed by
// go.bug.st/serial. It is the primary implementation because the
// library exposes both SetMode (a live baud change) and Drain, which
// spec.md §4.4's baud-switch step needs ("wait for tx drain;
// reconfigure transport").
type SerialTransport struct {
	port serial.Port

	mu       sync.Mutex
	baudRate int

	stop chan struct{}
	done chan struct{}
}

// OpenSerial opens devicePath at baudRate, 8N1, and returns a
// SerialTransport ready to Start.
func OpenSerial(devicePath string, baudRate int) (*SerialTransport, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(devicePath, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: failed to open serial port %s: %w", devicePath, err)
	}
	return &SerialTransport{
		port:     port,
		baudRate: baudRate,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start implements Transport.
func (t *SerialTransport) Start(sink Sink) error {
	go t.readLoop(sink)
	return nil
}

func (t *SerialTransport) readLoop(sink Sink) {
	defer close(t.done)
	buf := make([]byte, 64)
	for {
		select {
		case <-t.stop:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if err != nil {
			if err != io.EOF {
				log.Printf("transport: serial read error: %v", err)
				time.Sleep(10 * time.Millisecond)
			}
			continue
		}
		if n == 0 {
			continue
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		sink(chunk)
	}
}

// Write implements Transport.
func (t *SerialTransport) Write(data []byte) error {
	if _, err := t.port.Write(data); err != nil {
		return fmt.Errorf("transport: write failed: %w", err)
	}
	return nil
}

// SetBaud implements Transport.
func (t *SerialTransport) SetBaud(baud int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.port.Drain(); err != nil {
		return fmt.Errorf("transport: drain before baud switch failed: %w", err)
	}
	if err := t.port.SetMode(&serial.Mode{BaudRate: baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}); err != nil {
		return fmt.Errorf("transport: set baud %d failed: %w", baud, err)
	}
	t.baudRate = baud
	return nil
}

// Flush implements Transport.
func (t *SerialTransport) Flush() error {
	if err := t.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("transport: flush failed: %w", err)
	}
	return nil
}

// Close implements Transport.
func (t *SerialTransport) Close() error {
	close(t.stop)
	<-t.done
	return t.port.Close()
}
