package publisher

import (
	"sync"

	"github.com/ev3uart/sensor-engine/pkg/catalog"
)

// Memory is an in-process Publisher double for session tests: every
// call is recorded in order so a test can assert on the sequence of
// notifications a Session produced.
type Memory struct {
	mu sync.Mutex

	Attached    bool
	SensorType  uint8
	Modes       []catalog.ModeInfo
	NumModes    int
	NumViewMode int
	Mode        uint8
	Samples     map[uint8][]byte
	LastError   string
	Events      []string
}

// NewMemory returns an empty Memory publisher double.
func NewMemory() *Memory {
	return &Memory{Samples: make(map[uint8][]byte)}
}

// Attach implements Publisher.
func (m *Memory) Attach(sensorType uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attached = true
	m.SensorType = sensorType
	m.Events = append(m.Events, "attach")
}

// Detach implements Publisher.
func (m *Memory) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attached = false
	m.Events = append(m.Events, "detach")
}

// CatalogReady implements Publisher.
func (m *Memory) CatalogReady(modes []catalog.ModeInfo, numModes, numViewModes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]catalog.ModeInfo, len(modes))
	copy(cp, modes)
	m.Modes = cp
	m.NumModes = numModes
	m.NumViewMode = numViewModes
	m.Events = append(m.Events, "catalog")
}

// ModeChanged implements Publisher.
func (m *Memory) ModeChanged(mode uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Mode = mode
	m.Events = append(m.Events, "mode")
}

// SampleAvailable implements Publisher.
func (m *Memory) SampleAvailable(mode uint8, raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(raw))
	copy(cp, raw)
	m.Samples[mode] = cp
	m.Events = append(m.Events, "sample")
}

// Diagnostic implements Publisher.
func (m *Memory) Diagnostic(lastError string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = lastError
	m.Events = append(m.Events, "diagnostic")
}

// LastSample returns the most recently recorded raw sample for mode.
func (m *Memory) LastSample(mode uint8) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Samples[mode]
}
