// Package publisher defines the boundary between the protocol engine
// and whatever exposes sensor state to end users (spec.md §6's
// "Publisher interface" and §9's "abstract as a Publisher interface"
// design note). The engine never writes to an attribute surface or a
// store directly — it only calls this interface.
package publisher

import "github.com/ev3uart/sensor-engine/pkg/catalog"

// Publisher receives change notifications from a Session (spec.md
// §4.5, §6). Queries about current state are answered by the
// Session's own methods, not through this interface.
type Publisher interface {
	// Attach is called when the ACK timer first fires in a Session,
	// registering a handle for upstream readers. It is not called
	// again after a resync; the handle stays registered.
	Attach(sensorType uint8)

	// Detach revokes the published handle. It is called only when the
	// Session is torn down, not on a resync.
	Detach()

	// CatalogReady is called each time the ACK timer fires, with the
	// completed mode table, just before the SYS_ACK is sent and the
	// link moves to BaudSwitching.
	CatalogReady(modes []catalog.ModeInfo, numModes, numViewModes int)

	// ModeChanged is called for every accepted DATA frame with that
	// frame's mode index, which becomes current_mode, whether or not
	// the mode differs from the previous one.
	ModeChanged(mode uint8)

	// SampleAvailable is called whenever a mode's raw sample bytes
	// are refreshed by a DATA frame.
	SampleAvailable(mode uint8, raw []byte)

	// Diagnostic reports the reason for the most recent resync, per
	// spec.md §7's propagation policy ("reported as a diagnostic on
	// the next successful ACK").
	Diagnostic(lastError string)
}
