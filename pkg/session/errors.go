package session

import "errors"

// Sentinel errors returned to Publisher Adapter callers, per spec.md
// §4.5 and §7's "value-range errors reported to caller, no state
// change" rule.
var (
	ErrModeOutOfRange  = errors.New("session: mode index out of range")
	ErrNotReady        = errors.New("session: not ready")
	ErrPayloadTooLarge = errors.New("session: write payload too large")
	ErrClosed          = errors.New("session: closed")
)
