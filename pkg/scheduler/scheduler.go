// Package scheduler abstracts the delayed and periodic actions the
// protocol engine drives (ACK send, baud switch, keep-alive), per
// spec.md §4.6 and §9's "Scheduler capability" design note. Separating
// the capability from its real-clock implementation lets tests drive
// time deterministically instead of sleeping.
package scheduler

import "time"

// CancelFunc stops a scheduled action. For a periodic schedule it is
// synchronous: it returns only after any in-flight invocation of the
// action has finished. RealTime's one-shot CancelFunc only stops the
// timer; it does not wait for an action that has already started.
type CancelFunc func()

// Scheduler schedules one-shot and periodic actions.
type Scheduler interface {
	// ScheduleOnce runs action once after delay elapses.
	ScheduleOnce(delay time.Duration, action func()) CancelFunc

	// SchedulePeriodic runs action every period, starting after an
	// initial offset elapses. action returns false to stop the
	// schedule itself (the "no-restart verdict" of spec.md §4.6).
	SchedulePeriodic(initialOffset, period time.Duration, action func() bool) CancelFunc
}
