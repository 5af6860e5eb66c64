package scheduler

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a deterministic Scheduler for tests: nothing fires on
// its own. Call Advance to move the virtual clock forward and run any
// actions whose due time falls within the advance.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
	nextID int
}

type fakeTimer struct {
	id        int
	fireAt    time.Duration
	periodic  bool
	period    time.Duration
	action    func() bool
	cancelled bool
}

// NewFakeClock returns a FakeClock starting at virtual time zero.
func NewFakeClock() *FakeClock {
	return &FakeClock{}
}

// ScheduleOnce implements Scheduler.
func (c *FakeClock) ScheduleOnce(delay time.Duration, action func()) CancelFunc {
	return c.schedule(delay, false, 0, func() bool {
		action()
		return false
	})
}

// SchedulePeriodic implements Scheduler.
func (c *FakeClock) SchedulePeriodic(initialOffset, period time.Duration, action func() bool) CancelFunc {
	return c.schedule(initialOffset, true, period, action)
}

func (c *FakeClock) schedule(delay time.Duration, periodic bool, period time.Duration, action func() bool) CancelFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	t := &fakeTimer{
		id:       c.nextID,
		fireAt:   c.now + delay,
		periodic: periodic,
		period:   period,
		action:   action,
	}
	c.timers = append(c.timers, t)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		t.cancelled = true
	}
}

// Now returns the current virtual time.
func (c *FakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the virtual clock forward by d, running every due
// action in fire-time order (ties broken by schedule order). The
// virtual clock is set to each action's fire time before it runs, and
// periodic actions that return true are rescheduled one period after
// that time, so every period that elapses within one Advance fires,
// in order.
func (c *FakeClock) Advance(d time.Duration) {
	target := c.now + d
	for {
		due := c.dueTimer(target)
		if due == nil {
			break
		}
		c.mu.Lock()
		c.now = due.fireAt
		c.mu.Unlock()

		restart := due.action()

		c.mu.Lock()
		if due.periodic && restart && !due.cancelled {
			due.fireAt += due.period
		} else {
			c.removeTimer(due.id)
		}
		c.mu.Unlock()
	}
	c.mu.Lock()
	c.now = target
	c.mu.Unlock()
}

func (c *FakeClock) dueTimer(target time.Duration) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	candidates := make([]*fakeTimer, 0, len(c.timers))
	for _, t := range c.timers {
		if !t.cancelled && t.fireAt <= target {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].fireAt != candidates[j].fireAt {
			return candidates[i].fireAt < candidates[j].fireAt
		}
		return candidates[i].id < candidates[j].id
	})
	return candidates[0]
}

func (c *FakeClock) removeTimer(id int) {
	for i, t := range c.timers {
		if t.id == id {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return
		}
	}
}
