package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock. It is safe for concurrent use, but
// callbacks must not call Advance.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	waiters []*waiter
}

type waiter struct {
	deadline time.Time
	seq      uint64
	fn       func()
	stopped  bool
	fired    bool
}

// NewFake returns a Fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Fake) AfterFunc(d time.Duration, f func()) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	c.seq++
	w := &waiter{deadline: c.now.Add(d), seq: c.seq, fn: f}
	c.waiters = append(c.waiters, w)
	return &Timer{stop: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if w.stopped || w.fired {
			return false
		}
		w.stopped = true
		return true
	}}
}

// Advance moves the clock forward by d, firing due callbacks one at a time.
// Timers registered by a callback fire within the same Advance if their
// deadline is still inside the window.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.popDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.deadline
		next.fired = true
		c.mu.Unlock()

		next.fn()
	}
}

// popDueLocked removes and returns the earliest live waiter due at or
// before target. Ties fire in registration order.
func (c *Fake) popDueLocked(target time.Time) *waiter {
	best := -1
	live := c.waiters[:0]
	for _, w := range c.waiters {
		if w.stopped {
			continue
		}
		live = append(live, w)
	}
	c.waiters = live
	for i, w := range c.waiters {
		if w.deadline.After(target) {
			continue
		}
		if best < 0 || w.deadline.Before(c.waiters[best].deadline) ||
			(w.deadline.Equal(c.waiters[best].deadline) && w.seq < c.waiters[best].seq) {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	w := c.waiters[best]
	c.waiters = append(c.waiters[:best], c.waiters[best+1:]...)
	return w
}

// Pending reports how many callbacks are scheduled and not stopped.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.waiters {
		if !w.stopped && !w.fired {
			n++
		}
	}
	return n
}
