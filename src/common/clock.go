package common

import (
	"sort"
	"sync"
	"time"
)

// Clock abstracts time for the node runtime. Probe ticks, suspicion timers,
// and the reconciliation timer are all scheduled through a Clock, which makes
// the failure-detection timing deterministic under a FakeClock in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the time once d has elapsed.
	After(d time.Duration) <-chan time.Time

	// AfterFunc schedules f to run once d has elapsed. The callback runs on
	// its own goroutine (RealClock) or on the goroutine calling Advance
	// (FakeClock); either way it must re-check state before acting.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a handle on a pending AfterFunc callback.
type Timer interface {
	// Stop cancels the callback if it has not fired yet and reports whether
	// it was still pending.
	Stop() bool
}

// RealClock delegates to the time package.
type RealClock struct{}

// NewRealClock returns a Clock backed by the time package.
func NewRealClock() *RealClock {
	return &RealClock{}
}

// Now implements the Clock interface.
func (RealClock) Now() time.Time {
	return time.Now()
}

// After implements the Clock interface.
func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// AfterFunc implements the Clock interface.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// FakeClock is a manually-advanced Clock for tests. Nothing fires until
// Advance is called; Advance fires pending waiters in chronological order.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	clock *FakeClock
	at    time.Time
	seq   int
	ch    chan time.Time
	f     func()
	fired bool
}

// NewFakeClock returns a FakeClock starting at the given time.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now implements the Clock interface.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After implements the Clock interface.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := &fakeWaiter{
		clock: c,
		at:    c.now.Add(d),
		seq:   len(c.waiters),
		ch:    make(chan time.Time, 1),
	}
	c.waiters = append(c.waiters, w)

	return w.ch
}

// AfterFunc implements the Clock interface.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := &fakeWaiter{
		clock: c,
		at:    c.now.Add(d),
		seq:   len(c.waiters),
		f:     f,
	}
	c.waiters = append(c.waiters, w)

	return w
}

// Stop implements the Timer interface.
func (w *fakeWaiter) Stop() bool {
	w.clock.mu.Lock()
	defer w.clock.mu.Unlock()

	if w.fired {
		return false
	}

	w.fired = true
	w.clock.remove(w)

	return true
}

// Advance moves the clock forward by d, firing due waiters in chronological
// order. Callbacks run on the calling goroutine, outside the clock's lock, so
// they are free to schedule new waiters.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)

	for {
		w := c.nextDue(target)
		if w == nil {
			break
		}

		if w.at.After(c.now) {
			c.now = w.at
		}

		w.fired = true
		c.remove(w)

		if w.ch != nil {
			w.ch <- c.now
			continue
		}

		// Run the callback without holding the lock.
		c.mu.Unlock()
		w.f()
		c.mu.Lock()
	}

	c.now = target
	c.mu.Unlock()
}

// nextDue returns the earliest pending waiter due at or before target, with
// insertion order as the tie-break. Must be called with the lock held.
func (c *FakeClock) nextDue(target time.Time) *fakeWaiter {
	var due []*fakeWaiter
	for _, w := range c.waiters {
		if !w.at.After(target) {
			due = append(due, w)
		}
	}

	if len(due) == 0 {
		return nil
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})

	return due[0]
}

func (c *FakeClock) remove(w *fakeWaiter) {
	for i, o := range c.waiters {
		if o == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}
