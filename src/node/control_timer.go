package node

import (
	"time"

	"github.com/gossipnetworks/gossamer/src/common"
)

type timerFactory func(time.Duration) <-chan time.Time

// ControlTimer drives the periodic routines of the node. The background
// routines reset it after every tick, so the period stretches while a tick is
// being processed instead of ticks piling up.
type ControlTimer struct {
	timerFactory timerFactory
	tickCh       chan struct{}      //sends a signal to listening process
	resetCh      chan time.Duration //receives instruction to reset the timer
	stopCh       chan struct{}      //receives instruction to stop the timer
	shutdownCh   chan struct{}      //receives instruction to exit Run loop
	set          bool
}

// NewControlTimer ...
func NewControlTimer(timerFactory timerFactory) *ControlTimer {
	return &ControlTimer{
		timerFactory: timerFactory,
		tickCh:       make(chan struct{}),
		resetCh:      make(chan time.Duration),
		stopCh:       make(chan struct{}),
		shutdownCh:   make(chan struct{}),
	}
}

// NewClockControlTimer returns a ControlTimer scheduled through the given
// Clock, so tests can drive it deterministically with a FakeClock.
func NewClockControlTimer(clock common.Clock) *ControlTimer {
	factory := func(d time.Duration) <-chan time.Time {
		if d == 0 {
			return nil
		}
		return clock.After(d)
	}
	return NewControlTimer(factory)
}

// Run ...
func (c *ControlTimer) Run(init time.Duration) {

	setTimer := func(t time.Duration) <-chan time.Time {
		c.set = true
		return c.timerFactory(t)
	}

	timer := setTimer(init)
	for {
		select {
		case <-timer:
			c.tickCh <- struct{}{}
			c.set = false
		case t := <-c.resetCh:
			timer = setTimer(t)
		case <-c.stopCh:
			timer = nil
			c.set = false
		case <-c.shutdownCh:
			c.set = false
			return
		}
	}
}

// Shutdown ...
func (c *ControlTimer) Shutdown() {
	close(c.shutdownCh)
}
