package auction

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ExpiryFunc receives the activation token of the countdown that ran out.
type ExpiryFunc func(activation uint64)

// Clock is the countdown for the active item. Every Start, Reset and Resume
// opens a new activation and cancels the pending expiry of the previous one,
// so each activation fires at most once.
type Clock struct {
	clock    clockwork.Clock
	onExpire ExpiryFunc

	mu         sync.Mutex
	activation uint64
	running    bool
	deadline   time.Time
	remaining  time.Duration
	stop       chan struct{}
	timer      clockwork.Timer
}

func NewClock(clk clockwork.Clock, onExpire ExpiryFunc) *Clock {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Clock{clock: clk, onExpire: onExpire}
}

func (c *Clock) Now() time.Time {
	return c.clock.Now()
}

func (c *Clock) Start(d time.Duration) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armLocked(d)
}

// Reset restarts the countdown at d. It is Start under another name so call
// sites read like the rule they implement.
func (c *Clock) Reset(d time.Duration) uint64 {
	return c.Start(d)
}

// Pause freezes the remaining time. It returns false if the clock was not running.
func (c *Clock) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return false
	}
	left := c.deadline.Sub(c.clock.Now())
	if left < 0 {
		left = 0
	}
	c.disarmLocked()
	c.activation++
	c.running = false
	c.remaining = left
	return true
}

// Resume continues a paused countdown with whatever was left.
func (c *Clock) Resume() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return c.activation, false
	}
	return c.armLocked(c.remaining), true
}

// Stop cancels any pending expiry without firing it.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disarmLocked()
	c.activation++
	c.running = false
	c.remaining = 0
}

func (c *Clock) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return c.remaining
	}
	left := c.deadline.Sub(c.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Clock) Activation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activation
}

func (c *Clock) armLocked(d time.Duration) uint64 {
	c.disarmLocked()
	if d < 0 {
		d = 0
	}
	c.activation++
	gen := c.activation
	c.running = true
	c.remaining = d
	c.deadline = c.clock.Now().Add(d)
	stop := make(chan struct{})
	timer := c.clock.NewTimer(d)
	c.stop = stop
	c.timer = timer
	go c.wait(gen, timer, stop)
	return gen
}

func (c *Clock) disarmLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	if c.timer != nil {
		stopAndDrain(c.timer)
		c.timer = nil
	}
}

func (c *Clock) wait(gen uint64, timer clockwork.Timer, stop <-chan struct{}) {
	select {
	case <-timer.Chan():
		c.fire(gen)
	case <-stop:
	}
}

func (c *Clock) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.activation || !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.remaining = 0
	c.stop = nil
	c.timer = nil
	cb := c.onExpire
	c.mu.Unlock()
	if cb != nil {
		cb(gen)
	}
}

func stopAndDrain(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
