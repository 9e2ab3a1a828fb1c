package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Side identifies one of the two countdowns.
type Side int

const (
	White Side = iota
	Black
)

func (s Side) String() string {
	if s == Black {
		return "black"
	}
	return "white"
}

// Times is a point-in-time copy of both countdowns.
type Times struct {
	White   time.Duration
	Black   time.Duration
	Running *Side
}

// Clock holds two countdowns of which at most one is armed.
//
// Clock is not safe for concurrent use. The owner reads C() from its own loop
// and calls Tick with the received value; callbacks run on that same loop.
type Clock struct {
	clk  clockwork.Clock
	tick time.Duration

	remaining [2]time.Duration
	armed     bool
	side      Side
	ticker    clockwork.Ticker
	lastTick  time.Time

	onTick   func(Side, time.Duration)
	onExpire func(Side)
}

// New builds a disarmed clock. tick defaults to one second.
func New(clk clockwork.Clock, tick time.Duration, onTick func(Side, time.Duration), onExpire func(Side)) *Clock {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if tick <= 0 {
		tick = time.Second
	}
	return &Clock{clk: clk, tick: tick, onTick: onTick, onExpire: onExpire}
}

// Reset disarms and sets both sides to initial.
func (c *Clock) Reset(initial time.Duration) {
	c.Stop()
	if initial < 0 {
		initial = 0
	}
	c.remaining[White] = initial
	c.remaining[Black] = initial
}

// Start arms side, disarming whichever side was armed before.
// A side with no time left is not armed.
func (c *Clock) Start(side Side) {
	c.Stop()
	if c.remaining[side] <= 0 {
		return
	}
	c.side = side
	c.armed = true
	c.lastTick = c.clk.Now()
	c.ticker = c.clk.NewTicker(c.tick)
}

// Stop disarms the clock after charging the armed side for the time used
// since its last tick, clamped at zero. Stop never fires onExpire; the owner
// checks Remaining when a side may have flagged between ticks.
func (c *Clock) Stop() {
	if c.armed {
		if elapsed := c.clk.Now().Sub(c.lastTick); elapsed > 0 {
			c.remaining[c.side] = max(c.remaining[c.side]-elapsed, 0)
		}
	}
	if c.ticker != nil {
		stopAndDrain(c.ticker)
		c.ticker = nil
	}
	c.armed = false
}

// Remaining is the time left for side as of the last tick or Stop.
func (c *Clock) Remaining(side Side) time.Duration {
	return c.remaining[side]
}

func (c *Clock) Snapshot() Times {
	t := Times{White: c.remaining[White], Black: c.remaining[Black]}
	if c.armed {
		s := c.side
		t.Running = &s
	}
	return t
}

// C returns the channel of the armed ticker, or nil when disarmed so that a
// select on it blocks forever.
func (c *Clock) C() <-chan time.Time {
	if !c.armed || c.ticker == nil {
		return nil
	}
	return c.ticker.Chan()
}

// Tick charges the time elapsed since the previous tick to the armed side.
// When that side reaches zero the clock disarms and onExpire fires once.
func (c *Clock) Tick(now time.Time) {
	if !c.armed {
		return
	}
	elapsed := now.Sub(c.lastTick)
	if elapsed <= 0 {
		return
	}
	c.lastTick = now

	side := c.side
	left := c.remaining[side] - elapsed
	if left < 0 {
		left = 0
	}
	c.remaining[side] = left
	if c.onTick != nil {
		c.onTick(side, left)
	}
	if left > 0 {
		return
	}
	c.Stop()
	if c.onExpire != nil {
		c.onExpire(side)
	}
}

func stopAndDrain(t clockwork.Ticker) {
	t.Stop()
	select {
	case <-t.Chan():
	default:
	}
}
