package clock

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func advanceAndTick(t *testing.T, fc *clockwork.FakeClock, c *Clock, d time.Duration) {
	t.Helper()
	ch := c.C()
	if ch == nil {
		t.Fatalf("clock not armed")
	}
	fc.Advance(d)
	select {
	case now := <-ch:
		c.Tick(now)
	case <-time.After(time.Second):
		t.Fatalf("no tick after advancing %s", d)
	}
}

func TestStartArmsOnlyOneSide(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := New(fc, time.Second, nil, nil)
	c.Reset(10 * time.Second)

	if c.Snapshot().Running != nil {
		t.Fatalf("fresh clock must be disarmed")
	}
	c.Start(White)
	c.Start(Black)
	if run := c.Snapshot().Running; run == nil || *run != Black {
		t.Fatalf("expected black armed, got %v", run)
	}

	advanceAndTick(t, fc, c, time.Second)
	if got := c.Remaining(Black); got != 9*time.Second {
		t.Fatalf("black remaining = %s", got)
	}
	if got := c.Remaining(White); got != 10*time.Second {
		t.Fatalf("white must not move while black is armed, got %s", got)
	}
}

func TestStopKeepsRemaining(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := New(fc, time.Second, nil, nil)
	c.Reset(5 * time.Second)
	c.Start(White)
	advanceAndTick(t, fc, c, time.Second)
	c.Stop()

	if c.C() != nil {
		t.Fatalf("disarmed clock must expose a nil channel")
	}
	fc.Advance(3 * time.Second)
	if got := c.Remaining(White); got != 4*time.Second {
		t.Fatalf("remaining changed after stop: %s", got)
	}
	snap := c.Snapshot()
	if snap.Running != nil {
		t.Fatalf("snapshot reports running side after stop")
	}
}

func TestExpireFiresOnce(t *testing.T) {
	fc := clockwork.NewFakeClock()
	var ticks []time.Duration
	var expired []Side
	c := New(fc, time.Second,
		func(_ Side, left time.Duration) { ticks = append(ticks, left) },
		func(s Side) { expired = append(expired, s) },
	)
	c.Reset(2 * time.Second)
	c.Start(White)

	advanceAndTick(t, fc, c, time.Second)
	advanceAndTick(t, fc, c, time.Second)

	if len(expired) != 1 || expired[0] != White {
		t.Fatalf("expected a single white expiry, got %v", expired)
	}
	if len(ticks) != 2 || ticks[1] != 0 {
		t.Fatalf("unexpected ticks: %v", ticks)
	}
	if c.Snapshot().Running != nil {
		t.Fatalf("clock must disarm on expiry")
	}
	// a late tick value is ignored once disarmed
	c.Tick(fc.Now().Add(time.Second))
	if len(expired) != 1 {
		t.Fatalf("expiry fired twice")
	}
}

func TestStartWithoutTimeDoesNotArm(t *testing.T) {
	c := New(clockwork.NewFakeClock(), time.Second, nil, nil)
	c.Reset(0)
	c.Start(White)
	if c.Snapshot().Running != nil {
		t.Fatalf("side with zero time must not arm")
	}
}

func TestSideNames(t *testing.T) {
	if White.String() != "white" || Black.String() != "black" {
		t.Fatalf("unexpected names %q %q", White, Black)
	}
}

func TestSwitchChargesPartialTick(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := New(fc, time.Second, nil, nil)
	c.Reset(10 * time.Second)
	c.Start(White)

	fc.Advance(900 * time.Millisecond)
	c.Start(Black)
	if got := c.Remaining(White); got != 10*time.Second-900*time.Millisecond {
		t.Fatalf("white remaining = %s, want 9.1s", got)
	}
	if got := c.Remaining(Black); got != 10*time.Second {
		t.Fatalf("black charged before moving: %s", got)
	}

	// a full tick plus a partial one
	advanceAndTick(t, fc, c, time.Second)
	fc.Advance(900 * time.Millisecond)
	c.Stop()
	if got := c.Remaining(Black); got != 10*time.Second-1900*time.Millisecond {
		t.Fatalf("black remaining = %s, want 8.1s", got)
	}
	fc.Advance(time.Minute)
	c.Stop()
	if c.Remaining(Black) != 10*time.Second-1900*time.Millisecond || c.Remaining(White) != 10*time.Second-900*time.Millisecond {
		t.Fatalf("stopped clock was charged again")
	}
}

func TestStopClampsAtZero(t *testing.T) {
	fc := clockwork.NewFakeClock()
	var expired []Side
	c := New(fc, time.Minute, nil, func(s Side) { expired = append(expired, s) })
	c.Reset(500 * time.Millisecond)
	c.Start(White)
	fc.Advance(2 * time.Second)
	c.Start(Black)

	if got := c.Remaining(White); got != 0 {
		t.Fatalf("white remaining = %s, want 0", got)
	}
	if len(expired) != 0 {
		t.Fatalf("Stop must not fire expiry, got %v", expired)
	}
	if run := c.Snapshot().Running; run == nil || *run != Black {
		t.Fatalf("black should be armed, got %v", run)
	}
}
