package ratelimit

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(t *testing.T, max int, window, cooldown time.Duration) (*ActionRateLimiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewActionRateLimiter(max, window, cooldown)
	rl.now = clock.now
	t.Cleanup(rl.Close)
	return rl, clock
}

func TestActionRateLimiter_AllowsWithinWindow(t *testing.T) {
	rl, _ := newTestLimiter(t, 3, 5*time.Second, 10*time.Second)

	for i := 0; i < 3; i++ {
		if !rl.Allow("u1") {
			t.Fatalf("action %d should be allowed", i+1)
		}
	}
	if rl.Allow("u1") {
		t.Fatal("4th action should be rejected")
	}
	if !rl.Allow("u2") {
		t.Error("other keys must not be affected")
	}
}

func TestActionRateLimiter_Cooldown(t *testing.T) {
	rl, clock := newTestLimiter(t, 1, 5*time.Second, 10*time.Second)

	rl.Allow("u1")
	if rl.Allow("u1") {
		t.Fatal("second action should trigger cooldown")
	}
	if got := rl.CooldownSeconds("u1"); got != 11 {
		t.Errorf("expected 11 cooldown seconds, got %d", got)
	}

	clock.advance(9 * time.Second)
	if rl.Allow("u1") {
		t.Error("still in cooldown")
	}

	clock.advance(2 * time.Second)
	if !rl.Allow("u1") {
		t.Error("cooldown finished, action should be allowed")
	}
	if got := rl.CooldownSeconds("u1"); got != 0 {
		t.Errorf("expected no cooldown, got %d", got)
	}
}

func TestActionRateLimiter_WindowReset(t *testing.T) {
	rl, clock := newTestLimiter(t, 2, 5*time.Second, 10*time.Second)

	rl.Allow("u1")
	rl.Allow("u1")
	clock.advance(6 * time.Second)
	if !rl.Allow("u1") {
		t.Error("new window should allow again")
	}
}

func TestActionRateLimiter_Cleanup(t *testing.T) {
	rl, clock := newTestLimiter(t, 2, 5*time.Second, 10*time.Second)

	rl.Allow("u1")
	clock.advance(time.Minute)
	rl.cleanup()

	rl.mu.Lock()
	n := len(rl.buckets)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("expected buckets to be cleaned, got %d", n)
	}
}
