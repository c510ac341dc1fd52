package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	start := time.Now().Add(-time.Second)
	if d := clock.Since(start); d < time.Second {
		t.Errorf("Since returned %v, expected at least 1s", d)
	}
}

func TestMockClock_AdvanceAndSince(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(base)

	if !clock.Now().Equal(base) {
		t.Fatalf("Now = %v, want %v", clock.Now(), base)
	}

	clock.Advance(5 * time.Millisecond)
	if got := clock.Since(base); got != 5*time.Millisecond {
		t.Errorf("Since = %v, want 5ms", got)
	}
}

func TestMockClock_SleepRecordsAndAdvances(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(base)

	clock.Sleep(time.Millisecond)
	clock.Sleep(2 * time.Millisecond)

	sleeps := clock.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != time.Millisecond || sleeps[1] != 2*time.Millisecond {
		t.Errorf("Sleeps = %v, want [1ms 2ms]", sleeps)
	}
	if got := clock.Since(base); got != 3*time.Millisecond {
		t.Errorf("clock should advance by slept time, Since = %v", got)
	}
}
