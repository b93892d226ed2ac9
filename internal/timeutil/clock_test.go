package timeutil

import (
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	if now.Before(before) {
		t.Errorf("Now() = %v, before %v", now, before)
	}
	if d := clock.Since(time.Now().Add(-time.Second)); d < time.Second {
		t.Errorf("Since() = %v, want >= 1s", d)
	}

	ticker := clock.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("ticker did not fire")
	}
}

func TestMockClockAdvanceAndSet(t *testing.T) {
	start := time.Unix(1000, 0)
	clock := NewMockClock(start)
	if !clock.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", clock.Now(), start)
	}

	clock.Advance(20 * time.Millisecond)
	if got := clock.Since(start); got != 20*time.Millisecond {
		t.Errorf("Since(start) = %v, want 20ms", got)
	}

	clock.Set(start.Add(time.Hour))
	if got := clock.Since(start); got != time.Hour {
		t.Errorf("after Set, Since(start) = %v, want 1h", got)
	}
}

func receiveTick(t *testing.T, tk Ticker) (time.Time, bool) {
	t.Helper()
	select {
	case now := <-tk.C():
		return now, true
	default:
		return time.Time{}, false
	}
}

func TestMockTickerFiresWhenDue(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	tk := clock.NewTicker(20 * time.Millisecond)

	clock.Advance(10 * time.Millisecond)
	if _, ok := receiveTick(t, tk); ok {
		t.Fatal("ticker fired before its period")
	}
	clock.Advance(10 * time.Millisecond)
	now, ok := receiveTick(t, tk)
	if !ok {
		t.Fatal("ticker did not fire at its period")
	}
	if want := time.Unix(0, 0).Add(20 * time.Millisecond); !now.Equal(want) {
		t.Errorf("tick time = %v, want %v", now, want)
	}
}

func TestMockTickerDropsWhenFull(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	tk := clock.NewTicker(20 * time.Millisecond)

	clock.Advance(20 * time.Millisecond)
	clock.Advance(20 * time.Millisecond)
	if _, ok := receiveTick(t, tk); !ok {
		t.Fatal("expected one buffered tick")
	}
	if _, ok := receiveTick(t, tk); ok {
		t.Fatal("a second tick should have been dropped")
	}
}

func TestMockTickerStopAndReset(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	tk := clock.NewTicker(20 * time.Millisecond)

	tk.Stop()
	clock.Advance(time.Second)
	if _, ok := receiveTick(t, tk); ok {
		t.Fatal("stopped ticker fired")
	}

	tk.Reset(50 * time.Millisecond)
	clock.Advance(10 * time.Millisecond)
	if _, ok := receiveTick(t, tk); ok {
		t.Fatal("reset ticker fired early")
	}
	clock.Advance(50 * time.Millisecond)
	if _, ok := receiveTick(t, tk); !ok {
		t.Fatal("reset ticker did not fire")
	}
}

func TestMonotonicCountsFromConstruction(t *testing.T) {
	clock := NewMockClock(time.Unix(500, 0))
	clock.Advance(time.Minute)
	mono := NewMonotonic(clock)
	if got := mono.Seconds(); got != 0 {
		t.Errorf("Seconds() at construction = %v, want 0", got)
	}
	clock.Advance(1500 * time.Millisecond)
	if got := mono.Seconds(); got != 1.5 {
		t.Errorf("Seconds() = %v, want 1.5", got)
	}
}
