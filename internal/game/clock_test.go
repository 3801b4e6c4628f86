package game

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestMultiplierAt(t *testing.T) {
	tests := []struct {
		name    string
		elapsed float64
		want    float64
	}{
		{"start of flight", 0, 1.00},
		{"negative elapsed clamps", -1, 1.00},
		{"one second", 1, 1.08},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MultiplierAt(tt.elapsed); got != tt.want {
				t.Errorf("MultiplierAt(%v) = %v, want %v", tt.elapsed, got, tt.want)
			}
		})
	}
}

func TestMultiplierAt_Monotonic(t *testing.T) {
	prev := 0.0
	for i := 0; i <= 600; i++ {
		elapsed := float64(i) / 10
		m := MultiplierAt(elapsed)
		if m < prev {
			t.Fatalf("multiplier decreased: %v at t=%v after %v", m, elapsed, prev)
		}
		prev = m
	}
}

func TestMultiplierAt_CrossesCrashPoint(t *testing.T) {
	// A 2.13x crash point is reached around ln(2.13)/0.08 seconds in.
	crashPoint := 2.13

	if m := MultiplierAt(9.3); m >= crashPoint {
		t.Errorf("MultiplierAt(9.3) = %v, expected below %v", m, crashPoint)
	}
	if m := MultiplierAt(9.5); m < crashPoint {
		t.Errorf("MultiplierAt(9.5) = %v, expected at or above %v", m, crashPoint)
	}
}

func TestMultiplierClock_CrashFiresOnce(t *testing.T) {
	clock := NewMultiplierClock(5 * time.Millisecond)

	var crashes int32
	done := make(chan struct{})

	// Start time far enough in the past that the very first tick is past
	// the crash point.
	clock.Start(time.Now().Add(-30*time.Second), 2.00,
		func(float64) {},
		func(cp float64) {
			if cp != 2.00 {
				t.Errorf("crash callback got %v, want 2.00", cp)
			}
			if atomic.AddInt32(&crashes, 1) == 1 {
				close(done)
			}
		})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("crash callback never fired")
	}

	// Give a racing second tick time to misfire if it could.
	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&crashes); n != 1 {
		t.Errorf("crash fired %d times, want exactly 1", n)
	}
}

func TestMultiplierClock_TicksBelowCrashPoint(t *testing.T) {
	clock := NewMultiplierClock(5 * time.Millisecond)
	defer clock.Stop()

	ticks := make(chan float64, 64)
	clock.Start(time.Now(), 120.00,
		func(m float64) {
			select {
			case ticks <- m:
			default:
			}
		},
		func(float64) {
			t.Error("crash fired while far below the crash point")
		})

	select {
	case m := <-ticks:
		if m < 1.00 {
			t.Errorf("tick multiplier %v below 1.00", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tick received")
	}
}

func TestMultiplierClock_StopCancelsCrash(t *testing.T) {
	clock := NewMultiplierClock(50 * time.Millisecond)

	clock.Start(time.Now().Add(-30*time.Second), 2.00,
		func(float64) {},
		func(float64) {
			t.Error("crash fired after Stop")
		})
	clock.Stop()

	time.Sleep(150 * time.Millisecond)
}
