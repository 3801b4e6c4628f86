package game

import (
	"math"
	"sync"
	"time"
)

const TickInterval = 100 * time.Millisecond

// MultiplierAt computes the multiplier after elapsed seconds of flight,
// truncated to two decimals. At t=0 it is exactly 1.00 and it never
// decreases with t.
func MultiplierAt(elapsed float64) float64 {
	if elapsed < 0 {
		return 1.00
	}
	m := math.Pow(Euler, GrowthRate*elapsed)
	return math.Floor(m*100) / 100
}

// MultiplierClock drives the active phase: it recomputes the multiplier on a
// fixed cadence and fires the crash callback exactly once when the
// multiplier reaches the crash point. Stop cancels the ticker; a stopped
// clock never fires again.
type MultiplierClock struct {
	interval time.Duration

	mu    sync.Mutex
	stop  chan struct{}
	fired bool
}

func NewMultiplierClock(interval time.Duration) *MultiplierClock {
	if interval <= 0 {
		interval = TickInterval
	}
	return &MultiplierClock{interval: interval}
}

// Start begins ticking for one flight. onTick receives each computed
// multiplier below the crash point; onCrash receives the crash point itself,
// exactly once, at the first tick where the curve reaches it. Start replaces
// any previous flight.
func (c *MultiplierClock) Start(startTime time.Time, crashPoint float64, onTick func(multiplier float64), onCrash func(crashPoint float64)) {
	c.mu.Lock()
	if c.stop != nil {
		close(c.stop)
	}
	stop := make(chan struct{})
	c.stop = stop
	c.fired = false
	c.mu.Unlock()

	go c.run(stop, startTime, crashPoint, onTick, onCrash)
}

// Stop cancels the current flight. Safe to call multiple times and
// concurrently with a tick; the crash callback never fires after Stop wins
// the race.
func (c *MultiplierClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *MultiplierClock) run(stop chan struct{}, startTime time.Time, crashPoint float64, onTick func(float64), onCrash func(float64)) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			elapsed := now.Sub(startTime).Seconds()
			m := MultiplierAt(elapsed)

			if m >= crashPoint {
				if c.tryFire(stop) {
					onCrash(crashPoint)
				}
				return
			}
			onTick(m)
		}
	}
}

// tryFire claims the single crash trigger for this flight. It loses to a
// concurrent Stop or an already-fired flight.
func (c *MultiplierClock) tryFire(stop chan struct{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fired || c.stop != stop {
		return false
	}
	c.fired = true
	c.stop = nil
	close(stop)
	return true
}
