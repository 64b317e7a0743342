package session

import (
	"math"
	"time"
)

const (
	minInterval = 100 * time.Millisecond
	maxInterval = 10 * time.Second
)

// Integrator accumulates distance from speed over wall time. The machine
// gates it: Reset on session start, Integrate only while active.
type Integrator struct {
	meters float64
	last   time.Time
}

func (i *Integrator) Reset(now time.Time) {
	i.meters = 0
	i.last = now
}

// Integrate adds speed x dt since the previous call when counting is true and
// the interval is plausible. The reference time always advances, so a skipped
// interval is lost rather than folded into the next one.
func (i *Integrator) Integrate(speedKmh float64, now time.Time, counting bool) uint32 {
	prev := i.last
	if now.After(prev) || prev.IsZero() {
		i.last = now
	}
	if !counting || prev.IsZero() {
		return i.Total()
	}

	dt := now.Sub(prev)
	if dt < minInterval || dt > maxInterval {
		return i.Total()
	}
	if speedKmh > 0 {
		i.meters += speedKmh / 3.6 * dt.Seconds()
	}
	return i.Total()
}

// Total is the accumulated distance in whole meters.
func (i *Integrator) Total() uint32 {
	return uint32(math.Floor(i.meters))
}

// Meters is the unrounded accumulated distance.
func (i *Integrator) Meters() float64 {
	return i.meters
}
