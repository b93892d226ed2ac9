package timeutil

import "time"

// Monotonic reports seconds on the clock shared by the control loop and
// sensor timestamps. It never goes backwards.
type Monotonic interface {
	Seconds() float64
}

// ClockSeconds adapts a Clock into a Monotonic counting from an epoch.
type ClockSeconds struct {
	clock Clock
	epoch time.Time
}

// NewMonotonic returns a Monotonic whose zero is the clock's current time.
func NewMonotonic(c Clock) *ClockSeconds {
	return &ClockSeconds{clock: c, epoch: c.Now()}
}

// Seconds returns the time elapsed since the epoch.
func (m *ClockSeconds) Seconds() float64 {
	return m.clock.Since(m.epoch).Seconds()
}
