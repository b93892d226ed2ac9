package control

import (
	"math"

	"github.com/blackknights-robotics/motioncore/internal/timeutil"
)

// SlewRateLimiter bounds how fast a value may change per second.
type SlewRateLimiter struct {
	clock        timeutil.Monotonic
	positiveRate float64
	negativeRate float64
	prevValue    float64
	prevTime     float64
}

// NewSlewRateLimiter returns a symmetric limiter starting at zero.
func NewSlewRateLimiter(clock timeutil.Monotonic, rate float64) *SlewRateLimiter {
	return NewAsymmetricSlewRateLimiter(clock, rate, -rate, 0)
}

// NewAsymmetricSlewRateLimiter returns a limiter with separate rising and
// falling limits. negativeRate must be <= 0.
func NewAsymmetricSlewRateLimiter(clock timeutil.Monotonic, positiveRate, negativeRate, initial float64) *SlewRateLimiter {
	return &SlewRateLimiter{
		clock:        clock,
		positiveRate: positiveRate,
		negativeRate: negativeRate,
		prevValue:    initial,
		prevTime:     clock.Seconds(),
	}
}

// SetRate replaces the symmetric limit.
func (l *SlewRateLimiter) SetRate(rate float64) {
	l.positiveRate, l.negativeRate = rate, -rate
}

// Calculate moves toward input by at most the allowed change since the last
// call and returns the new value.
func (l *SlewRateLimiter) Calculate(input float64) float64 {
	now := l.clock.Seconds()
	elapsed := now - l.prevTime
	l.prevValue += clamp(input-l.prevValue, l.negativeRate*elapsed, l.positiveRate*elapsed)
	l.prevTime = now
	return l.prevValue
}

// Value returns the last output.
func (l *SlewRateLimiter) Value() float64 { return l.prevValue }

// Reset jumps to value without limiting.
func (l *SlewRateLimiter) Reset(value float64) {
	l.prevValue = value
	l.prevTime = l.clock.Seconds()
}

// StepTowards moves current toward target by at most step.
func StepTowards(current, target, step float64) float64 {
	switch {
	case math.Abs(current-target) <= step:
		return target
	case target < current:
		return current - step
	default:
		return current + step
	}
}

// ApplyDeadband zeroes |v| ≤ deadband and rescales the rest so the output
// still spans [-1, 1].
func ApplyDeadband(v, deadband float64) float64 {
	if math.Abs(v) <= deadband {
		return 0
	}
	if deadband >= 1 {
		return 0
	}
	return (v - Sign(v)*deadband) / (1 - deadband)
}

// StepTowardsCircular moves the angle current toward target by at most step
// radians, taking the short way around. The result is in [0, 2π).
func StepTowardsCircular(current, target, step float64) float64 {
	current = WrapPositive(current)
	target = WrapPositive(target)

	dir := Sign(target - current)
	diff := math.Abs(current - target)

	switch {
	case diff <= step:
		return target
	case diff > math.Pi:
		if current+2*math.Pi-target < step || target+2*math.Pi-current < step {
			return target
		}
		return WrapPositive(current - dir*step)
	default:
		return current + dir*step
	}
}

// WrapPositive wraps an angle to [0, 2π).
func WrapPositive(a float64) float64 {
	const twoPi = 2 * math.Pi
	a = math.Mod(a, twoPi)
	if a < 0 {
		a += twoPi
	}
	if a >= twoPi {
		a = 0
	}
	return a
}
