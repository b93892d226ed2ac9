// Package control provides the feedback and shaping primitives used by the
// drivetrain and alignment controllers: PID, trapezoid motion profiles,
// profiled PID, slew rate limiting and motor feedforward.
package control

import (
	"math"

	"github.com/blackknights-robotics/motioncore/internal/geom"
)

// DefaultPeriod is the loop period assumed by controllers, in seconds.
const DefaultPeriod = 0.02

// PID is a discrete PID controller with optional continuous input.
// It is not safe for concurrent use.
type PID struct {
	kp, ki, kd float64
	period     float64

	iZone       float64
	minIntegral float64
	maxIntegral float64

	continuous bool
	minInput   float64
	maxInput   float64

	positionTolerance float64
	velocityTolerance float64

	setpoint      float64
	measurement   float64
	positionError float64
	prevError     float64
	velocityError float64
	totalError    float64

	haveSetpoint    bool
	haveMeasurement bool
}

// NewPID returns a controller with the given gains running at DefaultPeriod.
func NewPID(kp, ki, kd float64) *PID {
	return &PID{
		kp: kp, ki: ki, kd: kd,
		period:            DefaultPeriod,
		iZone:             math.Inf(1),
		minIntegral:       -1,
		maxIntegral:       1,
		positionTolerance: 0.05,
		velocityTolerance: math.Inf(1),
	}
}

// SetPID replaces all three gains.
func (c *PID) SetPID(kp, ki, kd float64) {
	c.kp, c.ki, c.kd = kp, ki, kd
}

// Gains returns kp, ki and kd.
func (c *PID) Gains() (kp, ki, kd float64) { return c.kp, c.ki, c.kd }

// Period returns the loop period in seconds.
func (c *PID) Period() float64 { return c.period }

// SetIZone sets the error magnitude above which the integrator is cleared.
func (c *PID) SetIZone(z float64) { c.iZone = z }

// SetIntegratorRange bounds the integral contribution to the output.
func (c *PID) SetIntegratorRange(min, max float64) {
	c.minIntegral, c.maxIntegral = min, max
}

// EnableContinuousInput treats min and max as the same point, so the error
// always takes the short way around.
func (c *PID) EnableContinuousInput(min, max float64) {
	c.continuous = true
	c.minInput, c.maxInput = min, max
}

// DisableContinuousInput reverts to linear input.
func (c *PID) DisableContinuousInput() { c.continuous = false }

// IsContinuousInputEnabled reports whether continuous input is on.
func (c *PID) IsContinuousInputEnabled() bool { return c.continuous }

// SetTolerance sets the position and velocity error bounds for AtSetpoint.
func (c *PID) SetTolerance(position, velocity float64) {
	c.positionTolerance, c.velocityTolerance = position, velocity
}

// SetSetpoint changes the reference.
func (c *PID) SetSetpoint(s float64) {
	c.setpoint = s
	c.haveSetpoint = true
	c.positionError = c.errorFor(s, c.measurement)
	c.velocityError = (c.positionError - c.prevError) / c.period
}

// Setpoint returns the current reference.
func (c *PID) Setpoint() float64 { return c.setpoint }

// PositionError returns the most recent error.
func (c *PID) PositionError() float64 { return c.positionError }

// VelocityError returns the most recent error derivative.
func (c *PID) VelocityError() float64 { return c.velocityError }

// AtSetpoint reports whether both error terms are within tolerance.
func (c *PID) AtSetpoint() bool {
	return c.haveMeasurement && c.haveSetpoint &&
		math.Abs(c.positionError) < c.positionTolerance &&
		math.Abs(c.velocityError) < c.velocityTolerance
}

// Calculate returns the output for the measurement against the current
// setpoint.
func (c *PID) Calculate(measurement float64) float64 {
	c.measurement = measurement
	c.prevError = c.positionError
	c.haveMeasurement = true

	c.positionError = c.errorFor(c.setpoint, measurement)
	c.velocityError = (c.positionError - c.prevError) / c.period

	if math.Abs(c.positionError) > c.iZone {
		c.totalError = 0
	} else if c.ki != 0 {
		c.totalError = clamp(c.totalError+c.positionError*c.period, c.minIntegral/c.ki, c.maxIntegral/c.ki)
	}

	return c.kp*c.positionError + c.ki*c.totalError + c.kd*c.velocityError
}

// CalculateTo sets the setpoint and returns the output.
func (c *PID) CalculateTo(measurement, setpoint float64) float64 {
	c.setpoint = setpoint
	c.haveSetpoint = true
	return c.Calculate(measurement)
}

// Reset clears the accumulated error state.
func (c *PID) Reset() {
	c.positionError = 0
	c.prevError = 0
	c.totalError = 0
	c.velocityError = 0
	c.haveMeasurement = false
}

func (c *PID) errorFor(setpoint, measurement float64) float64 {
	if c.continuous {
		bound := (c.maxInput - c.minInput) / 2
		return geom.InputModulus(setpoint-measurement, -bound, bound)
	}
	return setpoint - measurement
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
