package control

import "github.com/blackknights-robotics/motioncore/internal/geom"

// ProfiledPID is a PID controller whose setpoint follows a trapezoid profile
// toward the goal.
type ProfiledPID struct {
	pid      *PID
	profile  *TrapezoidProfile
	goal     State
	setpoint State

	minInput, maxInput float64
}

// NewProfiledPID returns a profiled controller with the given gains and
// limits.
func NewProfiledPID(kp, ki, kd float64, c Constraints) *ProfiledPID {
	return &ProfiledPID{
		pid:     NewPID(kp, ki, kd),
		profile: NewTrapezoidProfile(c),
	}
}

// PID exposes the underlying feedback controller.
func (c *ProfiledPID) PID() *PID { return c.pid }

// SetPID replaces the feedback gains.
func (c *ProfiledPID) SetPID(kp, ki, kd float64) { c.pid.SetPID(kp, ki, kd) }

// SetConstraints replaces the profile limits.
func (c *ProfiledPID) SetConstraints(cons Constraints) { c.profile.SetConstraints(cons) }

// Constraints returns the profile limits.
func (c *ProfiledPID) Constraints() Constraints { return c.profile.Constraints() }

// SetTolerance sets the feedback position and velocity tolerances.
func (c *ProfiledPID) SetTolerance(position, velocity float64) {
	c.pid.SetTolerance(position, velocity)
}

// EnableContinuousInput makes the controller and the profile take the short
// way around between min and max.
func (c *ProfiledPID) EnableContinuousInput(min, max float64) {
	c.pid.EnableContinuousInput(min, max)
	c.minInput, c.maxInput = min, max
}

// SetGoal sets the final state with zero velocity.
func (c *ProfiledPID) SetGoal(position float64) {
	c.goal = State{Position: position}
}

// SetGoalState sets the final state.
func (c *ProfiledPID) SetGoalState(s State) { c.goal = s }

// Goal returns the final state.
func (c *ProfiledPID) Goal() State { return c.goal }

// Setpoint returns the current profile state.
func (c *ProfiledPID) Setpoint() State { return c.setpoint }

// AtGoal reports whether the feedback is at its setpoint and the profile has
// reached the goal.
func (c *ProfiledPID) AtGoal() bool {
	return c.AtSetpoint() && c.goal == c.setpoint
}

// AtSetpoint reports whether the feedback error is within tolerance.
func (c *ProfiledPID) AtSetpoint() bool { return c.pid.AtSetpoint() }

// PositionError returns the feedback position error.
func (c *ProfiledPID) PositionError() float64 { return c.pid.PositionError() }

// VelocityError returns the feedback velocity error.
func (c *ProfiledPID) VelocityError() float64 { return c.pid.VelocityError() }

// Calculate advances the profile by one period and returns the feedback
// output for the measurement.
func (c *ProfiledPID) Calculate(measurement float64) float64 {
	if c.pid.IsContinuousInputEnabled() {
		bound := (c.maxInput - c.minInput) / 2
		c.goal.Position = geom.InputModulus(c.goal.Position-measurement, -bound, bound) + measurement
		c.setpoint.Position = geom.InputModulus(c.setpoint.Position-measurement, -bound, bound) + measurement
	}
	c.setpoint = c.profile.Calculate(c.pid.Period(), c.setpoint, c.goal)
	return c.pid.CalculateTo(measurement, c.setpoint.Position)
}

// CalculateTo sets the goal and returns Calculate(measurement).
func (c *ProfiledPID) CalculateTo(measurement, goal float64) float64 {
	c.SetGoal(goal)
	return c.Calculate(measurement)
}

// Reset clears the feedback state and restarts the profile from the measured
// position and velocity.
func (c *ProfiledPID) Reset(position, velocity float64) {
	c.pid.Reset()
	c.setpoint = State{Position: position, Velocity: velocity}
}

// Sign returns -1, 0 or 1.
func Sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
