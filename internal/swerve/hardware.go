// Package swerve drives a four-module swerve chassis: per-module setpoint
// optimization and feedforward, chassis-level slew shaping, kinematics and
// desaturation.
package swerve

// ControlMode selects the closed loop an Actuator runs.
type ControlMode int

const (
	// ControlVelocity tracks a velocity reference (m/s for drive motors).
	ControlVelocity ControlMode = iota
	// ControlPosition tracks an absolute position reference (rad for steer
	// motors, wrapping handled by the controller).
	ControlPosition
)

func (m ControlMode) String() string {
	switch m {
	case ControlVelocity:
		return "velocity"
	case ControlPosition:
		return "position"
	default:
		return "unknown"
	}
}

// Actuator is a closed-loop motor controller with an integrated encoder.
// Calls must not block.
type Actuator interface {
	// SetReference commands the closed loop with an additive feedforward in
	// volts.
	SetReference(value float64, mode ControlMode, feedforward float64)
	// SetVoltage overrides the closed loop with a raw voltage.
	SetVoltage(volts float64)
	// Position returns the encoder position.
	Position() float64
	// Velocity returns the encoder velocity.
	Velocity() float64
	// SetEncoderPosition rewrites the encoder position.
	SetEncoderPosition(p float64)
}

// HeadingSensor reports the chassis yaw in radians, counter-clockwise
// positive and cumulative (not wrapped).
type HeadingSensor interface {
	Angle() float64
	// Rate returns the yaw rate in rad/s, counter-clockwise positive.
	Rate() float64
	// Reset makes the current heading zero.
	Reset()
}

// ModuleIO is the hardware of one module.
type ModuleIO struct {
	Name  string
	Drive Actuator
	Steer Actuator
}
