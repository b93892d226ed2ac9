// Package sim provides ideal simulated hardware for the drivetrain: motors
// that track their references instantly, a heading sensor, a chassis that
// integrates its true pose, and a camera that sees tags from that pose.
package sim

import (
	"sync"

	"github.com/blackknights-robotics/motioncore/internal/control"
	"github.com/blackknights-robotics/motioncore/internal/swerve"
)

// Motor is an ideal motor controller. A velocity reference is reached
// immediately; a position reference is reached immediately and wrapped to
// [0, 2π) when Wrap is set. Position under velocity control advances only in
// Step.
type Motor struct {
	mu sync.Mutex

	// VoltsPerUnit converts a raw voltage into velocity under SetVoltage.
	VoltsPerUnit float64
	// Wrap makes positions continuous on [0, 2π).
	Wrap bool

	mode        swerve.ControlMode
	reference   float64
	feedforward float64
	voltage     float64
	openLoop    bool

	position float64
	velocity float64
}

// NewDriveMotor returns a velocity-controlled motor.
func NewDriveMotor() *Motor {
	return &Motor{VoltsPerUnit: 2.3216}
}

// NewSteerMotor returns a position-controlled motor with wrapped position
// starting at angle.
func NewSteerMotor(angle float64) *Motor {
	return &Motor{VoltsPerUnit: 1, Wrap: true, position: control.WrapPositive(angle), mode: swerve.ControlPosition}
}

func (m *Motor) SetReference(value float64, mode swerve.ControlMode, ff float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode, m.reference, m.feedforward, m.openLoop = mode, value, ff, false
	switch mode {
	case swerve.ControlVelocity:
		m.velocity = value
	case swerve.ControlPosition:
		m.velocity = 0
		m.position = value
		if m.Wrap {
			m.position = control.WrapPositive(value)
		}
	}
}

func (m *Motor) SetVoltage(volts float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openLoop = true
	m.voltage = volts
	m.velocity = 0
	if m.VoltsPerUnit != 0 {
		m.velocity = volts / m.VoltsPerUnit
	}
}

func (m *Motor) Position() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *Motor) Velocity() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.velocity
}

func (m *Motor) SetEncoderPosition(p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = p
}

// Step advances the position by the current velocity.
func (m *Motor) Step(dt float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position += m.velocity * dt
	if m.Wrap {
		m.position = control.WrapPositive(m.position)
	}
}

// Reference returns the last closed-loop command.
func (m *Motor) Reference() (value float64, mode swerve.ControlMode, ff float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reference, m.mode, m.feedforward
}

// Voltage returns the last open-loop voltage and whether the motor is
// currently open loop.
func (m *Motor) Voltage() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.voltage, m.openLoop
}

// Gyro is an ideal heading sensor.
type Gyro struct {
	mu    sync.Mutex
	angle float64
	rate  float64
	zero  float64
}

func (g *Gyro) Angle() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.angle - g.zero
}

func (g *Gyro) Rate() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rate
}

func (g *Gyro) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.zero = g.angle
}

// Integrate turns the gyro at rate for dt seconds.
func (g *Gyro) Integrate(rate, dt float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rate = rate
	g.angle += rate * dt
}

// Set places the gyro at an absolute angle.
func (g *Gyro) Set(angle float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.angle = angle + g.zero
}
