package swerve

import (
	"fmt"
	"math"

	"github.com/blackknights-robotics/motioncore/internal/config"
	"github.com/blackknights-robotics/motioncore/internal/control"
	"github.com/blackknights-robotics/motioncore/internal/geom"
	"github.com/blackknights-robotics/motioncore/internal/kinematics"
	"github.com/blackknights-robotics/motioncore/internal/telemetry"
)

// DefaultMinVelocity is the speed at or below which drive feedforward is
// suppressed, unless the swerve_min_velocity tunable says otherwise.
const DefaultMinVelocity = 0.01

// Module controls one swerve module. Angles it reports and accepts are
// chassis-relative; the steer encoder itself is offset by the module's
// mounting angle.
type Module struct {
	name   string
	drive  Actuator
	steer  Actuator
	offset float64
	ff     control.SimpleMotorFeedforward

	tunables config.Tunables
	debug    telemetry.Publisher

	desired kinematics.ModuleState
}

// NewModule wraps module hardware. The drive encoder is zeroed and the
// desired angle starts at the current chassis-relative steer angle.
func NewModule(io ModuleIO, offset float64, ff control.SimpleMotorFeedforward, tun config.Tunables, pub telemetry.Publisher) *Module {
	if tun == nil {
		tun = config.MapTunables{}
	}
	if pub == nil {
		pub = telemetry.Nop{}
	}
	m := &Module{
		name:     io.Name,
		drive:    io.Drive,
		steer:    io.Steer,
		offset:   offset,
		ff:       ff,
		tunables: tun,
		debug:    telemetry.Prefixed(pub, "debug"),
	}
	m.desired = kinematics.ModuleState{Angle: geom.WrapAngle(m.steer.Position() - offset)}
	m.drive.SetEncoderPosition(0)
	return m
}

// Name returns the module's telemetry name.
func (m *Module) Name() string { return m.name }

// State returns the measured wheel speed and chassis-relative angle.
func (m *Module) State() kinematics.ModuleState {
	return kinematics.ModuleState{
		Speed: m.drive.Velocity(),
		Angle: geom.WrapAngle(m.steer.Position() - m.offset),
	}
}

// Position returns the accumulated wheel distance and chassis-relative angle.
func (m *Module) Position() kinematics.ModulePosition {
	return kinematics.ModulePosition{
		Distance: m.drive.Position(),
		Angle:    geom.WrapAngle(m.steer.Position() - m.offset),
	}
}

// DesiredState returns the last chassis-relative request.
func (m *Module) DesiredState() kinematics.ModuleState { return m.desired }

// SetDesiredState commands the module toward a chassis-relative state,
// reversing the wheel when that turns the steer less than 90°.
func (m *Module) SetDesiredState(s kinematics.ModuleState) {
	corrected := kinematics.ModuleState{Speed: s.Speed, Angle: s.Angle + m.offset}
	target := corrected.Optimize(m.steer.Position())

	ff := m.ff.CalculateWithVelocities(m.drive.Velocity(), target.Speed)

	m.debug.Publish(fmt.Sprintf("ID(%s) - Swerve FF Output", m.name), ff)
	m.debug.Publish(fmt.Sprintf("ID(%s) - Swerve target mps", m.name), target.Speed)

	minVelocity := m.tunables.Get("swerve_min_velocity", DefaultMinVelocity)
	if math.Abs(target.Speed) <= minVelocity {
		ff = 0
	}

	m.drive.SetReference(target.Speed, ControlVelocity, ff)
	m.steer.SetReference(target.Angle, ControlPosition, 0)

	m.desired = s
}

// ResetEncoders zeroes the drive distance. The steer encoder is absolute and
// is left alone.
func (m *Module) ResetEncoders() { m.drive.SetEncoderPosition(0) }

// SetDriveVoltage overrides the drive closed loop.
func (m *Module) SetDriveVoltage(v float64) { m.drive.SetVoltage(v) }

// SetSteerVoltage overrides the steer closed loop.
func (m *Module) SetSteerVoltage(v float64) { m.steer.SetVoltage(v) }
