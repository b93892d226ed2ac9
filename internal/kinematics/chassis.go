// Package kinematics converts between chassis velocities and the per-module
// states of a four-module swerve drive.
package kinematics

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/blackknights-robotics/motioncore/internal/geom"
)

// Module indices. Every per-module array in this repository uses this order.
const (
	FrontLeft = iota
	FrontRight
	RearLeft
	RearRight
	NumModules
)

// ModuleNames are the telemetry names for each module index.
var ModuleNames = [NumModules]string{"FrontLeft", "FrontRight", "RearLeft", "RearRight"}

// ChassisVelocity is a robot velocity. Whether it is robot-relative or
// field-relative is determined by the caller; converting between the two
// requires a heading.
type ChassisVelocity struct {
	Forward  float64 // m/s
	Sideways float64 // m/s, left positive
	Angular  float64 // rad/s, counter-clockwise positive
}

// IsZero reports whether all components are exactly zero.
func (v ChassisVelocity) IsZero() bool {
	return v.Forward == 0 && v.Sideways == 0 && v.Angular == 0
}

// Speed returns the planar translational speed.
func (v ChassisVelocity) Speed() float64 {
	return math.Hypot(v.Forward, v.Sideways)
}

// FromFieldRelative converts a field-relative velocity into the robot frame
// for the given robot heading.
func FromFieldRelative(v ChassisVelocity, heading float64) ChassisVelocity {
	t := geom.Rotate(r2.Point{X: v.Forward, Y: v.Sideways}, -heading)
	return ChassisVelocity{Forward: t.X, Sideways: t.Y, Angular: v.Angular}
}

// ToFieldRelative converts a robot-relative velocity into the field frame.
func ToFieldRelative(v ChassisVelocity, heading float64) ChassisVelocity {
	return FromFieldRelative(v, -heading)
}

// ModuleState is a wheel speed and steering angle.
type ModuleState struct {
	Speed float64 // m/s
	Angle float64 // rad, (-π, π]
}

// ModulePosition is an accumulated wheel distance and steering angle.
type ModulePosition struct {
	Distance float64 // m
	Angle    float64 // rad
}

// Optimize returns an equivalent state whose angle is within 90° of current,
// reversing the wheel if needed.
func (s ModuleState) Optimize(current float64) ModuleState {
	delta := geom.WrapAngle(s.Angle - current)
	if math.Abs(delta) > math.Pi/2 {
		return ModuleState{Speed: -s.Speed, Angle: geom.WrapAngle(s.Angle + math.Pi)}
	}
	return ModuleState{Speed: s.Speed, Angle: geom.WrapAngle(s.Angle)}
}

// Desaturate scales every module speed by the same factor so that none
// exceeds maxSpeed. Directions are unchanged.
func Desaturate(states *[NumModules]ModuleState, maxSpeed float64) {
	highest := 0.0
	for _, s := range states {
		highest = math.Max(highest, math.Abs(s.Speed))
	}
	if highest <= maxSpeed || highest == 0 {
		return
	}
	k := maxSpeed / highest
	for i := range states {
		states[i].Speed *= k
	}
}
