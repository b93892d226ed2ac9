package align

import (
	"fmt"

	"github.com/blackknights-robotics/motioncore/internal/config"
	"github.com/blackknights-robotics/motioncore/internal/control"
	"github.com/blackknights-robotics/motioncore/internal/geom"
)

// Gains are PID coefficients.
type Gains struct {
	P, I, D float64
}

// Tuning is the set of tunables one alignment attempt runs with. Gains are
// shared by every profile; limits and tolerances are per profile.
type Tuning struct {
	X, Y, Rotation Gains

	XConstraints        control.Constraints
	YConstraints        control.Constraints
	RotationConstraints control.Constraints

	// PositionTolerance (m) and RotationTolerance (rad) bound AtSetpoint.
	PositionTolerance float64
	RotationTolerance float64
	// DistanceTolerance is the pass-through arrival radius in metres.
	DistanceTolerance float64
	// FinishTime is the settle dwell in seconds.
	FinishTime float64

	// Nudge is the static-friction feedforward in m/s.
	Nudge float64
	// LookAhead is how far behind the robot the pass-through pre-seed pose
	// sits, in metres.
	LookAhead float64
	// PassThroughAccel replaces the x/y acceleration limit in pass-through
	// mode.
	PassThroughAccel float64
}

// LoadTuning reads a tuning snapshot for profile.
func LoadTuning(tun config.Tunables, profile string) Tuning {
	key := func(name string) string { return fmt.Sprintf("align_%s_%s", profile, name) }
	return Tuning{
		X: Gains{
			P: tun.Get("align_x_axis_p", 3),
			I: tun.Get("align_x_axis_i", 0),
			D: tun.Get("align_x_axis_d", 0.25),
		},
		Y: Gains{
			P: tun.Get("align_y_axis_p", 3),
			I: tun.Get("align_y_axis_i", 0),
			D: tun.Get("align_y_axis_d", 0.25),
		},
		Rotation: Gains{
			P: tun.Get("align_rot_p", 7.3),
			I: tun.Get("align_rot_i", 0),
			D: tun.Get("align_rot_d", 0.5),
		},
		XConstraints: control.Constraints{
			MaxVelocity:     tun.Get(key("x_max_vel_m"), 3),
			MaxAcceleration: tun.Get(key("x_max_accel_mps"), 2.5),
		},
		YConstraints: control.Constraints{
			MaxVelocity:     tun.Get(key("y_max_vel_m"), 3),
			MaxAcceleration: tun.Get(key("y_max_accel_mps"), 2.5),
		},
		RotationConstraints: control.Constraints{
			MaxVelocity:     geom.Radians(tun.Get(key("rot_max_vel_deg"), 360)),
			MaxAcceleration: geom.Radians(tun.Get(key("rot_max_accel_degps"), 360)),
		},
		PositionTolerance: tun.Get(key("pos_tolerance"), 0.05),
		RotationTolerance: geom.Radians(tun.Get(key("rotation_tolerance"), 1)),
		DistanceTolerance: tun.Get(key("pos_dist_tol"), 0.05),
		FinishTime:        tun.Get(key("finish_time"), 200) / 1000,
		Nudge:             tun.Get("align_ff", 0.1),
		LookAhead:         tun.Get("fake_pose_dist_back", 0.5),
		PassThroughAccel:  tun.Get("align_pass_through_accel", 5000),
	}
}
