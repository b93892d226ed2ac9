package kinematics

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"github.com/blackknights-robotics/motioncore/internal/geom"
)

// SwerveKinematics holds the fixed module geometry of a swerve drive.
//
// Inverse kinematics is the linear map A·[vx vy ω]ᵀ where each module i
// contributes rows [1 0 -yᵢ] and [0 1 xᵢ]. Forward kinematics uses the
// least-squares pseudo-inverse of A, computed once.
type SwerveKinematics struct {
	locations [NumModules]r2.Point
	inverse   *mat.Dense // 2N x 3
	forward   *mat.Dense // 3 x 2N

	lastAngles [NumModules]float64
}

// NewSwerveKinematics builds kinematics for modules at the given
// robot-relative locations (metres, +X forward, +Y left).
func NewSwerveKinematics(locations [NumModules]r2.Point) (*SwerveKinematics, error) {
	inv := mat.NewDense(2*NumModules, 3, nil)
	for i, loc := range locations {
		inv.SetRow(2*i, []float64{1, 0, -loc.Y})
		inv.SetRow(2*i+1, []float64{0, 1, loc.X})
	}

	var ata mat.Dense
	ata.Mul(inv.T(), inv)
	var ataInv mat.Dense
	if err := ataInv.Inverse(&ata); err != nil {
		return nil, fmt.Errorf("module geometry is degenerate: %w", err)
	}
	var fwd mat.Dense
	fwd.Mul(&ataInv, inv.T())

	return &SwerveKinematics{locations: locations, inverse: inv, forward: &fwd}, nil
}

// RectangularLocations returns module locations for a rectangular chassis.
func RectangularLocations(wheelBase, trackWidth float64) [NumModules]r2.Point {
	x, y := wheelBase/2, trackWidth/2
	return [NumModules]r2.Point{
		FrontLeft:  {X: x, Y: y},
		FrontRight: {X: x, Y: -y},
		RearLeft:   {X: -x, Y: y},
		RearRight:  {X: -x, Y: -y},
	}
}

// Locations returns the module locations.
func (k *SwerveKinematics) Locations() [NumModules]r2.Point { return k.locations }

// ToModuleStates converts a robot-relative chassis velocity into module
// states. A zero request keeps each module at its previous angle.
func (k *SwerveKinematics) ToModuleStates(v ChassisVelocity) [NumModules]ModuleState {
	var out [NumModules]ModuleState
	if v.IsZero() {
		for i := range out {
			out[i] = ModuleState{Angle: k.lastAngles[i]}
		}
		return out
	}

	var m mat.VecDense
	m.MulVec(k.inverse, mat.NewVecDense(3, []float64{v.Forward, v.Sideways, v.Angular}))
	for i := range out {
		vx, vy := m.AtVec(2*i), m.AtVec(2*i+1)
		out[i] = ModuleState{Speed: math.Hypot(vx, vy), Angle: math.Atan2(vy, vx)}
		k.lastAngles[i] = out[i].Angle
	}
	return out
}

// ResetHeadings sets the angles that a zero request holds.
func (k *SwerveKinematics) ResetHeadings(angles [NumModules]float64) {
	k.lastAngles = angles
}

// ToChassisVelocity converts measured module states into the robot-relative
// chassis velocity that best explains them.
func (k *SwerveKinematics) ToChassisVelocity(states [NumModules]ModuleState) ChassisVelocity {
	m := mat.NewVecDense(2*NumModules, nil)
	for i, s := range states {
		sin, cos := math.Sincos(s.Angle)
		m.SetVec(2*i, s.Speed*cos)
		m.SetVec(2*i+1, s.Speed*sin)
	}
	var c mat.VecDense
	c.MulVec(k.forward, m)
	return ChassisVelocity{Forward: c.AtVec(0), Sideways: c.AtVec(1), Angular: c.AtVec(2)}
}

// ToTwist returns the robot-relative displacement implied by the change in
// module positions from start to end.
func (k *SwerveKinematics) ToTwist(start, end [NumModules]ModulePosition) geom.Twist2D {
	var deltas [NumModules]ModuleState
	for i := range end {
		deltas[i] = ModuleState{Speed: end[i].Distance - start[i].Distance, Angle: end[i].Angle}
	}
	c := k.ToChassisVelocity(deltas)
	return geom.Twist2D{DX: c.Forward, DY: c.Sideways, DTheta: c.Angular}
}
