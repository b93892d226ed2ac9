package geom

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
)

const smallAngle = 1e-9

// Pose2D is a planar pose in the field frame.
type Pose2D struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// Transform2D is a rigid body change expressed in the frame of the pose it is
// applied to.
type Transform2D struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// Twist2D is a constant-curvature displacement along an arc.
type Twist2D struct {
	DX     float64
	DY     float64
	DTheta float64
}

// NewPose2D returns a pose with its heading wrapped to (-π, π].
func NewPose2D(x, y, theta float64) Pose2D {
	return Pose2D{X: x, Y: y, Theta: WrapAngle(theta)}
}

func (p Pose2D) String() string {
	return fmt.Sprintf("Pose2D(%.3f, %.3f, %.1f°)", p.X, p.Y, Degrees(p.Theta))
}

// Translation returns the position component.
func (p Pose2D) Translation() r2.Point { return r2.Point{X: p.X, Y: p.Y} }

// DistanceTo returns the planar distance between two poses.
func (p Pose2D) DistanceTo(o Pose2D) float64 {
	return p.Translation().Sub(o.Translation()).Norm()
}

// DistanceSquaredTo returns the squared planar distance between two poses.
func (p Pose2D) DistanceSquaredTo(o Pose2D) float64 {
	dx, dy := p.X-o.X, p.Y-o.Y
	return dx*dx + dy*dy
}

// Rotate rotates v by theta.
func Rotate(v r2.Point, theta float64) r2.Point {
	s, c := math.Sincos(theta)
	return r2.Point{X: v.X*c - v.Y*s, Y: v.X*s + v.Y*c}
}

// Plus applies a transform expressed in this pose's frame.
func (p Pose2D) Plus(t Transform2D) Pose2D {
	d := Rotate(r2.Point{X: t.X, Y: t.Y}, p.Theta)
	return Pose2D{X: p.X + d.X, Y: p.Y + d.Y, Theta: WrapAngle(p.Theta + t.Theta)}
}

// Minus returns the transform that maps other onto p.
func (p Pose2D) Minus(other Pose2D) Transform2D {
	r := p.RelativeTo(other)
	return Transform2D(r)
}

// RelativeTo expresses p in the frame of other.
func (p Pose2D) RelativeTo(other Pose2D) Pose2D {
	d := Rotate(p.Translation().Sub(other.Translation()), -other.Theta)
	return Pose2D{X: d.X, Y: d.Y, Theta: WrapAngle(p.Theta - other.Theta)}
}

// Exp integrates a twist starting at p.
func (p Pose2D) Exp(tw Twist2D) Pose2D {
	sinT, cosT := math.Sincos(tw.DTheta)
	var s, c float64
	if math.Abs(tw.DTheta) < smallAngle {
		s = 1 - tw.DTheta*tw.DTheta/6
		c = 0.5 * tw.DTheta
	} else {
		s = sinT / tw.DTheta
		c = (1 - cosT) / tw.DTheta
	}
	return p.Plus(Transform2D{
		X:     tw.DX*s - tw.DY*c,
		Y:     tw.DX*c + tw.DY*s,
		Theta: math.Atan2(sinT, cosT),
	})
}

// Log returns the twist that carries p to end.
func (p Pose2D) Log(end Pose2D) Twist2D {
	rel := end.RelativeTo(p)
	dtheta := rel.Theta
	half := dtheta / 2
	cosMinusOne := math.Cos(dtheta) - 1

	var halfByTan float64
	if math.Abs(cosMinusOne) < smallAngle {
		halfByTan = 1 - dtheta*dtheta/12
	} else {
		halfByTan = -(half * math.Sin(dtheta)) / cosMinusOne
	}

	v := Rotate(rel.Translation(), math.Atan2(-half, halfByTan)).Mul(math.Hypot(halfByTan, half))
	return Twist2D{DX: v.X, DY: v.Y, DTheta: dtheta}
}

// Interpolate moves along the constant-curvature arc from p to end. t is
// clamped to [0, 1].
func (p Pose2D) Interpolate(end Pose2D, t float64) Pose2D {
	if t <= 0 {
		return p
	}
	if t >= 1 {
		return end
	}
	tw := p.Log(end)
	return p.Exp(Twist2D{DX: tw.DX * t, DY: tw.DY * t, DTheta: tw.DTheta * t})
}

// Inverse returns the transform that undoes t.
func (t Transform2D) Inverse() Transform2D {
	v := Rotate(r2.Point{X: -t.X, Y: -t.Y}, -t.Theta)
	return Transform2D{X: v.X, Y: v.Y, Theta: WrapAngle(-t.Theta)}
}

// Scale multiplies each component of the twist.
func (tw Twist2D) Scale(k float64) Twist2D {
	return Twist2D{DX: tw.DX * k, DY: tw.DY * k, DTheta: tw.DTheta * k}
}
