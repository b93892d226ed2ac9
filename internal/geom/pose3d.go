package geom

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Rotation3D is a unit quaternion orientation.
type Rotation3D struct {
	q quat.Number
}

// IdentityRotation is the zero rotation.
var IdentityRotation = Rotation3D{q: quat.Number{Real: 1}}

// RotationFromQuaternion builds a rotation from quaternion components,
// normalizing them. A zero quaternion yields the identity.
func RotationFromQuaternion(w, x, y, z float64) Rotation3D {
	q := quat.Number{Real: w, Imag: x, Jmag: y, Kmag: z}
	n := quat.Abs(q)
	if n == 0 {
		return IdentityRotation
	}
	return Rotation3D{q: quat.Scale(1/n, q)}
}

// RotationFromEuler builds a rotation from extrinsic roll (X), pitch (Y) and
// yaw (Z) angles.
func RotationFromEuler(roll, pitch, yaw float64) Rotation3D {
	sr, cr := math.Sincos(roll / 2)
	sp, cp := math.Sincos(pitch / 2)
	sy, cy := math.Sincos(yaw / 2)
	return Rotation3D{q: quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	}}
}

// Quaternion returns the (w, x, y, z) components.
func (r Rotation3D) Quaternion() (w, x, y, z float64) {
	q := r.quat()
	return q.Real, q.Imag, q.Jmag, q.Kmag
}

func (r Rotation3D) quat() quat.Number {
	if r.q == (quat.Number{}) {
		return IdentityRotation.q
	}
	return r.q
}

// Roll returns the rotation about X.
func (r Rotation3D) Roll() float64 {
	q := r.quat()
	return math.Atan2(2*(q.Real*q.Imag+q.Jmag*q.Kmag), 1-2*(q.Imag*q.Imag+q.Jmag*q.Jmag))
}

// Pitch returns the rotation about Y.
func (r Rotation3D) Pitch() float64 {
	q := r.quat()
	s := 2 * (q.Real*q.Jmag - q.Kmag*q.Imag)
	return math.Asin(math.Max(-1, math.Min(1, s)))
}

// Yaw returns the rotation about Z.
func (r Rotation3D) Yaw() float64 {
	q := r.quat()
	return math.Atan2(2*(q.Real*q.Kmag+q.Imag*q.Jmag), 1-2*(q.Jmag*q.Jmag+q.Kmag*q.Kmag))
}

// Inverse returns the opposite rotation.
func (r Rotation3D) Inverse() Rotation3D {
	return Rotation3D{q: quat.Conj(r.quat())}
}

// Then returns the rotation that applies r first and then other, both
// expressed in the fixed frame.
func (r Rotation3D) Then(other Rotation3D) Rotation3D {
	return Rotation3D{q: quat.Mul(other.quat(), r.quat())}
}

// Apply rotates v.
func (r Rotation3D) Apply(v r3.Vector) r3.Vector {
	q := r.quat()
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	out := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vector{X: out.Imag, Y: out.Jmag, Z: out.Kmag}
}

// Pose3D is a spatial pose in the field frame.
type Pose3D struct {
	Translation r3.Vector
	Rotation    Rotation3D
}

// Transform3D is a rigid body change expressed in the frame of the pose it is
// applied to.
type Transform3D struct {
	Translation r3.Vector
	Rotation    Rotation3D
}

// Pose3DFrom2D lifts a planar pose onto the floor.
func Pose3DFrom2D(p Pose2D) Pose3D {
	return Pose3D{
		Translation: r3.Vector{X: p.X, Y: p.Y},
		Rotation:    RotationFromEuler(0, 0, p.Theta),
	}
}

// ToPose2D projects the pose onto the floor, keeping yaw.
func (p Pose3D) ToPose2D() Pose2D {
	return NewPose2D(p.Translation.X, p.Translation.Y, p.Rotation.Yaw())
}

// TransformBy applies a transform expressed in this pose's frame.
func (p Pose3D) TransformBy(t Transform3D) Pose3D {
	return Pose3D{
		Translation: p.Translation.Add(p.Rotation.Apply(t.Translation)),
		Rotation:    Rotation3D{q: quat.Mul(p.Rotation.quat(), t.Rotation.quat())},
	}
}

// Inverse returns the transform that undoes t.
func (t Transform3D) Inverse() Transform3D {
	inv := t.Rotation.Inverse()
	return Transform3D{
		Translation: inv.Apply(t.Translation.Mul(-1)),
		Rotation:    inv,
	}
}

// Norm returns the length of the translation.
func (t Transform3D) Norm() float64 { return t.Translation.Norm() }

// RelativeTo returns p expressed in the frame of other.
func (p Pose3D) RelativeTo(other Pose3D) Transform3D {
	inv := other.Rotation.Inverse()
	return Transform3D{
		Translation: inv.Apply(p.Translation.Sub(other.Translation)),
		Rotation:    Rotation3D{q: quat.Mul(inv.quat(), p.Rotation.quat())},
	}
}
