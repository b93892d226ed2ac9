// Package vision turns camera landmark detections into field-relative robot
// pose samples.
//
// Two source variants exist: a coprocessor that reports AprilTag frames
// (PhotonSource) and a camera that publishes its own pose solution into a
// table (LimelightSource). Both are polled once per loop tick and never block.
package vision

import (
	"fmt"
	"sync/atomic"

	"github.com/golang/geo/r3"

	"github.com/blackknights-robotics/motioncore/internal/geom"
	"github.com/blackknights-robotics/motioncore/internal/nettable"
	"github.com/blackknights-robotics/motioncore/internal/timeutil"
)

// Sample is one field-relative robot pose observed by a camera.
type Sample struct {
	Pose geom.Pose3D
	// Timestamp is the capture time in loop-clock seconds.
	Timestamp float64
	// Distance to the landmark used, in metres. Zero when unknown.
	Distance float64
	Source   string
}

// Source produces vision samples. Estimate returns false when there is no
// usable observation this tick.
type Source interface {
	Name() string
	Estimate(prior geom.Pose3D) (Sample, bool)
	Enabled() bool
	SetEnabled(bool)
}

// Kind selects a Source variant.
type Kind string

const (
	KindPhoton    Kind = "photon"
	KindLimelight Kind = "limelight"
)

// Mount is where a camera sits relative to the robot centre, in metres and
// degrees.
type Mount struct {
	X        float64 `json:"x_m"`
	Y        float64 `json:"y_m"`
	Z        float64 `json:"z_m"`
	RollDeg  float64 `json:"roll_deg"`
	PitchDeg float64 `json:"pitch_deg"`
	YawDeg   float64 `json:"yaw_deg"`
}

// Transform returns the robot→camera transform.
func (m Mount) Transform() geom.Transform3D {
	return geom.Transform3D{
		Translation: r3.Vector{X: m.X, Y: m.Y, Z: m.Z},
		Rotation:    geom.RotationFromEuler(geom.Radians(m.RollDeg), geom.Radians(m.PitchDeg), geom.Radians(m.YawDeg)),
	}
}

// Config describes one camera.
type Config struct {
	Name  string `json:"name"`
	Kind  Kind   `json:"kind"`
	Mount Mount  `json:"mount"`
}

// Deps carries what the variants need to read their camera. Only the fields
// for the configured kind are required.
type Deps struct {
	Detector Detector
	Layout   *FieldLayout
	Table    nettable.Table
	Clock    timeutil.Monotonic
}

// New builds the source variant named by cfg.Kind.
func New(cfg Config, deps Deps) (Source, error) {
	switch cfg.Kind {
	case KindPhoton:
		if deps.Detector == nil || deps.Layout == nil {
			return nil, fmt.Errorf("camera %q: photon source needs a detector and a field layout", cfg.Name)
		}
		return NewPhotonSource(cfg.Name, deps.Detector, deps.Layout, cfg.Mount.Transform()), nil
	case KindLimelight:
		if deps.Table == nil || deps.Clock == nil {
			return nil, fmt.Errorf("camera %q: limelight source needs a table and a clock", cfg.Name)
		}
		return NewLimelightSource(cfg.Name, deps.Table, deps.Clock, cfg.Mount.Transform()), nil
	default:
		return nil, fmt.Errorf("camera %q: unknown kind %q", cfg.Name, cfg.Kind)
	}
}

// base holds what every variant shares.
type base struct {
	name          string
	cameraToRobot geom.Transform3D
	disabled      atomic.Bool
}

func newBase(name string, robotToCamera geom.Transform3D) base {
	return base{name: name, cameraToRobot: robotToCamera.Inverse()}
}

func (b *base) Name() string { return b.name }

func (b *base) Enabled() bool { return !b.disabled.Load() }

func (b *base) SetEnabled(e bool) { b.disabled.Store(!e) }

// robotPose moves a field→camera pose onto the robot centre.
func (b *base) robotPose(fieldToCamera geom.Pose3D) geom.Pose3D {
	return fieldToCamera.TransformBy(b.cameraToRobot)
}
