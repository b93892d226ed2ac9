package sim

import (
	"math"

	"github.com/blackknights-robotics/motioncore/internal/geom"
	"github.com/blackknights-robotics/motioncore/internal/nettable"
	"github.com/blackknights-robotics/motioncore/internal/timeutil"
	"github.com/blackknights-robotics/motioncore/internal/vision"
)

// Camera sees the tags of a field layout from the chassis' true pose. It
// serves frames as a vision.Detector and can also publish a Limelight-style
// table.
type Camera struct {
	Layout        *vision.FieldLayout
	RobotToCamera geom.Transform3D
	Pose          func() geom.Pose2D
	Clock         timeutil.Monotonic

	// Latency is subtracted from the clock to stamp frames, in seconds.
	Latency float64
	// MaxRange and HalfFOV bound which tags are visible. Zero means
	// unlimited.
	MaxRange float64
	HalfFOV  float64
	// MultiTag makes frames with two or more tags carry a joint solution.
	MultiTag bool

	beat float64
}

// visible returns the camera pose and the camera→tag transforms of every tag
// in view, nearest first.
func (c *Camera) visible() (geom.Pose3D, []vision.Target) {
	camera := geom.Pose3DFrom2D(c.Pose()).TransformBy(c.RobotToCamera)
	var targets []vision.Target
	for _, id := range c.Layout.IDs() {
		tag, err := c.Layout.Tag(id)
		if err != nil {
			continue
		}
		rel := tag.RelativeTo(camera)
		dist := rel.Norm()
		if rel.Translation.X <= 0 || (c.MaxRange > 0 && dist > c.MaxRange) {
			continue
		}
		if c.HalfFOV > 0 && math.Abs(math.Atan2(rel.Translation.Y, rel.Translation.X)) > c.HalfFOV {
			continue
		}
		targets = append(targets, vision.Target{ID: id, BestCameraToTarget: rel})
	}
	for i := 1; i < len(targets); i++ {
		for j := i; j > 0 && targets[j].BestCameraToTarget.Norm() < targets[j-1].BestCameraToTarget.Norm(); j-- {
			targets[j], targets[j-1] = targets[j-1], targets[j]
		}
	}
	return camera, targets
}

// UnreadFrames returns one frame rendered from the current pose.
func (c *Camera) UnreadFrames() ([]vision.Frame, error) {
	camera, targets := c.visible()
	f := vision.Frame{Timestamp: c.Clock.Seconds() - c.Latency, Targets: targets}
	if c.MultiTag && len(targets) >= 2 {
		ids := make([]int, len(targets))
		for i, t := range targets {
			ids[i] = t.ID
		}
		f.MultiTag = &vision.MultiTag{FieldToCamera: geom.Transform3D(camera), TagIDs: ids}
	}
	return []vision.Frame{f}, nil
}

// PublishLimelight writes the entries a Limelight would publish for the
// current pose.
func (c *Camera) PublishLimelight(w nettable.Writer) {
	camera, targets := c.visible()
	c.beat++
	w.SetNumber("hb", c.beat)
	w.SetNumber("tl", c.Latency*1000)
	w.SetNumber("cl", 0)
	if len(targets) == 0 {
		w.SetArray("botpose_wpiblue", []float64{})
		return
	}
	avg := 0.0
	for _, t := range targets {
		avg += t.BestCameraToTarget.Norm()
	}
	avg /= float64(len(targets))
	w.SetArray("botpose_wpiblue", []float64{
		camera.Translation.X, camera.Translation.Y, camera.Translation.Z,
		geom.Degrees(camera.Rotation.Roll()), geom.Degrees(camera.Rotation.Pitch()), geom.Degrees(camera.Rotation.Yaw()),
		c.Latency * 1000, float64(len(targets)), 0, avg,
	})
	best := targets[0].BestCameraToTarget.Translation
	w.SetArray("targetpose_cameraspace", []float64{best.X, best.Y, best.Z, 0, 0, 0})
}
