package vision

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/blackknights-robotics/motioncore/internal/geom"
)

// Target is one AprilTag seen in a frame.
type Target struct {
	ID int
	// BestCameraToTarget is the lower-error solution; AltCameraToTarget the
	// other solution of the planar ambiguity.
	BestCameraToTarget geom.Transform3D
	AltCameraToTarget  geom.Transform3D
	Ambiguity          float64
}

// MultiTag is the coprocessor's joint solution over every visible tag.
type MultiTag struct {
	FieldToCamera geom.Transform3D
	TagIDs        []int
}

// Frame is one processed camera image.
type Frame struct {
	// Timestamp is the capture time in loop-clock seconds.
	Timestamp float64
	// Targets are ordered best first.
	Targets  []Target
	MultiTag *MultiTag
}

// Detector delivers frames processed since the previous call. It must not
// block.
type Detector interface {
	UnreadFrames() ([]Frame, error)
}

// PhotonSource estimates the robot pose from AprilTag frames.
type PhotonSource struct {
	base
	detector Detector
	layout   *FieldLayout
}

func NewPhotonSource(name string, d Detector, layout *FieldLayout, robotToCamera geom.Transform3D) *PhotonSource {
	return &PhotonSource{base: newBase(name, robotToCamera), detector: d, layout: layout}
}

// Estimate uses the newest unread frame. The multi-tag solution wins when
// present; otherwise every per-tag solution is a candidate and the one
// closest to prior is returned.
func (s *PhotonSource) Estimate(prior geom.Pose3D) (Sample, bool) {
	if !s.Enabled() {
		return Sample{}, false
	}
	frames, err := s.detector.UnreadFrames()
	if err != nil || len(frames) == 0 {
		return Sample{}, false
	}
	f := frames[len(frames)-1]
	if len(f.Targets) == 0 {
		return Sample{}, false
	}

	sample := Sample{
		Timestamp: f.Timestamp,
		Distance:  f.Targets[0].BestCameraToTarget.Norm(),
		Source:    s.name,
	}

	if f.MultiTag != nil {
		sample.Pose = s.robotPose(geom.Pose3D(f.MultiTag.FieldToCamera))
		return sample, true
	}

	best, bestDist := geom.Pose3D{}, math.Inf(1)
	for _, t := range f.Targets {
		tag, err := s.layout.Tag(t.ID)
		if err != nil {
			continue
		}
		for _, camToTarget := range []geom.Transform3D{t.BestCameraToTarget, t.AltCameraToTarget} {
			if camToTarget.Translation == (r3.Vector{}) {
				continue
			}
			candidate := s.robotPose(tag.TransformBy(camToTarget.Inverse()))
			if d := candidate.Translation.Sub(prior.Translation).Norm(); d < bestDist {
				best, bestDist = candidate, d
			}
		}
	}
	if math.IsInf(bestDist, 1) {
		return Sample{}, false
	}
	sample.Pose = best
	return sample, true
}
