package vision

import (
	"math"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/blackknights-robotics/motioncore/internal/geom"
	"github.com/blackknights-robotics/motioncore/internal/nettable"
	"github.com/blackknights-robotics/motioncore/internal/timeutil"
)

// Limelight table entries.
const (
	keyBotPose    = "botpose_wpiblue"
	keyTargetPose = "targetpose_cameraspace"
	keyHeartbeat  = "hb"
	keyPipeline   = "tl"
	keyCapture    = "cl"
)

// Indices into the botpose array.
const (
	botPoseMinLen       = 6
	botPoseTagCount     = 7
	botPoseAvgTagDist   = 9
	botPoseYawDegrees   = 5
	targetPoseMinLength = 3
)

// LimelightSource reads the pose a Limelight camera solved for itself from
// its table.
type LimelightSource struct {
	base
	table nettable.Table
	clock timeutil.Monotonic

	mu       sync.Mutex
	lastBeat float64
	seenBeat bool
}

func NewLimelightSource(name string, table nettable.Table, clock timeutil.Monotonic, robotToCamera geom.Transform3D) *LimelightSource {
	return &LimelightSource{base: newBase(name, robotToCamera), table: table, clock: clock}
}

// Estimate reports the camera's pose solution. A frame is used at most once:
// when the heartbeat has not advanced since the previous call there is no
// estimate. The prior pose is not needed.
func (s *LimelightSource) Estimate(geom.Pose3D) (Sample, bool) {
	if !s.Enabled() {
		return Sample{}, false
	}
	raw, ok := s.table.Array(keyBotPose)
	if !ok || len(raw) < botPoseMinLen {
		return Sample{}, false
	}
	if len(raw) > botPoseTagCount && raw[botPoseTagCount] == 0 {
		return Sample{}, false
	}
	if !s.freshFrame() {
		return Sample{}, false
	}
	pipeline, ok := s.table.Number(keyPipeline)
	if !ok {
		return Sample{}, false
	}
	capture, ok := s.table.Number(keyCapture)
	if !ok {
		return Sample{}, false
	}

	fieldToCamera := geom.Pose3D{
		Translation: r3.Vector{X: raw[0], Y: raw[1], Z: raw[2]},
		Rotation:    geom.RotationFromEuler(0, 0, geom.Radians(raw[botPoseYawDegrees])),
	}
	return Sample{
		Pose:      s.robotPose(fieldToCamera),
		Timestamp: s.clock.Seconds() - pipeline/1000 - capture/1000,
		Distance:  s.distance(raw),
		Source:    s.name,
	}, true
}

// freshFrame reports whether the heartbeat moved since the last accepted
// frame. Tables without a heartbeat are always fresh.
func (s *LimelightSource) freshFrame() bool {
	beat, ok := s.table.Number(keyHeartbeat)
	if !ok {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seenBeat && beat == s.lastBeat {
		return false
	}
	s.lastBeat, s.seenBeat = beat, true
	return true
}

func (s *LimelightSource) distance(botPose []float64) float64 {
	if tp, ok := s.table.Array(keyTargetPose); ok && len(tp) >= targetPoseMinLength {
		return math.Sqrt(tp[0]*tp[0] + tp[1]*tp[1] + tp[2]*tp[2])
	}
	if len(botPose) > botPoseAvgTagDist {
		return botPose[botPoseAvgTagDist]
	}
	return 0
}
