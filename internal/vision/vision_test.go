package vision_test

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackknights-robotics/motioncore/internal/geom"
	"github.com/blackknights-robotics/motioncore/internal/nettable"
	"github.com/blackknights-robotics/motioncore/internal/sim"
	"github.com/blackknights-robotics/motioncore/internal/timeutil"
	"github.com/blackknights-robotics/motioncore/internal/vision"
)

const eps = 1e-9

const layoutJSON = `{
  "tags": [
    {"ID": 1, "pose": {"translation": {"x": 5, "y": 0, "z": 0.5},
      "rotation": {"quaternion": {"W": 0, "X": 0, "Y": 0, "Z": 1}}}},
    {"ID": 2, "pose": {"translation": {"x": 5, "y": 2, "z": 0.5},
      "rotation": {"quaternion": {"W": 0, "X": 0, "Y": 0, "Z": 1}}}}
  ],
  "field": {"length": 17.548, "width": 8.052}
}`

var mount = geom.Transform3D{Translation: r3.Vector{X: 0.3, Z: 0.2}}

func testLayout(t *testing.T) *vision.FieldLayout {
	t.Helper()
	l, err := vision.ParseFieldLayout(strings.NewReader(layoutJSON))
	require.NoError(t, err)
	return l
}

// cameraToTag is what a camera on a robot at pose would measure for tag.
func cameraToTag(t *testing.T, l *vision.FieldLayout, id int, pose geom.Pose2D) geom.Transform3D {
	t.Helper()
	tag, err := l.Tag(id)
	require.NoError(t, err)
	camera := geom.Pose3DFrom2D(pose).TransformBy(mount)
	return tag.RelativeTo(camera)
}

type frames struct {
	frames []vision.Frame
	err    error
}

func (f *frames) UnreadFrames() ([]vision.Frame, error) {
	out := f.frames
	f.frames = nil
	return out, f.err
}

func TestParseFieldLayout(t *testing.T) {
	l := testLayout(t)
	assert.Equal(t, 17.548, l.Length)
	assert.Equal(t, []int{1, 2}, l.IDs())

	tag, err := l.Tag(1)
	require.NoError(t, err)
	assert.InDelta(t, math.Pi, math.Abs(tag.Rotation.Yaw()), eps)

	_, err = l.Tag(7)
	assert.True(t, errors.Is(err, vision.ErrUnknownTag))

	_, err = vision.ParseFieldLayout(strings.NewReader(`{"tags":[{"ID":1},{"ID":1}]}`))
	assert.Error(t, err)
}

func TestPhotonSingleTag(t *testing.T) {
	l := testLayout(t)
	truth := geom.NewPose2D(2, 0.5, 0.1)
	det := &frames{frames: []vision.Frame{{
		Timestamp: 3.25,
		Targets:   []vision.Target{{ID: 1, BestCameraToTarget: cameraToTag(t, l, 1, truth)}},
	}}}
	src := vision.NewPhotonSource("front", det, l, mount)

	s, ok := src.Estimate(geom.Pose3D{})
	require.True(t, ok)
	got := s.Pose.ToPose2D()
	assert.InDelta(t, truth.X, got.X, 1e-9)
	assert.InDelta(t, truth.Y, got.Y, 1e-9)
	assert.InDelta(t, truth.Theta, got.Theta, 1e-9)
	assert.Equal(t, 3.25, s.Timestamp)
	assert.Equal(t, "front", s.Source)
	assert.InDelta(t, cameraToTag(t, l, 1, truth).Norm(), s.Distance, eps)

	_, ok = src.Estimate(geom.Pose3D{})
	assert.False(t, ok, "frames are consumed")
}

func TestPhotonPicksSolutionClosestToPrior(t *testing.T) {
	l := testLayout(t)
	truth := geom.NewPose2D(2, 0.5, 0)
	decoy := geom.NewPose2D(1, -1.5, 0.4)
	det := &frames{}
	src := vision.NewPhotonSource("front", det, l, mount)

	frame := vision.Frame{Targets: []vision.Target{{
		ID:                 1,
		BestCameraToTarget: cameraToTag(t, l, 1, decoy),
		AltCameraToTarget:  cameraToTag(t, l, 1, truth),
	}}}

	det.frames = []vision.Frame{frame}
	s, ok := src.Estimate(geom.Pose3DFrom2D(geom.NewPose2D(2.1, 0.4, 0)))
	require.True(t, ok)
	assert.InDelta(t, truth.X, s.Pose.Translation.X, 1e-9)
	assert.InDelta(t, truth.Y, s.Pose.Translation.Y, 1e-9)

	det.frames = []vision.Frame{frame}
	s, ok = src.Estimate(geom.Pose3DFrom2D(geom.NewPose2D(1, -1.4, 0)))
	require.True(t, ok)
	assert.InDelta(t, decoy.X, s.Pose.Translation.X, 1e-9)
}

func TestPhotonPrefersMultiTag(t *testing.T) {
	l := testLayout(t)
	truth := geom.NewPose2D(1.5, 1, -0.2)
	camera := geom.Pose3DFrom2D(truth).TransformBy(mount)
	det := &frames{frames: []vision.Frame{
		{Timestamp: 1, Targets: []vision.Target{{ID: 2, BestCameraToTarget: cameraToTag(t, l, 2, geom.Pose2D{})}}},
		{Timestamp: 2, Targets: []vision.Target{
			{ID: 1, BestCameraToTarget: cameraToTag(t, l, 1, truth)},
			{ID: 2, BestCameraToTarget: cameraToTag(t, l, 2, truth)},
		}, MultiTag: &vision.MultiTag{FieldToCamera: geom.Transform3D(camera), TagIDs: []int{1, 2}}},
	}}
	src := vision.NewPhotonSource("front", det, l, mount)

	s, ok := src.Estimate(geom.Pose3D{})
	require.True(t, ok)
	assert.Equal(t, 2.0, s.Timestamp, "newest frame wins")
	got := s.Pose.ToPose2D()
	assert.InDelta(t, truth.X, got.X, 1e-9)
	assert.InDelta(t, truth.Y, got.Y, 1e-9)
	assert.InDelta(t, truth.Theta, got.Theta, 1e-9)
}

func TestPhotonAbsent(t *testing.T) {
	l := testLayout(t)
	tests := []struct {
		name string
		det  *frames
	}{
		{"no frames", &frames{}},
		{"error", &frames{frames: []vision.Frame{{Targets: []vision.Target{{ID: 1}}}}, err: errors.New("camera unplugged")}},
		{"no targets", &frames{frames: []vision.Frame{{Timestamp: 1}}}},
		{"unknown tag", &frames{frames: []vision.Frame{{Targets: []vision.Target{{ID: 9, BestCameraToTarget: mount}}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := vision.NewPhotonSource("front", tt.det, l, mount).Estimate(geom.Pose3D{})
			assert.False(t, ok)
		})
	}
}

func TestSourceEnable(t *testing.T) {
	l := testLayout(t)
	det := &frames{frames: []vision.Frame{{Targets: []vision.Target{{ID: 1, BestCameraToTarget: cameraToTag(t, l, 1, geom.Pose2D{})}}}}}
	src := vision.NewPhotonSource("front", det, l, mount)
	assert.True(t, src.Enabled())
	src.SetEnabled(false)
	_, ok := src.Estimate(geom.Pose3D{})
	assert.False(t, ok)
	src.SetEnabled(true)
	_, ok = src.Estimate(geom.Pose3D{})
	assert.True(t, ok)
}

func newLimelight(t *testing.T) (*vision.LimelightSource, *nettable.Memory, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	mono := timeutil.NewMonotonic(clock)
	clock.Advance(10 * time.Second)
	tbl := nettable.NewMemory()
	return vision.NewLimelightSource("limelight", tbl, mono, geom.Transform3D{}), tbl, clock
}

func TestLimelightTimestampAndPose(t *testing.T) {
	src, tbl, _ := newLimelight(t)
	tbl.SetArray("botpose_wpiblue", []float64{3, 4, 0, 0, 0, 90, 30, 2, 0, 2.5})
	tbl.SetNumber("tl", 20)
	tbl.SetNumber("cl", 10)
	tbl.SetNumber("hb", 1)

	s, ok := src.Estimate(geom.Pose3D{})
	require.True(t, ok)
	assert.InDelta(t, 10-0.02-0.01, s.Timestamp, eps)
	got := s.Pose.ToPose2D()
	assert.InDelta(t, 3, got.X, eps)
	assert.InDelta(t, 4, got.Y, eps)
	assert.InDelta(t, math.Pi/2, got.Theta, eps)
	assert.Equal(t, 2.5, s.Distance)

	tbl.SetArray("targetpose_cameraspace", []float64{0, 3, 4, 0, 0, 0})
	tbl.SetNumber("hb", 2)
	s, ok = src.Estimate(geom.Pose3D{})
	require.True(t, ok)
	assert.InDelta(t, 5, s.Distance, eps)
}

func TestLimelightAbsent(t *testing.T) {
	full := []float64{3, 4, 0, 0, 0, 90, 30, 2, 0, 2.5}
	tests := []struct {
		name  string
		setup func(*nettable.Memory)
	}{
		{"missing pose", func(m *nettable.Memory) { m.Delete("botpose_wpiblue") }},
		{"short pose", func(m *nettable.Memory) { m.SetArray("botpose_wpiblue", []float64{1, 2, 3}) }},
		{"empty pose", func(m *nettable.Memory) { m.SetArray("botpose_wpiblue", []float64{}) }},
		{"no tags", func(m *nettable.Memory) { m.SetArray("botpose_wpiblue", []float64{3, 4, 0, 0, 0, 90, 30, 0}) }},
		{"missing capture latency", func(m *nettable.Memory) { m.Delete("cl") }},
		{"missing pipeline latency", func(m *nettable.Memory) { m.Delete("tl") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, tbl, _ := newLimelight(t)
			tbl.SetArray("botpose_wpiblue", full)
			tbl.SetNumber("tl", 20)
			tbl.SetNumber("cl", 10)
			tt.setup(tbl)
			_, ok := src.Estimate(geom.Pose3D{})
			assert.False(t, ok)
		})
	}
}

func TestLimelightStaleHeartbeat(t *testing.T) {
	src, tbl, _ := newLimelight(t)
	tbl.SetArray("botpose_wpiblue", []float64{3, 4, 0, 0, 0, 90})
	tbl.SetNumber("tl", 20)
	tbl.SetNumber("cl", 10)
	tbl.SetNumber("hb", 7)

	_, ok := src.Estimate(geom.Pose3D{})
	require.True(t, ok)
	_, ok = src.Estimate(geom.Pose3D{})
	assert.False(t, ok, "same frame is not reported twice")

	tbl.SetNumber("hb", 8)
	_, ok = src.Estimate(geom.Pose3D{})
	assert.True(t, ok)
}

func TestLimelightAppliesMount(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	tbl := nettable.NewMemory()
	src := vision.NewLimelightSource("limelight", tbl, timeutil.NewMonotonic(clock), mount)
	tbl.SetArray("botpose_wpiblue", []float64{3.3, 4, 0.2, 0, 0, 0})
	tbl.SetNumber("tl", 0)
	tbl.SetNumber("cl", 0)

	s, ok := src.Estimate(geom.Pose3D{})
	require.True(t, ok)
	assert.InDelta(t, 3, s.Pose.Translation.X, eps)
	assert.InDelta(t, 0, s.Pose.Translation.Z, eps)
}

func TestSimCameraRoundTrip(t *testing.T) {
	l := testLayout(t)
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	mono := timeutil.NewMonotonic(clock)
	clock.Advance(5 * time.Second)
	truth := geom.NewPose2D(2, 1, 0.15)
	cam := &sim.Camera{
		Layout:        l,
		RobotToCamera: mount,
		Pose:          func() geom.Pose2D { return truth },
		Clock:         mono,
		Latency:       0.03,
	}

	photon := vision.NewPhotonSource("front", cam, l, mount)
	s, ok := photon.Estimate(geom.Pose3DFrom2D(truth))
	require.True(t, ok)
	assert.InDelta(t, 4.97, s.Timestamp, eps)
	assert.InDelta(t, truth.X, s.Pose.Translation.X, 1e-9)
	assert.InDelta(t, truth.Y, s.Pose.Translation.Y, 1e-9)

	tbl := nettable.NewMemory()
	cam.PublishLimelight(tbl)
	ll := vision.NewLimelightSource("limelight", tbl, mono, mount)
	s, ok = ll.Estimate(geom.Pose3D{})
	require.True(t, ok)
	got := s.Pose.ToPose2D()
	assert.InDelta(t, truth.X, got.X, 1e-9)
	assert.InDelta(t, truth.Y, got.Y, 1e-9)
	assert.InDelta(t, truth.Theta, got.Theta, 1e-9)
	assert.InDelta(t, 4.97, s.Timestamp, eps)
}

func TestNewSelectsVariant(t *testing.T) {
	l := testLayout(t)
	clock := timeutil.NewMonotonic(timeutil.NewMockClock(time.Unix(0, 0)))

	src, err := vision.New(vision.Config{Name: "front", Kind: vision.KindPhoton}, vision.Deps{Detector: &frames{}, Layout: l})
	require.NoError(t, err)
	assert.IsType(t, &vision.PhotonSource{}, src)
	assert.Equal(t, "front", src.Name())

	src, err = vision.New(vision.Config{Name: "ll", Kind: vision.KindLimelight}, vision.Deps{Table: nettable.NewMemory(), Clock: clock})
	require.NoError(t, err)
	assert.IsType(t, &vision.LimelightSource{}, src)

	_, err = vision.New(vision.Config{Name: "ll", Kind: vision.KindLimelight}, vision.Deps{})
	assert.Error(t, err)
	_, err = vision.New(vision.Config{Name: "x", Kind: "zed"}, vision.Deps{})
	assert.Error(t, err)
}

func TestMountTransform(t *testing.T) {
	m := vision.Mount{X: 0.3, Z: 0.2, YawDeg: 90}
	tr := m.Transform()
	assert.InDelta(t, 0.3, tr.Translation.X, eps)
	assert.InDelta(t, math.Pi/2, tr.Rotation.Yaw(), eps)
}
