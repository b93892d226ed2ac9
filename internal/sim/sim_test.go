package sim

import (
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackknights-robotics/motioncore/internal/geom"
	"github.com/blackknights-robotics/motioncore/internal/kinematics"
	"github.com/blackknights-robotics/motioncore/internal/nettable"
	"github.com/blackknights-robotics/motioncore/internal/swerve"
	"github.com/blackknights-robotics/motioncore/internal/timeutil"
	"github.com/blackknights-robotics/motioncore/internal/vision"
)

func TestMotorClosedLoop(t *testing.T) {
	m := NewDriveMotor()
	m.SetReference(2, swerve.ControlVelocity, 0.5)
	assert.Equal(t, 2.0, m.Velocity())
	m.Step(0.5)
	assert.InDelta(t, 1.0, m.Position(), 1e-12)

	v, mode, ff := m.Reference()
	assert.Equal(t, 2.0, v)
	assert.Equal(t, swerve.ControlVelocity, mode)
	assert.Equal(t, 0.5, ff)
	_, open := m.Voltage()
	assert.False(t, open)

	m.SetVoltage(2.3216)
	assert.InDelta(t, 1.0, m.Velocity(), 1e-12)
	volts, open := m.Voltage()
	assert.True(t, open)
	assert.Equal(t, 2.3216, volts)
}

func TestSteerMotorWraps(t *testing.T) {
	m := NewSteerMotor(-math.Pi / 2)
	assert.InDelta(t, 3*math.Pi/2, m.Position(), 1e-12)

	m.SetReference(-0.1, swerve.ControlPosition, 0)
	assert.InDelta(t, 2*math.Pi-0.1, m.Position(), 1e-12)
	assert.Zero(t, m.Velocity())
}

func TestGyroResetKeepsAbsolute(t *testing.T) {
	g := &Gyro{}
	g.Integrate(1, 0.5)
	assert.InDelta(t, 0.5, g.Angle(), 1e-12)
	assert.Equal(t, 1.0, g.Rate())

	g.Reset()
	assert.Zero(t, g.Angle())
	g.Set(0.25)
	assert.InDelta(t, 0.25, g.Angle(), 1e-12)
}

func newTestChassis(t *testing.T, start geom.Pose2D) *Chassis {
	t.Helper()
	offsets := [kinematics.NumModules]float64{0, math.Pi / 2, -math.Pi / 2, math.Pi}
	c, err := NewChassis(kinematics.RectangularLocations(0.6, 0.6), offsets, start)
	require.NoError(t, err)
	return c
}

func TestChassisIntegratesTranslation(t *testing.T) {
	c := newTestChassis(t, geom.NewPose2D(1, 2, 0))
	io := c.ModuleIO()
	assert.Equal(t, kinematics.ModuleNames[0], io[0].Name)

	for i := range c.Drive {
		c.Drive[i].SetReference(1, swerve.ControlVelocity, 0)
	}
	c.Step(0.5)
	p := c.Pose()
	assert.InDelta(t, 1.5, p.X, 1e-9)
	assert.InDelta(t, 2.0, p.Y, 1e-9)
	assert.InDelta(t, 0, c.Gyro.Angle(), 1e-9)

	// Wheels turned a quarter turn, offsets included, drive the robot sideways.
	for i := range c.Steer {
		c.Steer[i].SetReference(math.Pi/2+c.offsets[i], swerve.ControlPosition, 0)
	}
	c.Step(0.5)
	p = c.Pose()
	assert.InDelta(t, 1.5, p.X, 1e-9)
	assert.InDelta(t, 2.5, p.Y, 1e-9)
}

func TestChassisSetPoseMovesGyro(t *testing.T) {
	c := newTestChassis(t, geom.NewPose2D(0, 0, 0))
	c.SetPose(geom.NewPose2D(3, 4, math.Pi/2))
	assert.Equal(t, geom.NewPose2D(3, 4, math.Pi/2), c.Pose())
	assert.InDelta(t, math.Pi/2, c.Gyro.Angle(), 1e-12)
}

func testLayout() *vision.FieldLayout {
	tag := func(x, y float64) geom.Pose3D {
		return geom.Pose3D{Translation: r3.Vector{X: x, Y: y, Z: 0.5}, Rotation: geom.RotationFromEuler(0, 0, math.Pi)}
	}
	return vision.NewFieldLayout(16, 8, map[int]geom.Pose3D{
		1: tag(5, 0),
		2: tag(3, 1),
		3: tag(12, 0),
	})
}

func newTestCamera(pose geom.Pose2D) (*Camera, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	mono := timeutil.NewMonotonic(clock)
	clock.Advance(time.Second)
	return &Camera{
		Layout:   testLayout(),
		Pose:     func() geom.Pose2D { return pose },
		Clock:    mono,
		Latency:  0.03,
		MaxRange: 6,
	}, clock
}

func TestCameraFramesNearestFirst(t *testing.T) {
	c, _ := newTestCamera(geom.NewPose2D(0, 0, 0))

	frames, err := c.UnreadFrames()
	require.NoError(t, err)
	require.Len(t, frames, 1)
	f := frames[0]
	assert.InDelta(t, 0.97, f.Timestamp, 1e-9)
	require.Len(t, f.Targets, 2, "tag 3 is out of range")
	assert.Equal(t, 2, f.Targets[0].ID)
	assert.Equal(t, 1, f.Targets[1].ID)
	assert.InDelta(t, math.Sqrt(25+0.25), f.Targets[1].BestCameraToTarget.Norm(), 1e-9)
	assert.Nil(t, f.MultiTag)

	c.MultiTag = true
	frames, _ = c.UnreadFrames()
	require.NotNil(t, frames[0].MultiTag)
	assert.Equal(t, []int{2, 1}, frames[0].MultiTag.TagIDs)
}

func TestCameraSeesNothingBehind(t *testing.T) {
	c, _ := newTestCamera(geom.NewPose2D(0, 0, math.Pi))
	frames, err := c.UnreadFrames()
	require.NoError(t, err)
	assert.Empty(t, frames[0].Targets)

	c.HalfFOV = geom.Radians(10)
	c.Pose = func() geom.Pose2D { return geom.NewPose2D(0, 0, 0) }
	frames, _ = c.UnreadFrames()
	require.Len(t, frames[0].Targets, 1, "tag 2 is 18° off axis")
	assert.Equal(t, 1, frames[0].Targets[0].ID)
}

func TestCameraPublishesLimelightTable(t *testing.T) {
	c, _ := newTestCamera(geom.NewPose2D(0, 0, 0))
	table := nettable.NewMemory()

	c.PublishLimelight(table)
	hb, ok := table.Number("hb")
	require.True(t, ok)
	assert.Equal(t, 1.0, hb)
	tl, _ := table.Number("tl")
	assert.InDelta(t, 30, tl, 1e-9)
	pose, ok := table.Array("botpose_wpiblue")
	require.True(t, ok)
	require.Len(t, pose, 10)
	assert.Equal(t, 2.0, pose[7])
	_, ok = table.Array("targetpose_cameraspace")
	assert.True(t, ok)

	c.Pose = func() geom.Pose2D { return geom.NewPose2D(0, 0, math.Pi) }
	c.PublishLimelight(table)
	hb, _ = table.Number("hb")
	assert.Equal(t, 2.0, hb)
	pose, _ = table.Array("botpose_wpiblue")
	assert.Empty(t, pose)
}
