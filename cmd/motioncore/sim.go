package main

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/golang/geo/r3"

	"github.com/blackknights-robotics/motioncore/internal/config"
	"github.com/blackknights-robotics/motioncore/internal/estimator"
	"github.com/blackknights-robotics/motioncore/internal/geom"
	"github.com/blackknights-robotics/motioncore/internal/imu"
	"github.com/blackknights-robotics/motioncore/internal/nettable"
	"github.com/blackknights-robotics/motioncore/internal/robot"
	"github.com/blackknights-robotics/motioncore/internal/serialmux"
	"github.com/blackknights-robotics/motioncore/internal/sim"
	"github.com/blackknights-robotics/motioncore/internal/swerve"
	"github.com/blackknights-robotics/motioncore/internal/telemetry"
	"github.com/blackknights-robotics/motioncore/internal/timeutil"
	"github.com/blackknights-robotics/motioncore/internal/vision"
)

// mockYPRLine is what the "mock" IMU streams: a robot sitting still.
var mockYPRLine = imu.FormatYPR(imu.YPR{})

// cameraMount is the simulated camera's place on the robot.
var cameraMount = vision.Mount{X: 0.3, Z: 0.2}

// table is a network table the sim both writes and reads.
type table interface {
	nettable.Table
	nettable.Writer
}

type simOptions struct {
	Robot     *config.RobotConfig
	Tunables  config.Tunables
	Clock     timeutil.Monotonic
	Publisher telemetry.Publisher
	// Layout is a field layout file; empty uses practiceLayout.
	Layout string
	// Camera is photon, limelight or none.
	Camera string
	// Heading replaces the simulated gyro with a navX stream when set.
	Heading   serialmux.SerialMuxInterface
	Limelight table
	Sticks    robot.Sticks
}

// simBot is a simulated chassis with the real drivetrain, estimator and
// cameras wired on top.
type simBot struct {
	opts    simOptions
	chassis *sim.Chassis
	drive   *swerve.Drivetrain
	est     *estimator.Estimator
	camera  *sim.Camera
	sources []vision.Source
	navx    *imu.Gyro
	teleop  *robot.Teleop
}

// practiceLayout is a small field with one tag on each wall, facing in.
func practiceLayout() *vision.FieldLayout {
	const length, width, height = 16.54, 8.21, 0.5
	tag := func(x, y, yaw float64) geom.Pose3D {
		return geom.Pose3D{
			Translation: r3.Vector{X: x, Y: y, Z: height},
			Rotation:    geom.RotationFromEuler(0, 0, yaw),
		}
	}
	return vision.NewFieldLayout(length, width, map[int]geom.Pose3D{
		1: tag(length, width/2, math.Pi),
		2: tag(0, width/2, 0),
		3: tag(length/2, width, -math.Pi/2),
		4: tag(length/2, 0, math.Pi/2),
	})
}

func buildSim(opts simOptions) (*simBot, error) {
	rc := opts.Robot
	dcfg := swerve.ConfigFromRobot(rc)
	// Start a few metres in front of tag 1, facing it.
	start := geom.NewPose2D(13.5, 4.1, 0)

	chassis, err := sim.NewChassis(dcfg.Locations, dcfg.Offsets, start)
	if err != nil {
		return nil, fmt.Errorf("failed to build chassis: %w", err)
	}
	b := &simBot{opts: opts, chassis: chassis}

	var heading swerve.HeadingSensor = chassis.Gyro
	if opts.Heading != nil {
		b.navx = imu.NewGyro(opts.Clock, rc.GetGyroAngleAdjustmentDeg())
		heading = b.navx
	}
	b.drive, err = swerve.NewDrivetrain(dcfg, chassis.ModuleIO(), heading, opts.Clock, opts.Tunables, opts.Publisher)
	if err != nil {
		return nil, fmt.Errorf("failed to build drivetrain: %w", err)
	}
	b.est = estimator.New(b.drive.Kinematics(), estimator.ConfigFromRobot(rc), start)
	b.drive.SetPoseProvider(b.est)

	layout := practiceLayout()
	if opts.Layout != "" {
		if layout, err = vision.LoadFieldLayout(opts.Layout); err != nil {
			return nil, err
		}
	}
	b.camera = &sim.Camera{
		Layout:        layout,
		RobotToCamera: cameraMount.Transform(),
		Pose:          chassis.Pose,
		Clock:         opts.Clock,
		Latency:       0.03,
		MaxRange:      6,
		HalfFOV:       geom.Radians(35),
		MultiTag:      true,
	}

	if opts.Camera != "none" && opts.Camera != "" {
		src, err := vision.New(vision.Config{Name: opts.Camera, Kind: vision.Kind(opts.Camera), Mount: cameraMount},
			vision.Deps{Detector: b.camera, Layout: layout, Table: opts.Limelight, Clock: opts.Clock})
		if err != nil {
			return nil, err
		}
		b.sources = append(b.sources, src)
	}

	b.teleop = robot.NewTeleop(b.drive, opts.Sticks, dcfg.MaxSpeed, dcfg.MaxAngularSpeed, opts.Tunables, opts.Publisher)
	return b, nil
}

// install registers the sim's periodic work on loop and makes teleop the
// default command.
func (b *simBot) install(loop *robot.Loop, period time.Duration) {
	last := b.opts.Clock.Seconds()
	loop.AddPeriodic("physics", func() {
		now := b.opts.Clock.Seconds()
		dt := now - last
		last = now
		if dt <= 0 || dt > 5*period.Seconds() {
			dt = period.Seconds()
		}
		b.chassis.Step(dt)
	})
	if vision.Kind(b.opts.Camera) == vision.KindLimelight {
		loop.AddPeriodic("limelight", func() { b.camera.PublishLimelight(b.opts.Limelight) })
	}

	poses := robot.NewPoseUpdater(b.drive, b.est, b.opts.Clock, b.opts.Publisher, b.sources...)
	loop.AddPeriodic("pose", poses.Periodic)
	loop.AddPeriodic("drivetrain", b.drive.Periodic)

	truth := telemetry.Prefixed(b.opts.Publisher, "Sim")
	loop.AddPeriodic("truth", func() {
		p := b.chassis.Pose()
		truth.PublishArray("truth", []float64{p.X, p.Y, p.Theta})
	})

	loop.SetDefaultCommand(b.teleop)
	log.Printf("sim robot at %s with %d camera(s)", b.chassis.Pose(), len(b.sources))
}

// resetPose teleports the simulated robot and re-seeds the estimator. It
// must run between ticks.
func (b *simBot) resetPose(p geom.Pose2D) {
	b.chassis.SetPose(p)
	b.est.ResetPose(p, b.drive.RawHeading(), b.drive.ModulePositions())
}
