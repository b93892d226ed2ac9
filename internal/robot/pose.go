package robot

import (
	"github.com/blackknights-robotics/motioncore/internal/estimator"
	"github.com/blackknights-robotics/motioncore/internal/geom"
	"github.com/blackknights-robotics/motioncore/internal/kinematics"
	"github.com/blackknights-robotics/motioncore/internal/telemetry"
	"github.com/blackknights-robotics/motioncore/internal/timeutil"
	"github.com/blackknights-robotics/motioncore/internal/vision"
)

// Odometry is the part of the drivetrain the estimator reads each tick.
type Odometry interface {
	RawHeading() float64
	ModulePositions() [kinematics.NumModules]kinematics.ModulePosition
}

// PoseUpdater feeds the estimator once per tick: wheel odometry first, then
// every enabled camera.
type PoseUpdater struct {
	odom    Odometry
	est     *estimator.Estimator
	sources []vision.Source
	clock   timeutil.Monotonic
	pub     telemetry.Publisher
}

// NewPoseUpdater wires odometry and cameras into est. pub may be nil.
func NewPoseUpdater(odom Odometry, est *estimator.Estimator, clock timeutil.Monotonic, pub telemetry.Publisher, sources ...vision.Source) *PoseUpdater {
	return &PoseUpdater{
		odom:    odom,
		est:     est,
		sources: sources,
		clock:   clock,
		pub:     telemetry.Prefixed(pub, "Pose"),
	}
}

// Periodic runs one estimator update.
func (u *PoseUpdater) Periodic() {
	u.est.Update(u.clock.Seconds(), u.odom.RawHeading(), u.odom.ModulePositions())

	for _, src := range u.sources {
		if !src.Enabled() {
			continue
		}
		s, ok := src.Estimate(geom.Pose3DFrom2D(u.est.RobotPose()))
		if !ok {
			continue
		}
		if u.est.AddVisionSample(s) {
			u.pub.PublishArray(src.Name(), poseArray(s.Pose.ToPose2D()))
		}
	}

	u.pub.PublishArray("robot", poseArray(u.est.RobotPose()))
	u.pub.PublishArray("odometry", poseArray(u.est.OdometryPose()))
	st := u.est.Stats()
	u.pub.Publish("vision_accepted", float64(st.Accepted))
	u.pub.Publish("vision_rejected", float64(st.RejectedStale+st.RejectedInvalid))
}

func poseArray(p geom.Pose2D) []float64 { return []float64{p.X, p.Y, p.Theta} }
