// Package align drives the robot to a field pose with three motion-profiled
// controllers (x, y, rotation) closed around the pose estimate.
//
// An attempt runs Initialize once, Execute every tick until IsFinished, then
// End. Stop mode brings the robot to rest on the target; pass-through mode
// arrives with speed so several attempts can be chained.
package align

import (
	"math"

	"github.com/google/uuid"

	"github.com/blackknights-robotics/motioncore/internal/config"
	"github.com/blackknights-robotics/motioncore/internal/control"
	"github.com/blackknights-robotics/motioncore/internal/geom"
	"github.com/blackknights-robotics/motioncore/internal/kinematics"
	"github.com/blackknights-robotics/motioncore/internal/monitoring"
	"github.com/blackknights-robotics/motioncore/internal/swerve"
	"github.com/blackknights-robotics/motioncore/internal/telemetry"
	"github.com/blackknights-robotics/motioncore/internal/timeutil"
)

// State is the phase of an alignment attempt.
type State int

const (
	StateInit State = iota
	StateTracking
	StateSettling
	StateDone
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateTracking:
		return "tracking"
	case StateSettling:
		return "settling"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Drivetrain is what the controller commands.
type Drivetrain interface {
	Drive(forward, sideways, rotation float64, opts swerve.DriveOptions)
	ZeroVoltage()
	FieldRelativeVelocity() kinematics.ChassisVelocity
}

// PoseSource provides the fused robot pose.
type PoseSource interface {
	RobotPose() geom.Pose2D
}

// GoalSupplier produces the target pose when an attempt starts.
type GoalSupplier func() geom.Pose2D

// Goal is one attempt's target. It does not change once the attempt starts.
type Goal struct {
	ID               uuid.UUID
	Target           geom.Pose2D
	Profile          string
	StopWhenFinished bool
}

// Options select the tuning profile and mode.
type Options struct {
	Profile          string
	StopWhenFinished bool
}

// settleSlack absorbs clock rounding when comparing the dwell.
const settleSlack = 1e-9

// Controller runs alignment attempts.
type Controller struct {
	drive    Drivetrain
	poses    PoseSource
	supplier GoalSupplier
	opts     Options
	tunables config.Tunables
	clock    timeutil.Monotonic
	debug    telemetry.Publisher
	log      *monitoring.Logger

	x, y, rot *control.ProfiledPID

	state       State
	goal        Goal
	tuning      Tuning
	distSq      float64
	atGoal      bool
	settleStart float64
	lastX       float64
	lastY       float64
	loggedFirst bool
}

// NewController builds a controller. tun and pub may be nil.
func NewController(drive Drivetrain, poses PoseSource, supplier GoalSupplier, opts Options,
	tun config.Tunables, clock timeutil.Monotonic, pub telemetry.Publisher) *Controller {
	if tun == nil {
		tun = config.MapTunables{}
	}
	c := &Controller{
		drive:    drive,
		poses:    poses,
		supplier: supplier,
		opts:     opts,
		tunables: tun,
		clock:    clock,
		debug:    telemetry.Prefixed(pub, "debug"),
		log:      monitoring.Tagged("align"),
	}
	c.tuning = LoadTuning(tun, opts.Profile)
	c.x = control.NewProfiledPID(c.tuning.X.P, c.tuning.X.I, c.tuning.X.D, c.tuning.XConstraints)
	c.y = control.NewProfiledPID(c.tuning.Y.P, c.tuning.Y.I, c.tuning.Y.D, c.tuning.YConstraints)
	c.rot = control.NewProfiledPID(c.tuning.Rotation.P, c.tuning.Rotation.I, c.tuning.Rotation.D, c.tuning.RotationConstraints)
	c.rot.EnableContinuousInput(-math.Pi, math.Pi)
	c.log.Debugf("created align controller with %q profile", opts.Profile)
	return c
}

// State returns the attempt phase.
func (c *Controller) State() State { return c.state }

// Goal returns the current attempt's goal.
func (c *Controller) Goal() Goal { return c.goal }

// Tuning returns the tuning in effect.
func (c *Controller) Tuning() Tuning { return c.tuning }

// DistanceSquared returns the squared planar distance to the target as of
// the last Execute.
func (c *Controller) DistanceSquared() float64 { return c.distSq }

func (c *Controller) liveTuning() bool { return c.tunables.Get("align_live_tuning", 0) != 0 }

func (c *Controller) applyTuning(t Tuning) {
	xc, yc := t.XConstraints, t.YConstraints
	if !c.opts.StopWhenFinished {
		xc.MaxAcceleration = t.PassThroughAccel
		yc.MaxAcceleration = t.PassThroughAccel
	}
	c.x.SetPID(t.X.P, t.X.I, t.X.D)
	c.y.SetPID(t.Y.P, t.Y.I, t.Y.D)
	c.rot.SetPID(t.Rotation.P, t.Rotation.I, t.Rotation.D)
	c.x.SetConstraints(xc)
	c.y.SetConstraints(yc)
	c.rot.SetConstraints(t.RotationConstraints)
	c.x.SetTolerance(t.PositionTolerance, math.Inf(1))
	c.y.SetTolerance(t.PositionTolerance, math.Inf(1))
	c.rot.SetTolerance(t.RotationTolerance, math.Inf(1))
	c.tuning = t
}

// Initialize starts an attempt: it reads the goal, snapshots tuning and
// restarts the controllers from the current pose and velocity.
func (c *Controller) Initialize() {
	c.goal = Goal{
		ID:               uuid.New(),
		Target:           c.supplier(),
		Profile:          c.opts.Profile,
		StopWhenFinished: c.opts.StopWhenFinished,
	}
	c.distSq = math.MaxFloat64
	c.atGoal = false
	c.lastX, c.lastY = 0, 0
	c.loggedFirst = false

	c.applyTuning(LoadTuning(c.tunables, c.opts.Profile))

	pose := c.poses.RobotPose()
	target := c.goal.Target
	v := c.drive.FieldRelativeVelocity()
	vx, vy := v.Forward, v.Sideways
	if !c.opts.StopWhenFinished {
		// Start as if the robot had run up from the look-ahead pose.
		ahead := lookAheadPose(pose, target, c.tuning.LookAhead)
		vx = runUpVelocity(vx, pose.X-ahead.X, target.X-pose.X, c.x.Constraints())
		vy = runUpVelocity(vy, pose.Y-ahead.Y, target.Y-pose.Y, c.y.Constraints())
	}
	c.x.Reset(pose.X, vx)
	c.y.Reset(pose.Y, vy)
	c.rot.Reset(pose.Theta, v.Angular)

	c.x.SetGoal(target.X)
	c.y.SetGoal(target.Y)
	c.rot.SetGoal(target.Theta)

	c.state = StateTracking
	c.log.Infof("attempt %s: aligning to %s (profile %q, stop=%t)",
		c.goal.ID, c.goal.Target, c.goal.Profile, c.goal.StopWhenFinished)
}

// lookAheadPose returns a pose dist metres behind robot on the line from
// target through robot. When the robot is on the target the robot heading
// gives the line.
func lookAheadPose(robot, target geom.Pose2D, dist float64) geom.Pose2D {
	dx, dy := robot.X-target.X, robot.Y-target.Y
	n := math.Hypot(dx, dy)
	if n == 0 {
		dx, dy, n = -math.Cos(robot.Theta), -math.Sin(robot.Theta), 1
	}
	return geom.NewPose2D(robot.X+dist*dx/n, robot.Y+dist*dy/n, robot.Theta)
}

// runUpVelocity is the speed toward the goal after accelerating from v0 over
// travelled metres, capped by the profile limits. With nothing left to cover
// v0 is returned unchanged.
func runUpVelocity(v0, travelled, remaining float64, c control.Constraints) float64 {
	dir := control.Sign(remaining)
	if dir == 0 {
		return v0
	}
	along := math.Max(0, v0*dir)
	v := math.Sqrt(along*along + 2*c.MaxAcceleration*math.Abs(travelled))
	return dir * math.Min(v, c.MaxVelocity)
}

// Execute runs one control cycle.
func (c *Controller) Execute() {
	if c.state != StateTracking && c.state != StateSettling {
		return
	}
	if c.liveTuning() {
		c.applyTuning(LoadTuning(c.tunables, c.opts.Profile))
	}

	pose := c.poses.RobotPose()
	target := c.goal.Target
	c.distSq = (pose.X-target.X)*(pose.X-target.X) + (pose.Y-target.Y)*(pose.Y-target.Y)

	xOut := c.x.Calculate(pose.X)
	yOut := c.y.Calculate(pose.Y)
	rotOut := c.rot.Calculate(pose.Theta)

	if !c.x.AtGoal() && !c.x.AtSetpoint() {
		xOut += control.Sign(xOut) * c.tuning.Nudge
	}
	if !c.y.AtGoal() && !c.y.AtSetpoint() {
		yOut += control.Sign(yOut) * c.tuning.Nudge
	}

	c.debug.Publish("Dist to target (Error)", c.distSq)
	c.debug.Publish("X Pid Error", c.x.PositionError())
	c.debug.Publish("Y Pid Error", c.y.PositionError())
	c.debug.Publish("Rot Pid Error", c.rot.PositionError())
	telemetry.PublishBool(c.debug, "X Pid setpoint", c.x.AtSetpoint())
	telemetry.PublishBool(c.debug, "X Pid goal", c.x.AtGoal())
	telemetry.PublishBool(c.debug, "Y Pid setpoint", c.y.AtSetpoint())
	telemetry.PublishBool(c.debug, "Y Pid goal", c.y.AtGoal())
	telemetry.PublishBool(c.debug, "Rot Pid setpoint", c.rot.AtSetpoint())
	telemetry.PublishBool(c.debug, "Rot Pid goal", c.rot.AtGoal())
	c.debug.Publish("Rot setpoint", c.rot.Setpoint().Position)
	c.debug.Publish("Xms", xOut)
	c.debug.Publish("Yms", yOut)
	c.debug.Publish("Rrads", rotOut)
	c.debug.PublishArray("target_pose", []float64{target.X, target.Y, target.Theta})

	if !c.loggedFirst {
		c.loggedFirst = true
		c.log.Debugf("attempt %s: first commanded speeds %.3f %.3f", c.goal.ID, xOut, yOut)
	}

	c.drive.Drive(xOut, yOut, rotOut, swerve.DriveOptions{
		FieldRelative:       true,
		UseEstimatorHeading: c.opts.StopWhenFinished,
	})
	c.lastX, c.lastY = xOut, yOut

	c.atGoal = c.goalReached()
	switch {
	case c.atGoal && c.state == StateTracking:
		c.state = StateSettling
		c.settleStart = c.clock.Seconds()
		c.log.Infof("attempt %s: hit goal, waiting %.0f ms", c.goal.ID, c.tuning.FinishTime*1000)
	case !c.atGoal && c.state == StateSettling:
		c.state = StateTracking
		c.log.Debugf("attempt %s: left goal while settling", c.goal.ID)
	}
}

func (c *Controller) goalReached() bool {
	if c.opts.StopWhenFinished {
		return c.x.AtGoal() && c.y.AtGoal() && c.rot.AtGoal()
	}
	tol := c.tuning.DistanceTolerance
	return c.distSq <= tol*tol && c.rot.AtGoal()
}

// IsFinished reports whether the goal has held for the settle time.
func (c *Controller) IsFinished() bool {
	if c.state != StateSettling || !c.atGoal {
		return false
	}
	return c.clock.Seconds()-c.settleStart >= c.tuning.FinishTime-settleSlack
}

// End finishes the attempt. Stop mode cuts the drive; pass-through keeps the
// last translation command with no rotation.
func (c *Controller) End(interrupted bool) {
	if c.opts.StopWhenFinished {
		c.drive.ZeroVoltage()
	} else {
		c.drive.Drive(c.lastX, c.lastY, 0, swerve.DriveOptions{FieldRelative: true, UseEstimatorHeading: true})
	}
	if interrupted {
		c.state = StateCancelled
	} else {
		c.state = StateDone
	}
	c.log.Infof("attempt %s %s: final commanded speeds %.3f %.3f", c.goal.ID, c.state, c.lastX, c.lastY)
}
