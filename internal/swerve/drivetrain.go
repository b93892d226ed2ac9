package swerve

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"

	"github.com/blackknights-robotics/motioncore/internal/config"
	"github.com/blackknights-robotics/motioncore/internal/control"
	"github.com/blackknights-robotics/motioncore/internal/geom"
	"github.com/blackknights-robotics/motioncore/internal/kinematics"
	"github.com/blackknights-robotics/motioncore/internal/telemetry"
	"github.com/blackknights-robotics/motioncore/internal/timeutil"
)

const (
	// stoppedDirectionSlewRate lets the direction snap when the robot is not
	// moving.
	stoppedDirectionSlewRate = 500.0

	// Direction changes narrower than this are steered through; wider than
	// reverseThreshold the robot slows to a stop and flips.
	steerThreshold   = 0.45 * math.Pi
	reverseThreshold = 0.85 * math.Pi

	stoppedMagnitude = 1e-4
)

// Config is the fixed geometry and limits of a drivetrain.
type Config struct {
	Locations       [kinematics.NumModules]r2.Point
	Offsets         [kinematics.NumModules]float64
	MaxSpeed        float64 // m/s per wheel
	MaxAngularSpeed float64 // rad/s

	DirectionSlewRate  float64
	MagnitudeSlewRate  float64
	RotationalSlewRate float64

	Feedforward control.SimpleMotorFeedforward
}

// ConfigFromRobot derives a drivetrain Config from robot constants.
func ConfigFromRobot(rc *config.RobotConfig) Config {
	ks, kv, ka, dt := rc.GetDriveFeedforward()
	return Config{
		Locations:          kinematics.RectangularLocations(rc.GetWheelBaseM(), rc.GetTrackWidthM()),
		Offsets:            rc.GetModuleOffsetsRad(),
		MaxSpeed:           rc.GetMaxSpeedMPS(),
		MaxAngularSpeed:    rc.GetMaxAngularSpeedRPS(),
		DirectionSlewRate:  rc.GetDirectionSlewRate(),
		MagnitudeSlewRate:  rc.GetMagnitudeSlewRate(),
		RotationalSlewRate: rc.GetRotationalSlewRate(),
		Feedforward:        control.SimpleMotorFeedforward{KS: ks, KV: kv, KA: ka, Dt: dt},
	}
}

// DriveOptions modify a Drive request.
type DriveOptions struct {
	// FieldRelative interprets forward/sideways in the field frame.
	FieldRelative bool
	// RateLimit applies direction, magnitude and rotation slew shaping.
	RateLimit bool
	// UseEstimatorHeading converts field-relative requests with the pose
	// estimator's heading instead of the raw heading sensor.
	UseEstimatorHeading bool
}

// PoseProvider supplies the fused robot pose.
type PoseProvider interface {
	RobotPose() geom.Pose2D
}

// Drivetrain aggregates four modules and a heading sensor. It is driven from
// the control loop and is not safe for concurrent use.
type Drivetrain struct {
	cfg     Config
	modules [kinematics.NumModules]*Module
	gyro    HeadingSensor
	kin     *kinematics.SwerveKinematics

	clock    timeutil.Monotonic
	tunables config.Tunables
	pub      telemetry.Publisher
	pose     PoseProvider

	currentDirection float64
	currentMagnitude float64
	prevTime         float64
	magLimiter       *control.SlewRateLimiter
	rotLimiter       *control.SlewRateLimiter
}

// NewDrivetrain builds a drivetrain over the given module hardware in
// FL, FR, RL, RR order.
func NewDrivetrain(cfg Config, io [kinematics.NumModules]ModuleIO, gyro HeadingSensor, clock timeutil.Monotonic, tun config.Tunables, pub telemetry.Publisher) (*Drivetrain, error) {
	if gyro == nil {
		return nil, fmt.Errorf("drivetrain requires a heading sensor")
	}
	if cfg.MaxSpeed <= 0 {
		return nil, fmt.Errorf("max speed must be positive, got %f", cfg.MaxSpeed)
	}
	kin, err := kinematics.NewSwerveKinematics(cfg.Locations)
	if err != nil {
		return nil, err
	}
	if tun == nil {
		tun = config.MapTunables{}
	}
	if pub == nil {
		pub = telemetry.Nop{}
	}

	d := &Drivetrain{
		cfg:        cfg,
		gyro:       gyro,
		kin:        kin,
		clock:      clock,
		tunables:   tun,
		pub:        pub,
		prevTime:   clock.Seconds(),
		magLimiter: control.NewSlewRateLimiter(clock, cfg.MagnitudeSlewRate),
		rotLimiter: control.NewSlewRateLimiter(clock, cfg.RotationalSlewRate),
	}
	var angles [kinematics.NumModules]float64
	for i, mio := range io {
		if mio.Drive == nil || mio.Steer == nil {
			return nil, fmt.Errorf("module %d is missing an actuator", i)
		}
		if mio.Name == "" {
			mio.Name = kinematics.ModuleNames[i]
		}
		d.modules[i] = NewModule(mio, cfg.Offsets[i], cfg.Feedforward, tun, pub)
		angles[i] = d.modules[i].State().Angle
	}
	kin.ResetHeadings(angles)
	return d, nil
}

// SetPoseProvider attaches the pose estimator used for estimator-heading
// field-relative driving and field-relative velocity.
func (d *Drivetrain) SetPoseProvider(p PoseProvider) { d.pose = p }

// Kinematics returns the drivetrain's kinematics.
func (d *Drivetrain) Kinematics() *kinematics.SwerveKinematics { return d.kin }

// Config returns the drivetrain's fixed configuration.
func (d *Drivetrain) Config() Config { return d.cfg }

// Module returns the module at index i.
func (d *Drivetrain) Module(i int) *Module { return d.modules[i] }

// Drive commands a chassis velocity.
func (d *Drivetrain) Drive(forward, sideways, rotation float64, opts DriveOptions) {
	x, y, rot := forward, sideways, rotation
	if opts.RateLimit {
		x, y, rot = d.shape(forward, sideways, rotation)
	}

	v := kinematics.ChassisVelocity{Forward: x, Sideways: y, Angular: rot}
	if opts.FieldRelative {
		heading := d.Heading()
		if opts.UseEstimatorHeading && d.pose != nil {
			heading = d.pose.RobotPose().Theta
		}
		v = kinematics.FromFieldRelative(v, heading)
	}

	states := d.kin.ToModuleStates(v)
	kinematics.Desaturate(&states, d.cfg.MaxSpeed)
	for i, m := range d.modules {
		m.SetDesiredState(states[i])
	}
}

// shape applies slew limits to a translation request: the direction steps
// toward the request at a rate inversely proportional to measured speed,
// and the magnitude ramps independently.
func (d *Drivetrain) shape(forward, sideways, rotation float64) (x, y, rot float64) {
	d.magLimiter.SetRate(d.tunables.Get("drive_magnitude_slew_rate", d.cfg.MagnitudeSlewRate))
	d.rotLimiter.SetRate(d.tunables.Get("drive_rotational_slew_rate", d.cfg.RotationalSlewRate))

	inputDirection := math.Atan2(sideways, forward)
	inputMagnitude := math.Hypot(forward, sideways)

	directionRate := stoppedDirectionSlewRate
	if speed := d.RobotRelativeVelocity().Speed(); speed != 0 {
		directionRate = math.Abs(d.tunables.Get("drive_direction_slew_rate", d.cfg.DirectionSlewRate) / speed)
	}

	now := d.clock.Seconds()
	elapsed := now - d.prevTime
	d.prevTime = now

	diff := geom.AngleDifference(inputDirection, d.currentDirection)
	switch {
	case diff < steerThreshold:
		d.currentDirection = control.StepTowardsCircular(d.currentDirection, inputDirection, directionRate*elapsed)
		d.currentMagnitude = d.magLimiter.Calculate(inputMagnitude)
	case diff > reverseThreshold:
		if d.currentMagnitude > stoppedMagnitude {
			d.currentMagnitude = d.magLimiter.Calculate(0)
		} else {
			d.currentDirection = control.WrapPositive(d.currentDirection + math.Pi)
			d.currentMagnitude = d.magLimiter.Calculate(inputMagnitude)
		}
	default:
		d.currentDirection = control.StepTowardsCircular(d.currentDirection, inputDirection, directionRate*elapsed)
		d.currentMagnitude = d.magLimiter.Calculate(0)
	}

	sin, cos := math.Sincos(d.currentDirection)
	return d.currentMagnitude * cos, d.currentMagnitude * sin, d.rotLimiter.Calculate(rotation)
}

// SetX points the wheels into an X so the robot resists being pushed.
func (d *Drivetrain) SetX() {
	angles := [kinematics.NumModules]float64{
		kinematics.FrontLeft:  geom.Radians(45),
		kinematics.FrontRight: geom.Radians(-45),
		kinematics.RearLeft:   geom.Radians(-45),
		kinematics.RearRight:  geom.Radians(45),
	}
	for i, m := range d.modules {
		m.SetDesiredState(kinematics.ModuleState{Angle: angles[i]})
	}
}

// SetModuleStates commands module states directly after desaturation.
func (d *Drivetrain) SetModuleStates(states [kinematics.NumModules]kinematics.ModuleState) {
	kinematics.Desaturate(&states, d.cfg.MaxSpeed)
	for i, m := range d.modules {
		m.SetDesiredState(states[i])
	}
}

// ZeroVoltage removes all motor output.
func (d *Drivetrain) ZeroVoltage() {
	for _, m := range d.modules {
		m.SetDriveVoltage(0)
		m.SetSteerVoltage(0)
	}
}

// ResetEncoders zeroes all drive distances.
func (d *Drivetrain) ResetEncoders() {
	for _, m := range d.modules {
		m.ResetEncoders()
	}
}

// ZeroHeading makes the current heading zero.
func (d *Drivetrain) ZeroHeading() { d.gyro.Reset() }

// Heading returns the heading sensor yaw wrapped to (-π, π].
func (d *Drivetrain) Heading() float64 { return geom.WrapAngle(d.gyro.Angle()) }

// RawHeading returns the cumulative heading sensor yaw.
func (d *Drivetrain) RawHeading() float64 { return d.gyro.Angle() }

// TurnRate returns the yaw rate in rad/s.
func (d *Drivetrain) TurnRate() float64 { return d.gyro.Rate() }

// ModuleStates returns measured module states.
func (d *Drivetrain) ModuleStates() [kinematics.NumModules]kinematics.ModuleState {
	var out [kinematics.NumModules]kinematics.ModuleState
	for i, m := range d.modules {
		out[i] = m.State()
	}
	return out
}

// ModulePositions returns measured module positions.
func (d *Drivetrain) ModulePositions() [kinematics.NumModules]kinematics.ModulePosition {
	var out [kinematics.NumModules]kinematics.ModulePosition
	for i, m := range d.modules {
		out[i] = m.Position()
	}
	return out
}

// RobotRelativeVelocity returns the measured chassis velocity in the robot
// frame.
func (d *Drivetrain) RobotRelativeVelocity() kinematics.ChassisVelocity {
	return d.kin.ToChassisVelocity(d.ModuleStates())
}

// FieldRelativeVelocity returns the measured chassis velocity in the field
// frame, using the estimator heading when one is attached.
func (d *Drivetrain) FieldRelativeVelocity() kinematics.ChassisVelocity {
	heading := d.Heading()
	if d.pose != nil {
		heading = d.pose.RobotPose().Theta
	}
	return kinematics.ToFieldRelative(d.RobotRelativeVelocity(), heading)
}

// Periodic publishes drivetrain telemetry.
func (d *Drivetrain) Periodic() {
	setpoints := make([]float64, 0, 2*kinematics.NumModules)
	actual := make([]float64, 0, 2*kinematics.NumModules)
	for _, m := range d.modules {
		ds, s := m.DesiredState(), m.State()
		setpoints = append(setpoints, ds.Angle, ds.Speed)
		actual = append(actual, s.Angle, s.Speed)
	}
	swerve := telemetry.Prefixed(d.pub, "Swerve")
	swerve.PublishArray("Setpoints", setpoints)
	swerve.PublishArray("Actual", actual)
	swerve.Publish("GyroHeading", d.Heading())
	swerve.Publish("flpos", d.modules[kinematics.FrontLeft].Position().Angle)
	swerve.Publish("frpos", d.modules[kinematics.FrontRight].Position().Angle)

	v := d.RobotRelativeVelocity()
	swerve.Publish("Speed", v.Speed())
	swerve.Publish("AngularVelocity", v.Angular)
}
