package sim

import (
	"sync"

	"github.com/golang/geo/r2"

	"github.com/blackknights-robotics/motioncore/internal/geom"
	"github.com/blackknights-robotics/motioncore/internal/kinematics"
	"github.com/blackknights-robotics/motioncore/internal/swerve"
)

// Chassis integrates the true pose of a simulated swerve robot from its
// motors.
type Chassis struct {
	Drive [kinematics.NumModules]*Motor
	Steer [kinematics.NumModules]*Motor
	Gyro  *Gyro

	offsets [kinematics.NumModules]float64
	kin     *kinematics.SwerveKinematics

	mu   sync.RWMutex
	pose geom.Pose2D
}

// NewChassis builds a simulated chassis with the given module locations and
// offsets, starting at pose with every wheel pointing forward.
func NewChassis(locations [kinematics.NumModules]r2.Point, offsets [kinematics.NumModules]float64, pose geom.Pose2D) (*Chassis, error) {
	kin, err := kinematics.NewSwerveKinematics(locations)
	if err != nil {
		return nil, err
	}
	c := &Chassis{Gyro: &Gyro{}, offsets: offsets, kin: kin, pose: pose}
	for i := range c.Drive {
		c.Drive[i] = NewDriveMotor()
		c.Steer[i] = NewSteerMotor(offsets[i])
	}
	c.Gyro.Set(pose.Theta)
	return c, nil
}

// ModuleIO returns the module hardware in FL, FR, RL, RR order.
func (c *Chassis) ModuleIO() [kinematics.NumModules]swerve.ModuleIO {
	var out [kinematics.NumModules]swerve.ModuleIO
	for i := range out {
		out[i] = swerve.ModuleIO{Name: kinematics.ModuleNames[i], Drive: c.Drive[i], Steer: c.Steer[i]}
	}
	return out
}

// Step advances the simulation by dt seconds.
func (c *Chassis) Step(dt float64) {
	var states [kinematics.NumModules]kinematics.ModuleState
	for i := range states {
		states[i] = kinematics.ModuleState{
			Speed: c.Drive[i].Velocity(),
			Angle: c.Steer[i].Position() - c.offsets[i],
		}
		c.Drive[i].Step(dt)
	}
	v := c.kin.ToChassisVelocity(states)

	c.mu.Lock()
	c.pose = c.pose.Exp(geom.Twist2D{DX: v.Forward * dt, DY: v.Sideways * dt, DTheta: v.Angular * dt})
	c.mu.Unlock()

	c.Gyro.Integrate(v.Angular, dt)
}

// Pose returns the true pose.
func (c *Chassis) Pose() geom.Pose2D {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pose
}

// SetPose teleports the robot. The gyro is moved to match.
func (c *Chassis) SetPose(p geom.Pose2D) {
	c.mu.Lock()
	c.pose = p
	c.mu.Unlock()
	c.Gyro.Set(p.Theta)
}
