package robot

import (
	"github.com/blackknights-robotics/motioncore/internal/config"
	"github.com/blackknights-robotics/motioncore/internal/control"
	"github.com/blackknights-robotics/motioncore/internal/nettable"
	"github.com/blackknights-robotics/motioncore/internal/swerve"
	"github.com/blackknights-robotics/motioncore/internal/telemetry"
)

// defaultDeadband is used when controller_deadband is not tuned.
const defaultDeadband = 0.06

// Driver is the part of the drivetrain teleop needs.
type Driver interface {
	Drive(forward, sideways, rotation float64, opts swerve.DriveOptions)
}

// Sticks supplies driver inputs, each in [-1, 1]. Nil axes read as zero.
type Sticks struct {
	Forward  func() float64
	Sideways func() float64
	Rotation func() float64
}

func read(f func() float64) float64 {
	if f == nil {
		return 0
	}
	return f()
}

// TableSticks reads the axes from a table written by the driver station.
// Missing entries read as zero.
func TableSticks(t nettable.Table) Sticks {
	axis := func(key string) func() float64 {
		return func() float64 {
			v, _ := t.Number(key)
			return v
		}
	}
	return Sticks{
		Forward:  axis("forward"),
		Sideways: axis("sideways"),
		Rotation: axis("rotation"),
	}
}

// Teleop drives field-relative from the sticks. It never finishes on its
// own and is meant to be the loop's default command.
type Teleop struct {
	drive      Driver
	sticks     Sticks
	maxSpeed   float64
	maxAngular float64
	tunables   config.Tunables
	debug      telemetry.Publisher
}

// NewTeleop scales stick input by maxSpeed (m/s) and maxAngular (rad/s).
// tun and pub may be nil.
func NewTeleop(drive Driver, sticks Sticks, maxSpeed, maxAngular float64, tun config.Tunables, pub telemetry.Publisher) *Teleop {
	if tun == nil {
		tun = config.MapTunables{}
	}
	return &Teleop{
		drive:      drive,
		sticks:     sticks,
		maxSpeed:   maxSpeed,
		maxAngular: maxAngular,
		tunables:   tun,
		debug:      telemetry.Prefixed(pub, "debug"),
	}
}

func (c *Teleop) Initialize() {}

func (c *Teleop) Execute() {
	db := c.tunables.Get("controller_deadband", defaultDeadband)
	forward := control.ApplyDeadband(read(c.sticks.Forward), db)
	sideways := control.ApplyDeadband(read(c.sticks.Sideways), db)
	rotation := control.ApplyDeadband(read(c.sticks.Rotation), db)

	c.debug.Publish("Forward desired", forward)
	c.debug.Publish("Sideways desired", sideways)
	c.debug.Publish("Rotation desired", rotation)

	c.drive.Drive(forward*c.maxSpeed, sideways*c.maxSpeed, rotation*c.maxAngular,
		swerve.DriveOptions{FieldRelative: true})
}

func (c *Teleop) IsFinished() bool { return false }

// End leaves the last command in place; whatever runs next takes over the
// drivetrain.
func (c *Teleop) End(bool) {}
