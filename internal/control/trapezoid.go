package control

import "math"

// Constraints bound a trapezoid profile.
type Constraints struct {
	MaxVelocity     float64
	MaxAcceleration float64
}

// State is a profile position and velocity.
type State struct {
	Position float64
	Velocity float64
}

// TrapezoidProfile generates velocity-limited, acceleration-limited motion
// between two states.
type TrapezoidProfile struct {
	constraints Constraints

	direction    float64
	endAccel     float64
	endFullSpeed float64
	endDecel     float64
}

// NewTrapezoidProfile returns a profile with the given constraints.
func NewTrapezoidProfile(c Constraints) *TrapezoidProfile {
	return &TrapezoidProfile{constraints: c, direction: 1}
}

// Constraints returns the current limits.
func (p *TrapezoidProfile) Constraints() Constraints { return p.constraints }

// SetConstraints replaces the limits.
func (p *TrapezoidProfile) SetConstraints(c Constraints) { p.constraints = c }

// Calculate returns the state t seconds along the profile from current to
// goal. Once the profile is complete it returns goal exactly.
func (p *TrapezoidProfile) Calculate(t float64, current, goal State) State {
	p.direction = 1
	if current.Position > goal.Position {
		p.direction = -1
	}
	current = p.direct(current)
	goal = p.direct(goal)

	maxVel := p.constraints.MaxVelocity
	maxAccel := p.constraints.MaxAcceleration

	if math.Abs(current.Velocity) > maxVel {
		current.Velocity = math.Copysign(maxVel, current.Velocity)
	}

	cutoffBegin := current.Velocity / maxAccel
	cutoffDistBegin := cutoffBegin * cutoffBegin * maxAccel / 2
	cutoffEnd := goal.Velocity / maxAccel
	cutoffDistEnd := cutoffEnd * cutoffEnd * maxAccel / 2

	fullTrapezoidDist := cutoffDistBegin + (goal.Position - current.Position) + cutoffDistEnd
	accelTime := maxVel / maxAccel
	fullSpeedDist := fullTrapezoidDist - accelTime*accelTime*maxAccel
	if fullSpeedDist < 0 {
		accelTime = math.Sqrt(fullTrapezoidDist / maxAccel)
		fullSpeedDist = 0
	}

	p.endAccel = accelTime - cutoffBegin
	p.endFullSpeed = p.endAccel + fullSpeedDist/maxVel
	p.endDecel = p.endFullSpeed + accelTime - cutoffEnd

	result := current
	switch {
	case t < p.endAccel:
		result.Velocity += t * maxAccel
		result.Position += (current.Velocity + t*maxAccel/2) * t
	case t < p.endFullSpeed:
		result.Velocity = maxVel
		result.Position += (current.Velocity+p.endAccel*maxAccel/2)*p.endAccel + maxVel*(t-p.endAccel)
	case t <= p.endDecel:
		left := p.endDecel - t
		result.Velocity = goal.Velocity + left*maxAccel
		result.Position = goal.Position - (goal.Velocity+left*maxAccel/2)*left
	default:
		result = goal
	}
	return p.direct(result)
}

// TotalTime returns the duration of the most recently calculated profile.
func (p *TrapezoidProfile) TotalTime() float64 { return p.endDecel }

// IsFinished reports whether t is past the end of the most recently
// calculated profile.
func (p *TrapezoidProfile) IsFinished(t float64) bool { return t >= p.endDecel }

func (p *TrapezoidProfile) direct(s State) State {
	return State{Position: s.Position * p.direction, Velocity: s.Velocity * p.direction}
}
