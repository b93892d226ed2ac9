package control

import "math"

// SimpleMotorFeedforward models a permanent-magnet DC motor driving a
// velocity: volts = ks·sgn(v) + kv·v + ka·a.
type SimpleMotorFeedforward struct {
	KS, KV, KA float64
	// Dt is the discretization step used by CalculateWithVelocities.
	Dt float64
}

// NewSimpleMotorFeedforward returns a feedforward with the given constants
// and a 20 ms discretization step.
func NewSimpleMotorFeedforward(ks, kv, ka float64) SimpleMotorFeedforward {
	return SimpleMotorFeedforward{KS: ks, KV: kv, KA: ka, Dt: DefaultPeriod}
}

// Calculate returns the voltage for a velocity and acceleration.
func (f SimpleMotorFeedforward) Calculate(velocity, acceleration float64) float64 {
	return f.KS*Sign(velocity) + f.KV*velocity + f.KA*acceleration
}

// CalculateWithVelocities returns the voltage that moves the mechanism from
// current to next velocity over one Dt, using the exact discretization of
// the motor model.
func (f SimpleMotorFeedforward) CalculateWithVelocities(current, next float64) float64 {
	if f.KA == 0 || f.Dt <= 0 {
		return f.KS*Sign(next) + f.KV*next
	}
	b := 1 / f.KA
	if f.KV == 0 {
		return f.KS*Sign(current) + (next-current)/(b*f.Dt)
	}
	a := -f.KV / f.KA
	ad := math.Exp(a * f.Dt)
	bd := (ad - 1) / a * b
	return f.KS*Sign(current) + (next-ad*current)/bd
}

// MaxAchievableVelocity returns the top speed reachable at the given supply
// voltage and acceleration.
func (f SimpleMotorFeedforward) MaxAchievableVelocity(maxVoltage, acceleration float64) float64 {
	return (maxVoltage - f.KS - acceleration*f.KA) / f.KV
}
