// Package geom provides planar and spatial pose math for the field frame.
//
// The field frame has its origin at the blue-alliance corner with +X pointing
// down-field and +Z up. Angles are radians, counter-clockwise positive.
package geom

import "math"

// WrapAngle normalizes an angle to the half-open interval (-π, π].
func WrapAngle(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return a
	}
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// InputModulus wraps input into [min, max).
func InputModulus(input, min, max float64) float64 {
	modulus := max - min
	n := math.Floor((input - min) / modulus)
	return input - n*modulus
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Radians converts degrees to radians.
func Radians(deg float64) float64 { return deg * math.Pi / 180 }

// AngleDifference returns the absolute angular distance in [0, π] between two
// angles.
func AngleDifference(a, b float64) float64 {
	return math.Abs(WrapAngle(a - b))
}
