package kinematics

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackknights-robotics/motioncore/internal/geom"
)

const eps = 1e-9

func newTestKinematics(t *testing.T) *SwerveKinematics {
	t.Helper()
	k, err := NewSwerveKinematics(RectangularLocations(0.6604, 0.6604))
	require.NoError(t, err)
	return k
}

func TestFieldRelativeRoundTrip(t *testing.T) {
	t.Parallel()
	v := ChassisVelocity{Forward: 1.2, Sideways: -0.4, Angular: 0.9}
	for _, heading := range []float64{0, 0.3, math.Pi / 2, -2.5, math.Pi} {
		robot := FromFieldRelative(v, heading)
		back := FromFieldRelative(robot, -heading)
		if diff := cmp.Diff(v, back, cmpopts.EquateApprox(0, eps)); diff != "" {
			t.Errorf("heading %v: round trip mismatch (-want +got):\n%s", heading, diff)
		}
		field := ToFieldRelative(robot, heading)
		assert.InDelta(t, v.Forward, field.Forward, eps)
		assert.InDelta(t, v.Sideways, field.Sideways, eps)
	}
}

func TestFromFieldRelativeFacingLeft(t *testing.T) {
	// Robot faces +Y; a field +X request is a rightward strafe.
	got := FromFieldRelative(ChassisVelocity{Forward: 1}, math.Pi/2)
	assert.InDelta(t, 0, got.Forward, eps)
	assert.InDelta(t, -1, got.Sideways, eps)
}

func TestToModuleStatesStraight(t *testing.T) {
	k := newTestKinematics(t)
	states := k.ToModuleStates(ChassisVelocity{Forward: 2})
	for i, s := range states {
		assert.InDelta(t, 2, s.Speed, eps, "module %d", i)
		assert.InDelta(t, 0, s.Angle, eps, "module %d", i)
	}
}

func TestToModuleStatesSpin(t *testing.T) {
	k := newTestKinematics(t)
	states := k.ToModuleStates(ChassisVelocity{Angular: 1})
	r := math.Hypot(0.3302, 0.3302)
	want := [NumModules]float64{
		FrontLeft:  3 * math.Pi / 4,
		FrontRight: math.Pi / 4,
		RearLeft:   -3 * math.Pi / 4,
		RearRight:  -math.Pi / 4,
	}
	for i, s := range states {
		assert.InDelta(t, r, s.Speed, eps, "module %d", i)
		assert.InDelta(t, want[i], s.Angle, eps, "module %d", i)
	}
}

func TestZeroRequestKeepsAngles(t *testing.T) {
	k := newTestKinematics(t)
	moving := k.ToModuleStates(ChassisVelocity{Sideways: 1})
	stopped := k.ToModuleStates(ChassisVelocity{})
	for i := range stopped {
		assert.Zero(t, stopped[i].Speed)
		assert.Equal(t, moving[i].Angle, stopped[i].Angle)
	}
}

func TestForwardInverseAgree(t *testing.T) {
	k := newTestKinematics(t)
	v := ChassisVelocity{Forward: 1.1, Sideways: -0.7, Angular: 2.3}
	got := k.ToChassisVelocity(k.ToModuleStates(v))
	if diff := cmp.Diff(v, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("forward(inverse(v)) mismatch (-want +got):\n%s", diff)
	}
}

func TestToTwist(t *testing.T) {
	k := newTestKinematics(t)
	var start, end [NumModules]ModulePosition
	for i := range end {
		end[i] = ModulePosition{Distance: 0.5, Angle: math.Pi / 2}
	}
	tw := k.ToTwist(start, end)
	assert.InDelta(t, 0, tw.DX, eps)
	assert.InDelta(t, 0.5, tw.DY, eps)
	assert.InDelta(t, 0, tw.DTheta, eps)
}

func TestDesaturatePreservesRatios(t *testing.T) {
	t.Parallel()
	states := [NumModules]ModuleState{
		{Speed: 6, Angle: 0.1},
		{Speed: -3, Angle: 0.2},
		{Speed: 1.5, Angle: -0.3},
		{Speed: 0, Angle: 1},
	}
	orig := states
	Desaturate(&states, 4.8)

	assert.InDelta(t, 4.8, math.Abs(states[0].Speed), eps)
	for i := range states {
		assert.Equal(t, orig[i].Angle, states[i].Angle)
		if orig[i].Speed != 0 {
			assert.InDelta(t, orig[0].Speed/orig[i].Speed, states[0].Speed/states[i].Speed, eps)
		}
	}
}

func TestDesaturateLeavesFeasible(t *testing.T) {
	states := [NumModules]ModuleState{{Speed: 1}, {Speed: -2}, {Speed: 3}, {Speed: 4.8}}
	orig := states
	Desaturate(&states, 4.8)
	assert.Equal(t, orig, states)
}

func TestOptimize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		current   float64
		target    ModuleState
		wantSpeed float64
		wantAngle float64
	}{
		{
			name:      "plus 170 degrees flips to minus 10",
			current:   0.5,
			target:    ModuleState{Speed: 2, Angle: 0.5 + geom.Radians(170)},
			wantSpeed: -2,
			wantAngle: 0.5 - geom.Radians(10),
		},
		{
			name:      "small change untouched",
			current:   0,
			target:    ModuleState{Speed: 1, Angle: geom.Radians(30)},
			wantSpeed: 1,
			wantAngle: geom.Radians(30),
		},
		{
			name:      "across wrap",
			current:   geom.Radians(175),
			target:    ModuleState{Speed: 1, Angle: geom.Radians(-175)},
			wantSpeed: 1,
			wantAngle: geom.Radians(-175),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.target.Optimize(tt.current)
			assert.InDelta(t, tt.wantSpeed, got.Speed, eps)
			assert.InDelta(t, tt.wantAngle, got.Angle, 1e-9)
		})
	}
}
