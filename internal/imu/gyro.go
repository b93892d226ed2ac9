package imu

import (
	"context"
	"errors"
	"sync"

	"github.com/blackknights-robotics/motioncore/internal/geom"
	"github.com/blackknights-robotics/motioncore/internal/monitoring"
	"github.com/blackknights-robotics/motioncore/internal/serialmux"
	"github.com/blackknights-robotics/motioncore/internal/timeutil"
)

// Gyro turns navX yaw updates into a cumulative counter-clockwise heading.
//
// The navX reports a wrapped clockwise yaw; Gyro unwraps it so a full turn
// reads 2π rather than jumping back to zero.
type Gyro struct {
	clock timeutil.Monotonic
	log   *monitoring.Logger

	mu         sync.Mutex
	have       bool
	lastRaw    float64
	lastT      float64
	cumulative float64
	zero       float64
	adjustment float64
	rate       float64
	bad        uint64
}

// NewGyro returns a gyro that timestamps updates with clock.
// adjustmentDeg is added to every reading, e.g. to account for how the
// board is mounted.
func NewGyro(clock timeutil.Monotonic, adjustmentDeg float64) *Gyro {
	return &Gyro{
		clock:      clock,
		log:        monitoring.Tagged("imu"),
		adjustment: geom.Radians(adjustmentDeg),
	}
}

// Angle returns the heading in radians, CCW positive and cumulative.
func (g *Gyro) Angle() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cumulative - g.zero + g.adjustment
}

// Rate returns the yaw rate in rad/s from the last two updates.
func (g *Gyro) Rate() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rate
}

// Reset makes the current heading read as the angle adjustment.
func (g *Gyro) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.zero = g.cumulative
}

// SetAngleAdjustment replaces the mounting offset, in degrees.
func (g *Gyro) SetAngleAdjustment(deg float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.adjustment = geom.Radians(deg)
}

// BadLines returns how many lines failed to parse.
func (g *Gyro) BadLines() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bad
}

// Update applies one orientation update received at now.
func (g *Gyro) Update(u YPR, now float64) {
	raw := -geom.Radians(u.Yaw)

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.have {
		g.have = true
		g.lastRaw = raw
		g.lastT = now
		return
	}
	delta := geom.WrapAngle(raw - g.lastRaw)
	g.cumulative += delta
	if dt := now - g.lastT; dt > 0 {
		g.rate = delta / dt
	}
	g.lastRaw = raw
	g.lastT = now
}

// HandleLine parses a stream line and applies it. Lines of other message
// types are ignored.
func (g *Gyro) HandleLine(line string) error {
	if serialmux.ClassifyLine(line) != serialmux.EventTypeYPR {
		return nil
	}
	u, err := ParseYPR(line)
	if err != nil {
		g.mu.Lock()
		g.bad++
		g.mu.Unlock()
		return err
	}
	g.Update(u, g.clock.Seconds())
	return nil
}

// Run subscribes to mux and applies every line until ctx is done or the
// subscription closes. Parse failures are logged and skipped.
func (g *Gyro) Run(ctx context.Context, mux serialmux.SerialMuxInterface) error {
	id, lines := mux.Subscribe()
	defer mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := g.HandleLine(line); err != nil {
				if errors.Is(err, ErrBadChecksum) {
					g.log.Debugf("%v", err)
				} else {
					g.log.Warnf("%v", err)
				}
			}
		}
	}
}

// Stale reports whether no update has arrived within maxAge seconds.
func (g *Gyro) Stale(maxAge float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.have || g.clock.Seconds()-g.lastT > maxAge
}
