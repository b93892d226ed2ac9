// Package estimator fuses wheel odometry, gyro heading and vision samples
// into one field-relative robot pose.
//
// Odometry is integrated every tick and kept in a short timestamped history.
// A vision sample is blended into the estimate as it stood when the image was
// captured, and the wheel motion since then is replayed on top, so late
// samples never make the pose jump backwards in time.
package estimator

import (
	"math"
	"sort"
	"sync"

	"github.com/blackknights-robotics/motioncore/internal/config"
	"github.com/blackknights-robotics/motioncore/internal/geom"
	"github.com/blackknights-robotics/motioncore/internal/kinematics"
	"github.com/blackknights-robotics/motioncore/internal/monitoring"
	"github.com/blackknights-robotics/motioncore/internal/vision"
)

// Config holds the filter's noise model.
type Config struct {
	// HistorySeconds is how far back vision samples can land.
	HistorySeconds float64
	// StateStdDevs and VisionStdDevs are the x (m), y (m) and heading (rad)
	// standard deviations of odometry and vision.
	StateStdDevs  [3]float64
	VisionStdDevs [3]float64
	// AgeScale inflates vision std devs per second of sample age;
	// DistanceGain per metre of landmark distance.
	AgeScale     float64
	DistanceGain float64
}

// ConfigFromRobot reads the estimator section of a robot config.
func ConfigFromRobot(rc *config.RobotConfig) Config {
	return Config{
		HistorySeconds: rc.GetHistoryWindow().Seconds(),
		StateStdDevs:   rc.GetStateStdDevs(),
		VisionStdDevs:  rc.GetVisionStdDevs(),
		AgeScale:       rc.GetVisionAgeScale(),
		DistanceGain:   rc.GetVisionDistanceGain(),
	}
}

// Stats counts what happened to vision samples.
type Stats struct {
	Accepted        uint64
	RejectedStale   uint64
	RejectedInvalid uint64
}

type odometrySample struct {
	t    float64
	pose geom.Pose2D
}

// correction is the latest fused vision result: the corrected pose at the
// sample time and the odometry pose at the same instant.
type correction struct {
	t        float64
	pose     geom.Pose2D
	odometry geom.Pose2D
}

// compensate replays the odometry motion since the correction.
func (c *correction) compensate(odometry geom.Pose2D) geom.Pose2D {
	return c.pose.Plus(odometry.Minus(c.odometry))
}

// Estimator owns the robot pose. Update and AddVisionSample are called from
// the control loop; RobotPose may be read from anywhere.
type Estimator struct {
	kin *kinematics.SwerveKinematics
	cfg Config
	q   [3]float64
	log *monitoring.Logger

	mu          sync.RWMutex
	initialized bool
	initial     geom.Pose2D

	odometry      geom.Pose2D
	headingOffset float64
	lastHeading   float64
	lastPositions [kinematics.NumModules]kinematics.ModulePosition

	history        []odometrySample
	vision         *correction
	lastVisionTime float64
	estimate       geom.Pose2D
	stats          Stats
}

// New returns an estimator that starts at initial. The heading and wheel
// positions are sampled by the first Update.
func New(kin *kinematics.SwerveKinematics, cfg Config, initial geom.Pose2D) *Estimator {
	e := &Estimator{
		kin:            kin,
		cfg:            cfg,
		log:            monitoring.Tagged("estimator"),
		initial:        initial,
		odometry:       initial,
		estimate:       initial,
		lastVisionTime: math.Inf(-1),
	}
	for i, sd := range cfg.StateStdDevs {
		e.q[i] = sd * sd
	}
	return e
}

// Update integrates one tick of wheel and gyro motion. heading is the raw
// cumulative gyro angle, CCW positive.
func (e *Estimator) Update(now, heading float64, positions [kinematics.NumModules]kinematics.ModulePosition) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		e.resetLocked(e.initial, heading, positions)
	} else {
		tw := e.kin.ToTwist(e.lastPositions, positions)
		tw.DTheta = heading - e.lastHeading
		next := e.odometry.Exp(tw)
		next.Theta = geom.WrapAngle(heading + e.headingOffset)
		e.odometry = next
		e.lastHeading = heading
		e.lastPositions = positions
	}

	e.record(now, e.odometry)
	e.estimate = e.odometry
	if e.vision != nil {
		e.estimate = e.vision.compensate(e.odometry)
	}
}

// record appends to the history and drops entries older than the window.
func (e *Estimator) record(now float64, pose geom.Pose2D) {
	if n := len(e.history); n > 0 && now <= e.history[n-1].t {
		e.history[n-1] = odometrySample{t: e.history[n-1].t, pose: pose}
		return
	}
	e.history = append(e.history, odometrySample{t: now, pose: pose})
	cutoff := now - e.cfg.HistorySeconds
	drop := 0
	for drop < len(e.history)-1 && e.history[drop].t < cutoff {
		drop++
	}
	if drop > 0 {
		e.history = append(e.history[:0], e.history[drop:]...)
	}
}

// odometryAt interpolates the odometry history at t, clamping to its ends.
func (e *Estimator) odometryAt(t float64) geom.Pose2D {
	h := e.history
	i := sort.Search(len(h), func(i int) bool { return h[i].t >= t })
	switch {
	case i == 0:
		return h[0].pose
	case i == len(h):
		return h[len(h)-1].pose
	}
	a, b := h[i-1], h[i]
	return a.pose.Interpolate(b.pose, (t-a.t)/(b.t-a.t))
}

// AddVisionSample fuses a vision sample and reports whether it was used.
// Samples that are invalid, not newer than the last fused one, or older than
// the odometry history are dropped.
func (e *Estimator) AddVisionSample(s vision.Sample) bool {
	pose := s.Pose.ToPose2D()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !validSample(s, pose) {
		e.stats.RejectedInvalid++
		e.log.Debugf("rejected invalid sample from %s", s.Source)
		return false
	}
	if len(e.history) == 0 || s.Timestamp <= e.lastVisionTime || s.Timestamp < e.history[0].t {
		e.stats.RejectedStale++
		e.log.Debugf("rejected stale sample from %s at %.3f", s.Source, s.Timestamp)
		return false
	}

	odometry := e.odometryAt(s.Timestamp)
	at := odometry
	if e.vision != nil {
		at = e.vision.compensate(odometry)
	}

	age := math.Max(0, e.history[len(e.history)-1].t-s.Timestamp)
	k := e.gains(age, s.Distance)
	tw := at.Log(pose)
	scaled := geom.Twist2D{DX: k[0] * tw.DX, DY: k[1] * tw.DY, DTheta: k[2] * tw.DTheta}

	e.vision = &correction{t: s.Timestamp, pose: at.Exp(scaled), odometry: odometry}
	e.lastVisionTime = s.Timestamp
	e.estimate = e.vision.compensate(e.odometry)
	e.stats.Accepted++
	return true
}

func validSample(s vision.Sample, p geom.Pose2D) bool {
	for _, v := range []float64{s.Timestamp, p.X, p.Y, p.Theta, s.Distance} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// gains returns the per-axis Kalman gain for a sample of the given age and
// landmark distance.
func (e *Estimator) gains(age, distance float64) [3]float64 {
	inflate := (1 + e.cfg.AgeScale*age) * (1 + e.cfg.DistanceGain*math.Max(0, distance))
	var k [3]float64
	for i := range k {
		sd := e.cfg.VisionStdDevs[i] * inflate
		r := sd * sd
		q := e.q[i]
		if q == 0 {
			continue
		}
		k[i] = q / (q + math.Sqrt(q*r))
	}
	return k
}

// RobotPose returns the fused pose as of the last Update or vision sample.
func (e *Estimator) RobotPose() geom.Pose2D {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.estimate
}

// OdometryPose returns the wheel-only pose.
func (e *Estimator) OdometryPose() geom.Pose2D {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.odometry
}

// ResetPose places the robot at pose and forgets history and vision.
func (e *Estimator) ResetPose(pose geom.Pose2D, heading float64, positions [kinematics.NumModules]kinematics.ModulePosition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked(pose, heading, positions)
	e.estimate = pose
}

func (e *Estimator) resetLocked(pose geom.Pose2D, heading float64, positions [kinematics.NumModules]kinematics.ModulePosition) {
	e.initialized = true
	e.odometry = pose
	e.headingOffset = pose.Theta - heading
	e.lastHeading = heading
	e.lastPositions = positions
	e.history = e.history[:0]
	e.vision = nil
}

// LastVisionTimestamp returns the capture time of the last fused sample, or
// -Inf if none.
func (e *Estimator) LastVisionTimestamp() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastVisionTime
}

// Stats returns the vision sample counters.
func (e *Estimator) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}
