// Package robot runs the cooperative control loop: periodic callbacks for
// sensing and telemetry, then at most one active command per tick.
package robot

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/blackknights-robotics/motioncore/internal/monitoring"
	"github.com/blackknights-robotics/motioncore/internal/timeutil"
)

// DefaultPeriod is the loop period used when none is configured.
const DefaultPeriod = 20 * time.Millisecond

// Command is a unit of robot behaviour run by the loop. Initialize is called
// once when the command is scheduled, Execute every tick until IsFinished
// reports true, then End(false). A command replaced or cancelled before it
// finishes gets End(true).
type Command interface {
	Initialize()
	Execute()
	IsFinished() bool
	End(interrupted bool)
}

type periodic struct {
	name string
	fn   func()
}

// Loop owns the active command and the periodic callbacks. Tick, Schedule
// and Cancel may be called from any goroutine.
type Loop struct {
	clock timeutil.Clock
	log   *monitoring.Logger

	mu       sync.Mutex
	periodic []periodic
	active   Command
	def      Command
	closers  []io.Closer

	ticks    atomic.Uint64
	overruns atomic.Uint64
}

// NewLoop returns an idle loop. clock drives Run; a nil clock uses the real
// clock.
func NewLoop(clock timeutil.Clock) *Loop {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Loop{clock: clock, log: monitoring.Tagged("loop")}
}

// AddPeriodic registers fn to run at the start of every tick, in
// registration order.
func (l *Loop) AddPeriodic(name string, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.periodic = append(l.periodic, periodic{name: name, fn: fn})
}

// SetDefaultCommand sets the command scheduled whenever nothing else is
// active. Passing nil clears it.
func (l *Loop) SetDefaultCommand(cmd Command) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active != nil && l.active == l.def {
		l.active.End(true)
		l.active = nil
	}
	l.def = cmd
}

// AddCloser registers c to be closed by Close.
func (l *Loop) AddCloser(c io.Closer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closers = append(l.closers, c)
}

// Schedule makes cmd the active command, interrupting any other.
func (l *Loop) Schedule(cmd Command) {
	if cmd == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.start(cmd)
}

func (l *Loop) start(cmd Command) {
	if l.active != nil {
		l.active.End(true)
	}
	l.active = cmd
	cmd.Initialize()
}

// Cancel interrupts the active command, if any. The default command, if set,
// resumes on the next tick.
func (l *Loop) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active != nil {
		l.active.End(true)
		l.active = nil
	}
}

// Do runs fn between ticks with the active command, which may be nil.
// Handlers outside the loop use it to touch state the loop owns.
func (l *Loop) Do(fn func(active Command)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.active)
}

// Active returns the running command, or nil.
func (l *Loop) Active() Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Ticks returns how many ticks have run.
func (l *Loop) Ticks() uint64 { return l.ticks.Load() }

// Overruns returns how many ticks took longer than the Run period.
func (l *Loop) Overruns() uint64 { return l.overruns.Load() }

// Tick runs one control cycle.
func (l *Loop) Tick() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range l.periodic {
		p.fn()
	}

	if l.active == nil && l.def != nil {
		l.start(l.def)
	}
	if l.active != nil {
		l.active.Execute()
		if l.active.IsFinished() {
			l.active.End(false)
			l.active = nil
		}
	}
	l.ticks.Add(1)
}

// Run ticks every period until ctx is cancelled, then interrupts the active
// command. It returns nil on cancellation.
func (l *Loop) Run(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		period = DefaultPeriod
	}
	ticker := l.clock.NewTicker(period)
	defer ticker.Stop()

	l.log.Infof("control loop running every %v", period)
	for {
		select {
		case <-ctx.Done():
			l.Cancel()
			l.log.Infof("control loop stopped after %d ticks (%d overruns)", l.Ticks(), l.Overruns())
			return nil
		case <-ticker.C():
			start := l.clock.Now()
			l.Tick()
			if took := l.clock.Since(start); took > period {
				l.overruns.Add(1)
				l.log.Warnf("loop overrun: tick took %v", took)
			}
		}
	}
}

// Close interrupts the active command and closes every registered closer,
// in reverse registration order.
func (l *Loop) Close() error {
	l.Cancel()
	l.mu.Lock()
	closers := l.closers
	l.closers = nil
	l.mu.Unlock()

	var err error
	for i := len(closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, closers[i].Close())
	}
	return err
}
