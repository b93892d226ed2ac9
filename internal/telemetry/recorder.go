package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blackknights-robotics/motioncore/internal/monitoring"
	"github.com/blackknights-robotics/motioncore/internal/timeutil"
)

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// Label is stored with the run, e.g. "sim" or "practice-3".
	Label string
	// Clock stamps each sample in loop seconds.
	Clock timeutil.Monotonic
	// Interval is how often Run flushes to the archive (default 1s).
	Interval time.Duration
	// MaxPending bounds the in-memory buffer between flushes (default 65536).
	// Samples beyond it are dropped and counted.
	MaxPending int
}

type sample struct {
	t      float64
	key    string
	scalar bool
	values []float64
}

// Recorder is a Publisher that buffers every value in memory and writes it
// to an Archive in batches, off the control loop.
type Recorder struct {
	archive    *Archive
	runID      string
	clock      timeutil.Monotonic
	interval   time.Duration
	maxPending int
	log        *monitoring.Logger

	mu      sync.Mutex
	pending []sample
	nextSeq int64
	dropped uint64
	closed  bool

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRecorder starts a new run in the archive.
func NewRecorder(a *Archive, cfg RecorderConfig) (*Recorder, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("recorder: clock is required")
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = time.Second
	}
	maxPending := cfg.MaxPending
	if maxPending <= 0 {
		maxPending = 1 << 16
	}
	r := &Recorder{
		archive:    a,
		runID:      uuid.NewString(),
		clock:      cfg.Clock,
		interval:   interval,
		maxPending: maxPending,
		log:        monitoring.Tagged("recorder"),
	}
	if err := a.createRun(r.runID, cfg.Label, time.Now()); err != nil {
		return nil, err
	}
	r.log.Infof("recording run %s (%q)", r.runID, cfg.Label)
	return r, nil
}

// RunID identifies this recorder's run in the archive.
func (r *Recorder) RunID() string { return r.runID }

// Dropped returns how many samples were discarded because the buffer was
// full or the recorder closed.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *Recorder) Publish(key string, v float64) {
	r.add(sample{key: key, scalar: true, values: []float64{v}})
}

func (r *Recorder) PublishArray(key string, v []float64) {
	r.add(sample{key: key, values: append([]float64(nil), v...)})
}

func (r *Recorder) add(s sample) {
	s.t = r.clock.Seconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || len(r.pending) >= r.maxPending {
		r.dropped++
		return
	}
	r.pending = append(r.pending, s)
}

// Flush writes buffered samples to the archive in one transaction.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	seq := r.nextSeq
	r.nextSeq += int64(len(batch))
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	tx, err := r.archive.db.Begin()
	if err != nil {
		return fmt.Errorf("begin flush: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO samples (run_id, seq, t, key, idx, value) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare flush: %w", err)
	}
	defer stmt.Close()

	for i, s := range batch {
		if s.scalar {
			if _, err := stmt.Exec(r.runID, seq+int64(i), s.t, s.key, scalarIdx, s.values[0]); err != nil {
				tx.Rollback()
				return fmt.Errorf("insert %s: %w", s.key, err)
			}
			continue
		}
		for idx, v := range s.values {
			if _, err := stmt.Exec(r.runID, seq+int64(i), s.t, s.key, idx, v); err != nil {
				tx.Rollback()
				return fmt.Errorf("insert %s[%d]: %w", s.key, idx, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit flush: %w", err)
	}
	return nil
}

// Run flushes every interval until ctx is cancelled or Stop is called, then
// flushes once more. It returns nil on clean shutdown.
func (r *Recorder) Run(ctx context.Context) error {
	r.runMu.Lock()
	if r.running {
		r.runMu.Unlock()
		return nil
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.runMu.Unlock()

	defer func() {
		close(r.doneCh)
		r.runMu.Lock()
		r.running = false
		r.runMu.Unlock()
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.flushLogged("final")
			return nil
		case <-r.stopCh:
			r.flushLogged("final")
			return nil
		case <-ticker.C:
			r.flushLogged("periodic")
		}
	}
}

func (r *Recorder) flushLogged(reason string) {
	if err := r.Flush(); err != nil {
		r.log.Errorf("%s flush failed: %v", reason, err)
	}
}

// Stop ends Run and waits for its final flush. It is safe to call when Run
// is not active.
func (r *Recorder) Stop() {
	r.runMu.Lock()
	if !r.running {
		r.runMu.Unlock()
		return
	}
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	done := r.doneCh
	r.runMu.Unlock()
	<-done
}

// IsRunning reports whether Run is active.
func (r *Recorder) IsRunning() bool {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	return r.running
}

// Close stops the flusher, writes what is left and refuses further samples.
// The archive stays open.
func (r *Recorder) Close() error {
	r.Stop()
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.closed = true
	dropped := r.dropped
	r.mu.Unlock()

	err := r.Flush()
	r.log.Infof("closed run %s, %d samples dropped", r.runID, dropped)
	return err
}
