package telemetry

import (
	"errors"
	"io"
	"sync"

	"go.uber.org/multierr"
)

// ErrClosed is returned when closing a publisher twice.
var ErrClosed = errors.New("telemetry: publisher closed")

// Fanout copies every value to each of its publishers.
type Fanout struct {
	mu     sync.RWMutex
	pubs   []Publisher
	closed bool
}

// NewFanout returns a publisher over pubs. Nil entries are skipped.
func NewFanout(pubs ...Publisher) *Fanout {
	f := &Fanout{}
	for _, p := range pubs {
		if p != nil {
			f.pubs = append(f.pubs, p)
		}
	}
	return f
}

// Add appends a publisher.
func (f *Fanout) Add(p Publisher) {
	if p == nil {
		return
	}
	f.mu.Lock()
	f.pubs = append(f.pubs, p)
	f.mu.Unlock()
}

func (f *Fanout) Publish(key string, v float64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	for _, p := range f.pubs {
		p.Publish(key, v)
	}
}

func (f *Fanout) PublishArray(key string, v []float64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	for _, p := range f.pubs {
		p.PublishArray(key, v)
	}
}

// Close closes every publisher that is an io.Closer and returns their
// combined errors. Values published after Close are dropped.
func (f *Fanout) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.closed = true
	var err error
	for _, p := range f.pubs {
		if c, ok := p.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}
