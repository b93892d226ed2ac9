package telemetry

import "github.com/blackknights-robotics/motioncore/internal/nettable"

// TablePublisher writes values into a network table so dashboards and the
// vision coprocessor see them.
type TablePublisher struct {
	w nettable.Writer
}

// NewTablePublisher returns a publisher over w.
func NewTablePublisher(w nettable.Writer) *TablePublisher {
	return &TablePublisher{w: w}
}

func (p *TablePublisher) Publish(key string, v float64) { p.w.SetNumber(key, v) }

func (p *TablePublisher) PublishArray(key string, v []float64) { p.w.SetArray(key, v) }
