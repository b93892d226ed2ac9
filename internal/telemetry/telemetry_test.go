package telemetry

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackknights-robotics/motioncore/internal/nettable"
	"github.com/blackknights-robotics/motioncore/internal/timeutil"
)

func TestPrefixedAndBool(t *testing.T) {
	m := NewMemory()
	p := Prefixed(m, "debug/")
	PublishBool(p, "at goal", true)
	p.PublishArray("pose", []float64{1, 2})

	v, ok := m.Value("debug/at goal")
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
	arr, ok := m.Array("debug/pose")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2}, arr)

	// A nil publisher is safe to write to.
	Prefixed(nil, "x").Publish("y", 1)
}

func TestMemoryCopiesArrays(t *testing.T) {
	m := NewMemory()
	in := []float64{1, 2, 3}
	m.PublishArray("a", in)
	in[0] = 99
	got, _ := m.Array("a")
	assert.Equal(t, []float64{1, 2, 3}, got)
}

func TestTablePublisher(t *testing.T) {
	tbl := nettable.NewMemory()
	p := NewTablePublisher(tbl)
	p.Publish("Heading", 1.5)
	p.PublishArray("Setpoints", []float64{0, 1, 0, 1})

	h, ok := tbl.Number("Heading")
	require.True(t, ok)
	assert.Equal(t, 1.5, h)
	s, ok := tbl.Array("Setpoints")
	require.True(t, ok)
	assert.Equal(t, []float64{0, 1, 0, 1}, s)
}

type closingPublisher struct {
	*Memory
	err    error
	closed int
}

func (c *closingPublisher) Close() error {
	c.closed++
	return c.err
}

func TestFanout(t *testing.T) {
	a := NewMemory()
	b := &closingPublisher{Memory: NewMemory(), err: errors.New("b failed")}
	c := &closingPublisher{Memory: NewMemory(), err: errors.New("c failed")}
	f := NewFanout(a, nil, b)
	f.Add(c)
	f.Publish("k", 2)

	for _, m := range []*Memory{a, b.Memory, c.Memory} {
		v, ok := m.Value("k")
		require.True(t, ok)
		assert.Equal(t, 2.0, v)
	}

	err := f.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b failed")
	assert.Contains(t, err.Error(), "c failed")
	assert.Equal(t, 1, b.closed)
	assert.ErrorIs(t, f.Close(), ErrClosed)

	f.Publish("k", 3)
	v, _ := a.Value("k")
	assert.Equal(t, 2.0, v, "dropped after close")
}

type fakeMQTT struct {
	mu           sync.Mutex
	connected    bool
	messages     map[string]string
	disconnected bool
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messages == nil {
		f.messages = make(map[string]string)
	}
	f.messages[topic] = payload.(string)
	return nil
}

func (f *fakeMQTT) IsConnected() bool { return f.connected }

func (f *fakeMQTT) Disconnect(uint) { f.disconnected = true }

func TestMQTTPublisher(t *testing.T) {
	client := &fakeMQTT{connected: true}
	p := newMQTTPublisher(client, "robot/telemetry/")
	p.Publish("drive/Heading", 0.25)
	p.PublishArray("drive/Setpoints", []float64{1, -0.5})

	want := map[string]string{
		"robot/telemetry/drive/Heading":   "0.25",
		"robot/telemetry/drive/Setpoints": "1,-0.5",
	}
	if diff := cmp.Diff(want, client.messages); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}

	client.connected = false
	p.Publish("drive/Heading", 1)
	assert.Equal(t, uint64(1), p.Dropped())

	require.NoError(t, p.Close())
	assert.True(t, client.disconnected)
	assert.ErrorIs(t, p.Close(), ErrClosed)
}

func openTestArchive(t *testing.T) (*Archive, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "telemetry.db")
	a, err := OpenArchive(path)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, path
}

func TestRecorderPersistsSeries(t *testing.T) {
	a, _ := openTestArchive(t)
	clock := timeutil.NewMockClock(time.Unix(100, 0))
	mono := timeutil.NewMonotonic(clock)
	r, err := NewRecorder(a, RecorderConfig{Label: "sim", Clock: mono})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		clock.Advance(20 * time.Millisecond)
		r.Publish("align/Xms", float64(i))
		r.PublishArray("drive/Setpoints", []float64{float64(i), 0.5})
	}
	r.Publish("align/Xms", math.NaN())
	require.NoError(t, r.Flush())

	xs, err := a.Series(r.RunID(), "align/Xms")
	require.NoError(t, err)
	require.Len(t, xs, 4)
	assert.InDelta(t, 0.02, xs[0].T, 1e-9)
	assert.Equal(t, 2.0, xs[2].Value)
	assert.True(t, math.IsNaN(xs[3].Value))

	sp, err := a.ArraySeries(r.RunID(), "drive/Setpoints")
	require.NoError(t, err)
	require.Len(t, sp, 3)
	assert.Equal(t, []float64{1, 0.5}, sp[1].Values)
	assert.InDelta(t, 0.04, sp[1].T, 1e-9)

	keys, err := a.Keys(r.RunID())
	require.NoError(t, err)
	assert.Equal(t, []string{"align/Xms", "drive/Setpoints"}, keys)

	runs, err := a.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, r.RunID(), runs[0].ID)
	assert.Equal(t, "sim", runs[0].Label)
	assert.Equal(t, 7, runs[0].Samples)
}

func TestArchiveReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.db")
	a, err := OpenArchive(path)
	require.NoError(t, err)
	r, err := NewRecorder(a, RecorderConfig{Clock: timeutil.NewMonotonic(timeutil.NewMockClock(time.Unix(0, 0)))})
	require.NoError(t, err)
	r.Publish("k", 1)
	require.NoError(t, r.Close())
	require.NoError(t, a.Close())

	a, err = OpenArchive(path)
	require.NoError(t, err)
	defer a.Close()
	pts, err := a.Series(r.RunID(), "k")
	require.NoError(t, err)
	assert.Len(t, pts, 1)
}

func TestRecorderDropsWhenFull(t *testing.T) {
	a, _ := openTestArchive(t)
	r, err := NewRecorder(a, RecorderConfig{
		Clock:      timeutil.NewMonotonic(timeutil.NewMockClock(time.Unix(0, 0))),
		MaxPending: 2,
	})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		r.Publish("k", float64(i))
	}
	assert.Equal(t, uint64(3), r.Dropped())

	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Close(), ErrClosed)
	r.Publish("k", 9)
	assert.Equal(t, uint64(4), r.Dropped())

	pts, err := a.Series(r.RunID(), "k")
	require.NoError(t, err)
	assert.Len(t, pts, 2)
}

func TestRecorderRunFlushesOnStop(t *testing.T) {
	a, _ := openTestArchive(t)
	r, err := NewRecorder(a, RecorderConfig{
		Clock:    timeutil.NewMonotonic(timeutil.NewMockClock(time.Unix(0, 0))),
		Interval: time.Hour,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()
	require.Eventually(t, r.IsRunning, time.Second, time.Millisecond)

	r.Publish("k", 1)
	r.Stop()
	require.NoError(t, <-done)
	assert.False(t, r.IsRunning())

	pts, err := a.Series(r.RunID(), "k")
	require.NoError(t, err)
	assert.Len(t, pts, 1)
}

func TestRecorderRequiresClock(t *testing.T) {
	a, _ := openTestArchive(t)
	_, err := NewRecorder(a, RecorderConfig{})
	assert.Error(t, err)
}

func TestArchiveAdminRoutes(t *testing.T) {
	a, _ := openTestArchive(t)
	mux := http.NewServeMux()
	require.NoError(t, a.AttachAdminRoutes(mux))

	for _, endpoint := range []string{"/debug/telemetry-runs", "/debug/tailsql/"} {
		req := httptest.NewRequest(http.MethodGet, endpoint, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		// tsweb may refuse non-local callers, but the route must exist.
		assert.NotEqual(t, http.StatusNotFound, w.Code, endpoint)
	}
}
