package serialmux

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestStreamCommand(t *testing.T) {
	if got, want := StreamCommand(StreamYPR, 50), "!Sy3252\r\n"; got != want {
		t.Errorf("StreamCommand = %q, want %q", got, want)
	}
	// Rates are clamped to what the IMU accepts.
	assert.Equal(t, StreamCommand(StreamYPR, 200), StreamCommand(StreamYPR, 1000))
	assert.Equal(t, StreamCommand(StreamYPR, 4), StreamCommand(StreamYPR, 0))
}

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"!y+012.34-001.00+000.50+180.00AB\r", EventTypeYPR},
		{"!sy0032", EventTypeStreamResponse},
		{"!x", EventTypeUnknown},
		{"hello", EventTypeUnknown},
		{"", EventTypeUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyLine(tt.line); got != tt.want {
			t.Errorf("ClassifyLine(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestInitializeWritesStreamCommand(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	mux.SetUpdateRate(100)
	require.NoError(t, mux.Initialize())
	assert.Equal(t, StreamCommand(StreamYPR, 100), string(port.GetWrittenData()))
}

func TestSendCommand(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	require.NoError(t, mux.SendCommand("!Sy3252"))
	assert.Equal(t, "!Sy3252\r\n", string(port.GetWrittenData()))

	port.ShortWrite = true
	assert.ErrorIs(t, mux.SendCommand("x"), ErrWriteFailed)

	port.ShortWrite = false
	port.WriteError = errors.New("boom")
	assert.EqualError(t, mux.SendCommand("x"), "boom")
}

func TestMonitorFansOutLines(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte("!y1\r\n!y2\r\n"))
	mux := NewSerialMux(port)

	idA, a := mux.Subscribe()
	_, b := mux.Subscribe()

	require.NoError(t, mux.Monitor(context.Background()), "EOF ends monitoring cleanly")

	for _, ch := range []chan string{a, b} {
		assert.Equal(t, "!y1", <-ch)
		assert.Equal(t, "!y2", <-ch)
	}

	mux.Unsubscribe(idA)
	_, open := <-a
	assert.False(t, open)
}

func TestMonitorReturnsReadError(t *testing.T) {
	port := NewTestableSerialPort()
	port.ReadError = errors.New("unplugged")
	mux := NewSerialMux(port)
	assert.EqualError(t, mux.Monitor(context.Background()), "unplugged")
}

func TestMonitorStopsOnContext(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewSerialMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
	require.NoError(t, mux.Close())
	assert.True(t, port.Closed)
}

func TestCloseClosesSubscribers(t *testing.T) {
	port := NewTestableSerialPort()
	port.CloseError = errors.New("close failed")
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	assert.EqualError(t, mux.Close(), "close failed")
	_, open := <-ch
	assert.False(t, open)
}

func TestDisabledSerialMux(t *testing.T) {
	d := NewDisabledSerialMux()
	id, ch := d.Subscribe()
	d.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)

	_, ch = d.Subscribe()
	require.NoError(t, d.Close())
	_, open = <-ch
	assert.False(t, open)
	require.NoError(t, d.Close())

	// Subscribing after close yields a closed channel.
	_, ch = d.Subscribe()
	_, open = <-ch
	assert.False(t, open)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Monitor(ctx), context.Canceled)
	assert.NoError(t, d.SendCommand("anything"))
	assert.NoError(t, d.Initialize())
}

func TestMockSerialMuxEmitsLine(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mux := NewMockSerialMux(ctx, "!y+000.00+000.00+000.00+000.00E1\r\n", time.Millisecond)
	_, ch := mux.Subscribe()
	go mux.Monitor(ctx)

	select {
	case line := <-ch:
		assert.Equal(t, EventTypeYPR, ClassifyLine(line))
	case <-time.After(time.Second):
		t.Fatal("no line from mock port")
	}
	require.NoError(t, mux.Close())
}

func TestOpenUsesFactory(t *testing.T) {
	port := NewTestableSerialPort()
	factory := NewMockSerialPortFactory(port)
	mux, err := Open(factory, "/dev/ttyACM0", PortOptions{BaudRate: 115200})
	require.NoError(t, err)
	require.NotNil(t, mux)

	call := factory.LastCall()
	require.NotNil(t, call)
	assert.Equal(t, "/dev/ttyACM0", call.Path)
	assert.Equal(t, 115200, call.Opts.BaudRate)

	factory.Error = errors.New("no such device")
	_, err = Open(factory, "/dev/ttyACM1", PortOptions{})
	assert.Error(t, err)
}

func TestPortOptionsNormalize(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"}, opts)

	opts, err = PortOptions{Parity: "even", StopBits: 2}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "E", opts.Parity)

	bad := []PortOptions{
		{DataBits: 9},
		{StopBits: 3},
		{Parity: "mark"},
	}
	for _, o := range bad {
		_, err := o.Normalize()
		assert.Error(t, err, "%+v", o)
	}
}

func TestPortOptionsSerialMode(t *testing.T) {
	mode, err := PortOptions{Parity: "O", StopBits: 2}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.OddParity,
		StopBits: serial.TwoStopBits,
	}, mode)

	_, err = PortOptions{DataBits: 4}.SerialMode()
	assert.Error(t, err)
}

func TestAdminRoutes(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	for _, endpoint := range []string{"/debug/send-command-api", "/debug/tail"} {
		req := httptest.NewRequest(http.MethodPut, endpoint, nil)
		w := httptest.NewRecorder()
		httpMux.ServeHTTP(w, req)
		assert.NotEqual(t, http.StatusNotFound, w.Code, endpoint)
	}

	d := NewDisabledSerialMux()
	dm := http.NewServeMux()
	d.AttachAdminRoutes(dm)
	w := httptest.NewRecorder()
	dm.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/serial-disabled", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
