package main

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackknights-robotics/motioncore/internal/telemetry"
	"github.com/blackknights-robotics/motioncore/internal/timeutil"
)

// recordRun writes a short drive toward x=1 into a fresh archive.
func recordRun(t *testing.T) (*telemetry.Archive, string) {
	t.Helper()
	a, err := telemetry.OpenArchive(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	clock := timeutil.NewMockClock(time.Unix(100, 0))
	mono := timeutil.NewMonotonic(clock)
	r, err := telemetry.NewRecorder(a, telemetry.RecorderConfig{Label: "test", Clock: mono})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		clock.Advance(20 * time.Millisecond)
		x := float64(i) / 10
		r.PublishArray("Pose/robot", []float64{x, 0.5, 0})
		r.PublishArray("Sim/truth", []float64{x + 0.01, 0.5, 0})
		r.Publish("debug/X Pid Error", 1-x)
	}
	r.Publish("debug/X Pid Error", math.NaN())
	require.NoError(t, r.Flush())
	return a, r.RunID()
}

func TestLoadSeries(t *testing.T) {
	a, runID := recordRun(t)

	traj, err := loadTrajectories(a, runID, defaultTrajectoryKeys)
	require.NoError(t, err)
	require.Len(t, traj, 2, "Pose/odometry was never recorded")
	assert.Equal(t, "Pose/robot", traj[0].Name)
	require.Len(t, traj[0].Points, 10)
	assert.InDelta(t, 0.9, traj[0].Points[9].X, 1e-9)
	assert.InDelta(t, 0.5, traj[0].Points[9].Y, 1e-9)

	scalars, err := loadScalars(a, runID, defaultScalarKeys)
	require.NoError(t, err)
	require.Len(t, scalars, 1)
	assert.Len(t, scalars[0].Points, 10, "NaN samples are dropped")
	assert.InDelta(t, 0.02, scalars[0].Points[0].X, 1e-9)
	assert.InDelta(t, 1.0, scalars[0].Points[0].Y, 1e-9)
}

func TestSavePNG(t *testing.T) {
	a, runID := recordRun(t)
	traj, err := loadTrajectories(a, runID, defaultTrajectoryKeys)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "trajectory.png")
	require.NoError(t, savePNG(path, "Trajectory", "X (m)", "Y (m)", traj, true))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Error(t, savePNG(path, "Empty", "", "", nil, false))
}

func TestRenderHTML(t *testing.T) {
	a, runID := recordRun(t)
	traj, err := loadTrajectories(a, runID, defaultTrajectoryKeys)
	require.NoError(t, err)
	scalars, err := loadScalars(a, runID, defaultScalarKeys)
	require.NoError(t, err)
	run, err := findRun(a, "")
	require.NoError(t, err)
	assert.Equal(t, runID, run.ID)

	var buf bytes.Buffer
	require.NoError(t, renderHTML(&buf, run, traj, scalars))
	html := buf.String()
	assert.Contains(t, html, "Pose/robot")
	assert.Contains(t, html, "Sim/truth")
	assert.Contains(t, html, "debug/X Pid Error")

	assert.Error(t, renderHTML(&bytes.Buffer{}, run, nil, nil))
}

func TestPlotRunWritesFiles(t *testing.T) {
	a, runID := recordRun(t)
	out := t.TempDir()

	dir, err := plotRun(a, Config{
		RunID:          runID,
		OutputDir:      out,
		TrajectoryKeys: defaultTrajectoryKeys,
		ScalarKeys:     defaultScalarKeys,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, runID), dir)
	for _, name := range []string{"trajectory.png", "errors.png", "index.html"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	_, err = plotRun(a, Config{RunID: "missing", OutputDir: out})
	assert.Error(t, err)
}

func TestSplitKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b/c"}, splitKeys(" a, ,b/c,"))
	assert.Nil(t, splitKeys(""))
}
