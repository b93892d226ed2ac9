// Command telemetry-plot renders a recorded run from a motioncore telemetry
// archive as PNG plots and an interactive HTML page.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/blackknights-robotics/motioncore/internal/telemetry"
)

var (
	defaultTrajectoryKeys = []string{"Pose/robot", "Pose/odometry", "Sim/truth"}
	defaultScalarKeys     = []string{
		"debug/X Pid Error",
		"debug/Y Pid Error",
		"debug/Rot Pid Error",
		"debug/Dist to target (Error)",
	}
)

// Config holds the command line options.
type Config struct {
	DBPath         string
	RunID          string
	OutputDir      string
	List           bool
	TrajectoryKeys []string
	ScalarKeys     []string
}

func main() {
	cfg := parseFlags()
	if cfg.DBPath == "" {
		log.Fatal("Telemetry database is required (-db)")
	}
	if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
		log.Fatalf("Telemetry database not found: %s", cfg.DBPath)
	}

	a, err := telemetry.OpenArchive(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open archive: %v", err)
	}
	defer a.Close()

	if cfg.List {
		runs, err := a.Runs()
		if err != nil {
			log.Fatalf("failed to list runs: %v", err)
		}
		for _, r := range runs {
			fmt.Printf("%s\t%s\t%s\t%d samples\n", r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Label, r.Samples)
		}
		return
	}

	dir, err := plotRun(a, cfg)
	if err != nil {
		log.Fatalf("failed to plot run: %v", err)
	}
	log.Printf("plots written to %s", dir)
}

func parseFlags() Config {
	var cfg Config
	var trajectories, scalars string
	flag.StringVar(&cfg.DBPath, "db", "", "Telemetry sqlite database written by motioncore -record")
	flag.StringVar(&cfg.RunID, "run", "", "Run ID to plot (latest run when empty)")
	flag.StringVar(&cfg.OutputDir, "out", "plots", "Output directory; each run gets a subdirectory")
	flag.BoolVar(&cfg.List, "list", false, "List recorded runs and exit")
	flag.StringVar(&trajectories, "trajectories", strings.Join(defaultTrajectoryKeys, ","), "Comma-separated pose array keys to plot as paths")
	flag.StringVar(&scalars, "keys", strings.Join(defaultScalarKeys, ","), "Comma-separated scalar keys to plot against time")
	flag.Parse()
	cfg.TrajectoryKeys = splitKeys(trajectories)
	cfg.ScalarKeys = splitKeys(scalars)
	return cfg
}

func splitKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// findRun returns the run with the given ID, or the newest run when id is
// empty.
func findRun(a *telemetry.Archive, id string) (telemetry.Run, error) {
	runs, err := a.Runs()
	if err != nil {
		return telemetry.Run{}, err
	}
	if len(runs) == 0 {
		return telemetry.Run{}, fmt.Errorf("archive has no runs")
	}
	if id == "" {
		return runs[0], nil
	}
	for _, r := range runs {
		if r.ID == id {
			return r, nil
		}
	}
	return telemetry.Run{}, fmt.Errorf("run %s not found", id)
}

// plotRun writes trajectory.png, errors.png and index.html for one run and
// returns the directory they were written to. A plot with no data is skipped.
func plotRun(a *telemetry.Archive, cfg Config) (string, error) {
	run, err := findRun(a, cfg.RunID)
	if err != nil {
		return "", err
	}
	trajectories, err := loadTrajectories(a, run.ID, cfg.TrajectoryKeys)
	if err != nil {
		return "", err
	}
	scalars, err := loadScalars(a, run.ID, cfg.ScalarKeys)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(cfg.OutputDir, run.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if len(trajectories) > 0 {
		if err := savePNG(filepath.Join(dir, "trajectory.png"), "Trajectory", "X (m)", "Y (m)", trajectories, true); err != nil {
			return "", err
		}
	} else {
		log.Printf("run %s: no trajectory keys recorded, skipping trajectory.png", run.ID)
	}
	if len(scalars) > 0 {
		if err := savePNG(filepath.Join(dir, "errors.png"), "Controller signals", "t (s)", "", scalars, false); err != nil {
			return "", err
		}
	} else {
		log.Printf("run %s: no scalar keys recorded, skipping errors.png", run.ID)
	}

	f, err := os.Create(filepath.Join(dir, "index.html"))
	if err != nil {
		return "", fmt.Errorf("failed to create index.html: %w", err)
	}
	defer f.Close()
	if err := renderHTML(f, run, trajectories, scalars); err != nil {
		return "", err
	}
	return dir, f.Close()
}
