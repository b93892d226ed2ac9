package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical robot defaults file.
const DefaultConfigPath = "config/robot.defaults.json"

// ErrNotJSON is returned when a config path does not end in .json.
var ErrNotJSON = errors.New("config file must have .json extension")

// RobotConfig holds the construction-time constants of the robot: chassis
// geometry, drive limits, module offsets and estimator noise. Runtime
// tunables live in Store.
type RobotConfig struct {
	// Chassis
	MaxSpeedMPS        *float64 `json:"max_speed_mps,omitempty"`
	MaxAngularSpeedRPS *float64 `json:"max_angular_speed_rps,omitempty"`
	WheelBaseM         *float64 `json:"wheel_base_m,omitempty"`
	TrackWidthM        *float64 `json:"track_width_m,omitempty"`

	// Module steering offsets relative to the chassis, in FL, FR, RL, RR order.
	ModuleOffsetsRad *[4]float64 `json:"module_offsets_rad,omitempty"`

	// Drive slew defaults; the tunables of the same purpose override these.
	DirectionSlewRate  *float64 `json:"direction_slew_rate,omitempty"`
	MagnitudeSlewRate  *float64 `json:"magnitude_slew_rate,omitempty"`
	RotationalSlewRate *float64 `json:"rotational_slew_rate,omitempty"`

	// Drive motor feedforward
	DriveKS     *float64 `json:"drive_ks,omitempty"`
	DriveKV     *float64 `json:"drive_kv,omitempty"`
	DriveKA     *float64 `json:"drive_ka,omitempty"`
	DriveFFStep *float64 `json:"drive_ff_step_seconds,omitempty"`

	// Loop
	LoopPeriod *string `json:"loop_period,omitempty"` // duration string like "20ms"

	// Heading sensor
	GyroAngleAdjustmentDeg *float64 `json:"gyro_angle_adjustment_deg,omitempty"`

	// Estimator
	HistoryWindow  *string      `json:"history_window,omitempty"` // duration string like "1.5s"
	StateStdDevs   *[3]float64 `json:"state_std_devs,omitempty"`
	VisionStdDevs  *[3]float64 `json:"vision_std_devs,omitempty"`
	VisionAgeScale *float64    `json:"vision_age_scale,omitempty"`
	VisionDistGain *float64    `json:"vision_distance_gain,omitempty"`
}

// EmptyRobotConfig returns a RobotConfig with all fields set to nil; every
// Get* method then returns its default.
func EmptyRobotConfig() *RobotConfig {
	return &RobotConfig{}
}

// LoadRobotConfig loads a RobotConfig from a JSON file. Fields omitted from
// the file keep their defaults, so partial configs are safe.
func LoadRobotConfig(path string) (*RobotConfig, error) {
	data, err := readJSONFile(path)
	if err != nil {
		return nil, err
	}

	cfg := EmptyRobotConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *RobotConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadRobotConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// readJSONFile validates the extension and size of a config file and returns
// its contents.
func readJSONFile(path string) ([]byte, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("%w, got %q", ErrNotJSON, ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return data, nil
}

// Validate checks that the configuration values are usable.
func (c *RobotConfig) Validate() error {
	positive := map[string]*float64{
		"max_speed_mps":         c.MaxSpeedMPS,
		"max_angular_speed_rps": c.MaxAngularSpeedRPS,
		"wheel_base_m":          c.WheelBaseM,
		"track_width_m":         c.TrackWidthM,
		"direction_slew_rate":   c.DirectionSlewRate,
		"magnitude_slew_rate":   c.MagnitudeSlewRate,
		"rotational_slew_rate":  c.RotationalSlewRate,
	}
	for name, v := range positive {
		if v != nil && (*v <= 0 || math.IsNaN(*v)) {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}

	for name, v := range map[string]*string{"loop_period": c.LoopPeriod, "history_window": c.HistoryWindow} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	for name, arr := range map[string]*[3]float64{"state_std_devs": c.StateStdDevs, "vision_std_devs": c.VisionStdDevs} {
		if arr == nil {
			continue
		}
		for _, v := range arr {
			if v < 0 {
				return fmt.Errorf("%s must be non-negative, got %v", name, *arr)
			}
		}
	}

	return nil
}

func orDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func durationOrDefault(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetMaxSpeedMPS returns the wheel speed limit in m/s.
func (c *RobotConfig) GetMaxSpeedMPS() float64 { return orDefault(c.MaxSpeedMPS, 4.8) }

// GetMaxAngularSpeedRPS returns the chassis turn-rate limit in rad/s.
func (c *RobotConfig) GetMaxAngularSpeedRPS() float64 {
	return orDefault(c.MaxAngularSpeedRPS, 2*math.Pi)
}

// GetWheelBaseM returns the front-to-rear module spacing.
func (c *RobotConfig) GetWheelBaseM() float64 { return orDefault(c.WheelBaseM, 0.6604) }

// GetTrackWidthM returns the left-to-right module spacing.
func (c *RobotConfig) GetTrackWidthM() float64 { return orDefault(c.TrackWidthM, 0.6604) }

// GetModuleOffsetsRad returns the chassis angular offset of each module.
func (c *RobotConfig) GetModuleOffsetsRad() [4]float64 {
	if c.ModuleOffsetsRad == nil {
		return [4]float64{-math.Pi / 2, 0, math.Pi, math.Pi / 2}
	}
	return *c.ModuleOffsetsRad
}

// GetDirectionSlewRate returns the default direction slew numerator.
func (c *RobotConfig) GetDirectionSlewRate() float64 { return orDefault(c.DirectionSlewRate, 5.76) }

// GetMagnitudeSlewRate returns the default translation slew in m/s².
func (c *RobotConfig) GetMagnitudeSlewRate() float64 { return orDefault(c.MagnitudeSlewRate, 8.64) }

// GetRotationalSlewRate returns the default rotation slew in rad/s².
func (c *RobotConfig) GetRotationalSlewRate() float64 {
	return orDefault(c.RotationalSlewRate, 12.0)
}

// GetDriveFeedforward returns ks, kv, ka and the discretization step.
func (c *RobotConfig) GetDriveFeedforward() (ks, kv, ka, dt float64) {
	return orDefault(c.DriveKS, 0.096286),
		orDefault(c.DriveKV, 2.3216),
		orDefault(c.DriveKA, 0.41854),
		orDefault(c.DriveFFStep, 1)
}

// GetLoopPeriod returns the control loop period.
func (c *RobotConfig) GetLoopPeriod() time.Duration {
	return durationOrDefault(c.LoopPeriod, 20*time.Millisecond)
}

// GetGyroAngleAdjustmentDeg returns the heading sensor mount offset.
func (c *RobotConfig) GetGyroAngleAdjustmentDeg() float64 {
	return orDefault(c.GyroAngleAdjustmentDeg, 180)
}

// GetHistoryWindow returns how long the estimator keeps odometry history.
func (c *RobotConfig) GetHistoryWindow() time.Duration {
	return durationOrDefault(c.HistoryWindow, 1500*time.Millisecond)
}

// GetStateStdDevs returns the odometry x, y, θ standard deviations.
func (c *RobotConfig) GetStateStdDevs() [3]float64 {
	if c.StateStdDevs == nil {
		return [3]float64{0.1, 0.1, 0.1}
	}
	return *c.StateStdDevs
}

// GetVisionStdDevs returns the base vision x, y, θ standard deviations.
func (c *RobotConfig) GetVisionStdDevs() [3]float64 {
	if c.VisionStdDevs == nil {
		return [3]float64{0.9, 0.9, 0.9}
	}
	return *c.VisionStdDevs
}

// GetVisionAgeScale returns the std-dev growth per second of sample age.
func (c *RobotConfig) GetVisionAgeScale() float64 { return orDefault(c.VisionAgeScale, 2.0) }

// GetVisionDistanceGain returns the std-dev growth per metre to the landmark.
func (c *RobotConfig) GetVisionDistanceGain() float64 { return orDefault(c.VisionDistGain, 0.25) }
