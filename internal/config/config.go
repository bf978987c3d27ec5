package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quadkit/descent/internal/flight"
	"github.com/quadkit/descent/internal/manager"
)

const (
	DefaultRateHz   = 50.0
	DefaultDuration = 30.0
	DefaultMass     = 0.087 // kg, RMTT airframe
	DefaultHover    = 0.5
)

type Config struct {
	Controller string             `yaml:"controller"`
	RateHz     float64            `yaml:"rate_hz"`
	Duration   float64            `yaml:"duration"`
	Plant      PlantConfig        `yaml:"plant"`
	Safety     SafetyConfig       `yaml:"safety"`
	Gains      map[string]float64 `yaml:"gains"`
}

type PlantConfig struct {
	Mass       float64 `yaml:"mass"`
	HovPercent float64 `yaml:"hov_percent"`
	Drag       float64 `yaml:"drag"`
	WindBiasZ  float64 `yaml:"wind_bias_z"` // constant unmodeled accel, m/s^2
}

type SafetyConfig struct {
	BatteryFloor   float64 `yaml:"battery_floor"`
	StaleTimeoutMs float64 `yaml:"stale_timeout_ms"`
	MaxStaleTicks  int     `yaml:"max_stale_ticks"`
	MaxTiltDeg     float64 `yaml:"max_tilt_deg"`
}

func DefaultConfig() *Config {
	return &Config{
		Controller: "pid",
		RateHz:     DefaultRateHz,
		Duration:   DefaultDuration,
		Plant: PlantConfig{
			Mass:       DefaultMass,
			HovPercent: DefaultHover,
			Drag:       0.15,
		},
		Safety: SafetyConfig{
			BatteryFloor:   0.15,
			StaleTimeoutMs: 500,
			MaxStaleTicks:  10,
			MaxTiltDeg:     45,
		},
		Gains: GainDefaults("pid"),
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// FlightConfig flattens the gain map into the parameter set a
// controller consumes at Init. Plant mass and hover fraction fill in
// unless the gain file overrides them.
func (c *Config) FlightConfig() flight.Config {
	fc := make(flight.Config, len(c.Gains)+2)
	for k, v := range c.Gains {
		fc[k] = v
	}
	if _, ok := fc["quad_mass"]; !ok {
		fc["quad_mass"] = c.Plant.Mass
	}
	if _, ok := fc["hov_percent"]; !ok {
		fc["hov_percent"] = c.Plant.HovPercent
	}
	return fc
}

// Limits converts the safety section into manager interlock limits.
func (c *Config) Limits() manager.Limits {
	l := manager.DefaultLimits()
	if c.Safety.BatteryFloor > 0 {
		l.BatteryFloor = c.Safety.BatteryFloor
	}
	if c.Safety.StaleTimeoutMs > 0 {
		l.StaleAfter = time.Duration(c.Safety.StaleTimeoutMs * float64(time.Millisecond))
	}
	if c.Safety.MaxStaleTicks > 0 {
		l.MaxStaleTicks = c.Safety.MaxStaleTicks
	}
	if c.Safety.MaxTiltDeg > 0 {
		l.MaxTilt = c.Safety.MaxTiltDeg * math.Pi / 180
	}
	return l
}

func (c *Config) Dt() float64 {
	if c.RateHz <= 0 {
		return 1.0 / DefaultRateHz
	}
	return 1.0 / c.RateHz
}
