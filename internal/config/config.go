// Package config loads the codriver configuration from YAML with
// environment overrides for deployment-specific settings.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full process configuration. Defaults suit a road rally
// stage; every knob is overridable from YAML.
type Config struct {
	Map       MapConfig       `yaml:"map"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Caller    CallerConfig    `yaml:"caller"`
	Speech    SpeechConfig    `yaml:"speech"`
	Source    SourceConfig    `yaml:"source"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	NATS      NATSConfig      `yaml:"nats"`
	LogLevel  string          `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

type MapConfig struct {
	PBFPath  string `yaml:"pbf_path"`
	CacheDir string `yaml:"cache_dir"`
}

type PipelineConfig struct {
	LookaheadM        float64 `yaml:"lookahead_m" validate:"gt=0"`
	CornerMinRadiusM  float64 `yaml:"corner_min_radius_m" validate:"gt=0"`
	CornerMinAngleDeg float64 `yaml:"corner_min_angle_deg" validate:"gt=0"`
	HeadingTolDeg     float64 `yaml:"heading_tolerance_deg" validate:"gt=0,lte=180"`
	SnapToleranceM    float64 `yaml:"snap_tolerance_m" validate:"gt=0"`
	SampleStepM       float64 `yaml:"sample_step_m" validate:"gt=0"`
	MergeDistanceM    float64 `yaml:"merge_distance_m" validate:"gt=0"`
}

type CallerConfig struct {
	MinLeadM  float64 `yaml:"min_lead_m" validate:"gt=0"`
	LeadTimeS float64 `yaml:"lead_time_s" validate:"gt=0"`
	GraceM    float64 `yaml:"grace_m" validate:"gte=0"`
}

type SpeechConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Voice       string `yaml:"voice"`
	SpeedWPM    int    `yaml:"speed_wpm" validate:"gte=0"`
	Effects     bool   `yaml:"effects"`
	StaleAfterS float64 `yaml:"stale_after_s" validate:"gte=0"`
}

type SourceConfig struct {
	// Mode selects the position feed: "sim" follows the road from the
	// start point, "trace" replays a VBO file.
	Mode            string  `yaml:"mode" validate:"oneof=sim trace"`
	StartLat        float64 `yaml:"start_lat"`
	StartLon        float64 `yaml:"start_lon"`
	StartHeading    float64 `yaml:"start_heading"`
	SpeedMPS        float64 `yaml:"speed_mps" validate:"gte=0"`
	TracePath       string  `yaml:"trace_path"`
	SpeedMultiplier float64 `yaml:"speed_multiplier" validate:"gte=0"`
}

type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			LookaheadM:        1000,
			CornerMinRadiusM:  300,
			CornerMinAngleDeg: 10,
			HeadingTolDeg:     30,
			SnapToleranceM:    50,
			SampleStepM:       10,
			MergeDistanceM:    50,
		},
		Caller: CallerConfig{
			MinLeadM:  100,
			LeadTimeS: 4,
			GraceM:    15,
		},
		Speech: SpeechConfig{
			Enabled:     true,
			Voice:       "en-gb",
			SpeedWPM:    190,
			Effects:     true,
			StaleAfterS: 5,
		},
		Source: SourceConfig{
			Mode:            "sim",
			SpeedMPS:        13.4,
			SpeedMultiplier: 1,
		},
		Dashboard: DashboardConfig{Addr: ":8080"},
		Metrics:   MetricsConfig{Addr: ":9090"},
		NATS:      NATSConfig{URL: "nats://127.0.0.1:4222"},
		LogLevel:  "info",
	}
}

// Load reads path (optional), applies environment overrides, validates,
// and returns the configuration. A missing file is not an error; the
// defaults then apply.
func Load(path string) (*Config, error) {
	// .env is a development convenience, ignore when absent
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides deployment-facing fields from the environment.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CODRIVER_PBF"); v != "" {
		cfg.Map.PBFPath = v
	}
	if v := os.Getenv("CODRIVER_CACHE_DIR"); v != "" {
		cfg.Map.CacheDir = v
	}
	if v := os.Getenv("CODRIVER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CODRIVER_NATS_URL"); v != "" {
		cfg.NATS.URL = v
		cfg.NATS.Enabled = true
	}
	if v := os.Getenv("CODRIVER_DASHBOARD_ADDR"); v != "" {
		cfg.Dashboard.Addr = v
		cfg.Dashboard.Enabled = true
	}
	if v := os.Getenv("CODRIVER_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
		cfg.Metrics.Enabled = true
	}
}
