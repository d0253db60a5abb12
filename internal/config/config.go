package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Mode       string           `yaml:"mode"` // "browser" | "direct-http" | "mock"
	Database   DatabaseConfig   `yaml:"database"`
	Collector  CollectorConfig  `yaml:"collector"`
	Security   SecurityConfig   `yaml:"security"`
	Engine     EngineConfig     `yaml:"engine"`
	Commercial CommercialConfig `yaml:"commercial"`
	Server     ServerConfig     `yaml:"server"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// DatabaseConfig holds the SQLite file connection settings.
type DatabaseConfig struct {
	Path   string `yaml:"path"`
	Driver string `yaml:"driver"` // "sqlite" or "memory" (tests)
}

// CollectorConfig holds the polling/transport knobs shared by both
// collector implementations.
type CollectorConfig struct {
	BaseCadenceSeconds        float64 `yaml:"base_cadence_seconds"`
	RelaxedCadenceSeconds     float64 `yaml:"relaxed_cadence_seconds"`
	ConcurrentRequests        int     `yaml:"concurrent_requests"`
	RequestTimeoutIntensiveS  float64 `yaml:"request_timeout_intensive_s"`
	RequestTimeoutRelaxedS    float64 `yaml:"request_timeout_relaxed_s"`
	AuthFailuresMax           int     `yaml:"auth_failures_max"`
}

// SecurityConfig holds the error-streak backoff policy knobs.
type SecurityConfig struct {
	MaxStreak            int     `yaml:"max_streak"`
	MinStreakForBackoff  int     `yaml:"min_streak_for_backoff"`
	BackoffFactor        float64 `yaml:"backoff_factor"`
	CadenceCeilingS       float64 `yaml:"cadence_ceiling_s"`
	InactivityCeilingMin float64 `yaml:"inactivity_ceiling_min"`
}

// EngineConfig holds engine-level knobs.
type EngineConfig struct {
	AggWindowSeconds float64 `yaml:"agg_window_seconds"`
}

// CommercialConfig holds defaults applied to newly-captured items.
type CommercialConfig struct {
	DefaultMinMarginPct        float64 `yaml:"default_min_margin_pct"`
	DefaultHideBelowThreshold bool    `yaml:"default_hide_below_threshold"`
}

// ServerConfig holds HTTP health-server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
}

// Load reads a YAML configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{
		Mode: "mock",
		Database: DatabaseConfig{
			Path:   "subastamon.db",
			Driver: "sqlite",
		},
		Collector: CollectorConfig{
			BaseCadenceSeconds:       1.0,
			RelaxedCadenceSeconds:    1.0,
			ConcurrentRequests:       5,
			RequestTimeoutIntensiveS: 2.5,
			RequestTimeoutRelaxedS:   5.0,
			AuthFailuresMax:          5,
		},
		Security: SecurityConfig{
			MaxStreak:            10,
			MinStreakForBackoff:  2,
			BackoffFactor:        2.0,
			CadenceCeilingS:      30,
			InactivityCeilingMin: 5,
		},
		Engine: EngineConfig{
			AggWindowSeconds: 30,
		},
		Commercial: CommercialConfig{
			DefaultMinMarginPct:       10.0,
			DefaultHideBelowThreshold: false,
		},
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "subastamon",
			ServiceVersion: "0.1.0",
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Collector.RelaxedCadenceSeconds < cfg.Collector.BaseCadenceSeconds {
		cfg.Collector.RelaxedCadenceSeconds = cfg.Collector.BaseCadenceSeconds
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Mode {
	case "browser", "direct-http", "mock":
		// valid
	default:
		return fmt.Errorf("unsupported mode %q: must be \"browser\", \"direct-http\", or \"mock\"", c.Mode)
	}

	switch c.Database.Driver {
	case "sqlite", "memory":
		// valid
	default:
		return fmt.Errorf("unsupported database driver %q: must be \"sqlite\" or \"memory\"", c.Database.Driver)
	}

	if c.Collector.BaseCadenceSeconds < 0.2 {
		return fmt.Errorf("base_cadence_seconds must be >= 0.2, got %v", c.Collector.BaseCadenceSeconds)
	}
	if c.Collector.ConcurrentRequests < 1 || c.Collector.ConcurrentRequests > 30 {
		return fmt.Errorf("concurrent_requests must be in [1,30], got %d", c.Collector.ConcurrentRequests)
	}
	if c.Collector.RequestTimeoutIntensiveS < 0.5 {
		return fmt.Errorf("request_timeout_intensive_s must be >= 0.5, got %v", c.Collector.RequestTimeoutIntensiveS)
	}
	if c.Collector.RequestTimeoutRelaxedS < 1.0 {
		return fmt.Errorf("request_timeout_relaxed_s must be >= 1.0, got %v", c.Collector.RequestTimeoutRelaxedS)
	}
	if c.Commercial.DefaultMinMarginPct < 0 || c.Commercial.DefaultMinMarginPct > 100 {
		return fmt.Errorf("default_min_margin_pct must be in [0,100], got %v", c.Commercial.DefaultMinMarginPct)
	}

	return nil
}
