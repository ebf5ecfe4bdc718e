// Package config loads the pipeline configuration from YAML and applies
// environment variable overrides. Pipeline constants (SMA periods, change
// threshold, coverage minimum) live here and are passed explicitly into the
// components that use them; nothing reads them from ambient state.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the mbi pipeline.
type Config struct {
	Storage   Storage   `yaml:"storage"`
	Universe  Universe  `yaml:"universe"`
	Calendar  Calendar  `yaml:"calendar"`
	Fetch     Fetch     `yaml:"fetch"`
	Pipeline  Pipeline  `yaml:"pipeline"`
	Scheduler Scheduler `yaml:"scheduler"`
	Logging   Logging   `yaml:"logging"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Universe points at the index constituent list.
type Universe struct {
	CSVPath string `yaml:"csv_path"`
}

// Calendar holds the holiday metadata location.
type Calendar struct {
	MetaDir string `yaml:"meta_dir"`
}

// Fetch controls the upstream data fetching behaviour. Delays are in whole
// seconds so they round-trip through YAML without a custom unmarshaller.
type Fetch struct {
	MaxAttempts       int `yaml:"max_attempts"`
	BaseDelaySec      int `yaml:"base_delay_sec"`
	MaxDelaySec       int `yaml:"max_delay_sec"`
	AttemptTimeoutSec int `yaml:"attempt_timeout_sec"`
	RateLimitPerMin   int `yaml:"rate_limit_per_min"`
	MaxWorkers        int `yaml:"max_workers"`
}

// BaseDelay returns the initial retry backoff delay.
func (f Fetch) BaseDelay() time.Duration { return time.Duration(f.BaseDelaySec) * time.Second }

// MaxDelay returns the backoff delay cap.
func (f Fetch) MaxDelay() time.Duration { return time.Duration(f.MaxDelaySec) * time.Second }

// AttemptTimeout returns the per-attempt fetch timeout.
func (f Fetch) AttemptTimeout() time.Duration {
	return time.Duration(f.AttemptTimeoutSec) * time.Second
}

// Pipeline holds the breadth calculation parameters.
type Pipeline struct {
	SMAPeriods      []int   `yaml:"sma_periods"`
	ChangeThreshold float64 `yaml:"change_threshold"`
	MinValidSymbols int     `yaml:"min_valid_symbols"`
	LookbackDays    int     `yaml:"lookback_days"`
	Window52W       int     `yaml:"window_52w"`
}

// Scheduler configures the daily automation daemon.
type Scheduler struct {
	DailyCron string `yaml:"daily_cron"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Defaults and loading
// ---------------------------------------------------------------------------

// Default returns the configuration documented in the project defaults:
// NIFTY MIDSMALLCAP 400 universe, 350-of-400 coverage minimum, SMA periods
// 10/20/50/200, 4.5% daily change threshold, 252-bar 52-week window, one
// year of backfill.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/processed/breadth.db",
		},
		Universe: Universe{CSVPath: "data/meta/constituents.csv"},
		Calendar: Calendar{MetaDir: "data/meta"},
		Fetch: Fetch{
			MaxAttempts:       3,
			BaseDelaySec:      2,
			MaxDelaySec:       30,
			AttemptTimeoutSec: 30,
			RateLimitPerMin:   120,
			MaxWorkers:        8,
		},
		Pipeline: Pipeline{
			SMAPeriods:      []int{10, 20, 50, 200},
			ChangeThreshold: 4.5,
			MinValidSymbols: 350,
			LookbackDays:    365,
			Window52W:       252,
		},
		Scheduler: Scheduler{
			// 18:00 IST, after the NSE close and upstream data settling.
			DailyCron: "0 18 * * *",
		},
		Logging: Logging{Level: "info", Format: "json"},
	}
}

// Load reads the YAML configuration file at the given path on top of the
// defaults and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Pipeline.SMAPeriods) == 0 {
		return fmt.Errorf("config: pipeline.sma_periods must not be empty")
	}
	if c.Pipeline.MinValidSymbols <= 0 {
		return fmt.Errorf("config: pipeline.min_valid_symbols must be positive")
	}
	if c.Pipeline.Window52W <= 0 {
		return fmt.Errorf("config: pipeline.window_52w must be positive")
	}
	if c.Fetch.MaxAttempts <= 0 {
		return fmt.Errorf("config: fetch.max_attempts must be positive")
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MBI_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("MBI_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("MBI_UNIVERSE_CSV"); v != "" {
		cfg.Universe.CSVPath = v
	}
	if v := os.Getenv("MBI_META_DIR"); v != "" {
		cfg.Calendar.MetaDir = v
	}
	if v := os.Getenv("MBI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MBI_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Fetch.MaxWorkers = n
		}
	}
	if v := os.Getenv("MBI_LOOKBACK_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pipeline.LookbackDays = n
		}
	}
}
