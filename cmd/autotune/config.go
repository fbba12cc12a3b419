package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the autotune configuration file (~/.config/autotune/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	CacheDir string `yaml:"cache_dir"`

	// Tuner
	Deferred    *bool  `yaml:"deferred"`
	Checks      *bool  `yaml:"checks"`
	Parallelism *int64 `yaml:"parallelism"`
	Workers     *int64 `yaml:"workers"`
	Warmup      *int64 `yaml:"warmup"`
	Samples     *int64 `yaml:"samples"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

// fileConfig is loaded by setup before any command runs.
var fileConfig Config

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "autotune", "config.yaml")
}

// LoadConfig reads the config file. A missing file is a zero Config.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyGlobalConfig applies config file defaults to the root flags that were not set.
func applyGlobalConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyTunerConfig applies config file defaults to tunerFlags.
func applyTunerConfig(c *cli.Command, cfg Config) {
	applyCacheDirConfig(c, cfg)
	if cfg.Deferred != nil && !c.IsSet("deferred") {
		deferred = *cfg.Deferred
	}
	if cfg.Checks != nil && !c.IsSet("checks") {
		checks = *cfg.Checks
	}
	if cfg.Parallelism != nil && !c.IsSet("parallelism") {
		parallelism = *cfg.Parallelism
	}
	if cfg.Workers != nil && !c.IsSet("workers") {
		workers = *cfg.Workers
	}
	if cfg.Warmup != nil && !c.IsSet("warmup") {
		warmup = *cfg.Warmup
	}
	if cfg.Samples != nil && !c.IsSet("samples") {
		samples = *cfg.Samples
	}
}

func applyCacheDirConfig(c *cli.Command, cfg Config) {
	if cfg.CacheDir != "" && !c.IsSet("cache-dir") {
		cacheDir = cfg.CacheDir
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	applyTunerConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}
