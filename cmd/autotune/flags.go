package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/autotune/internal/tunecache"
)

var (
	configFile string
	logLevel   string
	logFormat  string
	debug      bool

	cacheDir    string
	noCache     bool
	deferred    bool
	checks      bool
	parallelism int64
	workers     int64
	warmup      int64
	samples     int64
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml",
			Value:       configPath(),
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func cacheDirFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "cache-dir",
		Usage:       "directory of the persistent autotune cache",
		Value:       tunecache.DefaultDir(),
		Sources:     cli.EnvVars(tunecache.EnvDir),
		Destination: &cacheDir,
	}
}

func tunerFlags() []cli.Flag {
	return []cli.Flag{
		cacheDirFlag(),
		&cli.BoolFlag{
			Name:        "no-cache",
			Usage:       "keep winners in memory only",
			Destination: &noCache,
		},
		&cli.BoolFlag{
			Name:        "deferred",
			Usage:       "benchmark in the background and run the default kernel meanwhile",
			Destination: &deferred,
		},
		&cli.BoolFlag{
			Name:        "checks",
			Usage:       "cross-check every kernel's output on each call",
			Destination: &checks,
		},
		&cli.Int64Flag{
			Name:        "parallelism",
			Usage:       "concurrent background benchmarks in deferred mode (0 = NumCPU)",
			Value:       1,
			Destination: &parallelism,
		},
		&cli.Int64Flag{
			Name:        "workers",
			Usage:       "goroutines used by the parallel kernels (0 = GOMAXPROCS)",
			Destination: &workers,
		},
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "untimed runs per candidate",
			Value:       1,
			Destination: &warmup,
		},
		&cli.Int64Flag{
			Name:        "samples",
			Usage:       "timed runs per candidate (the median wins)",
			Value:       5,
			Destination: &samples,
		},
	}
}
