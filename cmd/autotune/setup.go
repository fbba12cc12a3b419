package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/autotune/internal/device"
	"github.com/samcharles93/autotune/internal/logger"
	"github.com/samcharles93/autotune/internal/matmul"
	"github.com/samcharles93/autotune/internal/tune"
	"github.com/samcharles93/autotune/internal/tunecache"
)

// setup loads the config file and installs the logger in the context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: config %s: %v", configFile, err), 1)
	}
	fileConfig = cfg
	applyGlobalConfig(cmd, cfg)

	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	log := logger.NewFormat(logFormat, os.Stderr, level)
	return logger.WithContext(ctx, log), nil
}

// tunerEnv is what bench and serve share: a matmul tuner wired to the flags.
type tunerEnv struct {
	tuner *matmul.Tuner
	dev   *device.CPU
	store *tunecache.Store
	exec  *tune.DeferredExecutor
}

func newTunerEnv(ctx context.Context) (*tunerEnv, error) {
	log := logger.FromContext(ctx)
	env := &tunerEnv{dev: device.NewCPU(int(workers))}

	opts := []tune.Option{
		tune.WithLogger(log),
		tune.WithChecks(checks),
		tune.WithBenchmarker(tune.TimingBenchmarker{Warmup: int(warmup), Samples: int(samples)}),
	}
	if deferred {
		env.exec = tune.NewDeferredExecutor(int(parallelism))
		opts = append(opts, tune.WithExecutor(env.exec))
	}
	if !noCache {
		store, err := tunecache.New(cacheDir, log)
		if err != nil {
			return nil, err
		}
		env.store = store
		opts = append(opts, tune.WithStore(store))
	}
	env.tuner = matmul.NewTuner(opts...)

	log.Debug("tuner ready",
		"device", env.dev.ID(),
		"deferred", deferred,
		"checks", checks,
		"cache_dir", cacheDirOrNone(env.store))
	return env, nil
}

// wait blocks until background benchmarks are done. No-op in blocking mode.
func (e *tunerEnv) wait() {
	if e.exec != nil {
		e.exec.Wait()
	}
}

func cacheDirOrNone(s *tunecache.Store) string {
	if s == nil {
		return "none"
	}
	return s.Dir()
}
