package tune

import "github.com/samcharles93/autotune/internal/logger"

// Option configures a LocalTuner. Options are resolved once, in NewLocalTuner.
type Option func(*config)

type config struct {
	blocking    bool
	checks      bool
	parallelism int
	store       Store
	bench       Benchmarker
	exec        Executor
	log         logger.Logger
}

func defaultConfig() config {
	return config{
		blocking: true,
		bench:    DefaultBenchmarker(),
		log:      logger.Default(),
	}
}

// WithBlocking selects whether Execute may block on benchmarking. When false, benchmarks run
// in the background and callers get candidate 0 until a winner is harvested.
func WithBlocking(blocking bool) Option {
	return func(c *config) { c.blocking = blocking }
}

// WithChecks turns on cross-validation: on every hit all candidates run and their outputs are
// compared with the set's checker.
func WithChecks(checks bool) Option {
	return func(c *config) { c.checks = checks }
}

// WithParallelism bounds the number of concurrent background benchmarks (non-blocking mode).
func WithParallelism(n int) Option {
	return func(c *config) { c.parallelism = n }
}

// WithStore persists winners. Without a store results live in memory only.
func WithStore(store Store) Option {
	return func(c *config) { c.store = store }
}

// WithBenchmarker replaces the default TimingBenchmarker.
func WithBenchmarker(b Benchmarker) Option {
	return func(c *config) {
		if b != nil {
			c.bench = b
		}
	}
}

// WithExecutor overrides the executor implied by WithBlocking.
func WithExecutor(e Executor) Option {
	return func(c *config) { c.exec = e }
}

// WithLogger sets the logger. Tuners derive a child logger tagged with tuner name and id.
func WithLogger(log logger.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

func (c *config) resolve() {
	if c.exec == nil {
		if c.blocking {
			c.exec = BlockingExecutor{}
		} else {
			c.exec = NewDeferredExecutor(c.parallelism)
		}
	}
	c.blocking = c.exec.Blocking()
}
