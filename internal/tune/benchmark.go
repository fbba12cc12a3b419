package tune

import (
	"context"
	"slices"
	"time"

	"github.com/pkg/errors"
)

// Device is the compute handle candidates run on. The tuner only uses ID for logs and passes
// the device through to the Benchmarker unexamined.
type Device interface {
	ID() string
}

// Syncer is implemented by devices that execute asynchronously. The timing benchmarker calls
// Sync after each run so the measurement covers the whole execution.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Candidate is one benchmark subject handed to a Benchmarker.
type Candidate struct {
	Index int
	Name  string
	Run   func(ctx context.Context) error
}

// Measurement is the cost of one candidate. Lower Duration wins.
type Measurement struct {
	Duration time.Duration
	Samples  []time.Duration
}

// Benchmarker measures a candidate. An error excludes the candidate from winning.
type Benchmarker interface {
	Measure(ctx context.Context, device Device, c Candidate) (Measurement, error)
}

// TimingBenchmarker runs a candidate Warmup times untimed, then Samples times timed, and
// reports the median wall-clock duration.
type TimingBenchmarker struct {
	Warmup  int
	Samples int
}

// DefaultBenchmarker is used when no WithBenchmarker option is given.
func DefaultBenchmarker() TimingBenchmarker {
	return TimingBenchmarker{Warmup: 1, Samples: 5}
}

func (b TimingBenchmarker) Measure(ctx context.Context, device Device, c Candidate) (Measurement, error) {
	for i := 0; i < b.Warmup; i++ {
		if err := runSynced(ctx, device, c); err != nil {
			return Measurement{}, err
		}
	}

	n := max(b.Samples, 1)
	samples := make([]time.Duration, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return Measurement{}, errors.Wrapf(err, "benchmark %s", c.Name)
		}
		start := time.Now()
		if err := runSynced(ctx, device, c); err != nil {
			return Measurement{}, err
		}
		samples = append(samples, time.Since(start))
	}
	return Measurement{Duration: median(samples), Samples: samples}, nil
}

// runSynced runs the candidate once, turning a panic into ErrCandidatePanic.
func runSynced(ctx context.Context, device Device, c Candidate) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrCandidatePanic, "%s: %v", c.Name, r)
		}
	}()
	if err := c.Run(ctx); err != nil {
		return err
	}
	if s, ok := device.(Syncer); ok {
		return s.Sync(ctx)
	}
	return nil
}

func median(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
