// Package matmul is the tuned dense matrix product: a set of CPU GEMM kernels behind a
// tune.LocalTuner, keyed by the bucketed shape and the device identity.
package matmul

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/samcharles93/autotune/internal/tensor"
	"github.com/samcharles93/autotune/internal/tune"
)

// TunerName namespaces persisted records.
const TunerName = "matmul"

// RecipeTag registers the candidate set in the LocalTuner.
const RecipeTag = "gemm"

// Tuner is the LocalTuner of the matmul family. Identities are device IDs.
type Tuner = tune.LocalTuner[Key, string, Input, *tensor.Mat]

// Device is what the kernels need from a compute handle.
type Device interface {
	tune.Device
	Workers() int
}

// NewTuner returns a matmul tuner configured with opts.
func NewTuner(opts ...tune.Option) *Tuner {
	return tune.NewLocalTuner[Key, string, Input, *tensor.Mat](TunerName, opts...)
}

var defaultTuner = sync.OnceValue(func() *Tuner { return NewTuner() })

// Default returns the process-wide tuner with default options (blocking, in memory).
func Default() *Tuner { return defaultTuner() }

// Set returns the candidate set registered in t.
func Set(t *Tuner) *tune.TunableSet[Key, Input, *tensor.Mat] {
	return t.Init(RecipeTag, NewSet)
}

// Multiply returns a x b computed by the fastest known kernel for the shape on dev.
func Multiply(ctx context.Context, t *Tuner, dev Device, a, b *tensor.Mat) (*tensor.Mat, error) {
	if a == nil || b == nil {
		return nil, errors.Wrap(ErrShapeMismatch, "nil operand")
	}
	if a.C != b.R {
		return nil, errors.Wrapf(ErrShapeMismatch, "%dx%d by %dx%d", a.R, a.C, b.R, b.C)
	}
	in := Input{A: a, B: b, Workers: dev.Workers()}
	return t.Execute(ctx, dev.ID(), dev, Set(t), in)
}

// Report describes the cache state of one shape on one device.
type Report struct {
	Key      string `json:"key"`
	State    string `json:"state"`
	Winner   string `json:"winner,omitempty"`
	Checksum string `json:"checksum"`
}

// Inspect reports the cache state of an m x k x n product on dev without running anything.
func Inspect(t *Tuner, dev tune.Device, m, k, n int) Report {
	set := Set(t)
	key := KeyOf(m, k, n)
	r := Report{
		Key:      key.String(),
		State:    tune.Miss.String(),
		Checksum: set.ComputeChecksum(),
	}
	tuner, ok := t.Tuner(dev.ID())
	if !ok {
		return r
	}
	res := tuner.Fastest(key)
	r.State = res.State.String()
	if res.State == tune.Hit && res.Index < set.Len() {
		r.Winner = set.Fastest(res.Index).Name()
	}
	return r
}
