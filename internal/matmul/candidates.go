package matmul

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/samcharles93/autotune/internal/tensor"
	"github.com/samcharles93/autotune/internal/tune"
)

// ChecksumSalt is mixed into the set checksum. Bump it when a kernel changes speed without
// changing its name, so persisted winners are re-measured.
const ChecksumSalt = "gemm-kernels/1"

// maxTransposeScratch bounds the B^T scratch of the transposed-dot candidate, in elements.
const maxTransposeScratch = 1 << 22

// Input is one product A x B. Workers bounds the parallel candidates.
type Input struct {
	A, B    *tensor.Mat
	Workers int
}

func keyOfInput(in Input) Key {
	return KeyOf(in.A.R, in.A.C, in.B.C)
}

// NewSet returns the candidate list. "naive" comes first: it handles every shape and is what
// callers get while no winner is known.
func NewSet() *tune.TunableSet[Key, Input, *tensor.Mat] {
	ops := []tune.Operation[Input, *tensor.Mat]{
		tune.NewOperation("naive", naive),
		tune.NewOperation("transposed-dot", transposed),
		tune.NewOperation("blocked/heuristic", heuristic),
	}
	for _, cfg := range tensor.CandidateConfigs(tensor.DefaultGemmConfig()) {
		ops = append(ops, blocked(cfg), parallel(cfg))
	}
	return tune.NewTunableSet(keyOfInput, ops...).
		WithChecksumSalt(ChecksumSalt).
		WithChecker(CheckOutputs)
}

func newOutput(in Input) *tensor.Mat {
	c := tensor.NewMat(in.A.R, in.B.C)
	return &c
}

func naive(ctx context.Context, in Input) (*tensor.Mat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := newOutput(in)
	tensor.GemmNaive(c, in.A, in.B)
	return c, nil
}

func transposed(ctx context.Context, in Input) (*tensor.Mat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.B.R*in.B.C > maxTransposeScratch {
		return nil, errors.Wrapf(ErrUnsupportedShape, "transposed-dot: B is %dx%d", in.B.R, in.B.C)
	}
	c := newOutput(in)
	tensor.GemmTransposed(c, in.A, in.B, nil)
	return c, nil
}

// heuristic picks tiles from the product shape with tensor.SelectGemmConfig.
func heuristic(ctx context.Context, in Input) (*tensor.Mat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := newOutput(in)
	tensor.GemmBlocked(tensor.SelectGemmConfig(in.A.R, in.A.C, in.B.C), c, in.A, in.B, 1, 0)
	return c, nil
}

func blocked(cfg tensor.GemmConfig) tune.Operation[Input, *tensor.Mat] {
	return tune.NewOperation("blocked/"+cfg.String(), func(ctx context.Context, in Input) (*tensor.Mat, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := newOutput(in)
		tensor.GemmBlocked(cfg, c, in.A, in.B, 1, 0)
		return c, nil
	})
}

func parallel(cfg tensor.GemmConfig) tune.Operation[Input, *tensor.Mat] {
	return tune.NewOperation("parallel/"+cfg.String(), func(ctx context.Context, in Input) (*tensor.Mat, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		workers := min(in.Workers, tensor.PoolSize())
		if workers < 2 || in.A.R < 2 {
			return nil, errors.Wrapf(ErrUnsupportedShape, "parallel: %d rows on %d workers", in.A.R, workers)
		}
		c := newOutput(in)
		tensor.GemmPar(cfg, c, in.A, in.B, 1, 0, workers)
		return c, nil
	})
}

// CheckOutputs reports whether all outputs agree with the first one within a tolerance
// relative to its magnitude.
func CheckOutputs(outputs []*tensor.Mat) error {
	if len(outputs) < 2 {
		return nil
	}
	ref := outputs[0]
	tol := 1e-4 * math.Max(1, maxAbs(ref))
	for i, out := range outputs[1:] {
		if d := tensor.MaxAbsDiff(ref, out); d > tol {
			return errors.Errorf("output #%d differs from #0 by %g (tolerance %g)", i+1, d, tol)
		}
	}
	return nil
}

func maxAbs(m *tensor.Mat) float64 {
	var out float64
	for i := 0; i < m.R; i++ {
		for _, v := range m.Row(i) {
			out = math.Max(out, math.Abs(float64(v)))
		}
	}
	return out
}
