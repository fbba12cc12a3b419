package tune

import "context"

// Operation is one candidate implementation. An error means the candidate cannot handle the
// input (unsupported shape, resource limit, ...); such a candidate never wins a benchmark.
type Operation[In, Out any] interface {
	Name() string
	Execute(ctx context.Context, in In) (Out, error)
}

// OperationFunc adapts a plain function into an Operation.
type OperationFunc[In, Out any] struct {
	name string
	fn   func(ctx context.Context, in In) (Out, error)
}

// NewOperation returns an Operation named name that calls fn.
// The name is part of the TunableSet checksum, so it must identify the implementation.
func NewOperation[In, Out any](name string, fn func(ctx context.Context, in In) (Out, error)) *OperationFunc[In, Out] {
	return &OperationFunc[In, Out]{name: name, fn: fn}
}

func (o *OperationFunc[In, Out]) Name() string { return o.name }

func (o *OperationFunc[In, Out]) Execute(ctx context.Context, in In) (Out, error) {
	return o.fn(ctx, in)
}
