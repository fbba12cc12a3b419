package matmul

import "github.com/pkg/errors"

var (
	// ErrShapeMismatch is returned when A.C != B.R.
	ErrShapeMismatch = errors.New("matmul: inner dimensions differ")
	// ErrUnsupportedShape is returned by a candidate that cannot handle the shape. Such a
	// candidate never wins; callers only see it if they run the candidate directly.
	ErrUnsupportedShape = errors.New("matmul: shape not supported by candidate")
)
