package tune

import "github.com/pkg/errors"

var (
	// ErrOutputMismatch is returned by Execute in checks mode when the candidates disagree.
	ErrOutputMismatch = errors.New("tune: candidate outputs diverge")
	// ErrCandidatePanic marks a candidate that panicked while being benchmarked.
	ErrCandidatePanic = errors.New("tune: candidate panicked")
)
