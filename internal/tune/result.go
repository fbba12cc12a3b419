package tune

import "fmt"

// CacheState is the trust state of a key in a Tuner.
type CacheState int

const (
	// Miss: no trusted result, either never attempted or the last attempt failed.
	Miss CacheState = iota
	// Hit: the fastest candidate is known.
	Hit
	// Pending: benchmarking started and has not been harvested yet.
	Pending
	// Unchecked: a persisted record exists but its checksum was not validated yet.
	Unchecked
)

func (s CacheState) String() string {
	switch s {
	case Miss:
		return "miss"
	case Hit:
		return "hit"
	case Pending:
		return "pending"
	case Unchecked:
		return "unchecked"
	default:
		return fmt.Sprintf("CacheState(%d)", int(s))
	}
}

// CacheResult is the outcome of a cache lookup. Index is only meaningful for Hit.
type CacheResult struct {
	State CacheState
	Index int
}

// HitResult returns a Hit pointing at candidate index.
func HitResult(index int) CacheResult {
	return CacheResult{State: Hit, Index: index}
}

func (r CacheResult) String() string {
	if r.State == Hit {
		return fmt.Sprintf("hit(%d)", r.Index)
	}
	return r.State.String()
}
