package tune

import "time"

// Record is what a Store keeps per (tuner name, identity, key string).
type Record struct {
	Index    int    `json:"index"`
	Checksum string `json:"checksum"`
	// Timings holds the measured duration per candidate in nanoseconds, -1 for failures.
	Timings   []int64   `json:"timings_ns,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists winners across processes. Load is called once when the Tuner for an
// identity is created; Save after every completed autotune.
//
// Implementations must be safe for concurrent use. Errors are logged by the Tuner and never
// reach callers of Execute.
type Store interface {
	Load(name, id string) (map[string]Record, error)
	Save(name, id, key string, rec Record) error
}
