package api

import "github.com/samcharles93/autotune/internal/tune"

type ResponseError struct {
	Message   string `json:"message,omitempty"`
	Type      string `json:"type,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// MatmulRequest asks for one m x k by k x n product. Operands are random (from Seed) unless
// A and B carry them row-major; then the product is returned in MatmulResponse.C.
type MatmulRequest struct {
	M    int       `json:"m"`
	K    int       `json:"k"`
	N    int       `json:"n"`
	Seed int64     `json:"seed,omitempty"`
	A    []float32 `json:"a,omitempty"`
	B    []float32 `json:"b,omitempty"`
}

type MatmulResponse struct {
	Key       string `json:"key"`
	State     string `json:"state"`
	Winner    string `json:"winner,omitempty"`
	Checksum  string `json:"checksum"`
	Elapsed   string `json:"elapsed"`
	ElapsedNs int64  `json:"elapsed_ns"`
	RequestID string    `json:"request_id"`
	C         []float32 `json:"c,omitempty"`
}

type TunersResponse struct {
	Object   string          `json:"object"`
	Device   string          `json:"device"`
	Blocking bool            `json:"blocking"`
	Data     []tune.Snapshot `json:"data"`
}

type ClearResponse struct {
	Cleared        bool `json:"cleared"`
	PersistedFiles int  `json:"persisted_files"`
}
