package tune

import (
	"fmt"
	"strconv"
	"strings"
)

// Key is the fingerprint of an input: equal keys share one cache entry.
// String must be stable across processes since persisted records are indexed by it.
type Key interface {
	comparable
	fmt.Stringer
}

// AnchorPow2 rounds v up to the next power of two, capped at max (when max > 0).
// Key generators use it to bucket dimensions so that nearby shapes share a winner.
func AnchorPow2(v, max int) int {
	if v <= 1 {
		return 1
	}
	p := 1
	for p < v {
		p <<= 1
	}
	if max > 0 && p > max {
		return max
	}
	return p
}

// JoinDims renders dims as "AxBxC", the convention used by the keys in this repository.
func JoinDims(dims ...int) string {
	var sb strings.Builder
	for i, d := range dims {
		if i > 0 {
			sb.WriteByte('x')
		}
		sb.WriteString(strconv.Itoa(d))
	}
	return sb.String()
}
