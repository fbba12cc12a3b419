package matmul

import "github.com/samcharles93/autotune/internal/tune"

// maxAnchor caps the bucketed dimensions: every larger size shares the 4096 bucket.
const maxAnchor = 4096

// Key is the bucketed shape of an M x K by K x N product.
type Key struct {
	M, K, N int
}

// KeyOf buckets each dimension up to the next power of two.
func KeyOf(m, k, n int) Key {
	return Key{
		M: tune.AnchorPow2(m, maxAnchor),
		K: tune.AnchorPow2(k, maxAnchor),
		N: tune.AnchorPow2(n, maxAnchor),
	}
}

func (k Key) String() string { return tune.JoinDims(k.M, k.K, k.N) }
