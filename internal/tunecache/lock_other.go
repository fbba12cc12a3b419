//go:build !unix

package tunecache

// lockFile is a no-op where flock is unavailable; writers in one process are still
// serialized by Store.mu.
func lockFile(string) (func(), error) {
	return func() {}, nil
}
