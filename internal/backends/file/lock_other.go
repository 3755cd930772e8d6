//go:build !unix

package file

// lockFile is a no-op where flock is unavailable; writers in one process are still serialized
// by the registry.
func lockFile(path string) (func(), error) {
	return func() {}, nil
}
