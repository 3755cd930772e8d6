package ports

import "context"

// RegistryStore persists a flat set of strings under a named resource.
// Implementations MUST treat Save as a full overwrite and MUST make it atomic from the
// point of view of a concurrent Load.
type RegistryStore interface {
	// Load returns the entries stored under resource, one per line with trailing whitespace
	// removed and blank lines dropped. A resource that does not exist yet yields an empty
	// slice and no error.
	Load(ctx context.Context, resource string) ([]string, error)

	// Save replaces the contents of resource with entries.
	Save(ctx context.Context, resource string, entries []string) error
}

// VersionedRegistryStore is implemented by stores that several processes can share. The
// version is opaque to callers and is "" for a resource that does not exist yet.
// SaveIfVersion writes only when the stored snapshot still carries version, and fails with
// types.ErrConflict otherwise.
type VersionedRegistryStore interface {
	RegistryStore
	LoadVersion(ctx context.Context, resource string) (entries []string, version string, err error)
	SaveIfVersion(ctx context.Context, resource string, entries []string, version string) error
}
