package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"kwrelay/internal/backends/flat"
	"kwrelay/internal/types"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// Store keeps each registry in a flat text file. Relative resource names are resolved
// against dir. Conditional writes are only coordinated between processes on the same host.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Load(ctx context.Context, resource string) ([]string, error) {
	entries, _, err := s.LoadVersion(ctx, resource)
	return entries, err
}

// LoadVersion uses the SHA-256 of the file content as the version.
func (s *Store) LoadVersion(ctx context.Context, resource string) ([]string, string, error) {
	p := s.path(resource)
	data, version, err := readVersioned(p)
	if err != nil {
		return nil, "", err
	}
	if version == "" {
		log.WithField("path", p).Debug("registry file does not exist yet, starting empty")
		return []string{}, "", nil
	}
	return flat.Parse(data), version, nil
}

// SaveIfVersion holds an exclusive lock on a sibling ".lock" file while it compares the
// current content with version and replaces the file. Processes on one host sharing the
// directory serialize on that lock.
func (s *Store) SaveIfVersion(ctx context.Context, resource string, entries []string, version string) error {
	p := s.path(resource)
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.Err(types.ErrPersistence, err, "create directory %s", dir)
	}
	unlock, err := lockFile(filepath.Join(dir, "."+filepath.Base(p)+".lock"))
	if err != nil {
		return types.Err(types.ErrPersistence, err, "lock %s", p)
	}
	defer unlock()

	_, current, err := readVersioned(p)
	if err != nil {
		return err
	}
	if current != version {
		return types.Err(types.ErrConflict, nil, "%s changed since it was read", p)
	}
	return s.Save(ctx, resource, entries)
}

// readVersioned returns the raw content and its version, "" when the file is missing.
func readVersioned(p string) ([]byte, string, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", nil
		}
		return nil, "", types.Err(types.ErrPersistence, err, "read %s", p)
	}
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}

// Save writes to a temp file in the target directory and renames it over the old file so a
// concurrent Load sees either the previous or the new snapshot, never a partial one.
func (s *Store) Save(ctx context.Context, resource string, entries []string) error {
	p := s.path(resource)
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.Err(types.ErrPersistence, err, "create directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p)+".*.tmp")
	if err != nil {
		return types.Err(types.ErrPersistence, err, "create temp file for %s", p)
	}
	defer func() {
		// no-op once the rename succeeded
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(flat.Format(entries)); err != nil {
		_ = tmp.Close()
		return types.Err(types.ErrPersistence, err, "write %s", tmp.Name())
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return types.Err(types.ErrPersistence, err, "sync %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return types.Err(types.ErrPersistence, err, "close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return types.Err(types.ErrPersistence, err, "replace %s", p)
	}
	log.WithFields(log.Fields{"path": p, "entries": len(entries)}).Debug("registry file saved")
	return nil
}

func (s *Store) path(resource string) string {
	if filepath.IsAbs(resource) || s.dir == "" {
		return resource
	}
	return filepath.Join(s.dir, resource)
}
