package memory

import (
	"context"
	"kwrelay/internal/types"
	"strconv"
	"sync"
)

// Store keeps registries in process memory. Nothing survives a restart; it backs tests and
// throwaway runs.
type Store struct {
	mu    sync.RWMutex
	data  map[string][]string
	saves map[string]int
	fail  error
}

func NewStore() *Store {
	return &Store{
		data:  make(map[string][]string),
		saves: make(map[string]int),
	}
}

func (s *Store) Load(ctx context.Context, resource string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return nil, types.Err(types.ErrPersistence, s.fail, "load %s", resource)
	}
	return append([]string{}, s.data[resource]...), nil
}

func (s *Store) Save(ctx context.Context, resource string, entries []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return types.Err(types.ErrPersistence, s.fail, "save %s", resource)
	}
	s.putLocked(resource, entries)
	return nil
}

// LoadVersion implements ports.VersionedRegistryStore. The version is the save count.
func (s *Store) LoadVersion(ctx context.Context, resource string) ([]string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return nil, "", types.Err(types.ErrPersistence, s.fail, "load %s", resource)
	}
	return append([]string{}, s.data[resource]...), s.versionLocked(resource), nil
}

func (s *Store) SaveIfVersion(ctx context.Context, resource string, entries []string, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return types.Err(types.ErrPersistence, s.fail, "save %s", resource)
	}
	if current := s.versionLocked(resource); current != version {
		return types.Err(types.ErrConflict, nil, "%s is at version %q, not %q", resource, current, version)
	}
	s.putLocked(resource, entries)
	return nil
}

func (s *Store) putLocked(resource string, entries []string) {
	s.data[resource] = append([]string{}, entries...)
	s.saves[resource]++
}

func (s *Store) versionLocked(resource string) string {
	if s.saves[resource] == 0 {
		return ""
	}
	return strconv.Itoa(s.saves[resource])
}

// FailWith makes every following Load and Save return err. nil restores normal operation.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

// Saves reports how many successful writes resource has seen.
func (s *Store) Saves(resource string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves[resource]
}
