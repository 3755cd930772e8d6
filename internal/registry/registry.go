// Package registry holds the two mutable string sets the relay runs on: the keyword set that
// drives forwarding and the set of users allowed to change either of them.
//
// The store is the source of truth; a Registry keeps a cached copy of it. Every mutation
// reloads the set from the store while holding the registry's write lock, applies the change
// and writes the full set back before returning, so writers in other processes sharing the
// store are not overwritten. Stores implementing ports.VersionedRegistryStore reject a write
// when the snapshot changed after it was read; the mutation is then replayed on a fresh copy.
// A failed write leaves the cache equal to the last durable snapshot.
//
// Reads are served from the cache. Refresh reloads it once it is older than the registry's
// max age, which keeps readers in other processes converging on the stored set.
package registry

import (
	"context"
	"errors"
	"kwrelay/internal/ports"
	"kwrelay/internal/types"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	maxSaveAttempts = 8
	conflictBackoff = 10 * time.Millisecond
)

// Normalizer maps raw input to the stored form of an entry. Two inputs with the same stored
// form are the same entry. An empty result means the input is not a valid entry.
type Normalizer func(string) string

type Registry struct {
	mu        sync.RWMutex
	store     ports.RegistryStore
	resource  string
	normalize Normalizer
	entries   map[string]struct{}

	maxAge   time.Duration
	loadedAt time.Time
	now      func() time.Time
}

// Open loads resource from store and returns a Registry serving it. The returned registry
// reloads on every Refresh until SetMaxAge says otherwise.
func Open(ctx context.Context, store ports.RegistryStore, resource string, normalize Normalizer) (*Registry, error) {
	r := &Registry{
		store:     store,
		resource:  resource,
		normalize: normalize,
		entries:   map[string]struct{}{},
		now:       time.Now,
	}
	if _, err := r.reloadLocked(ctx); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"resource": resource, "entries": len(r.entries)}).Info("registry loaded")
	return r, nil
}

// SetMaxAge sets how long a loaded copy serves reads before Refresh reloads it. Zero reloads
// on every Refresh; a negative age never reloads, which only suits a store nobody else writes.
func (r *Registry) SetMaxAge(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxAge = d
}

// Add inserts entry. It returns types.AlreadyPresent without writing when the stored set
// already holds the entry, and types.ErrInvalidArgument when entry normalizes to nothing.
func (r *Registry) Add(ctx context.Context, entry string) (types.Outcome, error) {
	n := r.normalize(entry)
	if n == "" {
		return types.Added, types.Err(types.ErrInvalidArgument, nil, "empty entry for %s", r.resource)
	}
	return r.mutate(ctx, func(set map[string]struct{}) (types.Outcome, bool) {
		if _, ok := set[n]; ok {
			return types.AlreadyPresent, false
		}
		set[n] = struct{}{}
		return types.Added, true
	})
}

// Remove deletes entry. An absent entry yields types.NotFound and leaves the set unchanged.
func (r *Registry) Remove(ctx context.Context, entry string) (types.Outcome, error) {
	n := r.normalize(entry)
	if n == "" {
		return types.NotFound, types.Err(types.ErrInvalidArgument, nil, "empty entry for %s", r.resource)
	}
	return r.mutate(ctx, func(set map[string]struct{}) (types.Outcome, bool) {
		if _, ok := set[n]; !ok {
			return types.NotFound, false
		}
		delete(set, n)
		return types.Removed, true
	})
}

// Refresh reloads the cached set when it is older than the max age. A failed reload is
// logged and returned; the cache keeps serving the previous copy.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.RLock()
	fresh := r.freshLocked()
	r.mu.RUnlock()
	if fresh {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.freshLocked() {
		return nil
	}
	if _, err := r.reloadLocked(ctx); err != nil {
		log.WithError(err).WithField("resource", r.resource).Warn("registry reload failed, serving cached copy")
		return err
	}
	return nil
}

// List returns the cached entries in ascending order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sorted(r.entries)
}

// Contains reports whether entry, after normalization, is in the cached set.
func (r *Registry) Contains(entry string) bool {
	n := r.normalize(entry)
	if n == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[n]
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) Resource() string { return r.resource }

// mutate runs apply against a freshly loaded copy of the stored set and writes the result
// back. The write is detached from ctx cancellation: once it has been sent, abandoning it
// would leave the cache and the store disagreeing.
func (r *Registry) mutate(ctx context.Context, apply func(set map[string]struct{}) (types.Outcome, bool)) (types.Outcome, error) {
	ctx = context.WithoutCancel(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		outcome types.Outcome
		lastErr error
	)
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		version, err := r.reloadLocked(ctx)
		if err != nil {
			return outcome, err
		}
		next := make(map[string]struct{}, len(r.entries)+1)
		for e := range r.entries {
			next[e] = struct{}{}
		}
		var changed bool
		outcome, changed = apply(next)
		if !changed {
			return outcome, nil
		}

		err = r.saveLocked(ctx, next, version)
		if err == nil {
			r.entries = next
			return outcome, nil
		}
		if !errors.Is(err, types.ErrConflict) {
			return outcome, err
		}
		lastErr = err
		log.WithFields(log.Fields{"resource": r.resource, "attempt": attempt}).Debug("registry changed underneath, retrying")
		if attempt < maxSaveAttempts {
			time.Sleep(rand.N(time.Duration(attempt) * conflictBackoff))
		}
	}
	log.WithError(lastErr).WithField("resource", r.resource).Error("failed to persist registry")
	return outcome, types.Err(types.ErrPersistence, lastErr, "save %s: %d conflicting writes", r.resource, maxSaveAttempts)
}

// reloadLocked replaces the cache with the stored set and returns the stored version ("" for
// stores without versions). It must be called with r.mu held for writing.
func (r *Registry) reloadLocked(ctx context.Context) (string, error) {
	var (
		loaded  []string
		version string
		err     error
	)
	if vs, ok := r.store.(ports.VersionedRegistryStore); ok {
		loaded, version, err = vs.LoadVersion(ctx, r.resource)
	} else {
		loaded, err = r.store.Load(ctx, r.resource)
	}
	if err != nil {
		return "", types.Err(types.ErrPersistence, err, "load %s", r.resource)
	}
	entries := make(map[string]struct{}, len(loaded))
	for _, e := range loaded {
		if n := r.normalize(e); n != "" {
			entries[n] = struct{}{}
		}
	}
	r.entries = entries
	r.loadedAt = r.now()
	return version, nil
}

// saveLocked must be called with r.mu held for writing.
func (r *Registry) saveLocked(ctx context.Context, set map[string]struct{}, version string) error {
	entries := sorted(set)
	var err error
	if vs, ok := r.store.(ports.VersionedRegistryStore); ok {
		err = vs.SaveIfVersion(ctx, r.resource, entries, version)
	} else {
		err = r.store.Save(ctx, r.resource, entries)
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, types.ErrConflict) {
		return err
	}
	log.WithError(err).WithField("resource", r.resource).Error("failed to persist registry")
	return types.Err(types.ErrPersistence, err, "save %s", r.resource)
}

func (r *Registry) freshLocked() bool {
	if r.maxAge < 0 {
		return true
	}
	return r.maxAge > 0 && r.now().Sub(r.loadedAt) < r.maxAge
}

func sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
