package flow

import (
	"sync"
	"time"
)

// TTL is a minimal in-process TTL cache. Expired entries are dropped lazily on Get and swept
// once the map grows past sweepThreshold.
type TTL[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]entry[V]
}

type entry[V any] struct {
	val V
	exp time.Time
}

const sweepThreshold = 4096

func NewTTL[K comparable, V any]() *TTL[K, V] {
	return &TTL[K, V]{data: make(map[K]entry[V])}
}

// Get returns the value and true if found and not expired; otherwise zero value and false.
func (t *TTL[K, V]) Get(k K) (V, bool) {
	t.mu.RLock()
	e, ok := t.data[k]
	t.mu.RUnlock()
	if !ok || timeNow().After(e.exp) {
		var zero V
		return zero, false
	}
	return e.val, true
}

func (t *TTL[K, V]) Set(k K, v V, ttl time.Duration) {
	t.mu.Lock()
	t.data[k] = entry[V]{val: v, exp: timeNow().Add(ttl)}
	t.sweepLocked()
	t.mu.Unlock()
}

// SetIfAbsent stores v unless a live entry for k exists. It reports whether v was stored.
func (t *TTL[K, V]) SetIfAbsent(k K, v V, ttl time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := timeNow()
	if e, ok := t.data[k]; ok && !now.After(e.exp) {
		return false
	}
	t.data[k] = entry[V]{val: v, exp: now.Add(ttl)}
	t.sweepLocked()
	return true
}

func (t *TTL[K, V]) Delete(k K) {
	t.mu.Lock()
	delete(t.data, k)
	t.mu.Unlock()
}

func (t *TTL[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}

func (t *TTL[K, V]) sweepLocked() {
	if len(t.data) < sweepThreshold {
		return
	}
	now := timeNow()
	for k, e := range t.data {
		if now.After(e.exp) {
			delete(t.data, k)
		}
	}
}
