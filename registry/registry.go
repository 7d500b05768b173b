// Package registry provides an ordered, key-deduplicated store.
//
// A Registry keeps at most one value per key, preserves insertion order and
// never evicts on its own. The first value stored for a key wins; later
// stores for the same key are ignored until the owner removes the entry.
//
// LoadOrStore funnels lookup, load and insert through a per-key
// singleflight, so concurrent misses for one key run the loader once and
// share its result.
package registry

import (
	"iter"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry is an ordered, key-deduplicated store. It is safe for
// concurrent use. The zero value is not usable; call New.
type Registry[V any] struct {
	mu     sync.RWMutex
	keys   []string
	items  map[string]V
	admit  func(key string, v V) error
	flight singleflight.Group
}

// Option configures a Registry.
type Option[V any] func(*Registry[V])

// WithAdmission installs a check run before a value is inserted.
// A non-nil error rejects the insert and is returned to the caller.
func WithAdmission[V any](check func(key string, v V) error) Option[V] {
	return func(r *Registry[V]) {
		r.admit = check
	}
}

// New creates an empty registry.
func New[V any](opts ...Option[V]) *Registry[V] {
	r := &Registry[V]{items: make(map[string]V)}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Get returns the value stored for key.
func (r *Registry[V]) Get(key string) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[key]
	return v, ok
}

// Add stores v under key unless the key is already present.
// It reports whether v was inserted.
func (r *Registry[V]) Add(key string, v V) (bool, error) {
	if r.admit != nil {
		if err := r.admit(key, v); err != nil {
			return false, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[key]; ok {
		return false, nil
	}
	r.items[key] = v
	r.keys = append(r.keys, key)
	return true, nil
}

type flightResult[V any] struct {
	value  V
	cached bool
}

// LoadOrStore returns the value stored for key, calling load to produce and
// store it on a miss. cached reports whether the value was already present.
//
// A failed load stores nothing. Concurrent callers that miss on the same key
// share a single load call and its result.
func (r *Registry[V]) LoadOrStore(key string, load func() (V, error)) (v V, cached bool, err error) {
	if v, ok := r.Get(key); ok {
		return v, true, nil
	}

	res, err, _ := r.flight.Do(key, func() (any, error) {
		// Another flight may have stored the key between the check above
		// and this one starting.
		if v, ok := r.Get(key); ok {
			return flightResult[V]{value: v, cached: true}, nil
		}
		v, err := load()
		if err != nil {
			return nil, err
		}
		if _, err := r.Add(key, v); err != nil {
			return nil, err
		}
		// Add may lose to a direct Add made during the load; the stored
		// value wins.
		stored, _ := r.Get(key)
		return flightResult[V]{value: stored}, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}

	out, _ := res.(flightResult[V]) //nolint:errcheck // type assertion always succeeds when err is nil
	return out.value, out.cached, nil
}

// Remove deletes the entry for key and reports whether it existed.
func (r *Registry[V]) Remove(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[key]; !ok {
		return false
	}
	delete(r.items, key)
	if i := slices.Index(r.keys, key); i >= 0 {
		r.keys = slices.Delete(r.keys, i, i+1)
	}
	return true
}

// Clear removes every entry.
func (r *Registry[V]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.items)
	r.keys = nil
}

// Len returns the number of entries.
func (r *Registry[V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

// Keys returns the keys in insertion order.
func (r *Registry[V]) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.keys)
}

// Values returns a snapshot of the values in insertion order.
func (r *Registry[V]) Values() []V {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]V, len(r.keys))
	for i, k := range r.keys {
		out[i] = r.items[k]
	}
	return out
}

// All iterates over a snapshot of the entries in insertion order.
func (r *Registry[V]) All() iter.Seq2[string, V] {
	keys := r.Keys()
	return func(yield func(string, V) bool) {
		for _, k := range keys {
			v, ok := r.Get(k)
			if !ok {
				continue
			}
			if !yield(k, v) {
				return
			}
		}
	}
}
