// Package watch implements the snapshot subscriber registry shared by the
// document store backends. Each document key carries an independent set of
// observers; notification order within a key is unspecified.
package watch

import (
	"sync"

	"github.com/ebbtide-net/ebbtide/internal/domain"
)

// Registry fans document snapshots out to subscribers.
type Registry struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]domain.SnapshotFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]map[int]domain.SnapshotFunc)}
}

// Key builds the registry key for a document.
func Key(collection, id string) string {
	return collection + "/" + id
}

// Subscribe registers fn for the given key and returns its unsubscribe
// function. Unsubscribing twice is harmless.
func (r *Registry) Subscribe(key string, fn domain.SnapshotFunc) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	if r.subs[key] == nil {
		r.subs[key] = make(map[int]domain.SnapshotFunc)
	}
	r.subs[key][id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs[key], id)
		if len(r.subs[key]) == 0 {
			delete(r.subs, key)
		}
	}
}

// Notify delivers a snapshot to every subscriber of key. Callbacks run
// outside the registry lock so they may subscribe or unsubscribe freely.
func (r *Registry) Notify(key string, body []byte, exists bool) {
	r.mu.Lock()
	fns := make([]domain.SnapshotFunc, 0, len(r.subs[key]))
	for _, fn := range r.subs[key] {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(body, exists)
	}
}
