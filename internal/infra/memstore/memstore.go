// Package memstore is the in-memory document store backend. It implements
// the same read/write/subscribe contract as the sqlite backend and serves
// both as the `driver = "memory"` option and as the test double for every
// package that talks to the store.
package memstore

import (
	"context"
	"sync"

	"github.com/ebbtide-net/ebbtide/internal/domain"
	"github.com/ebbtide-net/ebbtide/internal/infra/watch"
)

// Store is a mutex-guarded map of document key → body.
type Store struct {
	mu    sync.RWMutex
	docs  map[string][]byte
	watch *watch.Registry
}

// New creates an empty store.
func New() *Store {
	return &Store{
		docs:  make(map[string][]byte),
		watch: watch.NewRegistry(),
	}
}

// Get returns a copy of the document body, or domain.ErrDocNotFound.
func (s *Store) Get(ctx context.Context, collection, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	body, ok := s.docs[watch.Key(collection, id)]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrDocNotFound
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

// Set fully replaces the document and notifies subscribers.
func (s *Store) Set(ctx context.Context, collection, id string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := make([]byte, len(body))
	copy(stored, body)
	key := watch.Key(collection, id)
	s.mu.Lock()
	s.docs[key] = stored
	s.mu.Unlock()
	s.watch.Notify(key, stored, true)
	return nil
}

// Delete removes the document and notifies subscribers. Deleting an absent
// document is a no-op.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := watch.Key(collection, id)
	s.mu.Lock()
	_, existed := s.docs[key]
	delete(s.docs, key)
	s.mu.Unlock()
	if existed {
		s.watch.Notify(key, nil, false)
	}
	return nil
}

// Subscribe registers fn and immediately delivers the current snapshot.
func (s *Store) Subscribe(collection, id string, fn domain.SnapshotFunc) func() {
	key := watch.Key(collection, id)
	unsub := s.watch.Subscribe(key, fn)
	s.mu.RLock()
	body, ok := s.docs[key]
	s.mu.RUnlock()
	fn(body, ok)
	return unsub
}

var _ domain.Store = (*Store)(nil)
