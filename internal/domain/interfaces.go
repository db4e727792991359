package domain

import "context"

// ─── Store Contract ─────────────────────────────────────────────────────────
// The document store holds one document per (collection, id). Writes are
// full replacements and last-write-wins; there are no transactions. Every
// backend also fans out local mutations to snapshot subscribers so that all
// observers of a document converge on the same state.

// Document collections.
const (
	CollectionTimers     = "timers"
	CollectionHistory    = "history"
	CollectionBestHours  = "best-hours"
	CollectionLastActive = "last-active"
)

// SnapshotFunc receives a document snapshot. exists is false when the
// document has been deleted or never created; body is nil in that case.
type SnapshotFunc func(body []byte, exists bool)

// Store abstracts the per-user document store. Implementations must deliver
// the current snapshot immediately upon Subscribe and after every Set or
// Delete until the returned unsubscribe function is called.
type Store interface {
	// Get returns the document body, or ErrDocNotFound.
	Get(ctx context.Context, collection, id string) ([]byte, error)

	// Set fully replaces the document, creating it if absent.
	Set(ctx context.Context, collection, id string, body []byte) error

	// Delete removes the document. Deleting an absent document is not an
	// error.
	Delete(ctx context.Context, collection, id string) error

	// Subscribe registers a snapshot observer for one document.
	Subscribe(collection, id string, fn SnapshotFunc) (unsubscribe func())
}
