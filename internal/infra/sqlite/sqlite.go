// Package sqlite is the durable document store backend. Documents are JSON
// bodies keyed by (collection, doc_id); snapshot subscriptions are fanned out
// in-process after each local mutation, so every observer inside the daemon
// sees the same sequence of states the database holds.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/ebbtide-net/ebbtide/internal/domain"
	"github.com/ebbtide-net/ebbtide/internal/infra/watch"
)

// DB wraps the sqlite handle and the subscriber registry.
type DB struct {
	db    *sql.DB
	watch *watch.Registry
}

// Migrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			doc_id     TEXT NOT NULL,
			body       BLOB NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (collection, doc_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at)`,
	}
}

// Open creates dir if needed, opens (or creates) the database inside it, and
// runs migrations.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dir, "ebbtide.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single writer keeps last-write-wins semantics simple.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA foreign_keys = ON`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma: %w", err)
		}
	}
	for _, stmt := range Migrations() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &DB{db: db, watch: watch.NewRegistry()}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Get returns the document body, or domain.ErrDocNotFound.
func (d *DB) Get(ctx context.Context, collection, id string) ([]byte, error) {
	var body []byte
	err := d.db.QueryRowContext(ctx, `
		SELECT body FROM documents WHERE collection = ? AND doc_id = ?
	`, collection, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, domain.ErrDocNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return body, nil
}

// Set fully replaces the document and notifies subscribers.
func (d *DB) Set(ctx context.Context, collection, id string, body []byte) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO documents (collection, doc_id, body, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(collection, doc_id) DO UPDATE SET
			body       = excluded.body,
			updated_at = datetime('now')
	`, collection, id, body)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	d.watch.Notify(watch.Key(collection, id), body, true)
	return nil
}

// Delete removes the document and notifies subscribers if it existed.
func (d *DB) Delete(ctx context.Context, collection, id string) error {
	res, err := d.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = ? AND doc_id = ?
	`, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		d.watch.Notify(watch.Key(collection, id), nil, false)
	}
	return nil
}

// Subscribe registers fn and immediately delivers the current snapshot.
func (d *DB) Subscribe(collection, id string, fn domain.SnapshotFunc) func() {
	unsub := d.watch.Subscribe(watch.Key(collection, id), fn)
	body, err := d.Get(context.Background(), collection, id)
	if err != nil {
		fn(nil, false)
	} else {
		fn(body, true)
	}
	return unsub
}

var _ domain.Store = (*DB)(nil)
