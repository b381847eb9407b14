// Package catalog is the durable key-value mapping of roots and files the
// rest of musicopy is built on: roots keyed by (node_id, name), files keyed
// by (node_id, root_name, relpath), plus a content-hash index. It is backed
// by SQLite (github.com/mattn/go-sqlite3) through database/sql, following
// the same create-schema-if-absent, single-writer discipline the teacher's
// JSON-backed playlist store used, just over SQL instead of a flat file.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// HashKind identifies a hashing scheme. Hashes from different kinds are not
// comparable.
type HashKind string

// SHA256 is the only hash kind musicopy currently produces.
const SHA256 HashKind = "sha256"

// ErrConflict is returned by AddRoot when the (node_id, name) unique
// constraint is violated.
var ErrConflict = errors.New("catalog: conflict")

// Root is a user-registered directory contributed to the library.
type Root struct {
	NodeID string
	Name   string
	Path   string
}

// File is a single catalogued audio file.
type File struct {
	NodeID    string
	RootName  string
	RelPath   string
	HashKind  HashKind
	Hash      []byte
	LocalPath string // only meaningful when NodeID is the local node
}

// Store is the persistence interface the rest of musicopy depends on. The
// concrete implementation (SQLite) is an implementation choice; callers
// should only ever depend on this interface.
type Store interface {
	AddRoot(ctx context.Context, nodeID, name, path string) error
	RemoveRoot(ctx context.Context, nodeID, name string) error
	ListRoots(ctx context.Context, nodeID string) ([]Root, error)
	CountFiles(ctx context.Context, nodeID, rootName string) (uint64, error)
	ListFiles(ctx context.Context, nodeID string) ([]File, error)
	InsertFiles(ctx context.Context, files []File) error
	Reset(ctx context.Context) error
	// WithTx runs fn against a single connection/transaction, giving the
	// caller read consistency across multiple statements.
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error
	Close() error
}

// SQLiteStore is the embedded relational catalog store.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // single-writer discipline, spec.md §5
}

// Open opens (or creates) a SQLite-backed catalog at path. Pass ":memory:"
// for an ephemeral, in-process-only catalog.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("catalog: open %q: %w", path, err)
	}
	// SQLite only tolerates one writer; a single-connection pool makes the
	// go-sqlite3 driver itself serialise, backing up the mutex below.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS roots (
	node_id TEXT NOT NULL,
	name TEXT NOT NULL,
	path TEXT NOT NULL,
	UNIQUE(node_id, name)
);

CREATE TABLE IF NOT EXISTS files (
	node_id TEXT NOT NULL,
	root_name TEXT NOT NULL,
	relpath TEXT NOT NULL,
	hash_kind TEXT NOT NULL,
	hash BLOB NOT NULL,
	local_path TEXT NOT NULL,
	UNIQUE(node_id, root_name, relpath)
);

CREATE INDEX IF NOT EXISTS files_by_hash ON files(hash_kind, hash);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("catalog: migrate: %w", err)
	}
	return nil
}

// AddRoot inserts a new root. Returns ErrConflict if (node_id, name) already
// exists.
func (s *SQLiteStore) AddRoot(ctx context.Context, nodeID, name, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO roots (node_id, name, path) VALUES (?, ?, ?)`,
		nodeID, name, path)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return ErrConflict
		}
		return fmt.Errorf("catalog: add root: %w", err)
	}
	return nil
}

// RemoveRoot deletes a root by (node_id, name). Idempotent: removing a root
// that doesn't exist is not an error. Files under the root are NOT
// cascade-deleted, and a rescan does not delete them either: the indexer
// only inserts or updates file rows, so the rows of a removed root stay in
// the files table.
func (s *SQLiteStore) RemoveRoot(ctx context.Context, nodeID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM roots WHERE node_id = ? AND name = ?`, nodeID, name)
	if err != nil {
		return fmt.Errorf("catalog: remove root: %w", err)
	}
	return nil
}

// ListRoots enumerates all roots for a node. Ordering is unspecified.
func (s *SQLiteStore) ListRoots(ctx context.Context, nodeID string) ([]Root, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, name, path FROM roots WHERE node_id = ?`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list roots: %w", err)
	}
	defer rows.Close()

	var roots []Root
	for rows.Next() {
		var r Root
		if err := rows.Scan(&r.NodeID, &r.Name, &r.Path); err != nil {
			return nil, fmt.Errorf("catalog: list roots: scan: %w", err)
		}
		roots = append(roots, r)
	}
	return roots, rows.Err()
}

// CountFiles returns the number of catalogued files under a root.
func (s *SQLiteStore) CountFiles(ctx context.Context, nodeID, rootName string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE node_id = ? AND root_name = ?`,
		nodeID, rootName).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("catalog: count files: %w", err)
	}
	return count, nil
}

// ListFiles enumerates every catalogued file for a node, across all roots.
// Used by internal/transfer to advertise a node's collection to peers.
func (s *SQLiteStore) ListFiles(ctx context.Context, nodeID string) ([]File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, root_name, relpath, hash_kind, hash, local_path FROM files WHERE node_id = ?`,
		nodeID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var f File
		var hashKind string
		if err := rows.Scan(&f.NodeID, &f.RootName, &f.RelPath, &hashKind, &f.Hash, &f.LocalPath); err != nil {
			return nil, fmt.Errorf("catalog: list files: scan: %w", err)
		}
		f.HashKind = HashKind(hashKind)
		files = append(files, f)
	}
	return files, rows.Err()
}

// InsertFiles inserts a batch of files within a single transaction: either
// all rows commit, or none do.
func (s *SQLiteStore) InsertFiles(ctx context.Context, files []File) error {
	if len(files) == 0 {
		return nil
	}

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO files (node_id, root_name, relpath, hash_kind, hash, local_path)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(node_id, root_name, relpath) DO UPDATE SET
				hash_kind = excluded.hash_kind,
				hash = excluded.hash,
				local_path = excluded.local_path`)
		if err != nil {
			return fmt.Errorf("catalog: insert files: prepare: %w", err)
		}
		defer stmt.Close()

		for _, f := range files {
			if _, err := stmt.ExecContext(ctx, f.NodeID, f.RootName, f.RelPath, string(f.HashKind), f.Hash, f.LocalPath); err != nil {
				return fmt.Errorf("catalog: insert files: %w", err)
			}
		}
		return nil
	})
}

// WithTx runs fn within a single transaction, serialised against all other
// catalog operations. This is the scope callers needing cross-statement
// consistency should use.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Warn("catalog: rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit: %w", err)
	}
	return nil
}

// Reset drops and recreates both tables, per spec.md §6's
// reset_database() command.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS roots`); err != nil {
		return fmt.Errorf("catalog: reset: drop roots: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS files`); err != nil {
		return fmt.Errorf("catalog: reset: drop files: %w", err)
	}
	return s.migrate()
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueConstraintErr(err error) bool {
	// go-sqlite3 reports constraint violations with this substring; avoiding
	// a direct sqlite3.Error type assertion keeps this file buildable even
	// when the cgo driver's error type changes shape across versions.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
