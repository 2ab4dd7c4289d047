// Package sqlitestore implements graphstore.Store on an embedded SQLite
// database with optional FTS5 full-text search.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/notegraph/internal/graphstore"
)

// Store wraps a sql.DB with graph-specific operations.
type Store struct {
	conn *sql.DB

	mu     sync.RWMutex
	vector graphstore.VectorIndex
}

// Verify *Store satisfies graphstore.Store at compile time.
var _ graphstore.Store = (*Store)(nil)

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlitestore: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlitestore: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlitestore: apply fts schema: %w", err)
	}
	return &Store{
		conn:   conn,
		vector: graphstore.VectorIndex{Similarity: graphstore.SimilarityCosine},
	}, nil
}

// Update runs fn inside a read-write transaction.
func (s *Store) Update(ctx context.Context, fn func(graphstore.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(&sqlTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: commit: %w", err)
	}
	return nil
}

// View runs fn inside a transaction that is always rolled back.
func (s *Store) View(ctx context.Context, fn func(graphstore.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	return fn(&sqlTx{tx: tx})
}

// Clear removes every row from the graph tables.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{`DELETE FROM mentions`, `DELETE FROM chunks`, `DELETE FROM nodes`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlitestore: clear: %w", err)
		}
	}
	if err := ftsClear(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
