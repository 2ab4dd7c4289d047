//go:build !sqlite_fts5

package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/notegraph/internal/graphstore"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; full-text search uses LIKE fallback on nodes.content.
	return nil
}

func ftsUpsert(_ context.Context, _ *sql.Tx, _, _, _, _ string, _ []string) error {
	// Content is already stored in the nodes table; nothing extra to do.
	return nil
}

func ftsDelete(_ context.Context, _ *sql.Tx, _ string) error { return nil }

func ftsClear(_ context.Context, _ *sql.Tx) error { return nil }

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (s *Store) Search(ctx context.Context, query string, limit int) ([]graphstore.SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, path, title, substr(content, 1, 200)
		FROM nodes
		WHERE kind = 'document' AND (title LIKE ? OR content LIKE ? OR tags LIKE ?)
		ORDER BY path
		LIMIT ?
	`, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: search: %w", err)
	}
	defer rows.Close()

	var out []graphstore.SearchResult
	for rows.Next() {
		var r graphstore.SearchResult
		if err := rows.Scan(&r.ID, &r.Path, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
