//go:build sqlite_fts5

package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/notegraph/internal/graphstore"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
			node_id UNINDEXED,
			path UNINDEXED,
			title,
			content,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(ctx context.Context, tx *sql.Tx, id, path, title, content string, tags []string) error {
	_, _ = tx.ExecContext(ctx, `DELETE FROM documents_fts WHERE node_id = ?`, id)
	_, err := tx.ExecContext(ctx, `INSERT INTO documents_fts (node_id, path, title, content, tags) VALUES (?, ?, ?, ?, ?)`,
		id, path, title, content, strings.Join(tags, " "))
	if err != nil {
		return fmt.Errorf("sqlitestore: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents_fts WHERE node_id = ?`, id); err != nil {
		return fmt.Errorf("sqlitestore: delete fts: %w", err)
	}
	return nil
}

func ftsClear(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents_fts`); err != nil {
		return fmt.Errorf("sqlitestore: clear fts: %w", err)
	}
	return nil
}

// Search performs an FTS5 full-text search and returns matching documents with snippets.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]graphstore.SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT node_id,
		       path,
		       title,
		       snippet(documents_fts, 3, '<b>', '</b>', '...', 64)
		FROM documents_fts
		WHERE documents_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
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
