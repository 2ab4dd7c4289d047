package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
)

const (
	nodeColumns = `id, kind, name, COALESCE(path, ''), title, checksum, tags, modified_at`
	edgeColumns = `id, source_id, target_id, format, headers, block, display`
)

// sqlTx implements graphstore.Tx on a *sql.Tx.
type sqlTx struct {
	tx *sql.Tx
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(sc scanner) (*models.Node, error) {
	var (
		n        models.Node
		kind     string
		tags     string
		modified sql.NullTime
	)
	if err := sc.Scan(&n.ID, &kind, &n.Name, &n.Path, &n.Title, &n.Checksum, &tags, &modified); err != nil {
		return nil, err
	}
	n.Kind = models.NodeKind(kind)
	_ = json.Unmarshal([]byte(tags), &n.Tags)
	if modified.Valid {
		n.ModifiedAt = modified.Time
	}
	return &n, nil
}

func scanEdge(sc scanner) (models.Edge, error) {
	var (
		e       models.Edge
		format  string
		headers string
	)
	if err := sc.Scan(&e.ID, &e.SourceID, &e.TargetID, &format, &headers, &e.Link.Block, &e.Link.Display); err != nil {
		return e, err
	}
	e.Link.Format = models.LinkFormat(format)
	_ = json.Unmarshal([]byte(headers), &e.Link.Headers)
	return e, nil
}

func (t *sqlTx) queryNode(ctx context.Context, what, query string, args ...any) (*models.Node, error) {
	n, err := scanNode(t.tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlitestore: %s: %w", what, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: %s: %w", what, err)
	}
	return n, nil
}

func (t *sqlTx) queryNodes(ctx context.Context, what, query string, args ...any) ([]models.Node, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: %s: %w", what, err)
	}
	defer rows.Close()

	var out []models.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: %s: %w", what, err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (t *sqlTx) queryEdges(ctx context.Context, what, query string, args ...any) ([]models.Edge, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: %s: %w", what, err)
	}
	defer rows.Close()

	var out []models.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: %s: %w", what, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *sqlTx) Node(ctx context.Context, id string) (*models.Node, error) {
	return t.queryNode(ctx, "node "+id, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)
}

func (t *sqlTx) DocumentByPath(ctx context.Context, path string) (*models.Node, error) {
	return t.queryNode(ctx, "document "+path,
		`SELECT `+nodeColumns+` FROM nodes WHERE kind = 'document' AND path = ?`, path)
}

func (t *sqlTx) PlaceholderByName(ctx context.Context, name string) (*models.Node, error) {
	return t.queryNode(ctx, "placeholder "+name,
		`SELECT `+nodeColumns+` FROM nodes WHERE kind = 'placeholder' AND name_key = ?`, models.NameKey(name))
}

func (t *sqlTx) NodesByName(ctx context.Context, name string) ([]models.Node, error) {
	return t.queryNodes(ctx, "nodes by name",
		`SELECT `+nodeColumns+` FROM nodes WHERE name_key = ? ORDER BY kind, path`, models.NameKey(name))
}

func (t *sqlTx) GetDocument(ctx context.Context, path string) (*models.Document, error) {
	var (
		id                        string
		doc                       models.Document
		tags, aliases, properties string
		embedding                 sql.NullString
		modified                  sql.NullTime
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, path, title, content, checksum, tags, aliases, properties, embedding, modified_at
		FROM nodes WHERE kind = 'document' AND path = ?
	`, path).Scan(&id, &doc.Name, &doc.Path, &doc.Title, &doc.Content, &doc.Checksum,
		&tags, &aliases, &properties, &embedding, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlitestore: document %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: document %s: %w", path, err)
	}
	_ = json.Unmarshal([]byte(tags), &doc.Tags)
	_ = json.Unmarshal([]byte(aliases), &doc.Aliases)
	_ = json.Unmarshal([]byte(properties), &doc.Properties)
	doc.Embedding = decodeVector(embedding)
	if modified.Valid {
		doc.ModifiedAt = modified.Time
	}

	doc.Chunks, err = t.Chunks(ctx, id)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (t *sqlTx) CreateDocument(ctx context.Context, doc *models.Document) (*models.Node, error) {
	id := uuid.NewString()
	name := doc.Name
	if name == "" {
		name = models.DeriveName(doc.Path)
	}

	chunkIDs := make([]string, len(doc.Chunks))
	for i := range chunkIDs {
		chunkIDs[i] = uuid.NewString()
	}
	var head sql.NullString
	if len(chunkIDs) > 0 {
		head = sql.NullString{String: chunkIDs[0], Valid: true}
	}

	tagsJSON, _ := json.Marshal(nonNil(doc.Tags))
	aliasesJSON, _ := json.Marshal(nonNil(doc.Aliases))
	propsJSON, err := json.Marshal(doc.Properties)
	if err != nil || doc.Properties == nil {
		propsJSON = []byte("{}")
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO nodes (id, kind, name, name_key, path, title, content, checksum,
		                   tags, aliases, properties, embedding, head_chunk_id, modified_at)
		VALUES (?, 'document', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, name, models.NameKey(name), doc.Path, doc.Title, doc.Content, doc.Checksum,
		string(tagsJSON), string(aliasesJSON), string(propsJSON), encodeVector(doc.Embedding), head, doc.ModifiedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: create document %s: %w", doc.Path, mapConstraint(err))
	}

	if len(doc.Chunks) > 0 {
		stmt, err := t.tx.PrepareContext(ctx, `
			INSERT INTO chunks (id, document_id, ordinal, name, content, embedding, next_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: prepare chunk insert: %w", err)
		}
		defer stmt.Close()
		for i, c := range doc.Chunks {
			var next sql.NullString
			if i+1 < len(chunkIDs) {
				next = sql.NullString{String: chunkIDs[i+1], Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, chunkIDs[i], id, c.Ordinal, c.Name, c.Content,
				encodeVector(c.Embedding), next); err != nil {
				return nil, fmt.Errorf("sqlitestore: insert chunk %d: %w", c.Ordinal, err)
			}
		}
	}

	if err := ftsUpsert(ctx, t.tx, id, doc.Path, doc.Title, doc.Content, doc.Tags); err != nil {
		return nil, err
	}

	return &models.Node{
		ID:         id,
		Kind:       models.KindDocument,
		Name:       name,
		Path:       doc.Path,
		Title:      doc.Title,
		Checksum:   doc.Checksum,
		Tags:       doc.Tags,
		ModifiedAt: doc.ModifiedAt,
	}, nil
}

func (t *sqlTx) CreatePlaceholder(ctx context.Context, name string) (*models.Node, error) {
	id := uuid.NewString()
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO nodes (id, kind, name, name_key) VALUES (?, 'placeholder', ?, ?)
	`, id, name, models.NameKey(name))
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: create placeholder %s: %w", name, mapConstraint(err))
	}
	return &models.Node{ID: id, Kind: models.KindPlaceholder, Name: name}, nil
}

func (t *sqlTx) DeleteNode(ctx context.Context, id string) error {
	if err := ftsDelete(ctx, t.tx, id); err != nil {
		return err
	}
	// Chunks and mentions go with the node via ON DELETE CASCADE.
	res, err := t.tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlitestore: delete node %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlitestore: delete node %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (t *sqlTx) Connect(ctx context.Context, sourceID, targetID string, link models.Link) (*models.Edge, error) {
	id := uuid.NewString()
	headers, _ := json.Marshal(nonNil(link.Headers))
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO mentions (id, source_id, target_id, format, headers, block, display)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, sourceID, targetID, string(link.Format), string(headers), link.Block, link.Display)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: connect %s -> %s: %w", sourceID, targetID, err)
	}
	return &models.Edge{ID: id, SourceID: sourceID, TargetID: targetID, Link: link}, nil
}

func (t *sqlTx) RepointIncoming(ctx context.Context, fromID, toID string) (int, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE mentions SET target_id = ? WHERE target_id = ? AND source_id <> ?`, toID, fromID, fromID)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: repoint %s -> %s: %w", fromID, toID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (t *sqlTx) DeleteIncoming(ctx context.Context, id string) (int, error) {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM mentions WHERE target_id = ? AND source_id <> ?`, id, id)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: delete incoming %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (t *sqlTx) Incoming(ctx context.Context, id string) ([]models.Edge, error) {
	return t.queryEdges(ctx, "incoming", `SELECT `+edgeColumns+` FROM mentions WHERE target_id = ?`, id)
}

func (t *sqlTx) Outgoing(ctx context.Context, id string) ([]models.Edge, error) {
	return t.queryEdges(ctx, "outgoing", `SELECT `+edgeColumns+` FROM mentions WHERE source_id = ?`, id)
}

func (t *sqlTx) Nodes(ctx context.Context) ([]models.Node, error) {
	return t.queryNodes(ctx, "nodes", `SELECT `+nodeColumns+` FROM nodes ORDER BY kind, name_key, path`)
}

func (t *sqlTx) Edges(ctx context.Context) ([]models.Edge, error) {
	return t.queryEdges(ctx, "edges", `SELECT `+edgeColumns+` FROM mentions`)
}

func (t *sqlTx) Placeholders(ctx context.Context) ([]models.Node, error) {
	return t.queryNodes(ctx, "placeholders",
		`SELECT `+nodeColumns+` FROM nodes WHERE kind = 'placeholder' ORDER BY name_key`)
}

func (t *sqlTx) Documents(ctx context.Context) ([]models.DocumentSummary, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id, path, checksum FROM nodes WHERE kind = 'document' ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: documents: %w", err)
	}
	defer rows.Close()

	var out []models.DocumentSummary
	for rows.Next() {
		var d models.DocumentSummary
		if err := rows.Scan(&d.ID, &d.Path, &d.Checksum); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Chunks returns the document's chunks in chain order, starting at the head.
func (t *sqlTx) Chunks(ctx context.Context, documentID string) ([]models.Chunk, error) {
	var head sql.NullString
	err := t.tx.QueryRowContext(ctx, `SELECT head_chunk_id FROM nodes WHERE id = ?`, documentID).Scan(&head)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlitestore: chunks of %s: %w", documentID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: chunks of %s: %w", documentID, err)
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, ordinal, name, content, embedding, COALESCE(next_id, '')
		FROM chunks WHERE document_id = ?
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: chunks of %s: %w", documentID, err)
	}
	defer rows.Close()

	byID := make(map[string]models.Chunk)
	for rows.Next() {
		var (
			c   models.Chunk
			emb sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Ordinal, &c.Name, &c.Content, &emb, &c.NextID); err != nil {
			return nil, err
		}
		c.Embedding = decodeVector(emb)
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.Chunk, 0, len(byID))
	for id := head.String; id != "" && len(out) < len(byID); {
		c, ok := byID[id]
		if !ok {
			break
		}
		out = append(out, c)
		id = c.NextID
	}
	return out, nil
}

// mapConstraint translates unique-constraint violations to apperr.ErrAlreadyExists.
func mapConstraint(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%w: %v", apperr.ErrAlreadyExists, err)
	}
	return err
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
