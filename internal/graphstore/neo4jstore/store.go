// Package neo4jstore implements graphstore.Store on Neo4j 5 with native
// vector indexes.
package neo4jstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/graphstore"
)

// Config holds the connection settings.
type Config struct {
	URI      string
	User     string
	Password string
	Database string
}

// Store wraps a Neo4j driver.
type Store struct {
	driver   neo4j.DriverWithContext
	database string

	mu         sync.RWMutex
	similarity string
}

var _ graphstore.Store = (*Store)(nil)

// Open connects to Neo4j, verifies connectivity and applies constraints.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: create driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4jstore: verify connectivity: %w", err)
	}
	s := &Store{driver: driver, database: cfg.Database, similarity: graphstore.SimilarityCosine}
	if err := s.applySchema(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

// Update runs fn in an explicit write transaction.
func (s *Store) Update(ctx context.Context, fn func(graphstore.Tx) error) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return fmt.Errorf("neo4jstore: begin tx: %w", err)
	}
	if err := fn(&cypherTx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("neo4jstore: commit: %w", mapConstraint(err))
	}
	return nil
}

// View runs fn in a read transaction that is always rolled back.
func (s *Store) View(ctx context.Context, fn func(graphstore.Tx) error) error {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return fmt.Errorf("neo4jstore: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	return fn(&cypherTx{tx: tx})
}

// Search matches documents whose title or content contains query.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]graphstore.SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	res, err := session.Run(ctx, `
		MATCH (d:Document)
		WHERE toLower(d.content) CONTAINS toLower($q) OR toLower(d.title) CONTAINS toLower($q)
		RETURN d.uid AS id, d.path AS path, d.title AS title, substring(d.content, 0, 200) AS snippet
		ORDER BY d.path
		LIMIT $limit
	`, map[string]any{"q": query, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: search: %w", err)
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: search: %w", err)
	}
	out := make([]graphstore.SearchResult, 0, len(records))
	for _, r := range records {
		out = append(out, graphstore.SearchResult{
			ID:      getStringFromRecord(r, "id"),
			Path:    getStringFromRecord(r, "path"),
			Title:   getStringFromRecord(r, "title"),
			Snippet: getStringFromRecord(r, "snippet"),
		})
	}
	return out, nil
}

// Clear deletes every graph node and chunk.
func (s *Store) Clear(ctx context.Context) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	res, err := session.Run(ctx, `MATCH (n) WHERE n:Node OR n:Chunk DETACH DELETE n`, nil)
	if err != nil {
		return fmt.Errorf("neo4jstore: clear: %w", err)
	}
	if _, err := res.Consume(ctx); err != nil {
		return fmt.Errorf("neo4jstore: clear: %w", err)
	}
	return nil
}

// Close closes the driver.
func (s *Store) Close() error {
	return s.driver.Close(context.Background())
}

// mapConstraint translates uniqueness violations to apperr.ErrAlreadyExists.
func mapConstraint(err error) error {
	var ne *neo4j.Neo4jError
	if errors.As(err, &ne) && ne.Code == "Neo.ClientError.Schema.ConstraintValidationFailed" {
		return fmt.Errorf("%w: %v", apperr.ErrAlreadyExists, err)
	}
	return err
}
