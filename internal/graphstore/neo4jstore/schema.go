package neo4jstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/starford/notegraph/internal/graphstore"
)

var schemaStatements = []string{
	`CREATE CONSTRAINT node_uid IF NOT EXISTS FOR (n:Node) REQUIRE n.uid IS UNIQUE`,
	`CREATE CONSTRAINT chunk_uid IF NOT EXISTS FOR (c:Chunk) REQUIRE c.uid IS UNIQUE`,
	`CREATE CONSTRAINT document_path IF NOT EXISTS FOR (d:Document) REQUIRE d.path IS UNIQUE`,
	`CREATE CONSTRAINT placeholder_name IF NOT EXISTS FOR (p:Placeholder) REQUIRE p.name_key IS UNIQUE`,
	`CREATE INDEX node_name_key IF NOT EXISTS FOR (n:Node) ON (n.name_key)`,
}

const (
	documentVectorIndex = "document_embedding"
	chunkVectorIndex    = "chunk_embedding"
)

func (s *Store) applySchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if err := s.runSchema(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// runSchema executes a schema statement in its own auto-commit transaction;
// Neo4j does not allow schema and data changes in one transaction.
func (s *Store) runSchema(ctx context.Context, stmt string) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	res, err := session.Run(ctx, stmt, nil)
	if err != nil {
		return fmt.Errorf("neo4jstore: schema: %w", err)
	}
	if _, err := res.Consume(ctx); err != nil {
		return fmt.Errorf("neo4jstore: schema: %w", err)
	}
	return nil
}

// EnsureVectorIndex creates HNSW vector indexes over document and chunk
// embeddings.
func (s *Store) EnsureVectorIndex(ctx context.Context, idx graphstore.VectorIndex) error {
	if idx.Dimension <= 0 {
		return fmt.Errorf("neo4jstore: vector index: dimension must be positive")
	}
	switch idx.Similarity {
	case "", graphstore.SimilarityCosine:
		idx.Similarity = graphstore.SimilarityCosine
	case graphstore.SimilarityEuclidean:
	default:
		return fmt.Errorf("neo4jstore: unsupported similarity %q", idx.Similarity)
	}
	if idx.M <= 0 {
		idx.M = 16
	}
	if idx.EfConstruction <= 0 {
		idx.EfConstruction = 100
	}

	for _, target := range []struct{ name, label string }{
		{documentVectorIndex, "Document"},
		{chunkVectorIndex, "Chunk"},
	} {
		stmt := fmt.Sprintf("CREATE VECTOR INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.embedding) "+
			"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: '%s', "+
			"`vector.hnsw.m`: %d, `vector.hnsw.ef_construction`: %d}}",
			target.name, target.label, idx.Dimension, idx.Similarity, idx.M, idx.EfConstruction)
		if err := s.runSchema(ctx, stmt); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.similarity = idx.Similarity
	s.mu.Unlock()
	return nil
}

// QueryVector ranks documents or chunks by similarity to the query embedding.
func (s *Store) QueryVector(ctx context.Context, q graphstore.VectorQuery) ([]graphstore.ScoredNode, error) {
	if len(q.Embedding) == 0 {
		return nil, fmt.Errorf("neo4jstore: query vector: empty embedding")
	}
	if q.TopK <= 0 {
		q.TopK = 5
	}
	s.mu.RLock()
	fn := "vector.similarity." + s.similarity
	s.mu.RUnlock()

	var match string
	switch q.Target {
	case graphstore.TargetChunks:
		match = `MATCH (d:Document)-[:CONTAINS]->(n:Chunk)
			WHERE n.embedding IS NOT NULL AND size(n.embedding) = size($embedding)
			WITH n, d.path AS path`
	default:
		q.Target = graphstore.TargetDocuments
		match = `MATCH (n:Document)
			WHERE n.embedding IS NOT NULL AND size(n.embedding) = size($embedding)
			WITH n, n.path AS path`
	}
	cypher := match + `
		WITH n, path, ` + fn + `(n.embedding, $embedding) AS score
		ORDER BY score DESC
		LIMIT $k
		RETURN n.uid AS id, path, n.name AS name, n.content AS content, score`

	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	res, err := session.Run(ctx, cypher, map[string]any{
		"embedding": toFloat64s(q.Embedding),
		"k":         q.TopK,
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: query vector: %w", err)
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: query vector: %w", err)
	}
	out := make([]graphstore.ScoredNode, 0, len(records))
	for _, r := range records {
		out = append(out, graphstore.ScoredNode{
			ID:      getStringFromRecord(r, "id"),
			Target:  q.Target,
			Path:    getStringFromRecord(r, "path"),
			Name:    getStringFromRecord(r, "name"),
			Content: getStringFromRecord(r, "content"),
			Score:   getFloat64FromRecord(r, "score"),
		})
	}
	return out, nil
}
