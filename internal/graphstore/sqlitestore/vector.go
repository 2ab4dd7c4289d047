package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/starford/notegraph/internal/graphstore"
)

// EnsureVectorIndex records the similarity settings. SQLite has no native
// vector index; QueryVector scans the stored embeddings.
func (s *Store) EnsureVectorIndex(_ context.Context, idx graphstore.VectorIndex) error {
	switch idx.Similarity {
	case "", graphstore.SimilarityCosine:
		idx.Similarity = graphstore.SimilarityCosine
	case graphstore.SimilarityEuclidean:
	default:
		return fmt.Errorf("sqlitestore: unsupported similarity %q", idx.Similarity)
	}
	s.mu.Lock()
	s.vector = idx
	s.mu.Unlock()
	return nil
}

// QueryVector returns the top-k documents or chunks by similarity.
func (s *Store) QueryVector(ctx context.Context, q graphstore.VectorQuery) ([]graphstore.ScoredNode, error) {
	if len(q.Embedding) == 0 {
		return nil, fmt.Errorf("sqlitestore: query vector: empty embedding")
	}
	if q.TopK <= 0 {
		q.TopK = 5
	}
	s.mu.RLock()
	similarity := s.vector.Similarity
	s.mu.RUnlock()

	var query string
	switch q.Target {
	case graphstore.TargetChunks:
		query = `
			SELECT c.id, n.path, c.name, c.content, c.embedding
			FROM chunks c JOIN nodes n ON n.id = c.document_id
			WHERE c.embedding IS NOT NULL`
	default:
		q.Target = graphstore.TargetDocuments
		query = `
			SELECT id, path, name, content, embedding
			FROM nodes
			WHERE kind = 'document' AND embedding IS NOT NULL`
	}

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query vector: %w", err)
	}
	defer rows.Close()

	var out []graphstore.ScoredNode
	for rows.Next() {
		var (
			n   graphstore.ScoredNode
			emb sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.Path, &n.Name, &n.Content, &emb); err != nil {
			return nil, err
		}
		vec := decodeVector(emb)
		if len(vec) != len(q.Embedding) {
			continue
		}
		n.Target = q.Target
		n.Score = score(similarity, q.Embedding, vec)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > q.TopK {
		out = out[:q.TopK]
	}
	return out, nil
}

// score maps both similarity functions onto "higher is closer", matching the
// [0,1] ranges Neo4j reports for its vector indexes.
func score(similarity string, a, b []float32) float64 {
	if similarity == graphstore.SimilarityEuclidean {
		var d float64
		for i := range a {
			diff := float64(a[i]) - float64(b[i])
			d += diff * diff
		}
		return 1 / (1 + d)
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return (1 + dot/(math.Sqrt(na)*math.Sqrt(nb))) / 2
}

func encodeVector(v []float32) sql.NullString {
	if len(v) == 0 {
		return sql.NullString{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func decodeVector(s sql.NullString) []float32 {
	if !s.Valid || s.String == "" {
		return nil
	}
	var v []float32
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return nil
	}
	return v
}
