// Package storetest is a conformance suite run against every graphstore.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/graphstore"
	"github.com/starford/notegraph/internal/models"
)

// Opener returns an empty store; it registers its own cleanup.
type Opener func(t *testing.T) graphstore.Store

// Run executes the suite. Each subtest gets a fresh store.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s graphstore.Store)
	}{
		{"CreateAndLookupDocument", testCreateAndLookupDocument},
		{"ChunkChain", testChunkChain},
		{"PlaceholderNameUnique", testPlaceholderNameUnique},
		{"ConnectAndRepoint", testConnectAndRepoint},
		{"DeleteIncoming", testDeleteIncoming},
		{"DeleteNodeCascades", testDeleteNodeCascades},
		{"UpdateRollsBack", testUpdateRollsBack},
		{"NotFound", testNotFound},
		{"Clear", testClear},
		{"Search", testSearch},
		{"QueryVector", testQueryVector},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

func sampleDoc(path, content string) *models.Document {
	return &models.Document{
		Path:       path,
		Name:       models.DeriveName(path),
		Title:      models.DeriveName(path),
		Content:    content,
		Checksum:   "sum-" + path,
		Tags:       []string{"test"},
		ModifiedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Chunks: []models.Chunk{
			{Ordinal: 0, Name: "0_first...", Content: "first"},
			{Ordinal: 1, Name: "1_second...", Content: "second"},
			{Ordinal: 2, Name: "2_third...", Content: "third"},
		},
	}
}

func mustCreateDoc(t *testing.T, s graphstore.Store, doc *models.Document) *models.Node {
	t.Helper()
	var n *models.Node
	require.NoError(t, s.Update(context.Background(), func(tx graphstore.Tx) error {
		var err error
		n, err = tx.CreateDocument(context.Background(), doc)
		return err
	}))
	return n
}

func testCreateAndLookupDocument(t *testing.T, s graphstore.Store) {
	ctx := context.Background()
	created := mustCreateDoc(t, s, sampleDoc("/vault/Alpha.md", "alpha body"))
	assert.Equal(t, models.KindDocument, created.Kind)
	assert.NotEmpty(t, created.ID)

	require.NoError(t, s.View(ctx, func(tx graphstore.Tx) error {
		n, err := tx.DocumentByPath(ctx, "/vault/Alpha.md")
		require.NoError(t, err)
		assert.Equal(t, created.ID, n.ID)
		assert.Equal(t, "Alpha", n.Name)
		assert.Equal(t, []string{"test"}, n.Tags)

		byName, err := tx.NodesByName(ctx, "ALPHA")
		require.NoError(t, err)
		require.Len(t, byName, 1)
		assert.Equal(t, created.ID, byName[0].ID)

		doc, err := tx.GetDocument(ctx, "/vault/Alpha.md")
		require.NoError(t, err)
		assert.Equal(t, "alpha body", doc.Content)
		assert.Equal(t, "sum-/vault/Alpha.md", doc.Checksum)
		assert.Len(t, doc.Chunks, 3)

		docs, err := tx.Documents(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "/vault/Alpha.md", docs[0].Path)
		return nil
	}))

	err := s.Update(ctx, func(tx graphstore.Tx) error {
		_, err := tx.CreateDocument(ctx, sampleDoc("/vault/Alpha.md", "again"))
		return err
	})
	assert.True(t, errors.Is(err, apperr.ErrAlreadyExists), "duplicate path: %v", err)
}

func testChunkChain(t *testing.T, s graphstore.Store) {
	ctx := context.Background()
	n := mustCreateDoc(t, s, sampleDoc("/vault/Chain.md", "x"))

	require.NoError(t, s.View(ctx, func(tx graphstore.Tx) error {
		chunks, err := tx.Chunks(ctx, n.ID)
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		for i, c := range chunks {
			assert.Equal(t, i, c.Ordinal)
			if i+1 < len(chunks) {
				assert.Equal(t, chunks[i+1].ID, c.NextID)
			} else {
				assert.Empty(t, c.NextID)
			}
		}
		return nil
	}))
}

func testPlaceholderNameUnique(t *testing.T, s graphstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx graphstore.Tx) error {
		_, err := tx.CreatePlaceholder(ctx, "Gamma")
		return err
	}))
	err := s.Update(ctx, func(tx graphstore.Tx) error {
		_, err := tx.CreatePlaceholder(ctx, "gamma")
		return err
	})
	assert.True(t, errors.Is(err, apperr.ErrAlreadyExists), "case-insensitive duplicate: %v", err)

	require.NoError(t, s.View(ctx, func(tx graphstore.Tx) error {
		p, err := tx.PlaceholderByName(ctx, "GAMMA")
		require.NoError(t, err)
		assert.Equal(t, models.KindPlaceholder, p.Kind)
		assert.Equal(t, "Gamma", p.Name)
		return nil
	}))
}

func testConnectAndRepoint(t *testing.T, s graphstore.Store) {
	ctx := context.Background()
	a := mustCreateDoc(t, s, sampleDoc("/vault/A.md", "a"))
	b := mustCreateDoc(t, s, sampleDoc("/vault/B.md", "b"))

	require.NoError(t, s.Update(ctx, func(tx graphstore.Tx) error {
		p, err := tx.CreatePlaceholder(ctx, "C")
		require.NoError(t, err)
		link := models.Link{Format: models.FormatSection, Target: "C", Headers: []string{"H1"}, Display: "see"}
		_, err = tx.Connect(ctx, a.ID, p.ID, link)
		require.NoError(t, err)
		_, err = tx.Connect(ctx, b.ID, p.ID, models.Link{Format: models.FormatDirect, Target: "C"})
		require.NoError(t, err)

		c, err := tx.CreateDocument(ctx, sampleDoc("/vault/C.md", "c"))
		require.NoError(t, err)
		_, err = tx.Connect(ctx, c.ID, c.ID, models.Link{Format: models.FormatSection, Headers: []string{"Self"}})
		require.NoError(t, err)

		moved, err := tx.RepointIncoming(ctx, p.ID, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, moved)

		in, err := tx.Incoming(ctx, c.ID)
		require.NoError(t, err)
		assert.Len(t, in, 3, "two moved edges plus the self link")

		left, err := tx.Incoming(ctx, p.ID)
		require.NoError(t, err)
		assert.Empty(t, left)

		out, err := tx.Outgoing(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, c.ID, out[0].TargetID)
		assert.Equal(t, models.FormatSection, out[0].Link.Format)
		assert.Equal(t, []string{"H1"}, out[0].Link.Headers)
		assert.Equal(t, "see", out[0].Link.Display)

		// Repointing from c must not move its own self link.
		moved, err = tx.RepointIncoming(ctx, c.ID, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, moved)
		return nil
	}))
}

func testDeleteIncoming(t *testing.T, s graphstore.Store) {
	ctx := context.Background()
	a := mustCreateDoc(t, s, sampleDoc("/vault/A.md", "a"))
	b := mustCreateDoc(t, s, sampleDoc("/vault/B.md", "b"))
	require.NoError(t, s.Update(ctx, func(tx graphstore.Tx) error {
		_, err := tx.Connect(ctx, a.ID, b.ID, models.Link{Format: models.FormatDirect, Target: "B"})
		require.NoError(t, err)
		_, err = tx.Connect(ctx, b.ID, b.ID, models.Link{Format: models.FormatSection, Headers: []string{"X"}})
		require.NoError(t, err)

		n, err := tx.DeleteIncoming(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		in, err := tx.Incoming(ctx, b.ID)
		require.NoError(t, err)
		assert.Len(t, in, 1, "self link survives")
		return nil
	}))
}

func testDeleteNodeCascades(t *testing.T, s graphstore.Store) {
	ctx := context.Background()
	a := mustCreateDoc(t, s, sampleDoc("/vault/A.md", "a"))
	b := mustCreateDoc(t, s, sampleDoc("/vault/B.md", "b"))
	require.NoError(t, s.Update(ctx, func(tx graphstore.Tx) error {
		_, err := tx.Connect(ctx, a.ID, b.ID, models.Link{Format: models.FormatDirect, Target: "B"})
		require.NoError(t, err)
		_, err = tx.Connect(ctx, b.ID, a.ID, models.Link{Format: models.FormatDirect, Target: "A"})
		require.NoError(t, err)
		return tx.DeleteNode(ctx, a.ID)
	}))

	require.NoError(t, s.View(ctx, func(tx graphstore.Tx) error {
		edges, err := tx.Edges(ctx)
		require.NoError(t, err)
		assert.Empty(t, edges)

		_, err = tx.Chunks(ctx, a.ID)
		assert.True(t, errors.Is(err, apperr.ErrNotFound), "chunks of deleted node: %v", err)

		nodes, err := tx.Nodes(ctx)
		require.NoError(t, err)
		require.Len(t, nodes, 1)
		assert.Equal(t, b.ID, nodes[0].ID)
		return nil
	}))
}

func testUpdateRollsBack(t *testing.T, s graphstore.Store) {
	ctx := context.Background()
	boom := errors.New("boom")
	err := s.Update(ctx, func(tx graphstore.Tx) error {
		if _, err := tx.CreatePlaceholder(ctx, "Ghost"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.View(ctx, func(tx graphstore.Tx) error {
		_, err := tx.PlaceholderByName(ctx, "Ghost")
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
		return nil
	}))
}

func testNotFound(t *testing.T, s graphstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.View(ctx, func(tx graphstore.Tx) error {
		_, err := tx.DocumentByPath(ctx, "/nope.md")
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
		_, err = tx.Node(ctx, "missing-id")
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
		_, err = tx.GetDocument(ctx, "/nope.md")
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
		nodes, err := tx.NodesByName(ctx, "nope")
		require.NoError(t, err)
		assert.Empty(t, nodes)
		return nil
	}))
	err := s.Update(ctx, func(tx graphstore.Tx) error { return tx.DeleteNode(ctx, "missing-id") })
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func testClear(t *testing.T, s graphstore.Store) {
	ctx := context.Background()
	mustCreateDoc(t, s, sampleDoc("/vault/A.md", "a"))
	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.View(ctx, func(tx graphstore.Tx) error {
		nodes, err := tx.Nodes(ctx)
		require.NoError(t, err)
		assert.Empty(t, nodes)
		return nil
	}))
}

func testSearch(t *testing.T, s graphstore.Store) {
	ctx := context.Background()
	mustCreateDoc(t, s, sampleDoc("/vault/Fts.md", "notegraph provides powerful full-text search"))
	mustCreateDoc(t, s, sampleDoc("/vault/Other.md", "nothing to see"))

	results, err := s.Search(ctx, "powerful", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "/vault/Fts.md", results[0].Path)
	assert.NotEmpty(t, results[0].Snippet)
}

func testQueryVector(t *testing.T, s graphstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.EnsureVectorIndex(ctx, graphstore.VectorIndex{
		Dimension: 3, Similarity: graphstore.SimilarityCosine, M: 16, EfConstruction: 100,
	}))

	near := sampleDoc("/vault/Near.md", "near")
	near.Embedding = []float32{1, 0, 0}
	far := sampleDoc("/vault/Far.md", "far")
	far.Embedding = []float32{0, 1, 0}
	mid := sampleDoc("/vault/Mid.md", "mid")
	mid.Embedding = []float32{0.7, 0.7, 0}
	for _, d := range []*models.Document{near, far, mid} {
		mustCreateDoc(t, s, d)
	}

	hits, err := s.QueryVector(ctx, graphstore.VectorQuery{
		Embedding: []float32{1, 0, 0},
		TopK:      2,
		Target:    graphstore.TargetDocuments,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "/vault/Near.md", hits[0].Path)
	assert.Equal(t, "/vault/Mid.md", hits[1].Path)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}
