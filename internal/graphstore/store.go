// Package graphstore defines the persistence contract for the note graph.
// Implementations live in sqlitestore (embedded, default) and neo4jstore.
package graphstore

import (
	"context"

	"github.com/starford/notegraph/internal/models"
)

// Store is a transactional graph database holding Documents, Placeholders,
// Chunks and mentions edges.
//
// Consumers should depend on this interface rather than a concrete backend
// so the engine can be tested against the embedded store.
type Store interface {
	// Update runs fn in a read-write transaction. The transaction commits if
	// fn returns nil and rolls back otherwise.
	Update(ctx context.Context, fn func(Tx) error) error
	// View runs fn in a transaction whose changes are discarded.
	View(ctx context.Context, fn func(Tx) error) error

	// Search runs a full-text query over document content.
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	// EnsureVectorIndex creates the vector indexes for document and chunk
	// embeddings if the backend supports them.
	EnsureVectorIndex(ctx context.Context, idx VectorIndex) error
	// QueryVector returns the nodes most similar to the query embedding.
	QueryVector(ctx context.Context, q VectorQuery) ([]ScoredNode, error)

	// Clear removes every node, chunk and edge.
	Clear(ctx context.Context) error
	Close() error
}

// Tx is the set of graph operations available inside a transaction. Lookups
// that find nothing return an error matching apperr.ErrNotFound.
type Tx interface {
	Node(ctx context.Context, id string) (*models.Node, error)
	DocumentByPath(ctx context.Context, path string) (*models.Node, error)
	// PlaceholderByName matches the name case-insensitively.
	PlaceholderByName(ctx context.Context, name string) (*models.Node, error)
	// NodesByName returns Documents and Placeholders whose name equals name,
	// compared case-insensitively.
	NodesByName(ctx context.Context, name string) ([]models.Node, error)
	// GetDocument returns the stored document with content and chunks.
	GetDocument(ctx context.Context, path string) (*models.Document, error)

	// CreateDocument persists doc with its chunks, the head/next chain and
	// the contains membership. Outgoing links are not connected here.
	CreateDocument(ctx context.Context, doc *models.Document) (*models.Node, error)
	CreatePlaceholder(ctx context.Context, name string) (*models.Node, error)
	// DeleteNode removes a node together with its chunks and every edge
	// touching it.
	DeleteNode(ctx context.Context, id string) error

	Connect(ctx context.Context, sourceID, targetID string, link models.Link) (*models.Edge, error)
	// RepointIncoming moves every edge ending at fromID onto toID, except
	// edges whose source is fromID itself. It returns the number of edges moved.
	RepointIncoming(ctx context.Context, fromID, toID string) (int, error)
	// DeleteIncoming removes every edge ending at id whose source is not id.
	DeleteIncoming(ctx context.Context, id string) (int, error)
	// Incoming returns edges ending at id, self links included.
	Incoming(ctx context.Context, id string) ([]models.Edge, error)
	Outgoing(ctx context.Context, id string) ([]models.Edge, error)

	Nodes(ctx context.Context) ([]models.Node, error)
	Edges(ctx context.Context) ([]models.Edge, error)
	Placeholders(ctx context.Context) ([]models.Node, error)
	Documents(ctx context.Context) ([]models.DocumentSummary, error)
	Chunks(ctx context.Context, documentID string) ([]models.Chunk, error)
}

// SearchResult is one full-text hit.
type SearchResult struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Similarity functions accepted by VectorIndex.
const (
	SimilarityCosine    = "cosine"
	SimilarityEuclidean = "euclidean"
)

// VectorIndex configures the HNSW vector indexes.
type VectorIndex struct {
	Dimension      int
	Similarity     string
	M              int
	EfConstruction int
}

// VectorTarget selects which embeddings a vector query searches.
type VectorTarget string

const (
	TargetDocuments VectorTarget = "document"
	TargetChunks    VectorTarget = "chunk"
)

// VectorQuery is a top-k similarity query.
type VectorQuery struct {
	Embedding []float32
	TopK      int
	Target    VectorTarget
}

// ScoredNode is one vector query hit. For chunk hits Path is the owning
// document's path and Name the chunk's display name.
type ScoredNode struct {
	ID      string       `json:"id"`
	Target  VectorTarget `json:"target"`
	Path    string       `json:"path"`
	Name    string       `json:"name"`
	Content string       `json:"content"`
	Score   float64      `json:"score"`
}
