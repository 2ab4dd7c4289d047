// Package graphservice answers read queries over the note graph for the HTTP
// API, the MCP server and the CLI.
package graphservice

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/embedding"
	"github.com/starford/notegraph/internal/graphstore"
	"github.com/starford/notegraph/internal/graphsync"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/storage"
)

// ErrEmbeddingDisabled is returned by similarity queries when no embedder is configured.
var ErrEmbeddingDisabled = errors.New("embedding disabled")

const (
	defaultSearchLimit = 20
	defaultTopK        = 5
	maxTopK            = 100
)

// DocumentDetail is the full representation of a stored document.
type DocumentDetail struct {
	ID         string         `json:"id"`
	Path       string         `json:"path"`
	Name       string         `json:"name"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Checksum   string         `json:"checksum"`
	Tags       []string       `json:"tags"`
	Aliases    []string       `json:"aliases"`
	Properties map[string]any `json:"properties,omitempty"`
	ModifiedAt time.Time      `json:"modified_at"`
	Chunks     []models.Chunk `json:"chunks"`
	Links      []OutgoingLink `json:"links"`
	Backlinks  []Backlink     `json:"backlinks"`
}

// OutgoingLink is one mentions edge leaving a document.
type OutgoingLink struct {
	Target string          `json:"target"`
	Kind   models.NodeKind `json:"kind"`
	Link   models.Link     `json:"link"`
}

// Backlink is one mentions edge arriving at a node.
type Backlink struct {
	Source string      `json:"source"`
	Link   models.Link `json:"link"`
}

// PlaceholderInfo lists a placeholder and the documents that reference it.
type PlaceholderInfo struct {
	Name         string   `json:"name"`
	ReferencedBy []string `json:"referenced_by"`
}

// Stats summarises the graph.
type Stats struct {
	Documents    int `json:"documents"`
	Placeholders int `json:"placeholders"`
	Edges        int `json:"edges"`
	Chunks       int `json:"chunks"`
}

// Service answers graph queries.
type Service struct {
	store    graphstore.Store
	embedder embedding.Embedder
	root     string
	ext      string
}

// Option configures a Service.
type Option func(*Service)

// WithEmbedder enables similarity queries.
func WithEmbedder(e embedding.Embedder) Option {
	return func(s *Service) { s.embedder = e }
}

// WithExtension sets the document extension appended to bare paths.
func WithExtension(ext string) Option {
	return func(s *Service) { s.ext = ext }
}

// New creates a Service over store for the vault at root.
func New(store graphstore.Store, root string, opts ...Option) *Service {
	s := &Service{store: store, root: filepath.Clean(root), ext: storage.DefaultExtension}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the vault root.
func (s *Service) Root() string { return s.root }

// AbsPath maps a vault-relative or absolute path to the absolute path
// documents are stored under. The extension is added when missing.
func (s *Service) AbsPath(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasSuffix(strings.ToLower(p), strings.ToLower(s.ext)) {
		p += s.ext
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimLeft(p, "/")))
}

// Document returns the stored document at path with its links and backlinks.
func (s *Service) Document(ctx context.Context, path string) (*DocumentDetail, error) {
	abs := s.AbsPath(path)
	var d *DocumentDetail
	err := s.store.View(ctx, func(tx graphstore.Tx) error {
		node, err := tx.DocumentByPath(ctx, abs)
		if err != nil {
			return err
		}
		doc, err := tx.GetDocument(ctx, abs)
		if err != nil {
			return err
		}
		d = &DocumentDetail{
			ID:         node.ID,
			Path:       doc.Path,
			Name:       doc.Name,
			Title:      doc.Title,
			Content:    doc.Content,
			Checksum:   doc.Checksum,
			Tags:       nonNil(doc.Tags),
			Aliases:    nonNil(doc.Aliases),
			Properties: doc.Properties,
			ModifiedAt: doc.ModifiedAt,
			Chunks:     nonNil(doc.Chunks),
		}

		out, err := tx.Outgoing(ctx, node.ID)
		if err != nil {
			return err
		}
		d.Links = make([]OutgoingLink, 0, len(out))
		for _, e := range out {
			target, err := tx.Node(ctx, e.TargetID)
			if err != nil {
				return err
			}
			d.Links = append(d.Links, OutgoingLink{Target: target.Label(), Kind: target.Kind, Link: e.Link})
		}

		d.Backlinks, err = backlinks(ctx, tx, node.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("graphservice: document %s: %w", path, err)
	}
	return d, nil
}

// Backlinks returns the edges arriving at the document at ref or, failing
// that, at the placeholder named ref.
func (s *Service) Backlinks(ctx context.Context, ref string) ([]Backlink, error) {
	var out []Backlink
	err := s.store.View(ctx, func(tx graphstore.Tx) error {
		node, err := tx.DocumentByPath(ctx, s.AbsPath(ref))
		if errors.Is(err, apperr.ErrNotFound) {
			node, err = tx.PlaceholderByName(ctx, models.DeriveName(ref))
		}
		if err != nil {
			return err
		}
		out, err = backlinks(ctx, tx, node.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("graphservice: backlinks %s: %w", ref, err)
	}
	return out, nil
}

func backlinks(ctx context.Context, tx graphstore.Tx, id string) ([]Backlink, error) {
	in, err := tx.Incoming(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]Backlink, 0, len(in))
	for _, e := range in {
		src, err := tx.Node(ctx, e.SourceID)
		if err != nil {
			return nil, err
		}
		out = append(out, Backlink{Source: src.Label(), Link: e.Link})
	}
	return out, nil
}

// NodesByName returns every node whose derived name matches name case-insensitively.
func (s *Service) NodesByName(ctx context.Context, name string) ([]models.Node, error) {
	var nodes []models.Node
	err := s.store.View(ctx, func(tx graphstore.Tx) error {
		var err error
		nodes, err = tx.NodesByName(ctx, name)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("graphservice: nodes by name %q: %w", name, err)
	}
	return nonNil(nodes), nil
}

// Placeholders lists every placeholder with its referring documents.
func (s *Service) Placeholders(ctx context.Context) ([]PlaceholderInfo, error) {
	var out []PlaceholderInfo
	err := s.store.View(ctx, func(tx graphstore.Tx) error {
		ps, err := tx.Placeholders(ctx)
		if err != nil {
			return err
		}
		out = make([]PlaceholderInfo, 0, len(ps))
		for _, p := range ps {
			refs, err := backlinks(ctx, tx, p.ID)
			if err != nil {
				return err
			}
			info := PlaceholderInfo{Name: p.Name, ReferencedBy: make([]string, 0, len(refs))}
			for _, r := range refs {
				info.ReferencedBy = append(info.ReferencedBy, r.Source)
			}
			out = append(out, info)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("graphservice: placeholders: %w", err)
	}
	return out, nil
}

// Graph returns every node and edge.
func (s *Service) Graph(ctx context.Context) (graphsync.Graph, error) {
	g, err := graphsync.Snapshot(ctx, s.store)
	if err != nil {
		return graphsync.Graph{}, fmt.Errorf("graphservice: graph: %w", err)
	}
	g.Nodes, g.Edges = nonNil(g.Nodes), nonNil(g.Edges)
	return g, nil
}

// Search runs a full-text query over document content.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]graphstore.SearchResult, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	res, err := s.store.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("graphservice: search: %w", err)
	}
	return nonNil(res), nil
}

// Similar embeds text and returns the topK most similar documents or chunks.
func (s *Service) Similar(ctx context.Context, text string, topK int, target graphstore.VectorTarget) ([]graphstore.ScoredNode, error) {
	if s.embedder == nil {
		return nil, ErrEmbeddingDisabled
	}
	switch {
	case topK <= 0:
		topK = defaultTopK
	case topK > maxTopK:
		topK = maxTopK
	}
	if target == "" {
		target = graphstore.TargetChunks
	}

	vecs, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("graphservice: embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("graphservice: embed query: got %d vectors", len(vecs))
	}
	res, err := s.store.QueryVector(ctx, graphstore.VectorQuery{Embedding: vecs[0], TopK: topK, Target: target})
	if err != nil {
		return nil, fmt.Errorf("graphservice: similar: %w", err)
	}
	return nonNil(res), nil
}

// Stats counts documents, placeholders, edges and chunks.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.store.View(ctx, func(tx graphstore.Tx) error {
		nodes, err := tx.Nodes(ctx)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			if !n.IsDocument() {
				st.Placeholders++
				continue
			}
			st.Documents++
			chunks, err := tx.Chunks(ctx, n.ID)
			if err != nil {
				return err
			}
			st.Chunks += len(chunks)
		}
		edges, err := tx.Edges(ctx)
		st.Edges = len(edges)
		return err
	})
	if err != nil {
		return Stats{}, fmt.Errorf("graphservice: stats: %w", err)
	}
	return st, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
