// Package loader turns a vault file into a models.Document: it reads the
// bytes, parses frontmatter and links, splits chunks and computes embeddings.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/checksum"
	"github.com/starford/notegraph/internal/embedding"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/parser"
	"github.com/starford/notegraph/internal/storage"
)

// Vault is the file access the loader needs.
type Vault interface {
	storage.Provider
	// Rel converts an absolute path under the root to a vault-relative path.
	Rel(abs string) (string, error)
}

// Loader builds documents from vault files.
type Loader struct {
	vault    Vault
	chunker  *parser.Chunker
	embedder embedding.Embedder
	logger   *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithEmbedder sets the embedder. Without one, embeddings stay empty.
func WithEmbedder(e embedding.Embedder) Option {
	return func(l *Loader) { l.embedder = e }
}

// WithChunker replaces the default chunker.
func WithChunker(c *parser.Chunker) Option {
	return func(l *Loader) { l.chunker = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// New creates a Loader over vault.
func New(vault Vault, opts ...Option) *Loader {
	l := &Loader{
		vault:   vault,
		chunker: parser.NewChunker(parser.DefaultMaxChunkSize),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads and parses the document at the absolute path. Read and parse
// failures are returned as an *apperr.ParseError. An embedding failure is
// not: the document is returned without vectors.
func (l *Loader) Load(ctx context.Context, path string) (*models.Document, error) {
	path = filepath.Clean(path)
	rel, err := l.vault.Rel(path)
	if err != nil {
		return nil, &apperr.ParseError{Path: path, Err: err}
	}
	data, err := l.vault.Read(rel)
	if err != nil {
		return nil, &apperr.ParseError{Path: path, Err: err}
	}
	info, err := l.vault.Stat(rel)
	if err != nil {
		return nil, &apperr.ParseError{Path: path, Err: err}
	}
	res, err := parser.Parse(data)
	if err != nil {
		return nil, &apperr.ParseError{Path: path, Err: err}
	}

	doc := &models.Document{
		Path:       path,
		Name:       models.DeriveName(path),
		Title:      res.Title,
		Content:    string(data),
		Checksum:   checksum.Sum(data),
		Tags:       res.Tags,
		Aliases:    res.Aliases,
		Properties: res.Properties,
		ModifiedAt: info.ModifiedAt,
		Chunks:     l.chunker.Split(res.Body),
		Links:      res.Links,
	}

	if err := l.embed(ctx, doc); err != nil {
		l.logger.Warn("loader: embedding failed, storing document without vectors",
			slog.String("path", path),
			slog.String("error", err.Error()))
		doc.Embedding = nil
		for i := range doc.Chunks {
			doc.Chunks[i].Embedding = nil
		}
	}
	return doc, nil
}

// embed fills the document and chunk embeddings in one batch request.
func (l *Loader) embed(ctx context.Context, doc *models.Document) error {
	if l.embedder == nil {
		return nil
	}
	texts := make([]string, 0, len(doc.Chunks)+1)
	texts = append(texts, doc.Content)
	for _, c := range doc.Chunks {
		texts = append(texts, c.Content)
	}
	vecs, err := l.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != len(texts) {
		return fmt.Errorf("embed: got %d vectors for %d texts", len(vecs), len(texts))
	}
	doc.Embedding = vecs[0]
	for i := range doc.Chunks {
		doc.Chunks[i].Embedding = vecs[i+1]
	}
	l.logger.Debug("loader: embedded", slog.String("path", doc.Path), slog.Int("chunks", len(doc.Chunks)))
	return nil
}
