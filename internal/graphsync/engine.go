// Package graphsync keeps the note graph consistent with the documents on
// disk. It applies create/delete/modify/move events, promoting Placeholders
// to Documents when their target appears and demoting Documents that are
// still referenced when they disappear.
package graphsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/graphstore"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/storage"
)

// DocumentSource produces the parsed, embedded form of a document on disk.
type DocumentSource interface {
	Load(ctx context.Context, path string) (*models.Document, error)
}

// Vault lists the documents on disk.
type Vault interface {
	// Root returns the absolute vault root.
	Root() string
	// List returns every document under dir, relative to the root.
	List(dir string) ([]storage.FileInfo, error)
}

// ChangeKind names a committed transition.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeDemoted  ChangeKind = "demoted"
	ChangeMoved    ChangeKind = "moved"
)

// Change describes one committed transition. Node is the resulting node, if any.
type Change struct {
	Kind     ChangeKind
	Path     string
	DestPath string
	Node     *models.Node
}

// ChangeFunc is called after every committed transition.
type ChangeFunc func(Change)

// Engine serializes all graph transitions. It is safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	store    graphstore.Store
	source   DocumentSource
	vault    Vault
	resolver *Resolver
	reaper   *Reaper
	logger   *slog.Logger
	onChange ChangeFunc

	reconcileOnOutOfSync bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithExtension sets the document extension the resolver appends to bare targets.
func WithExtension(ext string) Option {
	return func(e *Engine) { e.resolver = NewResolver(ext) }
}

// WithReconcileOnOutOfSync runs a reconciliation sweep whenever a delete
// references a path the graph does not know.
func WithReconcileOnOutOfSync(enabled bool) Option {
	return func(e *Engine) { e.reconcileOnOutOfSync = enabled }
}

// WithChangeFunc registers a callback for committed transitions.
func WithChangeFunc(fn ChangeFunc) Option {
	return func(e *Engine) { e.onChange = fn }
}

// New creates an Engine.
func New(store graphstore.Store, source DocumentSource, vault Vault, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		source:   source,
		vault:    vault,
		resolver: NewResolver(storage.DefaultExtension),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.reaper = NewReaper(e.logger)
	return e
}

// Apply dispatches ev to the matching handler.
func (e *Engine) Apply(ctx context.Context, ev models.Event) (*models.Node, error) {
	switch ev.Kind {
	case models.EventCreated:
		return e.OnCreated(ctx, ev.Path)
	case models.EventDeleted:
		return e.OnDeleted(ctx, ev.Path)
	case models.EventModified:
		return e.OnModified(ctx, ev.Path)
	case models.EventMoved:
		return e.OnMoved(ctx, ev.Path, ev.DestPath)
	default:
		return nil, fmt.Errorf("graphsync: unknown event kind %q", ev.Kind)
	}
}

// OnCreated adds the document at path. A create for a path that already has
// a document replaces it.
func (e *Engine) OnCreated(ctx context.Context, path string) (*models.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createPath(ctx, filepath.Clean(path))
}

// OnDeleted removes the document at path, demoting it to a Placeholder if
// other documents still link to it. It returns the Placeholder or nil.
// Deleting an unknown path only logs the inconsistency.
func (e *Engine) OnDeleted(ctx context.Context, path string) (*models.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	path = filepath.Clean(path)
	node, found, err := e.deletePath(ctx, path)
	if err != nil {
		return nil, err
	}
	if !found {
		e.outOfSync(ctx, "delete", path, true)
	}
	return node, nil
}

// OnModified re-derives the document at path from disk. An unknown path is
// logged and created.
func (e *Engine) OnModified(ctx context.Context, path string) (*models.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modifyPath(ctx, filepath.Clean(path))
}

// OnMoved deletes src and creates dest in one transaction.
func (e *Engine) OnMoved(ctx context.Context, src, dest string) (*models.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	src, dest = filepath.Clean(src), filepath.Clean(dest)
	if src == dest {
		return e.modifyPath(ctx, dest)
	}

	doc, err := e.source.Load(ctx, dest)
	if err != nil {
		return nil, err
	}

	var (
		node      *models.Node
		srcExists bool
	)
	err = e.store.Update(ctx, func(tx graphstore.Tx) error {
		existing, err := lookupDocument(ctx, tx, src)
		if err != nil {
			return err
		}
		if existing != nil {
			srcExists = true
			if _, err := e.delete(ctx, tx, existing); err != nil {
				return err
			}
		}
		if node, err = e.create(ctx, tx, doc); err != nil {
			return err
		}
		if existing != nil {
			_, err = e.settle(ctx, tx, existing.Name)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("graphsync: move %s -> %s: %w", src, dest, err)
	}
	if !srcExists {
		e.outOfSync(ctx, "move", src, true)
	}

	e.logger.Info("graphsync: document moved", slog.String("from", src), slog.String("to", dest))
	e.notify(Change{Kind: ChangeMoved, Path: src, DestPath: dest, Node: node})
	return node, nil
}

func (e *Engine) createPath(ctx context.Context, path string) (*models.Node, error) {
	doc, err := e.source.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	var node *models.Node
	err = e.store.Update(ctx, func(tx graphstore.Tx) error {
		var err error
		node, err = e.create(ctx, tx, doc)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("graphsync: create %s: %w", path, err)
	}

	e.logger.Info("graphsync: document created",
		slog.String("path", path),
		slog.Int("links", len(doc.Links)),
		slog.Int("chunks", len(doc.Chunks)))
	e.notify(Change{Kind: ChangeCreated, Path: path, Node: node})
	return node, nil
}

// deletePath reports found=false when no document exists at path.
func (e *Engine) deletePath(ctx context.Context, path string) (*models.Node, bool, error) {
	var (
		node  *models.Node
		found bool
	)
	err := e.store.Update(ctx, func(tx graphstore.Tx) error {
		existing, err := lookupDocument(ctx, tx, path)
		if err != nil || existing == nil {
			return err
		}
		found = true
		if node, err = e.delete(ctx, tx, existing); err != nil {
			return err
		}
		if node != nil {
			node, err = e.settle(ctx, tx, existing.Name)
		}
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("graphsync: delete %s: %w", path, err)
	}
	if !found {
		return nil, false, nil
	}

	kind := ChangeDeleted
	if node != nil {
		kind = ChangeDemoted
		e.logger.Info("graphsync: document demoted to placeholder", slog.String("path", path), slog.String("name", node.Name))
	} else {
		e.logger.Info("graphsync: document deleted", slog.String("path", path))
	}
	e.notify(Change{Kind: kind, Path: path, Node: node})
	return node, true, nil
}

func (e *Engine) modifyPath(ctx context.Context, path string) (*models.Node, error) {
	doc, err := e.source.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	var (
		node    *models.Node
		existed bool
	)
	err = e.store.Update(ctx, func(tx graphstore.Tx) error {
		existing, err := lookupDocument(ctx, tx, path)
		if err != nil {
			return err
		}
		if existing != nil {
			existed = true
			if _, err := e.delete(ctx, tx, existing); err != nil {
				return err
			}
		}
		if node, err = e.create(ctx, tx, doc); err != nil {
			return err
		}
		if existing != nil {
			_, err = e.settle(ctx, tx, existing.Name)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("graphsync: modify %s: %w", path, err)
	}

	kind := ChangeModified
	if !existed {
		e.outOfSync(ctx, "modify", path, false)
		kind = ChangeCreated
	}
	e.logger.Info("graphsync: document updated", slog.String("path", path), slog.Int("links", len(doc.Links)))
	e.notify(Change{Kind: kind, Path: path, Node: node})
	return node, nil
}

// create persists doc, promotes a same-name Placeholder and connects every
// outgoing link. An existing document at the same path is replaced first.
func (e *Engine) create(ctx context.Context, tx graphstore.Tx, doc *models.Document) (*models.Node, error) {
	existing, err := lookupDocument(ctx, tx, doc.Path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		e.logger.Warn("graphsync: create for existing document, replacing",
			slog.String("path", doc.Path),
			slog.String("error", apperr.ErrDuplicateCreate.Error()))
		if _, err := e.delete(ctx, tx, existing); err != nil {
			return nil, err
		}
	}

	node, err := tx.CreateDocument(ctx, doc)
	if err != nil {
		return nil, err
	}

	placeholder, err := tx.PlaceholderByName(ctx, node.Name)
	switch {
	case err == nil:
		moved, err := tx.RepointIncoming(ctx, placeholder.ID, node.ID)
		if err != nil {
			return nil, err
		}
		if err := tx.DeleteNode(ctx, placeholder.ID); err != nil {
			return nil, err
		}
		e.logger.Info("graphsync: placeholder promoted",
			slog.String("name", placeholder.Name),
			slog.String("path", node.Path),
			slog.Int("edges", moved))
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	for _, link := range doc.Links {
		if err := e.connect(ctx, tx, node, link); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// delete removes a document. With incoming edges from other nodes it is
// demoted: a Placeholder of the same name takes over those edges and is
// returned. Placeholders that lose their last edge are reaped.
func (e *Engine) delete(ctx context.Context, tx graphstore.Tx, doc *models.Node) (*models.Node, error) {
	incoming, err := tx.Incoming(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	outgoing, err := tx.Outgoing(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	referenced := false
	for _, edge := range incoming {
		if !edge.IsSelfLink() {
			referenced = true
			break
		}
	}

	var placeholder *models.Node
	if referenced {
		placeholder, err = tx.PlaceholderByName(ctx, doc.Name)
		if errors.Is(err, apperr.ErrNotFound) {
			placeholder, err = tx.CreatePlaceholder(ctx, doc.Name)
		}
		if err != nil {
			return nil, err
		}
		if _, err := tx.RepointIncoming(ctx, doc.ID, placeholder.ID); err != nil {
			return nil, err
		}
	}

	if err := tx.DeleteNode(ctx, doc.ID); err != nil {
		return nil, err
	}
	if _, err := e.reaper.ReapAll(ctx, tx, formerTargets(outgoing, doc.ID)); err != nil {
		return nil, err
	}
	return placeholder, nil
}

// settle restores the identity invariant for name after a transition that
// left a Placeholder behind. If Documents with that name still exist the
// Placeholder is merged into the only one, or dropped with its edges when
// several compete. It returns the Placeholder if it survives.
func (e *Engine) settle(ctx context.Context, tx graphstore.Tx, name string) (*models.Node, error) {
	placeholder, err := tx.PlaceholderByName(ctx, name)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	nodes, err := tx.NodesByName(ctx, name)
	if err != nil {
		return nil, err
	}
	var docs []models.Node
	for _, n := range nodes {
		if n.IsDocument() {
			docs = append(docs, n)
		}
	}

	switch len(docs) {
	case 0:
		return placeholder, nil
	case 1:
		moved, err := tx.RepointIncoming(ctx, placeholder.ID, docs[0].ID)
		if err != nil {
			return nil, err
		}
		e.logger.Info("graphsync: placeholder merged into remaining document",
			slog.String("name", name),
			slog.String("path", docs[0].Path),
			slog.Int("edges", moved))
	default:
		incoming, err := tx.Incoming(ctx, placeholder.ID)
		if err != nil {
			return nil, err
		}
		for _, edge := range incoming {
			source, err := tx.Node(ctx, edge.SourceID)
			if err != nil {
				return nil, err
			}
			e.logAmbiguous(source.Label(), edge.Link.Target, docs)
		}
		if _, err := tx.DeleteIncoming(ctx, placeholder.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.DeleteNode(ctx, placeholder.ID); err != nil {
		return nil, err
	}
	return nil, nil
}

// connect resolves link and adds the mentions edge from source.
func (e *Engine) connect(ctx context.Context, tx graphstore.Tx, source *models.Node, link models.Link) error {
	res, err := e.resolver.Resolve(ctx, tx, source, link, e.vault.Root())
	if err != nil {
		return err
	}

	switch res.Kind {
	case ExactPathMatch, NameMatch:
		_, err = tx.Connect(ctx, source.ID, res.Node.ID, link)
		return err
	case NotFound:
		name := link.TargetName()
		if name == "" {
			e.logger.Warn("graphsync: link without a usable target skipped",
				slog.String("source", source.Path), slog.String("target", link.Target))
			return nil
		}
		placeholder, err := tx.CreatePlaceholder(ctx, name)
		if err != nil {
			return err
		}
		_, err = tx.Connect(ctx, source.ID, placeholder.ID, link)
		return err
	case Ambiguous:
		e.logAmbiguous(source.Path, link.Target, res.Candidates)
		return nil
	default:
		return fmt.Errorf("graphsync: unexpected resolution %s", res.Kind)
	}
}

func (e *Engine) logAmbiguous(source, target string, candidates []models.Node) {
	labels := make([]string, 0, len(candidates))
	for _, c := range candidates {
		labels = append(labels, c.Label())
	}
	err := &apperr.AmbiguousLinkError{Source: source, Target: target, Candidates: labels}
	e.logger.Error("graphsync: ambiguous link target, edge skipped",
		slog.String("source", source),
		slog.String("target", target),
		slog.Any("candidates", labels),
		slog.String("error", err.Error()))
}

// outOfSync logs an event for a path the graph does not know and, for
// deletes and moves, optionally reconciles the whole vault.
func (e *Engine) outOfSync(ctx context.Context, op, path string, sweep bool) {
	err := &apperr.OutOfSyncError{Op: op, Path: path}
	e.logger.Error("graphsync: graph out of sync with vault",
		slog.String("op", op),
		slog.String("path", path),
		slog.String("error", err.Error()))

	if !sweep || !e.reconcileOnOutOfSync {
		return
	}
	if _, rerr := e.reconcile(ctx); rerr != nil {
		e.logger.Error("graphsync: reconcile after out-of-sync failed", slog.String("error", rerr.Error()))
	}
}

func (e *Engine) notify(c Change) {
	if e.onChange != nil {
		e.onChange(c)
	}
}

// lookupDocument returns nil without error when no document exists at path.
func lookupDocument(ctx context.Context, tx graphstore.Tx, path string) (*models.Node, error) {
	n, err := tx.DocumentByPath(ctx, path)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return n, err
}

func formerTargets(edges []models.Edge, self string) []string {
	seen := make(map[string]struct{}, len(edges))
	var out []string
	for _, edge := range edges {
		if edge.TargetID == self {
			continue
		}
		if _, ok := seen[edge.TargetID]; ok {
			continue
		}
		seen[edge.TargetID] = struct{}{}
		out = append(out, edge.TargetID)
	}
	return out
}
