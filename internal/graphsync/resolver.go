package graphsync

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/graphstore"
	"github.com/starford/notegraph/internal/models"
)

// ResolutionKind is the outcome of resolving one link target.
type ResolutionKind int

const (
	NotFound ResolutionKind = iota
	ExactPathMatch
	NameMatch
	Ambiguous
)

func (k ResolutionKind) String() string {
	switch k {
	case ExactPathMatch:
		return "exact_path"
	case NameMatch:
		return "name"
	case Ambiguous:
		return "ambiguous"
	default:
		return "not_found"
	}
}

// Resolution is the result of Resolve. Node is set for ExactPathMatch and
// NameMatch; Candidates for Ambiguous.
type Resolution struct {
	Kind       ResolutionKind
	Node       *models.Node
	Candidates []models.Node
}

// Resolver maps link targets to nodes.
type Resolver struct {
	ext string
}

// NewResolver creates a Resolver. ext is the document extension tried for
// targets written without one.
func NewResolver(ext string) *Resolver {
	if ext == "" {
		ext = ".md"
	}
	return &Resolver{ext: ext}
}

// Resolve finds the node link points at. A Document at root/target wins;
// otherwise nodes are matched on the target's name, case-insensitively.
// Links without a target (e.g. [[#Heading]]) resolve to source itself.
func (r *Resolver) Resolve(ctx context.Context, tx graphstore.Tx, source *models.Node, link models.Link, root string) (Resolution, error) {
	if link.IsSelfLink() {
		return Resolution{Kind: ExactPathMatch, Node: source}, nil
	}

	for _, p := range r.candidatePaths(root, link.Target) {
		n, err := tx.DocumentByPath(ctx, p)
		if err == nil {
			return Resolution{Kind: ExactPathMatch, Node: n}, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return Resolution{}, err
		}
	}

	name := link.TargetName()
	if name == "" {
		return Resolution{Kind: NotFound}, nil
	}
	nodes, err := tx.NodesByName(ctx, name)
	if err != nil {
		return Resolution{}, err
	}
	switch len(nodes) {
	case 0:
		return Resolution{Kind: NotFound}, nil
	case 1:
		return Resolution{Kind: NameMatch, Node: &nodes[0]}, nil
	default:
		return Resolution{Kind: Ambiguous, Candidates: nodes}, nil
	}
}

func (r *Resolver) candidatePaths(root, target string) []string {
	p := filepath.Join(root, filepath.FromSlash(target))
	if strings.HasSuffix(strings.ToLower(target), strings.ToLower(r.ext)) {
		return []string{p}
	}
	return []string{p, p + r.ext}
}
