// Package models defines the graph domain types for notegraph.
package models

import (
	"path/filepath"
	"strings"
	"time"
)

// NodeKind tags which variant a Node holds. A logical entity is at most one
// variant at a time.
type NodeKind string

const (
	// KindDocument is a node backed by an on-disk document.
	KindDocument NodeKind = "document"
	// KindPlaceholder stands in for a link target with no document yet.
	KindPlaceholder NodeKind = "placeholder"
)

// Node is a graph vertex. Path, Title, Checksum and ModifiedAt are only set
// for KindDocument.
type Node struct {
	ID         string    `json:"id"`
	Kind       NodeKind  `json:"kind"`
	Name       string    `json:"name"`
	Path       string    `json:"path,omitempty"`
	Title      string    `json:"title,omitempty"`
	Checksum   string    `json:"checksum,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitempty"`
}

// IsDocument reports whether n is the Document variant.
func (n *Node) IsDocument() bool { return n != nil && n.Kind == KindDocument }

// IsPlaceholder reports whether n is the Placeholder variant.
func (n *Node) IsPlaceholder() bool { return n != nil && n.Kind == KindPlaceholder }

// Label returns the identifier used in logs: the path for documents, the name
// for placeholders.
func (n *Node) Label() string {
	switch n.Kind {
	case KindDocument:
		return n.Path
	default:
		return n.Name
	}
}

// Edge is a "mentions" edge between two nodes.
type Edge struct {
	ID       string `json:"id"`
	SourceID string `json:"source"`
	TargetID string `json:"target"`
	Link     Link   `json:"link"`
}

// IsSelfLink reports whether the edge starts and ends at the same node.
func (e Edge) IsSelfLink() bool { return e.SourceID == e.TargetID }

// DocumentSummary is the reconciliation view of a stored document.
type DocumentSummary struct {
	ID       string
	Path     string
	Checksum string
}

// DeriveName returns the derived name of a document path: the file name
// without its extension.
func DeriveName(path string) string {
	base := filepath.Base(filepath.ToSlash(path))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// NameKey normalises a derived name for case-insensitive identity checks.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
