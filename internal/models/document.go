package models

import (
	"path"
	"strings"
	"time"
)

// LinkFormat classifies a link occurrence.
type LinkFormat string

const (
	FormatDirect  LinkFormat = "direct"
	FormatSection LinkFormat = "section"
	FormatBlock   LinkFormat = "block"
)

// Link is one outgoing link occurrence as produced by the parser.
type Link struct {
	Format  LinkFormat `json:"format"`
	Target  string     `json:"target"`
	Headers []string   `json:"headers,omitempty"`
	Block   string     `json:"block,omitempty"`
	Display string     `json:"display,omitempty"`
}

// TargetName is the stem of the target's final path component.
func (l Link) TargetName() string {
	if l.Target == "" {
		return ""
	}
	base := path.Base(strings.ReplaceAll(l.Target, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

// IsSelfLink reports whether the link points into its own document
// (e.g. [[#Header]]).
func (l Link) IsSelfLink() bool { return strings.TrimSpace(l.Target) == "" }

// Chunk is an ordered sub-segment of a document's content.
type Chunk struct {
	ID        string    `json:"id,omitempty"`
	Ordinal   int       `json:"ordinal"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	// NextID is the following chunk in the document's chain; empty for the last.
	NextID string `json:"next_id,omitempty"`
}

// Document is the parsed, embedded form of a file that the engine persists.
type Document struct {
	Path       string
	Name       string
	Title      string
	Content    string
	Checksum   string
	Tags       []string
	Aliases    []string
	Properties map[string]any
	ModifiedAt time.Time
	Chunks     []Chunk
	Links      []Link
	Embedding  []float32
}
