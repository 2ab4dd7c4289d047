// Package apperr holds the sentinel and typed errors shared across packages.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// ErrDuplicateCreate marks a create event for a path that already has a
	// document. The engine recovers by replacing the document.
	ErrDuplicateCreate = errors.New("duplicate create")
	// ErrOutOfSync marks an event referencing a path the graph does not know.
	ErrOutOfSync = errors.New("graph out of sync")
	// ErrAmbiguousLinkTarget marks a bare link matching more than one node.
	ErrAmbiguousLinkTarget = errors.New("ambiguous link target")
	// ErrParse marks a document that could not be read or parsed.
	ErrParse = errors.New("parse failure")
)

// AmbiguousLinkError describes a link that could not be resolved because
// several nodes share the target's name.
type AmbiguousLinkError struct {
	Source     string
	Target     string
	Candidates []string
}

func (e *AmbiguousLinkError) Error() string {
	return fmt.Sprintf("link from %s to %q matches %d candidates (%s); qualify the link with a path",
		e.Source, e.Target, len(e.Candidates), strings.Join(e.Candidates, ", "))
}

func (e *AmbiguousLinkError) Is(target error) bool { return target == ErrAmbiguousLinkTarget }

// ParseError wraps a collaborator failure for a single document.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.Path, e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// OutOfSyncError names the event and path that referenced an unknown document.
type OutOfSyncError struct {
	Op   string
	Path string
}

func (e *OutOfSyncError) Error() string {
	return fmt.Sprintf("%s event for %s which is not in the graph", e.Op, e.Path)
}

func (e *OutOfSyncError) Is(target error) bool { return target == ErrOutOfSync }
