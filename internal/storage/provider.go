// Package storage defines the vault file-system abstraction.
package storage

import "time"

// FileInfo describes one document file in the vault.
type FileInfo struct {
	// Path is relative to the vault root, slash separated.
	Path       string
	Checksum   string
	ModifiedAt time.Time
}

// Provider is the read-only view of the vault the graph is built from.
type Provider interface {
	// Root returns the absolute vault root.
	Root() string
	// List returns metadata for every document file under dir (relative to vault root).
	List(dir string) ([]FileInfo, error)
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
	// Stat returns metadata for the file at path (relative to vault root).
	Stat(path string) (FileInfo, error)
}
