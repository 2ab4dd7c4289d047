package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempVault(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir, "")
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

// writeFile creates rel under the vault root with its parent directories.
func writeFile(t *testing.T, s *FS, rel, content string) {
	t.Helper()
	p := filepath.Join(s.Root(), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRead(t *testing.T) {
	s := tempVault(t)
	writeFile(t, s, "a/b/note.md", "# Hello\nWorld\n")
	got, err := s.Read("a/b/note.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "# Hello\nWorld\n" {
		t.Errorf("content mismatch: got %q", got)
	}
	if _, err := s.Read("missing.md"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestList(t *testing.T) {
	s := tempVault(t)
	writeFile(t, s, "a.md", "a")
	writeFile(t, s, "sub/b.md", "b")
	writeFile(t, s, "readme.txt", "not md")

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("len = %d, want 2", len(items))
	}
	for _, it := range items {
		if it.Checksum == "" {
			t.Errorf("%s: empty checksum", it.Path)
		}
	}
}

func TestListSkipsHiddenDirs(t *testing.T) {
	s := tempVault(t)
	writeFile(t, s, "visible.md", "v")
	writeFile(t, s, ".obsidian/workspace.md", "hidden")

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].Path != "visible.md" {
		t.Errorf("items = %+v, want only visible.md", items)
	}
}

func TestListCustomExtension(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFS(dir, ".txt")
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, s, "a.txt", "a")
	writeFile(t, s, "b.md", "b")

	items, _ := s.List("")
	if len(items) != 1 || items[0].Path != "a.txt" {
		t.Errorf("items = %+v, want only a.txt", items)
	}
}

func TestStat(t *testing.T) {
	s := tempVault(t)
	writeFile(t, s, "sub/stat.md", "x")
	info, err := s.Stat("sub/stat.md")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.ModifiedAt.IsZero() {
		t.Error("expected modification time")
	}
	if _, err := s.Stat("missing.md"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRel(t *testing.T) {
	s := tempVault(t)
	rel, err := s.Rel(filepath.Join(s.Root(), "a", "b.md"))
	if err != nil {
		t.Fatalf("Rel: %v", err)
	}
	if rel != "a/b.md" {
		t.Errorf("rel = %q, want a/b.md", rel)
	}
	if _, err := s.Rel(filepath.Join(filepath.Dir(s.Root()), "elsewhere.md")); err == nil {
		t.Error("expected error for path outside root")
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempVault(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if _, err := s.Stat(p); err == nil {
			t.Errorf("expected error for stat of %q", p)
		}
		if _, err := s.List(p); err == nil {
			t.Errorf("expected error for list of %q", p)
		}
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/notegraph-does-not-exist-"+t.Name(), "")
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "notegraph-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name(), "")
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
