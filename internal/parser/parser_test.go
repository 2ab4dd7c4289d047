package parser

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/starford/notegraph/internal/models"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\ntitle: Hello\ntags:\n  - go\n  - notegraph\n---\n# Hello\nBody text.\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Title != "Hello" {
		t.Errorf("title = %q, want %q", r.Title, "Hello")
	}
	if len(r.Tags) < 2 || r.Tags[0] != "go" || r.Tags[1] != "notegraph" {
		t.Errorf("tags = %v, want [go notegraph]", r.Tags)
	}
	if r.Body != "# Hello\nBody text.\n" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	input := []byte("# Just a heading\nSome text.\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter, got %v", r.Frontmatter)
	}
	if r.Title != "Just a heading" {
		t.Errorf("title = %q, want %q", r.Title, "Just a heading")
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	input := []byte("---\n: invalid: yaml: {{{\n---\nBody\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Invalid YAML falls back to treating everything as body.
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter on invalid YAML")
	}
}

func TestParse_InvalidUTF8(t *testing.T) {
	_, err := Parse([]byte{0xff, 0xfe, 'a'})
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("err = %v, want ErrInvalidEncoding", err)
	}
}

func TestParse_PropertyAliases(t *testing.T) {
	input := []byte("---\ntag: project/alpha, draft\nalias: Alpha\nid: 42\nstatus: open\n---\nbody\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantTags := []string{"project/alpha", "project", "draft"}
	if !reflect.DeepEqual(r.Tags, wantTags) {
		t.Errorf("tags = %v, want %v", r.Tags, wantTags)
	}
	if !reflect.DeepEqual(r.Aliases, []string{"Alpha"}) {
		t.Errorf("aliases = %v", r.Aliases)
	}
	if r.Properties["id"] != "OBS_42" {
		t.Errorf("id = %v, want OBS_42", r.Properties["id"])
	}
	if r.Properties["status"] != "open" {
		t.Errorf("unknown property not passed through: %v", r.Properties["status"])
	}
	if _, ok := r.Properties["tag"]; ok {
		t.Error("alias key should be renamed to its canonical form")
	}
}

func TestParse_RejectedPropertyKeptVerbatim(t *testing.T) {
	input := []byte("---\ntags:\n  - ok\n  - 7\n---\nbody\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.Properties["tags"].([]any); !ok {
		t.Errorf("tags = %#v, want raw YAML sequence", r.Properties["tags"])
	}
}

func TestExtractLinks_Occurrences(t *testing.T) {
	body := "See [[Note A]] and [[Note B|alias]].\nAlso [[Note A]] again."
	links := extractLinks(body)
	if len(links) != 3 {
		t.Fatalf("len(links) = %d, want 3", len(links))
	}
	if links[0].Target != "Note A" || links[1].Target != "Note B" || links[2].Target != "Note A" {
		t.Errorf("links = %v", links)
	}
	if links[1].Display != "alias" {
		t.Errorf("display = %q, want alias", links[1].Display)
	}
}

func TestExtractLinks_EmptyTarget(t *testing.T) {
	links := extractLinks("see [[ ]] and [[|alias]]")
	if len(links) != 0 {
		t.Errorf("expected no links, got %v", links)
	}
}

func TestParseWikilink(t *testing.T) {
	tests := []struct {
		in   string
		want models.Link
	}{
		{"Note", models.Link{Format: models.FormatDirect, Target: "Note"}},
		{"dir/Note.md|Shown", models.Link{Format: models.FormatDirect, Target: "dir/Note.md", Display: "Shown"}},
		{"Note#H1#H2", models.Link{Format: models.FormatSection, Target: "Note", Headers: []string{"H1", "H2"}}},
		{"Note#H1^abc|x", models.Link{Format: models.FormatBlock, Target: "Note", Headers: []string{"H1"}, Block: "abc", Display: "x"}},
		{"#Local", models.Link{Format: models.FormatSection, Headers: []string{"Local"}}},
		{`.\sub\Note`, models.Link{Format: models.FormatDirect, Target: "sub/Note"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseWikilink(tt.in)
			if !ok {
				t.Fatal("link rejected")
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExtractInlineTags(t *testing.T) {
	body := "# Heading\nSome text #Beta and #alpha/child again #123 and mid#word."
	got := extractInlineTags(body)
	want := []string{"beta", "alpha/child", "alpha"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tags = %v, want %v", got, want)
	}
}

func TestMergeTags(t *testing.T) {
	got := mergeTags([]string{"alpha"}, []string{"beta", "alpha"})
	if !reflect.DeepEqual(got, []string{"alpha", "beta"}) {
		t.Errorf("tags = %v, want [alpha beta]", got)
	}
}

func TestDeriveTitle_FrontmatterOverH1(t *testing.T) {
	props := map[string]any{"title": "FM Title"}
	body := "# H1 Title\ntext"
	title := deriveTitle(props, body)
	if title != "FM Title" {
		t.Errorf("title = %q, want %q", title, "FM Title")
	}
}

func TestDeriveTitle_H1Fallback(t *testing.T) {
	title := deriveTitle(nil, "some text\n# My Heading\nmore")
	if title != "My Heading" {
		t.Errorf("title = %q, want %q", title, "My Heading")
	}
}

func TestChunker_SplitsAtHeadings(t *testing.T) {
	body := "intro line\n\n# First\nalpha\n\n## Second\nbeta\n"
	chunks := NewChunker(0).Split(body)
	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3: %+v", len(chunks), chunks)
	}
	if chunks[0].Content != "intro line" {
		t.Errorf("chunk 1 = %q", chunks[0].Content)
	}
	if !strings.HasPrefix(chunks[1].Content, "# First") || !strings.HasPrefix(chunks[2].Content, "## Second") {
		t.Errorf("unexpected chunks: %+v", chunks)
	}
	for i, c := range chunks {
		if c.Ordinal != i {
			t.Errorf("chunk %d ordinal = %d", i, c.Ordinal)
		}
	}
}

func TestChunker_KeepsWikilinksWhole(t *testing.T) {
	body := "One sentence here. Link to [[Some. Dotted! Name]] inside. Another sentence follows."
	chunks := NewChunker(30).Split(body)
	if len(chunks) < 2 {
		t.Fatalf("expected the section to be split, got %+v", chunks)
	}
	found := false
	for _, c := range chunks {
		if strings.Contains(c.Content, "[[Some. Dotted! Name]]") {
			found = true
		}
	}
	if !found {
		t.Errorf("wikilink was split across chunks: %+v", chunks)
	}
}

func TestChunker_EmptyBody(t *testing.T) {
	if chunks := NewChunker(0).Split("  \n\n"); len(chunks) != 0 {
		t.Errorf("chunks = %+v, want none", chunks)
	}
}

func TestChunkName(t *testing.T) {
	got := ChunkName(2, "# Project goals, for the Q3 planning cycle\nmore")
	if got != "2_Project goals for the Q3..." {
		t.Errorf("name = %q", got)
	}
	long := ChunkName(1, "Supercalifragilisticexpialidocious antidisestablishmentarianism")
	if long != "1_Supercalifragilisticexpialidocio..." {
		t.Errorf("name = %q, want label truncated to 32 runes", long)
	}
}
