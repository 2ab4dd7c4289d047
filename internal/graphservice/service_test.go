package graphservice

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/graphstore"
	"github.com/starford/notegraph/internal/graphsync"
	"github.com/starford/notegraph/internal/loader"
	"github.com/starford/notegraph/internal/testutil"
)

// keywordEmbedder maps text onto two axes: mentions of "cat" and of "rocket".
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		t = strings.ToLower(t)
		out[i] = []float32{float32(strings.Count(t, "cat")) + 0.01, float32(strings.Count(t, "rocket")) + 0.01}
	}
	return out, nil
}

func newTestService(t *testing.T, files map[string]string) *Service {
	t.Helper()
	store := testutil.TestStore(t)
	vault := testutil.TestVault(t)
	for rel, content := range files {
		testutil.WriteFile(t, vault, rel, content)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ld := loader.New(vault, loader.WithEmbedder(keywordEmbedder{}), loader.WithLogger(logger))
	engine := graphsync.New(store, ld, vault, graphsync.WithLogger(logger))
	_, err := engine.Backfill(context.Background())
	require.NoError(t, err)

	return New(store, vault.Root(), WithEmbedder(keywordEmbedder{}))
}

var fixture = map[string]string{
	"Cats.md":          "---\ntags: [pets]\n---\n# Cats\n\nThe cat sat. Another cat napped. See [[Rockets]] and [[Dogs]].\n",
	"space/Rockets.md": "# Rockets\n\nA rocket launch. Rocket fuel. Back to [[Cats|felines]].\n",
	"Notes.md":         "Ideas about [[Dogs]].\n",
}

func TestDocument(t *testing.T) {
	svc := newTestService(t, fixture)
	ctx := context.Background()

	d, err := svc.Document(ctx, "Cats")
	require.NoError(t, err)
	assert.Equal(t, svc.AbsPath("Cats.md"), d.Path)
	assert.Equal(t, "Cats", d.Title)
	assert.Equal(t, []string{"pets"}, d.Tags)
	assert.NotEmpty(t, d.Chunks)
	require.Len(t, d.Links, 2)
	assert.Len(t, d.Backlinks, 1)
	assert.Equal(t, "felines", d.Backlinks[0].Link.Display)

	_, err = svc.Document(ctx, "missing.md")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestBacklinksForPlaceholder(t *testing.T) {
	svc := newTestService(t, fixture)
	bl, err := svc.Backlinks(context.Background(), "Dogs")
	require.NoError(t, err)
	var sources []string
	for _, b := range bl {
		sources = append(sources, b.Source)
	}
	assert.ElementsMatch(t, []string{svc.AbsPath("Cats.md"), svc.AbsPath("Notes.md")}, sources)
}

func TestPlaceholdersAndStats(t *testing.T) {
	svc := newTestService(t, fixture)
	ctx := context.Background()

	ps, err := svc.Placeholders(ctx)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "Dogs", ps[0].Name)
	assert.Len(t, ps[0].ReferencedBy, 2)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Documents)
	assert.Equal(t, 1, st.Placeholders)
	assert.Equal(t, 4, st.Edges)
	assert.Positive(t, st.Chunks)
}

func TestNodesByName(t *testing.T) {
	svc := newTestService(t, fixture)
	nodes, err := svc.NodesByName(context.Background(), "rockets")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, svc.AbsPath("space/Rockets.md"), nodes[0].Path)
}

func TestSimilar(t *testing.T) {
	svc := newTestService(t, fixture)
	res, err := svc.Similar(context.Background(), "rocket", 1, graphstore.TargetDocuments)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, svc.AbsPath("space/Rockets.md"), res[0].Path)

	plain := New(svc.store, svc.Root())
	_, err = plain.Similar(context.Background(), "rocket", 1, graphstore.TargetDocuments)
	assert.ErrorIs(t, err, ErrEmbeddingDisabled)
}

func TestGraphNeverNil(t *testing.T) {
	svc := newTestService(t, nil)
	g, err := svc.Graph(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, g.Nodes)
	assert.NotNil(t, g.Edges)
}

func TestAbsPath(t *testing.T) {
	svc := New(nil, "/vault")
	assert.Equal(t, "/vault/a/b.md", svc.AbsPath("a/b"))
	assert.Equal(t, "/vault/a/b.md", svc.AbsPath("/vault/a/b.md"))
	assert.Equal(t, "/vault/c.MD", svc.AbsPath("c.MD"))
}
