package graphsync

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/graphstore"
	"github.com/starford/notegraph/internal/loader"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/storage"
	"github.com/starford/notegraph/internal/testutil"
)

type harness struct {
	t       *testing.T
	ctx     context.Context
	engine  *Engine
	store   graphstore.Store
	vault   *storage.FS
	logs    *bytes.Buffer
	changes []Change
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		ctx:   context.Background(),
		store: testutil.TestStore(t),
		vault: testutil.TestVault(t),
		logs:  &bytes.Buffer{},
	}
	logger := slog.New(slog.NewJSONHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	opts = append([]Option{
		WithLogger(logger),
		WithChangeFunc(func(c Change) { h.changes = append(h.changes, c) }),
	}, opts...)
	h.engine = New(h.store, loader.New(h.vault, loader.WithLogger(logger)), h.vault, opts...)
	return h
}

func (h *harness) write(rel, content string) string {
	return testutil.WriteFile(h.t, h.vault, rel, content)
}

func (h *harness) remove(rel string) string {
	return testutil.RemoveFile(h.t, h.vault, rel)
}

func (h *harness) path(rel string) string {
	return filepath.Join(h.vault.Root(), filepath.FromSlash(rel))
}

func (h *harness) create(rel, content string) *models.Node {
	h.t.Helper()
	n, err := h.engine.OnCreated(h.ctx, h.write(rel, content))
	require.NoError(h.t, err)
	require.NotNil(h.t, n)
	return n
}

func (h *harness) delete(rel string) *models.Node {
	h.t.Helper()
	n, err := h.engine.OnDeleted(h.ctx, h.remove(rel))
	require.NoError(h.t, err)
	return n
}

// snapshot is the whole graph, read in one transaction.
type snapshot struct {
	nodes []models.Node
	edges []models.Edge
}

func (h *harness) snapshot() snapshot {
	h.t.Helper()
	var s snapshot
	err := h.store.View(h.ctx, func(tx graphstore.Tx) error {
		var err error
		if s.nodes, err = tx.Nodes(h.ctx); err != nil {
			return err
		}
		s.edges, err = tx.Edges(h.ctx)
		return err
	})
	require.NoError(h.t, err)
	return s
}

func (s snapshot) byLabel(label string) *models.Node {
	for i := range s.nodes {
		if s.nodes[i].Label() == label {
			return &s.nodes[i]
		}
	}
	return nil
}

func (s snapshot) edgesBetween(from, to *models.Node) int {
	if from == nil || to == nil {
		return 0
	}
	n := 0
	for _, e := range s.edges {
		if e.SourceID == from.ID && e.TargetID == to.ID {
			n++
		}
	}
	return n
}

func (s snapshot) placeholders() []string {
	var out []string
	for _, n := range s.nodes {
		if n.IsPlaceholder() {
			out = append(out, n.Name)
		}
	}
	return out
}

// assertInvariants checks that no placeholder is orphaned, that no
// placeholder shares a name with a document, and that only documents are
// edge sources.
func (h *harness) assertInvariants() {
	h.t.Helper()
	s := h.snapshot()

	byID := make(map[string]models.Node, len(s.nodes))
	docNames := make(map[string]bool)
	for _, n := range s.nodes {
		byID[n.ID] = n
		if n.IsDocument() {
			docNames[models.NameKey(n.Name)] = true
		}
	}
	incoming := make(map[string]int)
	for _, e := range s.edges {
		incoming[e.TargetID]++
		src := byID[e.SourceID]
		assert.True(h.t, src.IsDocument(), "edge source %s must be a document", src.Label())
	}
	for _, n := range s.nodes {
		if !n.IsPlaceholder() {
			continue
		}
		assert.Positive(h.t, incoming[n.ID], "placeholder %q has no incoming edges", n.Name)
		assert.False(h.t, docNames[models.NameKey(n.Name)], "placeholder %q shares its name with a document", n.Name)
	}
}

func TestScenario1_CreateWithUnresolvedLink(t *testing.T) {
	h := newHarness(t)
	a := h.create("A.md", "# A\nSee [[B]].\n")

	assert.True(t, a.IsDocument())
	assert.Equal(t, "A", a.Name)
	assert.Equal(t, h.path("A.md"), a.Path)

	s := h.snapshot()
	require.Len(t, s.nodes, 2)
	b := s.byLabel("B")
	require.NotNil(t, b)
	assert.True(t, b.IsPlaceholder())
	assert.Equal(t, 1, s.edgesBetween(a, b))
	h.assertInvariants()
}

func TestScenario2_CreatePromotesPlaceholder(t *testing.T) {
	h := newHarness(t)
	h.create("A.md", "See [[B]].\n")
	placeholder := h.snapshot().byLabel("B")
	require.NotNil(t, placeholder)

	b := h.create("B.md", "# B\n")

	s := h.snapshot()
	assert.Empty(t, s.placeholders())
	require.Len(t, s.nodes, 2)
	assert.Nil(t, s.byLabel("B"), "placeholder must be gone")
	assert.Equal(t, 1, s.edgesBetween(s.byLabel(h.path("A.md")), b))
	assert.NotEqual(t, placeholder.ID, b.ID)
	h.assertInvariants()
}

func TestScenario3_DeleteUnreferencedDocument(t *testing.T) {
	h := newHarness(t)
	a := h.create("A.md", "# A\n\nFirst paragraph.\n\n## More\n\nSee [[B]].\n")
	b := h.create("B.md", "# B\n")

	var chunks []models.Chunk
	require.NoError(t, h.store.View(h.ctx, func(tx graphstore.Tx) error {
		var err error
		chunks, err = tx.Chunks(h.ctx, a.ID)
		return err
	}))
	require.NotEmpty(t, chunks)

	demoted := h.delete("A.md")
	assert.Nil(t, demoted)

	s := h.snapshot()
	require.Len(t, s.nodes, 1)
	assert.Equal(t, b.ID, s.nodes[0].ID, "documents are never reaped")
	assert.Empty(t, s.edges)

	err := h.store.View(h.ctx, func(tx graphstore.Tx) error {
		_, err := tx.Chunks(h.ctx, a.ID)
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	h.assertInvariants()
}

func TestScenario4_DeleteReferencedDocumentDemotes(t *testing.T) {
	h := newHarness(t)
	h.create("A.md", "# A\n")
	c := h.create("C.md", "Back to [[A]].\n")

	placeholder := h.delete("A.md")
	require.NotNil(t, placeholder)
	assert.True(t, placeholder.IsPlaceholder())
	assert.Equal(t, "A", placeholder.Name)

	s := h.snapshot()
	require.Len(t, s.nodes, 2)
	assert.Nil(t, s.byLabel(h.path("A.md")))
	assert.Equal(t, 1, s.edgesBetween(c, s.byLabel("A")))
	assert.Equal(t, ChangeDemoted, h.changes[len(h.changes)-1].Kind)
	h.assertInvariants()
}

func TestScenario6_AmbiguousLinkSkipsEdge(t *testing.T) {
	h := newHarness(t)
	h.create("x/Intro.md", "# Intro X\n")
	h.create("y/Intro.md", "# Intro Y\n")
	a := h.create("A.md", "Start at [[Intro]].\n")

	s := h.snapshot()
	for _, e := range s.edges {
		assert.NotEqual(t, a.ID, e.SourceID, "no edge may be created for an ambiguous link")
	}
	assert.Empty(t, s.placeholders())

	logs := h.logs.String()
	assert.Contains(t, logs, "ambiguous link target")
	assert.Contains(t, logs, h.path("x/Intro.md"))
	assert.Contains(t, logs, h.path("y/Intro.md"))
	h.assertInvariants()
}

func TestRoundTrip(t *testing.T) {
	h := newHarness(t)
	a := h.create("A.md", "[[B]]\n")
	b := h.create("B.md", "plain\n")

	s := h.snapshot()
	assert.Equal(t, 1, s.edgesBetween(a, b))
	assert.Empty(t, s.placeholders())

	// A is unreferenced, so B loses its only referrer but stays a document.
	h.delete("A.md")
	h.delete("B.md")

	s = h.snapshot()
	assert.Empty(t, s.nodes)
	assert.Empty(t, s.edges)
}

func TestDeleteAbsentPathIsNoOp(t *testing.T) {
	h := newHarness(t)
	h.create("A.md", "[[B]]\n")
	before := h.snapshot()

	n, err := h.engine.OnDeleted(h.ctx, h.path("missing.md"))
	require.NoError(t, err)
	assert.Nil(t, n)

	assert.Equal(t, before, h.snapshot())
	assert.Contains(t, h.logs.String(), "graph out of sync with vault")
	assert.Contains(t, h.logs.String(), `"level":"ERROR"`)
}

func TestDeleteAbsentPathReconciles(t *testing.T) {
	h := newHarness(t, WithReconcileOnOutOfSync(true))
	// Written to disk but never announced to the engine.
	h.write("Lost.md", "# Lost\n")

	_, err := h.engine.OnDeleted(h.ctx, h.path("missing.md"))
	require.NoError(t, err)

	s := h.snapshot()
	require.NotNil(t, s.byLabel(h.path("Lost.md")))
}

func TestDuplicateCreateReplaces(t *testing.T) {
	h := newHarness(t)
	first := h.create("A.md", "[[B]] and [[C]]\n")
	second := h.create("A.md", "only [[C]] now\n")

	s := h.snapshot()
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, s.nodes, 2)
	assert.Equal(t, []string{"C"}, s.placeholders(), "B lost its only link and is reaped")
	assert.Equal(t, 1, s.edgesBetween(second, s.byLabel("C")))
	assert.Contains(t, h.logs.String(), apperr.ErrDuplicateCreate.Error())
	h.assertInvariants()
}

func TestModifyRelinks(t *testing.T) {
	h := newHarness(t)
	h.create("A.md", "# A\n")
	h.create("C.md", "[[A]] [[Old]]\n")

	h.write("C.md", "[[A]] [[New]]\n")
	c, err := h.engine.OnModified(h.ctx, h.path("C.md"))
	require.NoError(t, err)

	s := h.snapshot()
	assert.Equal(t, []string{"New"}, s.placeholders())
	assert.Equal(t, 1, s.edgesBetween(c, s.byLabel(h.path("A.md"))))
	h.assertInvariants()
}

func TestModifyKeepsIncomingEdges(t *testing.T) {
	h := newHarness(t)
	h.create("A.md", "# A v1\n")
	c := h.create("C.md", "[[A]] and [[A|again]]\n")

	h.write("A.md", "# A v2\n")
	a, err := h.engine.OnModified(h.ctx, h.path("A.md"))
	require.NoError(t, err)
	assert.Equal(t, "A v2", a.Title)

	s := h.snapshot()
	assert.Empty(t, s.placeholders())
	assert.Equal(t, 2, s.edgesBetween(c, a))
	assert.Equal(t, ChangeModified, h.changes[len(h.changes)-1].Kind)
	h.assertInvariants()
}

func TestModifyAbsentPathCreates(t *testing.T) {
	h := newHarness(t)
	n, err := h.engine.OnModified(h.ctx, h.write("A.md", "# A\n"))
	require.NoError(t, err)
	require.NotNil(t, n)

	assert.Contains(t, h.logs.String(), "graph out of sync with vault")
	assert.Equal(t, ChangeCreated, h.changes[len(h.changes)-1].Kind)
	require.Len(t, h.snapshot().nodes, 1)
}

func TestMoveKeepsNameAndEdges(t *testing.T) {
	h := newHarness(t)
	h.create("a/Note.md", "# Note\n")
	c := h.create("C.md", "[[Note]]\n")

	dest := h.path("b/Note.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0o755))
	require.NoError(t, os.Rename(h.path("a/Note.md"), dest))

	moved, err := h.engine.OnMoved(h.ctx, h.path("a/Note.md"), dest)
	require.NoError(t, err)
	assert.Equal(t, dest, moved.Path)

	s := h.snapshot()
	assert.Empty(t, s.placeholders())
	assert.Equal(t, 1, s.edgesBetween(c, moved))
	last := h.changes[len(h.changes)-1]
	assert.Equal(t, ChangeMoved, last.Kind)
	assert.Equal(t, dest, last.DestPath)
	h.assertInvariants()
}

func TestMoveRenameDemotes(t *testing.T) {
	h := newHarness(t)
	h.create("Old.md", "# Old\n")
	c := h.create("C.md", "[[Old]]\n")

	require.NoError(t, os.Rename(h.path("Old.md"), h.path("New.md")))
	n, err := h.engine.OnMoved(h.ctx, h.path("Old.md"), h.path("New.md"))
	require.NoError(t, err)
	assert.Equal(t, "New", n.Name)

	s := h.snapshot()
	assert.Equal(t, []string{"Old"}, s.placeholders())
	assert.Equal(t, 1, s.edgesBetween(c, s.byLabel("Old")))
	h.assertInvariants()
}

func TestMoveOntoLinkedPlaceholderPromotes(t *testing.T) {
	h := newHarness(t)
	h.create("Draft.md", "# Draft\n")
	c := h.create("C.md", "[[Final]]\n")

	require.NoError(t, os.Rename(h.path("Draft.md"), h.path("Final.md")))
	n, err := h.engine.OnMoved(h.ctx, h.path("Draft.md"), h.path("Final.md"))
	require.NoError(t, err)

	s := h.snapshot()
	assert.Empty(t, s.placeholders())
	assert.Equal(t, 1, s.edgesBetween(c, n))
}

func TestMoveMissingSourceCreatesDest(t *testing.T) {
	h := newHarness(t)
	n, err := h.engine.OnMoved(h.ctx, h.path("ghost.md"), h.write("real.md", "# Real\n"))
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Contains(t, h.logs.String(), "graph out of sync with vault")
	require.Len(t, h.snapshot().nodes, 1)
}

func TestMoveSamePathIsModify(t *testing.T) {
	h := newHarness(t)
	h.create("A.md", "# A\n")
	h.write("A.md", "# A2\n")
	n, err := h.engine.OnMoved(h.ctx, h.path("A.md"), h.path("A.md"))
	require.NoError(t, err)
	assert.Equal(t, "A2", n.Title)
	assert.Equal(t, ChangeModified, h.changes[len(h.changes)-1].Kind)
}

func TestDeleteWithSameNameDocumentRepoints(t *testing.T) {
	h := newHarness(t)
	x := h.create("x/Intro.md", "# X\n")
	c := h.create("C.md", "[[x/Intro]]\n")
	y := h.create("y/Intro.md", "# Y\n")
	require.Equal(t, 1, h.snapshot().edgesBetween(c, x))

	n := h.delete("x/Intro.md")
	assert.Nil(t, n, "no placeholder may coexist with document y/Intro")

	s := h.snapshot()
	assert.Empty(t, s.placeholders())
	assert.Equal(t, 1, s.edgesBetween(c, y))
	h.assertInvariants()
}

func TestDeleteWithSeveralSameNameDocumentsDropsEdges(t *testing.T) {
	h := newHarness(t)
	h.create("x/Intro.md", "# X\n")
	h.create("y/Intro.md", "# Y\n")
	h.create("z/Intro.md", "# Z\n")
	c := h.create("C.md", "[[x/Intro]]\n")

	n := h.delete("x/Intro.md")
	assert.Nil(t, n)

	s := h.snapshot()
	assert.Empty(t, s.placeholders())
	for _, e := range s.edges {
		assert.NotEqual(t, c.ID, e.SourceID)
	}
	assert.Contains(t, h.logs.String(), h.path("y/Intro.md"))
	assert.Contains(t, h.logs.String(), h.path("z/Intro.md"))
	h.assertInvariants()
}

func TestPathQualifiedLinkWinsOverAmbiguousName(t *testing.T) {
	h := newHarness(t)
	h.create("x/Intro.md", "# X\n")
	y := h.create("y/Intro.md", "# Y\n")
	a := h.create("A.md", "[[y/Intro]] [[y/Intro.md#Part]]\n")

	assert.Equal(t, 2, h.snapshot().edgesBetween(a, y))
}

func TestNameMatchIsCaseInsensitive(t *testing.T) {
	h := newHarness(t)
	h.create("A.md", "[[readme]]\n")
	r := h.create("docs/README.md", "# Readme\n")

	s := h.snapshot()
	assert.Empty(t, s.placeholders())
	assert.Equal(t, 1, s.edgesBetween(s.byLabel(h.path("A.md")), r))
}

func TestSelfLinkDoesNotKeepDocumentAlive(t *testing.T) {
	h := newHarness(t)
	a := h.create("A.md", "# A\n\n## Part\n\nSee [[#Part]] and [[A]].\n")
	assert.Equal(t, 2, h.snapshot().edgesBetween(a, a))

	assert.Nil(t, h.delete("A.md"))
	assert.Empty(t, h.snapshot().nodes)
}

func TestEveryOccurrenceIsAnEdge(t *testing.T) {
	h := newHarness(t)
	a := h.create("A.md", "[[B]] then [[B|again]] and [[B#Sec]]\n")
	s := h.snapshot()
	assert.Equal(t, 3, s.edgesBetween(a, s.byLabel("B")))

	var formats []models.LinkFormat
	for _, e := range s.edges {
		formats = append(formats, e.Link.Format)
	}
	assert.ElementsMatch(t, []models.LinkFormat{models.FormatDirect, models.FormatDirect, models.FormatSection}, formats)
}

func TestParseFailureLeavesGraphUnchanged(t *testing.T) {
	h := newHarness(t)
	h.create("A.md", "[[B]]\n")
	before := h.snapshot()

	_, err := h.engine.OnCreated(h.ctx, h.write("bad.md", "\xff\xfe[[C]]"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrParse)

	var pe *apperr.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, h.path("bad.md"), pe.Path)
	assert.Equal(t, before, h.snapshot())
}

func TestApplyDispatches(t *testing.T) {
	h := newHarness(t)
	n, err := h.engine.Apply(h.ctx, models.Event{Kind: models.EventCreated, Path: h.write("A.md", "# A\n")})
	require.NoError(t, err)
	assert.Equal(t, "A", n.Name)

	_, err = h.engine.Apply(h.ctx, models.Event{Kind: models.EventDeleted, Path: h.remove("A.md")})
	require.NoError(t, err)
	assert.Empty(t, h.snapshot().nodes)

	_, err = h.engine.Apply(h.ctx, models.Event{Kind: "truncated", Path: h.path("A.md")})
	assert.Error(t, err)
}

func TestReconcile(t *testing.T) {
	h := newHarness(t)
	h.create("Keep.md", "# Keep\n")
	h.create("Stale.md", "[[Ghost]]\n")
	h.create("Edit.md", "v1\n")

	h.remove("Stale.md")
	h.write("Edit.md", "v2 [[Keep]]\n")
	h.write("New.md", "# New\n")

	st, err := h.engine.Reconcile(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Created: 1, Modified: 1, Deleted: 1}, st)

	s := h.snapshot()
	assert.Nil(t, s.byLabel(h.path("Stale.md")))
	assert.Nil(t, s.byLabel("Ghost"))
	assert.NotNil(t, s.byLabel(h.path("New.md")))
	assert.Equal(t, 1, s.edgesBetween(s.byLabel(h.path("Edit.md")), s.byLabel(h.path("Keep.md"))))
	h.assertInvariants()

	st, err = h.engine.Reconcile(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st, "a second pass finds nothing to do")
}

func TestBackfill(t *testing.T) {
	h := newHarness(t)
	h.write("A.md", "[[B]] [[C]]\n")
	h.write("B.md", "[[A]]\n")
	h.write("sub/C.md", "# C\n")

	st, err := h.engine.Backfill(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Created)

	s := h.snapshot()
	assert.Len(t, s.nodes, 3)
	assert.Empty(t, s.placeholders())
	assert.Len(t, s.edges, 3)
	h.assertInvariants()
}

func TestBackfillCancelled(t *testing.T) {
	h := newHarness(t)
	h.write("A.md", "# A\n")
	h.write("B.md", "# B\n")

	ctx, cancel := context.WithCancel(h.ctx)
	cancel()
	st, err := h.engine.Backfill(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, st.Created)
	assert.Empty(t, h.snapshot().nodes)
}

func TestBackfillCountsFailures(t *testing.T) {
	h := newHarness(t)
	h.write("A.md", "# A\n")
	h.write("bad.md", "\xff")

	st, err := h.engine.Backfill(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Created)
	assert.Equal(t, 1, st.Failed)
}

func TestRebuild(t *testing.T) {
	h := newHarness(t)
	h.create("A.md", "[[B]]\n")
	h.remove("A.md")
	h.write("C.md", "# C\n")

	st, err := h.engine.Rebuild(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Created)

	s := h.snapshot()
	require.Len(t, s.nodes, 1)
	assert.Equal(t, h.path("C.md"), s.nodes[0].Path)
}

type downEmbedder struct{}

func (downEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding service down")
}

func TestEmbeddingOutageKeepsDocumentsAndLinks(t *testing.T) {
	h := newHarness(t)
	logger := slog.New(slog.NewJSONHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ld := loader.New(h.vault, loader.WithEmbedder(downEmbedder{}), loader.WithLogger(logger))
	h.engine = New(h.store, ld, h.vault, WithLogger(logger))

	h.create("A.md", "See [[B]].\n")

	s := h.snapshot()
	require.Len(t, s.nodes, 2)
	assert.Equal(t, 1, s.edgesBetween(s.byLabel(h.path("A.md")), s.byLabel("B")))

	_, err := h.engine.OnModified(h.ctx, h.write("A.md", "Now [[C]].\n"))
	require.NoError(t, err)
	s = h.snapshot()
	assert.Equal(t, []string{"C"}, s.placeholders())
	assert.Len(t, s.edges, 1)
	h.assertInvariants()
	assert.Contains(t, h.logs.String(), "storing document without vectors")
}
