package graphsync

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notegraph/internal/graphstore"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/testutil"
)

func TestResolve(t *testing.T) {
	ctx := context.Background()
	store := testutil.TestStore(t)
	root := "/vault"

	docs := map[string]*models.Node{}
	var source *models.Node
	require.NoError(t, store.Update(ctx, func(tx graphstore.Tx) error {
		for _, p := range []string{"Home.md", "x/Intro.md", "y/Intro.md", "notes/Plan.md"} {
			abs := filepath.Join(root, filepath.FromSlash(p))
			n, err := tx.CreateDocument(ctx, &models.Document{Path: abs, Name: models.DeriveName(abs)})
			if err != nil {
				return err
			}
			docs[p] = n
		}
		source = docs["Home.md"]
		_, err := tx.CreatePlaceholder(ctx, "Someday")
		return err
	}))

	r := NewResolver(".md")
	tests := []struct {
		name   string
		link   models.Link
		kind   ResolutionKind
		expect string
		count  int
	}{
		{name: "self link", link: models.Link{Headers: []string{"Top"}}, kind: ExactPathMatch, expect: "/vault/Home.md"},
		{name: "exact path without extension", link: models.Link{Target: "x/Intro"}, kind: ExactPathMatch, expect: "/vault/x/Intro.md"},
		{name: "exact path with extension", link: models.Link{Target: "y/Intro.md"}, kind: ExactPathMatch, expect: "/vault/y/Intro.md"},
		{name: "unique name", link: models.Link{Target: "plan"}, kind: NameMatch, expect: "/vault/notes/Plan.md"},
		{name: "name from wrong folder", link: models.Link{Target: "elsewhere/Plan"}, kind: NameMatch, expect: "/vault/notes/Plan.md"},
		{name: "placeholder by name", link: models.Link{Target: "someday"}, kind: NameMatch, expect: "Someday"},
		{name: "ambiguous name", link: models.Link{Target: "Intro"}, kind: Ambiguous, count: 2},
		{name: "unknown", link: models.Link{Target: "Nowhere"}, kind: NotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var res Resolution
			require.NoError(t, store.View(ctx, func(tx graphstore.Tx) error {
				var err error
				res, err = r.Resolve(ctx, tx, source, tc.link, root)
				return err
			}))
			assert.Equal(t, tc.kind, res.Kind, res.Kind.String())
			if tc.expect != "" {
				require.NotNil(t, res.Node)
				assert.Equal(t, tc.expect, res.Node.Label())
			}
			assert.Len(t, res.Candidates, tc.count)
		})
	}
}

func TestResolutionKindString(t *testing.T) {
	assert.Equal(t, "exact_path", ExactPathMatch.String())
	assert.Equal(t, "name", NameMatch.String())
	assert.Equal(t, "ambiguous", Ambiguous.String())
	assert.Equal(t, "not_found", NotFound.String())
}

func TestReaper(t *testing.T) {
	ctx := context.Background()
	store := testutil.TestStore(t)
	reaper := NewReaper(nil)

	var doc, kept, orphan *models.Node
	require.NoError(t, store.Update(ctx, func(tx graphstore.Tx) error {
		var err error
		if doc, err = tx.CreateDocument(ctx, &models.Document{Path: "/vault/A.md", Name: "A"}); err != nil {
			return err
		}
		if kept, err = tx.CreatePlaceholder(ctx, "Kept"); err != nil {
			return err
		}
		if orphan, err = tx.CreatePlaceholder(ctx, "Orphan"); err != nil {
			return err
		}
		_, err = tx.Connect(ctx, doc.ID, kept.ID, models.Link{Format: models.FormatDirect, Target: "Kept"})
		return err
	}))

	require.NoError(t, store.Update(ctx, func(tx graphstore.Tx) error {
		reaped, err := reaper.ReapIfOrphaned(ctx, tx, doc.ID)
		require.NoError(t, err)
		assert.False(t, reaped, "documents are never reaped")

		reaped, err = reaper.ReapIfOrphaned(ctx, tx, kept.ID)
		require.NoError(t, err)
		assert.False(t, reaped)

		reaped, err = reaper.ReapIfOrphaned(ctx, tx, "no-such-id")
		require.NoError(t, err)
		assert.False(t, reaped)

		n, err := reaper.Sweep(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = tx.Node(ctx, orphan.ID)
		assert.Error(t, err)
		return nil
	}))
}
