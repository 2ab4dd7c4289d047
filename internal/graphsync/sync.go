package graphsync

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/starford/notegraph/internal/graphstore"
)

// Stats counts the transitions made by a bulk operation.
type Stats struct {
	Created  int `json:"created"`
	Modified int `json:"modified"`
	Deleted  int `json:"deleted"`
	Reaped   int `json:"reaped"`
	Failed   int `json:"failed"`
}

// Backfill issues a create for every document in the vault. It stops between
// documents when ctx is cancelled and returns ctx.Err(); a document already
// being written is always finished. Per-document failures are logged and
// counted.
func (e *Engine) Backfill(ctx context.Context) (Stats, error) {
	files, err := e.vault.List("")
	if err != nil {
		return Stats{}, fmt.Errorf("graphsync: backfill: %w", err)
	}

	var st Stats
	work := context.WithoutCancel(ctx)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			e.logger.Info("graphsync: backfill cancelled",
				slog.Int("created", st.Created),
				slog.Int("remaining", len(files)-st.Created-st.Failed))
			return st, err
		}
		path := e.abs(f.Path)
		if _, err := e.OnCreated(work, path); err != nil {
			st.Failed++
			e.logger.Warn("graphsync: backfill failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		st.Created++
	}

	e.logger.Info("graphsync: backfill complete", slog.Int("created", st.Created), slog.Int("failed", st.Failed))
	return st, nil
}

// Rebuild clears the store and backfills it from the vault.
func (e *Engine) Rebuild(ctx context.Context) (Stats, error) {
	e.mu.Lock()
	err := e.store.Clear(ctx)
	e.mu.Unlock()
	if err != nil {
		return Stats{}, fmt.Errorf("graphsync: rebuild: %w", err)
	}
	return e.Backfill(ctx)
}

// Reconcile brings the graph in line with the vault: documents missing from
// disk are deleted, new files are created and files whose checksum changed
// are modified. Orphaned placeholders are reaped last.
func (e *Engine) Reconcile(ctx context.Context) (Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reconcile(ctx)
}

func (e *Engine) reconcile(ctx context.Context) (Stats, error) {
	files, err := e.vault.List("")
	if err != nil {
		return Stats{}, fmt.Errorf("graphsync: reconcile: %w", err)
	}
	disk := make(map[string]string, len(files))
	for _, f := range files {
		disk[e.abs(f.Path)] = f.Checksum
	}

	graph := make(map[string]string)
	err = e.store.View(ctx, func(tx graphstore.Tx) error {
		docs, err := tx.Documents(ctx)
		if err != nil {
			return err
		}
		for _, d := range docs {
			graph[d.Path] = d.Checksum
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("graphsync: reconcile: %w", err)
	}

	var st Stats
	fail := func(op, path string, err error) {
		st.Failed++
		e.logger.Warn("graphsync: reconcile "+op+" failed", slog.String("path", path), slog.String("error", err.Error()))
	}

	for path := range graph {
		if _, ok := disk[path]; ok {
			continue
		}
		if _, _, err := e.deletePath(ctx, path); err != nil {
			fail("delete", path, err)
			continue
		}
		st.Deleted++
	}

	for path, sum := range disk {
		stored, ok := graph[path]
		switch {
		case !ok:
			if _, err := e.createPath(ctx, path); err != nil {
				fail("create", path, err)
				continue
			}
			st.Created++
		case stored != sum:
			if _, err := e.modifyPath(ctx, path); err != nil {
				fail("modify", path, err)
				continue
			}
			st.Modified++
		}
	}

	err = e.store.Update(ctx, func(tx graphstore.Tx) error {
		n, err := e.reaper.Sweep(ctx, tx)
		st.Reaped = n
		return err
	})
	if err != nil {
		return st, fmt.Errorf("graphsync: reconcile sweep: %w", err)
	}

	e.logger.Info("graphsync: reconcile complete",
		slog.Int("created", st.Created),
		slog.Int("modified", st.Modified),
		slog.Int("deleted", st.Deleted),
		slog.Int("reaped", st.Reaped),
		slog.Int("failed", st.Failed))
	return st, nil
}

func (e *Engine) abs(rel string) string {
	return filepath.Join(e.vault.Root(), filepath.FromSlash(rel))
}
