package graphsync

import (
	"context"
	"errors"
	"log/slog"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/graphstore"
)

// Reaper deletes Placeholders that no longer have incoming edges.
type Reaper struct {
	logger *slog.Logger
}

// NewReaper creates a Reaper.
func NewReaper(logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{logger: logger}
}

// ReapIfOrphaned deletes the node if it is a Placeholder with zero incoming
// edges. Documents and missing nodes are left alone.
func (r *Reaper) ReapIfOrphaned(ctx context.Context, tx graphstore.Tx, id string) (bool, error) {
	n, err := tx.Node(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !n.IsPlaceholder() {
		return false, nil
	}
	in, err := tx.Incoming(ctx, id)
	if err != nil {
		return false, err
	}
	if len(in) > 0 {
		return false, nil
	}
	if err := tx.DeleteNode(ctx, id); err != nil {
		return false, err
	}
	r.logger.Debug("graphsync: reaped placeholder", slog.String("name", n.Name))
	return true, nil
}

// ReapAll applies ReapIfOrphaned to each id and returns how many were deleted.
func (r *Reaper) ReapAll(ctx context.Context, tx graphstore.Tx, ids []string) (int, error) {
	n := 0
	for _, id := range ids {
		reaped, err := r.ReapIfOrphaned(ctx, tx, id)
		if err != nil {
			return n, err
		}
		if reaped {
			n++
		}
	}
	return n, nil
}

// Sweep reaps every orphaned Placeholder in the graph.
func (r *Reaper) Sweep(ctx context.Context, tx graphstore.Tx) (int, error) {
	placeholders, err := tx.Placeholders(ctx)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(placeholders))
	for _, p := range placeholders {
		ids = append(ids, p.ID)
	}
	return r.ReapAll(ctx, tx, ids)
}
