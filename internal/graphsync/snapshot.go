package graphsync

import (
	"context"

	"github.com/starford/notegraph/internal/graphstore"
	"github.com/starford/notegraph/internal/models"
)

// Graph is a consistent copy of every node and edge.
type Graph struct {
	Nodes []models.Node `json:"nodes"`
	Edges []models.Edge `json:"edges"`
}

// Snapshot reads the whole graph in one transaction.
func Snapshot(ctx context.Context, store graphstore.Store) (Graph, error) {
	var g Graph
	err := store.View(ctx, func(tx graphstore.Tx) error {
		var err error
		if g.Nodes, err = tx.Nodes(ctx); err != nil {
			return err
		}
		g.Edges, err = tx.Edges(ctx)
		return err
	})
	return g, err
}
