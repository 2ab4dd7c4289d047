package api

import (
	"github.com/starford/notegraph/internal/graphservice"
	"github.com/starford/notegraph/internal/graphstore"
	"github.com/starford/notegraph/internal/graphsync"
	"github.com/starford/notegraph/internal/models"
)

// DocumentDetail is the full document response type (aliased from the domain layer).
type DocumentDetail = graphservice.DocumentDetail

// GraphResponse wraps the whole graph.
type GraphResponse = graphsync.Graph

// NodesResponse wraps a name lookup.
type NodesResponse struct {
	Nodes []models.Node `json:"nodes" validate:"required"`
}

// PlaceholdersResponse wraps the unresolved link targets.
type PlaceholdersResponse struct {
	Placeholders []graphservice.PlaceholderInfo `json:"placeholders" validate:"required"`
}

// BacklinksResponse wraps the edges arriving at a node.
type BacklinksResponse struct {
	Backlinks []graphservice.Backlink `json:"backlinks" validate:"required"`
}

// SearchResponse wraps full-text search results.
type SearchResponse struct {
	Results []graphstore.SearchResult `json:"results" validate:"required"`
}

// SimilarResponse wraps vector search hits.
type SimilarResponse struct {
	Results []graphstore.ScoredNode `json:"results" validate:"required"`
}
