package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/graphservice"
	"github.com/starford/notegraph/internal/graphstore"
	"github.com/starford/notegraph/internal/graphsync"
)

// Reconciler runs a full vault reconciliation.
type Reconciler interface {
	Reconcile(ctx context.Context) (graphsync.Stats, error)
}

// Handler holds API route handlers.
type Handler struct {
	svc        *graphservice.Service
	reconciler Reconciler
}

// NewHandler creates a new Handler.
func NewHandler(svc *graphservice.Service, reconciler Reconciler) *Handler {
	return &Handler{svc: svc, reconciler: reconciler}
}

// wildcardPath extracts the document path from the URL wildcard.
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func wildcardPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// Graph handles GET /api/graph.
//
//	@Summary		Get every node and mentions edge
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.Graph(r.Context())
	if err != nil {
		slog.Error("graph failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// Stats handles GET /api/stats.
//
//	@Summary		Count documents, placeholders, edges and chunks
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	graphservice.Stats
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		slog.Error("stats failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// NodesByName handles GET /api/nodes?name=.
//
//	@Summary		Find nodes by derived name (case-insensitive)
//	@Tags			graph
//	@Produce		json
//	@Param			name	query		string	true	"Derived name"
//	@Success		200		{object}	NodesResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes [get]
func (h *Handler) NodesByName(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'name' is required"))
		return
	}
	nodes, err := h.svc.NodesByName(r.Context(), name)
	if err != nil {
		slog.Error("nodes by name failed", slog.String("name", name), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, NodesResponse{Nodes: nodes})
}

// Placeholders handles GET /api/placeholders.
//
//	@Summary		List unresolved link targets
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	PlaceholdersResponse
//	@Security		BearerAuth
//	@Router			/placeholders [get]
func (h *Handler) Placeholders(w http.ResponseWriter, r *http.Request) {
	ps, err := h.svc.Placeholders(r.Context())
	if err != nil {
		slog.Error("placeholders failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, PlaceholdersResponse{Placeholders: ps})
}

// GetDocument handles GET /api/documents/*.
//
//	@Summary		Get a stored document by vault path
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	DocumentDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	path := wildcardPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	doc, err := h.svc.Document(r.Context(), path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get document failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Backlinks handles GET /api/backlinks/*.
//
//	@Summary		List edges pointing at a document or placeholder
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	true	"Document path or placeholder name"
//	@Success		200		{object}	BacklinksResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backlinks/{path} [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	ref := wildcardPath(r)
	if ref == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	bl, err := h.svc.Backlinks(r.Context(), ref)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("backlinks failed", slog.String("ref", ref), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, BacklinksResponse{Backlinks: bl})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across documents
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Similar handles GET /api/similar.
//
//	@Summary		Vector similarity search over documents or chunks
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Query text"
//	@Param			top_k	query		int		false	"Number of hits"
//	@Param			kind	query		string	false	"Search target"	Enums(document, chunk)
//	@Success		200		{object}	SimilarResponse
//	@Failure		400		{object}	errResponse
//	@Failure		501		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/similar [get]
func (h *Handler) Similar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	text := q.Get("q")
	if text == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	target := graphstore.VectorTarget(q.Get("kind"))
	switch target {
	case "", graphstore.TargetChunks, graphstore.TargetDocuments:
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("kind must be 'document' or 'chunk'"))
		return
	}
	topK, _ := strconv.Atoi(q.Get("top_k"))

	hits, err := h.svc.Similar(r.Context(), text, topK, target)
	if err != nil {
		if errors.Is(err, graphservice.ErrEmbeddingDisabled) {
			writeJSON(w, http.StatusNotImplemented, errorBody("embedding is disabled"))
		} else {
			slog.Error("similar failed", slog.String("query", text), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, SimilarResponse{Results: hits})
}

// Reconcile handles POST /api/reconcile.
//
//	@Summary		Reconcile the graph with the vault on disk
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	graphsync.Stats
//	@Security		BearerAuth
//	@Router			/reconcile [post]
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	st, err := h.reconciler.Reconcile(r.Context())
	if err != nil {
		slog.Error("reconcile failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, st)
}
