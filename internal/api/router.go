package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notegraph/internal/graphservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// reconciler, if non-nil, backs POST /reconcile.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *graphservice.Service, reconciler Reconciler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, reconciler)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Graph reads.
	r.Get("/graph", h.Graph)
	r.Get("/stats", h.Stats)
	r.Get("/nodes", h.NodesByName)
	r.Get("/placeholders", h.Placeholders)
	r.Get("/documents/*", h.GetDocument)
	r.Get("/backlinks/*", h.Backlinks)

	// Search.
	r.Get("/search", h.Search)
	r.Get("/similar", h.Similar)

	if reconciler != nil {
		r.Post("/reconcile", h.Reconcile)
	}

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
