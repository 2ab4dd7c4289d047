// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the note graph to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/graphservice"
	"github.com/starford/notegraph/internal/graphstore"
	"github.com/starford/notegraph/internal/graphsync"
)

const linkSyntaxURI = "notegraph://link-syntax"

// Reconciler runs a full vault reconciliation.
type Reconciler interface {
	Reconcile(ctx context.Context) (graphsync.Stats, error)
}

// Server wraps the MCP server with graph tools.
type Server struct {
	mcp        *server.MCPServer
	svc        *graphservice.Service
	reconciler Reconciler
}

// Option configures a Server.
type Option func(*Server)

// WithReconciler registers the reconcile_vault tool.
func WithReconciler(r Reconciler) Option {
	return func(s *Server) { s.reconciler = r }
}

// New creates a new MCP server with all graph tools registered.
func New(svc *graphservice.Service, opts ...Option) *Server {
	s := &Server{svc: svc}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer(
		"notegraph",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Full-text search through document titles and content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum results to return (default: 20)")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("similar_documents",
		mcp.WithDescription("Vector similarity search over documents or chunks. "+
			"Only available when an embedding provider is configured."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to compare against")),
		mcp.WithNumber("top_k", mcp.Description("Number of hits (default: 5, max: 100)")),
		mcp.WithString("kind", mcp.Description("Search target: chunk (default) or document")),
	), s.similarDocuments)

	s.mcp.AddTool(mcp.NewTool("get_document",
		mcp.WithDescription("Read a stored document with its outgoing links and backlinks."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path (e.g. folder/note.md)")),
	), s.getDocument)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("List the documents that link to a document or to an unresolved name."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Document path or placeholder name")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("list_placeholders",
		mcp.WithDescription("List link targets that no document satisfies yet, with their referrers."),
	), s.listPlaceholders)

	s.mcp.AddTool(mcp.NewTool("graph_stats",
		mcp.WithDescription("Count documents, placeholders, mentions edges and chunks."),
	), s.graphStats)

	s.mcp.AddTool(mcp.NewTool("get_link_syntax",
		mcp.WithDescription("Returns how [[wikilinks]] are written and resolved. "+
			"Read this before editing links or fixing ambiguous ones."),
	), s.getLinkSyntax)

	if s.reconciler != nil {
		s.mcp.AddTool(mcp.NewTool("reconcile_vault",
			mcp.WithDescription("Compare the graph with the files on disk and repair any drift."),
		), s.reconcileVault)
	}

	// Resource: link syntax reference.
	s.mcp.AddResource(
		mcp.NewResource(linkSyntaxURI, "Link Syntax",
			mcp.WithResourceDescription("How wikilinks are written and resolved to documents."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLinkSyntaxResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("limit", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) similarDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target := graphstore.VectorTarget(req.GetString("kind", ""))
	switch target {
	case "", graphstore.TargetChunks, graphstore.TargetDocuments:
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown kind %q: use chunk or document", target)), nil
	}
	hits, err := s.svc.Similar(ctx, query, req.GetInt("top_k", 0), target)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(hits)
}

func (s *Server) getDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.Document(ctx, path)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(doc)
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, path)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return jsonResult(bl)
}

func (s *Server) listPlaceholders(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ps, err := s.svc.Placeholders(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(ps)
}

func (s *Server) graphStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st)
}

func (s *Server) reconcileVault(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st)
}

func (s *Server) getLinkSyntax(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(LinkSyntax), nil
}

func (s *Server) readLinkSyntaxResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      linkSyntaxURI,
			MIMEType: "text/markdown",
			Text:     LinkSyntax,
		},
	}, nil
}
