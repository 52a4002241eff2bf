// Package mcp is the tool-facing facade: typed request/response
// wrappers over the core index and search APIs, exposed over the MCP
// stdio protocol. Every input is validated and every error surfaced to
// a client is path-sanitized.
package mcp

import (
	"context"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/blakazulu/search-mcp/internal/config"
	"github.com/blakazulu/search-mcp/internal/index"
	"github.com/blakazulu/search-mcp/internal/search"
	"github.com/blakazulu/search-mcp/internal/strategy"
	"github.com/blakazulu/search-mcp/pkg/version"
)

// Server bridges MCP clients with the dual index and search engines.
type Server struct {
	mcp  *sdk.Server
	dual *index.Dual
	cfg  *config.Config

	codeEngine *search.Engine
	docsEngine *search.Engine
	integrity  *index.IntegrityEngine
	strat      strategy.Strategy

	mu sync.RWMutex
}

// NewServer wires the facade over an opened dual index.
func NewServer(dual *index.Dual, cfg *config.Config) (*Server, error) {
	codeEngine, err := search.NewEngine(dual.Code.Vector(), dual.Code.FTS(), dual.Code.Embedder())
	if err != nil {
		return nil, err
	}
	docsEngine, err := search.NewEngine(dual.Docs.Vector(), dual.Docs.FTS(), dual.Docs.Embedder())
	if err != nil {
		return nil, err
	}

	s := &Server{
		dual:       dual,
		cfg:        cfg,
		codeEngine: codeEngine,
		docsEngine: docsEngine,
		integrity:  index.NewIntegrityEngine(dual),
	}

	s.mcp = sdk.NewServer(
		&sdk.Implementation{
			Name:    "search-mcp",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// SetStrategy attaches the active indexing strategy for status output.
func (s *Server) SetStrategy(st strategy.Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strat = st
}

// Integrity returns the server's integrity engine.
func (s *Server) Integrity() *index.IntegrityEngine { return s.integrity }

// Run serves MCP over stdio until the context ends.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &sdk.StdioTransport{})
}

// registerTools registers every tool with its typed handler.
func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "create_index",
		Description: "Build the project index from scratch. Destructive: requires confirmed=true.",
	}, s.handleCreateIndex)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "reindex_project",
		Description: "Rebuild the project index. Destructive: requires confirmed=true.",
	}, s.handleCreateIndex)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "reindex_file",
		Description: "Surgically reindex a single file.",
	}, s.handleReindexFile)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "delete_index",
		Description: "Delete the project index. Destructive: requires confirmed=true.",
	}, s.handleDeleteIndex)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_index_status",
		Description: "Report index readiness, file and chunk counts, and storage size.",
	}, s.handleIndexStatus)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "search_code",
		Description: "Hybrid semantic + keyword search over indexed source code.",
	}, s.handleSearchCode)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "search_docs",
		Description: "Hybrid search over markdown and text documentation, preserving section hierarchy.",
	}, s.handleSearchDocs)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "search_by_path",
		Description: "Find indexed files whose path matches a glob pattern.",
	}, s.handleSearchByPath)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_file_summary",
		Description: "Summarize one file: symbols, imports, line counts, and complexity.",
	}, s.handleFileSummary)
}
