// Package mcp exposes the documentation index to MCP clients over stdio:
// ranked search, entity lookup, listing and prefix suggestions.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/docindex"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/docsearch"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/config"
)

// Server wraps the MCP server with the index it answers from.
type Server struct {
	mcp    *server.MCPServer
	index  *docindex.Index
	engine *docsearch.Engine
	search config.SearchConfig
}

func NewServer(idx *docindex.Index, engine *docsearch.Engine, cfg config.MCPConfig, search config.SearchConfig) *Server {
	s := &Server{
		mcp:    server.NewMCPServer(cfg.Name, cfg.Version),
		index:  idx,
		engine: engine,
		search: search,
	}
	s.registerTools()
	return s
}

// Serve answers MCP requests on stdin/stdout until the client disconnects.
func (s *Server) Serve(ctx context.Context) error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(searchDocsTool(s.search.MaxResults), s.handleSearchDocs)
	s.mcp.AddTool(getEntityTool(), s.handleGetEntity)
	s.mcp.AddTool(listEntitiesTool(), s.handleListEntities)
	s.mcp.AddTool(suggestTool(s.search.MaxResults), s.handleSuggest)
}
