// Package mcp exposes ingestion and querying as Model Context Protocol
// tools, over stdio or streamable HTTP.
package mcp

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/efebarandurmaz/pdfrag/internal/catalog"
	"github.com/efebarandurmaz/pdfrag/internal/rag"
)

// Dispatcher sends events and fetches run results.
type Dispatcher interface {
	Send(ctx context.Context, ev rag.Event) (rag.SendResult, error)
	Result(ctx context.Context, id string, out any) error
}

// Config holds server dependencies. Catalog is optional.
type Config struct {
	Events  Dispatcher
	Catalog catalog.Repository
	Version string
}

// Server wraps the MCP server with its dependencies.
type Server struct {
	server  *mcp.Server
	events  Dispatcher
	catalog catalog.Repository
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		server:  mcp.NewServer(&mcp.Implementation{Name: "pdfrag", Version: version}, nil),
		events:  cfg.Events,
		catalog: cfg.Catalog,
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ingest_pdf",
		Description: "Ingest a PDF into a vector collection. Returns the workflow run ID; pass wait=true to block until the chunks are stored.",
	}, s.handleIngest)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "query_pdf",
		Description: "Answer a question from previously ingested PDFs. Waits for the answer unless wait=false.",
	}, s.handleQuery)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_result",
		Description: "Fetch the result of an ingest or query run by ID.",
	}, s.handleResult)

	if s.catalog != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "list_sources",
			Description: "List the sources ingested into a collection.",
		}, s.handleListSources)
	}

	return s
}

// Run serves over stdio until the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// NewHTTPHandler serves the MCP server with the streamable HTTP transport.
// Mount it at /mcp.
func NewHTTPHandler(server *Server, stateless bool) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server.MCPServer()
	}, &mcp.StreamableHTTPOptions{Stateless: stateless})
}
