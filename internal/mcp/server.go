package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolNames lists the registered tools in registration order.
var ToolNames = []string{
	"list_documents",
	"get_document",
	"search_chunks",
	"build_session",
	"record_review",
	"complete_session",
	"review_flashcard",
	"get_status",
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server  *mcp.Server
	backend Backend
}

// Config holds server dependencies.
type Config struct {
	Backend     Backend
	SessionSize int    // Default build_session item count
	Version     string // Reported to clients
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	if cfg.SessionSize <= 0 {
		cfg.SessionSize = 20
	}
	if cfg.Version == "" {
		cfg.Version = "v0.1.0"
	}
	impl := &mcp.Implementation{
		Name:    "studyflow",
		Version: cfg.Version,
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List uploaded study documents with their processing status.",
	}, makeListHandler(cfg.Backend))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_document",
		Description: "Get a document's outline, key concepts, background knowledge and question counts.",
	}, makeGetHandler(cfg.Backend))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_chunks",
		Description: "Semantically search the chunks of one document. Returns the best matching passages with similarity scores.",
	}, makeSearchHandler(cfg.Backend))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "build_session",
		Description: "Build a study session mixing due flashcards, multiple choice and short answer questions for a document.",
	}, makeSessionHandler(cfg.Backend, cfg.SessionSize))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "record_review",
		Description: "Record the learner's outcome for an item of a study session. Flashcards are rescheduled with spaced repetition.",
	}, makeRecordHandler(cfg.Backend))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "complete_session",
		Description: "Finish a study session and return its statistics.",
	}, makeCompleteHandler(cfg.Backend))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "review_flashcard",
		Description: "Reschedule a single flashcard from a review outcome (correct, partial, incorrect or skipped).",
	}, makeReviewHandler(cfg.Backend))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_status",
		Description: "Get document counts by processing status, total chunks and index health.",
	}, makeStatusHandler(cfg.Backend))

	return &Server{
		server:  server,
		backend: cfg.Backend,
	}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
