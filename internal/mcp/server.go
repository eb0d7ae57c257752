package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/corpusloom/corpusloom/internal/chunker"
	"github.com/corpusloom/corpusloom/internal/config"
	"github.com/corpusloom/corpusloom/internal/ingest"
	"github.com/corpusloom/corpusloom/internal/jsonmode"
	"github.com/corpusloom/corpusloom/internal/ollama"
	"github.com/corpusloom/corpusloom/internal/retriever"
	"github.com/corpusloom/corpusloom/internal/storage"
	"github.com/corpusloom/corpusloom/internal/template"
)

const (
	// ServerName is the MCP server name
	ServerName = "corpusloom"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// ModelClient is the model call surface the tool handlers need.
// *ollama.Client satisfies it.
type ModelClient interface {
	Generate(ctx context.Context, req ollama.GenerateRequest) (*ollama.GenerateResult, error)
	Chat(ctx context.Context, req ollama.ChatRequest) (*ollama.ChatResult, error)
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp       *server.MCPServer
	cfg       *config.Config
	store     storage.Storage
	ingestor  *ingest.Ingestor
	searcher  *retriever.Searcher
	templates *template.Registry
	llm       ModelClient
	jsongen   *jsonmode.Generator
}

// NewServer creates a new MCP server instance from runtime configuration
func NewServer(cfg *config.Config) (*Server, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	// The storage layer doubles as the persistent embedding cache.
	client := ollama.New(ollama.Config{
		Host:           cfg.Host,
		Model:          cfg.Model,
		EmbedModel:     cfg.EmbedModel,
		KeepAlive:      cfg.KeepAlive,
		CallsPerMinute: cfg.CallsPerMinute,
	}, store)

	ing := ingest.New(store, client, ingest.Config{
		Chunker: chunker.Config{
			MaxTokens:     cfg.MaxTokens,
			OverlapTokens: cfg.OverlapTokens,
		},
	})

	s := &Server{
		mcp:       server.NewMCPServer(ServerName, ServerVersion),
		cfg:       cfg,
		store:     store,
		ingestor:  ing,
		searcher:  retriever.NewSearcher(store, client),
		templates: template.NewRegistry(store),
		llm:       client,
		jsongen:   jsonmode.NewGenerator(client, -1),
	}
	s.registerTools()

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.store.Close() }()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(ingestFilesTool(), s.handleIngestFiles)
	s.mcp.AddTool(ingestTextTool(), s.handleIngestText)
	s.mcp.AddTool(searchTool(), s.handleSearch)
	s.mcp.AddTool(buildContextTool(), s.handleBuildContext)
	s.mcp.AddTool(generateTool(), s.handleGenerate)
	s.mcp.AddTool(renderTemplateTool(), s.handleRenderTemplate)
	s.mcp.AddTool(listTemplatesTool(), s.handleListTemplates)
	s.mcp.AddTool(statusTool(), s.handleStatus)
}
