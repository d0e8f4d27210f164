package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/payerwatch/payerwatch-mcp/internal/detector"
	"github.com/payerwatch/payerwatch-mcp/internal/embedder"
	"github.com/payerwatch/payerwatch-mcp/internal/index"
	"github.com/payerwatch/payerwatch-mcp/internal/retriever"
	"github.com/payerwatch/payerwatch-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "payerwatch-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// DefaultDBDir is the default location for the database
	DefaultDBDir = "~/.payerwatch"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp       *server.MCPServer
	storage   storage.Storage
	detector  *detector.Detector
	backfill  *index.Backfill
	retriever *retriever.Retriever
}

// NewServer creates a new MCP server instance
func NewServer(dbPath string) (*Server, error) {
	if dbPath == "" || dbPath == DefaultDBDir {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".payerwatch")
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dbFile := filepath.Join(dbPath, "payerwatch.db")

	store, err := storage.NewSQLiteStorage(dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	s := &Server{
		mcp:       server.NewMCPServer(ServerName, ServerVersion),
		storage:   store,
		detector:  detector.New(store),
		backfill:  index.New(store, emb),
		retriever: retriever.New(store, emb),
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.storage.Close() }()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(ingestCrawlResultsTool(), s.handleIngestCrawlResults)
	s.mcp.AddTool(searchRulesTool(), s.handleSearchRules)
	s.mcp.AddTool(embedRulesTool(), s.handleEmbedRules)
	s.mcp.AddTool(listAlertsTool(), s.handleListAlerts)
	s.mcp.AddTool(recentChangesTool(), s.handleRecentChanges)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)

	return nil
}
