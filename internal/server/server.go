// Package server exposes the hosted vw session over a REST API and as MCP
// tools, on HTTP or stdio.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/sevir/wappa/internal/metrics"
	"github.com/sevir/wappa/pkg/models"
)

// Learner is the session host the handlers drive.
type Learner interface {
	Train(req models.ExampleRequest) (*models.PredictionResult, error)
	Predict(req models.PredictRequest) (*models.PredictionResult, error)
	Save(ctx context.Context, req models.SaveRequest) (*models.Checkpoint, error)
	GetCheckpoint(id string) (*models.Checkpoint, error)
	ListCheckpoints(req models.ListRequest) ([]*models.Checkpoint, error)
	DeleteCheckpoint(id string, removeFile bool) error
	Info() models.SessionInfo
}

// Server serves the REST API, /metrics and MCP over HTTP, or MCP alone
// over stdio.
type Server struct {
	learner    Learner
	metrics    *metrics.Metrics
	addr       string
	version    string
	commit     string
	useStdio   bool
	mcp        *mcpserver.MCPServer
	httpServer *http.Server
}

// Config holds server configuration.
type Config struct {
	Addr     string
	Learner  Learner
	Metrics  *metrics.Metrics
	Version  string
	Commit   string
	UseStdio bool
}

// New creates a new server.
func New(cfg Config) *Server {
	s := &Server{
		learner:  cfg.Learner,
		metrics:  cfg.Metrics,
		addr:     cfg.Addr,
		version:  cfg.Version,
		commit:   cfg.Commit,
		useStdio: cfg.UseStdio,
	}

	s.mcp = newMCPServer(cfg.Learner, cfg.Version)

	if !cfg.UseStdio {
		mux := http.NewServeMux()
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(s.mcp,
			mcpserver.WithEndpointPath("/mcp"),
		))
		mux.Handle("/", s.newGinEngine())

		s.httpServer = &http.Server{
			Addr:              cfg.Addr,
			Handler:           corsMiddleware(mux),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      0, // streamed MCP responses
		}
	}

	return s
}

// Handler returns the HTTP handler, or nil in stdio mode.
func (s *Server) Handler() http.Handler {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Handler
}

// MCPServer returns the MCP server the tools are registered on.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Mcp-Session-Id")
		w.Header().Set("Access-Control-Expose-Headers", "Mcp-Session-Id")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start serves until Shutdown, or until stdin closes in stdio mode.
func (s *Server) Start() error {
	if s.useStdio {
		log.Printf("server_event=started transport=stdio")
		return mcpserver.ServeStdio(s.mcp)
	}

	log.Printf("server_event=started transport=http addr=%s", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
