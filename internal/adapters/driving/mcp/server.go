package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-media/internal/logger"
)

// Version is reported to MCP clients during initialisation.
const Version = "0.2.0"

const (
	// endpointPath serves the streamable HTTP transport.
	endpointPath = "/mcp"
	// healthPath answers liveness probes without touching the session layer.
	healthPath = "/healthz"

	shutdownGrace = 5 * time.Second
)

const instructions = `Search a personal media library by meaning.
Use search_media with a text query, an example image, audio or video file,
or a combination. Results are time-coded spans inside files; prefer
time_accurate when the exact second matters.`

// Server exposes media search, ingestion and the person registry to MCP
// clients.
type Server struct {
	ports  *Ports
	server *mcp.Server
}

// NewServer builds the tool and resource set for the wired ports. Ingestion
// tools are only registered when an ingestion service is present.
func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}

	inner := mcp.NewServer(
		&mcp.Implementation{Name: "sercha-media", Version: Version},
		&mcp.ServerOptions{Instructions: instructions},
	)
	s := &Server{ports: ports, server: inner}
	s.registerTools()
	s.registerResources()
	logger.Debug("MCP server ready (ingest=%t, persons=%t)", ports.Ingest != nil, ports.Person != nil)
	return s, nil
}

// Run serves a single client over stdin/stdout until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	logger.Info("MCP server on stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns the HTTP handler for the streamable transport plus a
// health endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(endpointPath, mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil))
	mux.HandleFunc(healthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// RunHTTP listens on addr until ctx ends, then drains open requests.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("MCP server on http://%s%s", addr, endpointPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutting down MCP server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
