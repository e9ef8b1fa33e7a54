package mcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/pfarch/pfarch/internal/logging"
)

// DefaultEndpointPath is where the streamable HTTP transport is mounted.
const DefaultEndpointPath = "/mcp"

// HTTPServer serves the MCP server over streamable HTTP next to /health and,
// optionally, /metrics. It implements lifecycle.Component.
type HTTPServer struct {
	addr         string
	endpointPath string
	mux          *http.ServeMux
	httpSrv      *http.Server
	streamable   *server.StreamableHTTPServer
	logger       *logging.Logger

	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
}

// HTTPOptions configures the HTTP transport.
type HTTPOptions struct {
	Addr         string
	EndpointPath string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// NewHTTPServer creates the HTTP transport for s.
func NewHTTPServer(s *Server, opts HTTPOptions) *HTTPServer {
	endpointPath := opts.EndpointPath
	if endpointPath == "" {
		endpointPath = DefaultEndpointPath
	} else if endpointPath[0] != '/' {
		endpointPath = "/" + endpointPath
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}

	httpSrv := &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Stateless mode keeps clients that do not manage sessions working.
	streamable := server.NewStreamableHTTPServer(
		s.MCPServer(),
		server.WithEndpointPath(endpointPath),
		server.WithStateLess(true),
		server.WithStreamableHTTPServer(httpSrv),
	)
	mux.Handle(endpointPath, streamable)

	return &HTTPServer{
		addr:         opts.Addr,
		endpointPath: endpointPath,
		mux:          mux,
		httpSrv:      httpSrv,
		streamable:   streamable,
		logger:       logging.GetLogger("mcp.http"),
	}
}

// Handler returns the mux serving /health, the MCP endpoint and /metrics.
func (h *HTTPServer) Handler() http.Handler {
	return h.mux
}

// Name implements lifecycle.Component.
func (h *HTTPServer) Name() string {
	return "MCP HTTP Server"
}

// Start binds the listen address and serves in the background.
func (h *HTTPServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.addr, err)
	}

	h.mu.Lock()
	h.listener = ln
	h.done = make(chan struct{})
	done := h.done
	h.mu.Unlock()

	h.logger.Info("Serving MCP on %s (endpoint: %s)", ln.Addr(), h.endpointPath)
	go func() {
		defer close(done)
		if err := h.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (h *HTTPServer) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return h.addr
	}
	return h.listener.Addr().String()
}

// Stop shuts the transport down gracefully within the context deadline.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()
	if done == nil {
		return nil
	}

	if err := h.streamable.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down MCP HTTP server: %w", err)
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServeStdio serves s on stdin/stdout until the input closes.
func ServeStdio(s *Server) error {
	return server.ServeStdio(s.MCPServer())
}
