package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/pfarch/pfarch/internal/agent"
	"github.com/pfarch/pfarch/internal/config"
	"github.com/pfarch/pfarch/internal/evaluator"
	"github.com/pfarch/pfarch/internal/lifecycle"
	"github.com/pfarch/pfarch/internal/logging"
	"github.com/pfarch/pfarch/internal/mcp"
	"github.com/pfarch/pfarch/internal/metrics"
	"github.com/pfarch/pfarch/internal/tracing"
)

var (
	httpAddr        string
	transportType   string
	mcpEndpointPath string
	metricsAddr     string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol (MCP) server that exposes the knowledge
base tools, decision saving and the deterministic evaluation as MCP tools for
AI assistants.

Supports two transport modes:
  - stdio: Standard input/output mode (for subprocess-based MCP clients)
  - http: streamable HTTP server mode with a /health endpoint

When --config is set the file is watched and a changed decision.policy
takes effect without a restart.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&httpAddr, "http-addr", getEnv("MCP_HTTP_ADDR", ""), "HTTP server address (host:port), overrides mcp.http_addr")
	mcpCmd.Flags().StringVar(&transportType, "transport", "", "Transport type: http or stdio, overrides mcp.transport")
	mcpCmd.Flags().StringVar(&mcpEndpointPath, "mcp-endpoint", getEnv("MCP_ENDPOINT", mcp.DefaultEndpointPath), "HTTP endpoint path for MCP requests")
	mcpCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Separate listen address for /metrics, overrides metrics.addr")
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if transportType != "" {
		cfg.MCP.Transport = transportType
	}
	if httpAddr != "" {
		cfg.MCP.HTTPAddr = httpAddr
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if cfg.MCP.Transport != "stdio" && cfg.MCP.Transport != "http" {
		return fmt.Errorf("invalid transport type: %s (must be 'http' or 'stdio')", cfg.MCP.Transport)
	}

	logger := logging.GetLogger("mcp")
	logger.Info("Starting pfarch MCP Server (transport: %s)", cfg.MCP.Transport)

	ctx, cancel := signalContext()
	defer cancel()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	tracingProvider, err := tracing.NewProvider(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		TLSCAPath:   cfg.Tracing.TLSCAPath,
		TLSInsecure: cfg.Tracing.TLSInsecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		Version:     Version,
	})
	if err != nil {
		return fmt.Errorf("failed to create tracing provider: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	eval, err := newEvaluator(ctx, cfg, store,
		evaluator.WithMetrics(metrics.NewMetrics(registry)),
		evaluator.WithTracer(tracingProvider.Tracer("pfarch/evaluator")),
	)
	if err != nil {
		return err
	}
	tools := agent.NewTools(store, eval.Policy())

	server, err := mcp.NewServer(mcp.ServerOptions{
		Version:   Version,
		Tools:     tools,
		Evaluator: eval,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	manager := lifecycle.NewManager()
	if err := manager.Register(tracingProvider); err != nil {
		return err
	}

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, 0, func(reloaded *config.File) error {
			return applyReload(reloaded, eval, tools)
		})
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		if err := manager.Register(watcher); err != nil {
			return err
		}
	}

	if cfg.Metrics.Addr != "" {
		if err := manager.Register(newMetricsServer(cfg.Metrics.Addr, metricsHandler), tracingProvider); err != nil {
			return err
		}
	}

	var httpServer *mcp.HTTPServer
	if cfg.MCP.Transport == "http" {
		httpServer = mcp.NewHTTPServer(server, mcp.HTTPOptions{
			Addr:         cfg.MCP.HTTPAddr,
			EndpointPath: mcpEndpointPath,
			Metrics:      metricsHandler,
		})
		if err := manager.Register(httpServer, tracingProvider); err != nil {
			return err
		}
	}

	if err := manager.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := manager.Stop(shutdownCtx); err != nil {
			logger.Error("Error during shutdown: %v", err)
		}
		logger.Info("Server stopped")
	}()

	if httpServer != nil {
		<-ctx.Done()
		logger.Info("Shutting down HTTP server...")
		return nil
	}

	logger.Info("Starting stdio transport")
	if err := mcp.ServeStdio(server); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio transport error: %w", err)
	}
	return nil
}

// applyReload applies the reloadable settings of a changed config file.
func applyReload(cfg *config.File, eval *evaluator.Evaluator, tools *agent.Tools) error {
	policy, err := lookupPolicy(cfg.Decision.Policy)
	if err != nil {
		return err
	}
	if policy.Name == eval.Policy().Name {
		return nil
	}
	eval.SetPolicy(policy)
	tools.SetPolicy(policy)
	return nil
}

// newMetricsServer serves /metrics on its own listener.
func newMetricsServer(addr string, handler http.Handler) lifecycle.Component {
	logger := logging.GetLogger("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &lifecycle.FuncComponent{
		ComponentName: "Metrics Server",
		StartFunc: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", addr, err)
			}
			logger.Info("Serving metrics on %s/metrics", ln.Addr())
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("Metrics server error: %v", err)
				}
			}()
			return nil
		},
		StopFunc: srv.Shutdown,
	}
}
