// ABOUTME: Assembles the session registry, idle reaper, and transport into one HTTP server.
// ABOUTME: Owns the listener lifecycle and graceful shutdown of all session state.

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paystream/mcp-gateway/internal/backend"
	"github.com/paystream/mcp-gateway/internal/config"
	"github.com/paystream/mcp-gateway/internal/session"
	"github.com/paystream/mcp-gateway/internal/transport"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 5 * time.Second

// Gateway wires the session registry, idle reaper, and request router
// behind a single HTTP server.
type Gateway struct {
	config     *config.Config
	logger     *slog.Logger
	registry   *session.Registry
	reaper     *session.Reaper
	transport  *transport.Server
	httpServer *http.Server
	handler    http.Handler
}

// New creates a gateway from configuration and a backend factory. The
// factory is invoked once per session created by the transport layer.
func New(cfg *config.Config, logger *slog.Logger, factory backend.Factory) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())

	registry, err := session.NewRegistry(session.Config{
		Factory: factory,
		Logger:  logger,
		Metrics: session.NewMetrics(promReg),
	})
	if err != nil {
		return nil, fmt.Errorf("creating session registry: %w", err)
	}

	reaper := session.NewReaper(registry, cfg.Session.SweepInterval, cfg.Session.Timeout, logger)

	transportServer, err := transport.NewServer(transport.Config{
		Registry: registry,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating transport server: %w", err)
	}

	g := &Gateway{
		config:    cfg,
		logger:    logger,
		registry:  registry,
		reaper:    reaper,
		transport: transportServer,
	}

	mux := http.NewServeMux()
	transportServer.RegisterRoutes(mux)
	mux.HandleFunc("/healthz", g.handleHealth)

	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		logger.Info("metrics endpoint enabled", "path", path)
	}

	g.handler = mux
	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// Handler returns the gateway's HTTP handler, for embedding and tests.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// SessionCount returns the number of live sessions.
func (g *Gateway) SessionCount() int {
	return g.registry.Size()
}

// handleHealth reports liveness plus the live-session count.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{
		"status":   "ok",
		"sessions": g.registry.Size(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		g.logger.Warn("failed to encode health response", "error", err)
	}
}

// Run starts the HTTP server and the idle reaper, and blocks until the
// context is canceled. Returns nil on graceful shutdown, or an error if
// the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	g.reaper.Start()
	errCh := g.startServer(ln)

	serverErr := g.waitForShutdownSignal(ctx, errCh)
	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// startServer starts the HTTP server in a goroutine, returning an error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or a server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the reaper, force-removes every remaining session so no
// backend or transport handle is leaked, and shuts the HTTP server down.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.reaper.Close()

	if removed := g.registry.RemoveAll(); len(removed) > 0 {
		g.logger.Info("forced removal of remaining sessions", "count", len(removed))
	}

	if err := g.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}

	g.logger.Info("gateway stopped")
	return nil
}
