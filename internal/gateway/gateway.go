// ABOUTME: Gateway orchestrator that wires the router, registry, emitter, and HTTP server.
// ABOUTME: Owns the single per-process router instance and the server lifecycle.

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/switchboard/internal/auth"
	"github.com/2389/switchboard/internal/config"
	"github.com/2389/switchboard/internal/events"
	"github.com/2389/switchboard/internal/handlers"
	"github.com/2389/switchboard/internal/ident"
	"github.com/2389/switchboard/internal/registry"
	"github.com/2389/switchboard/internal/replay"
	"github.com/2389/switchboard/internal/router"
	"github.com/2389/switchboard/internal/store"
)

// Gateway orchestrates the switchboard server components. It constructs the
// one router instance for the process and threads it, the registry, and the
// emitter through every subsystem by reference.
type Gateway struct {
	config   *config.Config
	logger   *slog.Logger
	store    store.Store
	registry *registry.Registry
	router   *router.Router
	emitter  *events.Emitter
	replays  *replay.Guard
	idgen    *ident.Generator
	verifier auth.TokenVerifier

	upgrader   websocket.Upgrader
	mux        *http.ServeMux
	httpServer *http.Server
}

// New creates a Gateway from configuration. Attach an execution engine with
// AttachEngine before Run; without one, chat messages are unroutable.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	gw := &Gateway{
		config:   cfg,
		logger:   logger.With("component", "gateway"),
		store:    s,
		registry: registry.New(logger.With("component", "registry")),
		router:   router.New(logger.With("component", "router")),
		replays:  replay.NewGuard(cfg.Gateway.ReplayTTL, cfg.Gateway.ReplayCapacity),
		idgen:    ident.New(cfg.Gateway.Environment),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Token auth is the access control; origin checks stay open for
			// non-browser clients.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	gw.emitter = events.NewEmitter(gw.registry, gw, logger.With("component", "emitter"))

	if cfg.Auth.JWTSecret != "" {
		gw.verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		logger.Info("handshake auth enabled (JWT)")
	} else {
		logger.Warn("auth disabled - no jwt_secret configured")
	}

	gw.router.Add(handlers.Ping{})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.handleWS)
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)
	mux.HandleFunc("/api/stats", gw.handleStats)
	mux.HandleFunc("/api/audit", gw.handleAudit)
	gw.mux = mux

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// AttachEngine connects the execution backend by registering the chat
// handler on the router. Registration is visible to all subsequent routes;
// no restart is required.
func (g *Gateway) AttachEngine(engine handlers.Engine) {
	g.router.Add(handlers.NewChat(engine, g.logger.With("component", "chat-handler")))
}

// Router returns the process-wide router instance. Every call returns the
// identical instance; handler registrations are visible to all callers.
func (g *Gateway) Router() *router.Router {
	return g.router
}

// Emitter returns the critical event emitter for the execution engine to
// report through.
func (g *Gateway) Emitter() *events.Emitter {
	return g.emitter
}

// Registry returns the connection registry.
func (g *Gateway) Registry() *registry.Registry {
	return g.registry
}

// Handler returns the HTTP handler tree, primarily for tests.
func (g *Gateway) Handler() http.Handler {
	return g.mux
}

// Run starts the HTTP server and blocks until the context is canceled or
// the server fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server, closes every registered connection, and
// releases the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.registry.CloseAll("gateway shutdown")

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
