package mcpsrv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/usestring/customs-mcp/internal/app"
	"github.com/usestring/customs-mcp/internal/config"
	"github.com/usestring/customs-mcp/internal/logging"
	"github.com/usestring/customs-mcp/internal/mcp"
	"github.com/usestring/customs-mcp/internal/mcp/tools"
)

const shutdownTimeout = 5 * time.Second

// Server is the customs MCP server.
// It wraps the internal implementation and provides extension points.
type Server struct {
	internal   *mcp.Server
	app        *app.App
	deps       *Deps
	httpAddr   string
	logCleanup func() error
}

// NewServer creates a new MCP server with builtin customs tools.
//
// A nil cfg loads configuration from the environment. The runtime restores
// a persisted session before NewServer returns; a token the API rejects is
// discarded and the server starts signed out.
func NewServer(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	sc := &serverConfig{httpAddr: cfg.MCPHTTPAddr}
	for _, opt := range opts {
		opt(sc)
	}

	logCfg := logging.FromConfig(cfg)
	if sc.logLevel != "" {
		logCfg.Level = sc.logLevel
	}
	if sc.logFile != "" {
		logCfg.FilePath = sc.logFile
	}
	logCleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}

	a, err := app.New(ctx, cfg, sc.appOptions...)
	if err != nil {
		_ = logCleanup()
		return nil, fmt.Errorf("failed to create runtime: %w", err)
	}
	if err := a.Start(ctx); err != nil {
		slog.Warn("session restore failed, starting signed out", slog.String("error", err.Error()))
	}

	toolDeps := &tools.Deps{App: a, Config: cfg}
	deps := &Deps{App: a, Config: cfg}

	var internalOpts []mcp.ServerOption
	if !sc.disableBuiltinTools {
		internalOpts = append(internalOpts, mcp.WithBuiltinTools())
	}
	if !sc.disableBuiltinPrompts {
		internalOpts = append(internalOpts, mcp.WithBuiltinPrompts())
	}
	for _, fn := range sc.toolRegistrations {
		internalOpts = append(internalOpts, mcp.WithCustomRegistration(fn))
	}
	for _, fn := range sc.promptRegistrations {
		internalOpts = append(internalOpts, mcp.WithCustomRegistration(fn))
	}
	for _, fn := range sc.resourceRegistrations {
		internalOpts = append(internalOpts, mcp.WithCustomRegistration(fn))
	}
	for _, fn := range sc.deferredToolRegistrations {
		internalOpts = append(internalOpts, mcp.WithCustomRegistration(func(srv *sdkmcp.Server) {
			fn(srv, deps)
		}))
	}

	internal, err := mcp.NewServer(toolDeps, internalOpts...)
	if err != nil {
		_ = a.Close()
		_ = logCleanup()
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	return &Server{
		internal:   internal,
		app:        a,
		deps:       deps,
		httpAddr:   sc.httpAddr,
		logCleanup: logCleanup,
	}, nil
}

// Run serves MCP until ctx is cancelled: over streamable HTTP when an
// address is configured, otherwise over stdio.
func (s *Server) Run(ctx context.Context) error {
	if s.httpAddr == "" {
		slog.Info("serving MCP on stdio")
		return s.internal.Run(ctx)
	}

	srv := &http.Server{
		Addr:              s.httpAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving MCP over HTTP", slog.String("addr", s.httpAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

// Handler returns the HTTP surface: the streamable MCP endpoint on /mcp and
// a liveness check on /healthz. Every MCP session shares the one runtime.
func (s *Server) Handler() http.Handler {
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server {
		return s.internal.MCPServer()
	}, nil)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/mcp", mcpHandler)
	r.Handle("/mcp/*", mcpHandler)
	return r
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Authenticated bool   `json:"authenticated"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:        "ok",
		Version:       mcp.Version,
		Authenticated: s.app.Session.Snapshot().IsAuthenticated,
	})
}

// Close releases the runtime and flushes logs.
func (s *Server) Close() error {
	var errs []error
	if s.app != nil {
		errs = append(errs, s.app.Close())
	}
	if s.logCleanup != nil {
		errs = append(errs, s.logCleanup())
	}
	return errors.Join(errs...)
}

// Deps returns the dependencies for building custom tools.
func (s *Server) Deps() *Deps {
	return s.deps
}
