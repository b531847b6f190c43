package mcpsrv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/usestring/stateless-mcp/internal/config"
	"github.com/usestring/stateless-mcp/internal/httpapi"
	"github.com/usestring/stateless-mcp/internal/logging"
	"github.com/usestring/stateless-mcp/internal/mcp"
	"github.com/usestring/stateless-mcp/internal/mcp/tools"
	"github.com/usestring/stateless-mcp/internal/ratelimit"
)

const readHeaderTimeout = 10 * time.Second

// Server is the stateless MCP HTTP server.
// It owns the router, the rate limit store and the log sink.
type Server struct {
	config       *config.Config
	handler      http.Handler
	limiterClose func()
	logCleanup   func() error
}

// NewServer creates a new stateless MCP server with the builtin tools,
// prompts and resources.
//
// Configuration is loaded from the environment unless WithConfig is given.
// Use functional options to configure logging, add custom tools, etc.
func NewServer(opts ...Option) (*Server, error) {
	sc := &serverConfig{}
	for _, opt := range opts {
		opt(sc)
	}
	if sc.config == nil {
		sc.config = config.Load()
	}
	cfg := sc.config

	logCfg := logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		FilePath:   cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Compress:   cfg.LogCompress,
	}
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

	factoryOpts := []mcp.ServerOption{
		mcp.WithToolDeps(&tools.Deps{NewProgressToken: sc.newProgressToken}),
	}
	if !sc.disableBuiltinTools {
		factoryOpts = append(factoryOpts, mcp.WithBuiltinTools())
	}
	if !sc.disableBuiltinPrompts {
		factoryOpts = append(factoryOpts, mcp.WithBuiltinPrompts())
	}
	if !sc.disableBuiltinResources {
		factoryOpts = append(factoryOpts, mcp.WithBuiltinResources())
	}
	for _, fn := range sc.registrations {
		factoryOpts = append(factoryOpts, mcp.WithCustomRegistration(fn))
	}
	factory := mcp.NewFactory(factoryOpts...)

	// Build one server up front so broken registrations fail at startup
	// instead of on every request.
	if _, err := factory.NewServer(); err != nil {
		_ = logCleanup()
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	routerOpts := httpapi.Options{
		Config:  cfg,
		Factory: factory,
		Now:     sc.now,
	}
	limiterClose := func() {}
	if !sc.disableRateLimit {
		limiter, closeFn, err := ratelimit.Open(ratelimit.Options{
			Window:   cfg.RateLimitWindow,
			Max:      cfg.RateLimitMax,
			MaxKeys:  cfg.RateLimitMaxKeys,
			RedisURL: cfg.RateLimitRedis,
		})
		if err != nil {
			_ = logCleanup()
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		routerOpts.RateLimit = limiter.Middleware(nil)
		limiterClose = closeFn
	}

	return &Server{
		config:       cfg,
		handler:      httpapi.NewRouter(routerOpts),
		limiterClose: limiterClose,
		logCleanup:   logCleanup,
	}, nil
}

// Handler returns the HTTP handler serving /health and /mcp.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Config returns the effective configuration.
func (s *Server) Config() *config.Config {
	return s.config
}

// Run listens on the configured host and port and serves until ctx is
// canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled. In-flight requests
// get up to the configured shutdown timeout to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info(fmt.Sprintf("MCP stateless server ready at http://%s%s", ln.Addr(), httpapi.MCPPath))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Shutdown complete.")
	return nil
}

// Close releases the rate limit store and the log file.
func (s *Server) Close() error {
	s.limiterClose()
	if s.logCleanup != nil {
		return s.logCleanup()
	}
	return nil
}
