// Package httpapi exposes the stateless MCP server over HTTP: health check,
// CORS, rate limiting and one fresh protocol exchange per POST /mcp.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/usestring/stateless-mcp/internal/config"
)

// MCPPath is the single protocol endpoint.
const MCPPath = "/mcp"

// corsMaxAge is the preflight cache lifetime in seconds.
const corsMaxAge = 86400

// Options configures the router.
type Options struct {
	Config  *config.Config
	Factory ServerFactory

	// RateLimit wraps every /mcp route. Nil disables rate limiting.
	RateLimit func(http.Handler) http.Handler

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewRouter builds the HTTP handler tree.
func NewRouter(o Options) http.Handler {
	cfg := o.Config
	if cfg == nil {
		cfg = config.LoadFrom(nil)
	}
	now := o.Now
	if now == nil {
		now = time.Now
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler(cfg))

	r.Get("/health", healthHandler(now))

	mcpHandler := NewMCPHandler(o.Factory, cfg.JSONResponse)
	r.Group(func(r chi.Router) {
		if o.RateLimit != nil {
			r.Use(o.RateLimit)
		}
		r.With(limitBody(int64(cfg.MaxBodyBytes))).Post(MCPPath, mcpHandler.ServeHTTP)
		r.Get(MCPPath, methodNotAllowed)
		r.Delete(MCPPath, methodNotAllowed)
	})

	return r
}

func corsHandler(cfg *config.Config) func(http.Handler) http.Handler {
	origins := []string{cfg.CORSOrigin}
	if cfg.AllowAnyOrigin() {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept", "Mcp-Protocol-Version", "Mcp-Session-Id"},
		ExposedHeaders: []string{"Mcp-Session-Id", "Mcp-Protocol-Version"},
		MaxAge:         corsMaxAge,
	})
}
