package mcp

import (
	"fmt"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/usestring/stateless-mcp/internal/mcp/prompts"
	"github.com/usestring/stateless-mcp/internal/mcp/tools"
)

const (
	// ServerName is the implementation name announced during initialize.
	ServerName = "example-mcp-stateless"
	// ServerVersion is the implementation version announced during initialize.
	ServerVersion = "2.0.0-alpha.0"
)

// Factory builds a fresh MCP server for every exchange. It holds only
// immutable configuration, so one Factory may be shared across goroutines.
type Factory struct {
	deps *tools.Deps

	// Extension toggles
	enableBuiltinTools     bool
	enableBuiltinPrompts   bool
	enableBuiltinResources bool

	// Custom extension registration callbacks
	customRegistrations []func(*sdkmcp.Server)
}

// ServerOption is a functional option for configuring the Factory.
type ServerOption func(*Factory)

// WithBuiltinTools enables calculate and describe_stateless_limits.
func WithBuiltinTools() ServerOption {
	return func(f *Factory) {
		f.enableBuiltinTools = true
	}
}

// WithBuiltinPrompts enables the design-next-tool prompt.
func WithBuiltinPrompts() ServerOption {
	return func(f *Factory) {
		f.enableBuiltinPrompts = true
	}
}

// WithBuiltinResources enables the limitations and topic-notes resources.
func WithBuiltinResources() ServerOption {
	return func(f *Factory) {
		f.enableBuiltinResources = true
	}
}

// WithToolDeps overrides the dependencies handed to builtin tools.
func WithToolDeps(d *tools.Deps) ServerOption {
	return func(f *Factory) {
		f.deps = d
	}
}

// WithCustomRegistration adds a custom registration callback.
// The callback receives each freshly built MCP server and can register
// tools, prompts, or resources directly.
func WithCustomRegistration(fn func(*sdkmcp.Server)) ServerOption {
	return func(f *Factory) {
		f.customRegistrations = append(f.customRegistrations, fn)
	}
}

// NewFactory creates a server factory with the provided options.
func NewFactory(opts ...ServerOption) *Factory {
	f := &Factory{deps: &tools.Deps{}}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewServer builds and fully registers a new MCP server. Registration panics
// raised by the SDK (for example an invalid tool schema in a custom
// registration) are returned as errors.
func (f *Factory) NewServer() (srv *sdkmcp.Server, err error) {
	defer func() {
		if r := recover(); r != nil {
			srv = nil
			err = fmt.Errorf("registering capabilities: %v", r)
		}
	}()

	srv = sdkmcp.NewServer(
		&sdkmcp.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		&sdkmcp.ServerOptions{
			Instructions: "Stateless MCP server. Every POST /mcp is handled independently.",
			// No Mcp-Session-Id is ever issued.
			GetSessionID: func() string { return "" },
		},
	)

	// Logging wraps recovery so recovered panics are logged as failed calls.
	srv.AddReceivingMiddleware(LoggingMiddleware(), RecoveryMiddleware())

	if f.enableBuiltinTools {
		tools.Register(srv, f.deps)
	}
	if f.enableBuiltinResources {
		registerResources(srv)
	}
	if f.enableBuiltinPrompts {
		prompts.Register(srv)
	}

	// Execute custom registration callbacks
	for _, fn := range f.customRegistrations {
		fn(srv)
	}

	slog.Debug("mcp server built", slog.Int("custom_registrations", len(f.customRegistrations)))
	return srv, nil
}

// Builtins returns the options enabling every builtin capability.
func Builtins() []ServerOption {
	return []ServerOption{WithBuiltinTools(), WithBuiltinPrompts(), WithBuiltinResources()}
}
