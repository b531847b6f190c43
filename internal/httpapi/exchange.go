package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/felixge/httpsnoop"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sourcegraph/conc/pool"

	"github.com/usestring/stateless-mcp/internal/reqid"
)

// ServerFactory builds a fully registered MCP server for one exchange.
type ServerFactory interface {
	NewServer() (*sdkmcp.Server, error)
}

// exchange owns the server and transport serving a single POST /mcp. It is
// never shared between requests and is closed exactly once.
type exchange struct {
	id        string
	server    *sdkmcp.Server
	transport *sdkmcp.StreamableHTTPHandler
	cancel    context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// close releases the transport and the server concurrently. Later calls
// return the first result without doing any work.
func (e *exchange) close() error {
	e.closeOnce.Do(func() {
		p := pool.New().WithErrors()
		p.Go(e.closeTransport)
		p.Go(e.closeServer)
		e.closeErr = p.Wait()

		if e.closeErr != nil {
			slog.Warn("closing mcp exchange", "request_id", e.id, "error", e.closeErr)
		}
	})
	return e.closeErr
}

func (e *exchange) closeTransport() error {
	if e.cancel != nil {
		e.cancel()
	}
	return nil
}

func (e *exchange) closeServer() error {
	if e.server == nil {
		return nil
	}
	var errs []error
	for ss := range e.server.Sessions() {
		if err := ss.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing session: %w", err))
		}
	}
	return errors.Join(errs...)
}

// MCPHandler serves POST /mcp with a fresh server and stateless transport
// per request.
type MCPHandler struct {
	factory ServerFactory
	opts    sdkmcp.StreamableHTTPOptions

	// serve runs the transport; tests replace it.
	serve func(*sdkmcp.StreamableHTTPHandler, http.ResponseWriter, *http.Request)
}

// NewMCPHandler creates the per-request MCP handler. When jsonResponse is set
// replies use application/json instead of text/event-stream.
func NewMCPHandler(factory ServerFactory, jsonResponse bool) *MCPHandler {
	return &MCPHandler{
		factory: factory,
		opts: sdkmcp.StreamableHTTPOptions{
			Stateless:    true,
			JSONResponse: jsonResponse,
		},
		serve: (*sdkmcp.StreamableHTTPHandler).ServeHTTP,
	}
}

// ServeHTTP handles one MCP exchange.
func (h *MCPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := reqid.FromContext(r.Context())

	var headersSent atomic.Bool
	sw := httpsnoop.Wrap(w, httpsnoop.Hooks{
		WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
			return func(code int) {
				headersSent.Store(true)
				next(code)
			}
		},
		Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
			return func(b []byte) (int, error) {
				headersSent.Store(true)
				return next(b)
			}
		},
		Flush: func(next httpsnoop.FlushFunc) httpsnoop.FlushFunc {
			return func() {
				headersSent.Store(true)
				next()
			}
		},
	})

	ctx, cancel := context.WithCancel(r.Context())
	ex := &exchange{id: id, cancel: cancel}

	fail := func(err error) {
		_ = ex.close()
		slog.Error("mcp request failed", "request_id", id, "error", err)
		if !headersSent.Load() {
			internalError(sw)
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			fail(fmt.Errorf("panic: %v", rec))
			return
		}
		_ = ex.close()
	}()

	srv, err := h.factory.NewServer()
	if err != nil {
		fail(fmt.Errorf("building server: %w", err))
		return
	}
	ex.server = srv
	ex.transport = sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server {
		return srv
	}, &h.opts)

	// Peer disconnect.
	stop := context.AfterFunc(r.Context(), func() { _ = ex.close() })
	defer stop()

	h.serve(ex.transport, sw, r.WithContext(ctx))
}
