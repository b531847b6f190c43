package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/usestring/stateless-mcp/internal/reqid"
)

// LoggingMiddleware returns middleware that logs all incoming method calls
// together with the HTTP correlation id, when one is present.
func LoggingMiddleware() sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			start := time.Now()

			result, err := next(ctx, method, req)

			attrs := []slog.Attr{
				slog.String("method", method),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			}
			if id := reqid.FromContext(ctx); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				slog.LogAttrs(ctx, slog.LevelWarn, "method call failed", attrs...)
			} else {
				slog.LogAttrs(ctx, slog.LevelDebug, "method call completed", attrs...)
			}

			return result, err
		}
	}
}

// InternalErrorMessage is the JSON-RPC error message sent for a handler panic.
const InternalErrorMessage = "Internal server error"

const codeInternalError int64 = -32603

// RecoveryMiddleware turns a panic in a tool, prompt or resource handler into
// a -32603 JSON-RPC error. The SDK runs handlers on its own goroutines, out of
// reach of the HTTP handler's recover.
func RecoveryMiddleware() sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (result sdkmcp.Result, err error) {
			defer func() {
				if r := recover(); r != nil {
					slog.ErrorContext(ctx, "method handler panicked",
						slog.String("method", method),
						slog.String("request_id", reqid.FromContext(ctx)),
						slog.String("panic", fmt.Sprint(r)),
						slog.String("stack", string(debug.Stack())),
					)
					result = nil
					err = &jsonrpc.Error{Code: codeInternalError, Message: InternalErrorMessage}
				}
			}()
			return next(ctx, method, req)
		}
	}
}
