// Package tools contains the MCP tool implementations served by every
// request-scoped server.
package tools

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// MimeMarkdown is the MIME type of every text resource.
const MimeMarkdown = "text/markdown"

// TextResult creates a CallToolResult with a single text content block.
func TextResult(text string) *sdkmcp.CallToolResult {
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{
			&sdkmcp.TextContent{Text: text},
		},
	}
}

// notifyLog sends a logging notification to the client. Delivery is best
// effort: failures are logged locally and never fail the call.
func notifyLog(ctx context.Context, req *sdkmcp.CallToolRequest, level sdkmcp.LoggingLevel, logger string, data any) {
	if req == nil || req.Session == nil {
		return
	}
	err := req.Session.Log(ctx, &sdkmcp.LoggingMessageParams{
		Level:  level,
		Logger: logger,
		Data:   data,
	})
	if err != nil {
		slog.Debug("log notification not delivered", "logger", logger, "error", err)
	}
}

// notifyProgress sends a progress notification out of total 100.
// Same delivery semantics as notifyLog.
func notifyProgress(ctx context.Context, req *sdkmcp.CallToolRequest, token string, progress float64) {
	if req == nil || req.Session == nil {
		return
	}
	err := req.Session.NotifyProgress(ctx, &sdkmcp.ProgressNotificationParams{
		ProgressToken: token,
		Progress:      progress,
		Total:         100,
	})
	if err != nil {
		slog.Debug("progress notification not delivered", "token", token, "error", err)
	}
}

// FormatNumber renders a float the way a JSON number prints it: shortest
// round-trip digits, no trailing zeros, exponent only for very large or very
// small magnitudes.
func FormatNumber(v float64) string {
	if v == 0 {
		return "0"
	}
	abs := math.Abs(v)
	if abs >= 1e21 || abs < 1e-6 {
		return trimExponent(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// trimExponent drops the zero padding strconv puts on exponents: 1e-07
// becomes 1e-7.
func trimExponent(s string) string {
	i := strings.IndexByte(s, 'e')
	if i < 0 || i+2 > len(s) {
		return s
	}
	exp := strings.TrimLeft(s[i+2:], "0")
	if exp == "" {
		exp = "0"
	}
	return s[:i+2] + exp
}
