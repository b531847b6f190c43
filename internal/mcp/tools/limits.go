package tools

import (
	"context"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// DescribeLimitsToolName is the registered name of the limits tool.
const DescribeLimitsToolName = "describe_stateless_limits"

// DescribeLimitsInput is the input for describe_stateless_limits.
type DescribeLimitsInput struct{}

// StatelessTradeOffs is the fixed text returned by describe_stateless_limits.
var StatelessTradeOffs = strings.Join([]string{
	"Stateless MCP trade-offs:",
	"1) No resumability/event replay across requests.",
	"2) No in-memory session affinity.",
	"3) Long-running operations should be externalized (tasks queue or durable store).",
}, "\n")

// DescribeLimitsTool returns the tool descriptor for describe_stateless_limits.
func DescribeLimitsTool() *sdkmcp.Tool {
	return &sdkmcp.Tool{
		Name:        DescribeLimitsToolName,
		Description: "Return practical trade-offs of stateless Streamable HTTP.",
		Annotations: readOnlyAnnotations(),
	}
}

// ToolDescribeLimits returns the stateless trade-offs.
func ToolDescribeLimits(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input DescribeLimitsInput) (*sdkmcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input DescribeLimitsInput) (*sdkmcp.CallToolResult, any, error) {
		notifyLog(ctx, req, "debug", DescribeLimitsToolName, map[string]any{
			"tool": DescribeLimitsToolName,
		})
		return TextResult(StatelessTradeOffs), nil, nil
	}
}

func readOnlyAnnotations() *sdkmcp.ToolAnnotations {
	return &sdkmcp.ToolAnnotations{
		ReadOnlyHint:    true,
		DestructiveHint: ptr(false),
		IdempotentHint:  true,
	}
}
