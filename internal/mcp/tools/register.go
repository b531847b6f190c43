package tools

import (
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Register registers all tools with the MCP server.
func Register(srv *sdkmcp.Server, d *Deps) {
	// Tool 1: calculate
	AddTool(srv, CalculateTool(), ToolCalculate(d))

	// Tool 2: describe_stateless_limits
	AddTool(srv, DescribeLimitsTool(), ToolDescribeLimits(d))
}
