package prompts

import (
	"context"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// DesignNextToolName is the registered name of the tool planning prompt.
const DesignNextToolName = "design-next-tool"

// RenderDesignNextTool renders the planning message for a domain. An empty
// constraints value renders as "none provided".
func RenderDesignNextTool(domain, constraints string) string {
	constraintLine := "Constraints: none provided."
	if constraints != "" {
		constraintLine = "Constraints: " + constraints
	}

	return strings.Join([]string{
		fmt.Sprintf("Design one high-value MCP tool for the domain: %s.", domain),
		"Keep it stateless and HTTP-first.",
		constraintLine,
		"Return tool name, input schema, output schema, and failure cases.",
	}, "\n")
}

// HandleDesignNextTool builds the design-next-tool prompt. Required argument
// checks happen in the SDK before the handler runs.
func HandleDesignNextTool(ctx context.Context, req *sdkmcp.GetPromptRequest) (*sdkmcp.GetPromptResult, error) {
	var domain, constraints string
	if req != nil && req.Params != nil && req.Params.Arguments != nil {
		domain = req.Params.Arguments["domain"]
		constraints = req.Params.Arguments["constraints"]
	}

	return &sdkmcp.GetPromptResult{
		Description: "Plan for the next stateless MCP tool",
		Messages: []*sdkmcp.PromptMessage{
			{
				Role:    "user",
				Content: &sdkmcp.TextContent{Text: RenderDesignNextTool(domain, constraints)},
			},
		},
	}, nil
}
