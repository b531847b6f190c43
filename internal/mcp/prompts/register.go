// Package prompts contains the MCP prompt implementations served by every
// request-scoped server.
package prompts

import (
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Register registers all prompts with the MCP server.
func Register(srv *sdkmcp.Server) {
	// Prompt 1: design the next tool for a domain
	srv.AddPrompt(&sdkmcp.Prompt{
		Name:        DesignNextToolName,
		Title:       "Design Next Tool",
		Description: "Generate a concrete plan for the next tool in a stateless MCP server.",
		Arguments: []*sdkmcp.PromptArgument{
			{
				Name:        "domain",
				Description: "Domain for the server (for example: CRM, commerce, docs)",
				Required:    true,
			},
			{
				Name:        "constraints",
				Description: "Optional constraints such as stateless-only, read-only tools, etc.",
				Required:    false,
			},
		},
	}, HandleDesignNextTool)
}
