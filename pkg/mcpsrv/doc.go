// Package mcpsrv provides an embeddable stateless MCP server over Streamable HTTP.
//
// Every POST /mcp is served by a freshly built MCP server and transport, so
// any number of replicas can sit behind a load balancer without sticky
// sessions. The builtin calculate and describe_stateless_limits tools, the
// design-next-tool prompt and the boilerplate:// resources are registered by
// default; callers extend or replace them with functional options.
//
// # Basic Usage
//
// Create a server configured from the environment and run it until the
// context is canceled:
//
//	server, err := mcpsrv.NewServer()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer server.Close()
//	if err := server.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Extension
//
// Add custom tools using MCP SDK types directly:
//
//	import mcp "github.com/modelcontextprotocol/go-sdk/mcp"
//
//	type EchoInput struct {
//	    Text string `json:"text"`
//	}
//
//	type EchoOutput struct {
//	    Text string `json:"text"`
//	}
//
//	func echo(ctx context.Context, req *mcp.CallToolRequest, in EchoInput) (*mcp.CallToolResult, EchoOutput, error) {
//	    return nil, EchoOutput{Text: in.Text}, nil
//	}
//
//	server, err := mcpsrv.NewServer(
//	    mcpsrv.WithTool(&mcp.Tool{Name: "echo", Description: "Echo text"}, echo),
//	)
//
// Registrations are replayed for every request, so handlers must not rely on
// state kept between calls.
//
// # Embedding
//
// [Server.Handler] returns the complete router (/health and /mcp with CORS,
// request ids, body limits and rate limiting) for mounting in an existing
// http.Server.
//
// # Configuration
//
// Settings are read from environment variables unless [WithConfig] is given:
//
//   - HOST, PORT: listener address (default 127.0.0.1:1071)
//   - CORS_ORIGIN: allowed origin, "*" for any (default "*")
//   - RATE_LIMIT_WINDOW_MS, RATE_LIMIT_MAX: per-IP quota (default 600 per 15m)
//   - RATE_LIMIT_REDIS_URL: share the quota across replicas through Redis
//   - MCP_JSON_RESPONSE: answer with application/json instead of SSE
//   - LOG_LEVEL, LOG_FORMAT, LOG_FILE: logging
package mcpsrv
