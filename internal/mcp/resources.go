package mcp

import (
	"context"
	"net/url"
	"sort"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/usestring/stateless-mcp/internal/mcp/tools"
)

// Resource URI scheme: boilerplate://
// Supported URIs:
//   boilerplate://limitations
//   boilerplate://topic/{topic}
const (
	LimitationsURI      = "boilerplate://limitations"
	TopicURITemplate    = "boilerplate://topic/{topic}"
	topicURIPrefix      = "boilerplate://topic/"
	unknownTopicBody    = "- Unknown topic. Try: transport, tools, prompts, resources."
	minTopicLength      = 2
	limitationsResource = "limitations"
	topicNotesResource  = "topic-notes"
)

// LimitationsDocument is the fixed body of the limitations resource.
var LimitationsDocument = strings.Join([]string{
	"# Stateless MCP Limits",
	"",
	"- No server-managed session continuity across requests.",
	"- Resumability/event replay requires stateful mode + event store.",
	"- Server-side SSE transport was removed in v2; use Streamable HTTP.",
	"- Server auth is intentionally out-of-scope in SDK v2; use external auth middleware.",
}, "\n")

// TopicNotes maps known topic keys to their note bodies.
var TopicNotes = map[string]string{
	"transport": "- Stateless mode: `StreamableHTTPOptions{Stateless: true}`\n" +
		"- Handle each POST independently\n" +
		"- Keep cleanup request-scoped",
	"tools": "- Use `mcp.AddTool` with typed input and output\n" +
		"- Derive schemas from struct tags\n" +
		"- Return `*jsonrpc.Error` for protocol-facing failures",
	"prompts": "- Use `AddPrompt` with declared arguments\n" +
		"- Keep prompts focused and reusable\n" +
		"- Prefer explicit constraints in prompt args",
	"resources": "- Use `AddResource` with a name and MIME type\n" +
		"- Use `AddResourceTemplate` for parameterized URIs\n" +
		"- Keep resources side-effect free",
}

var lowerTopic = cases.Lower(language.Und)

// TopicNames returns the known topic keys in sorted order.
func TopicNames() []string {
	names := make([]string, 0, len(TopicNotes))
	for name := range TopicNotes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TopicResources lists one concrete resource per known topic.
func TopicResources() []*sdkmcp.Resource {
	names := TopicNames()
	out := make([]*sdkmcp.Resource, 0, len(names))
	for _, name := range names {
		out = append(out, &sdkmcp.Resource{
			URI:      topicURIPrefix + name,
			Name:     name,
			MIMEType: tools.MimeMarkdown,
		})
	}
	return out
}

// RenderTopic renders the notes for a topic. Topics shorter than two
// characters render as "unknown"; unknown topics get the fallback body.
func RenderTopic(topic string) string {
	key := ""
	if len([]rune(topic)) >= minTopicLength {
		key = lowerTopic.String(topic)
	}

	body, ok := TopicNotes[key]
	if !ok {
		body = unknownTopicBody
	}

	heading := key
	if heading == "" {
		heading = "unknown"
	}
	return "# " + heading + "\n\n" + body
}

// registerResources registers the limitations document, the topic-notes
// template and the concrete topic listing.
func registerResources(srv *sdkmcp.Server) {
	srv.AddResource(&sdkmcp.Resource{
		URI:         LimitationsURI,
		Name:        limitationsResource,
		Title:       "Stateless Limitations",
		Description: "Practical limits and design constraints of HTTP stateless MCP servers.",
		MIMEType:    tools.MimeMarkdown,
	}, handleLimitations)

	srv.AddResourceTemplate(&sdkmcp.ResourceTemplate{
		URITemplate: TopicURITemplate,
		Name:        topicNotesResource,
		Title:       "Topic Notes",
		Description: "Focused notes for each MCP server building block.",
		MIMEType:    tools.MimeMarkdown,
	}, handleTopicNotes)

	for _, r := range TopicResources() {
		srv.AddResource(r, handleTopicNotes)
	}
}

// Resource handlers

func handleLimitations(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
	return markdownResult(req.Params.URI, LimitationsDocument), nil
}

func handleTopicNotes(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
	topic, err := parseTopicURI(req.Params.URI)
	if err != nil {
		return nil, err
	}
	return markdownResult(req.Params.URI, RenderTopic(topic)), nil
}

// Helper functions

// parseTopicURI extracts the topic segment from a boilerplate://topic/ URI.
func parseTopicURI(uri string) (string, error) {
	if !strings.HasPrefix(uri, topicURIPrefix) {
		return "", sdkmcp.ResourceNotFoundError(uri)
	}
	raw := strings.TrimPrefix(uri, topicURIPrefix)
	topic, err := url.PathUnescape(raw)
	if err != nil {
		return raw, nil
	}
	return topic, nil
}

func markdownResult(uri, text string) *sdkmcp.ReadResourceResult {
	return &sdkmcp.ReadResourceResult{
		Contents: []*sdkmcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: tools.MimeMarkdown,
				Text:     text,
			},
		},
	}
}
