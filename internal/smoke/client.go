// Package smoke exercises a running stateless MCP server over plain HTTP:
// one calculator call, decoded from either JSON or event-stream framing.
package smoke

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Defaults for the health wait.
const (
	DefaultHealthTimeout = 15 * time.Second
	healthPollInterval   = 200 * time.Millisecond
)

const (
	callID         = "call-1"
	initID         = "init-1"
	expectedResult = "= 11"
)

// ErrUnexpectedContentType is returned for responses that are neither JSON
// nor an event stream.
var ErrUnexpectedContentType = errors.New("unexpected content-type")

// Request is an outgoing JSON-RPC request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is a decoded JSON-RPC response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpc.Error  `json:"error,omitempty"`
}

// HasID reports whether the response answers the request with id.
func (r *Response) HasID(id string) bool {
	var got string
	if err := json.Unmarshal(r.ID, &got); err != nil {
		return false
	}
	return got == id
}

// Client talks to one server base URL, e.g. http://127.0.0.1:1071.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client. A nil hc uses http.DefaultClient.
func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// WaitForHealth polls GET /health until it answers 2xx or timeout elapses.
func (c *Client) WaitForHealth(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for {
		if c.healthy(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for /health endpoint: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Post sends payload to /mcp and decodes every JSON-RPC response in the
// reply. A single object decodes to a one-element slice.
func (c *Client) Post(ctx context.Context, payload any) ([]Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mcp", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting to /mcp: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d from /mcp", resp.StatusCode)
	}

	return Decode(resp.Header.Get("Content-Type"), raw)
}

// Decode parses a /mcp reply body according to its content type.
func Decode(contentType string, body []byte) ([]Response, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedContentType, contentType)
	}

	switch mediaType {
	case "application/json":
		return decodeJSON(body)
	case "text/event-stream":
		return decodeEventStream(body)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedContentType, contentType)
	}
}

func decodeJSON(body []byte) ([]Response, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []Response
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, fmt.Errorf("decoding batch response: %w", err)
		}
		return batch, nil
	}

	var single Response
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return []Response{single}, nil
}

// decodeEventStream collects the data field of every event. Each data line
// holds one JSON-RPC message or batch.
func decodeEventStream(body []byte) ([]Response, error) {
	var out []Response
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<24)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		msgs, err := decodeJSON([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, msgs...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading event stream: %w", err)
	}
	return out, nil
}

// Report summarizes a successful smoke run.
type Report struct {
	Text            string // text content of the calculate result
	UsedBatch       bool   // the direct call failed and the initialize batch was used
	SchemaValidated bool   // structuredContent matched the advertised outputSchema
}

// Run performs the smoke check: calculate 8 + 3 as a direct call, falling
// back to an initialize + call batch if the server rejects the direct call.
// The structured result is then validated against the tool's outputSchema.
func (c *Client) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	direct, err := c.Post(ctx, calculateCall())
	if err != nil {
		return nil, err
	}

	result, ok := find(direct, callID)
	if !ok && len(direct) == 1 {
		result, ok = &direct[0], true
	}
	if !ok {
		return nil, fmt.Errorf("response missing call result: %s", mustJSON(direct))
	}

	if result.Error != nil {
		slog.Debug("direct call rejected, retrying as batch", "error", result.Error.Message)
		report.UsedBatch = true

		batch, err := c.Post(ctx, []Request{initializeCall(), calculateCall()})
		if err != nil {
			return nil, err
		}
		result, ok = find(batch, callID)
		if !ok {
			return nil, fmt.Errorf("batch response missing call result: %s", mustJSON(batch))
		}
	}

	call, err := checkCalculateResult(result)
	if err != nil {
		return nil, err
	}
	report.Text = call.Content[0].Text

	if err := c.validateStructured(ctx, call.StructuredContent); err != nil {
		return nil, err
	}
	report.SchemaValidated = call.StructuredContent != nil

	return report, nil
}

type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
}

func checkCalculateResult(r *Response) (*toolResult, error) {
	if r.Error != nil {
		return nil, fmt.Errorf("RPC error: %d %s", r.Error.Code, r.Error.Message)
	}

	var res toolResult
	if err := json.Unmarshal(r.Result, &res); err != nil {
		return nil, fmt.Errorf("decoding tool result: %w", err)
	}
	if len(res.Content) == 0 || !strings.Contains(res.Content[0].Text, expectedResult) {
		return nil, fmt.Errorf("unexpected tool result: %s", r.Result)
	}
	return &res, nil
}

// validateStructured checks structured against the calculate outputSchema
// advertised by tools/list. Servers that advertise none are accepted.
func (c *Client) validateStructured(ctx context.Context, structured json.RawMessage) error {
	if structured == nil {
		return nil
	}

	listed, err := c.Post(ctx, Request{JSONRPC: "2.0", ID: "list-1", Method: "tools/list"})
	if err != nil {
		return err
	}
	resp, ok := find(listed, "list-1")
	if !ok || resp.Error != nil {
		return fmt.Errorf("tools/list failed: %s", mustJSON(listed))
	}

	var list struct {
		Tools []struct {
			Name         string          `json:"name"`
			OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &list); err != nil {
		return fmt.Errorf("decoding tools/list: %w", err)
	}

	for _, t := range list.Tools {
		if t.Name != "calculate" || t.OutputSchema == nil {
			continue
		}
		v, err := NewValidator(t.OutputSchema)
		if err != nil {
			return err
		}
		if err := v.Validate(structured); err != nil {
			return fmt.Errorf("structuredContent: %w", err)
		}
	}
	return nil
}

func find(msgs []Response, id string) (*Response, bool) {
	for i := range msgs {
		if msgs[i].HasID(id) {
			return &msgs[i], true
		}
	}
	return nil, false
}

func calculateCall() Request {
	return Request{
		JSONRPC: "2.0",
		ID:      callID,
		Method:  "tools/call",
		Params: map[string]any{
			"name":      "calculate",
			"arguments": map[string]any{"a": 8, "b": 3, "op": "add"},
		},
	}
}

func initializeCall() Request {
	return Request{
		JSONRPC: "2.0",
		ID:      initID,
		Method:  "initialize",
		Params: map[string]any{
			"protocolVersion": "2025-03-26",
			"clientInfo":      map[string]any{"name": "smoke-client", "version": "0.1.0"},
			"capabilities":    map[string]any{},
		},
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
