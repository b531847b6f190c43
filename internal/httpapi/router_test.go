package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usestring/stateless-mcp/internal/config"
	"github.com/usestring/stateless-mcp/internal/mcp"
	"github.com/usestring/stateless-mcp/internal/ratelimit"
	"github.com/usestring/stateless-mcp/internal/reqid"
	"github.com/usestring/stateless-mcp/internal/smoke"
)

func testConfig(env map[string]string) *config.Config {
	return config.LoadFrom(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
}

func newTestServer(t *testing.T, o Options) *httptest.Server {
	t.Helper()
	if o.Config == nil {
		o.Config = testConfig(nil)
	}
	if o.Factory == nil {
		o.Factory = mcp.NewFactory(mcp.Builtins()...)
	}
	ts := httptest.NewServer(NewRouter(o))
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

const calculateCall = `{"jsonrpc":"2.0","id":"call-1","method":"tools/call",` +
	`"params":{"name":"calculate","arguments":{"a":8,"b":3,"op":"add"}}}`

func TestHealth(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	ts := newTestServer(t, Options{Now: func() time.Time { return fixed }})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "http-stateless", body.Mode)
	assert.True(t, strings.HasPrefix(body.SDKGeneration, "go-sdk"))
	assert.Equal(t, "2026-01-02T03:04:05.006Z", body.Time)
}

func TestMCP_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, Options{})

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			req, err := http.NewRequest(method, ts.URL+MCPPath, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			want := fmt.Sprintf(`{"jsonrpc":"2.0","error":{"code":-32000,`+
				`"message":"HTTP %s is not supported in stateless mode. Use POST /mcp."},"id":null}`, method)
			assert.JSONEq(t, want, string(body))
		})
	}
}

func TestMCP_CalculateJSONResponse(t *testing.T) {
	cfg := testConfig(map[string]string{"MCP_JSON_RESPONSE": "true"})
	ts := newTestServer(t, Options{Config: cfg})

	resp := postJSON(t, ts.URL+MCPPath, calculateCall)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	assert.Empty(t, resp.Header.Get("Mcp-Session-Id"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	msgs, err := smoke.Decode(resp.Header.Get("Content-Type"), raw)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Nil(t, msgs[0].Error)
	assert.Contains(t, string(msgs[0].Result), "8 + 3 = 11")
}

func TestMCP_CalculateEventStream(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp := postJSON(t, ts.URL+MCPPath, calculateCall)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	msgs, err := smoke.Decode(resp.Header.Get("Content-Type"), raw)
	require.NoError(t, err)

	var found bool
	for _, m := range msgs {
		if m.HasID("call-1") {
			found = true
			assert.Nil(t, m.Error)
			assert.Contains(t, string(m.Result), "8 + 3 = 11")
		}
	}
	assert.True(t, found, "no response for call-1 in %s", raw)
}

// sseEnvelope is the subset of a JSON-RPC message the stream tests inspect.
type sseEnvelope struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params struct {
		Level    string  `json:"level"`
		Progress float64 `json:"progress"`
		Total    float64 `json:"total"`
	} `json:"params"`
}

func readEvents(t *testing.T, raw []byte) []sseEnvelope {
	t.Helper()
	var out []sseEnvelope
	for _, line := range strings.Split(string(raw), "\n") {
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		var env sseEnvelope
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(data)), &env))
		out = append(out, env)
	}
	return out
}

func TestMCP_CalculateStreamsLogThenProgress(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp := postJSON(t, ts.URL+MCPPath, calculateCall)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	events := readEvents(t, raw)
	require.Len(t, events, 4, "stream: %s", raw)

	assert.Equal(t, "notifications/message", events[0].Method)
	assert.Equal(t, "info", events[0].Params.Level)
	assert.Equal(t, "notifications/progress", events[1].Method)
	assert.Equal(t, 30.0, events[1].Params.Progress)
	assert.Equal(t, "notifications/progress", events[2].Method)
	assert.Equal(t, 100.0, events[2].Params.Progress)
	assert.Equal(t, 100.0, events[2].Params.Total)
	assert.Empty(t, events[3].Method)
	assert.JSONEq(t, `"call-1"`, string(events[3].ID))
}

func TestMCP_ToolPanicReturnsInternalError(t *testing.T) {
	factory := mcp.NewFactory(append(mcp.Builtins(), mcp.WithCustomRegistration(func(srv *sdkmcp.Server) {
		sdkmcp.AddTool(srv, &sdkmcp.Tool{Name: "boom"},
			func(context.Context, *sdkmcp.CallToolRequest, struct{}) (*sdkmcp.CallToolResult, any, error) {
				panic("tool exploded")
			})
	}))...)
	cfg := testConfig(map[string]string{"MCP_JSON_RESPONSE": "true"})
	ts := newTestServer(t, Options{Config: cfg, Factory: factory})

	resp := postJSON(t, ts.URL+MCPPath, `{"jsonrpc":"2.0","id":9,"method":"tools/call",`+
		`"params":{"name":"boom","arguments":{}}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	msgs, err := smoke.Decode(resp.Header.Get("Content-Type"), raw)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Error)
	assert.Equal(t, int64(-32603), msgs[0].Error.Code)
	assert.Equal(t, "Internal server error", msgs[0].Error.Message)

	// The process survives and keeps serving.
	resp = postJSON(t, ts.URL+MCPPath, calculateCall)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "8 + 3 = 11")
}

func TestMCP_DivideByZeroIsInvalidParams(t *testing.T) {
	cfg := testConfig(map[string]string{"MCP_JSON_RESPONSE": "true"})
	ts := newTestServer(t, Options{Config: cfg})

	resp := postJSON(t, ts.URL+MCPPath, `{"jsonrpc":"2.0","id":7,"method":"tools/call",`+
		`"params":{"name":"calculate","arguments":{"a":1,"b":0,"op":"divide"}}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	msgs, err := smoke.Decode(resp.Header.Get("Content-Type"), raw)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Error)
	assert.Equal(t, int64(-32602), msgs[0].Error.Code)
	assert.Equal(t, "Division by zero is not allowed.", msgs[0].Error.Message)
	assert.Empty(t, msgs[0].Result)
}

func TestMCP_EndToEndWithSDKClient(t *testing.T) {
	ts := newTestServer(t, Options{})
	ctx := context.Background()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "e2e-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, &sdkmcp.StreamableClientTransport{Endpoint: ts.URL + MCPPath}, nil)
	require.NoError(t, err)
	defer cs.Close()

	assert.Equal(t, mcp.ServerName, cs.InitializeResult().ServerInfo.Name)

	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, tools.Tools, 2)

	res, err := cs.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      "calculate",
		Arguments: map[string]any{"a": 10, "b": 4, "op": "divide", "precision": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "10 ÷ 4 = 2.5", res.Content[0].(*sdkmcp.TextContent).Text)

	topic, err := cs.ReadResource(ctx, &sdkmcp.ReadResourceParams{URI: "boilerplate://topic/Tools"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(topic.Contents[0].Text, "# tools\n\n"))

	prompt, err := cs.GetPrompt(ctx, &sdkmcp.GetPromptParams{
		Name:      "design-next-tool",
		Arguments: map[string]string{"domain": "billing"},
	})
	require.NoError(t, err)
	assert.Contains(t, prompt.Messages[0].Content.(*sdkmcp.TextContent).Text, "domain: billing.")
}

func TestMCP_ConcurrentExchangesAreIsolated(t *testing.T) {
	cfg := testConfig(map[string]string{"MCP_JSON_RESPONSE": "true"})
	ts := newTestServer(t, Options{Config: cfg})

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"tools/call",`+
				`"params":{"name":"calculate","arguments":{"a":%d,"b":1,"op":"add"}}}`, i, i)
			req, _ := http.NewRequest(http.MethodPost, ts.URL+MCPPath, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "application/json, text/event-stream")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				errs <- err
				return
			}
			defer resp.Body.Close()
			raw, _ := io.ReadAll(resp.Body)
			want := fmt.Sprintf("%d + 1 = %d", i, i+1)
			if !bytes.Contains(raw, []byte(want)) {
				errs <- fmt.Errorf("request %d: want %q in %s", i, want, raw)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

type failingFactory struct{ err error }

func (f failingFactory) NewServer() (*sdkmcp.Server, error) { return nil, f.err }

type panickingFactory struct{}

func (panickingFactory) NewServer() (*sdkmcp.Server, error) { panic("factory exploded") }

func TestMCP_InternalErrors(t *testing.T) {
	tests := []struct {
		name    string
		factory ServerFactory
	}{
		{"factory error", failingFactory{err: errors.New("no server")}},
		{"factory panic", panickingFactory{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, Options{Factory: tt.factory})

			resp := postJSON(t, ts.URL+MCPPath, calculateCall)
			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get(reqid.Header))

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.JSONEq(t, `{"jsonrpc":"2.0","error":{"code":-32603,"message":"Internal server error"},"id":null}`, string(body))
		})
	}
}

func TestMCP_BodyTooLarge(t *testing.T) {
	cfg := testConfig(map[string]string{"MAX_BODY_BYTES": "16"})
	ts := newTestServer(t, Options{Config: cfg})

	resp := postJSON(t, ts.URL+MCPPath, calculateCall)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestMCP_RateLimited(t *testing.T) {
	store, err := ratelimit.NewMemoryStore(16)
	require.NoError(t, err)
	limiter, err := ratelimit.New(store, 24*time.Hour, 2)
	require.NoError(t, err)

	cfg := testConfig(map[string]string{"MCP_JSON_RESPONSE": "true"})
	ts := newTestServer(t, Options{Config: cfg, RateLimit: limiter.Middleware(nil)})

	for i := range 2 {
		resp := postJSON(t, ts.URL+MCPPath, calculateCall)
		assert.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i+1)
		assert.Equal(t, "2", resp.Header.Get(ratelimit.HeaderLimit))
	}

	resp := postJSON(t, ts.URL+MCPPath, calculateCall)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get(ratelimit.HeaderRemaining))
	assert.NotEmpty(t, resp.Header.Get(ratelimit.HeaderRetryAfter))
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, ratelimit.RejectionMessage, string(body))

	// GET /mcp shares the same budget.
	getResp, err := http.Get(ts.URL + MCPPath)
	require.NoError(t, err)
	getResp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, getResp.StatusCode)

	health, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestCORS(t *testing.T) {
	preflight := func(t *testing.T, ts *httptest.Server, origin string) *http.Response {
		req, err := http.NewRequest(http.MethodOptions, ts.URL+MCPPath, nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Content-Type, Mcp-Protocol-Version")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	t.Run("any origin", func(t *testing.T) {
		ts := newTestServer(t, Options{})
		resp := preflight(t, ts, "https://example.com")
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "86400", resp.Header.Get("Access-Control-Max-Age"))
		assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)
	})

	t.Run("configured origin", func(t *testing.T) {
		cfg := testConfig(map[string]string{"CORS_ORIGIN": "https://app.example"})
		ts := newTestServer(t, Options{Config: cfg})

		resp := preflight(t, ts, "https://app.example")
		assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))

		resp = preflight(t, ts, "https://evil.example")
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("exposed headers on actual request", func(t *testing.T) {
		ts := newTestServer(t, Options{})
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "https://example.com")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		exposed := resp.Header.Get("Access-Control-Expose-Headers")
		assert.Contains(t, exposed, "Mcp-Session-Id")
		assert.Contains(t, exposed, "Mcp-Protocol-Version")
	})
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Len(t, resp.Header.Get(reqid.Header), 36)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.Header.Set(reqid.Header, "abc-123")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get(reqid.Header))
}
