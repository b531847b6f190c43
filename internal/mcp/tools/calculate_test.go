package tools

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usestring/stateless-mcp/internal/reqid"
)

func intPtr(v int) *int { return &v }

func TestCompute(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		op   Operation
		want float64
	}{
		{"add", 8, 3, OpAdd, 11},
		{"subtract", 8, 3, OpSubtract, 5},
		{"multiply", 8, 3, OpMultiply, 24},
		{"divide", 8, 4, OpDivide, 2},
		{"negative add", -2.5, 1, OpAdd, -1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(tt.a, tt.b, tt.op)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompute_DivideByZero(t *testing.T) {
	_, err := Compute(1, 0, OpDivide)
	require.Error(t, err)

	var coded *CodedError
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ErrCodeInvalidInput, coded.Code)
	assert.Equal(t, "Division by zero is not allowed.", coded.Message)
}

func TestCompute_UnknownOperation(t *testing.T) {
	_, err := Compute(1, 2, Operation("modulo"))
	var coded *CodedError
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ErrCodeInvalidInput, coded.Code)
}

func TestRound(t *testing.T) {
	tests := []struct {
		x         float64
		precision int
		want      float64
	}{
		{11, 2, 11},
		{2.0 / 3.0, 2, 0.67},
		{2.0 / 3.0, 0, 1},
		{0.125, 2, 0.13},
		{-0.125, 2, -0.13},
		{2.5, 0, 3},
		{-2.5, 0, -3},
		{1.005, 2, 1},
		{1.23456789, 8, 1.23456789},
		{10.0 / 3.0, 8, 3.33333333},
		{0.004, 2, 0},
		{-0.004, 2, 0},
		{123456.789, 1, 123456.8},
	}
	for _, tt := range tests {
		got := Round(tt.x, tt.precision)
		assert.Equal(t, tt.want, got, "Round(%v, %d)", tt.x, tt.precision)
	}
}

func TestRound_NoNegativeZero(t *testing.T) {
	got := Round(-0.001, 2)
	assert.False(t, math.Signbit(got))
}

func TestRound_NonFinite(t *testing.T) {
	assert.True(t, math.IsInf(Round(math.Inf(1), 2), 1))
	assert.True(t, math.IsNaN(Round(math.NaN(), 2)))
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name string
		in   CalculateInput
		want CalculateOutput
	}{
		{
			name: "add default precision",
			in:   CalculateInput{A: 8, B: 3, Op: OpAdd},
			want: CalculateOutput{Expression: "8 + 3", Result: 11, Precision: 2},
		},
		{
			name: "subtract",
			in:   CalculateInput{A: 1.5, B: 0.25, Op: OpSubtract, Precision: intPtr(3)},
			want: CalculateOutput{Expression: "1.5 - 0.25", Result: 1.25, Precision: 3},
		},
		{
			name: "multiply",
			in:   CalculateInput{A: 2, B: 3.333, Op: OpMultiply, Precision: intPtr(1)},
			want: CalculateOutput{Expression: "2 × 3.333", Result: 6.7, Precision: 1},
		},
		{
			name: "divide",
			in:   CalculateInput{A: 10, B: 3, Op: OpDivide, Precision: intPtr(4)},
			want: CalculateOutput{Expression: "10 ÷ 3", Result: 3.3333, Precision: 4},
		},
		{
			name: "zero precision",
			in:   CalculateInput{A: 7, B: 2, Op: OpDivide, Precision: intPtr(0)},
			want: CalculateOutput{Expression: "7 ÷ 2", Result: 4, Precision: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calculate(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculate_PrecisionOutOfRange(t *testing.T) {
	for _, p := range []int{-1, 9} {
		_, err := Calculate(CalculateInput{A: 1, B: 1, Op: OpAdd, Precision: intPtr(p)})
		assert.Error(t, err, "precision %d", p)
	}
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "8", FormatNumber(8))
	assert.Equal(t, "2.5", FormatNumber(2.5))
	assert.Equal(t, "-3", FormatNumber(-3))
	assert.Equal(t, "0", FormatNumber(math.Copysign(0, -1)))
	assert.Equal(t, "1e+21", FormatNumber(1e21))
	assert.Equal(t, "1.5e+22", FormatNumber(1.5e22))
	assert.Equal(t, "1e-7", FormatNumber(1e-7))
	assert.Equal(t, "-2.5e-10", FormatNumber(-2.5e-10))
	assert.Equal(t, "0.000001", FormatNumber(1e-6))
}

func TestCalculateLogData(t *testing.T) {
	assert.Equal(t, map[string]any{"tool": CalculateToolName, "operation": "add"},
		calculateLogData(context.Background(), OpAdd))

	ctx := reqid.NewContext(context.Background(), "req-42")
	data := calculateLogData(ctx, OpDivide)
	assert.Equal(t, "req-42", data["httpRequestId"])
	assert.Equal(t, "divide", data["operation"])
	assert.NotContains(t, data, "requestId")
}

func TestToProtocolError(t *testing.T) {
	assert.NoError(t, ToProtocolError(nil))

	err := ToProtocolError(ErrInvalidInput("bad"))
	wire, ok := err.(*jsonrpc.Error)
	require.True(t, ok, "expected *jsonrpc.Error, got %T", err)
	assert.Equal(t, CodeInvalidParams, wire.Code)
	assert.Equal(t, "bad", wire.Message)

	err = ToProtocolError(assert.AnError)
	wire, ok = err.(*jsonrpc.Error)
	require.True(t, ok)
	assert.Equal(t, CodeInternalError, wire.Code)
}

func TestCalculateTool_InputSchema(t *testing.T) {
	tool := CalculateTool()
	schema, ok := tool.InputSchema.(*jsonschema.Schema)
	require.True(t, ok)

	assert.ElementsMatch(t, []string{"a", "b", "op"}, schema.Required)
	assert.Equal(t, []any{"add", "subtract", "multiply", "divide"}, schema.Properties["op"].Enum)

	precision := schema.Properties["precision"]
	assert.Equal(t, "integer", precision.Type)
	require.NotNil(t, precision.Minimum)
	require.NotNil(t, precision.Maximum)
	assert.Equal(t, 0.0, *precision.Minimum)
	assert.Equal(t, 8.0, *precision.Maximum)
	assert.JSONEq(t, "2", string(precision.Default))

	assert.True(t, tool.Annotations.ReadOnlyHint)
	assert.True(t, tool.Annotations.IdempotentHint)
	require.NotNil(t, tool.Annotations.DestructiveHint)
	assert.False(t, *tool.Annotations.DestructiveHint)
}

type progressRecorder struct {
	mu     sync.Mutex
	events []*sdkmcp.ProgressNotificationParams
}

func (r *progressRecorder) handle(_ context.Context, req *sdkmcp.ProgressNotificationClientRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, req.Params)
}

func (r *progressRecorder) snapshot() []*sdkmcp.ProgressNotificationParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*sdkmcp.ProgressNotificationParams(nil), r.events...)
}

// connect wires a server with the builtin tools to an in-memory client.
func connect(t *testing.T, d *Deps, opts *sdkmcp.ClientOptions) *sdkmcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	srv := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "tools-test", Version: "0.0.1"}, nil)
	Register(srv, d)

	ct, st := sdkmcp.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, st, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, opts)
	cs, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })

	return cs
}

func TestToolCalculate_OverSession(t *testing.T) {
	rec := &progressRecorder{}
	d := &Deps{NewProgressToken: func() string { return "tok-1" }}
	cs := connect(t, d, &sdkmcp.ClientOptions{ProgressNotificationHandler: rec.handle})

	res, err := cs.CallTool(context.Background(), &sdkmcp.CallToolParams{
		Name:      CalculateToolName,
		Arguments: map[string]any{"a": 8, "b": 3, "op": "add"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Len(t, res.Content, 1)

	text, ok := res.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "8 + 3 = 11", text.Text)
	assert.Contains(t, text.Text, "= 11")

	structured, ok := res.StructuredContent.(map[string]any)
	require.True(t, ok, "structured content: %T", res.StructuredContent)
	assert.Equal(t, "8 + 3", structured["expression"])
	assert.Equal(t, 11.0, structured["result"])
	assert.Equal(t, 2.0, structured["precision"])

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 10*time.Millisecond)
	events := rec.snapshot()
	assert.Equal(t, 30.0, events[0].Progress)
	assert.Equal(t, 100.0, events[1].Progress)
	for _, e := range events {
		assert.Equal(t, "tok-1", e.ProgressToken)
		assert.Equal(t, 100.0, e.Total)
	}
}

func TestToolCalculate_DivideByZeroIsProtocolError(t *testing.T) {
	cs := connect(t, nil, nil)

	res, err := cs.CallTool(context.Background(), &sdkmcp.CallToolParams{
		Name:      CalculateToolName,
		Arguments: map[string]any{"a": 1, "b": 0, "op": "divide"},
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "Division by zero is not allowed.")
}

func TestToolCalculate_RejectsUnknownOperation(t *testing.T) {
	cs := connect(t, nil, nil)

	_, err := cs.CallTool(context.Background(), &sdkmcp.CallToolParams{
		Name:      CalculateToolName,
		Arguments: map[string]any{"a": 1, "b": 2, "op": "modulo"},
	})
	assert.Error(t, err)
}

func TestToolDescribeLimits_OverSession(t *testing.T) {
	cs := connect(t, nil, nil)

	res, err := cs.CallTool(context.Background(), &sdkmcp.CallToolParams{
		Name:      DescribeLimitsToolName,
		Arguments: map[string]any{},
	})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text := res.Content[0].(*sdkmcp.TextContent).Text
	assert.Equal(t, StatelessTradeOffs, text)
	assert.Contains(t, text, "1) No resumability/event replay across requests.")
}

func TestRegister_ListsTools(t *testing.T) {
	cs := connect(t, nil, nil)

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{CalculateToolName, DescribeLimitsToolName}, names)
}
