package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/usestring/stateless-mcp/internal/reqid"
)

// CalculateToolName is the registered name of the calculator tool.
const CalculateToolName = "calculate"

// Precision bounds for calculate.
const (
	MinPrecision     = 0
	MaxPrecision     = 8
	DefaultPrecision = 2
)

// Operation is an arithmetic operation supported by calculate.
type Operation string

// Supported operations.
const (
	OpAdd      Operation = "add"
	OpSubtract Operation = "subtract"
	OpMultiply Operation = "multiply"
	OpDivide   Operation = "divide"
)

// Operations lists every supported operation in schema order.
var Operations = []Operation{OpAdd, OpSubtract, OpMultiply, OpDivide}

// Symbol returns the display symbol for the operation.
func (op Operation) Symbol() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSubtract:
		return "-"
	case OpMultiply:
		return "×"
	case OpDivide:
		return "÷"
	default:
		return "?"
	}
}

// CalculateInput is the input for calculate.
type CalculateInput struct {
	A         float64   `json:"a" jsonschema:"First number"`
	B         float64   `json:"b" jsonschema:"Second number"`
	Op        Operation `json:"op" jsonschema:"Operation to execute"`
	Precision *int      `json:"precision,omitempty" jsonschema:"Decimal precision for the numeric result"`
}

// CalculateOutput is the structured output for calculate.
type CalculateOutput struct {
	Expression string  `json:"expression"`
	Result     float64 `json:"result"`
	Precision  int     `json:"precision"`
}

// CalculateTool returns the tool descriptor for calculate.
func CalculateTool() *sdkmcp.Tool {
	return &sdkmcp.Tool{
		Name:        CalculateToolName,
		Title:       "Calculator",
		Description: "Perform a stateless arithmetic operation.",
		InputSchema: calculateInputSchema(),
		Annotations: readOnlyAnnotations(),
	}
}

// calculateInputSchema infers the schema from CalculateInput and adds the
// constraints struct tags cannot express.
func calculateInputSchema() *jsonschema.Schema {
	schema, err := jsonschema.For[CalculateInput](&jsonschema.ForOptions{})
	if err != nil {
		panic(fmt.Sprintf("calculate input schema: %v", err))
	}

	op := schema.Properties["op"]
	op.Enum = make([]any, len(Operations))
	for i, o := range Operations {
		op.Enum[i] = string(o)
	}

	precision := schema.Properties["precision"]
	precision.Type = "integer"
	precision.Types = nil
	precision.Minimum = ptr(float64(MinPrecision))
	precision.Maximum = ptr(float64(MaxPrecision))
	precision.Default = json.RawMessage(strconv.Itoa(DefaultPrecision))

	return schema
}

// Compute applies op to a and b. Dividing by zero is an invalid input.
func Compute(a, b float64, op Operation) (float64, error) {
	switch op {
	case OpAdd:
		return a + b, nil
	case OpSubtract:
		return a - b, nil
	case OpMultiply:
		return a * b, nil
	case OpDivide:
		if b == 0 {
			return 0, ErrInvalidInput("Division by zero is not allowed.")
		}
		return a / b, nil
	default:
		return 0, ErrInvalidInput(fmt.Sprintf("unsupported operation: %q", op))
	}
}

// Calculate runs the full calculation: compute, round and render.
func Calculate(in CalculateInput) (CalculateOutput, error) {
	precision := DefaultPrecision
	if in.Precision != nil {
		precision = *in.Precision
	}
	if precision < MinPrecision || precision > MaxPrecision {
		return CalculateOutput{}, ErrInvalidInput(fmt.Sprintf("precision must be between %d and %d", MinPrecision, MaxPrecision))
	}

	raw, err := Compute(in.A, in.B, in.Op)
	if err != nil {
		return CalculateOutput{}, err
	}

	return CalculateOutput{
		Expression: fmt.Sprintf("%s %s %s", FormatNumber(in.A), in.Op.Symbol(), FormatNumber(in.B)),
		Result:     Round(raw, precision),
		Precision:  precision,
	}, nil
}

// Round rounds x to precision decimal digits, halves away from zero. The
// rounding works on the exact binary value of x, so 1.005 (stored as
// 1.00499999...) rounds down to 1 at two digits.
func Round(x float64, precision int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	if precision < 0 {
		precision = 0
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(precision)), nil)
	scaled := new(big.Float).SetPrec(2048).SetFloat64(math.Abs(x))
	scaled.Mul(scaled, new(big.Float).SetPrec(2048).SetInt(scale))
	scaled.Add(scaled, big.NewFloat(0.5))
	n, _ := scaled.Int(nil)

	digits := n.String()
	if precision > 0 {
		if len(digits) <= precision {
			digits = strings.Repeat("0", precision-len(digits)+1) + digits
		}
		cut := len(digits) - precision
		digits = digits[:cut] + "." + digits[cut:]
	}

	r, err := strconv.ParseFloat(digits, 64)
	if err != nil || r == 0 {
		return 0
	}
	if x < 0 {
		return -r
	}
	return r
}

// ToolCalculate performs one arithmetic operation, reporting progress along
// the way.
func ToolCalculate(d *Deps) func(ctx context.Context, req *sdkmcp.CallToolRequest, input CalculateInput) (*sdkmcp.CallToolResult, CalculateOutput, error) {
	return func(ctx context.Context, req *sdkmcp.CallToolRequest, input CalculateInput) (*sdkmcp.CallToolResult, CalculateOutput, error) {
		token := d.progressToken()

		notifyLog(ctx, req, "info", CalculateToolName, calculateLogData(ctx, input.Op))
		notifyProgress(ctx, req, token, 30)

		output, err := Calculate(input)
		if err != nil {
			return nil, CalculateOutput{}, ToProtocolError(err)
		}

		notifyProgress(ctx, req, token, 100)

		text := fmt.Sprintf("%s = %s", output.Expression, FormatNumber(output.Result))
		return TextResult(text), output, nil
	}
}

// calculateLogData is the payload of the info log sent before computing.
// The SDK does not expose the JSON-RPC id to handlers, so the HTTP
// correlation id identifies the exchange instead.
func calculateLogData(ctx context.Context, op Operation) map[string]any {
	data := map[string]any{
		"tool":      CalculateToolName,
		"operation": string(op),
	}
	if id := reqid.FromContext(ctx); id != "" {
		data["httpRequestId"] = id
	}
	return data
}

func ptr[T any](v T) *T {
	return &v
}
