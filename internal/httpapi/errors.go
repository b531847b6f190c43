package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// JSON-RPC error codes used outside the SDK's own dispatch.
const (
	CodeServerError    int64 = -32000
	CodeInvalidRequest int64 = -32600
	CodeInternalError  int64 = -32603
)

// rpcErrorResponse is a JSON-RPC error envelope with a null id.
type rpcErrorResponse struct {
	JSONRPC string         `json:"jsonrpc"`
	Error   *jsonrpc.Error `json:"error"`
	ID      any            `json:"id"`
}

// writeRPCError writes a JSON-RPC error response with the given HTTP status.
func writeRPCError(w http.ResponseWriter, status int, code int64, message string) {
	body, err := json.Marshal(rpcErrorResponse{
		JSONRPC: "2.0",
		Error:   &jsonrpc.Error{Code: code, Message: message},
	})
	if err != nil {
		slog.Error("encoding json-rpc error", "error", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeRPCError(w, http.StatusMethodNotAllowed, CodeServerError,
		fmt.Sprintf("HTTP %s is not supported in stateless mode. Use POST /mcp.", r.Method))
}

func internalError(w http.ResponseWriter) {
	writeRPCError(w, http.StatusInternalServerError, CodeInternalError, "Internal server error")
}
