package tools

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Error codes for MCP tool responses.
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeInternal     = "INTERNAL"
)

// JSON-RPC error codes surfaced to protocol clients.
const (
	CodeInvalidParams int64 = -32602
	CodeInternalError int64 = -32603
)

// CodedError is an error with an associated error code.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error {
	return e.Cause
}

// ErrInvalidInput creates an invalid input error.
func ErrInvalidInput(message string) error {
	return &CodedError{
		Code:    ErrCodeInvalidInput,
		Message: message,
	}
}

// ToProtocolError converts a tool error into a JSON-RPC error so the SDK
// reports it as a protocol-level failure rather than a tool result.
// The SDK only recognizes an unwrapped *jsonrpc.Error, so callers must return
// the value as is.
func ToProtocolError(err error) error {
	if err == nil {
		return nil
	}

	var wire *jsonrpc.Error
	if errors.As(err, &wire) {
		return wire
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		code := CodeInternalError
		if coded.Code == ErrCodeInvalidInput {
			code = CodeInvalidParams
		}
		slog.Debug("tool error",
			slog.String("code", coded.Code),
			slog.String("message", coded.Message),
		)
		return &jsonrpc.Error{Code: code, Message: coded.Message}
	}

	slog.Warn("unexpected tool error", slog.String("error", err.Error()))
	return &jsonrpc.Error{Code: CodeInternalError, Message: err.Error()}
}
