// ABOUTME: JSON-RPC 2.0 wire types and response helpers shared by transport and backends.
// ABOUTME: Defines the request/response envelope, standard error codes, and HTTP writers.

package jsonrpc

import (
	"encoding/json"
	"net/http"
)

// Version is the JSON-RPC protocol version carried in every message.
const Version = "2.0"

// Standard JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeServerError is the implementation-defined server error range base,
	// used for session-layer rejections (no valid session, not an initialize).
	CodeServerError = -32000
)

// Request represents a JSON-RPC 2.0 request or notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no ID and therefore
// expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Notification represents a server-initiated JSON-RPC 2.0 notification.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewNotification builds a notification envelope for the given method.
func NewNotification(method string, params any) Notification {
	return Notification{JSONRPC: Version, Method: method, Params: params}
}

// WriteResult writes a successful JSON-RPC response with HTTP 200.
func WriteResult(w http.ResponseWriter, id json.RawMessage, result any) error {
	resp := Response{
		JSONRPC: Version,
		ID:      id,
		Result:  result,
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(resp)
}

// WriteError writes a JSON-RPC error response with the given HTTP status.
// A nil id is encoded as null, matching the no-session-context case.
func WriteError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string) error {
	resp := Response{
		JSONRPC: Version,
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(resp)
}
