// ABOUTME: Builtin tool-serving backend speaking JSON-RPC 2.0 over forwarded HTTP.
// ABOUTME: Serves initialize, ping, tools/list, and tools/call from a TOML manifest.

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/paystream/mcp-gateway/internal/jsonrpc"
	"github.com/paystream/mcp-gateway/internal/notify"
)

// latestProtocolVersion is the version advertised in initialize responses.
const latestProtocolVersion = "2025-11-25"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// errNotInitialized indicates a request reached the backend outside its
// initialized window: before Initialize completed, or after Disconnect
// tore the session down while the request was in flight.
var errNotInitialized = errors.New("backend not initialized")

// CallToolParams are the params for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult is the result for tools/call.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Content represents content in a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ListToolsResult is the result for tools/list.
type ListToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

// ToolServerConfig holds configuration for the builtin tool backend.
type ToolServerConfig struct {
	Name     string    // server name advertised on initialize
	Version  string    // server version advertised on initialize
	Manifest *Manifest // optional declared tools
	Logger   *slog.Logger
}

// ToolServer is the builtin Backend implementation. One instance serves one
// session: it is created uninitialized by the factory, populated with tools
// during Initialize, and wired to the session's notification hub via
// ConnectTransport.
type ToolServer struct {
	name     string
	version  string
	manifest *Manifest
	logger   *slog.Logger
	tools    *toolRegistry

	// mu guards the lifecycle fields: Disconnect may run while a request
	// that looked the session up just before removal is still in flight.
	mu          sync.Mutex
	hub         *notify.Hub
	initialized bool
}

// NewToolServerFactory returns a Factory producing independent ToolServer
// instances from the shared configuration.
func NewToolServerFactory(cfg ToolServerConfig) Factory {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "mcp-gateway"
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	return func() Backend {
		return &ToolServer{
			name:     name,
			version:  version,
			manifest: cfg.Manifest,
			logger:   logger.With("component", "backend"),
		}
	}
}

// Initialize registers the built-in tools plus any manifest tools.
func (s *ToolServer) Initialize(_ context.Context) error {
	tools := newToolRegistry()

	if err := tools.register(ToolInfo{
		Name:        "echo",
		Description: "Echoes the call arguments back as text",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {"text": {"type": "string"}}}`),
	}, s.handleEcho); err != nil {
		return err
	}

	if err := tools.register(ToolInfo{
		Name:        "server_info",
		Description: "Reports the serving backend's name and version",
		InputSchema: json.RawMessage(defaultInputSchema),
	}, s.handleServerInfo); err != nil {
		return err
	}

	if s.manifest != nil {
		for _, mt := range s.manifest.Tools {
			if err := tools.register(manifestToolInfo(mt), manifestHandler(mt)); err != nil {
				return fmt.Errorf("registering manifest tool: %w", err)
			}
		}
	}

	s.tools = tools

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	return nil
}

// ConnectTransport attaches the session's notification hub.
func (s *ToolServer) ConnectTransport(hub *notify.Hub) {
	s.mu.Lock()
	s.hub = hub
	s.mu.Unlock()
}

// Disconnect releases the backend. The hub itself is closed by the session
// registry; the backend only drops its reference.
func (s *ToolServer) Disconnect() error {
	s.mu.Lock()
	s.hub = nil
	s.initialized = false
	s.mu.Unlock()
	return nil
}

// HandleHTTP processes one forwarded request. POST bodies carry a single
// JSON-RPC message; DELETE is acknowledged as a termination.
func (s *ToolServer) HandleHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodDelete {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.mu.Lock()
	initialized := s.initialized
	s.mu.Unlock()
	if !initialized {
		s.writeError(w, nil, jsonrpc.CodeInternalError, errNotInitialized.Error())
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.writeError(w, nil, jsonrpc.CodeParseError, "failed to read request body")
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.writeError(w, nil, jsonrpc.CodeInvalidRequest, "request body too large")
		return
	}

	var req jsonrpc.Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, nil, jsonrpc.CodeParseError, "invalid JSON")
		return
	}
	if req.JSONRPC != jsonrpc.Version {
		s.writeError(w, req.ID, jsonrpc.CodeInvalidRequest, "invalid JSON-RPC version")
		return
	}

	// Notifications are accepted with HTTP 202 and no body
	if req.IsNotification() {
		if strings.HasPrefix(req.Method, "notifications/") {
			s.logger.Debug("accepted notification", "method", req.Method)
		} else {
			s.logger.Warn("received notification for non-notification method", "method", req.Method)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	switch req.Method {
	case "initialize":
		s.handleInitialize(w, req)
	case "ping":
		s.writeResult(w, req.ID, struct{}{})
	case "tools/list":
		s.handleToolsList(w, req)
	case "tools/call":
		s.handleToolsCall(w, r, req)
	default:
		s.writeError(w, req.ID, jsonrpc.CodeMethodNotFound, "method not found")
	}
}

// handleInitialize answers the MCP initialize handshake.
func (s *ToolServer) handleInitialize(w http.ResponseWriter, req jsonrpc.Request) {
	result := map[string]any{
		"protocolVersion": latestProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    s.name,
			"version": s.version,
		},
	}
	s.writeResult(w, req.ID, result)
}

// handleToolsList answers tools/list.
func (s *ToolServer) handleToolsList(w http.ResponseWriter, req jsonrpc.Request) {
	result := ListToolsResult{Tools: s.tools.list()}

	s.logger.Debug("tools/list", "count", len(result.Tools))
	s.writeResult(w, req.ID, result)
}

// handleToolsCall answers tools/call and publishes a completion
// notification to the session's stream.
func (s *ToolServer) handleToolsCall(w http.ResponseWriter, r *http.Request, req jsonrpc.Request) {
	var params CallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.writeError(w, req.ID, jsonrpc.CodeInvalidParams, "invalid params")
			return
		}
	}
	if params.Name == "" {
		s.writeError(w, req.ID, jsonrpc.CodeInvalidParams, "tool name is required")
		return
	}

	tool, ok := s.tools.lookup(params.Name)
	if !ok {
		s.writeError(w, req.ID, jsonrpc.CodeInvalidParams, "tool not found")
		return
	}

	s.logger.Debug("tools/call", "tool_name", params.Name)

	output, err := tool.handler(r.Context(), params.Arguments)

	var result CallToolResult
	if err != nil {
		s.logger.Warn("tool execution failed", "tool_name", params.Name, "error", err)
		result = CallToolResult{
			Content: []Content{{Type: "text", Text: err.Error()}},
			IsError: true,
		}
	} else {
		result = CallToolResult{
			Content: []Content{{Type: "text", Text: output}},
		}
	}

	s.publishNotification("notifications/message", map[string]any{
		"level":  "info",
		"logger": s.name,
		"data":   fmt.Sprintf("tool %s completed (error=%t)", params.Name, result.IsError),
	})

	s.writeResult(w, req.ID, result)
}

// handleEcho reflects the call arguments back as text.
func (s *ToolServer) handleEcho(_ context.Context, args json.RawMessage) (string, error) {
	if len(args) == 0 || string(args) == "null" {
		return "{}", nil
	}
	return string(args), nil
}

// handleServerInfo reports the backend identity.
func (s *ToolServer) handleServerInfo(_ context.Context, _ json.RawMessage) (string, error) {
	return fmt.Sprintf("%s %s (protocol %s)", s.name, s.version, latestProtocolVersion), nil
}

// publishNotification marshals and publishes a notification if a transport
// handle is attached.
func (s *ToolServer) publishNotification(method string, params any) {
	s.mu.Lock()
	hub := s.hub
	s.mu.Unlock()
	if hub == nil {
		return
	}
	msg, err := json.Marshal(jsonrpc.NewNotification(method, params))
	if err != nil {
		s.logger.Warn("failed to encode notification", "method", method, "error", err)
		return
	}
	hub.Publish(msg)
}

func (s *ToolServer) writeResult(w http.ResponseWriter, id json.RawMessage, result any) {
	if err := jsonrpc.WriteResult(w, id, result); err != nil {
		s.logger.Warn("failed to encode JSON-RPC response", "error", err)
	}
}

func (s *ToolServer) writeError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	if err := jsonrpc.WriteError(w, http.StatusOK, id, code, message); err != nil {
		s.logger.Warn("failed to encode JSON-RPC error response", "error", err)
	}
}

// manifestToolInfo converts a declared tool into its wire definition.
func manifestToolInfo(mt ManifestTool) ToolInfo {
	schema := mt.InputSchema
	if schema == "" {
		schema = defaultInputSchema
	}
	return ToolInfo{
		Name:        mt.Name,
		Description: mt.Description,
		InputSchema: json.RawMessage(schema),
	}
}

// manifestHandler builds the handler for a declared tool.
func manifestHandler(mt ManifestTool) ToolHandler {
	switch mt.Kind {
	case "echo":
		return func(_ context.Context, args json.RawMessage) (string, error) {
			if len(args) == 0 || string(args) == "null" {
				return "{}", nil
			}
			return string(args), nil
		}
	default: // "static" and unset
		output := mt.Output
		return func(_ context.Context, _ json.RawMessage) (string, error) {
			return output, nil
		}
	}
}
