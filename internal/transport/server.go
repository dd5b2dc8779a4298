// ABOUTME: Streamable HTTP request router for MCP sessions (POST/GET/DELETE).
// ABOUTME: Classifies requests by session header and dispatches to backend instances.

package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/paystream/mcp-gateway/internal/jsonrpc"
	"github.com/paystream/mcp-gateway/internal/session"
)

// SessionHeader carries the session identifier on requests and is set on
// the response when a session is created.
const SessionHeader = "Mcp-Session-Id"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// rejectionMessage is returned for every request that neither continues a
// live session nor starts a new one.
const rejectionMessage = "Bad Request: No valid session ID provided or not an initialization request"

// Config holds configuration for the transport server.
type Config struct {
	Registry *session.Registry
	Logger   *slog.Logger
}

// Server routes inbound MCP requests to the correct session lifecycle
// action. Per request it lands in one of three states: HasSession (forward
// to the session's backend), NoSession (create on a valid initialize), or
// Rejected (structured -32000 error, no state touched).
type Server struct {
	registry *session.Registry
	logger   *slog.Logger
}

// NewServer creates a transport server over the given registry.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		registry: cfg.Registry,
		logger:   logger.With("component", "transport"),
	}, nil
}

// RegisterRoutes registers the MCP endpoint on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("/mcp/", s.handleMCP)
}

// handleMCP is the single MCP endpoint supporting POST, GET, and DELETE
// per the Streamable HTTP transport.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleGet(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, GET, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handlePost processes JSON-RPC messages: continue a live session, or
// create one when an initialize request arrives without an identifier.
func (s *Server) handlePost(rw http.ResponseWriter, r *http.Request) {
	// Track response starts so error paths never write over a response a
	// backend already began streaming.
	w := newTrackingWriter(rw)
	sessionID := r.Header.Get(SessionHeader)

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, nil, jsonrpc.CodeParseError, "failed to read request body")
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.sendError(w, http.StatusBadRequest, nil, jsonrpc.CodeInvalidRequest, "request body too large")
		return
	}

	// Continue an existing session: forward verbatim, the backend owns
	// payload validation.
	if sessionID != "" {
		sess, ok := s.registry.Get(sessionID)
		if !ok {
			s.reject(w, r, "unknown session")
			return
		}

		s.registry.Touch(sessionID)
		s.forward(w, r, sess, body)
		return
	}

	// No identifier: only a well-formed initialize request may start a
	// session. The probe inspects the method without executing anything.
	if !isInitializeRequest(body) {
		s.reject(w, r, "not an initialize request")
		return
	}

	sess, err := s.registry.Create(r.Context())
	if err != nil {
		s.logger.Error("session creation failed", "error", err)
		s.sendInternalError(w)
		return
	}

	w.Header().Set(SessionHeader, sess.ID)
	s.forward(w, r, sess, body)
}

// handleGet opens the server-push notification stream for a live session.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		s.reject(w, r, "missing session id on stream request")
		return
	}
	sess, ok := s.registry.Get(sessionID)
	if !ok {
		s.reject(w, r, "unknown session on stream request")
		return
	}
	s.registry.Touch(sessionID)

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("response writer does not support streaming")
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.logger.Debug("notification stream opened", "session_id", sessionID)

	ch, subID := sess.Transport.Subscribe(r.Context())
	defer sess.Transport.Unsubscribe(subID)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-ch:
			if !open {
				// Hub closed: the session was removed
				return
			}
			if err := writeSSE(w, "message", msg); err != nil {
				// Client is gone; remove the dead session so it
				// doesn't linger as idle cruft
				s.logger.Warn("stream write failed, removing session",
					"session_id", sessionID, "error", err)
				s.registry.Remove(sessionID)
				return
			}
			flusher.Flush()
		}
	}
}

// handleDelete terminates a session explicitly. The registry removal is
// unconditional: the session is gone even if the backend's acknowledgment
// never reaches the caller.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		s.reject(w, r, "missing session id on terminate request")
		return
	}
	sess, ok := s.registry.Get(sessionID)
	if !ok {
		s.reject(w, r, "unknown session on terminate request")
		return
	}

	tw := newTrackingWriter(w)
	sess.Backend.HandleHTTP(tw, r)

	s.registry.Remove(sessionID)
	s.logger.Info("session terminated", "session_id", sessionID)

	if !tw.wrote {
		w.WriteHeader(http.StatusNoContent)
	}
}

// forward hands the request to the session's backend with the body
// restored, since classification already consumed it. A response write
// failure means the client is gone, so the dead session is removed rather
// than left to linger until the reaper.
func (s *Server) forward(w *trackingWriter, r *http.Request, sess *session.Session, body []byte) {
	r.Body = io.NopCloser(bytes.NewReader(body))
	sess.Backend.HandleHTTP(w, r)

	if w.writeErr != nil {
		s.logger.Warn("response write failed, removing session",
			"session_id", sess.ID, "error", w.writeErr)
		s.registry.Remove(sess.ID)
	}
}

// reject answers a request that maps to no session lifecycle action. No
// session is touched or created.
func (s *Server) reject(w http.ResponseWriter, r *http.Request, reason string) {
	s.logger.Debug("request rejected",
		"method", r.Method,
		"reason", reason,
	)
	s.sendError(w, http.StatusBadRequest, nil, jsonrpc.CodeServerError, rejectionMessage)
}

// sendInternalError surfaces a backend-initialization failure as a generic
// 500. Skipped if the response already started streaming.
func (s *Server) sendInternalError(w http.ResponseWriter) {
	if tw, ok := w.(*trackingWriter); ok && tw.wrote {
		s.logger.Warn("response already started, cannot write error")
		return
	}
	s.sendError(w, http.StatusInternalServerError, nil, jsonrpc.CodeInternalError, "internal error")
}

func (s *Server) sendError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string) {
	if err := jsonrpc.WriteError(w, status, id, code, message); err != nil {
		s.logger.Warn("failed to encode JSON-RPC error response", "error", err)
	}
}

// isInitializeRequest classifies a request body as an initialize request
// without fully parsing or executing it.
func isInitializeRequest(body []byte) bool {
	var probe struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.JSONRPC == jsonrpc.Version && probe.Method == "initialize"
}

// writeSSE writes one Server-Sent Event with the given event name.
func writeSSE(w io.Writer, event string, data []byte) error {
	if _, err := io.WriteString(w, "event: "+event+"\n"); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "data: "+string(data)+"\n\n"); err != nil {
		return err
	}
	return nil
}
