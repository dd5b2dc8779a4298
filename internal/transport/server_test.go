// ABOUTME: Tests for the streamable HTTP request router.
// ABOUTME: Covers session creation, continuation, rejection, termination, and SSE streams.

package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paystream/mcp-gateway/internal/backend"
	"github.com/paystream/mcp-gateway/internal/jsonrpc"
	"github.com/paystream/mcp-gateway/internal/notify"
	"github.com/paystream/mcp-gateway/internal/session"
)

// stubBackend answers every POST with a fixed JSON-RPC result and counts
// lifecycle calls.
type stubBackend struct {
	initErr error

	mu              sync.Mutex
	handled         int
	disconnectCalls int
	hub             *notify.Hub
}

func (b *stubBackend) Initialize(_ context.Context) error { return b.initErr }

func (b *stubBackend) ConnectTransport(hub *notify.Hub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hub = hub
}

func (b *stubBackend) HandleHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.handled++
	b.mu.Unlock()

	if r.Method == http.MethodDelete {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var req jsonrpc.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = jsonrpc.WriteError(w, http.StatusOK, nil, jsonrpc.CodeParseError, "invalid JSON")
		return
	}
	_ = jsonrpc.WriteResult(w, req.ID, map[string]string{"method": req.Method})
}

func (b *stubBackend) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnectCalls++
	return nil
}

func (b *stubBackend) stats() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handled, b.disconnectCalls
}

// setupServer builds a transport server over a registry producing
// stubBackends.
func setupServer(t *testing.T, template *stubBackend) (*Server, *session.Registry, *[]*stubBackend) {
	t.Helper()

	var created []*stubBackend
	var mu sync.Mutex
	factory := func() backend.Backend {
		b := &stubBackend{initErr: template.initErr}
		mu.Lock()
		created = append(created, b)
		mu.Unlock()
		return b
	}

	registry, err := session.NewRegistry(session.Config{
		Factory: factory,
		Logger:  slog.Default(),
	})
	require.NoError(t, err)

	srv, err := NewServer(Config{Registry: registry, Logger: slog.Default()})
	require.NoError(t, err)

	return srv, registry, &created
}

func newMux(srv *Server) *http.ServeMux {
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	return mux
}

const initializeBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-11-25"}}`

// doPost performs a POST against the mux with an optional session header.
func doPost(mux *http.ServeMux, sessionID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader([]byte(body)))
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) jsonrpc.Response {
	t.Helper()
	var resp jsonrpc.Response
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp
}

func TestInitializeCreatesSession(t *testing.T) {
	srv, registry, created := setupServer(t, &stubBackend{})
	mux := newMux(srv)

	rr := doPost(mux, "", initializeBody)

	require.Equal(t, http.StatusOK, rr.Code)
	sessionID := rr.Header().Get(SessionHeader)
	require.NotEmpty(t, sessionID, "initialize response must carry the session id")

	assert.Equal(t, 1, registry.Size())
	_, ok := registry.Get(sessionID)
	assert.True(t, ok)

	// The initialize request itself reached the new backend
	require.Len(t, *created, 1)
	handled, _ := (*created)[0].stats()
	assert.Equal(t, 1, handled)
}

func TestContinueExistingSession(t *testing.T) {
	srv, _, created := setupServer(t, &stubBackend{})
	mux := newMux(srv)

	rr := doPost(mux, "", initializeBody)
	sessionID := rr.Header().Get(SessionHeader)
	require.NotEmpty(t, sessionID)

	rr = doPost(mux, sessionID, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decodeResponse(t, rr)
	require.Nil(t, resp.Error)

	handled, _ := (*created)[0].stats()
	assert.Equal(t, 2, handled)
}

func TestRejection(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
		body      string
	}{
		{"no session and not initialize", "", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`},
		{"no session and invalid JSON", "", `{not json`},
		{"unknown session id", "ghost", initializeBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, registry, _ := setupServer(t, &stubBackend{})
			mux := newMux(srv)

			rr := doPost(mux, tt.sessionID, tt.body)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			resp := decodeResponse(t, rr)
			require.NotNil(t, resp.Error)
			assert.Equal(t, jsonrpc.CodeServerError, resp.Error.Code)
			assert.Equal(t, rejectionMessage, resp.Error.Message)

			// Rejections never create or touch sessions
			assert.Equal(t, 0, registry.Size())
		})
	}
}

func TestTwoInitializesProduceIndependentSessions(t *testing.T) {
	srv, registry, created := setupServer(t, &stubBackend{})
	mux := newMux(srv)

	id1 := doPost(mux, "", initializeBody).Header().Get(SessionHeader)
	id2 := doPost(mux, "", initializeBody).Header().Get(SessionHeader)

	require.NotEmpty(t, id1)
	require.NotEmpty(t, id2)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, registry.Size())
	assert.Len(t, *created, 2)
}

func TestBackendInitFailure(t *testing.T) {
	srv, registry, _ := setupServer(t, &stubBackend{initErr: errors.New("downstream unavailable")})
	mux := newMux(srv)

	rr := doPost(mux, "", initializeBody)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	resp := decodeResponse(t, rr)
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeInternalError, resp.Error.Code)

	// No ghost session was registered
	assert.Equal(t, 0, registry.Size())
	assert.Empty(t, rr.Header().Get(SessionHeader))
}

func TestDeleteTerminatesSession(t *testing.T) {
	srv, registry, created := setupServer(t, &stubBackend{})
	mux := newMux(srv)

	sessionID := doPost(mux, "", initializeBody).Header().Get(SessionHeader)
	require.NotEmpty(t, sessionID)

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(SessionHeader, sessionID)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)

	// Backend disconnected exactly once, session gone
	_, disconnects := (*created)[0].stats()
	assert.Equal(t, 1, disconnects)
	_, ok := registry.Get(sessionID)
	assert.False(t, ok)
	assert.Equal(t, 0, registry.Size())

	// A second DELETE is rejected as unknown
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	_, disconnects = (*created)[0].stats()
	assert.Equal(t, 1, disconnects)
}

// brokenWriter fails every body write, as when the client hung up
// mid-response.
type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (bw *brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestPostWriteFailureRemovesSession(t *testing.T) {
	srv, registry, _ := setupServer(t, &stubBackend{})
	mux := newMux(srv)

	sessionID := doPost(mux, "", initializeBody).Header().Get(SessionHeader)
	require.NotEmpty(t, sessionID)

	req := httptest.NewRequest(http.MethodPost, "/mcp",
		bytes.NewReader([]byte(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)))
	req.Header.Set(SessionHeader, sessionID)
	mux.ServeHTTP(&brokenWriter{httptest.NewRecorder()}, req)

	// The dead session is reclaimed immediately, not left for the reaper
	_, ok := registry.Get(sessionID)
	assert.False(t, ok)
	assert.Equal(t, 0, registry.Size())
}

func TestDeleteWithoutSessionRejected(t *testing.T) {
	srv, _, _ := setupServer(t, &stubBackend{})
	mux := newMux(srv)

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := setupServer(t, &stubBackend{})
	mux := newMux(srv)

	req := httptest.NewRequest(http.MethodPatch, "/mcp", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "POST, GET, DELETE", rr.Header().Get("Allow"))
}

func TestNotificationStream(t *testing.T) {
	srv, registry, _ := setupServer(t, &stubBackend{})
	ts := httptest.NewServer(newMux(srv))
	defer ts.Close()

	// Create a session over the wire
	resp, err := http.Post(ts.URL+"/mcp", "application/json", strings.NewReader(initializeBody))
	require.NoError(t, err)
	sessionID := resp.Header.Get(SessionHeader)
	resp.Body.Close()
	require.NotEmpty(t, sessionID)

	sess, ok := registry.Get(sessionID)
	require.True(t, ok)

	// Open the notification stream
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set(SessionHeader, sessionID)

	streamResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer streamResp.Body.Close()

	require.Equal(t, http.StatusOK, streamResp.StatusCode)
	assert.Equal(t, "text/event-stream", streamResp.Header.Get("Content-Type"))

	// Publish once the subscriber is attached
	require.Eventually(t, func() bool {
		return sess.Transport.SubscriberCount() > 0
	}, time.Second, 5*time.Millisecond)

	payload := `{"jsonrpc":"2.0","method":"notifications/message","params":{"data":"sweep done"}}`
	sess.Transport.Publish(json.RawMessage(payload))

	scanner := bufio.NewScanner(streamResp.Body)
	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			event = strings.TrimPrefix(line, "event: ")
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}

	assert.Equal(t, "message", event)
	assert.JSONEq(t, payload, data)
}

func TestNotificationStreamRejectedWithoutSession(t *testing.T) {
	srv, _, _ := setupServer(t, &stubBackend{})
	mux := newMux(srv)

	t.Run("missing id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		resp := decodeResponse(t, rr)
		require.NotNil(t, resp.Error)
		assert.Equal(t, jsonrpc.CodeServerError, resp.Error.Code)
	})

	t.Run("unknown id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
		req.Header.Set(SessionHeader, "ghost")
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestStreamEndsWhenSessionRemoved(t *testing.T) {
	srv, registry, _ := setupServer(t, &stubBackend{})
	ts := httptest.NewServer(newMux(srv))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/mcp", "application/json", strings.NewReader(initializeBody))
	require.NoError(t, err)
	sessionID := resp.Header.Get(SessionHeader)
	resp.Body.Close()

	sess, ok := registry.Get(sessionID)
	require.True(t, ok)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set(SessionHeader, sessionID)

	streamResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer streamResp.Body.Close()

	require.Eventually(t, func() bool {
		return sess.Transport.SubscriberCount() > 0
	}, time.Second, 5*time.Millisecond)

	// Removing the session closes its hub, which ends the stream
	registry.Remove(sessionID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(streamResp.Body)
		for scanner.Scan() {
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after session removal")
	}
}

func TestIsInitializeRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"initialize", initializeBody, true},
		{"other method", `{"jsonrpc":"2.0","id":1,"method":"ping"}`, false},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"initialize"}`, false},
		{"invalid JSON", `{`, false},
		{"empty", ``, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isInitializeRequest([]byte(tt.body)))
		})
	}
}

func TestNewServerRequiresRegistry(t *testing.T) {
	_, err := NewServer(Config{})
	require.Error(t, err)
}
