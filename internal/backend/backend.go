// ABOUTME: Backend contract consumed by the session registry and request router.
// ABOUTME: Defines the per-session lifecycle interface and its factory.

package backend

import (
	"context"
	"net/http"

	"github.com/paystream/mcp-gateway/internal/notify"
)

// Backend is the protocol-level handler owned by exactly one session. The
// registry calls Initialize before the session becomes visible to any
// dispatch, ConnectTransport to attach the session's notification hub, and
// Disconnect when the session is removed.
type Backend interface {
	// Initialize prepares the backend for its first request (tool and
	// capability registration). A backend that fails to initialize is
	// never registered.
	Initialize(ctx context.Context) error

	// ConnectTransport attaches the session's transport handle. Called
	// once, after Initialize succeeds and before any dispatch.
	ConnectTransport(hub *notify.Hub)

	// HandleHTTP processes one forwarded request/response pair. The body
	// carries a single JSON-RPC message on POST; DELETE is a termination
	// acknowledgment.
	HandleHTTP(w http.ResponseWriter, r *http.Request)

	// Disconnect releases backend resources. Called exactly once per
	// session removal; errors are logged by the caller, never propagated.
	Disconnect() error
}

// Factory constructs a fresh, uninitialized backend. Invoked once per
// session creation; the returned instance is exclusively owned by that
// session.
type Factory func() Backend
