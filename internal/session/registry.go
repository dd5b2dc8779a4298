// ABOUTME: Authoritative store of live sessions keyed by opaque identifier.
// ABOUTME: Owns creation, lookup, activity tracking, removal, and idle sweeps.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paystream/mcp-gateway/internal/backend"
	"github.com/paystream/mcp-gateway/internal/notify"
)

// ErrBackendInit indicates the factory or backend Initialize failed during
// session creation. No entry is registered when it is returned.
var ErrBackendInit = errors.New("backend initialization failed")

// Session is the lifetime-scoped pairing of one backend instance and one
// transport handle, addressed by a single identifier. Both are exclusively
// owned by the session and released together on removal.
type Session struct {
	ID        string
	Backend   backend.Backend
	Transport *notify.Hub

	// lastActivity is guarded by the owning registry's mutex.
	lastActivity time.Time
}

// Config holds configuration for the Registry.
type Config struct {
	Factory backend.Factory
	Clock   Clock // defaults to the real clock
	Logger  *slog.Logger
	Metrics *Metrics // optional
}

// Registry maintains the identifier -> session mapping. All mutations are
// single locked map operations: blocking work (factory, Initialize,
// Disconnect) always happens outside the lock, and a new session is
// published by one map write only after its backend initialized.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	factory backend.Factory
	clock   Clock
	logger  *slog.Logger
	metrics *Metrics
}

// NewRegistry creates a Registry. The factory is required.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Factory == nil {
		return nil, errors.New("factory is required")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = RealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		sessions: make(map[string]*Session),
		factory:  cfg.Factory,
		clock:    clock,
		logger:   logger.With("component", "session"),
		metrics:  cfg.Metrics,
	}, nil
}

// Create builds a new session: fresh backend from the factory, initialized,
// wired to a new transport handle, then registered under a generated
// identifier. Returns ErrBackendInit (wrapped) if initialization fails; no
// entry exists in that case.
func (r *Registry) Create(ctx context.Context) (*Session, error) {
	b := r.factory()
	if err := b.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendInit, err)
	}

	hub := notify.NewHub(r.logger)
	b.ConnectTransport(hub)

	sess := &Session{
		ID:           uuid.New().String(),
		Backend:      b,
		Transport:    hub,
		lastActivity: r.clock.Now(),
	}

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	total := len(r.sessions)
	r.mu.Unlock()

	r.metrics.sessionCreated(total)
	r.logger.Info("session created", "session_id", sess.ID, "total_sessions", total)
	return sess, nil
}

// Get returns the live session for the identifier. A pure lookup: it never
// updates activity, so invalid or rejected requests cannot extend a
// session's life.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	return sess, ok
}

// Touch updates the session's last activity to now. No-op if the
// identifier is unknown.
func (r *Registry) Touch(id string) {
	now := r.clock.Now()

	r.mu.Lock()
	if sess, ok := r.sessions[id]; ok {
		sess.lastActivity = now
	}
	r.mu.Unlock()
}

// Remove deletes the session and releases its backend and transport
// handle. Close failures are logged, never propagated: removal always
// succeeds from the registry's point of view. Idempotent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	total := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return
	}

	r.closeSession(sess)
	r.metrics.sessionRemoved(total)
	r.logger.Info("session removed", "session_id", id, "total_sessions", total)
}

// SweepIdle removes every session whose last activity is older than maxAge
// and returns the removed identifiers.
func (r *Registry) SweepIdle(maxAge time.Duration) []string {
	now := r.clock.Now()

	r.mu.Lock()
	var expired []*Session
	for id, sess := range r.sessions {
		if now.Sub(sess.lastActivity) > maxAge {
			expired = append(expired, sess)
			delete(r.sessions, id)
		}
	}
	total := len(r.sessions)
	r.mu.Unlock()

	removed := make([]string, 0, len(expired))
	for _, sess := range expired {
		r.closeSession(sess)
		removed = append(removed, sess.ID)
		r.metrics.sessionReaped(total)
		r.logger.Info("idle session reaped", "session_id", sess.ID, "max_age", maxAge)
	}
	return removed
}

// RemoveAll force-removes every session regardless of age. Used on
// shutdown so no backend or transport handle is leaked.
func (r *Registry) RemoveAll() []string {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for id, sess := range r.sessions {
		all = append(all, sess)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	removed := make([]string, 0, len(all))
	for _, sess := range all {
		r.closeSession(sess)
		removed = append(removed, sess.ID)
	}
	r.metrics.setLive(0)

	if len(removed) > 0 {
		r.logger.Info("all sessions removed", "count", len(removed))
	}
	return removed
}

// Size returns the count of live sessions.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// closeSession releases a session's resources best-effort. Must be called
// after the entry left the map.
func (r *Registry) closeSession(sess *Session) {
	sess.Transport.Close()
	if err := sess.Backend.Disconnect(); err != nil {
		r.logger.Warn("backend disconnect failed", "session_id", sess.ID, "error", err)
	}
}
