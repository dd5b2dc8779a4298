// ABOUTME: Per-session fan-out hub for server-initiated JSON-RPC notifications.
// ABOUTME: Backends publish raw messages; SSE stream subscribers receive them.

package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Hub provides in-memory pub/sub for one session's outbound notifications.
// It is the session's transport handle: the backend publishes messages and
// every open notification stream for the session receives a copy. A Hub is
// exclusively owned by a single session and closed when that session is
// removed.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan json.RawMessage
	closed      bool
	logger      *slog.Logger
}

// NewHub creates a hub. Pass nil logger for default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string]chan json.RawMessage),
		logger:      logger.With("component", "notify"),
	}
}

// Subscribe registers a subscriber and returns a channel of notifications
// plus a subscription ID. The subscription is automatically cleaned up when
// ctx is cancelled. Subscribing to a closed hub returns a closed channel.
func (h *Hub) Subscribe(ctx context.Context) (<-chan json.RawMessage, string) {
	subID := uuid.New().String()
	ch := make(chan json.RawMessage, subscriberBufferSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, subID
	}
	h.subscribers[subID] = ch
	h.mu.Unlock()

	h.logger.Debug("notification subscriber added", "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		h.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish sends a raw message to all subscribers. Non-blocking: messages
// are dropped for subscribers whose channels are full. Publishing to a
// closed hub is a no-op.
func (h *Hub) Publish(msg json.RawMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	// Sends are non-blocking, so holding the read lock here is cheap and
	// keeps Unsubscribe/Close from closing a channel mid-send.
	for _, ch := range h.subscribers {
		select {
		case ch <- msg:
		default:
			h.logger.Debug("dropped notification for slow subscriber")
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.subscribers[subID]
	if !ok {
		return
	}

	delete(h.subscribers, subID)
	close(ch)

	h.logger.Debug("notification subscriber removed", "sub_id", subID)
}

// SubscriberCount returns the number of open subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close shuts down the hub and closes all subscriber channels. Safe to call
// multiple times.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for subID, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, subID)
	}
}
