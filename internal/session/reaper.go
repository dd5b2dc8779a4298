// ABOUTME: Background ticker driving idle-session reclamation on the registry.
// ABOUTME: Holds no session state; purely a scheduler for SweepIdle.

package session

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultTimeout is the idle timeout applied when none is configured.
const DefaultTimeout = 30 * time.Minute

// SweepDivisor derives the default sweep interval from the timeout, so
// staleness is detected promptly without sweeping too eagerly.
const SweepDivisor = 6

// Reaper periodically sweeps the registry for idle sessions. It runs on an
// independent timer and never blocks request handling.
type Reaper struct {
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

// NewReaper creates a reaper sweeping the registry every interval with the
// given idle timeout. A zero interval defaults to timeout / SweepDivisor.
func NewReaper(registry *Registry, interval, timeout time.Duration, logger *slog.Logger) *Reaper {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if interval <= 0 {
		interval = timeout / SweepDivisor
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		registry: registry,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With("component", "reaper"),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop in a background goroutine.
func (rp *Reaper) Start() {
	rp.logger.Info("idle reaper started", "interval", rp.interval, "timeout", rp.timeout)
	go rp.loop()
}

func (rp *Reaper) loop() {
	ticker := time.NewTicker(rp.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := rp.registry.SweepIdle(rp.timeout); len(removed) > 0 {
				rp.logger.Info("swept idle sessions", "count", len(removed))
			}
		case <-rp.done:
			return
		}
	}
}

// Close stops the sweep loop. Safe to call multiple times.
func (rp *Reaper) Close() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if !rp.closed {
		close(rp.done)
		rp.closed = true
	}
}
