// Package gateway assembles the MCP session components into a runnable
// server: the session registry, the idle reaper, the streamable HTTP
// transport, and the observability endpoints (/healthz, /metrics).
//
// Shutdown order matters: the reaper's timer is cancelled first, then
// every remaining session is force-removed regardless of age, then the
// HTTP server drains.
package gateway
