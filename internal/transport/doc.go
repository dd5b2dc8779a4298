// Package transport implements the Streamable HTTP request router for MCP
// sessions.
//
// # Protocol
//
// A single endpoint (/mcp) serves three verbs:
//
//   - POST   — JSON-RPC messages; creates a session when an initialize
//     request arrives without a session identifier, otherwise continues
//     the session named by the Mcp-Session-Id header
//   - GET    — SSE stream of server-initiated notifications for a session
//   - DELETE — explicit session termination
//
// The session identifier travels in the Mcp-Session-Id header both ways:
// the client receives it on the initialize response and replays it on
// every subsequent request.
//
// # Rejection
//
// Requests that neither continue a live session nor start one are answered
// with a structured JSON-RPC error (code -32000) and never mutate session
// state.
package transport
