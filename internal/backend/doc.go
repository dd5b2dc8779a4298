// Package backend defines the contract between the session layer and the
// protocol handlers it multiplexes, and ships the builtin tool-serving
// backend used by the gateway binary.
//
// The session registry treats a backend as an opaque triple of lifecycle
// capabilities: Initialize, ConnectTransport, Disconnect. Requests reach
// the backend through HandleHTTP with the raw request/response pair.
//
// The builtin ToolServer speaks JSON-RPC 2.0: initialize, ping,
// tools/list, and tools/call, with tool definitions loaded from a TOML
// manifest alongside two built-in tools (echo, server_info).
package backend
