// Package jsonrpc provides the JSON-RPC 2.0 envelope types used on the MCP
// wire, along with helpers for writing responses and errors over HTTP.
package jsonrpc
