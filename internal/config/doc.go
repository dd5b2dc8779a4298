// Package config handles configuration loading for mcp-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	backend:
//	  manifest: "${MCP_GATEWAY_MANIFEST}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	session:
//	  timeout: "30m"
//	  sweep_interval: "5m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Session lifecycle:
//
//	session:
//	  timeout: "30m"        # idle timeout before a session is reaped
//	  sweep_interval: "5m"  # defaults to timeout/6 when unset
//
// Builtin backend:
//
//	backend:
//	  manifest: "/etc/mcp-gateway/tools.toml"  # optional
//	  server_name: "mcp-gateway"
//	  server_version: "1.0.0"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Metrics:
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
package config
