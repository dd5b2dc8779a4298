// Package notify implements the per-session notification hub that carries
// server-initiated messages from a backend to its open SSE streams.
package notify
