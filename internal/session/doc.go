// Package session owns the gateway's live-session state.
//
// The Registry is the authoritative store mapping session identifiers to
// their backend instance and transport handle. It is the only component
// allowed to create, look up, touch, or remove entries. Sessions become
// visible only after their backend initialized successfully; a failed
// creation leaves no partial entry behind.
//
// The Reaper drives periodic idle reclamation: a fixed-interval ticker
// calling Registry.SweepIdle with the configured timeout. It holds no
// session state of its own and is closed before the registry force-removes
// everything on shutdown.
package session
