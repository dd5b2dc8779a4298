// ABOUTME: Tool registry for the builtin backend with collision detection.
// ABOUTME: Maps tool names to definitions and handler functions.

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrToolCollision indicates a tool name is already registered.
var ErrToolCollision = errors.New("tool name collision")

// ErrToolNotFound indicates the requested tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ToolHandler executes a tool call and returns its text output.
type ToolHandler func(ctx context.Context, args json.RawMessage) (string, error)

// ToolInfo is the wire representation of a tool definition.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// registeredTool pairs a definition with its handler.
type registeredTool struct {
	info    ToolInfo
	handler ToolHandler
}

// toolRegistry holds the tools served by one backend instance. A registry
// is populated during Initialize and read-only afterwards, so no lock is
// needed.
type toolRegistry struct {
	tools map[string]*registeredTool
}

func newToolRegistry() *toolRegistry {
	return &toolRegistry{tools: make(map[string]*registeredTool)}
}

// register adds a tool. Returns ErrToolCollision if the name is taken.
func (tr *toolRegistry) register(info ToolInfo, handler ToolHandler) error {
	if _, exists := tr.tools[info.Name]; exists {
		return fmt.Errorf("%w: %q", ErrToolCollision, info.Name)
	}
	tr.tools[info.Name] = &registeredTool{info: info, handler: handler}
	return nil
}

// lookup returns the tool with the given name.
func (tr *toolRegistry) lookup(name string) (*registeredTool, bool) {
	t, ok := tr.tools[name]
	return t, ok
}

// list returns all tool definitions in name order.
func (tr *toolRegistry) list() []ToolInfo {
	infos := make([]ToolInfo, 0, len(tr.tools))
	for _, t := range tr.tools {
		infos = append(infos, t.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
