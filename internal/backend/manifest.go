// ABOUTME: TOML tool manifest loading for the builtin backend.
// ABOUTME: Declares static tools (name, description, schema, canned output).

package backend

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Manifest declares the tools a ToolServer exposes in addition to its
// built-in handlers.
type Manifest struct {
	Tools []ManifestTool `toml:"tool"`
}

// ManifestTool is one declared tool. Kind selects the handler: "static"
// returns Output verbatim, "echo" reflects the call arguments back.
type ManifestTool struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	InputSchema string `toml:"input_schema"`
	Kind        string `toml:"kind"`
	Output      string `toml:"output"`
}

// defaultInputSchema is used when a manifest tool declares no schema.
const defaultInputSchema = `{"type": "object"}`

// LoadManifest reads and validates a TOML tool manifest.
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("validating manifest %s: %w", path, err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	seen := make(map[string]struct{}, len(m.Tools))
	for i, t := range m.Tools {
		if t.Name == "" {
			return fmt.Errorf("tool %d: name is required", i)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("tool %q: %w", t.Name, ErrToolCollision)
		}
		seen[t.Name] = struct{}{}

		switch t.Kind {
		case "", "static", "echo":
		default:
			return fmt.Errorf("tool %q: unknown kind %q", t.Name, t.Kind)
		}
	}
	return nil
}
