package gateway

import (
	"encoding/json"
	"fmt"
)

// Manifest is the agent metadata document served by
// GET {base}/{agent}/manifest. Known fields are decoded; the complete
// document stays available in Raw so that nothing is lost.
type Manifest struct {
	AgentID          string         `json:"agent_id,omitempty"`
	Name             string         `json:"name,omitempty"`
	Version          string         `json:"version,omitempty"`
	Description      string         `json:"description,omitempty"`
	Capabilities     []string       `json:"capabilities,omitempty"`
	Protocol         Protocol       `json:"protocol"`
	Auth             map[string]any `json:"auth,omitempty"`
	Pricing          map[string]any `json:"pricing,omitempty"`
	InputSchema      map[string]any `json:"input_schema,omitempty"`
	OutputSchema     map[string]any `json:"output_schema,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	DocumentationURL string         `json:"documentation_url,omitempty"`

	Raw map[string]any `json:"-"`
}

// Protocol describes how the agent is reached.
type Protocol struct {
	BaseURL   string         `json:"base_url,omitempty"`
	Endpoints map[string]any `json:"endpoints,omitempty"`
	Methods   []string       `json:"methods,omitempty"`
	Streaming *bool          `json:"streaming,omitempty"`
}

// UnmarshalJSON decodes a manifest leniently.
func (m *Manifest) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("gateway: manifest must be a JSON object")
	}
	*m = ManifestFromMap(raw)
	return nil
}

// MarshalJSON writes the original document when available.
func (m Manifest) MarshalJSON() ([]byte, error) {
	if m.Raw != nil {
		return json.Marshal(m.Raw)
	}
	type plain Manifest
	return json.Marshal(plain(m))
}

// ManifestFromMap builds a Manifest from a decoded JSON object.
func ManifestFromMap(raw map[string]any) Manifest {
	protocol := mapOf(raw["protocol"])
	return Manifest{
		AgentID:      stringOf(raw["agent_id"]),
		Name:         stringOf(raw["name"]),
		Version:      stringOf(raw["version"]),
		Description:  stringOf(raw["description"]),
		Capabilities: stringList(raw["capabilities"]),
		Protocol: Protocol{
			BaseURL:   stringOf(protocol["base_url"]),
			Endpoints: mapOf(protocol["endpoints"]),
			Methods:   stringList(protocol["methods"]),
			Streaming: boolPtr(protocol, "streaming"),
		},
		Auth:             mapOf(raw["auth"]),
		Pricing:          mapOf(raw["pricing"]),
		InputSchema:      mapOf(raw["input_schema"]),
		OutputSchema:     mapOf(raw["output_schema"]),
		Tags:             stringList(raw["tags"]),
		DocumentationURL: stringOf(raw["documentation_url"]),
		Raw:              raw,
	}
}

// HasCapability reports whether the manifest lists the capability name.
func (m Manifest) HasCapability(name string) bool {
	for _, c := range m.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// Field returns a raw top-level field.
func (m Manifest) Field(key string) (any, bool) {
	v, ok := m.Raw[key]
	return v, ok
}
