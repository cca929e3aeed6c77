package lifecycle

import (
	"encoding/json"

	"supplygraph-a2a/pkg/gateway"
)

// Capabilities are the capability flags of an AgentManifest.
type Capabilities struct {
	Manifest  bool `json:"manifest"`
	Run       bool `json:"run"`
	Status    bool `json:"status"`
	Results   bool `json:"results"`
	Streaming bool `json:"streaming"`
}

// Pricing is the pricing block of an AgentManifest.
type Pricing struct {
	Unit   any `json:"unit"`
	PerRun any `json:"per_run"`
}

// AgentManifest is the manifest as presented to downstream agent runtimes.
// Fields with no downstream equivalent are kept under Extended.
type AgentManifest struct {
	Object         string         `json:"object"`
	ID             any            `json:"id"`
	Name           any            `json:"name"`
	Version        any            `json:"version"`
	Description    any            `json:"description"`
	Type           string         `json:"type"`
	Capabilities   Capabilities   `json:"capabilities"`
	InputSchema    any            `json:"input_schema"`
	OutputSchema   any            `json:"output_schema"`
	Pricing        Pricing        `json:"pricing"`
	Metadata       map[string]any `json:"metadata"`
	APIKeyRequired bool           `json:"api_key_required"`
	Extended       map[string]any `json:"extended"`
}

// manifestKnownKeys are the gateway manifest keys mapped somewhere other
// than extended.extra_fields.
var manifestKnownKeys = map[string]struct{}{
	"agent_id": {}, "name": {}, "description": {}, "version": {},
	"organization": {}, "category": {}, "tags": {},
	"created_at": {}, "updated_at": {},
	"capabilities": {}, "protocol": {}, "input_schema": {}, "output_schema": {},
	"stream_event_schema": {}, "pricing": {}, "model_type": {},
	"execution_context": {}, "priority": {}, "compatibility": {},
	"lifecycle": {}, "interaction": {}, "intents": {}, "notes": {}, "auth": {},
	"license": {}, "output_rights": {}, "output_license": {},
	"compliance": {}, "usage_policy": {}, "localization": {},
	"schema_version": {}, "documentation_url": {},
}

// BuildAgentManifest converts a gateway manifest. The gateway document is
// not modified.
func BuildAgentManifest(m gateway.Manifest) AgentManifest {
	raw := manifestDocument(m)
	protocol, _ := raw["protocol"].(map[string]any)
	pricing, _ := raw["pricing"].(map[string]any)
	auth, _ := raw["auth"].(map[string]any)

	streaming, _ := protocol["streaming"].(bool)

	out := AgentManifest{
		Object:      "agent",
		ID:          raw["agent_id"],
		Name:        raw["name"],
		Version:     getOr(raw, "version", "1.0.0"),
		Description: getOr(raw, "description", ""),
		Type:        "agent",
		Capabilities: Capabilities{
			Manifest:  true,
			Run:       m.HasCapability("run"),
			Status:    m.HasCapability("status"),
			Results:   m.HasCapability("results"),
			Streaming: streaming,
		},
		InputSchema:  getOr(raw, "input_schema", map[string]any{}),
		OutputSchema: getOr(raw, "output_schema", map[string]any{}),
		Pricing: Pricing{
			Unit:   getOr(pricing, "unit", "credits"),
			PerRun: pricing["per_run"],
		},
		Metadata: map[string]any{
			"organization":      raw["organization"],
			"category":          raw["category"],
			"tags":              getOr(raw, "tags", []any{}),
			"model_type":        raw["model_type"],
			"protocol_version":  raw["protocol_version"],
			"documentation_url": raw["documentation_url"],
			"created_at":        raw["created_at"],
			"updated_at":        raw["updated_at"],
			"streaming":         protocol["streaming"],
			"endpoints":         getOr(protocol, "endpoints", map[string]any{}),
		},
		APIKeyRequired: truthy(getOr(auth, "required", true)),
	}

	extended := map[string]any{
		"execution_context": raw["execution_context"],
		"priority":          raw["priority"],
		"compatibility":     getOr(raw, "compatibility", map[string]any{}),
		"schema_version":    raw["schema_version"],
		"protocol": map[string]any{
			"base_url":  protocol["base_url"],
			"endpoints": getOr(protocol, "endpoints", map[string]any{}),
			"methods":   getOr(protocol, "methods", []any{}),
			"streaming": protocol["streaming"],
		},
		"lifecycle":      getOr(raw, "lifecycle", map[string]any{}),
		"interaction":    getOr(raw, "interaction", map[string]any{}),
		"intents":        getOr(raw, "intents", []any{}),
		"notes":          raw["notes"],
		"auth":           getOr(raw, "auth", map[string]any{}),
		"license":        raw["license"],
		"output_rights":  raw["output_rights"],
		"output_license": raw["output_license"],
		"compliance":     getOr(raw, "compliance", map[string]any{}),
		"usage_policy":   raw["usage_policy"],
		"localization":   getOr(raw, "localization", map[string]any{}),
	}
	extra := map[string]any{}
	for k, v := range raw {
		if _, known := manifestKnownKeys[k]; !known {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		extended["extra_fields"] = extra
	}
	out.Extended = extended
	return out
}

// manifestDocument returns the manifest as a plain JSON object, rebuilding
// it from the typed fields when the original document is not available.
func manifestDocument(m gateway.Manifest) map[string]any {
	if m.Raw != nil {
		return m.Raw
	}
	b, err := json.Marshal(m)
	if err != nil {
		return map[string]any{}
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil || doc == nil {
		return map[string]any{}
	}
	return doc
}

func getOr(m map[string]any, key string, fallback any) any {
	if v, ok := m[key]; ok {
		return v
	}
	return fallback
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}
