package bridge

import (
	"context"
	"fmt"

	"supplygraph-a2a/pkg/gateway"
	"supplygraph-a2a/pkg/lifecycle"
	"supplygraph-a2a/pkg/reasoning"
	"supplygraph-a2a/sdk/go/a2a"
)

const defaultToolDescription = "SupplyGraph A2A Agent"

// ToolInputSchema is the JSON schema of ToolCall.
func ToolInputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text":    map[string]any{"type": "string"},
			"task_id": map[string]any{"type": []any{"string", "null"}},
			"mode": map[string]any{
				"type":    "string",
				"enum":    []any{string(gateway.ModeRun), string(gateway.ModeStatus), string(gateway.ModeResults)},
				"default": string(gateway.ModeRun),
			},
			"stream": map[string]any{"type": "boolean", "default": false},
		},
		"required": []any{"mode"},
	}
}

// ToolCall is the argument object of a tool invocation.
type ToolCall struct {
	Mode   gateway.Mode   `json:"mode,omitempty"`
	Text   string         `json:"text,omitempty"`
	TaskID string         `json:"task_id,omitempty"`
	Stream bool           `json:"stream,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// Tool exposes one agent as a callable tool for runtimes that work with
// tool descriptors.
type Tool struct {
	Name         string                  `json:"name"`
	Description  string                  `json:"description"`
	InputSchema  map[string]any          `json:"input_schema"`
	OutputSchema any                     `json:"output_schema"`
	Manifest     lifecycle.AgentManifest `json:"-"`

	bridge *Bridge
}

// NewTool fetches the agent manifest and builds its tool descriptor.
func (b *Bridge) NewTool(ctx context.Context, agentID string) (*Tool, error) {
	manifest, err := b.Manifest(ctx, agentID)
	if err != nil {
		return nil, err
	}
	description, _ := manifest.Description.(string)
	if description == "" {
		description = defaultToolDescription
	}
	output := manifest.OutputSchema
	if output == nil {
		output = map[string]any{}
	}
	return &Tool{
		Name:         agentID,
		Description:  description,
		InputSchema:  ToolInputSchema(),
		OutputSchema: output,
		Manifest:     manifest,
		bridge:       b,
	}, nil
}

// Invoke dispatches a call. It answers with a lifecycle.RunObject,
// lifecycle.StatusObject or lifecycle.ResultObject, or with the collected
// []reasoning.Frame for a streaming run.
func (t *Tool) Invoke(ctx context.Context, call ToolCall) (any, error) {
	mode := call.Mode
	if mode == "" {
		mode = gateway.ModeRun
	}
	opts := a2a.RunOptions{TaskID: call.TaskID, Extra: call.Extra}
	switch mode {
	case gateway.ModeRun:
		if call.Stream {
			return t.stream(ctx, call.Text, opts)
		}
		return t.bridge.Run(ctx, t.Name, call.Text, opts)
	case gateway.ModeStatus:
		return t.bridge.Status(ctx, t.Name, call.TaskID)
	case gateway.ModeResults:
		return t.bridge.Result(ctx, t.Name, call.TaskID)
	default:
		return nil, invalidRequest(fmt.Sprintf("unsupported mode: %s", mode))
	}
}

func (t *Tool) stream(ctx context.Context, text string, opts a2a.RunOptions) ([]reasoning.Frame, error) {
	s, err := t.bridge.Stream(ctx, t.Name, text, opts)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	frames, err := reasoning.Collect(s)
	if err != nil {
		return frames, t.bridge.fail("stream", t.Name, err)
	}
	return frames, nil
}
