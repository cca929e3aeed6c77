package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Envelope is the gateway's response wrapper returned by every run, status
// and results call, and carried by streamed events.
type Envelope struct {
	Success  *bool    `json:"success,omitempty"`
	Code     string   `json:"code,omitempty"`
	Message  *string  `json:"message,omitempty"`
	TaskID   string   `json:"task_id,omitempty"`
	Data     TaskData `json:"data"`
	Metadata Metadata `json:"metadata"`
	Errors   any      `json:"errors,omitempty"`

	// Raw is the undecoded response object.
	Raw map[string]any `json:"-"`
}

// TaskData is the envelope's data block. Pointer and interface fields are
// nil when the gateway omitted them.
type TaskData struct {
	TaskID            string         `json:"task_id,omitempty"`
	Agent             *string        `json:"agent,omitempty"`
	Stage             *string        `json:"stage,omitempty"`
	Code              *string        `json:"code,omitempty"`
	Progress          any            `json:"progress,omitempty"`
	Reasoning         []string       `json:"reasoning,omitempty"`
	IntermediateSteps []Step         `json:"intermediate_steps,omitempty"`
	Content           any            `json:"content,omitempty"`
	Timestamp         any            `json:"timestamp,omitempty"`
	IsFinal           *bool          `json:"is_final,omitempty"`
	Input             any            `json:"input,omitempty"`
	HasInput          bool           `json:"-"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// Metadata is the envelope's metadata block.
type Metadata struct {
	Agent       any `json:"agent,omitempty"`
	Timestamp   any `json:"timestamp,omitempty"`
	CreditsUsed any `json:"credits_used,omitempty"`
	Version     any `json:"version,omitempty"`
}

// Step is one intermediate step reported while a task runs.
type Step struct {
	Type    string `json:"type,omitempty"`
	Content any    `json:"content,omitempty"`
}

// UnmarshalJSON decodes an envelope without ever rejecting a field because
// of its type. Only syntactically invalid JSON or a non-object document fails.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("gateway: envelope must be a JSON object")
	}
	*e = EnvelopeFromMap(raw)
	return nil
}

// EnvelopeFromMap builds an Envelope from a decoded JSON object.
func EnvelopeFromMap(raw map[string]any) Envelope {
	env := Envelope{
		Success: boolPtr(raw, "success"),
		Code:    stringOf(raw["code"]),
		Message: stringPtr(raw, "message"),
		TaskID:  idString(raw["task_id"]),
		Errors:  raw["errors"],
		Raw:     raw,
	}
	env.Data = taskDataFromMap(mapOf(raw["data"]))
	env.Metadata = metadataFromMap(mapOf(raw["metadata"]))
	return env
}

// Succeeded reports the business-level success flag; an absent flag counts
// as success.
func (e Envelope) Succeeded() bool {
	return e.Success == nil || *e.Success
}

// MessageText returns the top-level message or "".
func (e Envelope) MessageText() string {
	if e.Message == nil {
		return ""
	}
	return *e.Message
}

// ResolvedTaskID prefers data.task_id over the top-level task_id.
func (e Envelope) ResolvedTaskID() string {
	if e.Data.TaskID != "" {
		return e.Data.TaskID
	}
	return e.TaskID
}

func taskDataFromMap(m map[string]any) TaskData {
	if m == nil {
		return TaskData{}
	}
	data := TaskData{
		TaskID:    idString(m["task_id"]),
		Agent:     stringPtr(m, "agent"),
		Stage:     stringPtr(m, "stage"),
		Code:      stringPtr(m, "code"),
		Progress:  m["progress"],
		Reasoning: stringList(m["reasoning"]),
		Content:   m["content"],
		Timestamp: m["timestamp"],
		IsFinal:   boolPtr(m, "is_final"),
		Extra:     mapOf(m["extra"]),
	}
	data.Input, data.HasInput = m["input"]
	if steps, ok := m["intermediate_steps"].([]any); ok {
		data.IntermediateSteps = make([]Step, 0, len(steps))
		for _, item := range steps {
			step := mapOf(item)
			if step == nil {
				continue
			}
			data.IntermediateSteps = append(data.IntermediateSteps, Step{
				Type:    stringOf(step["type"]),
				Content: step["content"],
			})
		}
	}
	return data
}

func metadataFromMap(m map[string]any) Metadata {
	if m == nil {
		return Metadata{}
	}
	return Metadata{
		Agent:       m["agent"],
		Timestamp:   m["timestamp"],
		CreditsUsed: m["credits_used"],
		Version:     m["version"],
	}
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	default:
		return ""
	}
}
