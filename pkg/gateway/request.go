package gateway

import "encoding/json"

// RunRequest is the JSON body of POST {base}/{agent}/run. Extra keys are
// merged into the top level of the body and may override the fixed fields,
// matching how callers pass gateway-specific arguments through.
type RunRequest struct {
	Mode   Mode
	Text   string
	TaskID string
	Stream *bool
	Extra  map[string]any
}

// MarshalJSON flattens the request into a single JSON object.
func (r RunRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Body())
}

// Body returns the request as a plain map.
func (r RunRequest) Body() map[string]any {
	body := map[string]any{"mode": string(r.Mode)}
	if r.Mode == ModeRun {
		body["text"] = r.Text
	}
	if r.Stream != nil {
		body["stream"] = *r.Stream
	}
	if r.TaskID != "" {
		body["task_id"] = r.TaskID
	}
	for k, v := range r.Extra {
		body[k] = v
	}
	return body
}

// CloneExtra copies a caller supplied extra map.
func CloneExtra(extra map[string]any) map[string]any {
	return cloneMap(extra)
}
