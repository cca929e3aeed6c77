// Package reasoning turns decoded gateway stream events into incremental
// "thinking" frames: one step.delta per reasoning line, one step per source
// event and a single trailing completed frame.
package reasoning

import (
	"io"

	"supplygraph-a2a/pkg/sse"
)

// Outbound event names.
const (
	EventDelta     = "step.delta"
	EventStep      = "step"
	EventCompleted = "completed"
)

// Frame is one outbound SSE frame. Data is a DeltaData, StepData or
// CompletedData value.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Thinking is the delta payload.
type Thinking struct {
	Thinking string `json:"thinking"`
}

// ThinkingBatch is the step payload.
type ThinkingBatch struct {
	Thinking []string `json:"thinking"`
}

// DeltaData is the body of a step.delta frame.
type DeltaData struct {
	Delta      Thinking `json:"delta"`
	Index      int      `json:"index"`
	DeltaIndex int      `json:"delta_index"`
	Timestamp  int64    `json:"timestamp"`
}

// StepData is the body of a step frame.
type StepData struct {
	Step      ThinkingBatch `json:"step"`
	Index     int           `json:"index"`
	Timestamp int64         `json:"timestamp"`
}

// CompletedData is the body of the completed frame.
type CompletedData struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// String renders the frame as an SSE block.
func (f Frame) String() string {
	block, err := sse.Format(f.Event, f.Data)
	if err != nil {
		block, _ = sse.Format(f.Event, map[string]any{})
	}
	return block
}

// WriteTo writes the rendered frame to w.
func (f Frame) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, f.String())
	return int64(n), err
}
