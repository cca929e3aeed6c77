package reasoning

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"supplygraph-a2a/pkg/sse"
)

// Stream re-emits a decoded event source as reasoning frames. It pulls from
// the source only when the caller asks for the next frame. A Stream is not
// safe for concurrent use and cannot be restarted.
type Stream struct {
	agentID string
	src     sse.Source
	clock   func() time.Time

	pending []Frame
	current Frame

	stepIndex  int
	deltaIndex int

	srcDone  bool
	finished bool
	err      error
}

// Option customises a Stream.
type Option func(*Stream)

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(s *Stream) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Wrap returns the reasoning stream for src.
func Wrap(agentID string, src sse.Source, opts ...Option) *Stream {
	s := &Stream{agentID: agentID, src: src, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AgentID returns the agent the stream belongs to.
func (s *Stream) AgentID() string { return s.agentID }

// Next advances to the next frame. The last frame is always the single
// completed frame, including for empty sources, the end sentinel and
// source errors.
func (s *Stream) Next() bool {
	for len(s.pending) == 0 {
		if s.finished {
			return false
		}
		if s.srcDone {
			s.pending = append(s.pending, Frame{
				Event: EventCompleted,
				Data:  CompletedData{Status: "completed", Timestamp: s.clock().Unix()},
			})
			s.finished = true
			continue
		}
		s.pull()
	}
	s.current = s.pending[0]
	s.pending = s.pending[1:]
	return true
}

// Frame returns the frame produced by the last successful Next.
func (s *Stream) Frame() Frame { return s.current }

// Err reports the source error that ended consumption, if any.
func (s *Stream) Err() error { return s.err }

// Close releases the source when it holds a connection.
func (s *Stream) Close() error {
	s.srcDone = true
	if closer, ok := s.src.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (s *Stream) pull() {
	if !s.src.Next() {
		s.err = s.src.Err()
		s.srcDone = true
		return
	}
	ev := s.src.Event()
	if ev.Name == sse.EventEnd {
		s.srcDone = true
		return
	}
	if ev.Name != sse.EventStream {
		return
	}
	lines := reasoningLines(ev.Data)
	if len(lines) == 0 {
		return
	}

	ts := s.clock().Unix()
	for _, line := range lines {
		s.pending = append(s.pending, Frame{
			Event: EventDelta,
			Data: DeltaData{
				Delta:      Thinking{Thinking: line},
				Index:      s.stepIndex,
				DeltaIndex: s.deltaIndex,
				Timestamp:  ts,
			},
		})
		s.deltaIndex++
	}
	s.pending = append(s.pending, Frame{
		Event: EventStep,
		Data: StepData{
			Step:      ThinkingBatch{Thinking: lines},
			Index:     s.stepIndex,
			Timestamp: ts,
		},
	})
	s.stepIndex++
}

// Collect drains s into a slice.
func Collect(s *Stream) ([]Frame, error) {
	var frames []Frame
	for s.Next() {
		frames = append(frames, s.Frame())
	}
	return frames, s.Err()
}

// reasoningLines reads payload.reasoning, falling back to
// payload.data.reasoning.
func reasoningLines(payload any) []string {
	m, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	if lines, ok := lineList(m["reasoning"]); ok {
		return lines
	}
	if data, ok := m["data"].(map[string]any); ok {
		if lines, ok := lineList(data["reasoning"]); ok {
			return lines
		}
	}
	return nil
}

func lineList(v any) ([]string, bool) {
	switch items := v.(type) {
	case []string:
		return append([]string(nil), items...), true
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, lineString(item))
		}
		return out, true
	default:
		return nil, false
	}
}

func lineString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
