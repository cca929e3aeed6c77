// Package sse decodes and encodes Server-Sent Events as used by the agent
// gateway's streaming run mode.
package sse

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

const (
	// EventStream is the event type assumed until an "event:" line says otherwise.
	EventStream = "stream"
	// EventEnd is the synthetic event produced for the [DONE] sentinel.
	EventEnd = "end"
	// DoneSentinel terminates a gateway stream.
	DoneSentinel = "[DONE]"
)

const (
	scannerInitialBuffer = 64 * 1024
	scannerMaxBuffer     = 4 * 1024 * 1024
)

// Event is one decoded SSE block. Data holds the JSON-decoded payload, or
// the raw string when the payload is not JSON.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// IsEnd reports whether e is the end-of-stream sentinel event.
func (e Event) IsEnd() bool {
	return e.Name == EventEnd
}

// Source is a forward-only sequence of events. Next advances to the next
// event and reports whether one is available; Err reports the error that
// stopped iteration, if any.
type Source interface {
	Next() bool
	Event() Event
	Err() error
}

// Decoder reads events lazily from a line-oriented stream. It is not safe
// for concurrent use and cannot be restarted.
type Decoder struct {
	r         io.Reader
	scanner   *bufio.Scanner
	eventType string
	buf       []string
	current   Event
	err       error
	done      bool
}

var _ Source = (*Decoder)(nil)

// NewDecoder returns a decoder reading from r. Bytes are pulled from r only
// as Next is called.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, scannerInitialBuffer), scannerMaxBuffer)
	return &Decoder{r: r, scanner: scanner, eventType: EventStream}
}

// Next advances to the next event. After the [DONE] sentinel has been
// returned as an end event no further input is read.
func (d *Decoder) Next() bool {
	if d.done {
		return false
	}
	for d.scanner.Scan() {
		line := strings.TrimSpace(d.scanner.Text())
		if line == "" {
			if len(d.buf) == 0 {
				continue
			}
			payload := strings.TrimSpace(strings.Join(d.buf, "\n"))
			d.buf = d.buf[:0]
			if payload == DoneSentinel {
				d.current = Event{Name: EventEnd, Data: DoneSentinel}
				d.done = true
				return true
			}
			d.current = Event{Name: d.eventType, Data: parsePayload(payload)}
			return true
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			d.eventType = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			d.buf = append(d.buf, strings.TrimSpace(line[len("data:"):]))
		default:
			d.buf = append(d.buf, line)
		}
	}
	// A block without its terminating blank line is incomplete and dropped.
	d.buf = nil
	d.done = true
	d.err = d.scanner.Err()
	return false
}

// Event returns the event produced by the last successful Next.
func (d *Decoder) Event() Event {
	return d.current
}

// Err returns the read error that ended iteration, or nil on a clean end.
func (d *Decoder) Err() error {
	return d.err
}

// Close stops iteration and closes the underlying reader when it is an
// io.Closer. Abandoning a stream this way closes the HTTP connection.
func (d *Decoder) Close() error {
	d.done = true
	if closer, ok := d.r.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func parsePayload(payload string) any {
	var decoded any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return payload
	}
	return decoded
}

// SliceSource replays a fixed list of events.
type SliceSource struct {
	events  []Event
	pos     int
	current Event
}

var _ Source = (*SliceSource)(nil)

// NewSliceSource returns a Source over events.
func NewSliceSource(events ...Event) *SliceSource {
	return &SliceSource{events: events}
}

// Next implements Source.
func (s *SliceSource) Next() bool {
	if s.pos >= len(s.events) {
		return false
	}
	s.current = s.events[s.pos]
	s.pos++
	return true
}

// Event implements Source.
func (s *SliceSource) Event() Event { return s.current }

// Err implements Source.
func (s *SliceSource) Err() error { return nil }
