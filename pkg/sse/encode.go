package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Format renders one SSE block: the event line, a single data line holding
// the compact JSON encoding of data, and the terminating blank line.
func Format(event string, data any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return "", fmt.Errorf("encode %s event: %w", event, err)
	}
	payload := bytes.TrimRight(buf.Bytes(), "\n")
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, payload), nil
}

// Write formats an event and writes it to w.
func Write(w io.Writer, event string, data any) (int, error) {
	block, err := Format(event, data)
	if err != nil {
		return 0, err
	}
	return io.WriteString(w, block)
}
