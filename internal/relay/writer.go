package relay

import (
	"context"
	"io"
	"net/http"
	"sync"

	"supplygraph-a2a/pkg/reasoning"
)

// WriterSink 以 SSE 文本写出帧，写入后若目标支持 http.Flusher 则立即刷新。
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink 创建写入 w 的 sink。
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Name() string { return "writer" }

// Send 写出一帧。
func (s *WriterSink) Send(ctx context.Context, _ string, frame reasoning.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := frame.WriteTo(s.w); err != nil {
		return err
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// Close 不关闭底层 writer。
func (s *WriterSink) Close() error { return nil }
