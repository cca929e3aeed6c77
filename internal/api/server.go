package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	apperrors "supplygraph-a2a/internal/errors"
	"supplygraph-a2a/internal/observability/metrics"
	"supplygraph-a2a/internal/relay"
	"supplygraph-a2a/pkg/lifecycle"
	"supplygraph-a2a/pkg/logger"
	"supplygraph-a2a/pkg/reasoning"
	"supplygraph-a2a/sdk/go/a2a"
	"supplygraph-a2a/sdk/go/bridge"
)

const maxBodyBytes = 1 << 20

// Server 通过 HTTP 暴露规范化后的 agent 对象与推理流。
type Server struct {
	addr            string
	bridge          *bridge.Bridge
	metrics         *metrics.Metrics
	metricsHandler  http.Handler
	mirrors         []relay.Sink
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// Option 自定义 Server。
type Option func(*Server)

// WithMetrics 记录请求指标，并在 handler 非空时挂载 /metrics。
func WithMetrics(m *metrics.Metrics, handler http.Handler) Option {
	return func(s *Server) {
		s.metrics = m
		s.metricsHandler = handler
	}
}

// WithRelay 将流式请求的每一帧同时转发到给定 sink，转发失败不影响客户端响应。
func WithRelay(sinks ...relay.Sink) Option {
	return func(s *Server) {
		for _, sink := range sinks {
			if sink != nil {
				s.mirrors = append(s.mirrors, sink)
			}
		}
	}
}

// WithShutdownTimeout 设置优雅关闭的等待时间。
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithLogger 设置日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, b *bridge.Bridge, opts ...Option) *Server {
	s := &Server{addr: addr, bridge: b, shutdownTimeout: 5 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}
	return s
}

// Handler 返回注册了全部路由的处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "GET /v1/agents/{agent}/manifest", s.handleManifest)
	s.route(mux, "POST /v1/agents/{agent}/runs", s.handleRun)
	s.route(mux, "GET /v1/agents/{agent}/runs/{task}", s.handleStatus)
	s.route(mux, "GET /v1/agents/{agent}/runs/{task}/result", s.handleResult)
	s.route(mux, "GET /healthz", s.handleHealth)
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s.bridge == nil {
		return errors.New("bridge 未初始化")
	}
	server := s.httpServer(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("bridge server listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// httpServer 构造底层 http.Server。请求上下文派生自 ctx，
// 关闭时进行中的流式请求会随之取消。
func (s *Server) httpServer(ctx context.Context) *http.Server {
	return &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

// runRequest 是 POST /v1/agents/{agent}/runs 的请求体。
type runRequest struct {
	Text   string         `json:"text"`
	TaskID string         `json:"task_id,omitempty"`
	Stream bool           `json:"stream,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	manifest, err := s.bridge.Manifest(r.Context(), r.PathValue("agent"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, manifest)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, lifecycle.NewErrorObject(string(apperrors.CodeInvalidRequest), "请求体解析失败: "+err.Error(), nil))
		return
	}
	agentID := r.PathValue("agent")
	opts := a2a.RunOptions{TaskID: req.TaskID, Extra: req.Extra}
	if req.Stream {
		s.streamRun(w, r, agentID, req.Text, opts)
		return
	}
	run, err := s.bridge.Run(r.Context(), agentID, req.Text, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// streamRun 在建立上游连接后才写出响应头，因此上游错误仍能以 JSON 返回。
func (s *Server) streamRun(w http.ResponseWriter, r *http.Request, agentID, text string, opts a2a.RunOptions) {
	ctx := r.Context()
	stream, err := s.bridge.Stream(ctx, agentID, text, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	pipeline := relay.Pipeline{
		Sinks:   []relay.Sink{relay.NewWriterSink(w)},
		Mirrors: s.mirrors,
	}
	if s.metrics != nil {
		pipeline.OnFrame = func(f reasoning.Frame) { s.metrics.ObserveFrame(f.Event) }
		pipeline.OnSend = func(sink string, err error) {
			if sink != "writer" {
				s.metrics.ObserveRelay(sink, err)
			}
		}
	}
	sent, err := pipeline.Run(ctx, stream)
	if err != nil {
		s.logger.Warn("stream ended early", "agent_id", agentID, "frames", sent, "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.bridge.Status(r.Context(), r.PathValue("agent"), r.PathValue("task"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.bridge.Result(r.Context(), r.PathValue("agent"), r.PathValue("task"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := bridge.StatusCode(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, bridge.ErrorObject(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
