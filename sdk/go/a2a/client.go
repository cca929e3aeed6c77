// Package a2a is the Go client for the SupplyGraph agent gateway. It turns
// the gateway's asynchronous, multi-round task protocol into plain calls:
// Run, Status, Results and Manifest, plus RunStream for server-sent events.
package a2a

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"supplygraph-a2a/pkg/gateway"
	"supplygraph-a2a/pkg/logger"
	"supplygraph-a2a/pkg/sse"
)

// Version is reported in the default User-Agent.
const Version = "0.3.0"

const (
	// DefaultBaseURL is the public gateway endpoint.
	DefaultBaseURL = "https://agent.supplygraph.ai/api/v1/agents"
	// DefaultTimeout bounds every buffered call.
	DefaultTimeout = 60 * time.Second
	// DefaultMaxRetries is the default maximum number of attempts.
	DefaultMaxRetries = 3
	// DefaultBackoffFactor is the delay before the first retry.
	DefaultBackoffFactor = 500 * time.Millisecond
	// DefaultMaxRetryDelay caps both computed backoff and Retry-After.
	DefaultMaxRetryDelay = time.Minute
)

// Config holds the connection settings of a Client. Zero fields take the
// package defaults.
type Config struct {
	BaseURL string
	// APIKey is sent as a bearer token. An empty key sends no
	// Authorization header.
	APIKey  string
	Timeout time.Duration
	// MaxRetries is the maximum number of attempts per buffered call;
	// values below one mean a single attempt.
	MaxRetries int
	// BackoffFactor is the delay before the first retry, doubled on each
	// further one. A negative factor retries without waiting.
	BackoffFactor time.Duration
	// MaxRetryDelay is the longest wait between two attempts.
	MaxRetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = 1
	}
	if c.BackoffFactor == 0 {
		c.BackoffFactor = DefaultBackoffFactor
	}
	if c.BackoffFactor < 0 {
		c.BackoffFactor = 0
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = DefaultMaxRetryDelay
	}
	return c
}

// Sleeper waits between attempts. It must return early with the context
// error when ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// CallRecord summarises one completed call for observers.
type CallRecord struct {
	AgentID    string
	Mode       string
	TaskID     string
	Code       string
	HTTPStatus int
	Attempts   int
	Duration   time.Duration
	Err        error
}

// Observer receives a record for every completed call.
type Observer interface {
	ObserveCall(CallRecord)
}

// Client talks to the agent gateway. It holds no per-call state and is safe
// for concurrent use.
type Client struct {
	cfg          Config
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	logger       *slog.Logger
	audit        *slog.Logger
	sleep        Sleeper
	userAgent    string
	observer     Observer
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its Timeout applies to buffered
// calls only; streaming calls are bounded by their context.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithAuditLogger sets the logger receiving one record per call.
func WithAuditLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.audit = l
		}
	}
}

// WithSleeper replaces the backoff wait.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithObserver registers a call observer, typically a metrics recorder.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient builds a client. It fails only when BaseURL is not an absolute
// http(s) URL.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("a2a: invalid base url: %w", err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("a2a: invalid base url %q", cfg.BaseURL)
	}

	c := &Client{
		cfg:       cfg,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		sleep:     sleepContext,
		userAgent: "supplygraph-a2a-go/" + Version,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	stream := *c.httpClient
	stream.Timeout = 0
	c.streamClient = &stream
	if c.logger == nil {
		c.logger = logger.Named("a2a")
	}
	if c.audit == nil {
		c.audit = logger.Audit()
	}
	return c, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// RunOptions carries the optional arguments of a run call.
type RunOptions struct {
	// TaskID continues an existing multi-round task.
	TaskID string
	// Extra keys are merged into the request body and may override the
	// fixed fields.
	Extra map[string]any
}

// Run starts a task, or continues one when opts.TaskID is set. A
// WAITING_USER answer is returned without error so callers can ask the
// user and call Run again with the same task id.
func (c *Client) Run(ctx context.Context, agentID, text string, opts RunOptions) (gateway.Envelope, error) {
	if err := validateAgentID(agentID); err != nil {
		return gateway.Envelope{}, err
	}
	if err := validateText(text); err != nil {
		return gateway.Envelope{}, err
	}
	stream := false
	req := gateway.RunRequest{Mode: gateway.ModeRun, Text: text, TaskID: opts.TaskID, Stream: &stream, Extra: opts.Extra}
	return c.postRun(ctx, agentID, req)
}

// RunStream starts a task in streaming mode and returns the live event
// decoder. The caller must Close it. Streaming calls are never retried.
func (c *Client) RunStream(ctx context.Context, agentID, text string, opts RunOptions) (*sse.Decoder, error) {
	if err := validateAgentID(agentID); err != nil {
		return nil, err
	}
	if err := validateText(text); err != nil {
		return nil, err
	}
	stream := true
	req := gateway.RunRequest{Mode: gateway.ModeRun, Text: text, TaskID: opts.TaskID, Stream: &stream, Extra: opts.Extra}
	body, err := req.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("a2a: encode request: %w", err)
	}
	return c.openStream(ctx, call{
		method:  http.MethodPost,
		url:     c.endpoint(agentID, "run"),
		body:    body,
		agentID: agentID,
		mode:    "stream",
		taskID:  opts.TaskID,
	})
}

// Status polls a task.
func (c *Client) Status(ctx context.Context, agentID, taskID string, extra map[string]any) (gateway.Envelope, error) {
	return c.poll(ctx, gateway.ModeStatus, agentID, taskID, extra)
}

// Results fetches the final output of a task.
func (c *Client) Results(ctx context.Context, agentID, taskID string, extra map[string]any) (gateway.Envelope, error) {
	return c.poll(ctx, gateway.ModeResults, agentID, taskID, extra)
}

// Manifest fetches the agent manifest.
func (c *Client) Manifest(ctx context.Context, agentID string) (gateway.Manifest, error) {
	if err := validateAgentID(agentID); err != nil {
		return gateway.Manifest{}, err
	}
	payload, err := c.doJSON(ctx, call{
		method:  http.MethodGet,
		url:     c.endpoint(agentID, "manifest"),
		agentID: agentID,
		mode:    "manifest",
	})
	if err != nil {
		return gateway.Manifest{}, err
	}
	return gateway.ManifestFromMap(payload), nil
}

func (c *Client) poll(ctx context.Context, mode gateway.Mode, agentID, taskID string, extra map[string]any) (gateway.Envelope, error) {
	if err := validateAgentID(agentID); err != nil {
		return gateway.Envelope{}, err
	}
	if err := validateTaskID(taskID); err != nil {
		return gateway.Envelope{}, err
	}
	return c.postRun(ctx, agentID, gateway.RunRequest{Mode: mode, TaskID: taskID, Extra: extra})
}

func (c *Client) postRun(ctx context.Context, agentID string, req gateway.RunRequest) (gateway.Envelope, error) {
	body, err := req.MarshalJSON()
	if err != nil {
		return gateway.Envelope{}, fmt.Errorf("a2a: encode request: %w", err)
	}
	payload, err := c.doJSON(ctx, call{
		method:  http.MethodPost,
		url:     c.endpoint(agentID, "run"),
		body:    body,
		agentID: agentID,
		mode:    string(req.Mode),
		taskID:  req.TaskID,
	})
	if err != nil {
		return gateway.Envelope{}, err
	}
	return gateway.EnvelopeFromMap(payload), nil
}

func (c *Client) endpoint(agentID, action string) string {
	return c.baseURL + "/" + url.PathEscape(agentID) + "/" + action
}
