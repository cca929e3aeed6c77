// Package bridge presents SupplyGraph agents to downstream agent runtimes.
// It calls the gateway through an a2a.Client and answers with normalized
// lifecycle objects, reasoning streams and agent.error envelopes.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"supplygraph-a2a/pkg/gateway"
	"supplygraph-a2a/pkg/lifecycle"
	"supplygraph-a2a/pkg/logger"
	"supplygraph-a2a/pkg/reasoning"
	"supplygraph-a2a/sdk/go/a2a"
)

// ManifestCache stores encoded gateway manifests keyed by agent id.
type ManifestCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Bridge is safe for concurrent use when its cache is.
type Bridge struct {
	client        *a2a.Client
	cache         ManifestCache
	logger        *slog.Logger
	clock         func() time.Time
	onUnknownCode func(string)
}

// Option customises a Bridge.
type Option func(*Bridge)

// WithManifestCache enables manifest caching.
func WithManifestCache(c ManifestCache) Option {
	return func(b *Bridge) { b.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock overrides the time source of normalized objects and frames.
func WithClock(clock func() time.Time) Option {
	return func(b *Bridge) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithUnknownCodeHook is called with every gateway code outside the known
// vocabulary.
func WithUnknownCodeHook(fn func(code string)) Option {
	return func(b *Bridge) { b.onUnknownCode = fn }
}

// New wraps client.
func New(client *a2a.Client, opts ...Option) *Bridge {
	b := &Bridge{client: client, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	if b.logger == nil {
		b.logger = logger.Named("bridge")
	}
	return b
}

// Client returns the underlying gateway client.
func (b *Bridge) Client() *a2a.Client { return b.client }

func (b *Bridge) normalizer(agentID string) *lifecycle.Normalizer {
	return &lifecycle.Normalizer{
		AgentID:       agentID,
		Clock:         b.clock,
		Logger:        b.logger,
		OnUnknownCode: b.onUnknownCode,
	}
}

// Manifest returns the downstream manifest of an agent. Cache failures are
// logged and fall through to the gateway.
func (b *Bridge) Manifest(ctx context.Context, agentID string) (lifecycle.AgentManifest, error) {
	if m, ok := b.cachedManifest(ctx, agentID); ok {
		return lifecycle.BuildAgentManifest(m), nil
	}
	m, err := b.client.Manifest(ctx, agentID)
	if err != nil {
		return lifecycle.AgentManifest{}, b.fail("manifest", agentID, err)
	}
	b.storeManifest(ctx, agentID, m)
	return lifecycle.BuildAgentManifest(m), nil
}

func (b *Bridge) cachedManifest(ctx context.Context, agentID string) (gateway.Manifest, bool) {
	if b.cache == nil || strings.TrimSpace(agentID) == "" {
		return gateway.Manifest{}, false
	}
	data, ok, err := b.cache.Get(ctx, agentID)
	if err != nil {
		b.logger.Warn("manifest cache read failed", "agent_id", agentID, "error", err)
		return gateway.Manifest{}, false
	}
	if !ok {
		return gateway.Manifest{}, false
	}
	var m gateway.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		b.logger.Warn("discarding undecodable cached manifest", "agent_id", agentID, "error", err)
		return gateway.Manifest{}, false
	}
	return m, true
}

func (b *Bridge) storeManifest(ctx context.Context, agentID string, m gateway.Manifest) {
	if b.cache == nil {
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		b.logger.Warn("manifest encode failed", "agent_id", agentID, "error", err)
		return
	}
	if err := b.cache.Set(ctx, agentID, data); err != nil {
		b.logger.Warn("manifest cache write failed", "agent_id", agentID, "error", err)
	}
}

// Run starts or continues a task. A task waiting for the user is a normal
// answer with status requires_action.
func (b *Bridge) Run(ctx context.Context, agentID, text string, opts a2a.RunOptions) (lifecycle.RunObject, error) {
	env, err := b.client.Run(ctx, agentID, text, opts)
	if err != nil {
		return lifecycle.RunObject{}, b.fail("run", agentID, err)
	}
	return b.normalizer(agentID).Run(env), nil
}

// Status polls a task.
func (b *Bridge) Status(ctx context.Context, agentID, taskID string) (lifecycle.StatusObject, error) {
	if strings.TrimSpace(taskID) == "" {
		return lifecycle.StatusObject{}, invalidRequest("task_id is required for status")
	}
	env, err := b.client.Status(ctx, agentID, taskID, nil)
	if err != nil {
		return lifecycle.StatusObject{}, b.fail("status", agentID, err)
	}
	return b.normalizer(agentID).Status(env), nil
}

// Result fetches the final output of a task.
func (b *Bridge) Result(ctx context.Context, agentID, taskID string) (lifecycle.ResultObject, error) {
	if strings.TrimSpace(taskID) == "" {
		return lifecycle.ResultObject{}, invalidRequest("task_id is required for results")
	}
	env, err := b.client.Results(ctx, agentID, taskID, nil)
	if err != nil {
		return lifecycle.ResultObject{}, b.fail("results", agentID, err)
	}
	return b.normalizer(agentID).Result(env), nil
}

// Stream starts a task in streaming mode and re-emits its events as
// reasoning frames. The caller must Close the stream.
func (b *Bridge) Stream(ctx context.Context, agentID, text string, opts a2a.RunOptions) (*reasoning.Stream, error) {
	dec, err := b.client.RunStream(ctx, agentID, text, opts)
	if err != nil {
		return nil, b.fail("stream", agentID, err)
	}
	return reasoning.Wrap(agentID, dec, reasoning.WithClock(b.clock)), nil
}

func (b *Bridge) fail(op, agentID string, err error) error {
	e := wrapError(err)
	b.logger.Warn("gateway call failed",
		"op", op,
		"agent_id", agentID,
		"code", e.Code,
		"status", e.Status,
		"error", err,
	)
	return e
}
