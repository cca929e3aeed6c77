package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "supplygraph-a2a/internal/errors"
	"supplygraph-a2a/pkg/sse"
)

const (
	maxResponseBytes    = 16 << 20
	maxStreamErrorBytes = 64 << 10
)

type call struct {
	method  string
	url     string
	body    []byte
	agentID string
	mode    string
	taskID  string
}

// doJSON performs a buffered call with retries and returns the decoded
// JSON object.
func (c *Client) doJSON(ctx context.Context, op call) (map[string]any, error) {
	start := time.Now()
	requestID := uuid.NewString()
	log := c.logger.With(
		slog.String("agent_id", op.agentID),
		slog.String("mode", op.mode),
		slog.String("request_id", requestID),
	)

	var (
		payload  map[string]any
		status   int
		err      error
		attempts int
	)
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		attempts = attempt
		var retryAfter time.Duration
		var hasRetryAfter bool
		payload, status, retryAfter, hasRetryAfter, err = c.attempt(ctx, op, requestID)
		if err == nil {
			break
		}

		var te *TransportError
		if !errors.As(err, &te) || !te.Retryable() || attempt == c.cfg.MaxRetries {
			break
		}
		delay := c.backoff(attempt)
		if hasRetryAfter {
			delay = retryAfter
		}
		log.Warn("gateway call failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			err = errors.Join(err, sleepErr)
			break
		}
	}

	c.record(op, payload, status, attempts, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) attempt(ctx context.Context, op call, requestID string) (map[string]any, int, time.Duration, bool, error) {
	req, err := c.newRequest(ctx, op, requestID, "application/json")
	if err != nil {
		return nil, 0, 0, false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, false, networkError(op.url, err, ctx.Err() == nil)
	}
	defer resp.Body.Close()

	retryAfter, hasRetryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), c.cfg.MaxRetryDelay)
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, 0, false, networkError(op.url, err, ctx.Err() == nil)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil || payload == nil {
		return nil, resp.StatusCode, retryAfter, hasRetryAfter, invalidResponseError(resp.StatusCode, data)
	}
	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, retryAfter, hasRetryAfter, httpError(resp.StatusCode, payload)
	}

	success := true
	if flag, ok := payload["success"].(bool); ok {
		success = flag
	}
	code, _ := payload["code"].(string)
	if !success && apperrors.IsFatal(code) {
		return nil, resp.StatusCode, 0, false, businessError(resp.StatusCode, code, payload)
	}
	return payload, resp.StatusCode, 0, false, nil
}

// openStream performs a single streaming request and hands the open body to
// an SSE decoder.
func (c *Client) openStream(ctx context.Context, op call) (*sse.Decoder, error) {
	start := time.Now()
	requestID := uuid.NewString()
	req, err := c.newRequest(ctx, op, requestID, "text/event-stream")
	if err != nil {
		return nil, err
	}
	resp, err := c.streamClient.Do(req)
	if err != nil {
		terr := networkError(op.url, err, false)
		c.record(op, nil, 0, 1, time.Since(start), terr)
		return nil, terr
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxStreamErrorBytes))
		terr := streamError(resp.StatusCode, data)
		c.record(op, nil, resp.StatusCode, 1, time.Since(start), terr)
		return nil, terr
	}
	c.record(op, nil, resp.StatusCode, 1, time.Since(start), nil)
	return sse.NewDecoder(resp.Body), nil
}

func (c *Client) newRequest(ctx context.Context, op call, requestID, accept string) (*http.Request, error) {
	var body io.Reader
	if op.body != nil {
		body = bytes.NewReader(op.body)
	}
	req, err := http.NewRequestWithContext(ctx, op.method, op.url, body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, err, "create request")
	}
	if op.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	return req, nil
}

// backoff returns BackoffFactor * 2^(attempt-1), saturating at MaxRetryDelay.
func (c *Client) backoff(attempt int) time.Duration {
	limit := c.cfg.MaxRetryDelay
	delay := c.cfg.BackoffFactor
	for i := 1; i < attempt; i++ {
		if delay > limit/2 {
			return limit
		}
		delay *= 2
	}
	return min(delay, limit)
}

func (c *Client) record(op call, payload map[string]any, status, attempts int, elapsed time.Duration, err error) {
	rec := CallRecord{
		AgentID:    op.agentID,
		Mode:       op.mode,
		TaskID:     op.taskID,
		HTTPStatus: status,
		Attempts:   attempts,
		Duration:   elapsed,
		Err:        err,
	}
	if payload != nil {
		rec.Code, _ = payload["code"].(string)
		if rec.TaskID == "" {
			if data, ok := payload["data"].(map[string]any); ok {
				rec.TaskID, _ = data["task_id"].(string)
			}
		}
	}
	var te *TransportError
	if errors.As(err, &te) && te.APICode != "" {
		rec.Code = te.APICode
	}

	attrs := []any{
		slog.String("agent_id", rec.AgentID),
		slog.String("mode", rec.Mode),
		slog.String("task_id", rec.TaskID),
		slog.String("code", rec.Code),
		slog.Int("http_status", rec.HTTPStatus),
		slog.Int("attempts", rec.Attempts),
		slog.Duration("duration", rec.Duration),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		c.audit.Warn("gateway call", attrs...)
	} else {
		c.audit.Info("gateway call", attrs...)
	}
	if c.observer != nil {
		c.observer.ObserveCall(rec)
	}
}

// parseRetryAfter accepts the numeric form of Retry-After, in seconds,
// clamped to [0, ceiling]. NaN and infinities are rejected.
func parseRetryAfter(value string, ceiling time.Duration) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, false
	}
	if seconds <= 0 {
		return 0, true
	}
	if seconds >= ceiling.Seconds() {
		return ceiling, true
	}
	return time.Duration(seconds * float64(time.Second)), true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
