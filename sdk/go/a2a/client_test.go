package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "supplygraph-a2a/internal/errors"
	"supplygraph-a2a/pkg/logger"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestClient(t *testing.T, srv *httptest.Server, cfg Config, opts ...Option) *Client {
	t.Helper()
	cfg.BaseURL = srv.URL + "/api/v1/agents/"
	opts = append([]Option{
		WithHTTPClient(srv.Client()),
		WithLogger(logger.Discard()),
		WithAuditLogger(logger.Discard()),
	}, opts...)
	client, err := NewClient(cfg, opts...)
	require.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestRunRetriesServiceUnavailableWithBackoff(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, "upstream busy")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"code":    "TASK_ACCEPTED",
			"data":    map[string]any{"task_id": "t_1"},
		})
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	client := newTestClient(t, srv, Config{MaxRetries: 3, BackoffFactor: 500 * time.Millisecond}, WithSleeper(rec.sleep))

	env, err := client.Run(context.Background(), AgentTariffCalc, "laptops from CN", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "t_1", ExtractTaskID(env))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, rec.delays)
}

func TestRetryAfterTakesPrecedence(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "2.5")
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"code": "RATE_LIMITED", "message": "slow down"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "code": "TASK_RUNNING"})
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	client := newTestClient(t, srv, Config{MaxRetries: 3}, WithSleeper(rec.sleep))

	_, err := client.Status(context.Background(), AgentTariffCalc, "t_1", nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2500 * time.Millisecond}, rec.delays)
}

func TestExhaustedRetriesReturnLastError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	client := newTestClient(t, srv, Config{MaxRetries: 2, BackoffFactor: time.Second}, WithSleeper(rec.sleep))

	_, err := client.Results(context.Background(), AgentTariffCalc, "t_1", nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusBadGateway, te.HTTPStatus)
	assert.Equal(t, apperrors.CodeInvalidResponse, te.Code())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Len(t, rec.delays, 1)
}

func TestWaitingUserIsReturnedNormally(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"code":    "WAITING_USER",
			"message": "Which country of origin?",
			"data":    map[string]any{"task_id": "t_7"},
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, Config{})
	env, err := client.Run(context.Background(), AgentTariffCalc, "laptops", RunOptions{})
	require.NoError(t, err)
	assert.True(t, NeedsUserInput(env))
	assert.False(t, env.Succeeded())
}

func TestFatalBusinessCodeRaises(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"code":    "TASK_FAILED",
			"message": "classification engine crashed",
			"errors":  []any{"engine"},
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, Config{MaxRetries: 3}, WithSleeper((&sleepRecorder{}).sleep))
	_, err := client.Status(context.Background(), AgentCustomsClassification, "t_1", nil)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "TASK_FAILED", te.APICode)
	assert.Equal(t, "classification engine crashed", te.Message)
	assert.Equal(t, []any{"engine"}, te.Errors)
	assert.False(t, te.Retryable())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPErrorWithJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"code": "UNAUTHORIZED", "message": "bad key"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, Config{})
	_, err := client.Manifest(context.Background(), AgentTariffCalc)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusUnauthorized, te.HTTPStatus)
	assert.Equal(t, "UNAUTHORIZED", te.APICode)
	assert.Equal(t, "bad key", te.Message)
	assert.False(t, te.Retryable())
}

func TestRequestShapeAndHeaders(t *testing.T) {
	var (
		gotPath string
		gotBody map[string]any
		header  http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		header = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "code": "TASK_ACCEPTED"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, Config{APIKey: "sk-test"}, WithUserAgent("sgbridge-test"))
	_, err := client.Run(context.Background(), AgentTariffCalc, "hello", RunOptions{TaskID: "t_2", Extra: map[string]any{"lang": "en"}})
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/agents/tariff_calc/run", gotPath)
	assert.Equal(t, map[string]any{"mode": "run", "text": "hello", "stream": false, "task_id": "t_2", "lang": "en"}, gotBody)
	assert.Equal(t, "Bearer sk-test", header.Get("Authorization"))
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, "sgbridge-test", header.Get("User-Agent"))
	assert.NotEmpty(t, header.Get("X-Request-ID"))
}

func TestNoAuthorizationHeaderWithoutKey(t *testing.T) {
	var auth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Values("Authorization")
		writeJSON(w, http.StatusOK, map[string]any{"agent_id": "tariff_calc"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, Config{})
	m, err := client.Manifest(context.Background(), AgentTariffCalc)
	require.NoError(t, err)
	assert.Equal(t, "tariff_calc", m.AgentID)
	assert.Empty(t, auth)
}

func TestValidationHappensBeforeNetwork(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	client := newTestClient(t, srv, Config{})
	ctx := context.Background()

	_, err := client.Run(ctx, "", "text", RunOptions{})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = client.Run(ctx, AgentTariffCalc, "   ", RunOptions{})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = client.RunStream(ctx, AgentTariffCalc, "", RunOptions{})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = client.Status(ctx, AgentTariffCalc, "", nil)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = client.Results(ctx, AgentTariffCalc, " ", nil)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = client.Manifest(ctx, "")
	assert.ErrorIs(t, err, ErrValidation)

	var te *TransportError
	assert.False(t, errors.As(err, &te))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestRunStreamSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, true, body["stream"])
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: stream\ndata: {\"reasoning\":[\"A\"]}\n\n")
		w.(http.Flusher).Flush()
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := newTestClient(t, srv, Config{})
	dec, err := client.RunStream(context.Background(), AgentTariffCalc, "go", RunOptions{})
	require.NoError(t, err)
	defer dec.Close()

	require.True(t, dec.Next())
	assert.Equal(t, "stream", dec.Event().Name)
	require.True(t, dec.Next())
	assert.True(t, dec.Event().IsEnd())
	assert.False(t, dec.Next())
	assert.NoError(t, dec.Err())
}

func TestRunStreamErrorStatusIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "overloaded")
	}))
	defer srv.Close()

	client := newTestClient(t, srv, Config{MaxRetries: 5}, WithSleeper((&sleepRecorder{}).sleep))
	_, err := client.RunStream(context.Background(), AgentTariffCalc, "go", RunOptions{})

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusServiceUnavailable, te.HTTPStatus)
	assert.Equal(t, map[string]any{"text": "overloaded"}, te.Payload)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCancelledContextStopsBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sleeper := func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	client := newTestClient(t, srv, Config{MaxRetries: 5}, WithSleeper(sleeper))
	_, err := client.Status(ctx, AgentTariffCalc, "t_1", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

type observerFunc func(CallRecord)

func (f observerFunc) ObserveCall(r CallRecord) { f(r) }

func TestObserverReceivesCallRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "code": "TASK_COMPLETED", "data": map[string]any{"task_id": "t_5"}})
	}))
	defer srv.Close()

	var got CallRecord
	client := newTestClient(t, srv, Config{}, WithObserver(observerFunc(func(r CallRecord) { got = r })))
	env, err := client.Results(context.Background(), AgentTariffCalc, "t_5", nil)
	require.NoError(t, err)
	assert.True(t, IsFinished(env))
	assert.False(t, IsFailed(env))

	assert.Equal(t, "results", got.Mode)
	assert.Equal(t, "TASK_COMPLETED", got.Code)
	assert.Equal(t, "t_5", got.TaskID)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, http.StatusOK, got.HTTPStatus)
}

func TestNewAgentLoadsManifest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, map[string]any{"agent_id": "sg_chokepoint", "capabilities": []any{"run"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "code": "TASK_ACCEPTED", "data": map[string]any{"task_id": "t_8"}})
	}))
	defer srv.Close()

	client := newTestClient(t, srv, Config{})
	agent, err := NewAgent(context.Background(), client, AgentChokepointAnalysis)
	require.NoError(t, err)
	assert.True(t, agent.Manifest().HasCapability("run"))

	env, err := agent.Run(context.Background(), "Taiwan strait exposure", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "t_8", ExtractTaskID(env))
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "agents/v1"})
	assert.Error(t, err)

	c, err := NewClient(Config{}, WithLogger(logger.Discard()))
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.Config().BaseURL)
	assert.Equal(t, DefaultMaxRetries, c.Config().MaxRetries)
	assert.Equal(t, DefaultTimeout, c.Config().Timeout)
	assert.Equal(t, DefaultBackoffFactor, c.Config().BackoffFactor)
	assert.Equal(t, DefaultMaxRetryDelay, c.Config().MaxRetryDelay)
}

func TestParseRetryAfter(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"3", 3 * time.Second, true},
		{" 0.25 ", 250 * time.Millisecond, true},
		{"-4", 0, true},
		{"1e13", time.Minute, true},
		{"90", time.Minute, true},
		{"NaN", 0, false},
		{"inf", 0, false},
		{"-Inf", 0, false},
		{"1e400", 0, false},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			d, ok := parseRetryAfter(tc.in, time.Minute)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, d)
		})
	}
}

func TestHugeRetryAfterIsCapped(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1e13")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "code": "TASK_RUNNING"})
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	client := newTestClient(t, srv, Config{MaxRetries: 2, MaxRetryDelay: 30 * time.Second}, WithSleeper(rec.sleep))
	_, err := client.Status(context.Background(), AgentTariffCalc, "t_1", nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{30 * time.Second}, rec.delays)
}

func TestBackoffSaturatesAtMaxRetryDelay(t *testing.T) {
	client, err := NewClient(Config{BackoffFactor: 500 * time.Millisecond}, WithLogger(logger.Discard()))
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, client.backoff(1))
	assert.Equal(t, 4*time.Second, client.backoff(4))
	assert.Equal(t, 32*time.Second, client.backoff(7))
	assert.Equal(t, DefaultMaxRetryDelay, client.backoff(8))
	for attempt := 8; attempt <= 100; attempt++ {
		assert.Equal(t, DefaultMaxRetryDelay, client.backoff(attempt))
	}

	noWait, err := NewClient(Config{BackoffFactor: -1}, WithLogger(logger.Discard()))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), noWait.backoff(60))
}

func TestConnectionFailureIsRetriedWithBackoff(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	rec := &sleepRecorder{}
	client, err := NewClient(
		Config{BaseURL: baseURL + "/api/v1/agents", MaxRetries: 3, BackoffFactor: 10 * time.Millisecond},
		WithSleeper(rec.sleep),
		WithLogger(logger.Discard()),
		WithAuditLogger(logger.Discard()),
	)
	require.NoError(t, err)

	_, err = client.Run(context.Background(), AgentTariffCalc, "laptops from CN", RunOptions{})
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, apperrors.CodeNetwork, te.Code())
	assert.True(t, te.Retryable())
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, rec.delays)
}

func TestNonJSONSuccessBodyIsRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, "<html><body>maintenance</body></html>")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "code": "TASK_RUNNING"})
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	client := newTestClient(t, srv, Config{MaxRetries: 3, BackoffFactor: 10 * time.Millisecond}, WithSleeper(rec.sleep))
	env, err := client.Status(context.Background(), AgentTariffCalc, "t_1", nil)
	require.NoError(t, err)
	assert.Equal(t, "TASK_RUNNING", env.Code)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, rec.delays)
}
