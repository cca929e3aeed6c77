package lifecycle

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supplygraph-a2a/pkg/gateway"
)

var fixedNow = time.Unix(1731970000, 0)

func fixedClock() time.Time { return fixedNow }

func decode(t *testing.T, body string) gateway.Envelope {
	t.Helper()
	var env gateway.Envelope
	require.NoError(t, json.Unmarshal([]byte(body), &env))
	return env
}

func TestStatusMappingIsTotal(t *testing.T) {
	for _, code := range gateway.KnownCodes {
		status, known := FromCode(code)
		assert.True(t, known, code)
		assert.Contains(t, Statuses, status, code)
	}

	cases := map[string]Status{
		"WAITING_USER":   StatusRequiresAction,
		"TASK_COMPLETED": StatusCompleted,
		"TIMEOUT":        StatusFailed,
		"TASK_CANCELLED": StatusCancelled,
		"THINKING":       StatusInProgress,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToStatus(code), code)
	}

	for _, code := range []string{"", "SOMETHING_NEW", "task_completed"} {
		status, known := FromCode(code)
		assert.Equal(t, StatusInProgress, status)
		assert.False(t, known)
	}
}

func TestCodesFor(t *testing.T) {
	assert.Equal(t, []string{"TASK_CANCELLED"}, CodesFor(StatusCancelled))
	assert.Equal(t, []string{"INTERPRETING", "TASK_ACCEPTED", "TASK_RUNNING", "THINKING"}, CodesFor(StatusInProgress))
	assert.Len(t, CodesFor(StatusFailed), 8)
	assert.Empty(t, CodesFor(Status("unknown")))
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusRequiresAction.Terminal())
}

func TestNormalizeContent(t *testing.T) {
	assert.Nil(t, NormalizeContent(nil))
	assert.Equal(t, &Output{Type: OutputText, Content: "hello"}, NormalizeContent("hello"))
	assert.Equal(t,
		&Output{Type: OutputJSON, Content: map[string]any{"v": float64(1)}},
		NormalizeContent(map[string]any{"type": "result", "data": map[string]any{"v": float64(1)}}))
	assert.Equal(t,
		&Output{Type: OutputJSON, Content: map[string]any{"foo": "bar"}},
		NormalizeContent(map[string]any{"foo": "bar"}))
	assert.Equal(t,
		&Output{Type: OutputJSON, Content: map[string]any{}},
		NormalizeContent(map[string]any{"type": "result"}))
	assert.Equal(t, TextOutput("42"), NormalizeContent(float64(42)))
	assert.Equal(t, TextOutput("0.25"), NormalizeContent(0.25))
	assert.Equal(t, TextOutput("true"), NormalizeContent(true))
	assert.Equal(t, TextOutput(`["a",1]`), NormalizeContent([]any{"a", float64(1)}))

	text, ok := NormalizeContent("x").Text()
	assert.True(t, ok)
	assert.Equal(t, "x", text)
	_, ok = NormalizeContent(map[string]any{}).Text()
	assert.False(t, ok)
}

// assertGating checks the invariants between status and the optional blocks.
func assertGating(t *testing.T, obj Object) {
	t.Helper()
	if obj.Output != nil {
		assert.Contains(t, []Status{StatusCompleted, StatusRequiresAction}, obj.Status)
	}
	if obj.RequiredAction != nil {
		assert.Equal(t, StatusRequiresAction, obj.Status)
		assert.NotEmpty(t, obj.RequiredAction.Message)
	}
	if obj.LastError != nil {
		assert.Equal(t, StatusFailed, obj.Status)
	}
	if obj.Status == StatusFailed {
		require.NotNil(t, obj.LastError)
		assert.NotEmpty(t, obj.LastError.Code)
		assert.NotEmpty(t, obj.LastError.Message)
	}
	if obj.Status == StatusRequiresAction {
		require.NotNil(t, obj.RequiredAction)
	}
}

func TestGatingHoldsForEveryCodeAndContent(t *testing.T) {
	codes := append([]string{"", "BRAND_NEW"}, gateway.KnownCodes...)
	contents := []any{nil, "text", map[string]any{"prompt": "Which country?"}, map[string]any{"type": "result", "data": map[string]any{"duty": 0.1}}, float64(3)}
	n := &Normalizer{AgentID: "tariff_calc", Clock: fixedClock, Logger: slogDiscard()}

	for _, code := range codes {
		for _, content := range contents {
			env := gateway.EnvelopeFromMap(map[string]any{
				"success": false,
				"code":    code,
				"data":    map[string]any{"content": content},
			})
			assertGating(t, n.Run(env).Object)
			assertGating(t, n.Status(env).Object)
			assertGating(t, n.Result(env).Object)
		}
	}
}

func TestRunObjectCompleted(t *testing.T) {
	env := decode(t, `{
	  "success": true,
	  "code": "TASK_COMPLETED",
	  "message": "done",
	  "data": {
	    "task_id": "t_1",
	    "agent": "tariff_calc",
	    "stage": "completed",
	    "code": "TASK_COMPLETED",
	    "progress": 100,
	    "content": {"type": "result", "data": {"duty_rate": 0.25}},
	    "timestamp": "2025-11-12T09:00:10Z",
	    "is_final": true,
	    "input": "laptops from CN",
	    "extra": {"country": "CN", "text": "ignored"}
	  },
	  "metadata": {"agent": "tariff_calc", "timestamp": "2025-11-12T09:00:10Z", "version": "1.2", "credits_used": 5}
	}`)
	n := &Normalizer{AgentID: "tariff_calc", Clock: fixedClock}
	run := n.Run(env)

	assert.Equal(t, "t_1", run.ID)
	assert.Equal(t, KindRun, run.Kind)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, fixedNow.Unix(), run.CreatedAt)
	assert.Equal(t, JSONOutput(map[string]any{"duty_rate": 0.25}), run.Output)
	assert.Nil(t, run.RequiredAction)
	assert.Nil(t, run.LastError)
	assert.Equal(t, map[string]any{"text": "laptops from CN", "country": "CN"}, run.Input)
	assert.Equal(t, map[string]any{
		"message":   "done",
		"agent":     "tariff_calc",
		"timestamp": "2025-11-12T09:00:10Z",
		"version":   "1.2",
	}, run.Metadata)
	assert.Equal(t, map[string]any{
		"stage":        "completed",
		"code":         "TASK_COMPLETED",
		"progress":     float64(100),
		"timestamp":    "2025-11-12T09:00:10Z",
		"agent":        "tariff_calc",
		"is_final":     true,
		"credits_used": float64(5),
	}, run.Vendor())
}

func TestRunObjectWaitingUser(t *testing.T) {
	n := &Normalizer{AgentID: "customs_classification", Clock: fixedClock}

	env := decode(t, `{"success": false, "code": "WAITING_USER", "message": "Need more info", "data": {"task_id": "t_2", "content": "What material is it made of?"}}`)
	run := n.Run(env)
	assert.Equal(t, StatusRequiresAction, run.Status)
	require.NotNil(t, run.RequiredAction)
	assert.Equal(t, RequiredAction{Type: "awaiting_user", Message: "What material is it made of?"}, *run.RequiredAction)
	assert.Equal(t, TextOutput("What material is it made of?"), run.Output)

	env = decode(t, `{"code": "WAITING_USER", "data": {"content": {"prompt": "Pick a country"}}}`)
	assert.Equal(t, "Pick a country", n.Run(env).RequiredAction.Message)

	env = decode(t, `{"code": "WAITING_USER", "data": {"content": {"prompt": 84713000000}}}`)
	assert.Equal(t, "84713000000", n.Run(env).RequiredAction.Message)

	env = decode(t, `{"code": "WAITING_USER", "message": "Need more info", "data": {}}`)
	assert.Equal(t, "Need more info", n.Status(env).RequiredAction.Message)

	env = decode(t, `{"code": "WAITING_USER"}`)
	assert.Equal(t, runRequiredActionFallback, n.Run(env).RequiredAction.Message)
	assert.Equal(t, defaultRequiredActionMessage, n.Status(env).RequiredAction.Message)
	assert.Nil(t, n.Run(env).Output)
}

func TestFailedObjects(t *testing.T) {
	n := &Normalizer{AgentID: "tariff_calc", Clock: fixedClock}
	env := decode(t, `{"success": false, "code": "INSUFFICIENT_CREDITS", "data": {"task_id": "t_3", "content": "partial"}, "errors": [{"field": "credits"}]}`)

	run := n.Run(env)
	assert.Nil(t, run.Output)
	require.NotNil(t, run.LastError)
	assert.Equal(t, "INSUFFICIENT_CREDITS", run.LastError.Code)
	assert.Equal(t, runLastErrorFallback, run.LastError.Message)

	result := n.Result(env)
	require.NotNil(t, result.LastError)
	assert.Equal(t, defaultLastErrorMessage, result.LastError.Message)
	assert.Equal(t, []any{map[string]any{"field": "credits"}}, result.LastError.Details)
	assert.Nil(t, result.Metadata)
}

func TestStatusObjectSteps(t *testing.T) {
	n := &Normalizer{AgentID: "tariff_calc", Clock: fixedClock}

	env := decode(t, `{"code": "TASK_RUNNING", "data": {"task_id": "t_4", "intermediate_steps": [{"type": "thinking", "content": "Analyzing"}, {"content": "Looking up HTS"}, {"type": "action"}]}}`)
	st := n.Status(env)
	assert.Equal(t, KindStatus, st.Kind)
	assert.Equal(t, []Step{
		{Type: "thinking", Content: "Analyzing", Timestamp: fixedNow.Unix()},
		{Type: "reasoning", Content: "Looking up HTS", Timestamp: fixedNow.Unix()},
		{Type: "action", Content: "", Timestamp: fixedNow.Unix()},
	}, st.Steps)
	assert.Nil(t, st.Output)

	empty := n.Status(decode(t, `{"code": "TASK_RUNNING"}`))
	require.NotNil(t, empty.Steps)
	assert.Empty(t, empty.Steps)

	out, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"steps":[]`)
}

func TestTaskIDResolution(t *testing.T) {
	n := &Normalizer{AgentID: "a", Clock: fixedClock}
	assert.Equal(t, "top", n.Run(decode(t, `{"task_id": "top", "data": {}}`)).ID)
	assert.Equal(t, "nested", n.Run(decode(t, `{"task_id": "top", "data": {"task_id": "nested"}}`)).ID)
	assert.Equal(t, "sg_task_1731970000", n.Result(decode(t, `{}`)).ID)
}

func TestCodeFallsBackToDataCode(t *testing.T) {
	res := ToResultObject("a", decode(t, `{"data": {"code": "TASK_COMPLETED", "content": "ok"}}`))
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, TextOutput("ok"), res.Output)
}

func TestUnknownCodeIsFlagged(t *testing.T) {
	var buf bytes.Buffer
	var seen []string
	n := &Normalizer{
		AgentID:       "sg_chokepoint",
		Clock:         fixedClock,
		Logger:        slog.New(slog.NewTextHandler(&buf, nil)),
		OnUnknownCode: func(code string) { seen = append(seen, code) },
	}

	st := n.Status(decode(t, `{"code": "QUEUED_REMOTE"}`))
	assert.Equal(t, StatusInProgress, st.Status)
	assert.Equal(t, []string{"QUEUED_REMOTE"}, seen)
	assert.Contains(t, buf.String(), "code=QUEUED_REMOTE")

	n.Status(decode(t, `{}`))
	assert.Len(t, seen, 1)
}

func TestObjectJSONShape(t *testing.T) {
	run := ToRunObject("tariff_calc", decode(t, `{"code": "TASK_ACCEPTED", "data": {"task_id": "t_9"}}`))
	out, err := json.Marshal(run)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, "agent.run", doc["object"])
	assert.Equal(t, "in_progress", doc["status"])
	for _, key := range []string{"output", "required_action", "last_error", "metadata", "input"} {
		v, ok := doc[key]
		assert.True(t, ok, key)
		assert.Nil(t, v, key)
	}
	assert.Equal(t, map[string]any{"supplygraph": map[string]any{}}, doc["extensions"])
}

func TestBuildAgentManifest(t *testing.T) {
	var m gateway.Manifest
	require.NoError(t, json.Unmarshal([]byte(`{
	  "agent_id": "tariff_calc",
	  "name": "US Tariff Calculation",
	  "capabilities": ["run", "results"],
	  "protocol": {"streaming": true, "base_url": "https://x", "endpoints": {"run": "/run"}},
	  "auth": {"required": false},
	  "pricing": {"per_run": 5},
	  "tags": ["tariff"],
	  "priority": "high",
	  "vendor_bag": {"k": "v"}
	}`), &m))

	am := BuildAgentManifest(m)
	assert.Equal(t, "agent", am.Object)
	assert.Equal(t, "tariff_calc", am.ID)
	assert.Equal(t, "1.0.0", am.Version)
	assert.Equal(t, "", am.Description)
	assert.Equal(t, Capabilities{Manifest: true, Run: true, Results: true, Streaming: true}, am.Capabilities)
	assert.Equal(t, Pricing{Unit: "credits", PerRun: float64(5)}, am.Pricing)
	assert.False(t, am.APIKeyRequired)
	assert.Equal(t, []any{"tariff"}, am.Metadata["tags"])
	assert.Equal(t, map[string]any{"run": "/run"}, am.Metadata["endpoints"])
	assert.Equal(t, "high", am.Extended["priority"])
	assert.Equal(t, map[string]any{"vendor_bag": map[string]any{"k": "v"}}, am.Extended["extra_fields"])
	assert.Equal(t, map[string]any{}, am.InputSchema)

	bare := BuildAgentManifest(gateway.Manifest{AgentID: "x"})
	assert.True(t, bare.APIKeyRequired)
	assert.Equal(t, "x", bare.ID)
	_, hasExtra := bare.Extended["extra_fields"]
	assert.False(t, hasExtra)
}

func TestErrorObjects(t *testing.T) {
	obj := NewErrorObject("RATE_LIMITED", "", nil)
	assert.Equal(t, ErrorObject{
		Object:  "agent.error",
		Type:    "rate_limit_error",
		Message: "An error occurred.",
		Code:    "RATE_LIMITED",
		Details: map[string]any{},
	}, obj)

	assert.Equal(t, "UNKNOWN_ERROR", NewErrorObject("", "x", nil).Code)
	assert.Equal(t, "server_error", NewErrorObject("WHATEVER", "x", nil).Type)
	assert.Equal(t, "payment_required_error", NewErrorObject("INSUFFICIENT_CREDITS", "x", nil).Type)
	assert.Equal(t, "operation_canceled_error", NewErrorObject("TASK_CANCELLED", "x", nil).Type)

	fromEnv := ErrorFromEnvelope(decode(t, `{"code": "UNAUTHORIZED", "message": "bad key", "errors": {"hint": "rotate"}}`))
	assert.Equal(t, "authentication_error", fromEnv.Type)
	assert.Equal(t, map[string]any{"hint": "rotate"}, fromEnv.Details)
	assert.EqualError(t, fromEnv, "UNAUTHORIZED (authentication_error): bad key")

	internal := InternalError(assert.AnError)
	assert.Equal(t, "INTERNAL_ERROR", internal.Code)
	assert.Equal(t, "server_error", internal.Type)

	out, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"param":null`)
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}
