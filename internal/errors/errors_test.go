package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFatalCodes(t *testing.T) {
	assert.Equal(t, []Code{CodeInvalidRequest, CodeTaskCancelled, CodeTaskFailed, CodeUnauthorized}, FatalCodes())
	assert.True(t, IsFatal("TASK_FAILED"))
	assert.False(t, IsFatal("WAITING_USER"))
	assert.False(t, IsFatal("RATE_LIMITED"))
	assert.False(t, IsFatal(""))
}

func TestTypeOf(t *testing.T) {
	cases := map[string]string{
		"INVALID_REQUEST":      TypeInvalidRequest,
		"INVALID_INTENT":       TypeInvalidRequest,
		"UNAUTHORIZED":         TypeAuthentication,
		"INSUFFICIENT_CREDITS": TypePaymentRequired,
		"RATE_LIMITED":         TypeRateLimit,
		"TASK_CANCELLED":       TypeCanceled,
		"TASK_FAILED":          TypeServer,
		"SOMETHING_NEW":        TypeServer,
		"":                     TypeServer,
	}
	for code, want := range cases {
		assert.Equal(t, want, TypeOf(code), "code %q", code)
	}
}

func TestErrorIsComparesCodes(t *testing.T) {
	sentinel := New(CodeValidation, "")
	err := fmt.Errorf("outer: %w", New(CodeValidation, "agent_id must be a non-empty string"))

	require.True(t, stdErrors.Is(err, sentinel))
	assert.False(t, stdErrors.Is(err, New(CodeNetwork, "")))
	assert.Equal(t, CodeValidation, CodeOf(err))
	assert.Equal(t, "invalid argument", sentinel.Message())
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("dial tcp: refused")
	err := Wrap(CodeNetwork, cause, "call gateway", WithMetadata("url", "http://x"))

	assert.ErrorIs(t, err, cause)
	assert.True(t, err.Retryable())
	assert.Equal(t, "[NETWORK_ERROR] call gateway: dial tcp: refused", err.Error())
	assert.Equal(t, map[string]string{"url": "http://x"}, err.Metadata())
	assert.False(t, Wrap(CodeNetwork, cause, "", WithRetryable(false)).Retryable())
}

func TestUnknownCodeFallsBack(t *testing.T) {
	attr := AttributesOf("NOT_REGISTERED")
	assert.Equal(t, SeverityCritical, attr.Severity)
	assert.Equal(t, CodeUnknown, CodeOf(stdErrors.New("plain")))
	assert.False(t, RetryableError(stdErrors.New("plain")))
	assert.Equal(t, SeverityCritical, SeverityOf(stdErrors.New("plain")))
}
