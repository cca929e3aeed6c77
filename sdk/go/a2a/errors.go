package a2a

import (
	"fmt"
	"strings"

	apperrors "supplygraph-a2a/internal/errors"
)

// ErrValidation matches, via errors.Is, every error raised for malformed
// caller input before any network activity.
var ErrValidation = apperrors.New(apperrors.CodeValidation, "validation failed")

func validationError(message string) error {
	return apperrors.New(apperrors.CodeValidation, message)
}

func validateAgentID(agentID string) error {
	if strings.TrimSpace(agentID) == "" {
		return validationError("agent_id must be a non-empty string")
	}
	return nil
}

func validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return validationError("text must be a non-empty string for mode='run'")
	}
	return nil
}

func validateTaskID(taskID string) error {
	if strings.TrimSpace(taskID) == "" {
		return validationError("task_id must be a non-empty string")
	}
	return nil
}

// TransportError reports a failed gateway call: a network failure, a body
// that is not a JSON object, an HTTP error status or a fatal business code.
type TransportError struct {
	// HTTPStatus is zero when no response was received.
	HTTPStatus int
	// APICode is the gateway business code, when the body carried one.
	APICode string
	Errors  any
	// Payload is the decoded body, {"raw": text} for bodies that are not
	// JSON and {"text": text} for failed streaming calls.
	Payload map[string]any
	Message string

	err *apperrors.Error
}

// Error implements error.
func (e *TransportError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("supplygraph gateway error")
	if e.HTTPStatus != 0 {
		fmt.Fprintf(&b, " (%d)", e.HTTPStatus)
	}
	if e.APICode != "" {
		fmt.Fprintf(&b, " %s", e.APICode)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

// Unwrap exposes the classified cause.
func (e *TransportError) Unwrap() error {
	if e == nil || e.err == nil {
		return nil
	}
	return e.err
}

// Retryable reports whether the call may succeed when repeated.
func (e *TransportError) Retryable() bool {
	if e == nil || e.err == nil {
		return false
	}
	return e.err.Retryable()
}

// Code returns the local classification of the failure.
func (e *TransportError) Code() apperrors.Code {
	if e == nil || e.err == nil {
		return apperrors.CodeUnknown
	}
	return e.err.Code()
}

func networkError(url string, cause error, retryable bool) *TransportError {
	message := fmt.Sprintf("network error calling %s: %v", url, cause)
	return &TransportError{
		Payload: map[string]any{},
		Message: message,
		err:     apperrors.Wrap(apperrors.CodeNetwork, cause, "network error", apperrors.WithRetryable(retryable)),
	}
}

func invalidResponseError(status int, body []byte) *TransportError {
	retryable := status < 400 || retryableStatus(status)
	return &TransportError{
		HTTPStatus: status,
		Payload:    map[string]any{"raw": string(body)},
		Message:    "Response is not valid JSON",
		err:        apperrors.New(apperrors.CodeInvalidResponse, "", apperrors.WithRetryable(retryable)),
	}
}

func httpError(status int, payload map[string]any) *TransportError {
	message, _ := payload["message"].(string)
	if message == "" {
		message = "HTTP error"
	}
	code, _ := payload["code"].(string)
	return &TransportError{
		HTTPStatus: status,
		APICode:    code,
		Errors:     payload["errors"],
		Payload:    payload,
		Message:    message,
		err: apperrors.New(apperrors.CodeHTTP, message,
			apperrors.WithRetryable(retryableStatus(status)),
			apperrors.WithMetadata("status", fmt.Sprint(status))),
	}
}

func businessError(status int, code string, payload map[string]any) *TransportError {
	message, _ := payload["message"].(string)
	return &TransportError{
		HTTPStatus: status,
		APICode:    code,
		Errors:     payload["errors"],
		Payload:    payload,
		Message:    message,
		err:        apperrors.New(apperrors.Code(code), message, apperrors.WithRetryable(false)),
	}
}

func streamError(status int, body []byte) *TransportError {
	message := fmt.Sprintf("HTTP %d error in streaming mode", status)
	return &TransportError{
		HTTPStatus: status,
		Payload:    map[string]any{"text": string(body)},
		Message:    message,
		err:        apperrors.New(apperrors.CodeHTTP, message, apperrors.WithRetryable(false)),
	}
}

func retryableStatus(status int) bool {
	return status == 429 || status >= 500
}
