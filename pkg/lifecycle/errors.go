package lifecycle

import (
	"fmt"

	apperrors "supplygraph-a2a/internal/errors"
	"supplygraph-a2a/pkg/gateway"
)

const (
	errorObjectKind      = "agent.error"
	defaultErrorMessage  = "An error occurred."
	defaultErrorCode     = string(apperrors.CodeUnknown)
	internalErrorMessage = "Internal server error."
)

// ErrorObject is the downstream error envelope. It implements error so it
// can travel through ordinary error returns.
type ErrorObject struct {
	Object  string `json:"object"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Param   any    `json:"param"`
	Details any    `json:"details"`
}

// NewErrorObject builds an error envelope for a gateway or local code.
func NewErrorObject(code, message string, details any) ErrorObject {
	if message == "" {
		message = defaultErrorMessage
	}
	if code == "" {
		code = defaultErrorCode
	}
	if details == nil {
		details = map[string]any{}
	}
	return ErrorObject{
		Object:  errorObjectKind,
		Type:    apperrors.TypeOf(code),
		Message: message,
		Code:    code,
		Details: details,
	}
}

// ErrorFromEnvelope builds an error envelope from a failed gateway answer.
func ErrorFromEnvelope(env gateway.Envelope) ErrorObject {
	return NewErrorObject(envelopeCode(env), env.MessageText(), env.Errors)
}

// InternalError wraps an unexpected failure.
func InternalError(err error) ErrorObject {
	message := internalErrorMessage
	details := map[string]any{}
	if err != nil {
		if s := err.Error(); s != "" {
			message = s
		}
		details["cause"] = fmt.Sprintf("%T", err)
	}
	obj := NewErrorObject(string(apperrors.CodeInternal), message, details)
	obj.Type = apperrors.TypeServer
	return obj
}

// Error implements error.
func (e ErrorObject) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Type, e.Message)
}
