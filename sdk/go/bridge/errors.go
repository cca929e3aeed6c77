package bridge

import (
	"context"
	"errors"
	"net/http"

	apperrors "supplygraph-a2a/internal/errors"
	"supplygraph-a2a/pkg/lifecycle"
	"supplygraph-a2a/sdk/go/a2a"
)

// Error is returned by every failing Bridge method. It carries the
// agent.error envelope, the HTTP status a downstream server should answer
// with and the original cause.
type Error struct {
	lifecycle.ErrorObject
	Status int `json:"-"`

	cause error
}

// Error implements error.
func (e *Error) Error() string { return e.ErrorObject.Error() }

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.cause }

func wrapError(err error) *Error {
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	return &Error{ErrorObject: ErrorObject(err), Status: StatusCode(err), cause: err}
}

func invalidRequest(message string) *Error {
	return &Error{
		ErrorObject: lifecycle.NewErrorObject(string(apperrors.CodeInvalidRequest), message, nil),
		Status:      http.StatusBadRequest,
	}
}

// ErrorObject converts any error into an agent.error envelope. Gateway
// failures keep the gateway code, message and error details; caller input
// errors become INVALID_REQUEST; everything else is an internal error.
func ErrorObject(err error) lifecycle.ErrorObject {
	var be *Error
	if errors.As(err, &be) {
		return be.ErrorObject
	}
	var obj lifecycle.ErrorObject
	if errors.As(err, &obj) {
		return obj
	}
	var te *a2a.TransportError
	if errors.As(err, &te) {
		return transportErrorObject(te)
	}
	if errors.Is(err, a2a.ErrValidation) {
		message := "invalid request"
		if ae, ok := apperrors.From(err); ok && ae.Message() != "" {
			message = ae.Message()
		}
		return lifecycle.NewErrorObject(string(apperrors.CodeInvalidRequest), message, nil)
	}
	if errors.Is(err, context.Canceled) {
		obj := lifecycle.InternalError(err)
		obj.Type = apperrors.TypeCanceled
		return obj
	}
	return lifecycle.InternalError(err)
}

func transportErrorObject(te *a2a.TransportError) lifecycle.ErrorObject {
	code := te.APICode
	if code == "" {
		code = string(te.Code())
	}
	var details any
	if te.Errors != nil {
		details = te.Errors
	} else if len(te.Payload) > 0 {
		details = te.Payload
	}
	obj := lifecycle.NewErrorObject(code, te.Message, details)
	if te.APICode == "" && te.HTTPStatus >= 400 {
		obj.Type = typeForStatus(te.HTTPStatus)
	}
	return obj
}

func typeForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.TypeAuthentication
	case status == http.StatusPaymentRequired:
		return apperrors.TypePaymentRequired
	case status == http.StatusTooManyRequests:
		return apperrors.TypeRateLimit
	case status >= 400 && status < 500:
		return apperrors.TypeInvalidRequest
	default:
		return apperrors.TypeServer
	}
}

// StatusCode returns the HTTP status a downstream server should answer
// with for err: 400 for caller input errors, the gateway status for gateway
// HTTP errors and 502 for every other gateway failure.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var be *Error
	if errors.As(err, &be) && be.Status != 0 {
		return be.Status
	}
	if errors.Is(err, a2a.ErrValidation) {
		return http.StatusBadRequest
	}
	var te *a2a.TransportError
	if errors.As(err, &te) {
		if te.HTTPStatus >= 400 {
			return te.HTTPStatus
		}
		switch apperrors.TypeOf(te.APICode) {
		case apperrors.TypeInvalidRequest:
			return http.StatusBadRequest
		case apperrors.TypeAuthentication:
			return http.StatusUnauthorized
		case apperrors.TypePaymentRequired:
			return http.StatusPaymentRequired
		case apperrors.TypeRateLimit:
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
