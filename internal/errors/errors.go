package errors

import (
	stdErrors "errors"
	"fmt"
	"sort"
	"sync"
)

// Code 表示网关或本地的统一错误码。
type Code string

// Severity 描述错误的严重程度，用于日志与告警。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// 下游 agent.error 信封中使用的错误类型。
const (
	TypeInvalidRequest  = "invalid_request_error"
	TypeAuthentication  = "authentication_error"
	TypePaymentRequired = "payment_required_error"
	TypeRateLimit       = "rate_limit_error"
	TypeCanceled        = "operation_canceled_error"
	TypeServer          = "server_error"
)

// Attributes 为错误码提供默认行为。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
	Alert     bool
	// Fatal 表示 success=false 时必须作为错误抛出的业务码。
	Fatal bool
	// Type 是转换为 agent.error 时使用的错误类型。
	Type string
}

const (
	CodeUnknown         Code = "UNKNOWN_ERROR"
	CodeInternal        Code = "INTERNAL_ERROR"
	CodeValidation      Code = "VALIDATION_FAILED"
	CodeNetwork         Code = "NETWORK_ERROR"
	CodeInvalidResponse Code = "INVALID_RESPONSE"
	CodeHTTP            Code = "HTTP_ERROR"
	CodeCache           Code = "CACHE_FAILURE"
	CodeRelay           Code = "RELAY_FAILURE"

	// 网关业务码。
	CodeInvalidRequest      Code = "INVALID_REQUEST"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeTaskFailed          Code = "TASK_FAILED"
	CodeTaskCancelled       Code = "TASK_CANCELLED"
	CodeInsufficientCredits Code = "INSUFFICIENT_CREDITS"
	CodeInvalidIntent       Code = "INVALID_INTENT"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeTargetUnavailable   Code = "TARGET_UNAVAILABLE"
	CodeTimeout             Code = "TIMEOUT"
)

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown: {
			Message:  "unknown error",
			Severity: SeverityCritical,
			Alert:    true,
			Type:     TypeServer,
		},
		CodeInternal: {
			Message:  "internal error",
			Severity: SeverityCritical,
			Alert:    true,
			Type:     TypeServer,
		},
		CodeValidation: {
			Message:  "invalid argument",
			Severity: SeverityInfo,
			Type:     TypeInvalidRequest,
		},
		CodeNetwork: {
			Message:   "network error",
			Severity:  SeverityWarning,
			Retryable: true,
			Type:      TypeServer,
		},
		CodeInvalidResponse: {
			Message:   "response is not valid JSON",
			Severity:  SeverityWarning,
			Retryable: true,
			Type:      TypeServer,
		},
		CodeHTTP: {
			Message:  "http error",
			Severity: SeverityWarning,
			Type:     TypeServer,
		},
		CodeCache: {
			Message:   "manifest cache failure",
			Severity:  SeverityWarning,
			Retryable: true,
			Type:      TypeServer,
		},
		CodeRelay: {
			Message:   "frame relay failure",
			Severity:  SeverityWarning,
			Retryable: true,
			Alert:     true,
			Type:      TypeServer,
		},
		CodeInvalidRequest: {
			Message:  "invalid request",
			Severity: SeverityInfo,
			Fatal:    true,
			Type:     TypeInvalidRequest,
		},
		CodeUnauthorized: {
			Message:  "unauthorized",
			Severity: SeverityWarning,
			Alert:    true,
			Fatal:    true,
			Type:     TypeAuthentication,
		},
		CodeTaskFailed: {
			Message:  "task failed",
			Severity: SeverityWarning,
			Fatal:    true,
			Type:     TypeServer,
		},
		CodeTaskCancelled: {
			Message:  "task cancelled",
			Severity: SeverityInfo,
			Fatal:    true,
			Type:     TypeCanceled,
		},
		CodeInsufficientCredits: {
			Message:  "insufficient credits",
			Severity: SeverityWarning,
			Alert:    true,
			Type:     TypePaymentRequired,
		},
		CodeInvalidIntent: {
			Message:  "invalid intent",
			Severity: SeverityInfo,
			Type:     TypeInvalidRequest,
		},
		CodeRateLimited: {
			Message:   "rate limited",
			Severity:  SeverityWarning,
			Retryable: true,
			Type:      TypeRateLimit,
		},
		CodeTargetUnavailable: {
			Message:   "target unavailable",
			Severity:  SeverityWarning,
			Retryable: true,
			Type:      TypeServer,
		},
		CodeTimeout: {
			Message:   "operation timed out",
			Severity:  SeverityWarning,
			Retryable: true,
			Type:      TypeServer,
		},
	}
)

// Register 允许业务模块在初始化阶段注册新的错误码描述。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// Lookup 返回错误码对应的属性以及是否已注册。
func Lookup(code Code) (Attributes, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	attr, ok := registry[code]
	return attr, ok
}

// AttributesOf 返回错误码对应的属性。若未注册则返回 UNKNOWN_ERROR 的属性。
func AttributesOf(code Code) Attributes {
	if attr, ok := Lookup(code); ok {
		return attr
	}
	attr, _ := Lookup(CodeUnknown)
	return attr
}

// IsFatal 判断业务码在 success=false 时是否必须作为错误返回。
func IsFatal(code string) bool {
	attr, ok := Lookup(Code(code))
	return ok && attr.Fatal
}

// FatalCodes 返回所有致命业务码，按字母排序。
func FatalCodes() []Code {
	registryMu.RLock()
	defer registryMu.RUnlock()
	codes := make([]Code, 0, 4)
	for code, attr := range registry {
		if attr.Fatal {
			codes = append(codes, code)
		}
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// TypeOf 返回下游错误类型，未知错误码统一视为 server_error。
func TypeOf(code string) string {
	attr, ok := Lookup(Code(code))
	if !ok || attr.Type == "" {
		return TypeServer
	}
	return attr.Type
}

// Error 是本地统一的错误类型。
type Error struct {
	code      Code
	message   string
	cause     error
	metadata  map[string]string
	retryable *bool
	severity  *Severity
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加额外信息。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithRetryable 指定错误是否可重试。
func WithRetryable(retryable bool) Option {
	return func(e *Error) {
		e.retryable = &retryable
	}
}

// WithSeverity 覆盖默认严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) {
		e.severity = &sev
	}
}

// New 创建一个新的错误实例。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在已有错误外包裹统一错误类型。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Unwrap 实现 errors.Unwrap。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 允许通过 errors.Is 判断是否相同错误码。
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回错误信息。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// Retryable 判断是否可重试。
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	if e.retryable != nil {
		return *e.retryable
	}
	return AttributesOf(e.code).Retryable
}

// Severity 返回错误严重程度。
func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	if e.severity != nil {
		return *e.severity
	}
	return AttributesOf(e.code).Severity
}

// From 尝试从 error 中解析统一错误类型。
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误对应的错误码。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// RetryableError 判断任意 error 是否可重试。
func RetryableError(err error) bool {
	if e, ok := From(err); ok {
		return e.Retryable()
	}
	return false
}

// SeverityOf 返回错误严重程度。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}
