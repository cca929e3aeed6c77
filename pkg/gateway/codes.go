// Package gateway holds the wire model of the SupplyGraph agent gateway:
// response envelopes, agent manifests, request bodies and the status-code
// vocabulary. Decoding is lenient: a field with an unexpected JSON type is
// treated as absent rather than failing the whole document.
package gateway

// Status codes reported by the gateway in Envelope.Code and TaskData.Code.
const (
	CodeInterpreting        = "INTERPRETING"
	CodeTaskAccepted        = "TASK_ACCEPTED"
	CodeTaskRunning         = "TASK_RUNNING"
	CodeThinking            = "THINKING"
	CodeWaitingUser         = "WAITING_USER"
	CodeTaskCompleted       = "TASK_COMPLETED"
	CodeTaskFailed          = "TASK_FAILED"
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	CodeInvalidIntent       = "INVALID_INTENT"
	CodeRateLimited         = "RATE_LIMITED"
	CodeTargetUnavailable   = "TARGET_UNAVAILABLE"
	CodeTimeout             = "TIMEOUT"
	CodeTaskCancelled       = "TASK_CANCELLED"
)

// KnownCodes lists the full status vocabulary in a stable order.
var KnownCodes = []string{
	CodeInterpreting,
	CodeTaskAccepted,
	CodeTaskRunning,
	CodeThinking,
	CodeWaitingUser,
	CodeTaskCompleted,
	CodeTaskFailed,
	CodeInvalidRequest,
	CodeUnauthorized,
	CodeInsufficientCredits,
	CodeInvalidIntent,
	CodeRateLimited,
	CodeTargetUnavailable,
	CodeTimeout,
	CodeTaskCancelled,
}

// Mode selects the operation performed by POST {base}/{agent}/run.
type Mode string

const (
	ModeRun     Mode = "run"
	ModeStatus  Mode = "status"
	ModeResults Mode = "results"
)

// Valid reports whether m is one of the three gateway modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeRun, ModeStatus, ModeResults:
		return true
	default:
		return false
	}
}
