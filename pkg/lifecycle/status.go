// Package lifecycle maps gateway envelopes onto the five-state task
// lifecycle and reshapes them into uniform run, status and result objects.
//
// Every function in this package tolerates missing or malformed envelope
// fields; none of them returns an error.
package lifecycle

import (
	"sort"

	"supplygraph-a2a/pkg/gateway"
)

// Status is the normalized task lifecycle state.
type Status string

const (
	StatusInProgress     Status = "in_progress"
	StatusRequiresAction Status = "requires_action"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusCancelled      Status = "cancelled"
)

// Statuses lists the lifecycle states in a stable order.
var Statuses = []Status{
	StatusInProgress,
	StatusRequiresAction,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusByCode = map[string]Status{
	gateway.CodeInterpreting: StatusInProgress,
	gateway.CodeTaskAccepted: StatusInProgress,
	gateway.CodeTaskRunning:  StatusInProgress,
	gateway.CodeThinking:     StatusInProgress,

	gateway.CodeWaitingUser: StatusRequiresAction,

	gateway.CodeTaskCompleted: StatusCompleted,

	gateway.CodeTaskFailed:          StatusFailed,
	gateway.CodeInvalidRequest:      StatusFailed,
	gateway.CodeUnauthorized:        StatusFailed,
	gateway.CodeInsufficientCredits: StatusFailed,
	gateway.CodeInvalidIntent:       StatusFailed,
	gateway.CodeRateLimited:         StatusFailed,
	gateway.CodeTargetUnavailable:   StatusFailed,
	gateway.CodeTimeout:             StatusFailed,

	gateway.CodeTaskCancelled: StatusCancelled,
}

// FromCode maps a gateway code to its lifecycle status. Codes outside the
// known vocabulary map to StatusInProgress with known == false.
func FromCode(code string) (status Status, known bool) {
	status, known = statusByCode[code]
	if !known {
		return StatusInProgress, false
	}
	return status, true
}

// ToStatus is FromCode without the known flag.
func ToStatus(code string) Status {
	status, _ := FromCode(code)
	return status
}

// CodesFor returns the gateway codes that map to status, sorted. An
// unrecognized status yields an empty slice.
func CodesFor(status Status) []string {
	codes := []string{}
	for code, s := range statusByCode {
		if s == status {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

// Terminal reports whether no further state change is expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) exposesOutput() bool {
	return s == StatusCompleted || s == StatusRequiresAction
}
