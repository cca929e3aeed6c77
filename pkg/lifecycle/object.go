package lifecycle

// Kind is the "object" discriminator of a normalized object.
type Kind string

const (
	KindRun    Kind = "agent.run"
	KindStatus Kind = "agent.run.status"
	KindResult Kind = "agent.run.result"
)

// VendorKey is the extensions key holding gateway passthrough fields.
const VendorKey = "supplygraph"

// RequiredActionAwaitingUser is the only required action type.
const RequiredActionAwaitingUser = "awaiting_user"

// RequiredAction asks the caller for more input.
type RequiredAction struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// LastError describes why a task failed.
type LastError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Extensions carries vendor specific passthrough fields keyed by vendor.
type Extensions map[string]map[string]any

// Object is the shape shared by run, status and result objects.
//
// Output is set only for completed and requires_action, RequiredAction only
// for requires_action and LastError only for failed.
type Object struct {
	ID             string          `json:"id"`
	Kind           Kind            `json:"object"`
	AgentID        string          `json:"agent_id"`
	Status         Status          `json:"status"`
	CreatedAt      int64           `json:"created_at"`
	Output         *Output         `json:"output"`
	RequiredAction *RequiredAction `json:"required_action"`
	LastError      *LastError      `json:"last_error"`
	Metadata       map[string]any  `json:"metadata"`
	Extensions     Extensions      `json:"extensions"`
}

// Vendor returns the gateway passthrough block.
func (o Object) Vendor() map[string]any {
	return o.Extensions[VendorKey]
}

// RunObject is the normalized answer to a run call.
type RunObject struct {
	Object
	Input map[string]any `json:"input"`
}

// StatusObject is the normalized answer to a status call.
type StatusObject struct {
	Object
	Steps []Step `json:"steps"`
}

// ResultObject is the normalized answer to a results call.
type ResultObject struct {
	Object
}

// Step is one intermediate step of a running task.
type Step struct {
	Type      string `json:"type"`
	Content   any    `json:"content"`
	Timestamp int64  `json:"timestamp"`
}
