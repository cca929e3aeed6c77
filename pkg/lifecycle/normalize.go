package lifecycle

import (
	"fmt"
	"log/slog"
	"time"

	"supplygraph-a2a/pkg/gateway"
	"supplygraph-a2a/pkg/logger"
)

const (
	runRequiredActionFallback    = "Additional user input is required to continue this task."
	defaultRequiredActionMessage = "Additional user input is required."
	runLastErrorFallback         = "An error occurred."
	defaultLastErrorMessage      = "Task failed."
	defaultStepType              = "reasoning"
)

// Normalizer builds normalized objects for one agent. The zero value of
// every optional field is usable.
type Normalizer struct {
	AgentID string
	// Clock supplies created_at, step timestamps and synthesized task ids.
	Clock func() time.Time
	// Logger receives a warning for every unrecognized gateway code.
	Logger *slog.Logger
	// OnUnknownCode is called with every unrecognized gateway code.
	OnUnknownCode func(code string)
}

// ToRunObject normalizes the envelope of a run call.
func ToRunObject(agentID string, env gateway.Envelope) RunObject {
	return (&Normalizer{AgentID: agentID}).Run(env)
}

// ToStatusObject normalizes the envelope of a status call.
func ToStatusObject(agentID string, env gateway.Envelope) StatusObject {
	return (&Normalizer{AgentID: agentID}).Status(env)
}

// ToResultObject normalizes the envelope of a results call.
func ToResultObject(agentID string, env gateway.Envelope) ResultObject {
	return (&Normalizer{AgentID: agentID}).Result(env)
}

// Run normalizes the envelope of a run call.
func (n *Normalizer) Run(env gateway.Envelope) RunObject {
	obj := n.base(KindRun, env, []string{"agent", "timestamp", "version"})
	n.fill(&obj, env, runRequiredActionFallback, runLastErrorFallback)
	return RunObject{Object: obj, Input: runInput(env.Data)}
}

// Status normalizes the envelope of a status call.
func (n *Normalizer) Status(env gateway.Envelope) StatusObject {
	obj := n.base(KindStatus, env, []string{"agent", "timestamp", "credits_used"})
	n.fill(&obj, env, defaultRequiredActionMessage, defaultLastErrorMessage)
	return StatusObject{Object: obj, Steps: n.steps(env.Data.IntermediateSteps)}
}

// Result normalizes the envelope of a results call.
func (n *Normalizer) Result(env gateway.Envelope) ResultObject {
	obj := n.base(KindResult, env, []string{"timestamp", "credits_used", "agent"})
	n.fill(&obj, env, defaultRequiredActionMessage, defaultLastErrorMessage)
	return ResultObject{Object: obj}
}

func (n *Normalizer) now() time.Time {
	if n.Clock != nil {
		return n.Clock()
	}
	return time.Now()
}

func (n *Normalizer) base(kind Kind, env gateway.Envelope, metadataKeys []string) Object {
	now := n.now()
	code := envelopeCode(env)
	status, known := FromCode(code)
	if !known && code != "" {
		n.flagUnknown(kind, code)
	}

	id := env.ResolvedTaskID()
	if id == "" {
		id = fmt.Sprintf("sg_task_%d", now.Unix())
	}

	return Object{
		ID:         id,
		Kind:       kind,
		AgentID:    n.AgentID,
		Status:     status,
		CreatedAt:  now.Unix(),
		Metadata:   objectMetadata(env, metadataKeys),
		Extensions: Extensions{VendorKey: vendorFields(env)},
	}
}

func (n *Normalizer) fill(obj *Object, env gateway.Envelope, actionFallback, errorFallback string) {
	if obj.Status.exposesOutput() {
		obj.Output = NormalizeContent(env.Data.Content)
	}
	switch obj.Status {
	case StatusRequiresAction:
		obj.RequiredAction = &RequiredAction{
			Type:    RequiredActionAwaitingUser,
			Message: requiredActionMessage(env, actionFallback),
		}
	case StatusFailed:
		message := env.MessageText()
		if message == "" {
			message = errorFallback
		}
		obj.LastError = &LastError{
			Code:    envelopeCode(env),
			Message: message,
			Details: env.Errors,
		}
	}
}

func (n *Normalizer) flagUnknown(kind Kind, code string) {
	log := n.Logger
	if log == nil {
		log = logger.Named("lifecycle")
	}
	log.Warn("unrecognized gateway code, treating as in_progress",
		slog.String("agent_id", n.AgentID),
		slog.String("object", string(kind)),
		slog.String("code", code),
	)
	if n.OnUnknownCode != nil {
		n.OnUnknownCode(code)
	}
}

func (n *Normalizer) steps(in []gateway.Step) []Step {
	out := make([]Step, 0, len(in))
	if len(in) == 0 {
		return out
	}
	ts := n.now().Unix()
	for _, step := range in {
		kind := step.Type
		if kind == "" {
			kind = defaultStepType
		}
		content := step.Content
		if content == nil {
			content = ""
		}
		out = append(out, Step{Type: kind, Content: content, Timestamp: ts})
	}
	return out
}

// envelopeCode prefers the top-level code and falls back to data.code.
func envelopeCode(env gateway.Envelope) string {
	if env.Code != "" {
		return env.Code
	}
	if env.Data.Code != nil {
		return *env.Data.Code
	}
	return ""
}

func requiredActionMessage(env gateway.Envelope, fallback string) string {
	switch content := env.Data.Content.(type) {
	case string:
		if content != "" {
			return content
		}
	case map[string]any:
		if prompt, ok := content["prompt"]; ok && prompt != nil {
			if s := stringify(prompt); s != "" {
				return s
			}
		}
	}
	if message := env.MessageText(); message != "" {
		return message
	}
	return fallback
}

func objectMetadata(env gateway.Envelope, keys []string) map[string]any {
	md := map[string]any{}
	if env.Message != nil {
		md["message"] = *env.Message
	}
	for _, key := range keys {
		var v any
		switch key {
		case "agent":
			v = env.Metadata.Agent
		case "timestamp":
			v = env.Metadata.Timestamp
		case "credits_used":
			v = env.Metadata.CreditsUsed
		case "version":
			v = env.Metadata.Version
		}
		if v != nil {
			md[key] = v
		}
	}
	if len(md) == 0 {
		return nil
	}
	return md
}

// vendorFields copies the passthrough allow-list, skipping absent fields.
func vendorFields(env gateway.Envelope) map[string]any {
	d := env.Data
	ext := map[string]any{}
	if d.Stage != nil {
		ext["stage"] = *d.Stage
	}
	if d.Code != nil {
		ext["code"] = *d.Code
	}
	if d.Progress != nil {
		ext["progress"] = d.Progress
	}
	if d.Timestamp != nil {
		ext["timestamp"] = d.Timestamp
	}
	if d.Agent != nil {
		ext["agent"] = *d.Agent
	}
	if d.IsFinal != nil {
		ext["is_final"] = *d.IsFinal
	}
	if env.Metadata.CreditsUsed != nil {
		ext["credits_used"] = env.Metadata.CreditsUsed
	}
	return ext
}

func runInput(d gateway.TaskData) map[string]any {
	input := map[string]any{}
	if d.HasInput {
		input["text"] = d.Input
	}
	for k, v := range d.Extra {
		if _, exists := input[k]; !exists {
			input[k] = v
		}
	}
	if len(input) == 0 {
		return nil
	}
	return input
}
