package a2a

import (
	"context"

	"supplygraph-a2a/pkg/gateway"
	"supplygraph-a2a/pkg/sse"
)

// Agent ids served by the public gateway.
const (
	AgentTariffCalc               = "tariff_calc"
	AgentCustomsClassification    = "customs_classification"
	AgentCorporateExceptionReport = "corporate_exception_report"
	AgentSupplyGraphVisualization = "sg_visualization"
	AgentChokepointAnalysis       = "sg_chokepoint"
	AgentSupplierDueDiligence     = "due_diligence_report"
)

// KnownAgents lists the public agent ids.
var KnownAgents = []string{
	AgentTariffCalc,
	AgentCustomsClassification,
	AgentCorporateExceptionReport,
	AgentSupplyGraphVisualization,
	AgentChokepointAnalysis,
	AgentSupplierDueDiligence,
}

// Agent binds a Client to one agent id and keeps its manifest.
type Agent struct {
	client   *Client
	id       string
	manifest gateway.Manifest
}

// NewAgent loads the manifest of agentID and returns the bound agent.
func NewAgent(ctx context.Context, client *Client, agentID string) (*Agent, error) {
	manifest, err := client.Manifest(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return &Agent{client: client, id: agentID, manifest: manifest}, nil
}

// ID returns the agent id.
func (a *Agent) ID() string { return a.id }

// Manifest returns the manifest loaded by NewAgent.
func (a *Agent) Manifest() gateway.Manifest { return a.manifest }

// Run starts a task, or continues the task named by opts.TaskID.
func (a *Agent) Run(ctx context.Context, text string, opts RunOptions) (gateway.Envelope, error) {
	return a.client.Run(ctx, a.id, text, opts)
}

// RunStream starts a streaming task.
func (a *Agent) RunStream(ctx context.Context, text string, opts RunOptions) (*sse.Decoder, error) {
	return a.client.RunStream(ctx, a.id, text, opts)
}

// Status polls a task.
func (a *Agent) Status(ctx context.Context, taskID string) (gateway.Envelope, error) {
	return a.client.Status(ctx, a.id, taskID, nil)
}

// Results fetches the final output of a task.
func (a *Agent) Results(ctx context.Context, taskID string) (gateway.Envelope, error) {
	return a.client.Results(ctx, a.id, taskID, nil)
}

// ExtractTaskID returns data.task_id of a response.
func ExtractTaskID(env gateway.Envelope) string {
	return env.Data.TaskID
}

// NeedsUserInput reports whether the task waits for more input.
func NeedsUserInput(env gateway.Envelope) bool {
	return env.Code == gateway.CodeWaitingUser
}

// IsFinished reports whether the task completed.
func IsFinished(env gateway.Envelope) bool {
	return env.Code == gateway.CodeTaskCompleted
}

// IsFailed reports whether the task failed.
func IsFailed(env gateway.Envelope) bool {
	return env.Code == gateway.CodeTaskFailed
}
