// Package model defines the domain types shared across the ingest,
// store, strategy, narrative and orchestrator packages.
package model

import "time"

// CostSummary tracks token usage and, if known, a dollar cost for a run.
type CostSummary struct {
	TokensPrompt     int      `json:"tokens_prompt" db:"tokens_prompt"`
	TokensCompletion int      `json:"tokens_completion" db:"tokens_completion"`
	TotalCostUSD     *float64 `json:"total_cost_usd,omitempty" db:"total_cost_usd"`
}

// AgentStep is one step of an agent's execution trace.
type AgentStep struct {
	StepID        string    `json:"step_id" db:"step_id"`
	RunID         string    `json:"-" db:"run_id"`
	Name          string    `json:"name" db:"name" validate:"required"`
	Status        string    `json:"status" db:"status" validate:"required"`
	StartedAt     time.Time `json:"started_at" db:"started_at" validate:"required"`
	EndedAt       time.Time `json:"ended_at" db:"ended_at" validate:"required"`
	InputSummary  string    `json:"input_summary" db:"input_summary" validate:"max=2000"`
	OutputSummary string    `json:"output_summary" db:"output_summary" validate:"max=2000"`
	Retries       int       `json:"retries" db:"retries"`
	LatencyMs     int       `json:"latency_ms" db:"latency_ms"`
}

// ComputeLatency fills LatencyMs from the step's timestamps when the
// caller did not supply one directly.
func (s *AgentStep) ComputeLatency() {
	if s.LatencyMs > 0 {
		return
	}
	if !s.StartedAt.IsZero() && !s.EndedAt.IsZero() {
		s.LatencyMs = int(s.EndedAt.Sub(s.StartedAt).Milliseconds())
	}
}

// ToolCall is one invocation of a tool by an agent step.
type ToolCall struct {
	CallID        string         `json:"call_id" db:"call_id"`
	RunID         string         `json:"-" db:"run_id"`
	StepID        string         `json:"step_id" db:"step_id" validate:"required"`
	ToolName      string         `json:"tool_name" db:"tool_name" validate:"required"`
	Status        string         `json:"status" db:"status" validate:"required"`
	ArgsJSON      map[string]any `json:"args_json" db:"args_json"`
	ArgsHash      string         `json:"args_hash" db:"args_hash"`
	ResultSummary string         `json:"result_summary" db:"result_summary" validate:"max=2000"`
	ErrorClass    *string        `json:"error_class,omitempty" db:"error_class"`
	ErrorMessage  *string        `json:"error_message,omitempty" db:"error_message"`
	StatusCode    *int           `json:"status_code,omitempty" db:"status_code"`
	Retries       int            `json:"retries" db:"retries"`
	LatencyMs     int            `json:"latency_ms" db:"latency_ms"`
}

// GuardrailEventType enumerates the kinds of guardrail interventions
// recorded against a run.
type GuardrailEventType string

const (
	GuardrailPIIRedaction      GuardrailEventType = "pii_redaction"
	GuardrailPolicyBlock       GuardrailEventType = "policy_block"
	GuardrailSchemaValidation  GuardrailEventType = "schema_validation"
	GuardrailOther             GuardrailEventType = "other"
)

// GuardrailEvent is a single guardrail intervention during a run.
type GuardrailEvent struct {
	EventID   string             `json:"event_id" db:"event_id"`
	RunID     string             `json:"-" db:"run_id"`
	Type      GuardrailEventType `json:"type" db:"type" validate:"required"`
	Message   string             `json:"message" db:"message" validate:"required"`
	StepID    *string            `json:"step_id,omitempty" db:"step_id"`
	CallID    *string            `json:"call_id,omitempty" db:"call_id"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
}

// AgentRunStatus is the terminal outcome reported by the agent itself.
type AgentRunStatus string

const (
	AgentRunSuccess AgentRunStatus = "success"
	AgentRunFailure AgentRunStatus = "failure"
)

// AgentRunPayload is the full ingest payload for one agent execution,
// including its steps, tool calls and guardrail events.
type AgentRunPayload struct {
	RunID           string             `json:"run_id"`
	AgentName       string             `json:"agent_name" validate:"required"`
	AgentVersion    string             `json:"agent_version" validate:"required"`
	Model           string             `json:"model" validate:"required"`
	Environment     string             `json:"environment" validate:"required,oneof=prod staging dev"`
	StartedAt       time.Time          `json:"started_at" validate:"required"`
	EndedAt         time.Time          `json:"ended_at" validate:"required"`
	Status          AgentRunStatus     `json:"status" validate:"required,oneof=success failure"`
	ErrorType       *string            `json:"error_type,omitempty"`
	ErrorMessage    *string            `json:"error_message,omitempty"`
	TraceID         *string            `json:"trace_id,omitempty"`
	CorrelationIDs  []string           `json:"correlation_ids"`
	Steps           []AgentStep        `json:"steps" validate:"dive"`
	ToolCalls       []ToolCall         `json:"tool_calls" validate:"dive"`
	GuardrailEvents []GuardrailEvent   `json:"guardrail_events" validate:"dive"`
	Cost            CostSummary        `json:"cost"`
}

// AgentRun is the persisted row for an ingested run, without its child
// collections.
type AgentRun struct {
	RunID          string         `db:"run_id"`
	AgentName      string         `db:"agent_name"`
	AgentVersion   string         `db:"agent_version"`
	Model          string         `db:"model"`
	Environment    string         `db:"environment"`
	StartedAt      time.Time      `db:"started_at"`
	EndedAt        time.Time      `db:"ended_at"`
	Status         AgentRunStatus `db:"status"`
	ErrorType      *string        `db:"error_type"`
	ErrorMessage   *string        `db:"error_message"`
	TraceID        *string        `db:"trace_id"`
	CorrelationIDs []string       `db:"correlation_ids"`
	TokensPrompt     int      `db:"tokens_prompt"`
	TokensCompletion int      `db:"tokens_completion"`
	TotalCostUSD     *float64 `db:"total_cost_usd"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// AgentRunSummary is the list/detail response shape returned by the HTTP
// API, carrying counts instead of full child collections.
type AgentRunSummary struct {
	RunID               string         `json:"run_id"`
	AgentName           string         `json:"agent_name"`
	Status              AgentRunStatus `json:"status"`
	StartedAt           time.Time      `json:"started_at"`
	EndedAt             time.Time      `json:"ended_at"`
	StepCount           int            `json:"step_count"`
	ToolCallCount       int            `json:"tool_call_count"`
	GuardrailEventCount int            `json:"guardrail_event_count"`
}

// TimelineEventType enumerates the kinds of event that appear in a run's
// merged timeline view.
type TimelineEventType string

const (
	TimelineStep      TimelineEventType = "step"
	TimelineToolCall  TimelineEventType = "tool_call"
	TimelineGuardrail TimelineEventType = "guardrail"
)

// TimelineEvent is one entry in a run's chronologically merged timeline.
type TimelineEvent struct {
	EventID   string            `json:"event_id"`
	EventType TimelineEventType `json:"event_type"`
	Timestamp time.Time         `json:"timestamp"`
	Name      string            `json:"name"`
	Status    string            `json:"status"`
	Details   map[string]any    `json:"details"`
}
