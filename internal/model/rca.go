package model

import "time"

// Category is the deterministic failure classification assigned by the
// strategy library.
type Category string

const (
	CategoryToolSchemaMismatch Category = "tool_schema_mismatch"
	CategoryRateLimited        Category = "rate_limited"
	CategoryToolPermission     Category = "tool_permission"
	CategoryTimeout            Category = "timeout"
	CategoryPlannerLoop        Category = "planner_loop"
	CategoryRetrievalEmpty     Category = "retrieval_empty"
	CategoryPromptRegression   Category = "prompt_regression"
	CategoryUnknown            Category = "unknown"
)

type ActionItemType string

const (
	ActionCodeChange   ActionItemType = "code_change"
	ActionRunbook      ActionItemType = "runbook"
	ActionChangeConfig ActionItemType = "change_config"
	ActionRollback     ActionItemType = "rollback"
	ActionMonitoring   ActionItemType = "monitoring"
	ActionTest         ActionItemType = "test"
)

type ActionItemPriority string

const (
	PriorityCritical ActionItemPriority = "critical"
	PriorityHigh     ActionItemPriority = "high"
	PriorityMedium   ActionItemPriority = "medium"
	PriorityLow      ActionItemPriority = "low"
)

type EvidenceKind string

const (
	EvidenceKindStep      EvidenceKind = "step"
	EvidenceKindToolCall  EvidenceKind = "tool_call"
	EvidenceKindGuardrail EvidenceKind = "guardrail"
)

// EvidenceRef points from a hypothesis back to the raw telemetry record
// that supports it.
type EvidenceRef struct {
	EvidenceID string         `json:"evidence_id"`
	Kind       EvidenceKind   `json:"kind"`
	RefID      string         `json:"ref_id"`
	Title      string         `json:"title"`
	Snippet    string         `json:"snippet"`
	Attributes map[string]any `json:"attributes"`
}

// Confidence is a hypothesis's self-reported certainty, not a numeric
// score — kept low-cardinality so report UIs can color-code it directly.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Hypothesis is one candidate explanation for a run's failure. Its
// EvidenceIDs cite entries of the report's evidence index and are empty
// when that index is empty.
type Hypothesis struct {
	HypothesisID      string     `json:"hypothesis_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	EvidenceIDs       []string   `json:"evidence_ids"`
	Confidence        Confidence `json:"confidence"`
	VerificationSteps []string   `json:"verification_steps"`
	Mitigation        *string    `json:"mitigation,omitempty"`
}

// ActionItem is a concrete remediation suggested by the narrative engine.
type ActionItem struct {
	ActionID    string             `json:"action_id"`
	Type        ActionItemType     `json:"type"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Owner       *string            `json:"owner,omitempty"`
	Priority    ActionItemPriority `json:"priority"`
	DueInDays   *int               `json:"due_in_days,omitempty"`
}

// MetricsSnapshot is the computed numeric summary attached to a report.
type MetricsSnapshot struct {
	TopFailingTool  *string  `json:"top_failing_tool,omitempty"`
	MaxStepLatencyMs int     `json:"max_step_latency_ms"`
	TotalRetries     int     `json:"total_retries"`
	TotalCostUSD     *float64 `json:"total_cost_usd,omitempty"`
}

// JiraFields are the generated fields for a one-click ticket filing
// integration. Filing the ticket itself is out of scope here.
type JiraFields struct {
	JiraSummary        string `json:"jira_summary"`
	JiraDescriptionMd  string `json:"jira_description_md"`
}

// Report is the final analysis artifact produced by one RCA run.
type Report struct {
	ReportID            string          `json:"report_id"`
	RCARunID            string          `json:"rca_run_id"`
	RunID               string          `json:"run_id"`
	GeneratedAt         time.Time       `json:"generated_at"`
	Category            Category        `json:"category"`
	InsufficientEvidence bool           `json:"insufficient_evidence"`
	InsufficientReason  *string         `json:"insufficient_reason,omitempty"`
	EvidenceIndex       []EvidenceRef   `json:"evidence_index"`
	Hypotheses          []Hypothesis    `json:"hypotheses"`
	ActionItems         []ActionItem    `json:"action_items"`
	MetricsSnapshot     MetricsSnapshot `json:"metrics_snapshot"`
	JiraFields          *JiraFields     `json:"jira_fields,omitempty"`
}

// RunStatus is the lifecycle state of an RCA run.
type RunStatus string

const (
	RunStatusQueued  RunStatus = "queued"
	RunStatusRunning RunStatus = "running"
	RunStatusDone    RunStatus = "done"
	RunStatusError   RunStatus = "error"
)

// IsTerminal reports whether a run in this status will never transition
// again — used by the orchestrator's idempotency short-circuit.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusDone || s == RunStatusError
}

// Run is the persisted RCA run row, covering its lifecycle and, once
// complete, its generated report.
type Run struct {
	RCARunID     string     `db:"rca_run_id" json:"rca_run_id"`
	RunID        string     `db:"run_id" json:"run_id"`
	Status       RunStatus  `db:"status" json:"status"`
	Step         string     `db:"step" json:"step"`
	Pct          int        `db:"pct" json:"pct"`
	Message      string     `db:"message" json:"message"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	StartedAt    *time.Time `db:"started_at" json:"started_at,omitempty"`
	EndedAt      *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	Report       *Report    `db:"-" json:"report,omitempty"`
}

// ProgressEvent is the payload published over the progress channel and
// relayed to SSE subscribers.
type ProgressEvent struct {
	Status    RunStatus `json:"status"`
	Step      string    `json:"step"`
	Pct       int       `json:"pct"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}
