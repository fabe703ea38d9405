package store

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/agentops-sre/rca-engine/internal/model"
	"github.com/agentops-sre/rca-engine/pkg/opfail"
)

// AgentRunRepository persists agent runs and their child telemetry
// records: steps, tool calls and guardrail events.
type AgentRunRepository struct {
	db *sqlx.DB
}

func NewAgentRunRepository(db *sqlx.DB) *AgentRunRepository {
	return &AgentRunRepository{db: db}
}

// UpsertAgentRun replaces the run row and all of its children in a
// single transaction: existing steps, tool calls and guardrail events
// are deleted first, then the full payload is re-inserted. Steps and
// tool calls are inserted before guardrail events, so a guardrail's
// step_id or call_id names a row already written in this transaction;
// the schema does not declare those columns as foreign keys.
func (r *AgentRunRepository) UpsertAgentRun(ctx context.Context, payload model.AgentRunPayload) (string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", opfail.DatabaseError("begin upsert transaction", err)
	}
	defer tx.Rollback()

	runID := payload.RunID

	_, err = tx.ExecContext(ctx, `
		INSERT INTO agent_runs (
			run_id, agent_name, agent_version, model, environment,
			started_at, ended_at, status, error_type, error_message,
			trace_id, correlation_ids, tokens_prompt, tokens_completion,
			total_cost_usd, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15, now())
		ON CONFLICT (run_id) DO UPDATE SET
			agent_name = EXCLUDED.agent_name,
			agent_version = EXCLUDED.agent_version,
			model = EXCLUDED.model,
			environment = EXCLUDED.environment,
			started_at = EXCLUDED.started_at,
			ended_at = EXCLUDED.ended_at,
			status = EXCLUDED.status,
			error_type = EXCLUDED.error_type,
			error_message = EXCLUDED.error_message,
			trace_id = EXCLUDED.trace_id,
			correlation_ids = EXCLUDED.correlation_ids,
			tokens_prompt = EXCLUDED.tokens_prompt,
			tokens_completion = EXCLUDED.tokens_completion,
			total_cost_usd = EXCLUDED.total_cost_usd,
			updated_at = now()
	`, runID, payload.AgentName, payload.AgentVersion, payload.Model, payload.Environment,
		payload.StartedAt, payload.EndedAt, payload.Status, payload.ErrorType, payload.ErrorMessage,
		payload.TraceID, pq.Array(payload.CorrelationIDs), payload.Cost.TokensPrompt, payload.Cost.TokensCompletion,
		payload.Cost.TotalCostUSD)
	if err != nil {
		return "", opfail.DatabaseError("upsert agent run", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM agent_steps WHERE run_id = $1`, runID); err != nil {
		return "", opfail.DatabaseError("delete existing agent steps", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tool_calls WHERE run_id = $1`, runID); err != nil {
		return "", opfail.DatabaseError("delete existing tool calls", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM guardrail_events WHERE run_id = $1`, runID); err != nil {
		return "", opfail.DatabaseError("delete existing guardrail events", err)
	}

	for _, step := range payload.Steps {
		step.ComputeLatency()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agent_steps (step_id, run_id, name, status, started_at, ended_at, input_summary, output_summary, retries, latency_ms)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, step.StepID, runID, step.Name, step.Status, step.StartedAt, step.EndedAt, step.InputSummary, step.OutputSummary, step.Retries, step.LatencyMs)
		if err != nil {
			return "", opfail.DatabaseError("insert agent step", err)
		}
	}

	for _, tc := range payload.ToolCalls {
		argsJSON, err := json.Marshal(tc.ArgsJSON)
		if err != nil {
			return "", opfail.ParseError("tool call args", "JSON", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tool_calls (call_id, run_id, step_id, tool_name, status, args_json, args_hash, result_summary, error_class, error_message, status_code, retries, latency_ms)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, tc.CallID, runID, tc.StepID, tc.ToolName, tc.Status, argsJSON, tc.ArgsHash, tc.ResultSummary, tc.ErrorClass, tc.ErrorMessage, tc.StatusCode, tc.Retries, tc.LatencyMs)
		if err != nil {
			return "", opfail.DatabaseError("insert tool call", err)
		}
	}

	// Steps and tool calls are flushed above; guardrail events, which may
	// reference either, are inserted last.
	for _, ge := range payload.GuardrailEvents {
		createdAt := ge.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO guardrail_events (event_id, run_id, type, message, step_id, call_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, ge.EventID, runID, ge.Type, ge.Message, ge.StepID, ge.CallID, createdAt)
		if err != nil {
			return "", opfail.DatabaseError("insert guardrail event", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", opfail.DatabaseError("commit upsert transaction", err)
	}
	return runID, nil
}

// GetAgentRun returns the run row, or nil if it doesn't exist.
func (r *AgentRunRepository) GetAgentRun(ctx context.Context, runID string) (*model.AgentRun, error) {
	var run model.AgentRun
	var correlationIDs pq.StringArray
	err := r.db.QueryRowxContext(ctx, `
		SELECT run_id, agent_name, agent_version, model, environment, started_at, ended_at,
		       status, error_type, error_message, trace_id, correlation_ids,
		       tokens_prompt, tokens_completion, total_cost_usd, created_at, updated_at
		FROM agent_runs WHERE run_id = $1
	`, runID).Scan(&run.RunID, &run.AgentName, &run.AgentVersion, &run.Model, &run.Environment,
		&run.StartedAt, &run.EndedAt, &run.Status, &run.ErrorType, &run.ErrorMessage, &run.TraceID,
		&correlationIDs, &run.TokensPrompt, &run.TokensCompletion, &run.TotalCostUSD, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, opfail.DatabaseError("get agent run", err)
	}
	run.CorrelationIDs = correlationIDs
	return &run, nil
}

// AgentRunFull bundles a run with its child collections.
type AgentRunFull struct {
	Run        model.AgentRun
	Steps      []model.AgentStep
	ToolCalls  []model.ToolCall
	Guardrails []model.GuardrailEvent
}

// GetAgentRunFull loads a run with its steps, tool calls and guardrail
// events. Returns nil if the run doesn't exist.
func (r *AgentRunRepository) GetAgentRunFull(ctx context.Context, runID string) (*AgentRunFull, error) {
	run, err := r.GetAgentRun(ctx, runID)
	if err != nil || run == nil {
		return nil, err
	}

	var steps []model.AgentStep
	if err := r.db.SelectContext(ctx, &steps, `
		SELECT step_id, run_id, name, status, started_at, ended_at, input_summary, output_summary, retries, latency_ms
		FROM agent_steps WHERE run_id = $1 ORDER BY started_at
	`, runID); err != nil {
		return nil, opfail.DatabaseError("list agent steps", err)
	}

	toolCalls, err := r.selectToolCalls(ctx, runID)
	if err != nil {
		return nil, err
	}

	var guardrails []model.GuardrailEvent
	if err := r.db.SelectContext(ctx, &guardrails, `
		SELECT event_id, run_id, type, message, step_id, call_id, created_at
		FROM guardrail_events WHERE run_id = $1 ORDER BY created_at
	`, runID); err != nil {
		return nil, opfail.DatabaseError("list guardrail events", err)
	}

	return &AgentRunFull{Run: *run, Steps: steps, ToolCalls: toolCalls, Guardrails: guardrails}, nil
}

func (r *AgentRunRepository) selectToolCalls(ctx context.Context, runID string) ([]model.ToolCall, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT call_id, run_id, step_id, tool_name, status, args_json, args_hash, result_summary,
		       error_class, error_message, status_code, retries, latency_ms
		FROM tool_calls WHERE run_id = $1
	`, runID)
	if err != nil {
		return nil, opfail.DatabaseError("list tool calls", err)
	}
	defer rows.Close()

	var out []model.ToolCall
	for rows.Next() {
		var tc model.ToolCall
		var argsJSON []byte
		if err := rows.Scan(&tc.CallID, &tc.RunID, &tc.StepID, &tc.ToolName, &tc.Status, &argsJSON,
			&tc.ArgsHash, &tc.ResultSummary, &tc.ErrorClass, &tc.ErrorMessage, &tc.StatusCode, &tc.Retries, &tc.LatencyMs); err != nil {
			return nil, opfail.DatabaseError("scan tool call", err)
		}
		if len(argsJSON) > 0 {
			_ = json.Unmarshal(argsJSON, &tc.ArgsJSON)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// GetTimeline merges steps, tool calls and guardrail events into a
// single chronologically sorted timeline.
func (r *AgentRunRepository) GetTimeline(ctx context.Context, runID string) ([]model.TimelineEvent, error) {
	full, err := r.GetAgentRunFull(ctx, runID)
	if err != nil || full == nil {
		return nil, err
	}

	stepStart := map[string]time.Time{}
	timeline := make([]model.TimelineEvent, 0, len(full.Steps)+len(full.ToolCalls)+len(full.Guardrails))

	for _, s := range full.Steps {
		stepStart[s.StepID] = s.StartedAt
		timeline = append(timeline, model.TimelineEvent{
			EventID:   s.StepID,
			EventType: model.TimelineStep,
			Timestamp: s.StartedAt,
			Name:      s.Name,
			Status:    s.Status,
			Details: map[string]any{
				"input_summary":  s.InputSummary,
				"output_summary": s.OutputSummary,
				"latency_ms":     s.LatencyMs,
				"retries":        s.Retries,
			},
		})
	}

	for _, tc := range full.ToolCalls {
		ts, ok := stepStart[tc.StepID]
		if !ok {
			ts = time.Now().UTC()
		}
		timeline = append(timeline, model.TimelineEvent{
			EventID:   tc.CallID,
			EventType: model.TimelineToolCall,
			Timestamp: ts,
			Name:      tc.ToolName,
			Status:    tc.Status,
			Details: map[string]any{
				"args_json":      tc.ArgsJSON,
				"result_summary": tc.ResultSummary,
				"error_class":    tc.ErrorClass,
				"error_message":  tc.ErrorMessage,
				"latency_ms":     tc.LatencyMs,
			},
		})
	}

	for _, ge := range full.Guardrails {
		timeline = append(timeline, model.TimelineEvent{
			EventID:   ge.EventID,
			EventType: model.TimelineGuardrail,
			Timestamp: ge.CreatedAt,
			Name:      string(ge.Type),
			Status:    "triggered",
			Details:   map[string]any{"message": ge.Message},
		})
	}

	sort.Slice(timeline, func(i, j int) bool {
		return timeline[i].Timestamp.Before(timeline[j].Timestamp)
	})
	return timeline, nil
}

// MetricsOverview is the aggregate summary returned by the metrics
// endpoint: run volume, success rate, top failing tools and latency.
type MetricsOverview struct {
	TotalRuns         int              `json:"total_runs"`
	SuccessRate       float64          `json:"success_rate"`
	TopFailingTools   []ToolFailCount  `json:"top_failing_tools"`
	P95StepLatencyMs  int              `json:"p95_step_latency_ms"`
	TotalCostUSD      *float64         `json:"total_cost_usd,omitempty"`
}

type ToolFailCount struct {
	Tool  string `json:"tool"`
	Count int    `json:"count"`
}

// GetMetricsOverview aggregates run volume, tool failures and latency
// over the trailing window.
func (r *AgentRunRepository) GetMetricsOverview(ctx context.Context, window time.Duration) (*MetricsOverview, error) {
	cutoff := time.Now().UTC().Add(-window)

	var totalRuns, successfulRuns int
	if err := r.db.GetContext(ctx, &totalRuns, `SELECT count(*) FROM agent_runs WHERE created_at >= $1`, cutoff); err != nil {
		return nil, opfail.DatabaseError("count total runs", err)
	}
	if err := r.db.GetContext(ctx, &successfulRuns, `SELECT count(*) FROM agent_runs WHERE created_at >= $1 AND status = 'success'`, cutoff); err != nil {
		return nil, opfail.DatabaseError("count successful runs", err)
	}

	successRate := 0.0
	if totalRuns > 0 {
		successRate = float64(successfulRuns) / float64(totalRuns) * 100
	}

	var topFailing []ToolFailCount
	rows, err := r.db.QueryxContext(ctx, `
		SELECT tc.tool_name, count(*) AS cnt
		FROM tool_calls tc
		JOIN agent_runs ar ON ar.run_id = tc.run_id
		WHERE ar.created_at >= $1 AND tc.status = 'failure'
		GROUP BY tc.tool_name
		ORDER BY cnt DESC
		LIMIT 5
	`, cutoff)
	if err != nil {
		return nil, opfail.DatabaseError("list top failing tools", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t ToolFailCount
		if err := rows.Scan(&t.Tool, &t.Count); err != nil {
			return nil, opfail.DatabaseError("scan top failing tool", err)
		}
		topFailing = append(topFailing, t)
	}
	if err := rows.Err(); err != nil {
		return nil, opfail.DatabaseError("iterate top failing tools", err)
	}

	var latencies []int
	if err := r.db.SelectContext(ctx, &latencies, `
		SELECT s.latency_ms
		FROM agent_steps s
		JOIN agent_runs ar ON ar.run_id = s.run_id
		WHERE ar.created_at >= $1
		ORDER BY s.latency_ms
	`, cutoff); err != nil {
		return nil, opfail.DatabaseError("list step latencies", err)
	}
	p95 := 0
	if len(latencies) > 0 {
		idx := int(float64(len(latencies)) * 0.95)
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		p95 = latencies[idx]
	}

	var totalCost *float64
	if err := r.db.GetContext(ctx, &totalCost, `
		SELECT sum(total_cost_usd) FROM agent_runs WHERE created_at >= $1 AND total_cost_usd IS NOT NULL
	`, cutoff); err != nil {
		return nil, opfail.DatabaseError("sum total cost", err)
	}

	return &MetricsOverview{
		TotalRuns:        totalRuns,
		SuccessRate:      round2(successRate),
		TopFailingTools:  topFailing,
		P95StepLatencyMs: p95,
		TotalCostUSD:     totalCost,
	}, nil
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
