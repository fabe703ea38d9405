package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/agentops-sre/rca-engine/internal/model"
)

func newMockAgentRunRepo(t *testing.T) (*AgentRunRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return NewAgentRunRepository(sqlxDB), mock
}

func samplePayload() model.AgentRunPayload {
	now := time.Now().UTC()
	return model.AgentRunPayload{
		RunID:        "run-1",
		AgentName:    "triage-bot",
		AgentVersion: "1.4.0",
		Model:        "claude-3-5-sonnet",
		Environment:  "prod",
		StartedAt:    now.Add(-time.Minute),
		EndedAt:      now,
		Status:       model.AgentRunFailure,
		Steps: []model.AgentStep{
			{StepID: "step-1", Name: "plan", Status: "success", StartedAt: now.Add(-time.Minute), EndedAt: now.Add(-50 * time.Second)},
		},
		ToolCalls: []model.ToolCall{
			{CallID: "call-1", StepID: "step-1", ToolName: "search_docs", Status: "failure", ArgsJSON: map[string]any{"q": "timeout"}},
		},
		GuardrailEvents: []model.GuardrailEvent{
			{EventID: "evt-1", Type: model.GuardrailSchemaValidation, Message: "bad args"},
		},
		Cost: model.CostSummary{TokensPrompt: 100, TokensCompletion: 50},
	}
}

func TestUpsertAgentRun_CommitsOnSuccess(t *testing.T) {
	repo, mock := newMockAgentRunRepo(t)
	payload := samplePayload()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO agent_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM agent_steps").WithArgs(payload.RunID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM tool_calls").WithArgs(payload.RunID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM guardrail_events").WithArgs(payload.RunID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO agent_steps").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO tool_calls").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO guardrail_events").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	runID, err := repo.UpsertAgentRun(context.Background(), payload)
	if err != nil {
		t.Fatalf("UpsertAgentRun() error: %v", err)
	}
	if runID != payload.RunID {
		t.Errorf("runID = %s, want %s", runID, payload.RunID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpsertAgentRun_RollsBackOnStepInsertFailure(t *testing.T) {
	repo, mock := newMockAgentRunRepo(t)
	payload := samplePayload()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO agent_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM agent_steps").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM tool_calls").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM guardrail_events").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO agent_steps").WillReturnError(errDBDown)
	mock.ExpectRollback()

	_, err := repo.UpsertAgentRun(context.Background(), payload)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetAgentRun_NotFound(t *testing.T) {
	repo, mock := newMockAgentRunRepo(t)
	mock.ExpectQuery("SELECT run_id, agent_name").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"run_id", "agent_name", "agent_version", "model", "environment", "started_at", "ended_at",
			"status", "error_type", "error_message", "trace_id", "correlation_ids",
			"tokens_prompt", "tokens_completion", "total_cost_usd", "created_at", "updated_at",
		}))

	run, err := repo.GetAgentRun(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetAgentRun() error: %v", err)
	}
	if run != nil {
		t.Errorf("expected nil run, got %+v", run)
	}
}

func TestGetAgentRun_Found(t *testing.T) {
	repo, mock := newMockAgentRunRepo(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"run_id", "agent_name", "agent_version", "model", "environment", "started_at", "ended_at",
		"status", "error_type", "error_message", "trace_id", "correlation_ids",
		"tokens_prompt", "tokens_completion", "total_cost_usd", "created_at", "updated_at",
	}).AddRow("run-1", "triage-bot", "1.4.0", "claude-3-5-sonnet", "prod", now, now,
		"failure", nil, nil, nil, "{}", 100, 50, nil, now, now)

	mock.ExpectQuery("SELECT run_id, agent_name").WithArgs("run-1").WillReturnRows(rows)

	run, err := repo.GetAgentRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetAgentRun() error: %v", err)
	}
	if run == nil || run.RunID != "run-1" || run.Status != model.AgentRunFailure {
		t.Errorf("unexpected run: %+v", run)
	}
}

func TestGetTimeline_MergesAndSorts(t *testing.T) {
	repo, mock := newMockAgentRunRepo(t)
	now := time.Now().UTC()

	runRows := sqlmock.NewRows([]string{
		"run_id", "agent_name", "agent_version", "model", "environment", "started_at", "ended_at",
		"status", "error_type", "error_message", "trace_id", "correlation_ids",
		"tokens_prompt", "tokens_completion", "total_cost_usd", "created_at", "updated_at",
	}).AddRow("run-1", "triage-bot", "1.4.0", "claude-3-5-sonnet", "prod", now, now,
		"failure", nil, nil, nil, "{}", 100, 50, nil, now, now)
	mock.ExpectQuery("SELECT run_id, agent_name").WithArgs("run-1").WillReturnRows(runRows)

	stepRows := sqlmock.NewRows([]string{
		"step_id", "run_id", "name", "status", "started_at", "ended_at", "input_summary", "output_summary", "retries", "latency_ms",
	}).AddRow("step-1", "run-1", "plan", "success", now.Add(-time.Minute), now.Add(-50*time.Second), "", "", 0, 10000)
	mock.ExpectQuery("SELECT step_id, run_id, name").WithArgs("run-1").WillReturnRows(stepRows)

	toolRows := sqlmock.NewRows([]string{
		"call_id", "run_id", "step_id", "tool_name", "status", "args_json", "args_hash",
		"result_summary", "error_class", "error_message", "status_code", "retries", "latency_ms",
	}).AddRow("call-1", "run-1", "step-1", "search_docs", "failure", []byte(`{}`), "", "", nil, nil, nil, 0, 500)
	mock.ExpectQuery("SELECT call_id, run_id, step_id").WithArgs("run-1").WillReturnRows(toolRows)

	guardrailRows := sqlmock.NewRows([]string{
		"event_id", "run_id", "type", "message", "step_id", "call_id", "created_at",
	}).AddRow("evt-1", "run-1", "schema_validation", "bad args", nil, nil, now)
	mock.ExpectQuery("SELECT event_id, run_id, type").WithArgs("run-1").WillReturnRows(guardrailRows)

	timeline, err := repo.GetTimeline(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetTimeline() error: %v", err)
	}
	if len(timeline) != 3 {
		t.Fatalf("len(timeline) = %d, want 3", len(timeline))
	}
	for i := 1; i < len(timeline); i++ {
		if timeline[i].Timestamp.Before(timeline[i-1].Timestamp) {
			t.Errorf("timeline not sorted at index %d", i)
		}
	}
}

func TestGetMetricsOverview_ComputesSuccessRateAndP95(t *testing.T) {
	repo, mock := newMockAgentRunRepo(t)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM agent_runs WHERE created_at >= \\$1$").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM agent_runs WHERE created_at >= \\$1 AND status").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(8))
	mock.ExpectQuery("SELECT tc.tool_name, count").
		WillReturnRows(sqlmock.NewRows([]string{"tool_name", "cnt"}).AddRow("search_docs", 3))
	mock.ExpectQuery("SELECT s.latency_ms").
		WillReturnRows(sqlmock.NewRows([]string{"latency_ms"}).AddRow(100).AddRow(200).AddRow(300).AddRow(400).AddRow(1000))
	mock.ExpectQuery("SELECT sum\\(total_cost_usd\\)").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(12.5))

	overview, err := repo.GetMetricsOverview(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("GetMetricsOverview() error: %v", err)
	}
	if overview.TotalRuns != 10 {
		t.Errorf("TotalRuns = %d, want 10", overview.TotalRuns)
	}
	if overview.SuccessRate != 80.0 {
		t.Errorf("SuccessRate = %v, want 80.0", overview.SuccessRate)
	}
	if len(overview.TopFailingTools) != 1 || overview.TopFailingTools[0].Tool != "search_docs" {
		t.Errorf("TopFailingTools = %+v", overview.TopFailingTools)
	}
	if overview.P95StepLatencyMs != 1000 {
		t.Errorf("P95StepLatencyMs = %d, want 1000", overview.P95StepLatencyMs)
	}
}

var errDBDown = &mockDBError{"connection reset"}

type mockDBError struct{ msg string }

func (e *mockDBError) Error() string { return e.msg }
