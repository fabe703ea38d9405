package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/agentops-sre/rca-engine/internal/model"
	"github.com/agentops-sre/rca-engine/pkg/opfail"
)

// RCARepository persists RCA run lifecycle state and generated reports.
type RCARepository struct {
	db *sqlx.DB
}

func NewRCARepository(db *sqlx.DB) *RCARepository {
	return &RCARepository{db: db}
}

// CreateRCARun inserts a new run in the queued state.
func (r *RCARepository) CreateRCARun(ctx context.Context, rcaRunID, runID string) (*model.Run, error) {
	run := &model.Run{
		RCARunID: rcaRunID,
		RunID:    runID,
		Status:   model.RunStatusQueued,
		Message:  "RCA job queued",
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rca_runs (rca_run_id, run_id, status, step, pct, message, created_at)
		VALUES ($1,$2,'queued','',0,'RCA job queued', now())
	`, rcaRunID, runID)
	if err != nil {
		return nil, opfail.DatabaseError("create rca run", err)
	}
	run.CreatedAt = time.Now().UTC()
	return run, nil
}

// GetRCARun returns the run row, or nil if not found.
func (r *RCARepository) GetRCARun(ctx context.Context, rcaRunID string) (*model.Run, error) {
	var run model.Run
	err := r.db.QueryRowxContext(ctx, `
		SELECT rca_run_id, run_id, status, step, pct, message, created_at, started_at, ended_at, error_message
		FROM rca_runs WHERE rca_run_id = $1
	`, rcaRunID).Scan(&run.RCARunID, &run.RunID, &run.Status, &run.Step, &run.Pct, &run.Message,
		&run.CreatedAt, &run.StartedAt, &run.EndedAt, &run.ErrorMessage)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, opfail.DatabaseError("get rca run", err)
	}
	return &run, nil
}

// UpdateRCARunStatus updates lifecycle fields. It sets started_at the
// first time the run transitions to "running" and sets ended_at when it
// reaches a terminal status. A no-op if the run doesn't exist.
func (r *RCARepository) UpdateRCARunStatus(ctx context.Context, rcaRunID string, status model.RunStatus, step string, pct int, message string, errorMessage *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE rca_runs SET
			status = $2,
			step = $3,
			pct = $4,
			message = $5,
			started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN now() ELSE started_at END,
			ended_at = CASE WHEN $2 IN ('done', 'error') THEN now() ELSE ended_at END,
			error_message = COALESCE($6, error_message)
		WHERE rca_run_id = $1
	`, rcaRunID, status, step, pct, message, errorMessage)
	if err != nil {
		return opfail.DatabaseError("update rca run status", err)
	}
	return nil
}

// SaveRCAReport persists the generated report as JSON alongside its
// searchable category and insufficient-evidence flag.
func (r *RCARepository) SaveRCAReport(ctx context.Context, report model.Report) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return opfail.ParseError("rca report", "JSON", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO rca_reports (report_id, rca_run_id, run_id, generated_at, category, insufficient_evidence, report_json)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (rca_run_id) DO UPDATE SET
			report_json = EXCLUDED.report_json,
			category = EXCLUDED.category,
			insufficient_evidence = EXCLUDED.insufficient_evidence,
			generated_at = EXCLUDED.generated_at
	`, report.ReportID, report.RCARunID, report.RunID, report.GeneratedAt, report.Category, report.InsufficientEvidence, reportJSON)
	if err != nil {
		return opfail.DatabaseError("save rca report", err)
	}
	return nil
}

// GetRCAReport returns the report for a run, or nil if none exists yet.
func (r *RCARepository) GetRCAReport(ctx context.Context, rcaRunID string) (*model.Report, error) {
	var reportJSON []byte
	err := r.db.QueryRowxContext(ctx, `SELECT report_json FROM rca_reports WHERE rca_run_id = $1`, rcaRunID).Scan(&reportJSON)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, opfail.DatabaseError("get rca report", err)
	}
	var report model.Report
	if err := json.Unmarshal(reportJSON, &report); err != nil {
		return nil, opfail.ParseError("rca report", "JSON", err)
	}
	return &report, nil
}

// FindRecentRCARun looks for a queued or running RCA run against runID
// created within the trailing window, used by the ingest idempotency
// check so a repeat webhook doesn't enqueue a duplicate job.
func (r *RCARepository) FindRecentRCARun(ctx context.Context, runID string, window time.Duration) (*model.Run, error) {
	cutoff := time.Now().UTC().Add(-window)
	var run model.Run
	err := r.db.QueryRowxContext(ctx, `
		SELECT rca_run_id, run_id, status, step, pct, message, created_at, started_at, ended_at, error_message
		FROM rca_runs
		WHERE run_id = $1 AND status IN ('queued', 'running') AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT 1
	`, runID, cutoff).Scan(&run.RCARunID, &run.RunID, &run.Status, &run.Step, &run.Pct, &run.Message,
		&run.CreatedAt, &run.StartedAt, &run.EndedAt, &run.ErrorMessage)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, opfail.DatabaseError("find recent rca run", err)
	}
	return &run, nil
}

// FindStaleRunningRuns returns runs stuck in "running" past the given
// age, used by the worker's periodic sweep to surface jobs whose
// process died mid-pipeline.
func (r *RCARepository) FindStaleRunningRuns(ctx context.Context, olderThan time.Duration) ([]model.Run, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	var runs []model.Run
	rows, err := r.db.QueryxContext(ctx, `
		SELECT rca_run_id, run_id, status, step, pct, message, created_at, started_at, ended_at, error_message
		FROM rca_runs
		WHERE status = 'running' AND started_at IS NOT NULL AND started_at < $1
	`, cutoff)
	if err != nil {
		return nil, opfail.DatabaseError("list stale rca runs", err)
	}
	defer rows.Close()
	for rows.Next() {
		var run model.Run
		if err := rows.Scan(&run.RCARunID, &run.RunID, &run.Status, &run.Step, &run.Pct, &run.Message,
			&run.CreatedAt, &run.StartedAt, &run.EndedAt, &run.ErrorMessage); err != nil {
			return nil, opfail.DatabaseError("scan stale rca run", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
