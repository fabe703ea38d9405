// Package orchestrator runs the synchronous pipeline that turns a
// queued RCA run into a finished report: collect evidence, classify
// the failure, generate a narrative, compile metrics and persist the
// result, publishing progress at every stage.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/agentops-sre/rca-engine/internal/evidence"
	"github.com/agentops-sre/rca-engine/internal/model"
	"github.com/agentops-sre/rca-engine/internal/narrative"
	"github.com/agentops-sre/rca-engine/internal/progress"
	"github.com/agentops-sre/rca-engine/internal/store"
	"github.com/agentops-sre/rca-engine/internal/strategy"
)

// Orchestrator drives one RCA run from "queued" to "done" or "error".
type Orchestrator struct {
	agentRuns *store.AgentRunRepository
	rcaRuns   *store.RCARepository
	progress  *progress.Publisher
	narrative *narrative.Engine
	log       logr.Logger
}

func New(agentRuns *store.AgentRunRepository, rcaRuns *store.RCARepository, pub *progress.Publisher, eng *narrative.Engine, log logr.Logger) *Orchestrator {
	return &Orchestrator{agentRuns: agentRuns, rcaRuns: rcaRuns, progress: pub, narrative: eng, log: log}
}

// Run executes the full analysis for rcaRunID. It never returns an
// error to the caller: any failure is captured as the run's terminal
// "error" status so a worker can Ack the job and move on.
func (o *Orchestrator) Run(ctx context.Context, rcaRunID string) {
	log := o.log.WithValues("rca_run_id", rcaRunID)

	rcaRun, err := o.rcaRuns.GetRCARun(ctx, rcaRunID)
	if err != nil {
		log.Error(err, "failed to load rca run")
		return
	}
	if rcaRun == nil {
		log.Info("rca run not found, skipping")
		return
	}
	if rcaRun.Status.IsTerminal() {
		log.Info("rca run already terminal, skipping", "status", rcaRun.Status)
		return
	}

	runID := rcaRun.RunID

	if err := o.updateProgress(ctx, rcaRunID, model.RunStatusRunning, "starting", 5, "Starting RCA analysis"); err != nil {
		log.Error(err, "failed to record starting status")
	}

	full, err := o.agentRuns.GetAgentRunFull(ctx, runID)
	if err != nil || full == nil {
		o.fail(ctx, rcaRunID, log, "agent run not found or failed to load")
		return
	}

	if err := o.updateProgress(ctx, rcaRunID, model.RunStatusRunning, "collecting_evidence", 30, "Collecting evidence"); err != nil {
		log.Error(err, "failed to record progress")
	}
	evidenceIndex := evidence.Collect(full)

	if err := o.updateProgress(ctx, rcaRunID, model.RunStatusRunning, "classifying_failure", 55, "Classifying failure"); err != nil {
		log.Error(err, "failed to record progress")
	}
	category := strategy.ClassifyCategory(full.Run.ErrorType, full.Run.ErrorMessage, full.ToolCalls, full.Steps, full.Guardrails)

	insufficient := evidence.IsInsufficient(full.Run, full, evidenceIndex)

	if err := o.updateProgress(ctx, rcaRunID, model.RunStatusRunning, "generating_report", 85, "Generating report"); err != nil {
		log.Error(err, "failed to record progress")
	}
	hypotheses, actionItems := o.narrative.GenerateHypothesesAndActions(ctx, category, evidenceIndex, insufficient)
	metrics := narrative.CompileMetrics(full.Steps, full.ToolCalls, full.Run.TotalCostUSD)
	jiraFields := narrative.GenerateJiraFields(runID, category, hypotheses, actionItems, insufficient)

	var insufficientReason *string
	if insufficient {
		reason := evidence.InsufficientReason
		insufficientReason = &reason
	}

	report := model.Report{
		ReportID:             uuid.NewString(),
		RCARunID:             rcaRunID,
		RunID:                runID,
		GeneratedAt:          time.Now().UTC(),
		Category:             category,
		InsufficientEvidence: insufficient,
		InsufficientReason:   insufficientReason,
		EvidenceIndex:        evidenceIndex,
		Hypotheses:           hypotheses,
		ActionItems:          actionItems,
		MetricsSnapshot:      metrics,
		JiraFields:           &jiraFields,
	}

	if err := o.rcaRuns.SaveRCAReport(ctx, report); err != nil {
		o.fail(ctx, rcaRunID, log, "failed to save rca report: "+err.Error())
		return
	}

	if err := o.updateProgress(ctx, rcaRunID, model.RunStatusDone, "completed", 100, "RCA analysis completed"); err != nil {
		log.Error(err, "failed to record completion")
	}
	if err := o.rcaRuns.UpdateRCARunStatus(ctx, rcaRunID, model.RunStatusDone, "completed", 100, "RCA analysis completed", nil); err != nil {
		log.Error(err, "failed to persist done status")
	}

	log.Info("rca analysis completed", "category", category, "insufficient_evidence", insufficient)
}

func (o *Orchestrator) fail(ctx context.Context, rcaRunID string, log logr.Logger, reason string) {
	log.Error(errors.New(reason), "rca analysis failed")
	if err := o.updateProgress(ctx, rcaRunID, model.RunStatusError, "failed", 0, "Error: "+reason); err != nil {
		log.Error(err, "failed to record error progress")
	}
	if err := o.rcaRuns.UpdateRCARunStatus(ctx, rcaRunID, model.RunStatusError, "failed", 0, "RCA failed", &reason); err != nil {
		log.Error(err, "failed to persist error status")
	}
}

// updateProgress persists the RCArun row first since it is the
// authoritative sink; the broker publish is best-effort and its failure
// must never skip the DB write. Returns the DB error if any, since a
// publish failure is merely logged by the caller.
func (o *Orchestrator) updateProgress(ctx context.Context, rcaRunID string, status model.RunStatus, step string, pct int, message string) error {
	dbErr := o.rcaRuns.UpdateRCARunStatus(ctx, rcaRunID, status, step, pct, message, nil)
	if pubErr := o.progress.Publish(ctx, rcaRunID, status, step, pct, message); pubErr != nil {
		o.log.Error(pubErr, "failed to publish progress event", "rca_run_id", rcaRunID)
	}
	return dbErr
}
