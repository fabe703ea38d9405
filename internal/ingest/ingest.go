// Package ingest orchestrates agent-run telemetry ingestion and
// idempotent RCA job creation, the write path fronted by the HTTP API.
package ingest

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/agentops-sre/rca-engine/internal/model"
	"github.com/agentops-sre/rca-engine/internal/store"
	"github.com/agentops-sre/rca-engine/internal/validation"
	"github.com/agentops-sre/rca-engine/pkg/apperror"
)

const idempotencyWindow = 10 * time.Minute

// Enqueuer hands an RCA run ID to the job queue for asynchronous
// processing. Implemented by internal/jobqueue.
type Enqueuer interface {
	Enqueue(ctx context.Context, rcaRunID string) error
}

// Service is the write path for agent-run ingestion and RCA job
// creation.
type Service struct {
	agentRuns *store.AgentRunRepository
	rcaRuns   *store.RCARepository
	queue     Enqueuer
	log       logr.Logger
}

func NewService(agentRuns *store.AgentRunRepository, rcaRuns *store.RCARepository, queue Enqueuer, log logr.Logger) *Service {
	return &Service{agentRuns: agentRuns, rcaRuns: rcaRuns, queue: queue, log: log}
}

// IngestAgentRun validates and persists one agent run payload,
// replacing any prior version of the same run_id.
func (s *Service) IngestAgentRun(ctx context.Context, payload model.AgentRunPayload) (string, error) {
	if err := validation.Struct(payload); err != nil {
		return "", err
	}

	runID, err := s.agentRuns.UpsertAgentRun(ctx, payload)
	if err != nil {
		return "", apperror.Wrap(err, apperror.TypeDatabase, "failed to persist agent run")
	}
	s.log.Info("ingested agent run", "run_id", runID, "status", payload.Status)
	return runID, nil
}

// CreateRCARun enqueues an RCA job for runID, short-circuiting to an
// already-queued or in-flight run created within the idempotency
// window instead of enqueuing a duplicate.
func (s *Service) CreateRCARun(ctx context.Context, runID string) (rcaRunID string, created bool, err error) {
	agentRun, err := s.agentRuns.GetAgentRun(ctx, runID)
	if err != nil {
		return "", false, apperror.Wrap(err, apperror.TypeDatabase, "failed to look up agent run")
	}
	if agentRun == nil {
		return "", false, apperror.NewNotFoundError("agent run")
	}

	existing, err := s.rcaRuns.FindRecentRCARun(ctx, runID, idempotencyWindow)
	if err != nil {
		return "", false, apperror.Wrap(err, apperror.TypeDatabase, "failed to check for an existing rca run")
	}
	if existing != nil {
		s.log.Info("reusing existing rca run", "rca_run_id", existing.RCARunID, "run_id", runID)
		return existing.RCARunID, false, nil
	}

	newID := uuid.NewString()
	if _, err := s.rcaRuns.CreateRCARun(ctx, newID, runID); err != nil {
		return "", false, apperror.Wrap(err, apperror.TypeDatabase, "failed to create rca run")
	}

	if err := s.queue.Enqueue(ctx, newID); err != nil {
		return "", false, apperror.Wrap(err, apperror.TypeNetwork, "failed to enqueue rca job").WithDetails(newID)
	}

	s.log.Info("created rca run", "rca_run_id", newID, "run_id", runID)
	return newID, true, nil
}
