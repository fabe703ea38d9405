package jobqueue

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"

	"github.com/agentops-sre/rca-engine/internal/store"
)

// Sweeper periodically requeues RCA runs stuck in "running" after a
// worker died mid-pipeline. Their status stays "running"; only the
// message is updated, and the run is pushed onto the queue again so a
// future Dequeue call picks it up.
type Sweeper struct {
	rcaRuns    *store.RCARepository
	queue      *Queue
	staleAfter time.Duration
	log        logr.Logger
}

func NewSweeper(rcaRuns *store.RCARepository, queue *Queue, staleAfter time.Duration, log logr.Logger) *Sweeper {
	return &Sweeper{rcaRuns: rcaRuns, queue: queue, staleAfter: staleAfter, log: log}
}

// Run executes one sweep pass: every stale run keeps its status, step
// and pct, gets the message "requeued after stall", and is re-enqueued.
func (s *Sweeper) Run(ctx context.Context) {
	stale, err := s.rcaRuns.FindStaleRunningRuns(ctx, s.staleAfter)
	if err != nil {
		s.log.Error(err, "failed to list stale rca runs")
		return
	}
	for _, run := range stale {
		if err := s.rcaRuns.UpdateRCARunStatus(ctx, run.RCARunID, run.Status, run.Step, run.Pct, "requeued after stall", nil); err != nil {
			s.log.Error(err, "failed to reset stale rca run", "rca_run_id", run.RCARunID)
			continue
		}
		if err := s.queue.Enqueue(ctx, run.RCARunID); err != nil {
			s.log.Error(err, "failed to requeue stale rca run", "rca_run_id", run.RCARunID)
			continue
		}
		s.log.Info("requeued stale rca run", "rca_run_id", run.RCARunID, "run_id", run.RunID)
	}
}

// Schedule registers Run against the given cron expression on c. It
// does not start c; the caller owns starting and stopping it.
func (s *Sweeper) Schedule(c *cron.Cron, expr string) error {
	_, err := c.AddFunc(expr, func() {
		s.Run(context.Background())
	})
	return err
}
