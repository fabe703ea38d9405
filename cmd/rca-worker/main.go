// Command rca-worker drains the RCA job queue and runs the root-cause
// analysis pipeline for each enqueued run, with a background sweep that
// requeues runs abandoned by a worker that died mid-pipeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/agentops-sre/rca-engine/internal/config"
	"github.com/agentops-sre/rca-engine/internal/jobqueue"
	"github.com/agentops-sre/rca-engine/internal/narrative"
	"github.com/agentops-sre/rca-engine/internal/orchestrator"
	"github.com/agentops-sre/rca-engine/internal/progress"
	"github.com/agentops-sre/rca-engine/internal/store"
	"github.com/agentops-sre/rca-engine/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("RCA_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	environment := os.Getenv("APP_ENV")
	if environment == "" {
		environment = "production"
	}
	log, flush, err := logging.NewLogger(environment)
	if err != nil {
		return err
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		log.Error(err, "failed to connect to database")
		return err
	}
	defer db.Close()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Error(err, "failed to parse redis url")
		return err
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	agentRuns := store.NewAgentRunRepository(db)
	rcaRuns := store.NewRCARepository(db)
	queue := jobqueue.New(redisClient, cfg.Redis.QueueName)
	pub := progress.NewPublisher(redisClient)

	var enricher narrative.Enricher = narrative.NoopEnricher{}
	if cfg.LLM.Provider == "anthropic" {
		enricher = narrative.NewAnthropicEnricher(cfg.LLM)
	}
	engine := narrative.NewEngine(enricher)
	runner := orchestrator.New(agentRuns, rcaRuns, pub, engine, log)

	if n, err := queue.RequeueOrphaned(ctx, log); err != nil {
		log.Error(err, "failed to requeue orphaned jobs at startup")
	} else if n > 0 {
		log.Info("requeued orphaned jobs at startup", "count", n)
	}

	sweeper := jobqueue.NewSweeper(rcaRuns, queue, cfg.Worker.StaleRunAfter, log)
	c := cron.New()
	if err := sweeper.Schedule(c, fmt.Sprintf("@every %s", cfg.Worker.SweepInterval)); err != nil {
		log.Error(err, "failed to schedule stale-run sweep")
		return err
	}
	c.Start()
	defer c.Stop()

	concurrency := cfg.Worker.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		workerID := i
		group.Go(func() error {
			workerLoop(groupCtx, log.WithValues("worker_id", workerID), queue, runner)
			return nil
		})
	}

	log.Info("worker started", "concurrency", concurrency)
	return group.Wait()
}

// workerLoop blocks on Dequeue, runs the orchestrator for each job it
// receives and acknowledges it once the pipeline returns, regardless of
// whether the pipeline itself succeeded: failures are recorded on the
// RCA run by the orchestrator, not by leaving the job unacked.
func workerLoop(ctx context.Context, log logr.Logger, queue *jobqueue.Queue, runner *orchestrator.Orchestrator) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rcaRunID, err := queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return
			}
			log.Error(err, "dequeue failed")
			continue
		}
		if rcaRunID == "" {
			continue
		}

		runner.Run(ctx, rcaRunID)

		if err := queue.Ack(ctx, rcaRunID); err != nil {
			log.Error(err, "failed to ack job", "rca_run_id", rcaRunID)
		}
	}
}
