// Command rca-api serves the HTTP ingestion and query API for the RCA
// engine: agent-run telemetry ingestion, RCA run lifecycle and progress
// streaming.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentops-sre/rca-engine/internal/config"
	"github.com/agentops-sre/rca-engine/internal/httpapi"
	"github.com/agentops-sre/rca-engine/internal/ingest"
	"github.com/agentops-sre/rca-engine/internal/jobqueue"
	"github.com/agentops-sre/rca-engine/internal/progress"
	"github.com/agentops-sre/rca-engine/internal/sse"
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

	if err := store.Migrate(db.DB); err != nil {
		log.Error(err, "failed to run migrations")
		return err
	}

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
	ingestSvc := ingest.NewService(agentRuns, rcaRuns, queue, log)
	pub := progress.NewPublisher(redisClient)
	relay := sse.NewRelay(pub, log)

	server := httpapi.NewServer(ingestSvc, agentRuns, rcaRuns, relay, cfg.Ingest.Secret, cfg.CORS.Origins, log)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.NewRouter(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.Error(err, "http server failed")
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
