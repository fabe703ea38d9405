// Package jobqueue implements an at-least-once delivery queue for RCA
// jobs on top of Redis lists, plus a periodic sweep for runs that were
// claimed by a worker that died mid-pipeline.
package jobqueue

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"

	"github.com/agentops-sre/rca-engine/pkg/opfail"
)

const blockTimeout = 5 * time.Second

func pendingKey(queue string) string    { return "rcaq:" + queue + ":pending" }
func processingKey(queue string) string { return "rcaq:" + queue + ":processing" }

// Queue is a reliable-delivery Redis list queue: Enqueue pushes to the
// pending list, Dequeue atomically moves an item to a processing list
// so a crashed worker's claim is recoverable, and Ack removes it once
// the job has actually been handled.
type Queue struct {
	redis *redis.Client
	name  string
}

func New(client *redis.Client, queueName string) *Queue {
	return &Queue{redis: client, name: queueName}
}

// Enqueue hands an RCA run ID to the queue for asynchronous processing.
func (q *Queue) Enqueue(ctx context.Context, rcaRunID string) error {
	if err := q.redis.LPush(ctx, pendingKey(q.name), rcaRunID).Err(); err != nil {
		return opfail.NetworkError("enqueue rca job", pendingKey(q.name), err)
	}
	return nil
}

// Dequeue blocks up to its internal timeout for the next job, moving it
// into the processing list atomically with the pop. Returns "", nil on
// a timeout with nothing to process, distinguishing that from a
// transport failure.
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	rcaRunID, err := q.redis.BRPopLPush(ctx, pendingKey(q.name), processingKey(q.name), blockTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", opfail.NetworkError("dequeue rca job", pendingKey(q.name), err)
	}
	return rcaRunID, nil
}

// Ack removes rcaRunID from the processing list once the worker has
// finished handling it, successfully or not.
func (q *Queue) Ack(ctx context.Context, rcaRunID string) error {
	if err := q.redis.LRem(ctx, processingKey(q.name), 1, rcaRunID).Err(); err != nil {
		return opfail.NetworkError("ack rca job", processingKey(q.name), err)
	}
	return nil
}

// RequeueOrphaned moves every job still sitting in the processing list
// back onto the pending list. Intended to run once at worker startup,
// before the worker that previously held them is assumed dead.
func (q *Queue) RequeueOrphaned(ctx context.Context, log logr.Logger) (int, error) {
	moved := 0
	for {
		rcaRunID, err := q.redis.RPopLPush(ctx, processingKey(q.name), pendingKey(q.name)).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return moved, opfail.NetworkError("requeue orphaned rca jobs", processingKey(q.name), err)
		}
		moved++
		log.V(1).Info("requeued orphaned rca job", "rca_run_id", rcaRunID)
	}
	return moved, nil
}
