// Package progress publishes RCA run progress to Redis: a snapshot hash
// for poll-based reads and a pub/sub channel for the SSE relay.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentops-sre/rca-engine/internal/model"
	"github.com/agentops-sre/rca-engine/pkg/opfail"
)

// Publisher writes progress snapshots and publishes progress events.
type Publisher struct {
	redis *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{redis: client}
}

func statusKey(rcaRunID string) string {
	return fmt.Sprintf("rca:%s:status", rcaRunID)
}

func channelName(rcaRunID string) string {
	return fmt.Sprintf("rca:%s", rcaRunID)
}

// Publish writes the status hash and publishes the same payload to the
// run's channel. Any go-redis error is wrapped as an opfail network
// error with "redis" as its resource.
func (p *Publisher) Publish(ctx context.Context, rcaRunID string, status model.RunStatus, step string, pct int, message string) error {
	event := model.ProgressEvent{
		Status:    status,
		Step:      step,
		Pct:       pct,
		Message:   message,
		UpdatedAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return opfail.ParseError("progress event", "JSON", err)
	}

	fields := map[string]interface{}{
		"status":     string(event.Status),
		"step":       event.Step,
		"pct":        event.Pct,
		"message":    event.Message,
		"updated_at": event.UpdatedAt.Format(time.RFC3339Nano),
	}
	if err := p.redis.HSet(ctx, statusKey(rcaRunID), fields).Err(); err != nil {
		return opfail.NetworkError("write progress status hash", "redis", err)
	}

	if err := p.redis.Publish(ctx, channelName(rcaRunID), payload).Err(); err != nil {
		return opfail.NetworkError("publish progress event", "redis", err)
	}
	return nil
}

// LatestStatus returns the most recent snapshot, or nil if none exists.
func (p *Publisher) LatestStatus(ctx context.Context, rcaRunID string) (map[string]string, error) {
	data, err := p.redis.HGetAll(ctx, statusKey(rcaRunID)).Result()
	if err != nil {
		return nil, opfail.NetworkError("read progress status hash", "redis", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

// Clear removes the status hash. The orchestrator does not call it, so a
// terminal snapshot stays in place after a run finishes.
func (p *Publisher) Clear(ctx context.Context, rcaRunID string) error {
	if err := p.redis.Del(ctx, statusKey(rcaRunID)).Err(); err != nil {
		return opfail.NetworkError("clear progress status hash", "redis", err)
	}
	return nil
}

// Subscribe opens a pub/sub subscription to the run's progress channel,
// used by the SSE relay. The caller must Close the returned PubSub.
func (p *Publisher) Subscribe(ctx context.Context, rcaRunID string) *redis.PubSub {
	return p.redis.Subscribe(ctx, channelName(rcaRunID))
}
