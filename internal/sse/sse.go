// Package sse relays RCA run progress over Server-Sent Events, bridging
// a Redis pub/sub subscription to an HTTP client connection.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/agentops-sre/rca-engine/internal/model"
	"github.com/agentops-sre/rca-engine/internal/progress"
	"github.com/agentops-sre/rca-engine/pkg/apperror"
)

const keepAliveInterval = 15 * time.Second

// Relay streams progress events for one RCA run to an SSE client,
// replaying the last known snapshot first so a client that connects
// mid-run isn't left waiting for the next publish.
type Relay struct {
	publisher *progress.Publisher
	log       logr.Logger
}

func NewRelay(publisher *progress.Publisher, log logr.Logger) *Relay {
	return &Relay{publisher: publisher, log: log}
}

// Handler returns an http.HandlerFunc that streams progress for the
// rcaRunID given by pathParam, closing the stream once the run reaches
// a terminal status or the client disconnects.
func (r *Relay) Handler(pathParam func(*http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		rcaRunID := pathParam(req)
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, apperror.Messages.InternalError, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		ctx := req.Context()

		if snapshot, err := r.publisher.LatestStatus(ctx, rcaRunID); err == nil && snapshot != nil {
			writeSnapshot(w, snapshot)
			flusher.Flush()
			if snapshot["status"] == string(model.RunStatusDone) || snapshot["status"] == string(model.RunStatusError) {
				return
			}
		}

		sub := r.publisher.Subscribe(ctx, rcaRunID)
		defer sub.Close()

		ch := sub.Channel()
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				flusher.Flush()
			case msg, ok := <-ch:
				if !ok {
					return
				}
				fmt.Fprintf(w, "data: %s\n\n", msg.Payload)
				flusher.Flush()

				var event model.ProgressEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err == nil && event.Status.IsTerminal() {
					return
				}
			}
		}
	}
}

func writeSnapshot(w http.ResponseWriter, snapshot map[string]string) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

// StreamTimeout bounds how long a single SSE connection is allowed to
// stay open. Wired into the stream route's own timeout middleware
// instead of the shorter one applied to the rest of the API.
func StreamTimeout() time.Duration { return 30 * time.Minute }
