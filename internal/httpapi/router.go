// Package httpapi wires the chi router exposing agent-run ingestion,
// RCA run lifecycle, progress streaming and metrics endpoints.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentops-sre/rca-engine/internal/ingest"
	appmetrics "github.com/agentops-sre/rca-engine/internal/metrics"
	"github.com/agentops-sre/rca-engine/internal/sse"
	"github.com/agentops-sre/rca-engine/internal/store"
	"github.com/agentops-sre/rca-engine/internal/tracing"
)

// Server bundles the dependencies the HTTP API needs to serve every
// route: the ingest write path, the read-side repositories and the SSE
// relay.
type Server struct {
	ingest       *ingest.Service
	agentRuns    *store.AgentRunRepository
	rcaRuns      *store.RCARepository
	relay        *sse.Relay
	ingestSecret string
	corsOrigins  []string
	log          logr.Logger
}

func NewServer(ingestSvc *ingest.Service, agentRuns *store.AgentRunRepository, rcaRuns *store.RCARepository, relay *sse.Relay, ingestSecret string, corsOrigins []string, log logr.Logger) *Server {
	return &Server{
		ingest:       ingestSvc,
		agentRuns:    agentRuns,
		rcaRuns:      rcaRuns,
		relay:        relay,
		ingestSecret: ingestSecret,
		corsOrigins:  corsOrigins,
		log:          log,
	}
}

// NewRouter builds the chi router for the full HTTP API.
func (s *Server) NewRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(tracing.Middleware)
	r.Use(appmetrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Ingest-Secret"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// The request-timeout middleware would cut a long-lived SSE stream
	// short, so it only wraps the bounded request/response routes below;
	// the stream route gets its own, much longer bound.
	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))

		r.Get("/healthz", s.handleHealthz)
		r.Get("/readyz", s.handleReadyz)
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/metrics/overview", s.handleMetricsOverview)

		r.Route("/agent-runs", func(r chi.Router) {
			r.With(s.requireIngestSecret).Post("/", s.handleIngestAgentRun)
			r.Get("/{runID}", s.handleGetAgentRun)
			r.Get("/{runID}/timeline", s.handleGetTimeline)
			r.Post("/{runID}/rca-runs", s.handleCreateRCARun)
			r.Get("/rca-runs/{rcaRunID}", s.handleGetRCARun)
		})
	})

	r.Route("/rca-runs", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(sse.StreamTimeout()))
		r.Get("/{rcaRunID}/stream", s.relay.Handler(func(req *http.Request) string {
			return chi.URLParam(req, "rcaRunID")
		}))
	})

	return r
}

func (s *Server) requireIngestSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.ingestSecret == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("X-Ingest-Secret") != s.ingestSecret {
			writeError(w, http.StatusForbidden, "invalid or missing ingest secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}
