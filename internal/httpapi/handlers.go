package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agentops-sre/rca-engine/internal/model"
	"github.com/agentops-sre/rca-engine/pkg/apperror"
)

const metricsWindow = 24 * time.Hour

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleMetricsOverview(w http.ResponseWriter, r *http.Request) {
	window := metricsWindow
	if v := r.URL.Query().Get("hours"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours < 1 || hours > 168 {
			writeError(w, http.StatusBadRequest, "hours must be an integer between 1 and 168")
			return
		}
		window = time.Duration(hours) * time.Hour
	}

	overview, err := s.agentRuns.GetMetricsOverview(r.Context(), window)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handleIngestAgentRun(w http.ResponseWriter, r *http.Request) {
	var payload model.AgentRunPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	runID, err := s.ingest.IngestAgentRun(r.Context(), payload)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"run_id": runID})
}

func (s *Server) handleGetAgentRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	full, err := s.agentRuns.GetAgentRunFull(r.Context(), runID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if full == nil {
		writeAppError(w, apperror.NewNotFoundError("agent run"))
		return
	}

	writeJSON(w, http.StatusOK, model.AgentRunSummary{
		RunID:               full.Run.RunID,
		AgentName:           full.Run.AgentName,
		Status:              full.Run.Status,
		StartedAt:           full.Run.StartedAt,
		EndedAt:             full.Run.EndedAt,
		StepCount:           len(full.Steps),
		ToolCallCount:       len(full.ToolCalls),
		GuardrailEventCount: len(full.Guardrails),
	})
}

func (s *Server) handleGetTimeline(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	timeline, err := s.agentRuns.GetTimeline(r.Context(), runID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if timeline == nil {
		writeAppError(w, apperror.NewNotFoundError("agent run"))
		return
	}
	writeJSON(w, http.StatusOK, timeline)
}

func (s *Server) handleCreateRCARun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	rcaRunID, _, err := s.ingest.CreateRCARun(r.Context(), runID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"rca_run_id": rcaRunID})
}

func (s *Server) handleGetRCARun(w http.ResponseWriter, r *http.Request) {
	rcaRunID := chi.URLParam(r, "rcaRunID")
	run, err := s.rcaRuns.GetRCARun(r.Context(), rcaRunID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if run == nil {
		writeAppError(w, apperror.NewNotFoundError("rca run"))
		return
	}

	if run.Status == model.RunStatusDone {
		report, err := s.rcaRuns.GetRCAReport(r.Context(), rcaRunID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		run.Report = report
	}

	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeAppError(w http.ResponseWriter, err error) {
	writeError(w, apperror.GetStatusCode(err), apperror.SafeErrorMessage(err))
}
