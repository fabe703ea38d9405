// Package evidence assembles the evidence index an RCA run reasons
// over from a run's raw telemetry: failed steps, failed tool calls and
// guardrail interventions.
package evidence

import (
	"fmt"
	"strings"

	"github.com/agentops-sre/rca-engine/internal/model"
	"github.com/agentops-sre/rca-engine/internal/store"
)

const snippetLimit = 200

// Collect builds the evidence index for a run: one ref per failed step,
// failed tool call, and guardrail event.
func Collect(full *store.AgentRunFull) []model.EvidenceRef {
	var refs []model.EvidenceRef

	for _, step := range full.Steps {
		if step.Status != "failure" {
			continue
		}
		refs = append(refs, model.EvidenceRef{
			EvidenceID: fmt.Sprintf("ev_step_%s", step.StepID),
			Kind:       model.EvidenceKindStep,
			RefID:      step.StepID,
			Title:      fmt.Sprintf("Failed step: %s", step.Name),
			Snippet:    truncate(step.OutputSummary),
			Attributes: map[string]any{
				"latency_ms": step.LatencyMs,
				"retries":    step.Retries,
			},
		})
	}

	for _, tc := range full.ToolCalls {
		if tc.Status != "failure" {
			continue
		}
		var errMsg string
		if tc.ErrorMessage != nil {
			errMsg = *tc.ErrorMessage
		}
		refs = append(refs, model.EvidenceRef{
			EvidenceID: fmt.Sprintf("ev_tool_%s", tc.CallID),
			Kind:       model.EvidenceKindToolCall,
			RefID:      tc.CallID,
			Title:      fmt.Sprintf("Failed tool call: %s", tc.ToolName),
			Snippet:    truncate(errMsg),
			Attributes: map[string]any{
				"error_class": tc.ErrorClass,
				"status_code": tc.StatusCode,
				"latency_ms":  tc.LatencyMs,
			},
		})
	}

	for _, ge := range full.Guardrails {
		refs = append(refs, model.EvidenceRef{
			EvidenceID: fmt.Sprintf("ev_guard_%s", ge.EventID),
			Kind:       model.EvidenceKindGuardrail,
			RefID:      ge.EventID,
			Title:      fmt.Sprintf("Guardrail: %s", ge.Type),
			Snippet:    truncate(ge.Message),
			Attributes: map[string]any{"type": string(ge.Type)},
		})
	}

	return refs
}

func truncate(s string) string {
	if len(s) <= snippetLimit {
		return s
	}
	return s[:snippetLimit]
}

// InsufficientReason explains why a run lacks enough evidence for a
// confident hypothesis. The orchestrator attaches it to a report only
// when IsInsufficient returns true.
const InsufficientReason = "Limited telemetry: no tool failures or specific error details captured"

// IsInsufficient reports whether the telemetry captured for a run is too
// sparse to support a confident hypothesis: either nothing failed loudly
// (no tool calls, no run-level error type, no guardrail trips), or the
// only signal is a generic server error with no tool-level detail behind
// it.
func IsInsufficient(run model.AgentRun, full *store.AgentRunFull, refs []model.EvidenceRef) bool {
	if len(full.ToolCalls) == 0 && (run.ErrorType == nil || *run.ErrorType == "") && len(full.Guardrails) == 0 {
		return true
	}

	if run.ErrorMessage != nil && strings.Contains(strings.ToLower(*run.ErrorMessage), "internal server error") {
		hasToolEvidence := false
		for _, ref := range refs {
			if ref.Kind == model.EvidenceKindToolCall {
				hasToolEvidence = true
				break
			}
		}
		if !hasToolEvidence {
			return true
		}
	}

	return false
}
