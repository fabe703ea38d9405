// Package strategy implements the deterministic failure classifier: a
// fixed rule cascade over a run's tool calls, guardrail events and steps
// that assigns exactly one model.Category. No ML, no LLM call — every
// input maps to the same output every time.
package strategy

import (
	"strings"

	"github.com/agentops-sre/rca-engine/internal/model"
)

var schemaKeywords = []string{"validation", "schema", "unexpected", "missing required"}
var permissionKeywords = []string{"permission", "unauthorized", "forbidden", "access denied"}

// ClassifyCategory runs the rule cascade in a fixed order: tool-call
// failures first (rate limit, schema, permission, timeout), then
// guardrail schema-validation events, then planner-loop detection via
// step retries, then a retrieval-empty heuristic, then a run-level
// timeout check. The first matching rule wins.
func ClassifyCategory(errorType, errorMessage *string, toolCalls []model.ToolCall, steps []model.AgentStep, guardrails []model.GuardrailEvent) model.Category {
	for _, tc := range toolCalls {
		if tc.Status != "failure" {
			continue
		}

		if isRateLimited(tc) {
			return model.CategoryRateLimited
		}
		if isSchemaMismatch(tc) {
			return model.CategoryToolSchemaMismatch
		}
		if isPermissionDenied(tc) {
			return model.CategoryToolPermission
		}
		if isTimeout(tc) {
			return model.CategoryTimeout
		}
	}

	for _, g := range guardrails {
		if g.Type == model.GuardrailSchemaValidation {
			return model.CategoryToolSchemaMismatch
		}
	}

	if maxRetries(steps) >= 3 {
		return model.CategoryPlannerLoop
	}

	if len(toolCalls) == 0 && errorType == nil {
		if isRetrievalEmpty(steps) {
			return model.CategoryRetrievalEmpty
		}
	}

	if errorType != nil && strings.Contains(strings.ToLower(*errorType), "timeout") {
		return model.CategoryTimeout
	}

	return model.CategoryUnknown
}

func isRateLimited(tc model.ToolCall) bool {
	if tc.StatusCode != nil && *tc.StatusCode == 429 {
		return true
	}
	return containsAny(tc.ErrorMessage, "rate limit")
}

func isSchemaMismatch(tc model.ToolCall) bool {
	if tc.ErrorClass != nil && strings.Contains(strings.ToLower(*tc.ErrorClass), "schema") {
		return true
	}
	return containsAny(tc.ErrorMessage, schemaKeywords...)
}

func isPermissionDenied(tc model.ToolCall) bool {
	if tc.StatusCode != nil && (*tc.StatusCode == 401 || *tc.StatusCode == 403) {
		return true
	}
	return containsAny(tc.ErrorMessage, permissionKeywords...)
}

func isTimeout(tc model.ToolCall) bool {
	if tc.ErrorClass != nil && strings.Contains(strings.ToLower(*tc.ErrorClass), "timeout") {
		return true
	}
	return containsAny(tc.ErrorMessage, "timeout")
}

func containsAny(message *string, keywords ...string) bool {
	if message == nil {
		return false
	}
	lower := strings.ToLower(*message)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func maxRetries(steps []model.AgentStep) int {
	max := 0
	for _, s := range steps {
		if s.Retries > max {
			max = s.Retries
		}
	}
	return max
}

func isRetrievalEmpty(steps []model.AgentStep) bool {
	for _, s := range steps {
		name := strings.ToLower(s.Name)
		if strings.Contains(name, "retriev") || strings.Contains(name, "search") {
			if len(s.OutputSummary) < 50 {
				return true
			}
		}
	}
	return false
}
