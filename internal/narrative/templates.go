package narrative

import (
	"strings"

	"github.com/agentops-sre/rca-engine/internal/model"
)

var hypothesisTemplates = map[model.Category]string{
	model.CategoryToolSchemaMismatch: "Tool call failed due to schema validation error. The tool arguments did not match the expected schema, likely due to API changes or incorrect parameter formatting.",
	model.CategoryRateLimited:        "Tool call was rate limited (HTTP 429). The system exceeded the API rate limit, suggesting high request volume or insufficient rate limit configuration.",
	model.CategoryToolPermission:     "Tool call failed due to a permission error. The agent lacks necessary credentials or permissions to execute the requested action.",
	model.CategoryTimeout:            "Operation timed out before completion. The tool or step exceeded configured timeout limits, possibly due to a slow external service or large data processing.",
	model.CategoryPlannerLoop:        "Agent entered a retry loop with excessive retries. The planner may be stuck in a cycle, repeatedly attempting the same failed operation.",
	model.CategoryRetrievalEmpty:     "Retrieval operation returned empty or insufficient results. The search or query did not find relevant data, possibly due to incorrect query formulation or missing data.",
	model.CategoryPromptRegression:   "Prompt behavior changed unexpectedly. Model responses deviated from expected format, possibly due to prompt changes or a model version update.",
	model.CategoryUnknown:            "Failure cause could not be determined from available telemetry. Additional instrumentation or logging may be needed.",
}

// HypothesisDescription returns the deterministic description for a
// category, optionally appending up to two evidence snippets.
func HypothesisDescription(category model.Category, evidenceSnippets []string) string {
	base, ok := hypothesisTemplates[category]
	if !ok {
		base = hypothesisTemplates[model.CategoryUnknown]
	}
	if len(evidenceSnippets) == 0 {
		return base
	}
	n := len(evidenceSnippets)
	if n > 2 {
		n = 2
	}
	return base + " Evidence shows: " + strings.Join(evidenceSnippets[:n], "; ") + "."
}

// EvidenceSummary renders a short human-readable digest of an evidence
// list, one line per item, truncating each snippet to 100 characters.
func EvidenceSummary(refs []model.EvidenceRef) string {
	if len(refs) == 0 {
		return "No evidence available."
	}
	lines := make([]string, 0, len(refs))
	for _, ref := range refs {
		title := ref.Title
		if title == "" {
			title = "Evidence"
		}
		snippet := ref.Snippet
		if len(snippet) > 100 {
			snippet = snippet[:100]
		}
		lines = append(lines, "- "+title+": "+snippet)
	}
	return strings.Join(lines, "\n")
}

var insufficientEvidenceActions = []model.ActionItem{
	{
		Type:        model.ActionMonitoring,
		Title:       "Enable detailed tracing",
		Description: "Add structured logging and tracing to capture more diagnostic information.",
		Priority:    model.PriorityHigh,
	},
	{
		Type:        model.ActionCodeChange,
		Title:       "Add structured error codes",
		Description: "Implement an error code taxonomy to enable better classification in future analyses.",
		Priority:    model.PriorityMedium,
	},
}

var categoryActionTemplates = map[model.Category][]model.ActionItem{
	model.CategoryToolSchemaMismatch: {
		{
			Type:        model.ActionCodeChange,
			Title:       "Update tool schema validation",
			Description: "Review and update tool argument schemas to match the current API contract. Add unit tests for schema validation.",
			Priority:    model.PriorityHigh,
		},
		{
			Type:        model.ActionTest,
			Title:       "Add integration tests for tool calls",
			Description: "Create integration tests that validate tool schemas against live API endpoints.",
			Priority:    model.PriorityMedium,
		},
	},
	model.CategoryRateLimited: {
		{
			Type:        model.ActionChangeConfig,
			Title:       "Implement rate limiting backoff",
			Description: "Add exponential backoff and retry logic for rate-limited requests.",
			Priority:    model.PriorityHigh,
		},
		{
			Type:        model.ActionMonitoring,
			Title:       "Add rate limit monitoring",
			Description: "Track API usage and alert before hitting rate limits.",
			Priority:    model.PriorityHigh,
		},
	},
	model.CategoryToolPermission: {
		{
			Type:        model.ActionChangeConfig,
			Title:       "Verify API credentials and permissions",
			Description: "Audit all API keys and service account permissions. Update with required scopes.",
			Priority:    model.PriorityCritical,
		},
	},
	model.CategoryTimeout: {
		{
			Type:        model.ActionChangeConfig,
			Title:       "Increase timeout thresholds",
			Description: "Review and adjust timeout configuration based on P95 latency metrics.",
			Priority:    model.PriorityHigh,
		},
		{
			Type:        model.ActionCodeChange,
			Title:       "Optimize slow operations",
			Description: "Profile and optimize operations that frequently approach timeout limits.",
			Priority:    model.PriorityMedium,
		},
	},
}

// ActionItems returns the deterministic remediation list for a category.
// When insufficient is true it always returns the insufficient-evidence
// list regardless of category; otherwise it falls back to a generic
// investigate-manually item for categories without a dedicated template.
func ActionItems(category model.Category, insufficient bool) []model.ActionItem {
	if insufficient {
		return cloneItems(insufficientEvidenceActions)
	}
	if items, ok := categoryActionTemplates[category]; ok {
		return cloneItems(items)
	}
	return []model.ActionItem{
		{
			Type:        model.ActionRunbook,
			Title:       "Investigate root cause",
			Description: "Manual investigation required for " + string(category) + " failure category.",
			Priority:    model.PriorityHigh,
		},
	}
}

func cloneItems(items []model.ActionItem) []model.ActionItem {
	out := make([]model.ActionItem, len(items))
	copy(out, items)
	return out
}
