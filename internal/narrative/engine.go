package narrative

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentops-sre/rca-engine/internal/model"
)

// Engine assembles hypotheses, action items and Jira fields for an RCA
// report, applying an optional Enricher to rewrite hypothesis prose.
type Engine struct {
	enricher Enricher
}

func NewEngine(enricher Enricher) *Engine {
	if enricher == nil {
		enricher = NoopEnricher{}
	}
	return &Engine{enricher: enricher}
}

// GenerateHypothesesAndActions builds the hypothesis list and action
// item list for a classified run. When insufficient is true, no
// root-cause hypotheses are produced — only data-collection actions.
func (e *Engine) GenerateHypothesesAndActions(ctx context.Context, category model.Category, evidenceIndex []model.EvidenceRef, insufficient bool) ([]model.Hypothesis, []model.ActionItem) {
	if insufficient {
		return nil, ActionItems(category, true)
	}

	evidenceIDs := make([]string, 0, len(evidenceIndex))
	for _, ev := range evidenceIndex {
		evidenceIDs = append(evidenceIDs, ev.EvidenceID)
	}

	snippetLimit := 3
	if snippetLimit > len(evidenceIndex) {
		snippetLimit = len(evidenceIndex)
	}
	snippets := make([]string, 0, snippetLimit)
	for _, ev := range evidenceIndex[:snippetLimit] {
		snippets = append(snippets, ev.Snippet)
	}

	description := HypothesisDescription(category, snippets)
	enriched, err := e.enricher.Enrich(ctx, string(category), description, snippets)
	if err == nil && enriched != "" {
		description = enriched
	}

	refLimit := 5
	if refLimit > len(evidenceIDs) {
		refLimit = len(evidenceIDs)
	}

	confidence := model.ConfidenceMedium
	if len(evidenceIDs) >= 2 {
		confidence = model.ConfidenceHigh
	}

	mitigation := "Apply recommended action items below"
	hypothesis := model.Hypothesis{
		Title:       titleCase(category) + " Root Cause",
		Description: description,
		EvidenceIDs: evidenceIDs[:refLimit],
		Confidence:  confidence,
		VerificationSteps: []string{
			"Review tool call logs for detailed error traces",
			"Check external service status and API documentation",
			"Reproduce failure in an isolated test environment",
		},
		Mitigation: &mitigation,
	}

	return []model.Hypothesis{hypothesis}, ActionItems(category, false)
}

// GenerateJiraFields renders the ticket summary and markdown description
// for a report, following the hypothesis/action item layout used across
// every category.
func GenerateJiraFields(runID string, category model.Category, hypotheses []model.Hypothesis, actions []model.ActionItem, insufficient bool) model.JiraFields {
	shortRunID := runID
	if len(shortRunID) > 8 {
		shortRunID = shortRunID[:8]
	}
	summary := fmt.Sprintf("[AgentOps RCA] %s - Run %s", titleCase(category), shortRunID)

	var b strings.Builder
	fmt.Fprintf(&b, "# RCA Report: %s\n", category)
	fmt.Fprintf(&b, "**Run ID:** %s\n", runID)
	fmt.Fprintf(&b, "**Insufficient Evidence:** %t\n\n", insufficient)
	b.WriteString("## Hypotheses\n")

	if len(hypotheses) > 0 {
		for _, h := range hypotheses {
			fmt.Fprintf(&b, "### %s\n", h.Title)
			fmt.Fprintf(&b, "- **Confidence:** %s\n", h.Confidence)
			fmt.Fprintf(&b, "- **Description:** %s\n", h.Description)
			fmt.Fprintf(&b, "- **Evidence Count:** %d\n", len(h.EvidenceIDs))
		}
	} else {
		b.WriteString("*Insufficient evidence to form hypotheses. Data collection required.*\n")
	}

	b.WriteString("\n## Action Items\n")
	for _, a := range actions {
		fmt.Fprintf(&b, "- [%s] **%s** (%s)\n", strings.ToUpper(string(a.Priority)), a.Title, a.Type)
		fmt.Fprintf(&b, "  %s\n", a.Description)
	}

	return model.JiraFields{
		JiraSummary:       summary,
		JiraDescriptionMd: b.String(),
	}
}

func titleCase(category model.Category) string {
	parts := strings.Split(string(category), "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// topFailingTool returns the tool name with the most failed calls,
// breaking ties by first appearance in toolCalls rather than name.
func topFailingTool(toolCalls []model.ToolCall) *string {
	counts := map[string]int{}
	order := make([]string, 0)
	for _, tc := range toolCalls {
		if tc.Status != "failure" {
			continue
		}
		if _, seen := counts[tc.ToolName]; !seen {
			order = append(order, tc.ToolName)
		}
		counts[tc.ToolName]++
	}
	if len(order) == 0 {
		return nil
	}
	top := order[0]
	for _, name := range order[1:] {
		if counts[name] > counts[top] {
			top = name
		}
	}
	return &top
}

// CompileMetrics computes the numeric summary attached to a report.
func CompileMetrics(steps []model.AgentStep, toolCalls []model.ToolCall, totalCostUSD *float64) model.MetricsSnapshot {
	maxLatency := 0
	totalRetries := 0
	for _, s := range steps {
		maxLatency = max(maxLatency, s.LatencyMs)
		totalRetries += s.Retries
	}
	for _, tc := range toolCalls {
		totalRetries += tc.Retries
	}

	return model.MetricsSnapshot{
		TopFailingTool:   topFailingTool(toolCalls),
		MaxStepLatencyMs: maxLatency,
		TotalRetries:     totalRetries,
		TotalCostUSD:     totalCostUSD,
	}
}
