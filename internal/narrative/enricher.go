package narrative

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker"

	"github.com/agentops-sre/rca-engine/internal/config"
	"github.com/agentops-sre/rca-engine/pkg/opfail"
)

// Enricher optionally rewrites a deterministic hypothesis description
// into a richer one. Every implementation must degrade to returning the
// input unchanged on any failure — the narrative engine never blocks a
// report on LLM availability.
type Enricher interface {
	Enrich(ctx context.Context, category, deterministicDescription string, evidenceSnippets []string) (string, error)
}

// NoopEnricher returns the deterministic description unchanged. Used
// when LLM.Provider is "none".
type NoopEnricher struct{}

func (NoopEnricher) Enrich(_ context.Context, _, deterministicDescription string, _ []string) (string, error) {
	return deterministicDescription, nil
}

// AnthropicEnricher calls the Anthropic Messages API to rewrite a
// hypothesis description, guarded by a circuit breaker so a flaky or
// saturated provider degrades to the deterministic template rather than
// stalling the pipeline.
type AnthropicEnricher struct {
	client  anthropic.Client
	model   anthropic.Model
	maxTok  int64
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
}

func NewAnthropicEnricher(cfg config.LLMConfig) *AnthropicEnricher {
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "anthropic-enricher",
		MaxRequests: 1,
		Timeout:     cfg.CircuitResetAfter,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.CircuitMaxFailures
		},
	})

	return &AnthropicEnricher{
		client:  client,
		model:   anthropic.Model(cfg.Model),
		maxTok:  int64(cfg.MaxTokens),
		timeout: cfg.Timeout,
		breaker: breaker,
	}
}

func (e *AnthropicEnricher) Enrich(ctx context.Context, category, deterministicDescription string, evidenceSnippets []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	prompt := buildEnrichmentPrompt(category, deterministicDescription, evidenceSnippets)

	result, err := e.breaker.Execute(func() (interface{}, error) {
		resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     e.model,
			MaxTokens: e.maxTok,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return "", opfail.NetworkError("enrich hypothesis", "anthropic", err)
		}
		if len(resp.Content) == 0 {
			return deterministicDescription, nil
		}
		return resp.Content[0].Text, nil
	})
	if err != nil {
		// Circuit open or call failed: degrade silently to the template.
		return deterministicDescription, nil
	}

	text, ok := result.(string)
	if !ok || text == "" {
		return deterministicDescription, nil
	}
	return text, nil
}

func buildEnrichmentPrompt(category, deterministicDescription string, evidenceSnippets []string) string {
	prompt := "Rewrite the following root-cause hypothesis for category \"" + category +
		"\" in two or three clear sentences for an on-call engineer. Do not invent facts not present below.\n\n" +
		"Deterministic summary: " + deterministicDescription + "\n"
	if len(evidenceSnippets) > 0 {
		prompt += "\nEvidence:\n"
		for _, s := range evidenceSnippets {
			prompt += "- " + s + "\n"
		}
	}
	return prompt
}
