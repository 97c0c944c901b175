package planner

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"grocery-planner/internal/llm"
	"grocery-planner/internal/shared"
)

//go:embed plan_prompt.md
var planPrompt string

const geminiEndpoint = "gemini"

// GeminiSource generates plans with an LLM instead of the backend's /plan
// endpoint. Its output goes through the same validation as backend plans.
type GeminiSource struct {
	textGen llm.TextGenerator
}

// NewGeminiSource creates a new GeminiSource.
func NewGeminiSource(textGen llm.TextGenerator) *GeminiSource {
	return &GeminiSource{textGen: textGen}
}

// RequestPlan implements Source.
func (s *GeminiSource) RequestPlan(ctx context.Context, req PlanRequest) (*MealPlan, error) {
	prompt, err := buildPlanPrompt(req)
	if err != nil {
		return nil, err
	}

	resp, err := s.textGen.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, shared.TransportError(geminiEndpoint, err)
	}

	return ParseResponse(geminiEndpoint, []byte(stripCodeFence(resp.Content)))
}

func buildPlanPrompt(req PlanRequest) (string, error) {
	tmpl, err := template.New("Plan").Parse(planPrompt)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, req); err != nil {
		return "", fmt.Errorf("failed to render plan prompt: %w", err)
	}
	return buf.String(), nil
}

// stripCodeFence removes a ```json fence some models add despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
