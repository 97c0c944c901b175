package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrInvalidRequest is returned before any network call when the request
// cannot be shaped.
var ErrInvalidRequest = errors.New("invalid plan request")

// PlanRequest is the body of a plan generation call.
type PlanRequest struct {
	Description string   `json:"type"`
	Count       int      `json:"num_meals"`
	Kind        MealKind `json:"time"`
}

// Source produces meal plans. The backend client and the Gemini source both
// implement it.
type Source interface {
	RequestPlan(ctx context.Context, req PlanRequest) (*MealPlan, error)
}

// Generator shapes plan requests and hands them to a Source.
type Generator struct {
	source Source
	logger logrus.FieldLogger
}

// NewGenerator creates a new Generator instance.
func NewGenerator(source Source, logger logrus.FieldLogger) *Generator {
	return &Generator{source: source, logger: logger}
}

// Generate requests a plan of count meals of the given kind.
// Authentication is the caller's concern.
func (g *Generator) Generate(ctx context.Context, description string, kind MealKind, count int) (*MealPlan, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: meal count must be at least 1, got %d", ErrInvalidRequest, count)
	}
	if _, err := ParseMealKind(string(kind)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	start := time.Now()
	plan, err := g.source.RequestPlan(ctx, PlanRequest{
		Description: description,
		Count:       count,
		Kind:        kind,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate plan: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"kind":    kind,
		"meals":   len(plan.Meals),
		"latency": time.Since(start),
	}).Info("Plan generated")
	return plan, nil
}
