package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"grocery-planner/internal/cart"
	"grocery-planner/internal/planner"

	"github.com/sirupsen/logrus"
)

// ErrNothingStaged is returned, without any network call, when a report is
// requested before a cart was staged.
var ErrNothingStaged = errors.New("nothing staged: stage your cart before requesting a report")

// Artifact is the downloadable document returned by /report.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Fetcher posts a report request to the backend.
type Fetcher interface {
	FetchReport(ctx context.Context, body json.RawMessage) (*Artifact, error)
}

// Requester asks the backend for the report document. It does not retry.
type Requester struct {
	fetcher Fetcher
	logger  logrus.FieldLogger
}

// NewRequester creates a new Requester.
func NewRequester(fetcher Fetcher, logger logrus.FieldLogger) *Requester {
	return &Requester{fetcher: fetcher, logger: logger}
}

// Request combines the last cart response with the full, unfiltered plan.
func (r *Requester) Request(ctx context.Context, staged cart.Response, plan *planner.MealPlan, kind planner.MealKind) (*Artifact, error) {
	if len(staged) == 0 {
		return nil, ErrNothingStaged
	}
	if plan == nil {
		return nil, fmt.Errorf("cannot build report: no plan")
	}

	body, err := BuildRequest(staged, plan, kind)
	if err != nil {
		return nil, err
	}

	artifact, err := r.fetcher.FetchReport(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("failed to request report: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"bytes":        len(artifact.Data),
		"content_type": artifact.ContentType,
	}).Info("Report received")
	return artifact, nil
}

// BuildRequest merges the cart response's fields with the plan's meals and the
// meal kind. A cart response that is not a JSON object is nested under "cart".
func BuildRequest(staged cart.Response, plan *planner.MealPlan, kind planner.MealKind) (json.RawMessage, error) {
	merged := make(map[string]json.RawMessage)
	if err := json.Unmarshal(staged, &merged); err != nil || merged == nil {
		merged = map[string]json.RawMessage{"cart": json.RawMessage(staged)}
	}

	meals := plan.Meals
	if meals == nil {
		meals = []planner.Meal{}
	}
	mealsJSON, err := json.Marshal(meals)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal meals: %w", err)
	}
	kindJSON, err := json.Marshal(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal meal kind: %w", err)
	}
	merged["meals"] = mealsJSON
	merged["meal_type"] = kindJSON

	body, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report request: %w", err)
	}
	return body, nil
}
