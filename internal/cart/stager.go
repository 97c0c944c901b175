package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Response is the backend's cart answer, kept verbatim for the report.
type Response json.RawMessage

// Request is what goes over the wire: the payload plus the chosen store.
type Request struct {
	Payload
	LocationID string `json:"location_id,omitempty"`
}

// Submitter posts a staging request to the backend's cart endpoint.
type Submitter interface {
	SubmitCart(ctx context.Context, req Request) (json.RawMessage, error)
}

// Stager submits payloads. It does not retry.
type Stager struct {
	submitter Submitter
	logger    logrus.FieldLogger
}

// NewStager creates a new Stager.
func NewStager(submitter Submitter, logger logrus.FieldLogger) *Stager {
	return &Stager{submitter: submitter, logger: logger}
}

// Stage submits payload for the given store (empty when none was selected).
func (s *Stager) Stage(ctx context.Context, payload Payload, locationID string) (Response, error) {
	start := time.Now()
	raw, err := s.submitter.SubmitCart(ctx, Request{Payload: payload, LocationID: locationID})
	if err != nil {
		return nil, fmt.Errorf("failed to stage cart: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"meals":       len(payload.Meals),
		"ingredients": payload.IngredientCount(),
		"latency":     time.Since(start),
	}).Info("Cart staged")
	return Response(raw), nil
}
