package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"

	"grocery-planner/internal/cart"
	"grocery-planner/internal/planner"
	"grocery-planner/internal/report"
	"grocery-planner/internal/shared"
	"grocery-planner/internal/stores"
)

// Status reports whether the ambient session is logged in with the retailer.
func (c *Client) Status(ctx context.Context) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, EndpointStatus, nil, nil)
	if err != nil {
		return false, err
	}

	var body struct {
		LoggedIn      *bool  `json:"logged_in"`
		LoggedInCamel *bool  `json:"loggedIn"`
		Error         string `json:"error"`
	}
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return false, shared.MalformedError(EndpointStatus, "status is not valid JSON", err)
	}
	if body.Error != "" {
		return false, shared.BackendError(EndpointStatus, resp.status, body.Error)
	}
	switch {
	case body.LoggedIn != nil:
		return *body.LoggedIn, nil
	case body.LoggedInCamel != nil:
		return *body.LoggedInCamel, nil
	default:
		return false, shared.MalformedError(EndpointStatus, "response has no logged_in field", nil)
	}
}

// FindStores lists stores near a zip code.
func (c *Client) FindStores(ctx context.Context, zip string) ([]stores.StoreCandidate, error) {
	resp, err := c.do(ctx, http.MethodGet, EndpointStores, url.Values{"zip": {zip}}, nil)
	if err != nil {
		return nil, err
	}
	return stores.ParseCandidates(EndpointStores, resp.body)
}

// RequestPlan asks the backend to generate a meal plan.
func (c *Client) RequestPlan(ctx context.Context, req planner.PlanRequest) (*planner.MealPlan, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plan request: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, EndpointPlan, nil, body)
	if err != nil {
		return nil, err
	}
	return planner.ParseResponse(EndpointPlan, resp.body)
}

// SubmitCart stages a payload and returns the backend's answer verbatim.
func (c *Client) SubmitCart(ctx context.Context, req cart.Request) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cart request: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, EndpointCart, nil, body)
	if err != nil {
		return nil, err
	}

	data := bytes.TrimSpace(resp.body)
	if len(data) == 0 {
		return nil, shared.MalformedError(EndpointCart, "empty cart response", nil)
	}
	if !json.Valid(data) {
		return nil, shared.MalformedError(EndpointCart, "cart response is not valid JSON", nil)
	}
	if msg := errorField(data); msg != "" {
		return nil, shared.BackendError(EndpointCart, resp.status, msg)
	}
	return json.RawMessage(data), nil
}

// FetchReport posts a report request and returns the document.
func (c *Client) FetchReport(ctx context.Context, body json.RawMessage) (*report.Artifact, error) {
	resp, err := c.do(ctx, http.MethodPost, EndpointReport, nil, body)
	if err != nil {
		return nil, err
	}
	if len(resp.body) == 0 {
		return nil, shared.MalformedError(EndpointReport, "empty report", nil)
	}

	contentType := resp.header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/json" {
		if msg := errorField(resp.body); msg != "" {
			return nil, shared.BackendError(EndpointReport, resp.status, msg)
		}
	}

	filename := ""
	if cd := resp.header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			filename = params["filename"]
		}
	}
	if filename == "" {
		filename = report.DefaultFilename()
	}

	return &report.Artifact{
		Filename:    filename,
		ContentType: contentType,
		Data:        resp.body,
	}, nil
}
