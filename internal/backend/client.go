package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"grocery-planner/internal/config"
	"grocery-planner/internal/metrics"
	"grocery-planner/internal/shared"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	EndpointStatus = "/status"
	EndpointLogin  = "/login"
	EndpointStores = "/stores"
	EndpointPlan   = "/plan"
	EndpointCart   = "/cart"
	EndpointReport = "/report"
)

// Recorder persists one metric per backend call.
type Recorder interface {
	Record(m metrics.RequestMetric) error
}

// Client talks to the planner backend. Credentials travel in its cookie jar,
// so every component sharing a Client shares the session.
type Client struct {
	httpClient   *http.Client
	baseURL      *url.URL
	clientID     string
	clientSecret string
	recorder     Recorder
	logger       logrus.FieldLogger
}

// NewClient creates a backend client from configuration. recorder may be nil.
func NewClient(cfg *config.Config, recorder Recorder, logger logrus.FieldLogger) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BackendURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", cfg.BackendURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	if cfg.SessionCookie != "" {
		name := cfg.SessionCookieName
		if name == "" {
			name = "session"
		}
		jar.SetCookies(base, []*http.Cookie{{Name: name, Value: cfg.SessionCookie, Path: "/"}})
	}

	return &Client{
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: cfg.RequestTimeout,
		},
		baseURL:      base,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		recorder:     recorder,
		logger:       logger,
	}, nil
}

// LoginURL is where a browser starts the retailer's authorization hand-off.
func (c *Client) LoginURL() string {
	return c.baseURL.JoinPath(EndpointLogin).String()
}

// response is a completed exchange with a 2xx status.
type response struct {
	status int
	header http.Header
	body   []byte
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body []byte) (*response, error) {
	u := c.baseURL.JoinPath(endpoint)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.clientSecret != "" {
		token, err := c.createClientAssertion()
		if err != nil {
			return nil, fmt.Errorf("failed to create client assertion: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(endpoint, 0, start, requestID)
		return nil, shared.TransportError(endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.record(endpoint, resp.StatusCode, start, requestID)
	if err != nil {
		return nil, shared.TransportError(endpoint, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, shared.BackendError(endpoint, resp.StatusCode, errorMessage(resp.StatusCode, data))
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

func (c *Client) record(endpoint string, status int, start time.Time, requestID string) {
	latency := time.Since(start)
	ok := status >= 200 && status <= 299

	c.logger.WithFields(logrus.Fields{
		"endpoint":   endpoint,
		"status":     status,
		"latency":    latency,
		"request_id": requestID,
	}).Debug("Backend call finished")

	if c.recorder == nil {
		return
	}
	err := c.recorder.Record(metrics.RequestMetric{
		Endpoint:  endpoint,
		Status:    status,
		OK:        ok,
		LatencyMS: latency.Milliseconds(),
		RequestID: requestID,
		Timestamp: start,
	})
	if err != nil {
		c.logger.WithError(err).Warn("Failed to record request metric")
	}
}

// errorMessage extracts the backend's own wording for a failure.
func errorMessage(status int, data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	if text := strings.TrimSpace(string(data)); text != "" {
		return text
	}
	return http.StatusText(status)
}

// errorField returns the "error" member of a JSON object body, if any.
func errorField(data []byte) string {
	var body struct {
		Error any `json:"error"`
	}
	if json.Unmarshal(data, &body) != nil || body.Error == nil {
		return ""
	}
	switch v := body.Error.(type) {
	case string:
		return v
	case bool:
		if v {
			return "request failed"
		}
		return ""
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// createClientAssertion generates a short-lived JWT identifying this client.
func (c *Client) createClientAssertion() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
		"aud": c.baseURL.String(),
		"jti": uuid.NewString(),
	}
	if c.clientID != "" {
		claims["iss"] = c.clientID
		claims["sub"] = c.clientID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if c.clientID != "" {
		token.Header["kid"] = c.clientID
	}
	return token.SignedString([]byte(c.clientSecret))
}
