package session

import (
	"context"
	"net/url"
	"strings"

	"grocery-planner/internal/shared"

	"github.com/sirupsen/logrus"
)

// Session is the client's view of its retailer login. It lives in memory only.
type Session struct {
	Authenticated bool
	StatusMessage string
	// Err is set when the status could not be determined.
	Err error
}

const (
	msgConnected    = "Connected to your Kroger account."
	msgDisconnected = "Not connected. Log in with Kroger to generate a plan."
)

// StatusChecker asks the backend whether the ambient session is logged in.
type StatusChecker interface {
	Status(ctx context.Context) (bool, error)
}

// Tracker queries session status and renders it.
type Tracker struct {
	checker    StatusChecker
	returnPath string
	logger     logrus.FieldLogger
}

// NewTracker creates a new Tracker. returnPath is the path the retailer's
// authorization hand-off lands on.
func NewTracker(checker StatusChecker, returnPath string, logger logrus.FieldLogger) *Tracker {
	return &Tracker{checker: checker, returnPath: returnPath, logger: logger}
}

// CheckStatus never fails: errors are folded into the returned Session.
func (t *Tracker) CheckStatus(ctx context.Context) Session {
	loggedIn, err := t.checker.Status(ctx)
	if err != nil {
		t.logger.WithError(err).Warn("Session status check failed")
		msg := "Could not check your Kroger connection: " + err.Error()
		if shared.IsTransport(err) {
			msg = "Could not reach the planner service to check your Kroger connection."
		}
		return Session{Authenticated: false, StatusMessage: msg, Err: err}
	}

	if loggedIn {
		return Session{Authenticated: true, StatusMessage: msgConnected}
	}
	return Session{Authenticated: false, StatusMessage: msgDisconnected}
}

// IsAuthReturn reports whether a navigation target is the landing page of the
// retailer's authorization hand-off. Both bare paths and full URLs are accepted.
func (t *Tracker) IsAuthReturn(target string) bool {
	if t.returnPath == "" {
		return false
	}
	path := target
	if u, err := url.Parse(target); err == nil && u.Path != "" {
		path = u.Path
	}
	return strings.TrimSuffix(path, "/") == strings.TrimSuffix(t.returnPath, "/")
}
