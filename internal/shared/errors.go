package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed backend exchange.
type ErrorKind int

const (
	// KindTransport means the request never completed.
	KindTransport ErrorKind = iota + 1
	// KindBackend means a response arrived carrying an error indicator.
	KindBackend
	// KindMalformed means a response arrived without the expected structure.
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindBackend:
		return "backend"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Error is returned by every component that talks to the backend.
type Error struct {
	Kind     ErrorKind
	Endpoint string
	Status   int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTransport:
		return fmt.Sprintf("could not reach service (%s): %v", e.Endpoint, e.Err)
	case KindMalformed:
		return fmt.Sprintf("unexpected response from %s: %s", e.Endpoint, e.Message)
	default:
		if e.Status != 0 {
			return fmt.Sprintf("%s failed: status %d: %s", e.Endpoint, e.Status, e.Message)
		}
		return fmt.Sprintf("%s failed: %s", e.Endpoint, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// TransportError wraps a failure to complete a request.
func TransportError(endpoint string, err error) *Error {
	return &Error{Kind: KindTransport, Endpoint: endpoint, Err: err}
}

// BackendError records a backend-reported failure, keeping its message verbatim.
func BackendError(endpoint string, status int, message string) *Error {
	return &Error{Kind: KindBackend, Endpoint: endpoint, Status: status, Message: message}
}

// MalformedError records a response that lacks the expected structure.
func MalformedError(endpoint, message string, err error) *Error {
	return &Error{Kind: KindMalformed, Endpoint: endpoint, Message: message, Err: err}
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindTransport
}

// IsBackend reports whether err was reported by, or malformed from, the backend.
func IsBackend(err error) bool {
	var e *Error
	return errors.As(err, &e) && (e.Kind == KindBackend || e.Kind == KindMalformed)
}

// IsMalformed reports whether err is a malformed-response failure.
func IsMalformed(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindMalformed
}
