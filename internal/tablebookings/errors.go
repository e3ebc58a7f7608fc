package tablebookings

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CategoryTransport    = "transport"
	CategoryUnauthorized = "unauthorized"
	CategoryClient       = "client"
	CategoryServer       = "server"
	CategoryDecode       = "decode"
)

// AuthError is returned for bad credentials at login and for missing or
// expired tokens on protected calls. Callers should clear the session.
type AuthError struct {
	Op     string
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RemoteError is a failed round trip: transport failure or a non-2xx reply.
type RemoteError struct {
	Op         string
	StatusCode int // 0 for transport failures
	Category   string
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s failed (%s): %s", e.Op, e.Category, msg)
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s failed (status=%d): %s", e.Op, e.StatusCode, msg)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// ParseError describes one record that could not be decoded. It never
// aborts a batch.
type ParseError struct {
	Record string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Record, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err should end the session.
func IsUnauthorized(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func statusCategory(code int) string {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return CategoryUnauthorized
	case code >= 500:
		return CategoryServer
	}
	return CategoryClient
}
