package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// ErrMethodNotAllowed is returned for operations a resource does not
// offer. No request is sent.
var ErrMethodNotAllowed = errors.New("method not allowed")

// AuthError indicates that the server rejected the credentials or the
// bearer token. It is returned when a 401 response is received.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %s", e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// StatusError is a non-2xx response other than 401 and exhausted 429s.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d on %s %s", e.StatusCode, e.Method, e.Path)
	}
	return fmt.Sprintf("unexpected status %d on %s %s: %s", e.StatusCode, e.Method, e.Path, e.Message)
}

// errorResponse covers the error bodies the API is known to send.
type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// errorMessage extracts a human readable message from an error body.
func errorMessage(body []byte) string {
	var resp errorResponse
	if json.Unmarshal(body, &resp) == nil {
		if resp.Message != "" {
			return resp.Message
		}
		if resp.Error != "" {
			return resp.Error
		}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
