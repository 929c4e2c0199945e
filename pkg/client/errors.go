package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/moogar0880/problems"
)

var (
	// ErrUnauthorized is returned for any 401 response. The stored token has
	// already been invalidated when a caller sees it.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrExecutionNotFound is returned by a stream whose execution does not exist.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrStreamClosed is returned by Next after Close.
	ErrStreamClosed = errors.New("stream closed")
)

// APIError is a non-2xx response other than 401.
type APIError struct {
	Op     string // Client operation, e.g. "ExecuteBot"
	Status int    // HTTP status code
	Detail string // Server-provided detail, when the body carried one
	Body   string // Raw response body
}

func (e *APIError) Error() string {
	message := e.Detail
	if message == "" {
		message = strings.TrimSpace(e.Body)
	}

	if message == "" {
		message = http.StatusText(e.Status)
	}

	return fmt.Sprintf("%s: %d %s", e.Op, e.Status, message)
}

// Message is the text a user should see: the server detail when present,
// else the raw body.
func (e *APIError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}

	if body := strings.TrimSpace(e.Body); body != "" {
		return body
	}

	return http.StatusText(e.Status)
}

func newAPIError(op string, status int, body []byte) *APIError {
	return &APIError{
		Op:     op,
		Status: status,
		Detail: decodeDetail(body),
		Body:   string(body),
	}
}

// decodeDetail reads the detail member of a JSON error body. Both RFC 7807
// problems and FastAPI errors carry it; anything else yields "".
func decodeDetail(body []byte) string {
	var problem problems.Problem
	if err := json.Unmarshal(body, &problem); err != nil {
		return ""
	}

	return problem.Detail
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsForbidden reports whether err is a 403 response.
func IsForbidden(err error) bool {
	return StatusCode(err) == http.StatusForbidden
}

// StatusCode returns the HTTP status carried by err, 401 for ErrUnauthorized,
// or 0.
func StatusCode(err error) int {
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}

	return 0
}

// Message returns the user-facing text of err: the server detail for API
// errors, the error text otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message()
	}

	return err.Error()
}
