package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError is the single error type every provider failure is wrapped into.
// StatusCode carries an HTTP-status-like code (0 when the request never got
// a response), Body the raw provider payload when one was available, so
// callers can branch on status without knowing transport details.
type APIError struct {
	StatusCode int
	Message    string
	Body       json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the failure class is transient: network errors,
// 5xx responses, and 429 rate limits. Other 4xx responses indicate a
// rejected request and must not be retried.
func (e *APIError) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return e.StatusCode >= 500
}

// Unavailable reports whether the failure means the provider could not be
// reached or kept failing transiently, as opposed to rejecting the request.
func (e *APIError) Unavailable() bool {
	return e.Retryable()
}

// AsAPIError unwraps err into an *APIError if one is in the chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
