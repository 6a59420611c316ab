package portal

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/alem-hub/schoolportal/internal/domain/shared"
)

// errorBody is the error envelope the portal returns alongside a 4xx/5xx status.
type errorBody struct {
	Success   bool   `json:"success"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// APIError is returned for every response with status >= 400 other than 429.
type APIError struct {
	StatusCode int
	Endpoint   string
	Code       string
	Message    string
	RequestID  string
}

func newAPIError(status int, endpoint string, body []byte) *APIError {
	e := &APIError{StatusCode: status, Endpoint: endpoint}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		e.Code = parsed.Code
		e.RequestID = parsed.RequestID
		e.Message = parsed.Message
		if e.Message == "" {
			e.Message = parsed.Error
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("portal api %s: status %d [%s]: %s", e.Endpoint, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("portal api %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// Is maps the status code onto the shared error kinds.
func (e *APIError) Is(target error) bool {
	switch target {
	case shared.ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case shared.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case shared.ErrServiceUnavailable:
		return e.IsServerError()
	}
	return false
}

// IsServerError reports a 5xx status.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= http.StatusInternalServerError
}
