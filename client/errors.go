package client

import (
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// TransportError indicates that a request could not be sent, or its response could not
// be read
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is returned when the server responds with a non-2xx status. Code is the
// error code from the response envelope (e.g. "AUTH_SIGNATURE_INVALID"), if present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("openapi error %d [%s]: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("openapi error %d: %s", e.StatusCode, e.Message)
}

func parseAPIError(statusCode int, body []byte) *APIError {
	e := &APIError{StatusCode: statusCode}
	if gjson.ValidBytes(body) {
		e.Code = gjson.GetBytes(body, "error").String()
		e.Message = gjson.GetBytes(body, "message").String()
	}
	if e.Message == "" {
		e.Message = http.StatusText(statusCode)
	}
	return e
}
