// Package apierror defines the stable error codes reported by the OpenAPI gateway, each
// paired with the HTTP status it's served with, and renders them in the standard
// response envelope.
package apierror

import "net/http"

var (
	ErrAuthFailed       = &Code{"AUTH_FAILED", http.StatusUnauthorized, "Authentication failed"}
	ErrSignatureInvalid = &Code{"AUTH_SIGNATURE_INVALID", http.StatusUnauthorized, "Signature mismatch"}
	ErrTokenExpired     = &Code{"AUTH_TOKEN_EXPIRED", http.StatusUnauthorized, "Timestamp expired"}
	ErrNonceUsed        = &Code{"AUTH_NONCE_USED", http.StatusUnauthorized, "Nonce already used"}

	ErrPermissionDenied = &Code{"PERMISSION_DENIED", http.StatusForbidden, "Permission denied"}

	ErrParamMissing = &Code{"PARAM_REQUIRED_MISSING", http.StatusBadRequest, "Missing required parameter"}
	ErrParamInvalid = &Code{"PARAM_VALUE_INVALID", http.StatusBadRequest, "Invalid parameter value"}
	ErrNotFound     = &Code{"NOT_FOUND", http.StatusNotFound, "Record not found"}

	ErrSystemError = &Code{"SYSTEM_INTERNAL_ERROR", http.StatusInternalServerError, "Internal system error"}
)

// Code is an error that identifies a class of failure by a stable string, along with
// the HTTP status code and default message used when reporting it
type Code struct {
	code       string
	httpStatus int
	message    string
}

func (c *Code) Code() string    { return c.code }
func (c *Code) HTTPStatus() int { return c.httpStatus }
func (c *Code) Message() string { return c.message }
func (c *Code) Error() string   { return "[" + c.code + "] " + c.message }
func (c *Code) Is(err error) bool {
	other, ok := err.(*Code)
	return ok && other.code == c.code
}
