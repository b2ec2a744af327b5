package apierror

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/golden-vcr/openapi-go/hmac"
)

// detailed pairs a Code with a message that's more specific than the code's default
type detailed struct {
	code    *Code
	message string
}

func (e *detailed) Error() string { return "[" + e.code.code + "] " + e.message }
func (e *detailed) Unwrap() error { return e.code }

// New returns an error that reports code with a specific message
func New(code *Code, message string) error {
	return &detailed{code: code, message: message}
}

// FromError resolves the Code and message that should be reported for err. Signature
// verification failures map onto the AUTH_* codes; anything unrecognized is reported
// as a system error, without leaking its message.
func FromError(err error) (*Code, string) {
	var d *detailed
	if errors.As(err, &d) {
		return d.code, d.message
	}
	var code *Code
	if errors.As(err, &code) {
		return code, code.message
	}

	switch {
	case errors.Is(err, hmac.ErrMissingHeaders):
		return ErrAuthFailed, "Missing required headers"
	case errors.Is(err, hmac.ErrUnknownApp):
		return ErrAuthFailed, "Invalid AppID or Secret"
	case errors.Is(err, hmac.ErrMalformedTimestamp), errors.Is(err, hmac.ErrTimestampExpired):
		return ErrTokenExpired, ErrTokenExpired.message
	case errors.Is(err, hmac.ErrNonceReused):
		return ErrNonceUsed, ErrNonceUsed.message
	case errors.Is(err, hmac.ErrMalformedQuery):
		return ErrParamInvalid, "Query parameters must not be repeated"
	case errors.Is(err, hmac.ErrVerificationFailed):
		return ErrSignatureInvalid, ErrSignatureInvalid.message
	}
	return ErrSystemError, ErrSystemError.message
}

// Envelope is the JSON body returned by every gateway endpoint
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
	Total   *int64 `json:"total,omitempty"`
}

// Write responds to an HTTP request with the envelope describing err
func Write(w http.ResponseWriter, err error) {
	code, message := FromError(err)
	WriteJSON(w, code.httpStatus, Envelope{
		Code:    code.httpStatus,
		Message: message,
		Error:   code.code,
	})
}

// WriteJSON responds with the given status and a JSON-encoded envelope
func WriteJSON(w http.ResponseWriter, status int, envelope Envelope) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope)
}
