package hmac

import (
	"errors"
	"fmt"
)

// ConfigurationError indicates that signing can't proceed at all: a credential is
// missing or invalid, or a required primitive (e.g. the random source used for nonces)
// is unavailable. It's never worth retrying an operation that fails this way.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid configuration: %s", e.Field)
	}
	return fmt.Sprintf("invalid configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// EncodingError indicates that a request could not be reduced to a deterministic byte
// representation, so no signature was produced for it
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("failed to encode request: %v", e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// ErrVerificationFailed is wrapped by every error that indicates a request's signature
// could not be verified
var ErrVerificationFailed = errors.New("verification failed")

var (
	ErrMissingHeaders     = fmt.Errorf("%w: missing required signature headers", ErrVerificationFailed)
	ErrMalformedTimestamp = fmt.Errorf("%w: malformed timestamp", ErrVerificationFailed)
	ErrTimestampExpired   = fmt.Errorf("%w: timestamp outside of allowed window", ErrVerificationFailed)
	ErrUnknownApp         = fmt.Errorf("%w: unknown app id", ErrVerificationFailed)
	ErrSignatureMismatch  = fmt.Errorf("%w: signature mismatch", ErrVerificationFailed)
	ErrNonceReused        = fmt.Errorf("%w: nonce already used", ErrVerificationFailed)
	ErrMalformedQuery     = fmt.Errorf("%w: query parameter repeated", ErrVerificationFailed)
)
