package hmac

import (
	"context"
	"crypto/hmac"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// SecretResolver looks up the shared secret for an application. Implementations should
// return ErrUnknownApp if no such application exists.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, appId string) (string, error)
}

// NonceStore records nonces that have been accepted, so that a signed request can't be
// replayed. CheckAndRecord must atomically record the (appId, nonce) pair for at least
// ttl, returning ErrNonceReused if that pair has already been recorded.
type NonceStore interface {
	CheckAndRecord(ctx context.Context, appId, nonce string, ttl time.Duration) error
}

// StaticSecrets is a SecretResolver backed by a fixed map of app IDs to secrets
type StaticSecrets map[string]string

func (m StaticSecrets) ResolveSecret(ctx context.Context, appId string) (string, error) {
	secret, ok := m[appId]
	if !ok || secret == "" {
		return "", ErrUnknownApp
	}
	return secret, nil
}

// Insert parses and adds entries in the form 'app-id=secret'. The first entry that
// can't be parsed is returned as an error.
func (m StaticSecrets) Insert(entries []string) error {
	for _, entry := range entries {
		appId, secret, ok := strings.Cut(entry, "=")
		if !ok || appId == "" || secret == "" {
			return &ConfigurationError{Field: "app secrets", Err: fmt.Errorf("malformed entry for '%s'", appId)}
		}
		m[appId] = secret
	}
	return nil
}

var _ SecretResolver = StaticSecrets(nil)

// ParseSignature reads the four signature headers via get (e.g. http.Header.Get),
// requiring all of them to be present and the timestamp to be a plain decimal integer
func ParseSignature(get func(key string) string) (Signature, error) {
	appId := get(HeaderAppId)
	timestamp := get(HeaderTimestamp)
	nonce := get(HeaderNonce)
	value := get(HeaderSignature)
	if appId == "" || timestamp == "" || nonce == "" || value == "" {
		return Signature{}, ErrMissingHeaders
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil || strconv.FormatInt(ts, 10) != timestamp {
		return Signature{}, ErrMalformedTimestamp
	}

	return Signature{
		AppId:     appId,
		Timestamp: ts,
		Nonce:     nonce,
		Value:     value,
	}, nil
}

type Verifier interface {
	// Verify checks that sig is a valid, fresh signature for req
	Verify(ctx context.Context, req Request, sig Signature) error

	// VerifyHTTP parses the signature headers from an inbound HTTP request and verifies
	// them against its method, path, query, and the given body
	VerifyHTTP(req *http.Request, body []byte) (Signature, error)
}

// VerifierOption customizes a Verifier
type VerifierOption func(v *verifier)

// WithTimestampWindow sets how far a request's timestamp may be from the current time
func WithTimestampWindow(window time.Duration) VerifierOption {
	return func(v *verifier) {
		v.window = window
	}
}

// WithNonceStore enables replay protection, recording each accepted nonce for ttl
func WithNonceStore(store NonceStore, ttl time.Duration) VerifierOption {
	return func(v *verifier) {
		v.nonces = store
		v.nonceTTL = ttl
	}
}

// WithVerifierClock overrides the function used to read the current time
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *verifier) {
		v.now = now
	}
}

func NewVerifier(secrets SecretResolver, opts ...VerifierOption) Verifier {
	v := &verifier{
		secrets:  secrets,
		window:   DefaultTimestampWindow,
		nonceTTL: DefaultNonceTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type verifier struct {
	secrets  SecretResolver
	nonces   NonceStore
	window   time.Duration
	nonceTTL time.Duration
	now      func() time.Time
}

func (v *verifier) Verify(ctx context.Context, req Request, sig Signature) error {
	signedAt := time.Unix(sig.Timestamp, 0)
	drift := v.now().Sub(signedAt)
	if drift > v.window || drift < -v.window {
		return ErrTimestampExpired
	}

	secret, err := v.secrets.ResolveSecret(ctx, sig.AppId)
	if err != nil {
		if errors.Is(err, ErrUnknownApp) {
			return ErrUnknownApp
		}
		return fmt.Errorf("failed to resolve secret for app '%s': %w", sig.AppId, err)
	}

	expected := ComputeSignature(Canonicalize(req, sig.Timestamp, sig.Nonce), secret)
	if !hmac.Equal([]byte(sig.Value), []byte(expected)) {
		return ErrSignatureMismatch
	}

	// Only a request with a valid signature may consume a nonce
	if v.nonces != nil {
		if err := v.nonces.CheckAndRecord(ctx, sig.AppId, sig.Nonce, v.nonceTTL); err != nil {
			if errors.Is(err, ErrNonceReused) {
				return ErrNonceReused
			}
			return fmt.Errorf("failed to record nonce: %w", err)
		}
	}
	return nil
}

func (v *verifier) VerifyHTTP(req *http.Request, body []byte) (Signature, error) {
	sig, err := ParseSignature(req.Header.Get)
	if err != nil {
		return Signature{}, err
	}

	query, err := FlattenQuery(req.URL.Query())
	if err != nil {
		return sig, err
	}

	err = v.Verify(req.Context(), Request{
		Method: req.Method,
		Path:   req.URL.Path,
		Query:  query,
		Body:   body,
	}, sig)
	return sig, err
}

var _ Verifier = (*verifier)(nil)
