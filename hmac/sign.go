package hmac

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Credential identifies an application and holds the secret it shares with the server.
// A Credential is immutable once constructed, and its secret is redacted whenever the
// value is printed or logged.
type Credential struct {
	AppId     string
	AppSecret string
}

// NewCredential validates and returns a Credential
func NewCredential(appId, appSecret string) (Credential, error) {
	if appId == "" {
		return Credential{}, &ConfigurationError{Field: "app id"}
	}
	if appSecret == "" {
		return Credential{}, &ConfigurationError{Field: "app secret"}
	}
	return Credential{AppId: appId, AppSecret: appSecret}, nil
}

func (c Credential) String() string {
	return fmt.Sprintf("Credential{AppId: %q, AppSecret: <redacted>}", c.AppId)
}

func (c Credential) GoString() string {
	return c.String()
}

func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(slog.String("appId", c.AppId))
}

// Signature carries the values that accompany a single signed request: the app id,
// timestamp and nonce that were used to produce it, and the resulting hex digest
type Signature struct {
	AppId     string
	Timestamp int64
	Nonce     string
	Value     string
}

// Apply sets the four signature headers on h
func (s Signature) Apply(h http.Header) {
	h.Set(HeaderAppId, s.AppId)
	h.Set(HeaderTimestamp, strconv.FormatInt(s.Timestamp, 10))
	h.Set(HeaderNonce, s.Nonce)
	h.Set(HeaderSignature, s.Value)
}

// Header returns a new http.Header containing only the signature headers
func (s Signature) Header() http.Header {
	h := make(http.Header, 4)
	s.Apply(h)
	return h
}

// ComputeSignature returns the lower-case hex HMAC-SHA256 of canonicalRequest, keyed by
// the raw bytes of secret
func ComputeSignature(canonicalRequest, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(canonicalRequest))
	return hex.EncodeToString(h.Sum(nil))
}

type Signer interface {
	// SignRequest generates a fresh timestamp and nonce and signs req with them
	SignRequest(req Request) (Signature, error)

	// Sign signs an outbound HTTP request whose payload is body, rewriting its raw query
	// string into canonical form and setting the signature headers in place
	Sign(req *http.Request, body []byte) (*http.Request, error)
}

// SignerOption customizes the sources of time and randomness used by a Signer
type SignerOption func(s *signer)

// WithClock overrides the function used to read the current time
func WithClock(now func() time.Time) SignerOption {
	return func(s *signer) {
		s.now = now
	}
}

// WithNonceSource overrides the function used to generate nonces
func WithNonceSource(nonce func() (string, error)) SignerOption {
	return func(s *signer) {
		s.nonce = nonce
	}
}

func NewSigner(credential Credential, opts ...SignerOption) Signer {
	s := &signer{
		credential: credential,
		now:        time.Now,
		nonce:      NewNonce,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type signer struct {
	credential Credential
	now        func() time.Time
	nonce      func() (string, error)
}

func (s *signer) SignRequest(req Request) (Signature, error) {
	timestamp := s.now().Unix()
	nonce, err := s.nonce()
	if err != nil {
		return Signature{}, &ConfigurationError{Field: "nonce source", Err: err}
	}

	canonicalRequest := Canonicalize(req, timestamp, nonce)
	return Signature{
		AppId:     s.credential.AppId,
		Timestamp: timestamp,
		Nonce:     nonce,
		Value:     ComputeSignature(canonicalRequest, s.credential.AppSecret),
	}, nil
}

func (s *signer) Sign(req *http.Request, body []byte) (*http.Request, error) {
	query, err := FlattenQuery(req.URL.Query())
	if err != nil {
		return nil, &EncodingError{Err: err}
	}

	sig, err := s.SignRequest(Request{
		Method: req.Method,
		Path:   req.URL.Path,
		Query:  query,
		Body:   body,
	})
	if err != nil {
		return nil, err
	}

	req.URL.RawQuery = CanonicalQuery(query)
	sig.Apply(req.Header)
	return req, nil
}

var _ Signer = (*signer)(nil)
