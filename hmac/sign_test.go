package hmac

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const (
	testAppId     = "test_app_001"
	testAppSecret = "test_secret_123456"
	testNonce     = "0123456789abcdef0123456789abcdef"
	testTimestamp = int64(1700000000)
)

func newTestSigner(t *testing.T) Signer {
	credential, err := NewCredential(testAppId, testAppSecret)
	assert.NoError(t, err)
	return NewSigner(credential,
		WithClock(func() time.Time { return time.Unix(testTimestamp, 0) }),
		WithNonceSource(func() (string, error) { return testNonce, nil }),
	)
}

func Test_ComputeSignature(t *testing.T) {
	canonicalRequest := "GET\n/openapi/v1/entities/product\npage=1&pageSize=10\ne3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855\n1700000000\n0123456789abcdef0123456789abcdef"
	got := ComputeSignature(canonicalRequest, testAppSecret)
	assert.Equal(t, "517bbe2d9dfb591e680014438ba2bf47e4880e5edb644116731d69bcceec400b", got)
	assert.Len(t, got, 64)
}

func Test_NewCredential(t *testing.T) {
	t.Run("app id is required", func(t *testing.T) {
		_, err := NewCredential("", "secret")
		var configErr *ConfigurationError
		assert.True(t, errors.As(err, &configErr))
		assert.Equal(t, "app id", configErr.Field)
	})
	t.Run("app secret is required", func(t *testing.T) {
		_, err := NewCredential("app", "")
		var configErr *ConfigurationError
		assert.True(t, errors.As(err, &configErr))
		assert.Equal(t, "app secret", configErr.Field)
	})
	t.Run("secret is never printed or logged", func(t *testing.T) {
		credential, err := NewCredential(testAppId, testAppSecret)
		assert.NoError(t, err)
		assert.NotContains(t, fmt.Sprintf("%v %+v %#v %s", credential, credential, credential, credential), testAppSecret)

		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		logger.Info("Signing", "credential", credential)
		assert.Contains(t, buf.String(), testAppId)
		assert.NotContains(t, buf.String(), testAppSecret)
	})
}

func Test_SignRequest(t *testing.T) {
	s := newTestSigner(t)

	t.Run("list request produces the recorded header values", func(t *testing.T) {
		sig, err := s.SignRequest(Request{
			Method: http.MethodGet,
			Path:   "/openapi/v1/entities/product",
			Query:  map[string]string{"page": "1", "pageSize": "10"},
		})
		assert.NoError(t, err)

		h := sig.Header()
		assert.Equal(t, "test_app_001", h.Get(HeaderAppId))
		assert.Equal(t, "1700000000", h.Get(HeaderTimestamp))
		assert.Equal(t, testNonce, h.Get(HeaderNonce))
		assert.Equal(t, "517bbe2d9dfb591e680014438ba2bf47e4880e5edb644116731d69bcceec400b", h.Get(HeaderSignature))
	})

	t.Run("changing any input changes the signature", func(t *testing.T) {
		base := Request{
			Method: http.MethodPost,
			Path:   "/openapi/v1/entities/product",
			Query:  map[string]string{"page": "1"},
			Body:   []byte(`{"name":"Widget"}`),
		}
		baseline := ComputeSignature(Canonicalize(base, testTimestamp, testNonce), testAppSecret)

		variants := map[string]string{
			"method":    ComputeSignature(Canonicalize(Request{Method: "PUT", Path: base.Path, Query: base.Query, Body: base.Body}, testTimestamp, testNonce), testAppSecret),
			"path":      ComputeSignature(Canonicalize(Request{Method: base.Method, Path: "/openapi/v1/entities/producT", Query: base.Query, Body: base.Body}, testTimestamp, testNonce), testAppSecret),
			"query":     ComputeSignature(Canonicalize(Request{Method: base.Method, Path: base.Path, Query: map[string]string{"page": "2"}, Body: base.Body}, testTimestamp, testNonce), testAppSecret),
			"body":      ComputeSignature(Canonicalize(Request{Method: base.Method, Path: base.Path, Query: base.Query, Body: []byte(`{"name":"Widgel"}`)}, testTimestamp, testNonce), testAppSecret),
			"timestamp": ComputeSignature(Canonicalize(base, testTimestamp+1, testNonce), testAppSecret),
			"nonce":     ComputeSignature(Canonicalize(base, testTimestamp, "0123456789abcdef0123456789abcdee"), testAppSecret),
			"secret":    ComputeSignature(Canonicalize(base, testTimestamp, testNonce), "test_secret_123457"),
		}
		for name, sig := range variants {
			assert.NotEqual(t, baseline, sig, "changing %s should change the signature", name)
		}
	})

	t.Run("a failing nonce source is a configuration error", func(t *testing.T) {
		credential, err := NewCredential(testAppId, testAppSecret)
		assert.NoError(t, err)
		s := NewSigner(credential, WithNonceSource(func() (string, error) {
			return "", errors.New("entropy unavailable")
		}))
		_, err = s.SignRequest(Request{Method: http.MethodGet, Path: "/"})
		var configErr *ConfigurationError
		assert.True(t, errors.As(err, &configErr))
	})

	t.Run("each call uses a fresh nonce by default", func(t *testing.T) {
		credential, err := NewCredential(testAppId, testAppSecret)
		assert.NoError(t, err)
		s := NewSigner(credential)
		req := Request{Method: http.MethodGet, Path: "/"}
		a, err := s.SignRequest(req)
		assert.NoError(t, err)
		b, err := s.SignRequest(req)
		assert.NoError(t, err)
		assert.NotEqual(t, a.Nonce, b.Nonce)
		assert.NotEqual(t, a.Value, b.Value)
	})
}

func Test_Sign(t *testing.T) {
	s := newTestSigner(t)

	t.Run("headers are populated and query is rewritten in canonical form", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "https://api.example.com/openapi/v1/entities/product?pageSize=10&page=1", nil)
		assert.NoError(t, err)
		req, err = s.Sign(req, nil)
		assert.NoError(t, err)

		assert.Equal(t, "page=1&pageSize=10", req.URL.RawQuery)
		assert.Equal(t, testAppId, req.Header.Get(HeaderAppId))
		assert.Equal(t, "1700000000", req.Header.Get(HeaderTimestamp))
		assert.Equal(t, testNonce, req.Header.Get(HeaderNonce))
		assert.Equal(t, "517bbe2d9dfb591e680014438ba2bf47e4880e5edb644116731d69bcceec400b", req.Header.Get(HeaderSignature))
	})

	t.Run("body is covered by the signature", func(t *testing.T) {
		body := []byte(`{"name":"Widget","price":10}`)
		req, err := http.NewRequest(http.MethodPost, "https://api.example.com/openapi/v1/entities/product", bytes.NewReader(body))
		assert.NoError(t, err)
		req, err = s.Sign(req, body)
		assert.NoError(t, err)

		canonicalRequest := Canonicalize(Request{Method: http.MethodPost, Path: "/openapi/v1/entities/product", Body: body}, testTimestamp, testNonce)
		assert.Equal(t, ComputeSignature(canonicalRequest, testAppSecret), req.Header.Get(HeaderSignature))
	})

	t.Run("repeated query keys are an encoding error", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "https://api.example.com/openapi/v1/entities/product?id=1&id=2", nil)
		assert.NoError(t, err)
		_, err = s.Sign(req, nil)
		var encodingErr *EncodingError
		assert.True(t, errors.As(err, &encodingErr))
		assert.Empty(t, req.Header.Get(HeaderSignature))
	})
}
