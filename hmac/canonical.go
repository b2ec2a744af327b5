package hmac

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// EmptyPayloadHash is the SHA-256 digest of the empty byte string, used as the body hash
// of any request that has no body
const EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// Request describes the parts of an HTTP request that are covered by its signature
type Request struct {
	Method string
	Path   string
	Query  map[string]string
	Body   []byte
}

// Canonicalize reduces a request, along with the timestamp and nonce it's being signed
// with, to the string that's fed into HMAC:
//
//	METHOD\nPATH\nSORTED_QUERY\nBODY_HASH\nTIMESTAMP\nNONCE
//
// Method and path are used verbatim: callers are responsible for upper-casing the
// method and for passing the path exactly as it will appear on the wire.
func Canonicalize(req Request, timestamp int64, nonce string) string {
	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteByte('\n')
	b.WriteString(req.Path)
	b.WriteByte('\n')
	b.WriteString(CanonicalQuery(req.Query))
	b.WriteByte('\n')
	b.WriteString(HashPayload(req.Body))
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(timestamp, 10))
	b.WriteByte('\n')
	b.WriteString(nonce)
	return b.String()
}

// CanonicalQuery renders query parameters as key=value pairs, sorted by key and joined
// with '&'. Keys and values are percent-encoded, so the result is also the exact raw
// query string that should be sent on the wire: a client that uses it for the request
// URL can never sign something other than what the server receives.
func CanonicalQuery(query map[string]string) string {
	if len(query) == 0 {
		return ""
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(query[k]))
	}
	return b.String()
}

// HashPayload returns the lower-case hex SHA-256 digest of a request body
func HashPayload(body []byte) string {
	if len(body) == 0 {
		return EmptyPayloadHash
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// FlattenQuery converts parsed URL query values to the single-valued form that's
// covered by signatures. A key that carries more than one value can't be represented
// unambiguously, so it results in an error.
func FlattenQuery(values url.Values) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	query := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) > 1 {
			return nil, ErrMalformedQuery
		}
		if len(vs) == 1 {
			query[k] = vs[0]
		} else {
			query[k] = ""
		}
	}
	return query, nil
}
