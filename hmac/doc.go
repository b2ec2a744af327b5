// Package hmac implements the request-signing scheme used to authenticate calls against
// the OpenAPI entity service: each outbound request is reduced to a canonical string
// (method, path, sorted query, body hash, timestamp, and nonce), and that string is
// signed with HMAC-SHA256 using the calling application's shared secret. The resulting
// signature travels in the X-Sign header, alongside X-App-Id, X-Timestamp and X-Nonce.
//
// Clients use hmac.Signer to attach those headers to a request. The server side uses
// hmac.Verifier with the same secret to rebuild the canonical string, check that the
// signatures match, reject stale timestamps, and (given a NonceStore) refuse to accept
// the same nonce twice.
package hmac
