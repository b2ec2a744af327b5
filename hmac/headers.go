package hmac

import "time"

const (
	// HeaderAppId is the name of the header that identifies the application whose
	// secret was used to sign the request
	HeaderAppId = "X-App-Id"

	// HeaderTimestamp is the name of the header that carries the Unix time (in whole
	// seconds, as a decimal string) at which the request was signed
	HeaderTimestamp = "X-Timestamp"

	// HeaderNonce is the name of the header that carries a random, 32-character hex token
	// that's unique to each signed request
	HeaderNonce = "X-Nonce"

	// HeaderSignature is the name of the header that carries the lower-case hex
	// HMAC-SHA256 signature of the canonical request
	HeaderSignature = "X-Sign"
)

const (
	// DefaultTimestampWindow is how far a request's timestamp may drift from the
	// verifier's clock, in either direction, before the request is rejected as expired
	DefaultTimestampWindow = 5 * time.Minute

	// DefaultNonceTTL is how long a verifier remembers a nonce once it's been accepted
	DefaultNonceTTL = 10 * time.Minute
)
