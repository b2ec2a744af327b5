package hmac

import (
	"strings"

	"github.com/google/uuid"
)

// NewNonce returns a random 32-character lower-case hex token, suitable for use as the
// nonce of a single signed request
func NewNonce() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}
