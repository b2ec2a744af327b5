package hmac

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_NewNonce(t *testing.T) {
	format := regexp.MustCompile("^[0-9a-f]{32}$")
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		nonce, err := NewNonce()
		assert.NoError(t, err)
		if !format.MatchString(nonce) {
			t.Fatalf("nonce %q is not 32 lower-case hex characters", nonce)
		}
		if _, ok := seen[nonce]; ok {
			t.Fatalf("nonce %q was generated twice", nonce)
		}
		seen[nonce] = struct{}{}
	}
}
