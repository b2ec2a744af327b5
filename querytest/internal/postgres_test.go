package impl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_GetPostgresHostPort(t *testing.T) {
	for _, name := range []string{"openapi-go", "module", "x"} {
		port := GetPostgresHostPort(name)
		assert.GreaterOrEqual(t, port, PostgresHostPortMin)
		assert.LessOrEqual(t, port, PostgresHostPortMax)
		assert.Equal(t, port, GetPostgresHostPort(name))
	}
}

func Test_firstContainerId(t *testing.T) {
	id, ok := firstContainerId([]byte("0123456789ab\n"))
	assert.True(t, ok)
	assert.Equal(t, ContainerId("0123456789ab"), id)

	_, ok = firstContainerId([]byte(""))
	assert.False(t, ok)

	_, ok = firstContainerId([]byte("Error: no such thing\n"))
	assert.False(t, ok)
}
