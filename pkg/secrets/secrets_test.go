package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "agegate/pkg/domain-errors"
)

func TestGenerateHashVerify(t *testing.T) {
	secret, err := Generate()
	require.NoError(t, err)
	assert.NotEmpty(t, secret)

	other, err := Generate()
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)

	hash, err := Hash(secret)
	require.NoError(t, err)

	assert.NoError(t, Verify(secret, hash))

	err = Verify("wrong-secret", hash)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestHashRejectsEmptySecret(t *testing.T) {
	_, err := Hash("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
