package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAdminToken(t *testing.T) {
	a, err := GenerateAdminToken()
	require.NoError(t, err)
	b, err := GenerateAdminToken()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
	assert.True(t, TokenMatches(a, a))
}

func TestTokenMatches(t *testing.T) {
	assert.True(t, TokenMatches("secret", "secret"))
	assert.False(t, TokenMatches("secret", "Secret"))
	assert.False(t, TokenMatches("secret", "secret-longer"))
	assert.False(t, TokenMatches("", ""))
	assert.False(t, TokenMatches("secret", ""))
}
