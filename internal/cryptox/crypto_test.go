package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenSecret(t *testing.T) {
	sealed, err := SealSecret("private-key-hex", "password")
	require.NoError(t, err)
	assert.Len(t, strings.Split(sealed, ":"), 3)
	assert.NotContains(t, sealed, "private-key-hex")

	secret, err := OpenSecret(sealed, "password")
	require.NoError(t, err)
	assert.Equal(t, "private-key-hex", secret)

	_, err = OpenSecret(sealed, "wrong")
	assert.Error(t, err)

	_, err = OpenSecret("nope", "password")
	assert.Error(t, err)
}

func TestSealUsesFreshSalt(t *testing.T) {
	a, err := SealSecret("s", "p")
	require.NoError(t, err)
	b, err := SealSecret("s", "p")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRandomHexAndHash(t *testing.T) {
	pw, err := RandomHex(12)
	require.NoError(t, err)
	assert.Len(t, pw, 24)

	h := HashPassword(pw)
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashPassword(pw))
	assert.NotEqual(t, h, HashPassword(pw+"x"))
}
