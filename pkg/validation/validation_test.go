package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress("cb"+strings.Repeat("0", 42)))
	assert.NoError(t, ValidateAddress("0xAB12"+strings.Repeat("F", 40)))
	assert.NoError(t, ValidateAddress("ce99"+strings.Repeat("a", 40)))

	assert.Error(t, ValidateAddress(""))
	assert.Error(t, ValidateAddress("cb00"))
	assert.Error(t, ValidateAddress("zz"+strings.Repeat("0", 42)))
	assert.Error(t, ValidateAddress("cbaa"+strings.Repeat("0", 40)))
	assert.Error(t, ValidateAddress("cb00"+strings.Repeat("g", 40)))
}

func TestValidateExternalUserID(t *testing.T) {
	assert.NoError(t, ValidateExternalUserID("123456"))
	assert.NoError(t, ValidateExternalUserID("-1001"))
	assert.Error(t, ValidateExternalUserID("abc"))
	assert.Error(t, ValidateExternalUserID(""))
}

func TestLooksLikeClaimToken(t *testing.T) {
	assert.True(t, LooksLikeClaimToken(strings.Repeat("Ab_-", 20)))
	assert.False(t, LooksLikeClaimToken("short"))
	assert.False(t, LooksLikeClaimToken(strings.Repeat("a+/=", 20)))
	assert.False(t, LooksLikeClaimToken(strings.Repeat("a", 5000)))
}
