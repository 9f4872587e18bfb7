package validation

import (
	"fmt"
	"regexp"
)

var (
	externalIDRe = regexp.MustCompile(`^-?[0-9]{1,20}$`)
	tokenRe      = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

const (
	minClaimTokenLen = 40
	maxClaimTokenLen = 4096
)

// ValidateExternalUserID checks a numeric platform user id.
func ValidateExternalUserID(id string) error {
	if !externalIDRe.MatchString(id) {
		return fmt.Errorf("invalid external user id %q", id)
	}
	return nil
}

// LooksLikeClaimToken is a cheap shape check done before any decryption.
func LooksLikeClaimToken(token string) bool {
	if len(token) < minClaimTokenLen || len(token) > maxClaimTokenLen {
		return false
	}
	return tokenRe.MatchString(token)
}
