package validation

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// addressLen is the length of a Core address without 0x: network prefix (2),
// check digits (2) and the 20 byte account hash (40).
const addressLen = 44

// networkPrefixes are the address prefixes of mainnet, the Devin testnet and private networks.
var networkPrefixes = map[string]bool{"cb": true, "ab": true, "ce": true}

// ValidateAddress validates the shape of a ledger address generated for a wallet.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}

	normalized := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X"))
	if len(normalized) != addressLen {
		return fmt.Errorf("invalid address length: expected %d characters (without 0x), got %d", addressLen, len(normalized))
	}
	if !networkPrefixes[normalized[:2]] {
		return fmt.Errorf("unknown network prefix %q", normalized[:2])
	}
	for _, c := range normalized[2:4] {
		if c < '0' || c > '9' {
			return fmt.Errorf("invalid check digits %q", normalized[2:4])
		}
	}
	if _, err := hex.DecodeString(normalized[4:]); err != nil {
		return fmt.Errorf("invalid hex address: %w", err)
	}

	return nil
}
