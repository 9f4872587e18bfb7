package models

import (
	"context"
	"math/big"
)

// Ledger represents the blockchain collaborator.
type Ledger interface {
	// Configured reports whether on-chain account creation is available at all.
	Configured() bool
	GenerateKey() (*KeyPair, error)
	// CreateAccount activates the address on chain and returns its on-chain id.
	// Failures are typed as ErrLedgerTransient.
	CreateAccount(ctx context.Context, address string) (string, error)
	Balance(ctx context.Context, address string) (*big.Int, error)
}
