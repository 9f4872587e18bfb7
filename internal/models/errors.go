package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrWalletAlreadyExists is the storage conflict for a second wallet of the same user.
	ErrWalletAlreadyExists = errors.New("WALLET_ALREADY_EXISTS")
	ErrAlreadyOnWaitlist   = errors.New("already on waitlist")

	// ErrLedgerTransient needs operator intervention; it is never retried automatically.
	ErrLedgerTransient    = errors.New("ledger failure")
	ErrLedgerUnderfunded  = fmt.Errorf("%w: operator account underfunded", ErrLedgerTransient)
	ErrLedgerSignature    = fmt.Errorf("%w: signer misconfigured", ErrLedgerTransient)
	ErrLedgerUnavailable  = fmt.Errorf("%w: ledger unavailable", ErrLedgerTransient)
	ErrLedgerNotConnected = errors.New("ledger client is not connected")

	ErrMessagingFailure = errors.New("messaging failure")

	ErrInvalidToken = errors.New("invalid or expired claim token")
	// ErrTokenExpired is only returned for authentic tokens and still matches ErrInvalidToken.
	ErrTokenExpired = fmt.Errorf("%w: expired", ErrInvalidToken)
)
