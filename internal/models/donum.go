package models

import (
	"context"
	"time"
)

// DonumI is the application surface used by the HTTP API.
type DonumI interface {
	// OpenClaim decrypts a claim token. Expired tokens yield ErrTokenExpired,
	// everything else that is not a valid token yields ErrInvalidToken.
	OpenClaim(token string) (*Claim, error)
	// RecordClaimAccess marks the first retrieval of the wallet's claim. Best effort.
	RecordClaimAccess(ctx context.Context, externalUserID string, at time.Time)
	DeliveryStats(ctx context.Context) (*DeliveryStats, error)
}

// APIServer is the HTTP surface of the service.
type APIServer interface {
	Start()
	Shutdown() error
}
