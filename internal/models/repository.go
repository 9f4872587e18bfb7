package models

import (
	"context"
	"time"
)

type Repository interface {
	CreateWallet(ctx context.Context, wallet *Wallet) error
	GetWallet(ctx context.Context, externalUserID string) (*Wallet, error)
	HasWallet(ctx context.Context, externalUserID string) (bool, error)
	CountWalletsSince(ctx context.Context, since time.Time) (int64, error)

	MarkClaimLinkGenerated(ctx context.Context, externalUserID string) error
	MarkFirstMessageSent(ctx context.Context, externalUserID string) error
	MarkFirstMessageFailed(ctx context.Context, externalUserID string, at time.Time) error
	MarkSecondMessageScheduled(ctx context.Context, externalUserID string, at time.Time) error
	MarkSecondMessageSent(ctx context.Context, externalUserID string) error
	MarkSecondMessageFailed(ctx context.Context, externalUserID string, at time.Time) error
	MarkClaimAccessed(ctx context.Context, externalUserID string, at time.Time) error
	MarkPreEventSent(ctx context.Context, externalUserID string, at time.Time) error
	MarkPostEventSent(ctx context.Context, externalUserID string, at time.Time) error
	MarkFunded(ctx context.Context, externalUserID string) error

	// Campaign scans page by id: pass the last id seen, 0 for the first page.
	ListPreEventCandidates(ctx context.Context, afterID int64, limit int) ([]*Wallet, error)
	ListPostEventCandidates(ctx context.Context, afterID int64, limit int) ([]*Wallet, error)
	ListUnfundedOnChainWallets(ctx context.Context, afterID int64, limit int) ([]*Wallet, error)

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	UpsertProcessedEvent(ctx context.Context, event *ProcessedEvent) error
	GetProcessedEvent(ctx context.Context, eventID string) (*ProcessedEvent, error)
	DeleteProcessedEventsBefore(ctx context.Context, before time.Time) (int64, error)

	CountRateLimitRecords(ctx context.Context, actorID, action string, since time.Time) (int64, error)
	AddRateLimitRecord(ctx context.Context, record *RateLimitRecord) error
	DeleteRateLimitRecordsBefore(ctx context.Context, before time.Time) (int64, error)

	AddAuditEntry(ctx context.Context, entry *AuditEntry) error
	AddToWaitlist(ctx context.Context, entry *WaitlistEntry) error

	AcquireLock(ctx context.Context, name, instanceID string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, instanceID string) error

	DeliveryStats(ctx context.Context, since time.Time) (*DeliveryStats, error)

	Close() error
}
