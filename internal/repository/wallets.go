package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/core-coin/donum/internal/models"
)

var _ models.Repository = (*DB)(nil)

// CreateWallet inserts the wallet. The unique index on external_user_id makes a
// concurrent second insert fail with models.ErrWalletAlreadyExists.
func (db *DB) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	if wallet.CreatedAt.IsZero() {
		wallet.CreatedAt = time.Now().UTC()
	}
	if err := db.Conn.WithContext(ctx).Create(wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.ErrWalletAlreadyExists
		}
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

func (db *DB) GetWallet(ctx context.Context, externalUserID string) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := db.Conn.WithContext(ctx).Where("external_user_id = ?", externalUserID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (db *DB) HasWallet(ctx context.Context, externalUserID string) (bool, error) {
	var count int64
	if err := db.Conn.WithContext(ctx).Model(&models.Wallet{}).Where("external_user_id = ?", externalUserID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check if wallet exists: %w", err)
	}
	return count > 0, nil
}

func (db *DB) CountWalletsSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	if err := db.Conn.WithContext(ctx).Model(&models.Wallet{}).Where("created_at >= ?", since.UTC()).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count wallets: %w", err)
	}
	return count, nil
}

// setFlag flips a boolean flag forward. Flags are never reset.
func (db *DB) setFlag(ctx context.Context, externalUserID, column string) error {
	if err := db.Conn.WithContext(ctx).Model(&models.Wallet{}).
		Where("external_user_id = ?", externalUserID).
		Update(column, true).Error; err != nil {
		return fmt.Errorf("failed to set %s: %w", column, err)
	}
	return nil
}

// setTimeOnce records a timestamp only if none was recorded before.
func (db *DB) setTimeOnce(ctx context.Context, externalUserID, column string, at time.Time) error {
	if err := db.Conn.WithContext(ctx).Model(&models.Wallet{}).
		Where("external_user_id = ? AND "+column+" IS NULL", externalUserID).
		Update(column, at.UTC()).Error; err != nil {
		return fmt.Errorf("failed to set %s: %w", column, err)
	}
	return nil
}

func (db *DB) MarkClaimLinkGenerated(ctx context.Context, externalUserID string) error {
	return db.setFlag(ctx, externalUserID, "claim_link_generated")
}

func (db *DB) MarkFirstMessageSent(ctx context.Context, externalUserID string) error {
	return db.setFlag(ctx, externalUserID, "first_message_sent")
}

func (db *DB) MarkFirstMessageFailed(ctx context.Context, externalUserID string, at time.Time) error {
	return db.setTimeOnce(ctx, externalUserID, "first_message_failed_at", at)
}

func (db *DB) MarkSecondMessageScheduled(ctx context.Context, externalUserID string, at time.Time) error {
	return db.setTimeOnce(ctx, externalUserID, "second_message_scheduled_at", at)
}

func (db *DB) MarkSecondMessageSent(ctx context.Context, externalUserID string) error {
	return db.setFlag(ctx, externalUserID, "second_message_sent")
}

func (db *DB) MarkSecondMessageFailed(ctx context.Context, externalUserID string, at time.Time) error {
	return db.setTimeOnce(ctx, externalUserID, "second_message_failed_at", at)
}

func (db *DB) MarkClaimAccessed(ctx context.Context, externalUserID string, at time.Time) error {
	return db.setTimeOnce(ctx, externalUserID, "claim_accessed_at", at)
}

func (db *DB) MarkPreEventSent(ctx context.Context, externalUserID string, at time.Time) error {
	return db.setTimeOnce(ctx, externalUserID, "pre_event_sent_at", at)
}

func (db *DB) MarkPostEventSent(ctx context.Context, externalUserID string, at time.Time) error {
	return db.setTimeOnce(ctx, externalUserID, "post_event_sent_at", at)
}

func (db *DB) MarkFunded(ctx context.Context, externalUserID string) error {
	return db.setFlag(ctx, externalUserID, "is_funded")
}

func (db *DB) listWallets(ctx context.Context, afterID int64, limit int, query string, args ...interface{}) ([]*models.Wallet, error) {
	var wallets []*models.Wallet
	if err := db.Conn.WithContext(ctx).
		Where("id > ?", afterID).
		Where(query, args...).
		Order("id ASC").
		Limit(limit).
		Find(&wallets).Error; err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	return wallets, nil
}

// ListPreEventCandidates returns wallets that got no reminder yet and are not funded.
func (db *DB) ListPreEventCandidates(ctx context.Context, afterID int64, limit int) ([]*models.Wallet, error) {
	return db.listWallets(ctx, afterID, limit, "pre_event_sent_at IS NULL AND is_funded = ?", false)
}

// ListPostEventCandidates returns funded wallets without a post-event confirmation.
func (db *DB) ListPostEventCandidates(ctx context.Context, afterID int64, limit int) ([]*models.Wallet, error) {
	return db.listWallets(ctx, afterID, limit, "post_event_sent_at IS NULL AND is_funded = ?", true)
}

func (db *DB) ListUnfundedOnChainWallets(ctx context.Context, afterID int64, limit int) ([]*models.Wallet, error) {
	return db.listWallets(ctx, afterID, limit, "is_funded = ? AND on_chain_id IS NOT NULL AND on_chain_id <> ''", false)
}

func (db *DB) AddAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := db.Conn.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to add audit entry: %w", err)
	}
	return nil
}

func (db *DB) AddToWaitlist(ctx context.Context, entry *models.WaitlistEntry) error {
	if entry.JoinedAt.IsZero() {
		entry.JoinedAt = time.Now().UTC()
	}
	if err := db.Conn.WithContext(ctx).Create(entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.ErrAlreadyOnWaitlist
		}
		return fmt.Errorf("failed to add to waitlist: %w", err)
	}
	return nil
}
