// Package quota enforces per-actor sliding windows and the global daily ceiling.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/core-coin/donum/internal/models"
)

// ActionCreateWallet is the counted action for wallet provisioning.
const ActionCreateWallet = "create_wallet"

type store interface {
	CountRateLimitRecords(ctx context.Context, actorID, action string, since time.Time) (int64, error)
	AddRateLimitRecord(ctx context.Context, record *models.RateLimitRecord) error
	DeleteRateLimitRecordsBefore(ctx context.Context, before time.Time) (int64, error)
	CountWalletsSince(ctx context.Context, since time.Time) (int64, error)
}

type Limiter struct {
	repo   store
	window time.Duration
	now    func() time.Time
}

func NewLimiter(repo store, window time.Duration) *Limiter {
	return &Limiter{repo: repo, window: window, now: time.Now}
}

// WithClock replaces the clock. Used in tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// CheckLimit reports whether actor may perform action once more: the number of
// records inside the trailing window must be below limit.
func (l *Limiter) CheckLimit(ctx context.Context, actorID, action string, limit int) (bool, error) {
	count, err := l.repo.CountRateLimitRecords(ctx, actorID, action, l.now().UTC().Add(-l.window))
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}
	return count < int64(limit), nil
}

// Record counts one action for actor.
func (l *Limiter) Record(ctx context.Context, actorID, action string) error {
	return l.repo.AddRateLimitRecord(ctx, &models.RateLimitRecord{
		ActorID:   actorID,
		Action:    action,
		CreatedAt: l.now().UTC(),
	})
}

// CheckDailyLimit reports whether another wallet may be created today (UTC).
func (l *Limiter) CheckDailyLimit(ctx context.Context, limit int) (bool, error) {
	remaining, err := l.RemainingToday(ctx, limit)
	if err != nil {
		return false, err
	}
	return remaining > 0, nil
}

// RemainingToday returns how many wallets may still be created today.
func (l *Limiter) RemainingToday(ctx context.Context, limit int) (int64, error) {
	count, err := l.repo.CountWalletsSince(ctx, l.StartOfDay())
	if err != nil {
		return 0, fmt.Errorf("failed to check daily limit: %w", err)
	}
	if remaining := int64(limit) - count; remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

// StartOfDay is UTC midnight of the current day.
func (l *Limiter) StartOfDay() time.Time {
	return l.now().UTC().Truncate(24 * time.Hour)
}

// Sweep removes records that fell out of the window.
func (l *Limiter) Sweep(ctx context.Context) (int64, error) {
	return l.repo.DeleteRateLimitRecordsBefore(ctx, l.now().UTC().Add(-l.window))
}
