package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/donum/internal/models"
	"github.com/core-coin/donum/pkg/logger"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "donum.db"), logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newWallet(uid string) *models.Wallet {
	return &models.Wallet{
		ExternalUserID:       uid,
		Handle:               "user_" + uid,
		SecretEncrypted:      "salt:nonce:cipher",
		RecoveryPasswordHash: "hash",
		PublicKey:            "pub",
		Address:              "addr_" + uid,
	}
}

func TestUpsertProcessedEventKeepsOneRow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertProcessedEvent(ctx, &models.ProcessedEvent{
		EventID: "e1", AuthorID: "a1", Outcome: models.OutcomeError,
	}))
	require.NoError(t, db.UpsertProcessedEvent(ctx, &models.ProcessedEvent{
		EventID: "e1", AuthorID: "a1", Outcome: models.OutcomeWalletCreated,
	}))

	var count int64
	require.NoError(t, db.Conn.Model(&models.ProcessedEvent{}).Where("event_id = ?", "e1").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	ev, err := db.GetProcessedEvent(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeWalletCreated, ev.Outcome)

	processed, err := db.IsEventProcessed(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, processed)

	processed, err = db.IsEventProcessed(ctx, "e2")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestCreateWalletConflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateWallet(ctx, newWallet("u1")))
	err := db.CreateWallet(ctx, newWallet("u1"))
	assert.ErrorIs(t, err, models.ErrWalletAlreadyExists)

	has, err := db.HasWallet(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, has)

	_, err = db.GetWallet(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestConcurrentCreateWalletSingleWinner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- db.CreateWallet(ctx, newWallet("race"))
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		if errors.Is(err, models.ErrWalletAlreadyExists) {
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, conflicts)

	var count int64
	require.NoError(t, db.Conn.Model(&models.Wallet{}).Where("external_user_id = ?", "race").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestFlagsAreMonotonic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.CreateWallet(ctx, newWallet("u1")))

	first := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	require.NoError(t, db.MarkClaimLinkGenerated(ctx, "u1"))
	require.NoError(t, db.MarkFirstMessageFailed(ctx, "u1", first))
	require.NoError(t, db.MarkFirstMessageFailed(ctx, "u1", later))
	require.NoError(t, db.MarkClaimAccessed(ctx, "u1", first))
	require.NoError(t, db.MarkClaimAccessed(ctx, "u1", later))

	w, err := db.GetWallet(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, w.ClaimLinkGenerated)
	require.NotNil(t, w.FirstMessageFailedAt)
	assert.True(t, first.Equal(*w.FirstMessageFailedAt))
	require.NotNil(t, w.ClaimAccessedAt)
	assert.True(t, first.Equal(*w.ClaimAccessedAt))
	assert.Equal(t, models.StateFirstFailed, w.DeliveryState())
}

func TestRateLimitRecordsWindow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, db.AddRateLimitRecord(ctx, &models.RateLimitRecord{ActorID: "a", Action: "create_wallet", CreatedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, db.AddRateLimitRecord(ctx, &models.RateLimitRecord{ActorID: "a", Action: "create_wallet", CreatedAt: now.Add(-time.Minute)}))
	require.NoError(t, db.AddRateLimitRecord(ctx, &models.RateLimitRecord{ActorID: "b", Action: "create_wallet", CreatedAt: now}))

	n, err := db.CountRateLimitRecords(ctx, "a", "create_wallet", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	deleted, err := db.DeleteRateLimitRecordsBefore(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestDeleteProcessedEventsBefore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, db.UpsertProcessedEvent(ctx, &models.ProcessedEvent{EventID: "old", Outcome: models.OutcomeIgnoredNoTrigger, ProcessedAt: now.Add(-8 * 24 * time.Hour)}))
	require.NoError(t, db.UpsertProcessedEvent(ctx, &models.ProcessedEvent{EventID: "new", Outcome: models.OutcomeIgnoredNoTrigger, ProcessedAt: now}))

	deleted, err := db.DeleteProcessedEventsBefore(ctx, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	processed, err := db.IsEventProcessed(ctx, "new")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestCampaignCandidatesPaging(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, db.CreateWallet(ctx, newWallet(fmt.Sprintf("u%d", i))))
	}
	require.NoError(t, db.MarkFunded(ctx, "u0"))
	require.NoError(t, db.MarkPreEventSent(ctx, "u1", time.Now()))

	page, err := db.ListPreEventCandidates(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "u2", page[0].ExternalUserID)
	assert.Equal(t, "u3", page[1].ExternalUserID)

	page, err = db.ListPreEventCandidates(ctx, page[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "u4", page[0].ExternalUserID)

	post, err := db.ListPostEventCandidates(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, post, 1)
	assert.Equal(t, "u0", post[0].ExternalUserID)
}

func TestListUnfundedOnChainWallets(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	onChain := newWallet("chain")
	onChain.SetAccount(models.OnChain{ID: "0xtx"})
	require.NoError(t, db.CreateWallet(ctx, onChain))
	require.NoError(t, db.CreateWallet(ctx, newWallet("keys")))

	wallets, err := db.ListUnfundedOnChainWallets(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, "chain", wallets[0].ExternalUserID)
	assert.Equal(t, models.OnChain{ID: "0xtx"}, wallets[0].Account())
}

func TestLocks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ok, err := db.AcquireLock(ctx, "campaign", "i1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.AcquireLock(ctx, "campaign", "i2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = db.AcquireLock(ctx, "campaign", "i1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, db.ReleaseLock(ctx, "campaign", "i1"))

	ok, err = db.AcquireLock(ctx, "campaign", "i2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWaitlistAndStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.AddToWaitlist(ctx, &models.WaitlistEntry{ExternalUserID: "w1"}))
	assert.ErrorIs(t, db.AddToWaitlist(ctx, &models.WaitlistEntry{ExternalUserID: "w1"}), models.ErrAlreadyOnWaitlist)

	require.NoError(t, db.CreateWallet(ctx, newWallet("u1")))
	require.NoError(t, db.MarkClaimLinkGenerated(ctx, "u1"))
	require.NoError(t, db.MarkFirstMessageSent(ctx, "u1"))
	require.NoError(t, db.UpsertProcessedEvent(ctx, &models.ProcessedEvent{EventID: "e1", Outcome: models.OutcomeWalletCreated}))
	require.NoError(t, db.UpsertProcessedEvent(ctx, &models.ProcessedEvent{EventID: "e2", Outcome: models.OutcomeIgnoredNoTrigger}))
	require.NoError(t, db.AddAuditEntry(ctx, &models.AuditEntry{ID: "a1", ExternalUserID: "u1", Action: models.AuditWalletCreated}))

	stats, err := db.DeliveryStats(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalWallets)
	assert.Equal(t, int64(1), stats.ClaimLinksGenerated)
	assert.Equal(t, int64(1), stats.FirstMessagesSent)
	assert.Equal(t, int64(0), stats.FirstMessagesFailed)
	assert.Equal(t, int64(1), stats.WalletsToday)
	assert.Equal(t, int64(1), stats.WaitlistSize)
	assert.Equal(t, int64(1), stats.Outcomes[models.OutcomeWalletCreated])
	assert.Equal(t, int64(1), stats.Outcomes[models.OutcomeIgnoredNoTrigger])
}
