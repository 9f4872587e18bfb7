package campaign

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/donum/internal/models"
	"github.com/core-coin/donum/internal/provisioner"
	"github.com/core-coin/donum/internal/repository"
	"github.com/core-coin/donum/internal/testutil"
	"github.com/core-coin/donum/pkg/logger"
)

type recordingSender struct {
	mu     sync.Mutex
	repo   *repository.DB
	fail   map[string]bool
	pre    []string
	post   []string
	events []time.Time
}

func (r *recordingSender) SendPreEventReminder(ctx context.Context, w *models.Wallet, eventTime time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[w.ExternalUserID] {
		return testutil.ErrBoom
	}
	r.pre = append(r.pre, w.ExternalUserID)
	r.events = append(r.events, eventTime)
	return r.repo.MarkPreEventSent(ctx, w.ExternalUserID, time.Now().UTC())
}

func (r *recordingSender) SendPostEventConfirmation(ctx context.Context, w *models.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[w.ExternalUserID] {
		return testutil.ErrBoom
	}
	r.post = append(r.post, w.ExternalUserID)
	return r.repo.MarkPostEventSent(ctx, w.ExternalUserID, time.Now().UTC())
}

var eventTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, wallets int) (*repository.DB, *recordingSender, *testutil.Ledger, *Scheduler) {
	t.Helper()
	db := testutil.NewTestDB(t)
	ledger := &testutil.Ledger{Balances: map[string]*big.Int{}}
	p := provisioner.NewProvisioner(db, ledger, time.Second, logger.NewNopLogger())
	for i := 0; i < wallets; i++ {
		_, err := p.CreateWallet(context.Background(), fmt.Sprintf("u%d", i), fmt.Sprintf("h%d", i))
		require.NoError(t, err)
	}
	sender := &recordingSender{repo: db, fail: map[string]bool{}}
	s := NewScheduler(db, sender, ledger, Config{
		EventTime:        eventTime,
		ReminderLeadDays: 7,
		Cron:             "0 10 * * *",
		BatchSize:        2,
	}, logger.NewNopLogger())
	return db, sender, ledger, s
}

func TestPreEventRemindersPageThroughAllWallets(t *testing.T) {
	_, sender, _, s := setup(t, 5)
	sender.fail["u3"] = true

	report, err := s.SendPreEventReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Sent: 4, Failed: 1}, report)
	assert.Equal(t, []string{"u0", "u1", "u2", "u4"}, sender.pre)
	for _, ev := range sender.events {
		assert.True(t, ev.Equal(eventTime))
	}

	// marked wallets are not messaged twice; the failed one is retried
	delete(sender.fail, "u3")
	report, err = s.SendPreEventReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Sent: 1}, report)
	assert.Equal(t, "u3", sender.pre[len(sender.pre)-1])
}

func TestPreEventRemindersNeedEventTime(t *testing.T) {
	_, _, _, s := setup(t, 1)
	s.cfg.EventTime = time.Time{}
	_, err := s.SendPreEventReminders(context.Background())
	assert.ErrorIs(t, err, ErrNoEventTime)
}

func TestCampaignLockIsExclusive(t *testing.T) {
	db, _, _, s := setup(t, 1)
	ok, err := db.AcquireLock(context.Background(), lockPreEvent, "other-instance", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.SendPreEventReminders(context.Background())
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, db.ReleaseLock(context.Background(), lockPreEvent, "other-instance"))
	report, err := s.SendPreEventReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
}

func TestFundingThenPostEventConfirmations(t *testing.T) {
	db, sender, ledger, s := setup(t, 3)
	ctx := context.Background()

	w, err := db.GetWallet(ctx, "u1")
	require.NoError(t, err)
	ledger.Balances[w.Address] = big.NewInt(10)

	funded, err := s.UpdateFunding(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, funded)

	report, err := s.SendPostEventConfirmations(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Sent: 1}, report)
	assert.Equal(t, []string{"u1"}, sender.post)

	// funded wallets are no longer reminder candidates
	report, err = s.SendPreEventReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)
	assert.NotContains(t, sender.pre, "u1")
}

func TestUpdateFundingSkipsWithoutLedger(t *testing.T) {
	_, _, ledger, s := setup(t, 1)
	ledger.Unconfig = true
	funded, err := s.UpdateFunding(context.Background())
	require.NoError(t, err)
	assert.Zero(t, funded)
}

func TestRunDaily(t *testing.T) {
	_, sender, _, s := setup(t, 2)

	s.WithClock(func() time.Time { return eventTime.Add(-10 * 24 * time.Hour) })
	s.RunDaily(context.Background())
	assert.Empty(t, sender.pre)

	s.WithClock(func() time.Time { return eventTime.Add(-7*24*time.Hour + 2*time.Hour) })
	s.RunDaily(context.Background())
	assert.Len(t, sender.pre, 2)
	assert.Empty(t, sender.post)
}

func TestDaysUntil(t *testing.T) {
	assert.Equal(t, 7, DaysUntil(eventTime.Add(-7*24*time.Hour), eventTime))
	assert.Equal(t, 7, DaysUntil(eventTime.Add(-6*24*time.Hour-time.Minute), eventTime))
	assert.Equal(t, 0, DaysUntil(eventTime, eventTime))
	assert.Equal(t, -1, DaysUntil(eventTime.Add(25*time.Hour), eventTime))
}

func TestBatchesStopOnCancel(t *testing.T) {
	_, sender, _, s := setup(t, 3)
	s.cfg.MessageDelay = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	report, err := s.SendPreEventReminders(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, []string{"u0"}, sender.pre)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	_, _, _, s := setup(t, 0)
	s.cfg.Cron = "not a schedule"
	assert.Error(t, s.Start(context.Background()))

	s.cfg.Cron = "0 10 * * *"
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()
}
