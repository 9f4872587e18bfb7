// Package campaign sends the time based notifications of the launch campaign and
// tracks wallet funding.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/core-coin/donum/internal/models"
	"github.com/core-coin/donum/pkg/logger"
)

const (
	lockPreEvent  = "campaign:pre_event"
	lockPostEvent = "campaign:post_event"
	lockFunding   = "campaign:funding"

	lockTTL = time.Hour
)

var (
	ErrLocked      = errors.New("campaign is running on another instance")
	ErrNoEventTime = errors.New("event time is not configured")
)

type store interface {
	ListPreEventCandidates(ctx context.Context, afterID int64, limit int) ([]*models.Wallet, error)
	ListPostEventCandidates(ctx context.Context, afterID int64, limit int) ([]*models.Wallet, error)
	ListUnfundedOnChainWallets(ctx context.Context, afterID int64, limit int) ([]*models.Wallet, error)
	MarkFunded(ctx context.Context, externalUserID string) error
	AcquireLock(ctx context.Context, name, instanceID string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, instanceID string) error
}

type sender interface {
	SendPreEventReminder(ctx context.Context, w *models.Wallet, eventTime time.Time) error
	SendPostEventConfirmation(ctx context.Context, w *models.Wallet) error
}

type balancer interface {
	Configured() bool
	Balance(ctx context.Context, address string) (*big.Int, error)
}

type Config struct {
	EventTime        time.Time
	ReminderLeadDays int
	// Cron is the daily schedule, evaluated in UTC.
	Cron            string
	BatchSize       int
	MessageDelay    time.Duration
	BatchPause      time.Duration
	FundingInterval time.Duration
}

// Report counts the outcome of one campaign run.
type Report struct {
	Sent   int
	Failed int
}

type Scheduler struct {
	logger *logger.Logger
	repo   store
	sender sender
	ledger balancer
	cfg    Config

	instanceID string
	now        func() time.Time

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

func NewScheduler(repo store, sender sender, ledger balancer, cfg Config, logger *logger.Logger) *Scheduler {
	return &Scheduler{
		logger:     logger,
		repo:       repo,
		sender:     sender,
		ledger:     ledger,
		cfg:        cfg,
		instanceID: uuid.NewString(),
		now:        time.Now,
	}
}

func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Start registers the daily campaign job and the funding check.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	cl := cronLogger{s.logger}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(s.cfg.Cron, func() { s.RunDaily(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("invalid campaign schedule %q: %w", s.cfg.Cron, err)
	}
	if s.cfg.FundingInterval > 0 {
		if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.cfg.FundingInterval), func() {
			if _, err := s.UpdateFunding(ctx); err != nil && !errors.Is(err, ErrLocked) {
				s.logger.Error("Funding check failed", "error", err)
			}
		}); err != nil {
			cancel()
			return fmt.Errorf("invalid funding interval: %w", err)
		}
	}

	c.Start()
	s.cron = c
	s.cancel = cancel
	s.logger.Info("Campaign scheduler started", "schedule", s.cfg.Cron, "event_time", s.cfg.EventTime, "instance", s.instanceID)
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
}

// RunDaily sends reminders when the event is ReminderLeadDays away and
// confirmations once the event time has passed.
func (s *Scheduler) RunDaily(ctx context.Context) {
	if s.cfg.EventTime.IsZero() {
		s.logger.Debug("No event time configured, skipping campaign")
		return
	}
	now := s.now()
	if days := DaysUntil(now, s.cfg.EventTime); days == s.cfg.ReminderLeadDays {
		report, err := s.SendPreEventReminders(ctx)
		s.logRun("pre_event", report, err)
	}
	if !now.Before(s.cfg.EventTime) {
		report, err := s.SendPostEventConfirmations(ctx)
		s.logRun("post_event", report, err)
	}
}

func (s *Scheduler) logRun(kind string, report Report, err error) {
	if err != nil {
		s.logger.Error("Campaign run failed", "kind", kind, "sent", report.Sent, "failed", report.Failed, "error", err)
		return
	}
	s.logger.Info("Campaign run finished", "kind", kind, "sent", report.Sent, "failed", report.Failed)
}

// DaysUntil returns the number of started days between now and t, rounded up.
func DaysUntil(now, t time.Time) int {
	return int(math.Ceil(t.Sub(now).Hours() / 24))
}

// SendPreEventReminders messages every unfunded wallet that has no reminder yet.
func (s *Scheduler) SendPreEventReminders(ctx context.Context) (Report, error) {
	if s.cfg.EventTime.IsZero() {
		return Report{}, ErrNoEventTime
	}
	eventTime := s.cfg.EventTime
	return s.runLocked(ctx, lockPreEvent, s.repo.ListPreEventCandidates, func(ctx context.Context, w *models.Wallet) error {
		return s.sender.SendPreEventReminder(ctx, w, eventTime)
	})
}

// SendPostEventConfirmations messages every funded wallet without a confirmation.
func (s *Scheduler) SendPostEventConfirmations(ctx context.Context) (Report, error) {
	return s.runLocked(ctx, lockPostEvent, s.repo.ListPostEventCandidates, s.sender.SendPostEventConfirmation)
}

type lister func(ctx context.Context, afterID int64, limit int) ([]*models.Wallet, error)

func (s *Scheduler) runLocked(ctx context.Context, lock string, list lister, send func(context.Context, *models.Wallet) error) (Report, error) {
	ok, err := s.repo.AcquireLock(ctx, lock, s.instanceID, lockTTL)
	if err != nil {
		return Report{}, err
	}
	if !ok {
		return Report{}, ErrLocked
	}
	defer func() {
		if err := s.repo.ReleaseLock(context.WithoutCancel(ctx), lock, s.instanceID); err != nil {
			s.logger.Error("Failed to release campaign lock", "lock", lock, "error", err)
		}
	}()
	return s.runBatches(ctx, list, send)
}

// runBatches pages through candidates by id. A wallet whose send fails is skipped
// until the next run.
func (s *Scheduler) runBatches(ctx context.Context, list lister, send func(context.Context, *models.Wallet) error) (Report, error) {
	var (
		report  Report
		afterID int64
	)
	for batch := 0; ; batch++ {
		wallets, err := list(ctx, afterID, s.cfg.BatchSize)
		if err != nil {
			return report, err
		}
		if len(wallets) == 0 {
			return report, nil
		}
		if batch > 0 {
			s.logger.Debug("Pausing between campaign batches", "pause", s.cfg.BatchPause)
			if err := sleep(ctx, s.cfg.BatchPause); err != nil {
				return report, err
			}
		}

		for i, w := range wallets {
			afterID = w.ID
			if i > 0 {
				if err := sleep(ctx, s.cfg.MessageDelay); err != nil {
					return report, err
				}
			}
			if err := send(ctx, w); err != nil {
				report.Failed++
				s.logger.Warn("Failed to send campaign message", "user", w.ExternalUserID, "error", err)
				continue
			}
			report.Sent++
		}

		if len(wallets) < s.cfg.BatchSize {
			return report, nil
		}
	}
}

// UpdateFunding flips IsFunded for on-chain wallets the ledger reports a balance for.
// It returns the number of wallets marked.
func (s *Scheduler) UpdateFunding(ctx context.Context) (int, error) {
	if !s.ledger.Configured() {
		return 0, nil
	}
	ok, err := s.repo.AcquireLock(ctx, lockFunding, s.instanceID, lockTTL)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrLocked
	}
	defer func() {
		if err := s.repo.ReleaseLock(context.WithoutCancel(ctx), lockFunding, s.instanceID); err != nil {
			s.logger.Error("Failed to release funding lock", "error", err)
		}
	}()

	var (
		funded  int
		afterID int64
	)
	for {
		wallets, err := s.repo.ListUnfundedOnChainWallets(ctx, afterID, s.cfg.BatchSize)
		if err != nil {
			return funded, err
		}
		for _, w := range wallets {
			afterID = w.ID
			balance, err := s.ledger.Balance(ctx, w.Address)
			if err != nil {
				s.logger.Warn("Failed to get balance", "address", w.Address, "error", err)
				continue
			}
			if balance.Sign() <= 0 {
				continue
			}
			if err := s.repo.MarkFunded(ctx, w.ExternalUserID); err != nil {
				s.logger.Error("Failed to mark wallet funded", "user", w.ExternalUserID, "error", err)
				continue
			}
			funded++
		}
		if len(wallets) < s.cfg.BatchSize {
			if funded > 0 {
				s.logger.Info("Wallets funded", "count", funded)
			}
			return funded, nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// cronLogger routes cron's own logging into the service logger.
type cronLogger struct {
	l *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
