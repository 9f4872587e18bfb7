package donum

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/core-coin/donum/internal/dedup"
	"github.com/core-coin/donum/internal/delivery"
	"github.com/core-coin/donum/internal/models"
	"github.com/core-coin/donum/internal/provisioner"
	"github.com/core-coin/donum/internal/quota"
	"github.com/core-coin/donum/pkg/logger"
	"github.com/core-coin/donum/pkg/validation"
)

// Intent is what an inbound event asks for.
type Intent int

const (
	IntentNone Intent = iota
	IntentCreateWallet
	IntentJoinWaitlist
)

type opener interface {
	Open(token string) (*models.Claim, error)
}

type Config struct {
	PollInterval      time.Duration
	LookbackWindow    time.Duration
	SweepInterval     time.Duration
	MaxWalletsPerUser int
	MaxWalletsPerDay  int
}

// Donum is the main struct of the application.
// It polls the mention feed and turns wallet requests into provisioned wallets.
type Donum struct {
	logger *logger.Logger
	cfg    Config

	repo        models.Repository
	feed        models.MentionFeed
	messenger   models.Messenger
	alerter     models.Alerter
	dedup       *dedup.Deduplicator
	limiter     *quota.Limiter
	provisioner *provisioner.Provisioner
	delivery    *delivery.Machine
	claims      opener

	stopped  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	inFlight map[string]struct{}
	creating map[string]chan struct{}
	wg       sync.WaitGroup

	now func() time.Time
}

// NewDonum creates a new Donum instance
func NewDonum(
	repo models.Repository,
	feed models.MentionFeed,
	messenger models.Messenger,
	alerter models.Alerter,
	dedup *dedup.Deduplicator,
	limiter *quota.Limiter,
	provisioner *provisioner.Provisioner,
	delivery *delivery.Machine,
	claims opener,
	cfg Config,
	logger *logger.Logger,
) *Donum {
	return &Donum{
		logger:      logger,
		cfg:         cfg,
		repo:        repo,
		feed:        feed,
		messenger:   messenger,
		alerter:     alerter,
		dedup:       dedup,
		limiter:     limiter,
		provisioner: provisioner,
		delivery:    delivery,
		claims:      claims,
		done:        make(chan struct{}),
		inFlight:    map[string]struct{}{},
		creating:    map[string]chan struct{}{},
		now:         time.Now,
	}
}

// Start runs the polling loop until Stop is called or ctx is done.
// Retention sweeps run in the background.
func (d *Donum) Start(ctx context.Context) {
	if d.cfg.SweepInterval > 0 {
		go d.sweepLoop(ctx)
	}

	d.logger.Info("Polling for mentions", "interval", d.cfg.PollInterval, "lookback", d.cfg.LookbackWindow)
	for !d.stopped.Load() {
		d.PollOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-d.done:
			return
		case <-time.After(d.cfg.PollInterval):
		}
	}
}

// Stop ends the polling loop after the current iteration.
// Handlers already dispatched keep running; use Wait to drain them.
func (d *Donum) Stop() {
	d.stopped.Store(true)
	d.stopOnce.Do(func() { close(d.done) })
}

// Wait blocks until all dispatched handlers returned.
func (d *Donum) Wait() {
	d.wg.Wait()
}

func (d *Donum) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.done:
			return
		case <-ticker.C:
			d.Sweep(ctx)
		}
	}
}

// Sweep removes processed events and rate limit rows past their retention.
func (d *Donum) Sweep(ctx context.Context) {
	d.logger.Debug("Removing old processed events and rate limit records")
	if n, err := d.dedup.Sweep(ctx); err != nil {
		d.logger.Error("Failed to remove old processed events", "error", err)
	} else if n > 0 {
		d.logger.Info("Removed old processed events", "count", n)
	}
	if n, err := d.limiter.Sweep(ctx); err != nil {
		d.logger.Error("Failed to remove old rate limit records", "error", err)
	} else if n > 0 {
		d.logger.Info("Removed old rate limit records", "count", n)
	}
}

// PollOnce fetches recent mentions and dispatches a handler for every fresh,
// unprocessed event. Handlers are not awaited. It returns the number dispatched.
func (d *Donum) PollOnce(ctx context.Context) int {
	events, err := d.feed.FetchMentions(ctx, d.now().Add(-d.cfg.LookbackWindow))
	if err != nil {
		d.logger.Error("Failed to fetch mentions", "error", err)
		return 0
	}

	dispatched := 0
	for _, ev := range events {
		if !d.dedup.IsFresh(ev) {
			d.logger.Debug("Skipping stale event", "event", ev.ID, "created_at", ev.CreatedAt)
			continue
		}
		if !d.claimEvent(ev.ID) {
			continue
		}
		if d.dedup.IsProcessed(ctx, ev.ID) {
			d.releaseEvent(ev.ID)
			continue
		}

		dispatched++
		d.wg.Add(1)
		go func(ev *models.InboundEvent) {
			defer d.wg.Done()
			defer d.releaseEvent(ev.ID)
			d.HandleEvent(context.WithoutCancel(ctx), ev)
		}(ev)
	}
	return dispatched
}

func (d *Donum) claimEvent(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inFlight[id]; ok {
		return false
	}
	d.inFlight[id] = struct{}{}
	return true
}

func (d *Donum) releaseEvent(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, id)
}

// lockUser serializes wallet creation per author so that concurrent requests
// from one user never reach the ledger twice.
func (d *Donum) lockUser(ctx context.Context, uid string) (func(), error) {
	for {
		d.mu.Lock()
		busy, ok := d.creating[uid]
		if !ok {
			ch := make(chan struct{})
			d.creating[uid] = ch
			d.mu.Unlock()
			return func() {
				d.mu.Lock()
				delete(d.creating, uid)
				d.mu.Unlock()
				close(ch)
			}, nil
		}
		d.mu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// ClassifyIntent looks for the trigger phrases in the event text.
func ClassifyIntent(text string) Intent {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "create") && strings.Contains(t, "wallet"):
		return IntentCreateWallet
	case strings.Contains(t, "add") && strings.Contains(t, "waitlist"):
		return IntentJoinWaitlist
	default:
		return IntentNone
	}
}

// HandleEvent processes one inbound event and records its outcome.
func (d *Donum) HandleEvent(ctx context.Context, ev *models.InboundEvent) models.Outcome {
	log := d.logger.With("event", ev.ID, "user", ev.AuthorID)

	var outcome models.Outcome
	switch ClassifyIntent(ev.Text) {
	case IntentCreateWallet:
		outcome = d.createWallet(ctx, log, ev)
	case IntentJoinWaitlist:
		outcome = d.joinWaitlist(ctx, log, ev)
	default:
		outcome = models.OutcomeIgnoredNoTrigger
	}

	d.dedup.MarkProcessed(ctx, ev, outcome)
	log.Info("Event processed", "outcome", outcome)
	return outcome
}

func (d *Donum) createWallet(ctx context.Context, log *logger.Logger, ev *models.InboundEvent) models.Outcome {
	uid, handle := ev.AuthorID, ev.AuthorHandle
	if err := validation.ValidateExternalUserID(uid); err != nil {
		log.Warn("Rejecting event with invalid author", "error", err)
		return models.OutcomeError
	}

	unlock, err := d.lockUser(ctx, uid)
	if err != nil {
		log.Error("Gave up waiting for a concurrent request from the same user", "error", err)
		return models.OutcomeError
	}
	defer unlock()

	exists, err := d.repo.HasWallet(ctx, uid)
	if err != nil {
		log.Error("Failed to check existing wallet", "error", err)
		return models.OutcomeError
	}
	if exists {
		d.reply(ctx, log, ev, models.AlreadyHasWalletReply{Handle: handle})
		return models.OutcomeAlreadyHasWallet
	}

	allowed, err := d.limiter.CheckLimit(ctx, uid, quota.ActionCreateWallet, d.cfg.MaxWalletsPerUser)
	if err != nil {
		log.Error("Failed to check rate limit", "error", err)
		return models.OutcomeError
	}
	if !allowed {
		d.reply(ctx, log, ev, models.RateLimitedReply{Handle: handle})
		return models.OutcomeRateLimited
	}

	allowed, err = d.limiter.CheckDailyLimit(ctx, d.cfg.MaxWalletsPerDay)
	if err != nil {
		log.Error("Failed to check daily limit", "error", err)
		return models.OutcomeError
	}
	if !allowed {
		d.reply(ctx, log, ev, models.DailyLimitReply{Handle: handle})
		return models.OutcomeDailyLimit
	}

	pw, err := d.provisioner.CreateWallet(ctx, uid, handle)
	switch {
	case errors.Is(err, models.ErrWalletAlreadyExists):
		d.reply(ctx, log, ev, models.AlreadyHasWalletReply{Handle: handle})
		return models.OutcomeAlreadyHasWallet
	case errors.Is(err, models.ErrLedgerTransient):
		log.Error("Ledger failed while provisioning wallet", "error", err)
		d.alerter.Alert("Wallet provisioning failed",
			fmt.Sprintf("Ledger account creation for user %s (@%s, event %s) failed: %v", uid, handle, ev.ID, err))
		d.reply(ctx, log, ev, models.ProvisioningFailedReply{Handle: handle})
		return models.OutcomeError
	case err != nil:
		log.Error("Failed to provision wallet", "error", err)
		d.reply(ctx, log, ev, models.ProvisioningFailedReply{Handle: handle})
		return models.OutcomeError
	}

	if err := d.limiter.Record(ctx, uid, quota.ActionCreateWallet); err != nil {
		log.Error("Failed to record rate limit", "error", err)
	}

	if err := d.delivery.DeliverCredentials(ctx, pw); err != nil {
		log.Warn("Wallet created but credentials were not delivered", "error", err)
		return models.OutcomeWalletCreatedDMFailed
	}

	d.reply(ctx, log, ev, models.WalletReadyReply{Handle: handle})
	return models.OutcomeWalletCreated
}

func (d *Donum) joinWaitlist(ctx context.Context, log *logger.Logger, ev *models.InboundEvent) models.Outcome {
	err := d.repo.AddToWaitlist(ctx, &models.WaitlistEntry{
		ExternalUserID: ev.AuthorID,
		Handle:         ev.AuthorHandle,
		SourceEventID:  ev.ID,
		JoinedAt:       d.now().UTC(),
	})
	switch {
	case errors.Is(err, models.ErrAlreadyOnWaitlist):
		d.reply(ctx, log, ev, models.WaitlistReply{Handle: ev.AuthorHandle, AlreadyJoined: true})
		return models.OutcomeAlreadyOnWaitlist
	case err != nil:
		log.Error("Failed to add to waitlist", "error", err)
		return models.OutcomeError
	}

	d.reply(ctx, log, ev, models.WaitlistReply{Handle: ev.AuthorHandle})
	if err := d.messenger.SendDirect(ctx, ev.AuthorID, models.WaitlistWelcomeMessage{Handle: ev.AuthorHandle}); err != nil {
		log.Warn("Failed to send waitlist welcome", "error", err)
	}
	return models.OutcomeWaitlistAdded
}

// reply posts a public reply. Failures do not change the outcome.
func (d *Donum) reply(ctx context.Context, log *logger.Logger, ev *models.InboundEvent, reply models.PublicReply) {
	if err := d.messenger.Reply(ctx, ev.ID, reply); err != nil {
		log.Warn("Failed to post reply", "reply", fmt.Sprintf("%T", reply), "error", err)
	}
}

// OpenClaim decrypts a claim token.
func (d *Donum) OpenClaim(token string) (*models.Claim, error) {
	if !validation.LooksLikeClaimToken(token) {
		return nil, models.ErrInvalidToken
	}
	return d.claims.Open(token)
}

// RecordClaimAccess marks the first retrieval of a claim. Best effort.
func (d *Donum) RecordClaimAccess(ctx context.Context, externalUserID string, at time.Time) {
	if err := d.repo.MarkClaimAccessed(ctx, externalUserID, at.UTC()); err != nil {
		d.logger.Warn("Failed to record claim access", "user", externalUserID, "error", err)
	}
}

func (d *Donum) DeliveryStats(ctx context.Context) (*models.DeliveryStats, error) {
	stats, err := d.repo.DeliveryStats(ctx, d.limiter.StartOfDay())
	if err != nil {
		return nil, err
	}
	remaining, err := d.limiter.RemainingToday(ctx, d.cfg.MaxWalletsPerDay)
	if err != nil {
		return nil, err
	}
	stats.RemainingToday = remaining
	return stats, nil
}

var _ models.DonumI = (*Donum)(nil)
