// Package delivery drives the notifications tied to a wallet and records their outcome.
//
// A wallet moves through
//
//	created -> claimLinkIssued -> firstSent | firstFailed
//	firstSent -> secondScheduled -> secondSent | secondFailed
//
// firstFailed is terminal: the credentials message is never retried, since a
// retry could leave several live claim links for one wallet.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/core-coin/donum/internal/models"
	"github.com/core-coin/donum/pkg/logger"
)

type store interface {
	MarkClaimLinkGenerated(ctx context.Context, externalUserID string) error
	MarkFirstMessageSent(ctx context.Context, externalUserID string) error
	MarkFirstMessageFailed(ctx context.Context, externalUserID string, at time.Time) error
	MarkSecondMessageScheduled(ctx context.Context, externalUserID string, at time.Time) error
	MarkSecondMessageSent(ctx context.Context, externalUserID string) error
	MarkSecondMessageFailed(ctx context.Context, externalUserID string, at time.Time) error
	MarkPreEventSent(ctx context.Context, externalUserID string, at time.Time) error
	MarkPostEventSent(ctx context.Context, externalUserID string, at time.Time) error
}

// Minter seals a claim into a token.
type Minter interface {
	Mint(claim models.Claim, ttl time.Duration) (string, error)
}

type Config struct {
	ClaimBaseURL       string
	ClaimTokenTTL      time.Duration
	SecondMessageDelay time.Duration
}

type Machine struct {
	logger    *logger.Logger
	repo      store
	messenger models.Messenger
	minter    Minter
	deferrer  Deferrer
	cfg       Config
	now       func() time.Time
}

func NewMachine(repo store, messenger models.Messenger, minter Minter, deferrer Deferrer, cfg Config, logger *logger.Logger) *Machine {
	return &Machine{
		logger:    logger,
		repo:      repo,
		messenger: messenger,
		minter:    minter,
		deferrer:  deferrer,
		cfg:       cfg,
		now:       time.Now,
	}
}

// DeliverCredentials mints the claim token, sends the credentials message and
// schedules the setup guide. It returns an error wrapping
// models.ErrMessagingFailure when the credentials message was not delivered; the
// wallet is then flagged firstFailed and nothing else is scheduled.
func (m *Machine) DeliverCredentials(ctx context.Context, pw *models.ProvisionedWallet) error {
	w := pw.Wallet
	uid := w.ExternalUserID
	// flags must land even when the caller's context is done
	markCtx := context.WithoutCancel(ctx)

	claim := models.Claim{
		ExternalUserID:   uid,
		Handle:           w.Handle,
		SecretKey:        pw.SecretKey,
		RecoveryPassword: pw.RecoveryPassword,
		Address:          w.Address,
	}
	if a, ok := w.Account().(models.OnChain); ok {
		claim.OnChainID = a.ID
	}
	token, err := m.minter.Mint(claim, m.cfg.ClaimTokenTTL)
	if err != nil {
		m.markFirstFailed(markCtx, uid)
		m.logger.Error("Failed to mint claim token", "user", uid, "error", err)
		return fmt.Errorf("failed to mint claim token: %w", err)
	}

	if err := m.repo.MarkClaimLinkGenerated(markCtx, uid); err != nil {
		m.logger.Error("Failed to mark claim link generated", "user", uid, "error", err)
	}

	err = m.messenger.SendDirect(ctx, uid, models.CredentialsMessage{
		Handle:   w.Handle,
		ClaimURL: m.ClaimURL(token),
		Address:  w.Address,
		Account:  w.Account(),
		TTL:      m.cfg.ClaimTokenTTL,
	})
	if err != nil {
		m.markFirstFailed(markCtx, uid)
		m.logger.Error("Failed to send credentials message", "user", uid, "error", err)
		if !errors.Is(err, models.ErrMessagingFailure) {
			err = fmt.Errorf("%w: %v", models.ErrMessagingFailure, err)
		}
		return err
	}

	if err := m.repo.MarkFirstMessageSent(markCtx, uid); err != nil {
		m.logger.Error("Failed to mark first message sent", "user", uid, "error", err)
	}

	m.scheduleSetupGuide(markCtx, w)
	return nil
}

func (m *Machine) markFirstFailed(ctx context.Context, uid string) {
	if err := m.repo.MarkFirstMessageFailed(ctx, uid, m.now().UTC()); err != nil {
		m.logger.Error("Failed to mark first message failed", "user", uid, "error", err)
	}
}

// ClaimURL builds the link embedded in the credentials message.
func (m *Machine) ClaimURL(token string) string {
	return strings.TrimRight(m.cfg.ClaimBaseURL, "/") + "/claim/" + token
}

func (m *Machine) scheduleSetupGuide(ctx context.Context, w *models.Wallet) {
	if err := m.repo.MarkSecondMessageScheduled(ctx, w.ExternalUserID, m.now().UTC()); err != nil {
		m.logger.Error("Failed to mark second message scheduled", "user", w.ExternalUserID, "error", err)
	}
	uid, handle, address := w.ExternalUserID, w.Handle, w.Address
	m.deferrer.Submit(func() {
		m.sendSetupGuide(uid, handle, address)
	}, m.cfg.SecondMessageDelay)
}

// sendSetupGuide runs detached from the request. Failures are only logged.
func (m *Machine) sendSetupGuide(uid, handle, address string) {
	ctx := context.Background()
	err := m.messenger.SendDirect(ctx, uid, models.SetupGuideMessage{Handle: handle, Address: address})
	if err != nil {
		m.logger.Warn("Failed to send setup guide", "user", uid, "error", err)
		if err := m.repo.MarkSecondMessageFailed(ctx, uid, m.now().UTC()); err != nil {
			m.logger.Error("Failed to mark second message failed", "user", uid, "error", err)
		}
		return
	}
	if err := m.repo.MarkSecondMessageSent(ctx, uid); err != nil {
		m.logger.Error("Failed to mark second message sent", "user", uid, "error", err)
	}
}

// SendPreEventReminder sends the reminder and records it on success.
func (m *Machine) SendPreEventReminder(ctx context.Context, w *models.Wallet, eventTime time.Time) error {
	err := m.messenger.SendDirect(ctx, w.ExternalUserID, models.PreEventReminderMessage{
		Handle:    w.Handle,
		Address:   w.Address,
		EventTime: eventTime,
	})
	if err != nil {
		return err
	}
	return m.repo.MarkPreEventSent(context.WithoutCancel(ctx), w.ExternalUserID, m.now().UTC())
}

// SendPostEventConfirmation sends the confirmation and records it on success.
func (m *Machine) SendPostEventConfirmation(ctx context.Context, w *models.Wallet) error {
	err := m.messenger.SendDirect(ctx, w.ExternalUserID, models.PostEventConfirmationMessage{
		Handle:  w.Handle,
		Address: w.Address,
	})
	if err != nil {
		return err
	}
	return m.repo.MarkPostEventSent(context.WithoutCancel(ctx), w.ExternalUserID, m.now().UTC())
}
