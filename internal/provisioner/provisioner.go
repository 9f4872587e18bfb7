// Package provisioner creates wallets and records them in the store.
package provisioner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/core-coin/donum/internal/cryptox"
	"github.com/core-coin/donum/internal/models"
	"github.com/core-coin/donum/pkg/logger"
)

const recoveryPasswordBytes = 12

type store interface {
	CreateWallet(ctx context.Context, wallet *models.Wallet) error
	AddAuditEntry(ctx context.Context, entry *models.AuditEntry) error
}

type Provisioner struct {
	logger *logger.Logger
	repo   store
	ledger models.Ledger

	ledgerTimeout time.Duration
	now           func() time.Time
}

func NewProvisioner(repo store, ledger models.Ledger, ledgerTimeout time.Duration, logger *logger.Logger) *Provisioner {
	return &Provisioner{
		logger:        logger,
		repo:          repo,
		ledger:        ledger,
		ledgerTimeout: ledgerTimeout,
		now:           time.Now,
	}
}

// CreateWallet generates keys, activates the account on chain when the ledger is
// configured and stores the wallet. The raw secret is only returned, never stored.
//
// Callers check existence and quotas first; the unique index on the external id
// still turns a concurrent duplicate into models.ErrWalletAlreadyExists.
func (p *Provisioner) CreateWallet(ctx context.Context, externalUserID, handle string) (*models.ProvisionedWallet, error) {
	keys, err := p.ledger.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	var account models.LedgerAccount = models.KeysOnly{}
	if p.ledger.Configured() {
		id, err := p.createAccount(ctx, keys.Address)
		if err != nil {
			return nil, err
		}
		account = models.OnChain{ID: id}
	} else {
		p.logger.Warn("Ledger is not configured, creating keys-only wallet", "user", externalUserID, "address", keys.Address)
	}

	password, err := cryptox.RandomHex(recoveryPasswordBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate recovery password: %w", err)
	}
	sealed, err := cryptox.SealSecret(keys.PrivateKey, password)
	if err != nil {
		return nil, fmt.Errorf("failed to seal secret: %w", err)
	}

	wallet := &models.Wallet{
		ExternalUserID:       externalUserID,
		Handle:               handle,
		SecretEncrypted:      sealed,
		RecoveryPasswordHash: cryptox.HashPassword(password),
		PublicKey:            keys.PublicKey,
		Address:              keys.Address,
		CreatedAt:            p.now().UTC(),
	}
	wallet.SetAccount(account)

	if err := p.repo.CreateWallet(ctx, wallet); err != nil {
		if wallet.OnChainID != nil {
			p.logger.Error("Wallet not stored after its ledger account was created",
				"user", externalUserID, "address", wallet.Address, "account", *wallet.OnChainID, "error", err)
		}
		if errors.Is(err, models.ErrWalletAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to store wallet: %w", err)
	}

	p.audit(ctx, wallet)

	p.logger.Info("Wallet created", "user", externalUserID, "address", wallet.Address, "on_chain", wallet.OnChainID != nil)
	return &models.ProvisionedWallet{
		Wallet:           wallet,
		SecretKey:        keys.PrivateKey,
		RecoveryPassword: password,
	}, nil
}

// createAccount calls the ledger with a bounded timeout. Any failure, a timeout
// included, is a typed ledger error and never falls back to keys-only.
func (p *Provisioner) createAccount(ctx context.Context, address string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.ledgerTimeout)
	defer cancel()

	id, err := p.ledger.CreateAccount(ctx, address)
	if err != nil {
		if errors.Is(err, models.ErrLedgerTransient) {
			return "", err
		}
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return "", fmt.Errorf("%w: account creation timed out", models.ErrLedgerUnavailable)
		}
		return "", fmt.Errorf("%w: %v", models.ErrLedgerTransient, err)
	}
	return id, nil
}

func (p *Provisioner) audit(ctx context.Context, wallet *models.Wallet) {
	details, _ := json.Marshal(map[string]interface{}{
		"handle":   wallet.Handle,
		"address":  wallet.Address,
		"on_chain": wallet.OnChainID != nil,
	})
	entry := &models.AuditEntry{
		ID:             uuid.NewString(),
		ExternalUserID: wallet.ExternalUserID,
		Action:         models.AuditWalletCreated,
		Details:        string(details),
		CreatedAt:      p.now().UTC(),
	}
	if err := p.repo.AddAuditEntry(ctx, entry); err != nil {
		p.logger.Error("Failed to add audit entry", "user", wallet.ExternalUserID, "error", err)
	}
}
