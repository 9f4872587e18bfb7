package blockchain

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/core-coin/go-core/v2/common"
	"github.com/core-coin/go-core/v2/core/types"
	"github.com/core-coin/go-core/v2/crypto"
	"github.com/core-coin/go-core/v2/xcbclient"

	"github.com/core-coin/donum/internal/models"
	"github.com/core-coin/donum/pkg/logger"
	"github.com/core-coin/donum/pkg/validation"
)

// activationEnergy is the energy limit of a plain value transfer.
const activationEnergy = 21000

// Gocore is the ledger collaborator backed by a Core blockchain node.
// Accounts are activated by a small transfer from the operator account.
type Gocore struct {
	logger *logger.Logger

	apiURL           string
	networkID        *big.Int
	operatorKeyHex   string
	activationAmount *big.Int

	client   *xcbclient.Client
	operator *crypto.PrivateKey

	// mu serializes operator transactions so nonces are not reused
	mu sync.Mutex
}

var _ models.Ledger = (*Gocore)(nil)

// NewGocore creates a new Gocore instance.
func NewGocore(apiURL string, networkID *big.Int, operatorKey string, activationAmount *big.Int, logger *logger.Logger) *Gocore {
	return &Gocore{
		logger:           logger,
		apiURL:           apiURL,
		networkID:        networkID,
		operatorKeyHex:   strings.TrimPrefix(operatorKey, "0x"),
		activationAmount: activationAmount,
	}
}

// Run connects to the node when an endpoint and operator key are set.
// Without them the ledger stays unconfigured and wallets are keys-only.
func (g *Gocore) Run() error {
	if g.apiURL == "" || g.operatorKeyHex == "" {
		g.logger.Warn("Ledger endpoint or operator key not set, on-chain activation disabled")
		return nil
	}

	common.DefaultNetworkID = common.NetworkID(g.networkID.Int64())

	operator, err := crypto.UnmarshalPrivateKeyHex(g.operatorKeyHex)
	if err != nil {
		return fmt.Errorf("failed to parse operator key: %w", err)
	}
	if err := g.ConnectToRPC(); err != nil {
		return err
	}
	g.operator = operator
	g.logger.Info("Connected to ledger", "url", g.apiURL, "operator", operator.Address().Hex())
	return nil
}

func (g *Gocore) ConnectToRPC() error {
	client, err := xcbclient.Dial(g.apiURL)
	if err != nil {
		return fmt.Errorf("failed to connect to the core RPC server: %w", err)
	}
	g.client = client
	return nil
}

func (g *Gocore) Configured() bool {
	return g.client != nil && g.operator != nil
}

func (g *Gocore) GenerateKey() (*models.KeyPair, error) {
	key, err := crypto.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &models.KeyPair{
		PrivateKey: hex.EncodeToString(key.PrivateKey()),
		PublicKey:  hex.EncodeToString(key.PublicKey()[:]),
		Address:    key.Address().Hex(),
	}, nil
}

// CreateAccount sends the activation transfer and returns its transaction hash.
func (g *Gocore) CreateAccount(ctx context.Context, address string) (string, error) {
	if !g.Configured() {
		return "", models.ErrLedgerNotConnected
	}
	if err := validation.ValidateAddress(address); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrLedgerTransient, err)
	}
	to, err := common.HexToAddress(address)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrLedgerTransient, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	nonce, err := g.client.PendingNonceAt(ctx, g.operator.Address())
	if err != nil {
		return "", classifyLedgerError(err)
	}
	price, err := g.client.SuggestEnergyPrice(ctx)
	if err != nil {
		return "", classifyLedgerError(err)
	}

	tx := types.NewTransaction(nonce, to, g.activationAmount, activationEnergy, price, nil)
	signed, err := types.SignTx(tx, types.NewNucleusSigner(g.networkID), g.operator)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrLedgerSignature, err)
	}
	if err := g.client.SendTransaction(ctx, signed); err != nil {
		return "", classifyLedgerError(err)
	}

	g.logger.Debug("Activation transfer sent", "address", address, "tx", signed.Hash().Hex())
	return signed.Hash().Hex(), nil
}

func (g *Gocore) Balance(ctx context.Context, address string) (*big.Int, error) {
	if g.client == nil {
		return nil, models.ErrLedgerNotConnected
	}
	addr, err := common.HexToAddress(address)
	if err != nil {
		return nil, fmt.Errorf("failed to parse address: %w", err)
	}
	balance, err := g.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

func (g *Gocore) Close() error {
	if g.client != nil {
		g.client.Close()
	}
	return nil
}

// classifyLedgerError maps node errors onto the typed ledger failures.
func classifyLedgerError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrLedgerTransient) {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return fmt.Errorf("%w: %v", models.ErrLedgerUnderfunded, err)
	case strings.Contains(msg, "invalid sender"),
		strings.Contains(msg, "invalid signature"),
		strings.Contains(msg, "invalid network id"):
		return fmt.Errorf("%w: %v", models.ErrLedgerSignature, err)
	default:
		return fmt.Errorf("%w: %v", models.ErrLedgerUnavailable, err)
	}
}
