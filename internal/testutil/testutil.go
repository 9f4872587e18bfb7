// Package testutil holds collaborator fakes shared by package tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/core-coin/donum/internal/models"
	"github.com/core-coin/donum/internal/repository"
	"github.com/core-coin/donum/pkg/logger"
)

// NewTestDB opens a fresh SQLite store in the test's temp dir.
func NewTestDB(t *testing.T) *repository.DB {
	t.Helper()
	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "donum.db"), logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// SentDirect is one recorded private message.
type SentDirect struct {
	Recipient string
	Message   models.DirectMessage
}

// SentReply is one recorded public reply.
type SentReply struct {
	EventID string
	Reply   models.PublicReply
}

// Messenger records messages. FailDirect selects direct messages that fail.
type Messenger struct {
	mu         sync.Mutex
	Direct     []SentDirect
	Replies    []SentReply
	FailDirect func(recipient string, msg models.DirectMessage) bool
	FailReply  bool
}

func (m *Messenger) SendDirect(_ context.Context, recipientID string, msg models.DirectMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDirect != nil && m.FailDirect(recipientID, msg) {
		return fmt.Errorf("%w: recipient does not accept messages", models.ErrMessagingFailure)
	}
	m.Direct = append(m.Direct, SentDirect{Recipient: recipientID, Message: msg})
	return nil
}

func (m *Messenger) Reply(_ context.Context, eventID string, reply models.PublicReply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReply {
		return fmt.Errorf("%w: reply rejected", models.ErrMessagingFailure)
	}
	m.Replies = append(m.Replies, SentReply{EventID: eventID, Reply: reply})
	return nil
}

// DirectTo returns the messages sent to recipient.
func (m *Messenger) DirectTo(recipient string) []models.DirectMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DirectMessage
	for _, d := range m.Direct {
		if d.Recipient == recipient {
			out = append(out, d.Message)
		}
	}
	return out
}

// RepliesTo returns the replies posted under eventID.
func (m *Messenger) RepliesTo(eventID string) []models.PublicReply {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PublicReply
	for _, r := range m.Replies {
		if r.EventID == eventID {
			out = append(out, r.Reply)
		}
	}
	return out
}

// Ledger is a deterministic ledger fake.
type Ledger struct {
	mu         sync.Mutex
	Unconfig   bool
	CreateErr  error
	Balances   map[string]*big.Int
	BalanceErr error
	n          int
	accounts   []string
}

func (l *Ledger) Configured() bool { return !l.Unconfig }

func (l *Ledger) GenerateKey() (*models.KeyPair, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.n++
	return &models.KeyPair{
		PrivateKey: fmt.Sprintf("%064x", l.n),
		PublicKey:  fmt.Sprintf("pub%d", l.n),
		Address:    fmt.Sprintf("cb%042x", l.n),
	}, nil
}

func (l *Ledger) CreateAccount(_ context.Context, address string) (string, error) {
	if l.CreateErr != nil {
		return "", l.CreateErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts = append(l.accounts, address)
	return "tx-" + address, nil
}

// Accounts returns the addresses an on-chain account was created for.
func (l *Ledger) Accounts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.accounts...)
}

func (l *Ledger) Balance(_ context.Context, address string) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.BalanceErr != nil {
		return nil, l.BalanceErr
	}
	if b, ok := l.Balances[address]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

// Feed serves a fixed list of inbound events.
type Feed struct {
	mu     sync.Mutex
	Events []*models.InboundEvent
	Err    error
}

func (f *Feed) FetchMentions(_ context.Context, since time.Time) ([]*models.InboundEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []*models.InboundEvent
	for _, ev := range f.Events {
		if ev.CreatedAt.IsZero() || !ev.CreatedAt.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Deferrer runs tasks when Flush is called, ignoring the delay.
type Deferrer struct {
	mu     sync.Mutex
	tasks  []func()
	Delays []time.Duration
}

func (d *Deferrer) Submit(task func(), delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, task)
	d.Delays = append(d.Delays, delay)
}

// Pending returns the number of tasks not yet flushed.
func (d *Deferrer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// Flush runs all submitted tasks.
func (d *Deferrer) Flush() {
	d.mu.Lock()
	tasks := d.tasks
	d.tasks = nil
	d.mu.Unlock()
	for _, task := range tasks {
		task()
	}
}

// Alerter records operator alerts.
type Alerter struct {
	mu       sync.Mutex
	Subjects []string
}

func (a *Alerter) Alert(subject, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Subjects = append(a.Subjects, subject)
}

func (a *Alerter) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Subjects)
}

// ErrBoom is a generic injected failure.
var ErrBoom = errors.New("boom")
