package notificator

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/core-coin/donum/internal/models"
	"github.com/core-coin/donum/pkg/logger"
)

type fakeTransport struct {
	mu      sync.Mutex
	sent    map[string][]string
	replies map[string][]string
	err     error
	panics  bool
	block   time.Duration
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: map[string][]string{}, replies: map[string][]string{}}
}

func (f *fakeTransport) SendText(_ context.Context, chatID, text string) error {
	if f.panics {
		panic("transport exploded")
	}
	if f.block > 0 {
		time.Sleep(f.block)
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[chatID] = append(f.sent[chatID], text)
	return nil
}

func (f *fakeTransport) ReplyText(_ context.Context, eventID, text string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[eventID] = append(f.replies[eventID], text)
	return nil
}

func TestSendDirectCredentials(t *testing.T) {
	tr := newFakeTransport()
	n := NewNotificator(tr, 600, time.Second, logger.NewNopLogger())

	err := n.SendDirect(context.Background(), "42", models.CredentialsMessage{
		Handle:   "alice",
		ClaimURL: "https://claim.example.com/claim/TOKEN",
		Address:  "cb00",
		Account:  models.OnChain{ID: "0xtx"},
		TTL:      time.Hour,
	})
	require.NoError(t, err)
	require.Len(t, tr.sent["42"], 1)
	assert.Contains(t, tr.sent["42"][0], "https://claim.example.com/claim/TOKEN")
	assert.Contains(t, tr.sent["42"][0], "0xtx")
	assert.Contains(t, tr.sent["42"][0], "1 hour")
}

func TestSendFailuresAreMessagingFailures(t *testing.T) {
	ctx := context.Background()

	tr := newFakeTransport()
	tr.err = errors.New("forbidden: bot was blocked by the user")
	n := NewNotificator(tr, 600, time.Second, logger.NewNopLogger())
	err := n.SendDirect(ctx, "42", models.SetupGuideMessage{Handle: "a"})
	assert.ErrorIs(t, err, models.ErrMessagingFailure)

	tr = newFakeTransport()
	tr.panics = true
	n = NewNotificator(tr, 600, time.Second, logger.NewNopLogger())
	err = n.SendDirect(ctx, "42", models.SetupGuideMessage{Handle: "a"})
	assert.ErrorIs(t, err, models.ErrMessagingFailure)

	tr = newFakeTransport()
	tr.block = 200 * time.Millisecond
	n = NewNotificator(tr, 600, 20*time.Millisecond, logger.NewNopLogger())
	err = n.SendDirect(ctx, "42", models.SetupGuideMessage{Handle: "a"})
	assert.ErrorIs(t, err, models.ErrMessagingFailure)
}

func TestBurstBeyondBucketStillDelivers(t *testing.T) {
	tr := newFakeTransport()
	// bucket of 2 refilled every 25ms; the queue drains well past the send timeout
	n := &Notificator{
		logger:    logger.NewNopLogger(),
		transport: tr,
		limiter:   rate.NewLimiter(rate.Every(25*time.Millisecond), 2),
		timeout:   20 * time.Millisecond,
	}

	const burst = 8
	errs := make(chan error, burst)
	var wg sync.WaitGroup
	for i := 0; i < burst; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- n.SendDirect(context.Background(), "42", models.CredentialsMessage{
				Handle:   "alice",
				ClaimURL: "https://claim.example.com/claim/TOKEN",
				Address:  "cb00",
				Account:  models.KeysOnly{},
				TTL:      time.Hour,
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, tr.sent["42"], burst)
}

func TestLimiterWaitHonoursCallerContext(t *testing.T) {
	tr := newFakeTransport()
	n := NewNotificator(tr, 1, time.Second, logger.NewNopLogger())
	require.NoError(t, n.SendDirect(context.Background(), "42", models.SetupGuideMessage{Handle: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := n.SendDirect(ctx, "42", models.SetupGuideMessage{Handle: "a"})
	assert.ErrorIs(t, err, models.ErrMessagingFailure)
	assert.Len(t, tr.sent["42"], 1)
}

type unknownDirect struct{ models.SetupGuideMessage }

func TestUnknownKindsAreRejected(t *testing.T) {
	_, err := RenderReply(nil)
	assert.Error(t, err)

	_, err = RenderDirect(unknownDirect{})
	assert.Error(t, err)
}

func TestRepliesNeverCarrySecrets(t *testing.T) {
	replies := []models.PublicReply{
		models.WalletReadyReply{Handle: "alice"},
		models.AlreadyHasWalletReply{Handle: "alice"},
		models.RateLimitedReply{Handle: "alice"},
		models.DailyLimitReply{Handle: "alice"},
		models.WaitlistReply{Handle: "alice"},
		models.WaitlistReply{Handle: "alice", AlreadyJoined: true},
		models.ProvisioningFailedReply{Handle: "alice"},
	}
	for _, r := range replies {
		text, err := RenderReply(r)
		require.NoError(t, err)
		assert.Contains(t, text, "@alice")
		assert.NotContains(t, text, "/claim/")
		assert.NotContains(t, strings.ToLower(text), "private key")
		assert.NotContains(t, text, "http")
	}
}

func TestReplyUsesEventID(t *testing.T) {
	tr := newFakeTransport()
	n := NewNotificator(tr, 600, time.Second, logger.NewNopLogger())

	require.NoError(t, n.Reply(context.Background(), "-100:7", models.WalletReadyReply{Handle: "bob"}))
	require.Len(t, tr.replies["-100:7"], 1)
}

func TestEventIDRoundTrip(t *testing.T) {
	id := FormatEventID(-1001234, 56)
	assert.Equal(t, "-1001234:56", id)

	chat, msg, err := ParseEventID(id)
	require.NoError(t, err)
	assert.Equal(t, "-1001234", chat)
	assert.Equal(t, 56, msg)

	for _, bad := range []string{"", "123", ":5", "abc:5", "5:x"} {
		_, _, err := ParseEventID(bad)
		assert.Error(t, err, bad)
	}
}

func TestEmailAlert(t *testing.T) {
	e := NewEmailNotificator(logger.NewNopLogger(), "smtp.example.com", 587, "u", "p", "from@example.com", "ops@example.com")
	var got []byte
	e.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		assert.Equal(t, "smtp.example.com:587", addr)
		assert.Equal(t, []string{"ops@example.com"}, to)
		got = msg
		return nil
	}

	e.Alert("Ledger failure", "operator account underfunded")
	assert.Contains(t, string(got), "Subject: [donum] Ledger failure")

	unconfigured := NewEmailNotificator(logger.NewNopLogger(), "", 0, "", "", "", "")
	assert.NotPanics(t, func() { unconfigured.Alert("x", "y") })
}
