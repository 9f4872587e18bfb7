package notificator

import (
	"context"
	"testing"
	"time"

	tgModels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/donum/pkg/logger"
)

func TestTelegramMentionBuffer(t *testing.T) {
	tn := &TelegramNotificator{logger: logger.NewNopLogger(), username: "donum_bot"}
	tn.listening.Store(true)
	now := time.Now().UTC().Truncate(time.Second)

	message := func(id int, text string, at time.Time) *tgModels.Update {
		return &tgModels.Update{Message: &tgModels.Message{
			ID:   id,
			Date: int(at.Unix()),
			Text: text,
			Chat: tgModels.Chat{ID: -100},
			From: &tgModels.User{ID: 7, Username: "alice"},
		}}
	}

	tn.handler(context.Background(), nil, message(1, "@Donum_Bot create wallet", now))
	tn.handler(context.Background(), nil, message(2, "hello everyone", now))
	tn.handler(context.Background(), nil, message(3, "@donum_bot add me to waitlist", now.Add(-time.Hour)))
	tn.handler(context.Background(), nil, &tgModels.Update{})

	events, err := tn.FetchMentions(context.Background(), now.Add(-5*time.Minute))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "-100:1", events[0].ID)
	assert.Equal(t, "7", events[0].AuthorID)
	assert.Equal(t, "alice", events[0].AuthorHandle)
	assert.True(t, now.Equal(events[0].CreatedAt))

	// stale mention was dropped, fresh one is served again until it ages out
	events, err = tn.FetchMentions(context.Background(), now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Len(t, events, 1)

	events, err = tn.FetchMentions(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestTelegramPollsOnlyAfterListen(t *testing.T) {
	polls := make(chan struct{}, 2)
	tn := &TelegramNotificator{
		logger:   logger.NewNopLogger(),
		username: "donum_bot",
		poll:     func(context.Context) { polls <- struct{}{} },
	}

	_, err := tn.FetchMentions(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrNotListening)
	assert.Empty(t, polls)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tn.Listen(ctx)
	tn.Listen(ctx)

	select {
	case <-polls:
	case <-time.After(time.Second):
		t.Fatal("update polling was not started")
	}
	select {
	case <-polls:
		t.Fatal("update polling started twice")
	case <-time.After(50 * time.Millisecond):
	}

	events, err := tn.FetchMentions(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, events)
}
