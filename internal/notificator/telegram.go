package notificator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-telegram/bot"
	tgModels "github.com/go-telegram/bot/models"

	"github.com/core-coin/donum/internal/models"
	"github.com/core-coin/donum/pkg/logger"
)

const maxBufferedMentions = 1000

// ErrNotListening is returned by FetchMentions before Listen was called.
var ErrNotListening = errors.New("telegram update polling is not running")

// TelegramNotificator is the Telegram transport. After Listen it also buffers
// group messages that mention the bot and serves them as a models.MentionFeed.
// Send-only processes never call Listen, so they never consume updates.
type TelegramNotificator struct {
	logger   *logger.Logger
	bot      *bot.Bot
	username string

	listening atomic.Bool
	poll      func(ctx context.Context)

	mu       sync.Mutex
	mentions []*models.InboundEvent
}

var (
	_ Transport          = (*TelegramNotificator)(nil)
	_ models.MentionFeed = (*TelegramNotificator)(nil)
)

func NewTelegramNotificator(logger *logger.Logger, token, username string) (*TelegramNotificator, error) {
	provider := &TelegramNotificator{
		logger:   logger,
		username: strings.TrimPrefix(username, "@"),
	}
	opts := []bot.Option{
		bot.WithDefaultHandler(provider.handler),
	}

	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	provider.bot = b
	provider.poll = b.Start

	return provider, nil
}

// Listen starts update polling until ctx is done. Only one process per bot
// token may poll; later calls are no-ops.
func (t *TelegramNotificator) Listen(ctx context.Context) {
	if t.listening.Swap(true) {
		return
	}
	go t.poll(ctx)
}

func (t *TelegramNotificator) SendText(ctx context.Context, chatID, text string) error {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	if _, err := t.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

func (t *TelegramNotificator) ReplyText(ctx context.Context, eventID, text string) error {
	chatID, messageID, err := ParseEventID(eventID)
	if err != nil {
		return err
	}
	params := &bot.SendMessageParams{
		ChatID:          chatID,
		Text:            text,
		ReplyParameters: &tgModels.ReplyParameters{MessageID: messageID},
	}
	if _, err := t.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send telegram reply: %w", err)
	}
	return nil
}

// FetchMentions returns buffered mentions not older than since and forgets older ones.
func (t *TelegramNotificator) FetchMentions(_ context.Context, since time.Time) ([]*models.InboundEvent, error) {
	if !t.listening.Load() {
		return nil, ErrNotListening
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.mentions[:0]
	for _, ev := range t.mentions {
		if !ev.CreatedAt.Before(since) {
			kept = append(kept, ev)
		}
	}
	t.mentions = kept

	out := make([]*models.InboundEvent, len(kept))
	copy(out, kept)
	return out, nil
}

func (t *TelegramNotificator) handler(_ context.Context, _ *bot.Bot, update *tgModels.Update) {
	if update == nil || update.Message == nil {
		return
	}
	ev := t.eventFromMessage(update.Message)
	if ev == nil {
		return
	}
	t.logger.Debug("Telegram mention received", "event", ev.ID, "author", ev.AuthorHandle)

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.mentions) >= maxBufferedMentions {
		t.mentions = t.mentions[1:]
	}
	t.mentions = append(t.mentions, ev)
}

func (t *TelegramNotificator) eventFromMessage(msg *tgModels.Message) *models.InboundEvent {
	if msg.From == nil {
		t.logger.Debug("Ignoring message without author")
		return nil
	}
	if t.username == "" || !strings.Contains(strings.ToLower(msg.Text), "@"+strings.ToLower(t.username)) {
		return nil
	}
	return &models.InboundEvent{
		ID:           FormatEventID(msg.Chat.ID, msg.ID),
		AuthorID:     strconv.FormatInt(msg.From.ID, 10),
		AuthorHandle: msg.From.Username,
		Text:         msg.Text,
		CreatedAt:    time.Unix(int64(msg.Date), 0).UTC(),
	}
}

// FormatEventID builds the inbound event id "chatID:messageID".
func FormatEventID(chatID int64, messageID int) string {
	return fmt.Sprintf("%d:%d", chatID, messageID)
}

// ParseEventID splits an event id built by FormatEventID.
func ParseEventID(eventID string) (string, int, error) {
	chat, msg, ok := strings.Cut(eventID, ":")
	if !ok || chat == "" {
		return "", 0, fmt.Errorf("malformed event id %q", eventID)
	}
	if _, err := strconv.ParseInt(chat, 10, 64); err != nil {
		return "", 0, fmt.Errorf("malformed chat id in %q: %w", eventID, err)
	}
	messageID, err := strconv.Atoi(msg)
	if err != nil {
		return "", 0, fmt.Errorf("malformed message id in %q: %w", eventID, err)
	}
	return chat, messageID, nil
}
