package notificator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/time/rate"

	"github.com/core-coin/donum/internal/models"
	"github.com/core-coin/donum/pkg/logger"
)

// Transport delivers rendered text to the messaging platform.
type Transport interface {
	SendText(ctx context.Context, chatID, text string) error
	ReplyText(ctx context.Context, eventID, text string) error
}

// Notificator implements models.Messenger on top of a Transport. Every send waits
// for the shared throughput limiter and is bounded by the send timeout.
type Notificator struct {
	logger    *logger.Logger
	transport Transport
	limiter   *rate.Limiter
	timeout   time.Duration
}

var _ models.Messenger = (*Notificator)(nil)

func NewNotificator(transport Transport, messagesPerMinute int, timeout time.Duration, logger *logger.Logger) *Notificator {
	return &Notificator{
		logger:    logger,
		transport: transport,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(messagesPerMinute)), messagesPerMinute),
		timeout:   timeout,
	}
}

func (n *Notificator) SendDirect(ctx context.Context, recipientID string, msg models.DirectMessage) error {
	text, err := RenderDirect(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrMessagingFailure, err)
	}
	return n.send(ctx, fmt.Sprintf("direct:%T", msg), func(ctx context.Context) error {
		return n.transport.SendText(ctx, recipientID, text)
	})
}

func (n *Notificator) Reply(ctx context.Context, eventID string, reply models.PublicReply) error {
	text, err := RenderReply(reply)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrMessagingFailure, err)
	}
	return n.send(ctx, fmt.Sprintf("reply:%T", reply), func(ctx context.Context) error {
		return n.transport.ReplyText(ctx, eventID, text)
	})
}

// send waits for the limiter on the caller's context, then runs fn under the
// timeout. A timeout is a failure even if the transport ignores the context.
func (n *Notificator) send(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: throughput limiter: %v", models.ErrMessagingFailure, err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- n.safeCall(func() error { return fn(ctx) }, label)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrMessagingFailure, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %s timed out", models.ErrMessagingFailure, label)
	}
}

// safeCall runs a function with panic recovery and reports a panic as an error
func (n *Notificator) safeCall(fn func() error, context string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("panic in %s: %v", context, r)
		}
	}()
	return fn()
}
