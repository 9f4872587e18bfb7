package models

import (
	"context"
	"time"
)

// Messenger is the messaging collaborator used for outbound notifications.
type Messenger interface {
	// SendDirect hands a private message to the platform. An error means it was not delivered.
	SendDirect(ctx context.Context, recipientID string, msg DirectMessage) error
	// Reply posts a public reply under the given inbound event.
	Reply(ctx context.Context, eventID string, reply PublicReply) error
}

// MentionFeed returns inbound events that mention the service.
type MentionFeed interface {
	FetchMentions(ctx context.Context, since time.Time) ([]*InboundEvent, error)
}

// Alerter notifies operators about failures that need manual intervention.
type Alerter interface {
	Alert(subject, body string)
}
