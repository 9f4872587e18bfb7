package models

import "time"

// DirectMessage is a private notification to one recipient.
// The set of kinds is closed; each kind carries its own parameters.
type DirectMessage interface {
	directMessage()
}

// PublicReply is a reply visible under the triggering event.
// No reply kind has a field that can hold a secret or a claim link.
type PublicReply interface {
	publicReply()
}

// CredentialsMessage is the first message. It carries the claim link.
type CredentialsMessage struct {
	Handle   string
	ClaimURL string
	Address  string
	Account  LedgerAccount
	TTL      time.Duration
}

// SetupGuideMessage is the follow-up message with setup guidance.
type SetupGuideMessage struct {
	Handle  string
	Address string
}

type PreEventReminderMessage struct {
	Handle    string
	Address   string
	EventTime time.Time
}

type PostEventConfirmationMessage struct {
	Handle  string
	Address string
}

// WaitlistWelcomeMessage confirms a waitlist signup in private.
type WaitlistWelcomeMessage struct {
	Handle string
}

func (CredentialsMessage) directMessage()           {}
func (SetupGuideMessage) directMessage()            {}
func (PreEventReminderMessage) directMessage()      {}
func (PostEventConfirmationMessage) directMessage() {}
func (WaitlistWelcomeMessage) directMessage()       {}

type WalletReadyReply struct {
	Handle string
}

type AlreadyHasWalletReply struct {
	Handle string
}

type RateLimitedReply struct {
	Handle string
}

type DailyLimitReply struct {
	Handle string
}

type WaitlistReply struct {
	Handle        string
	AlreadyJoined bool
}

type ProvisioningFailedReply struct {
	Handle string
}

func (WalletReadyReply) publicReply()        {}
func (AlreadyHasWalletReply) publicReply()   {}
func (RateLimitedReply) publicReply()        {}
func (DailyLimitReply) publicReply()         {}
func (WaitlistReply) publicReply()           {}
func (ProvisioningFailedReply) publicReply() {}
