package models

import "time"

// Wallet represents a wallet provisioned for one external user.
type Wallet struct {
	// ID is the unique identifier for the wallet.
	ID int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	// ExternalUserID is the requester's id on the messaging platform. One wallet per id.
	ExternalUserID string `json:"external_user_id" gorm:"column:external_user_id;uniqueIndex;not null"`
	// Handle is the display handle of the requester at creation time.
	Handle string `json:"handle" gorm:"column:handle"`
	// SecretEncrypted is the private key sealed with the recovery password (salt:nonce:ciphertext).
	SecretEncrypted string `json:"-" gorm:"column:secret_encrypted;not null"`
	// RecoveryPasswordHash is the sha256 of the recovery password.
	RecoveryPasswordHash string `json:"-" gorm:"column:recovery_password_hash;not null"`
	// PublicKey is the hex encoded public key.
	PublicKey string `json:"public_key" gorm:"column:public_key"`
	// Address is the ledger address derived from the key.
	Address string `json:"address" gorm:"column:address;index"`
	// OnChainID is set when the ledger account was created. Use Account() to read it.
	OnChainID *string `json:"on_chain_id,omitempty" gorm:"column:on_chain_id"`
	// CreatedAt is the creation time in UTC.
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;index;not null"`

	ClaimLinkGenerated       bool       `json:"claim_link_generated" gorm:"column:claim_link_generated;default:false"`
	FirstMessageSent         bool       `json:"first_message_sent" gorm:"column:first_message_sent;default:false"`
	FirstMessageFailedAt     *time.Time `json:"first_message_failed_at,omitempty" gorm:"column:first_message_failed_at"`
	SecondMessageScheduledAt *time.Time `json:"second_message_scheduled_at,omitempty" gorm:"column:second_message_scheduled_at"`
	SecondMessageSent        bool       `json:"second_message_sent" gorm:"column:second_message_sent;default:false"`
	SecondMessageFailedAt    *time.Time `json:"second_message_failed_at,omitempty" gorm:"column:second_message_failed_at"`
	ClaimAccessedAt          *time.Time `json:"claim_accessed_at,omitempty" gorm:"column:claim_accessed_at"`

	// IsFunded flips once the ledger reports a positive balance.
	IsFunded bool `json:"is_funded" gorm:"column:is_funded;index;default:false"`
	// AirdropSent is owned by the downstream airdrop campaign.
	AirdropSent     bool       `json:"airdrop_sent" gorm:"column:airdrop_sent;default:false"`
	PreEventSentAt  *time.Time `json:"pre_event_sent_at,omitempty" gorm:"column:pre_event_sent_at"`
	PostEventSentAt *time.Time `json:"post_event_sent_at,omitempty" gorm:"column:post_event_sent_at"`
}

// Account returns the ledger account variant of the wallet.
func (w *Wallet) Account() LedgerAccount {
	if w.OnChainID == nil || *w.OnChainID == "" {
		return KeysOnly{}
	}
	return OnChain{ID: *w.OnChainID}
}

// SetAccount stores the given ledger account variant on the wallet.
func (w *Wallet) SetAccount(account LedgerAccount) {
	switch a := account.(type) {
	case OnChain:
		id := a.ID
		w.OnChainID = &id
	case KeysOnly:
		w.OnChainID = nil
	}
}

// DeliveryState is the position of a wallet in the credential delivery sequence.
type DeliveryState string

const (
	StateCreated         DeliveryState = "created"
	StateClaimLinkIssued DeliveryState = "claim_link_issued"
	StateFirstSent       DeliveryState = "first_sent"
	StateFirstFailed     DeliveryState = "first_failed"
	StateSecondScheduled DeliveryState = "second_scheduled"
	StateSecondSent      DeliveryState = "second_sent"
	StateSecondFailed    DeliveryState = "second_failed"
)

// DeliveryState derives the current delivery state from the wallet flags.
func (w *Wallet) DeliveryState() DeliveryState {
	switch {
	case w.FirstMessageFailedAt != nil:
		return StateFirstFailed
	case w.SecondMessageSent:
		return StateSecondSent
	case w.SecondMessageFailedAt != nil:
		return StateSecondFailed
	case w.SecondMessageScheduledAt != nil:
		return StateSecondScheduled
	case w.FirstMessageSent:
		return StateFirstSent
	case w.ClaimLinkGenerated:
		return StateClaimLinkIssued
	default:
		return StateCreated
	}
}

// LedgerAccount is either OnChain or KeysOnly.
type LedgerAccount interface {
	isLedgerAccount()
}

// OnChain is a wallet whose account exists on the ledger.
type OnChain struct {
	ID string
}

// KeysOnly is a wallet that only has key material; the ledger was not configured at creation.
type KeysOnly struct{}

func (OnChain) isLedgerAccount()  {}
func (KeysOnly) isLedgerAccount() {}

// KeyPair is freshly generated key material.
type KeyPair struct {
	PrivateKey string
	PublicKey  string
	Address    string
}

// ProvisionedWallet is returned once by the provisioner and carries the raw secret.
// It must never be persisted.
type ProvisionedWallet struct {
	Wallet           *Wallet
	SecretKey        string
	RecoveryPassword string
}

// AuditEntry is an append-only record of sensitive operations.
type AuditEntry struct {
	ID             string    `json:"id" gorm:"column:id;primaryKey;size:36"`
	ExternalUserID string    `json:"external_user_id" gorm:"column:external_user_id;index"`
	Action         string    `json:"action" gorm:"column:action;index;not null"`
	Details        string    `json:"details" gorm:"column:details"`
	CreatedAt      time.Time `json:"created_at" gorm:"column:created_at;index"`
}

const AuditWalletCreated = "WALLET_CREATED"

// WaitlistEntry is a user who asked to be added to the waitlist.
type WaitlistEntry struct {
	ID             int64      `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ExternalUserID string     `json:"external_user_id" gorm:"column:external_user_id;uniqueIndex;not null"`
	Handle         string     `json:"handle" gorm:"column:handle"`
	SourceEventID  string     `json:"source_event_id" gorm:"column:source_event_id"`
	JoinedAt       time.Time  `json:"joined_at" gorm:"column:joined_at"`
	Notified       bool       `json:"notified" gorm:"column:notified;default:false"`
	NotifiedAt     *time.Time `json:"notified_at,omitempty" gorm:"column:notified_at"`
}
