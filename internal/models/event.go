package models

import "time"

// Outcome is the result recorded for a processed inbound event.
type Outcome string

const (
	OutcomeWalletCreated         Outcome = "wallet_created"
	OutcomeWalletCreatedDMFailed Outcome = "wallet_created_dm_failed"
	OutcomeAlreadyHasWallet      Outcome = "already_has_wallet"
	OutcomeRateLimited           Outcome = "rate_limited"
	OutcomeDailyLimit            Outcome = "daily_limit"
	OutcomeIgnoredNoTrigger      Outcome = "ignored_no_trigger"
	OutcomeWaitlistAdded         Outcome = "waitlist_added"
	OutcomeAlreadyOnWaitlist     Outcome = "already_on_waitlist"
	OutcomeError                 Outcome = "error"
)

// ProcessedEvent is the exactly-once ledger entry for an inbound event.
type ProcessedEvent struct {
	EventID      string    `json:"event_id" gorm:"column:event_id;primaryKey;size:255"`
	AuthorID     string    `json:"author_id" gorm:"column:author_id;index"`
	AuthorHandle string    `json:"author_handle" gorm:"column:author_handle"`
	RawText      string    `json:"raw_text" gorm:"column:raw_text"`
	ProcessedAt  time.Time `json:"processed_at" gorm:"column:processed_at;index"`
	Outcome      Outcome   `json:"outcome" gorm:"column:outcome;index"`
}

// RateLimitRecord is one counted action of an actor.
type RateLimitRecord struct {
	ID        int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ActorID   string    `json:"actor_id" gorm:"column:actor_id;index:idx_rate_actor_action_time,priority:1;not null"`
	Action    string    `json:"action" gorm:"column:action;index:idx_rate_actor_action_time,priority:2;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;index:idx_rate_actor_action_time,priority:3"`
}

// InboundEvent is a candidate trigger received from the mention feed.
type InboundEvent struct {
	ID           string
	AuthorID     string
	AuthorHandle string
	Text         string
	CreatedAt    time.Time
}

// Claim is the payload sealed inside a claim token.
type Claim struct {
	ExternalUserID   string `json:"uid"`
	Handle           string `json:"handle"`
	SecretKey        string `json:"secret"`
	RecoveryPassword string `json:"password"`
	Address          string `json:"address"`
	OnChainID        string `json:"account,omitempty"`
	// ExpiresAt is the absolute expiry in unix milliseconds.
	ExpiresAt int64 `json:"exp"`
}

// DeliveryStats aggregates delivery and processing counters.
type DeliveryStats struct {
	TotalWallets         int64             `json:"total_wallets"`
	ClaimLinksGenerated  int64             `json:"claim_links_generated"`
	FirstMessagesSent    int64             `json:"first_messages_sent"`
	FirstMessagesFailed  int64             `json:"first_messages_failed"`
	SecondMessagesSent   int64             `json:"second_messages_sent"`
	SecondMessagesFailed int64             `json:"second_messages_failed"`
	ClaimsAccessed       int64             `json:"claims_accessed"`
	FundedWallets        int64             `json:"funded_wallets"`
	WaitlistSize         int64             `json:"waitlist_size"`
	Outcomes             map[Outcome]int64 `json:"outcomes"`
	WalletsToday         int64             `json:"wallets_today"`
	RemainingToday       int64             `json:"remaining_today"`
}
