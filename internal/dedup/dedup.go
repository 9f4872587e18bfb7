// Package dedup keeps the exactly-once ledger of inbound events.
package dedup

import (
	"context"
	"time"

	"github.com/core-coin/donum/internal/models"
	"github.com/core-coin/donum/pkg/logger"
)

type store interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	UpsertProcessedEvent(ctx context.Context, event *models.ProcessedEvent) error
	DeleteProcessedEventsBefore(ctx context.Context, before time.Time) (int64, error)
}

// Cache is an optional fast path in front of the store. It is never authoritative.
type Cache interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Remember(ctx context.Context, eventID string) error
}

type Deduplicator struct {
	logger *logger.Logger
	repo   store
	cache  Cache

	freshness time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewDeduplicator creates a deduplicator. cache may be nil.
func NewDeduplicator(repo store, cache Cache, freshness, retention time.Duration, logger *logger.Logger) *Deduplicator {
	return &Deduplicator{
		logger:    logger,
		repo:      repo,
		cache:     cache,
		freshness: freshness,
		retention: retention,
		now:       time.Now,
	}
}

func (d *Deduplicator) WithClock(now func() time.Time) *Deduplicator {
	d.now = now
	return d
}

// IsProcessed reports whether the event was already handled.
// A storage failure is reported as not processed so no event is dropped.
func (d *Deduplicator) IsProcessed(ctx context.Context, eventID string) bool {
	if d.cache != nil {
		if seen, err := d.cache.Seen(ctx, eventID); err == nil && seen {
			return true
		}
	}

	processed, err := d.repo.IsEventProcessed(ctx, eventID)
	if err != nil {
		d.logger.Warn("Failed to check processed event, treating as new", "event", eventID, "error", err)
		return false
	}
	return processed
}

// MarkProcessed records the outcome of an event. Failures are logged and swallowed.
func (d *Deduplicator) MarkProcessed(ctx context.Context, event *models.InboundEvent, outcome models.Outcome) {
	err := d.repo.UpsertProcessedEvent(ctx, &models.ProcessedEvent{
		EventID:      event.ID,
		AuthorID:     event.AuthorID,
		AuthorHandle: event.AuthorHandle,
		RawText:      event.Text,
		ProcessedAt:  d.now().UTC(),
		Outcome:      outcome,
	})
	if err != nil {
		d.logger.Error("Failed to mark event as processed", "event", event.ID, "outcome", outcome, "error", err)
		return
	}

	if d.cache != nil {
		if err := d.cache.Remember(ctx, event.ID); err != nil {
			d.logger.Debug("Failed to cache processed event", "event", event.ID, "error", err)
		}
	}
}

// IsFresh reports whether the event is inside the freshness window.
// Events without a timestamp are considered fresh.
func (d *Deduplicator) IsFresh(event *models.InboundEvent) bool {
	if event.CreatedAt.IsZero() {
		return true
	}
	return d.now().Sub(event.CreatedAt) <= d.freshness
}

// Sweep deletes ledger rows older than the retention horizon.
func (d *Deduplicator) Sweep(ctx context.Context) (int64, error) {
	return d.repo.DeleteProcessedEventsBefore(ctx, d.now().UTC().Add(-d.retention))
}
