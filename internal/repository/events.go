package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/core-coin/donum/internal/models"
)

func (db *DB) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var count int64
	if err := db.Conn.WithContext(ctx).Model(&models.ProcessedEvent{}).Where("event_id = ?", eventID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return count > 0, nil
}

// UpsertProcessedEvent inserts the event or overwrites the outcome of an existing row.
func (db *DB) UpsertProcessedEvent(ctx context.Context, event *models.ProcessedEvent) error {
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now().UTC()
	}
	err := db.Conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"outcome", "processed_at", "author_id", "author_handle", "raw_text"}),
	}).Create(event).Error
	if err != nil {
		return fmt.Errorf("failed to upsert processed event: %w", err)
	}
	return nil
}

func (db *DB) GetProcessedEvent(ctx context.Context, eventID string) (*models.ProcessedEvent, error) {
	var event models.ProcessedEvent
	if err := db.Conn.WithContext(ctx).Where("event_id = ?", eventID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get processed event: %w", err)
	}
	return &event, nil
}

func (db *DB) DeleteProcessedEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	res := db.Conn.WithContext(ctx).Where("processed_at < ?", before.UTC()).Delete(&models.ProcessedEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to remove old processed events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (db *DB) CountRateLimitRecords(ctx context.Context, actorID, action string, since time.Time) (int64, error) {
	var count int64
	if err := db.Conn.WithContext(ctx).Model(&models.RateLimitRecord{}).
		Where("actor_id = ? AND action = ? AND created_at > ?", actorID, action, since.UTC()).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count rate limit records: %w", err)
	}
	return count, nil
}

func (db *DB) AddRateLimitRecord(ctx context.Context, record *models.RateLimitRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if err := db.Conn.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to add rate limit record: %w", err)
	}
	return nil
}

func (db *DB) DeleteRateLimitRecordsBefore(ctx context.Context, before time.Time) (int64, error) {
	res := db.Conn.WithContext(ctx).Where("created_at < ?", before.UTC()).Delete(&models.RateLimitRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to remove old rate limit records: %w", res.Error)
	}
	return res.RowsAffected, nil
}
