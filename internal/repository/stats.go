package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/core-coin/donum/internal/models"
)

// DeliveryStats counts delivery progress over all wallets. since bounds WalletsToday.
func (db *DB) DeliveryStats(ctx context.Context, since time.Time) (*models.DeliveryStats, error) {
	conn := db.Conn.WithContext(ctx)
	stats := &models.DeliveryStats{Outcomes: map[models.Outcome]int64{}}

	counters := []struct {
		dst   *int64
		query string
		args  []interface{}
	}{
		{&stats.TotalWallets, "1 = 1", nil},
		{&stats.ClaimLinksGenerated, "claim_link_generated = ?", []interface{}{true}},
		{&stats.FirstMessagesSent, "first_message_sent = ?", []interface{}{true}},
		{&stats.FirstMessagesFailed, "first_message_failed_at IS NOT NULL", nil},
		{&stats.SecondMessagesSent, "second_message_sent = ?", []interface{}{true}},
		{&stats.SecondMessagesFailed, "second_message_failed_at IS NOT NULL", nil},
		{&stats.ClaimsAccessed, "claim_accessed_at IS NOT NULL", nil},
		{&stats.FundedWallets, "is_funded = ?", []interface{}{true}},
		{&stats.WalletsToday, "created_at >= ?", []interface{}{since.UTC()}},
	}
	for _, c := range counters {
		if err := conn.Model(&models.Wallet{}).Where(c.query, c.args...).Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("failed to count wallets: %w", err)
		}
	}

	if err := conn.Model(&models.WaitlistEntry{}).Count(&stats.WaitlistSize).Error; err != nil {
		return nil, fmt.Errorf("failed to count waitlist: %w", err)
	}

	var rows []struct {
		Outcome models.Outcome
		Total   int64
	}
	if err := conn.Model(&models.ProcessedEvent{}).
		Select("outcome, count(*) AS total").
		Group("outcome").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	for _, r := range rows {
		stats.Outcomes[r.Outcome] = r.Total
	}

	return stats, nil
}
