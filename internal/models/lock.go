package models

import "time"

// AppLock is a named lease in the database.
// Campaign runs take one so that only a single instance sends a batch.
type AppLock struct {
	LockName   string    `gorm:"primaryKey;size:255"`
	InstanceID string    `gorm:"size:255;not null"`
	AcquiredAt time.Time `gorm:"not null;index"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// TableName specifies the table name for GORM
func (AppLock) TableName() string {
	return "app_locks"
}
