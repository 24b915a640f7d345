package models

import "time"

// UsageQuota tracks tests consumed by a user within one billing period.
// Exactly one row exists per (user, period start); the composite unique
// index enforces it under concurrent lazy creation.
type UsageQuota struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex:idx_usage_quotas_user_period"` // Related user ID.
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`     // Related user record.

	PeriodStart time.Time `gorm:"not null;uniqueIndex:idx_usage_quotas_user_period"` // Period start date.
	PeriodEnd   time.Time `gorm:"not null"`                                          // Period end date, exclusive.

	TestsUsed  int `gorm:"not null;default:0"` // Tests consumed this period.
	TestsLimit int `gorm:"not null;default:0"` // Plan allowance, 0 = unlimited.
	BonusTests int `gorm:"not null;default:0"` // Extra tests from purchased packs.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Unlimited reports whether the quota row has no cap.
func (q *UsageQuota) Unlimited() bool { return q.TestsLimit <= 0 }

// Remaining returns the number of tests still available in the period.
func (q *UsageQuota) Remaining() int {
	if q.Unlimited() {
		return -1
	}
	left := q.TestsLimit + q.BonusTests - q.TestsUsed
	if left < 0 {
		return 0
	}
	return left
}
