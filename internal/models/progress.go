package models

import "time"

// DailyProgress accumulates one user's practice results for one day.
// Leaderboard snapshots are derived from these rows.
type DailyProgress struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex:idx_daily_progress_user_date"` // Related user ID.
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`     // Related user record.

	Date time.Time `gorm:"not null;uniqueIndex:idx_daily_progress_user_date"` // Calendar day, truncated to midnight UTC.

	TestsCompleted int     `gorm:"not null;default:0"`                   // Attempts finished that day.
	TotalBand      float64 `gorm:"type:decimal(6,1);not null;default:0"` // Sum of overall bands that day.
	BestBand       float64 `gorm:"type:decimal(3,1);not null;default:0"` // Best overall band that day.
	StudyMinutes   int     `gorm:"not null;default:0"`                   // Minutes spent practising.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Achievement marks a milestone earned by a user, granted at most once
// per code.
type Achievement struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex:idx_achievements_user_code"` // Related user ID.
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`   // Related user record.

	Code string `gorm:"type:varchar(64);not null;uniqueIndex:idx_achievements_user_code"` // Achievement identifier.
	Name string `gorm:"type:varchar(255);not null"`                                       // Display name.

	EarnedAt time.Time `gorm:"not null"` // When the milestone was reached.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
