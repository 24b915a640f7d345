package models

import "time"

// Leaderboard period buckets.
const (
	// LeaderboardPeriodDaily ranks a single day.
	LeaderboardPeriodDaily = "daily"
	// LeaderboardPeriodWeekly ranks an ISO week.
	LeaderboardPeriodWeekly = "weekly"
	// LeaderboardPeriodMonthly ranks a calendar month.
	LeaderboardPeriodMonthly = "monthly"
	// LeaderboardPeriodAllTime ranks all recorded progress.
	LeaderboardPeriodAllTime = "all_time"
)

// LeaderboardEntry is one derived ranking row. Entries are fully
// replaced by periodic recomputation, never patched incrementally.
type LeaderboardEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex:idx_leaderboard_user_period"` // Related user ID.
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`    // Related user record.

	Period      string    `gorm:"type:varchar(16);not null;uniqueIndex:idx_leaderboard_user_period"` // Period bucket.
	PeriodStart time.Time `gorm:"not null;uniqueIndex:idx_leaderboard_user_period"`                  // Bucket start, UTC.

	Score          float64 `gorm:"type:decimal(6,2);not null;default:0"` // Ranking score (average band).
	TestsCompleted int     `gorm:"not null;default:0"`                   // Attempts within the bucket.
	Rank           int     `gorm:"not null;default:0;index"`             // Dense rank, 1 is best.

	ComputedAt time.Time `gorm:"not null"` // When the snapshot was computed.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
