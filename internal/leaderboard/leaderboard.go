// Package leaderboard derives ranked snapshots from daily progress.
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/qanotai/qanotai-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service recomputes leaderboard snapshots. Recomputation is a full
// replace per (period, bucket): aggregate, upsert, prune, in one
// transaction. Re-running with unchanged progress yields identical
// ranks.
type Service struct {
	db *gorm.DB
}

// NewService constructs a Service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// PeriodStart returns the start of the bucket containing t for the
// given period. The all-time bucket starts at the zero time.
func PeriodStart(period string, t time.Time) time.Time {
	t = t.UTC()
	switch period {
	case models.LeaderboardPeriodDaily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case models.LeaderboardPeriodWeekly:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7 // Monday start.
		return day.AddDate(0, 0, -offset)
	case models.LeaderboardPeriodMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Time{}
	}
}

// periodEnd returns the exclusive end of the bucket starting at start.
func periodEnd(period string, start time.Time) time.Time {
	switch period {
	case models.LeaderboardPeriodDaily:
		return start.AddDate(0, 0, 1)
	case models.LeaderboardPeriodWeekly:
		return start.AddDate(0, 0, 7)
	case models.LeaderboardPeriodMonthly:
		return start.AddDate(0, 1, 0)
	default:
		return time.Time{}
	}
}

// aggregate is one user's summed progress within a bucket.
type aggregate struct {
	UserID         uint64
	TestsCompleted int
	TotalBand      float64
}

// score is the ranking key: average band across the bucket's tests.
func (a aggregate) score() float64 {
	if a.TestsCompleted == 0 {
		return 0
	}
	return a.TotalBand / float64(a.TestsCompleted)
}

// Recompute rebuilds the snapshot for the bucket containing now.
func (s *Service) Recompute(ctx context.Context, period string, now time.Time) error {
	switch period {
	case models.LeaderboardPeriodDaily, models.LeaderboardPeriodWeekly,
		models.LeaderboardPeriodMonthly, models.LeaderboardPeriodAllTime:
	default:
		return fmt.Errorf("leaderboard: unknown period %q", period)
	}

	start := PeriodStart(period, now)
	computedAt := now.UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&models.DailyProgress{}).
			Select("user_id, SUM(tests_completed) AS tests_completed, SUM(total_band) AS total_band").
			Where("tests_completed > 0").
			Group("user_id")
		if period != models.LeaderboardPeriodAllTime {
			query = query.Where("date >= ? AND date < ?", start, periodEnd(period, start))
		}

		var rows []aggregate
		if errScan := query.Scan(&rows).Error; errScan != nil {
			return fmt.Errorf("leaderboard: aggregate: %w", errScan)
		}

		entries := rankEntries(period, start, computedAt, rows)
		if len(entries) > 0 {
			if errUpsert := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}, {Name: "period"}, {Name: "period_start"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"score", "tests_completed", "rank", "computed_at", "updated_at",
				}),
			}).Create(&entries).Error; errUpsert != nil {
				return fmt.Errorf("leaderboard: upsert: %w", errUpsert)
			}
		}

		// Drop entries for users with no progress left in the bucket.
		if errPrune := tx.Where("period = ? AND period_start = ? AND computed_at < ?", period, start, computedAt).
			Delete(&models.LeaderboardEntry{}).Error; errPrune != nil {
			return fmt.Errorf("leaderboard: prune: %w", errPrune)
		}
		return nil
	})
}

// RecomputeAll rebuilds every period's current bucket.
func (s *Service) RecomputeAll(ctx context.Context, now time.Time) error {
	for _, period := range []string{
		models.LeaderboardPeriodDaily,
		models.LeaderboardPeriodWeekly,
		models.LeaderboardPeriodMonthly,
		models.LeaderboardPeriodAllTime,
	} {
		if err := s.Recompute(ctx, period, now); err != nil {
			return err
		}
	}
	return nil
}

// Top returns the best-ranked entries for the bucket containing now.
func (s *Service) Top(ctx context.Context, period string, now time.Time, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	start := PeriodStart(period, now)

	var entries []models.LeaderboardEntry
	if errFind := s.db.WithContext(ctx).
		Preload("User").
		Where("period = ? AND period_start = ?", period, start).
		Order("rank ASC, user_id ASC").
		Limit(limit).
		Find(&entries).Error; errFind != nil {
		return nil, fmt.Errorf("leaderboard: top: %w", errFind)
	}
	return entries, nil
}

// rankEntries sorts aggregates by descending score and assigns dense
// ranks: equal scores share a rank and the next distinct score gets the
// following rank number.
func rankEntries(period string, start, computedAt time.Time, rows []aggregate) []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, models.LeaderboardEntry{
			UserID:         row.UserID,
			Period:         period,
			PeriodStart:    start,
			Score:          row.score(),
			TestsCompleted: row.TestsCompleted,
			ComputedAt:     computedAt,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UserID < entries[j].UserID
	})

	rank := 0
	var lastScore float64
	for i := range entries {
		if i == 0 || entries[i].Score != lastScore {
			rank++
			lastScore = entries[i].Score
		}
		entries[i].Rank = rank
	}
	return entries
}
