// Package quota accounts test usage against per-period allowances.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	dbutil "github.com/qanotai/qanotai-backend/internal/db"
	"github.com/qanotai/qanotai-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrQuotaExceeded is returned when a consume attempt would pass the
// period allowance.
var ErrQuotaExceeded = errors.New("quota exceeded for current period")

// Service manages per-user usage quotas. Quota rows are created lazily
// on first use within a billing period; the unique (user, period start)
// index keeps concurrent first touches from creating duplicates.
type Service struct {
	db *gorm.DB
}

// NewService constructs a Service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// PeriodBounds returns the calendar-month billing period containing t.
func PeriodBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// Current returns the quota row for the user's current period, creating
// it from the active plan's allowance if it does not exist yet.
func (s *Service) Current(ctx context.Context, userID uint64) (*models.UsageQuota, error) {
	return s.ensureRow(s.db.WithContext(ctx), userID, time.Now().UTC())
}

// Consume spends one test from the user's current period. It fails with
// ErrQuotaExceeded once tests_used reaches tests_limit plus bonus_tests.
// Unlimited plans always consume; the counter still advances for stats.
func (s *Service) Consume(ctx context.Context, userID uint64) (*models.UsageQuota, error) {
	now := time.Now().UTC()
	var row *models.UsageQuota

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		quota, errEnsure := s.ensureRow(tx, userID, now)
		if errEnsure != nil {
			return errEnsure
		}

		// Guarded increment: the WHERE clause re-checks the bound so a
		// concurrent consume cannot push usage past the allowance.
		update := tx.Model(&models.UsageQuota{}).
			Where("id = ?", quota.ID)
		if !quota.Unlimited() {
			update = update.Where("tests_used < tests_limit + bonus_tests")
		}
		result := update.Updates(map[string]any{
			"tests_used": gorm.Expr("tests_used + 1"),
			"updated_at": now,
		})
		if result.Error != nil {
			return fmt.Errorf("quota: consume: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrQuotaExceeded
		}

		if errReload := tx.First(quota, quota.ID).Error; errReload != nil {
			return fmt.Errorf("quota: reload: %w", errReload)
		}
		row = quota
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return row, nil
}

// AddBonus grants extra tests on top of the plan allowance for the
// current period.
func (s *Service) AddBonus(ctx context.Context, userID uint64, tests int) (*models.UsageQuota, error) {
	if tests <= 0 {
		return nil, fmt.Errorf("quota: bonus must be positive")
	}

	now := time.Now().UTC()
	var row *models.UsageQuota

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		quota, errEnsure := s.ensureRow(tx, userID, now)
		if errEnsure != nil {
			return errEnsure
		}
		if errUpdate := tx.Model(&models.UsageQuota{}).Where("id = ?", quota.ID).Updates(map[string]any{
			"bonus_tests": gorm.Expr("bonus_tests + ?", tests),
			"updated_at":  now,
		}).Error; errUpdate != nil {
			return fmt.Errorf("quota: add bonus: %w", errUpdate)
		}
		if errReload := tx.First(quota, quota.ID).Error; errReload != nil {
			return fmt.Errorf("quota: reload: %w", errReload)
		}
		row = quota
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return row, nil
}

// ensureRow loads the quota row for the period containing now, creating
// it with the active plan's allowance when missing.
func (s *Service) ensureRow(tx *gorm.DB, userID uint64, now time.Time) (*models.UsageQuota, error) {
	periodStart, periodEnd := PeriodBounds(now)

	var quota models.UsageQuota
	errFind := tx.Where("user_id = ? AND period_start = ?", userID, periodStart).First(&quota).Error
	if errFind == nil {
		return &quota, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("quota: lookup: %w", errFind)
	}

	limit, errLimit := s.planLimit(tx, userID)
	if errLimit != nil {
		return nil, errLimit
	}

	quota = models.UsageQuota{
		UserID:      userID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		TestsLimit:  limit,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	// A concurrent first touch may win the insert; fall back to its row.
	errCreate := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "period_start"}},
		DoNothing: true,
	}).Create(&quota).Error
	if errCreate != nil {
		return nil, fmt.Errorf("quota: create: %w", errCreate)
	}

	if errReload := dbutil.LockForUpdate(tx).
		Where("user_id = ? AND period_start = ?", userID, periodStart).
		First(&quota).Error; errReload != nil {
		return nil, fmt.Errorf("quota: reload: %w", errReload)
	}
	return &quota, nil
}

// planLimit resolves the monthly allowance from the user's active
// subscription, falling back to the free plan when none exists.
func (s *Service) planLimit(tx *gorm.DB, userID uint64) (int, error) {
	var sub models.Subscription
	errSub := tx.Where("user_id = ? AND status = ?", userID, models.SubscriptionStatusActive).
		Order("created_at DESC").
		First(&sub).Error
	switch {
	case errSub == nil:
		var plan models.Plan
		if errPlan := tx.First(&plan, sub.PlanID).Error; errPlan != nil {
			return 0, fmt.Errorf("quota: load plan: %w", errPlan)
		}
		return plan.MonthlyTestLimit, nil
	case errors.Is(errSub, gorm.ErrRecordNotFound):
		var free models.Plan
		if errFree := tx.Where("tier = ?", models.PlanTierFree).First(&free).Error; errFree != nil {
			return 0, fmt.Errorf("quota: load free plan: %w", errFree)
		}
		return free.MonthlyTestLimit, nil
	default:
		return 0, fmt.Errorf("quota: load subscription: %w", errSub)
	}
}
