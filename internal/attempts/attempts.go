// Package attempts runs the practice test lifecycle: start against the
// usage quota, collect responses, finish with scores, and roll results
// into daily progress and achievements.
package attempts

import (
	"context"
	"errors"
	"fmt"
	"time"

	dbutil "github.com/qanotai/qanotai-backend/internal/db"
	"github.com/qanotai/qanotai-backend/internal/models"
	"github.com/qanotai/qanotai-backend/internal/quota"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Errors surfaced to API handlers.
var (
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrAttemptFinished  = errors.New("attempt already finished")
	ErrQuestionNotFound = errors.New("question not found")
)

// Service manages test attempts.
type Service struct {
	db    *gorm.DB
	quota *quota.Service
}

// NewService constructs a Service.
func NewService(db *gorm.DB, quotaService *quota.Service) *Service {
	return &Service{db: db, quota: quotaService}
}

// Start consumes one test from the user's quota and opens an attempt.
func (s *Service) Start(ctx context.Context, userID uint64) (*models.TestAttempt, error) {
	if _, errConsume := s.quota.Consume(ctx, userID); errConsume != nil {
		return nil, errConsume
	}

	now := time.Now().UTC()
	attempt := models.TestAttempt{
		AttemptUUID: uuid.NewString(),
		UserID:      userID,
		Status:      models.AttemptStatusInProgress,
		StartedAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if errCreate := s.db.WithContext(ctx).Create(&attempt).Error; errCreate != nil {
		return nil, fmt.Errorf("attempts: create: %w", errCreate)
	}
	return &attempt, nil
}

// ResponseInput carries one answered question.
type ResponseInput struct {
	QuestionID uint64         `json:"question_id"`
	AudioURL   string         `json:"audio_url"`
	Transcript string         `json:"transcript"`
	Band       float64        `json:"band"`
	Scores     datatypes.JSON `json:"scores"`
}

// SubmitResponse records one answer on a running attempt.
func (s *Service) SubmitResponse(ctx context.Context, userID uint64, attemptUUID string, input ResponseInput) (*models.TestResponse, error) {
	var response *models.TestResponse
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempt, errLoad := loadAttempt(tx, userID, attemptUUID)
		if errLoad != nil {
			return errLoad
		}
		if attempt.Status != models.AttemptStatusInProgress {
			return ErrAttemptFinished
		}

		var question models.Question
		if errQuestion := tx.First(&question, input.QuestionID).Error; errQuestion != nil {
			if errors.Is(errQuestion, gorm.ErrRecordNotFound) {
				return ErrQuestionNotFound
			}
			return fmt.Errorf("attempts: load question: %w", errQuestion)
		}

		row := models.TestResponse{
			AttemptID:  attempt.ID,
			QuestionID: question.ID,
			AudioURL:   input.AudioURL,
			Transcript: input.Transcript,
			Band:       input.Band,
			Scores:     input.Scores,
		}
		if errCreate := tx.Create(&row).Error; errCreate != nil {
			return fmt.Errorf("attempts: create response: %w", errCreate)
		}
		response = &row
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return response, nil
}

// FinishInput carries the aggregate scores from the scoring collaborator.
type FinishInput struct {
	OverallBand        float64        `json:"overall_band"`
	FluencyScore       float64        `json:"fluency_score"`
	LexicalScore       float64        `json:"lexical_score"`
	GrammarScore       float64        `json:"grammar_score"`
	PronunciationScore float64        `json:"pronunciation_score"`
	Feedback           datatypes.JSON `json:"feedback"`
	StudyMinutes       int            `json:"study_minutes"`
}

// Finish completes an attempt, stores its scores, folds the result into
// the user's daily progress row, and grants any newly earned
// achievements. Finishing an already finished attempt fails.
func (s *Service) Finish(ctx context.Context, userID uint64, attemptUUID string, input FinishInput) (*models.TestAttempt, error) {
	var finished *models.TestAttempt
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempt, errLoad := loadAttempt(tx, userID, attemptUUID)
		if errLoad != nil {
			return errLoad
		}
		if attempt.Status != models.AttemptStatusInProgress {
			return ErrAttemptFinished
		}

		now := time.Now().UTC()
		if errUpdate := tx.Model(&models.TestAttempt{}).Where("id = ?", attempt.ID).Updates(map[string]any{
			"status":              models.AttemptStatusCompleted,
			"completed_at":        now,
			"overall_band":        input.OverallBand,
			"fluency_score":       input.FluencyScore,
			"lexical_score":       input.LexicalScore,
			"grammar_score":       input.GrammarScore,
			"pronunciation_score": input.PronunciationScore,
			"feedback":            input.Feedback,
			"updated_at":          now,
		}).Error; errUpdate != nil {
			return fmt.Errorf("attempts: finish: %w", errUpdate)
		}

		if errProgress := recordProgress(tx, userID, now, input); errProgress != nil {
			return errProgress
		}
		if errGrant := grantAchievements(tx, userID, now, input.OverallBand); errGrant != nil {
			return errGrant
		}

		if errReload := tx.Where("id = ?", attempt.ID).First(attempt).Error; errReload != nil {
			return fmt.Errorf("attempts: reload: %w", errReload)
		}
		finished = attempt
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return finished, nil
}

// Abandon marks a running attempt abandoned. The quota charge stays
// spent.
func (s *Service) Abandon(ctx context.Context, userID uint64, attemptUUID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempt, errLoad := loadAttempt(tx, userID, attemptUUID)
		if errLoad != nil {
			return errLoad
		}
		if attempt.Status != models.AttemptStatusInProgress {
			return ErrAttemptFinished
		}
		now := time.Now().UTC()
		if errUpdate := tx.Model(&models.TestAttempt{}).Where("id = ?", attempt.ID).Updates(map[string]any{
			"status":       models.AttemptStatusAbandoned,
			"completed_at": now,
			"updated_at":   now,
		}).Error; errUpdate != nil {
			return fmt.Errorf("attempts: abandon: %w", errUpdate)
		}
		return nil
	})
}

// Get returns one attempt with its responses.
func (s *Service) Get(ctx context.Context, userID uint64, attemptUUID string) (*models.TestAttempt, error) {
	var attempt models.TestAttempt
	errFind := s.db.WithContext(ctx).
		Preload("Responses").
		Where("attempt_uuid = ? AND user_id = ?", attemptUUID, userID).
		First(&attempt).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("attempts: get: %w", errFind)
	}
	return &attempt, nil
}

// List returns the user's attempts, newest first.
func (s *Service) List(ctx context.Context, userID uint64, limit int) ([]models.TestAttempt, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rows []models.TestAttempt
	if errFind := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("attempts: list: %w", errFind)
	}
	return rows, nil
}

// loadAttempt locks and loads an attempt owned by the user.
func loadAttempt(tx *gorm.DB, userID uint64, attemptUUID string) (*models.TestAttempt, error) {
	var attempt models.TestAttempt
	errFind := dbutil.LockForUpdate(tx).
		Where("attempt_uuid = ? AND user_id = ?", attemptUUID, userID).
		First(&attempt).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("attempts: load: %w", errFind)
	}
	return &attempt, nil
}

// recordProgress folds a finished attempt into the user's daily
// progress row for today.
func recordProgress(tx *gorm.DB, userID uint64, now time.Time, input FinishInput) error {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// SQLite's two-argument MAX is spelled GREATEST on Postgres.
	greatest := "GREATEST"
	if dbutil.IsSQLite(tx) {
		greatest = "MAX"
	}

	row := models.DailyProgress{
		UserID:         userID,
		Date:           day,
		TestsCompleted: 1,
		TotalBand:      input.OverallBand,
		BestBand:       input.OverallBand,
		StudyMinutes:   input.StudyMinutes,
	}
	errUpsert := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]any{
			"tests_completed": gorm.Expr("tests_completed + 1"),
			"total_band":      gorm.Expr("total_band + ?", input.OverallBand),
			"best_band":       gorm.Expr(greatest+"(best_band, ?)", input.OverallBand),
			"study_minutes":   gorm.Expr("study_minutes + ?", input.StudyMinutes),
			"updated_at":      now,
		}),
	}).Create(&row).Error
	if errUpsert != nil {
		return fmt.Errorf("attempts: record progress: %w", errUpsert)
	}
	return nil
}

// Achievement codes granted on finish.
const (
	achievementFirstTest = "first_test"
	achievementTenTests  = "ten_tests"
	achievementBandSeven = "band_seven"
)

// grantAchievements awards milestones reached by this finish. The
// unique (user, code) index makes duplicate grants no-ops.
func grantAchievements(tx *gorm.DB, userID uint64, now time.Time, overallBand float64) error {
	var completed int64
	if errCount := tx.Model(&models.TestAttempt{}).
		Where("user_id = ? AND status = ?", userID, models.AttemptStatusCompleted).
		Count(&completed).Error; errCount != nil {
		return fmt.Errorf("attempts: count completed: %w", errCount)
	}

	var earned []models.Achievement
	if completed >= 1 {
		earned = append(earned, models.Achievement{UserID: userID, Code: achievementFirstTest, Name: "First Test Completed", EarnedAt: now})
	}
	if completed >= 10 {
		earned = append(earned, models.Achievement{UserID: userID, Code: achievementTenTests, Name: "Ten Tests Completed", EarnedAt: now})
	}
	if overallBand >= 7.0 {
		earned = append(earned, models.Achievement{UserID: userID, Code: achievementBandSeven, Name: "Band 7 Scored", EarnedAt: now})
	}
	if len(earned) == 0 {
		return nil
	}

	errGrant := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "code"}},
		DoNothing: true,
	}).Create(&earned).Error
	if errGrant != nil {
		return fmt.Errorf("attempts: grant achievements: %w", errGrant)
	}
	return nil
}
