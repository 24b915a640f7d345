package attempts

import (
	"context"
	"errors"
	"testing"

	"github.com/qanotai/qanotai-backend/internal/db"
	"github.com/qanotai/qanotai-backend/internal/models"
	"github.com/qanotai/qanotai-backend/internal/quota"

	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	conn, err := db.Open("file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return NewService(conn, quota.NewService(conn)), conn
}

func createTestUser(t *testing.T, conn *gorm.DB) *models.User {
	t.Helper()

	user := models.User{AuthID: "auth-" + t.Name(), Name: "Test User", Active: true}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return &user
}

func createTestQuestion(t *testing.T, conn *gorm.DB) *models.Question {
	t.Helper()

	question := models.Question{Part: 1, Topic: "hometown", Text: "Describe your hometown.", IsEnabled: true}
	if err := conn.Create(&question).Error; err != nil {
		t.Fatalf("create question: %v", err)
	}
	return &question
}

func TestStartConsumesQuota(t *testing.T) {
	service, conn := newTestService(t)
	user := createTestUser(t, conn)

	ctx := context.Background()

	// Free plan: 3 tests per period.
	for i := 0; i < 3; i++ {
		attempt, err := service.Start(ctx, user.ID)
		if err != nil {
			t.Fatalf("start attempt %d: %v", i+1, err)
		}
		if attempt.Status != models.AttemptStatusInProgress {
			t.Fatalf("expected in-progress attempt, got status %d", attempt.Status)
		}
		if attempt.AttemptUUID == "" {
			t.Fatal("expected attempt uuid")
		}
	}

	if _, err := service.Start(ctx, user.ID); !errors.Is(err, quota.ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}

	var count int64
	if err := conn.Model(&models.TestAttempt{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		t.Fatalf("count attempts: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 attempts, got %d", count)
	}
}

func TestSubmitResponse(t *testing.T) {
	service, conn := newTestService(t)
	user := createTestUser(t, conn)
	question := createTestQuestion(t, conn)

	ctx := context.Background()

	attempt, err := service.Start(ctx, user.ID)
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}

	response, err := service.SubmitResponse(ctx, user.ID, attempt.AttemptUUID, ResponseInput{
		QuestionID: question.ID,
		Transcript: "I grew up in Tashkent.",
		Band:       6.5,
	})
	if err != nil {
		t.Fatalf("submit response: %v", err)
	}
	if response.AttemptID != attempt.ID {
		t.Fatalf("response linked to wrong attempt: %d", response.AttemptID)
	}

	if _, err := service.SubmitResponse(ctx, user.ID, attempt.AttemptUUID, ResponseInput{QuestionID: 9999}); !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
	if _, err := service.SubmitResponse(ctx, user.ID, "no-such-attempt", ResponseInput{QuestionID: question.ID}); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected attempt not found, got %v", err)
	}
}

func TestFinishRecordsProgressAndAchievements(t *testing.T) {
	service, conn := newTestService(t)
	user := createTestUser(t, conn)

	ctx := context.Background()

	attempt, err := service.Start(ctx, user.ID)
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}

	finished, err := service.Finish(ctx, user.ID, attempt.AttemptUUID, FinishInput{
		OverallBand:        7.5,
		FluencyScore:       7.0,
		LexicalScore:       7.5,
		GrammarScore:       7.5,
		PronunciationScore: 8.0,
		StudyMinutes:       14,
	})
	if err != nil {
		t.Fatalf("finish attempt: %v", err)
	}
	if finished.Status != models.AttemptStatusCompleted {
		t.Fatalf("expected completed attempt, got status %d", finished.Status)
	}
	if finished.OverallBand != 7.5 {
		t.Fatalf("expected overall band 7.5, got %v", finished.OverallBand)
	}
	if finished.CompletedAt == nil {
		t.Fatal("expected completion timestamp")
	}

	var progress models.DailyProgress
	if err := conn.Where("user_id = ?", user.ID).First(&progress).Error; err != nil {
		t.Fatalf("load progress: %v", err)
	}
	if progress.TestsCompleted != 1 || progress.TotalBand != 7.5 || progress.BestBand != 7.5 {
		t.Fatalf("unexpected progress row: %+v", progress)
	}
	if progress.StudyMinutes != 14 {
		t.Fatalf("expected 14 study minutes, got %d", progress.StudyMinutes)
	}

	var achievements []models.Achievement
	if err := conn.Where("user_id = ?", user.ID).Order("code").Find(&achievements).Error; err != nil {
		t.Fatalf("load achievements: %v", err)
	}
	if len(achievements) != 2 {
		t.Fatalf("expected first_test and band_seven, got %d achievements", len(achievements))
	}

	// Second finish of the same attempt is rejected.
	if _, err := service.Finish(ctx, user.ID, attempt.AttemptUUID, FinishInput{OverallBand: 6.0}); !errors.Is(err, ErrAttemptFinished) {
		t.Fatalf("expected attempt finished error, got %v", err)
	}
}

func TestFinishAccumulatesDailyProgress(t *testing.T) {
	service, conn := newTestService(t)
	user := createTestUser(t, conn)

	ctx := context.Background()

	for _, band := range []float64{6.0, 7.0} {
		attempt, err := service.Start(ctx, user.ID)
		if err != nil {
			t.Fatalf("start attempt: %v", err)
		}
		if _, err := service.Finish(ctx, user.ID, attempt.AttemptUUID, FinishInput{OverallBand: band, StudyMinutes: 10}); err != nil {
			t.Fatalf("finish attempt: %v", err)
		}
	}

	var progress models.DailyProgress
	if err := conn.Where("user_id = ?", user.ID).First(&progress).Error; err != nil {
		t.Fatalf("load progress: %v", err)
	}
	if progress.TestsCompleted != 2 {
		t.Fatalf("expected 2 tests completed, got %d", progress.TestsCompleted)
	}
	if progress.TotalBand != 13.0 {
		t.Fatalf("expected total band 13.0, got %v", progress.TotalBand)
	}
	if progress.BestBand != 7.0 {
		t.Fatalf("expected best band 7.0, got %v", progress.BestBand)
	}
	if progress.StudyMinutes != 20 {
		t.Fatalf("expected 20 study minutes, got %d", progress.StudyMinutes)
	}

	// Duplicate grants stay single rows.
	var count int64
	if err := conn.Model(&models.Achievement{}).Where("user_id = ? AND code = ?", user.ID, achievementFirstTest).Count(&count).Error; err != nil {
		t.Fatalf("count achievements: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 first_test achievement, got %d", count)
	}
}

func TestAbandon(t *testing.T) {
	service, conn := newTestService(t)
	user := createTestUser(t, conn)

	ctx := context.Background()

	attempt, err := service.Start(ctx, user.ID)
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	if err := service.Abandon(ctx, user.ID, attempt.AttemptUUID); err != nil {
		t.Fatalf("abandon attempt: %v", err)
	}

	var stored models.TestAttempt
	if err := conn.Where("id = ?", attempt.ID).First(&stored).Error; err != nil {
		t.Fatalf("reload attempt: %v", err)
	}
	if stored.Status != models.AttemptStatusAbandoned {
		t.Fatalf("expected abandoned attempt, got status %d", stored.Status)
	}

	// No progress row for an abandoned attempt.
	var count int64
	if err := conn.Model(&models.DailyProgress{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		t.Fatalf("count progress rows: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no progress rows, got %d", count)
	}

	if err := service.Abandon(ctx, user.ID, attempt.AttemptUUID); !errors.Is(err, ErrAttemptFinished) {
		t.Fatalf("expected attempt finished error, got %v", err)
	}
}
