package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/qanotai/qanotai-backend/internal/db"
	"github.com/qanotai/qanotai-backend/internal/models"

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
	return NewService(conn), conn
}

func createTestUser(t *testing.T, conn *gorm.DB) *models.User {
	t.Helper()

	user := models.User{AuthID: "auth-" + t.Name(), Name: "Test User", Active: true}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return &user
}

func subscribe(t *testing.T, conn *gorm.DB, user *models.User, tier string) {
	t.Helper()

	var plan models.Plan
	if err := conn.Where("tier = ?", tier).First(&plan).Error; err != nil {
		t.Fatalf("load plan %s: %v", tier, err)
	}
	sub := models.Subscription{
		UserID:    user.ID,
		PlanID:    plan.ID,
		Status:    models.SubscriptionStatusActive,
		StartDate: time.Now().UTC(),
	}
	if err := conn.Create(&sub).Error; err != nil {
		t.Fatalf("create subscription: %v", err)
	}
}

func TestPeriodBounds(t *testing.T) {
	start, end := PeriodBounds(time.Date(2025, 3, 17, 14, 30, 0, 0, time.UTC))
	if !start.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected period start: %v", start)
	}
	if !end.Equal(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected period end: %v", end)
	}
}

func TestCurrentCreatesRowLazily(t *testing.T) {
	service, conn := newTestService(t)
	user := createTestUser(t, conn)

	quota, err := service.Current(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("current quota: %v", err)
	}
	if quota.TestsUsed != 0 {
		t.Fatalf("expected 0 tests used, got %d", quota.TestsUsed)
	}
	// Free plan allowance without a subscription.
	if quota.TestsLimit != 3 {
		t.Fatalf("expected free plan limit 3, got %d", quota.TestsLimit)
	}

	again, err := service.Current(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("current quota again: %v", err)
	}
	if again.ID != quota.ID {
		t.Fatalf("expected same quota row, got %d and %d", quota.ID, again.ID)
	}
}

func TestConsumeEnforcesLimit(t *testing.T) {
	service, conn := newTestService(t)
	user := createTestUser(t, conn)
	subscribe(t, conn, user, models.PlanTierBasic)

	ctx := context.Background()

	quota, err := service.Current(ctx, user.ID)
	if err != nil {
		t.Fatalf("current quota: %v", err)
	}
	if quota.TestsLimit != 50 {
		t.Fatalf("expected basic plan limit 50, got %d", quota.TestsLimit)
	}

	// Spend everything but the last test directly.
	if err := conn.Model(&models.UsageQuota{}).Where("id = ?", quota.ID).Update("tests_used", 49).Error; err != nil {
		t.Fatalf("seed usage: %v", err)
	}

	row, err := service.Consume(ctx, user.ID)
	if err != nil {
		t.Fatalf("consume last test: %v", err)
	}
	if row.TestsUsed != 50 {
		t.Fatalf("expected 50 tests used, got %d", row.TestsUsed)
	}
	if row.Remaining() != 0 {
		t.Fatalf("expected 0 remaining, got %d", row.Remaining())
	}

	if _, err := service.Consume(ctx, user.ID); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}

	var stored models.UsageQuota
	if err := conn.First(&stored, quota.ID).Error; err != nil {
		t.Fatalf("reload quota: %v", err)
	}
	if stored.TestsUsed != 50 {
		t.Fatalf("rejected consume changed usage: %d", stored.TestsUsed)
	}
}

func TestConsumeBonusExtendsLimit(t *testing.T) {
	service, conn := newTestService(t)
	user := createTestUser(t, conn)

	ctx := context.Background()

	// Free plan: 3 tests.
	for i := 0; i < 3; i++ {
		if _, err := service.Consume(ctx, user.ID); err != nil {
			t.Fatalf("consume %d: %v", i+1, err)
		}
	}
	if _, err := service.Consume(ctx, user.ID); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}

	if _, err := service.AddBonus(ctx, user.ID, 2); err != nil {
		t.Fatalf("add bonus: %v", err)
	}

	row, err := service.Consume(ctx, user.ID)
	if err != nil {
		t.Fatalf("consume with bonus: %v", err)
	}
	if row.Remaining() != 1 {
		t.Fatalf("expected 1 remaining, got %d", row.Remaining())
	}
}

func TestConsumeUnlimitedPlan(t *testing.T) {
	service, conn := newTestService(t)
	user := createTestUser(t, conn)
	subscribe(t, conn, user, models.PlanTierPremium)

	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := service.Consume(ctx, user.ID); err != nil {
			t.Fatalf("consume %d: %v", i+1, err)
		}
	}

	row, err := service.Current(ctx, user.ID)
	if err != nil {
		t.Fatalf("current quota: %v", err)
	}
	if !row.Unlimited() {
		t.Fatalf("expected unlimited quota, got limit %d", row.TestsLimit)
	}
	if row.TestsUsed != 10 {
		t.Fatalf("expected counter to advance to 10, got %d", row.TestsUsed)
	}
}
