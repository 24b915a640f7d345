package payme

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/qanotai/qanotai-backend/internal/config"
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

	cfg := config.PaymeConfig{MerchantID: "merchant-1", SecretKey: "secret", TestMode: true}
	return NewService(conn, cfg), conn
}

func createTestUser(t *testing.T, conn *gorm.DB) *models.User {
	t.Helper()

	user := models.User{AuthID: "auth-" + t.Name(), Name: "Test User", Active: true}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return &user
}

func planByTier(t *testing.T, conn *gorm.DB, tier string) *models.Plan {
	t.Helper()

	var plan models.Plan
	if err := conn.Where("tier = ?", tier).First(&plan).Error; err != nil {
		t.Fatalf("load plan %s: %v", tier, err)
	}
	return &plan
}

func createPendingPayment(t *testing.T, conn *gorm.DB, user *models.User, plan *models.Plan) *models.Payment {
	t.Helper()

	payment := models.Payment{
		UserID:      user.ID,
		PlanID:      plan.ID,
		OrderID:     "order-" + t.Name(),
		AmountUZS:   plan.PriceUZS,
		AmountTiyin: plan.PriceUZS * 100,
		Status:      models.PaymentStatusPending,
	}
	if err := conn.Create(&payment).Error; err != nil {
		t.Fatalf("create payment: %v", err)
	}
	return &payment
}

func TestCheckPerformTransaction(t *testing.T) {
	service, conn := newTestService(t)
	user := createTestUser(t, conn)
	plan := planByTier(t, conn, models.PlanTierBasic)
	payment := createPendingPayment(t, conn, user, plan)

	ctx := context.Background()

	result, err := service.CheckPerformTransaction(ctx, payment.AmountTiyin, Account{OrderID: payment.OrderID})
	if err != nil {
		t.Fatalf("check perform: %v", err)
	}
	if !result.Allow {
		t.Fatal("expected allow=true")
	}

	if _, err := service.CheckPerformTransaction(ctx, payment.AmountTiyin+1, Account{OrderID: payment.OrderID}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount error, got %v", err)
	}
	if _, err := service.CheckPerformTransaction(ctx, payment.AmountTiyin, Account{OrderID: "no-such-order"}); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected unknown account error, got %v", err)
	}
}

func TestCreateTransactionReplay(t *testing.T) {
	service, conn := newTestService(t)
	user := createTestUser(t, conn)
	plan := planByTier(t, conn, models.PlanTierBasic)
	payment := createPendingPayment(t, conn, user, plan)

	ctx := context.Background()
	account := Account{OrderID: payment.OrderID}

	first, err := service.CreateTransaction(ctx, "tx-replay", 1000, payment.AmountTiyin, account)
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if first.State != models.PaymeStateCreated {
		t.Fatalf("expected state %d, got %d", models.PaymeStateCreated, first.State)
	}
	if first.CreateTime != 1000 {
		t.Fatalf("expected create time 1000, got %d", first.CreateTime)
	}

	second, err := service.CreateTransaction(ctx, "tx-replay", 2000, payment.AmountTiyin, account)
	if err != nil {
		t.Fatalf("replay create transaction: %v", err)
	}
	if second.Transaction != first.Transaction || second.State != first.State || second.CreateTime != first.CreateTime {
		t.Fatalf("replay changed stored state: first=%+v second=%+v", first, second)
	}

	var count int64
	if err := conn.Model(&models.Payment{}).Count(&count).Error; err != nil {
		t.Fatalf("count payments: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 payment row, got %d", count)
	}

	if _, err := service.CreateTransaction(ctx, "tx-replay", 1000, payment.AmountTiyin+1, account); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected already exists on amount mismatch, got %v", err)
	}
	if _, err := service.CreateTransaction(ctx, "tx-other", 1000, payment.AmountTiyin, account); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected already exists for second transaction on same order, got %v", err)
	}
}

func TestPerformTransactionActivatesOnce(t *testing.T) {
	service, conn := newTestService(t)
	user := createTestUser(t, conn)
	plan := planByTier(t, conn, models.PlanTierBasic)
	payment := createPendingPayment(t, conn, user, plan)

	ctx := context.Background()

	if _, err := service.CreateTransaction(ctx, "tx1", nowMs(), payment.AmountTiyin, Account{OrderID: payment.OrderID}); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	result, err := service.PerformTransaction(ctx, "tx1")
	if err != nil {
		t.Fatalf("perform transaction: %v", err)
	}
	if result.State != models.PaymeStatePerformed {
		t.Fatalf("expected state %d, got %d", models.PaymeStatePerformed, result.State)
	}

	var stored models.Payment
	if err := conn.Where("order_id = ?", payment.OrderID).First(&stored).Error; err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	if stored.Status != models.PaymentStatusCompleted {
		t.Fatalf("expected completed payment, got status %d", stored.Status)
	}
	if stored.SubscriptionID == nil {
		t.Fatal("expected payment linked to a subscription")
	}

	var sub models.Subscription
	if err := conn.First(&sub, *stored.SubscriptionID).Error; err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	if sub.Status != models.SubscriptionStatusActive {
		t.Fatalf("expected active subscription, got status %d", sub.Status)
	}
	if sub.UserID != user.ID || sub.PlanID != plan.ID {
		t.Fatalf("subscription links wrong rows: %+v", sub)
	}

	// Second perform must not activate anything twice.
	if _, err := service.PerformTransaction(ctx, "tx1"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state on second perform, got %v", err)
	}

	var subCount int64
	if err := conn.Model(&models.Subscription{}).Where("user_id = ?", user.ID).Count(&subCount).Error; err != nil {
		t.Fatalf("count subscriptions: %v", err)
	}
	if subCount != 1 {
		t.Fatalf("expected 1 subscription, got %d", subCount)
	}

	// Replayed create after perform returns the stored completed row.
	replay, err := service.CreateTransaction(ctx, "tx1", nowMs(), payment.AmountTiyin, Account{OrderID: payment.OrderID})
	if err != nil {
		t.Fatalf("replay create after perform: %v", err)
	}
	if replay.State != models.PaymeStatePerformed {
		t.Fatalf("expected replay state %d, got %d", models.PaymeStatePerformed, replay.State)
	}
}

func TestPerformTransactionStaleCreateCancels(t *testing.T) {
	service, conn := newTestService(t)
	user := createTestUser(t, conn)
	plan := planByTier(t, conn, models.PlanTierBasic)
	payment := createPendingPayment(t, conn, user, plan)

	ctx := context.Background()
	staleMs := time.Now().UTC().Add(-13 * time.Hour).UnixMilli()

	if _, err := service.CreateTransaction(ctx, "tx-stale", staleMs, payment.AmountTiyin, Account{OrderID: payment.OrderID}); err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if _, err := service.PerformTransaction(ctx, "tx-stale"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state for stale transaction, got %v", err)
	}

	var stored models.Payment
	if err := conn.Where("order_id = ?", payment.OrderID).First(&stored).Error; err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	if stored.State != models.PaymeStateCancelled {
		t.Fatalf("expected state %d, got %d", models.PaymeStateCancelled, stored.State)
	}
	if stored.Status != models.PaymentStatusFailed {
		t.Fatalf("expected failed payment, got status %d", stored.Status)
	}
	if stored.Reason == nil || *stored.Reason != ReasonTimeout {
		t.Fatalf("expected timeout reason, got %v", stored.Reason)
	}
}

func TestCancelTransaction(t *testing.T) {
	service, conn := newTestService(t)
	user := createTestUser(t, conn)
	plan := planByTier(t, conn, models.PlanTierBasic)
	payment := createPendingPayment(t, conn, user, plan)

	ctx := context.Background()

	if _, err := service.CreateTransaction(ctx, "tx-cancel", nowMs(), payment.AmountTiyin, Account{OrderID: payment.OrderID}); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	reason := ReasonTimeout
	result, err := service.CancelTransaction(ctx, "tx-cancel", &reason)
	if err != nil {
		t.Fatalf("cancel transaction: %v", err)
	}
	if result.State != models.PaymeStateCancelled {
		t.Fatalf("expected state %d, got %d", models.PaymeStateCancelled, result.State)
	}

	var stored models.Payment
	if err := conn.Where("order_id = ?", payment.OrderID).First(&stored).Error; err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	if stored.Status != models.PaymentStatusFailed {
		t.Fatalf("expected failed payment, got status %d", stored.Status)
	}

	// Cancelling again replays the stored terminal state.
	replay, err := service.CancelTransaction(ctx, "tx-cancel", &reason)
	if err != nil {
		t.Fatalf("replay cancel: %v", err)
	}
	if replay.State != result.State || replay.CancelTime != result.CancelTime {
		t.Fatalf("replay changed stored state: first=%+v second=%+v", result, replay)
	}
}

func TestCancelAfterPerformRefunds(t *testing.T) {
	service, conn := newTestService(t)
	user := createTestUser(t, conn)
	plan := planByTier(t, conn, models.PlanTierBasic)
	payment := createPendingPayment(t, conn, user, plan)

	ctx := context.Background()

	if _, err := service.CreateTransaction(ctx, "tx-refund", nowMs(), payment.AmountTiyin, Account{OrderID: payment.OrderID}); err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if _, err := service.PerformTransaction(ctx, "tx-refund"); err != nil {
		t.Fatalf("perform transaction: %v", err)
	}

	reason := ReasonRefund
	result, err := service.CancelTransaction(ctx, "tx-refund", &reason)
	if err != nil {
		t.Fatalf("cancel transaction: %v", err)
	}
	if result.State != models.PaymeStateCancelledAfterPerform {
		t.Fatalf("expected state %d, got %d", models.PaymeStateCancelledAfterPerform, result.State)
	}

	var stored models.Payment
	if err := conn.Where("order_id = ?", payment.OrderID).First(&stored).Error; err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	if stored.Status != models.PaymentStatusRefunded {
		t.Fatalf("expected refunded payment, got status %d", stored.Status)
	}

	var sub models.Subscription
	if err := conn.First(&sub, *stored.SubscriptionID).Error; err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	if sub.Status != models.SubscriptionStatusCancelled {
		t.Fatalf("expected cancelled subscription, got status %d", sub.Status)
	}
}

func TestCheckTransaction(t *testing.T) {
	service, conn := newTestService(t)
	user := createTestUser(t, conn)
	plan := planByTier(t, conn, models.PlanTierBasic)
	payment := createPendingPayment(t, conn, user, plan)

	ctx := context.Background()

	if _, err := service.CheckTransaction(ctx, "missing-tx"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := service.CreateTransaction(ctx, "tx-check", 5000, payment.AmountTiyin, Account{OrderID: payment.OrderID}); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	result, err := service.CheckTransaction(ctx, "tx-check")
	if err != nil {
		t.Fatalf("check transaction: %v", err)
	}
	if result.State != models.PaymeStateCreated || result.CreateTime != 5000 {
		t.Fatalf("unexpected check result: %+v", result)
	}
}

func TestGetStatement(t *testing.T) {
	service, conn := newTestService(t)
	user := createTestUser(t, conn)
	plan := planByTier(t, conn, models.PlanTierBasic)

	ctx := context.Background()

	for i, stamp := range []int64{1000, 2000, 9000} {
		payment := models.Payment{
			UserID:      user.ID,
			PlanID:      plan.ID,
			OrderID:     "order-stmt-" + string(rune('a'+i)),
			AmountUZS:   plan.PriceUZS,
			AmountTiyin: plan.PriceUZS * 100,
			Status:      models.PaymentStatusPending,
		}
		if err := conn.Create(&payment).Error; err != nil {
			t.Fatalf("create payment: %v", err)
		}
		if _, err := service.CreateTransaction(ctx, "tx-stmt-"+string(rune('a'+i)), stamp, payment.AmountTiyin, Account{OrderID: payment.OrderID}); err != nil {
			t.Fatalf("create transaction: %v", err)
		}
	}

	result, err := service.GetStatement(ctx, 1000, 5000)
	if err != nil {
		t.Fatalf("get statement: %v", err)
	}
	if len(result.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(result.Transactions))
	}
	if result.Transactions[0].Time != 1000 || result.Transactions[1].Time != 2000 {
		t.Fatalf("unexpected statement order: %+v", result.Transactions)
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	service, _ := newTestService(t)

	resp := service.Dispatch(context.Background(), Request{Method: "DeleteEverything"})
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("expected method not found error, got %+v", resp.Error)
	}
}

func TestCreateCheckout(t *testing.T) {
	service, conn := newTestService(t)
	user := createTestUser(t, conn)

	checkout, err := service.CreateCheckout(context.Background(), user.ID, models.PlanTierBasic)
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if !strings.HasPrefix(checkout.OrderID, "order_") {
		t.Fatalf("unexpected order id: %s", checkout.OrderID)
	}
	if checkout.AmountTiyin != checkout.AmountUZS*100 {
		t.Fatalf("tiyin amount mismatch: %+v", checkout)
	}
	if !strings.HasPrefix(checkout.PayLink, checkoutTestURL+"/") {
		t.Fatalf("expected sandbox checkout link, got %s", checkout.PayLink)
	}

	encoded := strings.TrimPrefix(checkout.PayLink, checkoutTestURL+"/")
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode pay link: %v", err)
	}
	want := "m=merchant-1;ac.order_id=" + checkout.OrderID
	if !strings.HasPrefix(string(decoded), want) {
		t.Fatalf("unexpected pay link params: %s", decoded)
	}

	// Free plans have no checkout.
	if _, err := service.CreateCheckout(context.Background(), user.ID, models.PlanTierFree); !errors.Is(err, ErrPlanNotPurchasable) {
		t.Fatalf("expected plan not purchasable, got %v", err)
	}
}
