package payment

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/qanotai/qanotai-backend/internal/config"
	"github.com/qanotai/qanotai-backend/internal/db"
	"github.com/qanotai/qanotai-backend/internal/models"
	"github.com/qanotai/qanotai-backend/internal/payme"
	"github.com/qanotai/qanotai-backend/internal/ratelimit"
	"github.com/qanotai/qanotai-backend/internal/security"
)

const testSecret = "merchant-secret"

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Open("file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	r := gin.New()
	paymeCfg := config.PaymeConfig{MerchantID: "merchant-1", SecretKey: testSecret, TestMode: true}
	jwtCfg := config.JWTConfig{Secret: "jwt-secret"}
	RegisterPaymentRoutes(r, conn, paymeCfg, jwtCfg, nil)
	return r, conn
}

func postWebhook(t *testing.T, r *gin.Engine, password string, body any) payme.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/payme", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth("Paycom", password)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", w.Code)
	}

	var resp payme.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func seedPendingPayment(t *testing.T, conn *gorm.DB) *models.Payment {
	t.Helper()

	user := models.User{AuthID: "auth-" + t.Name(), Name: "Test User", Active: true}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	var plan models.Plan
	if err := conn.Where("tier = ?", models.PlanTierBasic).First(&plan).Error; err != nil {
		t.Fatalf("load plan: %v", err)
	}
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

func TestWebhookRejectsBadCredentials(t *testing.T) {
	r, _ := newTestRouter(t)

	resp := postWebhook(t, r, "wrong-secret", gin.H{"method": payme.MethodCheckTransaction, "params": gin.H{"id": "tx"}})
	if resp.Error == nil || resp.Error.Code != payme.CodeUnauthorized {
		t.Fatalf("expected unauthorized error, got %+v", resp.Error)
	}
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/payments/payme", bytes.NewReader([]byte("{not json")))
	req.SetBasicAuth("Paycom", testSecret)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp payme.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != payme.CodeParseError {
		t.Fatalf("expected parse error, got %+v", resp.Error)
	}
}

func TestWebhookFullPaymentFlow(t *testing.T) {
	r, conn := newTestRouter(t)
	payment := seedPendingPayment(t, conn)
	account := gin.H{"order_id": payment.OrderID}

	check := postWebhook(t, r, testSecret, gin.H{
		"id":     1,
		"method": payme.MethodCheckPerformTransaction,
		"params": gin.H{"amount": payment.AmountTiyin, "account": account},
	})
	if check.Error != nil {
		t.Fatalf("check perform failed: %+v", check.Error)
	}

	create := postWebhook(t, r, testSecret, gin.H{
		"id":     2,
		"method": payme.MethodCreateTransaction,
		"params": gin.H{"id": "tx-flow", "time": time.Now().UnixMilli(), "amount": payment.AmountTiyin, "account": account},
	})
	if create.Error != nil {
		t.Fatalf("create transaction failed: %+v", create.Error)
	}

	perform := postWebhook(t, r, testSecret, gin.H{
		"id":     3,
		"method": payme.MethodPerformTransaction,
		"params": gin.H{"id": "tx-flow"},
	})
	if perform.Error != nil {
		t.Fatalf("perform transaction failed: %+v", perform.Error)
	}

	var stored models.Payment
	if err := conn.Where("order_id = ?", payment.OrderID).First(&stored).Error; err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	if stored.Status != models.PaymentStatusCompleted {
		t.Fatalf("expected completed payment, got status %d", stored.Status)
	}
	if stored.SubscriptionID == nil {
		t.Fatal("expected linked subscription")
	}
}

func TestCheckoutEndpointRequiresAuth(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/payments/checkout", bytes.NewReader([]byte(`{"plan_tier":"basic"}`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected HTTP 401, got %d", w.Code)
	}
}

func TestCheckoutEndpointCreatesPayment(t *testing.T) {
	r, conn := newTestRouter(t)

	user := models.User{AuthID: "auth-" + t.Name(), Name: "Test User", Active: true}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, err := security.IssueUserToken("jwt-secret", user.ID, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/payments/checkout", bytes.NewReader([]byte(`{"plan_tier":"basic"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d: %s", w.Code, w.Body.String())
	}

	var checkout payme.Checkout
	if err := json.Unmarshal(w.Body.Bytes(), &checkout); err != nil {
		t.Fatalf("decode checkout: %v", err)
	}
	if checkout.PayLink == "" {
		t.Fatal("expected pay link")
	}

	var count int64
	if err := conn.Model(&models.Payment{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		t.Fatalf("count payments: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 pending payment, got %d", count)
	}
}

func TestWebhookRateLimitsPerIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	conn, err := db.Open("file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	r := gin.New()
	paymeCfg := config.PaymeConfig{MerchantID: "merchant-1", SecretKey: testSecret, TestMode: true}
	RegisterPaymentRoutes(r, conn, paymeCfg, config.JWTConfig{Secret: "jwt-secret"}, ratelimit.NewMemoryLimiter())

	// Keep the whole loop inside one limiter window.
	now := time.Now()
	if next := now.Truncate(time.Minute).Add(time.Minute); next.Sub(now) < 2*time.Second {
		time.Sleep(next.Sub(now))
	}

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/v1/payments/payme", bytes.NewReader([]byte(`{}`)))
		req.SetBasicAuth("Paycom", "wrong-secret")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < webhookRateLimit; i++ {
		if code := send(); code != http.StatusOK {
			t.Fatalf("request %d: expected HTTP 200, got %d", i+1, code)
		}
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("expected HTTP 429 past the limit, got %d", code)
	}
}
