// Package payment wires the Payme gateway webhook and the user-facing
// checkout endpoints.
package payment

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/qanotai/qanotai-backend/internal/config"
	"github.com/qanotai/qanotai-backend/internal/http/api/middleware"
	"github.com/qanotai/qanotai-backend/internal/models"
	"github.com/qanotai/qanotai-backend/internal/payme"
	"github.com/qanotai/qanotai-backend/internal/ratelimit"
)

// Gateway callers authenticate with HTTP Basic using this fixed
// username and the merchant secret as password.
const gatewayUsername = "Paycom"

// webhookRateLimit caps gateway callbacks per client IP per minute.
const webhookRateLimit = 600

// RegisterPaymentRoutes registers the gateway webhook and checkout
// routes.
func RegisterPaymentRoutes(r *gin.Engine, db *gorm.DB, paymeCfg config.PaymeConfig, jwtCfg config.JWTConfig, limiter ratelimit.Limiter) {
	if r == nil || db == nil {
		return
	}

	service := payme.NewService(db, paymeCfg)

	webhookHandler := NewWebhookHandler(service, paymeCfg)
	r.POST("/v1/payments/payme", middleware.RateLimit(limiter, webhookRateLimit, time.Minute), webhookHandler.Handle)

	authed := r.Group("/v1/payments")
	authed.Use(middleware.UserAuth(db, jwtCfg))
	authed.Use(middleware.RateLimit(limiter, 30, time.Minute))

	checkoutHandler := NewCheckoutHandler(db, service)
	authed.POST("/checkout", checkoutHandler.Create)
	authed.GET("/history", checkoutHandler.History)
	authed.GET("/:order_id/status", checkoutHandler.Status)
}

// WebhookHandler serves the gateway's JSON-RPC callback endpoint.
type WebhookHandler struct {
	service *payme.Service
	cfg     config.PaymeConfig
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(service *payme.Service, cfg config.PaymeConfig) *WebhookHandler {
	return &WebhookHandler{service: service, cfg: cfg}
}

// Handle authenticates the gateway, decodes one JSON-RPC call, and
// dispatches it. Errors travel in the JSON-RPC envelope with HTTP 200,
// as the gateway expects.
func (h *WebhookHandler) Handle(c *gin.Context) {
	if !h.authorized(c) {
		c.JSON(http.StatusOK, payme.Response{
			JSONRPC: "2.0",
			Error:   &payme.Error{Code: payme.CodeUnauthorized, Message: "unauthorized"},
		})
		return
	}

	var req payme.Request
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusOK, payme.Response{
			JSONRPC: "2.0",
			Error:   &payme.Error{Code: payme.CodeParseError, Message: "parse error"},
		})
		return
	}

	c.JSON(http.StatusOK, h.service.Dispatch(c.Request.Context(), req))
}

func (h *WebhookHandler) authorized(c *gin.Context) bool {
	username, password, ok := c.Request.BasicAuth()
	if !ok {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(gatewayUsername)) != 1 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(h.cfg.SecretKey)) == 1
}

// CheckoutHandler serves the user-facing payment endpoints.
type CheckoutHandler struct {
	db      *gorm.DB
	service *payme.Service
}

// NewCheckoutHandler constructs a CheckoutHandler.
func NewCheckoutHandler(db *gorm.DB, service *payme.Service) *CheckoutHandler {
	return &CheckoutHandler{db: db, service: service}
}

// createCheckoutRequest defines the request body for starting a
// checkout.
type createCheckoutRequest struct {
	PlanTier string `json:"plan_tier"`
}

// Create opens a pending payment and returns the hosted checkout link.
func (h *CheckoutHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body createCheckoutRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.PlanTier) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "plan_tier is required"})
		return
	}

	checkout, errCreate := h.service.CreateCheckout(c.Request.Context(), userID, body.PlanTier)
	if errCreate != nil {
		if errors.Is(errCreate, payme.ErrPlanNotPurchasable) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "plan is not purchasable"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create checkout failed"})
		return
	}

	c.JSON(http.StatusOK, checkout)
}

// History returns the user's payments, newest first.
func (h *CheckoutHandler) History(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var payments []models.Payment
	if errFind := h.db.WithContext(c.Request.Context()).
		Preload("Plan").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(50).
		Find(&payments).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list payments failed"})
		return
	}

	out := make([]gin.H, 0, len(payments))
	for _, payment := range payments {
		out = append(out, paymentJSON(&payment))
	}
	c.JSON(http.StatusOK, gin.H{"payments": out})
}

// Status returns one payment by order id.
func (h *CheckoutHandler) Status(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	orderID := strings.TrimSpace(c.Param("order_id"))
	var payment models.Payment
	errFind := h.db.WithContext(c.Request.Context()).
		Preload("Plan").
		Where("order_id = ? AND user_id = ?", orderID, userID).
		First(&payment).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query payment failed"})
		return
	}

	c.JSON(http.StatusOK, paymentJSON(&payment))
}

func paymentJSON(payment *models.Payment) gin.H {
	out := gin.H{
		"order_id":     payment.OrderID,
		"plan_tier":    payment.Plan.Tier,
		"amount_uzs":   payment.AmountUZS,
		"status":       statusString(payment.Status),
		"created_at":   payment.CreatedAt,
		"completed_at": payment.CompletedAt,
	}
	if payment.PaymeTransactionID != nil {
		out["payme_transaction_id"] = *payment.PaymeTransactionID
	}
	return out
}

func statusString(status models.PaymentStatus) string {
	switch status {
	case models.PaymentStatusPending:
		return "pending"
	case models.PaymentStatusCompleted:
		return "completed"
	case models.PaymentStatusFailed:
		return "failed"
	case models.PaymentStatusRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}
