package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/qanotai/qanotai-backend/internal/http/api/middleware"
	"github.com/qanotai/qanotai-backend/internal/models"
)

// SubscriptionFrontHandler serves the user's subscription endpoints.
type SubscriptionFrontHandler struct {
	db *gorm.DB
}

// NewSubscriptionFrontHandler constructs a SubscriptionFrontHandler.
func NewSubscriptionFrontHandler(db *gorm.DB) *SubscriptionFrontHandler {
	return &SubscriptionFrontHandler{db: db}
}

// Get returns the user's current subscription, or the free tier when
// none is active.
func (h *SubscriptionFrontHandler) Get(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var sub models.Subscription
	errFind := h.db.WithContext(c.Request.Context()).
		Preload("Plan").
		Where("user_id = ? AND status = ?", userID, models.SubscriptionStatusActive).
		Order("created_at DESC").
		First(&sub).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusOK, gin.H{"subscription": nil, "tier": models.PlanTierFree})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query subscription failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subscription": gin.H{
			"id":                   sub.ID,
			"tier":                 sub.Plan.Tier,
			"plan_name":            sub.Plan.Name,
			"status":               "active",
			"start_date":           sub.StartDate,
			"end_date":             sub.EndDate,
			"next_billing_date":    sub.NextBillingDate,
			"cancel_at_period_end": sub.CancelAtPeriodEnd,
		},
		"tier": sub.Plan.Tier,
	})
}

// cancelSubscriptionRequest defines the request body for cancellation.
type cancelSubscriptionRequest struct {
	Reason    string `json:"reason"`
	Immediate bool   `json:"immediate"`
}

// Cancel cancels the user's active subscription. By default the
// subscription stays active until the period end; immediate
// cancellation ends it now.
func (h *SubscriptionFrontHandler) Cancel(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	// The body is optional.
	var body cancelSubscriptionRequest
	if c.Request.ContentLength > 0 {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var sub models.Subscription
		if errFind := tx.Where("user_id = ? AND status = ?", userID, models.SubscriptionStatusActive).
			Order("created_at DESC").
			First(&sub).Error; errFind != nil {
			return errFind
		}

		now := time.Now().UTC()
		updates := map[string]any{
			"cancellation_reason": body.Reason,
			"cancelled_at":        now,
			"updated_at":          now,
		}
		if body.Immediate {
			updates["status"] = models.SubscriptionStatusCancelled
		} else {
			updates["cancel_at_period_end"] = true
		}
		return tx.Model(&models.Subscription{}).Where("id = ?", sub.ID).Updates(updates).Error
	})
	if errTx != nil {
		if errors.Is(errTx, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active subscription"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cancel subscription failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
