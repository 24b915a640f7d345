package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/qanotai/qanotai-backend/internal/models"
)

// PaymentHandler serves admin payment queries.
type PaymentHandler struct {
	db *gorm.DB
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(db *gorm.DB) *PaymentHandler {
	return &PaymentHandler{db: db}
}

// List returns payments, newest first, optionally filtered by status or
// user.
func (h *PaymentHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	query := h.db.WithContext(c.Request.Context()).Model(&models.Payment{})
	if statusRaw := c.Query("status"); statusRaw != "" {
		status, errParse := strconv.Atoi(statusRaw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		query = query.Where("status = ?", status)
	}
	if userRaw := c.Query("user_id"); userRaw != "" {
		userID, errParse := strconv.ParseUint(userRaw, 10, 64)
		if errParse != nil || userID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		query = query.Where("user_id = ?", userID)
	}

	var total int64
	if errCount := query.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count payments failed"})
		return
	}

	var payments []models.Payment
	if errFind := query.
		Preload("Plan").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&payments).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list payments failed"})
		return
	}

	out := make([]gin.H, 0, len(payments))
	for _, payment := range payments {
		row := gin.H{
			"id":           payment.ID,
			"user_id":      payment.UserID,
			"plan_tier":    payment.Plan.Tier,
			"order_id":     payment.OrderID,
			"amount_uzs":   payment.AmountUZS,
			"status":       payment.Status,
			"state":        payment.State,
			"created_at":   payment.CreatedAt,
			"completed_at": payment.CompletedAt,
		}
		if payment.PaymeTransactionID != nil {
			row["payme_transaction_id"] = *payment.PaymeTransactionID
		}
		out = append(out, row)
	}
	c.JSON(http.StatusOK, gin.H{"payments": out, "total": total, "page": page, "page_size": pageSize})
}
