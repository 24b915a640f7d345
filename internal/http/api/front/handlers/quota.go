package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/qanotai/qanotai-backend/internal/http/api/middleware"
	"github.com/qanotai/qanotai-backend/internal/quota"
)

// QuotaFrontHandler serves the user's quota endpoint.
type QuotaFrontHandler struct {
	quota *quota.Service
}

// NewQuotaFrontHandler constructs a QuotaFrontHandler.
func NewQuotaFrontHandler(db *gorm.DB) *QuotaFrontHandler {
	return &QuotaFrontHandler{quota: quota.NewService(db)}
}

// Get returns the current period's usage and allowance.
func (h *QuotaFrontHandler) Get(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	row, errQuota := h.quota.Current(c.Request.Context(), userID)
	if errQuota != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query quota failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"period_start": row.PeriodStart,
		"period_end":   row.PeriodEnd,
		"tests_used":   row.TestsUsed,
		"tests_limit":  row.TestsLimit,
		"bonus_tests":  row.BonusTests,
		"unlimited":    row.Unlimited(),
		"remaining":    row.Remaining(),
	})
}
