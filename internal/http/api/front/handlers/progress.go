package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/qanotai/qanotai-backend/internal/http/api/middleware"
	"github.com/qanotai/qanotai-backend/internal/models"
)

// ProgressFrontHandler serves daily progress and achievements.
type ProgressFrontHandler struct {
	db *gorm.DB
}

// NewProgressFrontHandler constructs a ProgressFrontHandler.
func NewProgressFrontHandler(db *gorm.DB) *ProgressFrontHandler {
	return &ProgressFrontHandler{db: db}
}

// List returns the user's daily progress rows for the last N days.
func (h *ProgressFrontHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days <= 0 || days > 365 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	var rows []models.DailyProgress
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("user_id = ? AND date >= ?", userID, since).
		Order("date ASC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list progress failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		average := 0.0
		if row.TestsCompleted > 0 {
			average = row.TotalBand / float64(row.TestsCompleted)
		}
		out = append(out, gin.H{
			"date":            row.Date.Format("2006-01-02"),
			"tests_completed": row.TestsCompleted,
			"average_band":    average,
			"best_band":       row.BestBand,
			"study_minutes":   row.StudyMinutes,
		})
	}
	c.JSON(http.StatusOK, gin.H{"progress": out})
}

// Achievements returns the user's earned achievements.
func (h *ProgressFrontHandler) Achievements(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var rows []models.Achievement
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("earned_at ASC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list achievements failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"code":      row.Code,
			"name":      row.Name,
			"earned_at": row.EarnedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"achievements": out})
}
