package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/qanotai/qanotai-backend/internal/leaderboard"
	"github.com/qanotai/qanotai-backend/internal/models"
)

// LeaderboardHandler serves admin leaderboard operations.
type LeaderboardHandler struct {
	leaderboard *leaderboard.Service
}

// NewLeaderboardHandler constructs a LeaderboardHandler.
func NewLeaderboardHandler(db *gorm.DB) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboard: leaderboard.NewService(db)}
}

// Rebuild recomputes leaderboard snapshots, either one period or all.
func (h *LeaderboardHandler) Rebuild(c *gin.Context) {
	now := time.Now().UTC()

	period := c.Query("period")
	if period == "" {
		if errAll := h.leaderboard.RecomputeAll(c.Request.Context(), now); errAll != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "rebuild leaderboard failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	switch period {
	case models.LeaderboardPeriodDaily, models.LeaderboardPeriodWeekly,
		models.LeaderboardPeriodMonthly, models.LeaderboardPeriodAllTime:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown period"})
		return
	}

	if errRecompute := h.leaderboard.Recompute(c.Request.Context(), period, now); errRecompute != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rebuild leaderboard failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "period": period})
}
