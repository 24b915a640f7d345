package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/qanotai/qanotai-backend/internal/leaderboard"
	"github.com/qanotai/qanotai-backend/internal/models"
)

// LeaderboardFrontHandler serves leaderboard snapshots.
type LeaderboardFrontHandler struct {
	leaderboard *leaderboard.Service
}

// NewLeaderboardFrontHandler constructs a LeaderboardFrontHandler.
func NewLeaderboardFrontHandler(db *gorm.DB) *LeaderboardFrontHandler {
	return &LeaderboardFrontHandler{leaderboard: leaderboard.NewService(db)}
}

// Top returns the current bucket's ranking for a period.
func (h *LeaderboardFrontHandler) Top(c *gin.Context) {
	period := c.DefaultQuery("period", models.LeaderboardPeriodWeekly)
	switch period {
	case models.LeaderboardPeriodDaily, models.LeaderboardPeriodWeekly,
		models.LeaderboardPeriodMonthly, models.LeaderboardPeriodAllTime:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown period"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	entries, errTop := h.leaderboard.Top(c.Request.Context(), period, time.Now().UTC(), limit)
	if errTop != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query leaderboard failed"})
		return
	}

	out := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		out = append(out, gin.H{
			"rank":            entry.Rank,
			"user_name":       entry.User.Name,
			"score":           entry.Score,
			"tests_completed": entry.TestsCompleted,
		})
	}
	c.JSON(http.StatusOK, gin.H{"period": period, "entries": out})
}
