// Package front wires the user-facing API routes.
package front

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/qanotai/qanotai-backend/internal/config"
	"github.com/qanotai/qanotai-backend/internal/http/api/front/handlers"
	"github.com/qanotai/qanotai-backend/internal/http/api/middleware"
	"github.com/qanotai/qanotai-backend/internal/ratelimit"
)

// RegisterFrontRoutes registers user routes, middleware, and handlers.
func RegisterFrontRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, limiter ratelimit.Limiter) {
	if r == nil || db == nil {
		return
	}

	authHandler := handlers.NewAuthFrontHandler(db, jwtCfg)
	r.POST("/v1/auth/token", middleware.RateLimit(limiter, 20, time.Minute), authHandler.Token)

	planHandler := handlers.NewPlanFrontHandler(db)
	r.GET("/v1/plans", planHandler.List)

	authed := r.Group("/v1")
	authed.Use(middleware.UserAuth(db, jwtCfg))
	authed.Use(middleware.RateLimit(limiter, 120, time.Minute))

	subscriptionHandler := handlers.NewSubscriptionFrontHandler(db)
	authed.GET("/subscription", subscriptionHandler.Get)
	authed.POST("/subscription/cancel", subscriptionHandler.Cancel)

	quotaHandler := handlers.NewQuotaFrontHandler(db)
	authed.GET("/quota", quotaHandler.Get)

	attemptHandler := handlers.NewAttemptFrontHandler(db)
	authed.POST("/attempts", attemptHandler.Start)
	authed.GET("/attempts", attemptHandler.List)
	authed.GET("/attempts/:uuid", attemptHandler.Get)
	authed.POST("/attempts/:uuid/responses", attemptHandler.SubmitResponse)
	authed.POST("/attempts/:uuid/finish", attemptHandler.Finish)
	authed.POST("/attempts/:uuid/abandon", attemptHandler.Abandon)

	questionHandler := handlers.NewQuestionFrontHandler(db)
	authed.GET("/questions", questionHandler.List)

	progressHandler := handlers.NewProgressFrontHandler(db)
	authed.GET("/progress", progressHandler.List)
	authed.GET("/achievements", progressHandler.Achievements)

	leaderboardHandler := handlers.NewLeaderboardFrontHandler(db)
	authed.GET("/leaderboard", leaderboardHandler.Top)
}
