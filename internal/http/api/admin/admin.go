// Package admin wires the operator-facing API routes.
package admin

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/qanotai/qanotai-backend/internal/config"
	"github.com/qanotai/qanotai-backend/internal/http/api/admin/handlers"
	"github.com/qanotai/qanotai-backend/internal/http/api/middleware"
	"github.com/qanotai/qanotai-backend/internal/models"
	"github.com/qanotai/qanotai-backend/internal/ratelimit"
	"github.com/qanotai/qanotai-backend/internal/security"
)

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, limiter ratelimit.Limiter) {
	if r == nil || db == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	adminGroup := r.Group("/v1/admin")
	adminGroup.Use(middleware.RateLimit(limiter, 60, time.Minute))

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	adminGroup.POST("/login", authHandler.Login)

	authed := adminGroup.Group("")
	authed.Use(adminAuthMiddleware(db, jwtCfg))

	planHandler := handlers.NewPlanHandler(db)
	authed.POST("/plans", planHandler.Create)
	authed.GET("/plans", planHandler.List)
	authed.PUT("/plans/:id", planHandler.Update)
	authed.POST("/plans/:id/disable", planHandler.Disable)
	authed.POST("/plans/:id/enable", planHandler.Enable)

	questionHandler := handlers.NewQuestionHandler(db)
	authed.POST("/questions", questionHandler.Create)
	authed.GET("/questions", questionHandler.List)
	authed.PUT("/questions/:id", questionHandler.Update)
	authed.POST("/questions/:id/disable", questionHandler.Disable)
	authed.POST("/questions/:id/enable", questionHandler.Enable)

	userHandler := handlers.NewUserHandler(db)
	authed.GET("/users", userHandler.List)
	authed.GET("/users/:id", userHandler.Get)
	authed.POST("/users/:id/disable", userHandler.Disable)
	authed.POST("/users/:id/enable", userHandler.Enable)
	authed.POST("/users/:id/bonus-tests", userHandler.GrantBonusTests)

	paymentHandler := handlers.NewPaymentHandler(db)
	authed.GET("/payments", paymentHandler.List)

	leaderboardHandler := handlers.NewLeaderboardHandler(db)
	authed.POST("/leaderboard/rebuild", leaderboardHandler.Rebuild)
}

// adminAuthMiddleware validates admin JWTs and loads admin context.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).First(&admin, claims.AdminID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}
		if !admin.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
			return
		}

		c.Set("adminID", admin.ID)
		c.Set("adminUsername", admin.Username)
		c.Next()
	}
}
