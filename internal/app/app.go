// Package app boots the API server: database, routes, background jobs.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/qanotai/qanotai-backend/internal/config"
	"github.com/qanotai/qanotai-backend/internal/db"
	adminapi "github.com/qanotai/qanotai-backend/internal/http/api/admin"
	frontapi "github.com/qanotai/qanotai-backend/internal/http/api/front"
	paymentapi "github.com/qanotai/qanotai-backend/internal/http/api/payment"
	"github.com/qanotai/qanotai-backend/internal/leaderboard"
	"github.com/qanotai/qanotai-backend/internal/models"
	"github.com/qanotai/qanotai-backend/internal/ratelimit"
	"github.com/qanotai/qanotai-backend/internal/security"
)

// Environment variables for seeding the first admin account.
const (
	envAdminUsername = "ADMIN_USERNAME"
	envAdminPassword = "ADMIN_PASSWORD"
)

// leaderboardInterval is how often leaderboard snapshots are rebuilt.
const leaderboardInterval = 10 * time.Minute

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the API server and blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errSeed := ensureAdminSeeded(conn); errSeed != nil {
		return errSeed
	}

	jwtCfg, _ := config.LoadJWTConfig(configPath)
	if strings.TrimSpace(jwtCfg.Secret) == "" {
		return errors.New("jwt secret is required (set `jwt.secret` in config or JWT_SECRET)")
	}
	paymeCfg, _ := config.LoadPaymeConfig(configPath)
	if paymeCfg.TestMode {
		log.Warn("payme gateway running in test mode")
	}

	limiter := buildLimiter(ctx, configPath)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	adminapi.RegisterAdminRoutes(r, conn, jwtCfg, limiter)
	frontapi.RegisterFrontRoutes(r, conn, jwtCfg, limiter)
	paymentapi.RegisterPaymentRoutes(r, conn, paymeCfg, jwtCfg, limiter)

	go runLeaderboardJob(ctx, conn)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("api server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// buildLimiter picks a Redis-backed limiter when configured and falls
// back to the in-process one.
func buildLimiter(ctx context.Context, configPath string) ratelimit.Limiter {
	redisCfg, _ := config.LoadRedisConfig(configPath)
	if strings.TrimSpace(redisCfg.Addr) == "" {
		return ratelimit.NewMemoryLimiter()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	if errPing := client.Ping(ctx).Err(); errPing != nil {
		log.WithError(errPing).Warn("redis unreachable, using in-memory rate limiter")
		return ratelimit.NewMemoryLimiter()
	}
	log.WithField("addr", redisCfg.Addr).Info("redis rate limiter enabled")
	return ratelimit.NewRedisLimiter(client, "qanotai:rl")
}

// runLeaderboardJob periodically rebuilds leaderboard snapshots.
func runLeaderboardJob(ctx context.Context, conn *gorm.DB) {
	service := leaderboard.NewService(conn)

	ticker := time.NewTicker(leaderboardInterval)
	defer ticker.Stop()

	for {
		if errRecompute := service.RecomputeAll(ctx, time.Now().UTC()); errRecompute != nil {
			log.WithError(errRecompute).Error("leaderboard recompute failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ensureAdminSeeded creates the first admin account from environment
// variables when the table is empty. Without credentials the admin API
// stays locked until one is created manually.
func ensureAdminSeeded(conn *gorm.DB) error {
	var count int64
	if errCount := conn.Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		return fmt.Errorf("app: count admins: %w", errCount)
	}
	if count > 0 {
		return nil
	}

	username := strings.TrimSpace(os.Getenv(envAdminUsername))
	password := os.Getenv(envAdminPassword)
	if username == "" || password == "" {
		log.Warn("no admin account exists and ADMIN_USERNAME/ADMIN_PASSWORD are unset")
		return nil
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("app: hash admin password: %w", errHash)
	}
	admin := models.Admin{Username: username, Password: hash, Active: true}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		return fmt.Errorf("app: create admin: %w", errCreate)
	}
	log.WithField("username", username).Info("seeded initial admin account")
	return nil
}

// requestLogger logs one line per request with method, path, status,
// and latency.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Info("request")
	}
}
