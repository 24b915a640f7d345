package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/qanotai/qanotai-backend/internal/config"
	"github.com/qanotai/qanotai-backend/internal/models"
	"github.com/qanotai/qanotai-backend/internal/security"
)

// AuthFrontHandler exchanges a provider identity for a local access
// token. Identity verification happens at the auth provider; this
// endpoint mirrors the account locally and issues the API's own JWT.
type AuthFrontHandler struct {
	db     *gorm.DB
	jwtCfg config.JWTConfig
}

// NewAuthFrontHandler constructs an AuthFrontHandler.
func NewAuthFrontHandler(db *gorm.DB, jwtCfg config.JWTConfig) *AuthFrontHandler {
	return &AuthFrontHandler{db: db, jwtCfg: jwtCfg}
}

// tokenRequest defines the request body for the token exchange.
type tokenRequest struct {
	AuthID string `json:"auth_id"`
	Phone  string `json:"phone"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Token upserts the user mirror keyed on the provider's auth id and
// returns a bearer token for it. Contact fields refresh on every
// exchange so the mirror tracks the provider profile.
func (h *AuthFrontHandler) Token(c *gin.Context) {
	var body tokenRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	authID := strings.TrimSpace(body.AuthID)
	if authID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "auth_id is required"})
		return
	}

	var user models.User
	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		errFind := tx.Where("auth_id = ?", authID).First(&user).Error
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			user = models.User{
				AuthID: authID,
				Phone:  strings.TrimSpace(body.Phone),
				Email:  strings.TrimSpace(body.Email),
				Name:   strings.TrimSpace(body.Name),
				Active: true,
			}
			return tx.Create(&user).Error
		}
		if errFind != nil {
			return errFind
		}
		if !user.Active {
			return errUserDisabled
		}

		updates := map[string]any{}
		if phone := strings.TrimSpace(body.Phone); phone != "" && phone != user.Phone {
			updates["phone"] = phone
			user.Phone = phone
		}
		if email := strings.TrimSpace(body.Email); email != "" && email != user.Email {
			updates["email"] = email
			user.Email = email
		}
		if name := strings.TrimSpace(body.Name); name != "" && name != user.Name {
			updates["name"] = name
			user.Name = name
		}
		if len(updates) == 0 {
			return nil
		}
		updates["updated_at"] = time.Now().UTC()
		return tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error
	})
	if errTx != nil {
		if errors.Is(errTx, errUserDisabled) {
			c.JSON(http.StatusForbidden, gin.H{"error": "user disabled"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token exchange failed"})
		return
	}

	token, errIssue := security.IssueUserToken(h.jwtCfg.Secret, user.ID, h.jwtCfg.Expiry)
	if errIssue != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user": gin.H{
			"id":      user.ID,
			"auth_id": user.AuthID,
			"phone":   user.Phone,
			"email":   user.Email,
			"name":    user.Name,
		},
	})
}

var errUserDisabled = errors.New("user disabled")
