package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qanotai/qanotai-backend/internal/models"
)

// PlanHandler manages admin CRUD endpoints for plans.
type PlanHandler struct {
	db *gorm.DB // Database handle for plan records.
}

// NewPlanHandler constructs a plan handler.
func NewPlanHandler(db *gorm.DB) *PlanHandler {
	return &PlanHandler{db: db}
}

// normalizePlanFeatures validates the features payload, a plain list of
// feature strings.
func normalizePlanFeatures(raw json.RawMessage) (datatypes.JSON, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return datatypes.JSON([]byte("[]")), nil
	}

	var features []string
	if errUnmarshal := json.Unmarshal(raw, &features); errUnmarshal != nil {
		return nil, errors.New("invalid features")
	}
	cleaned := make([]string, 0, len(features))
	for _, feature := range features {
		feature = strings.TrimSpace(feature)
		if feature == "" {
			continue
		}
		cleaned = append(cleaned, feature)
	}
	rawFeatures, errMarshal := json.Marshal(cleaned)
	if errMarshal != nil {
		return nil, errMarshal
	}
	return datatypes.JSON(rawFeatures), nil
}

// createPlanRequest captures the payload for creating a plan.
type createPlanRequest struct {
	Tier             string          `json:"tier"`               // Tier identifier.
	Name             string          `json:"name"`               // Display name.
	PriceUZS         int64           `json:"price_uzs"`          // Monthly price in som.
	Description      string          `json:"description"`        // Plan description.
	MonthlyTestLimit int             `json:"monthly_test_limit"` // Tests per month, 0 = unlimited.
	DurationDays     int             `json:"duration_days"`      // Subscription length, 0 = never expires.
	Features         json.RawMessage `json:"features"`           // Feature list payload.
	SortOrder        int             `json:"sort_order"`         // Display order.
	IsEnabled        *bool           `json:"is_enabled"`         // Optional active flag.
}

// Create validates input and inserts a new plan.
func (h *PlanHandler) Create(c *gin.Context) {
	var body createPlanRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	tier := strings.TrimSpace(body.Tier)
	name := strings.TrimSpace(body.Name)
	if tier == "" || name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tier and name are required"})
		return
	}
	if body.PriceUZS < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price_uzs must not be negative"})
		return
	}

	features, errFeatures := normalizePlanFeatures(body.Features)
	if errFeatures != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid features"})
		return
	}

	enabled := true
	if body.IsEnabled != nil {
		enabled = *body.IsEnabled
	}

	plan := models.Plan{
		Tier:             tier,
		Name:             name,
		PriceUZS:         body.PriceUZS,
		Description:      body.Description,
		MonthlyTestLimit: body.MonthlyTestLimit,
		DurationDays:     body.DurationDays,
		Features:         features,
		SortOrder:        body.SortOrder,
		IsEnabled:        enabled,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&plan).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create plan failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": plan.ID})
}

// List returns all plans including disabled ones.
func (h *PlanHandler) List(c *gin.Context) {
	var plans []models.Plan
	if errFind := h.db.WithContext(c.Request.Context()).
		Order("sort_order ASC, id ASC").
		Find(&plans).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list plans failed"})
		return
	}

	out := make([]gin.H, 0, len(plans))
	for _, plan := range plans {
		out = append(out, gin.H{
			"id":                 plan.ID,
			"tier":               plan.Tier,
			"name":               plan.Name,
			"price_uzs":          plan.PriceUZS,
			"description":        plan.Description,
			"monthly_test_limit": plan.MonthlyTestLimit,
			"duration_days":      plan.DurationDays,
			"features":           plan.Features,
			"sort_order":         plan.SortOrder,
			"is_enabled":         plan.IsEnabled,
			"created_at":         plan.CreatedAt,
			"updated_at":         plan.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}

// updatePlanRequest captures the payload for updating a plan.
type updatePlanRequest struct {
	Name             *string         `json:"name"`
	PriceUZS         *int64          `json:"price_uzs"`
	Description      *string         `json:"description"`
	MonthlyTestLimit *int            `json:"monthly_test_limit"`
	DurationDays     *int            `json:"duration_days"`
	Features         json.RawMessage `json:"features"`
	SortOrder        *int            `json:"sort_order"`
	IsEnabled        *bool           `json:"is_enabled"`
}

// Update applies a partial update to a plan.
func (h *PlanHandler) Update(c *gin.Context) {
	planID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || planID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan id"})
		return
	}

	var body updatePlanRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	updates := map[string]any{}
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name must not be empty"})
			return
		}
		updates["name"] = name
	}
	if body.PriceUZS != nil {
		if *body.PriceUZS < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "price_uzs must not be negative"})
			return
		}
		updates["price_uzs"] = *body.PriceUZS
	}
	if body.Description != nil {
		updates["description"] = *body.Description
	}
	if body.MonthlyTestLimit != nil {
		updates["monthly_test_limit"] = *body.MonthlyTestLimit
	}
	if body.DurationDays != nil {
		updates["duration_days"] = *body.DurationDays
	}
	if len(body.Features) > 0 {
		features, errFeatures := normalizePlanFeatures(body.Features)
		if errFeatures != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid features"})
			return
		}
		updates["features"] = features
	}
	if body.SortOrder != nil {
		updates["sort_order"] = *body.SortOrder
	}
	if body.IsEnabled != nil {
		updates["is_enabled"] = *body.IsEnabled
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	result := h.db.WithContext(c.Request.Context()).Model(&models.Plan{}).Where("id = ?", planID).Updates(updates)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update plan failed"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "plan not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Disable turns a plan off without deleting it.
func (h *PlanHandler) Disable(c *gin.Context) {
	h.setEnabled(c, false)
}

// Enable turns a plan back on.
func (h *PlanHandler) Enable(c *gin.Context) {
	h.setEnabled(c, true)
}

func (h *PlanHandler) setEnabled(c *gin.Context, enabled bool) {
	planID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || planID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan id"})
		return
	}

	result := h.db.WithContext(c.Request.Context()).
		Model(&models.Plan{}).
		Where("id = ?", planID).
		Update("is_enabled", enabled)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update plan failed"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "plan not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
