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

// QuestionHandler manages admin CRUD endpoints for the question bank.
type QuestionHandler struct {
	db *gorm.DB // Database handle for question records.
}

// NewQuestionHandler constructs a question handler.
func NewQuestionHandler(db *gorm.DB) *QuestionHandler {
	return &QuestionHandler{db: db}
}

// normalizePromptList validates a prompt-list payload, a plain list of
// non-empty strings. An empty payload clears the column.
func normalizePromptList(raw json.RawMessage) (datatypes.JSON, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var prompts []string
	if errUnmarshal := json.Unmarshal(raw, &prompts); errUnmarshal != nil {
		return nil, errors.New("invalid prompt list")
	}
	cleaned := make([]string, 0, len(prompts))
	for _, prompt := range prompts {
		prompt = strings.TrimSpace(prompt)
		if prompt == "" {
			continue
		}
		cleaned = append(cleaned, prompt)
	}
	if len(cleaned) == 0 {
		return nil, nil
	}
	rawPrompts, errMarshal := json.Marshal(cleaned)
	if errMarshal != nil {
		return nil, errMarshal
	}
	return datatypes.JSON(rawPrompts), nil
}

// createQuestionRequest captures the payload for creating a question.
type createQuestionRequest struct {
	Part       int             `json:"part"`       // IELTS speaking part (1-3).
	Topic      string          `json:"topic"`      // Topic grouping.
	Text       string          `json:"text"`       // Prompt text.
	CueCard    json.RawMessage `json:"cue_card"`   // Part 2 cue card bullets.
	FollowUps  json.RawMessage `json:"follow_ups"` // Part 3 follow-up prompts.
	Difficulty string          `json:"difficulty"` // easy, medium, hard.
	IsEnabled  *bool           `json:"is_enabled"` // Optional active flag.
}

// Create validates input and inserts a new question.
func (h *QuestionHandler) Create(c *gin.Context) {
	var body createQuestionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if body.Part < 1 || body.Part > 3 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "part must be 1, 2, or 3"})
		return
	}
	topic := strings.TrimSpace(body.Topic)
	text := strings.TrimSpace(body.Text)
	if topic == "" || text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic and text are required"})
		return
	}

	cueCard, errCueCard := normalizePromptList(body.CueCard)
	if errCueCard != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cue_card"})
		return
	}
	followUps, errFollowUps := normalizePromptList(body.FollowUps)
	if errFollowUps != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid follow_ups"})
		return
	}

	enabled := true
	if body.IsEnabled != nil {
		enabled = *body.IsEnabled
	}

	question := models.Question{
		Part:       body.Part,
		Topic:      topic,
		Text:       text,
		CueCard:    cueCard,
		FollowUps:  followUps,
		Difficulty: strings.TrimSpace(body.Difficulty),
		IsEnabled:  enabled,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&question).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create question failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": question.ID})
}

// List returns questions including disabled ones, filterable by part
// and topic.
func (h *QuestionHandler) List(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).Model(&models.Question{})
	if part, errParse := strconv.Atoi(c.Query("part")); errParse == nil && part >= 1 && part <= 3 {
		query = query.Where("part = ?", part)
	}
	if topic := strings.TrimSpace(c.Query("topic")); topic != "" {
		query = query.Where("topic = ?", topic)
	}

	var questions []models.Question
	if errFind := query.Order("part ASC, id ASC").Find(&questions).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list questions failed"})
		return
	}

	out := make([]gin.H, 0, len(questions))
	for _, question := range questions {
		out = append(out, gin.H{
			"id":         question.ID,
			"part":       question.Part,
			"topic":      question.Topic,
			"text":       question.Text,
			"cue_card":   question.CueCard,
			"follow_ups": question.FollowUps,
			"difficulty": question.Difficulty,
			"is_enabled": question.IsEnabled,
			"created_at": question.CreatedAt,
			"updated_at": question.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"questions": out})
}

// updateQuestionRequest captures the payload for updating a question.
type updateQuestionRequest struct {
	Part       *int            `json:"part"`
	Topic      *string         `json:"topic"`
	Text       *string         `json:"text"`
	CueCard    json.RawMessage `json:"cue_card"`
	FollowUps  json.RawMessage `json:"follow_ups"`
	Difficulty *string         `json:"difficulty"`
	IsEnabled  *bool           `json:"is_enabled"`
}

// Update applies a partial update to a question.
func (h *QuestionHandler) Update(c *gin.Context) {
	questionID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || questionID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid question id"})
		return
	}

	var body updateQuestionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	updates := map[string]any{}
	if body.Part != nil {
		if *body.Part < 1 || *body.Part > 3 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "part must be 1, 2, or 3"})
			return
		}
		updates["part"] = *body.Part
	}
	if body.Topic != nil {
		topic := strings.TrimSpace(*body.Topic)
		if topic == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "topic must not be empty"})
			return
		}
		updates["topic"] = topic
	}
	if body.Text != nil {
		text := strings.TrimSpace(*body.Text)
		if text == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "text must not be empty"})
			return
		}
		updates["text"] = text
	}
	if len(body.CueCard) > 0 {
		cueCard, errCueCard := normalizePromptList(body.CueCard)
		if errCueCard != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cue_card"})
			return
		}
		updates["cue_card"] = cueCard
	}
	if len(body.FollowUps) > 0 {
		followUps, errFollowUps := normalizePromptList(body.FollowUps)
		if errFollowUps != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid follow_ups"})
			return
		}
		updates["follow_ups"] = followUps
	}
	if body.Difficulty != nil {
		updates["difficulty"] = strings.TrimSpace(*body.Difficulty)
	}
	if body.IsEnabled != nil {
		updates["is_enabled"] = *body.IsEnabled
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	result := h.db.WithContext(c.Request.Context()).Model(&models.Question{}).Where("id = ?", questionID).Updates(updates)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update question failed"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Disable hides a question from the front API without deleting it.
func (h *QuestionHandler) Disable(c *gin.Context) {
	h.setEnabled(c, false)
}

// Enable serves a question again.
func (h *QuestionHandler) Enable(c *gin.Context) {
	h.setEnabled(c, true)
}

func (h *QuestionHandler) setEnabled(c *gin.Context, enabled bool) {
	questionID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || questionID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid question id"})
		return
	}

	result := h.db.WithContext(c.Request.Context()).
		Model(&models.Question{}).
		Where("id = ?", questionID).
		Update("is_enabled", enabled)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update question failed"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
