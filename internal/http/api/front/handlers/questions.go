package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/qanotai/qanotai-backend/internal/models"
)

// QuestionFrontHandler serves the question bank.
type QuestionFrontHandler struct {
	db *gorm.DB
}

// NewQuestionFrontHandler constructs a QuestionFrontHandler.
func NewQuestionFrontHandler(db *gorm.DB) *QuestionFrontHandler {
	return &QuestionFrontHandler{db: db}
}

// List returns enabled questions, optionally filtered by part and topic.
func (h *QuestionFrontHandler) List(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).
		Where("is_enabled = ?", true)

	if partRaw := c.Query("part"); partRaw != "" {
		part, errParse := strconv.Atoi(partRaw)
		if errParse != nil || part < 1 || part > 3 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "part must be 1, 2, or 3"})
			return
		}
		query = query.Where("part = ?", part)
	}
	if topic := c.Query("topic"); topic != "" {
		query = query.Where("topic = ?", topic)
	}

	var questions []models.Question
	if errFind := query.Order("part ASC, id ASC").Limit(100).Find(&questions).Error; errFind != nil {
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
		})
	}
	c.JSON(http.StatusOK, gin.H{"questions": out})
}
