package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/qanotai/qanotai-backend/internal/attempts"
	"github.com/qanotai/qanotai-backend/internal/http/api/middleware"
	"github.com/qanotai/qanotai-backend/internal/models"
	"github.com/qanotai/qanotai-backend/internal/quota"
)

// AttemptFrontHandler serves the practice test lifecycle endpoints.
type AttemptFrontHandler struct {
	attempts *attempts.Service
}

// NewAttemptFrontHandler constructs an AttemptFrontHandler.
func NewAttemptFrontHandler(db *gorm.DB) *AttemptFrontHandler {
	return &AttemptFrontHandler{attempts: attempts.NewService(db, quota.NewService(db))}
}

// Start opens a new attempt against the user's quota.
func (h *AttemptFrontHandler) Start(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attempt, errStart := h.attempts.Start(c.Request.Context(), userID)
	if errStart != nil {
		if errors.Is(errStart, quota.ErrQuotaExceeded) {
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "quota exceeded"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "start attempt failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"attempt_uuid": attempt.AttemptUUID,
		"status":       attemptStatusString(attempt.Status),
		"started_at":   attempt.StartedAt,
	})
}

// List returns the user's attempts, newest first.
func (h *AttemptFrontHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	rows, errList := h.attempts.List(c.Request.Context(), userID, limit)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list attempts failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, attempt := range rows {
		out = append(out, attemptJSON(&attempt))
	}
	c.JSON(http.StatusOK, gin.H{"attempts": out})
}

// Get returns one attempt with its responses.
func (h *AttemptFrontHandler) Get(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attempt, errGet := h.attempts.Get(c.Request.Context(), userID, c.Param("uuid"))
	if errGet != nil {
		if errors.Is(errGet, attempts.ErrAttemptNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "attempt not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query attempt failed"})
		return
	}

	out := attemptJSON(attempt)
	responses := make([]gin.H, 0, len(attempt.Responses))
	for _, response := range attempt.Responses {
		responses = append(responses, gin.H{
			"question_id": response.QuestionID,
			"audio_url":   response.AudioURL,
			"transcript":  response.Transcript,
			"band":        response.Band,
			"scores":      response.Scores,
		})
	}
	out["responses"] = responses
	c.JSON(http.StatusOK, out)
}

// SubmitResponse records one answered question.
func (h *AttemptFrontHandler) SubmitResponse(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body attempts.ResponseInput
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.QuestionID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question_id is required"})
		return
	}

	response, errSubmit := h.attempts.SubmitResponse(c.Request.Context(), userID, c.Param("uuid"), body)
	if errSubmit != nil {
		switch {
		case errors.Is(errSubmit, attempts.ErrAttemptNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "attempt not found"})
		case errors.Is(errSubmit, attempts.ErrAttemptFinished):
			c.JSON(http.StatusConflict, gin.H{"error": "attempt already finished"})
		case errors.Is(errSubmit, attempts.ErrQuestionNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"error": "question not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "submit response failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"response_id": response.ID})
}

// Finish completes an attempt with its aggregate scores.
func (h *AttemptFrontHandler) Finish(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body attempts.FinishInput
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	attempt, errFinish := h.attempts.Finish(c.Request.Context(), userID, c.Param("uuid"), body)
	if errFinish != nil {
		switch {
		case errors.Is(errFinish, attempts.ErrAttemptNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "attempt not found"})
		case errors.Is(errFinish, attempts.ErrAttemptFinished):
			c.JSON(http.StatusConflict, gin.H{"error": "attempt already finished"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "finish attempt failed"})
		}
		return
	}

	c.JSON(http.StatusOK, attemptJSON(attempt))
}

// Abandon marks a running attempt abandoned.
func (h *AttemptFrontHandler) Abandon(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if errAbandon := h.attempts.Abandon(c.Request.Context(), userID, c.Param("uuid")); errAbandon != nil {
		switch {
		case errors.Is(errAbandon, attempts.ErrAttemptNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "attempt not found"})
		case errors.Is(errAbandon, attempts.ErrAttemptFinished):
			c.JSON(http.StatusConflict, gin.H{"error": "attempt already finished"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "abandon attempt failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func attemptJSON(attempt *models.TestAttempt) gin.H {
	return gin.H{
		"attempt_uuid":        attempt.AttemptUUID,
		"status":              attemptStatusString(attempt.Status),
		"started_at":          attempt.StartedAt,
		"completed_at":        attempt.CompletedAt,
		"overall_band":        attempt.OverallBand,
		"fluency_score":       attempt.FluencyScore,
		"lexical_score":       attempt.LexicalScore,
		"grammar_score":       attempt.GrammarScore,
		"pronunciation_score": attempt.PronunciationScore,
		"feedback":            attempt.Feedback,
	}
}

func attemptStatusString(status models.AttemptStatus) string {
	switch status {
	case models.AttemptStatusInProgress:
		return "in_progress"
	case models.AttemptStatusCompleted:
		return "completed"
	case models.AttemptStatusAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}
