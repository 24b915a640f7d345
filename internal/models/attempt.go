package models

import (
	"time"

	"gorm.io/datatypes"
)

// AttemptStatus represents the lifecycle state of a test attempt.
type AttemptStatus int

// AttemptStatus constants define attempt lifecycle states.
const (
	// AttemptStatusInProgress marks a running attempt.
	AttemptStatusInProgress AttemptStatus = 1
	// AttemptStatusCompleted marks a finished, scored attempt.
	AttemptStatusCompleted AttemptStatus = 2
	// AttemptStatusAbandoned marks an attempt left unfinished.
	AttemptStatusAbandoned AttemptStatus = 3
)

// TestAttempt aggregates the per-question responses of one practice test.
// Score and feedback blobs are written by the external AI scoring
// collaborator; this service only stores them.
type TestAttempt struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AttemptUUID string `gorm:"type:varchar(36);not null;uniqueIndex"` // Public attempt identifier.

	UserID uint64 `gorm:"not null;index"`                                // Related user ID.
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"` // Related user record.

	Status AttemptStatus `gorm:"not null;default:1;index"` // Current lifecycle state.

	StartedAt   time.Time  `gorm:"not null"` // Attempt start time.
	CompletedAt *time.Time ``                // Attempt completion time.

	OverallBand        float64 `gorm:"type:decimal(3,1);not null;default:0"` // Aggregate band score.
	FluencyScore       float64 `gorm:"type:decimal(3,1);not null;default:0"` // Fluency and coherence.
	LexicalScore       float64 `gorm:"type:decimal(3,1);not null;default:0"` // Lexical resource.
	GrammarScore       float64 `gorm:"type:decimal(3,1);not null;default:0"` // Grammatical range and accuracy.
	PronunciationScore float64 `gorm:"type:decimal(3,1);not null;default:0"` // Pronunciation.

	Feedback datatypes.JSON `gorm:"type:jsonb"` // Aggregate feedback blob from the scoring collaborator.

	Responses []TestResponse `gorm:"foreignKey:AttemptID;constraint:OnDelete:CASCADE"` // Per-question responses.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TestResponse is one answered question within an attempt.
type TestResponse struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AttemptID uint64      `gorm:"not null;index"`       // Related attempt ID.
	Attempt   TestAttempt `gorm:"foreignKey:AttemptID"` // Related attempt record.

	QuestionID uint64   `gorm:"not null;index"`        // Related question ID.
	Question   Question `gorm:"foreignKey:QuestionID"` // Related question record.

	AudioURL   string `gorm:"type:text"` // Object-storage URL of the recorded answer.
	Transcript string `gorm:"type:text"` // Transcribed answer text.

	Band   float64        `gorm:"type:decimal(3,1);not null;default:0"` // Per-question band score.
	Scores datatypes.JSON `gorm:"type:jsonb"`                           // Per-criterion score blob.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
