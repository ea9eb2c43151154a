package models

import (
	"time"

	"github.com/google/uuid"
)

// Quiz represents an authored quiz that a room can play through.
type Quiz struct {
	ID          uuid.UUID  `json:"id"`
	CreatorID   string     `json:"creator_id"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Questions   []Question `json:"questions,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Question is a single quiz question with its answer options.
// CorrectAnswerIndex is only meaningful server-side; clients receive
// correctness from the scoring collaborator, never from this struct.
type Question struct {
	ID                 uuid.UUID `json:"id"`
	QuizID             uuid.UUID `json:"quiz_id"`
	Position           int       `json:"position"`
	Text               string    `json:"text"`
	Options            []string  `json:"options"`
	CorrectAnswerIndex int       `json:"correct_answer_index"`
	TimeLimitSec       int       `json:"time_limit_sec"`
}

// TimeLimit returns the question's answer window as a duration.
func (q Question) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitSec) * time.Second
}
