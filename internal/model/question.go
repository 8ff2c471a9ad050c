package model

import (
	"time"

	"github.com/google/uuid"
)

// Question is a multiple-choice item. CorrectAnswer is stripped before a
// question is sent to participants.
type Question struct {
	ID            uuid.UUID `json:"id"`
	Question      string    `json:"question"`
	Choices       []string  `json:"choices"`
	CorrectAnswer string    `json:"correct_answer,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Public returns a copy without the answer key.
func (q Question) Public() Question {
	q.CorrectAnswer = ""
	return q
}

// QuestionSet groups questions under an optional illustration.
type QuestionSet struct {
	ID        int        `json:"id"`
	SetName   string     `json:"set_name"`
	Image     *string    `json:"image"`
	CreatedAt time.Time  `json:"created_at"`
	Questions []Question `json:"questions"`
}

// CreateQuestionRequest is the payload for creating a question.
type CreateQuestionRequest struct {
	Question      string   `json:"question" binding:"required,notblank,max=4000"`
	Choices       []string `json:"choices" binding:"required,min=2,max=10,dive,required,max=500"`
	CorrectAnswer string   `json:"correct_answer" binding:"required,max=500"`
}

// UpdateQuestionRequest replaces a question's content.
type UpdateQuestionRequest = CreateQuestionRequest

// CreateQuestionSetRequest is the payload for adding a set to a session.
type CreateQuestionSetRequest struct {
	SetName string `json:"set_name" binding:"required,notblank,max=200"`
}

// UpdateQuestionSetRequest renames a set.
type UpdateQuestionSetRequest struct {
	SetName string `json:"set_name" binding:"required,notblank,max=200"`
}

// LinkQuestionRequest adds an existing question to a set.
type LinkQuestionRequest struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
}
