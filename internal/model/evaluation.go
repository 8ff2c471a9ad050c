package model

import (
	"time"

	"github.com/google/uuid"
)

// EvaluationQuestion is the self-assessment form shown during a break.
type EvaluationQuestion struct {
	ID          uuid.UUID            `json:"id"`
	Description string               `json:"description"`
	CreatedAt   time.Time            `json:"created_at"`
	Variables   []EvaluationVariable `json:"variables"`
}

// EvaluationVariable is one rated dimension of the form.
type EvaluationVariable struct {
	ID               uuid.UUID         `json:"id"`
	QuestionID       uuid.UUID         `json:"question_id"`
	VariableName     string            `json:"variable_name"`
	SuggestedAnswers []SuggestedAnswer `json:"suggested_answers"`
}

// SuggestedAnswer is a selectable option of a variable.
type SuggestedAnswer struct {
	ID          uuid.UUID `json:"id"`
	VariableID  uuid.UUID `json:"variable_id"`
	AnswerText  string    `json:"answer_text"`
	OrderNumber int       `json:"order_number"`
}

// Options returns variable id -> allowed answer ids.
func (q *EvaluationQuestion) Options() map[string][]string {
	out := make(map[string][]string, len(q.Variables))
	for _, v := range q.Variables {
		ids := make([]string, 0, len(v.SuggestedAnswers))
		for _, a := range v.SuggestedAnswers {
			ids = append(ids, a.ID.String())
		}
		out[v.ID.String()] = ids
	}
	return out
}

// EvaluationRequest creates or fully replaces an evaluation question.
type EvaluationRequest struct {
	Description string                    `json:"description" binding:"required,max=4000"`
	Variables   []EvaluationVariableInput `json:"variables" binding:"dive"`
}

// EvaluationVariableInput is a variable with its suggested answers.
type EvaluationVariableInput struct {
	VariableName string                 `json:"variable_name" binding:"required,max=200"`
	Answers      []SuggestedAnswerInput `json:"answers" binding:"required,min=1,dive"`
}

// SuggestedAnswerInput is one suggested answer.
type SuggestedAnswerInput struct {
	AnswerText  string `json:"answer_text" binding:"required,max=500"`
	OrderNumber int    `json:"order_number" binding:"min=0"`
}
