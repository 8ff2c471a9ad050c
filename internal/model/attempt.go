package model

import (
	"time"

	"github.com/google/uuid"
)

// PopupReaction is a participant's response to a popup.
type PopupReaction string

const (
	ReactionYes      PopupReaction = "yes"
	ReactionNo       PopupReaction = "no"
	ReactionNoAnswer PopupReaction = "no_answer"
)

// PopupReactionRecord is one stored reaction.
type PopupReactionRecord struct {
	RunID     uuid.UUID     `json:"run_id"`
	UserID    string        `json:"user_id"`
	SessionID int           `json:"session_id"`
	PopupID   int           `json:"popup_id"`
	Reaction  PopupReaction `json:"reaction"`
	CreatedAt time.Time     `json:"created_at"`
}

// TestAnswer is the stored result of one session attempt.
type TestAnswer struct {
	ID        int64              `json:"id"`
	RunID     uuid.UUID          `json:"run_id"`
	UserID    string             `json:"user_id"`
	SessionID int                `json:"session_id"`
	TotalTime int                `json:"total_time"`
	CreatedAt time.Time          `json:"created_at"`
	Details   []TestAnswerDetail `json:"details,omitempty"`
}

// TestAnswerDetail is the graded answer to one question.
type TestAnswerDetail struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
	IsCorrect  bool   `json:"is_correct"`
}

// TestAnswerSummary is a row of the admin results listing.
type TestAnswerSummary struct {
	ID        int64     `json:"id"`
	RunID     uuid.UUID `json:"run_id"`
	UserID    string    `json:"user_id"`
	SessionID int       `json:"session_id"`
	TotalTime int       `json:"total_time"`
	Correct   int       `json:"correct"`
	Total     int       `json:"total"`
	CreatedAt time.Time `json:"created_at"`
}

// EvaluationAnswer is the stored evaluation of one break.
type EvaluationAnswer struct {
	ID             uuid.UUID                `json:"id"`
	RunID          uuid.UUID                `json:"run_id"`
	UserID         string                   `json:"user_id"`
	SessionID      int                      `json:"session_id"`
	CompletionType string                   `json:"completion_type"`
	CreatedAt      time.Time                `json:"created_at"`
	Details        []EvaluationAnswerDetail `json:"details,omitempty"`
}

// EvaluationAnswerDetail maps a variable to the selected suggested answer.
type EvaluationAnswerDetail struct {
	VariableID uuid.UUID `json:"evaluation_variable_id"`
	AnswerID   uuid.UUID `json:"evaluation_suggested_answer_id"`
}

// StartRunRequest begins a new participant run. An empty UserID gets a
// generated one.
type StartRunRequest struct {
	UserID string `json:"user_id" binding:"omitempty,max=64,alphanumunicode|uuid"`
}

// AnswerRequest autosaves one answer.
type AnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required,uuid"`
	Answer     string `json:"answer" binding:"required,max=500"`
}

// ReactionRequest answers a visible popup.
type ReactionRequest struct {
	Reaction PopupReaction `json:"reaction" binding:"required,oneof=yes no"`
}

// SelectionRequest autosaves one evaluation selection.
type SelectionRequest struct {
	VariableID string `json:"variable_id" binding:"required,uuid"`
	AnswerID   string `json:"answer_id" binding:"required,uuid"`
}

// EvaluationSubmitRequest is sent when the participant presses Done.
// Answers maps variable id to suggested answer id.
type EvaluationSubmitRequest struct {
	Answers map[string]string `json:"answers"`
}
