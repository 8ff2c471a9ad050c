package model

import "time"

// Session is one timed block of questions followed by a break.
type Session struct {
	ID                int           `json:"id"`
	Name              string        `json:"name"`
	Description       string        `json:"description"`
	DurationMinutes   int           `json:"duration_minutes"`
	EvaluationMinutes int           `json:"evaluation_minutes"`
	CreatedAt         time.Time     `json:"created_at"`
	Popups            []Popup       `json:"popups,omitempty"`
	QuestionSets      []QuestionSet `json:"question_sets,omitempty"`
}

// Popup is a prompt shown during a session. StartTime and Duration are in
// seconds from session start.
type Popup struct {
	ID          int       `json:"id"`
	SessionID   int       `json:"session_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartTime   int       `json:"start_time"`
	Duration    int       `json:"duration"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateSessionRequest is the payload for creating a session.
type CreateSessionRequest struct {
	Name              string `json:"name" binding:"required,notblank,max=200"`
	Description       string `json:"description" binding:"max=2000"`
	DurationMinutes   int    `json:"duration_minutes" binding:"required,min=1,max=600"`
	EvaluationMinutes int    `json:"evaluation_minutes" binding:"min=0,max=600"`
}

// UpdateSessionRequest patches a session; nil fields are left unchanged.
type UpdateSessionRequest struct {
	Name              *string `json:"name" binding:"omitempty,min=1,max=200"`
	Description       *string `json:"description" binding:"omitempty,max=2000"`
	DurationMinutes   *int    `json:"duration_minutes" binding:"omitempty,min=1,max=600"`
	EvaluationMinutes *int    `json:"evaluation_minutes" binding:"omitempty,min=0,max=600"`
}

// CreatePopupRequest is the payload for adding a popup to a session.
type CreatePopupRequest struct {
	Name        string `json:"name" binding:"required,notblank,max=200"`
	Description string `json:"description" binding:"required,max=2000"`
	StartTime   int    `json:"start_time" binding:"min=0"`
	Duration    int    `json:"duration" binding:"required,min=1"`
}

// UpdatePopupRequest patches a popup; nil fields are left unchanged.
type UpdatePopupRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=200"`
	Description *string `json:"description" binding:"omitempty,min=1,max=2000"`
	StartTime   *int    `json:"start_time" binding:"omitempty,min=0"`
	Duration    *int    `json:"duration" binding:"omitempty,min=1"`
}
