package model

import "time"

// NavKind names where the participant goes next.
type NavKind string

const (
	NavBreak   NavKind = "break"
	NavSession NavKind = "session"
	NavResult  NavKind = "result"
)

// NavTarget is a navigation instruction for the client.
type NavTarget struct {
	Kind      NavKind `json:"kind"`
	SessionID int     `json:"session_id,omitempty"`
}

// Progress is the participant's run record, kept across sessions.
type Progress struct {
	// Scores holds the per-question score record of each finished session.
	Scores map[int][]bool `json:"scores"`
	// Durations holds each session's length in minutes.
	Durations map[int]int `json:"durations"`
	// TimeLeft holds the seconds left on each session's clock at submit.
	TimeLeft  map[int]int `json:"time_left"`
	StartTime *time.Time  `json:"start_time,omitempty"`
	EndTime   *time.Time  `json:"end_time,omitempty"`
}

// SessionResult summarises one finished session.
type SessionResult struct {
	SessionID int `json:"session_id"`
	Correct   int `json:"correct"`
	Total     int `json:"total"`
	TimeSpent int `json:"time_spent"`
}

// RunResult is the final result page payload.
type RunResult struct {
	Sessions       []SessionResult `json:"sessions"`
	TotalCorrect   int             `json:"total_correct"`
	TotalQuestions int             `json:"total_questions"`
	TotalTime      int             `json:"total_time"`
	CompletionTime int             `json:"completion_time"`
	StartTime      *time.Time      `json:"start_time,omitempty"`
	EndTime        *time.Time      `json:"end_time,omitempty"`
}
