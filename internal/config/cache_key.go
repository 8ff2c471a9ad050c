package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ActiveRunKey holds the id of a user's current run.
func (r *CacheKeyStruct) ActiveRunKey(userID string) string {
	return fmt.Sprintf("user:%s:active_run", userID)
}

// ProgressKey returns the hash key for a run's progress record.
func (r *CacheKeyStruct) ProgressKey(runID string) string {
	return fmt.Sprintf("run:%s:progress", runID)
}

// SessionOrderKey returns the key for a run's session order list.
func (r *CacheKeyStruct) SessionOrderKey(runID string) string {
	return fmt.Sprintf("run:%s:order", runID)
}

// SessionStartKey returns the key for the unix-millisecond start of a session attempt.
func (r *CacheKeyStruct) SessionStartKey(runID string, sessionID int) string {
	return fmt.Sprintf("run:%s:session:%d:start", runID, sessionID)
}

// SessionAnswersKey returns the hash key for autosaved answers.
func (r *CacheKeyStruct) SessionAnswersKey(runID string, sessionID int) string {
	return fmt.Sprintf("run:%s:session:%d:answers", runID, sessionID)
}

// PopupStateKey returns the hash key holding shown/dismissed popup flags.
func (r *CacheKeyStruct) PopupStateKey(runID string, sessionID int) string {
	return fmt.Sprintf("run:%s:session:%d:popups", runID, sessionID)
}

// SubmitLockKey guards the single write of a session's test answer.
func (r *CacheKeyStruct) SubmitLockKey(runID string, sessionID int) string {
	return fmt.Sprintf("run:%s:session:%d:submitted", runID, sessionID)
}

// BreakStartKey returns the key for the unix-millisecond start of a break.
func (r *CacheKeyStruct) BreakStartKey(runID string, sessionID int) string {
	return fmt.Sprintf("run:%s:break:%d:start", runID, sessionID)
}

// BreakSelectionKey returns the hash key of autosaved evaluation selections.
func (r *CacheKeyStruct) BreakSelectionKey(runID string, sessionID int) string {
	return fmt.Sprintf("run:%s:break:%d:selection", runID, sessionID)
}

// EvaluationLockKey guards the single write of a break's evaluation answer.
func (r *CacheKeyStruct) EvaluationLockKey(runID string, sessionID int) string {
	return fmt.Sprintf("run:%s:break:%d:saved", runID, sessionID)
}

var CacheKey = NewCacheKeyStruct()
