package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exlab-backend/internal/config"
)

const (
	popupShown     = "shown"
	popupDismissed = "dismissed"
)

// AttemptStore keeps the resumable state of session attempts and breaks:
// start times, autosaved answers and selections, popup flags, and the
// locks that make each submission happen once.
type AttemptStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewAttemptStore creates an AttemptStore.
func NewAttemptStore(rdb *redis.Client, ttl time.Duration) *AttemptStore {
	return &AttemptStore{rdb: rdb, ttl: ttl}
}

// SessionStart returns the start time of the attempt, stamping now if this
// is the first call. Concurrent first calls agree on one value. Starts are
// kept in unix milliseconds.
func (s *AttemptStore) SessionStart(ctx context.Context, runID string, sessionID int, now time.Time) (time.Time, error) {
	return s.startOnce(ctx, config.CacheKey.SessionStartKey(runID, sessionID), now)
}

// BreakStart is SessionStart for the break that follows a session.
func (s *AttemptStore) BreakStart(ctx context.Context, runID string, sessionID int, now time.Time) (time.Time, error) {
	return s.startOnce(ctx, config.CacheKey.BreakStartKey(runID, sessionID), now)
}

func (s *AttemptStore) startOnce(ctx context.Context, key string, now time.Time) (time.Time, error) {
	if err := s.rdb.SetNX(ctx, key, now.UnixMilli(), s.ttl).Err(); err != nil {
		return time.Time{}, fmt.Errorf("stamp start: %w", err)
	}
	val, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("read start: %w", err)
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start time format in cache: %w", err)
	}
	return time.UnixMilli(ms), nil
}

// Answers returns the autosaved answers of an attempt.
func (s *AttemptStore) Answers(ctx context.Context, runID string, sessionID int) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, config.CacheKey.SessionAnswersKey(runID, sessionID)).Result()
}

// SaveAnswer autosaves one answer.
func (s *AttemptStore) SaveAnswer(ctx context.Context, runID string, sessionID int, questionID, answer string) error {
	return s.hset(ctx, config.CacheKey.SessionAnswersKey(runID, sessionID), questionID, answer)
}

// PopupState returns the shown and dismissed popup ids of an attempt.
func (s *AttemptStore) PopupState(ctx context.Context, runID string, sessionID int) (shown, dismissed []int, err error) {
	raw, err := s.rdb.HGetAll(ctx, config.CacheKey.PopupStateKey(runID, sessionID)).Result()
	if err != nil {
		return nil, nil, err
	}
	for field, state := range raw {
		id, convErr := strconv.Atoi(field)
		if convErr != nil {
			continue
		}
		shown = append(shown, id)
		if state == popupDismissed {
			dismissed = append(dismissed, id)
		}
	}
	sort.Ints(shown)
	sort.Ints(dismissed)
	return shown, dismissed, nil
}

// MarkShown flags popups as shown without downgrading dismissed ones.
func (s *AttemptStore) MarkShown(ctx context.Context, runID string, sessionID int, popupIDs ...int) error {
	if len(popupIDs) == 0 {
		return nil
	}
	key := config.CacheKey.PopupStateKey(runID, sessionID)
	pipe := s.rdb.Pipeline()
	for _, id := range popupIDs {
		pipe.HSetNX(ctx, key, strconv.Itoa(id), popupShown)
	}
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// MarkDismissed flags a popup as dismissed.
func (s *AttemptStore) MarkDismissed(ctx context.Context, runID string, sessionID, popupID int) error {
	return s.hset(ctx, config.CacheKey.PopupStateKey(runID, sessionID), strconv.Itoa(popupID), popupDismissed)
}

// Selections returns the autosaved evaluation selections of a break.
func (s *AttemptStore) Selections(ctx context.Context, runID string, sessionID int) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, config.CacheKey.BreakSelectionKey(runID, sessionID)).Result()
}

// SaveSelection autosaves one evaluation selection.
func (s *AttemptStore) SaveSelection(ctx context.Context, runID string, sessionID int, variableID, answerID string) error {
	return s.hset(ctx, config.CacheKey.BreakSelectionKey(runID, sessionID), variableID, answerID)
}

// AcquireSubmit takes the cross-instance submit lock. It returns false when
// another caller already holds or completed it.
func (s *AttemptStore) AcquireSubmit(ctx context.Context, runID string, sessionID int) (bool, error) {
	return s.rdb.SetNX(ctx, config.CacheKey.SubmitLockKey(runID, sessionID), "1", s.ttl).Result()
}

// ReleaseSubmit drops the submit lock after a failed write.
func (s *AttemptStore) ReleaseSubmit(ctx context.Context, runID string, sessionID int) error {
	return s.rdb.Del(ctx, config.CacheKey.SubmitLockKey(runID, sessionID)).Err()
}

// Submitted reports whether the submit lock is held.
func (s *AttemptStore) Submitted(ctx context.Context, runID string, sessionID int) (bool, error) {
	return s.exists(ctx, config.CacheKey.SubmitLockKey(runID, sessionID))
}

// AcquireEvaluation takes the cross-instance evaluation save lock.
func (s *AttemptStore) AcquireEvaluation(ctx context.Context, runID string, sessionID int) (bool, error) {
	return s.rdb.SetNX(ctx, config.CacheKey.EvaluationLockKey(runID, sessionID), "1", s.ttl).Result()
}

// ReleaseEvaluation drops the evaluation lock after a failed write.
func (s *AttemptStore) ReleaseEvaluation(ctx context.Context, runID string, sessionID int) error {
	return s.rdb.Del(ctx, config.CacheKey.EvaluationLockKey(runID, sessionID)).Err()
}

// EvaluationSaved reports whether the evaluation lock is held.
func (s *AttemptStore) EvaluationSaved(ctx context.Context, runID string, sessionID int) (bool, error) {
	return s.exists(ctx, config.CacheKey.EvaluationLockKey(runID, sessionID))
}

// ClearRun removes every attempt and break key of the given sessions.
func (s *AttemptStore) ClearRun(ctx context.Context, runID string, sessionIDs []int) error {
	keys := make([]string, 0, len(sessionIDs)*8)
	for _, sid := range sessionIDs {
		keys = append(keys,
			config.CacheKey.SessionStartKey(runID, sid),
			config.CacheKey.SessionAnswersKey(runID, sid),
			config.CacheKey.PopupStateKey(runID, sid),
			config.CacheKey.SubmitLockKey(runID, sid),
			config.CacheKey.BreakStartKey(runID, sid),
			config.CacheKey.BreakSelectionKey(runID, sid),
			config.CacheKey.EvaluationLockKey(runID, sid),
		)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *AttemptStore) hset(ctx context.Context, key, field, value string) error {
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, field, value)
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *AttemptStore) exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return n > 0, nil
}
