// Package store keeps per-participant run state in Redis.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exlab-backend/internal/config"
	"github.com/stemsi/exlab-backend/internal/model"
)

const (
	fieldScores    = "scores:"
	fieldDuration  = "duration:"
	fieldTimeLeft  = "time_left:"
	fieldStartTime = "start_time"
	fieldEndTime   = "end_time"
)

// ProgressStore persists the participant's run record as one Redis hash.
type ProgressStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewProgressStore creates a ProgressStore. Records expire ttl after their
// last write.
func NewProgressStore(rdb *redis.Client, ttl time.Duration) *ProgressStore {
	return &ProgressStore{rdb: rdb, ttl: ttl}
}

// Reset clears the record and stamps a new start time.
func (s *ProgressStore) Reset(ctx context.Context, runID string, startedAt time.Time) error {
	key := config.CacheKey.ProgressKey(runID)
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fieldStartTime, startedAt.Unix())
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Clear deletes the record entirely.
func (s *ProgressStore) Clear(ctx context.Context, runID string) error {
	return s.rdb.Del(ctx, config.CacheKey.ProgressKey(runID)).Err()
}

// SetDuration records a session's length in minutes.
func (s *ProgressStore) SetDuration(ctx context.Context, runID string, sessionID, minutes int) error {
	return s.write(ctx, runID, fieldDuration+strconv.Itoa(sessionID), minutes)
}

// SetEndTime stamps the end of the run.
func (s *ProgressStore) SetEndTime(ctx context.Context, runID string, at time.Time) error {
	return s.write(ctx, runID, fieldEndTime, at.Unix())
}

// RecordSession stores a finished session's score record and the seconds
// that were left on its clock.
func (s *ProgressStore) RecordSession(ctx context.Context, runID string, sessionID int, scores []bool, timeLeft int) error {
	if scores == nil {
		scores = []bool{}
	}
	raw, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	sid := strconv.Itoa(sessionID)
	return s.write(ctx, runID,
		fieldScores+sid, raw,
		fieldTimeLeft+sid, timeLeft,
	)
}

func (s *ProgressStore) write(ctx context.Context, runID string, values ...any) error {
	key := config.CacheKey.ProgressKey(runID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, values...)
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Get loads the record. A participant without a record gets an empty one.
func (s *ProgressStore) Get(ctx context.Context, runID string) (*model.Progress, error) {
	raw, err := s.rdb.HGetAll(ctx, config.CacheKey.ProgressKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	p := &model.Progress{
		Scores:    make(map[int][]bool),
		Durations: make(map[int]int),
		TimeLeft:  make(map[int]int),
	}
	for field, val := range raw {
		switch {
		case field == fieldStartTime:
			p.StartTime = parseUnix(val)
		case field == fieldEndTime:
			p.EndTime = parseUnix(val)
		case strings.HasPrefix(field, fieldScores):
			sid, ok := suffixID(field, fieldScores)
			if !ok {
				continue
			}
			var scores []bool
			if err := json.Unmarshal([]byte(val), &scores); err != nil {
				return nil, fmt.Errorf("decode scores for session %d: %w", sid, err)
			}
			p.Scores[sid] = scores
		case strings.HasPrefix(field, fieldDuration):
			if sid, ok := suffixID(field, fieldDuration); ok {
				p.Durations[sid], _ = strconv.Atoi(val)
			}
		case strings.HasPrefix(field, fieldTimeLeft):
			if sid, ok := suffixID(field, fieldTimeLeft); ok {
				p.TimeLeft[sid], _ = strconv.Atoi(val)
			}
		}
	}
	return p, nil
}

// BuildResult derives the result page from a progress record. Sessions are
// listed in order; sessions without a score record are skipped. A missing
// duration falls back to defaultMinutes.
func BuildResult(p *model.Progress, order []int, defaultMinutes int) *model.RunResult {
	res := &model.RunResult{
		Sessions:  []model.SessionResult{},
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
	}
	for _, sid := range order {
		scores, ok := p.Scores[sid]
		if !ok {
			continue
		}
		minutes, ok := p.Durations[sid]
		if !ok || minutes <= 0 {
			minutes = defaultMinutes
		}
		spent := minutes*60 - p.TimeLeft[sid]
		if spent < 0 {
			spent = 0
		}

		correct := 0
		for _, ok := range scores {
			if ok {
				correct++
			}
		}
		res.Sessions = append(res.Sessions, model.SessionResult{
			SessionID: sid,
			Correct:   correct,
			Total:     len(scores),
			TimeSpent: spent,
		})
		res.TotalCorrect += correct
		res.TotalQuestions += len(scores)
		res.TotalTime += spent
	}
	if p.StartTime != nil && p.EndTime != nil && p.EndTime.After(*p.StartTime) {
		res.CompletionTime = int(p.EndTime.Sub(*p.StartTime) / time.Second)
	}
	return res
}

func parseUnix(val string) *time.Time {
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil
	}
	t := time.Unix(n, 0).UTC()
	return &t
}

func suffixID(field, prefix string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(field, prefix))
	return n, err == nil
}
