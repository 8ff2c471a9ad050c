package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exlab-backend/internal/config"
	"github.com/stemsi/exlab-backend/internal/engine"
	"github.com/stemsi/exlab-backend/internal/model"
	"github.com/stemsi/exlab-backend/internal/repository"
)

// Participant flow errors.
var (
	ErrInvalidSession    = errors.New("invalid session")
	ErrSessionNotStarted = errors.New("session has not been started")
	ErrSessionFinished   = errors.New("session already finished")
)

const autoSubmitTimeout = 15 * time.Second

// Participant identifies the run a request acts for.
type Participant struct {
	UserID string
	RunID  uuid.UUID
}

func (p Participant) key() string { return p.RunID.String() }

// AttemptState is the resumable state of session attempts.
type AttemptState interface {
	SessionStart(ctx context.Context, runID string, sessionID int, now time.Time) (time.Time, error)
	Answers(ctx context.Context, runID string, sessionID int) (map[string]string, error)
	SaveAnswer(ctx context.Context, runID string, sessionID int, questionID, answer string) error
	PopupState(ctx context.Context, runID string, sessionID int) (shown, dismissed []int, err error)
	MarkShown(ctx context.Context, runID string, sessionID int, popupIDs ...int) error
	MarkDismissed(ctx context.Context, runID string, sessionID, popupID int) error
	AcquireSubmit(ctx context.Context, runID string, sessionID int) (bool, error)
	ReleaseSubmit(ctx context.Context, runID string, sessionID int) error
	Submitted(ctx context.Context, runID string, sessionID int) (bool, error)
}

// ProgressRecorder receives each finished session's score record.
type ProgressRecorder interface {
	RecordSession(ctx context.Context, runID string, sessionID int, scores []bool, timeLeft int) error
	SetDuration(ctx context.Context, runID string, sessionID, minutes int) error
}

// AttemptWriter persists attempt outcomes.
type AttemptWriter interface {
	CreateTestAnswer(ctx context.Context, ta *model.TestAnswer) error
	GetTestAnswer(ctx context.Context, runID uuid.UUID, sessionID int) (*model.TestAnswer, error)
	InsertReaction(ctx context.Context, rec *model.PopupReactionRecord) error
}

// SessionContent loads a session with its popups and question sets.
type SessionContent interface {
	Get(ctx context.Context, id int) (*model.Session, error)
}

// ReactionEnqueuer hands reactions to the background writer.
type ReactionEnqueuer interface {
	Enqueue(ctx context.Context, recs ...model.PopupReactionRecord) error
}

// SubmitResult is returned by a session submission.
type SubmitResult struct {
	AlreadySaved bool            `json:"already_saved"`
	Scores       []bool          `json:"scores"`
	Correct      int             `json:"correct"`
	Total        int             `json:"total"`
	TotalTime    int             `json:"total_time"`
	Next         model.NavTarget `json:"next"`
}

type sessionAttempt struct {
	p       Participant
	id      int
	minutes int
	rt      *engine.SessionRuntime
	drv     *engine.Driver
}

func (a *sessionAttempt) driver() *engine.Driver { return a.drv }

// popupRecorder persists newly shown popups from the driver goroutine, so
// a resumed attempt knows which popups were already seen.
type popupRecorder struct {
	*engine.SessionRuntime
	onShow func(ids []int)
}

func (r popupRecorder) Step() ([]engine.Event, bool, bool) {
	events, expired, finished := r.SessionRuntime.Step()
	var shown []int
	for _, ev := range events {
		if ev.Kind == engine.EventPopupShow {
			shown = append(shown, ev.PopupID)
		}
	}
	if len(shown) > 0 {
		r.onShow(shown)
	}
	return events, expired, finished
}

// AttemptService runs timed session attempts: it mounts runtimes from
// stored state, records answers and popup reactions, and grades and saves
// each attempt exactly once, on a manual submit or when time runs out.
type AttemptService struct {
	cfg      *config.Config
	clock    clockwork.Clock
	registry *RuntimeRegistry
	state    AttemptState
	progress ProgressRecorder
	writer   AttemptWriter
	content  SessionContent
	queue    ReactionEnqueuer
	log      zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	cfg *config.Config,
	clock clockwork.Clock,
	registry *RuntimeRegistry,
	state AttemptState,
	progress ProgressRecorder,
	writer AttemptWriter,
	content SessionContent,
	queue ReactionEnqueuer,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		cfg:      cfg,
		clock:    clock,
		registry: registry,
		state:    state,
		progress: progress,
		writer:   writer,
		content:  content,
		queue:    queue,
		log:      log.With().Str("component", "attempt_service").Logger(),
	}
}

func sessionKey(p Participant, sessionID int) runtimeKey {
	return runtimeKey{runID: p.key(), sessionID: sessionID, kind: kindSession}
}

func (s *AttemptService) lookup(p Participant, sessionID int) (*sessionAttempt, error) {
	if !s.cfg.ValidSession(sessionID) {
		return nil, ErrInvalidSession
	}
	if e, ok := s.registry.get(sessionKey(p, sessionID)).(*sessionAttempt); ok {
		return e, nil
	}
	return nil, ErrSessionNotStarted
}

// Start mounts the attempt, or returns the running one. The countdown
// starts on the first call and survives restarts.
func (s *AttemptService) Start(ctx context.Context, p Participant, sessionID int) (engine.SessionSnapshot, error) {
	e, err := s.mount(ctx, p, sessionID)
	if err != nil {
		return engine.SessionSnapshot{}, err
	}
	if e == nil {
		return engine.SessionSnapshot{
			VisiblePopups: []int{},
			Answers:       map[string]string{},
			Finished:      true,
		}, nil
	}
	return e.rt.Snapshot(), nil
}

// mount returns the live attempt, creating it when needed. A nil attempt
// with a nil error means the session was already submitted.
func (s *AttemptService) mount(ctx context.Context, p Participant, sessionID int) (*sessionAttempt, error) {
	if e, err := s.lookup(p, sessionID); err == nil {
		return e, nil
	} else if !errors.Is(err, ErrSessionNotStarted) {
		return nil, err
	}

	runID := p.key()
	submitted, err := s.state.Submitted(ctx, runID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("check submitted: %w", err)
	}
	if submitted {
		return nil, nil
	}

	session, err := s.content.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %d: %w", sessionID, err)
	}
	startedAt, err := s.state.SessionStart(ctx, runID, sessionID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	answers, err := s.state.Answers(ctx, runID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	shown, dismissed, err := s.state.PopupState(ctx, runID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load popup state: %w", err)
	}

	rt := engine.NewSessionRuntime(s.clock, engine.SessionConfig{
		Duration:  time.Duration(session.DurationMinutes) * time.Minute,
		StartedAt: startedAt,
		Popups:    popupWindows(session.Popups),
		Questions: gradedQuestions(session.QuestionSets),
		Answers:   answers,
		Shown:     shown,
		Dismissed: dismissed,
	})
	e := &sessionAttempt{p: p, id: sessionID, minutes: session.DurationMinutes, rt: rt}
	e.drv = engine.NewDriver(s.clock, popupRecorder{SessionRuntime: rt, onShow: func(ids []int) {
		s.markShown(e, ids)
	}}, func() {
		s.autoSubmit(e)
	})

	actual, stored := s.registry.put(sessionKey(p, sessionID), e)
	if !stored {
		if actual == nil {
			return nil, errors.New("runtime registry closed")
		}
		return actual.(*sessionAttempt), nil
	}

	mountShown, _ := rt.PopupState()
	s.markShown(e, mountShown)
	e.drv.Start()

	s.log.Info().
		Str("run_id", runID).
		Int("session_id", sessionID).
		Time("started_at", startedAt).
		Msg("Session attempt mounted")
	return e, nil
}

func (s *AttemptService) markShown(e *sessionAttempt, ids []int) {
	if len(ids) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.state.MarkShown(ctx, e.p.key(), e.id, ids...); err != nil {
		s.log.Warn().Err(err).Str("run_id", e.p.key()).Ints("popups", ids).Msg("Failed to persist shown popups")
	}
}

// Subscribe mounts the attempt and attaches to its event stream. The
// returned done channel closes when the driver exits.
func (s *AttemptService) Subscribe(ctx context.Context, p Participant, sessionID int) (engine.SessionSnapshot, <-chan engine.Event, func(), <-chan struct{}, error) {
	e, err := s.mount(ctx, p, sessionID)
	if err != nil {
		return engine.SessionSnapshot{}, nil, nil, nil, err
	}
	if e == nil {
		return engine.SessionSnapshot{}, nil, nil, nil, ErrSessionFinished
	}
	events, cancel := e.drv.Subscribe()
	return e.rt.Snapshot(), events, cancel, e.drv.Done(), nil
}

// Answer records the participant's choice for one question.
func (s *AttemptService) Answer(ctx context.Context, p Participant, sessionID int, req *model.AnswerRequest) error {
	e, err := s.lookup(p, sessionID)
	if err != nil {
		return err
	}
	if err := e.rt.SetAnswer(req.QuestionID, req.Answer); err != nil {
		return err
	}
	return s.state.SaveAnswer(ctx, p.key(), sessionID, req.QuestionID, req.Answer)
}

// React stores a reaction to a visible popup and then dismisses it. Only
// one reaction per popup gets through. When the write fails the popup
// stays visible so the participant can retry.
func (s *AttemptService) React(ctx context.Context, p Participant, sessionID, popupID int, reaction model.PopupReaction) error {
	e, err := s.lookup(p, sessionID)
	if err != nil {
		return err
	}
	if err := e.rt.ClaimPopup(popupID); err != nil {
		return err
	}

	rec := &model.PopupReactionRecord{
		RunID:     p.RunID,
		UserID:    p.UserID,
		SessionID: sessionID,
		PopupID:   popupID,
		Reaction:  reaction,
	}
	if err := s.writer.InsertReaction(ctx, rec); err != nil {
		e.rt.ReleasePopup(popupID)
		return fmt.Errorf("save reaction: %w", err)
	}

	e.rt.Dismiss(popupID)
	if err := s.state.MarkDismissed(ctx, p.key(), sessionID, popupID); err != nil {
		s.log.Warn().Err(err).Str("run_id", p.key()).Int("popup_id", popupID).Msg("Failed to persist dismissal")
	}
	e.drv.Publish(engine.Event{Kind: engine.EventPopupHide, PopupID: popupID, Remaining: e.rt.Snapshot().Remaining})
	e.drv.Reschedule()
	return nil
}

// Submit grades and saves the attempt. A repeated submit reports the
// stored result with AlreadySaved set.
func (s *AttemptService) Submit(ctx context.Context, p Participant, sessionID int) (*SubmitResult, error) {
	e, err := s.lookup(p, sessionID)
	if errors.Is(err, ErrSessionNotStarted) {
		submitted, serr := s.state.Submitted(ctx, p.key(), sessionID)
		if serr != nil {
			return nil, serr
		}
		if submitted {
			return s.storedResult(ctx, p, sessionID)
		}
	}
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, e, false)
}

func (s *AttemptService) autoSubmit(e *sessionAttempt) {
	ctx, cancel := context.WithTimeout(context.Background(), autoSubmitTimeout)
	defer cancel()

	if _, err := s.submit(ctx, e, true); err != nil && !errors.Is(err, engine.ErrSubmitInProgress) {
		s.log.Error().Err(err).Str("run_id", e.p.key()).Int("session_id", e.id).Msg("Auto-submit failed")
	}
}

func (s *AttemptService) submit(ctx context.Context, e *sessionAttempt, auto bool) (*SubmitResult, error) {
	runID := e.p.key()
	log := s.log.With().Str("run_id", runID).Int("session_id", e.id).Bool("auto", auto).Logger()

	sub, err := e.rt.BeginSubmit()
	if errors.Is(err, engine.ErrFinished) {
		return s.storedResult(ctx, e.p, e.id)
	}
	if err != nil {
		return nil, err
	}

	acquired, err := s.state.AcquireSubmit(ctx, runID, e.id)
	if err != nil && !auto {
		s.abort(e)
		return nil, fmt.Errorf("acquire submit lock: %w", err)
	}
	if err == nil && !acquired {
		// Another instance already saved this attempt.
		s.finish(e)
		return s.storedResult(ctx, e.p, e.id)
	}

	ta := &model.TestAnswer{
		RunID:     e.p.RunID,
		UserID:    e.p.UserID,
		SessionID: e.id,
		TotalTime: sub.TotalTime,
		Details:   make([]model.TestAnswerDetail, len(sub.Results)),
	}
	for i, r := range sub.Results {
		ta.Details[i] = model.TestAnswerDetail{QuestionID: r.QuestionID, Answer: r.Answer, IsCorrect: r.Correct}
	}

	result := &SubmitResult{
		Scores:    sub.Scores,
		Correct:   sub.Correct,
		Total:     sub.Total,
		TotalTime: sub.TotalTime,
		Next:      model.NavTarget{Kind: model.NavBreak, SessionID: e.id},
	}

	err = s.writer.CreateTestAnswer(ctx, ta)
	switch {
	case errors.Is(err, repository.ErrAlreadySaved):
		result.AlreadySaved = true
	case err != nil && !auto:
		if rerr := s.state.ReleaseSubmit(ctx, runID, e.id); rerr != nil {
			log.Warn().Err(rerr).Msg("Failed to release submit lock")
		}
		s.abort(e)
		return nil, fmt.Errorf("save test answer: %w", err)
	case err != nil:
		log.Error().Err(err).Msg("Saving auto-submitted answers failed")
		e.drv.Publish(engine.Event{Kind: engine.EventError, Message: "failed to save answers"})
	}

	timeLeft := e.minutes*60 - sub.TotalTime
	if timeLeft < 0 {
		timeLeft = 0
	}
	if err := s.progress.RecordSession(ctx, runID, e.id, sub.Scores, timeLeft); err != nil {
		log.Error().Err(err).Msg("Failed to record progress")
	}
	if err := s.progress.SetDuration(ctx, runID, e.id, e.minutes); err != nil {
		log.Error().Err(err).Msg("Failed to record session duration")
	}

	if len(sub.Unanswered) > 0 {
		recs := make([]model.PopupReactionRecord, len(sub.Unanswered))
		now := s.clock.Now()
		for i, id := range sub.Unanswered {
			recs[i] = model.PopupReactionRecord{
				RunID:     e.p.RunID,
				UserID:    e.p.UserID,
				SessionID: e.id,
				PopupID:   id,
				Reaction:  model.ReactionNoAnswer,
				CreatedAt: now,
			}
		}
		if err := s.queue.Enqueue(ctx, recs...); err != nil {
			log.Error().Err(err).Ints("popups", sub.Unanswered).Msg("Failed to queue unanswered popups")
		}
	}

	s.finish(e)
	e.drv.Publish(engine.Event{Kind: engine.EventSubmitted, Data: result})

	log.Info().Int("correct", result.Correct).Int("total", result.Total).Msg("Session submitted")
	return result, nil
}

// abort reopens a failed manual submit. When the countdown fired while the
// submit held the latch, the driver's auto-submit was skipped, so it is run
// here instead.
func (s *AttemptService) abort(e *sessionAttempt) {
	e.rt.AbortSubmit()
	if e.rt.Snapshot().Remaining == 0 {
		go s.autoSubmit(e)
	}
}

// finish marks the attempt complete and lets its driver exit.
func (s *AttemptService) finish(e *sessionAttempt) {
	e.rt.CompleteSubmit()
	e.drv.Reschedule()
	s.registry.remove(sessionKey(e.p, e.id), e)
}

func (s *AttemptService) storedResult(ctx context.Context, p Participant, sessionID int) (*SubmitResult, error) {
	ta, err := s.writer.GetTestAnswer(ctx, p.RunID, sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		// The lock is held but the row is not visible yet.
		return nil, engine.ErrSubmitInProgress
	}
	if err != nil {
		return nil, err
	}
	res := &SubmitResult{
		AlreadySaved: true,
		Scores:       make([]bool, len(ta.Details)),
		Total:        len(ta.Details),
		TotalTime:    ta.TotalTime,
		Next:         model.NavTarget{Kind: model.NavBreak, SessionID: sessionID},
	}
	for i, d := range ta.Details {
		res.Scores[i] = d.IsCorrect
		if d.IsCorrect {
			res.Correct++
		}
	}
	return res, nil
}

func popupWindows(popups []model.Popup) []engine.PopupWindow {
	out := make([]engine.PopupWindow, 0, len(popups))
	for _, p := range popups {
		out = append(out, engine.PopupWindow{
			ID:       p.ID,
			Start:    time.Duration(p.StartTime) * time.Second,
			Duration: time.Duration(p.Duration) * time.Second,
		})
	}
	return out
}

// gradedQuestions flattens the session's sets in order. A question linked
// into more than one set is graded once, at its first position.
func gradedQuestions(sets []model.QuestionSet) []engine.GradedQuestion {
	var out []engine.GradedQuestion
	seen := make(map[uuid.UUID]bool)
	for _, set := range sets {
		for _, q := range set.Questions {
			if seen[q.ID] {
				continue
			}
			seen[q.ID] = true
			out = append(out, engine.GradedQuestion{
				ID:            q.ID.String(),
				Choices:       q.Choices,
				CorrectAnswer: q.CorrectAnswer,
			})
		}
	}
	return out
}
