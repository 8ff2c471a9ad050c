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

// Break flow errors.
var (
	ErrSessionNotFinished = errors.New("session has not been submitted")
	ErrNoEvaluation       = errors.New("no evaluation form")
)

// BreakState is the resumable state of breaks.
type BreakState interface {
	Submitted(ctx context.Context, runID string, sessionID int) (bool, error)
	BreakStart(ctx context.Context, runID string, sessionID int, now time.Time) (time.Time, error)
	Selections(ctx context.Context, runID string, sessionID int) (map[string]string, error)
	SaveSelection(ctx context.Context, runID string, sessionID int, variableID, answerID string) error
	AcquireEvaluation(ctx context.Context, runID string, sessionID int) (bool, error)
	ReleaseEvaluation(ctx context.Context, runID string, sessionID int) error
	EvaluationSaved(ctx context.Context, runID string, sessionID int) (bool, error)
}

// RunProgress reads the run record and stamps its end.
type RunProgress interface {
	Get(ctx context.Context, runID string) (*model.Progress, error)
	SetEndTime(ctx context.Context, runID string, at time.Time) error
}

// OrderLoader loads a run's session order.
type OrderLoader interface {
	Load(ctx context.Context, runID string) (engine.Order, error)
}

// EvaluationSource returns the form shown during breaks.
type EvaluationSource interface {
	Latest(ctx context.Context) (*model.EvaluationQuestion, error)
}

// EvaluationWriter persists evaluation answers.
type EvaluationWriter interface {
	CreateEvaluationAnswer(ctx context.Context, ea *model.EvaluationAnswer) error
}

// SessionFinder loads a bare session row.
type SessionFinder interface {
	GetByID(ctx context.Context, id int) (*model.Session, error)
}

// BreakView is the break page payload.
type BreakView struct {
	Correct           int                       `json:"correct"`
	Total             int                       `json:"total"`
	Scores            []bool                    `json:"scores"`
	EvaluationMinutes int                       `json:"evaluation_minutes"`
	Remaining         int                       `json:"remaining"`
	Evaluation        *model.EvaluationQuestion `json:"evaluation"`
	Selections        map[string]string         `json:"selections"`
	AlreadySaved      bool                      `json:"already_saved"`
	Next              model.NavTarget           `json:"next"`
}

// EvaluationResult is returned after the evaluation was saved.
type EvaluationResult struct {
	AlreadySaved   bool                  `json:"already_saved"`
	CompletionType engine.CompletionType `json:"completion_type,omitempty"`
	Next           model.NavTarget       `json:"next"`
}

type breakAttempt struct {
	p    Participant
	id   int
	eval *model.EvaluationQuestion
	rt   *engine.BreakRuntime
	drv  *engine.Driver
}

func (b *breakAttempt) driver() *engine.Driver { return b.drv }

// BreakService runs the evaluation countdown between sessions. The
// evaluation is saved once, as active when the participant presses Done
// or as timeout with the autosaved selections when the countdown ends.
type BreakService struct {
	cfg         *config.Config
	clock       clockwork.Clock
	registry    *RuntimeRegistry
	state       BreakState
	progress    RunProgress
	orders      OrderLoader
	evaluations EvaluationSource
	sessions    SessionFinder
	writer      EvaluationWriter
	log         zerolog.Logger
}

// NewBreakService creates a new BreakService.
func NewBreakService(
	cfg *config.Config,
	clock clockwork.Clock,
	registry *RuntimeRegistry,
	state BreakState,
	progress RunProgress,
	orders OrderLoader,
	evaluations EvaluationSource,
	sessions SessionFinder,
	writer EvaluationWriter,
	log zerolog.Logger,
) *BreakService {
	return &BreakService{
		cfg:         cfg,
		clock:       clock,
		registry:    registry,
		state:       state,
		progress:    progress,
		orders:      orders,
		evaluations: evaluations,
		sessions:    sessions,
		writer:      writer,
		log:         log.With().Str("component", "break_service").Logger(),
	}
}

func breakKey(p Participant, sessionID int) runtimeKey {
	return runtimeKey{runID: p.key(), sessionID: sessionID, kind: kindBreak}
}

// Get returns the break page. The first call after a submitted session
// starts the evaluation countdown.
func (s *BreakService) Get(ctx context.Context, p Participant, sessionID int) (*BreakView, error) {
	if !s.cfg.ValidSession(sessionID) {
		return nil, ErrInvalidSession
	}
	runID := p.key()
	submitted, err := s.state.Submitted(ctx, runID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("check submitted: %w", err)
	}
	if !submitted {
		return nil, ErrSessionNotFinished
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %d: %w", sessionID, err)
	}
	progress, err := s.progress.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	next, err := s.next(ctx, runID, sessionID)
	if err != nil {
		return nil, err
	}

	scores := progress.Scores[sessionID]
	if scores == nil {
		scores = []bool{}
	}
	view := &BreakView{
		Correct:           engine.CountCorrect(scores),
		Total:             len(scores),
		Scores:            scores,
		EvaluationMinutes: session.EvaluationMinutes,
		Selections:        map[string]string{},
		Next:              next,
	}

	b, err := s.mount(ctx, p, sessionID, session.EvaluationMinutes)
	if err != nil {
		return nil, err
	}
	if b == nil {
		saved, err := s.state.EvaluationSaved(ctx, runID, sessionID)
		if err != nil {
			return nil, err
		}
		view.AlreadySaved = saved
		return view, nil
	}

	snap := b.rt.Snapshot()
	view.Evaluation = b.eval
	view.Remaining = snap.Remaining
	view.Selections = snap.Selections
	view.AlreadySaved = snap.Saved
	return view, nil
}

// mount returns the live break, creating it when needed. It returns nil
// when there is nothing to run: no form, no evaluation time, or the
// evaluation was already saved.
func (s *BreakService) mount(ctx context.Context, p Participant, sessionID, minutes int) (*breakAttempt, error) {
	key := breakKey(p, sessionID)
	if b, ok := s.registry.get(key).(*breakAttempt); ok {
		return b, nil
	}
	if minutes <= 0 {
		return nil, nil
	}

	runID := p.key()
	saved, err := s.state.EvaluationSaved(ctx, runID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("check evaluation: %w", err)
	}
	if saved {
		return nil, nil
	}

	eval, err := s.evaluations.Latest(ctx)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load evaluation: %w", err)
	}

	startedAt, err := s.state.BreakStart(ctx, runID, sessionID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	selections, err := s.state.Selections(ctx, runID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load selections: %w", err)
	}

	rt := engine.NewBreakRuntime(s.clock, time.Duration(minutes)*time.Minute, startedAt, eval.Options(), selections, false)
	b := &breakAttempt{p: p, id: sessionID, eval: eval, rt: rt}
	b.drv = engine.NewDriver(s.clock, rt, func() {
		s.autoSave(b)
	})

	actual, stored := s.registry.put(key, b)
	if !stored {
		if actual == nil {
			return nil, errors.New("runtime registry closed")
		}
		return actual.(*breakAttempt), nil
	}
	b.drv.Start()

	s.log.Info().
		Str("run_id", runID).
		Int("session_id", sessionID).
		Time("started_at", startedAt).
		Msg("Break mounted")
	return b, nil
}

// Select autosaves one evaluation selection.
func (s *BreakService) Select(ctx context.Context, p Participant, sessionID int, req *model.SelectionRequest) error {
	if !s.cfg.ValidSession(sessionID) {
		return ErrInvalidSession
	}
	b, ok := s.registry.get(breakKey(p, sessionID)).(*breakAttempt)
	if !ok {
		saved, err := s.state.EvaluationSaved(ctx, p.key(), sessionID)
		if err != nil {
			return err
		}
		if saved {
			return engine.ErrFinished
		}
		return ErrNoEvaluation
	}
	if err := b.rt.Select(req.VariableID, req.AnswerID); err != nil {
		return err
	}
	return s.state.SaveSelection(ctx, p.key(), sessionID, req.VariableID, req.AnswerID)
}

// Submit saves the evaluation as active. answers may carry the final form
// state and are merged over the autosaved selections.
func (s *BreakService) Submit(ctx context.Context, p Participant, sessionID int, answers map[string]string) (*EvaluationResult, error) {
	if !s.cfg.ValidSession(sessionID) {
		return nil, ErrInvalidSession
	}
	b, ok := s.registry.get(breakKey(p, sessionID)).(*breakAttempt)
	if !ok {
		saved, err := s.state.EvaluationSaved(ctx, p.key(), sessionID)
		if err != nil {
			return nil, err
		}
		if !saved {
			return nil, ErrNoEvaluation
		}
		next, err := s.next(ctx, p.key(), sessionID)
		if err != nil {
			return nil, err
		}
		return &EvaluationResult{AlreadySaved: true, Next: next}, nil
	}
	return s.save(ctx, b, answers, engine.CompletionActive)
}

func (s *BreakService) autoSave(b *breakAttempt) {
	ctx, cancel := context.WithTimeout(context.Background(), autoSubmitTimeout)
	defer cancel()

	if _, err := s.save(ctx, b, nil, engine.CompletionTimeout); err != nil && !errors.Is(err, engine.ErrSubmitInProgress) {
		s.log.Error().Err(err).Str("run_id", b.p.key()).Int("session_id", b.id).Msg("Timeout save of evaluation failed")
	}
}

func (s *BreakService) save(ctx context.Context, b *breakAttempt, extra map[string]string, completion engine.CompletionType) (*EvaluationResult, error) {
	runID := b.p.key()
	log := s.log.With().Str("run_id", runID).Int("session_id", b.id).Str("completion", string(completion)).Logger()

	next, err := s.next(ctx, runID, b.id)
	if err != nil {
		return nil, err
	}

	selections, err := b.rt.BeginSave(extra)
	if errors.Is(err, engine.ErrFinished) {
		return &EvaluationResult{AlreadySaved: true, Next: next}, nil
	}
	if err != nil {
		return nil, err
	}

	timeout := completion == engine.CompletionTimeout
	acquired, err := s.state.AcquireEvaluation(ctx, runID, b.id)
	if err != nil && !timeout {
		s.abort(b, completion)
		return nil, fmt.Errorf("acquire evaluation lock: %w", err)
	}
	if err == nil && !acquired {
		s.finish(b)
		return &EvaluationResult{AlreadySaved: true, Next: next}, nil
	}

	ea := &model.EvaluationAnswer{
		RunID:          b.p.RunID,
		UserID:         b.p.UserID,
		SessionID:      b.id,
		CompletionType: string(completion),
		Details:        evaluationDetails(selections),
	}
	result := &EvaluationResult{CompletionType: completion, Next: next}

	err = s.writer.CreateEvaluationAnswer(ctx, ea)
	switch {
	case errors.Is(err, repository.ErrAlreadySaved):
		result.AlreadySaved = true
		result.CompletionType = ""
	case err != nil && !timeout:
		if rerr := s.state.ReleaseEvaluation(ctx, runID, b.id); rerr != nil {
			log.Warn().Err(rerr).Msg("Failed to release evaluation lock")
		}
		s.abort(b, completion)
		return nil, fmt.Errorf("save evaluation answer: %w", err)
	case err != nil:
		// The lock stays held so the expired break is not mounted again.
		log.Error().Err(err).Msg("Saving timed-out evaluation failed")
		b.drv.Publish(engine.Event{Kind: engine.EventError, Message: "failed to save evaluation"})
	}

	s.finish(b)
	if next.Kind == model.NavResult {
		if err := s.progress.SetEndTime(ctx, runID, s.clock.Now()); err != nil {
			log.Error().Err(err).Msg("Failed to stamp run end time")
		}
	}

	log.Info().Int("selections", len(ea.Details)).Msg("Evaluation saved")
	return result, nil
}

// abort reopens a failed save. A manual save that failed after the
// countdown fired hands over to the timeout save the driver skipped.
func (s *BreakService) abort(b *breakAttempt, completion engine.CompletionType) {
	b.rt.AbortSave()
	if completion == engine.CompletionActive && b.rt.Snapshot().Remaining == 0 {
		go s.autoSave(b)
	}
}

func (s *BreakService) finish(b *breakAttempt) {
	b.rt.CompleteSave()
	b.drv.Reschedule()
	s.registry.remove(breakKey(b.p, b.id), b)
}

// next tells the client where to go after the break of sessionID.
func (s *BreakService) next(ctx context.Context, runID string, sessionID int) (model.NavTarget, error) {
	order, err := s.orders.Load(ctx, runID)
	if err != nil {
		return model.NavTarget{}, fmt.Errorf("load order: %w", err)
	}
	if id, ok := order.Next(sessionID); ok {
		return model.NavTarget{Kind: model.NavSession, SessionID: id}, nil
	}
	return model.NavTarget{Kind: model.NavResult}, nil
}

// evaluationDetails turns selections into detail rows, dropping ids that
// do not parse.
func evaluationDetails(selections map[string]string) []model.EvaluationAnswerDetail {
	out := make([]model.EvaluationAnswerDetail, 0, len(selections))
	for v, a := range selections {
		vid, err := uuid.Parse(v)
		if err != nil {
			continue
		}
		aid, err := uuid.Parse(a)
		if err != nil {
			continue
		}
		out = append(out, model.EvaluationAnswerDetail{VariableID: vid, AnswerID: aid})
	}
	return out
}
