package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exlab-backend/internal/config"
	"github.com/stemsi/exlab-backend/internal/engine"
	"github.com/stemsi/exlab-backend/internal/model"
	"github.com/stemsi/exlab-backend/internal/store"
)

// ErrNoResult is returned when the run has no finished session.
var ErrNoResult = errors.New("no results yet")

// RunIssuer issues participant tokens and tracks the active run per user.
type RunIssuer interface {
	GenerateParticipantToken(ctx context.Context, userID, runID string) (string, error)
	ActiveRun(ctx context.Context, userID string) (string, error)
	EndRun(ctx context.Context, userID string) error
}

// OrderKeeper stores a run's session order.
type OrderKeeper interface {
	Save(ctx context.Context, runID string, order engine.Order) error
	Load(ctx context.Context, runID string) (engine.Order, error)
	Clear(ctx context.Context, runID string) error
}

// ProgressKeeper owns a run's progress record.
type ProgressKeeper interface {
	Reset(ctx context.Context, runID string, startedAt time.Time) error
	Clear(ctx context.Context, runID string) error
	Get(ctx context.Context, runID string) (*model.Progress, error)
	SetEndTime(ctx context.Context, runID string, at time.Time) error
}

// RunCleaner drops the per-session state of a run.
type RunCleaner interface {
	ClearRun(ctx context.Context, runID string, sessionIDs []int) error
}

// StartedRun is returned when a participant starts a new test.
type StartedRun struct {
	Token        string       `json:"token"`
	RunID        string       `json:"run_id"`
	UserID       string       `json:"user_id"`
	Order        engine.Order `json:"order"`
	FirstSession int          `json:"first_session"`
}

// ParticipantService manages participant runs: starting a test, the
// session order, the play view of a session, the result and the reset.
type ParticipantService struct {
	cfg      *config.Config
	clock    clockwork.Clock
	registry *RuntimeRegistry
	issuer   RunIssuer
	orders   OrderKeeper
	progress ProgressKeeper
	cleaner  RunCleaner
	content  SessionContent
	log      zerolog.Logger

	intn func(n int) int
}

// NewParticipantService creates a new ParticipantService.
func NewParticipantService(
	cfg *config.Config,
	clock clockwork.Clock,
	registry *RuntimeRegistry,
	issuer RunIssuer,
	orders OrderKeeper,
	progress ProgressKeeper,
	cleaner RunCleaner,
	content SessionContent,
	log zerolog.Logger,
) *ParticipantService {
	return &ParticipantService{
		cfg:      cfg,
		clock:    clock,
		registry: registry,
		issuer:   issuer,
		orders:   orders,
		progress: progress,
		cleaner:  cleaner,
		content:  content,
		log:      log.With().Str("component", "participant_service").Logger(),
		intn:     rand.IntN,
	}
}

// StartRun begins a new run for userID, or for a generated user when
// userID is empty. The user's previous run stops being valid.
func (s *ParticipantService) StartRun(ctx context.Context, userID string) (*StartedRun, error) {
	if userID == "" {
		userID = uuid.NewString()
	}
	runID := uuid.NewString()

	previous, err := s.issuer.ActiveRun(ctx, userID)
	if err != nil {
		return nil, err
	}
	if previous != "" {
		s.registry.StopRun(previous)
	}

	order := engine.GenerateOrder(s.cfg.SessionIDs, s.intn)
	first, ok := order.First()
	if !ok {
		return nil, errors.New("no sessions configured")
	}
	if err := s.orders.Save(ctx, runID, order); err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}
	if err := s.progress.Reset(ctx, runID, s.clock.Now()); err != nil {
		return nil, fmt.Errorf("reset progress: %w", err)
	}
	token, err := s.issuer.GenerateParticipantToken(ctx, userID, runID)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("user_id", userID).
		Str("run_id", runID).
		Ints("order", order).
		Msg("Run started")

	return &StartedRun{
		Token:        token,
		RunID:        runID,
		UserID:       userID,
		Order:        order,
		FirstSession: first,
	}, nil
}

// Order returns the run's session order.
func (s *ParticipantService) Order(ctx context.Context, p Participant) (engine.Order, error) {
	order, err := s.orders.Load(ctx, p.key())
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if len(order) == 0 {
		return nil, ErrRunNotStarted
	}
	return order, nil
}

// SessionForPlay returns a session with its popups and question sets,
// stripped of the answer key.
func (s *ParticipantService) SessionForPlay(ctx context.Context, sessionID int) (*model.Session, error) {
	if !s.cfg.ValidSession(sessionID) {
		return nil, ErrInvalidSession
	}
	session, err := s.content.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	out := *session
	out.QuestionSets = make([]model.QuestionSet, len(session.QuestionSets))
	for i, set := range session.QuestionSets {
		qs := make([]model.Question, len(set.Questions))
		for j, q := range set.Questions {
			qs[j] = q.Public()
		}
		set.Questions = qs
		out.QuestionSets[i] = set
	}
	if out.Popups == nil {
		out.Popups = []model.Popup{}
	}
	return &out, nil
}

// Result builds the result page. Once every session of the order has a
// score record the run's end time is stamped if it was not yet.
func (s *ParticipantService) Result(ctx context.Context, p Participant) (*model.RunResult, error) {
	runID := p.key()
	progress, err := s.progress.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	order, err := s.orders.Load(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}

	if progress.EndTime == nil && len(order) > 0 && allScored(progress, order) {
		now := s.clock.Now()
		if err := s.progress.SetEndTime(ctx, runID, now); err != nil {
			s.log.Warn().Err(err).Str("run_id", runID).Msg("Failed to stamp run end time")
		} else {
			end := time.Unix(now.Unix(), 0).UTC()
			progress.EndTime = &end
		}
	}

	res := store.BuildResult(progress, order, s.cfg.DefaultSessionMinutes)
	if len(res.Sessions) == 0 {
		return nil, ErrNoResult
	}
	return res, nil
}

// Reset ends the run and drops its state ("Start new test").
func (s *ParticipantService) Reset(ctx context.Context, p Participant) error {
	runID := p.key()
	s.registry.StopRun(runID)

	if err := s.progress.Clear(ctx, runID); err != nil {
		return fmt.Errorf("clear progress: %w", err)
	}
	if err := s.orders.Clear(ctx, runID); err != nil {
		return fmt.Errorf("clear order: %w", err)
	}
	if err := s.cleaner.ClearRun(ctx, runID, s.cfg.SessionIDs); err != nil {
		return fmt.Errorf("clear run state: %w", err)
	}
	if err := s.issuer.EndRun(ctx, p.UserID); err != nil {
		return fmt.Errorf("end run: %w", err)
	}

	s.log.Info().Str("user_id", p.UserID).Str("run_id", runID).Msg("Run reset")
	return nil
}

func allScored(p *model.Progress, order engine.Order) bool {
	for _, sid := range order {
		if _, ok := p.Scores[sid]; !ok {
			return false
		}
	}
	return true
}
