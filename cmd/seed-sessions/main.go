package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stemsi/exlab-backend/internal/config"
	"github.com/stemsi/exlab-backend/internal/database"
	"github.com/stemsi/exlab-backend/internal/logger"
	"github.com/stemsi/exlab-backend/internal/model"
	"github.com/stemsi/exlab-backend/internal/repository"
)

func main() {
	path := flag.String("file", "seed/sessions.yaml", "Path to the sessions fixture")
	dryRun := flag.Bool("dry-run", false, "Validate the fixture without writing")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	log := logger.Setup("exlab-seed", cfg.LogLevel, cfg.LogFormat)

	fixture, err := LoadFixture(*path)
	if err != nil {
		log.Fatal().Err(err).Str("file", *path).Msg("Invalid fixture")
	}
	log.Info().
		Str("file", *path).
		Int("sessions", len(fixture.Sessions)).
		Bool("evaluation", fixture.Evaluation != nil).
		Msg("Fixture loaded")
	if *dryRun {
		return
	}

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	if err := newSeeder(pool, log).seed(ctx, fixture); err != nil {
		log.Fatal().Err(err).Msg("Seeding failed")
	}
	log.Info().Msg("Seeding complete")
}

type seeder struct {
	sessions    *repository.SessionRepository
	popups      *repository.PopupRepository
	sets        *repository.QuestionSetRepository
	questions   *repository.QuestionRepository
	evaluations *repository.EvaluationRepository
	log         zerolog.Logger
}

func newSeeder(pool *pgxpool.Pool, log zerolog.Logger) *seeder {
	return &seeder{
		sessions:    repository.NewSessionRepository(pool),
		popups:      repository.NewPopupRepository(pool),
		sets:        repository.NewQuestionSetRepository(pool),
		questions:   repository.NewQuestionRepository(pool),
		evaluations: repository.NewEvaluationRepository(pool),
		log:         log,
	}
}

// seed inserts every session that does not exist yet. Existing sessions
// are left untouched so the command can be rerun safely.
func (s *seeder) seed(ctx context.Context, f *Fixture) error {
	for _, sf := range f.Sessions {
		_, err := s.sessions.GetByID(ctx, sf.ID)
		if err == nil {
			s.log.Info().Int("session_id", sf.ID).Msg("Session exists, skipping")
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("look up session %d: %w", sf.ID, err)
		}
		if err := s.seedSession(ctx, sf); err != nil {
			return fmt.Errorf("seed session %d: %w", sf.ID, err)
		}
	}
	if err := s.sessions.SyncIDSequence(ctx); err != nil {
		return fmt.Errorf("sync session ids: %w", err)
	}

	if f.Evaluation == nil {
		return nil
	}
	if _, err := s.evaluations.Latest(ctx); err == nil {
		s.log.Info().Msg("Evaluation form exists, skipping")
		return nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("look up evaluation: %w", err)
	}
	id, err := s.evaluations.Create(ctx, evaluationRequest(f.Evaluation))
	if err != nil {
		return fmt.Errorf("create evaluation: %w", err)
	}
	s.log.Info().Str("evaluation_id", id.String()).Msg("Evaluation form created")
	return nil
}

func (s *seeder) seedSession(ctx context.Context, sf SessionFixture) error {
	session := &model.Session{
		ID:                sf.ID,
		Name:              sf.Name,
		Description:       sf.Description,
		DurationMinutes:   sf.DurationMinutes,
		EvaluationMinutes: sf.EvaluationMinutes,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	for _, pf := range sf.Popups {
		p := &model.Popup{
			SessionID:   session.ID,
			Name:        pf.Name,
			Description: pf.Description,
			StartTime:   pf.StartTime,
			Duration:    pf.Duration,
		}
		if err := s.popups.Create(ctx, p); err != nil {
			return fmt.Errorf("create popup %q: %w", pf.Name, err)
		}
	}

	questionCount := 0
	for _, setf := range sf.QuestionSets {
		set := &model.QuestionSet{SetName: setf.SetName}
		if setf.Image != "" {
			image := setf.Image
			set.Image = &image
		}
		if err := s.sets.CreateForSession(ctx, session.ID, set); err != nil {
			return fmt.Errorf("create set %q: %w", setf.SetName, err)
		}
		for _, qf := range setf.Questions {
			q := &model.Question{Question: qf.Question, Choices: qf.Choices, CorrectAnswer: qf.CorrectAnswer}
			if err := s.questions.Create(ctx, q); err != nil {
				return fmt.Errorf("create question: %w", err)
			}
			if err := s.sets.LinkQuestion(ctx, set.ID, q.ID); err != nil {
				return fmt.Errorf("link question: %w", err)
			}
			questionCount++
		}
	}

	s.log.Info().
		Int("session_id", session.ID).
		Int("popups", len(sf.Popups)).
		Int("question_sets", len(sf.QuestionSets)).
		Int("questions", questionCount).
		Msg("Session seeded")
	return nil
}

func evaluationRequest(e *EvaluationFixture) *model.EvaluationRequest {
	req := &model.EvaluationRequest{Description: e.Description}
	for _, v := range e.Variables {
		in := model.EvaluationVariableInput{VariableName: v.Name}
		for i, a := range v.Answers {
			in.Answers = append(in.Answers, model.SuggestedAnswerInput{AnswerText: a, OrderNumber: i + 1})
		}
		req.Variables = append(req.Variables, in)
	}
	return req
}
