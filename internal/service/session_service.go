package service

import (
	"context"
	"fmt"

	"github.com/stemsi/exlab-backend/internal/model"
	"github.com/stemsi/exlab-backend/internal/repository"
	"golang.org/x/sync/errgroup"
)

// SessionService handles session business logic.
type SessionService struct {
	sessionRepo *repository.SessionRepository
	popupRepo   *repository.PopupRepository
	setRepo     *repository.QuestionSetRepository
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	sessionRepo *repository.SessionRepository,
	popupRepo *repository.PopupRepository,
	setRepo *repository.QuestionSetRepository,
) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		popupRepo:   popupRepo,
		setRepo:     setRepo,
	}
}

// List retrieves all sessions.
func (s *SessionService) List(ctx context.Context) ([]model.Session, error) {
	return s.sessionRepo.List(ctx)
}

// Get retrieves a session together with its popups and question sets.
// The three reads run concurrently.
func (s *SessionService) Get(ctx context.Context, id int) (*model.Session, error) {
	var (
		session *model.Session
		popups  []model.Popup
		sets    []model.QuestionSet
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		session, err = s.sessionRepo.GetByID(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		popups, err = s.popupRepo.ListBySession(gctx, id)
		if err != nil {
			return fmt.Errorf("list popups: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		sets, err = s.setRepo.ListBySession(gctx, id)
		if err != nil {
			return fmt.Errorf("list question sets: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	session.Popups = popups
	session.QuestionSets = sets
	return session, nil
}

// Create creates a new session.
func (s *SessionService) Create(ctx context.Context, req *model.CreateSessionRequest) (*model.Session, error) {
	session := &model.Session{
		Name:              req.Name,
		Description:       req.Description,
		DurationMinutes:   req.DurationMinutes,
		EvaluationMinutes: req.EvaluationMinutes,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Update patches a session.
func (s *SessionService) Update(ctx context.Context, id int, req *model.UpdateSessionRequest) (*model.Session, error) {
	return s.sessionRepo.Update(ctx, id, req)
}

// Delete removes a session.
func (s *SessionService) Delete(ctx context.Context, id int) error {
	return s.sessionRepo.Delete(ctx, id)
}
