package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/exlab-backend/internal/model"
)

// EvaluationStore persists evaluation forms.
type EvaluationStore interface {
	List(ctx context.Context) ([]model.EvaluationQuestion, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.EvaluationQuestion, error)
	Latest(ctx context.Context) (*model.EvaluationQuestion, error)
	Create(ctx context.Context, req *model.EvaluationRequest) (uuid.UUID, error)
	Replace(ctx context.Context, id uuid.UUID, req *model.EvaluationRequest) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// EvaluationService manages the self-assessment forms shown during breaks.
type EvaluationService struct {
	evalRepo EvaluationStore
}

// NewEvaluationService creates a new EvaluationService.
func NewEvaluationService(evalRepo EvaluationStore) *EvaluationService {
	return &EvaluationService{evalRepo: evalRepo}
}

// List retrieves every evaluation form.
func (s *EvaluationService) List(ctx context.Context) ([]model.EvaluationQuestion, error) {
	return s.evalRepo.List(ctx)
}

// Latest retrieves the form currently used for breaks.
func (s *EvaluationService) Latest(ctx context.Context) (*model.EvaluationQuestion, error) {
	return s.evalRepo.Latest(ctx)
}

// Create stores a new form.
func (s *EvaluationService) Create(ctx context.Context, req *model.EvaluationRequest) (*model.EvaluationQuestion, error) {
	id, err := s.evalRepo.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.evalRepo.GetByID(ctx, id)
}

// Replace overwrites a form with the request content.
func (s *EvaluationService) Replace(ctx context.Context, id uuid.UUID, req *model.EvaluationRequest) (*model.EvaluationQuestion, error) {
	if err := s.evalRepo.Replace(ctx, id, req); err != nil {
		return nil, err
	}
	return s.evalRepo.GetByID(ctx, id)
}

// Delete removes a form.
func (s *EvaluationService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.evalRepo.Delete(ctx, id)
}
