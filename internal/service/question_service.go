package service

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exlab-backend/internal/model"
	"golang.org/x/sync/singleflight"
)

// ErrAnswerNotInChoices is returned when a question's key is not one of
// its choices.
var ErrAnswerNotInChoices = errors.New("correct answer must be one of the choices")

// QuestionStore is the persistence QuestionService caches.
type QuestionStore interface {
	List(ctx context.Context) ([]model.Question, error)
	Create(ctx context.Context, q *model.Question) error
	Update(ctx context.Context, q *model.Question) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// QuestionService serves the question bank from an in-process cache. The
// first read loads it; later reads hit memory until a forced refresh.
// Writes go to the store first and are then applied to the cache.
type QuestionService struct {
	store QuestionStore
	sf    singleflight.Group

	mu     sync.RWMutex
	cache  []model.Question
	loaded bool
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(store QuestionStore) *QuestionService {
	return &QuestionService{store: store}
}

// List returns the question bank. refresh bypasses the cache.
func (s *QuestionService) List(ctx context.Context, refresh bool) ([]model.Question, error) {
	if !refresh {
		s.mu.RLock()
		if s.loaded {
			out := slices.Clone(s.cache)
			s.mu.RUnlock()
			return out, nil
		}
		s.mu.RUnlock()
	}

	v, err, _ := s.sf.Do("questions", func() (any, error) {
		questions, err := s.store.List(ctx)
		if err != nil {
			return nil, err
		}
		if questions == nil {
			questions = []model.Question{}
		}
		shared := slices.Clone(questions)
		s.mu.Lock()
		s.cache = questions
		s.loaded = true
		s.mu.Unlock()
		return shared, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]model.Question)), nil
}

// Create adds a question.
func (s *QuestionService) Create(ctx context.Context, req *model.CreateQuestionRequest) (*model.Question, error) {
	if !slices.Contains(req.Choices, req.CorrectAnswer) {
		return nil, ErrAnswerNotInChoices
	}
	q := &model.Question{
		Question:      req.Question,
		Choices:       req.Choices,
		CorrectAnswer: req.CorrectAnswer,
	}
	if err := s.store.Create(ctx, q); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.loaded {
		s.cache = append([]model.Question{*q}, s.cache...)
	}
	s.mu.Unlock()
	return q, nil
}

// Update replaces a question's content.
func (s *QuestionService) Update(ctx context.Context, id uuid.UUID, req *model.UpdateQuestionRequest) (*model.Question, error) {
	if !slices.Contains(req.Choices, req.CorrectAnswer) {
		return nil, ErrAnswerNotInChoices
	}
	q := &model.Question{
		ID:            id,
		Question:      req.Question,
		Choices:       req.Choices,
		CorrectAnswer: req.CorrectAnswer,
	}
	if err := s.store.Update(ctx, q); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if i := s.indexOf(id); i >= 0 {
		s.cache[i] = *q
	}
	s.mu.Unlock()
	return q, nil
}

// Delete removes a question.
func (s *QuestionService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	if i := s.indexOf(id); i >= 0 {
		s.cache = slices.Delete(s.cache, i, i+1)
	}
	s.mu.Unlock()
	return nil
}

// indexOf must be called with mu held.
func (s *QuestionService) indexOf(id uuid.UUID) int {
	return slices.IndexFunc(s.cache, func(q model.Question) bool { return q.ID == id })
}
