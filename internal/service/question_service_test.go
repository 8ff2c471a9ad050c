package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exlab-backend/internal/model"
)

type countingStore struct {
	mu        sync.Mutex
	loads     int
	questions []model.Question
}

func (s *countingStore) List(context.Context) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	out := make([]model.Question, len(s.questions))
	copy(out, s.questions)
	return out, nil
}

func (s *countingStore) Create(_ context.Context, q *model.Question) error {
	q.ID = uuid.New()
	s.mu.Lock()
	s.questions = append(s.questions, *q)
	s.mu.Unlock()
	return nil
}

func (s *countingStore) Update(context.Context, *model.Question) error { return nil }

func (s *countingStore) Delete(context.Context, uuid.UUID) error { return nil }

func TestQuestionListIsCached(t *testing.T) {
	st := &countingStore{questions: []model.Question{{ID: q1, Question: "One?", Choices: []string{"A", "B"}, CorrectAnswer: "A"}}}
	svc := NewQuestionService(st)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		qs, err := svc.List(ctx, false)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(qs) != 1 {
			t.Fatalf("got %d questions, want 1", len(qs))
		}
	}
	if st.loads != 1 {
		t.Fatalf("store loaded %d times, want 1", st.loads)
	}

	if _, err := svc.List(ctx, true); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if st.loads != 2 {
		t.Fatalf("refresh should hit the store, loads=%d", st.loads)
	}
}

func TestQuestionWritesUpdateCache(t *testing.T) {
	st := &countingStore{}
	svc := NewQuestionService(st)
	ctx := context.Background()

	if _, err := svc.List(ctx, false); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	_, err := svc.Create(ctx, &model.CreateQuestionRequest{Question: "Q", Choices: []string{"A", "B"}, CorrectAnswer: "C"})
	if !errors.Is(err, ErrAnswerNotInChoices) {
		t.Fatalf("expected ErrAnswerNotInChoices, got %v", err)
	}

	created, err := svc.Create(ctx, &model.CreateQuestionRequest{Question: "Q", Choices: []string{"A", "B"}, CorrectAnswer: "B"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Update(ctx, created.ID, &model.UpdateQuestionRequest{Question: "Q2", Choices: []string{"A", "B"}, CorrectAnswer: "A"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	qs, _ := svc.List(ctx, false)
	if len(qs) != 1 || qs[0].Question != "Q2" || qs[0].CorrectAnswer != "A" {
		t.Fatalf("cache not updated in place: %+v", qs)
	}

	// Callers get copies.
	qs[0].Question = "mutated"
	again, _ := svc.List(ctx, false)
	if again[0].Question != "Q2" {
		t.Fatalf("cache leaked to caller")
	}

	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if qs, _ := svc.List(ctx, false); len(qs) != 0 {
		t.Fatalf("deleted question still cached: %+v", qs)
	}
	if st.loads != 1 {
		t.Fatalf("writes must not reload the cache, loads=%d", st.loads)
	}
}
