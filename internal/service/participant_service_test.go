package service

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exlab-backend/internal/engine"
	"github.com/stemsi/exlab-backend/internal/store"
)

type participantFixture struct {
	clock    *clockwork.FakeClock
	auth     *AuthService
	orders   *store.OrderStore
	progress *store.ProgressStore
	svc      *ParticipantService
}

func newParticipantFixture(t *testing.T) *participantFixture {
	t.Helper()
	_, rdb := newTestRedis(t)
	cfg := testConfig()
	registry := NewRuntimeRegistry()
	t.Cleanup(registry.Close)

	f := &participantFixture{
		clock:    clockwork.NewFakeClockAt(epoch),
		auth:     NewAuthService(cfg, rdb),
		orders:   store.NewOrderStore(rdb, time.Hour),
		progress: store.NewProgressStore(rdb, time.Hour),
	}
	f.svc = NewParticipantService(cfg, f.clock, registry, f.auth, f.orders, f.progress,
		store.NewAttemptStore(rdb, time.Hour), &fakeContent{session: sampleSession()}, zerolog.Nop())
	f.svc.intn = func(int) int { return 0 }
	return f
}

func TestStartRunIssuesTokenAndOrder(t *testing.T) {
	f := newParticipantFixture(t)
	ctx := context.Background()

	run, err := f.svc.StartRun(ctx, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := uuid.Parse(run.UserID); err != nil {
		t.Fatalf("generated user id should be a uuid, got %q", run.UserID)
	}
	if !reflect.DeepEqual(run.Order, engine.Order{2, 3, 4, 1}) || run.FirstSession != 2 {
		t.Fatalf("unexpected order %v first %d", run.Order, run.FirstSession)
	}

	claims, err := f.auth.ValidateToken(run.Token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.TokenType != TokenTypeParticipant || claims.RunID != run.RunID || claims.UserID != run.UserID {
		t.Fatalf("unexpected claims %+v", claims)
	}

	p := Participant{UserID: run.UserID, RunID: uuid.MustParse(run.RunID)}
	order, err := f.svc.Order(ctx, p)
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	if !reflect.DeepEqual(order, run.Order) {
		t.Fatalf("stored order %v, want %v", order, run.Order)
	}
}

func TestStartRunInvalidatesPreviousRun(t *testing.T) {
	f := newParticipantFixture(t)
	ctx := context.Background()

	first, err := f.svc.StartRun(ctx, "alice")
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	second, err := f.svc.StartRun(ctx, "alice")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if first.RunID == second.RunID {
		t.Fatalf("each start needs a fresh run id")
	}
	if err := f.auth.ValidateActiveRun(ctx, "alice", first.RunID); !errors.Is(err, ErrRunInvalidated) {
		t.Fatalf("old run should be invalidated, got %v", err)
	}
	if err := f.auth.ValidateActiveRun(ctx, "alice", second.RunID); err != nil {
		t.Fatalf("new run should be active: %v", err)
	}
}

func TestSessionForPlayHidesAnswerKey(t *testing.T) {
	f := newParticipantFixture(t)

	s, err := f.svc.SessionForPlay(context.Background(), 1)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	for _, set := range s.QuestionSets {
		for _, q := range set.Questions {
			if q.CorrectAnswer != "" {
				t.Fatalf("question %s leaks its answer", q.ID)
			}
		}
	}
	if _, err := f.svc.SessionForPlay(context.Background(), 0); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestResultStampsEndTimeWhenComplete(t *testing.T) {
	f := newParticipantFixture(t)
	ctx := context.Background()

	run, err := f.svc.StartRun(ctx, "bob")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	p := Participant{UserID: "bob", RunID: uuid.MustParse(run.RunID)}

	if _, err := f.svc.Result(ctx, p); !errors.Is(err, ErrNoResult) {
		t.Fatalf("expected ErrNoResult for an empty run, got %v", err)
	}

	for _, sid := range run.Order {
		if err := f.progress.RecordSession(ctx, p.key(), sid, []bool{true, false}, 60); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	f.clock.Advance(30 * time.Minute)

	res, err := f.svc.Result(ctx, p)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if len(res.Sessions) != 4 || res.TotalCorrect != 4 || res.TotalQuestions != 8 {
		t.Fatalf("unexpected totals %+v", res)
	}
	// Default 7 minutes per session with 60s left on each clock.
	if res.TotalTime != 4*360 {
		t.Fatalf("total time %d, want %d", res.TotalTime, 4*360)
	}
	if res.CompletionTime != 1800 {
		t.Fatalf("completion time %d, want 1800", res.CompletionTime)
	}
}

func TestResetEndsRun(t *testing.T) {
	f := newParticipantFixture(t)
	ctx := context.Background()

	run, err := f.svc.StartRun(ctx, "carol")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	p := Participant{UserID: "carol", RunID: uuid.MustParse(run.RunID)}

	if err := f.svc.Reset(ctx, p); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := f.svc.Order(ctx, p); !errors.Is(err, ErrRunNotStarted) {
		t.Fatalf("order should be gone, got %v", err)
	}
	if err := f.auth.ValidateActiveRun(ctx, "carol", run.RunID); !errors.Is(err, ErrRunNotStarted) {
		t.Fatalf("run should be ended, got %v", err)
	}
}
