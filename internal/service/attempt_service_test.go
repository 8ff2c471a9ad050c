package service

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exlab-backend/internal/engine"
	"github.com/stemsi/exlab-backend/internal/model"
	"github.com/stemsi/exlab-backend/internal/repository"
	"github.com/stemsi/exlab-backend/internal/store"
)

var (
	q1 = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	q2 = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

type fakeContent struct {
	session *model.Session
}

func (f *fakeContent) Get(_ context.Context, id int) (*model.Session, error) {
	s := *f.session
	s.ID = id
	return &s, nil
}

func sampleSession(popups ...model.Popup) *model.Session {
	return &model.Session{
		Name:              "Session",
		DurationMinutes:   1,
		EvaluationMinutes: 2,
		Popups:            popups,
		QuestionSets: []model.QuestionSet{{
			ID:      1,
			SetName: "Set A",
			Questions: []model.Question{
				{ID: q1, Question: "One?", Choices: []string{"A", "B"}, CorrectAnswer: "A"},
				{ID: q2, Question: "Two?", Choices: []string{"A", "B"}, CorrectAnswer: "B"},
			},
		}},
	}
}

type fakeWriter struct {
	mu          sync.Mutex
	createErr   error
	reactionErr error
	answers     map[string]*model.TestAnswer
	reactions   []model.PopupReactionRecord
	// When set, InsertReaction signals entered and waits on gate.
	entered chan struct{}
	gate    chan struct{}
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{answers: make(map[string]*model.TestAnswer)}
}

func answerKey(runID uuid.UUID, sessionID int) string {
	return sessionKey(Participant{RunID: runID}, sessionID).String()
}

func (w *fakeWriter) CreateTestAnswer(_ context.Context, ta *model.TestAnswer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.createErr != nil {
		return w.createErr
	}
	key := answerKey(ta.RunID, ta.SessionID)
	if _, ok := w.answers[key]; ok {
		return repository.ErrAlreadySaved
	}
	stored := *ta
	stored.ID = int64(len(w.answers) + 1)
	w.answers[key] = &stored
	return nil
}

func (w *fakeWriter) GetTestAnswer(_ context.Context, runID uuid.UUID, sessionID int) (*model.TestAnswer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ta, ok := w.answers[answerKey(runID, sessionID)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return ta, nil
}

func (w *fakeWriter) InsertReaction(_ context.Context, rec *model.PopupReactionRecord) error {
	if w.gate != nil {
		w.entered <- struct{}{}
		<-w.gate
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.reactionErr != nil {
		return w.reactionErr
	}
	w.reactions = append(w.reactions, *rec)
	return nil
}

func (w *fakeWriter) saved() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.answers)
}

type fakeQueue struct {
	mu   sync.Mutex
	recs []model.PopupReactionRecord
}

func (q *fakeQueue) Enqueue(_ context.Context, recs ...model.PopupReactionRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recs = append(q.recs, recs...)
	return nil
}

type attemptFixture struct {
	clock    *clockwork.FakeClock
	state    *store.AttemptStore
	progress *store.ProgressStore
	writer   *fakeWriter
	queue    *fakeQueue
	content  *fakeContent
	registry *RuntimeRegistry
	svc      *AttemptService
}

func newAttemptFixture(t *testing.T, session *model.Session) *attemptFixture {
	t.Helper()
	_, rdb := newTestRedis(t)
	f := &attemptFixture{
		clock:    clockwork.NewFakeClockAt(epoch),
		state:    store.NewAttemptStore(rdb, time.Hour),
		progress: store.NewProgressStore(rdb, time.Hour),
		writer:   newFakeWriter(),
		queue:    &fakeQueue{},
		content:  &fakeContent{session: session},
	}
	f.restart(t)
	return f
}

// restart replaces the in-process runtimes, as a new server process would.
func (f *attemptFixture) restart(t *testing.T) {
	if f.registry != nil {
		f.registry.Close()
	}
	f.registry = NewRuntimeRegistry()
	t.Cleanup(f.registry.Close)
	f.svc = NewAttemptService(testConfig(), f.clock, f.registry, f.state, f.progress, f.writer, f.content, f.queue, zerolog.Nop())
}

func TestAttemptRejectsUnknownSession(t *testing.T) {
	f := newAttemptFixture(t, sampleSession())
	p := testParticipant()

	if _, err := f.svc.Start(context.Background(), p, 9); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
	err := f.svc.Answer(context.Background(), p, 1, &model.AnswerRequest{QuestionID: q1.String(), Answer: "A"})
	if !errors.Is(err, ErrSessionNotStarted) {
		t.Fatalf("expected ErrSessionNotStarted, got %v", err)
	}
}

func TestAttemptResumesAfterRestart(t *testing.T) {
	f := newAttemptFixture(t, sampleSession())
	ctx := context.Background()
	p := testParticipant()

	snap, err := f.svc.Start(ctx, p, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap.Remaining != 60 || snap.Finished {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if err := f.svc.Answer(ctx, p, 1, &model.AnswerRequest{QuestionID: q1.String(), Answer: "A"}); err != nil {
		t.Fatalf("answer: %v", err)
	}

	f.restart(t)
	f.clock.Advance(5 * time.Second)

	snap, err = f.svc.Start(ctx, p, 1)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if snap.Remaining != 55 {
		t.Fatalf("countdown should survive a restart, remaining %d", snap.Remaining)
	}
	if !reflect.DeepEqual(snap.Answers, map[string]string{q1.String(): "A"}) {
		t.Fatalf("answers not restored: %v", snap.Answers)
	}
}

func TestAttemptReactionFailureKeepsPopupVisible(t *testing.T) {
	f := newAttemptFixture(t, sampleSession(model.Popup{ID: 7, StartTime: 10, Duration: 20}))
	ctx := context.Background()
	p := testParticipant()

	if _, err := f.state.SessionStart(ctx, p.key(), 1, epoch); err != nil {
		t.Fatalf("seed start: %v", err)
	}
	f.clock.Advance(12 * time.Second)

	snap, err := f.svc.Start(ctx, p, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !reflect.DeepEqual(snap.VisiblePopups, []int{7}) {
		t.Fatalf("popup should be visible, got %v", snap.VisiblePopups)
	}

	f.writer.reactionErr = errors.New("db down")
	if err := f.svc.React(ctx, p, 1, 7, model.ReactionYes); err == nil {
		t.Fatalf("expected reaction error")
	}
	snap, _ = f.svc.Start(ctx, p, 1)
	if !reflect.DeepEqual(snap.VisiblePopups, []int{7}) {
		t.Fatalf("popup must stay after a failed save, got %v", snap.VisiblePopups)
	}

	f.writer.reactionErr = nil
	if err := f.svc.React(ctx, p, 1, 7, model.ReactionNo); err != nil {
		t.Fatalf("react: %v", err)
	}
	snap, _ = f.svc.Start(ctx, p, 1)
	if len(snap.VisiblePopups) != 0 {
		t.Fatalf("popup should be dismissed, got %v", snap.VisiblePopups)
	}
	if err := f.svc.React(ctx, p, 1, 7, model.ReactionNo); !errors.Is(err, engine.ErrPopupNotVisible) {
		t.Fatalf("expected ErrPopupNotVisible on second reaction, got %v", err)
	}
	if len(f.writer.reactions) != 1 || f.writer.reactions[0].Reaction != model.ReactionNo {
		t.Fatalf("unexpected stored reactions %+v", f.writer.reactions)
	}
}

func TestAttemptConcurrentReactionsSaveOnce(t *testing.T) {
	f := newAttemptFixture(t, sampleSession(model.Popup{ID: 7, StartTime: 0, Duration: 30}))
	ctx := context.Background()
	p := testParticipant()

	if _, err := f.svc.Start(ctx, p, 1); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.writer.entered = make(chan struct{}, 1)
	f.writer.gate = make(chan struct{})
	first := make(chan error, 1)
	go func() { first <- f.svc.React(ctx, p, 1, 7, model.ReactionYes) }()
	<-f.writer.entered

	if err := f.svc.React(ctx, p, 1, 7, model.ReactionNo); !errors.Is(err, engine.ErrPopupNotVisible) {
		t.Fatalf("a reaction racing an in-flight one should be rejected, got %v", err)
	}

	close(f.writer.gate)
	if err := <-first; err != nil {
		t.Fatalf("first reaction: %v", err)
	}
	f.writer.mu.Lock()
	defer f.writer.mu.Unlock()
	if len(f.writer.reactions) != 1 || f.writer.reactions[0].Reaction != model.ReactionYes {
		t.Fatalf("unexpected stored reactions %+v", f.writer.reactions)
	}
}

func TestAttemptManualSubmitSavesOnce(t *testing.T) {
	f := newAttemptFixture(t, sampleSession(model.Popup{ID: 3, StartTime: 0, Duration: 30}))
	ctx := context.Background()
	p := testParticipant()

	if _, err := f.svc.Start(ctx, p, 2); err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = f.svc.Answer(ctx, p, 2, &model.AnswerRequest{QuestionID: q1.String(), Answer: "A"})
	_ = f.svc.Answer(ctx, p, 2, &model.AnswerRequest{QuestionID: q2.String(), Answer: "A"})
	f.clock.Advance(20 * time.Second)

	res, err := f.svc.Submit(ctx, p, 2)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.AlreadySaved || res.Correct != 1 || res.Total != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !reflect.DeepEqual(res.Scores, []bool{true, false}) {
		t.Fatalf("unexpected scores %v", res.Scores)
	}
	if res.Next != (model.NavTarget{Kind: model.NavBreak, SessionID: 2}) {
		t.Fatalf("unexpected next %+v", res.Next)
	}

	again, err := f.svc.Submit(ctx, p, 2)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if !again.AlreadySaved || again.Correct != 1 {
		t.Fatalf("second submit should report the stored result, got %+v", again)
	}
	if f.writer.saved() != 1 {
		t.Fatalf("stored %d attempts, want 1", f.writer.saved())
	}

	progress, err := f.progress.Get(ctx, p.key())
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if !reflect.DeepEqual(progress.Scores[2], []bool{true, false}) || progress.Durations[2] != 1 {
		t.Fatalf("progress not recorded: %+v", progress)
	}
	if len(f.queue.recs) != 1 || f.queue.recs[0].PopupID != 3 || f.queue.recs[0].Reaction != model.ReactionNoAnswer {
		t.Fatalf("unanswered popup should be queued as no_answer, got %+v", f.queue.recs)
	}
	if f.registry.Len() != 0 {
		t.Fatalf("finished attempt should leave the registry")
	}

	if _, _, _, _, err := f.svc.Subscribe(ctx, p, 2); !errors.Is(err, ErrSessionFinished) {
		t.Fatalf("expected ErrSessionFinished after submit, got %v", err)
	}
}

func TestAttemptSubmitFailureCanBeRetried(t *testing.T) {
	f := newAttemptFixture(t, sampleSession())
	ctx := context.Background()
	p := testParticipant()

	if _, err := f.svc.Start(ctx, p, 1); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.writer.createErr = errors.New("db down")
	if _, err := f.svc.Submit(ctx, p, 1); err == nil {
		t.Fatalf("expected submit error")
	}
	submitted, err := f.state.Submitted(ctx, p.key(), 1)
	if err != nil || submitted {
		t.Fatalf("submit lock should be released, submitted=%v err=%v", submitted, err)
	}

	f.writer.createErr = nil
	res, err := f.svc.Submit(ctx, p, 1)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.AlreadySaved {
		t.Fatalf("retry should save fresh, got %+v", res)
	}
}

func TestAttemptExpiryAutoSubmits(t *testing.T) {
	f := newAttemptFixture(t, sampleSession())
	ctx := context.Background()
	p := testParticipant()

	_, events, cancel, done, err := f.svc.Subscribe(ctx, p, 3)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	if err := f.svc.Answer(ctx, p, 3, &model.AnswerRequest{QuestionID: q2.String(), Answer: "B"}); err != nil {
		t.Fatalf("answer: %v", err)
	}

	waitTimer(t, f.clock)
	f.clock.Advance(time.Minute)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("driver did not exit after expiry")
	}

	var kinds []engine.EventKind
	for len(events) > 0 {
		kinds = append(kinds, (<-events).Kind)
	}
	if !reflect.DeepEqual(kinds, []engine.EventKind{engine.EventTimeUp, engine.EventSubmitted}) {
		t.Fatalf("unexpected events %v", kinds)
	}
	if f.writer.saved() != 1 {
		t.Fatalf("auto-submit should store the attempt")
	}

	res, err := f.svc.Submit(ctx, p, 3)
	if err != nil {
		t.Fatalf("submit after expiry: %v", err)
	}
	if !res.AlreadySaved || res.Correct != 1 || res.TotalTime != 60 {
		t.Fatalf("unexpected stored result %+v", res)
	}
}

func TestGradedQuestionsCountsSharedQuestionOnce(t *testing.T) {
	shared := model.Question{ID: q1, Choices: []string{"a", "b"}, CorrectAnswer: "a"}
	other := model.Question{ID: q2, Choices: []string{"x", "y"}, CorrectAnswer: "y"}
	sets := []model.QuestionSet{
		{ID: 1, Questions: []model.Question{shared}},
		{ID: 2, Questions: []model.Question{other, shared}},
	}

	got := gradedQuestions(sets)
	if len(got) != 2 {
		t.Fatalf("graded %d questions, want 2", len(got))
	}
	if got[0].ID != q1.String() || got[1].ID != q2.String() {
		t.Fatalf("order %s, %s; want the first position of each question", got[0].ID, got[1].ID)
	}
}
