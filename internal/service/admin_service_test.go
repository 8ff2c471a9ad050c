package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exlab-backend/internal/model"
)

type knownSessions map[int]bool

func (k knownSessions) GetByID(_ context.Context, id int) (*model.Session, error) {
	if !k[id] {
		return nil, pgx.ErrNoRows
	}
	return &model.Session{ID: id}, nil
}

type fakePopupStore struct {
	popups map[int]*model.Popup
	nextID int
}

func newFakePopupStore() *fakePopupStore {
	return &fakePopupStore{popups: map[int]*model.Popup{}}
}

func (f *fakePopupStore) ListBySession(_ context.Context, sessionID int) ([]model.Popup, error) {
	var out []model.Popup
	for id := 1; id <= f.nextID; id++ {
		if p, ok := f.popups[id]; ok && p.SessionID == sessionID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePopupStore) Create(_ context.Context, p *model.Popup) error {
	f.nextID++
	p.ID = f.nextID
	cp := *p
	f.popups[p.ID] = &cp
	return nil
}

func (f *fakePopupStore) Update(_ context.Context, id int, req *model.UpdatePopupRequest) (*model.Popup, error) {
	p, ok := f.popups[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.StartTime != nil {
		p.StartTime = *req.StartTime
	}
	if req.Duration != nil {
		p.Duration = *req.Duration
	}
	cp := *p
	return &cp, nil
}

func (f *fakePopupStore) Delete(_ context.Context, id int) error {
	if _, ok := f.popups[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(f.popups, id)
	return nil
}

func TestPopupServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newFakePopupStore()
	svc := NewPopupService(store, knownSessions{1: true})

	if _, err := svc.Create(ctx, 9, &model.CreatePopupRequest{Name: "x", Description: "y", Duration: 5}); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("create on missing session: got %v, want ErrNoRows", err)
	}
	if _, err := svc.ListBySession(ctx, 9); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("list on missing session: got %v, want ErrNoRows", err)
	}

	p, err := svc.Create(ctx, 1, &model.CreatePopupRequest{Name: "Noise", Description: "Loud noise", StartTime: 30, Duration: 10})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == 0 || p.SessionID != 1 || p.StartTime != 30 || p.Duration != 10 {
		t.Fatalf("unexpected popup %+v", p)
	}

	name := "Siren"
	updated, err := svc.Update(ctx, p.ID, &model.UpdatePopupRequest{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Siren" || updated.Description != "Loud noise" {
		t.Fatalf("update should only touch the given fields, got %+v", updated)
	}

	list, err := svc.ListBySession(ctx, 1)
	if err != nil || len(list) != 1 || list[0].Name != "Siren" {
		t.Fatalf("list: %+v, %v", list, err)
	}

	if err := svc.Delete(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, p.ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("second delete: got %v, want ErrNoRows", err)
	}
}

type fakeSetStore struct {
	sets       map[int]*model.QuestionSet
	links      map[int]map[uuid.UUID]bool
	sessionOf  map[int]int
	nextID     int
	failUpdate error
}

func newFakeSetStore() *fakeSetStore {
	return &fakeSetStore{
		sets:      map[int]*model.QuestionSet{},
		links:     map[int]map[uuid.UUID]bool{},
		sessionOf: map[int]int{},
	}
}

func (f *fakeSetStore) GetByID(_ context.Context, id int) (*model.QuestionSet, error) {
	s, ok := f.sets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSetStore) CreateForSession(_ context.Context, sessionID int, s *model.QuestionSet) error {
	f.nextID++
	s.ID = f.nextID
	cp := *s
	f.sets[s.ID] = &cp
	f.links[s.ID] = map[uuid.UUID]bool{}
	f.sessionOf[s.ID] = sessionID
	return nil
}

func (f *fakeSetStore) Rename(_ context.Context, id int, name string) (*model.QuestionSet, error) {
	s, ok := f.sets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	s.SetName = name
	cp := *s
	return &cp, nil
}

func (f *fakeSetStore) ReplaceImage(_ context.Context, id int, image *string) (*string, error) {
	if f.failUpdate != nil {
		return nil, f.failUpdate
	}
	s, ok := f.sets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	old := s.Image
	s.Image = image
	return old, nil
}

func (f *fakeSetStore) UnlinkFromSession(_ context.Context, sessionID, setID int) (bool, *string, error) {
	s, ok := f.sets[setID]
	if !ok || f.sessionOf[setID] != sessionID {
		return false, nil, pgx.ErrNoRows
	}
	delete(f.sets, setID)
	return true, s.Image, nil
}

func (f *fakeSetStore) LinkQuestion(_ context.Context, setID int, questionID uuid.UUID) error {
	f.links[setID][questionID] = true
	return nil
}

func (f *fakeSetStore) UnlinkQuestion(_ context.Context, setID int, questionID uuid.UUID) error {
	if !f.links[setID][questionID] {
		return pgx.ErrNoRows
	}
	delete(f.links[setID], questionID)
	return nil
}

type knownQuestions map[uuid.UUID]bool

func (k knownQuestions) GetByID(_ context.Context, id uuid.UUID) (*model.Question, error) {
	if !k[id] {
		return nil, pgx.ErrNoRows
	}
	return &model.Question{ID: id}, nil
}

func storedFile(media *MediaService, url string) string {
	return filepath.Join(media.cfg.UploadDir, filepath.Base(url))
}

func TestQuestionSetServiceLinksQuestions(t *testing.T) {
	ctx := context.Background()
	q := uuid.New()
	store := newFakeSetStore()
	svc := NewQuestionSetService(store, knownSessions{1: true}, knownQuestions{q: true}, newTestMedia(t), zerolog.Nop())

	if _, err := svc.CreateForSession(ctx, 2, &model.CreateQuestionSetRequest{SetName: "A"}); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("create on missing session: got %v, want ErrNoRows", err)
	}
	set, err := svc.CreateForSession(ctx, 1, &model.CreateQuestionSetRequest{SetName: "A"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if set.Questions == nil {
		t.Fatalf("a new set should carry an empty question list")
	}

	if err := svc.LinkQuestion(ctx, set.ID, uuid.New()); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("linking an unknown question: got %v, want ErrNoRows", err)
	}
	if err := svc.LinkQuestion(ctx, set.ID+1, q); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("linking into an unknown set: got %v, want ErrNoRows", err)
	}
	if err := svc.LinkQuestion(ctx, set.ID, q); err != nil {
		t.Fatalf("link: %v", err)
	}
	if !store.links[set.ID][q] {
		t.Fatalf("question should be linked")
	}
	if err := svc.UnlinkQuestion(ctx, set.ID, q); err != nil {
		t.Fatalf("unlink: %v", err)
	}

	renamed, err := svc.Rename(ctx, set.ID, &model.UpdateQuestionSetRequest{SetName: "B"})
	if err != nil || renamed.SetName != "B" {
		t.Fatalf("rename: %+v, %v", renamed, err)
	}
}

func TestQuestionSetServiceImageFiles(t *testing.T) {
	ctx := context.Background()
	store := newFakeSetStore()
	media := newTestMedia(t)
	svc := NewQuestionSetService(store, knownSessions{1: true}, knownQuestions{}, media, zerolog.Nop())

	set, err := svc.CreateForSession(ctx, 1, &model.CreateQuestionSetRequest{SetName: "A"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	file, header := uploadPart(t, "image/png", pngHeader)
	first, err := svc.ReplaceImage(ctx, set.ID, file, header)
	if err != nil {
		t.Fatalf("first image: %v", err)
	}
	file, header = uploadPart(t, "image/png", pngHeader)
	second, err := svc.ReplaceImage(ctx, set.ID, file, header)
	if err != nil {
		t.Fatalf("second image: %v", err)
	}
	if _, err := os.Stat(storedFile(media, first)); !os.IsNotExist(err) {
		t.Fatalf("replaced image should be removed, stat err %v", err)
	}
	if _, err := os.Stat(storedFile(media, second)); err != nil {
		t.Fatalf("current image should stay: %v", err)
	}

	store.failUpdate = errors.New("db down")
	file, header = uploadPart(t, "image/png", pngHeader)
	if _, err := svc.ReplaceImage(ctx, set.ID, file, header); err == nil {
		t.Fatalf("expected the update error")
	}
	entries, err := os.ReadDir(media.cfg.UploadDir)
	if err != nil {
		t.Fatalf("read upload dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("a failed update must not leave its file behind, found %d files", len(entries))
	}
	store.failUpdate = nil

	if err := svc.Unlink(ctx, 1, set.ID); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if _, err := os.Stat(storedFile(media, second)); !os.IsNotExist(err) {
		t.Fatalf("an orphaned set's image should be removed, stat err %v", err)
	}
}

type fakeEvaluationStore struct {
	forms    map[uuid.UUID]*model.EvaluationQuestion
	replaced int
}

func (f *fakeEvaluationStore) List(context.Context) ([]model.EvaluationQuestion, error) {
	var out []model.EvaluationQuestion
	for _, q := range f.forms {
		out = append(out, *q)
	}
	return out, nil
}

func (f *fakeEvaluationStore) GetByID(_ context.Context, id uuid.UUID) (*model.EvaluationQuestion, error) {
	q, ok := f.forms[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return q, nil
}

func (f *fakeEvaluationStore) Latest(context.Context) (*model.EvaluationQuestion, error) {
	for _, q := range f.forms {
		return q, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeEvaluationStore) build(id uuid.UUID, req *model.EvaluationRequest) *model.EvaluationQuestion {
	q := &model.EvaluationQuestion{ID: id, Description: req.Description}
	for _, v := range req.Variables {
		q.Variables = append(q.Variables, model.EvaluationVariable{ID: uuid.New(), QuestionID: id, VariableName: v.VariableName})
	}
	return q
}

func (f *fakeEvaluationStore) Create(_ context.Context, req *model.EvaluationRequest) (uuid.UUID, error) {
	id := uuid.New()
	f.forms[id] = f.build(id, req)
	return id, nil
}

func (f *fakeEvaluationStore) Replace(_ context.Context, id uuid.UUID, req *model.EvaluationRequest) error {
	if _, ok := f.forms[id]; !ok {
		return pgx.ErrNoRows
	}
	f.replaced++
	f.forms[id] = f.build(id, req)
	return nil
}

func (f *fakeEvaluationStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.forms[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(f.forms, id)
	return nil
}

func TestEvaluationServiceReturnsStoredForm(t *testing.T) {
	ctx := context.Background()
	store := &fakeEvaluationStore{forms: map[uuid.UUID]*model.EvaluationQuestion{}}
	svc := NewEvaluationService(store)

	req := &model.EvaluationRequest{
		Description: "How do you feel?",
		Variables: []model.EvaluationVariableInput{
			{VariableName: "Focus", Answers: []model.SuggestedAnswerInput{{AnswerText: "Low", OrderNumber: 1}}},
		},
	}
	created, err := svc.Create(ctx, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Description != req.Description || len(created.Variables) != 1 {
		t.Fatalf("create should return the stored form, got %+v", created)
	}

	req.Description = "Rate yourself"
	replaced, err := svc.Replace(ctx, created.ID, req)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if replaced.ID != created.ID || replaced.Description != "Rate yourself" {
		t.Fatalf("replace should return the re-read form, got %+v", replaced)
	}

	if _, err := svc.Replace(ctx, uuid.New(), req); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("replace unknown: got %v, want ErrNoRows", err)
	}
	if store.replaced != 1 {
		t.Fatalf("replaced %d times, want 1", store.replaced)
	}

	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Latest(ctx); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("latest after delete: got %v, want ErrNoRows", err)
	}
}
