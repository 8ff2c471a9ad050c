package service

import (
	"context"
	"mime/multipart"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exlab-backend/internal/model"
)

// QuestionSetStore persists sets and their links.
type QuestionSetStore interface {
	GetByID(ctx context.Context, id int) (*model.QuestionSet, error)
	CreateForSession(ctx context.Context, sessionID int, s *model.QuestionSet) error
	Rename(ctx context.Context, id int, name string) (*model.QuestionSet, error)
	ReplaceImage(ctx context.Context, id int, image *string) (old *string, err error)
	UnlinkFromSession(ctx context.Context, sessionID, setID int) (deleted bool, image *string, err error)
	LinkQuestion(ctx context.Context, setID int, questionID uuid.UUID) error
	UnlinkQuestion(ctx context.Context, setID int, questionID uuid.UUID) error
}

// QuestionFinder loads a single question.
type QuestionFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error)
}

// QuestionSetService manages question sets, their session links and their
// images.
type QuestionSetService struct {
	setRepo      QuestionSetStore
	sessionRepo  SessionFinder
	questionRepo QuestionFinder
	media        *MediaService
	log          zerolog.Logger
}

// NewQuestionSetService creates a new QuestionSetService.
func NewQuestionSetService(
	setRepo QuestionSetStore,
	sessionRepo SessionFinder,
	questionRepo QuestionFinder,
	media *MediaService,
	log zerolog.Logger,
) *QuestionSetService {
	return &QuestionSetService{
		setRepo:      setRepo,
		sessionRepo:  sessionRepo,
		questionRepo: questionRepo,
		media:        media,
		log:          log.With().Str("component", "question_set_service").Logger(),
	}
}

// CreateForSession creates a set and links it to the session.
func (s *QuestionSetService) CreateForSession(ctx context.Context, sessionID int, req *model.CreateQuestionSetRequest) (*model.QuestionSet, error) {
	if _, err := s.sessionRepo.GetByID(ctx, sessionID); err != nil {
		return nil, err
	}
	set := &model.QuestionSet{SetName: req.SetName, Questions: []model.Question{}}
	if err := s.setRepo.CreateForSession(ctx, sessionID, set); err != nil {
		return nil, err
	}
	return set, nil
}

// Rename changes a set's name.
func (s *QuestionSetService) Rename(ctx context.Context, id int, req *model.UpdateQuestionSetRequest) (*model.QuestionSet, error) {
	return s.setRepo.Rename(ctx, id, req.SetName)
}

// Unlink removes a set from a session. An orphaned set is deleted along
// with its image file.
func (s *QuestionSetService) Unlink(ctx context.Context, sessionID, setID int) error {
	deleted, image, err := s.setRepo.UnlinkFromSession(ctx, sessionID, setID)
	if err != nil {
		return err
	}
	if deleted && image != nil {
		s.removeFile(*image)
	}
	return nil
}

// LinkQuestion adds an existing question to a set.
func (s *QuestionSetService) LinkQuestion(ctx context.Context, setID int, questionID uuid.UUID) error {
	if _, err := s.setRepo.GetByID(ctx, setID); err != nil {
		return err
	}
	if _, err := s.questionRepo.GetByID(ctx, questionID); err != nil {
		return err
	}
	return s.setRepo.LinkQuestion(ctx, setID, questionID)
}

// UnlinkQuestion removes a question from a set.
func (s *QuestionSetService) UnlinkQuestion(ctx context.Context, setID int, questionID uuid.UUID) error {
	return s.setRepo.UnlinkQuestion(ctx, setID, questionID)
}

// ReplaceImage stores a new image for the set. The previous file is removed
// only after the database points at the new one; a failed update removes
// the new file instead.
func (s *QuestionSetService) ReplaceImage(ctx context.Context, setID int, file multipart.File, header *multipart.FileHeader) (string, error) {
	if _, err := s.setRepo.GetByID(ctx, setID); err != nil {
		return "", err
	}

	url, err := s.media.SaveUpload(file, header)
	if err != nil {
		return "", err
	}

	old, err := s.setRepo.ReplaceImage(ctx, setID, &url)
	if err != nil {
		s.removeFile(url)
		return "", err
	}
	if old != nil && *old != url {
		s.removeFile(*old)
	}
	return url, nil
}

func (s *QuestionSetService) removeFile(url string) {
	if err := s.media.Delete(url); err != nil {
		s.log.Warn().Err(err).Str("url", url).Msg("Failed to remove image file")
	}
}
