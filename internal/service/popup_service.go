package service

import (
	"context"

	"github.com/stemsi/exlab-backend/internal/model"
)

// PopupStore is the popup table.
type PopupStore interface {
	ListBySession(ctx context.Context, sessionID int) ([]model.Popup, error)
	Create(ctx context.Context, p *model.Popup) error
	Update(ctx context.Context, id int, req *model.UpdatePopupRequest) (*model.Popup, error)
	Delete(ctx context.Context, id int) error
}

// PopupService handles the popups shown during a session.
type PopupService struct {
	popupRepo   PopupStore
	sessionRepo SessionFinder
}

// NewPopupService creates a new PopupService.
func NewPopupService(popupRepo PopupStore, sessionRepo SessionFinder) *PopupService {
	return &PopupService{popupRepo: popupRepo, sessionRepo: sessionRepo}
}

// ListBySession retrieves a session's popups. A missing session yields
// pgx.ErrNoRows rather than an empty list.
func (s *PopupService) ListBySession(ctx context.Context, sessionID int) ([]model.Popup, error) {
	if _, err := s.sessionRepo.GetByID(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.popupRepo.ListBySession(ctx, sessionID)
}

// Create adds a popup to a session.
func (s *PopupService) Create(ctx context.Context, sessionID int, req *model.CreatePopupRequest) (*model.Popup, error) {
	if _, err := s.sessionRepo.GetByID(ctx, sessionID); err != nil {
		return nil, err
	}
	p := &model.Popup{
		SessionID:   sessionID,
		Name:        req.Name,
		Description: req.Description,
		StartTime:   req.StartTime,
		Duration:    req.Duration,
	}
	if err := s.popupRepo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update patches a popup.
func (s *PopupService) Update(ctx context.Context, id int, req *model.UpdatePopupRequest) (*model.Popup, error) {
	return s.popupRepo.Update(ctx, id, req)
}

// Delete removes a popup.
func (s *PopupService) Delete(ctx context.Context, id int) error {
	return s.popupRepo.Delete(ctx, id)
}
