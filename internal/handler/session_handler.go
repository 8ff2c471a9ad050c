package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exlab-backend/internal/model"
	"github.com/stemsi/exlab-backend/internal/response"
	"github.com/stemsi/exlab-backend/internal/service"
	"github.com/stemsi/exlab-backend/internal/validator"
)

// SessionHandler handles session and popup management endpoints.
type SessionHandler struct {
	sessionService *service.SessionService
	popupService   *service.PopupService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService, popupService *service.PopupService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService, popupService: popupService}
}

// ListSessions godoc
// GET /api/v1/admin/sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions, err := h.sessionService.List(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// GetSession godoc
// GET /api/v1/admin/sessions/:id
// Returns a session with its popups and question sets, answer key included.
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}

	session, err := h.sessionService.Get(c.Request.Context(), id)
	if err != nil {
		failStore(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// CreateSession godoc
// POST /api/v1/admin/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req model.CreateSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.sessionService.Create(c.Request.Context(), &req)
	if err != nil {
		failStore(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": session})
}

// UpdateSession godoc
// PUT /api/v1/admin/sessions/:id
// Patches the given fields of a session.
func (h *SessionHandler) UpdateSession(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}

	var req model.UpdateSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.sessionService.Update(c.Request.Context(), id, &req)
	if err != nil {
		failStore(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// DeleteSession godoc
// DELETE /api/v1/admin/sessions/:id
// Deletes a session together with its popups and set links.
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}

	if err := h.sessionService.Delete(c.Request.Context(), id); err != nil {
		failStore(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "session deleted successfully"})
}

// ListPopups godoc
// GET /api/v1/admin/sessions/:id/popups
func (h *SessionHandler) ListPopups(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}

	popups, err := h.popupService.ListBySession(c.Request.Context(), id)
	if err != nil {
		failStore(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"popups": popups})
}

// CreatePopup godoc
// POST /api/v1/admin/sessions/:id/popups
func (h *SessionHandler) CreatePopup(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}

	var req model.CreatePopupRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	popup, err := h.popupService.Create(c.Request.Context(), id, &req)
	if err != nil {
		failStore(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"popup": popup})
}

// UpdatePopup godoc
// PUT /api/v1/admin/popups/:id
func (h *SessionHandler) UpdatePopup(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}

	var req model.UpdatePopupRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	popup, err := h.popupService.Update(c.Request.Context(), id, &req)
	if err != nil {
		failStore(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"popup": popup})
}

// DeletePopup godoc
// DELETE /api/v1/admin/popups/:id
func (h *SessionHandler) DeletePopup(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}

	if err := h.popupService.Delete(c.Request.Context(), id); err != nil {
		failStore(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "popup deleted successfully"})
}
