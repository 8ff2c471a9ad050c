package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exlab-backend/internal/engine"
	"github.com/stemsi/exlab-backend/internal/middleware"
	"github.com/stemsi/exlab-backend/internal/model"
	"github.com/stemsi/exlab-backend/internal/response"
	"github.com/stemsi/exlab-backend/internal/service"
	"github.com/stemsi/exlab-backend/internal/validator"
)

// ParticipantHandler handles the participant flow: starting a run, taking
// sessions, the breaks between them and the result page.
type ParticipantHandler struct {
	participantService *service.ParticipantService
	attemptService     *service.AttemptService
	breakService       *service.BreakService
}

// NewParticipantHandler creates a new ParticipantHandler.
func NewParticipantHandler(
	participantService *service.ParticipantService,
	attemptService *service.AttemptService,
	breakService *service.BreakService,
) *ParticipantHandler {
	return &ParticipantHandler{
		participantService: participantService,
		attemptService:     attemptService,
		breakService:       breakService,
	}
}

func participantFrom(c *gin.Context) (service.Participant, bool) {
	p, ok := middleware.GetParticipant(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
	}
	return p, ok
}

// StartRun godoc
// POST /api/v1/participant/start
// Starts a new run with a fresh session order and returns its token.
func (h *ParticipantHandler) StartRun(c *gin.Context) {
	var req model.StartRunRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	run, err := h.participantService.StartRun(c.Request.Context(), req.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, run)
}

// GetOrder godoc
// GET /api/v1/participant/order
func (h *ParticipantHandler) GetOrder(c *gin.Context) {
	p, ok := participantFrom(c)
	if !ok {
		return
	}

	order, err := h.participantService.Order(c.Request.Context(), p)
	if err != nil {
		failFlow(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"order": order})
}

// GetSession godoc
// GET /api/v1/participant/sessions/:id
// Returns the session for play, without the answer key.
func (h *ParticipantHandler) GetSession(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}

	session, err := h.participantService.SessionForPlay(c.Request.Context(), id)
	if err != nil {
		failFlow(c, err)
		return
	}

	response.Success(c, http.StatusOK, session)
}

// StartSession godoc
// POST /api/v1/participant/sessions/:id/start
// Creates or resumes the session's countdown and returns its snapshot.
func (h *ParticipantHandler) StartSession(c *gin.Context) {
	p, ok := participantFrom(c)
	if !ok {
		return
	}
	id, ok := sessionParam(c)
	if !ok {
		return
	}

	snap, err := h.attemptService.Start(c.Request.Context(), p, id)
	if err != nil {
		failFlow(c, err)
		return
	}

	response.Success(c, http.StatusOK, snap)
}

// SaveAnswer godoc
// PUT /api/v1/participant/sessions/:id/answers
func (h *ParticipantHandler) SaveAnswer(c *gin.Context) {
	p, ok := participantFrom(c)
	if !ok {
		return
	}
	id, ok := sessionParam(c)
	if !ok {
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.Answer(c.Request.Context(), p, id, &req); err != nil {
		failFlow(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Answer saved"})
}

// React godoc
// POST /api/v1/participant/sessions/:id/popups/:popup_id/reaction
// Stores the reaction first and dismisses the popup only once it is saved.
func (h *ParticipantHandler) React(c *gin.Context) {
	p, ok := participantFrom(c)
	if !ok {
		return
	}
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	popupID, ok := intParam(c, "popup_id")
	if !ok {
		return
	}

	var req model.ReactionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.React(c.Request.Context(), p, id, popupID, req.Reaction); err != nil {
		failFlow(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Reaction saved"})
}

// SubmitSession godoc
// POST /api/v1/participant/sessions/:id/submit
func (h *ParticipantHandler) SubmitSession(c *gin.Context) {
	p, ok := participantFrom(c)
	if !ok {
		return
	}
	id, ok := sessionParam(c)
	if !ok {
		return
	}

	res, err := h.attemptService.Submit(c.Request.Context(), p, id)
	if err != nil {
		failFlow(c, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// GetBreak godoc
// GET /api/v1/participant/sessions/:id/break
// Returns the finished session's score and the evaluation form. The first
// call starts the break countdown.
func (h *ParticipantHandler) GetBreak(c *gin.Context) {
	p, ok := participantFrom(c)
	if !ok {
		return
	}
	id, ok := sessionParam(c)
	if !ok {
		return
	}

	view, err := h.breakService.Get(c.Request.Context(), p, id)
	if err != nil {
		failFlow(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// SaveSelection godoc
// PUT /api/v1/participant/sessions/:id/evaluation/selection
func (h *ParticipantHandler) SaveSelection(c *gin.Context) {
	p, ok := participantFrom(c)
	if !ok {
		return
	}
	id, ok := sessionParam(c)
	if !ok {
		return
	}

	var req model.SelectionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.breakService.Select(c.Request.Context(), p, id, &req); err != nil {
		if errors.Is(err, engine.ErrFinished) {
			response.Fail(c, http.StatusConflict, response.ErrEvaluationFinished)
			return
		}
		failFlow(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Selection saved"})
}

// SubmitEvaluation godoc
// POST /api/v1/participant/sessions/:id/evaluation
// Saves the break's evaluation as completed by the participant.
func (h *ParticipantHandler) SubmitEvaluation(c *gin.Context) {
	p, ok := participantFrom(c)
	if !ok {
		return
	}
	id, ok := sessionParam(c)
	if !ok {
		return
	}

	var req model.EvaluationSubmitRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	res, err := h.breakService.Submit(c.Request.Context(), p, id, req.Answers)
	if err != nil {
		failFlow(c, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// GetResult godoc
// GET /api/v1/participant/result
func (h *ParticipantHandler) GetResult(c *gin.Context) {
	p, ok := participantFrom(c)
	if !ok {
		return
	}

	res, err := h.participantService.Result(c.Request.Context(), p)
	if err != nil {
		failFlow(c, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// ResetProgress godoc
// DELETE /api/v1/participant/progress
// Ends the run and drops its progress ("Start new test").
func (h *ParticipantHandler) ResetProgress(c *gin.Context) {
	p, ok := participantFrom(c)
	if !ok {
		return
	}

	if err := h.participantService.Reset(c.Request.Context(), p); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Progress reset"})
}
