package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exlab-backend/internal/model"
	"github.com/stemsi/exlab-backend/internal/response"
	"github.com/stemsi/exlab-backend/internal/service"
	"github.com/stemsi/exlab-backend/internal/validator"
)

// EvaluationHandler handles evaluation form management endpoints.
type EvaluationHandler struct {
	evaluationService *service.EvaluationService
}

// NewEvaluationHandler creates a new EvaluationHandler.
func NewEvaluationHandler(evaluationService *service.EvaluationService) *EvaluationHandler {
	return &EvaluationHandler{evaluationService: evaluationService}
}

// ListEvaluations godoc
// GET /api/v1/admin/evaluations
func (h *EvaluationHandler) ListEvaluations(c *gin.Context) {
	forms, err := h.evaluationService.List(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"evaluations": forms})
}

// CreateEvaluation godoc
// POST /api/v1/admin/evaluations
func (h *EvaluationHandler) CreateEvaluation(c *gin.Context) {
	var req model.EvaluationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	form, err := h.evaluationService.Create(c.Request.Context(), &req)
	if err != nil {
		failStore(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"evaluation": form})
}

// ReplaceEvaluation godoc
// PUT /api/v1/admin/evaluations/:id
// Replaces the description, variables and suggested answers in one
// transaction.
func (h *EvaluationHandler) ReplaceEvaluation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.EvaluationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	form, err := h.evaluationService.Replace(c.Request.Context(), id, &req)
	if err != nil {
		failStore(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"evaluation": form})
}

// DeleteEvaluation godoc
// DELETE /api/v1/admin/evaluations/:id
func (h *EvaluationHandler) DeleteEvaluation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.evaluationService.Delete(c.Request.Context(), id); err != nil {
		failStore(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "evaluation deleted successfully"})
}
