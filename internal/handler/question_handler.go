package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exlab-backend/internal/model"
	"github.com/stemsi/exlab-backend/internal/response"
	"github.com/stemsi/exlab-backend/internal/service"
	"github.com/stemsi/exlab-backend/internal/validator"
)

// QuestionHandler handles question and question set management endpoints.
type QuestionHandler struct {
	questionService *service.QuestionService
	setService      *service.QuestionSetService
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questionService *service.QuestionService, setService *service.QuestionSetService) *QuestionHandler {
	return &QuestionHandler{questionService: questionService, setService: setService}
}

type listQuestionsQuery struct {
	Refresh bool `form:"refresh"`
}

// ListQuestions godoc
// GET /api/v1/admin/questions?refresh=1
// Lists every question. The list is served from memory unless refresh is set.
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	var q listQuestionsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions, err := h.questionService.List(c.Request.Context(), q.Refresh)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// CreateQuestion godoc
// POST /api/v1/admin/questions
func (h *QuestionHandler) CreateQuestion(c *gin.Context) {
	var req model.CreateQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question, err := h.questionService.Create(c.Request.Context(), &req)
	if err != nil {
		failQuestion(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"question": question})
}

// UpdateQuestion godoc
// PUT /api/v1/admin/questions/:id
func (h *QuestionHandler) UpdateQuestion(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.UpdateQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question, err := h.questionService.Update(c.Request.Context(), id, &req)
	if err != nil {
		failQuestion(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question": question})
}

// DeleteQuestion godoc
// DELETE /api/v1/admin/questions/:id
func (h *QuestionHandler) DeleteQuestion(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.questionService.Delete(c.Request.Context(), id); err != nil {
		failStore(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "question deleted successfully"})
}

func failQuestion(c *gin.Context, err error) {
	if errors.Is(err, service.ErrAnswerNotInChoices) {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
			"correct_answer": err.Error(),
		})
		return
	}
	failStore(c, err)
}

// CreateQuestionSet godoc
// POST /api/v1/admin/sessions/:id/question-sets
// Creates a set and links it to the session in one transaction.
func (h *QuestionHandler) CreateQuestionSet(c *gin.Context) {
	sessionID, ok := intParam(c, "id")
	if !ok {
		return
	}

	var req model.CreateQuestionSetRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	set, err := h.setService.CreateForSession(c.Request.Context(), sessionID, &req)
	if err != nil {
		failStore(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"question_set": set})
}

// RenameQuestionSet godoc
// PUT /api/v1/admin/question-sets/:id
func (h *QuestionHandler) RenameQuestionSet(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}

	var req model.UpdateQuestionSetRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	set, err := h.setService.Rename(c.Request.Context(), id, &req)
	if err != nil {
		failStore(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question_set": set})
}

// UnlinkQuestionSet godoc
// DELETE /api/v1/admin/sessions/:id/question-sets/:set_id
// Removes the set from the session and deletes it once no session uses it.
func (h *QuestionHandler) UnlinkQuestionSet(c *gin.Context) {
	sessionID, ok := intParam(c, "id")
	if !ok {
		return
	}
	setID, ok := intParam(c, "set_id")
	if !ok {
		return
	}

	if err := h.setService.Unlink(c.Request.Context(), sessionID, setID); err != nil {
		failStore(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "question set removed"})
}

// LinkQuestion godoc
// POST /api/v1/admin/question-sets/:id/questions
func (h *QuestionHandler) LinkQuestion(c *gin.Context) {
	setID, ok := intParam(c, "id")
	if !ok {
		return
	}

	var req model.LinkQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.setService.LinkQuestion(c.Request.Context(), setID, req.QuestionID); err != nil {
		failStore(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"message": "question linked"})
}

// UnlinkQuestion godoc
// DELETE /api/v1/admin/question-sets/:id/questions/:question_id
func (h *QuestionHandler) UnlinkQuestion(c *gin.Context) {
	setID, ok := intParam(c, "id")
	if !ok {
		return
	}
	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.setService.UnlinkQuestion(c.Request.Context(), setID, questionID); err != nil {
		failStore(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "question unlinked"})
}

// ReplaceSetImage godoc
// POST /api/v1/admin/question-sets/:id/image
// Uploads a new image for the set and removes the previous file.
func (h *QuestionHandler) ReplaceSetImage(c *gin.Context) {
	setID, ok := intParam(c, "id")
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	url, err := h.setService.ReplaceImage(c.Request.Context(), setID, file, header)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedFileType):
			response.Fail(c, http.StatusBadRequest, response.ErrUnsupportedFile)
		case errors.Is(err, service.ErrFileTooLarge):
			response.Fail(c, http.StatusBadRequest, response.ErrFileTooLarge)
		default:
			failStore(c, err)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"image": url})
}
