package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stemsi/exlab-backend/internal/engine"
	"github.com/stemsi/exlab-backend/internal/response"
	"github.com/stemsi/exlab-backend/internal/service"
)

// flowStatus maps participant flow errors to an HTTP status and code.
// Unknown errors map to 500.
func flowStatus(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrInvalidSession):
		return http.StatusBadRequest, response.ErrInvalidSession
	case errors.Is(err, service.ErrRunNotStarted):
		return http.StatusNotFound, response.ErrRunNotStarted
	case errors.Is(err, service.ErrSessionNotStarted):
		return http.StatusConflict, response.ErrSessionNotStarted
	case errors.Is(err, service.ErrSessionFinished), errors.Is(err, engine.ErrFinished):
		return http.StatusConflict, response.ErrSessionFinished
	case errors.Is(err, service.ErrSessionNotFinished):
		return http.StatusConflict, response.ErrSessionNotFinished
	case errors.Is(err, engine.ErrSubmitInProgress):
		return http.StatusConflict, response.ErrSubmitInProgress
	case errors.Is(err, engine.ErrPopupNotVisible):
		return http.StatusConflict, response.ErrPopupNotVisible
	case errors.Is(err, engine.ErrUnknownQuestion), errors.Is(err, engine.ErrInvalidAnswer):
		return http.StatusBadRequest, response.ErrInvalidAnswer
	case errors.Is(err, service.ErrNoEvaluation):
		return http.StatusNotFound, response.ErrNoEvaluation
	case errors.Is(err, service.ErrNoResult):
		return http.StatusNotFound, response.ErrNoResult
	case errors.Is(err, pgx.ErrNoRows):
		return http.StatusNotFound, response.ErrNotFound
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

func failFlow(c *gin.Context, err error) {
	status, code := flowStatus(err)
	response.Fail(c, status, code)
}

// failStore maps repository errors of admin CRUD endpoints.
func failStore(c *gin.Context, err error) {
	if errors.Is(err, pgx.ErrNoRows) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			response.Fail(c, http.StatusConflict, response.ErrConflict)
			return
		case "23503": // foreign_key_violation
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
	}
	response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
}

// sessionParam parses the :id path parameter of participant routes.
// Anything that is not a positive integer is an invalid session.
func sessionParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidSession)
		return 0, false
	}
	return id, true
}

// intParam parses a numeric admin path parameter.
func intParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}
