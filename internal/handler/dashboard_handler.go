package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exlab-backend/internal/response"
	"github.com/stemsi/exlab-backend/internal/service"
)

// DashboardHandler handles admin dashboard and results endpoints.
type DashboardHandler struct {
	dashboardService *service.DashboardService
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(dashboardService *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboardService}
}

// GetDashboardData godoc
// GET /api/v1/admin/dashboard
// Returns headline counts and per-session aggregates.
func (h *DashboardHandler) GetDashboardData(c *gin.Context) {
	data, err := h.dashboardService.GetDashboardData(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, data)
}

// GetSessionResults godoc
// GET /api/v1/admin/results/:session_id
// Lists the submitted attempts of a session with their correct counts.
func (h *DashboardHandler) GetSessionResults(c *gin.Context) {
	sessionID, ok := intParam(c, "session_id")
	if !ok {
		return
	}

	results, err := h.dashboardService.Results(c.Request.Context(), sessionID)
	if err != nil {
		failStore(c, err)
		return
	}

	response.Success(c, http.StatusOK, results)
}
