package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exlab-backend/internal/config"
	"github.com/stemsi/exlab-backend/internal/middleware"
	"github.com/stemsi/exlab-backend/internal/model"
	"github.com/stemsi/exlab-backend/internal/response"
	"github.com/stemsi/exlab-backend/internal/service"
	"github.com/stemsi/exlab-backend/internal/validator"
)

// AuthHandler handles admin authentication endpoints.
type AuthHandler struct {
	cfg         *config.Config
	authService *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(cfg *config.Config, authService *service.AuthService) *AuthHandler {
	return &AuthHandler{cfg: cfg, authService: authService}
}

// AdminLogin godoc
// POST /api/v1/auth/admin/login
// Checks the shared admin secret and returns an admin token.
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req model.AdminLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.authService.CheckAdminSecret(req.Secret); err != nil {
		if errors.Is(err, service.ErrAdminDisabled) {
			response.Fail(c, http.StatusServiceUnavailable, response.ErrAdminDisabled)
			return
		}
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	token, err := h.authService.GenerateAdminToken()
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, model.AdminLoginResponse{
		Token:     token,
		ExpiresIn: int64(h.cfg.JWTExpiry.Seconds()),
	})
}

// GetAdminProfile godoc
// GET /api/v1/auth/admin/me
// Reports whether the admin token is still valid and when it expires.
func (h *AuthHandler) GetAdminProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	data := gin.H{"token_type": claims.TokenType}
	if claims.ExpiresAt != nil {
		data["expires_at"] = claims.ExpiresAt.Time
	}
	response.Success(c, http.StatusOK, data)
}
