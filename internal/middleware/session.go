package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exlab-backend/internal/response"
	"github.com/stemsi/exlab-backend/internal/service"
)

// CheckActiveRun rejects participant tokens whose run is no longer the
// user's active one, because the participant started a new test or reset.
func CheckActiveRun(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if claims.TokenType != service.TokenTypeParticipant {
			c.Next()
			return
		}

		err := authService.ValidateActiveRun(c.Request.Context(), claims.UserID, claims.RunID)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, service.ErrRunNotStarted), errors.Is(err, service.ErrRunInvalidated):
			response.AbortFail(c, http.StatusUnauthorized, response.ErrRunInvalidated)
		default:
			_ = c.Error(err)
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
		}
	}
}
