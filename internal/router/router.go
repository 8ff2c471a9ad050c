package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exlab-backend/internal/config"
	"github.com/stemsi/exlab-backend/internal/handler"
	"github.com/stemsi/exlab-backend/internal/middleware"
	"github.com/stemsi/exlab-backend/internal/response"
	"github.com/stemsi/exlab-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth        *handler.AuthHandler
	Participant *handler.ParticipantHandler
	WS          *handler.WSHandler
	Session     *handler.SessionHandler
	Question    *handler.QuestionHandler
	Evaluation  *handler.EvaluationHandler
	Media       *handler.MediaHandler
	Dashboard   *handler.DashboardHandler
	System      *handler.SystemHandler
}

// Limiters are the per-IP rate limiters of the public write routes.
type Limiters struct {
	Auth   *middleware.RateLimiter
	Start  *middleware.RateLimiter
	Upload *middleware.RateLimiter
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	limiters *Limiters,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())

	// Uploaded images are already compressed, and SSE must not be buffered.
	brotliConfig := middleware.DefaultBrotliConfig
	brotliConfig.SkipPrefixes = []string{"/uploads", "/api/v1/admin/system"}
	router.Use(middleware.BrotliWithConfig(brotliConfig))

	// Upload names are random, so files never change once written.
	uploadsGroup := router.Group("/uploads")
	uploadsGroup.Use(middleware.CacheControl(31536000))
	{
		uploadsGroup.Static("/", cfg.UploadDir)
	}

	router.GET("/healthz", handlers.System.Health)

	// ─── 0. Public upload (CORS, Rate Limited) ─────────────────────────
	router.POST("/api/upload", limiters.Upload.Middleware(), handlers.Media.PublicUpload)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/admin/login", limiters.Auth.Middleware(), handlers.Auth.AdminLogin)
		auth.GET("/admin/me", middleware.RequireAdminJWT(authService), handlers.Auth.GetAdminProfile)
	}

	// ─── 2. Participant Group (JWT + active run) ────────────────────────
	participant := router.Group("/api/v1/participant")
	participant.Use(middleware.NoStore())
	{
		participant.POST("/start", limiters.Start.Middleware(), handlers.Participant.StartRun)

		run := participant.Group("")
		run.Use(
			middleware.RequireParticipantJWT(authService),
			middleware.CheckActiveRun(authService),
		)
		{
			run.GET("/order", handlers.Participant.GetOrder)
			run.GET("/result", handlers.Participant.GetResult)
			run.DELETE("/progress", handlers.Participant.ResetProgress)

			run.GET("/sessions/:id", handlers.Participant.GetSession)
			run.POST("/sessions/:id/start", handlers.Participant.StartSession)
			run.PUT("/sessions/:id/answers", handlers.Participant.SaveAnswer)
			run.POST("/sessions/:id/popups/:popup_id/reaction", handlers.Participant.React)
			run.POST("/sessions/:id/submit", handlers.Participant.SubmitSession)

			run.GET("/sessions/:id/break", handlers.Participant.GetBreak)
			run.PUT("/sessions/:id/evaluation/selection", handlers.Participant.SaveSelection)
			run.POST("/sessions/:id/evaluation", handlers.Participant.SubmitEvaluation)
		}
	}

	// ─── 3. WebSocket Group (Participant WS Auth) ──────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireParticipantWSAuth(authService),
		middleware.CheckActiveRun(authService),
	)
	{
		ws.GET("/participant/sessions/:id/stream", handlers.WS.SessionStream)
	}

	// ─── 4. Admin Group (JWT) ──────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.POST("/media/upload", handlers.Media.UploadMedia)

		adminAPI.GET("/dashboard", handlers.Dashboard.GetDashboardData)
		adminAPI.GET("/results/:session_id", handlers.Dashboard.GetSessionResults)
		adminAPI.GET("/system/metrics", handlers.System.SystemMetricsSSE)

		// Sessions and popups
		adminAPI.GET("/sessions", handlers.Session.ListSessions)
		adminAPI.POST("/sessions", handlers.Session.CreateSession)
		adminAPI.GET("/sessions/:id", handlers.Session.GetSession)
		adminAPI.PUT("/sessions/:id", handlers.Session.UpdateSession)
		adminAPI.DELETE("/sessions/:id", handlers.Session.DeleteSession)
		adminAPI.GET("/sessions/:id/popups", handlers.Session.ListPopups)
		adminAPI.POST("/sessions/:id/popups", handlers.Session.CreatePopup)
		adminAPI.PUT("/popups/:id", handlers.Session.UpdatePopup)
		adminAPI.DELETE("/popups/:id", handlers.Session.DeletePopup)

		// Questions and question sets
		adminAPI.GET("/questions", handlers.Question.ListQuestions)
		adminAPI.POST("/questions", handlers.Question.CreateQuestion)
		adminAPI.PUT("/questions/:id", handlers.Question.UpdateQuestion)
		adminAPI.DELETE("/questions/:id", handlers.Question.DeleteQuestion)
		adminAPI.POST("/sessions/:id/question-sets", handlers.Question.CreateQuestionSet)
		adminAPI.DELETE("/sessions/:id/question-sets/:set_id", handlers.Question.UnlinkQuestionSet)
		adminAPI.PUT("/question-sets/:id", handlers.Question.RenameQuestionSet)
		adminAPI.POST("/question-sets/:id/questions", handlers.Question.LinkQuestion)
		adminAPI.DELETE("/question-sets/:id/questions/:question_id", handlers.Question.UnlinkQuestion)
		adminAPI.POST("/question-sets/:id/image", handlers.Question.ReplaceSetImage)

		// Evaluation forms
		evaluations := adminAPI.Group("/evaluations")
		{
			evaluations.GET("", handlers.Evaluation.ListEvaluations)
			evaluations.POST("", handlers.Evaluation.CreateEvaluation)
			evaluations.PUT("/:id", handlers.Evaluation.ReplaceEvaluation)
			evaluations.DELETE("/:id", handlers.Evaluation.DeleteEvaluation)
		}
	}

	return router
}
