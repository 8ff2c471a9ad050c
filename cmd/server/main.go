package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exlab-backend/internal/config"
	"github.com/stemsi/exlab-backend/internal/database"
	"github.com/stemsi/exlab-backend/internal/handler"
	"github.com/stemsi/exlab-backend/internal/logger"
	"github.com/stemsi/exlab-backend/internal/middleware"
	"github.com/stemsi/exlab-backend/internal/repository"
	"github.com/stemsi/exlab-backend/internal/router"
	"github.com/stemsi/exlab-backend/internal/service"
	"github.com/stemsi/exlab-backend/internal/store"
	"github.com/stemsi/exlab-backend/internal/validator"
	"github.com/stemsi/exlab-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup("exlab-server", cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Ints("sessions", cfg.SessionIDs).
		Msg("Starting ExLab Backend")

	if cfg.AdminSecretHash == "" {
		log.Warn().Msg("ADMIN_SECRET_HASH is empty, admin login is disabled")
	}

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	clock := clockwork.NewRealClock()

	// ─── Initialize Repositories ───────────────────────────────────────
	sessionRepo := repository.NewSessionRepository(pool)
	popupRepo := repository.NewPopupRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	setRepo := repository.NewQuestionSetRepository(pool)
	evaluationRepo := repository.NewEvaluationRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	dashboardRepo := repository.NewDashboardRepository(pool)

	// ─── Initialize Redis Stores ───────────────────────────────────────
	attemptStore := store.NewAttemptStore(rdb, cfg.ProgressTTL)
	orderStore := store.NewOrderStore(rdb, cfg.ProgressTTL)
	progressStore := store.NewProgressStore(rdb, cfg.ProgressTTL)
	reactionQueue := worker.NewReactionQueue(rdb)

	// ─── Initialize Services ──────────────────────────────────────────
	registry := service.NewRuntimeRegistry()
	authService := service.NewAuthService(cfg, rdb)
	mediaService := service.NewMediaService(cfg)
	sessionService := service.NewSessionService(sessionRepo, popupRepo, setRepo)
	popupService := service.NewPopupService(popupRepo, sessionRepo)
	questionService := service.NewQuestionService(questionRepo)
	setService := service.NewQuestionSetService(setRepo, sessionRepo, questionRepo, mediaService, log)
	evaluationService := service.NewEvaluationService(evaluationRepo)
	dashboardService := service.NewDashboardService(dashboardRepo, attemptRepo, sessionRepo, registry)
	attemptService := service.NewAttemptService(cfg, clock, registry,
		attemptStore, progressStore, attemptRepo, sessionService, reactionQueue, log)
	breakService := service.NewBreakService(cfg, clock, registry,
		attemptStore, progressStore, orderStore, evaluationRepo, sessionRepo, attemptRepo, log)
	participantService := service.NewParticipantService(cfg, clock, registry,
		authService, orderStore, progressStore, attemptStore, sessionService, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:        handler.NewAuthHandler(cfg, authService),
		Participant: handler.NewParticipantHandler(participantService, attemptService, breakService),
		WS:          handler.NewWSHandler(attemptService, log, cfg.AllowedOrigins),
		Session:     handler.NewSessionHandler(sessionService, popupService),
		Question:    handler.NewQuestionHandler(questionService, setService),
		Evaluation:  handler.NewEvaluationHandler(evaluationService),
		Media:       handler.NewMediaHandler(mediaService),
		Dashboard:   handler.NewDashboardHandler(dashboardService),
		System:      handler.NewSystemHandler(pool, rdb, registry, clock, log),
	}

	limiters := &router.Limiters{
		Auth:   middleware.NewRateLimiter(clock, cfg.AuthRatePerMinute, time.Minute),
		Start:  middleware.NewRateLimiter(clock, 4*cfg.AuthRatePerMinute, time.Minute),
		Upload: middleware.NewRateLimiter(clock, 4*cfg.AuthRatePerMinute, time.Minute),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	reactionWorker := worker.NewReactionWorker(attemptRepo, rdb, clock, log)
	workers.Add(1)
	go func() {
		defer workers.Done()
		reactionWorker.Start(workerCtx)
	}()
	for _, l := range []*middleware.RateLimiter{limiters.Auth, limiters.Start, limiters.Upload} {
		go l.RunCleanup(workerCtx)
	}

	// ─── Warm the question cache ──────────────────────────────────────
	if _, err := questionService.List(ctx, false); err != nil {
		log.Warn().Err(err).Msg("Question cache warmup failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, limiters, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop every session and break timer. Their state stays in Redis,
	// so the next process resumes them by wall clock.
	registry.Close()

	// 3. Stop background workers and wait for the queue buffer to flush.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
