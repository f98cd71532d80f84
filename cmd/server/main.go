package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/medsim/clerksim-backend/internal/config"
	"github.com/medsim/clerksim-backend/internal/database"
	"github.com/medsim/clerksim-backend/internal/generator"
	"github.com/medsim/clerksim-backend/internal/handler"
	"github.com/medsim/clerksim-backend/internal/logger"
	"github.com/medsim/clerksim-backend/internal/repository"
	"github.com/medsim/clerksim-backend/internal/router"
	"github.com/medsim/clerksim-backend/internal/secondary"
	"github.com/medsim/clerksim-backend/internal/service"
	"github.com/medsim/clerksim-backend/internal/validator"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ClerkSim Backend")

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

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	caseRepo := repository.NewCaseRepository(pool)
	sessionRepo := repository.NewCaseSessionRepository(pool)
	reportRepo := repository.NewCaseReportRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	gen := generator.NewHTTPClient(cfg.GeneratorBaseURL)
	scratch := secondary.NewRedisStore(rdb, cfg.SecondaryContextTTL)

	authService := service.NewAuthService(cfg, userRepo)
	sessionService := service.NewSessionService(sessionRepo, log)
	tokenService := service.NewContextTokenService(cfg.ContextTokenSecret)
	contextCache := service.NewPrimaryContextCache(rdb, caseRepo, sessionService, cfg.SessionTTL, cfg.OSCESessionTTL, log)
	osceService := service.NewOSCEService(rdb, gen, cfg.OSCESessionTTL, log)
	caseService := service.NewCaseService(
		caseRepo, reportRepo,
		sessionService, contextCache, tokenService, osceService,
		gen, scratch, cfg, log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth: handler.NewAuthHandler(authService, cfg.CookieSecure),
		Case: handler.NewCaseHandler(caseService, cfg),
		OSCE: handler.NewOSCEHandler(osceService, caseService),
		WS:   handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, tokenService, sessionService, contextCache, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
