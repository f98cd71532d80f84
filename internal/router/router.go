package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/medsim/clerksim-backend/internal/config"
	"github.com/medsim/clerksim-backend/internal/handler"
	"github.com/medsim/clerksim-backend/internal/middleware"
	"github.com/medsim/clerksim-backend/internal/response"
	"github.com/medsim/clerksim-backend/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth *handler.AuthHandler
	Case *handler.CaseHandler
	OSCE *handler.OSCEHandler
	WS   *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	tokenService *service.ContextTokenService,
	sessionService *service.SessionService,
	contextCache *service.PrimaryContextCache,
	handlers *Handlers,
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
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// HTTP metrics for every route.
	router.Use(middleware.Metrics())

	// Health check and Prometheus scrape endpoint.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// The full gate: outer identity plus a live case session.
	requireCaseSession := middleware.RequireCaseSession(tokenService, sessionService, contextCache)

	// ─── 1. Auth Group ─────────────────────────────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/login", handlers.Auth.Login)
		auth.POST("/logout", middleware.RequireAuth(authService), handlers.Auth.Logout)
		auth.GET("/me", middleware.RequireAuth(authService), handlers.Auth.Me)
	}

	// ─── 2. Case Group (JWT) ───────────────────────────────────────────
	cases := router.Group("/api/v1/cases")
	cases.Use(middleware.RequireAuth(authService))
	{
		cases.POST("", handlers.Case.Generate)
		cases.GET("/active", handlers.Case.ActiveCases)
		cases.POST("/resume", handlers.Case.Resume)
		cases.POST("/refresh-token", handlers.Case.RefreshToken)
		cases.GET("/:case_id/report", handlers.Case.Report)

		// Session-gated case routes.
		cases.POST("/ask", requireCaseSession, handlers.Case.AskPatient)
		cases.POST("/autosave", requireCaseSession, handlers.Case.Autosave)
		cases.POST("/complete", requireCaseSession, handlers.Case.Complete)
	}

	// ─── 3. OSCE Group (JWT + Case Session) ────────────────────────────
	osce := router.Group("/api/v1/osce")
	osce.Use(middleware.RequireAuth(authService), requireCaseSession)
	{
		osce.POST("/start", handlers.OSCE.Start)
		osce.GET("/history-questions", handlers.OSCE.HistoryQuestions)
		osce.GET("/follow-ups", handlers.OSCE.FollowUps)
		osce.POST("/follow-ups/answer", handlers.OSCE.AnswerFollowUp)
		osce.POST("/evaluate", handlers.OSCE.Evaluate)
		osce.GET("/evaluation", handlers.OSCE.Evaluation)
	}

	// ─── 4. WebSocket Group (WS Auth) ──────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/sessions/stream", handlers.WS.SessionStream)
	}

	return router
}
