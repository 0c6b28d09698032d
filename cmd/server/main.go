package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/studybuddy/backend/internal/api/handlers"
	"github.com/studybuddy/backend/internal/config"
	ctxpkg "github.com/studybuddy/backend/internal/context"
	"github.com/studybuddy/backend/internal/database"
	"github.com/studybuddy/backend/internal/feedback"
	"github.com/studybuddy/backend/internal/health"
	"github.com/studybuddy/backend/internal/llm"
	"github.com/studybuddy/backend/internal/middleware"
	"github.com/studybuddy/backend/internal/migration"
	"github.com/studybuddy/backend/internal/monitor"
	"github.com/studybuddy/backend/internal/orchestration"
	"github.com/studybuddy/backend/internal/personalization"
	"github.com/studybuddy/backend/internal/repository"
	"github.com/studybuddy/backend/internal/services"
	"github.com/studybuddy/backend/internal/validation"
	"github.com/studybuddy/backend/pkg/utils"
)

func main() {
	// Missing .env is fine; production sets env vars directly.
	_ = godotenv.Load()

	utils.InitLogger()
	logger := utils.GetLogger()

	logger.Info("Starting Study Buddy backend...")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.ValidateLLM(); err != nil {
		logger.WithError(err).Fatal("LLM configuration validation failed")
	}

	dbConfig := &database.Config{
		DatabaseURL: cfg.Database.URL,
		RedisURL:    cfg.Redis.URL,
		LogLevel:    os.Getenv("LOG_LEVEL"),
	}

	dbManager, err := database.NewManager(dbConfig, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database manager")
	}
	defer dbManager.Close()

	migrationRunner := migration.NewRunner(dbManager, logger)
	if err := migrationRunner.RunMigrations("migrations"); err != nil {
		logger.WithError(err).Fatal("Database migrations failed")
	}

	repos := repository.NewRepositoryManager(dbManager.DB)
	cache := database.NewCache(dbManager.Redis, logger)

	// Pipeline components.
	llmClient := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, time.Duration(cfg.LLM.TimeoutSeconds)*time.Second, logger)
	llmService := llm.NewService(llmClient, cfg.LLM.Model, logger)

	memoryStore := ctxpkg.NewMemoryStore(repos.Memory, cfg.Context, logger)
	knowledgeBase := ctxpkg.NewKnowledgeBase(repos.Knowledge, cache, cfg.Context, logger)
	optimizer := ctxpkg.NewOptimizer(memoryStore, knowledgeBase, repos.Interaction, cfg.Context, logger)

	validator := validation.NewValidator(knowledgeBase, repos.Interaction, cfg.Validation, logger)

	feedbackCollector := feedback.NewCollector(repos.Feedback, repos.Interaction, cfg.Feedback, logger)
	learningEngine := feedback.NewEngine(repos.Feedback, repos.Interaction, cfg.Feedback, logger)

	personalizer := personalization.NewEngine(repos.Profile, repos.Feedback, repos.Interaction, cache, cfg.Personalization, logger)
	recognizer := personalization.NewRecognizer(repos.Interaction, repos.Feedback, cfg.Patterns, logger)

	engine := orchestration.NewEngine(orchestration.Deps{
		Optimizer:    optimizer,
		Validator:    validator,
		Personalizer: personalizer,
		LLM:          llmService,
		DBPing: func(ctx context.Context) error {
			return dbManager.PingDatabase()
		},
	}, cfg.Orchestration, logger)

	registry := prometheus.NewRegistry()
	metrics := monitor.NewMetrics(registry)
	sessionMonitor := monitor.New(monitor.NewMemoryStore(), repos.SessionRecord, metrics, cfg.Monitor, logger)
	sessionMonitor.SetProviderHealthSource(func() map[string]bool {
		stages := engine.StageHealth()
		healthy := make(map[string]bool, len(stages))
		for id, status := range stages {
			healthy[id] = status.Healthy
		}
		return healthy
	})

	healthChecker := health.NewChecker(dbManager, repos.SystemHealth, logger, cfg.LLM.BaseURL)

	chatService := services.NewChatService(repos, engine, memoryStore, personalizer, sessionMonitor, metrics, logger)

	// Background loops.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go engine.RunHealthLoop(ctx, 30*time.Second)
	go healthChecker.PeriodicHealthCheck(ctx, 30*time.Second)
	go sessionMonitor.Run(ctx)
	go drainAlerts(ctx, sessionMonitor)

	router := setupRouter(cfg, chatService, repos, feedbackCollector, learningEngine, personalizer, recognizer, sessionMonitor, healthChecker, engine, registry)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, draining connections...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}

	logger.Info("Server stopped")
}

func setupRouter(
	cfg *config.Config,
	chatService *services.ChatService,
	repos *repository.RepositoryManager,
	feedbackCollector *feedback.Collector,
	learningEngine *feedback.Engine,
	personalizer *personalization.Engine,
	recognizer *personalization.Recognizer,
	sessionMonitor *monitor.Monitor,
	healthChecker *health.Checker,
	engine *orchestration.Engine,
	registry *prometheus.Registry,
) *gin.Engine {
	logger := utils.GetLogger()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.SecurityHeaders())

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute)
	router.Use(rateLimiter.RateLimit())

	chatHandler := handlers.NewChatHandler(chatService, repos, logger)
	feedbackHandler := handlers.NewFeedbackHandler(feedbackCollector, learningEngine, sessionMonitor, logger)
	sessionHandler := handlers.NewSessionHandler(sessionMonitor, repos, logger)
	profileHandler := handlers.NewProfileHandler(personalizer, recognizer, logger)
	healthHandler := handlers.NewHealthHandler(healthChecker, engine, logger)

	router.GET("/health", healthHandler.HandleHealth)
	router.GET("/health/detailed", healthHandler.HandleDetailedHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	api.Use(middleware.RequireUser())
	{
		api.POST("/chat", chatHandler.HandleChat)
		api.POST("/chat/stream", chatHandler.HandleChatStream)
		api.GET("/conversations", chatHandler.HandleListConversations)
		api.GET("/conversations/:conversationId/messages", chatHandler.HandleGetMessages)

		api.POST("/feedback", feedbackHandler.HandleQuickFeedback)
		api.POST("/feedback/full", feedbackHandler.HandleFullFeedback)
		api.POST("/feedback/implicit", feedbackHandler.HandleImplicitFeedback)
		api.GET("/feedback/patterns", feedbackHandler.HandleFeedbackPatterns)
		api.POST("/learning", feedbackHandler.HandleLearning)

		api.POST("/sessions", sessionHandler.HandleStartSession)
		api.GET("/sessions", sessionHandler.HandleListSessions)
		api.GET("/sessions/:sessionId", sessionHandler.HandleGetSession)
		api.GET("/sessions/:sessionId/health", sessionHandler.HandleSessionHealth)
		api.POST("/sessions/:sessionId/pause", sessionHandler.HandlePauseSession)
		api.POST("/sessions/:sessionId/resume", sessionHandler.HandleResumeSession)
		api.POST("/sessions/:sessionId/end", sessionHandler.HandleEndSession)

		api.GET("/profile/:userId", profileHandler.HandleGetProfile)
		api.GET("/patterns/:userId", profileHandler.HandleAnalyzePatterns)
	}

	return router
}

// drainAlerts logs monitor alerts so the buffered channel never fills.
func drainAlerts(ctx context.Context, m *monitor.Monitor) {
	logger := utils.GetLogger()
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-m.Alerts():
			logger.WithFields(logrus.Fields{
				"session_id": alert.SessionID,
				"type":       alert.Type,
				"severity":   alert.Severity,
				"value":      alert.Value,
				"threshold":  alert.Threshold,
			}).Warn(alert.Message)
		}
	}
}
