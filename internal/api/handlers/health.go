package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/studybuddy/backend/internal/health"
	"github.com/studybuddy/backend/internal/models"
	"github.com/studybuddy/backend/internal/orchestration"
)

type HealthHandler struct {
	checker *health.Checker
	engine  *orchestration.Engine
	logger  *logrus.Logger
}

func NewHealthHandler(checker *health.Checker, engine *orchestration.Engine, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		checker: checker,
		engine:  engine,
		logger:  logger,
	}
}

// HandleHealth is the basic liveness probe
func (h *HealthHandler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:    "healthy",
		Service:   "studybuddy-backend",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// HandleDetailedHealth reports dependency and pipeline stage health. Cached
// results are preferred so the probe does not hammer dependencies.
func (h *HealthHandler) HandleDetailedHealth(c *gin.Context) {
	overall, err := h.checker.CheckCached(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Debug("Cached health unavailable, running live checks")
		live := h.checker.CheckAll()
		overall = &live
	}

	statusCode := http.StatusOK
	if overall.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":   overall.Status,
		"service":  "studybuddy-backend",
		"uptime":   overall.Uptime,
		"services": overall.Services,
		"stages":   h.engine.StageHealth(),
	})
}
