package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/studybuddy/backend/internal/database"
	"github.com/studybuddy/backend/internal/models"
)

// Checker manages health checks for the backing services.
type Checker struct {
	dbManager  *database.Manager
	cache      *database.Cache
	healthRepo models.SystemHealthRepository
	logger     *logrus.Logger
	llmBaseURL string
}

func NewChecker(dbManager *database.Manager, healthRepo models.SystemHealthRepository, logger *logrus.Logger, llmBaseURL string) *Checker {
	return &Checker{
		dbManager:  dbManager,
		cache:      database.NewCache(dbManager.Redis, logger),
		healthRepo: healthRepo,
		logger:     logger,
		llmBaseURL: llmBaseURL,
	}
}

// ServiceHealth represents the health status of a service
type ServiceHealth struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	ResponseTime int    `json:"response_time_ms"`
	Error        string `json:"error,omitempty"`
	LastChecked  string `json:"last_checked"`
}

// OverallHealth represents the overall system health
type OverallHealth struct {
	Status   string          `json:"status"`
	Services []ServiceHealth `json:"services"`
	Uptime   string          `json:"uptime"`
}

// CheckPostgreSQL checks PostgreSQL database health
func (h *Checker) CheckPostgreSQL() ServiceHealth {
	start := time.Now()
	err := h.dbManager.PingDatabase()
	responseTime := int(time.Since(start).Milliseconds())

	status := "healthy"
	errorMsg := ""
	if err != nil {
		status = "unhealthy"
		errorMsg = err.Error()
		h.logger.WithError(err).Error("PostgreSQL health check failed")
	}

	h.healthRepo.UpdateServiceHealth("postgresql", status, responseTime, errorMsg)

	return ServiceHealth{
		Name:         "postgresql",
		Status:       status,
		ResponseTime: responseTime,
		Error:        errorMsg,
		LastChecked:  time.Now().Format(time.RFC3339),
	}
}

// CheckRedis checks Redis cache health
func (h *Checker) CheckRedis() ServiceHealth {
	start := time.Now()
	err := h.dbManager.PingRedis()
	responseTime := int(time.Since(start).Milliseconds())

	status := "healthy"
	errorMsg := ""
	if err != nil {
		status = "unhealthy"
		errorMsg = err.Error()
		h.logger.WithError(err).Error("Redis health check failed")
	}

	h.healthRepo.UpdateServiceHealth("redis", status, responseTime, errorMsg)

	return ServiceHealth{
		Name:         "redis",
		Status:       status,
		ResponseTime: responseTime,
		Error:        errorMsg,
		LastChecked:  time.Now().Format(time.RFC3339),
	}
}

// CheckLLMGateway checks the LLM gateway health endpoint
func (h *Checker) CheckLLMGateway() ServiceHealth {
	start := time.Now()

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(h.llmBaseURL + "/health")

	responseTime := int(time.Since(start).Milliseconds())
	status := "healthy"
	errorMsg := ""

	if err != nil {
		status = "unhealthy"
		errorMsg = err.Error()
	} else {
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			status = "unhealthy"
			errorMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
	}

	if status != "healthy" {
		h.logger.WithError(err).Error("LLM gateway health check failed")
	}

	h.healthRepo.UpdateServiceHealth("llm_gateway", status, responseTime, errorMsg)

	return ServiceHealth{
		Name:         "llm_gateway",
		Status:       status,
		ResponseTime: responseTime,
		Error:        errorMsg,
		LastChecked:  time.Now().Format(time.RFC3339),
	}
}

// CheckAll performs health checks on all services
func (h *Checker) CheckAll() OverallHealth {
	services := []ServiceHealth{
		h.CheckPostgreSQL(),
		h.CheckRedis(),
		h.CheckLLMGateway(),
	}

	overallStatus := "healthy"
	for _, service := range services {
		if service.Status == "unhealthy" {
			overallStatus = "unhealthy"
			break
		}
		if service.Status == "degraded" && overallStatus == "healthy" {
			overallStatus = "degraded"
		}
	}

	return OverallHealth{
		Status:   overallStatus,
		Services: services,
		Uptime:   h.getUptime(),
	}
}

// CheckCached returns cached health status if available
func (h *Checker) CheckCached(ctx context.Context) (*OverallHealth, error) {
	cachedHealth, err := h.cache.GetCachedSystemHealth(ctx)
	if err != nil {
		return nil, err
	}

	services := make([]ServiceHealth, len(cachedHealth))
	overallStatus := "healthy"

	for i, health := range cachedHealth {
		services[i] = ServiceHealth{
			Name:         health.ServiceName,
			Status:       health.Status,
			ResponseTime: health.ResponseTimeMs,
			Error:        health.ErrorMessage,
			LastChecked:  health.CheckedAt.Format(time.RFC3339),
		}

		if health.Status == "unhealthy" {
			overallStatus = "unhealthy"
		} else if health.Status == "degraded" && overallStatus == "healthy" {
			overallStatus = "degraded"
		}
	}

	return &OverallHealth{
		Status:   overallStatus,
		Services: services,
		Uptime:   h.getUptime(),
	}, nil
}

var startTime = time.Now()

func (h *Checker) getUptime() string {
	uptime := time.Since(startTime)
	return uptime.String()
}

// PeriodicHealthCheck runs health checks periodically
func (h *Checker) PeriodicHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			health := h.CheckAll()

			cacheCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			healthModels := make([]models.SystemHealth, len(health.Services))
			for i, service := range health.Services {
				checkedAt, _ := time.Parse(time.RFC3339, service.LastChecked)
				healthModels[i] = models.SystemHealth{
					ServiceName:    service.Name,
					Status:         service.Status,
					ResponseTimeMs: service.ResponseTime,
					ErrorMessage:   service.Error,
					CheckedAt:      checkedAt,
				}
			}

			if err := h.cache.CacheSystemHealth(cacheCtx, healthModels, 2*interval); err != nil {
				h.logger.WithError(err).Error("Failed to cache health status")
			}
			cancel()

			h.logger.WithField("status", health.Status).Debug("Periodic health check completed")
		}
	}
}
