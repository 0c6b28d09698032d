package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/studybuddy/backend/internal/feedback"
	"github.com/studybuddy/backend/internal/middleware"
	"github.com/studybuddy/backend/internal/models"
	"github.com/studybuddy/backend/internal/monitor"
	"github.com/studybuddy/backend/pkg/utils"
)

type FeedbackHandler struct {
	collector      *feedback.Collector
	learningEngine *feedback.Engine
	sessionMonitor *monitor.Monitor
	logger         *logrus.Logger
}

func NewFeedbackHandler(collector *feedback.Collector, learningEngine *feedback.Engine, sessionMonitor *monitor.Monitor, logger *logrus.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		collector:      collector,
		learningEngine: learningEngine,
		sessionMonitor: sessionMonitor,
		logger:         logger,
	}
}

// quickFeedbackRequest is the lightweight rating-only payload.
type quickFeedbackRequest struct {
	InteractionID string `json:"interaction_id" binding:"required"`
	SessionID     string `json:"session_id"`
	Rating        int    `json:"rating" binding:"required"`
}

// HandleQuickFeedback accepts a bare rating
func (h *FeedbackHandler) HandleQuickFeedback(c *gin.Context) {
	var req quickFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	record, err := h.collector.CollectFeedback(&models.FeedbackRequest{
		UserID:        middleware.UserID(c),
		SessionID:     req.SessionID,
		InteractionID: req.InteractionID,
		Source:        "explicit",
		Explicit:      &models.ExplicitFeedbackPayload{Rating: req.Rating},
	})
	if err != nil {
		h.respondFeedbackError(c, err)
		return
	}

	h.recordSatisfaction(req.SessionID, record.QualityScore)
	utils.SuccessResponse(c, http.StatusCreated, "Feedback recorded", record)
}

// HandleFullFeedback accepts the complete feedback payload
func (h *FeedbackHandler) HandleFullFeedback(c *gin.Context) {
	var req models.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	req.UserID = middleware.UserID(c)

	record, err := h.collector.CollectFeedback(&req)
	if err != nil {
		h.respondFeedbackError(c, err)
		return
	}

	h.recordSatisfaction(req.SessionID, record.QualityScore)
	utils.SuccessResponse(c, http.StatusCreated, "Feedback recorded", record)
}

// implicitFeedbackRequest wraps behavioral signals for the async path.
type implicitFeedbackRequest struct {
	InteractionID string                         `json:"interaction_id" binding:"required"`
	SessionID     string                         `json:"session_id"`
	Signals       models.ImplicitFeedbackPayload `json:"signals"`
}

// HandleImplicitFeedback ingests behavioral signals without blocking the client
func (h *FeedbackHandler) HandleImplicitFeedback(c *gin.Context) {
	var req implicitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	userID := middleware.UserID(c)
	signals := req.Signals
	go h.collector.CollectImplicit(userID, req.SessionID, req.InteractionID, &signals)

	utils.SuccessResponse(c, http.StatusAccepted, "Signals accepted", nil)
}

// HandleFeedbackPatterns summarizes the user's recent feedback
func (h *FeedbackHandler) HandleFeedbackPatterns(c *gin.Context) {
	summary, err := h.collector.AnalyzeFeedbackPatterns(middleware.UserID(c), 0)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to analyze feedback", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Feedback patterns", summary)
}

// HandleLearning triggers a learning cycle
func (h *FeedbackHandler) HandleLearning(c *gin.Context) {
	var req models.LearningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	req.UserID = middleware.UserID(c)

	result, err := h.learningEngine.ProcessLearning(&req)
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid learning request", err)
			return
		}
		utils.ErrorResponse(c, http.StatusInternalServerError, "Learning cycle failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Learning cycle completed", result)
}

func (h *FeedbackHandler) recordSatisfaction(sessionID string, quality float64) {
	if sessionID == "" || h.sessionMonitor == nil {
		return
	}
	if err := h.sessionMonitor.RecordSatisfaction(sessionID, quality); err != nil {
		h.logger.WithError(err).WithField("session_id", sessionID).Debug("Satisfaction not recorded")
	}
}

func (h *FeedbackHandler) respondFeedbackError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		utils.ErrorResponse(c, http.StatusNotFound, "Interaction not found", nil)
	case errors.Is(err, models.ErrInvalidInput):
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid feedback", err)
	default:
		h.logger.WithError(err).Error("Feedback collection failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to record feedback", err)
	}
}
