package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/studybuddy/backend/internal/middleware"
	"github.com/studybuddy/backend/internal/models"
	"github.com/studybuddy/backend/internal/monitor"
	"github.com/studybuddy/backend/internal/repository"
	"github.com/studybuddy/backend/pkg/utils"
)

type SessionHandler struct {
	sessionMonitor *monitor.Monitor
	repos          *repository.RepositoryManager
	logger         *logrus.Logger
}

func NewSessionHandler(sessionMonitor *monitor.Monitor, repos *repository.RepositoryManager, logger *logrus.Logger) *SessionHandler {
	return &SessionHandler{
		sessionMonitor: sessionMonitor,
		repos:          repos,
		logger:         logger,
	}
}

// HandleStartSession opens a monitored study session
func (h *SessionHandler) HandleStartSession(c *gin.Context) {
	var req models.SessionStartRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if req.SessionID == "" {
		req.SessionID = utils.NewID()
	}

	session, err := h.sessionMonitor.StartSession(middleware.UserID(c), req.SessionID)
	if err != nil {
		h.respondSessionError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Session started", session)
}

// HandlePauseSession pauses an active session
func (h *SessionHandler) HandlePauseSession(c *gin.Context) {
	h.transition(c, h.sessionMonitor.PauseSession, "Session paused")
}

// HandleResumeSession resumes a paused session
func (h *SessionHandler) HandleResumeSession(c *gin.Context) {
	h.transition(c, h.sessionMonitor.ResumeSession, "Session resumed")
}

// HandleEndSession completes a session and persists its record
func (h *SessionHandler) HandleEndSession(c *gin.Context) {
	h.transition(c, h.sessionMonitor.EndSession, "Session ended")
}

// HandleGetSession returns the live state of a session
func (h *SessionHandler) HandleGetSession(c *gin.Context) {
	sessionID := c.Param("sessionId")

	session, err := h.sessionMonitor.Get(sessionID)
	if err == nil {
		if session.UserID != middleware.UserID(c) {
			utils.ErrorResponse(c, http.StatusForbidden, "Session belongs to another user", nil)
			return
		}
		utils.SuccessResponse(c, http.StatusOK, "Session retrieved", session)
		return
	}

	// Fall back to the persisted record for completed sessions.
	record, recErr := h.repos.SessionRecord.GetBySessionID(sessionID)
	if recErr != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Session not found", nil)
		return
	}
	if record.UserID != middleware.UserID(c) {
		utils.ErrorResponse(c, http.StatusForbidden, "Session belongs to another user", nil)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Session retrieved", record)
}

// HandleSessionHealth reports the live health classification of a session
func (h *SessionHandler) HandleSessionHealth(c *gin.Context) {
	status, err := h.sessionMonitor.CheckSessionHealth(c.Param("sessionId"))
	if err != nil {
		h.respondSessionError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Session health", status)
}

// HandleListSessions returns the user's completed session records
func (h *SessionHandler) HandleListSessions(c *gin.Context) {
	records, err := h.repos.SessionRecord.ListByUser(middleware.UserID(c), 50)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list sessions", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Sessions retrieved", records)
}

func (h *SessionHandler) transition(c *gin.Context, fn func(string) error, message string) {
	sessionID := c.Param("sessionId")

	if session, err := h.sessionMonitor.Get(sessionID); err == nil && session.UserID != middleware.UserID(c) {
		utils.ErrorResponse(c, http.StatusForbidden, "Session belongs to another user", nil)
		return
	}

	if err := fn(sessionID); err != nil {
		h.respondSessionError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, message, gin.H{"session_id": sessionID})
}

func (h *SessionHandler) respondSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrSessionTerminal):
		utils.ErrorResponse(c, http.StatusConflict, "Session already completed", nil)
	case errors.Is(err, models.ErrNotFound):
		utils.ErrorResponse(c, http.StatusNotFound, "Session not found", nil)
	case errors.Is(err, models.ErrInvalidInput):
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid session request", err)
	default:
		h.logger.WithError(err).Error("Session operation failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Session operation failed", err)
	}
}
