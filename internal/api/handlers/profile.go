package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/studybuddy/backend/internal/middleware"
	"github.com/studybuddy/backend/internal/models"
	"github.com/studybuddy/backend/internal/personalization"
	"github.com/studybuddy/backend/pkg/utils"
)

type ProfileHandler struct {
	personalizer *personalization.Engine
	recognizer   *personalization.Recognizer
	logger       *logrus.Logger
}

func NewProfileHandler(personalizer *personalization.Engine, recognizer *personalization.Recognizer, logger *logrus.Logger) *ProfileHandler {
	return &ProfileHandler{
		personalizer: personalizer,
		recognizer:   recognizer,
		logger:       logger,
	}
}

// HandleGetProfile returns the caller's personalization profile
func (h *ProfileHandler) HandleGetProfile(c *gin.Context) {
	userID := c.Param("userId")
	if userID != middleware.UserID(c) {
		utils.ErrorResponse(c, http.StatusForbidden, "Profiles are private to their owner", nil)
		return
	}

	profile := h.personalizer.GetProfile(c.Request.Context(), userID)
	utils.SuccessResponse(c, http.StatusOK, "Profile retrieved", profile)
}

// HandleAnalyzePatterns runs pattern recognition over the caller's history
func (h *ProfileHandler) HandleAnalyzePatterns(c *gin.Context) {
	userID := c.Param("userId")
	if userID != middleware.UserID(c) {
		utils.ErrorResponse(c, http.StatusForbidden, "Patterns are private to their owner", nil)
		return
	}

	var req models.PatternRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	req.UserID = userID

	result, err := h.recognizer.Analyze(&req)
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid pattern request", err)
			return
		}
		h.logger.WithError(err).Error("Pattern analysis failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Pattern analysis failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Patterns analyzed", result)
}
