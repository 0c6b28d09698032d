package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/studybuddy/backend/internal/middleware"
	"github.com/studybuddy/backend/internal/models"
	"github.com/studybuddy/backend/internal/repository"
	"github.com/studybuddy/backend/internal/services"
	"github.com/studybuddy/backend/pkg/utils"
)

const maxMessageLength = 4000

type ChatHandler struct {
	chatService *services.ChatService
	repos       *repository.RepositoryManager
	logger      *logrus.Logger
}

func NewChatHandler(chatService *services.ChatService, repos *repository.RepositoryManager, logger *logrus.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		repos:       repos,
		logger:      logger,
	}
}

// HandleChat processes one chat turn
func (h *ChatHandler) HandleChat(c *gin.Context) {
	req, ok := h.bindChatRequest(c)
	if !ok {
		return
	}

	h.logger.WithFields(logrus.Fields{
		"user_id":         req.UserID,
		"conversation_id": req.ConversationID,
		"session_id":      req.SessionID,
	}).Info("Processing chat request")

	response, err := h.chatService.ProcessChatTurn(c.Request.Context(), req)
	if err != nil {
		h.respondChatError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Chat turn completed", response)
}

// HandleChatStream processes a chat turn and delivers it over SSE
func (h *ChatHandler) HandleChatStream(c *gin.Context) {
	req, ok := h.bindChatRequest(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, canFlush := c.Writer.(http.Flusher)

	emit := func(event models.StreamEvent) error {
		payload, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if _, err := c.Writer.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
			return err
		}
		if canFlush {
			flusher.Flush()
		}
		return nil
	}

	if err := h.chatService.StreamChatTurn(c.Request.Context(), req, emit); err != nil {
		h.logger.WithError(err).WithField("user_id", req.UserID).Warn("Streaming chat turn failed")
	}
}

func (h *ChatHandler) bindChatRequest(c *gin.Context) (*models.ChatRequest, bool) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Invalid chat request")
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return nil, false
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Message cannot be empty", nil)
		return nil, false
	}
	if len(req.Message) > maxMessageLength {
		utils.ErrorResponse(c, http.StatusBadRequest, "Message too long (max 4000 characters)", nil)
		return nil, false
	}

	req.UserID = middleware.UserID(c)
	return &req, true
}

func (h *ChatHandler) respondChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		utils.ErrorResponse(c, http.StatusForbidden, "Conversation belongs to another user", nil)
	case errors.Is(err, models.ErrNotFound):
		utils.ErrorResponse(c, http.StatusNotFound, "Conversation not found", nil)
	case errors.Is(err, models.ErrInvalidInput):
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request", err)
	case errors.Is(err, models.ErrUpstreamUnavailable):
		utils.RetryableErrorResponse(c, http.StatusServiceUnavailable, "Tutoring backend unavailable", 30, err)
	default:
		h.logger.WithError(err).Error("Chat turn failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Chat turn failed", err)
	}
}

// HandleListConversations returns the user's conversations
func (h *ChatHandler) HandleListConversations(c *gin.Context) {
	conversations, err := h.repos.Conversation.ListByUser(middleware.UserID(c), 50)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list conversations", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Conversations retrieved", conversations)
}

// HandleGetMessages returns the messages of one conversation
func (h *ChatHandler) HandleGetMessages(c *gin.Context) {
	conversationID := c.Param("conversationId")

	conversation, err := h.repos.Conversation.GetByID(conversationID)
	if err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Conversation not found", nil)
		return
	}
	if conversation.UserID != middleware.UserID(c) {
		utils.ErrorResponse(c, http.StatusForbidden, "Conversation belongs to another user", nil)
		return
	}

	messages, err := h.repos.Message.ListByConversation(conversationID, 200)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to load messages", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Messages retrieved", messages)
}
