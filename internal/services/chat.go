package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	ctxpkg "github.com/studybuddy/backend/internal/context"
	"github.com/studybuddy/backend/internal/models"
	"github.com/studybuddy/backend/internal/monitor"
	"github.com/studybuddy/backend/internal/orchestration"
	"github.com/studybuddy/backend/internal/personalization"
	"github.com/studybuddy/backend/internal/repository"
)

// ChatService runs one chat turn: ownership checks, pipeline execution,
// persistence and the monitoring side effects. The pipeline itself never
// fails; errors out of this service are storage or authorization problems.
type ChatService struct {
	repos        *repository.RepositoryManager
	engine       *orchestration.Engine
	memories     *ctxpkg.MemoryStore
	personalizer *personalization.Engine
	monitor      *monitor.Monitor
	metrics      *monitor.Metrics
	logger       *logrus.Logger
}

func NewChatService(repos *repository.RepositoryManager, engine *orchestration.Engine, memories *ctxpkg.MemoryStore, personalizer *personalization.Engine, sessionMonitor *monitor.Monitor, metrics *monitor.Metrics, logger *logrus.Logger) *ChatService {
	return &ChatService{
		repos:        repos,
		engine:       engine,
		memories:     memories,
		personalizer: personalizer,
		monitor:      sessionMonitor,
		metrics:      metrics,
		logger:       logger,
	}
}

// ProcessChatTurn handles one request/response exchange.
func (s *ChatService) ProcessChatTurn(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	start := time.Now()

	conversation, err := s.resolveConversation(req)
	if err != nil {
		return nil, err
	}
	req.ConversationID = conversation.ID

	userMsg := &models.Message{
		ConversationID: conversation.ID,
		Role:           "user",
		Content:        req.Message,
	}
	if err := s.repos.Message.Create(userMsg); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	response := s.engine.Orchestrate(ctx, req)
	response.ConversationID = conversation.ID

	assistantMsg := &models.Message{
		ConversationID:  conversation.ID,
		Role:            "assistant",
		Content:         response.Content,
		ModelUsed:       response.ModelUsed,
		ProviderUsed:    response.ProviderUsed,
		InputTokens:     response.TokensUsed.Input,
		OutputTokens:    response.TokensUsed.Output,
		LatencyMs:       response.LatencyMs,
		ContextIncluded: response.Classification.Category != "greeting",
	}
	if err := s.repos.Message.Create(assistantMsg); err != nil {
		s.logger.WithError(err).Warn("Failed to persist assistant message")
	}

	if err := s.repos.Conversation.IncrementCounters(conversation.ID, 2, response.TokensUsed.Total); err != nil {
		s.logger.WithError(err).Warn("Failed to update conversation counters")
	}

	accuracy, engagement := estimateScores(response)

	interaction := &models.Interaction{
		UserID:             req.UserID,
		SessionID:          req.SessionID,
		ConversationID:     conversation.ID,
		Query:              req.Message,
		Response:           response.Content,
		ResponseTimeMs:     time.Since(start).Milliseconds(),
		AccuracyEstimate:   accuracy,
		EngagementEstimate: engagement,
	}
	if err := s.repos.Interaction.Create(interaction); err != nil {
		s.logger.WithError(err).Warn("Failed to persist interaction")
	} else {
		response.InteractionID = interaction.ID
		if err := s.memories.StoreInteraction(interaction, accuracy); err != nil {
			s.logger.WithError(err).Debug("Memory write-through failed")
		}
	}

	if err := s.personalizer.UpdateProfile(ctx, req.UserID, accuracy, engagement); err != nil {
		s.logger.WithError(err).Debug("Profile update failed")
	}

	s.recordSideEffects(req, response, time.Since(start))

	response.LatencyMs = time.Since(start).Milliseconds()
	return response, nil
}

// StreamChatTurn runs the same turn but delivers the result as a stream of
// events. The terminal event is always "end", even after an error.
func (s *ChatService) StreamChatTurn(ctx context.Context, req *models.ChatRequest, emit func(models.StreamEvent) error) error {
	defer func() {
		if err := emit(models.StreamEvent{Type: "end"}); err != nil {
			s.logger.WithError(err).Debug("Failed to emit end event")
		}
	}()

	if err := emit(models.StreamEvent{Type: "start", Data: map[string]interface{}{
		"session_id": req.SessionID,
	}}); err != nil {
		return err
	}

	response, err := s.ProcessChatTurn(ctx, req)
	if err != nil {
		if emitErr := emit(models.StreamEvent{Type: "error", Data: err.Error()}); emitErr != nil {
			return emitErr
		}
		return err
	}

	for _, chunk := range splitChunks(response.Content, 80) {
		if err := emit(models.StreamEvent{Type: "content", Data: chunk}); err != nil {
			return err
		}
	}

	meta := *response
	meta.Content = ""
	return emit(models.StreamEvent{Type: "metadata", Data: meta})
}

func (s *ChatService) resolveConversation(req *models.ChatRequest) (*models.Conversation, error) {
	if req.ConversationID != "" {
		conversation, err := s.repos.Conversation.GetByID(req.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("conversation %s: %w", req.ConversationID, models.ErrNotFound)
		}
		if conversation.UserID != req.UserID {
			return nil, fmt.Errorf("conversation belongs to another user: %w", models.ErrUnauthorized)
		}
		return conversation, nil
	}

	chatType := req.ChatType
	if chatType == "" {
		chatType = "study"
	}
	conversation := &models.Conversation{
		UserID:   req.UserID,
		Title:    deriveTitle(req.Message),
		ChatType: chatType,
	}
	if err := s.repos.Conversation.Create(conversation); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conversation, nil
}

func (s *ChatService) recordSideEffects(req *models.ChatRequest, response *models.ChatResponse, elapsed time.Duration) {
	if s.metrics != nil {
		strategy := "unknown"
		if response.Orchestration != nil {
			strategy = string(response.Orchestration.Strategy)
		}
		s.metrics.ChatTurns.WithLabelValues(strategy).Inc()
		s.metrics.ChatLatency.Observe(elapsed.Seconds())
		if response.Degraded {
			s.metrics.DegradedTurns.Inc()
		}
		if response.Validation != nil && !response.Validation.IsValid {
			s.metrics.ValidationFailures.Inc()
		}
	}

	if s.monitor != nil && req.SessionID != "" {
		accuracy, engagement := estimateScores(response)
		topic := response.Classification.Subject
		if err := s.monitor.RecordTurn(req.SessionID, response.LatencyMs, accuracy, engagement, response.Degraded, topic); err != nil {
			s.logger.WithError(err).WithField("session_id", req.SessionID).Debug("Session turn not recorded")
		}
	}
}

// estimateScores derives accuracy and engagement estimates for the turn from
// what the pipeline reported.
func estimateScores(response *models.ChatResponse) (float64, float64) {
	accuracy := 0.5
	if response.Validation != nil {
		accuracy = response.Validation.ValidationScore
	}
	if response.Degraded {
		accuracy *= 0.6
	}

	engagement := 0.5
	if response.Personalization != nil {
		engagement = response.Personalization.Confidence
	}

	return accuracy, engagement
}

func deriveTitle(message string) string {
	title := strings.TrimSpace(message)
	if len(title) > 60 {
		title = title[:60] + "..."
	}
	if title == "" {
		title = "New study session"
	}
	return title
}

func splitChunks(text string, size int) []string {
	if text == "" {
		return nil
	}
	var chunks []string
	for len(text) > size {
		cut := size
		// Prefer breaking on a space near the boundary.
		if idx := strings.LastIndex(text[:size], " "); idx > size/2 {
			cut = idx + 1
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	chunks = append(chunks, text)
	return chunks
}
