package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/studybuddy/backend/internal/models"
)

// Service wraps the gateway client with the fallback behavior the chat flow
// relies on: a generation failure produces a clearly-marked stub response,
// never an error that would fail the whole request.
type Service struct {
	client *Client
	model  string
	logger *logrus.Logger
}

func NewService(client *Client, model string, logger *logrus.Logger) *Service {
	return &Service{
		client: client,
		model:  model,
		logger: logger,
	}
}

const fallbackContent = "I couldn't reach the tutoring model just now. " +
	"Here is what I can say: please retry in a moment, your question has not been lost."

// Generate produces a response for the prompt plus assembled context. The
// second return value reports whether the stub fallback was substituted.
func (s *Service) Generate(ctx context.Context, prompt, contextText string, preferences map[string]interface{}) (*GenerateResponse, bool) {
	start := time.Now()

	req := GenerateRequest{
		Model:       s.model,
		Prompt:      prompt,
		Context:     contextText,
		Preferences: preferences,
	}

	resp, err := s.client.GenerateWithRetry(ctx, req)
	if err != nil {
		s.logger.WithError(err).WithField("model", s.model).Warn("LLM generation failed, substituting fallback response")
		return &GenerateResponse{
			Content:      fallbackContent,
			ModelUsed:    "fallback",
			ProviderUsed: "none",
			LatencyMs:    time.Since(start).Milliseconds(),
		}, true
	}

	if resp.LatencyMs == 0 {
		resp.LatencyMs = time.Since(start).Milliseconds()
	}

	return resp, false
}

// Ping checks gateway reachability for health monitoring.
func (s *Service) Ping(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		status, err := s.client.Health()
		if err != nil {
			done <- err
			return
		}
		if status.Status != "healthy" && status.Status != "ok" {
			done <- fmt.Errorf("gateway reported status %q: %w", status.Status, models.ErrUpstreamUnavailable)
			return
		}
		done <- nil
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
