package orchestration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studybuddy/backend/internal/config"
	ctxpkg "github.com/studybuddy/backend/internal/context"
	"github.com/studybuddy/backend/internal/llm"
	"github.com/studybuddy/backend/internal/models"
	"github.com/studybuddy/backend/internal/personalization"
	"github.com/studybuddy/backend/internal/validation"
)

// Minimal repository stubs for end-to-end engine runs.

type nilMemoryRepo struct{}

func (nilMemoryRepo) Create(*models.Memory) error                  { return nil }
func (nilMemoryRepo) GetByID(string) (*models.Memory, error)       { return nil, models.ErrNotFound }
func (nilMemoryRepo) ListByUser(string, int) ([]models.Memory, error) { return nil, nil }
func (nilMemoryRepo) ListByUserSince(string, time.Time, int) ([]models.Memory, error) {
	return nil, nil
}
func (nilMemoryRepo) TouchAccess(string) error              { return nil }
func (nilMemoryRepo) UpdateRelevance(string, float64) error { return nil }
func (nilMemoryRepo) DeleteByUser(string) error             { return nil }

type nilKnowledgeRepo struct{}

func (nilKnowledgeRepo) Upsert(*models.KnowledgeSource) error { return nil }
func (nilKnowledgeRepo) GetByID(string) (*models.KnowledgeSource, error) {
	return nil, models.ErrNotFound
}
func (nilKnowledgeRepo) GetByTitle(string) (*models.KnowledgeSource, error) {
	return nil, models.ErrNotFound
}
func (nilKnowledgeRepo) ListActive() ([]models.KnowledgeSource, error) { return nil, nil }
func (nilKnowledgeRepo) ListBySubjects([]string) ([]models.KnowledgeSource, error) {
	return nil, nil
}

type nilInteractionRepo struct{}

func (nilInteractionRepo) Create(*models.Interaction) error { return nil }
func (nilInteractionRepo) GetByID(string) (*models.Interaction, error) {
	return nil, models.ErrNotFound
}
func (nilInteractionRepo) ListByUser(string, time.Time, int) ([]models.Interaction, error) {
	return nil, nil
}
func (nilInteractionRepo) ListBySession(string) ([]models.Interaction, error) { return nil, nil }
func (nilInteractionRepo) CountByUserBetween(string, time.Time, time.Time) (int64, error) {
	return 0, nil
}

type nilFeedbackRepo struct{}

func (nilFeedbackRepo) Create(*models.Feedback) error { return nil }
func (nilFeedbackRepo) ListByInteraction(string) ([]models.Feedback, error) { return nil, nil }
func (nilFeedbackRepo) ListByUserSince(string, time.Time) ([]models.Feedback, error) {
	return nil, nil
}
func (nilFeedbackRepo) ListByUserBetween(string, time.Time, time.Time) ([]models.Feedback, error) {
	return nil, nil
}
func (nilFeedbackRepo) ListRecent(int) ([]models.Feedback, error) { return nil, nil }

type nilProfileRepo struct{}

func (nilProfileRepo) GetByUser(string) (*models.PersonalizationProfile, error) {
	return nil, models.ErrNotFound
}
func (nilProfileRepo) Save(*models.PersonalizationProfile) error      { return nil }
func (nilProfileRepo) IncrementAdaptation(string, bool) error         { return nil }
func (nilProfileRepo) DeleteByUser(string) error                      { return nil }

func newTestEngine(t *testing.T, llmHandler http.HandlerFunc) *Engine {
	t.Helper()
	logger := logrus.New()

	server := httptest.NewServer(llmHandler)
	t.Cleanup(server.Close)

	client := llm.NewClient(server.URL, "test-key", 2*time.Second, logger)
	service := llm.NewService(client, "tutor-test", logger)

	ctxCfg := config.ContextConfig{
		DefaultTokenLimit:   2000,
		RecentWindow:        5,
		MinRelevance:        0.1,
		MaxMemoryResults:    10,
		MaxKnowledgeResults: 5,
		EscalationTurns:     3,
	}
	memStore := ctxpkg.NewMemoryStore(nilMemoryRepo{}, ctxCfg, logger)
	kb := ctxpkg.NewKnowledgeBase(nilKnowledgeRepo{}, nil, ctxCfg, logger)
	optimizer := ctxpkg.NewOptimizer(memStore, kb, nilInteractionRepo{}, ctxCfg, logger)

	validator := validation.NewValidator(kb, nilInteractionRepo{}, config.ValidationConfig{
		Threshold:           0.6,
		MaxProcessingTimeMs: 2000,
		ModelWeight:         0.3,
		FactCheckWeight:     0.4,
		StructureWeight:     0.3,
		MinReliability:      0.5,
	}, logger)

	personalizer := personalization.NewEngine(nilProfileRepo{}, nilFeedbackRepo{}, nilInteractionRepo{}, nil,
		config.PersonalizationConfig{
			BaseConfidence:    0.5,
			DataPointsWeight:  0.3,
			SuccessRateWeight: 0.2,
			EngagementFloor:   0.5,
		}, logger)

	deps := Deps{
		Optimizer:    optimizer,
		Validator:    validator,
		Personalizer: personalizer,
		LLM:          service,
		DBPing:       func(ctx context.Context) error { return nil },
	}

	return NewEngine(deps, config.OrchestrationConfig{
		HealthCheckTimeoutMs: 500,
		MaxRetries:           0,
		InitialDelayMs:       1,
		BackoffMultiplier:    2.0,
		LowLoadMs:            500,
		HighLoadMs:           2000,
		StageTimeoutMs:       5000,
	}, logger)
}

func TestOrchestrateHappyPath(t *testing.T) {
	engine := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":"Photosynthesis converts light into glucose.","model_used":"tutor-test","provider_used":"test","tokens_used":{"input":10,"output":20},"latency_ms":5}`))
	})

	resp := engine.Orchestrate(context.Background(), &models.ChatRequest{
		UserID:  "user-1",
		Message: "explain photosynthesis",
	})

	require.NotNil(t, resp)
	assert.Equal(t, "Photosynthesis converts light into glucose.", resp.Content)
	assert.False(t, resp.Degraded)
	assert.Equal(t, "conceptual", resp.Classification.Category)
	require.NotNil(t, resp.Orchestration)
	assert.Len(t, resp.Orchestration.Stages, 5)
	require.NotNil(t, resp.Personalization)
	assert.Nil(t, resp.Personalization.Profile)
}

func TestOrchestrateDegradesWhenLLMDown(t *testing.T) {
	engine := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	resp := engine.Orchestrate(context.Background(), &models.ChatRequest{
		UserID:  "user-1",
		Message: "explain photosynthesis",
	})

	require.NotNil(t, resp)
	assert.True(t, resp.Degraded)
	assert.NotEmpty(t, resp.Content)
	assert.Equal(t, "fallback", resp.ModelUsed)
}

func TestOrchestrateClassifiesGreeting(t *testing.T) {
	engine := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":"Hello! Ready to study?","model_used":"tutor-test"}`))
	})

	resp := engine.Orchestrate(context.Background(), &models.ChatRequest{
		UserID:  "user-1",
		Message: "hello",
	})

	assert.Equal(t, "greeting", resp.Classification.Category)
}

func TestCheckHealthReportsAllStages(t *testing.T) {
	engine := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	})

	snapshot := engine.CheckHealth(context.Background())

	assert.Len(t, snapshot, 5)
	for id, status := range snapshot {
		assert.True(t, status.Healthy, "stage %s should be healthy", id)
	}
}
