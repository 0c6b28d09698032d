package context

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studybuddy/backend/internal/config"
	"github.com/studybuddy/backend/internal/models"
)

// Fakes

type fakeMemoryRepo struct {
	memories []models.Memory
	failList bool
	touched  []string
}

func (f *fakeMemoryRepo) Create(m *models.Memory) error { f.memories = append(f.memories, *m); return nil }
func (f *fakeMemoryRepo) GetByID(id string) (*models.Memory, error) {
	for i := range f.memories {
		if f.memories[i].ID == id {
			return &f.memories[i], nil
		}
	}
	return nil, models.ErrNotFound
}
func (f *fakeMemoryRepo) ListByUser(userID string, limit int) ([]models.Memory, error) {
	if f.failList {
		return nil, errors.New("connection refused")
	}
	var out []models.Memory
	for _, m := range f.memories {
		if m.UserID == userID {
			out = append(out, m)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
func (f *fakeMemoryRepo) ListByUserSince(userID string, since time.Time, limit int) ([]models.Memory, error) {
	return f.ListByUser(userID, limit)
}
func (f *fakeMemoryRepo) TouchAccess(id string) error { f.touched = append(f.touched, id); return nil }
func (f *fakeMemoryRepo) UpdateRelevance(id string, score float64) error { return nil }
func (f *fakeMemoryRepo) DeleteByUser(userID string) error               { return nil }

type fakeKnowledgeRepo struct {
	sources  []models.KnowledgeSource
	failList bool
}

func (f *fakeKnowledgeRepo) Upsert(s *models.KnowledgeSource) error { return nil }
func (f *fakeKnowledgeRepo) GetByID(id string) (*models.KnowledgeSource, error) {
	return nil, models.ErrNotFound
}
func (f *fakeKnowledgeRepo) GetByTitle(title string) (*models.KnowledgeSource, error) {
	return nil, models.ErrNotFound
}
func (f *fakeKnowledgeRepo) ListActive() ([]models.KnowledgeSource, error) {
	if f.failList {
		return nil, errors.New("connection refused")
	}
	return f.sources, nil
}
func (f *fakeKnowledgeRepo) ListBySubjects(subjects []string) ([]models.KnowledgeSource, error) {
	return f.ListActive()
}

type fakeInteractionRepo struct {
	count int64
}

func (f *fakeInteractionRepo) Create(i *models.Interaction) error { return nil }
func (f *fakeInteractionRepo) GetByID(id string) (*models.Interaction, error) {
	return nil, models.ErrNotFound
}
func (f *fakeInteractionRepo) ListByUser(userID string, since time.Time, limit int) ([]models.Interaction, error) {
	return nil, nil
}
func (f *fakeInteractionRepo) ListBySession(sessionID string) ([]models.Interaction, error) {
	return nil, nil
}
func (f *fakeInteractionRepo) CountByUserBetween(userID string, from, to time.Time) (int64, error) {
	return f.count, nil
}

func testContextConfig() config.ContextConfig {
	return config.ContextConfig{
		LightTokenLimit:     100,
		DefaultTokenLimit:   2000,
		RecentWindow:        5,
		MinRelevance:        0.1,
		MaxMemoryResults:    10,
		MaxKnowledgeResults: 5,
		EscalationTurns:     3,
	}
}

func newTestOptimizer(mem *fakeMemoryRepo, know *fakeKnowledgeRepo, inter *fakeInteractionRepo) *Optimizer {
	logger := logrus.New()
	cfg := testContextConfig()
	store := NewMemoryStore(mem, cfg, logger)
	kb := NewKnowledgeBase(know, nil, cfg, logger)
	return NewOptimizer(store, kb, inter, cfg, logger)
}

func TestBuildLightLevelForGreeting(t *testing.T) {
	opt := newTestOptimizer(&fakeMemoryRepo{}, &fakeKnowledgeRepo{}, &fakeInteractionRepo{})

	bundle := opt.Build(context.Background(), "user-1", "hi there",
		models.QueryClassification{Category: "greeting", Complexity: 0.1}, 0)

	require.NotNil(t, bundle)
	assert.Equal(t, models.CompressionLight, bundle.Level)
	assert.Empty(t, bundle.Text)
	assert.Empty(t, bundle.MemoryIDs)
	assert.Equal(t, 0, bundle.Tokens.Total)
}

func TestBuildDeepUnderstandingUsesFullLevel(t *testing.T) {
	mem := &fakeMemoryRepo{memories: []models.Memory{
		{BaseModel: models.BaseModel{ID: "m1"}, UserID: "user-1",
			Content: "derivatives measure instantaneous rate of change", RelevanceScore: 0.9},
	}}
	opt := newTestOptimizer(mem, &fakeKnowledgeRepo{}, &fakeInteractionRepo{})

	bundle := opt.Build(context.Background(), "user-1", "explain why derivatives measure rate of change",
		models.QueryClassification{Category: "deep_understanding", Complexity: 0.9}, 0)

	assert.Equal(t, models.CompressionFull, bundle.Level)
	assert.Contains(t, bundle.MemoryIDs, "m1")
}

func TestBuildEscalatesAfterManyTurns(t *testing.T) {
	opt := newTestOptimizer(&fakeMemoryRepo{}, &fakeKnowledgeRepo{}, &fakeInteractionRepo{count: 7})

	bundle := opt.Build(context.Background(), "user-1", "what is a cell",
		models.QueryClassification{Category: "factual", Complexity: 0.4}, 0)

	assert.Equal(t, models.CompressionSelective, bundle.Level)
}

func TestBuildNeverExceedsTokenLimit(t *testing.T) {
	longContent := strings.Repeat("photosynthesis light energy chloroplast glucose ", 10)
	mem := &fakeMemoryRepo{}
	for i := 0; i < 8; i++ {
		mem.memories = append(mem.memories, models.Memory{
			BaseModel:      models.BaseModel{ID: "m" + string(rune('a'+i))},
			UserID:         "user-1",
			Content:        longContent,
			RelevanceScore: 0.9,
		})
	}
	know := &fakeKnowledgeRepo{sources: []models.KnowledgeSource{
		{BaseModel: models.BaseModel{ID: "k1"}, Title: "Photosynthesis",
			Content: longContent, ReliabilityScore: 0.9, IsActive: true},
	}}
	opt := newTestOptimizer(mem, know, &fakeInteractionRepo{})

	const limit = 150
	bundle := opt.Build(context.Background(), "user-1", "explain photosynthesis light energy",
		models.QueryClassification{Category: "conceptual", Complexity: 0.8}, limit)

	assert.LessOrEqual(t, bundle.Tokens.Total, limit)
	assert.NotEmpty(t, bundle.Text)
}

func TestBuildExcludedItemsNotReportedAsIncluded(t *testing.T) {
	// Identical word distributions give identical similarity, so ordering
	// comes down to the stored relevance scores.
	small := "factoring quadratic equations"
	huge := strings.Repeat(small+" ", 30)
	mem := &fakeMemoryRepo{memories: []models.Memory{
		{BaseModel: models.BaseModel{ID: "m-small"}, UserID: "user-1",
			Content: small, RelevanceScore: 1.0},
		{BaseModel: models.BaseModel{ID: "m-huge"}, UserID: "user-1",
			Content: huge, RelevanceScore: 0.4},
	}}
	opt := newTestOptimizer(mem, &fakeKnowledgeRepo{}, &fakeInteractionRepo{})

	const limit = 60
	bundle := opt.Build(context.Background(), "user-1", "factoring quadratic equations",
		models.QueryClassification{Category: "conceptual", Complexity: 0.8}, limit)

	assert.Contains(t, bundle.MemoryIDs, "m-small")
	assert.NotContains(t, bundle.MemoryIDs, "m-huge")
	assert.NotContains(t, bundle.Text, huge)
	assert.LessOrEqual(t, bundle.Tokens.Total, limit)
}

func TestBuildSurvivesStorageFailure(t *testing.T) {
	opt := newTestOptimizer(&fakeMemoryRepo{failList: true}, &fakeKnowledgeRepo{failList: true}, &fakeInteractionRepo{})

	bundle := opt.Build(context.Background(), "user-1", "explain mitosis in detail",
		models.QueryClassification{Category: "conceptual", Complexity: 0.8}, 0)

	require.NotNil(t, bundle)
	assert.Empty(t, bundle.MemoryIDs)
	assert.Empty(t, bundle.KnowledgeIDs)
}

func TestBuildReportsMeanRelevance(t *testing.T) {
	mem := &fakeMemoryRepo{memories: []models.Memory{
		{BaseModel: models.BaseModel{ID: "m1"}, UserID: "user-1",
			Content: "algebra factoring quadratic equations practice", RelevanceScore: 1.0},
	}}
	opt := newTestOptimizer(mem, &fakeKnowledgeRepo{}, &fakeInteractionRepo{})

	bundle := opt.Build(context.Background(), "user-1", "factoring quadratic equations",
		models.QueryClassification{Category: "conceptual", Complexity: 0.7}, 0)

	require.NotEmpty(t, bundle.MemoryIDs)
	assert.Greater(t, bundle.RelevanceScore, 0.0)
	assert.LessOrEqual(t, bundle.RelevanceScore, 1.0)
}

func TestSearchMemoriesBreaksScoreTiesByRecency(t *testing.T) {
	// The repository lists memories newest first; equal scores must keep
	// that order.
	content := "balancing chemical equations"
	mem := &fakeMemoryRepo{memories: []models.Memory{
		{BaseModel: models.BaseModel{ID: "m-new"}, UserID: "user-1",
			Content: content, RelevanceScore: 0.5},
		{BaseModel: models.BaseModel{ID: "m-old"}, UserID: "user-1",
			Content: content, RelevanceScore: 0.5},
	}}
	store := NewMemoryStore(mem, testContextConfig(), logrus.New())

	results := store.SearchMemories("user-1", "balancing chemical equations", 2)

	require.Len(t, results, 2)
	assert.Equal(t, "m-new", results[0].Memory.ID)
	assert.Equal(t, "m-old", results[1].Memory.ID)
	assert.Equal(t, results[0].Score, results[1].Score)
}

func TestStoreInteractionClassifiesRetention(t *testing.T) {
	mem := &fakeMemoryRepo{}
	store := NewMemoryStore(mem, testContextConfig(), logrus.New())

	interaction := &models.Interaction{
		BaseModel: models.BaseModel{ID: "i1"},
		UserID:    "user-1",
		Query:     "what is osmosis",
		Response:  "osmosis is the movement of water across a membrane",
	}

	require.NoError(t, store.StoreInteraction(interaction, 0.9))
	require.Len(t, mem.memories, 1)
	assert.Equal(t, "long_term", mem.memories[0].Retention)

	require.NoError(t, store.StoreInteraction(interaction, 0.2))
	assert.Equal(t, "session", mem.memories[1].Retention)
}
