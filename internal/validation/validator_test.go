package validation

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studybuddy/backend/internal/config"
	ctxpkg "github.com/studybuddy/backend/internal/context"
	"github.com/studybuddy/backend/internal/models"
)

type stubKnowledgeRepo struct {
	sources []models.KnowledgeSource
}

func (s *stubKnowledgeRepo) Upsert(src *models.KnowledgeSource) error { return nil }
func (s *stubKnowledgeRepo) GetByID(id string) (*models.KnowledgeSource, error) {
	return nil, models.ErrNotFound
}
func (s *stubKnowledgeRepo) GetByTitle(title string) (*models.KnowledgeSource, error) {
	return nil, models.ErrNotFound
}
func (s *stubKnowledgeRepo) ListActive() ([]models.KnowledgeSource, error) {
	return s.sources, nil
}
func (s *stubKnowledgeRepo) ListBySubjects(subjects []string) ([]models.KnowledgeSource, error) {
	return s.sources, nil
}

type stubInteractionRepo struct {
	history []models.Interaction
	delay   time.Duration
}

func (s *stubInteractionRepo) Create(i *models.Interaction) error { return nil }
func (s *stubInteractionRepo) GetByID(id string) (*models.Interaction, error) {
	return nil, models.ErrNotFound
}
func (s *stubInteractionRepo) ListByUser(userID string, since time.Time, limit int) ([]models.Interaction, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.history, nil
}
func (s *stubInteractionRepo) ListBySession(sessionID string) ([]models.Interaction, error) {
	return nil, nil
}
func (s *stubInteractionRepo) CountByUserBetween(userID string, from, to time.Time) (int64, error) {
	return 0, nil
}

func testValidationConfig() config.ValidationConfig {
	return config.ValidationConfig{
		Threshold:           0.6,
		MaxProcessingTimeMs: 3000,
		ModelWeight:         0.3,
		FactCheckWeight:     0.4,
		StructureWeight:     0.3,
		MinReliability:      0.5,
	}
}

func newTestValidator(know *stubKnowledgeRepo, inter *stubInteractionRepo, cfg config.ValidationConfig) *Validator {
	logger := logrus.New()
	kb := ctxpkg.NewKnowledgeBase(know, nil, config.ContextConfig{
		MinRelevance:        0.1,
		MaxKnowledgeResults: 5,
	}, logger)
	return NewValidator(kb, inter, cfg, logger)
}

func TestValidateSupportedResponsePasses(t *testing.T) {
	know := &stubKnowledgeRepo{sources: []models.KnowledgeSource{
		{BaseModel: models.BaseModel{ID: "k1"}, Title: "Photosynthesis",
			Content:          "Photosynthesis is the process plants use to convert light energy into glucose in chloroplasts.",
			ReliabilityScore: 0.9, IsActive: true},
	}}
	v := newTestValidator(know, &stubInteractionRepo{}, testValidationConfig())

	response := "Photosynthesis is the process where plants convert light energy into glucose.\n" +
		"For example: chloroplasts capture light and drive the reaction."

	result := v.Validate(context.Background(), "user-1", response, 0.9)

	require.NotNil(t, result)
	assert.True(t, result.IsValid)
	assert.GreaterOrEqual(t, result.ValidationScore, 0.6)
	assert.Greater(t, result.FactCheck.ClaimsChecked, 0)
}

func TestValidateContradictionVetoesValidity(t *testing.T) {
	inter := &stubInteractionRepo{history: []models.Interaction{
		{UserID: "user-1", Query: "is water a compound",
			Response: "Water is not a compound made of hydrogen and oxygen atoms bonded together."},
	}}
	know := &stubKnowledgeRepo{sources: []models.KnowledgeSource{
		{BaseModel: models.BaseModel{ID: "k1"}, Title: "Water",
			Content:          "Water is a compound made of hydrogen and oxygen atoms bonded together.",
			ReliabilityScore: 0.9, IsActive: true},
	}}
	v := newTestValidator(know, inter, testValidationConfig())

	response := "Water is a compound made of hydrogen and oxygen atoms bonded together in molecules."

	result := v.Validate(context.Background(), "user-1", response, 0.95)

	assert.True(t, result.ContradictionAnalysis.Found)
	assert.True(t, result.HasCriticalIssue())
	assert.False(t, result.IsValid)
}

func TestValidateTimeoutMarksInvalid(t *testing.T) {
	cfg := testValidationConfig()
	cfg.MaxProcessingTimeMs = 10

	inter := &stubInteractionRepo{delay: 200 * time.Millisecond}
	v := newTestValidator(&stubKnowledgeRepo{}, inter, cfg)

	result := v.Validate(context.Background(), "user-1",
		"Mitochondria are the powerhouse of the cell and produce ATP through respiration.", 0.9)

	require.NotNil(t, result)
	assert.False(t, result.IsValid)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, models.SeverityTimeout, result.Issues[0].Severity)
}

func TestValidateUnsupportedClaimsLowerScore(t *testing.T) {
	v := newTestValidator(&stubKnowledgeRepo{}, &stubInteractionRepo{}, testValidationConfig())

	response := "The moon is made of basalt rock formations. " +
		"Lunar gravity is one sixth of terrestrial gravity in all regions."

	result := v.Validate(context.Background(), "user-1", response, 0.9)

	assert.Greater(t, result.FactCheck.ClaimsChecked, 0)
	assert.Equal(t, 0, result.FactCheck.ClaimsPassed)
	assert.Less(t, result.ValidationScore, 0.7)
}

func TestExtractClaimsSkipsHedgesAndQuestions(t *testing.T) {
	text := "Maybe the answer is forty two. " +
		"Is gravity a force? " +
		"Gravity is the attraction between masses in the universe. " +
		"I think it depends on context."

	claims := extractClaims(text, 8)

	require.Len(t, claims, 1)
	assert.Contains(t, claims[0], "Gravity is the attraction")
}
