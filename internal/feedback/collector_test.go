package feedback

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studybuddy/backend/internal/config"
	"github.com/studybuddy/backend/internal/models"
)

type memFeedbackRepo struct {
	records []models.Feedback
	failAll bool
}

func (m *memFeedbackRepo) Create(f *models.Feedback) error {
	if m.failAll {
		return errors.New("connection refused")
	}
	m.records = append(m.records, *f)
	return nil
}
func (m *memFeedbackRepo) ListByInteraction(interactionID string) ([]models.Feedback, error) {
	return nil, nil
}
func (m *memFeedbackRepo) ListByUserSince(userID string, since time.Time) ([]models.Feedback, error) {
	if m.failAll {
		return nil, errors.New("connection refused")
	}
	var out []models.Feedback
	for _, r := range m.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}
func (m *memFeedbackRepo) ListByUserBetween(userID string, from, to time.Time) ([]models.Feedback, error) {
	return m.ListByUserSince(userID, from)
}
func (m *memFeedbackRepo) ListRecent(limit int) ([]models.Feedback, error) { return m.records, nil }

type memInteractionRepo struct {
	known map[string]bool
}

func (m *memInteractionRepo) Create(i *models.Interaction) error { return nil }
func (m *memInteractionRepo) GetByID(id string) (*models.Interaction, error) {
	if m.known[id] {
		return &models.Interaction{BaseModel: models.BaseModel{ID: id}}, nil
	}
	return nil, models.ErrNotFound
}
func (m *memInteractionRepo) ListByUser(userID string, since time.Time, limit int) ([]models.Interaction, error) {
	return nil, nil
}
func (m *memInteractionRepo) ListBySession(sessionID string) ([]models.Interaction, error) {
	return nil, nil
}
func (m *memInteractionRepo) CountByUserBetween(userID string, from, to time.Time) (int64, error) {
	return 0, nil
}

func testFeedbackConfig() config.FeedbackConfig {
	return config.FeedbackConfig{
		CorrectionPenalty:  0.05,
		AbandonmentCeiling: 0.3,
		CategoryThreshold:  3,
		LookbackDays:       30,
	}
}

func newTestCollector() (*Collector, *memFeedbackRepo) {
	repo := &memFeedbackRepo{}
	inter := &memInteractionRepo{known: map[string]bool{"int-1": true}}
	return NewCollector(repo, inter, testFeedbackConfig(), logrus.New()), repo
}

func explicitRequest(rating int, corrections ...string) *models.FeedbackRequest {
	return &models.FeedbackRequest{
		UserID:        "user-1",
		InteractionID: "int-1",
		Source:        "explicit",
		Explicit:      &models.ExplicitFeedbackPayload{Rating: rating, Corrections: corrections},
	}
}

func TestCollectExplicitScoresFromRating(t *testing.T) {
	collector, _ := newTestCollector()

	record, err := collector.CollectFeedback(explicitRequest(5))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, record.QualityScore, 0.001)

	record, err = collector.CollectFeedback(explicitRequest(3))
	require.NoError(t, err)
	assert.InDelta(t, 0.6, record.QualityScore, 0.001)
}

func TestCollectExplicitCorrectionsLowerScore(t *testing.T) {
	collector, _ := newTestCollector()

	clean, err := collector.CollectFeedback(explicitRequest(4))
	require.NoError(t, err)

	corrected, err := collector.CollectFeedback(explicitRequest(4, "the formula was wrong", "the date was off"))
	require.NoError(t, err)

	assert.Less(t, corrected.QualityScore, clean.QualityScore)
	assert.InDelta(t, 0.7, corrected.QualityScore, 0.001)
}

func TestCollectRejectsMissingPayload(t *testing.T) {
	collector, _ := newTestCollector()

	_, err := collector.CollectFeedback(&models.FeedbackRequest{
		UserID:        "user-1",
		InteractionID: "int-1",
		Source:        "explicit",
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = collector.CollectFeedback(&models.FeedbackRequest{
		UserID:        "user-1",
		InteractionID: "int-1",
		Source:        "implicit",
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestCollectRejectsUnknownInteraction(t *testing.T) {
	collector, _ := newTestCollector()

	req := explicitRequest(4)
	req.InteractionID = "missing"
	_, err := collector.CollectFeedback(req)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestImplicitAbandonmentCapsQuality(t *testing.T) {
	collector, _ := newTestCollector()

	// Strong engagement signals everywhere, but the user walked away.
	record, err := collector.CollectFeedback(&models.FeedbackRequest{
		UserID:        "user-1",
		InteractionID: "int-1",
		Source:        "implicit",
		Implicit: &models.ImplicitFeedbackPayload{
			TimeSpentMs:       120000,
			ScrollDepth:       1.0,
			FollowUpQuestions: 1,
			Abandoned:         true,
		},
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, record.QualityScore, 0.3)
}

func TestImplicitEngagementRaisesQuality(t *testing.T) {
	collector, _ := newTestCollector()

	engaged, err := collector.CollectFeedback(&models.FeedbackRequest{
		UserID:        "user-1",
		InteractionID: "int-1",
		Source:        "implicit",
		Implicit: &models.ImplicitFeedbackPayload{
			TimeSpentMs: 90000,
			ScrollDepth: 0.9,
		},
	})
	require.NoError(t, err)

	disengaged, err := collector.CollectFeedback(&models.FeedbackRequest{
		UserID:        "user-1",
		InteractionID: "int-1",
		Source:        "implicit",
		Implicit:      &models.ImplicitFeedbackPayload{},
	})
	require.NoError(t, err)

	assert.Greater(t, engaged.QualityScore, disengaged.QualityScore)
}

func TestCollectImplicitNeverPanicsOrErrors(t *testing.T) {
	repo := &memFeedbackRepo{failAll: true}
	inter := &memInteractionRepo{known: map[string]bool{"int-1": true}}
	collector := NewCollector(repo, inter, testFeedbackConfig(), logrus.New())

	collector.CollectImplicit("user-1", "", "int-1", &models.ImplicitFeedbackPayload{Abandoned: true})
	collector.CollectImplicit("user-1", "", "", &models.ImplicitFeedbackPayload{})
	collector.CollectImplicit("user-1", "", "int-1", nil)
}

func TestAnalyzeFeedbackPatternsEmptyWindow(t *testing.T) {
	collector, _ := newTestCollector()

	summary, err := collector.AnalyzeFeedbackPatterns("user-1", 7)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalFeedback)
	assert.Equal(t, models.TrendStable, summary.QualityTrend)
}

func TestAnalyzeFeedbackPatternsAggregates(t *testing.T) {
	collector, _ := newTestCollector()

	for i := 0; i < 3; i++ {
		_, err := collector.CollectFeedback(explicitRequest(5))
		require.NoError(t, err)
	}
	_, err := collector.CollectFeedback(&models.FeedbackRequest{
		UserID:        "user-1",
		InteractionID: "int-1",
		Source:        "implicit",
		Implicit:      &models.ImplicitFeedbackPayload{Abandoned: true},
	})
	require.NoError(t, err)

	summary, err := collector.AnalyzeFeedbackPatterns("user-1", 7)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.TotalFeedback)
	assert.Equal(t, 3, summary.BySource["explicit"])
	assert.Equal(t, 1, summary.BySource["implicit"])
	assert.InDelta(t, 0.25, summary.AbandonmentRate, 0.001)
	assert.InDelta(t, 5.0, summary.AvgRating, 0.001)
}
