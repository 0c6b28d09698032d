package personalization

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/studybuddy/backend/internal/config"
	"github.com/studybuddy/backend/internal/database"
	"github.com/studybuddy/backend/internal/models"
	"github.com/studybuddy/backend/pkg/utils"
)

const profileCacheTTL = 5 * time.Minute

// Engine adapts response delivery to the user's learning profile. A missing
// profile is replaced by the neutral default; profile storage failures
// degrade to the default rather than failing the request.
type Engine struct {
	profiles     models.ProfileRepository
	feedback     models.FeedbackRepository
	interactions models.InteractionRepository
	cache        *database.Cache
	cfg          config.PersonalizationConfig
	logger       *logrus.Logger
}

func NewEngine(profiles models.ProfileRepository, feedback models.FeedbackRepository, interactions models.InteractionRepository, cache *database.Cache, cfg config.PersonalizationConfig, logger *logrus.Logger) *Engine {
	return &Engine{
		profiles:     profiles,
		feedback:     feedback,
		interactions: interactions,
		cache:        cache,
		cfg:          cfg,
		logger:       logger,
	}
}

// defaultProfile is what a brand-new user looks like.
func defaultProfile(userID string) *models.PersonalizationProfile {
	return &models.PersonalizationProfile{
		UserID:            userID,
		LearningStyle:     "reading_writing",
		StyleStrength:     0.5,
		Preferences:       models.JSONMap{},
		PerformanceStats:  models.JSONMap{},
		EffectivePatterns: models.JSONMap{},
		AdaptationLog:     models.JSONMap{},
	}
}

// GetProfile loads the user's profile, creating the default on first use.
func (e *Engine) GetProfile(ctx context.Context, userID string) *models.PersonalizationProfile {
	if e.cache != nil {
		if cached, err := e.cache.GetCachedProfile(ctx, userID); err == nil {
			return cached
		}
	}

	profile, err := e.profiles.GetByUser(userID)
	if err != nil {
		profile = defaultProfile(userID)
		if saveErr := e.profiles.Save(profile); saveErr != nil {
			e.logger.WithError(saveErr).WithField("user_id", userID).Warn("Failed to persist default profile, using transient copy")
		}
	}

	if e.cache != nil {
		if err := e.cache.CacheProfile(ctx, userID, profile, profileCacheTTL); err != nil {
			e.logger.WithError(err).Debug("Failed to cache profile")
		}
	}

	return profile
}

// Personalize computes delivery adjustments for the current interaction and
// records any adaptation applied. Re-running for the same interaction is a
// no-op; the adaptation log is keyed by interaction ID.
func (e *Engine) Personalize(ctx context.Context, userID, interactionID string, sessionQuality float64) *models.PersonalizationResult {
	profile := e.GetProfile(ctx, userID)

	result := &models.PersonalizationResult{
		Profile: profile,
		Format:  formatForStyle(profile.LearningStyle),
		Style:   styleForStrength(profile.StyleStrength),
		Pace:    "steady",
		Status:  models.LearningCompleted,
	}

	dataPoints := e.countDataPoints(userID)
	successRate := profileSuccessRate(profile)
	result.Confidence = utils.Clamp01(
		e.cfg.BaseConfidence +
			e.cfg.DataPointsWeight*saturate(dataPoints, 10) +
			e.cfg.SuccessRateWeight*successRate)

	if interactionID != "" && e.alreadyAdapted(profile, interactionID) {
		return result
	}

	var adaptations []models.Adaptation
	// Simplify when this session underperforms the user's own rolling
	// baseline; a new user has no baseline to fall below.
	if baseline, ok := statValue(profile.PerformanceStats, "rolling_accuracy"); ok &&
		sessionQuality > 0 && sessionQuality < baseline {
		adaptations = append(adaptations, models.Adaptation{
			Type:          "simplify",
			Reason:        "session quality below the user's rolling average, reducing complexity",
			InteractionID: interactionID,
			Parameters:    models.JSONMap{"complexity_delta": -0.2},
		})
		result.Pace = "slower"
	}
	if engagement := e.recentEngagement(userID); engagement > 0 && engagement < e.cfg.EngagementFloor {
		adaptations = append(adaptations, models.Adaptation{
			Type:          "engagement_boost",
			Reason:        "engagement below floor, adding examples and prompts",
			InteractionID: interactionID,
			Parameters:    models.JSONMap{"examples": true, "check_in_questions": true},
		})
	}

	result.Adaptations = adaptations
	if len(adaptations) == 0 {
		return result
	}

	// Without an interaction ID there is no idempotency key; advise the
	// adaptations but leave the log and counters alone.
	if interactionID == "" {
		return result
	}

	if err := e.recordAdaptations(ctx, profile, interactionID, adaptations, sessionQuality >= 0.5); err != nil {
		e.logger.WithError(err).WithField("user_id", userID).Warn("Adaptation persisted partially")
		result.Status = models.LearningPartial
	}

	return result
}

// UpdateProfile applies observed performance after an interaction completes.
func (e *Engine) UpdateProfile(ctx context.Context, userID string, accuracy, engagement float64) error {
	profile := e.GetProfile(ctx, userID)

	stats := profile.PerformanceStats
	if stats == nil {
		stats = models.JSONMap{}
	}
	samples, _ := statValue(stats, "samples")
	samples++
	prevAccuracy, _ := statValue(stats, "rolling_accuracy")
	prevEngagement, _ := statValue(stats, "rolling_engagement")
	stats["rolling_accuracy"] = rollingStat(prevAccuracy, accuracy, samples)
	stats["rolling_engagement"] = rollingStat(prevEngagement, engagement, samples)
	stats["samples"] = samples
	stats["last_accuracy"] = accuracy
	stats["last_engagement"] = engagement
	stats["updated_at"] = time.Now().UTC().Format(time.RFC3339)
	profile.PerformanceStats = stats

	// Strengthen or soften the style estimate from engagement.
	delta := 0.02
	if engagement < e.cfg.EngagementFloor {
		delta = -0.02
	}
	profile.StyleStrength = utils.Clamp01(profile.StyleStrength + delta)

	if err := e.profiles.Save(profile); err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if e.cache != nil {
		if err := e.cache.InvalidateProfile(ctx, userID); err != nil {
			e.logger.WithError(err).Debug("Failed to invalidate cached profile")
		}
	}
	return nil
}

func (e *Engine) recordAdaptations(ctx context.Context, profile *models.PersonalizationProfile, interactionID string, adaptations []models.Adaptation, success bool) error {
	log := profile.AdaptationLog
	if log == nil {
		log = models.JSONMap{}
	}
	entries := make([]interface{}, 0, len(adaptations))
	for _, a := range adaptations {
		entries = append(entries, map[string]interface{}{
			"type":   a.Type,
			"reason": a.Reason,
			"at":     time.Now().UTC().Format(time.RFC3339),
		})
	}
	log[interactionID] = entries
	profile.AdaptationLog = log

	if err := e.profiles.Save(profile); err != nil {
		return err
	}
	for range adaptations {
		if err := e.profiles.IncrementAdaptation(profile.UserID, success); err != nil {
			return err
		}
	}
	if e.cache != nil {
		if err := e.cache.InvalidateProfile(ctx, profile.UserID); err != nil {
			e.logger.WithError(err).Debug("Failed to invalidate cached profile")
		}
	}
	return nil
}

func (e *Engine) alreadyAdapted(profile *models.PersonalizationProfile, interactionID string) bool {
	if profile.AdaptationLog == nil {
		return false
	}
	_, ok := profile.AdaptationLog[interactionID]
	return ok
}

func (e *Engine) countDataPoints(userID string) int {
	count, err := e.interactions.CountByUserBetween(userID, time.Now().AddDate(0, 0, -30), time.Now())
	if err != nil {
		return 0
	}
	return int(count)
}

func (e *Engine) recentEngagement(userID string) float64 {
	records, err := e.feedback.ListByUserSince(userID, time.Now().AddDate(0, 0, -7))
	if err != nil || len(records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range records {
		sum += r.QualityScore
	}
	return sum / float64(len(records))
}

// statValue reads a numeric stat, tolerating the float64 that JSON decoding
// produces as well as ints written in-process.
func statValue(stats models.JSONMap, key string) (float64, bool) {
	if stats == nil {
		return 0, false
	}
	switch v := stats[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func rollingStat(current, value, samples float64) float64 {
	if samples <= 1 {
		return value
	}
	return (current*(samples-1) + value) / samples
}

func profileSuccessRate(p *models.PersonalizationProfile) float64 {
	if p.AdaptationCount == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(p.AdaptationCount)
}

// saturate maps count onto [0,1], reaching 1 at full.
func saturate(count, full int) float64 {
	if count >= full {
		return 1
	}
	if count <= 0 {
		return 0
	}
	return float64(count) / float64(full)
}

func formatForStyle(style string) string {
	switch style {
	case "visual":
		return "diagrams_and_lists"
	case "auditory":
		return "conversational"
	case "kinesthetic":
		return "worked_examples"
	default:
		return "structured_text"
	}
}

func styleForStrength(strength float64) string {
	if strength >= 0.7 {
		return "committed"
	}
	if strength >= 0.4 {
		return "balanced"
	}
	return "exploratory"
}
