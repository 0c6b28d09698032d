package feedback

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/studybuddy/backend/internal/config"
	"github.com/studybuddy/backend/internal/models"
	"github.com/studybuddy/backend/pkg/utils"
)

// Collector turns raw feedback events into scored feedback records. Explicit
// feedback is rating-driven; implicit feedback is derived from engagement
// signals, with abandonment dominating everything else.
type Collector struct {
	feedback     models.FeedbackRepository
	interactions models.InteractionRepository
	cfg          config.FeedbackConfig
	logger       *logrus.Logger
}

func NewCollector(feedback models.FeedbackRepository, interactions models.InteractionRepository, cfg config.FeedbackConfig, logger *logrus.Logger) *Collector {
	return &Collector{
		feedback:     feedback,
		interactions: interactions,
		cfg:          cfg,
		logger:       logger,
	}
}

// CollectFeedback validates, scores and persists one feedback event. The
// required payload follows the declared source.
func (c *Collector) CollectFeedback(req *models.FeedbackRequest) (*models.Feedback, error) {
	if req.InteractionID == "" {
		return nil, fmt.Errorf("interaction ID is required: %w", models.ErrInvalidInput)
	}

	switch req.Source {
	case "explicit":
		if req.Explicit == nil {
			return nil, fmt.Errorf("explicit feedback requires an explicit payload: %w", models.ErrInvalidInput)
		}
	case "implicit":
		if req.Implicit == nil {
			return nil, fmt.Errorf("implicit feedback requires an implicit payload: %w", models.ErrInvalidInput)
		}
	case "hybrid":
		if req.Explicit == nil || req.Implicit == nil {
			return nil, fmt.Errorf("hybrid feedback requires both payloads: %w", models.ErrInvalidInput)
		}
	default:
		return nil, fmt.Errorf("unknown feedback source %q: %w", req.Source, models.ErrInvalidInput)
	}

	if _, err := c.interactions.GetByID(req.InteractionID); err != nil {
		return nil, fmt.Errorf("interaction %s not found: %w", req.InteractionID, models.ErrNotFound)
	}

	record := &models.Feedback{
		UserID:        req.UserID,
		SessionID:     req.SessionID,
		InteractionID: req.InteractionID,
		Source:        req.Source,
		IsActive:      true,
	}

	if req.Explicit != nil {
		if req.Explicit.Rating < 1 || req.Explicit.Rating > 5 {
			return nil, fmt.Errorf("rating must be between 1 and 5: %w", models.ErrInvalidInput)
		}
		record.Rating = req.Explicit.Rating
		record.Corrections = models.StringArray(req.Explicit.Corrections)
		record.Comment = req.Explicit.Comment
	}
	if req.Implicit != nil {
		record.TimeSpentMs = req.Implicit.TimeSpentMs
		record.ScrollDepth = utils.Clamp01(req.Implicit.ScrollDepth)
		record.FollowUpQuestions = req.Implicit.FollowUpQuestions
		record.CorrectionsCount = req.Implicit.CorrectionsCount
		record.Abandoned = req.Implicit.Abandoned
	}

	record.QualityScore = c.scoreFeedback(req)

	if err := c.feedback.Create(record); err != nil {
		return nil, fmt.Errorf("failed to store feedback: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"user_id":        req.UserID,
		"interaction_id": req.InteractionID,
		"source":         req.Source,
		"quality_score":  record.QualityScore,
	}).Info("Feedback collected")

	return record, nil
}

// CollectImplicit is the fire-and-forget path for behavioral signals. It
// never surfaces an error to the caller; failures are logged and dropped.
func (c *Collector) CollectImplicit(userID, sessionID, interactionID string, payload *models.ImplicitFeedbackPayload) {
	if payload == nil || interactionID == "" {
		return
	}
	req := &models.FeedbackRequest{
		UserID:        userID,
		SessionID:     sessionID,
		InteractionID: interactionID,
		Source:        "implicit",
		Implicit:      payload,
	}
	if _, err := c.CollectFeedback(req); err != nil {
		c.logger.WithError(err).WithField("interaction_id", interactionID).Debug("Implicit feedback dropped")
	}
}

// scoreFeedback maps a feedback event to a quality score in [0,1].
func (c *Collector) scoreFeedback(req *models.FeedbackRequest) float64 {
	switch req.Source {
	case "explicit":
		return c.scoreExplicit(req.Explicit)
	case "implicit":
		return c.scoreImplicit(req.Implicit)
	default:
		// Hybrid averages both signals.
		return utils.Clamp01((c.scoreExplicit(req.Explicit) + c.scoreImplicit(req.Implicit)) / 2)
	}
}

func (c *Collector) scoreExplicit(p *models.ExplicitFeedbackPayload) float64 {
	score := float64(p.Rating) / 5.0
	score -= c.cfg.CorrectionPenalty * float64(len(p.Corrections))
	if score < 0 {
		score = 0
	}
	return score
}

func (c *Collector) scoreImplicit(p *models.ImplicitFeedbackPayload) float64 {
	score := 0.5

	// Dwell time up to two minutes reads as engagement.
	if p.TimeSpentMs > 0 {
		dwell := float64(p.TimeSpentMs) / 120000.0
		if dwell > 1 {
			dwell = 1
		}
		score += 0.2 * dwell
	}
	score += 0.15 * utils.Clamp01(p.ScrollDepth)

	// A follow-up or two means interest; a pile of them means confusion.
	if p.FollowUpQuestions > 0 && p.FollowUpQuestions <= 2 {
		score += 0.1
	} else if p.FollowUpQuestions > 4 {
		score -= 0.1
	}

	score -= c.cfg.CorrectionPenalty * float64(p.CorrectionsCount)

	score = utils.Clamp01(score)

	// Abandonment caps quality no matter how strong the other signals are.
	if p.Abandoned && score > c.cfg.AbandonmentCeiling {
		score = c.cfg.AbandonmentCeiling
	}

	return score
}

// PatternSummary aggregates a user's recent feedback.
type PatternSummary struct {
	UserID          string             `json:"user_id"`
	WindowDays      int                `json:"window_days"`
	TotalFeedback   int                `json:"total_feedback"`
	AvgQuality      float64            `json:"avg_quality"`
	AvgRating       float64            `json:"avg_rating"`
	RatedCount      int                `json:"rated_count"`
	AbandonmentRate float64            `json:"abandonment_rate"`
	CorrectionRate  float64            `json:"correction_rate"`
	BySource        map[string]int     `json:"by_source"`
	QualityTrend    models.Trend       `json:"quality_trend"`
}

// AnalyzeFeedbackPatterns summarizes recent feedback over the lookback
// window. An empty window yields a zeroed summary, not an error.
func (c *Collector) AnalyzeFeedbackPatterns(userID string, windowDays int) (*PatternSummary, error) {
	if windowDays <= 0 {
		windowDays = c.cfg.LookbackDays
	}
	since := time.Now().AddDate(0, 0, -windowDays)

	records, err := c.feedback.ListByUserSince(userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback history: %w", err)
	}

	summary := &PatternSummary{
		UserID:       userID,
		WindowDays:   windowDays,
		BySource:     make(map[string]int),
		QualityTrend: models.TrendStable,
	}

	if len(records) == 0 {
		return summary, nil
	}

	var qualitySum, ratingSum float64
	var abandoned, corrected int
	for _, r := range records {
		summary.TotalFeedback++
		summary.BySource[r.Source]++
		qualitySum += r.QualityScore
		if r.Rating > 0 {
			ratingSum += float64(r.Rating)
			summary.RatedCount++
		}
		if r.Abandoned {
			abandoned++
		}
		if len(r.Corrections) > 0 || r.CorrectionsCount > 0 {
			corrected++
		}
	}

	n := float64(summary.TotalFeedback)
	summary.AvgQuality = qualitySum / n
	if summary.RatedCount > 0 {
		summary.AvgRating = ratingSum / float64(summary.RatedCount)
	}
	summary.AbandonmentRate = float64(abandoned) / n
	summary.CorrectionRate = float64(corrected) / n
	summary.QualityTrend = qualityTrend(records)

	return summary, nil
}

// qualityTrend compares the first and second half of the window. Records
// arrive newest first from the repository.
func qualityTrend(records []models.Feedback) models.Trend {
	if len(records) < 4 {
		return models.TrendStable
	}

	mid := len(records) / 2
	var newer, older float64
	for i, r := range records {
		if i < mid {
			newer += r.QualityScore
		} else {
			older += r.QualityScore
		}
	}
	newer /= float64(mid)
	older /= float64(len(records) - mid)

	switch {
	case newer > older*1.1:
		return models.TrendImproving
	case newer < older*0.9:
		return models.TrendDeclining
	default:
		return models.TrendStable
	}
}
