package personalization

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/studybuddy/backend/internal/config"
	"github.com/studybuddy/backend/internal/models"
	"github.com/studybuddy/backend/pkg/utils"
)

// Recognizer mines interaction and feedback history for recurring behavior.
// Each call recomputes over the requested window; nothing is persisted.
type Recognizer struct {
	interactions models.InteractionRepository
	feedback     models.FeedbackRepository
	cfg          config.PatternConfig
	logger       *logrus.Logger
}

func NewRecognizer(interactions models.InteractionRepository, feedback models.FeedbackRepository, cfg config.PatternConfig, logger *logrus.Logger) *Recognizer {
	return &Recognizer{
		interactions: interactions,
		feedback:     feedback,
		cfg:          cfg,
		logger:       logger,
	}
}

// Analyze runs pattern recognition for the user over the requested window.
func (r *Recognizer) Analyze(req *models.PatternRequest) (*models.PatternAnalysisResult, error) {
	days := req.TimeRangeDays
	if days <= 0 {
		days = 30
	}
	windowEnd := time.Now()
	windowStart := windowEnd.AddDate(0, 0, -days)

	interactions, err := r.interactions.ListByUser(req.UserID, windowStart, 500)
	if err != nil {
		return nil, fmt.Errorf("failed to load interactions: %w", err)
	}
	feedback, err := r.feedback.ListByUserBetween(req.UserID, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback: %w", err)
	}

	result := &models.PatternAnalysisResult{
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		DataPoints:  len(interactions) + len(feedback),
	}

	var patterns []models.RecognizedPattern
	patterns = append(patterns, r.performancePatterns(req.UserID, interactions)...)
	patterns = append(patterns, r.feedbackPatterns(req.UserID, feedback)...)
	patterns = append(patterns, r.engagementPatterns(req.UserID, feedback)...)

	// Cap confidence when the sample is too small to trust.
	sample := result.DataPoints
	for i := range patterns {
		if sample < r.cfg.SmallSampleSize && patterns[i].Confidence > r.cfg.SmallSampleCap {
			patterns[i].Confidence = r.cfg.SmallSampleCap
		}
	}

	if req.PatternType != "" {
		filtered := patterns[:0]
		for _, p := range patterns {
			if p.Type == req.PatternType {
				filtered = append(filtered, p)
			}
		}
		patterns = filtered
	}
	if req.MinConfidence > 0 {
		filtered := patterns[:0]
		for _, p := range patterns {
			if p.Confidence >= req.MinConfidence {
				filtered = append(filtered, p)
			}
		}
		patterns = filtered
	}

	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].Confidence > patterns[j].Confidence
	})

	max := req.MaxPatterns
	if max <= 0 {
		max = r.cfg.DefaultMaxResults
	}
	if len(patterns) > max {
		patterns = patterns[:max]
	}

	result.Patterns = patterns

	r.logger.WithFields(logrus.Fields{
		"user_id":     req.UserID,
		"data_points": result.DataPoints,
		"patterns":    len(patterns),
	}).Debug("Pattern analysis completed")

	return result, nil
}

func (r *Recognizer) performancePatterns(userID string, interactions []models.Interaction) []models.RecognizedPattern {
	if len(interactions) == 0 {
		return nil
	}

	var accuracySum float64
	for _, i := range interactions {
		accuracySum += i.AccuracyEstimate
	}
	avgAccuracy := accuracySum / float64(len(interactions))

	trend := seriesTrend(accuracySeries(interactions), r.cfg.TrendBand)

	pattern := models.RecognizedPattern{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        models.PatternPerformance,
		Description: fmt.Sprintf("average answer accuracy %.0f%% over %d interactions", avgAccuracy*100, len(interactions)),
		Frequency:   1, // every interaction in the window contributes
		Confidence:  utils.Clamp01(float64(len(interactions)) / 10.0),
		Trend:       trend,
	}
	switch trend {
	case models.TrendImproving:
		pattern.Insights = append(pattern.Insights, "accuracy is trending up")
	case models.TrendDeclining:
		pattern.Insights = append(pattern.Insights, "accuracy is trending down")
		pattern.Recommendations = append(pattern.Recommendations, "revisit recent topics with simpler material")
	}

	return []models.RecognizedPattern{pattern}
}

func (r *Recognizer) feedbackPatterns(userID string, feedback []models.Feedback) []models.RecognizedPattern {
	if len(feedback) == 0 {
		return nil
	}

	var corrections, abandoned int
	for _, f := range feedback {
		if len(f.Corrections) > 0 || f.CorrectionsCount > 0 {
			corrections++
		}
		if f.Abandoned {
			abandoned++
		}
	}

	var patterns []models.RecognizedPattern
	n := float64(len(feedback))

	if corrections > 0 {
		rate := float64(corrections) / n
		patterns = append(patterns, models.RecognizedPattern{
			ID:          uuid.NewString(),
			UserID:      userID,
			Type:        models.PatternCorrection,
			Description: fmt.Sprintf("user corrects %.0f%% of responses", rate*100),
			Frequency:   rate,
			Confidence:  utils.Clamp01(n / 10.0),
			Trend:       models.TrendStable,
			Recommendations: []string{
				"increase fact-check strictness for this user",
			},
		})
	}

	if abandoned > 0 {
		rate := float64(abandoned) / n
		p := models.RecognizedPattern{
			ID:          uuid.NewString(),
			UserID:      userID,
			Type:        models.PatternAbandonment,
			Description: fmt.Sprintf("user abandons %.0f%% of responses", rate*100),
			Frequency:   rate,
			Confidence:  utils.Clamp01(n / 10.0),
			Trend:       models.TrendStable,
		}
		if rate > 0.3 {
			p.Recommendations = append(p.Recommendations, "shorten responses and lead with the answer")
		}
		patterns = append(patterns, p)
	}

	return patterns
}

func (r *Recognizer) engagementPatterns(userID string, feedback []models.Feedback) []models.RecognizedPattern {
	if len(feedback) == 0 {
		return nil
	}

	series := make([]float64, 0, len(feedback))
	var sum float64
	for _, f := range feedback {
		series = append(series, f.QualityScore)
		sum += f.QualityScore
	}

	return []models.RecognizedPattern{{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        models.PatternEngagement,
		Description: fmt.Sprintf("average engagement quality %.2f", sum/float64(len(series))),
		Frequency:   1, // every feedback row in the window contributes
		Confidence:  utils.Clamp01(float64(len(series)) / 10.0),
		Trend:       seriesTrend(series, r.cfg.TrendBand),
	}}
}

func accuracySeries(interactions []models.Interaction) []float64 {
	series := make([]float64, 0, len(interactions))
	// Repository returns newest first; reverse into chronological order.
	for i := len(interactions) - 1; i >= 0; i-- {
		series = append(series, interactions[i].AccuracyEstimate)
	}
	return series
}

// seriesTrend compares the mean of the later half against the earlier half.
// Movement inside the band reads as stable.
func seriesTrend(series []float64, band float64) models.Trend {
	if len(series) < 4 {
		return models.TrendStable
	}

	mid := len(series) / 2
	var early, late float64
	for i, v := range series {
		if i < mid {
			early += v
		} else {
			late += v
		}
	}
	early /= float64(mid)
	late /= float64(len(series) - mid)

	if early == 0 {
		if late > 0 {
			return models.TrendImproving
		}
		return models.TrendStable
	}

	change := (late - early) / early
	switch {
	case change > band:
		return models.TrendImproving
	case change < -band:
		return models.TrendDeclining
	default:
		return models.TrendStable
	}
}
