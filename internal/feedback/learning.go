package feedback

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/studybuddy/backend/internal/config"
	"github.com/studybuddy/backend/internal/models"
	"github.com/studybuddy/backend/pkg/utils"
)

// Engine mines accumulated feedback for correction patterns, hallucination
// signals and quality drift. Each run is read-only over history; results are
// returned to the caller, not persisted.
type Engine struct {
	feedback     models.FeedbackRepository
	interactions models.InteractionRepository
	cfg          config.FeedbackConfig
	logger       *logrus.Logger
}

func NewEngine(feedback models.FeedbackRepository, interactions models.InteractionRepository, cfg config.FeedbackConfig, logger *logrus.Logger) *Engine {
	return &Engine{
		feedback:     feedback,
		interactions: interactions,
		cfg:          cfg,
		logger:       logger,
	}
}

var factualKeywords = []string{
	"wrong", "incorrect", "false", "inaccurate", "made up", "not true",
	"fabricated", "factually",
}

// ProcessLearning runs one learning cycle of the requested type.
func (e *Engine) ProcessLearning(req *models.LearningRequest) (*models.LearningResult, error) {
	lookback := req.LookbackDays
	if lookback <= 0 {
		lookback = e.cfg.LookbackDays
	}
	since := time.Now().AddDate(0, 0, -lookback)

	records, err := e.feedback.ListByUserSince(req.UserID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback for learning: %w", err)
	}

	result := &models.LearningResult{
		Type:       req.Type,
		Status:     models.LearningCompleted,
		DataPoints: len(records),
	}

	switch req.Type {
	case models.LearningCorrection:
		e.mineCorrections(result, records)
	case models.LearningHallucination:
		e.detectHallucinationRisks(result, records)
	case models.LearningQuality:
		e.optimizeQuality(result, records)
	case models.LearningPatterns:
		e.summarizeBehavior(result, records)
	case models.LearningBehavioral:
		e.summarizeBehavior(result, records)
		e.optimizeQuality(result, records)
	default:
		return nil, fmt.Errorf("unknown learning type %q: %w", req.Type, models.ErrInvalidInput)
	}

	result.Confidence = learningConfidence(len(records))
	// Callers opt into the confidence gate; without validation required,
	// low-confidence results still complete.
	if req.RequireValidation && result.Confidence < req.MinConfidence {
		result.Status = models.LearningPartial
		result.Insights = append(result.Insights,
			fmt.Sprintf("confidence %.2f below requested minimum %.2f", result.Confidence, req.MinConfidence))
	}
	if len(records) == 0 {
		result.Status = models.LearningPartial
		result.Insights = append(result.Insights, "no feedback in lookback window")
	}

	e.logger.WithFields(logrus.Fields{
		"user_id":     req.UserID,
		"type":        req.Type,
		"status":      result.Status,
		"data_points": result.DataPoints,
		"confidence":  result.Confidence,
	}).Info("Learning cycle completed")

	return result, nil
}

// mineCorrections groups corrections by category and recommends action for
// any category at or past the frequency threshold.
func (e *Engine) mineCorrections(result *models.LearningResult, records []models.Feedback) {
	counts := make(map[string]int)
	for _, r := range records {
		for _, correction := range r.Corrections {
			counts[categorizeCorrection(correction)]++
		}
	}

	categories := make([]string, 0, len(counts))
	for cat := range counts {
		categories = append(categories, cat)
	}
	sort.Slice(categories, func(i, j int) bool {
		return counts[categories[i]] > counts[categories[j]]
	})

	for _, cat := range categories {
		freq := counts[cat]
		if freq < e.cfg.CategoryThreshold {
			continue
		}
		result.Recommendations = append(result.Recommendations, models.LearningRecommendation{
			Category:  cat,
			Frequency: freq,
			Action:    correctionAction(cat),
		})
	}

	if len(result.Recommendations) == 0 && len(counts) > 0 {
		result.Insights = append(result.Insights, "corrections present but no category passes the recurrence threshold")
	}
}

func categorizeCorrection(correction string) string {
	lower := strings.ToLower(correction)
	switch {
	case containsAnyOf(lower, "formula", "equation", "calculation", "math"):
		return "mathematical"
	case containsAnyOf(lower, "date", "year", "when", "century"):
		return "chronological"
	case containsAnyOf(lower, "name", "person", "who", "author"):
		return "attribution"
	case containsAnyOf(lower, "definition", "term", "meaning"):
		return "terminology"
	default:
		return "factual"
	}
}

func correctionAction(category string) string {
	switch category {
	case "mathematical":
		return "verify calculations against knowledge sources before answering"
	case "chronological":
		return "cross-check dates with seeded reference material"
	case "attribution":
		return "confirm names and attributions before stating them"
	case "terminology":
		return "prefer definitions quoted from knowledge sources"
	default:
		return "raise fact-check strictness for this user's subjects"
	}
}

// detectHallucinationRisks flags interactions whose feedback combines a low
// rating with factual-error language. The flag is a review hint.
func (e *Engine) detectHallucinationRisks(result *models.LearningResult, records []models.Feedback) {
	for _, r := range records {
		if r.Rating == 0 || r.Rating > 2 {
			continue
		}

		var signals []string
		text := strings.ToLower(r.Comment + " " + strings.Join(r.Corrections, " "))
		for _, kw := range factualKeywords {
			if strings.Contains(text, kw) {
				signals = append(signals, kw)
			}
		}
		if len(signals) == 0 {
			continue
		}

		result.HallucinationRisks = append(result.HallucinationRisks, models.HallucinationRisk{
			InteractionID: r.InteractionID,
			Rating:        r.Rating,
			Signals:       signals,
		})
	}

	if len(result.HallucinationRisks) > 0 {
		result.Insights = append(result.Insights,
			fmt.Sprintf("%d interaction(s) flagged for hallucination review", len(result.HallucinationRisks)))
	}
}

// optimizeQuality derives parameter hints from the quality distribution.
func (e *Engine) optimizeQuality(result *models.LearningResult, records []models.Feedback) {
	if len(records) == 0 {
		return
	}

	var sum float64
	var abandoned int
	for _, r := range records {
		sum += r.QualityScore
		if r.Abandoned {
			abandoned++
		}
	}
	avg := sum / float64(len(records))
	abandonRate := float64(abandoned) / float64(len(records))

	hints := map[string]float64{
		"avg_quality":      avg,
		"abandonment_rate": abandonRate,
	}
	if avg < 0.5 {
		hints["context_depth_delta"] = 0.2
		result.Insights = append(result.Insights, "average quality low, recommend deeper context assembly")
	}
	if abandonRate > 0.2 {
		hints["response_length_delta"] = -0.2
		result.Insights = append(result.Insights, "high abandonment, recommend shorter responses")
	}
	result.ParameterHints = hints
}

func (e *Engine) summarizeBehavior(result *models.LearningResult, records []models.Feedback) {
	if len(records) == 0 {
		return
	}
	var followUps, explicit int
	for _, r := range records {
		followUps += r.FollowUpQuestions
		if r.Source == "explicit" {
			explicit++
		}
	}
	result.Insights = append(result.Insights,
		fmt.Sprintf("%d follow-up question(s) across %d feedback event(s)", followUps, len(records)),
		fmt.Sprintf("%.0f%% of feedback is explicit", 100*float64(explicit)/float64(len(records))))
}

func containsAnyOf(s string, markers ...string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// learningConfidence grows with sample size and saturates at 20 points.
func learningConfidence(dataPoints int) float64 {
	return utils.Clamp01(float64(dataPoints) / 20.0)
}
