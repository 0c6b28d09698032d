package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/studybuddy/backend/internal/config"
	ctxpkg "github.com/studybuddy/backend/internal/context"
	"github.com/studybuddy/backend/internal/models"
	"github.com/studybuddy/backend/pkg/utils"
)

// Validator scores a generated response before it reaches the user. The
// blended score mixes model-reported confidence, fact-check pass rate and
// structural quality; a critical issue vetoes validity regardless of score.
type Validator struct {
	knowledge    *ctxpkg.KnowledgeBase
	interactions models.InteractionRepository
	cfg          config.ValidationConfig
	logger       *logrus.Logger
}

func NewValidator(knowledge *ctxpkg.KnowledgeBase, interactions models.InteractionRepository, cfg config.ValidationConfig, logger *logrus.Logger) *Validator {
	return &Validator{
		knowledge:    knowledge,
		interactions: interactions,
		cfg:          cfg,
		logger:       logger,
	}
}

const historyWindow = 20

// Validate runs the full validation pass within the configured processing
// budget. On timeout the result is marked invalid with a single timeout
// issue; partial results are discarded.
func (v *Validator) Validate(ctx context.Context, userID, response string, modelConfidence float64) *models.ValidationResult {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, v.cfg.MaxProcessingTime())
	defer cancel()

	done := make(chan *models.ValidationResult, 1)
	go func() {
		done <- v.runChecks(checkCtx, userID, response, modelConfidence)
	}()

	select {
	case result := <-done:
		result.ProcessingTimeMs = time.Since(start).Milliseconds()
		v.logger.WithFields(logrus.Fields{
			"user_id":          userID,
			"validation_score": result.ValidationScore,
			"is_valid":         result.IsValid,
			"claims_checked":   result.FactCheck.ClaimsChecked,
		}).Debug("Validation completed")
		return result

	case <-checkCtx.Done():
		v.logger.WithField("user_id", userID).Warn("Validation timed out")
		return &models.ValidationResult{
			IsValid:          false,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			Issues: []models.ValidationIssue{{
				Severity:    models.SeverityTimeout,
				Description: fmt.Sprintf("validation exceeded %s budget", v.cfg.MaxProcessingTime()),
			}},
			Recommendations: []string{"treat response as unverified"},
		}
	}
}

func (v *Validator) runChecks(ctx context.Context, userID, response string, modelConfidence float64) *models.ValidationResult {
	result := &models.ValidationResult{
		ConfidenceScore: utils.Clamp01(modelConfidence),
	}

	result.FactCheck = v.factCheck(ctx, response)

	history, err := v.interactions.ListByUser(userID, time.Now().Add(-24*time.Hour), historyWindow)
	if err != nil {
		v.logger.WithError(err).Debug("History lookup failed, skipping contradiction scan")
	} else {
		result.ContradictionAnalysis = v.scanContradictions(response, history)
	}

	structural := structureScore(response)

	result.ValidationScore = utils.Clamp01(
		v.cfg.ModelWeight*result.ConfidenceScore +
			v.cfg.FactCheckWeight*result.FactCheck.PassRate +
			v.cfg.StructureWeight*structural)

	v.collectIssues(result, structural)

	result.IsValid = result.ValidationScore >= v.cfg.Threshold && !result.HasCriticalIssue()

	return result
}

func (v *Validator) collectIssues(result *models.ValidationResult, structural float64) {
	if result.ContradictionAnalysis.Found {
		result.Issues = append(result.Issues, models.ValidationIssue{
			Severity:    models.SeverityCritical,
			Description: fmt.Sprintf("response contradicts %d earlier answer(s)", result.ContradictionAnalysis.Count),
		})
		result.Recommendations = append(result.Recommendations, "review conversation history before answering")
	}

	if result.FactCheck.ClaimsChecked > 0 && result.FactCheck.PassRate < 0.5 {
		result.Issues = append(result.Issues, models.ValidationIssue{
			Severity: models.SeverityWarning,
			Description: fmt.Sprintf("only %d of %d claims supported by knowledge sources",
				result.FactCheck.ClaimsPassed, result.FactCheck.ClaimsChecked),
		})
		result.Recommendations = append(result.Recommendations, "cite knowledge sources explicitly")
	}

	if structural < 0.5 {
		result.Issues = append(result.Issues, models.ValidationIssue{
			Severity:    models.SeverityInfo,
			Description: "response structure below expected quality",
		})
	}
}
