package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/studybuddy/backend/internal/config"
	ctxpkg "github.com/studybuddy/backend/internal/context"
	"github.com/studybuddy/backend/internal/llm"
	"github.com/studybuddy/backend/internal/models"
	"github.com/studybuddy/backend/internal/personalization"
	"github.com/studybuddy/backend/internal/validation"
)

// Stage identifiers.
const (
	StageClassification  = "classification"
	StageContext         = "context"
	StageGeneration      = "generation"
	StageValidation      = "validation"
	StagePersonalization = "personalization"
)

// Deps bundles the pipeline components the engine coordinates.
type Deps struct {
	Optimizer    *ctxpkg.Optimizer
	Validator    *validation.Validator
	Personalizer *personalization.Engine
	LLM          *llm.Service

	// DBPing probes the datastore for the stage health checks.
	DBPing func(ctx context.Context) error
}

// Engine is the single entry point for a chat turn. Orchestrate always
// returns a usable response; every component failure downgrades to a
// degraded answer instead of an error.
type Engine struct {
	deps    Deps
	manager *Manager
	logger  *logrus.Logger
}

func NewEngine(deps Deps, cfg config.OrchestrationConfig, logger *logrus.Logger) *Engine {
	e := &Engine{
		deps:   deps,
		logger: logger,
	}
	e.manager = NewManager(e.buildStages(), cfg, logger)
	return e
}

func (e *Engine) buildStages() []Stage {
	return []Stage{
		{
			ID: StageClassification,
			Run: func(ctx context.Context, exec *Execution) error {
				exec.Classification = Classify(exec.Request.Message)
				if exec.Request.IsPersonalQuery {
					exec.Classification.IsPersonal = true
				}
				return nil
			},
		},
		{
			ID:           StageContext,
			Dependencies: []string{StageClassification},
			Run: func(ctx context.Context, exec *Execution) error {
				exec.Bundle = e.deps.Optimizer.Build(ctx, exec.Request.UserID, exec.Request.Message, exec.Classification, 0)
				return nil
			},
			HealthCheck: e.deps.DBPing,
		},
		{
			ID:           StageGeneration,
			Dependencies: []string{StageContext},
			Run: func(ctx context.Context, exec *Execution) error {
				contextText := ""
				if exec.Bundle != nil {
					contextText = exec.Bundle.Text
				}
				resp, degraded := e.deps.LLM.Generate(ctx, exec.Request.Message, contextText, e.preferences(exec))
				exec.Generation = resp
				if degraded {
					exec.MarkDegraded("generation fell back to stub response")
				}
				return nil
			},
			HealthCheck: func(ctx context.Context) error {
				return e.deps.LLM.Ping(ctx)
			},
		},
		{
			ID:           StageValidation,
			Dependencies: []string{StageGeneration},
			Run: func(ctx context.Context, exec *Execution) error {
				if exec.Generation == nil {
					return fmt.Errorf("no generated response to validate: %w", models.ErrStageUnhealthy)
				}
				confidence := exec.Generation.Confidence
				if confidence == 0 {
					confidence = 0.7
				}
				exec.Validation = e.deps.Validator.Validate(ctx, exec.Request.UserID, exec.Generation.Content, confidence)
				return nil
			},
			HealthCheck: e.deps.DBPing,
		},
		{
			ID:           StagePersonalization,
			Dependencies: []string{StageClassification},
			Run: func(ctx context.Context, exec *Execution) error {
				exec.Personalization = e.deps.Personalizer.Personalize(ctx, exec.Request.UserID, "", 0)
				return nil
			},
			HealthCheck: e.deps.DBPing,
		},
	}
}

func (e *Engine) preferences(exec *Execution) map[string]interface{} {
	prefs := map[string]interface{}{
		"category": exec.Classification.Category,
	}
	if exec.Classification.Subject != "" {
		prefs["subject"] = exec.Classification.Subject
	}
	return prefs
}

const unavailableContent = "Study Buddy hit a snag answering this one. Please try again in a moment."

// Orchestrate runs one chat turn end to end. It never returns an error; the
// worst case is a fully degraded static response.
func (e *Engine) Orchestrate(ctx context.Context, req *models.ChatRequest) *models.ChatResponse {
	start := time.Now()

	exec := &Execution{Request: req}
	strategy := e.manager.SelectStrategy()
	meta := e.manager.Execute(ctx, strategy, exec)

	response := &models.ChatResponse{
		ConversationID: req.ConversationID,
		Classification: exec.Classification,
		Validation:     exec.Validation,
		Degraded:       exec.Degraded,
		DegradedReason: exec.DegradedReason,
		Orchestration:  meta,
		LatencyMs:      time.Since(start).Milliseconds(),
	}
	if exec.Personalization != nil {
		p := *exec.Personalization
		p.Profile = nil // profile internals stay server-side
		response.Personalization = &p
	}

	if exec.Generation != nil {
		response.Content = exec.Generation.Content
		response.ModelUsed = exec.Generation.ModelUsed
		response.ProviderUsed = exec.Generation.ProviderUsed
		response.TokensUsed = models.TokenUsage{
			Input:  exec.Generation.TokensUsed.Input,
			Output: exec.Generation.TokensUsed.Output,
			Total:  exec.Generation.TokensUsed.Input + exec.Generation.TokensUsed.Output,
		}
	} else {
		response.Content = unavailableContent
		response.ModelUsed = "fallback"
		response.Degraded = true
		if response.DegradedReason == "" {
			response.DegradedReason = "generation unavailable"
		}
	}

	if exec.Validation != nil && !exec.Validation.IsValid {
		e.logger.WithFields(logrus.Fields{
			"user_id": req.UserID,
			"score":   exec.Validation.ValidationScore,
		}).Warn("Response failed validation, delivering with caveat")
	}

	return response
}

// CheckHealth probes all stages and returns the snapshot.
func (e *Engine) CheckHealth(ctx context.Context) map[string]*models.StageHealthStatus {
	return e.manager.CheckStageHealth(ctx)
}

// StageHealth returns the last recorded snapshot without probing.
func (e *Engine) StageHealth() map[string]models.StageHealthStatus {
	return e.manager.StageHealth()
}

// RunHealthLoop re-probes stage health on the interval until ctx is done.
func (e *Engine) RunHealthLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.manager.CheckStageHealth(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.manager.CheckStageHealth(ctx)
		}
	}
}
