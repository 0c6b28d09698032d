package orchestration

import (
	"context"
	"sync"

	"github.com/studybuddy/backend/internal/llm"
	"github.com/studybuddy/backend/internal/models"
)

// Execution is the shared state one chat turn accumulates as it moves through
// the stages. Stages write disjoint fields; the mutex covers the few spots
// where parallel stages touch shared slices.
type Execution struct {
	mu sync.Mutex

	Request        *models.ChatRequest
	Classification models.QueryClassification
	Bundle         *models.ContextBundle
	Generation     *llm.GenerateResponse
	Validation     *models.ValidationResult
	Personalization *models.PersonalizationResult

	Degraded       bool
	DegradedReason string
}

// MarkDegraded records the first degradation reason; later ones are dropped.
func (e *Execution) MarkDegraded(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.Degraded {
		e.Degraded = true
		e.DegradedReason = reason
	}
}

// Stage is one unit of pipeline work with explicit dependencies.
type Stage struct {
	ID           string
	Dependencies []string
	Run          func(ctx context.Context, exec *Execution) error
	HealthCheck  func(ctx context.Context) error
}

// DependencyLevels orders stages into levels where every stage's dependencies
// live in an earlier level. Stages trapped in a dependency cycle are released
// together as a final level instead of being dropped.
func DependencyLevels(stages []Stage) [][]Stage {
	placed := make(map[string]bool, len(stages))
	remaining := make([]Stage, len(stages))
	copy(remaining, stages)

	var levels [][]Stage
	for len(remaining) > 0 {
		var level []Stage
		var next []Stage
		for _, s := range remaining {
			ready := true
			for _, dep := range s.Dependencies {
				if !placed[dep] && dependencyExists(stages, dep) {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, s)
			} else {
				next = append(next, s)
			}
		}

		if len(level) == 0 {
			// Cycle: nothing progressed, release everything left at once.
			levels = append(levels, next)
			break
		}

		for _, s := range level {
			placed[s.ID] = true
		}
		levels = append(levels, level)
		remaining = next
	}

	return levels
}

func dependencyExists(stages []Stage, id string) bool {
	for _, s := range stages {
		if s.ID == id {
			return true
		}
	}
	return false
}
