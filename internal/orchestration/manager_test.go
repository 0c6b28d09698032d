package orchestration

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studybuddy/backend/internal/config"
	"github.com/studybuddy/backend/internal/models"
)

func testOrchestrationConfig() config.OrchestrationConfig {
	return config.OrchestrationConfig{
		HealthCheckTimeoutMs: 500,
		MaxRetries:           2,
		InitialDelayMs:       1,
		BackoffMultiplier:    2.0,
		LowLoadMs:            500,
		HighLoadMs:           2000,
		StageTimeoutMs:       5000,
	}
}

func okStage(id string, deps ...string) Stage {
	return Stage{
		ID:           id,
		Dependencies: deps,
		Run:          func(ctx context.Context, exec *Execution) error { return nil },
	}
}

func failStage(id string, deps ...string) Stage {
	return Stage{
		ID:           id,
		Dependencies: deps,
		Run: func(ctx context.Context, exec *Execution) error {
			return errors.New(id + " blew up")
		},
	}
}

func fiveHealthyStages() []Stage {
	return []Stage{
		okStage("one"),
		okStage("two", "one"),
		okStage("three", "two"),
		okStage("four", "three"),
		okStage("five", "one"),
	}
}

func outcomeByID(meta *models.OrchestrationMetadata, id string) *models.StageOutcome {
	for i := range meta.Stages {
		if meta.Stages[i].StageID == id {
			return &meta.Stages[i]
		}
	}
	return nil
}

func TestCheckStageHealthRetriesWithBackoff(t *testing.T) {
	var calls int32
	stage := Stage{
		ID:  "flaky",
		Run: func(ctx context.Context, exec *Execution) error { return nil },
		HealthCheck: func(ctx context.Context) error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return errors.New("not yet")
			}
			return nil
		},
	}
	m := NewManager([]Stage{stage}, testOrchestrationConfig(), logrus.New())

	snapshot := m.CheckStageHealth(context.Background())

	require.Contains(t, snapshot, "flaky")
	assert.True(t, snapshot["flaky"].Healthy)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCheckStageHealthIsIdempotent(t *testing.T) {
	m := NewManager(fiveHealthyStages(), testOrchestrationConfig(), logrus.New())

	first := m.CheckStageHealth(context.Background())
	second := m.CheckStageHealth(context.Background())

	assert.Equal(t, len(first), len(second))
	assert.Equal(t, 5, m.HealthyStageCount())
}

func TestUnhealthyDependencyPropagates(t *testing.T) {
	stages := []Stage{
		{ID: "base", Run: func(ctx context.Context, exec *Execution) error { return nil },
			HealthCheck: func(ctx context.Context) error { return errors.New("down") }},
		okStage("child", "base"),
	}
	m := NewManager(stages, testOrchestrationConfig(), logrus.New())

	snapshot := m.CheckStageHealth(context.Background())

	assert.False(t, snapshot["base"].Healthy)
	assert.False(t, snapshot["child"].Healthy)
}

func TestStageErrorRateIsSmoothedAcrossChecks(t *testing.T) {
	var healthy atomic.Bool
	stage := Stage{
		ID:  "wobbly",
		Run: func(ctx context.Context, exec *Execution) error { return nil },
		HealthCheck: func(ctx context.Context) error {
			if healthy.Load() {
				return nil
			}
			return errors.New("down")
		},
	}
	m := NewManager([]Stage{stage}, testOrchestrationConfig(), logrus.New())

	first := m.CheckStageHealth(context.Background())
	assert.InDelta(t, 1.0, first["wobbly"].ErrorRate, 0.001)

	// A recovery pulls the rate down gradually instead of snapping to zero.
	healthy.Store(true)
	second := m.CheckStageHealth(context.Background())
	assert.True(t, second["wobbly"].Healthy)
	assert.Greater(t, second["wobbly"].ErrorRate, 0.0)
	assert.Less(t, second["wobbly"].ErrorRate, 1.0)

	third := m.CheckStageHealth(context.Background())
	assert.Less(t, third["wobbly"].ErrorRate, second["wobbly"].ErrorRate)
}

func TestStageThroughputCountsInvocations(t *testing.T) {
	m := NewManager([]Stage{okStage("solo")}, testOrchestrationConfig(), logrus.New())

	exec := &Execution{Request: &models.ChatRequest{}}
	for i := 0; i < 3; i++ {
		m.Execute(context.Background(), models.StrategySequential, exec)
	}

	snapshot := m.CheckStageHealth(context.Background())
	assert.Greater(t, snapshot["solo"].Throughput, 0.0)
	assert.InDelta(t, 0.0, snapshot["solo"].ErrorRate, 0.001)
}

func TestSelectStrategyLowLoadManyHealthy(t *testing.T) {
	m := NewManager(fiveHealthyStages(), testOrchestrationConfig(), logrus.New())
	m.CheckStageHealth(context.Background())

	assert.Equal(t, models.StrategyParallel, m.SelectStrategy())
}

func TestSelectStrategyModerateLoad(t *testing.T) {
	m := NewManager(fiveHealthyStages(), testOrchestrationConfig(), logrus.New())
	m.CheckStageHealth(context.Background())
	m.recordDuration(1200 * time.Millisecond)

	assert.Equal(t, models.StrategyCascading, m.SelectStrategy())
}

func TestSelectStrategyHighLoad(t *testing.T) {
	m := NewManager(fiveHealthyStages(), testOrchestrationConfig(), logrus.New())
	m.recordDuration(3 * time.Second)

	assert.Equal(t, models.StrategyAdaptive, m.SelectStrategy())
}

func TestSelectStrategyDefaultsSequential(t *testing.T) {
	// Nothing checked yet, so zero stages count as healthy.
	m := NewManager(fiveHealthyStages(), testOrchestrationConfig(), logrus.New())
	m.recordDuration(1200 * time.Millisecond)

	assert.Equal(t, models.StrategySequential, m.SelectStrategy())
}

func TestSequentialSkipsDependentsOfFailure(t *testing.T) {
	stages := []Stage{
		okStage("one"),
		failStage("two", "one"),
		okStage("three", "two"),
		okStage("independent"),
	}
	m := NewManager(stages, testOrchestrationConfig(), logrus.New())

	exec := &Execution{Request: &models.ChatRequest{}}
	meta := m.Execute(context.Background(), models.StrategySequential, exec)

	assert.True(t, outcomeByID(meta, "one").Succeeded)
	assert.False(t, outcomeByID(meta, "two").Succeeded)
	assert.True(t, outcomeByID(meta, "three").Skipped)
	assert.True(t, outcomeByID(meta, "independent").Succeeded)
	assert.True(t, exec.Degraded)
}

func TestParallelCollectsAllOutcomes(t *testing.T) {
	stages := []Stage{
		okStage("a"),
		failStage("b"),
		okStage("c"),
		okStage("d", "b"),
	}
	m := NewManager(stages, testOrchestrationConfig(), logrus.New())

	exec := &Execution{Request: &models.ChatRequest{}}
	meta := m.Execute(context.Background(), models.StrategyParallel, exec)

	// Siblings of the failed stage still ran.
	assert.True(t, outcomeByID(meta, "a").Succeeded)
	assert.True(t, outcomeByID(meta, "c").Succeeded)
	assert.False(t, outcomeByID(meta, "b").Succeeded)
	assert.True(t, outcomeByID(meta, "d").Skipped)
}

func TestCascadingAbortsAfterLevelFailure(t *testing.T) {
	stages := []Stage{
		okStage("one"),
		failStage("two", "one"),
		okStage("three", "two"),
		okStage("other", "one"),
	}
	m := NewManager(stages, testOrchestrationConfig(), logrus.New())

	exec := &Execution{Request: &models.ChatRequest{}}
	meta := m.Execute(context.Background(), models.StrategyCascading, exec)

	assert.True(t, outcomeByID(meta, "one").Succeeded)
	assert.False(t, outcomeByID(meta, "two").Succeeded)
	assert.True(t, outcomeByID(meta, "three").Skipped)
}

func TestAdaptiveRetriesFailedStage(t *testing.T) {
	var attempts int32
	flaky := Stage{
		ID: "flaky",
		Run: func(ctx context.Context, exec *Execution) error {
			if atomic.AddInt32(&attempts, 1) == 1 {
				return errors.New("first attempt fails")
			}
			return nil
		},
	}
	dependent := okStage("dependent", "flaky")
	m := NewManager([]Stage{flaky, dependent}, testOrchestrationConfig(), logrus.New())

	exec := &Execution{Request: &models.ChatRequest{}}
	meta := m.Execute(context.Background(), models.StrategyAdaptive, exec)

	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))

	// Last recorded outcome for the flaky stage is the successful retry.
	var last *models.StageOutcome
	for i := range meta.Stages {
		if meta.Stages[i].StageID == "flaky" {
			last = &meta.Stages[i]
		}
	}
	require.NotNil(t, last)
	assert.True(t, last.Succeeded)
}
