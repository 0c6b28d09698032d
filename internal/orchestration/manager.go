package orchestration

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/studybuddy/backend/internal/config"
	"github.com/studybuddy/backend/internal/models"
)

// Manager coordinates stage execution. It tracks per-stage health, picks a
// coordination strategy from load and health, and runs the stage graph under
// that strategy. A stage failure never aborts the whole turn; dependents are
// skipped and the turn continues degraded.
type Manager struct {
	stages []Stage
	levels [][]Stage
	cfg    config.OrchestrationConfig
	logger *logrus.Logger

	mu        sync.RWMutex
	health    map[string]*models.StageHealthStatus
	stats     map[string]*stageStats
	durations []time.Duration
}

const durationWindow = 20

// errorRateAlpha weights the newest observation in the smoothed error rate.
const errorRateAlpha = 0.3

// stageStats accumulates per-stage observations across health probes and
// executions. errorRate is exponentially smoothed; throughput derives from
// the invocation count over the stage's observed lifetime.
type stageStats struct {
	errorRate   float64
	observed    bool
	invocations int64
	since       time.Time
}

func NewManager(stages []Stage, cfg config.OrchestrationConfig, logger *logrus.Logger) *Manager {
	return &Manager{
		stages: stages,
		levels: DependencyLevels(stages),
		cfg:    cfg,
		logger: logger,
		health: make(map[string]*models.StageHealthStatus, len(stages)),
		stats:  make(map[string]*stageStats, len(stages)),
	}
}

// observeStage folds one success or failure into the stage's smoothed error
// rate. The first observation seeds the rate directly.
func (m *Manager) observeStage(stageID string, failed bool) {
	obs := 0.0
	if failed {
		obs = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stats[stageID]
	if !ok {
		st = &stageStats{since: time.Now()}
		m.stats[stageID] = st
	}
	if st.observed {
		st.errorRate = errorRateAlpha*obs + (1-errorRateAlpha)*st.errorRate
	} else {
		st.errorRate = obs
		st.observed = true
	}
	st.invocations++
}

func (m *Manager) stageRates(stageID string) (errorRate, throughput float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.stats[stageID]
	if !ok {
		return 0, 0
	}
	if elapsed := time.Since(st.since).Seconds(); elapsed > 0 {
		throughput = float64(st.invocations) / elapsed
	}
	return st.errorRate, throughput
}

// CheckStageHealth probes every stage with timeout, retry and exponential
// backoff. Safe to call repeatedly; each call replaces the previous snapshot.
func (m *Manager) CheckStageHealth(ctx context.Context) map[string]*models.StageHealthStatus {
	snapshot := make(map[string]*models.StageHealthStatus, len(m.stages))

	for _, stage := range m.stages {
		status := &models.StageHealthStatus{
			StageID:   stage.ID,
			Healthy:   true,
			LastCheck: time.Now(),
		}

		if stage.HealthCheck != nil {
			start := time.Now()
			err := m.probeWithRetry(ctx, stage)
			status.ResponseTimeMs = time.Since(start).Milliseconds()
			m.observeStage(stage.ID, err != nil)
			if err != nil {
				status.Healthy = false
				m.logger.WithError(err).WithField("stage", stage.ID).Warn("Stage health check failed")
			}
		}
		status.ErrorRate, status.Throughput = m.stageRates(stage.ID)

		status.Dependencies = make(map[string]bool, len(stage.Dependencies))
		for _, dep := range stage.Dependencies {
			status.Dependencies[dep] = true
		}

		snapshot[stage.ID] = status
	}

	// Dependency health propagates: a stage with an unhealthy dependency is
	// reported unhealthy too.
	for _, status := range snapshot {
		for dep := range status.Dependencies {
			if depStatus, ok := snapshot[dep]; ok {
				healthy := depStatus.Healthy
				status.Dependencies[dep] = healthy
				if !healthy {
					status.Healthy = false
				}
			}
		}
	}

	m.mu.Lock()
	m.health = snapshot
	m.mu.Unlock()

	return snapshot
}

func (m *Manager) probeWithRetry(ctx context.Context, stage Stage) error {
	delay := m.cfg.InitialDelay()
	var lastErr error

	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		probeCtx, cancel := context.WithTimeout(ctx, m.cfg.HealthCheckTimeout())
		lastErr = stage.HealthCheck(probeCtx)
		cancel()
		if lastErr == nil {
			return nil
		}

		if attempt < m.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * m.cfg.BackoffMultiplier)
		}
	}

	return lastErr
}

// HealthyStageCount reads the last health snapshot.
func (m *Manager) HealthyStageCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.health {
		if s.Healthy {
			count++
		}
	}
	return count
}

// StageHealth returns a copy of the last snapshot.
func (m *Manager) StageHealth() map[string]models.StageHealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]models.StageHealthStatus, len(m.health))
	for id, s := range m.health {
		out[id] = *s
	}
	return out
}

// SelectStrategy maps current load and stage health onto a coordination
// strategy. Load is the rolling average turn duration.
func (m *Manager) SelectStrategy() models.CoordinationStrategy {
	load := m.averageDuration()
	healthy := m.HealthyStageCount()

	lowLoad := time.Duration(m.cfg.LowLoadMs) * time.Millisecond
	highLoad := time.Duration(m.cfg.HighLoadMs) * time.Millisecond

	switch {
	case load <= lowLoad && healthy >= 4:
		return models.StrategyParallel
	case load <= highLoad && healthy >= 3:
		return models.StrategyCascading
	case load > highLoad:
		return models.StrategyAdaptive
	default:
		return models.StrategySequential
	}
}

func (m *Manager) averageDuration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.durations) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range m.durations {
		sum += d
	}
	return sum / time.Duration(len(m.durations))
}

func (m *Manager) recordDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations = append(m.durations, d)
	if len(m.durations) > durationWindow {
		m.durations = m.durations[len(m.durations)-durationWindow:]
	}
}

// Execute runs the stage graph under the given strategy and returns per-stage
// outcomes. The error return is reserved for context cancellation; stage
// failures are reported through the outcomes.
func (m *Manager) Execute(ctx context.Context, strategy models.CoordinationStrategy, exec *Execution) *models.OrchestrationMetadata {
	start := time.Now()

	meta := &models.OrchestrationMetadata{
		Strategy:      strategy,
		HealthyStages: m.HealthyStageCount(),
	}

	failed := make(map[string]bool)

	switch strategy {
	case models.StrategyParallel:
		m.runParallel(ctx, exec, meta, failed)
	case models.StrategyCascading:
		m.runCascading(ctx, exec, meta, failed)
	case models.StrategyAdaptive:
		m.runAdaptive(ctx, exec, meta, failed)
	default:
		m.runSequential(ctx, exec, meta, failed)
	}

	meta.TotalDurationMs = time.Since(start).Milliseconds()
	m.recordDuration(time.Since(start))

	m.logger.WithFields(logrus.Fields{
		"strategy":    strategy,
		"duration_ms": meta.TotalDurationMs,
		"stages":      len(meta.Stages),
	}).Debug("Stage execution completed")

	return meta
}

func (m *Manager) runSequential(ctx context.Context, exec *Execution, meta *models.OrchestrationMetadata, failed map[string]bool) {
	for _, level := range m.levels {
		for _, stage := range level {
			m.runOne(ctx, stage, exec, meta, failed)
		}
	}
}

// runParallel runs each dependency level concurrently and joins with a
// collect-all barrier so one failure never cancels its siblings.
func (m *Manager) runParallel(ctx context.Context, exec *Execution, meta *models.OrchestrationMetadata, failed map[string]bool) {
	for _, level := range m.levels {
		var wg sync.WaitGroup
		outcomes := make([]models.StageOutcome, len(level))

		for i, stage := range level {
			if m.shouldSkip(stage, failed) {
				outcomes[i] = skippedOutcome(stage)
				continue
			}
			wg.Add(1)
			go func(i int, stage Stage) {
				defer wg.Done()
				outcomes[i] = m.invoke(ctx, stage, exec)
			}(i, stage)
		}
		wg.Wait()

		for _, outcome := range outcomes {
			meta.Stages = append(meta.Stages, outcome)
			if !outcome.Succeeded && !outcome.Skipped {
				failed[outcome.StageID] = true
			}
			if outcome.Skipped {
				failed[outcome.StageID] = true
			}
		}
	}
}

// runCascading aborts all later levels as soon as any stage in a level fails.
func (m *Manager) runCascading(ctx context.Context, exec *Execution, meta *models.OrchestrationMetadata, failed map[string]bool) {
	aborted := false
	for _, level := range m.levels {
		for _, stage := range level {
			if aborted {
				meta.Stages = append(meta.Stages, skippedOutcome(stage))
				continue
			}
			m.runOne(ctx, stage, exec, meta, failed)
		}
		if !aborted {
			for _, stage := range level {
				if failed[stage.ID] {
					aborted = true
					break
				}
			}
		}
	}
}

// runAdaptive starts parallel, then retries anything that failed one at a
// time. Skipped dependents get a second chance once their dependency
// recovers.
func (m *Manager) runAdaptive(ctx context.Context, exec *Execution, meta *models.OrchestrationMetadata, failed map[string]bool) {
	m.runParallel(ctx, exec, meta, failed)
	if len(failed) == 0 {
		return
	}

	m.logger.WithField("failed_stages", len(failed)).Info("Adaptive fallback: retrying failed stages sequentially")

	recovered := make(map[string]bool)
	for _, level := range m.levels {
		for _, stage := range level {
			if !failed[stage.ID] {
				continue
			}
			blocked := false
			for _, dep := range stage.Dependencies {
				if failed[dep] && !recovered[dep] {
					blocked = true
					break
				}
			}
			if blocked {
				continue
			}
			outcome := m.invoke(ctx, stage, exec)
			meta.Stages = append(meta.Stages, outcome)
			if outcome.Succeeded {
				recovered[stage.ID] = true
			}
		}
	}

	for id := range recovered {
		delete(failed, id)
	}
}

func (m *Manager) runOne(ctx context.Context, stage Stage, exec *Execution, meta *models.OrchestrationMetadata, failed map[string]bool) {
	if m.shouldSkip(stage, failed) {
		meta.Stages = append(meta.Stages, skippedOutcome(stage))
		failed[stage.ID] = true
		return
	}
	outcome := m.invoke(ctx, stage, exec)
	meta.Stages = append(meta.Stages, outcome)
	if !outcome.Succeeded {
		failed[stage.ID] = true
	}
}

func (m *Manager) shouldSkip(stage Stage, failed map[string]bool) bool {
	for _, dep := range stage.Dependencies {
		if failed[dep] {
			return true
		}
	}
	return false
}

func (m *Manager) invoke(ctx context.Context, stage Stage, exec *Execution) models.StageOutcome {
	start := time.Now()

	stageCtx, cancel := context.WithTimeout(ctx, m.cfg.StageTimeout())
	defer cancel()

	err := stage.Run(stageCtx, exec)
	m.observeStage(stage.ID, err != nil)

	outcome := models.StageOutcome{
		StageID:    stage.ID,
		Succeeded:  err == nil,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		outcome.Error = err.Error()
		exec.MarkDegraded("stage " + stage.ID + " failed")
		m.logger.WithError(err).WithField("stage", stage.ID).Warn("Stage failed")
	}
	return outcome
}

func skippedOutcome(stage Stage) models.StageOutcome {
	return models.StageOutcome{
		StageID: stage.ID,
		Skipped: true,
	}
}
