package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/studybuddy/backend/internal/config"
	"github.com/studybuddy/backend/internal/models"
	"github.com/studybuddy/backend/pkg/utils"
)

// Monitor tracks live study sessions. Sessions live in memory while active;
// reaching a terminal state persists a summary record and evicts the session.
// Writes to a terminal session are rejected, so late pipeline results are
// discarded instead of resurrecting a finished session.
//
// All metric mutation runs inside SessionStore.Update so concurrent turns on
// the same session fold in without lost updates.
type Monitor struct {
	store   SessionStore
	records models.SessionRecordRepository
	metrics *Metrics
	cfg     config.MonitorConfig
	logger  *logrus.Logger

	providerHealth func() map[string]bool

	alerts chan models.Alert
}

func New(store SessionStore, records models.SessionRecordRepository, metrics *Metrics, cfg config.MonitorConfig, logger *logrus.Logger) *Monitor {
	return &Monitor{
		store:   store,
		records: records,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger,
		alerts:  make(chan models.Alert, 64),
	}
}

// Alerts exposes the alert stream. The channel is never closed; drain it or
// alerts are dropped once the buffer fills.
func (m *Monitor) Alerts() <-chan models.Alert {
	return m.alerts
}

// SetProviderHealthSource wires the upstream provider health snapshot into
// session health checks. Call before serving traffic.
func (m *Monitor) SetProviderHealthSource(source func() map[string]bool) {
	m.providerHealth = source
}

// StartSession registers a session for monitoring. Restarting an already
// active session is a no-op returning the existing session.
func (m *Monitor) StartSession(userID, sessionID string) (*models.StudySession, error) {
	if sessionID == "" || userID == "" {
		return nil, fmt.Errorf("user ID and session ID are required: %w", models.ErrInvalidInput)
	}

	if existing, ok := m.store.Get(sessionID); ok {
		if existing.Status.Terminal() {
			return nil, fmt.Errorf("session %s already finished: %w", sessionID, models.ErrSessionTerminal)
		}
		return existing, nil
	}

	now := time.Now()
	session := &models.StudySession{
		SessionID:    sessionID,
		UserID:       userID,
		StartTime:    now,
		LastActivity: now,
		Status:       models.SessionActive,
	}
	m.appendEvent(session, "session_started", "")
	m.store.Put(session)

	if m.metrics != nil {
		m.metrics.ActiveSessions.Set(float64(m.store.Len()))
	}

	m.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"user_id":    userID,
	}).Info("Session monitoring started")

	return session, nil
}

// RecordTurn folds one chat turn's measurements into the session metrics.
func (m *Monitor) RecordTurn(sessionID string, responseTimeMs int64, accuracy, engagement float64, isError bool, topic string) error {
	session, err := m.update(sessionID, func(s *models.StudySession) error {
		metrics := &s.Metrics
		metrics.MessageCount++
		metrics.ResponseTimes = append(metrics.ResponseTimes, responseTimeMs)
		if len(metrics.ResponseTimes) > 100 {
			metrics.ResponseTimes = metrics.ResponseTimes[len(metrics.ResponseTimes)-100:]
		}
		metrics.AvgResponseTimeMs = meanInt64(metrics.ResponseTimes)

		// Running averages, weighted toward history.
		metrics.AccuracyScore = runningAverage(metrics.AccuracyScore, accuracy, metrics.MessageCount)
		metrics.EngagementScore = runningAverage(metrics.EngagementScore, engagement, metrics.MessageCount)

		if isError {
			metrics.ErrorCount++
		}
		metrics.ErrorRate = float64(metrics.ErrorCount) / float64(metrics.MessageCount)

		if topic != "" && !containsString(metrics.TopicsCovered, topic) {
			metrics.TopicsCovered = append(metrics.TopicsCovered, topic)
		}

		s.LastActivity = time.Now()
		m.appendEvent(s, "turn_recorded", topic)
		return nil
	})
	if err != nil {
		return err
	}

	m.evaluateAlerts(session)
	return nil
}

// RecordSatisfaction folds a feedback quality score into the session.
func (m *Monitor) RecordSatisfaction(sessionID string, quality float64) error {
	_, err := m.update(sessionID, func(s *models.StudySession) error {
		s.Metrics.SatisfactionScore = runningAverage(s.Metrics.SatisfactionScore, quality, s.Metrics.MessageCount)
		s.LastActivity = time.Now()
		return nil
	})
	return err
}

// PauseSession moves an active session to paused.
func (m *Monitor) PauseSession(sessionID string) error {
	_, err := m.update(sessionID, func(s *models.StudySession) error {
		if s.Status != models.SessionActive {
			return fmt.Errorf("cannot pause session in state %s: %w", s.Status, models.ErrInvalidInput)
		}
		s.Status = models.SessionPaused
		m.appendEvent(s, "session_paused", "")
		return nil
	})
	return err
}

// ResumeSession moves a paused session back to active.
func (m *Monitor) ResumeSession(sessionID string) error {
	_, err := m.update(sessionID, func(s *models.StudySession) error {
		if s.Status != models.SessionPaused {
			return fmt.Errorf("cannot resume session in state %s: %w", s.Status, models.ErrInvalidInput)
		}
		s.Status = models.SessionActive
		s.LastActivity = time.Now()
		m.appendEvent(s, "session_resumed", "")
		return nil
	})
	return err
}

// EndSession finishes a session as completed and persists its record.
func (m *Monitor) EndSession(sessionID string) error {
	return m.finish(sessionID, models.SessionCompleted)
}

// Get returns a snapshot of the live session, if monitored.
func (m *Monitor) Get(sessionID string) (*models.StudySession, error) {
	session, ok := m.store.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("session %s not monitored: %w", sessionID, models.ErrNotFound)
	}
	return session, nil
}

func (m *Monitor) finish(sessionID string, status models.SessionStatus) error {
	session, err := m.update(sessionID, func(s *models.StudySession) error {
		now := time.Now()
		s.Status = status
		s.EndTime = &now
		m.appendEvent(s, "session_finished", string(status))
		return nil
	})
	if err != nil {
		return err
	}

	if err := m.persistRecord(session); err != nil {
		m.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to persist session record")
	}

	m.store.Delete(sessionID)

	if m.metrics != nil {
		m.metrics.ActiveSessions.Set(float64(m.store.Len()))
		m.metrics.SessionsCompleted.WithLabelValues(string(status)).Inc()
	}

	m.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"status":     status,
		"messages":   session.Metrics.MessageCount,
	}).Info("Session finished")

	return nil
}

// update applies fn to the stored session under the store lock, rejecting
// writes to terminal sessions. It returns a post-mutation snapshot.
func (m *Monitor) update(sessionID string, fn func(*models.StudySession) error) (*models.StudySession, error) {
	var snapshot *models.StudySession
	err := m.store.Update(sessionID, func(s *models.StudySession) error {
		if s.Status.Terminal() {
			return fmt.Errorf("session %s is finished: %w", sessionID, models.ErrSessionTerminal)
		}
		if err := fn(s); err != nil {
			return err
		}
		snapshot = s.Clone()
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("session %s not monitored: %w", sessionID, models.ErrNotFound)
		}
		return nil, err
	}
	return snapshot, nil
}

func (m *Monitor) persistRecord(session *models.StudySession) error {
	record := &models.SessionRecord{
		SessionID:         session.SessionID,
		UserID:            session.UserID,
		StartTime:         session.StartTime,
		EndTime:           session.EndTime,
		Status:            string(session.Status),
		MessageCount:      session.Metrics.MessageCount,
		AvgResponseTimeMs: session.Metrics.AvgResponseTimeMs,
		AccuracyScore:     session.Metrics.AccuracyScore,
		EngagementScore:   session.Metrics.EngagementScore,
		SatisfactionScore: session.Metrics.SatisfactionScore,
		ErrorRate:         session.Metrics.ErrorRate,
		Effectiveness:     m.effectiveness(session),
		TopicsCovered:     models.StringArray(session.Metrics.TopicsCovered),
	}
	return m.records.Create(record)
}

// effectiveness blends the session metrics with the configured weights:
// accuracy, engagement, satisfaction, error-free rate, responsiveness.
func (m *Monitor) effectiveness(session *models.StudySession) float64 {
	w := m.cfg.QualityWeights
	if len(w) != 5 {
		return 0
	}
	metrics := session.Metrics

	responsiveness := 1.0
	if metrics.AvgResponseTimeMs > 0 {
		responsiveness = 1 - float64(metrics.AvgResponseTimeMs)/float64(m.cfg.ResponseTimeCritMs)
		responsiveness = utils.Clamp01(responsiveness)
	}

	return utils.Clamp01(
		w[0]*metrics.AccuracyScore +
			w[1]*metrics.EngagementScore +
			w[2]*metrics.SatisfactionScore +
			w[3]*(1-metrics.ErrorRate) +
			w[4]*responsiveness)
}

// CheckSessionHealth classifies a session and lists its problems.
func (m *Monitor) CheckSessionHealth(sessionID string) (*models.SessionHealthStatus, error) {
	session, ok := m.store.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("session %s not monitored: %w", sessionID, models.ErrNotFound)
	}

	status := &models.SessionHealthStatus{
		SessionID:    sessionID,
		Overall:      models.HealthHealthy,
		QualityScore: m.effectiveness(session),
		CheckedAt:    time.Now(),
	}

	metrics := session.Metrics

	if metrics.ErrorRate >= m.cfg.ErrorRateCritical {
		status.CriticalIssues = append(status.CriticalIssues,
			fmt.Sprintf("error rate %.0f%% at critical level", metrics.ErrorRate*100))
	} else if metrics.ErrorRate >= m.cfg.ErrorRateWarning {
		status.Warnings = append(status.Warnings,
			fmt.Sprintf("error rate %.0f%% elevated", metrics.ErrorRate*100))
	}

	if metrics.AvgResponseTimeMs >= m.cfg.ResponseTimeCritMs {
		status.CriticalIssues = append(status.CriticalIssues,
			fmt.Sprintf("average response time %dms at critical level", metrics.AvgResponseTimeMs))
	} else if metrics.AvgResponseTimeMs >= m.cfg.ResponseTimeWarnMs {
		status.Warnings = append(status.Warnings,
			fmt.Sprintf("average response time %dms elevated", metrics.AvgResponseTimeMs))
	}

	if metrics.MessageCount > 0 && metrics.EngagementScore < m.cfg.EngagementWarning {
		status.Warnings = append(status.Warnings, "engagement below expected range")
	}

	if m.providerHealth != nil {
		status.ProviderHealth = m.providerHealth()
		healthy := 0
		for _, ok := range status.ProviderHealth {
			if ok {
				healthy++
			}
		}
		if len(status.ProviderHealth) > 0 && healthy == 0 {
			status.CriticalIssues = append(status.CriticalIssues, "no healthy providers available")
		}
	}

	switch {
	case len(status.CriticalIssues) > 0:
		status.Overall = models.HealthCritical
	case len(status.Warnings) > 0:
		status.Overall = models.HealthWarning
	}

	return status, nil
}

// evaluateAlerts raises threshold alerts for the session after each turn.
func (m *Monitor) evaluateAlerts(session *models.StudySession) {
	metrics := session.Metrics

	if metrics.ErrorRate >= m.cfg.ErrorRateAlert {
		m.raise(models.Alert{
			SessionID: session.SessionID,
			Type:      models.AlertTechnical,
			Severity:  "critical",
			Message:   "session error rate past alert threshold",
			Value:     metrics.ErrorRate,
			Threshold: m.cfg.ErrorRateAlert,
		})
	}
	if metrics.AvgResponseTimeMs >= m.cfg.ResponseTimeAlertMs {
		severity := "high"
		if metrics.AvgResponseTimeMs >= m.cfg.ResponseTimeCritMs {
			severity = "critical"
		}
		m.raise(models.Alert{
			SessionID: session.SessionID,
			Type:      models.AlertPerformance,
			Severity:  severity,
			Message:   "average response time past alert threshold",
			Value:     float64(metrics.AvgResponseTimeMs),
			Threshold: float64(m.cfg.ResponseTimeAlertMs),
		})
	}
	if metrics.MessageCount >= 3 && metrics.AccuracyScore < m.cfg.AccuracyAlert {
		m.raise(models.Alert{
			SessionID: session.SessionID,
			Type:      models.AlertQuality,
			Severity:  "warning",
			Message:   "session accuracy below alert threshold",
			Value:     metrics.AccuracyScore,
			Threshold: m.cfg.AccuracyAlert,
		})
	}
	if metrics.MessageCount >= 3 && metrics.EngagementScore < m.cfg.EngagementAlert {
		m.raise(models.Alert{
			SessionID: session.SessionID,
			Type:      models.AlertEngagement,
			Severity:  "warning",
			Message:   "session engagement below alert threshold",
			Value:     metrics.EngagementScore,
			Threshold: m.cfg.EngagementAlert,
		})
	}
}

func (m *Monitor) raise(alert models.Alert) {
	alert.CreatedAt = time.Now()
	if m.metrics != nil {
		m.metrics.AlertsRaised.WithLabelValues(string(alert.Type)).Inc()
	}
	select {
	case m.alerts <- alert:
	default:
		m.logger.WithField("session_id", alert.SessionID).Warn("Alert buffer full, dropping alert")
	}
}

// Run sweeps for idle sessions until ctx is done. Idle sessions are finished
// as interrupted and persisted like any other terminal session.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Monitor) sweep() {
	cutoff := time.Now().Add(-m.cfg.IdleTimeout())
	for _, session := range m.store.List() {
		if session.LastActivity.After(cutoff) {
			continue
		}
		m.logger.WithFields(logrus.Fields{
			"session_id": session.SessionID,
			"idle_since": session.LastActivity,
		}).Info("Evicting idle session")
		if err := m.finish(session.SessionID, models.SessionInterrupted); err != nil {
			m.logger.WithError(err).WithField("session_id", session.SessionID).Warn("Idle eviction failed")
		}
	}
}

func (m *Monitor) appendEvent(session *models.StudySession, eventType, detail string) {
	session.Events = append(session.Events, models.SessionEvent{
		Timestamp: time.Now(),
		Type:      eventType,
		Detail:    detail,
	})
	if max := m.cfg.MaxSessionEvents; max > 0 && len(session.Events) > max {
		session.Events = session.Events[len(session.Events)-max:]
	}
}

func runningAverage(current, value float64, count int) float64 {
	if count <= 1 {
		return value
	}
	n := float64(count)
	return (current*(n-1) + value) / n
}

func meanInt64(values []int64) int64 {
	if len(values) == 0 {
		return 0
	}
	var sum int64
	for _, v := range values {
		sum += v
	}
	return sum / int64(len(values))
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
