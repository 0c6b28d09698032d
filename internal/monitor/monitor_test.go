package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studybuddy/backend/internal/config"
	"github.com/studybuddy/backend/internal/models"
)

type memRecordRepo struct {
	records []models.SessionRecord
}

func (m *memRecordRepo) Create(r *models.SessionRecord) error {
	m.records = append(m.records, *r)
	return nil
}
func (m *memRecordRepo) GetBySessionID(sessionID string) (*models.SessionRecord, error) {
	for i := range m.records {
		if m.records[i].SessionID == sessionID {
			return &m.records[i], nil
		}
	}
	return nil, models.ErrNotFound
}
func (m *memRecordRepo) ListByUser(userID string, limit int) ([]models.SessionRecord, error) {
	return m.records, nil
}

func testMonitorConfig() config.MonitorConfig {
	return config.MonitorConfig{
		SweepIntervalSeconds: 5,
		IdleTimeoutMinutes:   30,
		MaxSessionEvents:     10,
		ErrorRateCritical:    0.3,
		ErrorRateWarning:     0.1,
		ErrorRateAlert:       0.15,
		ResponseTimeWarnMs:   5000,
		ResponseTimeAlertMs:  10000,
		ResponseTimeCritMs:   20000,
		AccuracyAlert:        0.7,
		EngagementWarning:    0.5,
		EngagementAlert:      0.4,
		QualityWeights:       []float64{0.3, 0.25, 0.2, 0.15, 0.1},
	}
}

func newTestMonitor() (*Monitor, *memRecordRepo) {
	records := &memRecordRepo{}
	return New(NewMemoryStore(), records, nil, testMonitorConfig(), logrus.New()), records
}

func TestStartSessionIsIdempotentWhileActive(t *testing.T) {
	m, _ := newTestMonitor()

	first, err := m.StartSession("user-1", "sess-1")
	require.NoError(t, err)

	second, err := m.StartSession("user-1", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, first.StartTime, second.StartTime)
	assert.Equal(t, 1, m.store.Len())
}

func TestStartSessionRequiresIDs(t *testing.T) {
	m, _ := newTestMonitor()

	_, err := m.StartSession("", "sess-1")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = m.StartSession("user-1", "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestRecordTurnUpdatesMetrics(t *testing.T) {
	m, _ := newTestMonitor()
	_, err := m.StartSession("user-1", "sess-1")
	require.NoError(t, err)

	require.NoError(t, m.RecordTurn("sess-1", 1000, 0.8, 0.9, false, "algebra"))
	require.NoError(t, m.RecordTurn("sess-1", 2000, 0.6, 0.7, true, "algebra"))

	session, err := m.Get("sess-1")
	require.NoError(t, err)
	assert.Equal(t, 2, session.Metrics.MessageCount)
	assert.Equal(t, int64(1500), session.Metrics.AvgResponseTimeMs)
	assert.InDelta(t, 0.5, session.Metrics.ErrorRate, 0.001)
	assert.Equal(t, []string{"algebra"}, session.Metrics.TopicsCovered)
	assert.InDelta(t, 0.7, session.Metrics.AccuracyScore, 0.001)
}

func TestTerminalSessionRejectsWrites(t *testing.T) {
	m, records := newTestMonitor()
	_, err := m.StartSession("user-1", "sess-1")
	require.NoError(t, err)
	require.NoError(t, m.RecordTurn("sess-1", 500, 0.9, 0.9, false, ""))

	require.NoError(t, m.EndSession("sess-1"))

	// Session evicted from the live store; late results land nowhere.
	err = m.RecordTurn("sess-1", 500, 0.9, 0.9, false, "")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.Len(t, records.records, 1)
	assert.Equal(t, "completed", records.records[0].Status)
	assert.Greater(t, records.records[0].Effectiveness, 0.0)
}

func TestEndSessionTwiceFails(t *testing.T) {
	m, _ := newTestMonitor()
	_, err := m.StartSession("user-1", "sess-1")
	require.NoError(t, err)
	require.NoError(t, m.EndSession("sess-1"))

	err = m.EndSession("sess-1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPauseResumeLifecycle(t *testing.T) {
	m, _ := newTestMonitor()
	_, err := m.StartSession("user-1", "sess-1")
	require.NoError(t, err)

	require.NoError(t, m.PauseSession("sess-1"))
	assert.ErrorIs(t, m.PauseSession("sess-1"), models.ErrInvalidInput)

	require.NoError(t, m.ResumeSession("sess-1"))
	assert.ErrorIs(t, m.ResumeSession("sess-1"), models.ErrInvalidInput)
}

func TestCheckSessionHealthClassifies(t *testing.T) {
	m, _ := newTestMonitor()
	_, err := m.StartSession("user-1", "sess-1")
	require.NoError(t, err)

	// Healthy session.
	require.NoError(t, m.RecordTurn("sess-1", 1000, 0.9, 0.9, false, ""))
	health, err := m.CheckSessionHealth("sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.HealthHealthy, health.Overall)

	// Pile up errors until critical.
	for i := 0; i < 5; i++ {
		require.NoError(t, m.RecordTurn("sess-1", 1000, 0.9, 0.9, true, ""))
	}
	health, err = m.CheckSessionHealth("sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.HealthCritical, health.Overall)
	assert.NotEmpty(t, health.CriticalIssues)
}

func TestAlertsRaisedOnThresholds(t *testing.T) {
	m, _ := newTestMonitor()
	_, err := m.StartSession("user-1", "sess-1")
	require.NoError(t, err)

	require.NoError(t, m.RecordTurn("sess-1", 500, 0.9, 0.9, true, ""))

	select {
	case alert := <-m.Alerts():
		assert.Equal(t, models.AlertTechnical, alert.Type)
		assert.Equal(t, "sess-1", alert.SessionID)
	case <-time.After(time.Second):
		t.Fatal("expected a technical alert")
	}
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	m, records := newTestMonitor()
	_, err := m.StartSession("user-1", "sess-1")
	require.NoError(t, err)

	require.NoError(t, m.store.Update("sess-1", func(s *models.StudySession) error {
		s.LastActivity = time.Now().Add(-time.Hour)
		return nil
	}))
	m.sweep()

	_, err = m.Get("sess-1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.Len(t, records.records, 1)
	assert.Equal(t, "interrupted", records.records[0].Status)
}

func TestEventLogIsBounded(t *testing.T) {
	m, _ := newTestMonitor()
	_, err := m.StartSession("user-1", "sess-1")
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		require.NoError(t, m.RecordTurn("sess-1", 100, 0.9, 0.9, false, ""))
	}

	session, err := m.Get("sess-1")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(session.Events), 10)
}

func TestConcurrentTurnsDoNotLoseUpdates(t *testing.T) {
	m, _ := newTestMonitor()
	_, err := m.StartSession("user-1", "sess-1")
	require.NoError(t, err)

	const turns = 50
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.RecordTurn("sess-1", 1000, 0.8, 0.8, false, "algebra"))
			assert.NoError(t, m.RecordSatisfaction("sess-1", 0.7))
			_, healthErr := m.CheckSessionHealth("sess-1")
			assert.NoError(t, healthErr)
		}()
	}
	wg.Wait()

	session, err := m.Get("sess-1")
	require.NoError(t, err)
	assert.Equal(t, turns, session.Metrics.MessageCount)
	assert.Equal(t, int64(1000), session.Metrics.AvgResponseTimeMs)
	assert.Equal(t, []string{"algebra"}, session.Metrics.TopicsCovered)
}

func nextAlert(t *testing.T, m *Monitor, alertType models.AlertType) models.Alert {
	t.Helper()
	for {
		select {
		case alert := <-m.Alerts():
			if alert.Type == alertType {
				return alert
			}
		case <-time.After(time.Second):
			t.Fatalf("no %s alert raised", alertType)
		}
	}
}

func TestPerformanceAlertSeverityEscalates(t *testing.T) {
	m, _ := newTestMonitor()
	_, err := m.StartSession("user-1", "sess-1")
	require.NoError(t, err)

	require.NoError(t, m.RecordTurn("sess-1", 12000, 0.9, 0.9, false, ""))
	alert := nextAlert(t, m, models.AlertPerformance)
	assert.Equal(t, "high", alert.Severity)

	// Second slow turn pushes the average past the critical threshold.
	require.NoError(t, m.RecordTurn("sess-1", 40000, 0.9, 0.9, false, ""))
	alert = nextAlert(t, m, models.AlertPerformance)
	assert.Equal(t, "critical", alert.Severity)
}

func TestSessionHealthReflectsProviderHealth(t *testing.T) {
	m, _ := newTestMonitor()
	providers := map[string]bool{"context": true, "validation": false}
	m.SetProviderHealthSource(func() map[string]bool { return providers })

	_, err := m.StartSession("user-1", "sess-1")
	require.NoError(t, err)
	require.NoError(t, m.RecordTurn("sess-1", 1000, 0.9, 0.9, false, ""))

	health, err := m.CheckSessionHealth("sess-1")
	require.NoError(t, err)
	assert.Equal(t, providers, health.ProviderHealth)
	assert.Equal(t, models.HealthHealthy, health.Overall)

	providers = map[string]bool{"context": false, "validation": false}
	health, err = m.CheckSessionHealth("sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.HealthCritical, health.Overall)
	assert.Contains(t, health.CriticalIssues, "no healthy providers available")
}
