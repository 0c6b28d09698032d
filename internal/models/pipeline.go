package models

import "time"

// In-memory value types flowing between pipeline components. None of these are
// persisted; they live for one request or one monitored session.

// CompressionLevel controls how much historical and reference material goes
// into a generation request.
type CompressionLevel string

const (
	CompressionLight     CompressionLevel = "light"
	CompressionRecent    CompressionLevel = "recent"
	CompressionSelective CompressionLevel = "selective"
	CompressionFull      CompressionLevel = "full"
)

type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// ContextBundle is the budget-bounded context handed to generation. Built
// fresh per request, owned by that request.
type ContextBundle struct {
	Level          CompressionLevel `json:"level"`
	MemoryIDs      []string         `json:"memory_ids"`
	KnowledgeIDs   []string         `json:"knowledge_ids"`
	Text           string           `json:"-"`
	Tokens         TokenUsage       `json:"tokens"`
	RelevanceScore float64          `json:"relevance_score"`
}

type IssueSeverity string

const (
	SeverityInfo     IssueSeverity = "info"
	SeverityWarning  IssueSeverity = "warning"
	SeverityCritical IssueSeverity = "critical"
	SeverityTimeout  IssueSeverity = "timeout"
)

type ValidationIssue struct {
	Severity    IssueSeverity `json:"severity"`
	Description string        `json:"description"`
}

type ClaimCheck struct {
	Claim    string `json:"claim"`
	Passed   bool   `json:"passed"`
	SourceID string `json:"source_id,omitempty"`
}

type FactCheckSummary struct {
	ClaimsChecked int          `json:"claims_checked"`
	ClaimsPassed  int          `json:"claims_passed"`
	PassRate      float64      `json:"pass_rate"`
	Claims        []ClaimCheck `json:"claims,omitempty"`
}

type ContradictionAnalysis struct {
	Found   bool     `json:"found"`
	Count   int      `json:"count"`
	Details []string `json:"details,omitempty"`
}

// ValidationResult is attached 1:1 to an interaction, never mutated.
type ValidationResult struct {
	IsValid               bool                  `json:"is_valid"`
	ValidationScore       float64               `json:"validation_score"`
	ConfidenceScore       float64               `json:"confidence_score"`
	FactCheck             FactCheckSummary      `json:"fact_check"`
	ContradictionAnalysis ContradictionAnalysis `json:"contradiction_analysis"`
	Issues                []ValidationIssue     `json:"issues,omitempty"`
	Recommendations       []string              `json:"recommendations,omitempty"`
	ProcessingTimeMs      int64                 `json:"processing_time_ms"`
}

// HasCriticalIssue reports whether any issue would veto validity.
func (v *ValidationResult) HasCriticalIssue() bool {
	for _, issue := range v.Issues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

type LearningType string

const (
	LearningCorrection    LearningType = "correction_learning"
	LearningPatterns      LearningType = "pattern_recognition"
	LearningHallucination LearningType = "hallucination_detection"
	LearningQuality       LearningType = "quality_optimization"
	LearningBehavioral    LearningType = "behavioral_adaptation"
)

type LearningStatus string

const (
	LearningCompleted LearningStatus = "completed"
	LearningPartial   LearningStatus = "partial"
	LearningFailed    LearningStatus = "failed"
)

type LearningRecommendation struct {
	Category  string `json:"category"`
	Frequency int    `json:"frequency"`
	Action    string `json:"action"`
}

// HallucinationRisk is a hint, not a confirmed diagnosis.
type HallucinationRisk struct {
	InteractionID string   `json:"interaction_id"`
	Rating        int      `json:"rating"`
	Signals       []string `json:"signals"`
}

type LearningResult struct {
	Type               LearningType             `json:"type"`
	Status             LearningStatus           `json:"status"`
	Confidence         float64                  `json:"confidence"`
	DataPoints         int                      `json:"data_points"`
	Insights           []string                 `json:"insights,omitempty"`
	Recommendations    []LearningRecommendation `json:"recommendations,omitempty"`
	HallucinationRisks []HallucinationRisk      `json:"hallucination_risks,omitempty"`
	ParameterHints     map[string]float64       `json:"parameter_hints,omitempty"`
}

type Adaptation struct {
	Type          string  `json:"type"`
	Reason        string  `json:"reason"`
	InteractionID string  `json:"interaction_id,omitempty"`
	Parameters    JSONMap `json:"parameters,omitempty"`
}

type PersonalizationResult struct {
	Profile     *PersonalizationProfile `json:"profile,omitempty"`
	Format      string                  `json:"format"`
	Style       string                  `json:"style"`
	Pace        string                  `json:"pace"`
	Adaptations []Adaptation            `json:"adaptations,omitempty"`
	Confidence  float64                 `json:"confidence"`
	Status      LearningStatus          `json:"status"`
}

type PatternType string

const (
	PatternBehavioral   PatternType = "behavioral"
	PatternFeedback     PatternType = "feedback"
	PatternPerformance  PatternType = "performance"
	PatternQuality      PatternType = "quality"
	PatternEngagement   PatternType = "engagement"
	PatternSatisfaction PatternType = "satisfaction"
	PatternCorrection   PatternType = "correction"
	PatternAbandonment  PatternType = "abandonment"
)

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// RecognizedPattern is recomputed per analysis window; a later run supersedes
// earlier results for the same window.
type RecognizedPattern struct {
	ID              string      `json:"id"`
	UserID          string      `json:"user_id"`
	Type            PatternType `json:"type"`
	Description     string      `json:"description"`
	Frequency       float64     `json:"frequency"`
	Confidence      float64     `json:"confidence"`
	Trend           Trend       `json:"trend"`
	Insights        []string    `json:"insights,omitempty"`
	Recommendations []string    `json:"recommendations,omitempty"`
}

type PatternAnalysisResult struct {
	Patterns    []RecognizedPattern `json:"patterns"`
	WindowStart time.Time           `json:"window_start"`
	WindowEnd   time.Time           `json:"window_end"`
	DataPoints  int                 `json:"data_points"`
}

type SessionStatus string

const (
	SessionActive      SessionStatus = "active"
	SessionPaused      SessionStatus = "paused"
	SessionCompleted   SessionStatus = "completed"
	SessionInterrupted SessionStatus = "interrupted"
)

// Terminal reports whether no further updates are accepted.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionInterrupted
}

type StudySessionMetrics struct {
	MessageCount      int      `json:"message_count"`
	ResponseTimes     []int64  `json:"response_times"`
	AvgResponseTimeMs int64    `json:"avg_response_time_ms"`
	AccuracyScore     float64  `json:"accuracy_score"`
	EngagementScore   float64  `json:"engagement_score"`
	SatisfactionScore float64  `json:"satisfaction_score"`
	ErrorCount        int      `json:"error_count"`
	ErrorRate         float64  `json:"error_rate"`
	TopicsCovered     []string `json:"topics_covered"`
}

type SessionEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Detail    string    `json:"detail,omitempty"`
}

// StudySession is one live monitored session. Event log is bounded; oldest
// entries drop past the cap.
type StudySession struct {
	SessionID    string              `json:"session_id"`
	UserID       string              `json:"user_id"`
	StartTime    time.Time           `json:"start_time"`
	EndTime      *time.Time          `json:"end_time,omitempty"`
	LastActivity time.Time           `json:"last_activity"`
	Status       SessionStatus       `json:"status"`
	Metrics      StudySessionMetrics `json:"metrics"`
	Events       []SessionEvent      `json:"events,omitempty"`
}

// Clone deep-copies the session, including metric slices and the event log,
// so a caller can read or mutate the copy without a lock.
func (s *StudySession) Clone() *StudySession {
	out := *s
	if s.EndTime != nil {
		end := *s.EndTime
		out.EndTime = &end
	}
	out.Metrics.ResponseTimes = append([]int64(nil), s.Metrics.ResponseTimes...)
	out.Metrics.TopicsCovered = append([]string(nil), s.Metrics.TopicsCovered...)
	out.Events = append([]SessionEvent(nil), s.Events...)
	return &out
}

type HealthLevel string

const (
	HealthHealthy  HealthLevel = "healthy"
	HealthWarning  HealthLevel = "warning"
	HealthCritical HealthLevel = "critical"
)

type SessionHealthStatus struct {
	SessionID      string          `json:"session_id"`
	Overall        HealthLevel     `json:"overall"`
	ProviderHealth map[string]bool `json:"provider_health"`
	QualityScore   float64         `json:"quality_score"`
	Warnings       []string        `json:"warnings,omitempty"`
	CriticalIssues []string        `json:"critical_issues,omitempty"`
	CheckedAt      time.Time       `json:"checked_at"`
}

type AlertType string

const (
	AlertPerformance AlertType = "performance"
	AlertQuality     AlertType = "quality"
	AlertEngagement  AlertType = "engagement"
	AlertTechnical   AlertType = "technical"
)

type Alert struct {
	SessionID string    `json:"session_id"`
	Type      AlertType `json:"type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	CreatedAt time.Time `json:"created_at"`
}

type CoordinationStrategy string

const (
	StrategySequential CoordinationStrategy = "sequential"
	StrategyParallel   CoordinationStrategy = "parallel"
	StrategyCascading  CoordinationStrategy = "cascading"
	StrategyAdaptive   CoordinationStrategy = "adaptive"
)

// StageHealthStatus is recomputed on every health-check tick and read by the
// coordination-strategy selector.
type StageHealthStatus struct {
	StageID        string          `json:"stage_id"`
	Healthy        bool            `json:"healthy"`
	LastCheck      time.Time       `json:"last_check"`
	ResponseTimeMs int64           `json:"response_time_ms"`
	ErrorRate      float64         `json:"error_rate"`
	Throughput     float64         `json:"throughput"`
	Dependencies   map[string]bool `json:"dependencies,omitempty"`
}

type StageOutcome struct {
	StageID    string `json:"stage_id"`
	Succeeded  bool   `json:"succeeded"`
	Skipped    bool   `json:"skipped"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type OrchestrationMetadata struct {
	Strategy        CoordinationStrategy `json:"strategy"`
	Stages          []StageOutcome       `json:"stages"`
	HealthyStages   int                  `json:"healthy_stages"`
	TotalDurationMs int64                `json:"total_duration_ms"`
}
