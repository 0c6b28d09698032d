package models

type ChatRequest struct {
	UserID          string `json:"-"`
	ConversationID  string `json:"conversation_id"`
	SessionID       string `json:"session_id"`
	Message         string `json:"message" binding:"required"`
	ChatType        string `json:"chat_type"`
	IsPersonalQuery bool   `json:"is_personal_query"`
}

type QueryClassification struct {
	Category   string  `json:"category"`
	Subject    string  `json:"subject"`
	Complexity float64 `json:"complexity"`
	IsPersonal bool    `json:"is_personal"`
}

type ChatResponse struct {
	Content         string                 `json:"content"`
	ModelUsed       string                 `json:"model_used"`
	ProviderUsed    string                 `json:"provider_used"`
	TokensUsed      TokenUsage             `json:"tokens_used"`
	LatencyMs       int64                  `json:"latency_ms"`
	ConversationID  string                 `json:"conversation_id,omitempty"`
	InteractionID   string                 `json:"interaction_id,omitempty"`
	Classification  QueryClassification    `json:"query_classification"`
	Validation      *ValidationResult      `json:"validation,omitempty"`
	Personalization *PersonalizationResult `json:"personalization,omitempty"`
	Degraded        bool                   `json:"degraded,omitempty"`
	DegradedReason  string                 `json:"degraded_reason,omitempty"`
	Orchestration   *OrchestrationMetadata `json:"orchestration,omitempty"`
}

// StreamEvent frames one server-sent event. The terminal event is always
// "end", even after an "error" event, so receivers can detect termination.
type StreamEvent struct {
	Type string      `json:"type"` // start|content|metadata|error|end
	Data interface{} `json:"data,omitempty"`
}

type ExplicitFeedbackPayload struct {
	Rating      int      `json:"rating"`
	Corrections []string `json:"corrections"`
	Comment     string   `json:"comment"`
}

type ImplicitFeedbackPayload struct {
	TimeSpentMs       int64   `json:"time_spent_ms"`
	ScrollDepth       float64 `json:"scroll_depth"`
	FollowUpQuestions int     `json:"follow_up_questions"`
	CorrectionsCount  int     `json:"corrections_count"`
	Abandoned         bool    `json:"abandoned"`
}

type FeedbackRequest struct {
	UserID        string                   `json:"-"`
	SessionID     string                   `json:"session_id"`
	InteractionID string                   `json:"interaction_id" binding:"required"`
	Source        string                   `json:"source" binding:"required"`
	Explicit      *ExplicitFeedbackPayload `json:"explicit,omitempty"`
	Implicit      *ImplicitFeedbackPayload `json:"implicit,omitempty"`
}

type LearningRequest struct {
	UserID            string       `json:"-"`
	Type              LearningType `json:"learning_type" binding:"required"`
	TargetMetrics     []string     `json:"target_metrics"`
	MinConfidence     float64      `json:"min_confidence"`
	RequireValidation bool         `json:"require_validation"`
	LookbackDays      int          `json:"lookback_days"`
}

type PersonalizationRequest struct {
	UserID    string `json:"-"`
	SessionID string `json:"session_id"`
	Subject   string `json:"subject"`
}

type PatternRequest struct {
	UserID            string      `json:"-" form:"-"`
	PatternType       PatternType `json:"pattern_type" form:"pattern_type"`
	TimeRangeDays     int         `json:"time_range_days" form:"time_range_days"`
	RecognitionMethod string      `json:"recognition_method" form:"recognition_method"`
	MinConfidence     float64     `json:"min_confidence" form:"min_confidence"`
	MaxPatterns       int         `json:"max_patterns" form:"max_patterns"`
}

type SessionStartRequest struct {
	UserID    string `json:"-"`
	SessionID string `json:"session_id"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services,omitempty"`
}
