package models

// GORM models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StringArray for PostgreSQL array support
type StringArray []string

func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "{}", nil
	}
	return fmt.Sprintf("{%s}", strings.Join(s, ",")), nil
}

func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}

	switch v := value.(type) {
	case string:
		if v == "{}" {
			*s = StringArray{}
			return nil
		}
		v = strings.Trim(v, "{}")
		if v == "" {
			*s = StringArray{}
			return nil
		}
		*s = StringArray(strings.Split(v, ","))
	case []byte:
		return s.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into StringArray", value)
	}
	return nil
}

// JSONMap stores loosely structured payloads as jsonb.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	switch v := value.(type) {
	case string:
		return json.Unmarshal([]byte(v), m)
	case []byte:
		return json.Unmarshal(v, m)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}
}

// Base model with common fields. IDs are UUIDs handed out by the auth gateway
// for users and generated here for everything else.
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// Conversation groups messages for one user thread.
type Conversation struct {
	BaseModel
	UserID       string `json:"user_id" gorm:"type:uuid;not null;index"`
	Title        string `json:"title"`
	ChatType     string `json:"chat_type" gorm:"default:'study'"`
	Archived     bool   `json:"archived" gorm:"default:false"`
	Pinned       bool   `json:"pinned" gorm:"default:false"`
	MessageCount int    `json:"message_count" gorm:"default:0"`
	TokenCount   int    `json:"token_count" gorm:"default:0"`

	// Associations
	Messages []Message `json:"messages,omitempty" gorm:"foreignKey:ConversationID"`
}

// Message is a single turn inside a conversation.
type Message struct {
	BaseModel
	ConversationID  string `json:"conversation_id" gorm:"type:uuid;not null;index"`
	Role            string `json:"role" gorm:"not null;check:role IN ('user','assistant','system')"`
	Content         string `json:"content" gorm:"not null"`
	ModelUsed       string `json:"model_used"`
	ProviderUsed    string `json:"provider_used"`
	InputTokens     int    `json:"input_tokens" gorm:"default:0"`
	OutputTokens    int    `json:"output_tokens" gorm:"default:0"`
	LatencyMs       int64  `json:"latency_ms" gorm:"default:0"`
	ContextIncluded bool   `json:"context_included" gorm:"default:false"`
}

// Interaction is one user turn plus one assistant turn with a performance
// snapshot. Immutable once stored.
type Interaction struct {
	BaseModel
	UserID             string  `json:"user_id" gorm:"type:uuid;not null;index"`
	SessionID          string  `json:"session_id" gorm:"index"`
	ConversationID     string  `json:"conversation_id" gorm:"type:uuid;index"`
	Query              string  `json:"query" gorm:"not null"`
	Response           string  `json:"response"`
	ResponseTimeMs     int64   `json:"response_time_ms"`
	AccuracyEstimate   float64 `json:"accuracy_estimate"`
	EngagementEstimate float64 `json:"engagement_estimate"`
}

// Memory is a durable, retrievable record derived from an interaction.
// Mutated only to update access metadata or re-score relevance.
type Memory struct {
	BaseModel
	UserID         string      `json:"user_id" gorm:"type:uuid;not null;index"`
	ConversationID string      `json:"conversation_id" gorm:"type:uuid;index"`
	MemoryType     string      `json:"memory_type" gorm:"default:'learning_interaction'"`
	Content        string      `json:"content" gorm:"not null"`
	QualityScore   float64     `json:"quality_score" gorm:"default:0.5"`
	RelevanceScore float64     `json:"relevance_score" gorm:"default:0.5"`
	Retention      string      `json:"retention" gorm:"default:'short_term';check:retention IN ('session','short_term','medium_term','long_term')"`
	Tags           StringArray `json:"tags" gorm:"type:text[]"`
	RelatedIDs     StringArray `json:"related_ids" gorm:"type:text[]"`
	AccessCount    int         `json:"access_count" gorm:"default:0"`
	LastAccessed   *time.Time  `json:"last_accessed"`
}

// KnowledgeSource is a seeded reference document. Read-only from the
// pipeline's perspective.
type KnowledgeSource struct {
	BaseModel
	Title            string      `json:"title" gorm:"unique;not null"`
	Content          string      `json:"content" gorm:"not null"`
	Subjects         StringArray `json:"subjects" gorm:"type:text[]"`
	ReliabilityScore float64     `json:"reliability_score" gorm:"default:0.5"`
	EducationalValue float64     `json:"educational_value" gorm:"default:0.5"`
	SourceURL        string      `json:"source_url"`
	ContentHash      string      `json:"content_hash"`
	IsActive         bool        `json:"is_active" gorm:"default:true"`
}

// Feedback is one feedback event for an interaction. Immutable.
type Feedback struct {
	BaseModel
	UserID        string  `json:"user_id" gorm:"type:uuid;not null;index"`
	SessionID     string  `json:"session_id" gorm:"index"`
	InteractionID string  `json:"interaction_id" gorm:"type:uuid;not null;index"`
	Source        string  `json:"source" gorm:"not null;check:source IN ('explicit','implicit','hybrid')"`
	QualityScore  float64 `json:"quality_score"`
	IsActive      bool    `json:"is_active" gorm:"default:true"`

	// Explicit payload
	Rating      int         `json:"rating" gorm:"default:0"`
	Corrections StringArray `json:"corrections" gorm:"type:text[]"`
	Comment     string      `json:"comment"`

	// Implicit payload
	TimeSpentMs       int64   `json:"time_spent_ms" gorm:"default:0"`
	ScrollDepth       float64 `json:"scroll_depth" gorm:"default:0"`
	FollowUpQuestions int     `json:"follow_up_questions" gorm:"default:0"`
	CorrectionsCount  int     `json:"corrections_count" gorm:"default:0"`
	Abandoned         bool    `json:"abandoned" gorm:"default:false"`
}

// PersonalizationProfile is the long-lived per-user record. Nested groups are
// jsonb so the shape can evolve without migrations.
type PersonalizationProfile struct {
	BaseModel
	UserID            string  `json:"user_id" gorm:"type:uuid;uniqueIndex;not null"`
	LearningStyle     string  `json:"learning_style" gorm:"default:'reading_writing';check:learning_style IN ('visual','auditory','kinesthetic','reading_writing')"`
	StyleStrength     float64 `json:"style_strength" gorm:"default:0.5"`
	Preferences       JSONMap `json:"preferences" gorm:"type:jsonb"`
	PerformanceStats  JSONMap `json:"performance_stats" gorm:"type:jsonb"`
	EffectivePatterns JSONMap `json:"effective_patterns" gorm:"type:jsonb"`
	AdaptationLog     JSONMap `json:"adaptation_log" gorm:"type:jsonb"`
	AdaptationCount   int     `json:"adaptation_count" gorm:"default:0"`
	SuccessCount      int     `json:"success_count" gorm:"default:0"`
}

// SessionRecord is the persisted summary of a finished monitored session.
// The live session table is in-memory; only terminal states land here.
type SessionRecord struct {
	BaseModel
	SessionID         string     `json:"session_id" gorm:"uniqueIndex;not null"`
	UserID            string     `json:"user_id" gorm:"type:uuid;index"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           *time.Time `json:"end_time"`
	Status            string     `json:"status" gorm:"check:status IN ('completed','interrupted')"`
	MessageCount      int        `json:"message_count"`
	AvgResponseTimeMs int64      `json:"avg_response_time_ms"`
	AccuracyScore     float64    `json:"accuracy_score"`
	EngagementScore   float64    `json:"engagement_score"`
	SatisfactionScore float64    `json:"satisfaction_score"`
	ErrorRate         float64    `json:"error_rate"`
	Effectiveness     float64    `json:"effectiveness"`
	TopicsCovered     StringArray `json:"topics_covered" gorm:"type:text[]"`
}

// SystemHealth represents service health monitoring
type SystemHealth struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ServiceName    string    `json:"service_name" gorm:"not null"`
	Status         string    `json:"status" gorm:"not null;check:status IN ('healthy','degraded','unhealthy')"`
	ResponseTimeMs int       `json:"response_time_ms"`
	ErrorMessage   string    `json:"error_message"`
	CheckedAt      time.Time `json:"checked_at" gorm:"default:NOW()"`
}

// TableName methods for custom table names
func (Conversation) TableName() string           { return "conversations" }
func (Message) TableName() string                { return "messages" }
func (Interaction) TableName() string            { return "interactions" }
func (Memory) TableName() string                 { return "memories" }
func (KnowledgeSource) TableName() string        { return "knowledge_sources" }
func (Feedback) TableName() string               { return "feedback" }
func (PersonalizationProfile) TableName() string { return "personalization_profiles" }
func (SessionRecord) TableName() string          { return "session_records" }
func (SystemHealth) TableName() string           { return "system_health" }

// Model validation methods
func (c *Conversation) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("user ID is required: %w", ErrInvalidInput)
	}
	return nil
}

func (m *Message) Validate() error {
	if m.ConversationID == "" {
		return fmt.Errorf("conversation ID is required: %w", ErrInvalidInput)
	}
	if m.Content == "" {
		return fmt.Errorf("message content is required: %w", ErrInvalidInput)
	}
	return nil
}

func (i *Interaction) Validate() error {
	if i.UserID == "" {
		return fmt.Errorf("user ID is required: %w", ErrInvalidInput)
	}
	if i.Query == "" {
		return fmt.Errorf("query text is required: %w", ErrInvalidInput)
	}
	if i.ResponseTimeMs < 0 {
		return fmt.Errorf("response time cannot be negative: %w", ErrInvalidInput)
	}
	return nil
}

func (m *Memory) Validate() error {
	if m.UserID == "" {
		return fmt.Errorf("user ID is required: %w", ErrInvalidInput)
	}
	if m.Content == "" {
		return fmt.Errorf("memory content is required: %w", ErrInvalidInput)
	}
	validRetention := map[string]bool{
		"session": true, "short_term": true, "medium_term": true, "long_term": true,
	}
	if !validRetention[m.Retention] {
		return fmt.Errorf("invalid retention class %q: %w", m.Retention, ErrInvalidInput)
	}
	return nil
}

func (f *Feedback) Validate() error {
	if f.UserID == "" || f.InteractionID == "" {
		return fmt.Errorf("user ID and interaction ID are required: %w", ErrInvalidInput)
	}
	validSources := map[string]bool{"explicit": true, "implicit": true, "hybrid": true}
	if !validSources[f.Source] {
		return fmt.Errorf("invalid feedback source %q: %w", f.Source, ErrInvalidInput)
	}
	if f.Rating < 0 || f.Rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5: %w", ErrInvalidInput)
	}
	return nil
}

func (p *PersonalizationProfile) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("user ID is required: %w", ErrInvalidInput)
	}
	if p.SuccessCount > p.AdaptationCount {
		return fmt.Errorf("success count %d exceeds adaptation count %d: %w",
			p.SuccessCount, p.AdaptationCount, ErrInvalidInput)
	}
	return nil
}

// GORM hooks
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if err := c.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return c.Validate()
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if err := m.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return m.Validate()
}

func (i *Interaction) BeforeCreate(tx *gorm.DB) error {
	if err := i.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return i.Validate()
}

func (m *Memory) BeforeCreate(tx *gorm.DB) error {
	if err := m.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return m.Validate()
}

func (f *Feedback) BeforeCreate(tx *gorm.DB) error {
	if err := f.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return f.Validate()
}

func (p *PersonalizationProfile) BeforeCreate(tx *gorm.DB) error {
	if err := p.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return p.Validate()
}

func (p *PersonalizationProfile) BeforeUpdate(tx *gorm.DB) error {
	return p.Validate()
}
