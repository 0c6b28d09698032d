package models

import "time"

// Database interfaces for repository pattern

type ConversationRepository interface {
	Create(conv *Conversation) error
	GetByID(id string) (*Conversation, error)
	ListByUser(userID string, limit int) ([]Conversation, error)
	IncrementCounters(id string, messages, tokens int) error
	SetArchived(id string, archived bool) error
}

type MessageRepository interface {
	Create(msg *Message) error
	ListByConversation(conversationID string, limit int) ([]Message, error)
	CountByConversation(conversationID string) (int64, error)
}

type InteractionRepository interface {
	Create(interaction *Interaction) error
	GetByID(id string) (*Interaction, error)
	ListByUser(userID string, since time.Time, limit int) ([]Interaction, error)
	ListBySession(sessionID string) ([]Interaction, error)
	CountByUserBetween(userID string, from, to time.Time) (int64, error)
}

type MemoryRepository interface {
	Create(memory *Memory) error
	GetByID(id string) (*Memory, error)
	ListByUser(userID string, limit int) ([]Memory, error)
	ListByUserSince(userID string, since time.Time, limit int) ([]Memory, error)
	TouchAccess(id string) error
	UpdateRelevance(id string, score float64) error
	DeleteByUser(userID string) error
}

type KnowledgeRepository interface {
	Upsert(source *KnowledgeSource) error
	GetByID(id string) (*KnowledgeSource, error)
	GetByTitle(title string) (*KnowledgeSource, error)
	ListActive() ([]KnowledgeSource, error)
	ListBySubjects(subjects []string) ([]KnowledgeSource, error)
}

type FeedbackRepository interface {
	Create(feedback *Feedback) error
	ListByInteraction(interactionID string) ([]Feedback, error)
	ListByUserSince(userID string, since time.Time) ([]Feedback, error)
	ListByUserBetween(userID string, from, to time.Time) ([]Feedback, error)
	ListRecent(limit int) ([]Feedback, error)
}

type ProfileRepository interface {
	GetByUser(userID string) (*PersonalizationProfile, error)
	Save(profile *PersonalizationProfile) error
	// IncrementAdaptation bumps the counters atomically; success also bumps
	// success_count. Increment semantics, never overwrite.
	IncrementAdaptation(userID string, success bool) error
	DeleteByUser(userID string) error
}

type SessionRecordRepository interface {
	Create(record *SessionRecord) error
	GetBySessionID(sessionID string) (*SessionRecord, error)
	ListByUser(userID string, limit int) ([]SessionRecord, error)
}

type SystemHealthRepository interface {
	UpdateServiceHealth(serviceName, status string, responseTime int, errorMsg string) error
	GetServiceHealth(serviceName string) (*SystemHealth, error)
	GetAllServicesHealth() ([]SystemHealth, error)
	GetUnhealthyServices() ([]SystemHealth, error)
}
