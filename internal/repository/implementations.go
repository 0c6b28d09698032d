package repository

import (
	"errors"
	"time"

	"github.com/studybuddy/backend/internal/models"
	"gorm.io/gorm"
)

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrNotFound
	}
	return err
}

// ConversationRepositoryImpl implements ConversationRepository
type ConversationRepositoryImpl struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) models.ConversationRepository {
	return &ConversationRepositoryImpl{db: db}
}

func (r *ConversationRepositoryImpl) Create(conv *models.Conversation) error {
	return r.db.Create(conv).Error
}

func (r *ConversationRepositoryImpl) GetByID(id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.First(&conv, "id = ?", id).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &conv, nil
}

func (r *ConversationRepositoryImpl) ListByUser(userID string, limit int) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&convs).Error
	return convs, err
}

func (r *ConversationRepositoryImpl) IncrementCounters(id string, messages, tokens int) error {
	return r.db.Model(&models.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"message_count": gorm.Expr("message_count + ?", messages),
			"token_count":   gorm.Expr("token_count + ?", tokens),
			"updated_at":    time.Now(),
		}).Error
}

func (r *ConversationRepositoryImpl) SetArchived(id string, archived bool) error {
	return r.db.Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("archived", archived).Error
}

// MessageRepositoryImpl implements MessageRepository
type MessageRepositoryImpl struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) models.MessageRepository {
	return &MessageRepositoryImpl{db: db}
}

func (r *MessageRepositoryImpl) Create(msg *models.Message) error {
	return r.db.Create(msg).Error
}

func (r *MessageRepositoryImpl) ListByConversation(conversationID string, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	// Chronological order for context assembly
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *MessageRepositoryImpl) CountByConversation(conversationID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&count).Error
	return count, err
}

// InteractionRepositoryImpl implements InteractionRepository
type InteractionRepositoryImpl struct {
	db *gorm.DB
}

func NewInteractionRepository(db *gorm.DB) models.InteractionRepository {
	return &InteractionRepositoryImpl{db: db}
}

func (r *InteractionRepositoryImpl) Create(interaction *models.Interaction) error {
	return r.db.Create(interaction).Error
}

func (r *InteractionRepositoryImpl) GetByID(id string) (*models.Interaction, error) {
	var interaction models.Interaction
	err := r.db.First(&interaction, "id = ?", id).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &interaction, nil
}

func (r *InteractionRepositoryImpl) ListByUser(userID string, since time.Time, limit int) ([]models.Interaction, error) {
	var interactions []models.Interaction
	err := r.db.Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at DESC").
		Limit(limit).
		Find(&interactions).Error
	return interactions, err
}

func (r *InteractionRepositoryImpl) ListBySession(sessionID string) ([]models.Interaction, error) {
	var interactions []models.Interaction
	err := r.db.Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&interactions).Error
	return interactions, err
}

func (r *InteractionRepositoryImpl) CountByUserBetween(userID string, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.Interaction{}).
		Where("user_id = ? AND created_at BETWEEN ? AND ?", userID, from, to).
		Count(&count).Error
	return count, err
}

// MemoryRepositoryImpl implements MemoryRepository
type MemoryRepositoryImpl struct {
	db *gorm.DB
}

func NewMemoryRepository(db *gorm.DB) models.MemoryRepository {
	return &MemoryRepositoryImpl{db: db}
}

func (r *MemoryRepositoryImpl) Create(memory *models.Memory) error {
	return r.db.Create(memory).Error
}

func (r *MemoryRepositoryImpl) GetByID(id string) (*models.Memory, error) {
	var memory models.Memory
	err := r.db.First(&memory, "id = ?", id).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &memory, nil
}

func (r *MemoryRepositoryImpl) ListByUser(userID string, limit int) ([]models.Memory, error) {
	var memories []models.Memory
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&memories).Error
	return memories, err
}

func (r *MemoryRepositoryImpl) ListByUserSince(userID string, since time.Time, limit int) ([]models.Memory, error) {
	var memories []models.Memory
	err := r.db.Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at DESC").
		Limit(limit).
		Find(&memories).Error
	return memories, err
}

func (r *MemoryRepositoryImpl) TouchAccess(id string) error {
	return r.db.Model(&models.Memory{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"access_count":  gorm.Expr("access_count + 1"),
			"last_accessed": time.Now(),
		}).Error
}

func (r *MemoryRepositoryImpl) UpdateRelevance(id string, score float64) error {
	return r.db.Model(&models.Memory{}).
		Where("id = ?", id).
		Update("relevance_score", score).Error
}

func (r *MemoryRepositoryImpl) DeleteByUser(userID string) error {
	return r.db.Where("user_id = ?", userID).Delete(&models.Memory{}).Error
}

// KnowledgeRepositoryImpl implements KnowledgeRepository
type KnowledgeRepositoryImpl struct {
	db *gorm.DB
}

func NewKnowledgeRepository(db *gorm.DB) models.KnowledgeRepository {
	return &KnowledgeRepositoryImpl{db: db}
}

func (r *KnowledgeRepositoryImpl) Upsert(source *models.KnowledgeSource) error {
	var existing models.KnowledgeSource
	err := r.db.Where("title = ?", source.Title).First(&existing).Error
	if err == nil {
		source.ID = existing.ID
		source.CreatedAt = existing.CreatedAt
		return r.db.Save(source).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.Create(source).Error
	}
	return err
}

func (r *KnowledgeRepositoryImpl) GetByID(id string) (*models.KnowledgeSource, error) {
	var source models.KnowledgeSource
	err := r.db.First(&source, "id = ?", id).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &source, nil
}

func (r *KnowledgeRepositoryImpl) GetByTitle(title string) (*models.KnowledgeSource, error) {
	var source models.KnowledgeSource
	err := r.db.Where("title = ?", title).First(&source).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &source, nil
}

func (r *KnowledgeRepositoryImpl) ListActive() ([]models.KnowledgeSource, error) {
	var sources []models.KnowledgeSource
	err := r.db.Where("is_active = ?", true).Find(&sources).Error
	return sources, err
}

func (r *KnowledgeRepositoryImpl) ListBySubjects(subjects []string) ([]models.KnowledgeSource, error) {
	if len(subjects) == 0 {
		return r.ListActive()
	}
	var sources []models.KnowledgeSource
	err := r.db.Where("is_active = ? AND subjects && ?::text[]", true, models.StringArray(subjects)).
		Find(&sources).Error
	return sources, err
}

// FeedbackRepositoryImpl implements FeedbackRepository
type FeedbackRepositoryImpl struct {
	db *gorm.DB
}

func NewFeedbackRepository(db *gorm.DB) models.FeedbackRepository {
	return &FeedbackRepositoryImpl{db: db}
}

func (r *FeedbackRepositoryImpl) Create(feedback *models.Feedback) error {
	return r.db.Create(feedback).Error
}

func (r *FeedbackRepositoryImpl) ListByInteraction(interactionID string) ([]models.Feedback, error) {
	var feedback []models.Feedback
	err := r.db.Where("interaction_id = ?", interactionID).
		Find(&feedback).Error
	return feedback, err
}

func (r *FeedbackRepositoryImpl) ListByUserSince(userID string, since time.Time) ([]models.Feedback, error) {
	var feedback []models.Feedback
	err := r.db.Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at DESC").
		Find(&feedback).Error
	return feedback, err
}

func (r *FeedbackRepositoryImpl) ListByUserBetween(userID string, from, to time.Time) ([]models.Feedback, error) {
	var feedback []models.Feedback
	err := r.db.Where("user_id = ? AND created_at BETWEEN ? AND ?", userID, from, to).
		Order("created_at ASC").
		Find(&feedback).Error
	return feedback, err
}

func (r *FeedbackRepositoryImpl) ListRecent(limit int) ([]models.Feedback, error) {
	var feedback []models.Feedback
	err := r.db.Order("created_at DESC").
		Limit(limit).
		Find(&feedback).Error
	return feedback, err
}

// ProfileRepositoryImpl implements ProfileRepository
type ProfileRepositoryImpl struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) models.ProfileRepository {
	return &ProfileRepositoryImpl{db: db}
}

func (r *ProfileRepositoryImpl) GetByUser(userID string) (*models.PersonalizationProfile, error) {
	var profile models.PersonalizationProfile
	err := r.db.Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &profile, nil
}

func (r *ProfileRepositoryImpl) Save(profile *models.PersonalizationProfile) error {
	return r.db.Save(profile).Error
}

func (r *ProfileRepositoryImpl) IncrementAdaptation(userID string, success bool) error {
	successDelta := 0
	if success {
		successDelta = 1
	}
	return r.db.Exec(`
		UPDATE personalization_profiles
		SET
			adaptation_count = adaptation_count + 1,
			success_count = success_count + ?,
			updated_at = NOW()
		WHERE user_id = ?
	`, successDelta, userID).Error
}

func (r *ProfileRepositoryImpl) DeleteByUser(userID string) error {
	return r.db.Where("user_id = ?", userID).Delete(&models.PersonalizationProfile{}).Error
}

// SessionRecordRepositoryImpl implements SessionRecordRepository
type SessionRecordRepositoryImpl struct {
	db *gorm.DB
}

func NewSessionRecordRepository(db *gorm.DB) models.SessionRecordRepository {
	return &SessionRecordRepositoryImpl{db: db}
}

func (r *SessionRecordRepositoryImpl) Create(record *models.SessionRecord) error {
	return r.db.Create(record).Error
}

func (r *SessionRecordRepositoryImpl) GetBySessionID(sessionID string) (*models.SessionRecord, error) {
	var record models.SessionRecord
	err := r.db.Where("session_id = ?", sessionID).First(&record).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &record, nil
}

func (r *SessionRecordRepositoryImpl) ListByUser(userID string, limit int) ([]models.SessionRecord, error) {
	var records []models.SessionRecord
	err := r.db.Where("user_id = ?", userID).
		Order("start_time DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// SystemHealthRepositoryImpl implements SystemHealthRepository
type SystemHealthRepositoryImpl struct {
	db *gorm.DB
}

func NewSystemHealthRepository(db *gorm.DB) models.SystemHealthRepository {
	return &SystemHealthRepositoryImpl{db: db}
}

func (r *SystemHealthRepositoryImpl) UpdateServiceHealth(serviceName, status string, responseTime int, errorMsg string) error {
	return r.db.Exec(`
		INSERT INTO system_health (service_name, status, response_time_ms, error_message, checked_at)
		VALUES (?, ?, ?, ?, NOW())
	`, serviceName, status, responseTime, errorMsg).Error
}

func (r *SystemHealthRepositoryImpl) GetServiceHealth(serviceName string) (*models.SystemHealth, error) {
	var health models.SystemHealth
	err := r.db.Where("service_name = ?", serviceName).
		Order("checked_at DESC").
		First(&health).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &health, nil
}

func (r *SystemHealthRepositoryImpl) GetAllServicesHealth() ([]models.SystemHealth, error) {
	var health []models.SystemHealth
	err := r.db.Raw(`
		SELECT DISTINCT ON (service_name) *
		FROM system_health
		ORDER BY service_name, checked_at DESC
	`).Scan(&health).Error
	return health, err
}

func (r *SystemHealthRepositoryImpl) GetUnhealthyServices() ([]models.SystemHealth, error) {
	var health []models.SystemHealth
	err := r.db.Raw(`
		SELECT DISTINCT ON (service_name) *
		FROM system_health
		WHERE status != 'healthy'
		ORDER BY service_name, checked_at DESC
	`).Scan(&health).Error
	return health, err
}

// RepositoryManager bundles all repositories
type RepositoryManager struct {
	Conversation  models.ConversationRepository
	Message       models.MessageRepository
	Interaction   models.InteractionRepository
	Memory        models.MemoryRepository
	Knowledge     models.KnowledgeRepository
	Feedback      models.FeedbackRepository
	Profile       models.ProfileRepository
	SessionRecord models.SessionRecordRepository
	SystemHealth  models.SystemHealthRepository
}

func NewRepositoryManager(db *gorm.DB) *RepositoryManager {
	return &RepositoryManager{
		Conversation:  NewConversationRepository(db),
		Message:       NewMessageRepository(db),
		Interaction:   NewInteractionRepository(db),
		Memory:        NewMemoryRepository(db),
		Knowledge:     NewKnowledgeRepository(db),
		Feedback:      NewFeedbackRepository(db),
		Profile:       NewProfileRepository(db),
		SessionRecord: NewSessionRecordRepository(db),
		SystemHealth:  NewSystemHealthRepository(db),
	}
}
