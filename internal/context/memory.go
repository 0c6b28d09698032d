package context

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/studybuddy/backend/internal/config"
	"github.com/studybuddy/backend/internal/models"
)

// MemoryStore retrieves and persists per-user learning memories. Retrieval is
// fail-soft: a storage error yields an empty result, never a failed request.
type MemoryStore struct {
	memories models.MemoryRepository
	cfg      config.ContextConfig
	logger   *logrus.Logger
}

func NewMemoryStore(memories models.MemoryRepository, cfg config.ContextConfig, logger *logrus.Logger) *MemoryStore {
	return &MemoryStore{
		memories: memories,
		cfg:      cfg,
		logger:   logger,
	}
}

// ScoredMemory pairs a stored memory with its relevance to the current query.
type ScoredMemory struct {
	Memory models.Memory
	Score  float64
}

// SearchMemories returns the user's memories ranked by similarity to the
// query, filtered by the minimum relevance threshold.
func (s *MemoryStore) SearchMemories(userID, query string, limit int) []ScoredMemory {
	if limit <= 0 {
		limit = s.cfg.MaxMemoryResults
	}

	candidates, err := s.memories.ListByUser(userID, limit*4)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Memory search failed, continuing without memories")
		return nil
	}

	scored := make([]ScoredMemory, 0, len(candidates))
	for _, m := range candidates {
		score := Similarity(query, m.Content)
		// Stored relevance nudges the ranking but text match dominates.
		score = 0.8*score + 0.2*m.RelevanceScore
		if score < s.cfg.MinRelevance {
			continue
		}
		scored = append(scored, ScoredMemory{Memory: m, Score: score})
	}

	// Candidates arrive newest first; a stable sort keeps that order as the
	// tie-break so equal scores favor the more recent memory.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}

	for _, sm := range scored {
		if err := s.memories.TouchAccess(sm.Memory.ID); err != nil {
			s.logger.WithError(err).WithField("memory_id", sm.Memory.ID).Debug("Failed to record memory access")
		}
	}

	return scored
}

// RecentMemories returns the newest memories without relevance filtering,
// used by the lighter compression levels.
func (s *MemoryStore) RecentMemories(userID string, limit int) []models.Memory {
	if limit <= 0 {
		limit = s.cfg.RecentWindow
	}
	memories, err := s.memories.ListByUser(userID, limit)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Recent memory lookup failed")
		return nil
	}
	return memories
}

// StoreInteraction writes a memory derived from a completed interaction. The
// retention class follows the observed quality of the exchange.
func (s *MemoryStore) StoreInteraction(interaction *models.Interaction, qualityScore float64) error {
	if interaction == nil {
		return fmt.Errorf("interaction is required: %w", models.ErrInvalidInput)
	}

	memory := &models.Memory{
		UserID:         interaction.UserID,
		ConversationID: interaction.ConversationID,
		MemoryType:     "learning_interaction",
		Content:        fmt.Sprintf("Q: %s\nA: %s", interaction.Query, interaction.Response),
		QualityScore:   qualityScore,
		RelevanceScore: qualityScore,
		Retention:      classifyRetention(qualityScore),
		RelatedIDs:     models.StringArray{interaction.ID},
	}

	if err := s.memories.Create(memory); err != nil {
		return fmt.Errorf("failed to store interaction memory: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":   interaction.UserID,
		"memory_id": memory.ID,
		"retention": memory.Retention,
	}).Debug("Stored interaction memory")

	return nil
}

// RescoreMemory updates a memory's relevance after downstream feedback.
func (s *MemoryStore) RescoreMemory(memoryID string, score float64) error {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return s.memories.UpdateRelevance(memoryID, score)
}

// Forget removes all memories for a user.
func (s *MemoryStore) Forget(userID string) error {
	return s.memories.DeleteByUser(userID)
}

func classifyRetention(quality float64) string {
	switch {
	case quality >= 0.8:
		return "long_term"
	case quality >= 0.6:
		return "medium_term"
	case quality >= 0.4:
		return "short_term"
	default:
		return "session"
	}
}

// InteractionCountSince is a convenience for escalation decisions.
func InteractionCountSince(repo models.InteractionRepository, userID string, since time.Time) int64 {
	count, err := repo.CountByUserBetween(userID, since, time.Now())
	if err != nil {
		return 0
	}
	return count
}
