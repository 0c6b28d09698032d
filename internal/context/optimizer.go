package context

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/studybuddy/backend/internal/config"
	"github.com/studybuddy/backend/internal/models"
)

// Optimizer assembles the context bundle handed to generation. It picks a
// compression level from the query classification and conversation depth,
// then fills the token budget additively so the limit is never exceeded.
type Optimizer struct {
	memories     *MemoryStore
	knowledge    *KnowledgeBase
	interactions models.InteractionRepository
	cfg          config.ContextConfig
	logger       *logrus.Logger
}

func NewOptimizer(memories *MemoryStore, knowledge *KnowledgeBase, interactions models.InteractionRepository, cfg config.ContextConfig, logger *logrus.Logger) *Optimizer {
	return &Optimizer{
		memories:     memories,
		knowledge:    knowledge,
		interactions: interactions,
		cfg:          cfg,
		logger:       logger,
	}
}

// Build assembles a context bundle for the query within tokenLimit. A
// non-positive tokenLimit uses the configured default.
func (o *Optimizer) Build(ctx context.Context, userID, query string, classification models.QueryClassification, tokenLimit int) *models.ContextBundle {
	if tokenLimit <= 0 {
		tokenLimit = o.cfg.DefaultTokenLimit
	}

	level := o.selectLevel(userID, classification)

	bundle := &models.ContextBundle{Level: level}

	var parts []string
	var relevanceSum float64
	var relevanceCount int
	budget := tokenLimit

	appendPart := func(text string, score float64) bool {
		cost := EstimateTokens(text)
		if cost > budget {
			return false
		}
		parts = append(parts, text)
		budget -= cost
		if score > 0 {
			relevanceSum += score
			relevanceCount++
		}
		return true
	}

	switch level {
	case models.CompressionLight:
		// Nothing beyond the query itself. Minimal footprint for greetings
		// and trivial lookups.

	case models.CompressionRecent:
		for _, m := range o.memories.RecentMemories(userID, o.cfg.RecentWindow) {
			if !appendPart(m.Content, m.RelevanceScore) {
				break
			}
			bundle.MemoryIDs = append(bundle.MemoryIDs, m.ID)
		}

	case models.CompressionSelective:
		o.fillSelective(ctx, bundle, userID, query, classification, appendPart)

	case models.CompressionFull:
		o.fillSelective(ctx, bundle, userID, query, classification, appendPart)
		// Full also carries the recent turn history for continuity.
		for _, m := range o.memories.RecentMemories(userID, o.cfg.RecentWindow) {
			if containsID(bundle.MemoryIDs, m.ID) {
				continue
			}
			if !appendPart(m.Content, m.RelevanceScore) {
				break
			}
			bundle.MemoryIDs = append(bundle.MemoryIDs, m.ID)
		}
	}

	bundle.Text = strings.Join(parts, "\n\n")
	bundle.Tokens = models.TokenUsage{
		Input: tokenLimit - budget,
		Total: tokenLimit - budget,
	}
	if relevanceCount > 0 {
		bundle.RelevanceScore = relevanceSum / float64(relevanceCount)
	}

	o.logger.WithFields(logrus.Fields{
		"user_id":     userID,
		"level":       level,
		"parts":       len(parts),
		"tokens_used": bundle.Tokens.Total,
		"token_limit": tokenLimit,
	}).Debug("Assembled context bundle")

	return bundle
}

func (o *Optimizer) fillSelective(ctx context.Context, bundle *models.ContextBundle, userID, query string, classification models.QueryClassification, appendPart func(string, float64) bool) {
	for _, sm := range o.memories.SearchMemories(userID, query, o.cfg.MaxMemoryResults) {
		if !appendPart(sm.Memory.Content, sm.Score) {
			break
		}
		bundle.MemoryIDs = append(bundle.MemoryIDs, sm.Memory.ID)
	}

	var subjects []string
	if classification.Subject != "" {
		subjects = []string{classification.Subject}
	}
	for _, ss := range o.knowledge.Search(ctx, query, subjects, o.cfg.MaxKnowledgeResults) {
		excerpt := fmt.Sprintf("%s: %s", ss.Source.Title, ss.Source.Content)
		if !appendPart(excerpt, ss.Score) {
			break
		}
		bundle.KnowledgeIDs = append(bundle.KnowledgeIDs, ss.Source.ID)
	}
}

// selectLevel maps classification and conversation depth to a compression
// level. Deep-understanding queries always get the full treatment; longer
// conversations escalate so earlier context is not lost.
func (o *Optimizer) selectLevel(userID string, classification models.QueryClassification) models.CompressionLevel {
	if classification.Category == "deep_understanding" {
		return models.CompressionFull
	}

	level := models.CompressionRecent
	if classification.Category == "greeting" || classification.Complexity < 0.2 {
		level = models.CompressionLight
	} else if classification.Complexity >= 0.6 {
		level = models.CompressionSelective
	}

	turns := InteractionCountSince(o.interactions, userID, time.Now().Add(-time.Hour))
	if turns > int64(o.cfg.EscalationTurns) && levelRank(level) < levelRank(models.CompressionSelective) {
		level = models.CompressionSelective
	}

	return level
}

func levelRank(l models.CompressionLevel) int {
	switch l {
	case models.CompressionLight:
		return 0
	case models.CompressionRecent:
		return 1
	case models.CompressionSelective:
		return 2
	case models.CompressionFull:
		return 3
	}
	return 1
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
