package context

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/studybuddy/backend/internal/config"
	"github.com/studybuddy/backend/internal/database"
	"github.com/studybuddy/backend/internal/models"
	"github.com/studybuddy/backend/pkg/utils"
)

const knowledgeCacheTTL = 10 * time.Minute

// KnowledgeBase ranks seeded reference sources against a query. Results are
// cached in Redis keyed by a query hash; cache misses fall through to the
// database, and database errors degrade to an empty result.
type KnowledgeBase struct {
	sources models.KnowledgeRepository
	cache   *database.Cache
	cfg     config.ContextConfig
	logger  *logrus.Logger
}

func NewKnowledgeBase(sources models.KnowledgeRepository, cache *database.Cache, cfg config.ContextConfig, logger *logrus.Logger) *KnowledgeBase {
	return &KnowledgeBase{
		sources: sources,
		cache:   cache,
		cfg:     cfg,
		logger:  logger,
	}
}

// ScoredSource pairs a knowledge source with its relevance to the query.
type ScoredSource struct {
	Source models.KnowledgeSource `json:"source"`
	Score  float64                `json:"score"`
}

// Search returns the best-matching active sources for the query, optionally
// restricted to subjects.
func (k *KnowledgeBase) Search(ctx context.Context, query string, subjects []string, limit int) []ScoredSource {
	if limit <= 0 {
		limit = k.cfg.MaxKnowledgeResults
	}

	queryHash := utils.MD5Hash(query + "|" + joinSubjects(subjects))

	if k.cache != nil {
		var cached []ScoredSource
		if err := k.cache.GetCachedKnowledgeResults(ctx, queryHash, &cached); err == nil {
			if len(cached) > limit {
				cached = cached[:limit]
			}
			return cached
		}
	}

	var candidates []models.KnowledgeSource
	var err error
	if len(subjects) > 0 {
		candidates, err = k.sources.ListBySubjects(subjects)
	} else {
		candidates, err = k.sources.ListActive()
	}
	if err != nil {
		k.logger.WithError(err).Warn("Knowledge lookup failed, continuing without sources")
		return nil
	}

	scored := make([]ScoredSource, 0, len(candidates))
	for _, src := range candidates {
		score := Similarity(query, src.Title+" "+src.Content)
		// Reliability weights the match so a weak source never outranks a
		// strong one on text overlap alone.
		score *= 0.5 + 0.5*src.ReliabilityScore
		if score < k.cfg.MinRelevance {
			continue
		}
		scored = append(scored, ScoredSource{Source: src, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}

	if k.cache != nil && len(scored) > 0 {
		if err := k.cache.CacheKnowledgeResults(ctx, queryHash, scored, knowledgeCacheTTL); err != nil {
			k.logger.WithError(err).Debug("Failed to cache knowledge results")
		}
	}

	return scored
}

// VerifyClaim checks a single claim against the knowledge base and returns
// the best supporting source, if any clears the reliability floor.
func (k *KnowledgeBase) VerifyClaim(ctx context.Context, claim string, minReliability float64) (bool, string) {
	results := k.Search(ctx, claim, nil, 3)
	for _, r := range results {
		if r.Source.ReliabilityScore >= minReliability && r.Score >= k.cfg.MinRelevance {
			return true, r.Source.ID
		}
	}
	return false, ""
}

func joinSubjects(subjects []string) string {
	out := ""
	for i, s := range subjects {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
