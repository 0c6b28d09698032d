package database

import (
	"context"
	"encoding/json"
	"fmt"

	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/studybuddy/backend/internal/models"
)

// Cache implementation over Redis, shared by knowledge search, profiles and
// health snapshots.
type Cache struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewCache(client *redis.Client, logger *logrus.Logger) *Cache {
	return &Cache{
		client: client,
		logger: logger,
	}
}

// Cache key constants
const (
	KnowledgeSearchKey = "knowledge:search:%s"
	ProfileKey         = "profile:%s"
	SystemHealthKey    = "system:health"
	SessionHealthKey   = "session:health:%s"
)

// CacheKnowledgeResults caches knowledge search results for a query hash.
func (c *Cache) CacheKnowledgeResults(ctx context.Context, queryHash string, results interface{}, expiration time.Duration) error {
	key := fmt.Sprintf(KnowledgeSearchKey, queryHash)

	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal knowledge results: %w", err)
	}

	return c.client.Set(ctx, key, data, expiration).Err()
}

// GetCachedKnowledgeResults retrieves cached knowledge search results.
func (c *Cache) GetCachedKnowledgeResults(ctx context.Context, queryHash string, result interface{}) error {
	key := fmt.Sprintf(KnowledgeSearchKey, queryHash)

	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(data), result)
}

// CacheProfile caches a personalization profile.
func (c *Cache) CacheProfile(ctx context.Context, userID string, profile *models.PersonalizationProfile, expiration time.Duration) error {
	key := fmt.Sprintf(ProfileKey, userID)

	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	return c.client.Set(ctx, key, data, expiration).Err()
}

// GetCachedProfile retrieves a cached personalization profile.
func (c *Cache) GetCachedProfile(ctx context.Context, userID string) (*models.PersonalizationProfile, error) {
	key := fmt.Sprintf(ProfileKey, userID)

	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var profile models.PersonalizationProfile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		return nil, err
	}

	return &profile, nil
}

// InvalidateProfile drops a cached profile after an update.
func (c *Cache) InvalidateProfile(ctx context.Context, userID string) error {
	return c.client.Del(ctx, fmt.Sprintf(ProfileKey, userID)).Err()
}

// CacheSystemHealth caches system health status
func (c *Cache) CacheSystemHealth(ctx context.Context, health []models.SystemHealth, expiration time.Duration) error {
	data, err := json.Marshal(health)
	if err != nil {
		return fmt.Errorf("failed to marshal system health: %w", err)
	}

	return c.client.Set(ctx, SystemHealthKey, data, expiration).Err()
}

// GetCachedSystemHealth retrieves cached system health
func (c *Cache) GetCachedSystemHealth(ctx context.Context) ([]models.SystemHealth, error) {
	data, err := c.client.Get(ctx, SystemHealthKey).Result()
	if err != nil {
		return nil, err
	}

	var health []models.SystemHealth
	err = json.Unmarshal([]byte(data), &health)
	return health, err
}

// InvalidateKnowledgeCache removes a cached knowledge search entry.
func (c *Cache) InvalidateKnowledgeCache(ctx context.Context, queryHash string) error {
	key := fmt.Sprintf(KnowledgeSearchKey, queryHash)
	return c.client.Del(ctx, key).Err()
}
